package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/iliyamo/bean-counter/internal/model"
	"github.com/iliyamo/bean-counter/internal/queue"
	"github.com/iliyamo/bean-counter/internal/repository"
	"github.com/iliyamo/bean-counter/internal/utils"
)

func newPasswords() (*PasswordService, *memStore, *recordedMail) {
	st := newMemStore()
	st.users["u1"] = model.User{ID: "u1", Email: "a@b.com", FullName: "A B", IsActive: true}
	st.users["u2"] = model.User{ID: "u2", Email: "off@b.com", IsActive: false}
	mail := &recordedMail{}
	return &PasswordService{
		Users:  memUsers{st},
		Resets: memResets{st},
		Hasher: utils.BcryptHasher{Cost: bcrypt.MinCost},
		Mail:   mail,
		AppURL: "http://app.test",
		TTL:    30 * time.Minute,
		now:    func() time.Time { return t0 },
	}, st, mail
}

func TestForgotPasswordIsSilentForUnknownAccounts(t *testing.T) {
	svc, st, mail := newPasswords()
	ctx := context.Background()

	for _, email := range []string{"nobody@b.com", "off@b.com"} {
		if err := svc.ForgotPassword(ctx, email); err != nil {
			t.Fatalf("ForgotPassword(%q) = %v, want nil", email, err)
		}
	}
	if len(st.resets) != 0 || len(mail.sent) != 0 {
		t.Fatalf("resets = %d mails = %d, want none", len(st.resets), len(mail.sent))
	}
}

func TestResetPasswordFlow(t *testing.T) {
	svc, st, mail := newPasswords()
	ctx := context.Background()
	st.sessions["u1"] = 3

	if err := svc.ForgotPassword(ctx, "a@b.com"); err != nil {
		t.Fatalf("ForgotPassword: %v", err)
	}
	if len(mail.sent) != 1 || mail.sent[0].Kind != queue.MailPasswordReset {
		t.Fatalf("mail = %+v", mail.sent)
	}
	var token string
	for _, pr := range st.resets {
		token = pr.Token
	}
	if mail.sent[0].Link != "http://app.test/reset-password/"+token {
		t.Fatalf("link = %q", mail.sent[0].Link)
	}

	if err := svc.ResetPassword(ctx, token, "n3w-pass"); err != nil {
		t.Fatalf("ResetPassword: %v", err)
	}
	if !svc.Hasher.Compare(st.users["u1"].PasswordHash, "n3w-pass") {
		t.Fatal("new password not stored")
	}
	if st.sessions["u1"] != 0 {
		t.Fatalf("sessions = %d, want all revoked", st.sessions["u1"])
	}
	if err := svc.ResetPassword(ctx, token, "again"); !errors.Is(err, ErrExpired) {
		t.Fatalf("reuse err = %v, want expired", err)
	}
}

func TestResetPasswordRejectsBadTokens(t *testing.T) {
	svc, st, _ := newPasswords()
	ctx := context.Background()
	st.resets["r1"] = model.PasswordReset{ID: "r1", UserID: "u1", Token: "old", ExpiresAt: t0.Add(-time.Second)}

	if err := svc.ResetPassword(ctx, "old", "pw"); !errors.Is(err, ErrExpired) {
		t.Fatalf("expired err = %v", err)
	}
	if err := svc.ResetPassword(ctx, "unknown", "pw"); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("unknown err = %v", err)
	}
	if err := svc.ResetPassword(ctx, "old", ""); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("blank err = %v", err)
	}
}
