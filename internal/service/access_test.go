package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/iliyamo/bean-counter/internal/model"
	"github.com/iliyamo/bean-counter/internal/queue"
	"github.com/iliyamo/bean-counter/internal/repository"
	"github.com/iliyamo/bean-counter/internal/utils"
)

var (
	admin = Actor{UserID: "u-admin", RoleID: "r-admin", Name: "Ada Admin"}
	t0    = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
)

func newAccess(t *testing.T) (*AccessService, *memStore, *recordedMail, *recordedActivity) {
	t.Helper()
	st := newMemStore()
	st.roles["r-admin"] = model.Role{ID: "r-admin", Name: "ADMIN"}
	st.roles["r-user"] = model.Role{ID: "r-user", Name: "USER"}
	st.users["u-admin"] = model.User{ID: "u-admin", Email: "admin@example.com", RoleID: "r-admin", IsActive: true, CreatedAt: time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)}
	mail := &recordedMail{}
	act := &recordedActivity{}
	svc := &AccessService{
		Users:     memUsers{st},
		Invites:   memInvites{st},
		Roles:     memRoles{st},
		Hasher:    utils.BcryptHasher{Cost: bcrypt.MinCost},
		Mail:      mail,
		Activity:  act,
		AppURL:    "http://app.test",
		InviteTTL: 24 * time.Hour,
		now:       func() time.Time { return t0 },
	}
	return svc, st, mail, act
}

func invite(t *testing.T, svc *AccessService, email string) model.UserInvite {
	t.Helper()
	inv, err := svc.InviteUser(context.Background(), admin, InviteInput{
		Email: email, FirstName: "Ivy", LastName: "Invitee", RoleID: "r-user",
	})
	if err != nil {
		t.Fatalf("InviteUser: %v", err)
	}
	return inv
}

func TestInviteUserQueuesMail(t *testing.T) {
	svc, _, mail, act := newAccess(t)
	inv := invite(t, svc, "  Ivy@Example.com ")

	if inv.Email != "ivy@example.com" {
		t.Errorf("email = %q, want normalized", inv.Email)
	}
	if len(inv.Token) != 64 {
		t.Errorf("token length = %d, want 64", len(inv.Token))
	}
	if !inv.ExpiresAt.Equal(t0.Add(24 * time.Hour)) {
		t.Errorf("expires = %v", inv.ExpiresAt)
	}
	if len(mail.sent) != 1 || mail.sent[0].Kind != queue.MailInvite || mail.sent[0].Link != "http://app.test/register/"+inv.Token {
		t.Fatalf("mail = %+v", mail.sent)
	}
	if len(act.events) != 1 || act.events[0].Action != repository.ActionCreate || act.events[0].User != "Ada Admin" {
		t.Fatalf("activity = %+v", act.events)
	}
}

func TestInviteUserConflicts(t *testing.T) {
	svc, _, _, _ := newAccess(t)
	ctx := context.Background()
	invite(t, svc, "ivy@example.com")

	cases := []struct {
		name string
		in   InviteInput
		kind error
	}{
		{"existing user", InviteInput{Email: "ADMIN@example.com", FirstName: "A", LastName: "B", RoleID: "r-user"}, repository.ErrConflict},
		{"pending invite", InviteInput{Email: "ivy@example.com", FirstName: "A", LastName: "B", RoleID: "r-user"}, repository.ErrConflict},
		{"unknown role", InviteInput{Email: "new@example.com", FirstName: "A", LastName: "B", RoleID: "nope"}, ErrInvalidInput},
		{"missing name", InviteInput{Email: "new@example.com", LastName: "B", RoleID: "r-user"}, ErrInvalidInput},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.InviteUser(ctx, admin, tc.in)
			if !errors.Is(err, tc.kind) {
				t.Fatalf("err = %v, want %v", err, tc.kind)
			}
		})
	}
}

func TestAcceptInviteCreatesUserOnce(t *testing.T) {
	svc, st, _, _ := newAccess(t)
	ctx := context.Background()
	inv := invite(t, svc, "ivy@example.com")

	u, err := svc.AcceptInvite(ctx, inv.Token, AcceptInput{Password: "hunter22", PhoneNumber: "555"})
	if err != nil {
		t.Fatalf("AcceptInvite: %v", err)
	}
	if u.Email != "ivy@example.com" || u.RoleID != "r-user" || !u.IsActive || u.EmailVerifiedAt == nil {
		t.Fatalf("user = %+v", u)
	}
	if !svc.Hasher.Compare(u.PasswordHash, "hunter22") {
		t.Fatal("password hash does not verify")
	}

	_, err = svc.AcceptInvite(ctx, inv.Token, AcceptInput{Password: "other"})
	if !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("second accept err = %v, want not found", err)
	}
	if len(st.users) != 2 || len(st.invites) != 0 {
		t.Fatalf("users = %d invites = %d, want 2 and 0", len(st.users), len(st.invites))
	}
}

func TestAcceptInviteConcurrentSingleUser(t *testing.T) {
	svc, st, _, _ := newAccess(t)
	inv := invite(t, svc, "ivy@example.com")

	var wg sync.WaitGroup
	var mu sync.Mutex
	wins := 0
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := svc.AcceptInvite(context.Background(), inv.Token, AcceptInput{Password: "pw"}); err == nil {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	if wins != 1 {
		t.Fatalf("wins = %d, want 1", wins)
	}
	if len(st.users) != 2 {
		t.Fatalf("users = %d, want 2", len(st.users))
	}
}

func TestLookupInviteExpired(t *testing.T) {
	svc, _, _, _ := newAccess(t)
	inv := invite(t, svc, "ivy@example.com")

	svc.now = func() time.Time { return t0.Add(25 * time.Hour) }
	if _, err := svc.LookupInvite(context.Background(), inv.Token); !errors.Is(err, ErrExpired) {
		t.Fatalf("err = %v, want expired", err)
	}
	if _, err := svc.AcceptInvite(context.Background(), inv.Token, AcceptInput{Password: "pw"}); !errors.Is(err, ErrExpired) {
		t.Fatalf("accept err = %v, want expired", err)
	}
	if _, err := svc.LookupInvite(context.Background(), "missing"); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("missing err = %v", err)
	}
}

func TestEditUserFallsBackToInvite(t *testing.T) {
	svc, st, _, _ := newAccess(t)
	ctx := context.Background()
	inv := invite(t, svc, "ivy@example.com")

	entry, err := svc.EditUser(ctx, admin, inv.ID, EditInput{Email: " Ivy.New@Example.com", RoleID: "r-admin"})
	if err != nil {
		t.Fatalf("EditUser: %v", err)
	}
	if entry.Source != SourceInvite || entry.Status != "pending" || entry.Email != "ivy.new@example.com" {
		t.Fatalf("entry = %+v", entry)
	}
	got := st.invites[inv.ID]
	if got.RoleID != "r-admin" || got.Email != "ivy.new@example.com" || got.FirstName != "Ivy" {
		t.Fatalf("invite = %+v", got)
	}
	if _, err := svc.EditUser(ctx, admin, "ghost", EditInput{Email: "a@b.io", RoleID: "r-user"}); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("ghost err = %v", err)
	}
}

func TestEditUserChangesEmail(t *testing.T) {
	svc, st, _, _ := newAccess(t)
	st.users["u-bo"] = model.User{ID: "u-bo", Email: "bo@example.com", FirstName: "Bo", RoleID: "r-user", IsActive: true}

	entry, err := svc.EditUser(context.Background(), admin, "u-bo", EditInput{Email: "BO2@example.com", RoleID: "r-user"})
	if err != nil {
		t.Fatalf("EditUser: %v", err)
	}
	if entry.Source != SourceUser || st.users["u-bo"].Email != "bo2@example.com" || st.users["u-bo"].FirstName != "Bo" {
		t.Fatalf("entry = %+v user = %+v", entry, st.users["u-bo"])
	}
	// Unchanged email is not a conflict with itself.
	if _, err := svc.EditUser(context.Background(), admin, "u-bo", EditInput{Email: "bo2@example.com", RoleID: "r-admin"}); err != nil {
		t.Fatalf("same email: %v", err)
	}
}

func TestEditUserEmailConflicts(t *testing.T) {
	svc, st, _, _ := newAccess(t)
	st.users["u-bo"] = model.User{ID: "u-bo", Email: "bo@example.com", RoleID: "r-user", IsActive: true}
	inv := invite(t, svc, "ivy@example.com")

	cases := []struct {
		name, id, email string
	}{
		{"user takes user email", "u-bo", "admin@example.com"},
		{"user takes invite email", "u-bo", "ivy@example.com"},
		{"invite takes user email", inv.ID, "bo@example.com"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.EditUser(context.Background(), admin, tc.id, EditInput{Email: tc.email, RoleID: "r-user"})
			if !errors.Is(err, repository.ErrConflict) {
				t.Fatalf("err = %v, want conflict", err)
			}
		})
	}
	if st.users["u-bo"].Email != "bo@example.com" || st.invites[inv.ID].Email != "ivy@example.com" {
		t.Fatal("conflicting edit was applied")
	}
}

func TestEditUserDeactivateEndsSessions(t *testing.T) {
	svc, st, _, _ := newAccess(t)
	st.users["u-bo"] = model.User{ID: "u-bo", Email: "bo@example.com", RoleID: "r-user", IsActive: true}
	st.sessions["u-bo"] = 2
	off := false

	entry, err := svc.EditUser(context.Background(), admin, "u-bo", EditInput{Email: "bo@example.com", RoleID: "r-user", IsActive: &off})
	if err != nil {
		t.Fatalf("EditUser: %v", err)
	}
	if entry.Status != "inactive" || st.sessions["u-bo"] != 0 {
		t.Fatalf("entry = %+v sessions = %d", entry, st.sessions["u-bo"])
	}
}

func TestEditUserCannotDeactivateSelf(t *testing.T) {
	svc, st, _, _ := newAccess(t)
	off := false
	_, err := svc.EditUser(context.Background(), admin, admin.UserID, EditInput{Email: "admin@example.com", RoleID: "r-admin", IsActive: &off})
	if !errors.Is(err, repository.ErrForbidden) {
		t.Fatalf("err = %v, want forbidden", err)
	}
	if !st.users[admin.UserID].IsActive {
		t.Fatal("admin was deactivated")
	}
}

func TestDeleteAccess(t *testing.T) {
	svc, st, _, _ := newAccess(t)
	ctx := context.Background()
	inv := invite(t, svc, "ivy@example.com")

	if err := svc.DeleteAccess(ctx, admin, admin.UserID, SourceUser); !errors.Is(err, repository.ErrForbidden) {
		t.Fatalf("self delete err = %v", err)
	}
	if err := svc.DeleteAccess(ctx, admin, inv.ID, "invite"); err != nil {
		t.Fatalf("delete invite: %v", err)
	}
	if len(st.invites) != 0 {
		t.Fatal("invite still present")
	}
	if err := svc.DeleteAccess(ctx, admin, inv.ID, SourceInvite); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("second delete err = %v", err)
	}
	if err := svc.DeleteAccess(ctx, admin, "x", "GROUP"); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("bad source err = %v", err)
	}
}

func TestListAccessMergesNewestFirst(t *testing.T) {
	svc, _, _, _ := newAccess(t)
	inv := invite(t, svc, "ivy@example.com")

	list, err := svc.ListAccess(context.Background())
	if err != nil {
		t.Fatalf("ListAccess: %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("len = %d, want 2", len(list))
	}
	// the admin row predates any invite
	if list[0].ID != inv.ID || list[0].Source != SourceInvite || list[1].Source != SourceUser {
		t.Fatalf("order = %+v", list)
	}
}
