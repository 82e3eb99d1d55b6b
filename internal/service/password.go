package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/iliyamo/bean-counter/internal/model"
	"github.com/iliyamo/bean-counter/internal/queue"
	"github.com/iliyamo/bean-counter/internal/repository"
	"github.com/iliyamo/bean-counter/internal/utils"
)

// ResetUsers looks users up by email.
type ResetUsers interface {
	GetByEmail(ctx context.Context, email string) (model.User, error)
}

// ResetStore persists reset tokens.  Consume marks the token used,
// stores the new hash and revokes the user's sessions atomically.
type ResetStore interface {
	Create(ctx context.Context, userID, token string, exp time.Time) (model.PasswordReset, error)
	GetByToken(ctx context.Context, token string) (model.PasswordReset, error)
	Consume(ctx context.Context, resetID, userID, passwordHash string) (int64, error)
}

// PasswordService runs the forgot/reset password flow.
type PasswordService struct {
	Users  ResetUsers
	Resets ResetStore
	Hasher utils.Hasher
	Mail   queue.Publisher
	AppURL string
	TTL    time.Duration

	now func() time.Time
}

func (s *PasswordService) clock() time.Time {
	if s.now != nil {
		return s.now()
	}
	return time.Now().UTC()
}

// ForgotPassword issues a reset token and queues the mail.  Unknown and
// inactive accounts return nil so the response never reveals whether an
// email is registered.
func (s *PasswordService) ForgotPassword(ctx context.Context, email string) error {
	u, err := s.Users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil
		}
		return err
	}
	if !u.IsActive {
		return nil
	}
	token, err := utils.RandomHex(32)
	if err != nil {
		return err
	}
	ttl := s.TTL
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	pr, err := s.Resets.Create(ctx, u.ID, token, s.clock().Add(ttl))
	if err != nil {
		return err
	}
	if s.Mail != nil {
		if err := s.Mail.PublishMail(ctx, queue.MailEvent{
			Kind:      queue.MailPasswordReset,
			To:        u.Email,
			Name:      u.FullName,
			Subject:   "Reset your Bean Counter password",
			Link:      s.AppURL + "/reset-password/" + pr.Token,
			ExpiresAt: pr.ExpiresAt,
			CreatedAt: s.clock(),
		}); err != nil {
			logger().Warn().Err(err).Str("user_id", u.ID).Msg("reset mail not queued")
		}
	}
	return nil
}

// ResetPassword sets a new password from a valid reset token and signs
// the user out everywhere.
func (s *PasswordService) ResetPassword(ctx context.Context, token, password string) error {
	if err := required("password", password); err != nil {
		return err
	}
	pr, err := s.Resets.GetByToken(ctx, strings.TrimSpace(token))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return problem(repository.ErrNotFound, "reset link is invalid")
		}
		return err
	}
	if pr.UsedAt != nil || !pr.ExpiresAt.After(s.clock()) {
		return problem(ErrExpired, "reset link has expired")
	}
	hash, err := s.Hasher.Hash(password)
	if err != nil {
		return err
	}
	revoked, err := s.Resets.Consume(ctx, pr.ID, pr.UserID, hash)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return problem(ErrExpired, "reset link has expired")
		}
		return err
	}
	logger().Info().Str("user_id", pr.UserID).Int64("sessions_revoked", revoked).Msg("password reset")
	return nil
}
