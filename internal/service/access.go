package service

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/iliyamo/bean-counter/internal/model"
	"github.com/iliyamo/bean-counter/internal/queue"
	"github.com/iliyamo/bean-counter/internal/realtime"
	"github.com/iliyamo/bean-counter/internal/repository"
	"github.com/iliyamo/bean-counter/internal/utils"
)

// AccessUsers is the user persistence used by access management.
type AccessUsers interface {
	GetByID(ctx context.Context, id string) (model.User, error)
	EmailTaken(ctx context.Context, email string) (bool, error)
	List(ctx context.Context) ([]model.User, error)
	UpdateWithLog(ctx context.Context, u *model.User, meta repository.AuditMeta) error
	DeleteWithLog(ctx context.Context, id string, meta repository.AuditMeta) (model.User, error)
}

// AccessInvites is the invite persistence used by access management.
type AccessInvites interface {
	GetByToken(ctx context.Context, token string) (model.UserInvite, error)
	GetByID(ctx context.Context, id string) (model.UserInvite, error)
	EmailTaken(ctx context.Context, email string) (bool, error)
	List(ctx context.Context) ([]model.UserInvite, error)
	CreateWithLog(ctx context.Context, inv *model.UserInvite, meta repository.AuditMeta) error
	UpdateWithLog(ctx context.Context, inv *model.UserInvite, meta repository.AuditMeta) error
	DeleteWithLog(ctx context.Context, id string, meta repository.AuditMeta) (model.UserInvite, error)
	Accept(ctx context.Context, inviteID string, u *model.User, meta repository.AuditMeta) error
}

// RoleLookup resolves a role by id.
type RoleLookup interface {
	GetByID(ctx context.Context, id string) (model.Role, error)
}

// Access sources in the merged access table.
const (
	SourceUser   = "USER"
	SourceInvite = "INVITE"
)

// AccessEntry is one row of the access table: a user or a pending invite.
type AccessEntry struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	FullName  string    `json:"fullName"`
	RoleID    string    `json:"roleId"`
	RoleName  string    `json:"roleName"`
	Status    string    `json:"status"` // active | inactive | pending | expired
	Source    string    `json:"source"`
	CreatedAt time.Time `json:"createdAt"`
}

// InviteInput is the invite form.
type InviteInput struct {
	Email     string
	FirstName string
	LastName  string
	RoleID    string
}

// AcceptInput is the registration form of an invitee.
type AcceptInput struct {
	Password    string
	PhoneNumber string
}

// EditInput edits a user, or a pending invite with the same id.  Names
// are fixed once invited; IsActive is ignored for invites.
type EditInput struct {
	Email    string
	RoleID   string
	IsActive *bool
}

// AccessService manages users and invites.
type AccessService struct {
	Users     AccessUsers
	Invites   AccessInvites
	Roles     RoleLookup
	Hasher    utils.Hasher
	Mail      queue.Publisher
	Activity  realtime.Emitter
	AppURL    string
	InviteTTL time.Duration

	now func() time.Time
}

func (s *AccessService) clock() time.Time {
	if s.now != nil {
		return s.now()
	}
	return time.Now().UTC()
}

func (s *AccessService) roleExists(ctx context.Context, roleID string) error {
	if _, err := s.Roles.GetByID(ctx, roleID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return problem(ErrInvalidInput, "role does not exist")
		}
		return err
	}
	return nil
}

// InviteUser creates a pending invite and queues the invitation mail.
// An email already used by a user or another invite is a conflict.
func (s *AccessService) InviteUser(ctx context.Context, actor Actor, in InviteInput) (model.UserInvite, error) {
	in.Email = repository.NormalizeEmail(in.Email)
	if err := required("email", in.Email, "first name", in.FirstName, "last name", in.LastName, "role", in.RoleID); err != nil {
		return model.UserInvite{}, err
	}
	if err := s.emailFree(ctx, in.Email); err != nil {
		return model.UserInvite{}, err
	}
	if err := s.roleExists(ctx, in.RoleID); err != nil {
		return model.UserInvite{}, err
	}

	token, err := utils.RandomHex(32)
	if err != nil {
		return model.UserInvite{}, err
	}
	ttl := s.InviteTTL
	if ttl <= 0 {
		ttl = 7 * 24 * time.Hour
	}
	inv := model.UserInvite{
		Email:     in.Email,
		FirstName: strings.TrimSpace(in.FirstName),
		LastName:  strings.TrimSpace(in.LastName),
		RoleID:    in.RoleID,
		Token:     token,
		ExpiresAt: s.clock().Add(ttl),
		CreatedBy: actor.displayName(),
	}
	if err := s.Invites.CreateWithLog(ctx, &inv, actor.meta(ModuleAccess, SubUsers)); err != nil {
		if errors.Is(err, repository.ErrEmailExists) {
			return model.UserInvite{}, problem(repository.ErrConflict, "an invite for this email is already pending")
		}
		return model.UserInvite{}, err
	}
	emit(ctx, s.Activity, actor, repository.ActionCreate, ModuleAccess, SubUsers, inv.ID)

	if s.Mail != nil {
		if err := s.Mail.PublishMail(ctx, queue.MailEvent{
			Kind:      queue.MailInvite,
			To:        inv.Email,
			Name:      inv.FirstName + " " + inv.LastName,
			Subject:   "You have been invited to Bean Counter",
			Link:      s.AppURL + "/register/" + inv.Token,
			ExpiresAt: inv.ExpiresAt,
			CreatedAt: s.clock(),
		}); err != nil {
			logger().Warn().Err(err).Str("invite_id", inv.ID).Msg("invite mail not queued")
		}
	}
	return inv, nil
}

// LookupInvite returns the invite behind token for the registration page.
func (s *AccessService) LookupInvite(ctx context.Context, token string) (model.UserInvite, error) {
	inv, err := s.Invites.GetByToken(ctx, strings.TrimSpace(token))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return model.UserInvite{}, problem(repository.ErrNotFound, "invite not found")
		}
		return model.UserInvite{}, err
	}
	if inv.Expired(s.clock()) {
		return model.UserInvite{}, problem(ErrExpired, "invite has expired")
	}
	return inv, nil
}

// AcceptInvite turns the invite behind token into a user.  The user is
// created and the invite deleted in one transaction; a second acceptance
// of the same token fails with not found.
func (s *AccessService) AcceptInvite(ctx context.Context, token string, in AcceptInput) (model.User, error) {
	inv, err := s.LookupInvite(ctx, token)
	if err != nil {
		return model.User{}, err
	}
	if err := required("password", in.Password); err != nil {
		return model.User{}, err
	}
	hash, err := s.Hasher.Hash(in.Password)
	if err != nil {
		return model.User{}, err
	}
	now := s.clock()
	u := model.User{
		Email:           inv.Email,
		PasswordHash:    hash,
		FirstName:       inv.FirstName,
		LastName:        inv.LastName,
		FullName:        strings.TrimSpace(inv.FirstName + " " + inv.LastName),
		RoleID:          inv.RoleID,
		IsActive:        true,
		EmailVerifiedAt: &now,
	}
	if phone := strings.TrimSpace(in.PhoneNumber); phone != "" {
		u.PhoneNumber = &phone
	}
	self := Actor{Name: u.FullName}
	if err := s.Invites.Accept(ctx, inv.ID, &u, self.meta(ModuleAccess, SubUsers)); err != nil {
		switch {
		case errors.Is(err, repository.ErrNotFound):
			return model.User{}, problem(repository.ErrNotFound, "invite not found")
		case errors.Is(err, repository.ErrEmailExists):
			return model.User{}, problem(repository.ErrConflict, "a user with this email already exists")
		}
		return model.User{}, err
	}
	self.UserID = u.ID
	emit(ctx, s.Activity, self, repository.ActionCreate, ModuleAccess, SubUsers, u.ID)
	return u, nil
}

// emailFree reports a conflict when a user or an invite already owns
// email.
func (s *AccessService) emailFree(ctx context.Context, email string) error {
	if taken, err := s.Users.EmailTaken(ctx, email); err != nil {
		return err
	} else if taken {
		return problem(repository.ErrConflict, "a user with this email already exists")
	}
	if taken, err := s.Invites.EmailTaken(ctx, email); err != nil {
		return err
	} else if taken {
		return problem(repository.ErrConflict, "an invite for this email is already pending")
	}
	return nil
}

// EditUser updates the email, role and active flag of the user with id,
// or the email and role of the pending invite with id when no such user
// exists.  Deactivating a user ends all of its sessions.
func (s *AccessService) EditUser(ctx context.Context, actor Actor, id string, in EditInput) (AccessEntry, error) {
	in.Email = repository.NormalizeEmail(in.Email)
	if err := required("email", in.Email, "role", in.RoleID); err != nil {
		return AccessEntry{}, err
	}
	if err := s.roleExists(ctx, in.RoleID); err != nil {
		return AccessEntry{}, err
	}
	meta := actor.meta(ModuleAccess, SubUsers)

	u, err := s.Users.GetByID(ctx, id)
	switch {
	case err == nil:
		if in.IsActive != nil && !*in.IsActive && u.ID == actor.UserID {
			return AccessEntry{}, problem(repository.ErrForbidden, "you cannot deactivate your own account")
		}
		if in.Email != u.Email {
			if err := s.emailFree(ctx, in.Email); err != nil {
				return AccessEntry{}, err
			}
		}
		u.Email = in.Email
		u.RoleID = in.RoleID
		if in.IsActive != nil {
			u.IsActive = *in.IsActive
		}
		if err := s.Users.UpdateWithLog(ctx, &u, meta); err != nil {
			if errors.Is(err, repository.ErrEmailExists) {
				return AccessEntry{}, problem(repository.ErrConflict, "a user with this email already exists")
			}
			return AccessEntry{}, err
		}
		emit(ctx, s.Activity, actor, repository.ActionUpdate, ModuleAccess, SubUsers, u.ID)
		return userEntry(u), nil
	case !errors.Is(err, repository.ErrNotFound):
		return AccessEntry{}, err
	}

	inv, err := s.Invites.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return AccessEntry{}, problem(repository.ErrNotFound, "user not found")
		}
		return AccessEntry{}, err
	}
	if in.Email != inv.Email {
		if err := s.emailFree(ctx, in.Email); err != nil {
			return AccessEntry{}, err
		}
	}
	inv.Email = in.Email
	inv.RoleID = in.RoleID
	if err := s.Invites.UpdateWithLog(ctx, &inv, meta); err != nil {
		if errors.Is(err, repository.ErrEmailExists) {
			return AccessEntry{}, problem(repository.ErrConflict, "an invite for this email is already pending")
		}
		return AccessEntry{}, err
	}
	emit(ctx, s.Activity, actor, repository.ActionUpdate, ModuleAccess, SubUsers, inv.ID)
	return inviteEntry(inv, s.clock()), nil
}

// DeleteAccess removes a user or withdraws an invite.  Deleting yourself
// is forbidden.
func (s *AccessService) DeleteAccess(ctx context.Context, actor Actor, id, source string) error {
	meta := actor.meta(ModuleAccess, SubUsers)
	switch strings.ToUpper(source) {
	case SourceUser:
		if id == actor.UserID {
			return problem(repository.ErrForbidden, "you cannot delete your own account")
		}
		if _, err := s.Users.DeleteWithLog(ctx, id, meta); err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return problem(repository.ErrNotFound, "user not found")
			}
			return err
		}
	case SourceInvite:
		if _, err := s.Invites.DeleteWithLog(ctx, id, meta); err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return problem(repository.ErrNotFound, "invite not found")
			}
			return err
		}
	default:
		return problem(ErrInvalidInput, "source must be USER or INVITE")
	}
	emit(ctx, s.Activity, actor, repository.ActionDelete, ModuleAccess, SubUsers, id)
	return nil
}

// ListAccess merges users and pending invites, newest first.
func (s *AccessService) ListAccess(ctx context.Context) ([]AccessEntry, error) {
	users, err := s.Users.List(ctx)
	if err != nil {
		return nil, err
	}
	invites, err := s.Invites.List(ctx)
	if err != nil {
		return nil, err
	}
	now := s.clock()
	out := make([]AccessEntry, 0, len(users)+len(invites))
	for _, u := range users {
		out = append(out, userEntry(u))
	}
	for _, inv := range invites {
		out = append(out, inviteEntry(inv, now))
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func userEntry(u model.User) AccessEntry {
	status := "active"
	if !u.IsActive {
		status = "inactive"
	}
	return AccessEntry{ID: u.ID, Email: u.Email, FullName: u.FullName, RoleID: u.RoleID, RoleName: u.RoleName,
		Status: status, Source: SourceUser, CreatedAt: u.CreatedAt}
}

func inviteEntry(inv model.UserInvite, now time.Time) AccessEntry {
	status := "pending"
	if inv.Expired(now) {
		status = "expired"
	}
	return AccessEntry{ID: inv.ID, Email: inv.Email, FullName: strings.TrimSpace(inv.FirstName + " " + inv.LastName),
		RoleID: inv.RoleID, RoleName: inv.RoleName, Status: status, Source: SourceInvite, CreatedAt: inv.CreatedAt}
}
