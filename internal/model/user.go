package model

import "time"

// User represents an account record as stored in the `users` table.
// Users are created by invite acceptance (or the seed command) and
// reference exactly one Role.
//
// Fields:
//
//	ID              – primary key (uuid).
//	Email           – unique, lower-cased email address.
//	PasswordHash    – bcrypt hash of the password.
//	FirstName/LastName/FullName – display names.
//	PhoneNumber     – optional phone number.
//	RoleID          – foreign key into roles.
//	IsActive        – inactive users cannot log in.
//	EmailVerifiedAt – set when the invite was accepted.
type User struct {
	ID              string     // users.id
	Email           string     // users.email
	PasswordHash    string     // users.password_hash
	FirstName       string     // users.first_name
	LastName        string     // users.last_name
	FullName        string     // users.full_name
	PhoneNumber     *string    // users.phone_number (nullable)
	RoleID          string     // users.role_id
	RoleName        string     // joined from roles for display
	IsActive        bool       // users.is_active
	EmailVerifiedAt *time.Time // users.email_verified_at (nullable)
	CreatedAt       time.Time  // users.created_at
	UpdatedAt       time.Time  // users.updated_at
}

// Role is a named permission bundle.  A role assigned to a user or a
// pending invite cannot be deleted.
type Role struct {
	ID          string       // roles.id
	Name        string       // roles.name (unique)
	Description string       // roles.description
	Permissions []Permission // joined through role_permissions
	UsersCount  int          // populated by list queries only
	CreatedAt   time.Time    // roles.created_at
	UpdatedAt   time.Time    // roles.updated_at
}

// Permission is an atomic capability identified by (module, action,
// submodule).  Submodule is empty when the permission has none.
type Permission struct {
	ID        string // permissions.id
	Module    string // permissions.module
	Action    string // permissions.action
	Submodule string // permissions.submodule ('' when NULL)
}

// Session models a row in the `sessions` table: one row per issued
// refresh token.  Only a bcrypt hash of the token is stored.  Rows are
// revoked, never deleted, until they are purged after expiry.
type Session struct {
	ID               string    // sessions.id
	UserID           string    // sessions.user_id
	RefreshTokenHash string    // sessions.refresh_token_hash
	ExpiresAt        time.Time // sessions.expires_at
	Revoked          bool      // sessions.revoked
	CreatedAt        time.Time // sessions.created_at
}

// Active reports whether the session may still mint tokens at now.
func (s Session) Active(now time.Time) bool {
	return !s.Revoked && s.ExpiresAt.After(now)
}

// UserInvite is a pending registration.  It is deleted when accepted.
type UserInvite struct {
	ID        string     // user_invites.id
	Email     string     // user_invites.email (unique)
	FirstName string     // user_invites.first_name
	LastName  string     // user_invites.last_name
	RoleID    string     // user_invites.role_id
	RoleName  string     // joined from roles for display
	Token     string     // user_invites.token (unique, single use)
	ExpiresAt time.Time  // user_invites.expires_at
	UsedAt    *time.Time // user_invites.used_at (nullable)
	CreatedBy string     // user_invites.created_by
	CreatedAt time.Time  // user_invites.created_at
}

// Expired reports whether the invite can no longer be accepted.
func (i UserInvite) Expired(now time.Time) bool {
	return !i.ExpiresAt.After(now)
}

// PasswordReset is a single-use reset token issued by the forgot
// password flow.
type PasswordReset struct {
	ID        string
	UserID    string
	Token     string
	ExpiresAt time.Time
	UsedAt    *time.Time
	CreatedAt time.Time
}
