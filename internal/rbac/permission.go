// Package rbac composes permission keys and resolves the effective
// permission set of a user from their role.
//
// A key is "<module>:<action>[:<submodule>]".  Matching is exact string
// equality: "inventory:read" does not imply "inventory:read:anything".
package rbac

import (
	"context"
	"errors"
	"strings"

	"github.com/iliyamo/bean-counter/internal/model"
)

// Key joins module, action and submodule with ':' and skips empty
// segments, so a permission without submodule has two segments.
func Key(module, action, submodule string) string {
	parts := make([]string, 0, 3)
	for _, p := range []string{module, action, submodule} {
		if p = strings.TrimSpace(p); p != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, ":")
}

// KeyOf returns the canonical key of p.
func KeyOf(p model.Permission) string { return Key(p.Module, p.Action, p.Submodule) }

// Keys flattens perms into canonical keys, preserving order.
func Keys(perms []model.Permission) []string {
	out := make([]string, 0, len(perms))
	for _, p := range perms {
		if k := KeyOf(p); k != "" {
			out = append(out, k)
		}
	}
	return out
}

// Set is an immutable permission list.  It is built once when a session
// context is constructed; role edits do not reach an existing Set.
type Set struct {
	keys []string
	idx  map[string]struct{}
}

// NewSet copies keys into a Set.
func NewSet(keys []string) Set {
	s := Set{keys: make([]string, 0, len(keys)), idx: make(map[string]struct{}, len(keys))}
	for _, k := range keys {
		if _, dup := s.idx[k]; dup || k == "" {
			continue
		}
		s.idx[k] = struct{}{}
		s.keys = append(s.keys, k)
	}
	return s
}

// Can reports whether key is in the set.
func (s Set) Can(key string) bool {
	_, ok := s.idx[key]
	return ok
}

// Keys returns a copy of the keys in insertion order.
func (s Set) Keys() []string {
	out := make([]string, len(s.keys))
	copy(out, s.keys)
	return out
}

// Len is the number of distinct keys.
func (s Set) Len() int { return len(s.keys) }

// ErrUserNotFound is returned by ForUser when the user does not exist.
var ErrUserNotFound = errors.New("user not found")

// RoleStore is the slice of persistence the resolver needs.
type RoleStore interface {
	// RoleIDForUser returns the user's current role id.
	RoleIDForUser(ctx context.Context, userID string) (string, error)
	// PermissionsForRole returns the permission rows joined to the role.
	PermissionsForRole(ctx context.Context, roleID string) ([]model.Permission, error)
}

// Resolver derives effective permissions from storage.  It never reads
// token claims.
type Resolver struct {
	store RoleStore
}

func NewResolver(store RoleStore) *Resolver { return &Resolver{store: store} }

// ForRole returns the permission set of roleID.
func (r *Resolver) ForRole(ctx context.Context, roleID string) (Set, error) {
	perms, err := r.store.PermissionsForRole(ctx, roleID)
	if err != nil {
		return Set{}, err
	}
	return NewSet(Keys(perms)), nil
}

// RoleID returns the user's current role id without loading permissions.
func (r *Resolver) RoleID(ctx context.Context, userID string) (string, error) {
	return r.store.RoleIDForUser(ctx, userID)
}

// ForUser looks up the user's current role and returns it with its
// permission set.
func (r *Resolver) ForUser(ctx context.Context, userID string) (string, Set, error) {
	roleID, err := r.store.RoleIDForUser(ctx, userID)
	if err != nil {
		return "", Set{}, err
	}
	set, err := r.ForRole(ctx, roleID)
	if err != nil {
		return "", Set{}, err
	}
	return roleID, set, nil
}
