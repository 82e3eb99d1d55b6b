// Package service holds the application operations behind the dashboard:
// access management, roles, password reset and the catalog.  Services
// take the acting user explicitly; authorization has already happened
// in the permission gate by the time a service method runs.
package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/iliyamo/bean-counter/internal/logging"
	"github.com/iliyamo/bean-counter/internal/realtime"
	"github.com/iliyamo/bean-counter/internal/repository"
)

// Module and submodule names shared by audit rows, activity events and
// permission keys.
const (
	ModuleAccess    = "access-management"
	ModuleCategory  = "category"
	ModuleInventory = "inventory"
	SubUsers        = "users"
	SubRoles        = "roles"
)

// Service-level failures.  Conflicts, not-found and forbidden reuse the
// repository sentinels so handlers need one mapping.
var (
	ErrInvalidInput = errors.New("invalid input")
	ErrExpired      = errors.New("expired")
)

// Problem is a failure with a message meant for the end user.  errors.Is
// matches its Kind.
type Problem struct {
	Kind error
	Msg  string
}

func (p *Problem) Error() string { return p.Msg }
func (p *Problem) Unwrap() error { return p.Kind }

func problem(kind error, format string, args ...any) error {
	return &Problem{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

// Actor is the authenticated user performing an operation.
type Actor struct {
	UserID string
	RoleID string
	Name   string
}

func (a Actor) meta(module, submodule string) repository.AuditMeta {
	var uid *string
	if a.UserID != "" {
		id := a.UserID
		uid = &id
	}
	return repository.AuditMeta{UserID: uid, Module: module, Submodule: submodule}
}

func (a Actor) displayName() string {
	if a.Name != "" {
		return a.Name
	}
	return "System"
}

// emit publishes an activity event for an audited mutation.
func emit(ctx context.Context, em realtime.Emitter, actor Actor, action, module, submodule, recordID string) {
	if em == nil {
		return
	}
	em.Emit(ctx, realtime.ActivityEvent{
		Action:    action,
		Module:    module,
		Submodule: submodule,
		RecordID:  recordID,
		User:      actor.displayName(),
		CreatedAt: time.Now().UTC(),
	})
}

// required takes name/value pairs and reports the first blank value.
func required(pairs ...string) error {
	for i := 0; i+1 < len(pairs); i += 2 {
		if strings.TrimSpace(pairs[i+1]) == "" {
			return problem(ErrInvalidInput, "%s is required", pairs[i])
		}
	}
	return nil
}

func logger() *zerolog.Logger {
	l := logging.With("service")
	return &l
}
