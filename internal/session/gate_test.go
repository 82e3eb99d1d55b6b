package session

import (
	"context"
	"testing"
	"time"

	"github.com/iliyamo/bean-counter/internal/utils"
)

func TestGateAllowsWithFreshPermission(t *testing.T) {
	h := newHarness(t, Options{})
	jar := h.login(t)
	gate := NewGate(h.codec, h.resolver)

	p, err := gate.Require(context.Background(), jar, "inventory:update")
	if err != nil {
		t.Fatalf("Require: %v", err)
	}
	if p.UserID != "u1" || p.RoleID != "r1" {
		t.Fatalf("unexpected principal %+v", p)
	}
}

func TestGateIgnoresTokenClaims(t *testing.T) {
	h := newHarness(t, Options{})
	jar := h.login(t)
	gate := NewGate(h.codec, h.resolver)

	// The token still claims inventory:update; storage no longer grants it.
	h.roles.setPerms("r1")
	_, err := gate.Require(context.Background(), jar, "inventory:update")
	if k, _ := KindOf(err); k != KindForbidden {
		t.Fatalf("expected forbidden, got %v", err)
	}
}

func TestGateRejectsDeactivatedUser(t *testing.T) {
	h := newHarness(t, Options{})
	jar := h.login(t)
	gate := NewGate(h.codec, h.resolver)
	h.roles.deactivate("u1")

	_, err := gate.Require(context.Background(), jar, "inventory:update")
	if k, _ := KindOf(err); k != KindUnauthorized {
		t.Fatalf("expected unauthorized, got %v", err)
	}
}

func TestGateDeniedShapesMatch(t *testing.T) {
	h := newHarness(t, Options{})
	gate := NewGate(h.codec, h.resolver)

	_, anon := gate.Require(context.Background(), NewMemoryJar(nil), "inventory:update")
	_, forbidden := gate.Require(context.Background(), h.login(t), "category:delete")

	a, ok1 := anon.(*AuthError)
	f, ok2 := forbidden.(*AuthError)
	if !ok1 || !ok2 {
		t.Fatalf("expected AuthErrors, got %T and %T", anon, forbidden)
	}
	if a.Message != f.Message || a.Message != MsgPermissionDenied {
		t.Fatalf("messages differ: %q vs %q", a.Message, f.Message)
	}
	if a.Kind != KindUnauthorized || f.Kind != KindForbidden {
		t.Fatalf("kinds should stay distinct internally: %v %v", a.Kind, f.Kind)
	}
}

func TestGateRejectsExpiredAccessToken(t *testing.T) {
	h := newHarness(t, Options{})
	gate := NewGate(h.codec, h.resolver)

	old := newCodec(t)
	old.SetClock(func() time.Time { return time.Now().Add(-time.Hour) })
	tok, err := old.SignAccessToken("u1", "r1", []string{"inventory:update"})
	if err != nil {
		t.Fatal(err)
	}
	_, err = gate.Require(context.Background(), NewMemoryJar(map[string]string{AccessCookie: tok.Token}), "inventory:update")
	if k, _ := KindOf(err); k != KindUnauthorized {
		t.Fatalf("expected unauthorized, got %v", err)
	}
	var ae *AuthError
	if e, ok := err.(*AuthError); ok {
		ae = e
	}
	if ae == nil || ae.Err != utils.ErrTokenExpired {
		t.Fatalf("cause should be ErrTokenExpired, got %v", err)
	}
}
