package utils

import (
	"strings"
	"testing"

	"golang.org/x/crypto/bcrypt"
)

func TestBcryptHasher(t *testing.T) {
	h := BcryptHasher{Cost: bcrypt.MinCost}
	hash, err := h.Hash("secret")
	if err != nil {
		t.Fatalf("Hash: %v", err)
	}
	if !h.Compare(hash, "secret") {
		t.Fatal("expected match")
	}
	if h.Compare(hash, "wrong") {
		t.Fatal("unexpected match")
	}
	again, _ := h.Hash("secret")
	if again == hash {
		t.Fatal("hashes must be salted per call")
	}
}

func TestRefreshDigestFitsBcrypt(t *testing.T) {
	long := strings.Repeat("x", 400)
	d := RefreshDigest(long)
	if len(d) != 64 {
		t.Fatalf("digest length = %d", len(d))
	}
	h := BcryptHasher{Cost: bcrypt.MinCost}
	hash, err := h.Hash(d)
	if err != nil {
		t.Fatalf("Hash digest: %v", err)
	}
	if !h.Compare(hash, RefreshDigest(long)) {
		t.Fatal("digest should verify")
	}
}

func TestRandomHex(t *testing.T) {
	a, err := RandomHex(32)
	if err != nil {
		t.Fatalf("RandomHex: %v", err)
	}
	if len(a) != 64 {
		t.Fatalf("len = %d, want 64", len(a))
	}
	b, _ := RandomHex(32)
	if a == b {
		t.Fatal("expected distinct tokens")
	}
}
