package auth

import (
	"errors"
	"testing"
	"time"
)

func TestTokenIssueAndParse(t *testing.T) {
	issuer, err := NewTokenIssuer("test-secret", WithIssuer("test-issuer"), WithTokenTTL(30*time.Minute))
	if err != nil {
		t.Fatalf("NewTokenIssuer: %v", err)
	}

	token, expires, err := issuer.Issue(Identity{UserID: 42, Role: RoleOwner})
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if time.Until(expires) <= 0 {
		t.Fatalf("expected future expiration, got %v", expires)
	}

	id, err := issuer.Parse(token)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if id.UserID != 42 || id.Role != RoleOwner {
		t.Fatalf("unexpected identity: %+v", id)
	}
}

func TestTokenRejectsTampering(t *testing.T) {
	a, _ := NewTokenIssuer("secret-a")
	b, _ := NewTokenIssuer("secret-b")
	token, _, err := a.Issue(Identity{UserID: 1, Role: RoleGlobalAdmin})
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if _, err := b.Parse(token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken for foreign secret, got %v", err)
	}
	if _, err := a.Parse(token + "x"); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken for corrupted token, got %v", err)
	}
	if _, err := a.Parse("   "); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken for empty token, got %v", err)
	}
}

func TestTokenExpiry(t *testing.T) {
	now := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }
	issuer, _ := NewTokenIssuer("secret", WithTokenTTL(time.Minute), WithClock(clock))

	token, _, err := issuer.Issue(Identity{UserID: 5, Role: RoleRenter})
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	now = now.Add(2 * time.Minute)
	if _, err := issuer.Parse(token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected expired token to fail, got %v", err)
	}
}

func TestTokenWrongIssuer(t *testing.T) {
	a, _ := NewTokenIssuer("secret", WithIssuer("one"))
	b, _ := NewTokenIssuer("secret", WithIssuer("two"))
	token, _, _ := a.Issue(Identity{UserID: 3, Role: RoleTenantAdmin})
	if _, err := b.Parse(token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected issuer mismatch to fail, got %v", err)
	}
}

func TestIssueRequiresUser(t *testing.T) {
	issuer, _ := NewTokenIssuer("secret")
	if _, _, err := issuer.Issue(Identity{Role: RoleOwner}); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
	if _, err := NewTokenIssuer("  "); err == nil {
		t.Fatal("expected missing secret error")
	}
}

func TestParseRole(t *testing.T) {
	for _, r := range AllRoles {
		got, err := ParseRole(" " + string(r) + " ")
		if err != nil || got != r {
			t.Fatalf("ParseRole(%q) = %q, %v", r, got, err)
		}
	}
	if _, err := ParseRole("superuser"); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}
