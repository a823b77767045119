package identity

import (
	"testing"
	"time"
)

const testSecret = "test-secret"

func TestCurrentUserRoundTrip(t *testing.T) {
	p, err := NewJWTProvider(testSecret)
	if err != nil {
		t.Fatalf("NewJWTProvider: %v", err)
	}

	want := Identity{UserID: "staff-1", OrgID: "org-1", Role: RoleMerchant}
	token, err := MintToken(testSecret, want, time.Hour)
	if err != nil {
		t.Fatalf("MintToken: %v", err)
	}

	got, err := p.CurrentUser(token)
	if err != nil {
		t.Fatalf("CurrentUser: %v", err)
	}
	if *got != want {
		t.Errorf("identity = %+v, want %+v", *got, want)
	}
}

func TestCurrentUserRejectsWrongSecret(t *testing.T) {
	p, err := NewJWTProvider(testSecret)
	if err != nil {
		t.Fatalf("NewJWTProvider: %v", err)
	}

	token, err := MintToken("other-secret", Identity{UserID: "u", Role: RoleBuyer}, time.Hour)
	if err != nil {
		t.Fatalf("MintToken: %v", err)
	}
	if _, err := p.CurrentUser(token); err == nil {
		t.Error("token signed with wrong secret accepted")
	}
}

func TestCurrentUserRejectsExpiredToken(t *testing.T) {
	p, err := NewJWTProvider(testSecret)
	if err != nil {
		t.Fatalf("NewJWTProvider: %v", err)
	}

	token, err := MintToken(testSecret, Identity{UserID: "u", Role: RoleBuyer}, -time.Minute)
	if err != nil {
		t.Fatalf("MintToken: %v", err)
	}
	if _, err := p.CurrentUser(token); err == nil {
		t.Error("expired token accepted")
	}
}

func TestCurrentUserRejectsUnknownRole(t *testing.T) {
	p, err := NewJWTProvider(testSecret)
	if err != nil {
		t.Fatalf("NewJWTProvider: %v", err)
	}

	token, err := MintToken(testSecret, Identity{UserID: "u", Role: Role("superuser")}, time.Hour)
	if err != nil {
		t.Fatalf("MintToken: %v", err)
	}
	if _, err := p.CurrentUser(token); err == nil {
		t.Error("unknown role accepted")
	}
}

func TestCurrentUserRejectsMissingSubject(t *testing.T) {
	p, err := NewJWTProvider(testSecret)
	if err != nil {
		t.Fatalf("NewJWTProvider: %v", err)
	}

	token, err := MintToken(testSecret, Identity{Role: RoleBuyer}, time.Hour)
	if err != nil {
		t.Fatalf("MintToken: %v", err)
	}
	if _, err := p.CurrentUser(token); err == nil {
		t.Error("token without subject accepted")
	}
}

func TestCurrentUserRejectsEmptyToken(t *testing.T) {
	p, err := NewJWTProvider(testSecret)
	if err != nil {
		t.Fatalf("NewJWTProvider: %v", err)
	}
	if _, err := p.CurrentUser(""); err == nil {
		t.Error("empty token accepted")
	}
}

func TestNewJWTProviderRequiresSecret(t *testing.T) {
	if _, err := NewJWTProvider(""); err == nil {
		t.Error("empty secret accepted")
	}
}

func TestRoleValid(t *testing.T) {
	for _, r := range []Role{RoleBuyer, RoleMerchant, RoleAdmin} {
		if !r.Valid() {
			t.Errorf("%q should be valid", r)
		}
	}
	if Role("owner").Valid() {
		t.Error("unknown role reported valid")
	}
}
