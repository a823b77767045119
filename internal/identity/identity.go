// Package identity adapts the marketplace's identity provider and org/role
// resolver for the messaging layer. Session issuance itself is external;
// this package only verifies and decodes what the issuer minted.
package identity

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Role identifies the party role of an authenticated user.
type Role string

const (
	RoleBuyer    Role = "buyer"
	RoleMerchant Role = "merchant"
	RoleAdmin    Role = "admin"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	return r == RoleBuyer || r == RoleMerchant || r == RoleAdmin
}

// Identity is the resolved current user: who they are, which org they belong
// to (empty for buyers and platform admins), and their role.
type Identity struct {
	UserID string
	OrgID  string
	Role   Role
}

// Provider resolves a bearer credential to an Identity. A nil Identity with
// nil error is never returned; absence of identity is an error.
type Provider interface {
	CurrentUser(token string) (*Identity, error)
}

// Claims are the JWT claims the marketplace issuer embeds in session tokens.
type Claims struct {
	OrgID string `json:"orgId,omitempty"`
	Role  string `json:"role"`
	jwt.RegisteredClaims
}

// JWTProvider verifies HS256 session tokens minted by the marketplace's
// identity service.
type JWTProvider struct {
	secret []byte
}

// NewJWTProvider creates a JWTProvider.
func NewJWTProvider(secret string) (*JWTProvider, error) {
	if secret == "" {
		return nil, fmt.Errorf("identity: jwt secret is required")
	}
	return &JWTProvider{secret: []byte(secret)}, nil
}

// CurrentUser parses and verifies a bearer token, returning the embedded
// identity. Any verification failure means there is no authenticated user.
func (p *JWTProvider) CurrentUser(tokenStr string) (*Identity, error) {
	if tokenStr == "" {
		return nil, fmt.Errorf("identity: no token presented")
	}

	var claims Claims
	token, err := jwt.ParseWithClaims(tokenStr, &claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return p.secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("identity: parse token: %w", err)
	}
	if !token.Valid {
		return nil, fmt.Errorf("identity: token invalid")
	}
	if claims.Subject == "" {
		return nil, fmt.Errorf("identity: token has no subject")
	}

	role := Role(claims.Role)
	if !role.Valid() {
		return nil, fmt.Errorf("identity: unknown role %q", claims.Role)
	}

	return &Identity{
		UserID: claims.Subject,
		OrgID:  claims.OrgID,
		Role:   role,
	}, nil
}

// MintToken signs a session token for the given identity. Parley itself never
// issues sessions in production; this exists for local development and tests.
func MintToken(secret string, id Identity, ttl time.Duration) (string, error) {
	claims := &Claims{
		OrgID: id.OrgID,
		Role:  string(id.Role),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   id.UserID,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}
