// Package auth verifies HS256 bearer tokens and turns their claims into the
// acting domain.Actor.
package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"gibiertrace/pkg/domain"
)

const (
	defaultIssuer = "gibiertrace"
	// clockSkew tolerates small drift between the token issuer and this server.
	clockSkew = 5 * time.Second
)

var (
	// ErrInvalidToken indicates the token failed validation.
	ErrInvalidToken = errors.New("invalid token")
	// ErrMissingToken indicates the request carried no bearer token.
	ErrMissingToken = errors.New("missing bearer token")
	errMissingKey   = errors.New("auth secret is not configured")
)

// Claims carries the actor attributes inside the token.
type Claims struct {
	Roles     []string `json:"roles"`
	Activated bool     `json:"activated"`
	Entities  []string `json:"entities,omitempty"`
	jwt.RegisteredClaims
}

// Authenticator signs and verifies tokens with a shared secret.
type Authenticator struct {
	secret []byte
	issuer string
	now    func() time.Time
}

// Option configures an Authenticator.
type Option func(*Authenticator)

// WithIssuer overrides the expected token issuer.
func WithIssuer(issuer string) Option {
	return func(a *Authenticator) {
		if issuer != "" {
			a.issuer = issuer
		}
	}
}

// WithNow overrides the clock used for expiry checks.
func WithNow(now func() time.Time) Option {
	return func(a *Authenticator) {
		if now != nil {
			a.now = now
		}
	}
}

// New returns an Authenticator for secret.
func New(secret string, opts ...Option) (*Authenticator, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, errMissingKey
	}
	a := &Authenticator{
		secret: []byte(secret),
		issuer: defaultIssuer,
		now:    func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(a)
	}
	return a, nil
}

// Issue signs a token for actor valid for ttl.
func (a *Authenticator) Issue(actor domain.Actor, ttl time.Duration) (string, error) {
	if strings.TrimSpace(actor.ID) == "" {
		return "", errors.New("actor id is required")
	}
	if ttl <= 0 {
		return "", errors.New("ttl must be greater than zero")
	}
	now := a.now()
	roles := make([]string, 0, len(actor.Roles))
	for _, r := range actor.Roles {
		roles = append(roles, string(r))
	}
	claims := Claims{
		Roles:     roles,
		Activated: actor.Activated,
		Entities:  actor.EntityIDs,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    a.issuer,
			Subject:   actor.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			ID:        uuid.NewString(),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// Authenticate verifies token and returns the actor it describes. Unknown
// role names are dropped.
func (a *Authenticator) Authenticate(token string) (domain.Actor, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return domain.Actor{}, ErrMissingToken
	}
	parsed, err := jwt.ParseWithClaims(token, &Claims{}, func(t *jwt.Token) (any, error) {
		if t.Method != jwt.SigningMethodHS256 {
			return nil, ErrInvalidToken
		}
		return a.secret, nil
	},
		jwt.WithIssuer(a.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithLeeway(clockSkew),
		jwt.WithTimeFunc(a.now),
	)
	if err != nil {
		return domain.Actor{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid || strings.TrimSpace(claims.Subject) == "" {
		return domain.Actor{}, ErrInvalidToken
	}
	actor := domain.Actor{ID: claims.Subject, Activated: claims.Activated, EntityIDs: claims.Entities}
	seen := map[domain.Role]struct{}{}
	for _, raw := range claims.Roles {
		role := domain.Role(strings.ToUpper(strings.TrimSpace(raw)))
		if !role.Valid() {
			continue
		}
		if _, dup := seen[role]; dup {
			continue
		}
		seen[role] = struct{}{}
		actor.Roles = append(actor.Roles, role)
	}
	return actor, nil
}

// BearerToken extracts the token from an Authorization header value.
func BearerToken(header string) (string, error) {
	fields := strings.Fields(header)
	if len(fields) == 0 {
		return "", ErrMissingToken
	}
	if !strings.EqualFold(fields[0], "bearer") || len(fields) > 2 {
		return "", fmt.Errorf("%w: unsupported authorization scheme", ErrInvalidToken)
	}
	if len(fields) == 1 {
		return "", ErrMissingToken
	}
	return fields[1], nil
}
