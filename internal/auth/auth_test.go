package auth

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gibiertrace/pkg/domain"
)

var issuedAt = time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)

func newTestAuthenticator(t *testing.T, now time.Time) *Authenticator {
	t.Helper()
	a, err := New("test-secret", WithNow(func() time.Time { return now }))
	require.NoError(t, err)
	return a
}

func TestIssueAndAuthenticateRoundTrip(t *testing.T) {
	a := newTestAuthenticator(t, issuedAt)
	actor := domain.Actor{
		ID:        "u-etg",
		Roles:     []domain.Role{domain.RoleETG},
		Activated: true,
		EntityIDs: []string{"e-etg"},
	}
	token, err := a.Issue(actor, time.Hour)
	require.NoError(t, err)

	got, err := a.Authenticate(token)
	require.NoError(t, err)
	assert.Equal(t, actor, got)
}

func TestAuthenticateRejectsBadTokens(t *testing.T) {
	a := newTestAuthenticator(t, issuedAt)
	token, err := a.Issue(domain.Actor{ID: "u-1", Roles: []domain.Role{domain.RoleSVI}}, time.Minute)
	require.NoError(t, err)

	later := newTestAuthenticator(t, issuedAt.Add(time.Hour))
	_, err = later.Authenticate(token)
	assert.ErrorIs(t, err, ErrInvalidToken, "expired")

	other, err := New("another-secret", WithNow(func() time.Time { return issuedAt }))
	require.NoError(t, err)
	_, err = other.Authenticate(token)
	assert.ErrorIs(t, err, ErrInvalidToken, "wrong secret")

	foreign, err := New("test-secret", WithIssuer("someone-else"), WithNow(func() time.Time { return issuedAt }))
	require.NoError(t, err)
	_, err = foreign.Authenticate(token)
	assert.ErrorIs(t, err, ErrInvalidToken, "wrong issuer")

	none := jwt.NewWithClaims(jwt.SigningMethodNone, Claims{RegisteredClaims: jwt.RegisteredClaims{
		Issuer: defaultIssuer, Subject: "u-1",
		IssuedAt: jwt.NewNumericDate(issuedAt), ExpiresAt: jwt.NewNumericDate(issuedAt.Add(time.Hour)),
	}})
	unsigned, err := none.SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)
	_, err = a.Authenticate(unsigned)
	assert.ErrorIs(t, err, ErrInvalidToken, "alg none")

	_, err = a.Authenticate("  ")
	assert.ErrorIs(t, err, ErrMissingToken)
}

func TestAuthenticateDropsUnknownRoles(t *testing.T) {
	a := newTestAuthenticator(t, issuedAt)
	claims := Claims{
		Roles:     []string{"svi", "SVI", "BOUCHER"},
		Activated: true,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    defaultIssuer,
			Subject:   "u-svi",
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			ExpiresAt: jwt.NewNumericDate(issuedAt.Add(time.Hour)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-secret"))
	require.NoError(t, err)

	actor, err := a.Authenticate(token)
	require.NoError(t, err)
	assert.Equal(t, []domain.Role{domain.RoleSVI}, actor.Roles)
}

func TestIssueValidation(t *testing.T) {
	a := newTestAuthenticator(t, issuedAt)
	_, err := a.Issue(domain.Actor{}, time.Hour)
	assert.Error(t, err)
	_, err = a.Issue(domain.Actor{ID: "u"}, 0)
	assert.Error(t, err)

	_, err = New(" ")
	assert.Error(t, err)
}

func TestBearerToken(t *testing.T) {
	token, err := BearerToken("Bearer abc.def")
	require.NoError(t, err)
	assert.Equal(t, "abc.def", token)

	token, err = BearerToken("bearer   xyz ")
	require.NoError(t, err)
	assert.Equal(t, "xyz", token)

	_, err = BearerToken("")
	assert.ErrorIs(t, err, ErrMissingToken)
	_, err = BearerToken("Basic dXNlcg==")
	assert.ErrorIs(t, err, ErrInvalidToken)
	_, err = BearerToken("Bearer ")
	assert.ErrorIs(t, err, ErrMissingToken)
}

func TestActorContext(t *testing.T) {
	_, ok := ActorFromContext(context.Background())
	assert.False(t, ok)

	ctx := ContextWithActor(context.Background(), domain.Actor{ID: "u-1"})
	actor, ok := ActorFromContext(ctx)
	require.True(t, ok)
	assert.Equal(t, "u-1", actor.ID)
}
