package auth

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xiaot623/gogo/concierge/internal/domain"
	"github.com/xiaot623/gogo/concierge/tests/helpers"
)

func TestIssueAndVerify(t *testing.T) {
	svc := NewTokenService("secret")
	token, err := svc.Issue(domain.Identity{ID: "u1", Role: domain.RoleAdmin, Scopes: []string{"admin"}}, time.Hour)
	require.NoError(t, err)

	id, err := svc.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, "u1", id.ID)
	assert.Equal(t, domain.RoleAdmin, id.Role)
	assert.True(t, id.HasScope("admin"))
}

func TestVerifyDefaultsRoleAndUsesSubject(t *testing.T) {
	svc := NewTokenService("secret")
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"sub": "u2"}).SignedString([]byte("secret"))
	require.NoError(t, err)

	id, err := svc.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, "u2", id.ID)
	assert.Equal(t, domain.RoleUser, id.Role)
}

func TestVerifyRejects(t *testing.T) {
	svc := NewTokenService("secret")

	wrongKey, err := NewTokenService("other").Issue(domain.Identity{ID: "u1", Role: domain.RoleUser}, time.Hour)
	require.NoError(t, err)
	noSubject, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"role": "user"}).SignedString([]byte("secret"))
	require.NoError(t, err)
	badRole, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"id": "u1", "role": "root"}).SignedString([]byte("secret"))
	require.NoError(t, err)

	for name, token := range map[string]string{
		"garbage":    "not-a-jwt",
		"wrong key":  wrongKey,
		"no subject": noSubject,
		"bad role":   badRole,
	} {
		t.Run(name, func(t *testing.T) {
			_, err := svc.Verify(token)
			assert.ErrorIs(t, err, domain.ErrUnauthenticated)
		})
	}
}

func TestVerifyExpired(t *testing.T) {
	svc := NewTokenService("secret")
	svc.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
	token, err := svc.Issue(domain.Identity{ID: "u1", Role: domain.RoleUser}, time.Hour)
	require.NoError(t, err)

	svc.now = time.Now
	_, err = svc.Verify(token)
	assert.ErrorIs(t, err, domain.ErrUnauthenticated)
}

func TestBearerToken(t *testing.T) {
	token, err := BearerToken("Bearer abc")
	require.NoError(t, err)
	assert.Equal(t, "abc", token)

	token, err = BearerToken("bearer  abc ")
	require.NoError(t, err)
	assert.Equal(t, "abc", token)

	for _, h := range []string{"", "Bearer", "Basic abc", "Bearer  "} {
		_, err := BearerToken(h)
		assert.Error(t, err, h)
	}
}

func TestUsers(t *testing.T) {
	ctx := context.Background()
	users := NewUsers(helpers.NewTestSQLiteStore(t))

	created, err := users.Register(ctx, "ana", "ana@example.com", "s3cret", domain.RoleUser)
	require.NoError(t, err)

	got, err := users.Authenticate(ctx, "ana", "s3cret")
	require.NoError(t, err)
	assert.Equal(t, created.ID, got.ID)

	_, err = users.Authenticate(ctx, "ana", "wrong")
	assert.ErrorIs(t, err, domain.ErrNotFound)
	_, err = users.Authenticate(ctx, "bob", "s3cret")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, err = users.Register(ctx, "eve", "", "x", domain.Role("root"))
	assert.Error(t, err)
}
