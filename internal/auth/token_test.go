package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hitoshi/clipstream/internal/model"
)

const testSecret = "test-token-secret-32bytes-long!!"

func TestTokenIssuer_IssueAndVerify(t *testing.T) {
	issuer := NewTokenIssuer(testSecret, 30*24*time.Hour)
	before := time.Now()

	token, expiresAt, err := issuer.Issue(&model.Identity{UserID: "user-1", Email: "alice@example.com"})
	require.NoError(t, err)
	assert.NotEmpty(t, token)
	assert.WithinDuration(t, before.Add(30*24*time.Hour), expiresAt, 5*time.Second)

	identity, err := issuer.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, "user-1", identity.UserID)
	assert.Equal(t, "alice@example.com", identity.Email)
}

func TestTokenIssuer_IssueRequiresIdentity(t *testing.T) {
	issuer := NewTokenIssuer(testSecret, time.Hour)

	_, _, err := issuer.Issue(nil)
	assert.Error(t, err)
	_, _, err = issuer.Issue(&model.Identity{Email: "alice@example.com"})
	assert.Error(t, err)
}

func TestTokenIssuer_VerifyRejectsExpired(t *testing.T) {
	issuer := NewTokenIssuer(testSecret, time.Hour)
	issuer.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }

	token, _, err := issuer.Issue(&model.Identity{UserID: "user-1"})
	require.NoError(t, err)

	issuer.now = time.Now
	_, err = issuer.Verify(token)
	assert.True(t, model.HasCode(err, model.ErrCodeUnauthorized), "got %v", err)
}

func TestTokenIssuer_VerifyRejectsInvalidTokens(t *testing.T) {
	issuer := NewTokenIssuer(testSecret, time.Hour)
	other := NewTokenIssuer("another-secret-entirely-32-bytes", time.Hour)
	foreign, _, err := other.Issue(&model.Identity{UserID: "user-1"})
	require.NoError(t, err)

	// HS512で署名されたトークン
	hs512, err := jwt.NewWithClaims(jwt.SigningMethodHS512, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "user-1",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}).SignedString([]byte(testSecret))
	require.NoError(t, err)

	// 有効期限のないトークン
	noExp, err := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{Subject: "user-1"},
	}).SignedString([]byte(testSecret))
	require.NoError(t, err)

	// subjectのないトークン
	noSub, err := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}).SignedString([]byte(testSecret))
	require.NoError(t, err)

	tests := map[string]string{
		"empty":         "",
		"garbage":       "not.a.token",
		"wrong secret":  foreign,
		"wrong alg":     hs512,
		"no expiration": noExp,
		"missing sub":   noSub,
	}
	for name, token := range tests {
		t.Run(name, func(t *testing.T) {
			identity, err := issuer.Verify(token)
			assert.Nil(t, identity)
			assert.True(t, model.HasCode(err, model.ErrCodeUnauthorized), "got %v", err)
		})
	}
}

func TestPasswordHasher(t *testing.T) {
	h := NewPasswordHasher(4)

	hash, err := h.Hash("secret123")
	require.NoError(t, err)

	ok, err := h.Compare(hash, "secret123")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = h.Compare(hash, "secret124")
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = h.Compare("not-a-bcrypt-hash", "secret123")
	assert.Error(t, err)
}

func TestNewPasswordHasher_OutOfRangeCostFallsBack(t *testing.T) {
	h := NewPasswordHasher(99)
	assert.Equal(t, 10, h.cost)
}
