package auth_test

import (
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tickethub/tickethub/pkg/auth"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time { return c.t }

func newCodec(t *testing.T, secret string, clock *fakeClock) *auth.Codec {
	t.Helper()
	c, err := auth.NewCodec(secret, auth.WithClock(clock.now))
	require.NoError(t, err)
	return c
}

func TestIssueVerifyRoundTrip(t *testing.T) {
	clock := &fakeClock{t: time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)}
	codec := newCodec(t, "s3cret", clock)

	cases := []struct {
		userID string
		role   string
		ttl    time.Duration
	}{
		{"64b7f0c2a1b2c3d4e5f60718", "USER", time.Minute},
		{"64b7f0c2a1b2c3d4e5f60719", "ADMIN", 24 * time.Hour},
		{"u-3", "USER", 2 * time.Second},
	}

	for _, tc := range cases {
		token, err := codec.Issue(tc.userID, tc.role, tc.ttl)
		require.NoError(t, err)

		clock.t = clock.t.Add(tc.ttl / 2)
		claims, err := codec.Verify(token)
		require.NoError(t, err)
		assert.Equal(t, tc.userID, claims.UserID)
		assert.Equal(t, tc.role, claims.Role)

		clock.t = clock.t.Add(tc.ttl)
		_, err = codec.Verify(token)
		assert.ErrorIs(t, err, auth.ErrExpiredToken)
	}
}

func TestVerifyRejectsForeignSecret(t *testing.T) {
	clock := &fakeClock{t: time.Now()}
	ours := newCodec(t, "ours", clock)
	theirs := newCodec(t, "theirs", clock)

	token, err := theirs.Issue("u1", "ADMIN", time.Hour)
	require.NoError(t, err)

	_, err = ours.Verify(token)
	assert.ErrorIs(t, err, auth.ErrInvalidToken)
}

func TestVerifyRejectsGarbageAndTampering(t *testing.T) {
	clock := &fakeClock{t: time.Now()}
	codec := newCodec(t, "s3cret", clock)

	token, err := codec.Issue("u1", "USER", time.Hour)
	require.NoError(t, err)

	parts := strings.Split(token, ".")
	require.Len(t, parts, 3)

	// Payload from another token spliced onto our signature.
	other, err := codec.Issue("u1", "ADMIN", time.Hour)
	require.NoError(t, err)
	forged := parts[0] + "." + strings.Split(other, ".")[1] + "." + parts[2]

	for _, bad := range []string{"", "abc", "a.b.c", forged, token + "x"} {
		_, err := codec.Verify(bad)
		assert.ErrorIs(t, err, auth.ErrInvalidToken, "token %q", bad)
	}
}

func TestVerifyRejectsNoneAlgorithm(t *testing.T) {
	clock := &fakeClock{t: time.Now()}
	codec := newCodec(t, "s3cret", clock)

	claims := auth.Claims{
		UserID: "u1",
		Role:   "ADMIN",
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	unsigned, err := jwt.NewWithClaims(jwt.SigningMethodNone, claims).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	_, err = codec.Verify(unsigned)
	assert.ErrorIs(t, err, auth.ErrInvalidToken)
}

func TestNewCodecRequiresSecret(t *testing.T) {
	_, err := auth.NewCodec("")
	assert.Error(t, err)
}

func TestPasswordHashing(t *testing.T) {
	hash, err := auth.HashPassword("abc123")
	require.NoError(t, err)

	assert.True(t, auth.CheckPassword(hash, "abc123"))
	assert.False(t, auth.CheckPassword(hash, "abc124"))
	assert.False(t, auth.CheckPassword("", "abc123"))
}
