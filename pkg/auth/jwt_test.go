package auth

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSignVerifyRoundtrip(t *testing.T) {
	j := New("secret")

	tok, err := j.Sign("user-1", time.Minute)
	require.NoError(t, err)

	uid, err := j.Verify(tok)
	require.NoError(t, err)
	assert.Equal(t, "user-1", uid)
}

func TestVerifyRejectsBadTokens(t *testing.T) {
	j := New("secret")

	_, err := j.Verify("not-a-token")
	assert.Error(t, err)

	// Wrong secret.
	tok, err := New("other").Sign("user-1", time.Minute)
	require.NoError(t, err)
	_, err = j.Verify(tok)
	assert.Error(t, err)

	// Expired.
	tok, err = j.Sign("user-1", -time.Minute)
	require.NoError(t, err)
	_, err = j.Verify(tok)
	assert.Error(t, err)
}

func TestSignRequiresUserID(t *testing.T) {
	_, err := New("secret").Sign("", time.Minute)
	assert.Error(t, err)
}

func TestUserIDContext(t *testing.T) {
	ctx := context.Background()
	assert.Equal(t, "anon", UserID(ctx))
	assert.Equal(t, "u1", UserID(WithUser(ctx, "u1")))
}
