// AngelaMos | 2026
// jwt_test.go

package auth

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carterperez-dev/legalquota/internal/config"
	"github.com/carterperez-dev/legalquota/internal/core"
)

func newTestManager(t *testing.T, audience string) *JWTManager {
	t.Helper()

	dir := t.TempDir()
	priv := filepath.Join(dir, "private.pem")
	pub := filepath.Join(dir, "public.pem")
	require.NoError(t, GenerateKeyPair(priv, pub))

	m, err := NewJWTManager(config.JWTConfig{
		PrivateKeyPath:    priv,
		PublicKeyPath:     pub,
		AccessTokenExpire: time.Minute,
		Issuer:            "legalquota",
		Audience:          audience,
	})
	require.NoError(t, err)
	return m
}

func TestAccessTokenCarriesOnlyAccount(t *testing.T) {
	m := newTestManager(t, "legalquota-api")

	token, err := m.CreateAccessToken("acct-1", 0)
	require.NoError(t, err)

	claims, err := m.VerifyAccessToken(context.Background(), token)
	require.NoError(t, err)
	assert.Equal(t, "acct-1", claims.AccountID)
	assert.NotEmpty(t, m.GetKeyID())
}

func TestVerifyRejects(t *testing.T) {
	m := newTestManager(t, "legalquota-api")
	other := newTestManager(t, "someone-else")

	foreign, err := other.CreateAccessToken("acct-1", 0)
	require.NoError(t, err)
	_, err = m.VerifyAccessToken(context.Background(), foreign)
	assert.ErrorIs(t, err, core.ErrTokenInvalid)

	_, err = m.VerifyAccessToken(context.Background(), "not-a-token")
	assert.ErrorIs(t, err, core.ErrTokenInvalid)

	_, err = m.CreateAccessToken("", 0)
	assert.ErrorIs(t, err, core.ErrInvalidInput)
}

func TestVerifyExpired(t *testing.T) {
	m := newTestManager(t, "legalquota-api")

	token, err := m.CreateAccessToken("acct-1", time.Second)
	require.NoError(t, err)

	time.Sleep(1100 * time.Millisecond)

	_, err = m.VerifyAccessToken(context.Background(), token)
	assert.ErrorIs(t, err, core.ErrTokenExpired)
}

func TestKeyIDIsStableForTheSameKey(t *testing.T) {
	dir := t.TempDir()
	priv := filepath.Join(dir, "keys", "private.pem")
	pub := filepath.Join(dir, "keys", "public.pem")
	require.NoError(t, GenerateKeyPair(priv, pub))

	cfg := config.JWTConfig{
		PrivateKeyPath:    priv,
		PublicKeyPath:     pub,
		AccessTokenExpire: time.Minute,
		Issuer:            "legalquota",
		Audience:          "legalquota-api",
	}
	api, err := NewJWTManager(cfg)
	require.NoError(t, err)
	cli, err := NewJWTManager(cfg)
	require.NoError(t, err)

	assert.Equal(t, api.GetKeyID(), cli.GetKeyID())

	token, err := cli.CreateAccessToken("acct-9", 0)
	require.NoError(t, err)
	claims, err := api.VerifyAccessToken(context.Background(), token)
	require.NoError(t, err)
	assert.Equal(t, "acct-9", claims.AccountID)
}
