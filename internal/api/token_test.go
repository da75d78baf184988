package api

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenStoreRoundtrip(t *testing.T) {
	store := NewTokenStore(t.TempDir())

	session := &Session{
		AccessToken: "tok-abc",
		User:        Profile{ID: "u1", Email: "s@e.du", FullName: "S", Role: "student"},
	}
	require.NoError(t, store.Save(session))

	loaded, err := store.Load()
	require.NoError(t, err)
	assert.Equal(t, session, loaded)

	token, err := store.Token()
	require.NoError(t, err)
	assert.Equal(t, "tok-abc", token)
}

func TestTokenStripsBearerPrefix(t *testing.T) {
	store := NewTokenStore(t.TempDir())
	require.NoError(t, store.Save(&Session{AccessToken: "Bearer tok-xyz"}))

	token, err := store.Token()
	require.NoError(t, err)
	assert.Equal(t, "tok-xyz", token)
}

func TestTokenEnvOverride(t *testing.T) {
	store := NewTokenStore(t.TempDir())
	require.NoError(t, store.Save(&Session{AccessToken: "saved"}))

	t.Setenv("FIBOCHAT_TOKEN", "Bearer from-env")

	token, err := store.Token()
	require.NoError(t, err)
	assert.Equal(t, "from-env", token)
}

func TestTokenNoSession(t *testing.T) {
	store := NewTokenStore(t.TempDir())

	_, err := store.Token()
	assert.ErrorIs(t, err, ErrNoSession)
}

func TestClear(t *testing.T) {
	store := NewTokenStore(t.TempDir())
	require.NoError(t, store.Save(&Session{AccessToken: "tok"}))

	require.NoError(t, store.Clear())
	require.NoError(t, store.Clear(), "clearing twice is fine")

	_, err := store.Load()
	assert.ErrorIs(t, err, ErrNoSession)
}
