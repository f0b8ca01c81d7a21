package credential

import (
	"errors"
	"testing"

	"github.com/99designs/keyring"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nhle/helpdesk-sync/internal/model"
)

func useMemoryKeyring(t *testing.T) {
	t.Helper()
	ring := keyring.NewArrayKeyring(nil)
	prev := open
	open = func() (keyring.Keyring, error) { return ring, nil }
	t.Cleanup(func() { open = prev })
}

func TestSetGetDelete(t *testing.T) {
	useMemoryKeyring(t)

	require.NoError(t, Set("acme/agent@acme.com", "tok-123"))

	got, err := Get("acme/agent@acme.com")
	require.NoError(t, err)
	assert.Equal(t, "tok-123", got)

	require.NoError(t, Delete("acme/agent@acme.com"))

	_, err = Get("acme/agent@acme.com")
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestResolve(t *testing.T) {
	useMemoryKeyring(t)

	cfg := &model.Config{Domain: "acme", User: "agent@acme.com"}
	assert.True(t, errors.Is(Resolve(cfg), ErrNotFound))

	require.NoError(t, Set(cfg.CredentialKey(), "tok-456"))
	require.NoError(t, Resolve(cfg))
	assert.Equal(t, "tok-456", cfg.APIToken)

	withPassword := &model.Config{Domain: "acme", User: "agent@acme.com", Password: "pw"}
	require.NoError(t, Resolve(withPassword))
	assert.Empty(t, withPassword.APIToken)
}
