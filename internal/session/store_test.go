package session

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/roomboard/server/internal/oidc"
)

func TestGenerateID_HighEntropy(t *testing.T) {
	t.Parallel()
	rapid.Check(t, func(t *rapid.T) {
		id1, err := generateID()
		if err != nil {
			t.Fatalf("first generateID failed: %v", err)
		}
		id2, err := generateID()
		if err != nil {
			t.Fatalf("second generateID failed: %v", err)
		}
		if id1 == id2 {
			t.Fatalf("session IDs collided: %s", id1)
		}
		// 32 random bytes base64url without padding is 43 chars.
		if len(id1) < 43 {
			t.Fatalf("session ID too short: %d chars", len(id1))
		}
	})
}

func TestStore_CreateGetDelete(t *testing.T) {
	t.Parallel()

	store := NewStore(time.Hour)
	id, err := store.Create(&Record{
		Claims:  oidc.Claims{"sub": "user-1"},
		IDToken: "raw.id.token",
	})
	require.NoError(t, err)

	rec, err := store.Get(id)
	require.NoError(t, err)
	assert.Equal(t, "user-1", rec.Claims.Sub())
	assert.False(t, rec.CreatedAt.IsZero())
	assert.True(t, rec.ExpiresAt.After(rec.CreatedAt))

	store.Delete(id)
	_, err = store.Get(id)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStore_GetUnknown(t *testing.T) {
	t.Parallel()

	store := NewStore(time.Hour)
	_, err := store.Get("no-such-session")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStore_Expiry(t *testing.T) {
	t.Parallel()

	store := NewStore(time.Hour)
	id, err := store.Create(&Record{Claims: oidc.Claims{"sub": "user-1"}})
	require.NoError(t, err)

	store.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	_, err = store.Get(id)
	assert.ErrorIs(t, err, ErrExpired)

	// Removed at lookup time, so a second read reports not found.
	_, err = store.Get(id)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStore_TakePending_ConsumeOnce(t *testing.T) {
	t.Parallel()

	store := NewStore(time.Hour)
	req, err := oidc.NewPendingAuthRequest()
	require.NoError(t, err)

	id, err := store.PutPending(req)
	require.NoError(t, err)

	got, err := store.TakePending(id)
	require.NoError(t, err)
	assert.Equal(t, req.State, got.State)
	assert.Equal(t, req.Nonce, got.Nonce)
	assert.Equal(t, req.CodeVerifier, got.CodeVerifier)

	// Replay finds nothing.
	_, err = store.TakePending(id)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStore_TakePending_Expired(t *testing.T) {
	t.Parallel()

	store := NewStore(time.Hour)
	req, err := oidc.NewPendingAuthRequest()
	require.NoError(t, err)
	id, err := store.PutPending(req)
	require.NoError(t, err)

	store.now = func() time.Time { return time.Now().Add(pendingTTL + time.Minute) }
	_, err = store.TakePending(id)
	assert.ErrorIs(t, err, ErrExpired)
}

func TestStore_Sweep(t *testing.T) {
	t.Parallel()

	store := NewStore(time.Hour)
	_, err := store.Create(&Record{Claims: oidc.Claims{"sub": "a"}})
	require.NoError(t, err)
	req, err := oidc.NewPendingAuthRequest()
	require.NoError(t, err)
	_, err = store.PutPending(req)
	require.NoError(t, err)

	store.now = func() time.Time { return time.Now().Add(48 * time.Hour) }
	store.Sweep()

	store.mu.Lock()
	defer store.mu.Unlock()
	assert.Empty(t, store.sessions)
	assert.Empty(t, store.pending)
}
