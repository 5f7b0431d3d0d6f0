package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemorySetAndGet(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	record := map[string]interface{}{
		"plan":       map[string]float64{"1 Month": 100},
		"credential": map[string]string{"email": "a@b.com", "password": "secret"},
	}
	require.NoError(t, m.Set(ctx, "Account-7", record))

	var plans map[string]float64
	require.NoError(t, m.Get(ctx, "Account-7/plan", &plans))
	assert.Equal(t, map[string]float64{"1 Month": 100}, plans)

	var email string
	require.NoError(t, m.Get(ctx, "Account-7/credential/email", &email))
	assert.Equal(t, "a@b.com", email)
}

func TestMemoryGetMissing(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	var out interface{}
	assert.ErrorIs(t, m.Get(ctx, "users/1", &out), ErrNotFound)
}

func TestMemoryUpdateMergesFields(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	require.NoError(t, m.Set(ctx, "users/1/accounts/Account-7", map[string]interface{}{
		"purchaseDate": "2026-01-01",
	}))
	require.NoError(t, m.Update(ctx, "users/1/accounts/Account-7", map[string]interface{}{
		"plan":   "1 Month",
		"chance": 3,
	}))

	var sub struct {
		Plan         string `json:"plan"`
		PurchaseDate string `json:"purchaseDate"`
		Chance       int    `json:"chance"`
	}
	require.NoError(t, m.Get(ctx, "users/1/accounts/Account-7", &sub))
	assert.Equal(t, "1 Month", sub.Plan)
	assert.Equal(t, "2026-01-01", sub.PurchaseDate)
	assert.Equal(t, 3, sub.Chance)
}

func TestMemoryPushGeneratesDistinctKeys(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	k1, err := m.Push(ctx, "payments/1", map[string]string{"fileId": "a"})
	require.NoError(t, err)
	k2, err := m.Push(ctx, "payments/1", map[string]string{"fileId": "b"})
	require.NoError(t, err)
	assert.NotEqual(t, k1, k2)

	var entries map[string]map[string]string
	require.NoError(t, m.Get(ctx, "payments/1", &entries))
	assert.Len(t, entries, 2)
}

func TestMemoryRemoveAndExists(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	require.NoError(t, m.Set(ctx, "Account-1/users/alice", true))

	ok, err := m.Exists(ctx, "Account-1/users/alice")
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, m.Remove(ctx, "Account-1/users/alice"))

	ok, err = m.Exists(ctx, "Account-1/users/alice")
	require.NoError(t, err)
	assert.False(t, ok)

	// Removing a missing path is a no-op.
	require.NoError(t, m.Remove(ctx, "Account-1/users/bob"))
}
