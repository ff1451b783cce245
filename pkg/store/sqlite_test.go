package store_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Mindburn-Labs/spendgate/pkg/spend"
	"github.com/Mindburn-Labs/spendgate/pkg/store"
)

func newTestSQLite(t *testing.T) *store.SQLite {
	t.Helper()
	s, err := store.OpenSQLite(":memory:")
	require.NoError(t, err)
	return s
}

func TestSQLiteRoundTrips(t *testing.T) {
	s := newTestSQLite(t)
	ctx := context.Background()
	controller, delegation := sampleDelegation(t)

	require.NoError(t, s.PutController(ctx, controller))
	gotC, err := s.GetController(ctx, controller.ID)
	require.NoError(t, err)
	assert.Equal(t, controller, gotC)

	require.NoError(t, s.PutDelegation(ctx, delegation))
	gotD, err := s.GetDelegation(ctx, delegation.ID)
	require.NoError(t, err)
	assert.Equal(t, delegation.Fingerprint, gotD.Fingerprint)
	assert.Equal(t, delegation.Status, gotD.Status)
}

func TestSQLiteUpsertOverwrites(t *testing.T) {
	s := newTestSQLite(t)
	ctx := context.Background()
	_, delegation := sampleDelegation(t)

	require.NoError(t, s.PutDelegation(ctx, delegation))
	require.NoError(t, delegation.Approve())
	require.NoError(t, s.PutDelegation(ctx, delegation))

	got, err := s.GetDelegation(ctx, delegation.ID)
	require.NoError(t, err)
	assert.True(t, got.Spendable())
}

func TestSQLiteBuilderLifecycle(t *testing.T) {
	s := newTestSQLite(t)
	ctx := context.Background()

	b := &spend.RuleSetBuilder{Count: 2, Tree: []byte{0xFF, 1, 0, 1}}
	require.NoError(t, s.PutBuilder(ctx, "b1", b))

	got, err := s.GetBuilder(ctx, "b1")
	require.NoError(t, err)
	assert.Equal(t, b.Count, got.Count)
	assert.Equal(t, b.Tree, got.Tree)

	require.NoError(t, s.DeleteBuilder(ctx, "b1"))
	_, err = s.GetBuilder(ctx, "b1")
	assert.ErrorIs(t, err, store.ErrNotFound)
}
