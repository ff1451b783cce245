package store_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Mindburn-Labs/spendgate/pkg/custody"
	"github.com/Mindburn-Labs/spendgate/pkg/policytree"
	"github.com/Mindburn-Labs/spendgate/pkg/rules"
	"github.com/Mindburn-Labs/spendgate/pkg/spend"
	"github.com/Mindburn-Labs/spendgate/pkg/store"
)

func id(b byte) spend.ID {
	var out spend.ID
	out[0] = b
	return out
}

func sampleDelegation(t *testing.T) (*custody.Controller, *custody.Delegation) {
	t.Helper()
	tree, err := policytree.Leaf(0).Encode()
	require.NoError(t, err)
	b, err := spend.NewRuleSetBuilder(tree)
	require.NoError(t, err)
	require.NoError(t, b.Add(&rules.ProgramConstraint{RequiredCaller: id(1)}))
	controller := custody.NewController(id(9))
	d, err := custody.Delegate(controller, b, 4, 10)
	require.NoError(t, err)
	return controller, d
}

func TestMemoryRoundTrips(t *testing.T) {
	m := store.NewMemory()
	ctx := context.Background()
	controller, delegation := sampleDelegation(t)

	require.NoError(t, m.PutController(ctx, controller))
	gotC, err := m.GetController(ctx, controller.ID)
	require.NoError(t, err)
	assert.Equal(t, controller, gotC)

	require.NoError(t, m.PutDelegation(ctx, delegation))
	gotD, err := m.GetDelegation(ctx, delegation.ID)
	require.NoError(t, err)
	assert.Equal(t, delegation.Fingerprint, gotD.Fingerprint)
	assert.Equal(t, delegation.Tree, gotD.Tree)
	assert.Len(t, gotD.Ledger.Slots, 4)

	tree, err := policytree.Leaf(0).Encode()
	require.NoError(t, err)
	req, err := spend.NewRequest(delegation.ID, delegation.Ledger, spend.TransferContext{Instrument: id(1)}, tree)
	require.NoError(t, err)
	require.NoError(t, m.PutRequest(ctx, "r1", req))
	gotR, err := m.GetRequest(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, req.RunningHash, gotR.RunningHash)
	assert.Equal(t, req.Count, gotR.Count)

	require.NoError(t, m.DeleteRequest(ctx, "r1"))
	_, err = m.GetRequest(ctx, "r1")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestMemoryIsolatesStoredState(t *testing.T) {
	m := store.NewMemory()
	ctx := context.Background()
	controller, _ := sampleDelegation(t)

	require.NoError(t, m.PutController(ctx, controller))
	controller.DelegationCount = 99

	got, err := m.GetController(ctx, controller.ID)
	require.NoError(t, err)
	assert.Equal(t, uint32(1), got.DelegationCount)
}

func TestMemoryNotFound(t *testing.T) {
	m := store.NewMemory()
	ctx := context.Background()

	_, err := m.GetController(ctx, "nope")
	assert.ErrorIs(t, err, store.ErrNotFound)
	_, err = m.GetBuilder(ctx, "nope")
	assert.ErrorIs(t, err, store.ErrNotFound)
	_, err = m.GetDelegation(ctx, "nope")
	assert.ErrorIs(t, err, store.ErrNotFound)
	assert.ErrorIs(t, m.DeleteBuilder(ctx, "nope"), store.ErrNotFound)
}

func TestMemoryLock(t *testing.T) {
	l := store.NewMemoryLock()
	ctx := context.Background()

	token, err := l.Lock(ctx, "r1")
	require.NoError(t, err)

	_, err = l.Lock(ctx, "r1")
	assert.ErrorIs(t, err, store.ErrLockHeld)

	assert.ErrorIs(t, l.Unlock(ctx, "r1", "wrong-token"), store.ErrLockHeld)
	require.NoError(t, l.Unlock(ctx, "r1", token))

	_, err = l.Lock(ctx, "r1")
	assert.NoError(t, err)
}
