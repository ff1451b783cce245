package custody_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Mindburn-Labs/spendgate/pkg/custody"
	"github.com/Mindburn-Labs/spendgate/pkg/policytree"
	"github.com/Mindburn-Labs/spendgate/pkg/rules"
	"github.com/Mindburn-Labs/spendgate/pkg/spend"
)

func id(b byte) spend.ID {
	var out spend.ID
	out[0] = b
	return out
}

func finalizedBuilder(t *testing.T) *spend.RuleSetBuilder {
	t.Helper()
	tree, err := policytree.Leaf(0).Encode()
	require.NoError(t, err)
	b, err := spend.NewRuleSetBuilder(tree)
	require.NoError(t, err)
	require.NoError(t, b.Add(&rules.ProgramConstraint{RequiredCaller: id(1)}))
	return b
}

func TestDelegateSealsFinalizedBuilder(t *testing.T) {
	controller := custody.NewController(id(9))
	b := finalizedBuilder(t)

	d, err := custody.Delegate(controller, b, 4, 77)
	require.NoError(t, err)

	assert.Equal(t, custody.DelegationID(controller.ID, b.Fingerprint), d.ID)
	assert.Equal(t, b.Fingerprint, d.Fingerprint)
	assert.Equal(t, uint8(1), d.RuleCount)
	assert.Equal(t, custody.StatusPending, d.Status)
	assert.Equal(t, uint32(1), controller.DelegationCount)
	assert.Len(t, d.Ledger.Slots, 4)
	assert.False(t, d.Spendable())
}

func TestDelegateRejectsUnfinishedBuilder(t *testing.T) {
	controller := custody.NewController(id(9))
	tree, err := policytree.And(policytree.Leaf(0), policytree.Leaf(1)).Encode()
	require.NoError(t, err)
	b, err := spend.NewRuleSetBuilder(tree)
	require.NoError(t, err)
	require.NoError(t, b.Add(&rules.ProgramConstraint{RequiredCaller: id(1)}))

	_, err = custody.Delegate(controller, b, 4, 0)
	assert.ErrorIs(t, err, custody.ErrNotFinalized)
}

func TestApprovalLifecycle(t *testing.T) {
	controller := custody.NewController(id(9))
	d, err := custody.Delegate(controller, finalizedBuilder(t), 2, 0)
	require.NoError(t, err)

	require.NoError(t, d.Approve())
	assert.True(t, d.Spendable())
	assert.ErrorIs(t, d.Approve(), custody.ErrNotPending)
	assert.ErrorIs(t, d.Reject(), custody.ErrNotPending)

	require.NoError(t, d.Close(controller))
	assert.Equal(t, uint32(0), controller.DelegationCount)
	assert.ErrorIs(t, d.Close(controller), custody.ErrAlreadyClosed)
}

func TestRejectedDelegationIsNotSpendable(t *testing.T) {
	controller := custody.NewController(id(9))
	d, err := custody.Delegate(controller, finalizedBuilder(t), 2, 0)
	require.NoError(t, err)

	require.NoError(t, d.Reject())
	assert.False(t, d.Spendable())
}

func TestDelegationIDDeterministic(t *testing.T) {
	controller := custody.NewController(id(9))
	b := finalizedBuilder(t)
	first := custody.DelegationID(controller.ID, b.Fingerprint)
	second := custody.DelegationID(controller.ID, b.Fingerprint)
	assert.Equal(t, first, second)

	other := custody.DelegationID(controller.ID, spend.GenericHash(0, []byte("x"), spend.ZeroFingerprint))
	assert.NotEqual(t, first, other)
}
