package spend_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Mindburn-Labs/spendgate/pkg/policytree"
	"github.com/Mindburn-Labs/spendgate/pkg/rules"
	"github.com/Mindburn-Labs/spendgate/pkg/spend"
)

func id(b byte) spend.ID {
	var out spend.ID
	out[0] = b
	return out
}

func mustEncode(t *testing.T, tree policytree.Tree) []byte {
	t.Helper()
	enc, err := tree.Encode()
	require.NoError(t, err)
	return enc
}

func twoRules(t *testing.T) (spend.Rule, spend.Rule) {
	t.Helper()
	rl, err := rules.NewRateLimiter(id(1), 1000, 500)
	require.NoError(t, err)
	return rl, &rules.AuthorizationConstraint{RequiredSigner: id(2)}
}

func TestBuilderDeterministic(t *testing.T) {
	tree := mustEncode(t, policytree.And(policytree.Leaf(0), policytree.Leaf(1)))
	first, second := twoRules(t)

	run := func() spend.Fingerprint {
		b, err := spend.NewRuleSetBuilder(tree)
		require.NoError(t, err)
		require.NoError(t, b.Add(first))
		require.NoError(t, b.Add(second))
		require.True(t, b.Finalized())
		return b.Fingerprint
	}

	assert.Equal(t, run(), run())
}

func TestBuilderOrderSensitive(t *testing.T) {
	tree := mustEncode(t, policytree.And(policytree.Leaf(0), policytree.Leaf(1)))
	first, second := twoRules(t)

	a, err := spend.NewRuleSetBuilder(tree)
	require.NoError(t, err)
	require.NoError(t, a.Add(first))
	require.NoError(t, a.Add(second))

	b, err := spend.NewRuleSetBuilder(tree)
	require.NoError(t, err)
	require.NoError(t, b.Add(second))
	require.NoError(t, b.Add(first))

	assert.NotEqual(t, a.Fingerprint, b.Fingerprint)
}

func TestBuilderRejectsExtraRule(t *testing.T) {
	tree := mustEncode(t, policytree.Leaf(0))
	first, second := twoRules(t)

	b, err := spend.NewRuleSetBuilder(tree)
	require.NoError(t, err)
	require.NoError(t, b.Add(first))
	assert.ErrorIs(t, b.Add(second), spend.ErrRuleIndexExceeded)
}

func TestBuilderDerivesCountFromTree(t *testing.T) {
	tree := mustEncode(t, policytree.Or(policytree.And(policytree.Leaf(0), policytree.Leaf(1)), policytree.Leaf(2)))
	b, err := spend.NewRuleSetBuilder(tree)
	require.NoError(t, err)
	assert.Equal(t, uint8(3), b.Count)
	assert.False(t, b.Finalized())
}

func TestBuilderRejectsMalformedTree(t *testing.T) {
	_, err := spend.NewRuleSetBuilder([]byte{0xFF, 1, 0})
	assert.ErrorIs(t, err, policytree.ErrTruncated)
}

func TestGenericHashCommitsIndexAndPrev(t *testing.T) {
	payload := []byte("payload")
	base := spend.GenericHash(0, payload, spend.ZeroFingerprint)

	assert.NotEqual(t, base, spend.GenericHash(1, payload, spend.ZeroFingerprint))
	assert.NotEqual(t, base, spend.GenericHash(0, []byte("other"), spend.ZeroFingerprint))
	assert.NotEqual(t, base, spend.GenericHash(0, payload, base))
	assert.Equal(t, base, spend.GenericHash(0, payload, spend.ZeroFingerprint))
}
