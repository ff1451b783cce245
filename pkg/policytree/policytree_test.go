package policytree_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Mindburn-Labs/spendgate/pkg/policytree"
)

func TestEncodeSingleLeaf(t *testing.T) {
	enc, err := policytree.Leaf(0).Encode()
	require.NoError(t, err)
	assert.Equal(t, []byte{0}, enc)

	decoded, err := policytree.Decode(enc)
	require.NoError(t, err)
	assert.Equal(t, uint8(1), decoded.RuleCount())
	assert.True(t, decoded.Evaluate(0b1))
	assert.False(t, decoded.Evaluate(0b0))
}

func TestEncodeAndOfTwoLeaves(t *testing.T) {
	tree := policytree.And(policytree.Leaf(0), policytree.Leaf(1))
	enc, err := tree.Encode()
	require.NoError(t, err)
	// internal marker, AND operator, leaf 0, leaf 1
	assert.Equal(t, []byte{0xFF, 1, 0, 1}, enc)
}

func TestRoundTrip(t *testing.T) {
	cases := map[string]policytree.Tree{
		"leaf":       policytree.Leaf(0),
		"and":        policytree.And(policytree.Leaf(0), policytree.Leaf(1)),
		"or":         policytree.Or(policytree.Leaf(0), policytree.Leaf(1)),
		"nested":     policytree.Or(policytree.And(policytree.Leaf(0), policytree.Leaf(1)), policytree.Leaf(2)),
		"deep":       policytree.And(policytree.And(policytree.Leaf(0), policytree.Leaf(1)), policytree.Or(policytree.Leaf(2), policytree.Leaf(3))),
		"repeated":   policytree.Or(policytree.Leaf(0), policytree.Leaf(0)),
		"repeat-mix": policytree.And(policytree.Or(policytree.Leaf(0), policytree.Leaf(1)), policytree.Leaf(1)),
	}
	for name, tree := range cases {
		t.Run(name, func(t *testing.T) {
			enc, err := tree.Encode()
			require.NoError(t, err)

			decoded, err := policytree.Decode(enc)
			require.NoError(t, err)
			assert.True(t, tree.Equal(decoded))

			reenc, err := decoded.Encode()
			require.NoError(t, err)
			assert.Equal(t, enc, reenc)
		})
	}
}

func TestDecodeRejectsTrailingBytes(t *testing.T) {
	enc, err := policytree.And(policytree.Leaf(0), policytree.Leaf(1)).Encode()
	require.NoError(t, err)

	_, err = policytree.Decode(append(enc, 0x02))
	assert.ErrorIs(t, err, policytree.ErrTrailingData)
}

func TestDecodeRejectsTruncated(t *testing.T) {
	_, err := policytree.Decode(nil)
	assert.ErrorIs(t, err, policytree.ErrTruncated)

	// internal node missing its right subtree
	_, err = policytree.Decode([]byte{0xFF, 1, 0})
	assert.ErrorIs(t, err, policytree.ErrTruncated)
}

func TestDecodeRejectsBadOperator(t *testing.T) {
	_, err := policytree.Decode([]byte{0xFF, 7, 0, 1})
	assert.ErrorIs(t, err, policytree.ErrBadBoolean)
}

func TestDecodeRejectsLeafGap(t *testing.T) {
	// leaves 0 and 2, no leaf 1
	_, err := policytree.Decode([]byte{0xFF, 1, 0, 2})
	assert.ErrorIs(t, err, policytree.ErrLeafGap)
}

func TestDecodeRejectsLeafBeyondBitmask(t *testing.T) {
	_, err := policytree.Decode([]byte{64})
	assert.ErrorIs(t, err, policytree.ErrLeafRange)
}

func TestDecodeRejectsOversizedEncoding(t *testing.T) {
	big := make([]byte, policytree.MaxEncodedSize+1)
	_, err := policytree.Decode(big)
	assert.ErrorIs(t, err, policytree.ErrTooLarge)
}

func TestRuleCountCountsDistinctLeaves(t *testing.T) {
	tree := policytree.And(policytree.Or(policytree.Leaf(0), policytree.Leaf(1)), policytree.Leaf(1))
	enc, err := tree.Encode()
	require.NoError(t, err)

	count, err := policytree.RuleCount(enc)
	require.NoError(t, err)
	assert.Equal(t, uint8(2), count)
}

func TestEvaluateTruthTable(t *testing.T) {
	and := policytree.And(policytree.Leaf(0), policytree.Leaf(1))
	or := policytree.Or(policytree.Leaf(0), policytree.Leaf(1))

	for mask, want := range map[uint64]bool{0b00: false, 0b01: false, 0b10: false, 0b11: true} {
		assert.Equal(t, want, and.Evaluate(mask), "AND mask %b", mask)
	}
	for mask, want := range map[uint64]bool{0b00: false, 0b01: true, 0b10: true, 0b11: true} {
		assert.Equal(t, want, or.Evaluate(mask), "OR mask %b", mask)
	}

	// OR-based fallback: (0 AND 1) OR 2
	fallback := policytree.Or(and, policytree.Leaf(2))
	assert.True(t, fallback.Evaluate(0b100))
	assert.True(t, fallback.Evaluate(0b011))
	assert.False(t, fallback.Evaluate(0b010))
}
