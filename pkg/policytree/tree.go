// Package policytree implements the boolean policy tree that decides whether
// a combination of rule outcomes authorizes a transfer.
//
// A tree is a binary expression over leaf indices 0..n-1. Each leaf reads one
// bit of an outcome bitmask; internal nodes combine their children with AND
// or OR. Trees are built once at setup time, serialized into the rule-set
// payload, and evaluated at completion time. They are never mutated.
package policytree

import "errors"

// MaxEncodedSize is the hard cap on a serialized tree.
const MaxEncodedSize = 300

// MaxLeafIndex bounds leaf indices so outcomes fit a 64-bit bitmask.
const MaxLeafIndex = 63

// nullMarker tags an internal node in the byte encoding.
const nullMarker = 0xFF

var (
	ErrTruncated    = errors.New("policytree: truncated encoding")
	ErrBadBoolean   = errors.New("policytree: operator byte is neither AND nor OR")
	ErrTrailingData = errors.New("policytree: trailing bytes after complete parse")
	ErrLeafGap      = errors.New("policytree: leaf indices do not cover 0..max contiguously")
	ErrLeafRange    = errors.New("policytree: leaf index exceeds bitmask width")
	ErrTooLarge     = errors.New("policytree: encoding exceeds maximum size")
)

// node is one arena entry. Children are arena positions; -1 means none.
type node struct {
	leaf  bool
	index uint8
	isAnd bool
	left  int
	right int
}

// Tree is an immutable boolean expression tree stored as an arena of nodes.
// The zero value is not usable; construct with Leaf, And, Or or Decode.
type Tree struct {
	nodes []node
	root  int
	count uint8
}

// Leaf returns a tree consisting of a single leaf referencing rule index i.
func Leaf(i uint8) Tree {
	return Tree{
		nodes: []node{{leaf: true, index: i, left: -1, right: -1}},
		root:  0,
		count: 1,
	}
}

// And combines two trees under an AND node.
func And(left, right Tree) Tree { return combine(true, left, right) }

// Or combines two trees under an OR node.
func Or(left, right Tree) Tree { return combine(false, left, right) }

func combine(isAnd bool, left, right Tree) Tree {
	nodes := make([]node, 0, len(left.nodes)+len(right.nodes)+1)
	nodes = append(nodes, left.nodes...)
	off := len(nodes)
	for _, n := range right.nodes {
		if !n.leaf {
			n.left += off
			n.right += off
		}
		nodes = append(nodes, n)
	}
	nodes = append(nodes, node{
		isAnd: isAnd,
		left:  left.root,
		right: right.root + off,
	})
	return Tree{nodes: nodes, root: len(nodes) - 1}
}

// RuleCount reports the number of distinct leaf indices, which is also the
// declared rule count of the rule set the tree governs. It is only populated
// on trees produced by Decode; hand-built trees report it after a round trip.
func (t Tree) RuleCount() uint8 { return t.count }

// Evaluate computes the boolean result of the tree over a bitmask of per-rule
// outcomes. Bit i of the mask is the recorded outcome of rule i.
func (t Tree) Evaluate(bitmask uint64) bool {
	return t.eval(t.root, bitmask)
}

func (t Tree) eval(pos int, bitmask uint64) bool {
	n := t.nodes[pos]
	if n.leaf {
		return bitmask&(1<<n.index) != 0
	}
	left := t.eval(n.left, bitmask)
	right := t.eval(n.right, bitmask)
	if n.isAnd {
		return left && right
	}
	return left || right
}

// Equal reports structural equality of two trees.
func (t Tree) Equal(other Tree) bool {
	return t.equalAt(t.root, other, other.root)
}

func (t Tree) equalAt(pos int, other Tree, opos int) bool {
	a, b := t.nodes[pos], other.nodes[opos]
	if a.leaf != b.leaf {
		return false
	}
	if a.leaf {
		return a.index == b.index
	}
	if a.isAnd != b.isAnd {
		return false
	}
	return t.equalAt(a.left, other, b.left) && t.equalAt(a.right, other, b.right)
}
