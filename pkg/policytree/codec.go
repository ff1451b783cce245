package policytree

import "math/bits"

// Encode serializes the tree depth-first, pre-order. Each node is one marker
// byte: a leaf writes its index, an internal node writes the 0xFF sentinel
// followed by an operator byte (1 = AND, 0 = OR) and both subtrees.
func (t Tree) Encode() ([]byte, error) {
	out := make([]byte, 0, len(t.nodes)*2)
	out = t.encodeAt(t.root, out)
	if len(out) > MaxEncodedSize {
		return nil, ErrTooLarge
	}
	return out, nil
}

func (t Tree) encodeAt(pos int, out []byte) []byte {
	n := t.nodes[pos]
	if n.leaf {
		return append(out, n.index)
	}
	out = append(out, nullMarker)
	if n.isAnd {
		out = append(out, 1)
	} else {
		out = append(out, 0)
	}
	out = t.encodeAt(n.left, out)
	return t.encodeAt(n.right, out)
}

// Decode parses a serialized tree and validates it structurally: the whole
// input must be consumed, every operator byte must be 0 or 1, leaf indices
// must fit the bitmask width, and the set of distinct leaf indices must cover
// 0..max with no gaps. The returned tree reports the declared rule count.
func Decode(data []byte) (Tree, error) {
	if len(data) > MaxEncodedSize {
		return Tree{}, ErrTooLarge
	}
	d := decoder{data: data}
	root, err := d.node()
	if err != nil {
		return Tree{}, err
	}
	if d.pos < len(data) {
		return Tree{}, ErrTrailingData
	}
	count := uint8(bits.OnesCount64(d.seen))
	if uint64(count) < uint64(d.max)+1 {
		return Tree{}, ErrLeafGap
	}
	return Tree{nodes: d.nodes, root: root, count: count}, nil
}

// RuleCount decodes just enough of the encoding to report the declared rule
// count, validating the tree along the way.
func RuleCount(data []byte) (uint8, error) {
	t, err := Decode(data)
	if err != nil {
		return 0, err
	}
	return t.count, nil
}

type decoder struct {
	data  []byte
	pos   int
	nodes []node
	seen  uint64
	max   uint8
}

func (d *decoder) byte() (byte, error) {
	if d.pos >= len(d.data) {
		return 0, ErrTruncated
	}
	b := d.data[d.pos]
	d.pos++
	return b, nil
}

func (d *decoder) node() (int, error) {
	marker, err := d.byte()
	if err != nil {
		return 0, err
	}
	if marker != nullMarker {
		if marker > MaxLeafIndex {
			return 0, ErrLeafRange
		}
		d.seen |= 1 << marker
		if marker > d.max {
			d.max = marker
		}
		d.nodes = append(d.nodes, node{leaf: true, index: marker, left: -1, right: -1})
		return len(d.nodes) - 1, nil
	}
	op, err := d.byte()
	if err != nil {
		return 0, err
	}
	if op > 1 {
		return 0, ErrBadBoolean
	}
	left, err := d.node()
	if err != nil {
		return 0, err
	}
	right, err := d.node()
	if err != nil {
		return 0, err
	}
	d.nodes = append(d.nodes, node{isAnd: op == 1, left: left, right: right})
	return len(d.nodes) - 1, nil
}
