package spend

import "crypto/sha256"

// GenericHash is the single hashing primitive shared by every rule kind and
// by the tree-embedding step: SHA-256 over index byte, previous fingerprint
// and the rule's canonical bytes, in that order. Committing the index makes
// the chain order-sensitive; committing prev makes it cumulative.
func GenericHash(index uint8, serialized []byte, prev Fingerprint) Fingerprint {
	h := sha256.New()
	h.Write([]byte{index})
	h.Write(prev[:])
	h.Write(serialized)
	var out Fingerprint
	h.Sum(out[:0])
	return out
}

// FoldTree binds the serialized policy tree into a running hash. Both the
// setup-time builder and every spend request apply this exact fold once, so
// a request can only reproduce the committed fingerprint if it carries the
// identical tree bytes.
func FoldTree(prev Fingerprint, tree []byte) Fingerprint {
	h := sha256.New()
	h.Write(prev[:])
	h.Write(tree)
	var out Fingerprint
	h.Sum(out[:0])
	return out
}
