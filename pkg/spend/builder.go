package spend

import (
	"errors"
	"fmt"

	"github.com/Mindburn-Labs/spendgate/pkg/policytree"
)

// ErrRuleIndexExceeded is returned when more rules are folded into a chain
// than the policy tree declares.
var ErrRuleIndexExceeded = errors.New("spend: rule index exceeds declared rule count")

// RuleSetBuilder accumulates rules one at a time into a hash chain, producing
// the committed rule-set fingerprint. It is an explicit state object: each
// Add is a pure transition on (fingerprint, index), so the builder can be
// persisted between the independent calls of a multi-step setup flow. The
// declared rule count is derived once from the policy tree and is immutable.
type RuleSetBuilder struct {
	Fingerprint Fingerprint `json:"fingerprint"`
	Index       uint8       `json:"index"`
	Count       uint8       `json:"count"`
	Tree        []byte      `json:"tree"`
}

// NewRuleSetBuilder seeds a builder from the serialized policy tree. The tree
// is validated, its distinct leaf count becomes the declared rule count, and
// the tree bytes themselves are folded into the chain so the fingerprint
// commits to the policy expression as well as the rules.
func NewRuleSetBuilder(tree []byte) (*RuleSetBuilder, error) {
	count, err := policytree.RuleCount(tree)
	if err != nil {
		return nil, fmt.Errorf("rule set tree: %w", err)
	}
	treeCopy := make([]byte, len(tree))
	copy(treeCopy, tree)
	return &RuleSetBuilder{
		Fingerprint: FoldTree(ZeroFingerprint, tree),
		Count:       count,
		Tree:        treeCopy,
	}, nil
}

// Add folds the next rule into the chain. Order matters: the fingerprint
// commits to both content and position of every rule.
func (b *RuleSetBuilder) Add(rule Rule) error {
	if b.Index >= b.Count {
		return ErrRuleIndexExceeded
	}
	b.Fingerprint = GenericHash(b.Index, rule.CanonicalBytes(), b.Fingerprint)
	b.Index++
	return nil
}

// Finalized reports whether every declared rule has been added.
func (b *RuleSetBuilder) Finalized() bool {
	return b.Index == b.Count
}
