package spend

import (
	"errors"
	"fmt"

	"github.com/Mindburn-Labs/spendgate/pkg/policytree"
)

var (
	// ErrIncomplete is returned by Verify before every declared rule has
	// been processed.
	ErrIncomplete = errors.New("spend: not all rules have been processed")
	// ErrFingerprintMismatch is returned when the re-derived running hash
	// does not equal the committed rule-set fingerprint, i.e. the request
	// processed different rules or the same rules in a different order.
	ErrFingerprintMismatch = errors.New("spend: running hash does not match committed fingerprint")
	// ErrPolicyRejected is returned when the policy tree evaluates the
	// outcome bitmask to false.
	ErrPolicyRejected = errors.New("spend: policy tree rejected outcome bitmask")
)

// Outcome reports how one rule evaluation went. A violation is a valid
// outcome, not a failure of the step: the policy tree may still authorize the
// transfer through an OR branch.
type Outcome struct {
	Index     uint8
	Passed    bool
	Violation error
}

// Request is the spend-request state machine. It is created when a transfer
// is proposed, advanced once per rule by ProcessRule, and consumed by Verify
// plus the caller's commit. No two processing steps for the same request may
// run concurrently; each depends on the prior running hash and index.
type Request struct {
	Delegation  string          `json:"delegation"`
	Ledger      Ledger          `json:"ledger"`
	Context     TransferContext `json:"context"`
	RunningHash Fingerprint     `json:"running_hash"`
	Count       uint8           `json:"count"`
	NextIndex   uint8           `json:"next_index"`
	Bitmask     uint64          `json:"bitmask"`
	Tree        []byte          `json:"tree"`
}

// NewRequest snapshots the authorization unit's ledger and the transfer
// context, derives the declared rule count from the tree, folds the tree
// bytes into the running hash (mirroring the builder's binding step) and
// reserves a ledger slot for the context's instrument.
func NewRequest(delegation string, ledger Ledger, ctx TransferContext, tree []byte) (*Request, error) {
	count, err := policytree.RuleCount(tree)
	if err != nil {
		return nil, fmt.Errorf("spend request tree: %w", err)
	}
	snapshot := ledger.Clone()
	slot, err := snapshot.FindOrAllocate(ctx.Instrument)
	if err != nil {
		return nil, err
	}
	slot.Uses++
	treeCopy := make([]byte, len(tree))
	copy(treeCopy, tree)
	return &Request{
		Delegation:  delegation,
		Ledger:      snapshot,
		Context:     ctx,
		RunningHash: FoldTree(ZeroFingerprint, tree),
		Count:       count,
		Tree:        treeCopy,
	}, nil
}

// ProcessRule folds the rule into the running hash at the current index and
// evaluates it against the ledger snapshot and transfer context. A passing
// rule sets its outcome bit; a violating rule leaves the bit clear and the
// request advances regardless. Only a sequencing error (processing past the
// declared count) is fatal.
func (r *Request) ProcessRule(rule Rule) (Outcome, error) {
	if r.NextIndex >= r.Count {
		return Outcome{}, ErrRuleIndexExceeded
	}
	r.RunningHash = GenericHash(r.NextIndex, rule.CanonicalBytes(), r.RunningHash)

	out := Outcome{Index: r.NextIndex}
	if err := rule.Evaluate(&r.Ledger, &r.Context); err != nil {
		out.Violation = err
	} else {
		out.Passed = true
		r.Bitmask |= 1 << r.NextIndex
	}
	r.NextIndex++
	return out, nil
}

// Verify gates completion. It requires every declared rule to have been
// processed, proves the request was evaluated against the authorized rule
// set by comparing the running hash to the committed fingerprint, and then
// asks the policy tree whether the outcome bitmask authorizes the transfer.
// Committing ledger state and executing the transfer are the caller's steps,
// taken only after Verify returns nil.
func (r *Request) Verify(committed Fingerprint) error {
	if r.NextIndex != r.Count {
		return ErrIncomplete
	}
	if r.RunningHash != committed {
		return ErrFingerprintMismatch
	}
	tree, err := policytree.Decode(r.Tree)
	if err != nil {
		return fmt.Errorf("spend request tree: %w", err)
	}
	if !tree.Evaluate(r.Bitmask) {
		return ErrPolicyRejected
	}
	return nil
}
