package rules

import (
	"fmt"

	"github.com/Mindburn-Labs/spendgate/pkg/spend"
)

// Spec is the declarative form of a rule, as carried by rule-set definition
// documents and the step-by-step API. Fields irrelevant to the named kind
// are ignored.
type Spec struct {
	Kind        string   `json:"kind"`
	Instrument  spend.ID `json:"instrument,omitempty"`
	MaxSpend    uint64   `json:"max_spend,omitempty"`
	Window      uint64   `json:"window,omitempty"`
	Signer      spend.ID `json:"signer,omitempty"`
	Caller      spend.ID `json:"caller,omitempty"`
	MaxBalance  uint64   `json:"max_balance,omitempty"`
	Destination spend.ID `json:"destination,omitempty"`
	MinBalance  uint64   `json:"min_balance,omitempty"`
}

// RuleKind resolves the spec's kind name.
func (s Spec) RuleKind() (spend.RuleKind, error) {
	switch s.Kind {
	case spend.KindRateLimiter.String():
		return spend.KindRateLimiter, nil
	case spend.KindProgramConstraint.String():
		return spend.KindProgramConstraint, nil
	case spend.KindAuthorizationConstraint.String():
		return spend.KindAuthorizationConstraint, nil
	case spend.KindBalanceConstraint.String():
		return spend.KindBalanceConstraint, nil
	case spend.KindSweep.String():
		return spend.KindSweep, nil
	default:
		return 0, fmt.Errorf("%w: %q", spend.ErrUnknownRuleKind, s.Kind)
	}
}

// Build materializes the evidence-free rule the spec describes. Setup-time
// hashing and call-time hashing use the same canonical bytes, so a rule built
// here folds identically to one carrying observations.
func (s Spec) Build() (spend.Rule, error) {
	kind, err := s.RuleKind()
	if err != nil {
		return nil, err
	}
	switch kind {
	case spend.KindRateLimiter:
		return NewRateLimiter(s.Instrument, s.MaxSpend, s.Window)
	case spend.KindProgramConstraint:
		return &ProgramConstraint{RequiredCaller: s.Caller}, nil
	case spend.KindAuthorizationConstraint:
		return &AuthorizationConstraint{RequiredSigner: s.Signer}, nil
	case spend.KindBalanceConstraint:
		return &BalanceConstraint{Instrument: s.Instrument, MaxBalance: s.MaxBalance}, nil
	case spend.KindSweep:
		return &Sweep{Destination: s.Destination, Instrument: s.Instrument, MinBalance: s.MinBalance}, nil
	default:
		return nil, spend.ErrUnknownRuleKind
	}
}
