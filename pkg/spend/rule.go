package spend

import "errors"

// RuleKind tags one of the five rule variants. The set is closed.
type RuleKind uint8

const (
	KindRateLimiter             RuleKind = 1
	KindProgramConstraint       RuleKind = 2
	KindAuthorizationConstraint RuleKind = 3
	KindBalanceConstraint       RuleKind = 4
	KindSweep                   RuleKind = 5
)

func (k RuleKind) String() string {
	switch k {
	case KindRateLimiter:
		return "rate_limiter"
	case KindProgramConstraint:
		return "program_constraint"
	case KindAuthorizationConstraint:
		return "authorization_constraint"
	case KindBalanceConstraint:
		return "balance_constraint"
	case KindSweep:
		return "sweep"
	default:
		return "unknown"
	}
}

// ErrUnknownRuleKind is returned when a kind outside the closed set appears.
var ErrUnknownRuleKind = errors.New("spend: unknown rule kind")

// Rule is the capability every spending policy implements.
//
// CanonicalBytes is the stable serialization used only for hashing; it must
// exclude any call-time observation (signing evidence, observed balances) so
// that the fingerprint commits to the rule definition alone. Evaluate checks
// the policy against the ledger snapshot and transfer context and returns a
// named policy violation on failure. Evaluation must not update spend values;
// ledger mutation happens only at commit.
type Rule interface {
	Kind() RuleKind
	CanonicalBytes() []byte
	Evaluate(ledger *Ledger, ctx *TransferContext) error
}
