// Package rules defines the five spending policies of the closed rule set:
// rate limiting, authorization signatures, caller constraints, balance
// ceilings and sweeps. Each rule carries a deterministic canonical encoding
// used only for hashing (fixed field order, little-endian integers, no
// padding) and an evaluation function over a ledger snapshot and transfer
// context. Call-time observations never enter the canonical bytes.
package rules

import (
	"encoding/binary"
	"errors"

	"github.com/Mindburn-Labs/spendgate/pkg/spend"
)

// Policy violations. A violation clears the rule's outcome bit; whether that
// denies the transfer is the policy tree's decision.
var (
	ErrOutOfOrder        = errors.New("rules: logical time regressed below recorded window start")
	ErrLimitExceeded     = errors.New("rules: spend exceeds rate limit")
	ErrNotAuthorized     = errors.New("rules: required signer did not authorize this call")
	ErrCallerMismatch    = errors.New("rules: caller does not match required caller")
	ErrBalanceExceeded   = errors.New("rules: source balance exceeds ceiling")
	ErrWrongDestination  = errors.New("rules: destination does not match sweep destination")
	ErrInsufficientFunds = errors.New("rules: destination balance below sweep minimum")
)

// Constructor validation failures.
var (
	ErrZeroMaxSpend = errors.New("rules: rate limiter max spend cannot be zero")
	ErrWindowTooLow = errors.New("rules: rate limiter window must be at least 100")
)

// MinWindow is the smallest accepted rate-limit window, in logical time
// units.
const MinWindow = 100

func appendUint64(b []byte, v uint64) []byte {
	return binary.LittleEndian.AppendUint64(b, v)
}

// RateLimiter bounds cumulative spend of one instrument within a rolling
// window of logical time.
type RateLimiter struct {
	Instrument spend.ID `json:"instrument"`
	MaxSpend   uint64   `json:"max_spend"`
	Window     uint64   `json:"window"`
}

// NewRateLimiter validates and builds a rate limiter. A zero max spend or a
// window under MinWindow would make the rule unsatisfiable or meaningless.
func NewRateLimiter(instrument spend.ID, maxSpend, window uint64) (*RateLimiter, error) {
	if maxSpend == 0 {
		return nil, ErrZeroMaxSpend
	}
	if window < MinWindow {
		return nil, ErrWindowTooLow
	}
	return &RateLimiter{Instrument: instrument, MaxSpend: maxSpend, Window: window}, nil
}

func (r *RateLimiter) Kind() spend.RuleKind { return spend.KindRateLimiter }

func (r *RateLimiter) CanonicalBytes() []byte {
	out := make([]byte, 0, 48)
	out = append(out, r.Instrument[:]...)
	out = appendUint64(out, r.MaxSpend)
	return appendUint64(out, r.Window)
}

// Evaluate checks the candidate spend against the rolling window. If the
// context's logical time still falls inside the recorded window, the
// candidate is cumulative; otherwise the window has lapsed and the candidate
// resets to the context amount. Time regression is a hard error, not a
// clamp. The ledger slot is looked up (binding a blank slot if needed) but
// spend values are not updated here; that happens at commit.
func (r *RateLimiter) Evaluate(ledger *spend.Ledger, ctx *spend.TransferContext) error {
	slot, err := ledger.FindOrAllocate(ctx.Instrument)
	if err != nil {
		return err
	}
	if ctx.LogicalTime < slot.WindowStart {
		return ErrOutOfOrder
	}
	candidate := ctx.Amount
	if ctx.LogicalTime < slot.WindowStart+r.Window {
		candidate = slot.LastSpend + ctx.Amount
	}
	if candidate >= r.MaxSpend {
		return ErrLimitExceeded
	}
	return nil
}

// AuthorizationConstraint requires a named signer to have authorized the
// call. Authorized is call-time evidence and is excluded from the canonical
// bytes so it can never affect the fingerprint.
type AuthorizationConstraint struct {
	RequiredSigner spend.ID `json:"required_signer"`
	Authorized     bool     `json:"-"`
}

func (a *AuthorizationConstraint) Kind() spend.RuleKind { return spend.KindAuthorizationConstraint }

func (a *AuthorizationConstraint) CanonicalBytes() []byte {
	out := make([]byte, 32)
	copy(out, a.RequiredSigner[:])
	return out
}

func (a *AuthorizationConstraint) Evaluate(_ *spend.Ledger, _ *spend.TransferContext) error {
	if !a.Authorized {
		return ErrNotAuthorized
	}
	return nil
}

// ProgramConstraint requires the transfer to be invoked by a named caller.
type ProgramConstraint struct {
	RequiredCaller spend.ID `json:"required_caller"`
}

func (p *ProgramConstraint) Kind() spend.RuleKind { return spend.KindProgramConstraint }

func (p *ProgramConstraint) CanonicalBytes() []byte {
	out := make([]byte, 32)
	copy(out, p.RequiredCaller[:])
	return out
}

func (p *ProgramConstraint) Evaluate(_ *spend.Ledger, ctx *spend.TransferContext) error {
	if ctx.Caller != p.RequiredCaller {
		return ErrCallerMismatch
	}
	return nil
}

// BalanceConstraint caps the source instrument's real-time balance. The
// observed balance is supplied by the balance oracle at call time and is
// excluded from the canonical bytes.
type BalanceConstraint struct {
	Instrument spend.ID `json:"instrument"`
	MaxBalance uint64   `json:"max_balance"`
	Observed   uint64   `json:"-"`
}

func (b *BalanceConstraint) Kind() spend.RuleKind { return spend.KindBalanceConstraint }

func (b *BalanceConstraint) CanonicalBytes() []byte {
	out := make([]byte, 0, 40)
	out = append(out, b.Instrument[:]...)
	return appendUint64(out, b.MaxBalance)
}

func (b *BalanceConstraint) Evaluate(_ *spend.Ledger, _ *spend.TransferContext) error {
	if b.Observed > b.MaxBalance {
		return ErrBalanceExceeded
	}
	return nil
}

// Sweep authorizes draining a balance to a fixed destination once the
// destination already holds a minimum amount. Processing a sweep marks the
// transfer context so commit does not treat it as a rate-limited spend; the
// mark is applied whether or not the checks pass, mirroring that the request
// was shaped as a sweep. ObservedBalance is the destination's balance at
// call time, excluded from the canonical bytes.
type Sweep struct {
	Destination     spend.ID `json:"destination"`
	Instrument      spend.ID `json:"instrument"`
	MinBalance      uint64   `json:"min_balance"`
	ObservedBalance uint64   `json:"-"`
}

func (s *Sweep) Kind() spend.RuleKind { return spend.KindSweep }

func (s *Sweep) CanonicalBytes() []byte {
	out := make([]byte, 0, 40)
	out = append(out, s.Destination[:]...)
	return appendUint64(out, s.MinBalance)
}

func (s *Sweep) Evaluate(_ *spend.Ledger, ctx *spend.TransferContext) error {
	ctx.IsSweep = true
	if ctx.Destination != s.Destination {
		return ErrWrongDestination
	}
	if s.ObservedBalance < s.MinBalance {
		return ErrInsufficientFunds
	}
	return nil
}
