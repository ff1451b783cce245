// Package custody models the accounts a rule set is bound to: a Controller
// owns funds and grants Delegations, each an authorization unit carrying a
// committed rule-set fingerprint and the spend ledger the rules are tracked
// against. A delegation must be approved by the controller's owner before it
// is spendable.
package custody

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"

	"github.com/Mindburn-Labs/spendgate/pkg/spend"
)

var (
	ErrNotFinalized   = errors.New("custody: rule set builder has unadded rules")
	ErrNotApproved    = errors.New("custody: delegation is not approved")
	ErrNotPending     = errors.New("custody: delegation is not pending approval")
	ErrAlreadyClosed  = errors.New("custody: delegation is closed")
	ErrHasDelegations = errors.New("custody: controller still has open delegations")
)

// Status is the delegation approval lifecycle.
type Status string

const (
	StatusPending  Status = "PENDING"
	StatusApproved Status = "APPROVED"
	StatusRejected Status = "REJECTED"
	StatusClosed   Status = "CLOSED"
)

// Controller owns funds and grants delegations.
type Controller struct {
	ID              string   `json:"id"`
	Owner           spend.ID `json:"owner"`
	DelegationCount uint32   `json:"delegation_count"`
}

// NewController derives a controller keyed by its owner identity.
func NewController(owner spend.ID) *Controller {
	return &Controller{ID: controllerID(owner), Owner: owner}
}

func controllerID(owner spend.ID) string {
	h := sha256.New()
	h.Write([]byte("spendgate:controller:"))
	h.Write(owner[:])
	return hex.EncodeToString(h.Sum(nil))
}

// Delegation is the authorization unit: the committed rule-set fingerprint,
// the declared rule count, the spend ledger rules are tracked against, and
// the approval state. Its ID is derived from the controller and fingerprint,
// so one controller holds at most one delegation per rule set.
type Delegation struct {
	ID          string            `json:"id"`
	Controller  string            `json:"controller"`
	RuleCount   uint8             `json:"rule_count"`
	Fingerprint spend.Fingerprint `json:"fingerprint"`
	Tree        []byte            `json:"tree"`
	Ledger      spend.Ledger      `json:"ledger"`
	Status      Status            `json:"status"`
	RequestedAt uint64            `json:"requested_at"`
}

// DelegationID derives the deterministic delegation key.
func DelegationID(controller string, fingerprint spend.Fingerprint) string {
	h := sha256.New()
	h.Write([]byte("spendgate:delegation:"))
	h.Write([]byte(controller))
	h.Write(fingerprint[:])
	return hex.EncodeToString(h.Sum(nil))
}

// Delegate seals a finalized rule-set builder into a pending delegation with
// a fresh spend ledger of the given capacity.
func Delegate(controller *Controller, builder *spend.RuleSetBuilder, capacity uint8, now uint64) (*Delegation, error) {
	if !builder.Finalized() {
		return nil, ErrNotFinalized
	}
	controller.DelegationCount++
	return &Delegation{
		ID:          DelegationID(controller.ID, builder.Fingerprint),
		Controller:  controller.ID,
		RuleCount:   builder.Count,
		Fingerprint: builder.Fingerprint,
		Tree:        builder.Tree,
		Ledger:      spend.NewLedger(capacity),
		Status:      StatusPending,
		RequestedAt: now,
	}, nil
}

// Approve marks a pending delegation spendable.
func (d *Delegation) Approve() error {
	if d.Status != StatusPending {
		return ErrNotPending
	}
	d.Status = StatusApproved
	return nil
}

// Reject declines a pending delegation.
func (d *Delegation) Reject() error {
	if d.Status != StatusPending {
		return ErrNotPending
	}
	d.Status = StatusRejected
	return nil
}

// Close retires the delegation and releases it from the controller's count.
func (d *Delegation) Close(controller *Controller) error {
	if d.Status == StatusClosed {
		return ErrAlreadyClosed
	}
	d.Status = StatusClosed
	controller.DelegationCount--
	return nil
}

// Spendable reports whether spend requests may be created against the
// delegation.
func (d *Delegation) Spendable() bool { return d.Status == StatusApproved }
