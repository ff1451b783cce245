// Package engine orchestrates the multi-step authorization workflow: rule-set
// construction, delegation lifecycle, and the create/process/complete steps of
// a spend request. Every step loads state, applies one transition and saves it
// back; a per-request lock keeps the steps of one request from interleaving.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"github.com/Mindburn-Labs/spendgate/pkg/custody"
	"github.com/Mindburn-Labs/spendgate/pkg/receipt"
	"github.com/Mindburn-Labs/spendgate/pkg/rules"
	"github.com/Mindburn-Labs/spendgate/pkg/spend"
	"github.com/Mindburn-Labs/spendgate/pkg/store"
)

var (
	// ErrNotSpendable is returned when a spend request targets a delegation
	// that has not been approved.
	ErrNotSpendable = errors.New("engine: delegation is not spendable")
	// ErrTreeTooLarge is returned when a policy tree exceeds the deployment's
	// configured size ceiling.
	ErrTreeTooLarge = errors.New("engine: policy tree exceeds configured limit")
	// ErrTooManyRules is returned when a rule set declares more rules than the
	// deployment allows.
	ErrTooManyRules = errors.New("engine: rule count exceeds configured limit")
)

// Telemetry records authorization outcomes and completion latency.
// *observability.Provider implements it; the zero engine uses a no-op.
type Telemetry interface {
	RecordAuthorized(ctx context.Context, attrs ...attribute.KeyValue)
	RecordDenied(ctx context.Context, attrs ...attribute.KeyValue)
	RecordCompletion(ctx context.Context, duration time.Duration, attrs ...attribute.KeyValue)
}

type noopTelemetry struct{}

func (noopTelemetry) RecordAuthorized(context.Context, ...attribute.KeyValue) {}
func (noopTelemetry) RecordDenied(context.Context, ...attribute.KeyValue)     {}
func (noopTelemetry) RecordCompletion(context.Context, time.Duration, ...attribute.KeyValue) {
}

// Engine drives the authorization workflow over pluggable persistence and
// oracles.
type Engine struct {
	store    store.Store
	locks    store.RequestLock
	balances spend.BalanceOracle
	signers  spend.SignerOracle
	executor spend.TransferExecutor
	receipts  *receipt.Log
	logger    *slog.Logger
	telemetry Telemetry

	ledgerSlots  uint8
	maxRules     uint8
	maxTreeBytes int
	autoApprove  bool
}

// Options configures an Engine.
type Options struct {
	Store     store.Store
	Locks     store.RequestLock
	Balances  spend.BalanceOracle
	Signers   spend.SignerOracle
	Executor  spend.TransferExecutor
	Receipts  *receipt.Log
	Logger    *slog.Logger
	Telemetry Telemetry

	LedgerSlots uint8
	// MaxRules caps the declared rule count of a build; zero means no cap.
	MaxRules uint8
	// MaxTreeBytes caps the encoded policy tree size; zero means no cap.
	MaxTreeBytes int
	// AutoApprove marks delegations spendable at creation instead of waiting
	// for an explicit approval.
	AutoApprove bool
}

// New builds an Engine. Store, Locks, Balances, Signers and Executor are
// required; Receipts, Logger and Telemetry default to a fresh log,
// slog.Default and a no-op recorder.
func New(opts Options) (*Engine, error) {
	if opts.Store == nil || opts.Locks == nil {
		return nil, errors.New("engine: store and locks are required")
	}
	if opts.Balances == nil || opts.Signers == nil || opts.Executor == nil {
		return nil, errors.New("engine: balance, signer and executor collaborators are required")
	}
	if opts.Receipts == nil {
		opts.Receipts = receipt.NewLog()
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Telemetry == nil {
		opts.Telemetry = noopTelemetry{}
	}
	if opts.LedgerSlots == 0 {
		opts.LedgerSlots = 8
	}
	return &Engine{
		store:        opts.Store,
		locks:        opts.Locks,
		balances:     opts.Balances,
		signers:      opts.Signers,
		executor:     opts.Executor,
		receipts:     opts.Receipts,
		logger:       opts.Logger,
		telemetry:    opts.Telemetry,
		ledgerSlots:  opts.LedgerSlots,
		maxRules:     opts.MaxRules,
		maxTreeBytes: opts.MaxTreeBytes,
		autoApprove:  opts.AutoApprove,
	}, nil
}

// Receipts exposes the audit log.
func (e *Engine) Receipts() *receipt.Log { return e.receipts }

// CreateController registers a controller for the given owner identity.
// Creation is idempotent: the controller's ID is derived from the owner.
func (e *Engine) CreateController(ctx context.Context, owner spend.ID) (*custody.Controller, error) {
	c := custody.NewController(owner)
	if existing, err := e.store.GetController(ctx, c.ID); err == nil {
		return existing, nil
	} else if !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}
	if err := e.store.PutController(ctx, c); err != nil {
		return nil, err
	}
	e.logger.Info("controller created", "controller", c.ID)
	return c, nil
}

// BeginRuleSet starts a rule-set build from an encoded policy tree and returns
// the builder's ID for the follow-up Add calls.
func (e *Engine) BeginRuleSet(ctx context.Context, tree []byte) (string, *spend.RuleSetBuilder, error) {
	if e.maxTreeBytes > 0 && len(tree) > e.maxTreeBytes {
		return "", nil, fmt.Errorf("%w: %d bytes over %d", ErrTreeTooLarge, len(tree), e.maxTreeBytes)
	}
	b, err := spend.NewRuleSetBuilder(tree)
	if err != nil {
		return "", nil, err
	}
	if e.maxRules > 0 && b.Count > e.maxRules {
		return "", nil, fmt.Errorf("%w: %d rules over %d", ErrTooManyRules, b.Count, e.maxRules)
	}
	id := uuid.New().String()
	if err := e.store.PutBuilder(ctx, id, b); err != nil {
		return "", nil, err
	}
	e.logger.Info("rule set build started", "builder", id, "rules", b.Count)
	return id, b, nil
}

// AddRule folds the next rule into a pending build. Rules are hashed in call
// order; the resulting fingerprint commits to both content and position.
func (e *Engine) AddRule(ctx context.Context, builderID string, spec rules.Spec) (*spend.RuleSetBuilder, error) {
	b, err := e.store.GetBuilder(ctx, builderID)
	if err != nil {
		return nil, err
	}
	rule, err := spec.Build()
	if err != nil {
		return nil, err
	}
	if err := b.Add(rule); err != nil {
		return nil, err
	}
	if err := e.store.PutBuilder(ctx, builderID, b); err != nil {
		return nil, err
	}
	e.logger.Info("rule added", "builder", builderID, "kind", spec.Kind, "index", b.Index-1)
	return b, nil
}

// Delegate seals a finalized build into a pending delegation under the
// controller and retires the builder.
func (e *Engine) Delegate(ctx context.Context, controllerID, builderID string, now uint64) (*custody.Delegation, error) {
	c, err := e.store.GetController(ctx, controllerID)
	if err != nil {
		return nil, err
	}
	b, err := e.store.GetBuilder(ctx, builderID)
	if err != nil {
		return nil, err
	}
	d, err := custody.Delegate(c, b, e.ledgerSlots, now)
	if err != nil {
		return nil, err
	}
	if e.autoApprove {
		if err := d.Approve(); err != nil {
			return nil, err
		}
	}
	if err := e.store.PutDelegation(ctx, d); err != nil {
		return nil, err
	}
	if err := e.store.PutController(ctx, c); err != nil {
		return nil, err
	}
	if err := e.store.DeleteBuilder(ctx, builderID); err != nil {
		return nil, err
	}
	e.logger.Info("delegation requested",
		"delegation", d.ID, "controller", c.ID, "fingerprint", d.Fingerprint)
	return d, nil
}

// ApproveDelegation marks a pending delegation spendable.
func (e *Engine) ApproveDelegation(ctx context.Context, delegationID string) (*custody.Delegation, error) {
	return e.transitionDelegation(ctx, delegationID, "approved", (*custody.Delegation).Approve)
}

// RejectDelegation declines a pending delegation.
func (e *Engine) RejectDelegation(ctx context.Context, delegationID string) (*custody.Delegation, error) {
	return e.transitionDelegation(ctx, delegationID, "rejected", (*custody.Delegation).Reject)
}

func (e *Engine) transitionDelegation(ctx context.Context, id, verb string, apply func(*custody.Delegation) error) (*custody.Delegation, error) {
	d, err := e.store.GetDelegation(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := apply(d); err != nil {
		return nil, err
	}
	if err := e.store.PutDelegation(ctx, d); err != nil {
		return nil, err
	}
	e.logger.Info("delegation "+verb, "delegation", id)
	return d, nil
}

// CloseDelegation retires a delegation and releases it from its controller.
func (e *Engine) CloseDelegation(ctx context.Context, delegationID string) (*custody.Delegation, error) {
	d, err := e.store.GetDelegation(ctx, delegationID)
	if err != nil {
		return nil, err
	}
	c, err := e.store.GetController(ctx, d.Controller)
	if err != nil {
		return nil, err
	}
	if err := d.Close(c); err != nil {
		return nil, err
	}
	if err := e.store.PutDelegation(ctx, d); err != nil {
		return nil, err
	}
	if err := e.store.PutController(ctx, c); err != nil {
		return nil, err
	}
	e.logger.Info("delegation closed", "delegation", delegationID)
	return d, nil
}

// GetDelegation loads a delegation by ID.
func (e *Engine) GetDelegation(ctx context.Context, delegationID string) (*custody.Delegation, error) {
	return e.store.GetDelegation(ctx, delegationID)
}

// CleanLedger blanks delegation ledger slots whose window started before
// cutoff, releasing capacity held by quiet instruments.
func (e *Engine) CleanLedger(ctx context.Context, delegationID string, cutoff uint64) (*custody.Delegation, error) {
	d, err := e.store.GetDelegation(ctx, delegationID)
	if err != nil {
		return nil, err
	}
	d.Ledger.Clean(cutoff)
	if err := e.store.PutDelegation(ctx, d); err != nil {
		return nil, err
	}
	return d, nil
}

// CreateSpendRequest opens a spend request against an approved delegation. The
// delegation's ledger is snapshotted into the request; nothing on the
// delegation changes until completion.
func (e *Engine) CreateSpendRequest(ctx context.Context, delegationID string, tctx spend.TransferContext) (string, *spend.Request, error) {
	d, err := e.store.GetDelegation(ctx, delegationID)
	if err != nil {
		return "", nil, err
	}
	if !d.Spendable() {
		return "", nil, fmt.Errorf("%w: status %s", ErrNotSpendable, d.Status)
	}
	r, err := spend.NewRequest(d.ID, d.Ledger, tctx, d.Tree)
	if err != nil {
		return "", nil, err
	}
	id := uuid.New().String()
	if err := e.store.PutRequest(ctx, id, r); err != nil {
		return "", nil, err
	}
	e.logger.Info("spend request created",
		"request", id, "delegation", d.ID, "amount", tctx.Amount, "time", tctx.LogicalTime)
	return id, r, nil
}

// ProcessRule advances a spend request by one rule. The caller restates the
// rule; its hash is folded into the running hash, so a restated rule that
// differs from the committed one surfaces as a fingerprint mismatch at
// completion rather than an error here. Credential is the signer evidence for
// authorization rules; other kinds ignore it.
func (e *Engine) ProcessRule(ctx context.Context, requestID string, spec rules.Spec, credential string) (spend.Outcome, error) {
	token, err := e.locks.Lock(ctx, requestID)
	if err != nil {
		return spend.Outcome{}, err
	}
	defer e.unlock(ctx, requestID, token)

	r, err := e.store.GetRequest(ctx, requestID)
	if err != nil {
		return spend.Outcome{}, err
	}
	rule, err := spec.Build()
	if err != nil {
		return spend.Outcome{}, err
	}
	if err := e.observe(ctx, rule, credential); err != nil {
		return spend.Outcome{}, err
	}
	out, err := r.ProcessRule(rule)
	if err != nil {
		return spend.Outcome{}, err
	}
	if err := e.store.PutRequest(ctx, requestID, r); err != nil {
		return spend.Outcome{}, err
	}
	if out.Passed {
		e.logger.Info("rule passed", "request", requestID, "index", out.Index, "kind", spec.Kind)
	} else {
		e.logger.Info("rule violated",
			"request", requestID, "index", out.Index, "kind", spec.Kind, "violation", out.Violation)
	}
	return out, nil
}

// observe attaches call-time evidence to the rule before evaluation: signer
// authorization from the signer oracle, live balances from the balance oracle.
// Evidence never enters the rule's canonical bytes.
func (e *Engine) observe(ctx context.Context, rule spend.Rule, credential string) error {
	switch v := rule.(type) {
	case *rules.AuthorizationConstraint:
		ok, err := e.signers.Authorized(ctx, v.RequiredSigner, credential)
		if err != nil {
			return fmt.Errorf("signer oracle: %w", err)
		}
		v.Authorized = ok
	case *rules.BalanceConstraint:
		balance, err := e.balances.Balance(ctx, v.Instrument)
		if err != nil {
			return fmt.Errorf("balance oracle: %w", err)
		}
		v.Observed = balance
	case *rules.Sweep:
		balance, err := e.balances.Balance(ctx, v.Destination)
		if err != nil {
			return fmt.Errorf("balance oracle: %w", err)
		}
		v.ObservedBalance = balance
	}
	return nil
}

// CompleteSpendRequest verifies the request against its delegation's committed
// fingerprint and, on success, executes the transfer, commits the ledger and
// emits an authorized receipt. A failed verification emits a rejected receipt
// and consumes the request; a failed transfer emits an aborted receipt and
// leaves both the delegation and the request untouched.
func (e *Engine) CompleteSpendRequest(ctx context.Context, requestID string) (*custody.Delegation, error) {
	start := time.Now()
	token, err := e.locks.Lock(ctx, requestID)
	if err != nil {
		return nil, err
	}
	defer e.unlock(ctx, requestID, token)

	r, err := e.store.GetRequest(ctx, requestID)
	if err != nil {
		return nil, err
	}
	d, err := e.store.GetDelegation(ctx, r.Delegation)
	if err != nil {
		return nil, err
	}

	if err := r.Verify(d.Fingerprint); err != nil {
		e.emitReceipt(requestID, d, r, receipt.OutcomeRejected, err.Error())
		e.telemetry.RecordDenied(ctx, attribute.String("delegation", d.ID))
		if delErr := e.store.DeleteRequest(ctx, requestID); delErr != nil {
			e.logger.Error("failed to consume rejected request", "request", requestID, "error", delErr)
		}
		e.logger.Info("spend request rejected", "request", requestID, "reason", err)
		return nil, err
	}

	// Adopt the request's ledger snapshot and record the transfer, but only
	// persist once the transfer itself has gone through. The delegation in the
	// store must never reflect a spend that did not happen.
	d.Ledger = r.Ledger
	if err := d.Ledger.Commit(&r.Context); err != nil {
		return nil, err
	}
	if err := e.executor.Transfer(ctx, r.Context.Source, r.Context.Destination, r.Context.Instrument, r.Context.Amount); err != nil {
		e.emitReceipt(requestID, d, r, receipt.OutcomeAborted, err.Error())
		return nil, fmt.Errorf("execute transfer: %w", err)
	}
	if err := e.store.PutDelegation(ctx, d); err != nil {
		return nil, err
	}
	e.emitReceipt(requestID, d, r, receipt.OutcomeAuthorized, "")
	e.telemetry.RecordAuthorized(ctx,
		attribute.String("delegation", d.ID),
		attribute.Int64("amount", int64(r.Context.Amount)))
	e.telemetry.RecordCompletion(ctx, time.Since(start))
	if err := e.store.DeleteRequest(ctx, requestID); err != nil {
		e.logger.Error("failed to consume completed request", "request", requestID, "error", err)
	}
	e.logger.Info("spend request completed",
		"request", requestID, "delegation", d.ID, "amount", r.Context.Amount)
	return d, nil
}

func (e *Engine) emitReceipt(requestID string, d *custody.Delegation, r *spend.Request, outcome receipt.Outcome, reason string) {
	if _, err := e.receipts.Append(receipt.Receipt{
		RequestID:   requestID,
		Delegation:  d.ID,
		Fingerprint: d.Fingerprint,
		Outcome:     outcome,
		Bitmask:     r.Bitmask,
		Amount:      r.Context.Amount,
		Instrument:  r.Context.Instrument,
		Reason:      reason,
	}); err != nil {
		e.logger.Error("failed to append receipt", "request", requestID, "error", err)
	}
}

func (e *Engine) unlock(ctx context.Context, requestID, token string) {
	if err := e.locks.Unlock(ctx, requestID, token); err != nil {
		e.logger.Error("failed to release request lock", "request", requestID, "error", err)
	}
}
