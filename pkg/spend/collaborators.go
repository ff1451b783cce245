package spend

import (
	"context"
	"errors"
	"sync"
)

// BalanceOracle reports the current amount held by a funding instrument.
// Observed balances feed rule evaluation at call time and never enter the
// fingerprint.
type BalanceOracle interface {
	Balance(ctx context.Context, instrument ID) (uint64, error)
}

// TransferExecutor moves funds between instruments. It may only be invoked
// after a spend request's Verify succeeds.
type TransferExecutor interface {
	Transfer(ctx context.Context, source, destination, instrument ID, amount uint64) error
}

// SignerOracle reports whether the named identity authorized the current
// call, given whatever credential accompanied it.
type SignerOracle interface {
	Authorized(ctx context.Context, identity ID, credential string) (bool, error)
}

// ErrInsufficientBalance is returned by MemoryBank when a transfer overdraws
// its source.
var ErrInsufficientBalance = errors.New("spend: insufficient balance")

// MemoryBank is an in-memory BalanceOracle and TransferExecutor, keyed by
// instrument. Thread-safe via RWMutex.
type MemoryBank struct {
	mu       sync.RWMutex
	balances map[ID]uint64
}

func NewMemoryBank() *MemoryBank {
	return &MemoryBank{balances: make(map[ID]uint64)}
}

// Deposit credits an instrument, for seeding test and demo state.
func (b *MemoryBank) Deposit(instrument ID, amount uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.balances[instrument] += amount
}

func (b *MemoryBank) Balance(_ context.Context, instrument ID) (uint64, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.balances[instrument], nil
}

func (b *MemoryBank) Transfer(_ context.Context, source, destination, _ ID, amount uint64) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.balances[source] < amount {
		return ErrInsufficientBalance
	}
	b.balances[source] -= amount
	b.balances[destination] += amount
	return nil
}

// StaticSigners is a SignerOracle backed by a fixed credential table mapping
// bearer credentials to the identity they prove.
type StaticSigners struct {
	mu          sync.RWMutex
	credentials map[string]ID
}

func NewStaticSigners() *StaticSigners {
	return &StaticSigners{credentials: make(map[string]ID)}
}

// Grant registers a credential as proof of identity.
func (s *StaticSigners) Grant(credential string, identity ID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.credentials[credential] = identity
}

func (s *StaticSigners) Authorized(_ context.Context, identity ID, credential string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	proved, ok := s.credentials[credential]
	return ok && proved == identity, nil
}
