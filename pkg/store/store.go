// Package store persists the state objects the multi-step authorization
// workflow advances between calls: controllers, rule-set builders,
// delegations and spend requests. Backends: in-memory, SQLite and Postgres,
// plus a Redis-backed per-request lock.
package store

import (
	"context"
	"errors"

	"github.com/Mindburn-Labs/spendgate/pkg/custody"
	"github.com/Mindburn-Labs/spendgate/pkg/spend"
)

// ErrNotFound is returned when a record does not exist.
var ErrNotFound = errors.New("store: not found")

// Store is the persistence boundary of the engine. Each workflow step loads
// its state object, applies one transition and saves it back; the engine's
// per-request lock guarantees no two steps interleave.
type Store interface {
	PutController(ctx context.Context, c *custody.Controller) error
	GetController(ctx context.Context, id string) (*custody.Controller, error)

	PutBuilder(ctx context.Context, id string, b *spend.RuleSetBuilder) error
	GetBuilder(ctx context.Context, id string) (*spend.RuleSetBuilder, error)
	DeleteBuilder(ctx context.Context, id string) error

	PutDelegation(ctx context.Context, d *custody.Delegation) error
	GetDelegation(ctx context.Context, id string) (*custody.Delegation, error)

	PutRequest(ctx context.Context, id string, r *spend.Request) error
	GetRequest(ctx context.Context, id string) (*spend.Request, error)
	DeleteRequest(ctx context.Context, id string) error
}

// RequestLock serializes the processing steps of one spend request. Unlock
// must be called with the token Lock returned.
type RequestLock interface {
	Lock(ctx context.Context, requestID string) (token string, err error)
	Unlock(ctx context.Context, requestID, token string) error
}

// ErrLockHeld is returned when another step holds the request's lock.
var ErrLockHeld = errors.New("store: request lock held")
