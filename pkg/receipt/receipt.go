// Package receipt records the outcome of every completed or denied spend
// request in an append-only, hash-chained log. Each entry is content-hashed
// over its JCS-canonicalized JSON so two nodes serializing the same receipt
// agree on the hash.
package receipt

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gowebpki/jcs"

	"github.com/Mindburn-Labs/spendgate/pkg/spend"
)

// Outcome names how an authorization attempt ended.
type Outcome string

const (
	OutcomeAuthorized Outcome = "AUTHORIZED"
	OutcomeRejected   Outcome = "REJECTED"
	OutcomeAborted    Outcome = "ABORTED"
)

// Receipt is one audit record.
type Receipt struct {
	ID          string            `json:"id"`
	RequestID   string            `json:"request_id"`
	Delegation  string            `json:"delegation"`
	Fingerprint spend.Fingerprint `json:"fingerprint"`
	Outcome     Outcome           `json:"outcome"`
	Bitmask     uint64            `json:"bitmask"`
	Amount      uint64            `json:"amount"`
	Instrument  spend.ID          `json:"instrument"`
	Reason      string            `json:"reason,omitempty"`
	Timestamp   time.Time         `json:"timestamp"`
	ContentHash string            `json:"content_hash"`
	PrevHash    string            `json:"prev_hash"`
}

// Log is an append-only, hash-chained receipt log.
type Log struct {
	mu       sync.RWMutex
	receipts []Receipt
	headHash string
	clock    func() time.Time
}

// NewLog creates an empty log.
func NewLog() *Log {
	return &Log{headHash: "genesis", clock: time.Now}
}

// WithClock overrides the clock for testing.
func (l *Log) WithClock(clock func() time.Time) *Log {
	l.clock = clock
	return l
}

// Append records a receipt, chaining it to the current head.
func (l *Log) Append(r Receipt) (Receipt, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	r.ID = uuid.New().String()
	r.Timestamp = l.clock().UTC()
	r.PrevHash = l.headHash
	r.ContentHash = ""

	hash, err := contentHash(r)
	if err != nil {
		return Receipt{}, err
	}
	r.ContentHash = hash

	l.receipts = append(l.receipts, r)
	l.headHash = hash
	return r, nil
}

func contentHash(r Receipt) (string, error) {
	raw, err := json.Marshal(r)
	if err != nil {
		return "", fmt.Errorf("marshal receipt: %w", err)
	}
	canonical, err := jcs.Transform(raw)
	if err != nil {
		return "", fmt.Errorf("canonicalize receipt: %w", err)
	}
	h := sha256.Sum256(canonical)
	return "sha256:" + hex.EncodeToString(h[:]), nil
}

// Head returns the current head hash.
func (l *Log) Head() string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.headHash
}

// Length returns the number of receipts.
func (l *Log) Length() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.receipts)
}

// List returns a copy of all receipts in append order.
func (l *Log) List() []Receipt {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]Receipt, len(l.receipts))
	copy(out, l.receipts)
	return out
}

// Verify walks the chain and recomputes every content hash. It returns false
// with a description of the first break it finds.
func (l *Log) Verify() (bool, string) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	prev := "genesis"
	for i, r := range l.receipts {
		if r.PrevHash != prev {
			return false, fmt.Sprintf("chain broken at receipt %d: expected prev %s, got %s", i, prev, r.PrevHash)
		}
		stored := r.ContentHash
		r.ContentHash = ""
		computed, err := contentHash(r)
		if err != nil {
			return false, fmt.Sprintf("failed to hash receipt %d", i)
		}
		if computed != stored {
			return false, fmt.Sprintf("hash mismatch at receipt %d", i)
		}
		prev = stored
	}
	return true, "chain verified"
}
