// Package spend implements the transfer-authorization core: the hash-chain
// commitment over an ordered rule list, the bounded rolling-window spend
// ledger, and the multi-step spend-request state machine that gates a
// transfer on a boolean policy tree of rule outcomes.
package spend

import (
	"encoding/hex"
	"fmt"
)

// ID is a 32-byte identity: a funding instrument, a caller, a signer or a
// destination. The zero value is the blank sentinel.
type ID [32]byte

// ParseID parses a 64-character hex string into an ID.
func ParseID(s string) (ID, error) {
	var id ID
	raw, err := hex.DecodeString(s)
	if err != nil {
		return ID{}, fmt.Errorf("parse id: %w", err)
	}
	if len(raw) != len(id) {
		return ID{}, fmt.Errorf("parse id: want %d bytes, got %d", len(id), len(raw))
	}
	copy(id[:], raw)
	return id, nil
}

// IsZero reports whether the ID is the blank sentinel.
func (id ID) IsZero() bool { return id == ID{} }

func (id ID) String() string { return hex.EncodeToString(id[:]) }

// MarshalText encodes the ID as hex for JSON and SQL round trips.
func (id ID) MarshalText() ([]byte, error) {
	return []byte(id.String()), nil
}

func (id *ID) UnmarshalText(text []byte) error {
	parsed, err := ParseID(string(text))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

// Fingerprint is the 32-byte commitment binding an ordered rule list.
type Fingerprint [32]byte

// ZeroFingerprint is the seed of every hash chain.
var ZeroFingerprint = Fingerprint{}

func (f Fingerprint) String() string { return hex.EncodeToString(f[:]) }

func (f Fingerprint) MarshalText() ([]byte, error) {
	return []byte(f.String()), nil
}

func (f *Fingerprint) UnmarshalText(text []byte) error {
	raw, err := hex.DecodeString(string(text))
	if err != nil {
		return fmt.Errorf("parse fingerprint: %w", err)
	}
	if len(raw) != len(f) {
		return fmt.Errorf("parse fingerprint: want %d bytes, got %d", len(f), len(raw))
	}
	copy(f[:], raw)
	return nil
}
