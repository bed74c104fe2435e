// Package nonce provides the replay-prevention ledger. A composite
// (noteID, nonce) key is consumed at most once, ever; consumption is
// atomic relative to concurrent submissions of the same key.
package nonce

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"sync"

	"github.com/veilcash/pullauth/pkg/contracts"
)

// Ledger marks (noteID, nonce) pairs as consumed. Consume fails with
// NONCE_ALREADY_USED if the pair was ever consumed before, and otherwise
// marks it consumed. Burned keys are never released.
type Ledger interface {
	Consume(ctx context.Context, noteID contracts.NoteID, nonce uint64) error
}

// Key derives the ledger key: SHA-256 over the 32-byte note ID followed
// by the big-endian nonce. Distinct pairs cannot collide short of a hash
// collision.
func Key(noteID contracts.NoteID, nonce uint64) string {
	var buf [40]byte
	copy(buf[:32], noteID[:])
	binary.BigEndian.PutUint64(buf[32:], nonce)
	sum := sha256.Sum256(buf[:])
	return hex.EncodeToString(sum[:])
}

func alreadyUsed(noteID contracts.NoteID, nonce uint64) error {
	return contracts.Reject(contracts.ReasonNonceAlreadyUsed,
		"nonce %d already consumed for note %s", nonce, noteID.Hex())
}

// MemoryLedger is an in-process Ledger. Thread-safe.
type MemoryLedger struct {
	mu       sync.Mutex
	consumed map[string]struct{}
}

// NewMemoryLedger creates an empty in-memory ledger.
func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{consumed: make(map[string]struct{})}
}

// Consume implements Ledger. Check-and-set happens under one lock.
func (l *MemoryLedger) Consume(ctx context.Context, noteID contracts.NoteID, nonce uint64) error {
	key := Key(noteID, nonce)
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, used := l.consumed[key]; used {
		return alreadyUsed(noteID, nonce)
	}
	l.consumed[key] = struct{}{}
	return nil
}
