package audit

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/gowebpki/jcs"
	"github.com/veilcash/pullauth/pkg/contracts"
)

// ChainEntry is an immutable, hash-chained record of one emitted event.
// ContentHash covers the canonical (RFC 8785) event JSON plus the
// previous head, so reordering or rewriting any entry breaks the chain.
type ChainEntry struct {
	Sequence    uint64                      `json:"sequence"`
	Event       contracts.AuthorizationEvent `json:"event"`
	ContentHash string                      `json:"content_hash"`
	PrevHash    string                      `json:"prev_hash"`
	RecordedAt  time.Time                   `json:"recorded_at"`
}

// Chain is an append-only, hash-chained event log. It implements
// Emitter so it can sit behind a MultiEmitter next to the JSON sink.
type Chain struct {
	mu       sync.RWMutex
	entries  []ChainEntry
	headHash string
	clock    func() time.Time
}

// NewChain creates an empty chain.
func NewChain() *Chain {
	return &Chain{headHash: "genesis", clock: time.Now}
}

// WithClock overrides the clock for testing.
func (c *Chain) WithClock(clock func() time.Time) *Chain {
	c.clock = clock
	return c
}

// Emit appends the event to the chain.
func (c *Chain) Emit(ctx context.Context, ev contracts.AuthorizationEvent) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	hash, err := entryHash(ev, c.headHash)
	if err != nil {
		return err
	}
	entry := ChainEntry{
		Sequence:    uint64(len(c.entries)) + 1,
		Event:       ev,
		ContentHash: hash,
		PrevHash:    c.headHash,
		RecordedAt:  c.clock().UTC(),
	}
	c.entries = append(c.entries, entry)
	c.headHash = hash
	return nil
}

// Entries returns a snapshot of the chain.
func (c *Chain) Entries() []ChainEntry {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]ChainEntry, len(c.entries))
	copy(out, c.entries)
	return out
}

// Verify walks the chain and reports the first break, if any.
func (c *Chain) Verify() error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	prev := "genesis"
	for i, entry := range c.entries {
		if entry.PrevHash != prev {
			return fmt.Errorf("audit chain: entry %d prev hash mismatch", i+1)
		}
		hash, err := entryHash(entry.Event, entry.PrevHash)
		if err != nil {
			return err
		}
		if hash != entry.ContentHash {
			return fmt.Errorf("audit chain: entry %d content hash mismatch", i+1)
		}
		prev = entry.ContentHash
	}
	return nil
}

func entryHash(ev contracts.AuthorizationEvent, prevHash string) (string, error) {
	raw, err := json.Marshal(ev)
	if err != nil {
		return "", fmt.Errorf("audit chain: marshal event: %w", err)
	}
	canonical, err := jcs.Transform(raw)
	if err != nil {
		return "", fmt.Errorf("audit chain: canonicalize event: %w", err)
	}
	h := sha256.New()
	h.Write([]byte(prevHash))
	h.Write(canonical)
	return "sha256:" + hex.EncodeToString(h.Sum(nil)), nil
}
