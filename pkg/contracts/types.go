// Package contracts defines the shared domain types of the pull-payment
// authorization core: permits, proof public inputs, spend policies, and the
// authorization decision/event vocabulary that every other package speaks.
package contracts

import (
	"encoding/hex"
	"fmt"
	"math/big"
	"strings"
	"time"
)

// Address is a 20-byte account identifier, derived from the signer's
// public key the same way throughout the system.
type Address [20]byte

// ZeroAddress is the null address. Pulls to it are rejected.
var ZeroAddress Address

// IsZero reports whether the address is the null address.
func (a Address) IsZero() bool {
	return a == ZeroAddress
}

// Hex returns the 0x-prefixed lowercase hex form.
func (a Address) Hex() string {
	return "0x" + hex.EncodeToString(a[:])
}

// ParseAddress parses a 0x-prefixed or bare 40-char hex address.
func ParseAddress(s string) (Address, error) {
	var a Address
	s = strings.TrimPrefix(strings.ToLower(s), "0x")
	raw, err := hex.DecodeString(s)
	if err != nil {
		return a, fmt.Errorf("parse address: %w", err)
	}
	if len(raw) != len(a) {
		return a, fmt.Errorf("parse address: got %d bytes, want %d", len(raw), len(a))
	}
	copy(a[:], raw)
	return a, nil
}

// NoteID is the opaque 32-byte identifier of a funding source.
type NoteID [32]byte

// Hex returns the 0x-prefixed lowercase hex form.
func (n NoteID) Hex() string {
	return "0x" + hex.EncodeToString(n[:])
}

// ParseNoteID parses a 0x-prefixed or bare 64-char hex note identifier.
func ParseNoteID(s string) (NoteID, error) {
	var n NoteID
	s = strings.TrimPrefix(strings.ToLower(s), "0x")
	raw, err := hex.DecodeString(s)
	if err != nil {
		return n, fmt.Errorf("parse note id: %w", err)
	}
	if len(raw) != len(n) {
		return n, fmt.Errorf("parse note id: got %d bytes, want %d", len(raw), len(n))
	}
	copy(n[:], raw)
	return n, nil
}

// Permit is a signed, off-chain spending authorization. A (NoteID, Nonce)
// pair may authorize at most one pull, ever; the nonce is burned on first
// use regardless of whether later checks succeed.
type Permit struct {
	NoteID    NoteID   `json:"note_id"`
	Principal Address  `json:"principal"`
	MaxAmount *big.Int `json:"max_amount"`
	Expiry    int64    `json:"expiry"` // unix seconds, permit void after this
	Nonce     uint64   `json:"nonce"`
	Signature []byte   `json:"signature"`
}

// Public input vector positions. The proof commits to exactly four values.
const (
	InputRoot         = 0 // commitment-tree root the proof is anchored to
	InputPublicAmount = 1 // amount encoded in the witness (negative of the pull)
	InputExtDataHash  = 2 // external-data binding; must be zero in this variant
	InputNullifier    = 3 // settlement-layer double-spend tag
)

// NumPublicInputs is the required arity of the public input vector.
const NumPublicInputs = 4

// PublicInputs is the ordered public output vector of a proof. Arity is
// validated by the proof gate before any element is interpreted.
type PublicInputs []*big.Int

// PullKind distinguishes the two pull flavors for downstream accounting.
type PullKind string

const (
	// KindTake is a pull to an arbitrary recipient address.
	KindTake PullKind = "TAKE"
	// KindRedeem is a pull that exits to a public-settlement recipient.
	KindRedeem PullKind = "REDEEM"
)

// Policy is a principal's spend-limit configuration. A zero limit is a
// valid "block everything" policy.
type Policy struct {
	Principal  Address   `json:"principal"`
	MaxPerTx   *big.Int  `json:"max_per_tx"`
	DailyLimit *big.Int  `json:"daily_limit"`
	Enabled    bool      `json:"enabled"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Usage is a principal's cumulative spend for the day it accrued under.
// When Day differs from the current day identifier, the spent amount is
// treated as zero before any limit check (lazy rollover).
type Usage struct {
	Principal Address  `json:"principal"`
	Day       string   `json:"day"` // UTC calendar day, e.g. "2026-08-26"
	Spent     *big.Int `json:"spent"`
}

// AuthorizationEvent is the audit record emitted on every approved pull.
// It is the sole trail external settlement and observability subscribe to.
type AuthorizationEvent struct {
	ID        string    `json:"id"`
	Kind      PullKind  `json:"kind"`
	Principal Address   `json:"principal"`
	Recipient Address   `json:"recipient"`
	NoteID    NoteID    `json:"note_id"`
	Amount    *big.Int  `json:"amount"`
	Timestamp time.Time `json:"timestamp"`
}

// Decision is the outcome of an authorization attempt.
type Decision struct {
	Approved bool                `json:"approved"`
	Reason   ReasonCode          `json:"reason,omitempty"`
	Event    *AuthorizationEvent `json:"event,omitempty"`
}
