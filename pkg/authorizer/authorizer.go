// Package authorizer orchestrates a pull-payment authorization: permit
// verification, nonce burn, policy reservation, and proof admission, in
// that strict order, ending in an emitted authorization event.
//
// Step ordering is load-bearing. The nonce is burned before the proof is
// checked, so a permit+nonce pair that failed proof or policy checks can
// never be retried; each attempt consumes the single-use credential
// regardless of outcome. The sharp edge: a verifier outage after the
// burn permanently voids the permit, and the caller needs a freshly
// signed one.
package authorizer

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/google/uuid"
	"github.com/veilcash/pullauth/pkg/audit"
	"github.com/veilcash/pullauth/pkg/auth"
	"github.com/veilcash/pullauth/pkg/contracts"
	"github.com/veilcash/pullauth/pkg/nonce"
	"github.com/veilcash/pullauth/pkg/permit"
	"github.com/veilcash/pullauth/pkg/policy"
	"github.com/veilcash/pullauth/pkg/proofgate"
)

// Request carries everything a caller submits for one pull attempt.
type Request struct {
	Proof        []byte
	PublicInputs contracts.PublicInputs
	Permit       contracts.Permit
	Recipient    contracts.Address
	Amount       *big.Int
}

// OwnershipChecker reports whether signer is authorized over the funding
// note. The settlement layer injects the real implementation; the core
// itself does not model fund ownership.
type OwnershipChecker interface {
	Owns(ctx context.Context, signer contracts.Address, noteID contracts.NoteID) (bool, error)
}

// Authorizer is the pull-payment decision engine. Stateless across
// invocations except through the injected stores.
type Authorizer struct {
	permits  *permit.Verifier
	nonces   nonce.Ledger
	policies *policy.Keeper
	gate     *proofgate.Gate

	owners  OwnershipChecker   // optional; nil accepts any non-null signer
	relayer *contracts.Address // optional allow-list; nil means open
	emitter audit.Emitter
	logger  *slog.Logger
	clock   func() time.Time
}

// New wires an authorizer from its collaborators.
func New(permits *permit.Verifier, nonces nonce.Ledger, policies *policy.Keeper, gate *proofgate.Gate, emitter audit.Emitter) *Authorizer {
	return &Authorizer{
		permits:  permits,
		nonces:   nonces,
		policies: policies,
		gate:     gate,
		emitter:  emitter,
		logger:   slog.Default(),
		clock:    time.Now,
	}
}

// WithRelayer restricts submission to a single allow-listed caller.
func (a *Authorizer) WithRelayer(addr contracts.Address) *Authorizer {
	a.relayer = &addr
	return a
}

// WithOwnershipChecker installs the signer-to-note binding capability.
func (a *Authorizer) WithOwnershipChecker(oc OwnershipChecker) *Authorizer {
	a.owners = oc
	return a
}

// WithLogger overrides the operational logger.
func (a *Authorizer) WithLogger(l *slog.Logger) *Authorizer {
	a.logger = l
	return a
}

// WithClock overrides the clock for testing.
func (a *Authorizer) WithClock(clock func() time.Time) *Authorizer {
	a.clock = clock
	return a
}

// Take authorizes a pull to an arbitrary recipient.
func (a *Authorizer) Take(ctx context.Context, req Request) (*contracts.Decision, error) {
	return a.authorize(ctx, contracts.KindTake, req)
}

// RedeemToPublic authorizes a pull that exits to a public-settlement
// recipient. Orchestration is identical to Take; the kind tags the
// emitted event so downstream accounting can tell the flows apart.
func (a *Authorizer) RedeemToPublic(ctx context.Context, req Request) (*contracts.Decision, error) {
	return a.authorize(ctx, contracts.KindRedeem, req)
}

func (a *Authorizer) authorize(ctx context.Context, kind contracts.PullKind, req Request) (*contracts.Decision, error) {
	now := a.clock()

	if err := a.precheck(kind, req, now); err != nil {
		return a.rejected(ctx, kind, req, err)
	}

	// Caller gate: when an allow-list is configured, only that relayer
	// may submit. Open when unset.
	if a.relayer != nil {
		caller, err := auth.CallerFrom(ctx)
		if err != nil || caller.Address != *a.relayer {
			return a.rejected(ctx, kind, req, contracts.Reject(contracts.ReasonRelayerOnly,
				"caller is not the configured relayer"))
		}
	}

	signer, err := a.permits.Verify(&req.Permit, now)
	if err != nil {
		return a.rejected(ctx, kind, req, err)
	}
	if a.owners != nil {
		owns, err := a.owners.Owns(ctx, signer, req.Permit.NoteID)
		if err != nil {
			return nil, fmt.Errorf("authorizer: ownership check: %w", err)
		}
		if !owns {
			return a.rejected(ctx, kind, req, contracts.Reject(contracts.ReasonInvalidSignature,
				"signer %s is not authorized over note %s", signer.Hex(), req.Permit.NoteID.Hex()))
		}
	}

	// Nonce burn. Deliberately before policy and proof checks, and never
	// rolled back: a failed attempt must not be re-probeable with the
	// same single-use credential.
	if err := a.nonces.Consume(ctx, req.Permit.NoteID, req.Permit.Nonce); err != nil {
		return a.rejected(ctx, kind, req, err)
	}

	// Policy check and consume happen in one atomic reservation against
	// the merchant principal, not the recipient.
	if err := a.policies.Reserve(ctx, req.Permit.Principal, req.Amount); err != nil {
		return a.rejected(ctx, kind, req, err)
	}

	if err := a.gate.Admit(ctx, req.Proof, req.PublicInputs, req.Amount); err != nil {
		return a.rejected(ctx, kind, req, err)
	}

	ev := contracts.AuthorizationEvent{
		ID:        uuid.New().String(),
		Kind:      kind,
		Principal: req.Permit.Principal,
		Recipient: req.Recipient,
		NoteID:    req.Permit.NoteID,
		Amount:    new(big.Int).Set(req.Amount),
		Timestamp: now.UTC(),
	}
	if err := a.emitter.Emit(ctx, ev); err != nil {
		// The pull is authorized and its state committed, but without the
		// event there is no audit trail for settlement to act on.
		return nil, fmt.Errorf("authorizer: emit event: %w", err)
	}

	a.logger.Info("pull authorized",
		"request_id", auth.RequestIDFrom(ctx),
		"event_id", ev.ID,
		"kind", kind,
		"principal", ev.Principal.Hex(),
		"recipient", ev.Recipient.Hex(),
		"amount", ev.Amount.String(),
	)
	return &contracts.Decision{Approved: true, Event: &ev}, nil
}

// precheck runs the stateless shared preconditions.
func (a *Authorizer) precheck(kind contracts.PullKind, req Request, now time.Time) error {
	if req.Amount == nil || req.Amount.Sign() <= 0 {
		return contracts.Reject(contracts.ReasonOverMaxAmount, "amount must be positive")
	}
	if req.Permit.MaxAmount == nil || req.Amount.Cmp(req.Permit.MaxAmount) > 0 {
		return contracts.Reject(contracts.ReasonOverMaxAmount,
			"amount %s exceeds permit ceiling %s", req.Amount, req.Permit.MaxAmount)
	}
	if req.Recipient.IsZero() {
		return contracts.Reject(contracts.ReasonBadRecipient, "recipient is the null address")
	}
	if kind == contracts.KindTake && req.Permit.Principal.IsZero() {
		return contracts.Reject(contracts.ReasonBadRecipient, "permit principal is the null address")
	}
	if now.Unix() > req.Permit.Expiry {
		return contracts.Reject(contracts.ReasonPermitExpired,
			"permit expired at %d, now %d", req.Permit.Expiry, now.Unix())
	}
	return nil
}

// rejected turns a rejection into a terminal decision. Infrastructure
// errors pass through untouched so callers can distinguish them from
// verdicts.
func (a *Authorizer) rejected(ctx context.Context, kind contracts.PullKind, req Request, err error) (*contracts.Decision, error) {
	code := contracts.CodeOf(err)
	if code == "" {
		return nil, err
	}
	a.logger.Info("pull rejected",
		"request_id", auth.RequestIDFrom(ctx),
		"kind", kind,
		"reason", string(code),
		"principal", req.Permit.Principal.Hex(),
		"detail", err.Error(),
	)
	return &contracts.Decision{Approved: false, Reason: code}, err
}
