// Package proofgate admits or rejects zero-knowledge proofs against a
// pull request. The proof system itself is an opaque capability behind
// the Verifier interface; the gate validates the public output vector
// and maps verifier outages to a retryable failure.
package proofgate

import (
	"context"
	"errors"
	"math/big"
	"time"

	"github.com/veilcash/pullauth/pkg/contracts"
)

// Verifier is the external proof-verification capability: given proof
// bytes and the public input vector, report whether the proof is valid
// under a fixed, pre-provisioned verification key. Implementations may
// be swapped (real proving system vs. test stub) without touching the
// gate's control flow.
type Verifier interface {
	Verify(ctx context.Context, proof []byte, publicInputs contracts.PublicInputs) (bool, error)
}

// DefaultTimeout bounds a single verifier invocation.
const DefaultTimeout = 10 * time.Second

// Gate runs the ordered proof checks. Each is a hard gate; the first
// failure aborts.
type Gate struct {
	verifier Verifier
	timeout  time.Duration
}

// NewGate creates a gate over the given verifier.
func NewGate(verifier Verifier) *Gate {
	return &Gate{verifier: verifier, timeout: DefaultTimeout}
}

// WithTimeout overrides the per-verification timeout.
func (g *Gate) WithTimeout(d time.Duration) *Gate {
	g.timeout = d
	return g
}

// Admit validates the proof for a pull of expectedAmount. Checks run in
// order: vector arity, external verification, ext-data binding.
//
// expectedAmount is accepted but not yet bound against the proof's
// public amount (publicInputs[1]); the witness encodes the negative of
// the pull amount and a future revision should assert that algebraic
// correspondence here. Until then the binding is the caller's to audit.
func (g *Gate) Admit(ctx context.Context, proof []byte, publicInputs contracts.PublicInputs, expectedAmount *big.Int) error {
	if len(publicInputs) != contracts.NumPublicInputs {
		return contracts.Reject(contracts.ReasonMalformedPublicInputs,
			"got %d public inputs, want %d", len(publicInputs), contracts.NumPublicInputs)
	}
	for i, in := range publicInputs {
		if in == nil {
			return contracts.Reject(contracts.ReasonMalformedPublicInputs,
				"public input %d is missing", i)
		}
	}

	vctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()
	ok, err := g.verifier.Verify(vctx, proof, publicInputs)
	if err != nil {
		// Outage or timeout, not a verdict. Retryable only if the nonce
		// was not yet burned at failure time.
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			return contracts.RejectRetryable(contracts.ReasonVerifierUnavailable,
				"proof verifier timed out: %v", err)
		}
		return contracts.RejectRetryable(contracts.ReasonVerifierUnavailable,
			"proof verifier unreachable: %v", err)
	}
	if !ok {
		return contracts.Reject(contracts.ReasonInvalidProof, "proof rejected by verifier")
	}

	if publicInputs[contracts.InputExtDataHash].Sign() != 0 {
		// The precompute proof variant commits to no external execution
		// context; a non-zero binding hash means the proof was built for
		// a different flow.
		return contracts.Reject(contracts.ReasonExtDataHashMustBeZero,
			"ext data hash is %s, want 0", publicInputs[contracts.InputExtDataHash])
	}
	return nil
}
