// Package groth16 adapts a gnark Groth16 verifier to the proof-gate
// capability. The verification key is fixed at construction; swapping
// keys means constructing a new verifier, not mutating this one.
package groth16

import (
	"bytes"
	"context"
	"fmt"
	"math/big"
	"os"

	"github.com/consensys/gnark-crypto/ecc"
	"github.com/consensys/gnark/backend/groth16"
	"github.com/consensys/gnark/backend/witness"
	"github.com/veilcash/pullauth/pkg/contracts"
)

// Verifier verifies Groth16 proofs over BN254 under one verification key.
type Verifier struct {
	vk groth16.VerifyingKey
}

// NewVerifier parses a serialized verification key.
func NewVerifier(vkBytes []byte) (*Verifier, error) {
	vk := groth16.NewVerifyingKey(ecc.BN254)
	if _, err := vk.ReadFrom(bytes.NewReader(vkBytes)); err != nil {
		return nil, fmt.Errorf("groth16: decode verifying key: %w", err)
	}
	return &Verifier{vk: vk}, nil
}

// NewVerifierFromFile loads the verification key from disk.
func NewVerifierFromFile(path string) (*Verifier, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("groth16: read verifying key: %w", err)
	}
	return NewVerifier(raw)
}

// Verify implements proofgate.Verifier. A proof that fails to
// deserialize or fails pairing checks yields (false, nil); errors are
// reserved for infrastructure failures.
func (v *Verifier) Verify(ctx context.Context, proofBytes []byte, publicInputs contracts.PublicInputs) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	proof := groth16.NewProof(ecc.BN254)
	if _, err := proof.ReadFrom(bytes.NewReader(proofBytes)); err != nil {
		// Bytes that do not deserialize can never verify. A verdict, not
		// an outage.
		return false, nil
	}

	w, err := witness.New(ecc.BN254.ScalarField())
	if err != nil {
		return false, fmt.Errorf("groth16: new witness: %w", err)
	}
	values := make(chan any, len(publicInputs))
	for _, in := range publicInputs {
		values <- new(big.Int).Set(in)
	}
	close(values)
	if err := w.Fill(len(publicInputs), 0, values); err != nil {
		return false, fmt.Errorf("groth16: fill public witness: %w", err)
	}

	if err := groth16.Verify(proof, v.vk, w); err != nil {
		// gnark reports an invalid proof as an error; that is a verdict,
		// not an outage.
		return false, nil
	}
	return true, nil
}
