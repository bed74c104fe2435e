package permit

import (
	"crypto/ed25519"
	"crypto/rand"
	"fmt"

	"github.com/veilcash/pullauth/pkg/contracts"
)

// Signer produces permits for a funding-source owner. Used by setup
// tooling and tests; the core itself only verifies.
type Signer struct {
	priv   ed25519.PrivateKey
	pub    ed25519.PublicKey
	domain SigningDomain
}

// NewSigner generates a fresh keypair bound to the given domain.
func NewSigner(domain SigningDomain) (*Signer, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("key generation failed: %w", err)
	}
	return &Signer{priv: priv, pub: pub, domain: domain}, nil
}

// NewSignerFromKey wraps an existing private key.
func NewSignerFromKey(priv ed25519.PrivateKey, domain SigningDomain) *Signer {
	return &Signer{priv: priv, pub: priv.Public().(ed25519.PublicKey), domain: domain}
}

// Address returns the signer's account address.
func (s *Signer) Address() contracts.Address {
	return AddressOf(s.pub)
}

// Sign fills in the permit's signature over the domain-bound digest.
func (s *Signer) Sign(p *contracts.Permit) {
	digest := s.domain.Digest(p)
	sig := ed25519.Sign(s.priv, digest[:])
	p.Signature = append(append([]byte{}, s.pub...), sig...)
}
