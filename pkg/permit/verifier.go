package permit

import (
	"crypto/ed25519"
	"time"

	"github.com/veilcash/pullauth/pkg/contracts"
)

// Signature layout: 32-byte Ed25519 public key followed by the 64-byte
// detached signature over the domain-bound digest. The signer address is
// recovered from the embedded public key.
const (
	sigPubKeyOffset = 0
	sigBytesOffset  = ed25519.PublicKeySize
	signatureLen    = ed25519.PublicKeySize + ed25519.SignatureSize
)

// Verifier validates permits under a fixed signing domain.
type Verifier struct {
	domain SigningDomain
}

// NewVerifier creates a verifier bound to the given domain.
func NewVerifier(domain SigningDomain) *Verifier {
	return &Verifier{domain: domain}
}

// Domain returns the signing domain this verifier is bound to.
func (v *Verifier) Domain() SigningDomain {
	return v.domain
}

// Verify checks the permit's expiry and signature and returns the
// recovered signer address. It does not check that the signer is
// authorized over the funding note; that binding is the settlement
// layer's concern and is injected into the authorizer separately.
func (v *Verifier) Verify(p *contracts.Permit, now time.Time) (contracts.Address, error) {
	if now.Unix() > p.Expiry {
		return contracts.ZeroAddress, contracts.Reject(contracts.ReasonPermitExpired,
			"permit expired at %d, now %d", p.Expiry, now.Unix())
	}
	if len(p.Signature) != signatureLen {
		return contracts.ZeroAddress, contracts.Reject(contracts.ReasonInvalidSignature,
			"signature is %d bytes, want %d", len(p.Signature), signatureLen)
	}

	pub := ed25519.PublicKey(p.Signature[sigPubKeyOffset:sigBytesOffset])
	sig := p.Signature[sigBytesOffset:]
	digest := v.domain.Digest(p)
	if !ed25519.Verify(pub, digest[:], sig) {
		return contracts.ZeroAddress, contracts.Reject(contracts.ReasonInvalidSignature,
			"signature does not verify under domain %q v%s", v.domain.Name, v.domain.Version)
	}

	signer := AddressOf(pub)
	if signer.IsZero() {
		return contracts.ZeroAddress, contracts.Reject(contracts.ReasonInvalidSignature,
			"recovered signer is the null address")
	}
	return signer, nil
}

// AddressOf derives the account address for an Ed25519 public key: the
// last 20 bytes of its keccak-256 hash.
func AddressOf(pub ed25519.PublicKey) contracts.Address {
	var a contracts.Address
	h := keccak(pub)
	copy(a[:], h[12:])
	return a
}
