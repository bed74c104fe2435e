// Package permit implements the structured-signing scheme for off-chain
// spending permits: a versioned, domain-separated digest over the permit
// fields, signed with Ed25519. Permits signed under one domain are
// rejected under any other, which prevents cross-application replay.
package permit

import (
	"encoding/binary"
	"math/big"

	"github.com/veilcash/pullauth/pkg/contracts"
	"golang.org/x/crypto/sha3"
)

// SigningDomain scopes permit digests to one deployment of one
// application. Name and Version are free-form tags; ChainID pins the
// network the permits settle on.
type SigningDomain struct {
	Name    string `yaml:"name" json:"name"`
	Version string `yaml:"version" json:"version"`
	ChainID uint64 `yaml:"chain_id" json:"chain_id"`
}

var (
	domainTypeHash = keccak([]byte("SigningDomain(string name,string version,uint64 chainId)"))
	permitTypeHash = keccak([]byte("Permit(bytes32 noteId,address principal,uint256 maxAmount,uint64 expiry,uint64 nonce)"))
)

// Separator returns the 32-byte domain separator.
func (d SigningDomain) Separator() [32]byte {
	return keccak(
		domainTypeHash[:],
		keccakb([]byte(d.Name)),
		keccakb([]byte(d.Version)),
		uint64Word(d.ChainID),
	)
}

// Digest computes the signing digest for a permit under this domain.
// The signature covers every permit field except the signature itself.
func (d SigningDomain) Digest(p *contracts.Permit) [32]byte {
	structHash := keccak(
		permitTypeHash[:],
		p.NoteID[:],
		addressWord(p.Principal),
		amountWord(p.MaxAmount),
		uint64Word(uint64(p.Expiry)),
		uint64Word(p.Nonce),
	)
	sep := d.Separator()
	return keccak([]byte{0x19, 0x01}, sep[:], structHash[:])
}

func keccak(chunks ...[]byte) [32]byte {
	h := sha3.NewLegacyKeccak256()
	for _, c := range chunks {
		h.Write(c)
	}
	var out [32]byte
	h.Sum(out[:0])
	return out
}

func keccakb(b []byte) []byte {
	h := keccak(b)
	return h[:]
}

// uint64Word encodes v as a 32-byte big-endian word.
func uint64Word(v uint64) []byte {
	var w [32]byte
	binary.BigEndian.PutUint64(w[24:], v)
	return w[:]
}

// addressWord left-pads a 20-byte address into a 32-byte word.
func addressWord(a contracts.Address) []byte {
	var w [32]byte
	copy(w[12:], a[:])
	return w[:]
}

// amountWord encodes a non-negative amount into a 32-byte word. Nil is
// treated as zero.
func amountWord(v *big.Int) []byte {
	var w [32]byte
	if v != nil {
		v.FillBytes(w[:])
	}
	return w[:]
}
