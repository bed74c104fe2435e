package permit_test

import (
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/veilcash/pullauth/pkg/contracts"
	"github.com/veilcash/pullauth/pkg/permit"
)

var testDomain = permit.SigningDomain{Name: "veilcash-pull", Version: "1", ChainID: 1}

func newSignedPermit(t *testing.T, s *permit.Signer, expiry time.Time) *contracts.Permit {
	t.Helper()
	p := &contracts.Permit{
		NoteID:    contracts.NoteID{0xAA, 0x01},
		Principal: contracts.Address{0x11},
		MaxAmount: big.NewInt(1000),
		Expiry:    expiry.Unix(),
		Nonce:     7,
	}
	s.Sign(p)
	return p
}

func TestVerifyRoundTrip(t *testing.T) {
	signer, err := permit.NewSigner(testDomain)
	require.NoError(t, err)

	now := time.Now().UTC()
	p := newSignedPermit(t, signer, now.Add(time.Hour))

	v := permit.NewVerifier(testDomain)
	recovered, err := v.Verify(p, now)
	require.NoError(t, err)
	assert.Equal(t, signer.Address(), recovered)
	assert.False(t, recovered.IsZero())
}

func TestVerifyExpired(t *testing.T) {
	signer, err := permit.NewSigner(testDomain)
	require.NoError(t, err)

	now := time.Now().UTC()
	p := newSignedPermit(t, signer, now.Add(-time.Second))

	v := permit.NewVerifier(testDomain)
	_, err = v.Verify(p, now)
	require.Error(t, err)
	assert.Equal(t, contracts.ReasonPermitExpired, contracts.CodeOf(err))
}

func TestVerifyExpiryBoundaryInclusive(t *testing.T) {
	// A permit is valid while now <= expiry.
	signer, err := permit.NewSigner(testDomain)
	require.NoError(t, err)

	now := time.Unix(1_700_000_000, 0)
	p := newSignedPermit(t, signer, now)

	v := permit.NewVerifier(testDomain)
	_, err = v.Verify(p, now)
	assert.NoError(t, err)
}

func TestVerifyRejectsWrongDomain(t *testing.T) {
	signer, err := permit.NewSigner(testDomain)
	require.NoError(t, err)

	now := time.Now().UTC()
	p := newSignedPermit(t, signer, now.Add(time.Hour))

	cases := []permit.SigningDomain{
		{Name: "other-app", Version: "1", ChainID: 1},
		{Name: "veilcash-pull", Version: "2", ChainID: 1},
		{Name: "veilcash-pull", Version: "1", ChainID: 5},
	}
	for _, d := range cases {
		v := permit.NewVerifier(d)
		_, err := v.Verify(p, now)
		require.Error(t, err)
		assert.Equal(t, contracts.ReasonInvalidSignature, contracts.CodeOf(err))
	}
}

func TestVerifyRejectsTamperedFields(t *testing.T) {
	signer, err := permit.NewSigner(testDomain)
	require.NoError(t, err)

	now := time.Now().UTC()
	v := permit.NewVerifier(testDomain)

	tamper := []struct {
		name string
		mut  func(p *contracts.Permit)
	}{
		{"note id", func(p *contracts.Permit) { p.NoteID[0] ^= 0xFF }},
		{"principal", func(p *contracts.Permit) { p.Principal[0] ^= 0xFF }},
		{"max amount", func(p *contracts.Permit) { p.MaxAmount = big.NewInt(999999) }},
		{"expiry", func(p *contracts.Permit) { p.Expiry++ }},
		{"nonce", func(p *contracts.Permit) { p.Nonce++ }},
	}
	for _, tc := range tamper {
		t.Run(tc.name, func(t *testing.T) {
			p := newSignedPermit(t, signer, now.Add(time.Hour))
			tc.mut(p)
			_, err := v.Verify(p, now)
			require.Error(t, err)
			assert.Equal(t, contracts.ReasonInvalidSignature, contracts.CodeOf(err))
		})
	}
}

func TestVerifyRejectsMalformedSignature(t *testing.T) {
	v := permit.NewVerifier(testDomain)
	now := time.Now().UTC()
	p := &contracts.Permit{
		MaxAmount: big.NewInt(1),
		Expiry:    now.Add(time.Hour).Unix(),
		Signature: []byte{0x01, 0x02},
	}
	_, err := v.Verify(p, now)
	require.Error(t, err)
	assert.Equal(t, contracts.ReasonInvalidSignature, contracts.CodeOf(err))
}

func TestDomainSeparatorsDiffer(t *testing.T) {
	a := permit.SigningDomain{Name: "a", Version: "1", ChainID: 1}.Separator()
	b := permit.SigningDomain{Name: "a", Version: "1", ChainID: 2}.Separator()
	assert.NotEqual(t, a, b)
}
