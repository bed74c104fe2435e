package contracts

import (
	"errors"
	"fmt"
)

// ReasonCode is a machine-readable rejection reason. Every failed check
// aborts with a specific code; callers never see a generic failure.
type ReasonCode string

const (
	ReasonPermitExpired          ReasonCode = "PERMIT_EXPIRED"
	ReasonInvalidSignature       ReasonCode = "INVALID_SIGNATURE"
	ReasonNonceAlreadyUsed       ReasonCode = "NONCE_ALREADY_USED"
	ReasonPolicyDisabled         ReasonCode = "POLICY_DISABLED"
	ReasonMaxTxExceeded          ReasonCode = "MAX_TX_EXCEEDED"
	ReasonDailyLimitExceeded     ReasonCode = "DAILY_LIMIT_EXCEEDED"
	ReasonMalformedPublicInputs  ReasonCode = "MALFORMED_PUBLIC_INPUTS"
	ReasonInvalidProof           ReasonCode = "INVALID_PROOF"
	ReasonExtDataHashMustBeZero  ReasonCode = "EXT_DATA_HASH_MUST_BE_ZERO"
	ReasonBadRecipient           ReasonCode = "BAD_RECIPIENT"
	ReasonOverMaxAmount          ReasonCode = "OVER_MAX_AMOUNT"
	ReasonRelayerOnly            ReasonCode = "RELAYER_ONLY"
	ReasonVerifierUnavailable    ReasonCode = "PROOF_VERIFICATION_UNAVAILABLE"
)

// Rejection is a terminal (or, for PROOF_VERIFICATION_UNAVAILABLE,
// retryable) authorization failure carrying its reason code.
type Rejection struct {
	Code      ReasonCode
	Detail    string
	retryable bool
}

// Reject builds a terminal rejection with the given code.
func Reject(code ReasonCode, format string, args ...any) *Rejection {
	return &Rejection{Code: code, Detail: fmt.Sprintf(format, args...)}
}

// RejectRetryable builds a retryable rejection. The caller may resubmit
// the same request, subject to nonce state at failure time.
func RejectRetryable(code ReasonCode, format string, args ...any) *Rejection {
	return &Rejection{Code: code, Detail: fmt.Sprintf(format, args...), retryable: true}
}

func (r *Rejection) Error() string {
	if r.Detail == "" {
		return string(r.Code)
	}
	return fmt.Sprintf("%s: %s", r.Code, r.Detail)
}

// Retryable reports whether the same submission may be retried.
func (r *Rejection) Retryable() bool {
	return r.retryable
}

// CodeOf extracts the reason code from an error chain. Returns the empty
// code for non-rejection errors (infrastructure failures).
func CodeOf(err error) ReasonCode {
	var rej *Rejection
	if errors.As(err, &rej) {
		return rej.Code
	}
	return ""
}

// IsRetryable reports whether err is a retryable rejection.
func IsRetryable(err error) bool {
	var rej *Rejection
	return errors.As(err, &rej) && rej.Retryable()
}
