// Package api — HTTP surface for the pull-payment authorization core,
// with RFC 7807 Problem Detail error responses.
package api

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/veilcash/pullauth/pkg/contracts"
)

// ProblemDetail implements RFC 7807 (Problem Details for HTTP APIs).
// All API error responses use this format. Reason carries the
// machine-readable rejection code when the failure is a verdict.
type ProblemDetail struct {
	Type   string `json:"type"`
	Title  string `json:"title"`
	Status int    `json:"status"`
	Detail string `json:"detail,omitempty"`
	Reason string `json:"reason,omitempty"`
}

// Error implements the error interface.
func (p *ProblemDetail) Error() string {
	return fmt.Sprintf("%s: %s", p.Title, p.Detail)
}

// WriteError writes an RFC 7807 Problem Detail JSON response.
func WriteError(w http.ResponseWriter, status int, title, detail string) {
	writeProblem(w, &ProblemDetail{
		Type:   fmt.Sprintf("https://veilcash.dev/errors/%d", status),
		Title:  title,
		Status: status,
		Detail: detail,
	})
}

func writeProblem(w http.ResponseWriter, p *ProblemDetail) {
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(p.Status)
	_ = json.NewEncoder(w).Encode(p)
}

// WriteBadRequest writes a 400 error response.
func WriteBadRequest(w http.ResponseWriter, detail string) {
	WriteError(w, http.StatusBadRequest, "Bad Request", detail)
}

// WriteUnauthorized writes a 401 error response.
func WriteUnauthorized(w http.ResponseWriter, detail string) {
	if detail == "" {
		detail = "Authentication required"
	}
	WriteError(w, http.StatusUnauthorized, "Unauthorized", detail)
}

// WriteForbidden writes a 403 error response.
func WriteForbidden(w http.ResponseWriter, detail string) {
	if detail == "" {
		detail = "Insufficient permissions"
	}
	WriteError(w, http.StatusForbidden, "Forbidden", detail)
}

// WriteTooManyRequests writes a 429 error response with Retry-After.
func WriteTooManyRequests(w http.ResponseWriter, retryAfterSecs int) {
	w.Header().Set("Retry-After", fmt.Sprintf("%d", retryAfterSecs))
	WriteError(w, http.StatusTooManyRequests, "Too Many Requests", "Rate limit exceeded. Retry after the specified interval.")
}

// WriteInternal writes a 500 error response. The err is logged but never
// exposed to the client.
func WriteInternal(w http.ResponseWriter, err error) {
	slog.Error("internal server error", "error", err)
	WriteError(w, http.StatusInternalServerError, "Internal Server Error", "An unexpected error occurred. Please try again later.")
}

// WriteRejection maps an authorization rejection to a problem detail
// carrying the reason code, so clients can tell "get a fresh permit"
// apart from "you are over your limit today".
func WriteRejection(w http.ResponseWriter, rej *contracts.Rejection) {
	status := statusFor(rej.Code)
	if rej.Retryable() {
		w.Header().Set("Retry-After", "5")
	}
	writeProblem(w, &ProblemDetail{
		Type:   fmt.Sprintf("https://veilcash.dev/errors/%s", rej.Code),
		Title:  http.StatusText(status),
		Status: status,
		Detail: rej.Detail,
		Reason: string(rej.Code),
	})
}

func statusFor(code contracts.ReasonCode) int {
	switch code {
	case contracts.ReasonRelayerOnly:
		return http.StatusForbidden
	case contracts.ReasonNonceAlreadyUsed:
		return http.StatusConflict
	case contracts.ReasonVerifierUnavailable:
		return http.StatusServiceUnavailable
	case contracts.ReasonMalformedPublicInputs, contracts.ReasonBadRecipient:
		return http.StatusBadRequest
	default:
		// Verdicts on well-formed submissions: expired, bad signature,
		// policy limits, invalid proof.
		return http.StatusUnprocessableEntity
	}
}
