package api

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"net/http"
	"strings"

	"github.com/veilcash/pullauth/pkg/audit"
	"github.com/veilcash/pullauth/pkg/auth"
	"github.com/veilcash/pullauth/pkg/authorizer"
	"github.com/veilcash/pullauth/pkg/contracts"
	"github.com/veilcash/pullauth/pkg/policy"
)

// DecisionRecorder is called once per completed authorization attempt,
// with the terminal reason code ("" for an approval).
type DecisionRecorder func(ctx context.Context, kind contracts.PullKind, reason contracts.ReasonCode)

// Server exposes the authorization core over HTTP.
type Server struct {
	authorizer *authorizer.Authorizer
	policies   *policy.Keeper
	logger     *slog.Logger
	record     DecisionRecorder
	chain      *audit.Chain
}

// NewServer wires the HTTP surface.
func NewServer(a *authorizer.Authorizer, k *policy.Keeper, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{authorizer: a, policies: k, logger: logger}
}

// WithDecisionRecorder installs a metrics hook for decision outcomes.
func (s *Server) WithDecisionRecorder(r DecisionRecorder) *Server {
	s.record = r
	return s
}

// WithAuditChain exposes the hash-chained audit log for operator export.
func (s *Server) WithAuditChain(c *audit.Chain) *Server {
	s.chain = c
	return s
}

// Routes registers all handlers on a fresh mux.
func (s *Server) Routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("POST /v1/pull/take", s.handleTake)
	mux.HandleFunc("POST /v1/pull/redeem", s.handleRedeem)
	mux.HandleFunc("PUT /v1/policy", s.handleSetPolicy)
	mux.HandleFunc("GET /v1/policy/check", s.handlePolicyCheck)
	mux.HandleFunc("GET /v1/audit/chain", s.handleAuditChain)
	return mux
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

// pullRequest is the wire form of an authorization submission. Byte
// fields are hex-encoded; amounts and public inputs are decimal strings
// so they survive JSON number precision.
type pullRequest struct {
	Proof        string   `json:"proof"`
	PublicInputs []string `json:"public_inputs"`
	Permit       struct {
		NoteID    string `json:"note_id"`
		Principal string `json:"principal"`
		MaxAmount string `json:"max_amount"`
		Expiry    int64  `json:"expiry"`
		Nonce     uint64 `json:"nonce"`
		Signature string `json:"signature"`
	} `json:"permit"`
	Recipient string `json:"recipient"`
	Amount    string `json:"amount"`
}

func (s *Server) handleTake(w http.ResponseWriter, r *http.Request) {
	s.handlePull(w, r, contracts.KindTake, s.authorizer.Take)
}

func (s *Server) handleRedeem(w http.ResponseWriter, r *http.Request) {
	s.handlePull(w, r, contracts.KindRedeem, s.authorizer.RedeemToPublic)
}

type pullOp func(ctx context.Context, req authorizer.Request) (*contracts.Decision, error)

func (s *Server) handlePull(w http.ResponseWriter, r *http.Request, kind contracts.PullKind, op pullOp) {
	var wire pullRequest
	if err := json.NewDecoder(r.Body).Decode(&wire); err != nil {
		WriteBadRequest(w, fmt.Sprintf("invalid JSON body: %v", err))
		return
	}
	req, err := wire.toRequest()
	if err != nil {
		WriteBadRequest(w, err.Error())
		return
	}

	dec, err := op(r.Context(), req)
	if err != nil {
		var rej *contracts.Rejection
		if errors.As(err, &rej) {
			s.recordDecision(r.Context(), kind, rej.Code)
			WriteRejection(w, rej)
			return
		}
		WriteInternal(w, err)
		return
	}
	s.recordDecision(r.Context(), kind, "")

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(dec)
}

func (s *Server) recordDecision(ctx context.Context, kind contracts.PullKind, reason contracts.ReasonCode) {
	if s.record != nil {
		s.record(ctx, kind, reason)
	}
}

func (wire *pullRequest) toRequest() (authorizer.Request, error) {
	var req authorizer.Request
	var err error

	if req.Proof, err = decodeHex(wire.Proof); err != nil {
		return req, fmt.Errorf("proof: %w", err)
	}
	req.PublicInputs = make(contracts.PublicInputs, 0, len(wire.PublicInputs))
	for i, in := range wire.PublicInputs {
		v, ok := new(big.Int).SetString(in, 10)
		if !ok {
			return req, fmt.Errorf("public_inputs[%d]: not a decimal integer", i)
		}
		req.PublicInputs = append(req.PublicInputs, v)
	}

	if req.Permit.NoteID, err = contracts.ParseNoteID(wire.Permit.NoteID); err != nil {
		return req, fmt.Errorf("permit.note_id: %w", err)
	}
	if req.Permit.Principal, err = contracts.ParseAddress(wire.Permit.Principal); err != nil {
		return req, fmt.Errorf("permit.principal: %w", err)
	}
	maxAmount, ok := new(big.Int).SetString(wire.Permit.MaxAmount, 10)
	if !ok {
		return req, fmt.Errorf("permit.max_amount: not a decimal integer")
	}
	req.Permit.MaxAmount = maxAmount
	req.Permit.Expiry = wire.Permit.Expiry
	req.Permit.Nonce = wire.Permit.Nonce
	if req.Permit.Signature, err = decodeHex(wire.Permit.Signature); err != nil {
		return req, fmt.Errorf("permit.signature: %w", err)
	}

	if req.Recipient, err = contracts.ParseAddress(wire.Recipient); err != nil {
		return req, fmt.Errorf("recipient: %w", err)
	}
	amount, ok := new(big.Int).SetString(wire.Amount, 10)
	if !ok {
		return req, fmt.Errorf("amount: not a decimal integer")
	}
	req.Amount = amount
	return req, nil
}

// setPolicyRequest is the wire form of a policy update.
type setPolicyRequest struct {
	Principal  string `json:"principal"`
	MaxPerTx   string `json:"max_per_tx"`
	DailyLimit string `json:"daily_limit"`
	Enabled    bool   `json:"enabled"`
}

func (s *Server) handleSetPolicy(w http.ResponseWriter, r *http.Request) {
	caller, err := auth.CallerFrom(r.Context())
	if err != nil {
		WriteUnauthorized(w, "")
		return
	}

	var wire setPolicyRequest
	if err := json.NewDecoder(r.Body).Decode(&wire); err != nil {
		WriteBadRequest(w, fmt.Sprintf("invalid JSON body: %v", err))
		return
	}
	principal, err := contracts.ParseAddress(wire.Principal)
	if err != nil {
		WriteBadRequest(w, fmt.Sprintf("principal: %v", err))
		return
	}
	maxPerTx, ok := new(big.Int).SetString(wire.MaxPerTx, 10)
	if !ok {
		WriteBadRequest(w, "max_per_tx: not a decimal integer")
		return
	}
	dailyLimit, ok := new(big.Int).SetString(wire.DailyLimit, 10)
	if !ok {
		WriteBadRequest(w, "daily_limit: not a decimal integer")
		return
	}

	err = s.policies.SetPolicy(r.Context(), caller.Address, contracts.Policy{
		Principal:  principal,
		MaxPerTx:   maxPerTx,
		DailyLimit: dailyLimit,
		Enabled:    wire.Enabled,
	})
	if errors.Is(err, policy.ErrNotSelf) {
		WriteForbidden(w, "a principal may only modify its own policy")
		return
	}
	if err != nil {
		WriteBadRequest(w, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handlePolicyCheck is the speculative preview: a pure read that never
// consumes usage, safe to call from UIs before submitting a pull.
func (s *Server) handlePolicyCheck(w http.ResponseWriter, r *http.Request) {
	principal, err := contracts.ParseAddress(r.URL.Query().Get("principal"))
	if err != nil {
		WriteBadRequest(w, fmt.Sprintf("principal: %v", err))
		return
	}
	amount, ok := new(big.Int).SetString(r.URL.Query().Get("amount"), 10)
	if !ok {
		WriteBadRequest(w, "amount: not a decimal integer")
		return
	}

	result := map[string]any{"ok": true}
	if err := s.policies.Check(r.Context(), principal, amount); err != nil {
		code := contracts.CodeOf(err)
		if code == "" {
			WriteInternal(w, err)
			return
		}
		result["ok"] = false
		result["reason"] = string(code)
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(result)
}

// handleAuditChain exports the hash-chained audit log with its current
// verification state, so operators can pull and archive the trail.
func (s *Server) handleAuditChain(w http.ResponseWriter, r *http.Request) {
	if s.chain == nil {
		WriteError(w, http.StatusNotFound, "Not Found", "audit chain export is not enabled")
		return
	}
	result := map[string]any{
		"verified": true,
		"entries":  s.chain.Entries(),
	}
	if err := s.chain.Verify(); err != nil {
		result["verified"] = false
		result["break"] = err.Error()
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(result)
}

func decodeHex(s string) ([]byte, error) {
	raw, err := hex.DecodeString(strings.TrimPrefix(s, "0x"))
	if err != nil {
		return nil, fmt.Errorf("invalid hex: %w", err)
	}
	return raw, nil
}
