package api

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/Mindburn-Labs/spendgate/pkg/custody"
	"github.com/Mindburn-Labs/spendgate/pkg/engine"
	"github.com/Mindburn-Labs/spendgate/pkg/ruleset"
	"github.com/Mindburn-Labs/spendgate/pkg/rules"
	"github.com/Mindburn-Labs/spendgate/pkg/spend"
	"github.com/Mindburn-Labs/spendgate/pkg/store"
)

const maxBodyBytes = 1 << 20

// Server exposes the engine's workflow over HTTP.
type Server struct {
	engine *engine.Engine
	logger *slog.Logger
}

// NewServer builds a Server around an engine.
func NewServer(eng *engine.Engine, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{engine: eng, logger: logger}
}

// RouterOptions tunes the middleware stack.
type RouterOptions struct {
	RateLimitRPS   float64
	RateLimitBurst int
	IdempotencyTTL time.Duration
}

// Router assembles the chi router with rate limiting, request IDs and
// idempotent replay.
func (s *Server) Router(opts RouterOptions) http.Handler {
	if opts.RateLimitRPS <= 0 {
		opts.RateLimitRPS = 10
	}
	if opts.RateLimitBurst <= 0 {
		opts.RateLimitBurst = 20
	}
	if opts.IdempotencyTTL <= 0 {
		opts.IdempotencyTTL = time.Hour
	}

	r := chi.NewRouter()
	r.Use(RequestID)
	r.Use(NewGlobalRateLimiter(opts.RateLimitRPS, opts.RateLimitBurst).Middleware)
	r.Use(NewIdempotencyStore(opts.IdempotencyTTL).Middleware)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "service": "spendgate"})
	})

	r.Post("/v1/controllers", s.createController)
	r.Post("/v1/rulesets", s.beginRuleSet)
	r.Post("/v1/rulesets/import", s.importRuleSet)
	r.Post("/v1/rulesets/{id}/rules", s.addRule)
	r.Post("/v1/delegations", s.delegate)
	r.Get("/v1/delegations/{id}", s.getDelegation)
	r.Post("/v1/delegations/{id}/approve", s.approveDelegation)
	r.Post("/v1/delegations/{id}/reject", s.rejectDelegation)
	r.Post("/v1/delegations/{id}/close", s.closeDelegation)
	r.Post("/v1/delegations/{id}/clean", s.cleanLedger)
	r.Post("/v1/requests", s.createRequest)
	r.Post("/v1/requests/{id}/rules", s.processRule)
	r.Post("/v1/requests/{id}/complete", s.completeRequest)
	r.Get("/v1/receipts", s.listReceipts)

	return r
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		WriteBadRequest(w, "Invalid request body")
		return false
	}
	return true
}

// writeDomainError maps workflow errors to problem responses.
func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		WriteNotFound(w, err.Error())
	case errors.Is(err, store.ErrLockHeld):
		WriteConflict(w, err.Error())
	case errors.Is(err, custody.ErrNotPending),
		errors.Is(err, custody.ErrAlreadyClosed),
		errors.Is(err, custody.ErrNotFinalized):
		WriteConflict(w, err.Error())
	case errors.Is(err, engine.ErrNotSpendable),
		errors.Is(err, engine.ErrTreeTooLarge),
		errors.Is(err, engine.ErrTooManyRules),
		errors.Is(err, spend.ErrRuleIndexExceeded),
		errors.Is(err, spend.ErrNoSpace),
		errors.Is(err, spend.ErrIncomplete),
		errors.Is(err, spend.ErrFingerprintMismatch),
		errors.Is(err, spend.ErrPolicyRejected),
		errors.Is(err, spend.ErrUnknownRuleKind),
		errors.Is(err, rules.ErrZeroMaxSpend),
		errors.Is(err, rules.ErrWindowTooLow):
		WriteUnprocessable(w, err.Error())
	default:
		WriteInternal(w, err)
	}
}

type createControllerRequest struct {
	Owner spend.ID `json:"owner"`
}

func (s *Server) createController(w http.ResponseWriter, r *http.Request) {
	var req createControllerRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Owner.IsZero() {
		WriteBadRequest(w, "Missing required field: owner")
		return
	}
	c, err := s.engine.CreateController(r.Context(), req.Owner)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, c)
}

type beginRuleSetRequest struct {
	Tree string `json:"tree"` // hex-encoded policy tree
}

type ruleSetResponse struct {
	BuilderID   string            `json:"builder_id"`
	Fingerprint spend.Fingerprint `json:"fingerprint"`
	Index       uint8             `json:"index"`
	Count       uint8             `json:"count"`
	Finalized   bool              `json:"finalized"`
}

func toRuleSetResponse(id string, b *spend.RuleSetBuilder) ruleSetResponse {
	return ruleSetResponse{
		BuilderID:   id,
		Fingerprint: b.Fingerprint,
		Index:       b.Index,
		Count:       b.Count,
		Finalized:   b.Finalized(),
	}
}

func (s *Server) beginRuleSet(w http.ResponseWriter, r *http.Request) {
	var req beginRuleSetRequest
	if !decodeBody(w, r, &req) {
		return
	}
	tree, err := hex.DecodeString(req.Tree)
	if err != nil {
		WriteBadRequest(w, "Field tree must be hex-encoded")
		return
	}
	id, b, err := s.engine.BeginRuleSet(r.Context(), tree)
	if err != nil {
		WriteUnprocessable(w, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, toRuleSetResponse(id, b))
}

// importRuleSet accepts a full rule-set definition document, validates it and
// runs the whole build in one call.
func (s *Server) importRuleSet(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	var raw json.RawMessage
	if err := json.NewDecoder(r.Body).Decode(&raw); err != nil {
		WriteBadRequest(w, "Invalid request body")
		return
	}
	def, err := ruleset.Load(raw)
	if err != nil {
		WriteUnprocessable(w, err.Error())
		return
	}
	id, b, err := s.engine.BeginRuleSet(r.Context(), def.TreeBytes)
	if err != nil {
		WriteUnprocessable(w, err.Error())
		return
	}
	for _, spec := range def.Specs {
		if b, err = s.engine.AddRule(r.Context(), id, spec); err != nil {
			writeDomainError(w, err)
			return
		}
	}
	writeJSON(w, http.StatusCreated, toRuleSetResponse(id, b))
}

func (s *Server) addRule(w http.ResponseWriter, r *http.Request) {
	var spec rules.Spec
	if !decodeBody(w, r, &spec) {
		return
	}
	b, err := s.engine.AddRule(r.Context(), chi.URLParam(r, "id"), spec)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toRuleSetResponse(chi.URLParam(r, "id"), b))
}

type delegateRequest struct {
	ControllerID string `json:"controller_id"`
	BuilderID    string `json:"builder_id"`
	Now          uint64 `json:"now"`
}

func (s *Server) delegate(w http.ResponseWriter, r *http.Request) {
	var req delegateRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.ControllerID == "" || req.BuilderID == "" {
		WriteBadRequest(w, "Missing required fields: controller_id, builder_id")
		return
	}
	d, err := s.engine.Delegate(r.Context(), req.ControllerID, req.BuilderID, req.Now)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, d)
}

func (s *Server) getDelegation(w http.ResponseWriter, r *http.Request) {
	d, err := s.engine.GetDelegation(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

func (s *Server) approveDelegation(w http.ResponseWriter, r *http.Request) {
	s.transition(w, r, s.engine.ApproveDelegation)
}

func (s *Server) rejectDelegation(w http.ResponseWriter, r *http.Request) {
	s.transition(w, r, s.engine.RejectDelegation)
}

func (s *Server) closeDelegation(w http.ResponseWriter, r *http.Request) {
	s.transition(w, r, s.engine.CloseDelegation)
}

func (s *Server) transition(w http.ResponseWriter, r *http.Request, apply func(ctx context.Context, id string) (*custody.Delegation, error)) {
	d, err := apply(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

type cleanRequest struct {
	Cutoff uint64 `json:"cutoff"`
}

func (s *Server) cleanLedger(w http.ResponseWriter, r *http.Request) {
	var req cleanRequest
	if !decodeBody(w, r, &req) {
		return
	}
	d, err := s.engine.CleanLedger(r.Context(), chi.URLParam(r, "id"), req.Cutoff)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

type createRequestRequest struct {
	DelegationID string                `json:"delegation_id"`
	Context      spend.TransferContext `json:"context"`
}

type createRequestResponse struct {
	RequestID string         `json:"request_id"`
	Request   *spend.Request `json:"request"`
}

func (s *Server) createRequest(w http.ResponseWriter, r *http.Request) {
	var req createRequestRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.DelegationID == "" {
		WriteBadRequest(w, "Missing required field: delegation_id")
		return
	}
	id, sr, err := s.engine.CreateSpendRequest(r.Context(), req.DelegationID, req.Context)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, createRequestResponse{RequestID: id, Request: sr})
}

type processRuleRequest struct {
	Rule       rules.Spec `json:"rule"`
	Credential string     `json:"credential,omitempty"`
}

type processRuleResponse struct {
	Index     uint8  `json:"index"`
	Passed    bool   `json:"passed"`
	Violation string `json:"violation,omitempty"`
}

func (s *Server) processRule(w http.ResponseWriter, r *http.Request) {
	var req processRuleRequest
	if !decodeBody(w, r, &req) {
		return
	}
	out, err := s.engine.ProcessRule(r.Context(), chi.URLParam(r, "id"), req.Rule, req.Credential)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	resp := processRuleResponse{Index: out.Index, Passed: out.Passed}
	if out.Violation != nil {
		resp.Violation = out.Violation.Error()
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) completeRequest(w http.ResponseWriter, r *http.Request) {
	d, err := s.engine.CompleteSpendRequest(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

func (s *Server) listReceipts(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.engine.Receipts().List())
}
