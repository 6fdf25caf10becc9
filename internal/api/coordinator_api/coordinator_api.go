package coordinator_api

import (
	"crypto/subtle"
	"encoding/json"
	"encoding/xml"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/BearBump/RegBox/internal/integrations/sms"
	"github.com/BearBump/RegBox/internal/models"
	"github.com/BearBump/RegBox/internal/services/challenges"
	"github.com/BearBump/RegBox/internal/services/checkpoints"
	"github.com/BearBump/RegBox/internal/services/replies"
	"github.com/BearBump/RegBox/internal/services/reservations"
	"github.com/BearBump/RegBox/internal/services/settlement"
	"github.com/go-chi/chi/v5"
	"github.com/pkg/errors"
)

// CoordinatorAPI is the JSON/webhook surface of reg-api. The settlement
// callback and the executor endpoints are shared-secret authenticated; the
// SMS webhook is verified with the gateway's HMAC signature scheme.
type CoordinatorAPI struct {
	challenges   *challenges.Service
	checkpoints  *checkpoints.Service
	settlement   *settlement.Committer
	reservations *reservations.Service
	replies      *replies.Router

	settlementSecret string
	executorSecret   string
	smsAuthToken     string
}

func New(
	ch *challenges.Service,
	cp *checkpoints.Service,
	st *settlement.Committer,
	rs *reservations.Service,
	rp *replies.Router,
	settlementSecret, executorSecret, smsAuthToken string,
) *CoordinatorAPI {
	return &CoordinatorAPI{
		challenges: ch, checkpoints: cp, settlement: st, reservations: rs, replies: rp,
		settlementSecret: settlementSecret, executorSecret: executorSecret, smsAuthToken: smsAuthToken,
	}
}

func (a *CoordinatorAPI) Router() chi.Router {
	r := chi.NewRouter()

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ready"}`))
	})

	r.Route("/v1", func(r chi.Router) {
		r.With(a.requireSecret("X-RegBox-Secret", a.settlementSecret)).
			Post("/settlements/callback", a.settlementCallback)
		r.Get("/reservations/{id}", a.getReservation)

		r.Post("/sms/inbound", a.smsInbound)

		r.Get("/resume/{token}", a.resumeStatus)
		r.Post("/resume/{token}", a.resumeResolve)

		r.Group(func(r chi.Router) {
			r.Use(a.requireSecret("X-RegBox-Executor-Secret", a.executorSecret))
			r.Post("/challenges", a.createChallenge)
			r.Post("/challenges/{id}/resend", a.resendChallenge)
			r.Post("/sessions/{sessionID}/checkpoints", a.saveCheckpoint)
			r.Get("/sessions/{sessionID}/checkpoints/latest", a.restoreCheckpoint)
		})
	})

	return r
}

func (a *CoordinatorAPI) requireSecret(header, secret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got := r.Header.Get(header)
			if secret == "" || subtle.ConstantTimeCompare([]byte(got), []byte(secret)) != 1 {
				writeError(w, http.StatusUnauthorized, "unauthorized")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

type settlementCallbackRequest struct {
	ReservationID uint64          `json:"reservation_id"`
	Success       bool            `json:"success"`
	ProviderResp  json.RawMessage `json:"provider_response"`
}

func (a *CoordinatorAPI) settlementCallback(w http.ResponseWriter, r *http.Request) {
	var req settlementCallbackRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.ReservationID == 0 {
		writeError(w, http.StatusBadRequest, "malformed request")
		return
	}

	status, alreadyFinal, err := a.settlement.Commit(r.Context(), req.ReservationID, req.Success, req.ProviderResp)
	if errors.Is(err, settlement.ErrNotFound) {
		writeError(w, http.StatusNotFound, "reservation not found")
		return
	}
	if err != nil {
		slog.Error("settlement callback", "reservation_id", req.ReservationID, "error", err.Error())
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	a.reservations.Invalidate(r.Context(), req.ReservationID)
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "status": status, "already_final": alreadyFinal})
}

type reservationResponse struct {
	ID            uint64          `json:"id"`
	PlanID        uint64          `json:"plan_id"`
	ChargeRef     string          `json:"charge_ref"`
	Status        string          `json:"status"`
	ProviderResp  json.RawMessage `json:"provider_response,omitempty"`
	ChargeSettled bool            `json:"charge_settled"`
	ChargeError   *string         `json:"charge_error,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
	SettledAt     *time.Time      `json:"settled_at,omitempty"`
}

func (a *CoordinatorAPI) getReservation(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseUint(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id == 0 {
		writeError(w, http.StatusBadRequest, "bad reservation id")
		return
	}

	res, err := a.reservations.Get(r.Context(), id)
	if err != nil {
		slog.Error("get reservation", "reservation_id", id, "error", err.Error())
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if res == nil {
		writeError(w, http.StatusNotFound, "reservation not found")
		return
	}

	writeJSON(w, http.StatusOK, reservationResponse{
		ID: res.ID, PlanID: res.PlanID, ChargeRef: res.ChargeRef, Status: res.Status,
		ProviderResp: res.ProviderResponse, ChargeSettled: res.ChargeSettled, ChargeError: res.ChargeError,
		CreatedAt: res.CreatedAt, SettledAt: res.SettledAt,
	})
}

type twimlResponse struct {
	XMLName xml.Name `xml:"Response"`
	Message string   `xml:"Message"`
}

func (a *CoordinatorAPI) smsInbound(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		writeError(w, http.StatusBadRequest, "malformed form")
		return
	}

	params := make(map[string]string, len(r.PostForm))
	for k, vs := range r.PostForm {
		if len(vs) > 0 {
			params[k] = vs[0]
		}
	}

	sig := r.Header.Get("X-Twilio-Signature")
	if !sms.VerifySignature(a.smsAuthToken, requestURL(r), params, sig) {
		writeError(w, http.StatusForbidden, "bad signature")
		return
	}

	reply := a.replies.Handle(r.Context(), params["From"], params["Body"])

	w.Header().Set("Content-Type", "text/xml")
	w.WriteHeader(http.StatusOK)
	_ = xml.NewEncoder(w).Encode(twimlResponse{Message: reply})
}

// requestURL reconstructs the public URL the gateway signed. Behind the
// ingress the scheme arrives in X-Forwarded-Proto.
func requestURL(r *http.Request) string {
	proto := r.Header.Get("X-Forwarded-Proto")
	if proto == "" {
		proto = "http"
		if r.TLS != nil {
			proto = "https"
		}
	}
	return proto + "://" + r.Host + r.URL.RequestURI()
}

func (a *CoordinatorAPI) resumeStatus(w http.ResponseWriter, r *http.Request) {
	t, err := a.challenges.Lookup(r.Context(), chi.URLParam(r, "token"))
	if errors.Is(err, challenges.ErrNotFound) {
		writeError(w, http.StatusNotFound, "ticket not found")
		return
	}
	if err != nil {
		slog.Error("resume status", "error", err.Error())
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"ticket_id":  t.ID,
		"status":     t.Status,
		"provider":   t.Provider,
		"expires_at": t.ExpiresAt,
	})
}

func (a *CoordinatorAPI) resumeResolve(w http.ResponseWriter, r *http.Request) {
	token := chi.URLParam(r, "token")
	sig := r.URL.Query().Get("sig")

	t, err := a.challenges.Resolve(r.Context(), token, sig)
	if errors.Is(err, challenges.ErrInvalidSignature) {
		writeError(w, http.StatusForbidden, "bad signature")
		return
	}
	if errors.Is(err, challenges.ErrNotFound) {
		writeError(w, http.StatusNotFound, "ticket not found")
		return
	}
	if err != nil {
		slog.Error("resume resolve", "error", err.Error())
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ticket_id": t.ID, "status": t.Status})
}

type createChallengeRequest struct {
	UserID    uint64 `json:"user_id"`
	SessionID string `json:"session_id"`
	Provider  string `json:"provider"`
}

func (a *CoordinatorAPI) createChallenge(w http.ResponseWriter, r *http.Request) {
	var req createChallengeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.UserID == 0 || req.SessionID == "" {
		writeError(w, http.StatusBadRequest, "malformed request")
		return
	}

	t, url, err := a.challenges.Create(r.Context(), req.UserID, req.SessionID, req.Provider)
	if err != nil {
		slog.Error("create challenge", "user_id", req.UserID, "error", err.Error())
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"ticket_id":  t.ID,
		"magic_url":  url,
		"expires_at": t.ExpiresAt,
	})
}

func (a *CoordinatorAPI) resendChallenge(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseUint(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id == 0 {
		writeError(w, http.StatusBadRequest, "bad ticket id")
		return
	}

	err = a.challenges.Resend(r.Context(), id)
	if errors.Is(err, challenges.ErrNotFound) {
		writeError(w, http.StatusNotFound, "ticket not found")
		return
	}
	if errors.Is(err, challenges.ErrNotPending) {
		writeError(w, http.StatusConflict, "ticket is not pending")
		return
	}
	if errors.Is(err, challenges.ErrThrottled) {
		writeError(w, http.StatusTooManyRequests, "notification throttled")
		return
	}
	if err != nil {
		slog.Error("resend challenge", "ticket_id", id, "error", err.Error())
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

type saveCheckpointRequest struct {
	StepName        string          `json:"step_name"`
	BrowserState    json.RawMessage `json:"browser_state"`
	WorkflowState   json.RawMessage `json:"workflow_state"`
	ProviderContext json.RawMessage `json:"provider_context"`
	Success         bool            `json:"success"`
	Metadata        json.RawMessage `json:"metadata"`
}

func (a *CoordinatorAPI) saveCheckpoint(w http.ResponseWriter, r *http.Request) {
	var req saveCheckpointRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request")
		return
	}

	c, err := a.checkpoints.Save(r.Context(), chi.URLParam(r, "sessionID"), models.CheckpointInput{
		StepName:        req.StepName,
		BrowserState:    req.BrowserState,
		WorkflowState:   req.WorkflowState,
		ProviderContext: req.ProviderContext,
		Success:         req.Success,
		Metadata:        req.Metadata,
	})
	if errors.Is(err, checkpoints.ErrInvalidInput) {
		writeError(w, http.StatusBadRequest, "invalid checkpoint input")
		return
	}
	if err != nil {
		slog.Error("save checkpoint", "error", err.Error())
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"checkpoint_id": c.ID, "created_at": c.CreatedAt})
}

type checkpointResponse struct {
	ID              uint64          `json:"id"`
	SessionID       string          `json:"session_id"`
	StepName        string          `json:"step_name"`
	BrowserState    json.RawMessage `json:"browser_state,omitempty"`
	WorkflowState   json.RawMessage `json:"workflow_state,omitempty"`
	ProviderContext json.RawMessage `json:"provider_context,omitempty"`
	Success         bool            `json:"success"`
	Metadata        json.RawMessage `json:"metadata,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
}

func (a *CoordinatorAPI) restoreCheckpoint(w http.ResponseWriter, r *http.Request) {
	var checkpointID uint64
	if raw := r.URL.Query().Get("checkpoint_id"); raw != "" {
		id, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "bad checkpoint id")
			return
		}
		checkpointID = id
	}

	c, err := a.checkpoints.Restore(r.Context(), chi.URLParam(r, "sessionID"), checkpointID, time.Now().UTC())
	if errors.Is(err, checkpoints.ErrNoRecoverableState) {
		writeError(w, http.StatusNotFound, "no recoverable state")
		return
	}
	if err != nil {
		slog.Error("restore checkpoint", "error", err.Error())
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	writeJSON(w, http.StatusOK, checkpointResponse{
		ID: c.ID, SessionID: c.SessionID, StepName: c.StepName,
		BrowserState: c.BrowserState, WorkflowState: c.WorkflowState, ProviderContext: c.ProviderContext,
		Success: c.Success, Metadata: c.Metadata, CreatedAt: c.CreatedAt,
	})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}
