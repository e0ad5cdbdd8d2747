package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/harborwallet/walletkit-backend/internal/approval"
	"github.com/harborwallet/walletkit-backend/internal/chains"
	"github.com/harborwallet/walletkit-backend/internal/session"
	"github.com/harborwallet/walletkit-backend/pkg/kv"
)

// MetricsInterface defines the interface for metrics recording
type MetricsInterface interface {
	RecordHTTPRequest(ctx context.Context, method, path string, status int, duration time.Duration)
}

type Handler struct {
	sessions       *session.Store
	approvals      *approval.Broker
	registry       *chains.Registry
	store          kv.Store
	logger         *zap.SugaredLogger
	metrics        MetricsInterface
	metricsHandler http.Handler
}

func NewHandler(
	sessions *session.Store,
	approvals *approval.Broker,
	registry *chains.Registry,
	store kv.Store,
	logger *zap.SugaredLogger,
	metrics MetricsInterface,
	metricsHandler http.Handler,
) *Handler {
	return &Handler{
		sessions:       sessions,
		approvals:      approvals,
		registry:       registry,
		store:          store,
		logger:         logger,
		metrics:        metrics,
		metricsHandler: metricsHandler,
	}
}

func (h *Handler) Healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

func (h *Handler) Readyz(w http.ResponseWriter, r *http.Request) {
	if err := h.store.Ping(r.Context()); err != nil {
		h.writeError(w, http.StatusServiceUnavailable, "STORE_UNAVAILABLE", err.Error())
		return
	}
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("READY"))
}

// Approval endpoints

func (h *Handler) ListApprovals(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, ApprovalListResponse{Approvals: h.approvals.Pending()})
}

func (h *Handler) DecideApproval(w http.ResponseWriter, r *http.Request) {
	ref := chi.URLParam(r, "ref")

	var req DecisionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "INVALID_JSON", "Invalid decision payload")
		return
	}
	if req.Approved == nil {
		h.writeError(w, http.StatusBadRequest, "MISSING_DECISION", "approved is required")
		return
	}

	switch err := h.approvals.Decide(ref, *req.Approved); {
	case errors.Is(err, approval.ErrUnknownRef):
		h.writeError(w, http.StatusNotFound, "APPROVAL_NOT_FOUND", "no pending approval for reference")
	case errors.Is(err, approval.ErrAlreadyDecided):
		h.writeError(w, http.StatusConflict, "ALREADY_DECIDED", "approval was already decided")
	case err != nil:
		h.writeError(w, http.StatusInternalServerError, "DECIDE_ERROR", err.Error())
	default:
		h.logger.Infow("Approval decided", "ref", ref, "approved", *req.Approved)
		w.WriteHeader(http.StatusNoContent)
	}
}

// Session endpoints

func (h *Handler) ListSessions(w http.ResponseWriter, r *http.Request) {
	sessions, err := h.sessions.List(r.Context())
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, "SESSION_LIST_ERROR", err.Error())
		return
	}
	h.writeJSON(w, http.StatusOK, SessionListResponse{Sessions: sessions})
}

func (h *Handler) GetSession(w http.ResponseWriter, r *http.Request) {
	topic := chi.URLParam(r, "topic")

	sess, err := h.sessions.Get(r.Context(), topic)
	if errors.Is(err, session.ErrNotFound) {
		h.writeError(w, http.StatusNotFound, "SESSION_NOT_FOUND", "no session for topic")
		return
	}
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, "SESSION_ERROR", err.Error())
		return
	}
	h.writeJSON(w, http.StatusOK, sess)
}

func (h *Handler) PutSession(w http.ResponseWriter, r *http.Request) {
	var sess session.Session
	if err := json.NewDecoder(r.Body).Decode(&sess); err != nil {
		h.writeError(w, http.StatusBadRequest, "INVALID_JSON", "Invalid session payload")
		return
	}
	if err := sess.Validate(); err != nil {
		h.writeError(w, http.StatusBadRequest, "INVALID_SESSION", err.Error())
		return
	}
	if _, err := h.registry.Resolve(sess.NetworkID); err != nil {
		h.writeError(w, http.StatusBadRequest, "UNSUPPORTED_NETWORK", err.Error())
		return
	}

	if err := h.sessions.Put(r.Context(), sess); err != nil {
		h.writeError(w, http.StatusInternalServerError, "SESSION_ERROR", err.Error())
		return
	}
	h.logger.Infow("Session stored", "topic", sess.Topic, "peer", sess.Peer.Name)
	h.writeJSON(w, http.StatusCreated, sess)
}

func (h *Handler) DeleteSession(w http.ResponseWriter, r *http.Request) {
	topic := chi.URLParam(r, "topic")

	if err := h.sessions.Delete(r.Context(), topic); err != nil {
		h.writeError(w, http.StatusInternalServerError, "SESSION_ERROR", err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Network endpoints

func (h *Handler) ListNetworks(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, NetworkListResponse{Networks: h.registry.IDs()})
}

// Metrics endpoint

func (h *Handler) Metrics(w http.ResponseWriter, r *http.Request) {
	h.metricsHandler.ServeHTTP(w, r)
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func (h *Handler) writeError(w http.ResponseWriter, status int, code, message string) {
	h.logger.Errorw("API error", "code", code, "message", message, "status", status)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(ErrorResponse{Code: code, Message: message})
}
