package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/mlinzi-tz/mlinzi/internal/domain"
	"github.com/mlinzi-tz/mlinzi/internal/engine"
	"github.com/mlinzi-tz/mlinzi/internal/repository"
	"github.com/mlinzi-tz/mlinzi/internal/screening"
)

// Handler holds dependencies for API handlers.
type Handler struct {
	svc      *engine.Service
	repo     domain.Repository
	cache    domain.Cache
	screener *screening.Engine
	version  string
}

// NewHandler creates a new API handler.
func NewHandler(svc *engine.Service, repo domain.Repository, cache domain.Cache, screener *screening.Engine, version string) *Handler {
	return &Handler{
		svc:      svc,
		repo:     repo,
		cache:    cache,
		screener: screener,
		version:  version,
	}
}

// TransactionRequest is the request body for POST /transactions.
type TransactionRequest struct {
	Amount         float64           `json:"amount"`
	Platform       string            `json:"platform"`
	Type           string            `json:"type"`
	RecipientID    string            `json:"recipientId,omitempty"`
	RecipientName  string            `json:"recipientName,omitempty"`
	RecipientPhone string            `json:"recipientPhone,omitempty"`
	Timestamp      *time.Time        `json:"timestamp,omitempty"`
	Status         string            `json:"status,omitempty"`
	Metadata       domain.TxMetadata `json:"metadata"`
}

// AnalyzeResponse is the response for POST /transactions.
type AnalyzeResponse struct {
	TransactionID string                 `json:"transactionId"`
	Assessment    *domain.RiskAssessment `json:"assessment"`
	Metadata      struct {
		TraceID string `json:"traceId"`
		TotalMs int64  `json:"totalMs"`
		Version string `json:"version"`
	} `json:"metadata"`
}

// AnalyzeTransaction handles POST /transactions.
func (h *Handler) AnalyzeTransaction(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx := r.Context()
	traceID := GetTraceID(ctx)

	var req TransactionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}

	if req.Amount == 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "amount is required",
		})
		return
	}
	if req.Platform == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "platform is required",
		})
		return
	}
	if req.Type == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "type is required",
		})
		return
	}

	tx := &domain.Transaction{
		ID:             uuid.New().String(),
		Amount:         req.Amount,
		Platform:       domain.Platform(req.Platform),
		Type:           domain.TransactionType(req.Type),
		RecipientID:    req.RecipientID,
		RecipientName:  req.RecipientName,
		RecipientPhone: req.RecipientPhone,
		Status:         domain.TransactionStatus(req.Status),
		Metadata:       req.Metadata,
		CreatedAt:      time.Now().UTC(),
	}
	if req.Timestamp != nil {
		tx.Timestamp = req.Timestamp.UTC()
	}

	assessment, err := h.svc.AnalyzeTransaction(ctx, tx)
	if err != nil {
		slog.Error("transaction analysis failed", "tx_id", tx.ID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "transaction analysis failed",
		})
		return
	}

	resp := AnalyzeResponse{
		TransactionID: tx.ID,
		Assessment:    assessment,
	}
	resp.Metadata.TraceID = traceID
	resp.Metadata.TotalMs = time.Since(start).Milliseconds()
	resp.Metadata.Version = h.version

	writeJSON(w, http.StatusOK, resp)
}

// GetTransaction handles GET /transactions/{id}.
func (h *Handler) GetTransaction(w http.ResponseWriter, r *http.Request) {
	txID := chi.URLParam(r, "id")

	tx, err := h.repo.GetTransaction(r.Context(), txID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, map[string]string{
				"error": "transaction not found",
			})
			return
		}
		slog.Error("failed to get transaction", "id", txID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to get transaction",
		})
		return
	}

	writeJSON(w, http.StatusOK, tx)
}

// GetAssessment handles GET /assessments/{id}, cache first.
func (h *Handler) GetAssessment(w http.ResponseWriter, r *http.Request) {
	assessmentID := chi.URLParam(r, "id")

	a, err := h.svc.GetAssessment(r.Context(), assessmentID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, map[string]string{
				"error": "assessment not found",
			})
			return
		}
		slog.Error("failed to get assessment", "id", assessmentID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to get assessment",
		})
		return
	}

	writeJSON(w, http.StatusOK, a)
}

// ListAlerts handles GET /alerts: the bounded recent list, newest first.
func (h *Handler) ListAlerts(w http.ResponseWriter, r *http.Request) {
	alerts := h.svc.RecentAlerts()
	writeJSON(w, http.StatusOK, map[string]any{
		"alerts": alerts,
		"count":  len(alerts),
	})
}

// MarkAlertRead handles POST /alerts/{id}/read.
func (h *Handler) MarkAlertRead(w http.ResponseWriter, r *http.Request) {
	alertID := chi.URLParam(r, "id")

	if err := h.svc.MarkAlertRead(r.Context(), alertID); err != nil {
		if errors.Is(err, engine.ErrAlertNotFound) {
			writeJSON(w, http.StatusNotFound, map[string]string{
				"error": "alert not found",
			})
			return
		}
		slog.Error("failed to mark alert read", "id", alertID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to mark alert read",
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "read"})
}

// ResolveAlertRequest is the request body for POST /alerts/{id}/resolve.
type ResolveAlertRequest struct {
	ResolvedBy string `json:"resolvedBy"`
	Resolution string `json:"resolution"`
}

// ResolveAlert handles POST /alerts/{id}/resolve.
func (h *Handler) ResolveAlert(w http.ResponseWriter, r *http.Request) {
	alertID := chi.URLParam(r, "id")

	var req ResolveAlertRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}
	if req.ResolvedBy == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "resolvedBy is required",
		})
		return
	}

	err := h.svc.ResolveAlert(r.Context(), alertID, req.ResolvedBy, req.Resolution)
	switch {
	case errors.Is(err, engine.ErrAlertNotFound):
		writeJSON(w, http.StatusNotFound, map[string]string{
			"error": "alert not found",
		})
		return
	case errors.Is(err, domain.ErrAlertResolved):
		writeJSON(w, http.StatusConflict, map[string]string{
			"error": "alert already resolved",
		})
		return
	case err != nil:
		slog.Error("failed to resolve alert", "id", alertID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to resolve alert",
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "resolved"})
}

// GetStats handles GET /stats.
func (h *Handler) GetStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.svc.Stats())
}

// ListRules handles GET /rules: rules currently loaded in the screener.
func (h *Handler) ListRules(w http.ResponseWriter, r *http.Request) {
	loaded := h.screener.LoadedRules()
	writeJSON(w, http.StatusOK, map[string]any{
		"rules": loaded,
		"count": len(loaded),
	})
}

// GetRule handles GET /rules/{id}, reading from storage so disabled
// rules remain visible.
func (h *Handler) GetRule(w http.ResponseWriter, r *http.Request) {
	ruleID := chi.URLParam(r, "id")

	rule, err := h.repo.GetScreeningRule(r.Context(), ruleID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, map[string]string{
				"error": "rule not found",
			})
			return
		}
		slog.Error("failed to get rule", "id", ruleID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to get rule",
		})
		return
	}

	writeJSON(w, http.StatusOK, rule)
}

// CreateRuleRequest is the request body for POST /rules.
type CreateRuleRequest struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Expression  string `json:"expression"`
	Enabled     bool   `json:"enabled"`
}

// CreateRule handles POST /rules. The expression is validated against
// the screener before persisting; call POST /rules/reload to apply.
func (h *Handler) CreateRule(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req CreateRuleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}

	if req.Name == "" || req.Expression == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "name and expression are required",
		})
		return
	}

	now := time.Now().UTC()
	rule := &domain.ScreeningRule{
		ID:          req.ID,
		Name:        req.Name,
		Description: req.Description,
		Expression:  req.Expression,
		Enabled:     req.Enabled,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if rule.ID == "" {
		rule.ID = uuid.New().String()
	}

	if err := h.screener.ValidateRule(rule); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid CEL expression: " + err.Error(),
		})
		return
	}

	if err := h.repo.SaveScreeningRule(ctx, rule); err != nil {
		slog.Error("failed to save screening rule", "id", rule.ID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to save rule",
		})
		return
	}

	slog.Info("screening rule created", "id", rule.ID, "name", rule.Name)
	writeJSON(w, http.StatusCreated, map[string]any{
		"rule":    rule,
		"message": "Rule created. Call POST /rules/reload to apply changes.",
	})
}

// DeleteRule handles DELETE /rules/{id}.
func (h *Handler) DeleteRule(w http.ResponseWriter, r *http.Request) {
	ruleID := chi.URLParam(r, "id")

	if err := h.repo.DeleteScreeningRule(r.Context(), ruleID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, map[string]string{
				"error": "rule not found",
			})
			return
		}
		slog.Error("failed to delete rule", "id", ruleID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to delete rule",
		})
		return
	}

	slog.Info("screening rule deleted", "id", ruleID)
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

// ReloadRules handles POST /rules/reload: hot-reloads enabled rules
// from storage into the screener.
func (h *Handler) ReloadRules(w http.ResponseWriter, r *http.Request) {
	count, err := h.svc.ReloadRules(r.Context())
	if err != nil {
		slog.Error("failed to reload rules", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to reload rules: " + err.Error(),
		})
		return
	}

	slog.Info("screening rules reloaded", "count", count)
	writeJSON(w, http.StatusOK, map[string]any{
		"message": "rules reloaded successfully",
		"count":   count,
	})
}

// Health returns server health status.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	status := "healthy"

	if h.repo != nil {
		if err := h.repo.Ping(r.Context()); err != nil {
			status = "degraded"
		}
	}
	if h.cache != nil {
		if err := h.cache.Ping(r.Context()); err != nil {
			status = "degraded"
		}
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status":  status,
		"version": h.version,
	})
}

// Ready returns whether the server is ready to accept traffic.
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"ready": "true",
	})
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
