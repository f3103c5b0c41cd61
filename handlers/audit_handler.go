package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/ruleplane/backend/models"
	"github.com/ruleplane/backend/repositories"
	"github.com/ruleplane/backend/services/audit"
	"github.com/ruleplane/backend/utils"
	"go.uber.org/zap"
)

// AuditService defines the audit trail operations the handler depends on
type AuditService interface {
	Get(ctx context.Context, id uuid.UUID) (*models.AuditEntry, error)
	List(ctx context.Context, filter repositories.AuditFilter) ([]*models.AuditEntry, error)
	History(ctx context.Context, entityType string, entityID uuid.UUID) ([]*models.AuditEntry, error)
	EntryContentDiff(entry *models.AuditEntry, field string) []audit.DiffLine
}

// AuditHandler handles audit trail HTTP requests
type AuditHandler struct {
	audits AuditService
	logger *zap.Logger
}

// NewAuditHandler creates a new AuditHandler
func NewAuditHandler(auditService AuditService, logger *zap.Logger) *AuditHandler {
	return &AuditHandler{
		audits: auditService,
		logger: logger,
	}
}

// HandleList handles GET /api/v1/audit
func (h *AuditHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	q := r.URL.Query()
	limit, offset := utils.ParsePagination(r, 50, 200)

	filter := repositories.AuditFilter{
		EntityType: q.Get("entity_type"),
		Action:     models.AuditAction(q.Get("action")),
		Limit:      limit,
		Offset:     offset,
	}

	if fromStr := q.Get("from"); fromStr != "" {
		from, err := time.Parse(time.RFC3339, fromStr)
		if err != nil {
			_ = utils.WriteBadRequest(w, "Invalid from timestamp, expected RFC3339", nil)
			return
		}
		filter.From = &from
	}
	if toStr := q.Get("to"); toStr != "" {
		to, err := time.Parse(time.RFC3339, toStr)
		if err != nil {
			_ = utils.WriteBadRequest(w, "Invalid to timestamp, expected RFC3339", nil)
			return
		}
		filter.To = &to
	}

	entries, err := h.audits.List(ctx, filter)
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}
	_ = utils.WriteOK(w, entries)
}

// HandleGet handles GET /api/v1/audit/{id}
func (h *AuditHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	id, ok := parseIDParam(w, r)
	if !ok {
		return
	}

	entry, err := h.audits.Get(r.Context(), id)
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}
	_ = utils.WriteOK(w, entry)
}

// EntryDiffResponse carries a rendered line diff for one audited field
type EntryDiffResponse struct {
	EntryID uuid.UUID        `json:"entry_id"`
	Field   string           `json:"field"`
	Lines   []audit.DiffLine `json:"lines"`
}

// HandleEntryDiff handles GET /api/v1/audit/{id}/diff
func (h *AuditHandler) HandleEntryDiff(w http.ResponseWriter, r *http.Request) {
	id, ok := parseIDParam(w, r)
	if !ok {
		return
	}

	field := r.URL.Query().Get("field")
	if field == "" {
		field = "content"
	}

	entry, err := h.audits.Get(r.Context(), id)
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}

	_ = utils.WriteOK(w, EntryDiffResponse{
		EntryID: entry.ID,
		Field:   field,
		Lines:   h.audits.EntryContentDiff(entry, field),
	})
}

// HandleEntityHistory handles GET /api/v1/audit/entity/{type}/{id}
func (h *AuditHandler) HandleEntityHistory(w http.ResponseWriter, r *http.Request) {
	entityType := chi.URLParam(r, "type")
	if entityType == "" {
		_ = utils.WriteBadRequest(w, "Entity type is required", nil)
		return
	}

	entityID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		_ = utils.WriteBadRequest(w, "Invalid entity ID format", nil)
		return
	}

	history, err := h.audits.History(r.Context(), entityType, entityID)
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}
	_ = utils.WriteOK(w, history)
}
