package handler

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/shareauction/internal/domain"
)

// JournalService defines the journal, report and audit reads the handler
// requires.
type JournalService interface {
	Events(ctx context.Context, after uint64, limit int) []domain.Event
	Reports(ctx context.Context) ([]domain.BlobInfo, error)
	Report(ctx context.Context, name string) (io.ReadCloser, error)
	AuditLog(ctx context.Context, caller common.Address, opts domain.ListOpts) ([]domain.AuditEntry, error)
}

// JournalHandler serves the event journal, archived reports and the audit
// log.
type JournalHandler struct {
	svc    JournalService
	logger *slog.Logger
}

// NewJournalHandler creates a JournalHandler.
func NewJournalHandler(svc JournalService, logger *slog.Logger) *JournalHandler {
	return &JournalHandler{svc: svc, logger: logger}
}

type eventsResponse struct {
	Events []domain.Event `json:"events"`
}

type reportsResponse struct {
	Reports []domain.BlobInfo `json:"reports"`
}

type auditResponse struct {
	Entries []domain.AuditEntry `json:"entries"`
}

// ListEvents pages through the journal.
// GET /api/events?after=0&limit=100
func (h *JournalHandler) ListEvents(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var after uint64
	if v := q.Get("after"); v != "" {
		n, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid after parameter")
			return
		}
		after = n
	}
	limit := parseListOpts(r).Limit

	events := h.svc.Events(r.Context(), after, limit)
	if events == nil {
		events = []domain.Event{}
	}
	writeJSON(w, http.StatusOK, eventsResponse{Events: events})
}

// ListReports lists archived settlement reports.
// GET /api/reports
func (h *JournalHandler) ListReports(w http.ResponseWriter, r *http.Request) {
	infos, err := h.svc.Reports(r.Context())
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	if infos == nil {
		infos = []domain.BlobInfo{}
	}
	writeJSON(w, http.StatusOK, reportsResponse{Reports: infos})
}

// GetReport streams one archived settlement report.
// GET /api/reports/{name}
func (h *JournalHandler) GetReport(w http.ResponseWriter, r *http.Request) {
	body, err := h.svc.Report(r.Context(), r.PathValue("name"))
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	defer body.Close()

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, body); err != nil {
		h.logger.WarnContext(r.Context(), "handler: stream report failed", slog.String("error", err.Error()))
	}
}

// ListAudit returns audit entries, newest first. Owner or auditor only.
// GET /api/audit?limit=50&offset=0
func (h *JournalHandler) ListAudit(w http.ResponseWriter, r *http.Request) {
	caller, ok := requireCaller(w, r)
	if !ok {
		return
	}
	entries, err := h.svc.AuditLog(r.Context(), caller, parseListOpts(r))
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	if entries == nil {
		entries = []domain.AuditEntry{}
	}
	writeJSON(w, http.StatusOK, auditResponse{Entries: entries})
}
