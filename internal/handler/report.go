package handler

import (
	"log/slog"
	"net/http"

	"github.com/sakif/billing-tracker/internal/service"
)

// ReportHandler serves the /api/reports routes.
type ReportHandler struct {
	reports *service.ReportService
	logger  *slog.Logger
}

func NewReportHandler(reports *service.ReportService, logger *slog.Logger) *ReportHandler {
	return &ReportHandler{reports: reports, logger: logger}
}

// HandleMonthly generates (or refreshes) the caller's report for a month.
//
// HTTP: GET /api/reports/monthly?month=March&year=2025
// Both parameters are optional and default to the current month and year.
//
// It is a GET that writes, because the UI treats "view this month's report"
// and "regenerate it" as the same action.
func (h *ReportHandler) HandleMonthly(w http.ResponseWriter, r *http.Request) {
	id, found := identity(w, r)
	if !found {
		return
	}

	q := r.URL.Query()
	report, err := h.reports.GenerateMonthly(r.Context(), id.UserID, q.Get("month"), q.Get("year"))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// HandleHistory lists the caller's last twelve reports, newest first.
//
// HTTP: GET /api/reports/history
func (h *ReportHandler) HandleHistory(w http.ResponseWriter, r *http.Request) {
	id, found := identity(w, r)
	if !found {
		return
	}

	reports, err := h.reports.History(r.Context(), id.UserID)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, reports)
}
