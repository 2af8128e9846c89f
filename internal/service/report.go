package service

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/sakif/billing-tracker/internal/apperror"
	"github.com/sakif/billing-tracker/internal/metrics"
	"github.com/sakif/billing-tracker/internal/model"
	"github.com/sakif/billing-tracker/internal/repository"
)

// HistoryLimit is how many reports History returns.
const HistoryLimit = 12

const (
	minReportYear = 1970
	maxReportYear = 9999
)

// ReportService generates and lists monthly report snapshots, per owner.
type ReportService struct {
	customers repository.CustomerRepository
	reports   repository.ReportRepository
	metrics   *metrics.Metrics
	logger    *slog.Logger
	now       func() time.Time
}

func NewReportService(
	customers repository.CustomerRepository,
	reports repository.ReportRepository,
	m *metrics.Metrics,
	logger *slog.Logger,
) *ReportService {
	return &ReportService{
		customers: customers,
		reports:   reports,
		metrics:   m,
		logger:    logger,
		now:       time.Now,
	}
}

// GenerateMonthly computes the owner's current figures and stores them as the
// report for (month, year), replacing any earlier snapshot of that period.
//
// month is an English month name in any case and year a decimal year; either
// may be empty, meaning the current month or year.
func (s *ReportService) GenerateMonthly(ctx context.Context, userID, month, year string) (*model.Report, error) {
	now := s.now()

	m := now.Month()
	if month = strings.TrimSpace(month); month != "" {
		parsed, ok := model.ParseMonth(month)
		if !ok {
			return nil, apperror.ValidationFailed("month", "Month must be a full English month name")
		}
		m = parsed
	}

	y := now.Year()
	if year = strings.TrimSpace(year); year != "" {
		parsed, err := strconv.Atoi(year)
		if err != nil || parsed < minReportYear || parsed > maxReportYear {
			return nil, apperror.ValidationFailed("year",
				fmt.Sprintf("Year must be between %d and %d", minReportYear, maxReportYear))
		}
		y = parsed
	}

	totals, err := s.customers.Totals(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("service/report: computing totals: %w", err)
	}
	streets, err := s.customers.StreetSummaries(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("service/report: summarising streets: %w", err)
	}

	report := model.BuildReport(userID, m, y, totals, streets, now.UTC())
	if err := s.reports.UpsertReport(ctx, report); err != nil {
		return nil, fmt.Errorf("service/report: storing %s %d: %w", report.Month, y, err)
	}

	s.metrics.ReportGenerated()
	s.logger.Info("report generated",
		slog.String("userID", userID),
		slog.String("month", report.Month),
		slog.Int("year", y),
		slog.Int("customers", report.TotalCustomers),
	)

	return report, nil
}

// History returns the owner's most recent reports, newest period first.
func (s *ReportService) History(ctx context.Context, userID string) ([]model.Report, error) {
	reports, err := s.reports.ListReports(ctx, userID, HistoryLimit)
	if err != nil {
		return nil, fmt.Errorf("service/report: listing history: %w", err)
	}
	return reports, nil
}
