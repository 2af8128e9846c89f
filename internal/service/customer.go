package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/sakif/billing-tracker/internal/apperror"
	"github.com/sakif/billing-tracker/internal/cache"
	"github.com/sakif/billing-tracker/internal/metrics"
	"github.com/sakif/billing-tracker/internal/model"
	"github.com/sakif/billing-tracker/internal/repository"
	"github.com/sakif/billing-tracker/internal/spreadsheet"
)

// StatusAll is the list filter value that disables status filtering.
const StatusAll = "all"

const msgCustomerFieldsRequired = "Name, box ID and street name are required"

// NewCustomer is the input of Add. A nil or zero RechargeAmount means
// model.DefaultRechargeAmount.
type NewCustomer struct {
	Name           string
	BoxID          string
	StreetName     string
	RechargeAmount *float64
}

// CustomerUpdate is the input of Update; nil fields are left unchanged.
type CustomerUpdate struct {
	Name           *string
	StreetName     *string
	RechargeAmount *float64
	Status         *string
}

// ImportResult reports the outcome of a spreadsheet import. Rows listed in
// Errors were skipped; every other row was inserted.
type ImportResult struct {
	Imported int
	Errors   []string
}

// CustomerService holds the customer business rules. Every method takes the
// authenticated owner's userID and only ever touches that owner's data.
//
// STREET CACHE:
// ListStreets reads through the cache; every mutation invalidates the owner's
// entry afterwards. A cache failure is logged and never fails the request.
type CustomerService struct {
	customers repository.CustomerRepository
	streets   cache.StreetCache
	metrics   *metrics.Metrics
	logger    *slog.Logger
	now       func() time.Time
}

// NewCustomerService wires the service. streets and m may be nil.
func NewCustomerService(
	customers repository.CustomerRepository,
	streets cache.StreetCache,
	m *metrics.Metrics,
	logger *slog.Logger,
) *CustomerService {
	if streets == nil {
		streets = cache.Noop{}
	}
	return &CustomerService{
		customers: customers,
		streets:   streets,
		metrics:   m,
		logger:    logger,
		now:       time.Now,
	}
}

// ListStreets returns the owner's per-street summaries sorted by street name.
//
// The cache version is taken before the store is queried. If a mutation
// lands in between, its invalidation moves the version on and the summary
// written here is stored under a key no later call reads.
func (s *CustomerService) ListStreets(ctx context.Context, userID string) ([]model.StreetSummary, error) {
	version, err := s.streets.Version(ctx, userID)
	if err != nil {
		s.logger.Warn("street cache version read failed", slog.String("userID", userID), slog.String("error", err.Error()))
		return s.loadStreets(ctx, userID)
	}

	if cached, ok, err := s.streets.GetStreets(ctx, userID, version); err != nil {
		s.logger.Warn("street cache read failed", slog.String("userID", userID), slog.String("error", err.Error()))
	} else if ok {
		return cached, nil
	}

	streets, err := s.loadStreets(ctx, userID)
	if err != nil {
		return nil, err
	}

	if err := s.streets.SetStreets(ctx, userID, version, streets); err != nil {
		s.logger.Warn("street cache write failed", slog.String("userID", userID), slog.String("error", err.Error()))
	}

	return streets, nil
}

func (s *CustomerService) loadStreets(ctx context.Context, userID string) ([]model.StreetSummary, error) {
	streets, err := s.customers.StreetSummaries(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("service/customer: summarising streets: %w", err)
	}
	return streets, nil
}

// ListByStreet returns one street's customers sorted by name. status is
// "paid", "unpaid", or "all"/"" for no filter.
func (s *CustomerService) ListByStreet(ctx context.Context, userID, streetName, status string) ([]model.CustomerView, error) {
	filter := repository.CustomerFilter{StreetName: streetName}

	if status = strings.TrimSpace(status); status != "" && !strings.EqualFold(status, StatusAll) {
		st, ok := model.ParseStatus(status)
		if !ok {
			return nil, apperror.ValidationFailed("status", "Status must be paid, unpaid or all")
		}
		filter.Status = st
	}

	customers, err := s.customers.ListCustomers(ctx, userID, filter)
	if err != nil {
		return nil, fmt.Errorf("service/customer: listing street %q: %w", streetName, err)
	}
	return views(customers), nil
}

// ListAll returns every customer of the owner sorted by (street, name).
func (s *CustomerService) ListAll(ctx context.Context, userID string) ([]model.CustomerView, error) {
	customers, err := s.customers.ListCustomers(ctx, userID, repository.CustomerFilter{})
	if err != nil {
		return nil, fmt.Errorf("service/customer: listing customers: %w", err)
	}
	return views(customers), nil
}

// Add creates an unpaid customer. A boxId the owner already uses is a Conflict.
func (s *CustomerService) Add(ctx context.Context, userID string, in NewCustomer) (*model.Customer, error) {
	c := &model.Customer{
		UserID:         userID,
		Name:           strings.TrimSpace(in.Name),
		BoxID:          strings.TrimSpace(in.BoxID),
		StreetName:     strings.TrimSpace(in.StreetName),
		RechargeAmount: model.DefaultRechargeAmount,
		Status:         model.StatusUnpaid,
	}

	if c.Name == "" || c.BoxID == "" || c.StreetName == "" {
		return nil, apperror.ValidationFailed("name", msgCustomerFieldsRequired)
	}
	if in.RechargeAmount != nil {
		if *in.RechargeAmount < 0 {
			return nil, apperror.ValidationFailed("rechargeAmount", "Recharge amount must not be negative")
		}
		if *in.RechargeAmount > 0 {
			c.RechargeAmount = *in.RechargeAmount
		}
	}

	if err := s.customers.CreateCustomer(ctx, c); err != nil {
		return nil, fmt.Errorf("service/customer: adding box %q: %w", c.BoxID, err)
	}

	s.metrics.CustomerAdded()
	s.invalidate(ctx, userID)
	s.logger.Info("customer added",
		slog.String("userID", userID),
		slog.String("customerID", c.ID),
		slog.String("boxId", c.BoxID),
	)

	return c, nil
}

// Update applies the provided fields. Name and street cannot be blanked.
func (s *CustomerService) Update(ctx context.Context, userID, id string, in CustomerUpdate) (*model.Customer, error) {
	var patch repository.CustomerPatch

	if in.Name != nil {
		name := strings.TrimSpace(*in.Name)
		if name == "" {
			return nil, apperror.ValidationFailed("name", "Name cannot be empty")
		}
		patch.Name = &name
	}
	if in.StreetName != nil {
		street := strings.TrimSpace(*in.StreetName)
		if street == "" {
			return nil, apperror.ValidationFailed("streetName", "Street name cannot be empty")
		}
		patch.StreetName = &street
	}
	if in.RechargeAmount != nil {
		if *in.RechargeAmount < 0 {
			return nil, apperror.ValidationFailed("rechargeAmount", "Recharge amount must not be negative")
		}
		patch.RechargeAmount = in.RechargeAmount
	}
	if in.Status != nil {
		st, ok := model.ParseStatus(*in.Status)
		if !ok {
			return nil, apperror.ValidationFailed("status", "Status must be paid or unpaid")
		}
		patch.Status = &st
	}

	c, err := s.customers.UpdateCustomer(ctx, userID, id, patch, s.now())
	if err != nil {
		return nil, fmt.Errorf("service/customer: updating %s: %w", id, err)
	}

	s.invalidate(ctx, userID)
	s.logger.Info("customer updated", slog.String("userID", userID), slog.String("customerID", id))

	return c, nil
}

// Delete removes the customer and its payment history.
func (s *CustomerService) Delete(ctx context.Context, userID, id string) error {
	if err := s.customers.DeleteCustomer(ctx, userID, id); err != nil {
		return fmt.Errorf("service/customer: deleting %s: %w", id, err)
	}

	s.invalidate(ctx, userID)
	s.logger.Info("customer deleted", slog.String("userID", userID), slog.String("customerID", id))
	return nil
}

// MarkPaid records a payment of the current recharge amount. Calling it twice
// keeps the status paid but appends two history entries.
func (s *CustomerService) MarkPaid(ctx context.Context, userID, id string) (*model.Customer, error) {
	c, err := s.customers.MarkPaid(ctx, userID, id, s.now())
	if err != nil {
		return nil, fmt.Errorf("service/customer: marking %s paid: %w", id, err)
	}

	s.metrics.PaymentMarked()
	s.invalidate(ctx, userID)
	s.logger.Info("customer marked paid",
		slog.String("userID", userID),
		slog.String("customerID", id),
		slog.Float64("amount", c.RechargeAmount),
	)

	return c, nil
}

// ResetMonth starts a new billing cycle for the owner: every paid customer
// becomes unpaid. Payment history is kept. Returns the number changed.
func (s *CustomerService) ResetMonth(ctx context.Context, userID string) (int64, error) {
	if userID == "" {
		return 0, errors.New("service/customer: reset requires an owner")
	}

	n, err := s.customers.ResetStatuses(ctx, userID, s.now())
	if err != nil {
		return 0, fmt.Errorf("service/customer: resetting month: %w", err)
	}

	s.metrics.MonthReset()
	s.invalidate(ctx, userID)
	s.logger.Info("month reset", slog.String("userID", userID), slog.Int64("modified", n))

	return n, nil
}

// Import inserts the spreadsheet rows for the owner.
//
// Row problems never abort the import: the row is skipped and described in
// ImportResult.Errors using its spreadsheet line number. A store failure
// other than a duplicate box does abort it; rows inserted before the failure
// stay, and the result returned with the error counts them.
func (s *CustomerService) Import(ctx context.Context, userID string, rows []spreadsheet.Row) (*ImportResult, error) {
	if len(rows) == 0 {
		return nil, apperror.ValidationFailed("file", "The spreadsheet has no customer rows")
	}

	result := &ImportResult{}
	seen := make(map[string]bool, len(rows))

	for _, row := range rows {
		c, msg := customerFromRow(userID, row)
		if msg != "" {
			result.Errors = append(result.Errors, fmt.Sprintf("Row %d: %s", row.Line, msg))
			continue
		}

		// Duplicates inside the file are caught here; duplicates of boxes the
		// owner already has are caught by the store's unique index below.
		if seen[c.BoxID] {
			result.Errors = append(result.Errors, fmt.Sprintf("Row %d: Box ID %s already exists", row.Line, c.BoxID))
			continue
		}
		seen[c.BoxID] = true

		if err := s.customers.CreateCustomer(ctx, c); err != nil {
			if errors.Is(err, apperror.ErrConflict) {
				result.Errors = append(result.Errors, fmt.Sprintf("Row %d: Box ID %s already exists", row.Line, c.BoxID))
				continue
			}
			s.finishImport(ctx, userID, result)
			return result, fmt.Errorf("service/customer: importing row %d (%d rows already imported): %w", row.Line, result.Imported, err)
		}
		result.Imported++
	}

	s.finishImport(ctx, userID, result)
	s.logger.Info("customers imported",
		slog.String("userID", userID),
		slog.Int("imported", result.Imported),
		slog.Int("rejected", len(result.Errors)),
	)

	return result, nil
}

// finishImport runs on every exit of Import once rows may have been written.
func (s *CustomerService) finishImport(ctx context.Context, userID string, result *ImportResult) {
	s.metrics.CustomersImported(result.Imported)
	if result.Imported > 0 {
		s.invalidate(ctx, userID)
	}
}

// customerFromRow validates one imported row. A non-empty message means the
// row is rejected.
func customerFromRow(userID string, row spreadsheet.Row) (*model.Customer, string) {
	c := &model.Customer{
		UserID:         userID,
		Name:           strings.TrimSpace(row.Name),
		BoxID:          strings.TrimSpace(row.BoxID),
		StreetName:     strings.TrimSpace(row.StreetName),
		RechargeAmount: model.DefaultRechargeAmount,
		Status:         model.StatusUnpaid,
	}
	if c.Name == "" || c.BoxID == "" || c.StreetName == "" {
		return nil, "Missing required fields"
	}

	if raw := strings.TrimSpace(row.RechargeAmount); raw != "" {
		amount, err := strconv.ParseFloat(raw, 64)
		if err != nil || amount < 0 {
			return nil, fmt.Sprintf("Invalid recharge amount %q", raw)
		}
		if amount > 0 {
			c.RechargeAmount = amount
		}
	}

	if raw := strings.TrimSpace(row.Status); raw != "" {
		st, ok := model.ParseStatus(raw)
		if !ok {
			return nil, fmt.Sprintf("Invalid status %q", raw)
		}
		c.Status = st
	}

	return c, ""
}

// Export writes the owner's customers as an .xlsx workbook.
func (s *CustomerService) Export(ctx context.Context, userID string, w io.Writer) error {
	customers, err := s.customers.ListCustomers(ctx, userID, repository.CustomerFilter{})
	if err != nil {
		return fmt.Errorf("service/customer: loading customers for export: %w", err)
	}
	if err := spreadsheet.WriteCustomers(w, customers); err != nil {
		return fmt.Errorf("service/customer: %w", err)
	}
	return nil
}

func (s *CustomerService) invalidate(ctx context.Context, userID string) {
	if err := s.streets.Invalidate(ctx, userID); err != nil {
		s.logger.Warn("street cache invalidation failed", slog.String("userID", userID), slog.String("error", err.Error()))
	}
}

func views(customers []model.Customer) []model.CustomerView {
	out := make([]model.CustomerView, 0, len(customers))
	for i := range customers {
		out = append(out, customers[i].View())
	}
	return out
}
