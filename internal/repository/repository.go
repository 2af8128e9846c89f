// Package repository declares the storage contracts the service layer depends on.
//
// Two backends implement them: repository/sqlite (embedded, the default) and
// repository/mongo (document store). Every customer and report method takes the
// owning user's ID and never touches another user's rows.
package repository

import (
	"context"
	"time"

	"github.com/sakif/billing-tracker/internal/model"
)

// CustomerFilter narrows ListCustomers. Zero values mean "no filter".
type CustomerFilter struct {
	StreetName string
	Status     model.CustomerStatus
}

// CustomerPatch carries the optional fields of an update. nil means "leave as is".
type CustomerPatch struct {
	Name           *string
	StreetName     *string
	RechargeAmount *float64
	Status         *model.CustomerStatus
}

type UserRepository interface {
	// CreateUser fills in ID and CreatedAt. A duplicate username is an apperror.Conflict.
	CreateUser(ctx context.Context, user *model.User) error
	GetUserByUsername(ctx context.Context, username string) (*model.User, error)
	GetUserByID(ctx context.Context, id string) (*model.User, error)
	CountUsers(ctx context.Context) (int, error)
}

type CustomerRepository interface {
	// CreateCustomer fills in ID and timestamps. A boxId already used by the same
	// owner is an apperror.Conflict; the check and the insert are one atomic step.
	CreateCustomer(ctx context.Context, c *model.Customer) error
	GetCustomer(ctx context.Context, userID, id string) (*model.Customer, error)
	// ListCustomers returns customers sorted by (streetName, name).
	ListCustomers(ctx context.Context, userID string, filter CustomerFilter) ([]model.Customer, error)
	UpdateCustomer(ctx context.Context, userID, id string, patch CustomerPatch, at time.Time) (*model.Customer, error)
	DeleteCustomer(ctx context.Context, userID, id string) error
	// MarkPaid sets status=paid, lastPaymentDate=at and appends one history
	// entry for the current recharge amount, atomically.
	MarkPaid(ctx context.Context, userID, id string, at time.Time) (*model.Customer, error)
	// ResetStatuses sets every customer of userID back to unpaid and returns how
	// many were changed. An empty userID resets all users.
	ResetStatuses(ctx context.Context, userID string, at time.Time) (int64, error)
	// StreetSummaries groups the owner's customers by street, sorted by name.
	StreetSummaries(ctx context.Context, userID string) ([]model.StreetSummary, error)
	Totals(ctx context.Context, userID string) (model.Totals, error)

	// Maintenance operations used by the CLI.
	DeleteAllCustomers(ctx context.Context, userID string) (int64, error)
	AssignOrphans(ctx context.Context, userID string) (int64, error)
	CountCustomers(ctx context.Context) (total int64, orphans int64, err error)
}

type ReportRepository interface {
	// UpsertReport stores r, replacing any report with the same
	// (UserID, MonthNumber, Year). r.ID is filled in.
	UpsertReport(ctx context.Context, r *model.Report) error
	// ListReports returns the newest reports first, by (year, monthNumber).
	ListReports(ctx context.Context, userID string, limit int) ([]model.Report, error)
}

// Store is everything a backend provides. Both backends return a single
// concrete type implementing all of it.
type Store interface {
	UserRepository
	CustomerRepository
	ReportRepository
	Ping(ctx context.Context) error
	Close() error
}
