package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/sakif/billing-tracker/internal/apperror"
	"github.com/sakif/billing-tracker/internal/auth"
	"github.com/sakif/billing-tracker/internal/cache"
	"github.com/sakif/billing-tracker/internal/model"
	"github.com/sakif/billing-tracker/internal/repository"
)

// MaintenanceService backs the billingctl commands: seeding, inspection and
// bulk fixes. None of it is reachable over HTTP.
type MaintenanceService struct {
	store     repository.Store
	passwords *auth.PasswordService
	streets   cache.StreetCache
	logger    *slog.Logger
}

func NewMaintenanceService(
	store repository.Store,
	passwords *auth.PasswordService,
	streets cache.StreetCache,
	logger *slog.Logger,
) *MaintenanceService {
	if streets == nil {
		streets = cache.Noop{}
	}
	return &MaintenanceService{
		store:     store,
		passwords: passwords,
		streets:   streets,
		logger:    logger,
	}
}

// EnsureAdmin returns the named user, creating it with the admin role when it
// does not exist yet. created reports whether a new account was made. An
// existing account is returned untouched (its password is not reset).
func (s *MaintenanceService) EnsureAdmin(ctx context.Context, username, password, name string) (user *model.User, created bool, err error) {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return nil, false, apperror.ValidationFailed("username", msgCredentialsRequired)
	}

	existing, err := s.store.GetUserByUsername(ctx, username)
	if err == nil {
		return existing, false, nil
	}
	if !errors.Is(err, apperror.ErrNotFound) {
		return nil, false, fmt.Errorf("service/maintenance: looking up %q: %w", username, err)
	}

	hash, err := s.passwords.Hash(password)
	if err != nil {
		return nil, false, fmt.Errorf("service/maintenance: %w", err)
	}

	user = &model.User{
		Username:     username,
		PasswordHash: hash,
		Name:         strings.TrimSpace(name),
		Role:         model.RoleAdmin,
	}
	if err := s.store.CreateUser(ctx, user); err != nil {
		// Lost a race with a concurrent seed: the account exists now.
		if errors.Is(err, apperror.ErrConflict) {
			existing, getErr := s.store.GetUserByUsername(ctx, username)
			return existing, false, getErr
		}
		return nil, false, fmt.Errorf("service/maintenance: creating %q: %w", username, err)
	}

	s.logger.Info("admin user created", slog.String("userID", user.ID), slog.String("username", username))
	return user, true, nil
}

// sample is one row of the demo data set. paidOn is empty for unpaid customers.
type sample struct {
	name, boxID, street, paidOn string
}

var sampleCustomers = []sample{
	{"John Doe", "BOX001", "Main Street", "2025-10-20"},
	{"Jane Smith", "BOX002", "Main Street", ""},
	{"Bob Johnson", "BOX003", "Main Street", "2025-10-22"},
	{"Alice Brown", "BOX004", "Main Street", ""},
	{"Charlie Wilson", "BOX005", "Main Street", "2025-10-21"},
	{"Diana Prince", "BOX006", "Main Street", ""},
	{"Edward Norton", "BOX007", "Main Street", "2025-10-19"},
	{"Fiona Green", "BOX008", "Main Street", "2025-10-23"},
	{"George Miller", "BOX009", "Main Street", ""},
	{"Hannah Lee", "BOX010", "Main Street", "2025-10-18"},

	{"David Lee", "BOX011", "Park Avenue", "2025-10-19"},
	{"Emma Davis", "BOX012", "Park Avenue", "2025-10-23"},
	{"Frank Miller", "BOX013", "Park Avenue", ""},
	{"Grace Taylor", "BOX014", "Park Avenue", "2025-10-21"},
	{"Henry Anderson", "BOX015", "Park Avenue", "2025-10-20"},
	{"Isabel Thomas", "BOX016", "Park Avenue", ""},
	{"Jack Robinson", "BOX017", "Park Avenue", "2025-10-22"},
	{"Karen White", "BOX018", "Park Avenue", "2025-10-24"},

	{"Liam Harris", "BOX019", "Oak Drive", "2025-10-20"},
	{"Mia Martin", "BOX020", "Oak Drive", ""},
	{"Noah Garcia", "BOX021", "Oak Drive", "2025-10-19"},
	{"Olivia Martinez", "BOX022", "Oak Drive", ""},
	{"Paul Rodriguez", "BOX023", "Oak Drive", "2025-10-21"},
	{"Quinn Lopez", "BOX024", "Oak Drive", "2025-10-23"},
	{"Rachel Hernandez", "BOX025", "Oak Drive", ""},
	{"Samuel Gonzalez", "BOX026", "Oak Drive", "2025-10-22"},

	{"Tina Wilson", "BOX027", "Maple Road", "2025-10-20"},
	{"Uma Patel", "BOX028", "Maple Road", "2025-10-19"},
	{"Victor Moore", "BOX029", "Maple Road", ""},
	{"Wendy Taylor", "BOX030", "Maple Road", "2025-10-21"},
	{"Xavier Brown", "BOX031", "Maple Road", "2025-10-23"},
	{"Yara Ahmed", "BOX032", "Maple Road", ""},
	{"Zack Chen", "BOX033", "Maple Road", "2025-10-24"},
}

// SeedSamples inserts the demo customers for userID. Boxes the user already
// has are skipped, so running it twice inserts nothing the second time. Paid
// samples go through MarkPaid on their payment date, which gives them one
// history entry each.
func (s *MaintenanceService) SeedSamples(ctx context.Context, userID string) (inserted, skipped int, err error) {
	for _, smp := range sampleCustomers {
		c := &model.Customer{
			UserID:         userID,
			Name:           smp.name,
			BoxID:          smp.boxID,
			StreetName:     smp.street,
			RechargeAmount: model.DefaultRechargeAmount,
			Status:         model.StatusUnpaid,
		}
		if err := s.store.CreateCustomer(ctx, c); err != nil {
			if errors.Is(err, apperror.ErrConflict) {
				skipped++
				continue
			}
			return inserted, skipped, fmt.Errorf("service/maintenance: seeding %s: %w", smp.boxID, err)
		}

		if smp.paidOn != "" {
			paidAt, err := time.Parse(time.DateOnly, smp.paidOn)
			if err != nil {
				return inserted, skipped, fmt.Errorf("service/maintenance: sample %s: %w", smp.boxID, err)
			}
			if _, err := s.store.MarkPaid(ctx, userID, c.ID, paidAt); err != nil {
				return inserted, skipped, fmt.Errorf("service/maintenance: seeding payment for %s: %w", smp.boxID, err)
			}
		}
		inserted++
	}

	s.invalidate(ctx, userID)
	s.logger.Info("sample customers seeded",
		slog.String("userID", userID),
		slog.Int("inserted", inserted),
		slog.Int("skipped", skipped),
	)
	return inserted, skipped, nil
}

// Checkup is the result of Check.
type Checkup struct {
	Users     int
	Customers int64
	Orphans   int64 // customers without an owner
	// Streets is the street summary of the user named in Check, if any.
	Streets []model.StreetSummary
}

// Check counts users and customers. With a non-empty username it also
// summarises that user's streets.
func (s *MaintenanceService) Check(ctx context.Context, username string) (*Checkup, error) {
	users, err := s.store.CountUsers(ctx)
	if err != nil {
		return nil, fmt.Errorf("service/maintenance: counting users: %w", err)
	}
	total, orphans, err := s.store.CountCustomers(ctx)
	if err != nil {
		return nil, fmt.Errorf("service/maintenance: counting customers: %w", err)
	}

	out := &Checkup{Users: users, Customers: total, Orphans: orphans}

	if username != "" {
		user, err := s.userByName(ctx, username)
		if err != nil {
			return nil, err
		}
		if out.Streets, err = s.store.StreetSummaries(ctx, user.ID); err != nil {
			return nil, fmt.Errorf("service/maintenance: summarising streets: %w", err)
		}
	}

	return out, nil
}

// Clear hard-deletes every customer of the named user.
func (s *MaintenanceService) Clear(ctx context.Context, username string) (int64, error) {
	user, err := s.userByName(ctx, username)
	if err != nil {
		return 0, err
	}

	n, err := s.store.DeleteAllCustomers(ctx, user.ID)
	if err != nil {
		return 0, fmt.Errorf("service/maintenance: clearing %q: %w", username, err)
	}

	s.invalidate(ctx, user.ID)
	s.logger.Info("customers cleared", slog.String("username", username), slog.Int64("deleted", n))
	return n, nil
}

// AssignOrphans gives every customer without an owner to the named user.
// If an orphan shares a box ID with one the user already owns, nothing is
// assigned and the Conflict is returned.
func (s *MaintenanceService) AssignOrphans(ctx context.Context, username string) (int64, error) {
	user, err := s.userByName(ctx, username)
	if err != nil {
		return 0, err
	}

	n, err := s.store.AssignOrphans(ctx, user.ID)
	if err != nil {
		return 0, fmt.Errorf("service/maintenance: assigning orphans to %q: %w", username, err)
	}

	s.invalidate(ctx, user.ID)
	s.logger.Info("orphan customers assigned", slog.String("username", username), slog.Int64("assigned", n))
	return n, nil
}

// ResetMonth resets the named user's customers to unpaid, or every user's
// when all is true.
func (s *MaintenanceService) ResetMonth(ctx context.Context, username string, all bool) (int64, error) {
	if all {
		n, err := s.store.ResetStatuses(ctx, "", time.Now())
		if err != nil {
			return 0, fmt.Errorf("service/maintenance: resetting all users: %w", err)
		}
		if err := s.streets.InvalidateAll(ctx); err != nil {
			s.logger.Warn("street cache flush failed", slog.String("error", err.Error()))
		}
		s.logger.Info("month reset for all users", slog.Int64("modified", n))
		return n, nil
	}

	user, err := s.userByName(ctx, username)
	if err != nil {
		return 0, err
	}
	n, err := s.store.ResetStatuses(ctx, user.ID, time.Now())
	if err != nil {
		return 0, fmt.Errorf("service/maintenance: resetting %q: %w", username, err)
	}

	s.invalidate(ctx, user.ID)
	s.logger.Info("month reset", slog.String("username", username), slog.Int64("modified", n))
	return n, nil
}

func (s *MaintenanceService) userByName(ctx context.Context, username string) (*model.User, error) {
	if username == "" {
		return nil, apperror.ValidationFailed("username", "A username is required")
	}
	user, err := s.store.GetUserByUsername(ctx, username)
	if err != nil {
		return nil, fmt.Errorf("service/maintenance: user %q: %w", username, err)
	}
	return user, nil
}

func (s *MaintenanceService) invalidate(ctx context.Context, userID string) {
	if err := s.streets.Invalidate(ctx, userID); err != nil {
		s.logger.Warn("street cache invalidation failed", slog.String("userID", userID), slog.String("error", err.Error()))
	}
}
