package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/xid"

	"github.com/sakif/billing-tracker/internal/apperror"
	"github.com/sakif/billing-tracker/internal/model"
	"github.com/sakif/billing-tracker/internal/repository"
)

const customerColumns = `id, COALESCE(user_id, ''), name, box_id, street_name, recharge_amount,
	status, last_payment_date, created_at, updated_at`

// CreateCustomer inserts a customer owned by c.UserID.
// A duplicate (user_id, box_id) is rejected by the unique index and reported as a Conflict.
func (db *DB) CreateCustomer(ctx context.Context, c *model.Customer) error {
	now := time.Now().UTC()
	c.ID = xid.New().String()
	c.CreatedAt = now
	c.UpdatedAt = now
	if c.Status == "" {
		c.Status = model.StatusUnpaid
	}

	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO customers
		   (id, user_id, name, box_id, street_name, recharge_amount, status, last_payment_date, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID,
		c.UserID,
		c.Name,
		c.BoxID,
		c.StreetName,
		c.RechargeAmount,
		string(c.Status),
		nullable(c.LastPaymentDate),
		c.CreatedAt,
		c.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return apperror.Conflict("boxId", "Box ID already exists in your account")
		}
		return fmt.Errorf("sqlite: inserting customer (box %s): %w", c.BoxID, err)
	}

	return nil
}

// GetCustomer returns one customer including its payment history.
// A customer owned by someone else is reported exactly like a missing one.
func (db *DB) GetCustomer(ctx context.Context, userID, id string) (*model.Customer, error) {
	c, err := scanCustomer(db.conn.QueryRowContext(ctx,
		`SELECT `+customerColumns+` FROM customers WHERE id = ? AND user_id = ?`,
		id, userID,
	))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("Customer")
		}
		return nil, fmt.Errorf("sqlite: getting customer %s: %w", id, err)
	}

	history, err := db.paymentHistory(ctx, c.ID)
	if err != nil {
		return nil, err
	}
	c.PaymentHistory = history

	return c, nil
}

// ListCustomers returns the owner's customers sorted by (street_name, name).
// Payment history is not loaded; list views never show it.
func (db *DB) ListCustomers(ctx context.Context, userID string, filter repository.CustomerFilter) ([]model.Customer, error) {
	var (
		where = []string{"user_id = ?"}
		args  = []any{userID}
	)
	if filter.StreetName != "" {
		where = append(where, "street_name = ?")
		args = append(args, filter.StreetName)
	}
	if filter.Status != "" {
		where = append(where, "status = ?")
		args = append(args, string(filter.Status))
	}

	rows, err := db.conn.QueryContext(ctx,
		`SELECT `+customerColumns+` FROM customers
		 WHERE `+strings.Join(where, " AND ")+`
		 ORDER BY street_name ASC, name ASC`,
		args...,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing customers: %w", err)
	}
	defer rows.Close()

	// Initialise to an empty slice (not nil) so JSON encodes "[]" not "null".
	customers := []model.Customer{}
	for rows.Next() {
		c, err := scanCustomer(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite: scanning customer row: %w", err)
		}
		customers = append(customers, *c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating customer rows: %w", err)
	}

	return customers, nil
}

// UpdateCustomer applies the non-nil fields of patch.
//
// COALESCE(?, column) keeps the current value when the parameter is NULL,
// so a single statement handles every combination of optional fields.
func (db *DB) UpdateCustomer(ctx context.Context, userID, id string, patch repository.CustomerPatch, at time.Time) (*model.Customer, error) {
	var status any
	if patch.Status != nil {
		status = string(*patch.Status)
	}

	result, err := db.conn.ExecContext(ctx,
		`UPDATE customers SET
		   name            = COALESCE(?, name),
		   street_name     = COALESCE(?, street_name),
		   recharge_amount = COALESCE(?, recharge_amount),
		   status          = COALESCE(?, status),
		   updated_at      = ?
		 WHERE id = ? AND user_id = ?`,
		nullable(patch.Name),
		nullable(patch.StreetName),
		nullable(patch.RechargeAmount),
		status,
		at.UTC(),
		id, userID,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: updating customer %s: %w", id, err)
	}

	if err := requireAffected(result, "Customer"); err != nil {
		return nil, err
	}

	return db.GetCustomer(ctx, userID, id)
}

// DeleteCustomer removes the customer and, through ON DELETE CASCADE, its history.
func (db *DB) DeleteCustomer(ctx context.Context, userID, id string) error {
	result, err := db.conn.ExecContext(ctx,
		`DELETE FROM customers WHERE id = ? AND user_id = ?`, id, userID,
	)
	if err != nil {
		return fmt.Errorf("sqlite: deleting customer %s: %w", id, err)
	}
	return requireAffected(result, "Customer")
}

// MarkPaid flips the customer to paid and appends a history entry in one transaction.
//
// TRANSACTION PATTERN:
//
//	tx, _ := db.BeginTx(ctx, nil)
//	defer tx.Rollback()   // no-op after a successful Commit
//	... tx.ExecContext ...
//	tx.Commit()
//
// Either both the status change and the history row are stored, or neither is.
func (db *DB) MarkPaid(ctx context.Context, userID, id string, at time.Time) (*model.Customer, error) {
	at = at.UTC()

	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("sqlite: beginning mark-paid tx: %w", err)
	}
	defer tx.Rollback()

	var amount float64
	err = tx.QueryRowContext(ctx,
		`UPDATE customers
		 SET status = 'paid', last_payment_date = ?, updated_at = ?
		 WHERE id = ? AND user_id = ?
		 RETURNING recharge_amount`,
		at, at, id, userID,
	).Scan(&amount)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("Customer")
		}
		return nil, fmt.Errorf("sqlite: marking customer %s paid: %w", id, err)
	}

	entry := model.NewPaymentEntry(at, amount)
	_, err = tx.ExecContext(ctx,
		`INSERT INTO payment_history (customer_id, paid_at, amount, month, year)
		 VALUES (?, ?, ?, ?, ?)`,
		id, entry.Date, entry.Amount, entry.Month, entry.Year,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: appending payment history for %s: %w", id, err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("sqlite: committing mark-paid: %w", err)
	}

	return db.GetCustomer(ctx, userID, id)
}

// ResetStatuses sets paid customers back to unpaid. Payment history is kept.
// An empty userID resets every user's customers.
func (db *DB) ResetStatuses(ctx context.Context, userID string, at time.Time) (int64, error) {
	result, err := db.conn.ExecContext(ctx,
		`UPDATE customers SET status = 'unpaid', updated_at = ?
		 WHERE status <> 'unpaid' AND (? = '' OR user_id = ?)`,
		at.UTC(), userID, userID,
	)
	if err != nil {
		return 0, fmt.Errorf("sqlite: resetting statuses: %w", err)
	}
	return result.RowsAffected()
}

// StreetSummaries groups the owner's customers by street in SQL.
//
// COALESCE guards the SUMs: SUM over zero rows is NULL in SQL, which
// cannot be scanned into an int.
func (db *DB) StreetSummaries(ctx context.Context, userID string) ([]model.StreetSummary, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT street_name,
		        COUNT(*),
		        COALESCE(SUM(CASE WHEN status = 'paid' THEN 1 ELSE 0 END), 0),
		        COALESCE(SUM(CASE WHEN status = 'unpaid' THEN 1 ELSE 0 END), 0),
		        COALESCE(SUM(recharge_amount), 0)
		 FROM customers
		 WHERE user_id = ?
		 GROUP BY street_name
		 ORDER BY street_name ASC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: summarising streets: %w", err)
	}
	defer rows.Close()

	streets := []model.StreetSummary{}
	for rows.Next() {
		var s model.StreetSummary
		if err := rows.Scan(&s.Name, &s.TotalCustomers, &s.PaidCount, &s.UnpaidCount, &s.TotalAmount); err != nil {
			return nil, fmt.Errorf("sqlite: scanning street row: %w", err)
		}
		streets = append(streets, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating street rows: %w", err)
	}

	return streets, nil
}

// Totals computes the account-wide figures for a monthly report.
func (db *DB) Totals(ctx context.Context, userID string) (model.Totals, error) {
	var t model.Totals
	err := db.conn.QueryRowContext(ctx,
		`SELECT COUNT(*),
		        COALESCE(SUM(CASE WHEN status = 'paid' THEN 1 ELSE 0 END), 0),
		        COALESCE(SUM(CASE WHEN status = 'unpaid' THEN 1 ELSE 0 END), 0),
		        COALESCE(SUM(recharge_amount), 0),
		        COALESCE(SUM(CASE WHEN status = 'paid' THEN recharge_amount ELSE 0 END), 0)
		 FROM customers
		 WHERE user_id = ?`,
		userID,
	).Scan(&t.TotalCustomers, &t.PaidCount, &t.UnpaidCount, &t.TotalAmount, &t.CollectedAmount)
	if err != nil {
		return model.Totals{}, fmt.Errorf("sqlite: computing totals: %w", err)
	}
	return t, nil
}

// DeleteAllCustomers hard-deletes every customer of userID.
func (db *DB) DeleteAllCustomers(ctx context.Context, userID string) (int64, error) {
	result, err := db.conn.ExecContext(ctx, `DELETE FROM customers WHERE user_id = ?`, userID)
	if err != nil {
		return 0, fmt.Errorf("sqlite: clearing customers: %w", err)
	}
	return result.RowsAffected()
}

// AssignOrphans gives every ownerless customer to userID.
func (db *DB) AssignOrphans(ctx context.Context, userID string) (int64, error) {
	result, err := db.conn.ExecContext(ctx,
		`UPDATE customers SET user_id = ?, updated_at = ?
		 WHERE user_id IS NULL OR user_id = ''`,
		userID, time.Now().UTC(),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return 0, apperror.Conflict("boxId", "an orphaned customer shares a box ID with one the user already owns")
		}
		return 0, fmt.Errorf("sqlite: assigning orphans: %w", err)
	}
	return result.RowsAffected()
}

// CountCustomers returns the total number of customers and how many have no owner.
func (db *DB) CountCustomers(ctx context.Context) (int64, int64, error) {
	var total, orphans int64
	err := db.conn.QueryRowContext(ctx,
		`SELECT COUNT(*),
		        COALESCE(SUM(CASE WHEN user_id IS NULL OR user_id = '' THEN 1 ELSE 0 END), 0)
		 FROM customers`,
	).Scan(&total, &orphans)
	if err != nil {
		return 0, 0, fmt.Errorf("sqlite: counting customers: %w", err)
	}
	return total, orphans, nil
}

func (db *DB) paymentHistory(ctx context.Context, customerID string) ([]model.PaymentEntry, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT paid_at, amount, month, year FROM payment_history
		 WHERE customer_id = ? ORDER BY id ASC`,
		customerID,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: loading payment history for %s: %w", customerID, err)
	}
	defer rows.Close()

	history := []model.PaymentEntry{}
	for rows.Next() {
		var e model.PaymentEntry
		if err := rows.Scan(&e.Date, &e.Amount, &e.Month, &e.Year); err != nil {
			return nil, fmt.Errorf("sqlite: scanning payment row: %w", err)
		}
		history = append(history, e)
	}
	return history, rows.Err()
}

// rowScanner is satisfied by both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanCustomer(row rowScanner) (*model.Customer, error) {
	var (
		c           model.Customer
		status      string
		lastPayment sql.NullTime
	)
	err := row.Scan(
		&c.ID,
		&c.UserID,
		&c.Name,
		&c.BoxID,
		&c.StreetName,
		&c.RechargeAmount,
		&status,
		&lastPayment,
		&c.CreatedAt,
		&c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	c.Status = model.CustomerStatus(status)
	if lastPayment.Valid {
		t := lastPayment.Time
		c.LastPaymentDate = &t
	}
	return &c, nil
}

// requireAffected turns "0 rows affected" into a NotFound for resource.
func requireAffected(result sql.Result, resource string) error {
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: checking rows affected: %w", err)
	}
	if n == 0 {
		return apperror.NotFound(resource)
	}
	return nil
}
