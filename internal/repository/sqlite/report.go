package sqlite

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rs/xid"

	"github.com/sakif/billing-tracker/internal/model"
)

// UpsertReport stores r, replacing an existing report for the same user and month.
//
// INSERT ... ON CONFLICT DO UPDATE:
// The unique index on (user_id, year, month_number) is the natural key. When
// it already exists, the row is updated in place and keeps its original id,
// which RETURNING hands back to us.
//
// The street breakdown is a small nested list that is always read and written
// as a whole, so it is stored as a JSON column rather than a child table.
func (db *DB) UpsertReport(ctx context.Context, r *model.Report) error {
	streets, err := json.Marshal(r.StreetWiseData)
	if err != nil {
		return fmt.Errorf("sqlite: encoding street breakdown: %w", err)
	}

	err = db.conn.QueryRowContext(ctx,
		`INSERT INTO reports
		   (id, user_id, month, month_number, year, total_customers, paid_count, unpaid_count,
		    total_amount, collected_amount, street_wise_data, generated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (user_id, year, month_number) DO UPDATE SET
		   month            = excluded.month,
		   total_customers  = excluded.total_customers,
		   paid_count       = excluded.paid_count,
		   unpaid_count     = excluded.unpaid_count,
		   total_amount     = excluded.total_amount,
		   collected_amount = excluded.collected_amount,
		   street_wise_data = excluded.street_wise_data,
		   generated_at     = excluded.generated_at
		 RETURNING id`,
		xid.New().String(),
		r.UserID,
		r.Month,
		r.MonthNumber,
		r.Year,
		r.TotalCustomers,
		r.PaidCount,
		r.UnpaidCount,
		r.TotalAmount,
		r.CollectedAmount,
		string(streets),
		r.GeneratedAt.UTC(),
	).Scan(&r.ID)
	if err != nil {
		return fmt.Errorf("sqlite: upserting report %s %d: %w", r.Month, r.Year, err)
	}

	return nil
}

// ListReports returns up to limit reports, newest period first.
// Ordering is numeric (year, month_number), so December 2023 sorts after January 2024.
func (db *DB) ListReports(ctx context.Context, userID string, limit int) ([]model.Report, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT id, user_id, month, month_number, year, total_customers, paid_count, unpaid_count,
		        total_amount, collected_amount, street_wise_data, generated_at
		 FROM reports
		 WHERE user_id = ?
		 ORDER BY year DESC, month_number DESC
		 LIMIT ?`,
		userID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing reports: %w", err)
	}
	defer rows.Close()

	reports := []model.Report{}
	for rows.Next() {
		var (
			r       model.Report
			streets string
		)
		err := rows.Scan(
			&r.ID, &r.UserID, &r.Month, &r.MonthNumber, &r.Year,
			&r.TotalCustomers, &r.PaidCount, &r.UnpaidCount,
			&r.TotalAmount, &r.CollectedAmount, &streets, &r.GeneratedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("sqlite: scanning report row: %w", err)
		}
		if err := json.Unmarshal([]byte(streets), &r.StreetWiseData); err != nil {
			return nil, fmt.Errorf("sqlite: decoding street breakdown of report %s: %w", r.ID, err)
		}
		reports = append(reports, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating report rows: %w", err)
	}

	return reports, nil
}
