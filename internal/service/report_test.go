package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/billing-tracker/internal/apperror"
	"github.com/sakif/billing-tracker/internal/metrics"
	"github.com/sakif/billing-tracker/internal/model"
)

func TestGenerateMonthly(t *testing.T) {
	db := newTestStore(t)
	ctx := context.Background()
	userID := newTestUser(t, db, "admin")

	customers := NewCustomerService(db, nil, nil, quietLogger())
	customers.now = func() time.Time { return fixedNow }
	a, _ := customers.Add(ctx, userID, NewCustomer{Name: "A", BoxID: "1", StreetName: "Main", RechargeAmount: amount(200)})
	_, _ = customers.Add(ctx, userID, NewCustomer{Name: "B", BoxID: "2", StreetName: "Main", RechargeAmount: amount(300)})
	_, _ = customers.Add(ctx, userID, NewCustomer{Name: "C", BoxID: "3", StreetName: "Oak"})
	_, err := customers.MarkPaid(ctx, userID, a.ID)
	require.NoError(t, err)

	// Another tenant's data must not leak into the report.
	otherID := newTestUser(t, db, "other")
	_, _ = customers.Add(ctx, otherID, NewCustomer{Name: "X", BoxID: "1", StreetName: "Elsewhere"})

	svc := NewReportService(db, db, metrics.New(), quietLogger())
	svc.now = func() time.Time { return fixedNow }

	report, err := svc.GenerateMonthly(ctx, userID, "", "")
	require.NoError(t, err)

	assert.Equal(t, "March", report.Month)
	assert.Equal(t, 3, report.MonthNumber)
	assert.Equal(t, 2025, report.Year)
	assert.Equal(t, 3, report.TotalCustomers)
	assert.Equal(t, 1, report.PaidCount)
	assert.Equal(t, 2, report.UnpaidCount)
	assert.Equal(t, 1000.0, report.TotalAmount)
	assert.Equal(t, 200.0, report.CollectedAmount)
	assert.Equal(t, []model.StreetBreakdown{
		{StreetName: "Main", TotalCustomers: 2, PaidCount: 1, UnpaidCount: 1, TotalAmount: 500},
		{StreetName: "Oak", TotalCustomers: 1, PaidCount: 0, UnpaidCount: 1, TotalAmount: 500},
	}, report.StreetWiseData)
}

func TestGenerateMonthly_ExplicitPeriodAndValidation(t *testing.T) {
	db := newTestStore(t)
	userID := newTestUser(t, db, "admin")
	svc := NewReportService(db, db, nil, quietLogger())
	svc.now = func() time.Time { return fixedNow }

	report, err := svc.GenerateMonthly(context.Background(), userID, "december", "2024")
	require.NoError(t, err)
	assert.Equal(t, "December", report.Month)
	assert.Equal(t, 12, report.MonthNumber)
	assert.Equal(t, 2024, report.Year)

	tests := []struct {
		name, month, year string
	}{
		{"unknown month", "Smarch", ""},
		{"numeric month", "3", ""},
		{"non-numeric year", "", "twenty"},
		{"year too small", "", "1969"},
		{"year too large", "", "10000"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.GenerateMonthly(context.Background(), userID, tt.month, tt.year)
			assert.ErrorIs(t, err, apperror.ErrValidation)
		})
	}
}

func TestHistory_CalendarOrderAcrossYears(t *testing.T) {
	db := newTestStore(t)
	ctx := context.Background()
	userID := newTestUser(t, db, "admin")
	svc := NewReportService(db, db, nil, quietLogger())
	svc.now = func() time.Time { return fixedNow }

	for _, p := range []struct{ month, year string }{
		{"January", "2025"},
		{"April", "2024"},
		{"December", "2024"},
		{"February", "2025"},
	} {
		_, err := svc.GenerateMonthly(ctx, userID, p.month, p.year)
		require.NoError(t, err)
	}
	// Regenerating a period replaces it rather than adding a row.
	_, err := svc.GenerateMonthly(ctx, userID, "january", "2025")
	require.NoError(t, err)

	history, err := svc.History(ctx, userID)
	require.NoError(t, err)

	var got []string
	for _, r := range history {
		got = append(got, r.Month)
	}
	assert.Equal(t, []string{"February", "January", "December", "April"}, got)
}

func TestHistory_Limit(t *testing.T) {
	db := newTestStore(t)
	ctx := context.Background()
	userID := newTestUser(t, db, "admin")
	svc := NewReportService(db, db, nil, quietLogger())
	svc.now = func() time.Time { return fixedNow }

	for m := time.January; m <= time.December; m++ {
		_, err := svc.GenerateMonthly(ctx, userID, m.String(), "2023")
		require.NoError(t, err)
		_, err = svc.GenerateMonthly(ctx, userID, m.String(), "2024")
		require.NoError(t, err)
	}

	history, err := svc.History(ctx, userID)
	require.NoError(t, err)
	require.Len(t, history, HistoryLimit)
	assert.Equal(t, 2024, history[0].Year)
	assert.Equal(t, "December", history[0].Month)
	assert.Equal(t, "January", history[HistoryLimit-1].Month)
}
