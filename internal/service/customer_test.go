package service

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/billing-tracker/internal/apperror"
	"github.com/sakif/billing-tracker/internal/cache"
	"github.com/sakif/billing-tracker/internal/metrics"
	"github.com/sakif/billing-tracker/internal/model"
	sqliteRepo "github.com/sakif/billing-tracker/internal/repository/sqlite"
	"github.com/sakif/billing-tracker/internal/spreadsheet"
)

func newTestCustomerService(t *testing.T) (*CustomerService, *sqliteRepo.DB, *fakeStreetCache) {
	t.Helper()
	db := newTestStore(t)
	streets := newFakeStreetCache()
	svc := NewCustomerService(db, streets, metrics.New(), quietLogger())
	svc.now = func() time.Time { return fixedNow }
	return svc, db, streets
}

func amount(v float64) *float64 { return &v }
func str(v string) *string      { return &v }

func TestAdd_DefaultsAndRoundTrip(t *testing.T) {
	svc, db, _ := newTestCustomerService(t)
	ctx := context.Background()
	userID := newTestUser(t, db, "admin")

	c, err := svc.Add(ctx, userID, NewCustomer{Name: " John Smith ", BoxID: "MS001", StreetName: "Main Street"})
	require.NoError(t, err)
	assert.Equal(t, model.DefaultRechargeAmount, c.RechargeAmount)
	assert.Equal(t, model.StatusUnpaid, c.Status)

	all, err := svc.ListAll(ctx, userID)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, model.CustomerView{
		ID:          c.ID,
		Name:        "John Smith",
		BoxID:       "MS001",
		StreetName:  "Main Street",
		Amount:      500,
		Status:      model.StatusUnpaid,
		LastPayment: model.NeverPaid,
	}, all[0])
}

func TestAdd_Validation(t *testing.T) {
	svc, db, _ := newTestCustomerService(t)
	userID := newTestUser(t, db, "admin")

	tests := []struct {
		name string
		in   NewCustomer
	}{
		{"missing name", NewCustomer{BoxID: "B1", StreetName: "S"}},
		{"blank box", NewCustomer{Name: "N", BoxID: "  ", StreetName: "S"}},
		{"missing street", NewCustomer{Name: "N", BoxID: "B1"}},
		{"negative amount", NewCustomer{Name: "N", BoxID: "B1", StreetName: "S", RechargeAmount: amount(-1)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Add(context.Background(), userID, tt.in)
			assert.ErrorIs(t, err, apperror.ErrValidation)
		})
	}
}

func TestAdd_ZeroAmountMeansDefault(t *testing.T) {
	svc, db, _ := newTestCustomerService(t)
	userID := newTestUser(t, db, "admin")

	c, err := svc.Add(context.Background(), userID, NewCustomer{Name: "N", BoxID: "B1", StreetName: "S", RechargeAmount: amount(0)})
	require.NoError(t, err)
	assert.Equal(t, model.DefaultRechargeAmount, c.RechargeAmount)

	c, err = svc.Add(context.Background(), userID, NewCustomer{Name: "N", BoxID: "B2", StreetName: "S", RechargeAmount: amount(750)})
	require.NoError(t, err)
	assert.Equal(t, 750.0, c.RechargeAmount)
}

func TestAdd_DuplicateBoxIsConflictAndNothingIsAdded(t *testing.T) {
	svc, db, _ := newTestCustomerService(t)
	ctx := context.Background()
	userID := newTestUser(t, db, "admin")

	_, err := svc.Add(ctx, userID, NewCustomer{Name: "John Smith", BoxID: "MS001", StreetName: "Main Street"})
	require.NoError(t, err)

	_, err = svc.Add(ctx, userID, NewCustomer{Name: "Someone Else", BoxID: "MS001", StreetName: "Oak Drive"})
	require.ErrorIs(t, err, apperror.ErrConflict)

	all, err := svc.ListAll(ctx, userID)
	require.NoError(t, err)
	assert.Len(t, all, 1)

	// Another user may use the same box ID.
	otherID := newTestUser(t, db, "other")
	_, err = svc.Add(ctx, otherID, NewCustomer{Name: "Other", BoxID: "MS001", StreetName: "Main Street"})
	assert.NoError(t, err)
}

// Scenario: register, add, list streets, mark paid, filter by status, reset.
func TestCustomerLifecycle(t *testing.T) {
	svc, db, _ := newTestCustomerService(t)
	ctx := context.Background()
	userID := newTestUser(t, db, "admin")

	c, err := svc.Add(ctx, userID, NewCustomer{Name: "John Smith", BoxID: "MS001", StreetName: "Main Street", RechargeAmount: amount(500)})
	require.NoError(t, err)

	streets, err := svc.ListStreets(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, []model.StreetSummary{
		{Name: "Main Street", TotalCustomers: 1, PaidCount: 0, UnpaidCount: 1, TotalAmount: 500},
	}, streets)

	_, err = svc.MarkPaid(ctx, userID, c.ID)
	require.NoError(t, err)

	paid, err := svc.ListByStreet(ctx, userID, "Main Street", "paid")
	require.NoError(t, err)
	require.Len(t, paid, 1)
	assert.Equal(t, "2025-03-15", paid[0].LastPayment)

	unpaid, err := svc.ListByStreet(ctx, userID, "Main Street", "unpaid")
	require.NoError(t, err)
	assert.Empty(t, unpaid)

	n, err := svc.ResetMonth(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	streets, err = svc.ListStreets(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, 0, streets[0].PaidCount)
	assert.Equal(t, 1, streets[0].UnpaidCount)

	stored, err := db.GetCustomer(ctx, userID, c.ID)
	require.NoError(t, err)
	assert.Len(t, stored.PaymentHistory, 1, "reset keeps the payment history")
}

func TestMarkPaid_TwiceAppendsTwoEntries(t *testing.T) {
	svc, db, _ := newTestCustomerService(t)
	ctx := context.Background()
	userID := newTestUser(t, db, "admin")
	c, _ := svc.Add(ctx, userID, NewCustomer{Name: "N", BoxID: "B1", StreetName: "S"})

	_, err := svc.MarkPaid(ctx, userID, c.ID)
	require.NoError(t, err)
	got, err := svc.MarkPaid(ctx, userID, c.ID)
	require.NoError(t, err)

	assert.Equal(t, model.StatusPaid, got.Status)
	require.Len(t, got.PaymentHistory, 2)
	assert.Equal(t, "March", got.PaymentHistory[1].Month)
	assert.Equal(t, 2025, got.PaymentHistory[1].Year)
}

func TestOtherUsersCustomerIsNotFound(t *testing.T) {
	svc, db, _ := newTestCustomerService(t)
	ctx := context.Background()
	owner := newTestUser(t, db, "owner")
	intruder := newTestUser(t, db, "intruder")
	c, _ := svc.Add(ctx, owner, NewCustomer{Name: "N", BoxID: "B1", StreetName: "S"})

	_, err := svc.MarkPaid(ctx, intruder, c.ID)
	assert.ErrorIs(t, err, apperror.ErrNotFound)
	_, err = svc.Update(ctx, intruder, c.ID, CustomerUpdate{Name: str("Hijacked")})
	assert.ErrorIs(t, err, apperror.ErrNotFound)
	assert.ErrorIs(t, svc.Delete(ctx, intruder, c.ID), apperror.ErrNotFound)

	all, _ := svc.ListAll(ctx, intruder)
	assert.Empty(t, all)
}

func TestUpdate(t *testing.T) {
	svc, db, _ := newTestCustomerService(t)
	ctx := context.Background()
	userID := newTestUser(t, db, "admin")
	c, _ := svc.Add(ctx, userID, NewCustomer{Name: "N", BoxID: "B1", StreetName: "S"})

	got, err := svc.Update(ctx, userID, c.ID, CustomerUpdate{
		StreetName:     str("Oak Drive"),
		RechargeAmount: amount(300),
		Status:         str("Paid"),
	})
	require.NoError(t, err)
	assert.Equal(t, "N", got.Name)
	assert.Equal(t, "Oak Drive", got.StreetName)
	assert.Equal(t, 300.0, got.RechargeAmount)
	assert.Equal(t, model.StatusPaid, got.Status)

	_, err = svc.Update(ctx, userID, c.ID, CustomerUpdate{Name: str("  ")})
	assert.ErrorIs(t, err, apperror.ErrValidation)
	_, err = svc.Update(ctx, userID, c.ID, CustomerUpdate{Status: str("overdue")})
	assert.ErrorIs(t, err, apperror.ErrValidation)
	_, err = svc.Update(ctx, userID, c.ID, CustomerUpdate{RechargeAmount: amount(-5)})
	assert.ErrorIs(t, err, apperror.ErrValidation)
}

func TestListByStreet_StatusFilter(t *testing.T) {
	svc, db, _ := newTestCustomerService(t)
	ctx := context.Background()
	userID := newTestUser(t, db, "admin")
	a, _ := svc.Add(ctx, userID, NewCustomer{Name: "Zed", BoxID: "B1", StreetName: "Main"})
	_, _ = svc.Add(ctx, userID, NewCustomer{Name: "Amy", BoxID: "B2", StreetName: "Main"})
	_, _ = svc.Add(ctx, userID, NewCustomer{Name: "Bob", BoxID: "B3", StreetName: "Oak"})
	_, _ = svc.MarkPaid(ctx, userID, a.ID)

	for _, status := range []string{"", "all", "ALL"} {
		got, err := svc.ListByStreet(ctx, userID, "Main", status)
		require.NoError(t, err)
		require.Len(t, got, 2, "status %q", status)
		assert.Equal(t, "Amy", got[0].Name, "sorted by name")
	}

	_, err := svc.ListByStreet(ctx, userID, "Main", "sometimes")
	assert.ErrorIs(t, err, apperror.ErrValidation)
}

func TestStreetsAgreeWithFlatList(t *testing.T) {
	svc, db, _ := newTestCustomerService(t)
	ctx := context.Background()
	userID := newTestUser(t, db, "admin")
	for i, in := range []NewCustomer{
		{Name: "A", BoxID: "1", StreetName: "Main", RechargeAmount: amount(100)},
		{Name: "B", BoxID: "2", StreetName: "Main", RechargeAmount: amount(250)},
		{Name: "C", BoxID: "3", StreetName: "Oak"},
		{Name: "D", BoxID: "4", StreetName: "Park", RechargeAmount: amount(80)},
	} {
		_, err := svc.Add(ctx, userID, in)
		require.NoError(t, err, "customer %d", i)
	}

	streets, err := svc.ListStreets(ctx, userID)
	require.NoError(t, err)
	all, err := svc.ListAll(ctx, userID)
	require.NoError(t, err)

	var count int
	var sum, flatSum float64
	for _, s := range streets {
		count += s.TotalCustomers
		sum += s.TotalAmount
	}
	for _, c := range all {
		flatSum += c.Amount
	}
	assert.Equal(t, len(all), count)
	assert.InDelta(t, flatSum, sum, 0.001)
}

func TestListStreets_UsesAndInvalidatesCache(t *testing.T) {
	svc, db, streets := newTestCustomerService(t)
	ctx := context.Background()
	userID := newTestUser(t, db, "admin")

	_, err := svc.Add(ctx, userID, NewCustomer{Name: "A", BoxID: "1", StreetName: "Main"})
	require.NoError(t, err)
	assert.Equal(t, []string{userID}, streets.invalidated)

	_, err = svc.ListStreets(ctx, userID)
	require.NoError(t, err)
	require.Contains(t, streets.entries, userID)

	// A stale cached value is served until the next mutation.
	entry := streets.entries[userID]
	entry.streets = []model.StreetSummary{{Name: "Cached"}}
	streets.entries[userID] = entry
	got, err := svc.ListStreets(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, "Cached", got[0].Name)

	_, err = svc.Add(ctx, userID, NewCustomer{Name: "B", BoxID: "2", StreetName: "Oak"})
	require.NoError(t, err)
	got, err = svc.ListStreets(ctx, userID)
	require.NoError(t, err)
	assert.Len(t, got, 2)
}

func TestListStreets_CacheErrorFallsThrough(t *testing.T) {
	svc, db, streets := newTestCustomerService(t)
	userID := newTestUser(t, db, "admin")
	streets.getErr = errors.New("redis down")

	_, err := svc.Add(context.Background(), userID, NewCustomer{Name: "A", BoxID: "1", StreetName: "Main"})
	require.NoError(t, err)

	got, err := svc.ListStreets(context.Background(), userID)
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

func TestListStreets_VersionErrorSkipsCache(t *testing.T) {
	svc, db, streets := newTestCustomerService(t)
	userID := newTestUser(t, db, "admin")
	streets.versionErr = errors.New("redis down")

	_, err := svc.Add(context.Background(), userID, NewCustomer{Name: "A", BoxID: "1", StreetName: "Main"})
	require.NoError(t, err)

	got, err := svc.ListStreets(context.Background(), userID)
	require.NoError(t, err)
	assert.Len(t, got, 1)
	assert.Empty(t, streets.entries, "nothing is cached without a version")
}

// racingStore lets a mutation commit while a street summary is being loaded,
// the way a concurrent request would.
type racingStore struct {
	*sqliteRepo.DB
	during func()
}

func (r *racingStore) StreetSummaries(ctx context.Context, userID string) ([]model.StreetSummary, error) {
	streets, err := r.DB.StreetSummaries(ctx, userID)
	if r.during != nil {
		during := r.during
		r.during = nil
		during()
	}
	return streets, err
}

func TestListStreets_MutationDuringLoadIsNotCached(t *testing.T) {
	db := newTestStore(t)
	ctx := context.Background()
	userID := newTestUser(t, db, "admin")

	mr := miniredis.RunT(t)
	rc := cache.NewRedisFromClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}), 5*time.Minute)
	t.Cleanup(func() { rc.Close() })

	store := &racingStore{DB: db}
	svc := NewCustomerService(store, rc, nil, quietLogger())

	c, err := svc.Add(ctx, userID, NewCustomer{Name: "Ann", BoxID: "B1", StreetName: "Main Street"})
	require.NoError(t, err)

	store.during = func() {
		_, err := svc.MarkPaid(ctx, userID, c.ID)
		require.NoError(t, err)
	}

	// This load started before the payment, so it may return the old figures...
	first, err := svc.ListStreets(ctx, userID)
	require.NoError(t, err)
	require.Len(t, first, 1)
	assert.Equal(t, 0, first[0].PaidCount)

	// ...but the next call must see the payment.
	second, err := svc.ListStreets(ctx, userID)
	require.NoError(t, err)
	require.Len(t, second, 1)
	assert.Equal(t, 1, second[0].PaidCount)
	assert.Equal(t, 0, second[0].UnpaidCount)
}

// flakyStore fails every CreateCustomer after the first okCreates calls.
type flakyStore struct {
	*sqliteRepo.DB
	okCreates int
}

func (f *flakyStore) CreateCustomer(ctx context.Context, c *model.Customer) error {
	if f.okCreates == 0 {
		return errors.New("disk I/O error")
	}
	f.okCreates--
	return f.DB.CreateCustomer(ctx, c)
}

func TestImport_StoreFailureKeepsCacheConsistent(t *testing.T) {
	db := newTestStore(t)
	ctx := context.Background()
	userID := newTestUser(t, db, "admin")
	streets := newFakeStreetCache()
	svc := NewCustomerService(&flakyStore{DB: db, okCreates: 1}, streets, nil, quietLogger())

	// Warm the cache with the empty street list.
	got, err := svc.ListStreets(ctx, userID)
	require.NoError(t, err)
	assert.Empty(t, got)

	result, err := svc.Import(ctx, userID, []spreadsheet.Row{
		{Line: 2, Name: "Ann", BoxID: "B1", StreetName: "Main Street"},
		{Line: 3, Name: "Bob", BoxID: "B2", StreetName: "Main Street"},
	})
	require.Error(t, err)
	assert.NotErrorIs(t, err, apperror.ErrValidation)
	require.NotNil(t, result)
	assert.Equal(t, 1, result.Imported)
	assert.Contains(t, streets.invalidated, userID)

	// The row written before the failure shows up in the street summary.
	got, err = svc.ListStreets(ctx, userID)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, 1, got[0].TotalCustomers)
}

func TestImport(t *testing.T) {
	svc, db, _ := newTestCustomerService(t)
	ctx := context.Background()
	userID := newTestUser(t, db, "admin")
	_, err := svc.Add(ctx, userID, NewCustomer{Name: "Existing", BoxID: "BOX001", StreetName: "Main"})
	require.NoError(t, err)

	rows := []spreadsheet.Row{
		{Line: 2, Name: "Dup Of Stored", BoxID: "BOX001", StreetName: "Main"},
		{Line: 3, Name: "New One", BoxID: "BOX002", StreetName: "Main", RechargeAmount: "650"},
		{Line: 4, Name: "", BoxID: "BOX003", StreetName: "Main"},
		{Line: 5, Name: "Dup In File", BoxID: "BOX002", StreetName: "Oak"},
		{Line: 6, Name: "Paid One", BoxID: "BOX004", StreetName: "Oak", Status: "Paid"},
		{Line: 7, Name: "Bad Amount", BoxID: "BOX005", StreetName: "Oak", RechargeAmount: "lots"},
	}

	result, err := svc.Import(ctx, userID, rows)
	require.NoError(t, err)
	assert.Equal(t, 2, result.Imported)
	assert.Equal(t, []string{
		"Row 2: Box ID BOX001 already exists",
		"Row 4: Missing required fields",
		"Row 5: Box ID BOX002 already exists",
		`Row 7: Invalid recharge amount "lots"`,
	}, result.Errors)

	all, err := svc.ListAll(ctx, userID)
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestImport_Empty(t *testing.T) {
	svc, db, _ := newTestCustomerService(t)
	userID := newTestUser(t, db, "admin")

	_, err := svc.Import(context.Background(), userID, nil)
	assert.ErrorIs(t, err, apperror.ErrValidation)
}

func TestExport_ReimportsCleanly(t *testing.T) {
	svc, db, _ := newTestCustomerService(t)
	ctx := context.Background()
	userID := newTestUser(t, db, "admin")
	_, _ = svc.Add(ctx, userID, NewCustomer{Name: "A", BoxID: "1", StreetName: "Main", RechargeAmount: amount(300)})
	_, _ = svc.Add(ctx, userID, NewCustomer{Name: "B", BoxID: "2", StreetName: "Oak"})

	var buf bytes.Buffer
	require.NoError(t, svc.Export(ctx, userID, &buf))

	rows, err := spreadsheet.ReadCustomers(&buf)
	require.NoError(t, err)
	require.Len(t, rows, 2)

	// Into a different account, every exported row is importable.
	otherID := newTestUser(t, db, "other")
	result, err := svc.Import(ctx, otherID, rows)
	require.NoError(t, err)
	assert.Equal(t, 2, result.Imported)
	assert.Empty(t, result.Errors)
}

func TestResetMonth_RequiresOwner(t *testing.T) {
	svc, _, _ := newTestCustomerService(t)
	_, err := svc.ResetMonth(context.Background(), "")
	assert.Error(t, err)
}
