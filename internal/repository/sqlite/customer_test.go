package sqlite

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sakif/billing-tracker/internal/apperror"
	"github.com/sakif/billing-tracker/internal/model"
	"github.com/sakif/billing-tracker/internal/repository"
)

// =========================================================================
// CREATE TESTS
// =========================================================================

func TestCreateCustomer(t *testing.T) {
	db := newTestDB(t)
	u := createTestUser(t, db, "admin")

	c := createTestCustomer(t, db, u.ID, "John Smith", "MS001", "Main Street")

	if c.ID == "" {
		t.Fatal("CreateCustomer() did not set ID")
	}
	if c.Status != model.StatusUnpaid {
		t.Errorf("Status = %q, want unpaid", c.Status)
	}

	got, err := db.GetCustomer(context.Background(), u.ID, c.ID)
	if err != nil {
		t.Fatalf("GetCustomer() error = %v", err)
	}
	if got.LastPaymentDate != nil {
		t.Errorf("LastPaymentDate = %v, want nil", got.LastPaymentDate)
	}
	if len(got.PaymentHistory) != 0 {
		t.Errorf("PaymentHistory len = %d, want 0", len(got.PaymentHistory))
	}
}

func TestCreateCustomer_DuplicateBoxIDSameUser(t *testing.T) {
	db := newTestDB(t)
	u := createTestUser(t, db, "admin")
	createTestCustomer(t, db, u.ID, "John Smith", "MS001", "Main Street")

	err := db.CreateCustomer(context.Background(), &model.Customer{
		UserID: u.ID, Name: "Other", BoxID: "MS001", StreetName: "Oak Drive", RechargeAmount: 500,
	})
	if !errors.Is(err, apperror.ErrConflict) {
		t.Fatalf("error = %v, want ErrConflict", err)
	}

	list, _ := db.ListCustomers(context.Background(), u.ID, repository.CustomerFilter{})
	if len(list) != 1 {
		t.Errorf("customer count = %d, want 1", len(list))
	}
}

func TestCreateCustomer_SameBoxIDDifferentUsers(t *testing.T) {
	db := newTestDB(t)
	a := createTestUser(t, db, "alice")
	b := createTestUser(t, db, "bob")

	createTestCustomer(t, db, a.ID, "A", "BOX001", "Main Street")
	// Box IDs are unique per owner, so bob may reuse alice's.
	createTestCustomer(t, db, b.ID, "B", "BOX001", "Main Street")
}

// =========================================================================
// LIST TESTS
// =========================================================================

func TestListCustomers_SortedAndScoped(t *testing.T) {
	db := newTestDB(t)
	a := createTestUser(t, db, "alice")
	b := createTestUser(t, db, "bob")

	createTestCustomer(t, db, a.ID, "Zed", "1", "Oak Drive")
	createTestCustomer(t, db, a.ID, "Bea", "2", "Main Street")
	createTestCustomer(t, db, a.ID, "Al", "3", "Main Street")
	createTestCustomer(t, db, b.ID, "Not mine", "4", "Main Street")

	list, err := db.ListCustomers(context.Background(), a.ID, repository.CustomerFilter{})
	if err != nil {
		t.Fatalf("ListCustomers() error = %v", err)
	}

	want := []string{"Al", "Bea", "Zed"}
	if len(list) != len(want) {
		t.Fatalf("got %d customers, want %d", len(list), len(want))
	}
	for i, name := range want {
		if list[i].Name != name {
			t.Errorf("list[%d].Name = %q, want %q", i, list[i].Name, name)
		}
	}
}

func TestListCustomers_Filters(t *testing.T) {
	db := newTestDB(t)
	u := createTestUser(t, db, "admin")
	paid := createTestCustomer(t, db, u.ID, "Paid", "1", "Main Street")
	createTestCustomer(t, db, u.ID, "Unpaid", "2", "Main Street")
	createTestCustomer(t, db, u.ID, "Elsewhere", "3", "Oak Drive")

	if _, err := db.MarkPaid(context.Background(), u.ID, paid.ID, time.Now()); err != nil {
		t.Fatalf("MarkPaid() error = %v", err)
	}

	tests := []struct {
		name   string
		filter repository.CustomerFilter
		want   int
	}{
		{"street only", repository.CustomerFilter{StreetName: "Main Street"}, 2},
		{"street and paid", repository.CustomerFilter{StreetName: "Main Street", Status: model.StatusPaid}, 1},
		{"street and unpaid", repository.CustomerFilter{StreetName: "Main Street", Status: model.StatusUnpaid}, 1},
		{"unknown street", repository.CustomerFilter{StreetName: "Nowhere"}, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			list, err := db.ListCustomers(context.Background(), u.ID, tt.filter)
			if err != nil {
				t.Fatalf("ListCustomers() error = %v", err)
			}
			if len(list) != tt.want {
				t.Errorf("got %d customers, want %d", len(list), tt.want)
			}
		})
	}
}

func TestListCustomers_EmptyIsNotNil(t *testing.T) {
	db := newTestDB(t)
	u := createTestUser(t, db, "admin")

	list, err := db.ListCustomers(context.Background(), u.ID, repository.CustomerFilter{})
	if err != nil {
		t.Fatalf("ListCustomers() error = %v", err)
	}
	if list == nil {
		t.Error("ListCustomers() returned nil, want empty slice")
	}
}

// =========================================================================
// UPDATE / DELETE TESTS
// =========================================================================

func TestUpdateCustomer_PartialPatch(t *testing.T) {
	db := newTestDB(t)
	u := createTestUser(t, db, "admin")
	c := createTestCustomer(t, db, u.ID, "John", "MS001", "Main Street")

	newName := "John Smith"
	amount := 750.0
	got, err := db.UpdateCustomer(context.Background(), u.ID, c.ID, repository.CustomerPatch{
		Name:           &newName,
		RechargeAmount: &amount,
	}, time.Now())
	if err != nil {
		t.Fatalf("UpdateCustomer() error = %v", err)
	}

	if got.Name != newName || got.RechargeAmount != amount {
		t.Errorf("got (%q, %v), want (%q, %v)", got.Name, got.RechargeAmount, newName, amount)
	}
	if got.StreetName != "Main Street" {
		t.Errorf("StreetName = %q, unchanged field was overwritten", got.StreetName)
	}
}

func TestUpdateCustomer_OtherUsersCustomerIsNotFound(t *testing.T) {
	db := newTestDB(t)
	owner := createTestUser(t, db, "owner")
	intruder := createTestUser(t, db, "intruder")
	c := createTestCustomer(t, db, owner.ID, "John", "MS001", "Main Street")

	name := "hijacked"
	_, err := db.UpdateCustomer(context.Background(), intruder.ID, c.ID, repository.CustomerPatch{Name: &name}, time.Now())
	if !errors.Is(err, apperror.ErrNotFound) {
		t.Fatalf("error = %v, want ErrNotFound", err)
	}

	got, _ := db.GetCustomer(context.Background(), owner.ID, c.ID)
	if got.Name != "John" {
		t.Errorf("Name = %q, customer was modified by another user", got.Name)
	}
}

func TestDeleteCustomer(t *testing.T) {
	db := newTestDB(t)
	u := createTestUser(t, db, "admin")
	c := createTestCustomer(t, db, u.ID, "John", "MS001", "Main Street")

	if err := db.DeleteCustomer(context.Background(), u.ID, c.ID); err != nil {
		t.Fatalf("DeleteCustomer() error = %v", err)
	}
	if _, err := db.GetCustomer(context.Background(), u.ID, c.ID); !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("GetCustomer() after delete error = %v, want ErrNotFound", err)
	}
	if err := db.DeleteCustomer(context.Background(), u.ID, c.ID); !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("second DeleteCustomer() error = %v, want ErrNotFound", err)
	}
}

// =========================================================================
// PAYMENT TESTS
// =========================================================================

func TestMarkPaid_AppendsHistoryEveryTime(t *testing.T) {
	db := newTestDB(t)
	u := createTestUser(t, db, "admin")
	c := createTestCustomer(t, db, u.ID, "John", "MS001", "Main Street")

	at := time.Date(2024, time.March, 10, 9, 0, 0, 0, time.UTC)
	got, err := db.MarkPaid(context.Background(), u.ID, c.ID, at)
	if err != nil {
		t.Fatalf("MarkPaid() error = %v", err)
	}
	if got.Status != model.StatusPaid {
		t.Errorf("Status = %q, want paid", got.Status)
	}
	if got.LastPaymentDate == nil || !got.LastPaymentDate.Equal(at) {
		t.Errorf("LastPaymentDate = %v, want %v", got.LastPaymentDate, at)
	}

	// Paying twice in the same month keeps the status but adds a second entry.
	got, err = db.MarkPaid(context.Background(), u.ID, c.ID, at.Add(time.Hour))
	if err != nil {
		t.Fatalf("second MarkPaid() error = %v", err)
	}
	if len(got.PaymentHistory) != 2 {
		t.Fatalf("PaymentHistory len = %d, want 2", len(got.PaymentHistory))
	}
	first := got.PaymentHistory[0]
	if first.Month != "March" || first.Year != 2024 || first.Amount != 500 {
		t.Errorf("history[0] = %+v", first)
	}
}

func TestMarkPaid_NotFound(t *testing.T) {
	db := newTestDB(t)
	u := createTestUser(t, db, "admin")

	_, err := db.MarkPaid(context.Background(), u.ID, "nope", time.Now())
	if !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("error = %v, want ErrNotFound", err)
	}
}

func TestResetStatuses_KeepsHistory(t *testing.T) {
	db := newTestDB(t)
	a := createTestUser(t, db, "alice")
	b := createTestUser(t, db, "bob")
	ca := createTestCustomer(t, db, a.ID, "A", "1", "Main Street")
	cb := createTestCustomer(t, db, b.ID, "B", "1", "Main Street")
	db.MarkPaid(context.Background(), a.ID, ca.ID, time.Now())
	db.MarkPaid(context.Background(), b.ID, cb.ID, time.Now())

	n, err := db.ResetStatuses(context.Background(), a.ID, time.Now())
	if err != nil {
		t.Fatalf("ResetStatuses() error = %v", err)
	}
	if n != 1 {
		t.Errorf("ResetStatuses() = %d, want 1", n)
	}

	got, _ := db.GetCustomer(context.Background(), a.ID, ca.ID)
	if got.Status != model.StatusUnpaid {
		t.Errorf("Status = %q, want unpaid", got.Status)
	}
	if len(got.PaymentHistory) != 1 {
		t.Errorf("PaymentHistory len = %d, want 1", len(got.PaymentHistory))
	}

	// bob was out of scope
	other, _ := db.GetCustomer(context.Background(), b.ID, cb.ID)
	if other.Status != model.StatusPaid {
		t.Errorf("other user's Status = %q, want paid", other.Status)
	}

	// empty userID resets everyone
	n, err = db.ResetStatuses(context.Background(), "", time.Now())
	if err != nil || n != 1 {
		t.Errorf("ResetStatuses(all) = (%d, %v), want (1, nil)", n, err)
	}
}

// =========================================================================
// AGGREGATION TESTS
// =========================================================================

func TestStreetSummariesAndTotals(t *testing.T) {
	db := newTestDB(t)
	u := createTestUser(t, db, "admin")
	other := createTestUser(t, db, "other")

	c1 := createTestCustomer(t, db, u.ID, "A", "1", "Main Street")
	createTestCustomer(t, db, u.ID, "B", "2", "Main Street")
	createTestCustomer(t, db, u.ID, "C", "3", "Elm Road")
	createTestCustomer(t, db, other.ID, "X", "9", "Main Street")

	amount := 300.0
	db.UpdateCustomer(context.Background(), u.ID, c1.ID, repository.CustomerPatch{RechargeAmount: &amount}, time.Now())
	db.MarkPaid(context.Background(), u.ID, c1.ID, time.Now())

	streets, err := db.StreetSummaries(context.Background(), u.ID)
	if err != nil {
		t.Fatalf("StreetSummaries() error = %v", err)
	}

	want := []model.StreetSummary{
		{Name: "Elm Road", TotalCustomers: 1, PaidCount: 0, UnpaidCount: 1, TotalAmount: 500},
		{Name: "Main Street", TotalCustomers: 2, PaidCount: 1, UnpaidCount: 1, TotalAmount: 800},
	}
	if len(streets) != len(want) {
		t.Fatalf("got %d streets, want %d", len(streets), len(want))
	}
	for i := range want {
		if streets[i] != want[i] {
			t.Errorf("streets[%d] = %+v, want %+v", i, streets[i], want[i])
		}
	}

	totals, err := db.Totals(context.Background(), u.ID)
	if err != nil {
		t.Fatalf("Totals() error = %v", err)
	}
	wantTotals := model.Totals{TotalCustomers: 3, PaidCount: 1, UnpaidCount: 2, TotalAmount: 1300, CollectedAmount: 300}
	if totals != wantTotals {
		t.Errorf("Totals() = %+v, want %+v", totals, wantTotals)
	}
}

func TestTotals_NoCustomers(t *testing.T) {
	db := newTestDB(t)
	u := createTestUser(t, db, "admin")

	totals, err := db.Totals(context.Background(), u.ID)
	if err != nil {
		t.Fatalf("Totals() error = %v", err)
	}
	if totals != (model.Totals{}) {
		t.Errorf("Totals() = %+v, want zero", totals)
	}
}

// =========================================================================
// MAINTENANCE TESTS
// =========================================================================

func TestOrphanMaintenance(t *testing.T) {
	db := newTestDB(t)
	u := createTestUser(t, db, "admin")
	createTestCustomer(t, db, u.ID, "Owned", "1", "Main Street")

	// Legacy rows predate ownership and have no user_id.
	_, err := db.conn.Exec(
		`INSERT INTO customers (id, name, box_id, street_name) VALUES ('legacy1', 'Old', 'L1', 'Oak Drive')`,
	)
	if err != nil {
		t.Fatalf("inserting orphan: %v", err)
	}

	total, orphans, err := db.CountCustomers(context.Background())
	if err != nil {
		t.Fatalf("CountCustomers() error = %v", err)
	}
	if total != 2 || orphans != 1 {
		t.Errorf("CountCustomers() = (%d, %d), want (2, 1)", total, orphans)
	}

	n, err := db.AssignOrphans(context.Background(), u.ID)
	if err != nil || n != 1 {
		t.Fatalf("AssignOrphans() = (%d, %v), want (1, nil)", n, err)
	}
	if _, err := db.GetCustomer(context.Background(), u.ID, "legacy1"); err != nil {
		t.Errorf("orphan not visible to new owner: %v", err)
	}

	deleted, err := db.DeleteAllCustomers(context.Background(), u.ID)
	if err != nil || deleted != 2 {
		t.Errorf("DeleteAllCustomers() = (%d, %v), want (2, nil)", deleted, err)
	}
}
