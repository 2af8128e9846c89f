package model

import (
	"strings"
	"time"
)

// CustomerStatus is the payment state of a customer for the current billing month.
//
// STATE MACHINE:
//
//	unpaid ──mark-paid──▶ paid
//	paid   ──reset-month / update──▶ unpaid
//
// There is no partially-paid or overdue state.
type CustomerStatus string

const (
	StatusPaid   CustomerStatus = "paid"
	StatusUnpaid CustomerStatus = "unpaid"
)

// DefaultRechargeAmount is applied when a customer is created without an amount.
const DefaultRechargeAmount = 500.0

// NeverPaid is what the API shows for a customer that has no payment yet.
const NeverPaid = "Never"

// ParseStatus converts user input ("Paid", " unpaid ") into a CustomerStatus.
func ParseStatus(s string) (CustomerStatus, bool) {
	switch CustomerStatus(strings.ToLower(strings.TrimSpace(s))) {
	case StatusPaid:
		return StatusPaid, true
	case StatusUnpaid:
		return StatusUnpaid, true
	}
	return "", false
}

// PaymentEntry is one element of a customer's append-only payment history.
type PaymentEntry struct {
	Date   time.Time `json:"date"`
	Amount float64   `json:"amount"`
	Month  string    `json:"month"` // English month name, e.g. "March"
	Year   int       `json:"year"`
}

// NewPaymentEntry records a payment of amount made at the given moment.
func NewPaymentEntry(at time.Time, amount float64) PaymentEntry {
	return PaymentEntry{
		Date:   at,
		Amount: amount,
		Month:  at.Month().String(),
		Year:   at.Year(),
	}
}

// Customer is a billable box on a street, owned by a single user.
// BoxID is unique per owner, not globally.
type Customer struct {
	ID              string         `json:"id"`
	UserID          string         `json:"userId"`
	Name            string         `json:"name"`
	BoxID           string         `json:"boxId"`
	StreetName      string         `json:"streetName"`
	RechargeAmount  float64        `json:"rechargeAmount"`
	Status          CustomerStatus `json:"status"`
	LastPaymentDate *time.Time     `json:"lastPaymentDate,omitempty"`
	PaymentHistory  []PaymentEntry `json:"paymentHistory"`
	CreatedAt       time.Time      `json:"createdAt"`
	UpdatedAt       time.Time      `json:"updatedAt"`
}

// CustomerView is the flattened shape the list endpoints return.
type CustomerView struct {
	ID          string         `json:"id"`
	Name        string         `json:"name"`
	BoxID       string         `json:"boxId"`
	StreetName  string         `json:"streetName"`
	Amount      float64        `json:"amount"`
	Status      CustomerStatus `json:"status"`
	LastPayment string         `json:"lastPayment"` // YYYY-MM-DD (UTC) or "Never"
}

// View flattens the customer for list responses.
func (c *Customer) View() CustomerView {
	return CustomerView{
		ID:          c.ID,
		Name:        c.Name,
		BoxID:       c.BoxID,
		StreetName:  c.StreetName,
		Amount:      c.RechargeAmount,
		Status:      c.Status,
		LastPayment: FormatPaymentDate(c.LastPaymentDate),
	}
}

// FormatPaymentDate renders a payment timestamp as an ISO date in UTC, or
// NeverPaid when there is none.
func FormatPaymentDate(t *time.Time) string {
	if t == nil || t.IsZero() {
		return NeverPaid
	}
	return t.UTC().Format(time.DateOnly)
}

// StreetSummary aggregates the customers of one street.
type StreetSummary struct {
	Name           string  `json:"name"`
	TotalCustomers int     `json:"totalCustomers"`
	PaidCount      int     `json:"paidCount"`
	UnpaidCount    int     `json:"unpaidCount"`
	TotalAmount    float64 `json:"totalAmount"`
}
