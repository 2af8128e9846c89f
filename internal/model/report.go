package model

import (
	"strings"
	"time"
)

// Totals are whole-account figures used by the monthly report.
// TotalAmount sums every customer's recharge amount; CollectedAmount only the paid ones.
type Totals struct {
	TotalCustomers  int
	PaidCount       int
	UnpaidCount     int
	TotalAmount     float64
	CollectedAmount float64
}

// StreetBreakdown is a StreetSummary as it appears inside a Report.
type StreetBreakdown struct {
	StreetName     string  `json:"streetName"`
	TotalCustomers int     `json:"totalCustomers"`
	PaidCount      int     `json:"paidCount"`
	UnpaidCount    int     `json:"unpaidCount"`
	TotalAmount    float64 `json:"totalAmount"`
}

// Report is a snapshot of one user's billing state for a month.
// (UserID, MonthNumber, Year) is its natural key: generating the same month
// again overwrites the previous snapshot.
type Report struct {
	ID              string            `json:"id,omitempty"`
	UserID          string            `json:"-"`
	Month           string            `json:"month"`       // "March"
	MonthNumber     int               `json:"monthNumber"` // 3, used for ordering
	Year            int               `json:"year"`
	TotalCustomers  int               `json:"totalCustomers"`
	PaidCount       int               `json:"paidCount"`
	UnpaidCount     int               `json:"unpaidCount"`
	TotalAmount     float64           `json:"totalAmount"`
	CollectedAmount float64           `json:"collectedAmount"`
	StreetWiseData  []StreetBreakdown `json:"streetWiseData"`
	GeneratedAt     time.Time         `json:"generatedAt"`
}

// BuildReport assembles a report from precomputed totals and street summaries.
func BuildReport(userID string, month time.Month, year int, totals Totals, streets []StreetSummary, at time.Time) *Report {
	breakdown := make([]StreetBreakdown, 0, len(streets))
	for _, s := range streets {
		breakdown = append(breakdown, StreetBreakdown{
			StreetName:     s.Name,
			TotalCustomers: s.TotalCustomers,
			PaidCount:      s.PaidCount,
			UnpaidCount:    s.UnpaidCount,
			TotalAmount:    s.TotalAmount,
		})
	}

	return &Report{
		UserID:          userID,
		Month:           month.String(),
		MonthNumber:     int(month),
		Year:            year,
		TotalCustomers:  totals.TotalCustomers,
		PaidCount:       totals.PaidCount,
		UnpaidCount:     totals.UnpaidCount,
		TotalAmount:     totals.TotalAmount,
		CollectedAmount: totals.CollectedAmount,
		StreetWiseData:  breakdown,
		GeneratedAt:     at,
	}
}

// ParseMonth accepts a full English month name in any case.
func ParseMonth(name string) (time.Month, bool) {
	name = strings.TrimSpace(name)
	for m := time.January; m <= time.December; m++ {
		if strings.EqualFold(m.String(), name) {
			return m, true
		}
	}
	return 0, false
}
