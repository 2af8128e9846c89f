package mongo

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/sakif/billing-tracker/internal/apperror"
	"github.com/sakif/billing-tracker/internal/model"
)

// Documents are the on-disk shapes. They stay private to this package so the
// rest of the application only ever sees model types with string IDs.

type userDoc struct {
	ID           primitive.ObjectID `bson:"_id,omitempty"`
	Username     string             `bson:"username"`
	PasswordHash string             `bson:"password"`
	Name         string             `bson:"name"`
	Role         string             `bson:"role"`
	CreatedAt    time.Time          `bson:"createdAt"`
}

type paymentDoc struct {
	Date   time.Time `bson:"date"`
	Amount float64   `bson:"amount"`
	Month  string    `bson:"month"`
	Year   int       `bson:"year"`
}

type customerDoc struct {
	ID              primitive.ObjectID  `bson:"_id,omitempty"`
	UserID          *primitive.ObjectID `bson:"userId,omitempty"`
	Name            string              `bson:"name"`
	BoxID           string              `bson:"boxId"`
	StreetName      string              `bson:"streetName"`
	RechargeAmount  float64             `bson:"rechargeAmount"`
	Status          string              `bson:"status"`
	LastPaymentDate *time.Time          `bson:"lastPaymentDate"`
	PaymentHistory  []paymentDoc        `bson:"paymentHistory"`
	CreatedAt       time.Time           `bson:"createdAt"`
	UpdatedAt       time.Time           `bson:"updatedAt"`
}

type streetDoc struct {
	StreetName     string  `bson:"streetName"`
	TotalCustomers int     `bson:"totalCustomers"`
	PaidCount      int     `bson:"paidCount"`
	UnpaidCount    int     `bson:"unpaidCount"`
	TotalAmount    float64 `bson:"totalAmount"`
}

type reportDoc struct {
	ID              primitive.ObjectID `bson:"_id,omitempty"`
	UserID          primitive.ObjectID `bson:"userId"`
	Month           string             `bson:"month"`
	MonthNumber     int                `bson:"monthNumber"`
	Year            int                `bson:"year"`
	TotalCustomers  int                `bson:"totalCustomers"`
	PaidCount       int                `bson:"paidCount"`
	UnpaidCount     int                `bson:"unpaidCount"`
	TotalAmount     float64            `bson:"totalAmount"`
	CollectedAmount float64            `bson:"collectedAmount"`
	StreetWiseData  []streetDoc        `bson:"streetWiseData"`
	GeneratedAt     time.Time          `bson:"generatedAt"`
}

// objectID parses a hex id coming from a URL or a token.
// A malformed id can never match a document, so it is reported as NotFound
// for resource rather than as a validation error.
func objectID(hex, resource string) (primitive.ObjectID, error) {
	oid, err := primitive.ObjectIDFromHex(hex)
	if err != nil {
		return primitive.NilObjectID, apperror.NotFound(resource)
	}
	return oid, nil
}

func (d *userDoc) toModel() *model.User {
	return &model.User{
		ID:           d.ID.Hex(),
		Username:     d.Username,
		PasswordHash: d.PasswordHash,
		Name:         d.Name,
		Role:         model.Role(d.Role),
		CreatedAt:    d.CreatedAt,
	}
}

func (d *customerDoc) toModel() *model.Customer {
	c := &model.Customer{
		ID:              d.ID.Hex(),
		Name:            d.Name,
		BoxID:           d.BoxID,
		StreetName:      d.StreetName,
		RechargeAmount:  d.RechargeAmount,
		Status:          model.CustomerStatus(d.Status),
		LastPaymentDate: d.LastPaymentDate,
		PaymentHistory:  make([]model.PaymentEntry, 0, len(d.PaymentHistory)),
		CreatedAt:       d.CreatedAt,
		UpdatedAt:       d.UpdatedAt,
	}
	if d.UserID != nil {
		c.UserID = d.UserID.Hex()
	}
	for _, p := range d.PaymentHistory {
		c.PaymentHistory = append(c.PaymentHistory, model.PaymentEntry{
			Date:   p.Date,
			Amount: p.Amount,
			Month:  p.Month,
			Year:   p.Year,
		})
	}
	return c
}

func (d *reportDoc) toModel() model.Report {
	r := model.Report{
		ID:              d.ID.Hex(),
		UserID:          d.UserID.Hex(),
		Month:           d.Month,
		MonthNumber:     d.MonthNumber,
		Year:            d.Year,
		TotalCustomers:  d.TotalCustomers,
		PaidCount:       d.PaidCount,
		UnpaidCount:     d.UnpaidCount,
		TotalAmount:     d.TotalAmount,
		CollectedAmount: d.CollectedAmount,
		StreetWiseData:  make([]model.StreetBreakdown, 0, len(d.StreetWiseData)),
		GeneratedAt:     d.GeneratedAt,
	}
	for _, s := range d.StreetWiseData {
		r.StreetWiseData = append(r.StreetWiseData, model.StreetBreakdown(s))
	}
	return r
}

func streetDocs(in []model.StreetBreakdown) []streetDoc {
	out := make([]streetDoc, 0, len(in))
	for _, s := range in {
		out = append(out, streetDoc(s))
	}
	return out
}
