package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/sakif/billing-tracker/internal/apperror"
	"github.com/sakif/billing-tracker/internal/model"
	"github.com/sakif/billing-tracker/internal/repository"
)

// CreateCustomer inserts c; the partial unique index on (userId, boxId)
// rejects a box the owner already has.
func (db *DB) CreateCustomer(ctx context.Context, c *model.Customer) error {
	owner, err := objectID(c.UserID, "User")
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	if c.Status == "" {
		c.Status = model.StatusUnpaid
	}
	doc := customerDoc{
		ID:              primitive.NewObjectID(),
		UserID:          &owner,
		Name:            c.Name,
		BoxID:           c.BoxID,
		StreetName:      c.StreetName,
		RechargeAmount:  c.RechargeAmount,
		Status:          string(c.Status),
		LastPaymentDate: c.LastPaymentDate,
		PaymentHistory:  []paymentDoc{},
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	if _, err := db.customers.InsertOne(ctx, doc); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return apperror.Conflict("boxId", "Box ID already exists in your account")
		}
		return fmt.Errorf("mongo: inserting customer (box %s): %w", c.BoxID, err)
	}

	c.ID = doc.ID.Hex()
	c.CreatedAt = now
	c.UpdatedAt = now
	return nil
}

func (db *DB) GetCustomer(ctx context.Context, userID, id string) (*model.Customer, error) {
	filter, err := ownedFilter(userID, id)
	if err != nil {
		return nil, err
	}

	var doc customerDoc
	if err := db.customers.FindOne(ctx, filter).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, apperror.NotFound("Customer")
		}
		return nil, fmt.Errorf("mongo: getting customer %s: %w", id, err)
	}
	return doc.toModel(), nil
}

// ListCustomers returns the owner's customers sorted by (streetName, name),
// without their payment history.
func (db *DB) ListCustomers(ctx context.Context, userID string, f repository.CustomerFilter) ([]model.Customer, error) {
	owner, err := objectID(userID, "User")
	if err != nil {
		return nil, err
	}

	opts := options.Find().
		SetSort(bson.D{{Key: "streetName", Value: 1}, {Key: "name", Value: 1}}).
		SetProjection(bson.D{{Key: "paymentHistory", Value: 0}})

	cur, err := db.customers.Find(ctx, customerFilter(owner, f), opts)
	if err != nil {
		return nil, fmt.Errorf("mongo: listing customers: %w", err)
	}
	defer cur.Close(ctx)

	customers := []model.Customer{}
	for cur.Next(ctx) {
		var doc customerDoc
		if err := cur.Decode(&doc); err != nil {
			return nil, fmt.Errorf("mongo: decoding customer: %w", err)
		}
		c := doc.toModel()
		c.PaymentHistory = nil
		customers = append(customers, *c)
	}
	if err := cur.Err(); err != nil {
		return nil, fmt.Errorf("mongo: iterating customers: %w", err)
	}

	return customers, nil
}

func (db *DB) UpdateCustomer(ctx context.Context, userID, id string, patch repository.CustomerPatch, at time.Time) (*model.Customer, error) {
	filter, err := ownedFilter(userID, id)
	if err != nil {
		return nil, err
	}

	return db.findOneAndUpdate(ctx, filter, bson.D{{Key: "$set", Value: patchSet(patch, at.UTC())}}, id)
}

func (db *DB) DeleteCustomer(ctx context.Context, userID, id string) error {
	filter, err := ownedFilter(userID, id)
	if err != nil {
		return err
	}

	res, err := db.customers.DeleteOne(ctx, filter)
	if err != nil {
		return fmt.Errorf("mongo: deleting customer %s: %w", id, err)
	}
	if res.DeletedCount == 0 {
		return apperror.NotFound("Customer")
	}
	return nil
}

// MarkPaid applies markPaidUpdate and returns the document as it is afterwards.
func (db *DB) MarkPaid(ctx context.Context, userID, id string, at time.Time) (*model.Customer, error) {
	filter, err := ownedFilter(userID, id)
	if err != nil {
		return nil, err
	}

	return db.findOneAndUpdate(ctx, filter, markPaidUpdate(at.UTC()), id)
}

// ResetStatuses sets paid customers back to unpaid; history is untouched.
// An empty userID resets every owner.
func (db *DB) ResetStatuses(ctx context.Context, userID string, at time.Time) (int64, error) {
	filter := bson.D{{Key: "status", Value: string(model.StatusPaid)}}
	if userID != "" {
		owner, err := objectID(userID, "User")
		if err != nil {
			return 0, err
		}
		filter = append(filter, bson.E{Key: "userId", Value: owner})
	}

	res, err := db.customers.UpdateMany(ctx, filter, bson.D{{Key: "$set", Value: bson.D{
		{Key: "status", Value: string(model.StatusUnpaid)},
		{Key: "updatedAt", Value: at.UTC()},
	}}})
	if err != nil {
		return 0, fmt.Errorf("mongo: resetting statuses: %w", err)
	}
	return res.ModifiedCount, nil
}

func (db *DB) StreetSummaries(ctx context.Context, userID string) ([]model.StreetSummary, error) {
	owner, err := objectID(userID, "User")
	if err != nil {
		return nil, err
	}

	cur, err := db.customers.Aggregate(ctx, streetSummaryPipeline(owner))
	if err != nil {
		return nil, fmt.Errorf("mongo: summarising streets: %w", err)
	}
	defer cur.Close(ctx)

	var docs []streetDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("mongo: decoding street summaries: %w", err)
	}

	streets := make([]model.StreetSummary, 0, len(docs))
	for _, d := range docs {
		streets = append(streets, model.StreetSummary{
			Name:           d.StreetName,
			TotalCustomers: d.TotalCustomers,
			PaidCount:      d.PaidCount,
			UnpaidCount:    d.UnpaidCount,
			TotalAmount:    d.TotalAmount,
		})
	}
	return streets, nil
}

func (db *DB) Totals(ctx context.Context, userID string) (model.Totals, error) {
	owner, err := objectID(userID, "User")
	if err != nil {
		return model.Totals{}, err
	}

	cur, err := db.customers.Aggregate(ctx, totalsPipeline(owner))
	if err != nil {
		return model.Totals{}, fmt.Errorf("mongo: computing totals: %w", err)
	}
	defer cur.Close(ctx)

	var t struct {
		TotalCustomers  int     `bson:"totalCustomers"`
		PaidCount       int     `bson:"paidCount"`
		UnpaidCount     int     `bson:"unpaidCount"`
		TotalAmount     float64 `bson:"totalAmount"`
		CollectedAmount float64 `bson:"collectedAmount"`
	}
	// $group over zero documents yields no output at all, which means zero totals.
	if cur.Next(ctx) {
		if err := cur.Decode(&t); err != nil {
			return model.Totals{}, fmt.Errorf("mongo: decoding totals: %w", err)
		}
	}
	if err := cur.Err(); err != nil {
		return model.Totals{}, fmt.Errorf("mongo: iterating totals: %w", err)
	}

	return model.Totals(t), nil
}

func (db *DB) DeleteAllCustomers(ctx context.Context, userID string) (int64, error) {
	owner, err := objectID(userID, "User")
	if err != nil {
		return 0, err
	}
	res, err := db.customers.DeleteMany(ctx, bson.D{{Key: "userId", Value: owner}})
	if err != nil {
		return 0, fmt.Errorf("mongo: clearing customers: %w", err)
	}
	return res.DeletedCount, nil
}

func (db *DB) AssignOrphans(ctx context.Context, userID string) (int64, error) {
	owner, err := objectID(userID, "User")
	if err != nil {
		return 0, err
	}
	res, err := db.customers.UpdateMany(ctx, orphanFilter(), bson.D{{Key: "$set", Value: bson.D{
		{Key: "userId", Value: owner},
		{Key: "updatedAt", Value: time.Now().UTC()},
	}}})
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return 0, apperror.Conflict("boxId", "an orphaned customer shares a box ID with one the user already owns")
		}
		return 0, fmt.Errorf("mongo: assigning orphans: %w", err)
	}
	return res.ModifiedCount, nil
}

func (db *DB) CountCustomers(ctx context.Context) (int64, int64, error) {
	total, err := db.customers.CountDocuments(ctx, bson.D{})
	if err != nil {
		return 0, 0, fmt.Errorf("mongo: counting customers: %w", err)
	}
	orphans, err := db.customers.CountDocuments(ctx, orphanFilter())
	if err != nil {
		return 0, 0, fmt.Errorf("mongo: counting orphans: %w", err)
	}
	return total, orphans, nil
}

func (db *DB) findOneAndUpdate(ctx context.Context, filter bson.D, update any, id string) (*model.Customer, error) {
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var doc customerDoc
	if err := db.customers.FindOneAndUpdate(ctx, filter, update, opts).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, apperror.NotFound("Customer")
		}
		return nil, fmt.Errorf("mongo: updating customer %s: %w", id, err)
	}
	return doc.toModel(), nil
}

// ownedFilter matches customer id only when it belongs to userID.
func ownedFilter(userID, id string) (bson.D, error) {
	owner, err := objectID(userID, "User")
	if err != nil {
		return nil, err
	}
	oid, err := objectID(id, "Customer")
	if err != nil {
		return nil, err
	}
	return bson.D{{Key: "_id", Value: oid}, {Key: "userId", Value: owner}}, nil
}
