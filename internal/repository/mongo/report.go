package mongo

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/sakif/billing-tracker/internal/model"
)

// UpsertReport replaces the report for (userId, year, monthNumber), creating
// it on first generation. Upsert plus the unique index keeps one document per period.
func (db *DB) UpsertReport(ctx context.Context, r *model.Report) error {
	owner, err := objectID(r.UserID, "User")
	if err != nil {
		return err
	}

	filter := bson.D{
		{Key: "userId", Value: owner},
		{Key: "year", Value: r.Year},
		{Key: "monthNumber", Value: r.MonthNumber},
	}
	update := bson.D{{Key: "$set", Value: bson.D{
		{Key: "month", Value: r.Month},
		{Key: "totalCustomers", Value: r.TotalCustomers},
		{Key: "paidCount", Value: r.PaidCount},
		{Key: "unpaidCount", Value: r.UnpaidCount},
		{Key: "totalAmount", Value: r.TotalAmount},
		{Key: "collectedAmount", Value: r.CollectedAmount},
		{Key: "streetWiseData", Value: streetDocs(r.StreetWiseData)},
		{Key: "generatedAt", Value: r.GeneratedAt.UTC()},
	}}}
	opts := options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After)

	var doc reportDoc
	if err := db.reports.FindOneAndUpdate(ctx, filter, update, opts).Decode(&doc); err != nil {
		return fmt.Errorf("mongo: upserting report %s %d: %w", r.Month, r.Year, err)
	}

	r.ID = doc.ID.Hex()
	return nil
}

// ListReports returns the newest periods first, ordered numerically.
func (db *DB) ListReports(ctx context.Context, userID string, limit int) ([]model.Report, error) {
	owner, err := objectID(userID, "User")
	if err != nil {
		return nil, err
	}

	opts := options.Find().
		SetSort(bson.D{{Key: "year", Value: -1}, {Key: "monthNumber", Value: -1}}).
		SetLimit(int64(limit))

	cur, err := db.reports.Find(ctx, bson.D{{Key: "userId", Value: owner}}, opts)
	if err != nil {
		return nil, fmt.Errorf("mongo: listing reports: %w", err)
	}
	defer cur.Close(ctx)

	var docs []reportDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("mongo: decoding reports: %w", err)
	}

	reports := make([]model.Report, 0, len(docs))
	for i := range docs {
		reports = append(reports, docs[i].toModel())
	}
	return reports, nil
}
