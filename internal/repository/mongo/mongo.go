// Package mongo implements the repository interfaces on MongoDB.
//
// It is the document-store alternative to repository/sqlite, selected with
// STORE_DRIVER=mongo. The three collections mirror the entities directly:
//
//	users      one document per account, unique index on username
//	customers  one document per box, payment history embedded as an array,
//	           unique index on (userId, boxId)
//	reports    one document per (userId, year, monthNumber), unique index on that key
//
// Aggregations (street summaries, report totals) run server-side as
// aggregation pipelines, and every uniqueness rule is a unique index, so no
// operation needs a read-then-write sequence.
package mongo

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"github.com/sakif/billing-tracker/internal/repository"
)

var _ repository.Store = (*DB)(nil)

const (
	usersCollection     = "users"
	customersCollection = "customers"
	reportsCollection   = "reports"
)

// DB holds the client and the three collections it serves.
type DB struct {
	client    *mongo.Client
	users     *mongo.Collection
	customers *mongo.Collection
	reports   *mongo.Collection
}

// New connects to uri, verifies the server answers and creates the indexes.
//
// A failed connection is returned as an error; the caller (main) treats it
// as fatal rather than starting a server that cannot store anything.
func New(ctx context.Context, uri, database string) (*DB, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("mongo: connecting: %w", err)
	}

	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		client.Disconnect(context.Background())
		return nil, fmt.Errorf("mongo: pinging %s: %w", database, err)
	}

	mdb := client.Database(database)
	db := &DB{
		client:    client,
		users:     mdb.Collection(usersCollection),
		customers: mdb.Collection(customersCollection),
		reports:   mdb.Collection(reportsCollection),
	}

	if err := db.ensureIndexes(ctx); err != nil {
		client.Disconnect(context.Background())
		return nil, fmt.Errorf("mongo: creating indexes: %w", err)
	}

	return db, nil
}

// ownedOnly limits a unique index to documents that have an owner. Data
// written before accounts existed has no userId (and reports no monthNumber);
// those documents would all share a null key and fail the index build.
var ownedOnly = bson.D{{Key: "userId", Value: bson.D{{Key: "$type", Value: "objectId"}}}}

// indexModels lists the indexes of each collection.
func indexModels() map[string][]mongo.IndexModel {
	return map[string][]mongo.IndexModel{
		usersCollection: {
			{
				Keys:    bson.D{{Key: "username", Value: 1}},
				Options: options.Index().SetUnique(true).SetName("uniq_username"),
			},
		},
		customersCollection: {
			{
				Keys: bson.D{{Key: "userId", Value: 1}, {Key: "boxId", Value: 1}},
				Options: options.Index().
					SetUnique(true).
					SetName("uniq_user_box").
					SetPartialFilterExpression(ownedOnly),
			},
			{
				Keys:    bson.D{{Key: "userId", Value: 1}, {Key: "streetName", Value: 1}, {Key: "name", Value: 1}},
				Options: options.Index().SetName("user_street_name"),
			},
		},
		reportsCollection: {
			{
				Keys: bson.D{{Key: "userId", Value: 1}, {Key: "year", Value: -1}, {Key: "monthNumber", Value: -1}},
				Options: options.Index().
					SetUnique(true).
					SetName("uniq_user_period").
					SetPartialFilterExpression(ownedOnly),
			},
		},
	}
}

// ensureIndexes is idempotent: creating an index that already exists with the
// same definition is a no-op on the server.
func (db *DB) ensureIndexes(ctx context.Context) error {
	models := indexModels()
	for _, coll := range []*mongo.Collection{db.users, db.customers, db.reports} {
		if _, err := coll.Indexes().CreateMany(ctx, models[coll.Name()]); err != nil {
			return fmt.Errorf("%s: %w", coll.Name(), err)
		}
	}
	return nil
}

// Ping reports whether the primary is reachable. Used by /api/health.
func (db *DB) Ping(ctx context.Context) error {
	return db.client.Ping(ctx, readpref.Primary())
}

// Close disconnects the client, waiting at most five seconds for in-flight operations.
func (db *DB) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return db.client.Disconnect(ctx)
}
