package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/sakif/billing-tracker/internal/apperror"
	"github.com/sakif/billing-tracker/internal/model"
)

// CreateUser inserts the account; the unique username index turns a
// concurrent duplicate into a Conflict.
func (db *DB) CreateUser(ctx context.Context, user *model.User) error {
	if user.Role == "" {
		user.Role = model.RoleUser
	}
	doc := userDoc{
		ID:           primitive.NewObjectID(),
		Username:     user.Username,
		PasswordHash: user.PasswordHash,
		Name:         user.Name,
		Role:         string(user.Role),
		CreatedAt:    time.Now().UTC(),
	}

	if _, err := db.users.InsertOne(ctx, doc); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return apperror.Conflict("username", "Username already exists")
		}
		return fmt.Errorf("mongo: inserting user %q: %w", user.Username, err)
	}

	user.ID = doc.ID.Hex()
	user.CreatedAt = doc.CreatedAt
	return nil
}

func (db *DB) GetUserByUsername(ctx context.Context, username string) (*model.User, error) {
	return db.findUser(ctx, bson.D{{Key: "username", Value: username}})
}

func (db *DB) GetUserByID(ctx context.Context, id string) (*model.User, error) {
	oid, err := objectID(id, "User")
	if err != nil {
		return nil, err
	}
	return db.findUser(ctx, bson.D{{Key: "_id", Value: oid}})
}

func (db *DB) CountUsers(ctx context.Context) (int, error) {
	n, err := db.users.CountDocuments(ctx, bson.D{})
	if err != nil {
		return 0, fmt.Errorf("mongo: counting users: %w", err)
	}
	return int(n), nil
}

func (db *DB) findUser(ctx context.Context, filter bson.D) (*model.User, error) {
	var doc userDoc
	if err := db.users.FindOne(ctx, filter).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, apperror.NotFound("User")
		}
		return nil, fmt.Errorf("mongo: finding user: %w", err)
	}
	return doc.toModel(), nil
}
