package account

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// mongoRepository implements Repository on a MongoDB collection.
type mongoRepository struct {
	col *mongo.Collection
}

// NewMongoRepository creates a Repository backed by the "accounts"
// collection of the given database.
func NewMongoRepository(db *mongo.Database) Repository {
	return &mongoRepository{col: db.Collection("accounts")}
}

// EnsureIndexes creates the unique lowercase-email index. Called once at
// startup.
func EnsureIndexes(ctx context.Context, db *mongo.Database) error {
	_, err := db.Collection("accounts").Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "email", Value: 1}},
		Options: options.Index().SetUnique(true).SetName("idx_accounts_email"),
	})
	return err
}

// Create inserts a new account document
func (r *mongoRepository) Create(ctx context.Context, acct *Account) error {
	now := time.Now().UTC()
	acct.Email = strings.ToLower(strings.TrimSpace(acct.Email))
	acct.CreatedAt = now
	acct.UpdatedAt = now
	if acct.PasswordChangedAt.IsZero() {
		acct.PasswordChangedAt = now
	}

	res, err := r.col.InsertOne(ctx, acct)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return ErrEmailAlreadyExists
		}
		return err
	}

	if oid, ok := res.InsertedID.(primitive.ObjectID); ok {
		acct.ID = oid
	}
	return nil
}

// GetByID retrieves an account by its ObjectID
func (r *mongoRepository) GetByID(ctx context.Context, id primitive.ObjectID) (*Account, error) {
	acct := &Account{}
	err := r.col.FindOne(ctx, bson.M{"_id": id}).Decode(acct)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return acct, nil
}

// GetByEmail retrieves an account by its lowercase email
func (r *mongoRepository) GetByEmail(ctx context.Context, email string) (*Account, error) {
	acct := &Account{}
	err := r.col.FindOne(ctx, bson.M{"email": strings.ToLower(strings.TrimSpace(email))}).Decode(acct)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return acct, nil
}

// EmailExists checks whether an email address is already registered
func (r *mongoRepository) EmailExists(ctx context.Context, email string) (bool, error) {
	count, err := r.col.CountDocuments(ctx, bson.M{"email": strings.ToLower(strings.TrimSpace(email))})
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// IncrementFailedAttempts applies an atomic $inc to the failure counter
// and returns the post-increment value. $inc is atomic per document, so
// concurrent failed attempts never under-count.
func (r *mongoRepository) IncrementFailedAttempts(ctx context.Context, id primitive.ObjectID) (int, error) {
	after := options.After
	res := r.col.FindOneAndUpdate(ctx,
		bson.M{"_id": id},
		bson.M{
			"$inc": bson.M{"failed_attempt_count": 1},
			"$set": bson.M{"updated_at": time.Now().UTC()},
		},
		&options.FindOneAndUpdateOptions{ReturnDocument: &after},
	)

	acct := &Account{}
	if err := res.Decode(acct); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return 0, ErrNotFound
		}
		return 0, err
	}
	return acct.FailedAttemptCount, nil
}

// SetLock stamps LockedUntil on the account
func (r *mongoRepository) SetLock(ctx context.Context, id primitive.ObjectID, until time.Time) error {
	res, err := r.col.UpdateOne(ctx,
		bson.M{"_id": id},
		bson.M{"$set": bson.M{
			"locked_until": until.UTC(),
			"updated_at":   time.Now().UTC(),
		}},
	)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

// ResetFailedAttempts sets the failure counter and clears the lock
func (r *mongoRepository) ResetFailedAttempts(ctx context.Context, id primitive.ObjectID, count int) error {
	res, err := r.col.UpdateOne(ctx,
		bson.M{"_id": id},
		bson.M{
			"$set":   bson.M{"failed_attempt_count": count, "updated_at": time.Now().UTC()},
			"$unset": bson.M{"locked_until": ""},
		},
	)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

// UpdateLastLogin stamps last_login_at with the current time
func (r *mongoRepository) UpdateLastLogin(ctx context.Context, id primitive.ObjectID) error {
	now := time.Now().UTC()
	res, err := r.col.UpdateOne(ctx,
		bson.M{"_id": id},
		bson.M{"$set": bson.M{"last_login_at": now, "updated_at": now}},
	)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

// UpdatePassword replaces the stored hash and stamps password_changed_at.
// Tokens issued before changedAt are rejected at the next refresh.
func (r *mongoRepository) UpdatePassword(ctx context.Context, id primitive.ObjectID, passwordHash string, changedAt time.Time) error {
	res, err := r.col.UpdateOne(ctx,
		bson.M{"_id": id},
		bson.M{"$set": bson.M{
			"password_hash":       passwordHash,
			"password_changed_at": changedAt.UTC(),
			"updated_at":          time.Now().UTC(),
		}},
	)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}
