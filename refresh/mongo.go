package refresh

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

type tokenDoc struct {
	ID        string    `bson:"_id"`
	TokenHash string    `bson:"token_hash"`
	UserID    string    `bson:"user_id"`
	TenantID  string    `bson:"tenant_id"`
	CreatedAt time.Time `bson:"created_at"`
	ExpiresAt time.Time `bson:"expires_at"`
	Revoked   bool      `bson:"revoked"`
}

func (d *tokenDoc) record() *Record {
	return &Record{
		ID:        d.ID,
		TokenHash: d.TokenHash,
		UserID:    d.UserID,
		TenantID:  d.TenantID,
		CreatedAt: d.CreatedAt,
		ExpiresAt: d.ExpiresAt,
		Revoked:   d.Revoked,
	}
}

// MongoStore keeps refresh tokens in a MongoDB collection.
//
// Rotate revokes the presented token with a filtered FindOneAndUpdate and
// then inserts the successor, without needing a replica set. The revoke
// tags the document with a rotation nonce; if the insert fails the tag is
// used to restore the presented token so the owner keeps a valid session.
// RevokeAll clears pending tags, so a restore never resurrects a token
// revoked by a concurrent logout-all.
type MongoStore struct {
	client *mongo.Client
	tokens *mongo.Collection
	now    func() time.Time
}

// NewMongoStore connects to uri, selects database.refresh_tokens and ensures
// its indexes.
func NewMongoStore(ctx context.Context, uri, database string, opts ...Option) (*MongoStore, error) {
	const op = "refresh.NewMongoStore"

	client, err := mongo.Connect(options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("%s: connect: %w", op, err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("%s: ping: %w", op, err)
	}

	o := buildOptions(opts)
	s := &MongoStore{
		client: client,
		tokens: client.Database(database).Collection("refresh_tokens"),
		now:    o.now,
	}
	if err := s.ensureIndexes(ctx); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("%s: indexes: %w", op, err)
	}
	return s, nil
}

func (s *MongoStore) ensureIndexes(ctx context.Context) error {
	_, err := s.tokens.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "token_hash", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys: bson.D{{Key: "user_id", Value: 1}},
		},
		{
			// Expired documents are removed by the server; validity checks
			// never rely on it.
			Keys:    bson.D{{Key: "expires_at", Value: 1}},
			Options: options.Index().SetExpireAfterSeconds(0),
		},
	})
	return err
}

// Create implements Store.
func (s *MongoStore) Create(ctx context.Context, owner Owner, ttl time.Duration) (string, error) {
	if err := validateTTL(ttl); err != nil {
		return "", err
	}
	if owner.UserID == "" {
		return "", errors.New("refresh owner user id is required")
	}
	value, _, err := s.insert(ctx, owner, ttl)
	return value, err
}

func (s *MongoStore) insert(ctx context.Context, owner Owner, ttl time.Duration) (string, *tokenDoc, error) {
	const op = "refresh.MongoStore.insert"

	now := s.now().UTC().Truncate(time.Millisecond)
	for attempt := 0; attempt < maxCreateAttempts; attempt++ {
		value, err := NewValue()
		if err != nil {
			return "", nil, err
		}
		doc := &tokenDoc{
			ID:        uuid.NewString(),
			TokenHash: HashValue(value),
			UserID:    owner.UserID,
			TenantID:  owner.TenantID,
			CreatedAt: now,
			ExpiresAt: now.Add(ttl),
		}
		_, err = s.tokens.InsertOne(ctx, doc)
		if isDuplicateKeyError(err) {
			continue
		}
		if err != nil {
			return "", nil, fmt.Errorf("%s: %w: %v", op, ErrUnavailable, err)
		}
		return value, doc, nil
	}
	return "", nil, ErrCollision
}

func (s *MongoStore) validFilter(extra ...bson.E) bson.D {
	filter := bson.D{
		{Key: "revoked", Value: false},
		{Key: "expires_at", Value: bson.D{{Key: "$gt", Value: s.now().UTC()}}},
	}
	return append(filter, extra...)
}

// FindValid implements Store.
func (s *MongoStore) FindValid(ctx context.Context, value string) (*Record, error) {
	const op = "refresh.MongoStore.FindValid"

	if value == "" {
		return nil, ErrNotFound
	}

	var doc tokenDoc
	err := s.tokens.FindOne(ctx, s.validFilter(bson.E{Key: "token_hash", Value: HashValue(value)})).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w: %v", op, ErrUnavailable, err)
	}
	return doc.record(), nil
}

// Revoke implements Store.
func (s *MongoStore) Revoke(ctx context.Context, value, userID string) (bool, error) {
	const op = "refresh.MongoStore.Revoke"

	if value == "" || userID == "" {
		return false, nil
	}

	res, err := s.tokens.UpdateOne(ctx,
		s.validFilter(
			bson.E{Key: "token_hash", Value: HashValue(value)},
			bson.E{Key: "user_id", Value: userID},
		),
		bson.D{{Key: "$set", Value: bson.D{{Key: "revoked", Value: true}}}},
	)
	if err != nil {
		return false, fmt.Errorf("%s: %w: %v", op, ErrUnavailable, err)
	}
	return res.ModifiedCount == 1, nil
}

// RevokeAll implements Store.
func (s *MongoStore) RevokeAll(ctx context.Context, userID string) (int, error) {
	const op = "refresh.MongoStore.RevokeAll"

	if userID == "" {
		return 0, nil
	}

	res, err := s.tokens.UpdateMany(ctx,
		s.validFilter(bson.E{Key: "user_id", Value: userID}),
		bson.D{{Key: "$set", Value: bson.D{{Key: "revoked", Value: true}}}},
	)
	if err != nil {
		return 0, fmt.Errorf("%s: %w: %v", op, ErrUnavailable, err)
	}
	// Tokens mid-rotation stay revoked even if their successor insert fails.
	_, err = s.tokens.UpdateMany(ctx,
		bson.D{
			{Key: "user_id", Value: userID},
			{Key: "rotation", Value: bson.D{{Key: "$exists", Value: true}}},
		},
		bson.D{{Key: "$unset", Value: bson.D{{Key: "rotation", Value: ""}}}},
	)
	if err != nil {
		return 0, fmt.Errorf("%s: %w: %v", op, ErrUnavailable, err)
	}
	return int(res.ModifiedCount), nil
}

// Rotate implements Store.
func (s *MongoStore) Rotate(ctx context.Context, value string, ttl time.Duration) (string, *Record, error) {
	const op = "refresh.MongoStore.Rotate"

	if err := validateTTL(ttl); err != nil {
		return "", nil, err
	}
	if value == "" {
		return "", nil, ErrNotFound
	}

	nonce := uuid.NewString()
	var old tokenDoc
	err := s.tokens.FindOneAndUpdate(ctx,
		s.validFilter(bson.E{Key: "token_hash", Value: HashValue(value)}),
		bson.D{{Key: "$set", Value: bson.D{
			{Key: "revoked", Value: true},
			{Key: "rotation", Value: nonce},
		}}},
		options.FindOneAndUpdate().SetReturnDocument(options.Before),
	).Decode(&old)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return "", nil, ErrNotFound
	}
	if err != nil {
		return "", nil, fmt.Errorf("%s: %w: %v", op, ErrUnavailable, err)
	}

	next, doc, err := s.insert(ctx, Owner{UserID: old.UserID, TenantID: old.TenantID}, ttl)
	if err != nil {
		if rerr := s.restore(ctx, old.ID, nonce); rerr != nil {
			return "", nil, fmt.Errorf("%w (restore failed: %v)", err, rerr)
		}
		return "", nil, err
	}
	s.clearRotation(ctx, old.ID, nonce)
	return next, doc.record(), nil
}

// restore undoes a rotation whose successor was never written. It matches
// on the nonce so a concurrent RevokeAll wins.
func (s *MongoStore) restore(ctx context.Context, id, nonce string) error {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()

	_, err := s.tokens.UpdateOne(ctx,
		bson.D{{Key: "_id", Value: id}, {Key: "rotation", Value: nonce}},
		bson.D{
			{Key: "$set", Value: bson.D{{Key: "revoked", Value: false}}},
			{Key: "$unset", Value: bson.D{{Key: "rotation", Value: ""}}},
		},
	)
	return err
}

// clearRotation drops the tag of a completed rotation. A leftover tag is
// harmless: restore only runs on the failure path of the same call.
func (s *MongoStore) clearRotation(ctx context.Context, id, nonce string) {
	_, _ = s.tokens.UpdateOne(ctx,
		bson.D{{Key: "_id", Value: id}, {Key: "rotation", Value: nonce}},
		bson.D{{Key: "$unset", Value: bson.D{{Key: "rotation", Value: ""}}}},
	)
}

// Ping checks server availability.
func (s *MongoStore) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx, nil); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

// Close disconnects the client.
func (s *MongoStore) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

func isDuplicateKeyError(err error) bool {
	var we mongo.WriteException
	if errors.As(err, &we) {
		for _, e := range we.WriteErrors {
			if e.Code == 11000 {
				return true
			}
		}
	}
	return false
}
