package tokenstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/kavith/streamgate/internal/models"
)

// MongoStore keeps stream tokens in a MongoDB collection. A TTL index
// purges records a day after expiry, so a revoked or expired token stays
// visible (and verifiable as such) for its whole lifetime.
type MongoStore struct {
	coll *mongo.Collection
}

func NewMongoStore(ctx context.Context, db *mongo.Database) (*MongoStore, error) {
	coll := db.Collection("stream_tokens")

	idx := mongo.IndexModel{
		Keys:    bson.D{{Key: "expires_at", Value: 1}},
		Options: options.Index().SetExpireAfterSeconds(86400),
	}
	if _, err := coll.Indexes().CreateOne(ctx, idx); err != nil {
		return nil, fmt.Errorf("failed to create token TTL index: %w", err)
	}

	return &MongoStore{coll: coll}, nil
}

func (s *MongoStore) Insert(ctx context.Context, tok models.StreamToken) error {
	_, err := s.coll.InsertOne(ctx, tok)
	if err != nil {
		return fmt.Errorf("failed to insert token: %w", err)
	}
	return nil
}

func (s *MongoStore) Get(ctx context.Context, id string) (models.StreamToken, error) {
	var tok models.StreamToken
	err := s.coll.FindOne(ctx, bson.M{"_id": id}).Decode(&tok)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return models.StreamToken{}, ErrNotFound
	}
	if err != nil {
		return models.StreamToken{}, fmt.Errorf("failed to load token: %w", err)
	}
	return tok, nil
}

func (s *MongoStore) Refresh(ctx context.Context, id string, expiresAt time.Time) (models.StreamToken, error) {
	var tok models.StreamToken
	err := s.coll.FindOneAndUpdate(
		ctx,
		bson.M{"_id": id, "state": bson.M{"$ne": models.TokenRevoked}},
		bson.M{"$set": bson.M{"expires_at": expiresAt, "state": models.TokenActive}},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&tok)
	if errors.Is(err, mongo.ErrNoDocuments) {
		// Distinguish a revoked token from a missing one.
		if _, getErr := s.Get(ctx, id); getErr == nil {
			return models.StreamToken{}, ErrRevoked
		}
		return models.StreamToken{}, ErrNotFound
	}
	if err != nil {
		return models.StreamToken{}, fmt.Errorf("failed to refresh token: %w", err)
	}
	return tok, nil
}

func (s *MongoStore) SetState(ctx context.Context, id string, state models.TokenState) error {
	res, err := s.coll.UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": bson.M{"state": state}})
	if err != nil {
		return fmt.Errorf("failed to update token state: %w", err)
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *MongoStore) CompareAndSwapState(ctx context.Context, id string, from, to models.TokenState) (models.StreamToken, bool, error) {
	var tok models.StreamToken
	err := s.coll.FindOneAndUpdate(
		ctx,
		bson.M{"_id": id, "state": from},
		bson.M{"$set": bson.M{"state": to}},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&tok)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return models.StreamToken{}, false, nil
	}
	if err != nil {
		return models.StreamToken{}, false, fmt.Errorf("failed to swap token state: %w", err)
	}
	return tok, true, nil
}

func (s *MongoStore) Delete(ctx context.Context, id string) error {
	res, err := s.coll.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return fmt.Errorf("failed to delete token: %w", err)
	}
	if res.DeletedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *MongoStore) List(ctx context.Context, ownerID string) ([]models.StreamToken, error) {
	filter := bson.M{}
	if ownerID != "" {
		filter["owner"] = ownerID
	}

	cursor, err := s.coll.Find(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to list tokens: %w", err)
	}
	defer cursor.Close(ctx)

	var tokens []models.StreamToken
	if err := cursor.All(ctx, &tokens); err != nil {
		return nil, fmt.Errorf("error decoding tokens: %w", err)
	}
	return tokens, nil
}
