/*
Copyright Bundesdruckerei GmbH. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package pinretrystore persists PIN retry counters in mongo, keyed by the
// client instance key digest.
package pinretrystore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/Bundesdruckerei-GmbH/pid-issuer-sub002/pkg/service/pinretry"
	"github.com/Bundesdruckerei-GmbH/pid-issuer-sub002/pkg/storage/mongodb"
)

const collectionName = "pinretrycounter"

type counterDocument struct {
	Digest   string    `bson:"_id"`
	Value    int       `bson:"value"`
	ExpireAt time.Time `bson:"expireAt"`
}

// Store stores PIN retry counters in mongo.
type Store struct {
	mongoClient *mongodb.Client
}

// New creates a Store and ensures its TTL index.
func New(ctx context.Context, mongoClient *mongodb.Client) (*Store, error) {
	s := &Store{
		mongoClient: mongoClient,
	}

	if err := s.migrate(ctx); err != nil {
		return nil, err
	}

	return s, nil
}

func (s *Store) migrate(ctx context.Context) error {
	if _, err := s.mongoClient.Database().Collection(collectionName).Indexes().
		CreateOne(ctx, mongo.IndexModel{
			Keys: map[string]interface{}{
				"expireAt": 1,
			},
			Options: options.Index().SetExpireAfterSeconds(0),
		}); err != nil {
		return err
	}

	return nil
}

// Create stores the counter, replacing any counter under the same digest.
func (s *Store) Create(ctx context.Context, counter *pinretry.Counter) error {
	_, err := s.mongoClient.Database().Collection(collectionName).
		ReplaceOne(ctx,
			bson.M{"_id": counter.Digest},
			toDocument(counter),
			options.Replace().SetUpsert(true),
		)
	if err != nil {
		return fmt.Errorf("pin retry counter create: %w", err)
	}

	return nil
}

// Find loads the counter for a key digest.
func (s *Store) Find(ctx context.Context, digest string) (*pinretry.Counter, error) {
	var doc counterDocument

	if err := s.mongoClient.Database().Collection(collectionName).
		FindOne(ctx, bson.M{"_id": digest}).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, pinretry.ErrCounterNotFound
		}

		return nil, fmt.Errorf("pin retry counter find: %w", err)
	}

	if doc.ExpireAt.Before(time.Now().UTC()) {
		return nil, pinretry.ErrCounterNotFound
	}

	return &pinretry.Counter{
		Digest:    doc.Digest,
		Value:     doc.Value,
		ExpiresAt: doc.ExpireAt,
	}, nil
}

// Update rewrites an existing counter.
func (s *Store) Update(ctx context.Context, counter *pinretry.Counter) error {
	result, err := s.mongoClient.Database().Collection(collectionName).
		ReplaceOne(ctx, bson.M{"_id": counter.Digest}, toDocument(counter))
	if err != nil {
		return fmt.Errorf("pin retry counter update: %w", err)
	}

	if result.MatchedCount == 0 {
		return pinretry.ErrCounterNotFound
	}

	return nil
}

func toDocument(counter *pinretry.Counter) *counterDocument {
	return &counterDocument{
		Digest:   counter.Digest,
		Value:    counter.Value,
		ExpireAt: counter.ExpiresAt.UTC(),
	}
}
