/*
Copyright Bundesdruckerei GmbH. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package sessionnoncestore persists single-use session id nonces in mongo.
// Consume deletes atomically, so a replayed value loses the race.
package sessionnoncestore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/Bundesdruckerei-GmbH/pid-issuer-sub002/pkg/service/authorization"
	"github.com/Bundesdruckerei-GmbH/pid-issuer-sub002/pkg/storage/mongodb"
)

const collectionName = "sessionidnonce"

type nonceDocument struct {
	Value    string    `bson:"_id"`
	ExpireAt time.Time `bson:"expireAt"`
}

// Store stores session id nonces in mongo.
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

// Create stores a fresh, unused nonce.
func (s *Store) Create(ctx context.Context, value string, expiresAt time.Time) error {
	_, err := s.mongoClient.Database().Collection(collectionName).
		InsertOne(ctx, &nonceDocument{
			Value:    value,
			ExpireAt: expiresAt.UTC(),
		})
	if err != nil {
		return fmt.Errorf("session id nonce create: %w", err)
	}

	return nil
}

// Consume removes the nonce and returns its expiry. Unknown and already
// consumed values fail with ErrDataNotFound.
func (s *Store) Consume(ctx context.Context, value string) (time.Time, error) {
	var doc nonceDocument

	if err := s.mongoClient.Database().Collection(collectionName).
		FindOneAndDelete(ctx, bson.M{"_id": value}).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return time.Time{}, authorization.ErrDataNotFound
		}

		return time.Time{}, fmt.Errorf("session id nonce consume: %w", err)
	}

	return doc.ExpireAt, nil
}
