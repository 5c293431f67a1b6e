/*
Copyright Bundesdruckerei GmbH. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package pinretrystore persists PIN retry counters in redis, keyed by the
// digest of the client instance key.
package pinretrystore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	redisapi "github.com/redis/go-redis/v9"

	"github.com/Bundesdruckerei-GmbH/pid-issuer-sub002/pkg/service/pinretry"
	"github.com/Bundesdruckerei-GmbH/pid-issuer-sub002/pkg/storage/redis"
)

const keyPrefix = "pinretry"

type counterDocument struct {
	Value    int       `json:"value"`
	ExpireAt time.Time `json:"expireAt"`
}

// Store stores PIN retry counters in redis.
type Store struct {
	redisClient *redis.Client
}

// New creates a Store.
func New(redisClient *redis.Client) *Store {
	return &Store{redisClient: redisClient}
}

// Create inserts the counter, replacing any previous one for the same digest.
func (s *Store) Create(ctx context.Context, counter *pinretry.Counter) error {
	ttl := time.Until(counter.ExpiresAt)
	if ttl <= 0 {
		return errors.New("counter already expired")
	}

	payload, err := json.Marshal(&counterDocument{
		Value:    counter.Value,
		ExpireAt: counter.ExpiresAt,
	})
	if err != nil {
		return fmt.Errorf("counter marshal: %w", err)
	}

	if err = s.redisClient.API().Set(ctx, resolveRedisKey(counter.Digest), payload, ttl).Err(); err != nil {
		return fmt.Errorf("counter create: %w", err)
	}

	return nil
}

// Find returns the live counter for the digest.
func (s *Store) Find(ctx context.Context, digest string) (*pinretry.Counter, error) {
	b, err := s.redisClient.API().Get(ctx, resolveRedisKey(digest)).Bytes()
	if err != nil {
		if errors.Is(err, redisapi.Nil) {
			return nil, pinretry.ErrCounterNotFound
		}

		return nil, fmt.Errorf("counter find: %w", err)
	}

	var doc counterDocument
	if err = json.Unmarshal(b, &doc); err != nil {
		return nil, fmt.Errorf("counter decode: %w", err)
	}

	if doc.ExpireAt.Before(time.Now().UTC()) {
		return nil, pinretry.ErrCounterNotFound
	}

	return &pinretry.Counter{
		Digest:    digest,
		Value:     doc.Value,
		ExpiresAt: doc.ExpireAt,
	}, nil
}

// Update rewrites the counter, keeping its original expiry.
func (s *Store) Update(ctx context.Context, counter *pinretry.Counter) error {
	return s.Create(ctx, counter)
}

func resolveRedisKey(digest string) string {
	return fmt.Sprintf("%s-%s", keyPrefix, digest)
}
