/*
Copyright Bundesdruckerei GmbH. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package sessionnoncestore persists the single-use pid issuer session ids of
// the seed credential flow in redis. Consumption is a GETDEL, so two
// concurrent redemptions of the same id cannot both succeed.
package sessionnoncestore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	redisapi "github.com/redis/go-redis/v9"

	"github.com/Bundesdruckerei-GmbH/pid-issuer-sub002/pkg/service/authorization"
	"github.com/Bundesdruckerei-GmbH/pid-issuer-sub002/pkg/storage/redis"
)

const keyPrefix = "sessionidnonce"

type nonceDocument struct {
	ExpireAt time.Time `json:"expireAt"`
}

// Store stores session id nonces in redis.
type Store struct {
	redisClient *redis.Client
}

// New creates a Store.
func New(redisClient *redis.Client) *Store {
	return &Store{redisClient: redisClient}
}

// Create inserts a fresh nonce.
func (s *Store) Create(ctx context.Context, value string, expiresAt time.Time) error {
	payload, err := json.Marshal(&nonceDocument{ExpireAt: expiresAt})
	if err != nil {
		return fmt.Errorf("nonce marshal: %w", err)
	}

	ttl := time.Until(expiresAt)
	if ttl <= 0 {
		return errors.New("nonce already expired")
	}

	if err = s.redisClient.API().Set(ctx, resolveRedisKey(value), payload, ttl).Err(); err != nil {
		return fmt.Errorf("nonce create: %w", err)
	}

	return nil
}

// Consume removes the nonce and returns its expiry. A missing, already
// consumed or TTL-expired nonce yields ErrDataNotFound.
func (s *Store) Consume(ctx context.Context, value string) (time.Time, error) {
	b, err := s.redisClient.API().GetDel(ctx, resolveRedisKey(value)).Bytes()
	if err != nil {
		if errors.Is(err, redisapi.Nil) {
			return time.Time{}, authorization.ErrDataNotFound
		}

		return time.Time{}, fmt.Errorf("nonce consume: %w", err)
	}

	var doc nonceDocument
	if err = json.Unmarshal(b, &doc); err != nil {
		return time.Time{}, fmt.Errorf("nonce decode: %w", err)
	}

	return doc.ExpireAt, nil
}

func resolveRedisKey(value string) string {
	return fmt.Sprintf("%s-%s", keyPrefix, value)
}
