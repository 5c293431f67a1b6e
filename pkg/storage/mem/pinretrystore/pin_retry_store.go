/*
Copyright Bundesdruckerei GmbH. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package pinretrystore keeps PIN retry counters in process memory. Intended
// for tests and single-node dev setups.
package pinretrystore

import (
	"context"
	"sync"
	"time"

	"github.com/Bundesdruckerei-GmbH/pid-issuer-sub002/pkg/service/pinretry"
)

// Store stores PIN retry counters in memory.
type Store struct {
	mu       sync.Mutex
	counters map[string]pinretry.Counter
}

// New creates an empty Store.
func New() *Store {
	return &Store{
		counters: map[string]pinretry.Counter{},
	}
}

// Create stores the counter, replacing any counter under the same digest.
func (s *Store) Create(_ context.Context, counter *pinretry.Counter) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.counters[counter.Digest] = *counter

	return nil
}

// Find loads the counter for a key digest.
func (s *Store) Find(_ context.Context, digest string) (*pinretry.Counter, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	counter, ok := s.counters[digest]
	if !ok || counter.ExpiresAt.Before(time.Now()) {
		return nil, pinretry.ErrCounterNotFound
	}

	return &counter, nil
}

// Update rewrites an existing counter.
func (s *Store) Update(_ context.Context, counter *pinretry.Counter) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.counters[counter.Digest]; !ok {
		return pinretry.ErrCounterNotFound
	}

	s.counters[counter.Digest] = *counter

	return nil
}

// DeleteExpired sweeps out counters whose expiry passed.
func (s *Store) DeleteExpired(_ context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var deleted int64

	now := time.Now()

	for digest, counter := range s.counters {
		if counter.ExpiresAt.Before(now) {
			delete(s.counters, digest)
			deleted++
		}
	}

	return deleted, nil
}
