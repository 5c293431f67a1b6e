/*
Copyright Bundesdruckerei GmbH. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package sessionnoncestore keeps single-use session id nonces in process
// memory. Intended for tests and single-node dev setups.
package sessionnoncestore

import (
	"context"
	"sync"
	"time"

	"github.com/Bundesdruckerei-GmbH/pid-issuer-sub002/pkg/service/authorization"
)

// Store stores session id nonces in memory.
type Store struct {
	mu     sync.Mutex
	nonces map[string]time.Time
}

// New creates an empty Store.
func New() *Store {
	return &Store{
		nonces: map[string]time.Time{},
	}
}

// Create stores a fresh, unused nonce.
func (s *Store) Create(_ context.Context, value string, expiresAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nonces[value] = expiresAt

	return nil
}

// Consume removes the nonce and returns its expiry. Unknown and already
// consumed values fail with ErrDataNotFound.
func (s *Store) Consume(_ context.Context, value string) (time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	expiresAt, ok := s.nonces[value]
	if !ok {
		return time.Time{}, authorization.ErrDataNotFound
	}

	delete(s.nonces, value)

	return expiresAt, nil
}

// DeleteExpired sweeps out nonces whose expiry passed.
func (s *Store) DeleteExpired(_ context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var deleted int64

	now := time.Now()

	for value, expiresAt := range s.nonces {
		if expiresAt.Before(now) {
			delete(s.nonces, value)
			deleted++
		}
	}

	return deleted, nil
}
