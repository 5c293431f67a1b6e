/*
Copyright Bundesdruckerei GmbH. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package sessionstore keeps authorization flow sessions in process memory.
// Intended for tests and single-node dev setups.
package sessionstore

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Bundesdruckerei-GmbH/pid-issuer-sub002/pkg/service/authorization"
)

type sessionRecord struct {
	variant  authorization.FlowVariant
	next     authorization.RequestKind
	params   map[authorization.SessionKey]string
	expireAt time.Time
}

// Store stores flow sessions in memory.
type Store struct {
	mu       sync.Mutex
	sessions map[string]*sessionRecord
}

// New creates an empty Store.
func New() *Store {
	return &Store{
		sessions: map[string]*sessionRecord{},
	}
}

// Create inserts an empty session.
func (s *Store) Create(
	_ context.Context,
	variant authorization.FlowVariant,
	next authorization.RequestKind,
	ttl time.Duration,
) (*authorization.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := uuid.NewString()

	s.sessions[id] = &sessionRecord{
		variant:  variant,
		next:     next,
		params:   map[authorization.SessionKey]string{},
		expireAt: time.Now().Add(ttl),
	}

	return authorization.NewSession(id, variant, next), nil
}

// Update rewrites the session with a refreshed expiry.
func (s *Store) Update(_ context.Context, session *authorization.Session, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sessions[session.ID]; !ok {
		return authorization.ErrDataNotFound
	}

	s.sessions[session.ID] = &sessionRecord{
		variant:  session.FlowVariant,
		next:     session.NextExpectedRequest,
		params:   session.Parameters(),
		expireAt: time.Now().Add(ttl),
	}

	return nil
}

// FindByRequestURI resolves the session a PAR created.
func (s *Store) FindByRequestURI(ctx context.Context, requestURI string) (*authorization.Session, error) {
	return s.findByParam(ctx, authorization.KeyRequestURI, requestURI)
}

// FindByIssuerState resolves the session behind an issuer state token.
func (s *Store) FindByIssuerState(ctx context.Context, issuerState string) (*authorization.Session, error) {
	return s.findByParam(ctx, authorization.KeyIssuerState, issuerState)
}

// FindByAuthorizationCode resolves the session behind a grant code.
func (s *Store) FindByAuthorizationCode(ctx context.Context, code string) (*authorization.Session, error) {
	return s.findByParam(ctx, authorization.KeyAuthorizationCode, code)
}

// FindByAccessToken resolves the session behind an access token.
func (s *Store) FindByAccessToken(ctx context.Context, token string) (*authorization.Session, error) {
	return s.findByParam(ctx, authorization.KeyAccessToken, token)
}

// FindByRefreshTokenDigest resolves the session behind a refresh token digest.
func (s *Store) FindByRefreshTokenDigest(ctx context.Context, digest string) (*authorization.Session, error) {
	return s.findByParam(ctx, authorization.KeyRefreshTokenDigest, digest)
}

// FindByIssuerSessionID resolves the session a seed token request correlates
// to across DPoP nonce retries.
func (s *Store) FindByIssuerSessionID(ctx context.Context, sessionID string) (*authorization.Session, error) {
	return s.findByParam(ctx, authorization.KeyIssuerSessionID, sessionID)
}

// DeleteExpired sweeps out sessions whose expiry passed.
func (s *Store) DeleteExpired(_ context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var deleted int64

	now := time.Now()

	for id, record := range s.sessions {
		if record.expireAt.Before(now) {
			delete(s.sessions, id)
			deleted++
		}
	}

	return deleted, nil
}

func (s *Store) findByParam(
	_ context.Context,
	key authorization.SessionKey,
	value string,
) (*authorization.Session, error) {
	if value == "" {
		return nil, authorization.ErrDataNotFound
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()

	for id, record := range s.sessions {
		if record.expireAt.Before(now) {
			continue
		}

		if record.params[key] != value {
			continue
		}

		params := make(map[authorization.SessionKey]string, len(record.params))
		for k, v := range record.params {
			params[k] = v
		}

		return authorization.RestoreSession(id, record.variant, record.next, params), nil
	}

	return nil, authorization.ErrDataNotFound
}
