/*
Copyright Bundesdruckerei GmbH. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package sessionstore persists authorization flow sessions in redis. Every
// correlation key of a session is an index entry pointing at the session
// document; all writes for one session go through a single transactional
// pipeline so a lookup never sees a half-updated session.
package sessionstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	redisapi "github.com/redis/go-redis/v9"

	"github.com/Bundesdruckerei-GmbH/pid-issuer-sub002/pkg/service/authorization"
	"github.com/Bundesdruckerei-GmbH/pid-issuer-sub002/pkg/storage/redis"
)

const keyPrefix = "authsession"

// Index prefixes per correlation key.
const (
	idxRequestURI    = keyPrefix + "-requesturi"
	idxIssuerState   = keyPrefix + "-issuerstate"
	idxCode          = keyPrefix + "-code"
	idxAccessToken   = keyPrefix + "-accesstoken"
	idxRefreshDigest = keyPrefix + "-refreshdigest"
	idxIssuerSession = keyPrefix + "-issuersession"
)

type sessionDocument struct {
	ID                  string            `json:"id"`
	FlowVariant         string            `json:"flowVariant"`
	NextExpectedRequest string            `json:"nextExpectedRequest"`
	Params              map[string]string `json:"params"`
	ExpireAt            time.Time         `json:"expireAt"`
}

// Store stores flow sessions in redis.
type Store struct {
	redisClient *redis.Client
}

// New creates a Store.
func New(redisClient *redis.Client) *Store {
	return &Store{redisClient: redisClient}
}

// Create inserts an empty session.
func (s *Store) Create(
	ctx context.Context,
	variant authorization.FlowVariant,
	next authorization.RequestKind,
	ttl time.Duration,
) (*authorization.Session, error) {
	session := authorization.NewSession(uuid.NewString(), variant, next)

	if err := s.write(ctx, session, ttl); err != nil {
		return nil, fmt.Errorf("session create: %w", err)
	}

	return session, nil
}

// Update rewrites the session document and refreshes every index entry.
func (s *Store) Update(ctx context.Context, session *authorization.Session, ttl time.Duration) error {
	if err := s.write(ctx, session, ttl); err != nil {
		return fmt.Errorf("session update: %w", err)
	}

	return nil
}

func (s *Store) write(ctx context.Context, session *authorization.Session, ttl time.Duration) error {
	params := session.Parameters()

	doc := &sessionDocument{
		ID:                  session.ID,
		FlowVariant:         string(session.FlowVariant),
		NextExpectedRequest: string(session.NextExpectedRequest),
		Params:              make(map[string]string, len(params)),
		ExpireAt:            time.Now().UTC().Add(ttl),
	}

	for k, v := range params {
		doc.Params[string(k)] = v
	}

	payload, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("marshal: %w", err)
	}

	docKey := resolveRedisKey(keyPrefix, session.ID)

	pipeline := s.redisClient.API().TxPipeline()
	pipeline.Set(ctx, docKey, payload, ttl)

	for idx, key := range indexedParams() {
		if value, ok := params[key]; ok {
			pipeline.Set(ctx, resolveRedisKey(idx, value), docKey, ttl)
		}
	}

	if _, err = pipeline.Exec(ctx); err != nil {
		return err
	}

	return nil
}

// FindByRequestURI resolves the session a PAR created.
func (s *Store) FindByRequestURI(ctx context.Context, requestURI string) (*authorization.Session, error) {
	return s.findByIndex(ctx, idxRequestURI, requestURI)
}

// FindByIssuerState resolves the session behind an issuer state token.
func (s *Store) FindByIssuerState(ctx context.Context, issuerState string) (*authorization.Session, error) {
	return s.findByIndex(ctx, idxIssuerState, issuerState)
}

// FindByAuthorizationCode resolves the session behind a grant code.
func (s *Store) FindByAuthorizationCode(ctx context.Context, code string) (*authorization.Session, error) {
	return s.findByIndex(ctx, idxCode, code)
}

// FindByAccessToken resolves the session behind an access token.
func (s *Store) FindByAccessToken(ctx context.Context, token string) (*authorization.Session, error) {
	return s.findByIndex(ctx, idxAccessToken, token)
}

// FindByRefreshTokenDigest resolves the session behind a refresh token digest.
func (s *Store) FindByRefreshTokenDigest(ctx context.Context, digest string) (*authorization.Session, error) {
	return s.findByIndex(ctx, idxRefreshDigest, digest)
}

// FindByIssuerSessionID resolves the session a seed token request correlates
// to across DPoP nonce retries.
func (s *Store) FindByIssuerSessionID(ctx context.Context, sessionID string) (*authorization.Session, error) {
	return s.findByIndex(ctx, idxIssuerSession, sessionID)
}

// DeleteExpired is a no-op; redis TTLs remove expired sessions.
func (s *Store) DeleteExpired(_ context.Context) (int64, error) {
	return 0, nil
}

func (s *Store) findByIndex(ctx context.Context, idx, value string) (*authorization.Session, error) {
	docKey, err := s.redisClient.API().Get(ctx, resolveRedisKey(idx, value)).Result()
	if err != nil {
		if errors.Is(err, redisapi.Nil) {
			return nil, authorization.ErrDataNotFound
		}

		return nil, err
	}

	return s.findOne(ctx, docKey)
}

func (s *Store) findOne(ctx context.Context, docKey string) (*authorization.Session, error) {
	b, err := s.redisClient.API().Get(ctx, docKey).Bytes()
	if err != nil {
		if errors.Is(err, redisapi.Nil) {
			return nil, authorization.ErrDataNotFound
		}

		return nil, fmt.Errorf("findOne: %w", err)
	}

	var doc sessionDocument
	if err = json.Unmarshal(b, &doc); err != nil {
		return nil, fmt.Errorf("findOne and decode: %w", err)
	}

	if doc.ExpireAt.Before(time.Now().UTC()) {
		return nil, authorization.ErrDataNotFound
	}

	params := make(map[authorization.SessionKey]string, len(doc.Params))
	for k, v := range doc.Params {
		params[authorization.SessionKey(k)] = v
	}

	return authorization.RestoreSession(
		doc.ID,
		authorization.FlowVariant(doc.FlowVariant),
		authorization.RequestKind(doc.NextExpectedRequest),
		params,
	), nil
}

func indexedParams() map[string]authorization.SessionKey {
	return map[string]authorization.SessionKey{
		idxRequestURI:    authorization.KeyRequestURI,
		idxIssuerState:   authorization.KeyIssuerState,
		idxCode:          authorization.KeyAuthorizationCode,
		idxAccessToken:   authorization.KeyAccessToken,
		idxRefreshDigest: authorization.KeyRefreshTokenDigest,
		idxIssuerSession: authorization.KeyIssuerSessionID,
	}
}

func resolveRedisKey(prefix, id string) string {
	return fmt.Sprintf("%s-%s", prefix, id)
}
