/*
Copyright Bundesdruckerei GmbH. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package sessionstore persists authorization flow sessions in mongo. The
// correlation keys are unique sparse indexes; a TTL index on expireAt backs
// up the housekeeping sweep.
package sessionstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/Bundesdruckerei-GmbH/pid-issuer-sub002/pkg/service/authorization"
	"github.com/Bundesdruckerei-GmbH/pid-issuer-sub002/pkg/storage/mongodb"
)

const collectionName = "authsession"

type sessionDocument struct {
	ID                  primitive.ObjectID `bson:"_id,omitempty"`
	ExpireAt            time.Time          `bson:"expireAt"`
	FlowVariant         string             `bson:"flowVariant"`
	NextExpectedRequest string             `bson:"nextExpectedRequest"`
	Params              map[string]string  `bson:"params"`

	RequestURI         string `bson:"requestUri,omitempty"`
	IssuerState        string `bson:"issuerState,omitempty"`
	AuthorizationCode  string `bson:"authorizationCode,omitempty"`
	AccessToken        string `bson:"accessToken,omitempty"`
	RefreshTokenDigest string `bson:"refreshTokenDigest,omitempty"`
	IssuerSessionID    string `bson:"issuerSessionId,omitempty"`
}

// Store stores flow sessions in mongo.
type Store struct {
	mongoClient *mongodb.Client
}

// New creates a Store and ensures its indexes.
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
	indexes := []mongo.IndexModel{
		{
			Keys: map[string]interface{}{
				"expireAt": 1,
			},
			Options: options.Index().SetExpireAfterSeconds(0),
		},
	}

	for _, field := range []string{"requestUri", "issuerState", "authorizationCode", "accessToken", "refreshTokenDigest", "issuerSessionId"} {
		indexes = append(indexes, mongo.IndexModel{
			Keys: map[string]interface{}{
				field: -1,
			},
			Options: options.Index().SetUnique(true).SetSparse(true),
		})
	}

	if _, err := s.mongoClient.Database().Collection(collectionName).Indexes().
		CreateMany(ctx, indexes); err != nil {
		return err
	}

	return nil
}

// Create inserts an empty session.
func (s *Store) Create(
	ctx context.Context,
	variant authorization.FlowVariant,
	next authorization.RequestKind,
	ttl time.Duration,
) (*authorization.Session, error) {
	doc := &sessionDocument{
		ExpireAt:            time.Now().UTC().Add(ttl),
		FlowVariant:         string(variant),
		NextExpectedRequest: string(next),
		Params:              map[string]string{},
	}

	result, err := s.mongoClient.Database().Collection(collectionName).InsertOne(ctx, doc)
	if err != nil {
		return nil, fmt.Errorf("session create: %w", err)
	}

	insertedID, ok := result.InsertedID.(primitive.ObjectID)
	if !ok {
		return nil, errors.New("session create: unexpected inserted id type")
	}

	return authorization.NewSession(insertedID.Hex(), variant, next), nil
}

// Update rewrites the session document with a refreshed expiry.
func (s *Store) Update(ctx context.Context, session *authorization.Session, ttl time.Duration) error {
	id, err := primitive.ObjectIDFromHex(session.ID)
	if err != nil {
		return fmt.Errorf("session update: %w", err)
	}

	params := session.Parameters()

	doc := &sessionDocument{
		ID:                  id,
		ExpireAt:            time.Now().UTC().Add(ttl),
		FlowVariant:         string(session.FlowVariant),
		NextExpectedRequest: string(session.NextExpectedRequest),
		Params:              make(map[string]string, len(params)),

		RequestURI:         params[authorization.KeyRequestURI],
		IssuerState:        params[authorization.KeyIssuerState],
		AuthorizationCode:  params[authorization.KeyAuthorizationCode],
		AccessToken:        params[authorization.KeyAccessToken],
		RefreshTokenDigest: params[authorization.KeyRefreshTokenDigest],
		IssuerSessionID:    params[authorization.KeyIssuerSessionID],
	}

	for k, v := range params {
		doc.Params[string(k)] = v
	}

	result, err := s.mongoClient.Database().Collection(collectionName).
		ReplaceOne(ctx, bson.M{"_id": id}, doc)
	if err != nil {
		return fmt.Errorf("session update: %w", err)
	}

	if result.MatchedCount == 0 {
		return authorization.ErrDataNotFound
	}

	return nil
}

// FindByRequestURI resolves the session a PAR created.
func (s *Store) FindByRequestURI(ctx context.Context, requestURI string) (*authorization.Session, error) {
	return s.findOne(ctx, bson.M{"requestUri": requestURI})
}

// FindByIssuerState resolves the session behind an issuer state token.
func (s *Store) FindByIssuerState(ctx context.Context, issuerState string) (*authorization.Session, error) {
	return s.findOne(ctx, bson.M{"issuerState": issuerState})
}

// FindByAuthorizationCode resolves the session behind a grant code.
func (s *Store) FindByAuthorizationCode(ctx context.Context, code string) (*authorization.Session, error) {
	return s.findOne(ctx, bson.M{"authorizationCode": code})
}

// FindByAccessToken resolves the session behind an access token.
func (s *Store) FindByAccessToken(ctx context.Context, token string) (*authorization.Session, error) {
	return s.findOne(ctx, bson.M{"accessToken": token})
}

// FindByRefreshTokenDigest resolves the session behind a refresh token digest.
func (s *Store) FindByRefreshTokenDigest(ctx context.Context, digest string) (*authorization.Session, error) {
	return s.findOne(ctx, bson.M{"refreshTokenDigest": digest})
}

// FindByIssuerSessionID resolves the session a seed token request correlates
// to across DPoP nonce retries.
func (s *Store) FindByIssuerSessionID(ctx context.Context, sessionID string) (*authorization.Session, error) {
	return s.findOne(ctx, bson.M{"issuerSessionId": sessionID})
}

// DeleteExpired removes sessions whose expiry passed. Complements the TTL
// index, which mongo services on a coarse schedule.
func (s *Store) DeleteExpired(ctx context.Context) (int64, error) {
	result, err := s.mongoClient.Database().Collection(collectionName).
		DeleteMany(ctx, bson.M{"expireAt": bson.M{"$lt": time.Now().UTC()}})
	if err != nil {
		return 0, fmt.Errorf("session delete expired: %w", err)
	}

	return result.DeletedCount, nil
}

func (s *Store) findOne(ctx context.Context, filter bson.M) (*authorization.Session, error) {
	var doc sessionDocument

	if err := s.mongoClient.Database().Collection(collectionName).
		FindOne(ctx, filter).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, authorization.ErrDataNotFound
		}

		return nil, fmt.Errorf("session find: %w", err)
	}

	if doc.ExpireAt.Before(time.Now().UTC()) {
		return nil, authorization.ErrDataNotFound
	}

	params := make(map[authorization.SessionKey]string, len(doc.Params))
	for k, v := range doc.Params {
		params[authorization.SessionKey(k)] = v
	}

	return authorization.RestoreSession(
		doc.ID.Hex(),
		authorization.FlowVariant(doc.FlowVariant),
		authorization.RequestKind(doc.NextExpectedRequest),
		params,
	), nil
}
