/*
Copyright Bundesdruckerei GmbH. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package startcmd

import (
	"context"
	"fmt"
	"time"

	"github.com/alexliesenfeld/health"
	"github.com/cenkalti/backoff/v4"
	"go.opentelemetry.io/otel/trace"

	healthmongo "github.com/Bundesdruckerei-GmbH/pid-issuer-sub002/pkg/observability/health/mongo"
	healthredis "github.com/Bundesdruckerei-GmbH/pid-issuer-sub002/pkg/observability/health/redis"
	"github.com/Bundesdruckerei-GmbH/pid-issuer-sub002/pkg/service/authorization"
	"github.com/Bundesdruckerei-GmbH/pid-issuer-sub002/pkg/service/pinretry"
	memcounters "github.com/Bundesdruckerei-GmbH/pid-issuer-sub002/pkg/storage/mem/pinretrystore"
	memnonces "github.com/Bundesdruckerei-GmbH/pid-issuer-sub002/pkg/storage/mem/sessionnoncestore"
	memsessions "github.com/Bundesdruckerei-GmbH/pid-issuer-sub002/pkg/storage/mem/sessionstore"
	"github.com/Bundesdruckerei-GmbH/pid-issuer-sub002/pkg/storage/mongodb"
	mongocounters "github.com/Bundesdruckerei-GmbH/pid-issuer-sub002/pkg/storage/mongodb/pinretrystore"
	mongononces "github.com/Bundesdruckerei-GmbH/pid-issuer-sub002/pkg/storage/mongodb/sessionnoncestore"
	mongosessions "github.com/Bundesdruckerei-GmbH/pid-issuer-sub002/pkg/storage/mongodb/sessionstore"
	"github.com/Bundesdruckerei-GmbH/pid-issuer-sub002/pkg/storage/redis"
	rediscounters "github.com/Bundesdruckerei-GmbH/pid-issuer-sub002/pkg/storage/redis/pinretrystore"
	redisnonces "github.com/Bundesdruckerei-GmbH/pid-issuer-sub002/pkg/storage/redis/sessionnoncestore"
	redissessions "github.com/Bundesdruckerei-GmbH/pid-issuer-sub002/pkg/storage/redis/sessionstore"
)

const (
	mongoDBDatabase     = "pidissuer"
	storeConnectRetries = 5
)

type sessionStore interface {
	Create(
		ctx context.Context,
		variant authorization.FlowVariant,
		next authorization.RequestKind,
		ttl time.Duration,
	) (*authorization.Session, error)
	FindByRequestURI(ctx context.Context, requestURI string) (*authorization.Session, error)
	FindByIssuerState(ctx context.Context, issuerState string) (*authorization.Session, error)
	FindByAuthorizationCode(ctx context.Context, code string) (*authorization.Session, error)
	FindByAccessToken(ctx context.Context, token string) (*authorization.Session, error)
	FindByRefreshTokenDigest(ctx context.Context, digest string) (*authorization.Session, error)
	FindByIssuerSessionID(ctx context.Context, sessionID string) (*authorization.Session, error)
	Update(ctx context.Context, session *authorization.Session, ttl time.Duration) error
}

type sessionIDNonceStore interface {
	Create(ctx context.Context, value string, expiresAt time.Time) error
	Consume(ctx context.Context, value string) (time.Time, error)
}

type pinCounterStore interface {
	Create(ctx context.Context, counter *pinretry.Counter) error
	Find(ctx context.Context, digest string) (*pinretry.Counter, error)
	Update(ctx context.Context, counter *pinretry.Counter) error
}

type storeSet struct {
	sessions sessionStore
	nonces   sessionIDNonceStore
	counters pinCounterStore

	sweepers     map[string]expiredDeleter
	healthChecks []health.Check
	close        func() error
}

func createStores(
	ctx context.Context,
	params *startupParameters,
	traceProvider trace.TracerProvider,
) (*storeSet, error) {
	switch params.databaseType {
	case databaseTypeMemOption:
		return createMemStores(), nil
	case databaseTypeRedisOption:
		return createRedisStores(params, traceProvider)
	case databaseTypeMongoDBOption:
		return createMongoDBStores(ctx, params, traceProvider)
	default:
		return nil, fmt.Errorf("unsupported database type: %s", params.databaseType)
	}
}

func createMemStores() *storeSet {
	sessions := memsessions.New()
	nonces := memnonces.New()
	counters := memcounters.New()

	return &storeSet{
		sessions: sessions,
		nonces:   nonces,
		counters: counters,
		sweepers: map[string]expiredDeleter{
			"sessions":        sessions,
			"sessionIDNonces": nonces,
			"pinRetryCounter": counters,
		},
		close: func() error { return nil },
	}
}

func createRedisStores(params *startupParameters, traceProvider trace.TracerProvider) (*storeSet, error) {
	opts := []redis.ClientOpt{}

	if traceProvider != nil {
		opts = append(opts, redis.WithTraceProvider(traceProvider))
	}

	if params.redisMasterName != "" {
		opts = append(opts, redis.WithMasterName(params.redisMasterName))
	}

	if params.redisPassword != "" {
		opts = append(opts, redis.WithPassword(params.redisPassword))
	}

	client, err := redis.New(params.redisURLs, opts...)
	if err != nil {
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	checkOpts := []healthredis.ClientOpt{}

	if params.redisMasterName != "" {
		checkOpts = append(checkOpts, healthredis.WithMasterName(params.redisMasterName))
	}

	if params.redisPassword != "" {
		checkOpts = append(checkOpts, healthredis.WithPassword(params.redisPassword))
	}

	return &storeSet{
		sessions: redissessions.New(client),
		nonces:   redisnonces.New(client),
		counters: rediscounters.New(client),
		sweepers: map[string]expiredDeleter{},
		healthChecks: []health.Check{
			{
				Name:               "redis",
				Check:              healthredis.New(params.redisURLs, checkOpts...),
				MaxTimeInError:     1,
				MaxContiguousFails: 1,
			},
		},
		close: client.Close,
	}, nil
}

func createMongoDBStores(
	ctx context.Context,
	params *startupParameters,
	traceProvider trace.TracerProvider,
) (*storeSet, error) {
	opts := []mongodb.ClientOpt{}

	if traceProvider != nil {
		opts = append(opts, mongodb.WithTraceProvider(traceProvider))
	}

	var client *mongodb.Client

	err := backoff.Retry(func() error {
		var connectErr error

		client, connectErr = mongodb.New(params.mongoDBURL, mongoDBDatabase, opts...)

		return connectErr
	}, backoff.WithMaxRetries(backoff.NewExponentialBackOff(), storeConnectRetries))
	if err != nil {
		return nil, fmt.Errorf("connect to mongodb: %w", err)
	}

	sessions, err := mongosessions.New(ctx, client)
	if err != nil {
		return nil, fmt.Errorf("create session store: %w", err)
	}

	nonces, err := mongononces.New(ctx, client)
	if err != nil {
		return nil, fmt.Errorf("create session id nonce store: %w", err)
	}

	counters, err := mongocounters.New(ctx, client)
	if err != nil {
		return nil, fmt.Errorf("create pin retry counter store: %w", err)
	}

	return &storeSet{
		sessions: sessions,
		nonces:   nonces,
		counters: counters,
		sweepers: map[string]expiredDeleter{
			"sessions": sessions,
		},
		healthChecks: []health.Check{
			{
				Name:               "mongodb",
				Check:              healthmongo.New(params.mongoDBURL),
				MaxTimeInError:     1,
				MaxContiguousFails: 1,
			},
		},
		close: client.Close,
	}, nil
}
