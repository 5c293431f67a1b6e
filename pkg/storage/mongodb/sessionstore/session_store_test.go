/*
Copyright Bundesdruckerei GmbH. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package sessionstore_test

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/Bundesdruckerei-GmbH/pid-issuer-sub002/pkg/service/authorization"
	"github.com/Bundesdruckerei-GmbH/pid-issuer-sub002/pkg/storage/mongodb"
	"github.com/Bundesdruckerei-GmbH/pid-issuer-sub002/pkg/storage/mongodb/sessionstore"
)

// The tests run against the mongo instance named by PID_ISSUER_TEST_MONGODB_URL
// and are skipped without one. Each run uses a throwaway database.
func newTestStore(t *testing.T) *sessionstore.Store {
	t.Helper()

	connString := os.Getenv("PID_ISSUER_TEST_MONGODB_URL")
	if connString == "" {
		t.Skip("PID_ISSUER_TEST_MONGODB_URL not set")
	}

	client, err := mongodb.New(connString, "sessionstore_test_"+uuid.NewString()[:8])
	require.NoError(t, err)

	t.Cleanup(func() {
		ctx, cancel := client.ContextWithTimeout()
		defer cancel()

		require.NoError(t, client.Database().Drop(ctx))
		require.NoError(t, client.Close())
	})

	store, err := sessionstore.New(context.Background(), client)
	require.NoError(t, err)

	return store
}

func TestCreateAndFind(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	session, err := store.Create(ctx, authorization.FlowB1, authorization.KindToken, time.Minute)
	require.NoError(t, err)

	session.SetParameter(authorization.KeyIssuerState, "issuer-state-value")
	session.SetParameter(authorization.KeyAccessToken, "access-token-value")
	session.SetParameter(authorization.KeyIssuerSessionID, "issuer-session-id-value")
	require.NoError(t, store.Update(ctx, session, time.Minute))

	lookups := []struct {
		name string
		find func() (*authorization.Session, error)
	}{
		{"issuer state", func() (*authorization.Session, error) {
			return store.FindByIssuerState(ctx, "issuer-state-value")
		}},
		{"access token", func() (*authorization.Session, error) {
			return store.FindByAccessToken(ctx, "access-token-value")
		}},
		{"issuer session id", func() (*authorization.Session, error) {
			return store.FindByIssuerSessionID(ctx, "issuer-session-id-value")
		}},
	}

	for _, lookup := range lookups {
		t.Run(lookup.name, func(t *testing.T) {
			found, err := lookup.find()
			require.NoError(t, err)
			require.Equal(t, session.ID, found.ID)
			require.Equal(t, authorization.FlowB1, found.FlowVariant)
			require.Equal(t, "issuer-state-value", found.Parameter(authorization.KeyIssuerState))
		})
	}
}

func TestFindUnknown(t *testing.T) {
	store := newTestStore(t)

	_, err := store.FindByAccessToken(context.Background(), "unknown")
	require.ErrorIs(t, err, authorization.ErrDataNotFound)
}

func TestUpdateUnknownSession(t *testing.T) {
	store := newTestStore(t)

	session := authorization.NewSession("000000000000000000000000", authorization.FlowC, authorization.KindToken)

	err := store.Update(context.Background(), session, time.Minute)
	require.ErrorIs(t, err, authorization.ErrDataNotFound)
}

func TestExpiry(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	session, err := store.Create(ctx, authorization.FlowC, authorization.KindPushedAuthorization, time.Minute)
	require.NoError(t, err)

	session.SetParameter(authorization.KeyAccessToken, "access-token-value")
	require.NoError(t, store.Update(ctx, session, -time.Minute))

	_, err = store.FindByAccessToken(ctx, "access-token-value")
	require.ErrorIs(t, err, authorization.ErrDataNotFound)

	deleted, err := store.DeleteExpired(ctx)
	require.NoError(t, err)
	require.EqualValues(t, 1, deleted)
}
