/*
Copyright Bundesdruckerei GmbH. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package sessionstore_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Bundesdruckerei-GmbH/pid-issuer-sub002/pkg/service/authorization"
	"github.com/Bundesdruckerei-GmbH/pid-issuer-sub002/pkg/storage/mem/sessionstore"
)

func TestCreateAndFind(t *testing.T) {
	store := sessionstore.New()
	ctx := context.Background()

	session, err := store.Create(ctx, authorization.FlowC, authorization.KindPushedAuthorization, time.Minute)
	require.NoError(t, err)
	require.NotEmpty(t, session.ID)
	require.Equal(t, authorization.FlowC, session.FlowVariant)
	require.Equal(t, authorization.KindPushedAuthorization, session.NextExpectedRequest)

	session.SetParameter(authorization.KeyRequestURI, "urn:ietf:params:oauth:request_uri:abc123abc123abc123abcd")
	require.NoError(t, store.Update(ctx, session, time.Minute))

	found, err := store.FindByRequestURI(ctx, "urn:ietf:params:oauth:request_uri:abc123abc123abc123abcd")
	require.NoError(t, err)
	require.Equal(t, session.ID, found.ID)
	require.Equal(t, session.Parameters(), found.Parameters())
}

func TestFindByParameterKinds(t *testing.T) {
	store := sessionstore.New()
	ctx := context.Background()

	session, err := store.Create(ctx, authorization.FlowC1, authorization.KindToken, time.Minute)
	require.NoError(t, err)

	session.SetParameter(authorization.KeyIssuerState, "issuer-state-value")
	session.SetParameter(authorization.KeyAuthorizationCode, "authorization-code-value")
	session.SetParameter(authorization.KeyAccessToken, "access-token-value")
	session.SetParameter(authorization.KeyRefreshTokenDigest, "refresh-digest-value")
	session.SetParameter(authorization.KeyIssuerSessionID, "issuer-session-id-value")
	require.NoError(t, store.Update(ctx, session, time.Minute))

	lookups := []struct {
		name string
		find func() (*authorization.Session, error)
	}{
		{"issuer state", func() (*authorization.Session, error) {
			return store.FindByIssuerState(ctx, "issuer-state-value")
		}},
		{"authorization code", func() (*authorization.Session, error) {
			return store.FindByAuthorizationCode(ctx, "authorization-code-value")
		}},
		{"access token", func() (*authorization.Session, error) {
			return store.FindByAccessToken(ctx, "access-token-value")
		}},
		{"refresh token digest", func() (*authorization.Session, error) {
			return store.FindByRefreshTokenDigest(ctx, "refresh-digest-value")
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
		})
	}
}

func TestFindUnknownValue(t *testing.T) {
	store := sessionstore.New()
	ctx := context.Background()

	_, err := store.FindByAccessToken(ctx, "unknown")
	require.ErrorIs(t, err, authorization.ErrDataNotFound)

	// the empty value must never match a session without the parameter
	session, err := store.Create(ctx, authorization.FlowC, authorization.KindToken, time.Minute)
	require.NoError(t, err)
	require.NoError(t, store.Update(ctx, session, time.Minute))

	_, err = store.FindByAccessToken(ctx, "")
	require.ErrorIs(t, err, authorization.ErrDataNotFound)
}

func TestUpdateUnknownSession(t *testing.T) {
	store := sessionstore.New()

	session := authorization.NewSession("missing", authorization.FlowC, authorization.KindToken)

	err := store.Update(context.Background(), session, time.Minute)
	require.ErrorIs(t, err, authorization.ErrDataNotFound)
}

func TestExpiry(t *testing.T) {
	store := sessionstore.New()
	ctx := context.Background()

	session, err := store.Create(ctx, authorization.FlowB1, authorization.KindToken, -time.Second)
	require.NoError(t, err)

	session.SetParameter(authorization.KeyAccessToken, "expired-token")
	err = store.Update(ctx, session, -time.Second)
	require.NoError(t, err)

	_, err = store.FindByAccessToken(ctx, "expired-token")
	require.ErrorIs(t, err, authorization.ErrDataNotFound)

	deleted, err := store.DeleteExpired(ctx)
	require.NoError(t, err)
	require.EqualValues(t, 1, deleted)

	deleted, err = store.DeleteExpired(ctx)
	require.NoError(t, err)
	require.Zero(t, deleted)
}

func TestFoundSessionIsACopy(t *testing.T) {
	store := sessionstore.New()
	ctx := context.Background()

	session, err := store.Create(ctx, authorization.FlowC, authorization.KindToken, time.Minute)
	require.NoError(t, err)

	session.SetParameter(authorization.KeyAccessToken, "copy-token")
	require.NoError(t, store.Update(ctx, session, time.Minute))

	found, err := store.FindByAccessToken(ctx, "copy-token")
	require.NoError(t, err)

	found.SetParameter(authorization.KeyClientID, "mutated")

	again, err := store.FindByAccessToken(ctx, "copy-token")
	require.NoError(t, err)

	_, ok := again.OptionalParameter(authorization.KeyClientID)
	require.False(t, ok)
}
