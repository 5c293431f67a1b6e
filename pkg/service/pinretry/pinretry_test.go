/*
Copyright Bundesdruckerei GmbH. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package pinretry_test

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"testing"
	"time"

	"github.com/go-jose/go-jose/v3"
	"github.com/stretchr/testify/require"

	"github.com/Bundesdruckerei-GmbH/pid-issuer-sub002/pkg/service/pinretry"
	"github.com/Bundesdruckerei-GmbH/pid-issuer-sub002/pkg/storage/mem/pinretrystore"
)

func TestKeyDigest(t *testing.T) {
	keyA := newJWK(t)
	keyB := newJWK(t)

	digestA, err := pinretry.KeyDigest(keyA)
	require.NoError(t, err)

	digestA2, err := pinretry.KeyDigest(keyA)
	require.NoError(t, err)

	digestB, err := pinretry.KeyDigest(keyB)
	require.NoError(t, err)

	require.Equal(t, digestA, digestA2)
	require.NotEqual(t, digestA, digestB)
}

func TestLockout(t *testing.T) {
	ctx := context.Background()
	key := newJWK(t)

	service := newService(t, 3)

	require.NoError(t, service.Initialize(ctx, key))

	digest, err := service.Load(ctx, key)
	require.NoError(t, err)

	// Two failures leave one attempt.
	require.NoError(t, service.Increment(ctx, digest))
	require.NoError(t, service.Increment(ctx, digest))

	_, err = service.Load(ctx, key)
	require.NoError(t, err)

	// The third failure exhausts the allowance.
	require.ErrorIs(t, service.Increment(ctx, digest), pinretry.ErrLocked)

	_, err = service.Load(ctx, key)
	require.ErrorIs(t, err, pinretry.ErrLocked)
}

func TestInitializeResetsLockout(t *testing.T) {
	ctx := context.Background()
	key := newJWK(t)

	service := newService(t, 1)

	require.NoError(t, service.Initialize(ctx, key))

	digest, err := service.Load(ctx, key)
	require.NoError(t, err)

	require.ErrorIs(t, service.Increment(ctx, digest), pinretry.ErrLocked)

	// A new seed issuance for the same key starts over.
	require.NoError(t, service.Initialize(ctx, key))

	_, err = service.Load(ctx, key)
	require.NoError(t, err)
}

func TestUnknownCounter(t *testing.T) {
	ctx := context.Background()

	service := newService(t, 3)

	_, err := service.Load(ctx, newJWK(t))
	require.ErrorIs(t, err, pinretry.ErrCounterNotFound)

	require.ErrorIs(t, service.Increment(ctx, "unknown-digest"), pinretry.ErrCounterNotFound)
}

func newService(t *testing.T, maxAttempts int) *pinretry.Service {
	t.Helper()

	return pinretry.NewService(&pinretry.Config{
		Store:       pinretrystore.New(),
		MaxAttempts: maxAttempts,
		Validity:    time.Hour,
	})
}

func newJWK(t *testing.T) *jose.JSONWebKey {
	t.Helper()

	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	return &jose.JSONWebKey{Key: key.Public()}
}
