/*
Copyright Bundesdruckerei GmbH. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package identification_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Bundesdruckerei-GmbH/pid-issuer-sub002/pkg/service/identification"
)

func TestStartIdentification(t *testing.T) {
	provider := identification.NewProvider(&identification.ProviderConfig{
		IdentityProviderURL: "https://eid.example.com/start?tenant=pid",
		CallbackURL:         "https://issuer.example.com/c/finish-authorization",
	})

	target, err := provider.StartIdentification(context.Background(), "state-1234567890abcdefgh")
	require.NoError(t, err)

	require.Equal(t, "eid.example.com", target.Host)
	require.Equal(t, "/start", target.Path)

	q := target.Query()
	require.Equal(t, "pid", q.Get("tenant"))
	require.Equal(t, "state-1234567890abcdefgh", q.Get("issuer_state"))
	require.Equal(t, "https://issuer.example.com/c/finish-authorization", q.Get("callback"))
}

func TestStartIdentificationDoesNotShareQueryState(t *testing.T) {
	provider := identification.NewProvider(&identification.ProviderConfig{
		IdentityProviderURL: "https://eid.example.com/start",
		CallbackURL:         "https://issuer.example.com/c/finish-authorization",
	})

	first, err := provider.StartIdentification(context.Background(), "first")
	require.NoError(t, err)

	second, err := provider.StartIdentification(context.Background(), "second")
	require.NoError(t, err)

	require.Equal(t, "first", first.Query().Get("issuer_state"))
	require.Equal(t, "second", second.Query().Get("issuer_state"))
}

func TestStartIdentificationInvalidProviderURL(t *testing.T) {
	provider := identification.NewProvider(&identification.ProviderConfig{
		IdentityProviderURL: "://missing-scheme",
		CallbackURL:         "https://issuer.example.com/c/finish-authorization",
	})

	_, err := provider.StartIdentification(context.Background(), "state")
	require.ErrorContains(t, err, "parse identity provider url")
}
