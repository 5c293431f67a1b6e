/*
Copyright Bundesdruckerei GmbH. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package authorization_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Bundesdruckerei-GmbH/pid-issuer-sub002/pkg/service/authorization"
)

func TestRandomToken(t *testing.T) {
	seen := map[string]struct{}{}

	for i := 0; i < 100; i++ {
		token := authorization.RandomToken()

		require.True(t, authorization.IsValidToken(token), "token %q has wrong shape", token)

		_, dup := seen[token]
		require.False(t, dup, "token %q repeated", token)

		seen[token] = struct{}{}
	}
}

func TestIsValidToken(t *testing.T) {
	require.True(t, authorization.IsValidToken(strings.Repeat("a", 22)))
	require.False(t, authorization.IsValidToken(strings.Repeat("a", 21)))
	require.False(t, authorization.IsValidToken(strings.Repeat("a", 23)))
	require.False(t, authorization.IsValidToken(strings.Repeat("a", 21)+"-"))
	require.False(t, authorization.IsValidToken(""))
}

func TestRequestURIRoundTrip(t *testing.T) {
	requestURI := authorization.NewRequestURI()

	token, ok := authorization.ParseRequestURI(requestURI)
	require.True(t, ok)
	require.True(t, authorization.IsValidToken(token))
	require.Equal(t, "urn:ietf:params:oauth:request_uri:"+token, requestURI)
}

func TestParseRequestURIRejectsMalformedValues(t *testing.T) {
	for _, value := range []string{
		"",
		"urn:ietf:params:oauth:request_uri:",
		"urn:ietf:params:oauth:request_uri:" + strings.Repeat("a", 21),
		"urn:ietf:params:oauth:request_uri:" + strings.Repeat("a", 23),
		"urn:ietf:params:oauth:request_uri:" + strings.Repeat("a", 21) + "!",
		"urn:other:" + strings.Repeat("a", 22),
		strings.Repeat("a", 22),
	} {
		_, ok := authorization.ParseRequestURI(value)
		require.False(t, ok, "accepted %q", value)
	}
}

func TestDigest(t *testing.T) {
	require.Equal(t, authorization.Digest("value"), authorization.Digest("value"))
	require.NotEqual(t, authorization.Digest("value"), authorization.Digest("other"))

	// base64url without padding, 32 bytes worth
	digest := authorization.Digest("value")
	require.Len(t, digest, 43)
	require.NotContains(t, digest, "=")
}
