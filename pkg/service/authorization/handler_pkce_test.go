/*
Copyright Bundesdruckerei GmbH. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package authorization_test

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Bundesdruckerei-GmbH/pid-issuer-sub002/pkg/restapi/oidcerr"
	"github.com/Bundesdruckerei-GmbH/pid-issuer-sub002/pkg/service/authorization"
)

func TestPKCEPushedAuthRequest(t *testing.T) {
	handler := authorization.NewPKCEHandler()

	verifier := strings.Repeat("a", 43)
	challenge := codeChallenge(verifier)

	t.Run("success", func(t *testing.T) {
		session := authorization.NewSession("s1", authorization.FlowC, authorization.KindPushedAuthorization)

		err := handler.ProcessPushedAuthRequest(context.Background(), paramRequest(url.Values{
			"code_challenge":        {challenge},
			"code_challenge_method": {"S256"},
		}), authorization.NewResponse(), session)
		require.NoError(t, err)

		require.Equal(t, challenge, session.Parameter(authorization.KeyCodeChallenge))
	})

	t.Run("error cases", func(t *testing.T) {
		tests := []struct {
			name        string
			params      url.Values
			code        oidcerr.Code
			description string
		}{
			{
				name:        "code_challenge missing",
				params:      url.Values{"code_challenge_method": {"S256"}},
				code:        oidcerr.CodeInvalidRequest,
				description: "code_challenge missing",
			},
			{
				name:        "code_challenge_method missing",
				params:      url.Values{"code_challenge": {challenge}},
				code:        oidcerr.CodeInvalidRequest,
				description: "code_challenge_method missing",
			},
			{
				name: "plain method",
				params: url.Values{
					"code_challenge":        {challenge},
					"code_challenge_method": {"plain"},
				},
				code:        oidcerr.CodeInvalidRequest,
				description: "unsupported code_challenge_method",
			},
			{
				name: "challenge not base64url",
				params: url.Values{
					"code_challenge":        {"no+padding/allowed="},
					"code_challenge_method": {"S256"},
				},
				code:        oidcerr.CodeInvalidRequest,
				description: "invalid code_challenge",
			},
			{
				name: "challenge wrong length",
				params: url.Values{
					"code_challenge":        {base64.RawURLEncoding.EncodeToString([]byte("too short"))},
					"code_challenge_method": {"S256"},
				},
				code:        oidcerr.CodeInvalidRequest,
				description: "invalid code_challenge",
			},
			{
				name: "challenge repeated",
				params: url.Values{
					"code_challenge":        {challenge, challenge},
					"code_challenge_method": {"S256"},
				},
				code:        oidcerr.CodeInvalidRequest,
				description: "code_challenge missing",
			},
		}

		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				session := authorization.NewSession("s1", authorization.FlowC, authorization.KindPushedAuthorization)

				err := handler.ProcessPushedAuthRequest(
					context.Background(), paramRequest(tt.params), authorization.NewResponse(), session)

				requireOidcErr(t, err, tt.code, tt.description)
				require.False(t, session.Contains(authorization.KeyCodeChallenge))
			})
		}
	})
}

func TestPKCETokenRequest(t *testing.T) {
	handler := authorization.NewPKCEHandler()

	verifier := strings.Repeat("a", 43)

	newTokenSession := func() *authorization.Session {
		session := authorization.NewSession("s1", authorization.FlowC, authorization.KindToken)
		session.SetParameter(authorization.KeyCodeChallenge, codeChallenge(verifier))

		return session
	}

	t.Run("success", func(t *testing.T) {
		err := handler.ProcessTokenRequest(context.Background(), paramRequest(url.Values{
			"code_verifier": {verifier},
		}), authorization.NewResponse(), newTokenSession())
		require.NoError(t, err)
	})

	t.Run("code_verifier missing", func(t *testing.T) {
		err := handler.ProcessTokenRequest(
			context.Background(), paramRequest(url.Values{}), authorization.NewResponse(), newTokenSession())

		requireOidcErr(t, err, oidcerr.CodeInvalidRequest, "code_verifier missing")
	})

	t.Run("code_verifier too short", func(t *testing.T) {
		err := handler.ProcessTokenRequest(context.Background(), paramRequest(url.Values{
			"code_verifier": {strings.Repeat("a", 42)},
		}), authorization.NewResponse(), newTokenSession())

		requireOidcErr(t, err, oidcerr.CodeInvalidRequest, "invalid code_verifier")
	})

	t.Run("code_verifier illegal characters", func(t *testing.T) {
		err := handler.ProcessTokenRequest(context.Background(), paramRequest(url.Values{
			"code_verifier": {strings.Repeat("a", 42) + "!"},
		}), authorization.NewResponse(), newTokenSession())

		requireOidcErr(t, err, oidcerr.CodeInvalidRequest, "invalid code_verifier")
	})

	t.Run("code_verifier does not match", func(t *testing.T) {
		err := handler.ProcessTokenRequest(context.Background(), paramRequest(url.Values{
			"code_verifier": {strings.Repeat("b", 43)},
		}), authorization.NewResponse(), newTokenSession())

		requireOidcErr(t, err, oidcerr.CodeInvalidGrant, "code_verifier does not match code_challenge")
	})

	t.Run("challenge missing from session", func(t *testing.T) {
		session := authorization.NewSession("s1", authorization.FlowC, authorization.KindToken)

		err := handler.ProcessTokenRequest(context.Background(), paramRequest(url.Values{
			"code_verifier": {verifier},
		}), authorization.NewResponse(), session)

		oidcErr, ok := oidcerr.As(err)
		require.True(t, ok)
		require.Equal(t, oidcerr.CodeServerError, oidcErr.Code)
	})
}

func codeChallenge(verifier string) string {
	sum := sha256.Sum256([]byte(verifier))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}
