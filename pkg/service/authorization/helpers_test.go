/*
Copyright Bundesdruckerei GmbH. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package authorization_test

import (
	"net/http"
	"net/url"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Bundesdruckerei-GmbH/pid-issuer-sub002/pkg/restapi/oidcerr"
	"github.com/Bundesdruckerei-GmbH/pid-issuer-sub002/pkg/service/authorization"
)

// paramRequest builds a request carrying only parameters, the shape most
// handler tests need.
func paramRequest(params url.Values) *authorization.Request {
	return &authorization.Request{
		Method: http.MethodPost,
		URI:    &url.URL{Scheme: "https", Host: "issuer.example.com", Path: "/c/par"},
		Params: params,
		Header: http.Header{},
	}
}

func requireOidcErr(t *testing.T, err error, code oidcerr.Code, description string) {
	t.Helper()

	oidcErr, ok := oidcerr.As(err)
	require.True(t, ok, "expected oidcerr, got %v", err)
	require.Equal(t, code, oidcErr.Code)
	require.Equal(t, description, oidcErr.Description)
}
