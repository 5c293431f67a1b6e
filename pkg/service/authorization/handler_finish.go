/*
Copyright Bundesdruckerei GmbH. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package authorization

import (
	"context"
	"net/http"
	"net/url"
	"time"

	"github.com/Bundesdruckerei-GmbH/pid-issuer-sub002/pkg/restapi/oidcerr"
)

// finishAuthHandler turns a successful identification into an authorization
// code and redirects the user agent back to the wallet.
type finishAuthHandler struct {
	NoopHandler

	codeLifetime time.Duration
}

// NewFinishAuthHandler creates the finish-authorization handler.
func NewFinishAuthHandler(codeLifetime time.Duration) Handler {
	return &finishAuthHandler{codeLifetime: codeLifetime}
}

func (h *finishAuthHandler) ProcessFinishAuthRequest(_ context.Context, _ *Request, resp *Response, session *Session) error {
	if reason, failed := session.OptionalParameter(KeyIdentificationError); failed {
		return oidcerr.NewAccessDenied("identification failed: " + reason)
	}

	if !session.Contains(KeyIdentificationData) {
		return oidcerr.NewAccessDenied("identification result not available")
	}

	code := RandomToken()
	expiresAt := time.Now().UTC().Add(h.codeLifetime)

	session.SetParameter(KeyAuthorizationCode, code)
	session.SetInstant(KeyAuthorizationExpires, expiresAt)

	redirectURI, err := session.CheckedParameter(KeyRedirectURI)
	if err != nil {
		return err
	}

	target, err := url.Parse(redirectURI)
	if err != nil {
		return oidcerrServer(err)
	}

	q := target.Query()
	q.Set("code", code)

	if state, ok := session.OptionalParameter(KeyState); ok {
		q.Set("state", state)
	}

	target.RawQuery = q.Encode()

	resp.SetRedirect(http.StatusFound, target.String())

	return nil
}
