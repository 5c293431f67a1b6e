/*
Copyright Bundesdruckerei GmbH. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package authorization

import (
	"context"
	"net/http"
	"net/url"

	"github.com/Bundesdruckerei-GmbH/pid-issuer-sub002/pkg/restapi/oidcerr"
)

type identificationStarter interface {
	// StartIdentification returns the URL the user agent is redirected to
	// for the external identification. The issuer state correlates the
	// asynchronous result back to the session.
	StartIdentification(ctx context.Context, issuerState string) (*url.URL, error)
}

// authorizeHandler hands the user agent over to the external identification
// provider. The minted issuer state is the only correlation between the
// session and the out-of-band identification.
type authorizeHandler struct {
	NoopHandler

	identification identificationStarter
}

// NewAuthorizeHandler creates the authorization redirect handler.
func NewAuthorizeHandler(identification identificationStarter) Handler {
	return &authorizeHandler{identification: identification}
}

func (h *authorizeHandler) ProcessAuthRequest(ctx context.Context, _ *Request, resp *Response, session *Session) error {
	issuerState := RandomToken()

	target, err := h.identification.StartIdentification(ctx, issuerState)
	if err != nil {
		return oidcerr.NewServerError(err)
	}

	session.SetParameter(KeyIssuerState, issuerState)

	resp.SetRedirect(http.StatusSeeOther, target.String())

	return nil
}
