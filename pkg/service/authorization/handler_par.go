/*
Copyright Bundesdruckerei GmbH. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package authorization

import (
	"context"
	"net/http"
	"time"
)

// parHandler mints the opaque request URI a pushed authorization request is
// later referenced by. It runs after all PAR validation handlers.
type parHandler struct {
	NoopHandler

	requestURILifetime time.Duration
}

// NewPARHandler creates the pushed authorization response handler.
func NewPARHandler(requestURILifetime time.Duration) Handler {
	return &parHandler{requestURILifetime: requestURILifetime}
}

func (h *parHandler) ProcessPushedAuthRequest(_ context.Context, _ *Request, resp *Response, session *Session) error {
	requestURI := NewRequestURI()
	expiresAt := time.Now().UTC().Add(h.requestURILifetime)

	session.SetParameter(KeyRequestURI, requestURI)
	session.SetInstant(KeyRequestURIExpires, expiresAt)

	resp.Status = http.StatusCreated
	resp.Put("request_uri", requestURI)
	resp.Put("expires_in", int(h.requestURILifetime.Seconds()))

	return nil
}
