/*
Copyright Bundesdruckerei GmbH. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package authorization

import (
	"context"
	"net/url"
	"time"

	"github.com/google/uuid"

	"github.com/Bundesdruckerei-GmbH/pid-issuer-sub002/pkg/restapi/oidcerr"
)

type clientRegistry interface {
	IsRegistered(id uuid.UUID) bool
}

// clientCheckHandler validates the client_id on the pushed authorization
// request and pins it for the rest of the flow.
type clientCheckHandler struct {
	NoopHandler

	clients clientRegistry
}

// NewClientCheckHandler creates the client_id validation handler.
func NewClientCheckHandler(clients clientRegistry) Handler {
	return &clientCheckHandler{clients: clients}
}

func (h *clientCheckHandler) ProcessPushedAuthRequest(_ context.Context, req *Request, _ *Response, session *Session) error {
	clientID, ok := req.Param("client_id")
	if !ok {
		return oidcerr.NewInvalidClient("client_id missing")
	}

	id, err := uuid.Parse(clientID)
	if err != nil {
		return oidcerr.NewInvalidClient("invalid client_id")
	}

	if !h.clients.IsRegistered(id) {
		return oidcerr.NewInvalidClient("unknown client_id")
	}

	session.SetParameter(KeyClientID, clientID)

	return nil
}

func (h *clientCheckHandler) ProcessAuthRequest(_ context.Context, req *Request, _ *Response, session *Session) error {
	clientID, ok := req.Param("client_id")
	if !ok {
		return nil
	}

	if clientID != session.Parameter(KeyClientID) {
		return oidcerr.NewInvalidClient("client_id does not match pushed authorization request")
	}

	return nil
}

// redirectURIHandler validates the redirect_uri on the pushed authorization
// request and enforces its continuity on the authorization request.
type redirectURIHandler struct {
	NoopHandler
}

// NewRedirectURIHandler creates the redirect_uri handler.
func NewRedirectURIHandler() Handler {
	return &redirectURIHandler{}
}

func (h *redirectURIHandler) ProcessPushedAuthRequest(_ context.Context, req *Request, _ *Response, session *Session) error {
	redirectURI, ok := req.Param("redirect_uri")
	if !ok {
		return oidcerr.NewInvalidRequest("redirect_uri missing")
	}

	u, err := url.Parse(redirectURI)
	if err != nil || !u.IsAbs() || u.Fragment != "" {
		return oidcerr.NewInvalidRequest("invalid redirect_uri")
	}

	session.SetParameter(KeyRedirectURI, redirectURI)

	return nil
}

func (h *redirectURIHandler) ProcessAuthRequest(_ context.Context, req *Request, _ *Response, session *Session) error {
	redirectURI, ok := req.Param("redirect_uri")
	if !ok {
		return nil
	}

	if redirectURI != session.Parameter(KeyRedirectURI) {
		return oidcerr.NewInvalidRequest("redirect_uri does not match pushed authorization request")
	}

	return nil
}

// stateHandler stores the wallet's opaque state value so the
// finish-authorization redirect can echo it.
type stateHandler struct {
	NoopHandler
}

// NewStateHandler creates the state handler.
func NewStateHandler() Handler {
	return &stateHandler{}
}

func (h *stateHandler) ProcessPushedAuthRequest(_ context.Context, req *Request, _ *Response, session *Session) error {
	if !req.HasParam("state") {
		return nil
	}

	state, ok := req.Param("state")
	if !ok {
		return oidcerr.NewInvalidRequest("state must not be repeated")
	}

	session.SetParameter(KeyState, state)

	return nil
}

// scopeHandler validates the requested scope against the scopes the issuer
// serves.
type scopeHandler struct {
	NoopHandler

	validScopes map[string]struct{}
}

// NewScopeHandler creates the scope handler.
func NewScopeHandler(validScopes ...string) Handler {
	scopes := make(map[string]struct{}, len(validScopes))

	for _, s := range validScopes {
		scopes[s] = struct{}{}
	}

	return &scopeHandler{validScopes: scopes}
}

func (h *scopeHandler) ProcessPushedAuthRequest(_ context.Context, req *Request, _ *Response, session *Session) error {
	scope, ok := req.Param("scope")
	if !ok {
		return oidcerr.NewInvalidRequest("scope missing")
	}

	if _, valid := h.validScopes[scope]; !valid {
		return oidcerr.NewInvalidScope("scope unknown")
	}

	session.SetParameter(KeyScope, scope)

	return nil
}

// responseTypeHandler requires response_type=code on the pushed authorization
// request.
type responseTypeHandler struct {
	NoopHandler
}

// NewResponseTypeHandler creates the response_type handler.
func NewResponseTypeHandler() Handler {
	return &responseTypeHandler{}
}

func (h *responseTypeHandler) ProcessPushedAuthRequest(_ context.Context, req *Request, _ *Response, _ *Session) error {
	responseType, ok := req.Param("response_type")
	if !ok {
		return oidcerr.NewInvalidRequest("response_type missing")
	}

	if responseType != "code" {
		return oidcerr.NewUnsupportedResponseType("unsupported response type")
	}

	return nil
}

// requestOrderHandler rejects any request the session does not expect next.
// It runs first in every chain so that no later handler mutates state for an
// out-of-order request.
type requestOrderHandler struct{}

// NewRequestOrderHandler creates the request order handler.
func NewRequestOrderHandler() Handler {
	return &requestOrderHandler{}
}

func (h *requestOrderHandler) check(session *Session, kind RequestKind) error {
	if !session.IsNextAllowedRequest(kind) {
		return oidcerr.NewInvalidRequest("unexpected request")
	}

	return nil
}

func (h *requestOrderHandler) ProcessPushedAuthRequest(_ context.Context, _ *Request, _ *Response, session *Session) error {
	return h.check(session, KindPushedAuthorization)
}

func (h *requestOrderHandler) ProcessAuthRequest(_ context.Context, _ *Request, _ *Response, session *Session) error {
	return h.check(session, KindAuthorization)
}

func (h *requestOrderHandler) ProcessFinishAuthRequest(_ context.Context, _ *Request, _ *Response, session *Session) error {
	return h.check(session, KindFinishAuthorization)
}

func (h *requestOrderHandler) ProcessTokenRequest(_ context.Context, _ *Request, _ *Response, session *Session) error {
	return h.check(session, KindToken)
}

func (h *requestOrderHandler) ProcessRefreshTokenRequest(_ context.Context, _ *Request, _ *Response, session *Session) error {
	return h.check(session, KindToken)
}

func (h *requestOrderHandler) ProcessSeedTokenRequest(_ context.Context, _ *Request, _ *Response, session *Session) error {
	return h.check(session, KindToken)
}

func (h *requestOrderHandler) ProcessCredentialRequest(_ context.Context, _ *Request, _ *Response, session *Session) error {
	return h.check(session, KindCredential)
}

func (h *requestOrderHandler) ProcessSeedCredentialRequest(_ context.Context, _ *Request, _ *Response, session *Session) error {
	return h.check(session, KindSeedCredential)
}

// expiryHandler compares the expiry instant of the correlation key that
// resolved the session against the wall clock. Store TTLs keep records from
// lingering, but the instants in the session are authoritative.
type expiryHandler struct {
	NoopHandler

	scheme string
}

// NewExpiryHandler creates the expiry handler. The scheme is used in the
// WWW-Authenticate challenge of expired access token responses.
func NewExpiryHandler(scheme string) Handler {
	return &expiryHandler{scheme: scheme}
}

func (h *expiryHandler) ProcessAuthRequest(_ context.Context, _ *Request, _ *Response, session *Session) error {
	expires, err := session.CheckedInstant(KeyRequestURIExpires)
	if err != nil {
		return err
	}

	if time.Now().After(expires) {
		return oidcerr.NewInvalidRequest("request_uri expired")
	}

	return nil
}

func (h *expiryHandler) ProcessTokenRequest(_ context.Context, _ *Request, _ *Response, session *Session) error {
	expires, err := session.CheckedInstant(KeyAuthorizationExpires)
	if err != nil {
		return err
	}

	if time.Now().After(expires) {
		return oidcerr.NewInvalidGrant("authorization code expired")
	}

	return nil
}

func (h *expiryHandler) ProcessCredentialRequest(_ context.Context, _ *Request, _ *Response, session *Session) error {
	return h.checkAccessToken(session)
}

func (h *expiryHandler) ProcessSeedCredentialRequest(_ context.Context, _ *Request, _ *Response, session *Session) error {
	return h.checkAccessToken(session)
}

func (h *expiryHandler) checkAccessToken(session *Session) error {
	expires, err := session.CheckedInstant(KeyAccessTokenExpires)
	if err != nil {
		return err
	}

	if time.Now().After(expires) {
		return oidcerr.NewUnauthorized(h.scheme, "access token expired")
	}

	return nil
}
