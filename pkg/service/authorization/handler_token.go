/*
Copyright Bundesdruckerei GmbH. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package authorization

import (
	"context"
	"time"
)

// accessTokenHandler mints the access token on any of the token request
// grants. The token type matches the proof-of-possession scheme the session
// is bound to.
type accessTokenHandler struct {
	NoopHandler

	scheme   string
	lifetime time.Duration
}

// NewAccessTokenHandler creates the access token issuance handler.
func NewAccessTokenHandler(scheme string, lifetime time.Duration) Handler {
	return &accessTokenHandler{scheme: scheme, lifetime: lifetime}
}

func (h *accessTokenHandler) ProcessTokenRequest(ctx context.Context, req *Request, resp *Response, session *Session) error {
	return h.issue(resp, session)
}

func (h *accessTokenHandler) ProcessRefreshTokenRequest(ctx context.Context, req *Request, resp *Response, session *Session) error {
	return h.issue(resp, session)
}

func (h *accessTokenHandler) ProcessSeedTokenRequest(ctx context.Context, req *Request, resp *Response, session *Session) error {
	return h.issue(resp, session)
}

func (h *accessTokenHandler) issue(resp *Response, session *Session) error {
	token := RandomToken()
	expiresAt := time.Now().UTC().Add(h.lifetime)

	session.SetParameter(KeyAccessToken, token)
	session.SetInstant(KeyAccessTokenExpires, expiresAt)

	resp.Put("access_token", token)
	resp.Put("token_type", h.scheme)
	resp.Put("expires_in", int(h.lifetime.Seconds()))

	return nil
}

// cNonceHandler issues the challenge nonce key proofs must embed. A fresh
// c_nonce accompanies every token and credential response.
type cNonceHandler struct {
	NoopHandler

	lifetime time.Duration
}

// NewCNonceHandler creates the c_nonce issuance handler.
func NewCNonceHandler(lifetime time.Duration) Handler {
	return &cNonceHandler{lifetime: lifetime}
}

func (h *cNonceHandler) ProcessTokenRequest(ctx context.Context, req *Request, resp *Response, session *Session) error {
	return h.issue(resp, session)
}

func (h *cNonceHandler) ProcessRefreshTokenRequest(ctx context.Context, req *Request, resp *Response, session *Session) error {
	return h.issue(resp, session)
}

func (h *cNonceHandler) ProcessSeedTokenRequest(ctx context.Context, req *Request, resp *Response, session *Session) error {
	return h.issue(resp, session)
}

func (h *cNonceHandler) ProcessCredentialRequest(ctx context.Context, req *Request, resp *Response, session *Session) error {
	return h.issue(resp, session)
}

func (h *cNonceHandler) issue(resp *Response, session *Session) error {
	nonce := NewNonce(h.lifetime)

	session.SetParameter(KeyCNonce, nonce.Value)
	session.SetInstant(KeyCNonceExpires, nonce.ExpiresAt)

	resp.Put("c_nonce", nonce.Value)
	resp.Put("c_nonce_expires_in", int(h.lifetime.Seconds()))

	return nil
}
