/*
Copyright Bundesdruckerei GmbH. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package authorization

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"regexp"

	"github.com/Bundesdruckerei-GmbH/pid-issuer-sub002/pkg/restapi/oidcerr"
)

// Only S256 is accepted; "plain" defeats the point of PKCE.
const codeChallengeMethodS256 = "S256"

var codeVerifierPattern = regexp.MustCompile(`^[A-Za-z0-9\-._~]{43,128}$`)

// pkceHandler persists the code challenge on the pushed authorization request
// and verifies the code verifier on the token request.
type pkceHandler struct {
	NoopHandler
}

// NewPKCEHandler creates the PKCE handler.
func NewPKCEHandler() Handler {
	return &pkceHandler{}
}

func (h *pkceHandler) ProcessPushedAuthRequest(_ context.Context, req *Request, _ *Response, session *Session) error {
	challenge, ok := req.Param("code_challenge")
	if !ok {
		return oidcerr.NewInvalidRequest("code_challenge missing")
	}

	method, ok := req.Param("code_challenge_method")
	if !ok {
		return oidcerr.NewInvalidRequest("code_challenge_method missing")
	}

	if method != codeChallengeMethodS256 {
		return oidcerr.NewInvalidRequest("unsupported code_challenge_method")
	}

	decoded, err := base64.RawURLEncoding.DecodeString(challenge)
	if err != nil || len(decoded) != sha256.Size {
		return oidcerr.NewInvalidRequest("invalid code_challenge")
	}

	session.SetParameter(KeyCodeChallenge, challenge)

	return nil
}

func (h *pkceHandler) ProcessTokenRequest(_ context.Context, req *Request, _ *Response, session *Session) error {
	verifier, ok := req.Param("code_verifier")
	if !ok {
		return oidcerr.NewInvalidRequest("code_verifier missing")
	}

	if !codeVerifierPattern.MatchString(verifier) {
		return oidcerr.NewInvalidRequest("invalid code_verifier")
	}

	challenge, err := session.CheckedParameter(KeyCodeChallenge)
	if err != nil {
		return err
	}

	stored, err := base64.RawURLEncoding.DecodeString(challenge)
	if err != nil {
		return oidcerrServer(err)
	}

	computed := sha256.Sum256([]byte(verifier))

	if subtle.ConstantTimeCompare(computed[:], stored) != 1 {
		return oidcerr.NewInvalidGrant("code_verifier does not match code_challenge")
	}

	return nil
}
