/*
Copyright Bundesdruckerei GmbH. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package oidcerr declares the OAuth 2.0 / OpenID4VCI error codes returned by
// the issuance endpoints and the Error type carrying them through the flow
// pipeline up to the HTTP layer.
package oidcerr

import (
	"errors"
	"fmt"
	"net/http"
)

// Code is an OAuth 2.0 / OpenID4VCI error code as it appears in the "error"
// member of an error response body.
type Code string

const (
	// CodeInvalidRequest - the request is missing a required parameter, includes an
	// unsupported parameter value, repeats a parameter, or is otherwise malformed.
	//
	// Spec: https://www.rfc-editor.org/rfc/rfc6749#section-5.2
	CodeInvalidRequest Code = "invalid_request"

	// CodeInvalidClient - client authentication failed or the client is unknown.
	//
	// Spec: https://www.rfc-editor.org/rfc/rfc6749#section-5.2
	CodeInvalidClient Code = "invalid_client"

	// CodeInvalidGrant - the provided authorization grant or refresh token is
	// invalid, expired, revoked, or was issued to another client.
	//
	// Spec: https://www.rfc-editor.org/rfc/rfc6749#section-5.2
	CodeInvalidGrant Code = "invalid_grant"

	// CodeInvalidScope - the requested scope is invalid or unknown.
	//
	// Spec: https://www.rfc-editor.org/rfc/rfc6749#section-5.2
	CodeInvalidScope Code = "invalid_scope"

	// CodeUnsupportedResponseType - the authorization server does not support
	// obtaining an authorization code using this method.
	//
	// Spec: https://www.rfc-editor.org/rfc/rfc6749#section-4.1.2.1
	CodeUnsupportedResponseType Code = "unsupported_response_type"

	// CodeUnsupportedGrantType - the authorization grant type is not supported.
	//
	// Spec: https://www.rfc-editor.org/rfc/rfc6749#section-5.2
	CodeUnsupportedGrantType Code = "unsupported_grant_type"

	// CodeAccessDenied - the resource owner or authorization server denied the
	// request, e.g. because identification of the user failed.
	//
	// Spec: https://www.rfc-editor.org/rfc/rfc6749#section-4.1.2.1
	CodeAccessDenied Code = "access_denied"

	// CodeInvalidCredentialRequest - the credential request is missing a required
	// parameter or is otherwise malformed.
	//
	// Spec: https://openid.net/specs/openid-4-verifiable-credential-issuance-1_0-ID1.html#section-7.3.1.2
	CodeInvalidCredentialRequest Code = "invalid_credential_request"

	// CodeUnsupportedCredentialType - the requested credential type is not supported.
	CodeUnsupportedCredentialType Code = "unsupported_credential_type"

	// CodeUnsupportedCredentialFormat - the requested credential format is not supported.
	CodeUnsupportedCredentialFormat Code = "unsupported_credential_format"

	// CodeInvalidProof - the key proof in the credential request is absent,
	// malformed, or not bound to the c_nonce issued by the server.
	//
	// Spec: https://openid.net/specs/openid-4-verifiable-credential-issuance-1_0-ID1.html#section-7.3.1.2
	CodeInvalidProof Code = "invalid_proof"

	// CodeInvalidDPoPProof - the DPoP proof JWT is malformed, carries invalid
	// claims, or its signature does not verify.
	//
	// Spec: https://www.rfc-editor.org/rfc/rfc9449#section-5
	CodeInvalidDPoPProof Code = "invalid_dpop_proof"

	// CodeUseDPoPNonce - the server requires a (fresh) server-provided nonce in
	// the DPoP proof. The response carries the nonce in the DPoP-Nonce header
	// and the client is expected to retry.
	//
	// Spec: https://www.rfc-editor.org/rfc/rfc9449#section-8
	CodeUseDPoPNonce Code = "use_dpop_nonce"

	// CodeServerError - the server encountered an unexpected condition.
	CodeServerError Code = "server_error"
)

// Error is the protocol error produced by the authorization flow pipeline. It
// renders as an OAuth error response body plus optional response headers, e.g.
// DPoP-Nonce for use_dpop_nonce or WWW-Authenticate for 401 responses.
type Error struct {
	Code        Code
	Status      int
	Description string
	Headers     map[string]string
	Err         error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s[%s]: %s", e.Code, e.Description, e.Err.Error())
	}

	return fmt.Sprintf("%s[%s]", e.Code, e.Description)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// WithErr attaches the underlying cause, kept out of the client-visible body.
func (e *Error) WithErr(err error) *Error {
	e.Err = err
	return e
}

// WithHeader adds a response header to emit alongside the error body.
func (e *Error) WithHeader(name, value string) *Error {
	if e.Headers == nil {
		e.Headers = map[string]string{}
	}

	e.Headers[name] = value

	return e
}

// Body is the JSON error response body.
func (e *Error) Body() map[string]interface{} {
	body := map[string]interface{}{
		"error": string(e.Code),
	}

	if e.Description != "" {
		body["error_description"] = e.Description
	}

	return body
}

// As unwraps err into *Error if possible.
func As(err error) (*Error, bool) {
	var e *Error

	if errors.As(err, &e) {
		return e, true
	}

	return nil, false
}

func newError(code Code, status int, description string) *Error {
	return &Error{
		Code:        code,
		Status:      status,
		Description: description,
	}
}

// NewInvalidRequest creates an invalid_request error rendered with HTTP 400.
func NewInvalidRequest(description string) *Error {
	return newError(CodeInvalidRequest, http.StatusBadRequest, description)
}

// NewInvalidClient creates an invalid_client error rendered with HTTP 401.
func NewInvalidClient(description string) *Error {
	return newError(CodeInvalidClient, http.StatusUnauthorized, description)
}

// NewInvalidGrant creates an invalid_grant error rendered with HTTP 400.
func NewInvalidGrant(description string) *Error {
	return newError(CodeInvalidGrant, http.StatusBadRequest, description)
}

// NewInvalidScope creates an invalid_scope error rendered with HTTP 400.
func NewInvalidScope(description string) *Error {
	return newError(CodeInvalidScope, http.StatusBadRequest, description)
}

// NewUnsupportedResponseType creates an unsupported_response_type error.
func NewUnsupportedResponseType(description string) *Error {
	return newError(CodeUnsupportedResponseType, http.StatusBadRequest, description)
}

// NewUnsupportedGrantType creates an unsupported_grant_type error.
func NewUnsupportedGrantType(description string) *Error {
	return newError(CodeUnsupportedGrantType, http.StatusBadRequest, description)
}

// NewAccessDenied creates an access_denied error rendered with HTTP 400.
func NewAccessDenied(description string) *Error {
	return newError(CodeAccessDenied, http.StatusBadRequest, description)
}

// NewInvalidCredentialRequest creates an invalid_credential_request error.
func NewInvalidCredentialRequest(description string) *Error {
	return newError(CodeInvalidCredentialRequest, http.StatusBadRequest, description)
}

// NewUnsupportedCredentialType creates an unsupported_credential_type error.
func NewUnsupportedCredentialType(description string) *Error {
	return newError(CodeUnsupportedCredentialType, http.StatusBadRequest, description)
}

// NewUnsupportedCredentialFormat creates an unsupported_credential_format error.
func NewUnsupportedCredentialFormat(description string) *Error {
	return newError(CodeUnsupportedCredentialFormat, http.StatusBadRequest, description)
}

// NewInvalidProof creates an invalid_proof error rendered with HTTP 400.
func NewInvalidProof(description string) *Error {
	return newError(CodeInvalidProof, http.StatusBadRequest, description)
}

// NewInvalidDPoPProof creates an invalid_dpop_proof error rendered with HTTP 400.
func NewInvalidDPoPProof(description string) *Error {
	return newError(CodeInvalidDPoPProof, http.StatusBadRequest, description)
}

// NewUseDPoPNonce creates a use_dpop_nonce error carrying the fresh nonce the
// client must echo in its retried DPoP proof.
func NewUseDPoPNonce(description, nonce string) *Error {
	e := newError(CodeUseDPoPNonce, http.StatusBadRequest, description)

	return e.WithHeader("DPoP-Nonce", nonce)
}

// NewUnauthorized creates an invalid_request error rendered with HTTP 401 and
// a WWW-Authenticate challenge for the given scheme.
func NewUnauthorized(scheme, description string) *Error {
	e := newError(CodeInvalidRequest, http.StatusUnauthorized, description)

	return e.WithHeader("WWW-Authenticate", scheme)
}

// NewServerError creates a server_error wrapping the given cause. The cause is
// logged but never rendered to the client.
func NewServerError(err error) *Error {
	return newError(CodeServerError, http.StatusInternalServerError, "internal error").WithErr(err)
}
