/*
Copyright Bundesdruckerei GmbH. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package authorization

import (
	"context"
)

// Handler is one step of the flow pipeline. A handler implements only the
// request kinds it cares about and embeds NoopHandler for the rest. Handlers
// mutate the session and the response; the pipeline persists the session
// after the chain ran, whether it succeeded or not.
type Handler interface {
	ProcessPushedAuthRequest(ctx context.Context, req *Request, resp *Response, session *Session) error
	ProcessAuthRequest(ctx context.Context, req *Request, resp *Response, session *Session) error
	ProcessFinishAuthRequest(ctx context.Context, req *Request, resp *Response, session *Session) error
	ProcessTokenRequest(ctx context.Context, req *Request, resp *Response, session *Session) error
	ProcessRefreshTokenRequest(ctx context.Context, req *Request, resp *Response, session *Session) error
	ProcessSeedTokenRequest(ctx context.Context, req *Request, resp *Response, session *Session) error
	ProcessCredentialRequest(ctx context.Context, req *Request, resp *Response, session *Session) error
	ProcessSeedCredentialRequest(ctx context.Context, req *Request, resp *Response, session *Session) error
}

// NoopHandler is the zero implementation of Handler.
type NoopHandler struct{}

func (NoopHandler) ProcessPushedAuthRequest(context.Context, *Request, *Response, *Session) error {
	return nil
}

func (NoopHandler) ProcessAuthRequest(context.Context, *Request, *Response, *Session) error {
	return nil
}

func (NoopHandler) ProcessFinishAuthRequest(context.Context, *Request, *Response, *Session) error {
	return nil
}

func (NoopHandler) ProcessTokenRequest(context.Context, *Request, *Response, *Session) error {
	return nil
}

func (NoopHandler) ProcessRefreshTokenRequest(context.Context, *Request, *Response, *Session) error {
	return nil
}

func (NoopHandler) ProcessSeedTokenRequest(context.Context, *Request, *Response, *Session) error {
	return nil
}

func (NoopHandler) ProcessCredentialRequest(context.Context, *Request, *Response, *Session) error {
	return nil
}

func (NoopHandler) ProcessSeedCredentialRequest(context.Context, *Request, *Response, *Session) error {
	return nil
}
