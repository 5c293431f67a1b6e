/*
Copyright Bundesdruckerei GmbH. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package authorization

import (
	"context"
	"time"

	"github.com/trustbloc/logutil-go/pkg/log"

	"github.com/Bundesdruckerei-GmbH/pid-issuer-sub002/pkg/restapi/oidcerr"
	"github.com/Bundesdruckerei-GmbH/pid-issuer-sub002/pkg/service/keyproof"
)

var logger = log.New("authorization")

// Grant types accepted on the token endpoint.
const (
	GrantAuthorizationCode = "authorization_code"
	GrantRefreshToken      = "refresh_token"
	GrantSeedCredential    = "seed_credential"
)

type metricsProvider interface {
	RequestProcessedTime(flow, kind string, duration time.Duration)
	RequestFailed(flow, kind string)
}

type noopMetrics struct{}

func (noopMetrics) RequestProcessedTime(string, string, time.Duration) {}
func (noopMetrics) RequestFailed(string, string)                      {}

// FlowConfig wires one flow variant.
type FlowConfig struct {
	Variant         FlowVariant
	SessionManager  *SessionManager
	Handlers        []Handler
	Metrics         metricsProvider
	AfterToken      RequestKind
	SupportsRefresh bool
	SupportsSeed    bool
}

// Flow runs the handler chain of one flow variant. Each Process method
// resolves the session by the correlation key appropriate for the request
// kind, runs every handler in order until the first error, advances the
// session's next expected request on success, and persists the session
// exactly once in all cases.
type Flow struct {
	variant         FlowVariant
	sessions        *SessionManager
	handlers        []Handler
	metrics         metricsProvider
	afterToken      RequestKind
	supportsRefresh bool
	supportsSeed    bool
}

// NewFlow creates a Flow from its configuration.
func NewFlow(config *FlowConfig) *Flow {
	afterToken := config.AfterToken
	if afterToken == "" {
		afterToken = KindCredential
	}

	metrics := config.Metrics
	if metrics == nil {
		metrics = noopMetrics{}
	}

	return &Flow{
		variant:         config.Variant,
		sessions:        config.SessionManager,
		handlers:        config.Handlers,
		metrics:         metrics,
		afterToken:      afterToken,
		supportsRefresh: config.SupportsRefresh,
		supportsSeed:    config.SupportsSeed,
	}
}

// Variant returns the flow variant this Flow serves.
func (f *Flow) Variant() FlowVariant {
	return f.variant
}

// SupportsRefresh reports whether the refresh_token grant is available.
func (f *Flow) SupportsRefresh() bool {
	return f.supportsRefresh
}

// SupportsSeed reports whether the seed credential endpoints are available.
func (f *Flow) SupportsSeed() bool {
	return f.supportsSeed
}

// ProcessPushedAuthRequest handles a pushed authorization request. It creates
// the session every later request of the flow correlates to.
func (f *Flow) ProcessPushedAuthRequest(ctx context.Context, req *Request) (*Response, error) {
	defer f.observe(KindPushedAuthorization, time.Now())

	session, err := f.sessions.InitSession(ctx, f.variant)
	if err != nil {
		return nil, f.failed(KindPushedAuthorization, err)
	}

	resp, err := f.run(ctx, session, KindAuthorization,
		func(h Handler, resp *Response) error {
			return h.ProcessPushedAuthRequest(ctx, req, resp, session)
		})

	return f.done(KindPushedAuthorization, resp, err)
}

// ProcessAuthRequest handles the authorization request referencing a prior
// PAR by its request_uri.
func (f *Flow) ProcessAuthRequest(ctx context.Context, req *Request) (*Response, error) {
	defer f.observe(KindAuthorization, time.Now())

	requestURI, ok := req.Param("request_uri")
	if !ok {
		return nil, f.failed(KindAuthorization, oidcerr.NewInvalidRequest("request_uri missing"))
	}

	session, err := f.sessions.LoadByRequestURI(ctx, f.variant, requestURI)
	if err != nil {
		return nil, f.failed(KindAuthorization, err)
	}

	resp, err := f.run(ctx, session, KindIdentificationResult,
		func(h Handler, resp *Response) error {
			return h.ProcessAuthRequest(ctx, req, resp, session)
		})

	return f.done(KindAuthorization, resp, err)
}

// ProcessFinishAuthRequest handles the finish-authorization request after the
// external identification returned. Errors raised once the session is known
// are delivered to the wallet's redirect URI.
func (f *Flow) ProcessFinishAuthRequest(ctx context.Context, req *Request) (*Response, error) {
	defer f.observe(KindFinishAuthorization, time.Now())

	issuerState, ok := req.Param("issuer_state")
	if !ok {
		return nil, f.failed(KindFinishAuthorization, oidcerr.NewInvalidRequest("issuer_state missing"))
	}

	session, err := f.sessions.LoadByIssuerStateForFlow(ctx, f.variant, issuerState)
	if err != nil {
		return nil, f.failed(KindFinishAuthorization, err)
	}

	resp, err := f.run(ctx, session, KindToken,
		func(h Handler, resp *Response) error {
			return h.ProcessFinishAuthRequest(ctx, req, resp, session)
		})
	if err != nil {
		return nil, f.failed(KindFinishAuthorization, f.asRedirectError(session, err))
	}

	return resp, nil
}

// ProcessTokenRequest handles the token request, dispatching on grant_type.
func (f *Flow) ProcessTokenRequest(ctx context.Context, req *Request) (*Response, error) {
	defer f.observe(KindToken, time.Now())

	grantType, ok := req.Param("grant_type")
	if !ok {
		return nil, f.failed(KindToken, oidcerr.NewInvalidRequest("grant_type missing"))
	}

	switch grantType {
	case GrantAuthorizationCode:
		return f.processCodeTokenRequest(ctx, req)
	case GrantRefreshToken:
		if !f.supportsRefresh {
			return nil, f.failed(KindToken, oidcerr.NewUnsupportedGrantType("grant type not supported"))
		}

		return f.processRefreshTokenRequest(ctx, req)
	case GrantSeedCredential:
		if !f.supportsSeed {
			return nil, f.failed(KindToken, oidcerr.NewUnsupportedGrantType("grant type not supported"))
		}

		return f.processSeedTokenRequest(ctx, req)
	default:
		return nil, f.failed(KindToken, oidcerr.NewUnsupportedGrantType("grant type not supported"))
	}
}

func (f *Flow) processCodeTokenRequest(ctx context.Context, req *Request) (*Response, error) {
	code, ok := req.Param("code")
	if !ok {
		return nil, f.failed(KindToken, oidcerr.NewInvalidRequest("code missing"))
	}

	session, err := f.sessions.LoadByAuthorizationCode(ctx, f.variant, code)
	if err != nil {
		return nil, f.failed(KindToken, err)
	}

	resp, err := f.run(ctx, session, f.afterToken,
		func(h Handler, resp *Response) error {
			return h.ProcessTokenRequest(ctx, req, resp, session)
		})

	return f.done(KindToken, resp, err)
}

func (f *Flow) processRefreshTokenRequest(ctx context.Context, req *Request) (*Response, error) {
	refreshToken, ok := req.Param("refresh_token")
	if !ok {
		return nil, f.failed(KindToken, oidcerr.NewInvalidRequest("refresh_token missing"))
	}

	session, err := f.sessions.LoadOrInitByRefreshToken(ctx, f.variant, refreshToken)
	if err != nil {
		return nil, f.failed(KindToken, err)
	}

	resp, err := f.run(ctx, session, KindCredential,
		func(h Handler, resp *Response) error {
			return h.ProcessRefreshTokenRequest(ctx, req, resp, session)
		})

	return f.done(KindToken, resp, err)
}

func (f *Flow) processSeedTokenRequest(ctx context.Context, req *Request) (*Response, error) {
	seedToken := &SeedTokenRequest{}

	for _, p := range []struct {
		name   string
		target *string
	}{
		{"seed_credential", &seedToken.SeedCredential},
		{"pin_derived_eph_key_pop", &seedToken.PinDerivedEphKeyPop},
		{"device_key_pop", &seedToken.DeviceKeyPop},
	} {
		v, ok := req.Param(p.name)
		if !ok {
			return nil, f.failed(KindToken, oidcerr.NewInvalidRequest(p.name+" missing"))
		}

		*p.target = v
	}

	req.SeedToken = seedToken

	// The session id inside the device proof correlates the request across
	// the DPoP nonce retry. The proof itself is verified later in the chain.
	sessionID, err := keyproof.ParseSessionID(seedToken.DeviceKeyPop)
	if err != nil {
		return nil, f.failed(KindToken, oidcerr.NewInvalidGrant("invalid device_key_pop").WithErr(err))
	}

	session, err := f.sessions.LoadOrInitByIssuerSessionID(ctx, f.variant, sessionID)
	if err != nil {
		return nil, f.failed(KindToken, err)
	}

	resp, err := f.run(ctx, session, KindCredential,
		func(h Handler, resp *Response) error {
			return h.ProcessSeedTokenRequest(ctx, req, resp, session)
		})

	return f.done(KindToken, resp, err)
}

// ProcessCredentialRequest handles the credential request authorized by the
// session's access token.
func (f *Flow) ProcessCredentialRequest(ctx context.Context, req *Request) (*Response, error) {
	defer f.observe(KindCredential, time.Now())

	session, err := f.sessions.LoadByAuthorization(ctx, f.variant, req.Header.Get("Authorization"))
	if err != nil {
		return nil, f.failed(KindCredential, err)
	}

	// The credential request is the flow's last step. The session stays
	// terminal until housekeeping removes it.
	resp, err := f.run(ctx, session, "",
		func(h Handler, resp *Response) error {
			return h.ProcessCredentialRequest(ctx, req, resp, session)
		})

	return f.done(KindCredential, resp, err)
}

// ProcessSeedCredentialRequest handles the b1 seed credential request that
// ends the initial issuance session.
func (f *Flow) ProcessSeedCredentialRequest(ctx context.Context, req *Request) (*Response, error) {
	defer f.observe(KindSeedCredential, time.Now())

	if !f.supportsSeed {
		return nil, f.failed(KindSeedCredential, oidcerr.NewInvalidRequest("seed credentials not supported"))
	}

	session, err := f.sessions.LoadByAuthorization(ctx, f.variant, req.Header.Get("Authorization"))
	if err != nil {
		return nil, f.failed(KindSeedCredential, err)
	}

	resp, err := f.run(ctx, session, "",
		func(h Handler, resp *Response) error {
			return h.ProcessSeedCredentialRequest(ctx, req, resp, session)
		})

	return f.done(KindSeedCredential, resp, err)
}

// ProcessSessionRequest mints the single-use pid issuer session id a b1
// wallet binds its PIN setup proofs to. No session is created.
func (f *Flow) ProcessSessionRequest(ctx context.Context) (*Response, error) {
	if !f.supportsSeed {
		return nil, oidcerr.NewInvalidRequest("session ids not supported")
	}

	nonce, err := f.sessions.CreateSessionIDNonce(ctx)
	if err != nil {
		return nil, err
	}

	resp := NewResponse()
	resp.Put("session_id", nonce.Value)
	resp.Put("session_id_expires_in", int(time.Until(nonce.ExpiresAt).Seconds()))

	return resp, nil
}

// run executes the handler chain. The deferred persist covers both outcomes:
// on failure the session still carries mutations that must survive, e.g. PIN
// retry increments and freshly rotated DPoP nonces.
func (f *Flow) run(
	ctx context.Context,
	session *Session,
	next RequestKind,
	invoke func(h Handler, resp *Response) error,
) (resp *Response, err error) {
	resp = NewResponse()

	defer func() {
		if perr := f.sessions.Persist(ctx, session); perr != nil {
			logger.Error("session persist failed", log.WithError(perr))

			if err == nil {
				resp, err = nil, perr
			}
		}
	}()

	for _, h := range f.handlers {
		if err = invoke(h, resp); err != nil {
			return nil, err
		}
	}

	session.NextExpectedRequest = next

	return resp, nil
}

func (f *Flow) asRedirectError(session *Session, err error) error {
	redirectURI, ok := session.OptionalParameter(KeyRedirectURI)
	if !ok {
		return err
	}

	oerr, ok := oidcerr.As(err)
	if !ok {
		oerr = oidcerr.NewServerError(err)
	}

	state, _ := session.OptionalParameter(KeyState)

	return &RedirectError{
		RedirectURI: redirectURI,
		State:       state,
		Err:         oerr,
	}
}

func (f *Flow) observe(kind RequestKind, start time.Time) {
	f.metrics.RequestProcessedTime(string(f.variant), string(kind), time.Since(start))
}

func (f *Flow) failed(kind RequestKind, err error) error {
	f.metrics.RequestFailed(string(f.variant), string(kind))
	return err
}

func (f *Flow) done(kind RequestKind, resp *Response, err error) (*Response, error) {
	if err != nil {
		return nil, f.failed(kind, err)
	}

	return resp, nil
}
