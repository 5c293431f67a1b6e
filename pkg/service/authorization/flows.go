/*
Copyright Bundesdruckerei GmbH. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package authorization

// SchemeDPoP is the authorization scheme access tokens are bound to.
const SchemeDPoP = "DPoP"

// ScopePID is the only scope the issuer serves.
const ScopePID = "pid"

// FlowDeps bundles the collaborators a flow variant is wired from.
type FlowDeps struct {
	Config         *Config
	SessionManager *SessionManager
	NonceService   *NonceService
	Clients        clientRegistry
	Identification identificationStarter
	DPoP           dpopValidator
	Proofs         proofVerifier
	SeedCodec      seedCodec
	RetryCounter   retryCounter
	Credentials    credentialBuilder
	Metrics        metricsProvider

	// Formats lists the credential formats the wired builder can issue.
	Formats []string
}

func (d *FlowDeps) formats() []string {
	if len(d.Formats) == 0 {
		return []string{FormatSDJWT}
	}

	return d.Formats
}

// baseHandlers is the chain shared by every variant, in pipeline order. The
// request order handler runs first so no later handler mutates state for an
// out-of-order request; response-building handlers run after all validation.
func baseHandlers(deps *FlowDeps) []Handler {
	return []Handler{
		NewRequestOrderHandler(),
		NewExpiryHandler(SchemeDPoP),
		NewClientCheckHandler(deps.Clients),
		NewRedirectURIHandler(),
		NewResponseTypeHandler(),
		NewStateHandler(),
		NewScopeHandler(ScopePID),
		NewPKCEHandler(),
		NewDPoPHandler(deps.DPoP, deps.NonceService),
	}
}

func tailHandlers(deps *FlowDeps) []Handler {
	return []Handler{
		NewPARHandler(deps.Config.RequestURILifetime),
		NewAuthorizeHandler(deps.Identification),
		NewFinishAuthHandler(deps.Config.AuthorizationCodeLifetime),
		NewAccessTokenHandler(SchemeDPoP, deps.Config.AccessTokenLifetime),
		NewCredentialHandler(deps.Credentials),
		NewCNonceHandler(deps.Config.CNonceLifetime),
	}
}

// NewCFlow wires the base flow.
func NewCFlow(deps *FlowDeps) *Flow {
	handlers := baseHandlers(deps)
	handlers = append(handlers, NewKeyProofHandler(deps.Proofs, deps.Config, deps.formats()...))
	handlers = append(handlers, tailHandlers(deps)...)

	return NewFlow(&FlowConfig{
		Variant:        FlowC,
		SessionManager: deps.SessionManager,
		Handlers:       handlers,
		Metrics:        deps.Metrics,
	})
}

// NewC1Flow wires the refresh-token flow: the base flow plus refresh token
// validation and issuance.
func NewC1Flow(deps *FlowDeps) *Flow {
	handlers := baseHandlers(deps)
	handlers = append(handlers,
		NewRefreshValidationHandler(deps.SeedCodec, deps.Config),
		NewKeyProofHandler(deps.Proofs, deps.Config, deps.formats()...),
	)
	handlers = append(handlers, tailHandlers(deps)...)
	handlers = append(handlers, NewRefreshIssuanceHandler(deps.SeedCodec, deps.Config))

	return NewFlow(&FlowConfig{
		Variant:         FlowC1,
		SessionManager:  deps.SessionManager,
		Handlers:        handlers,
		Metrics:         deps.Metrics,
		SupportsRefresh: true,
	})
}

// NewB1Flow wires the seed-credential flow. The initial session ends with a
// PIN-bound seed credential instead of a PID; redemption enters at the token
// step with the seed credential as the grant, on a session correlated by the
// single-use pid issuer session id.
func NewB1Flow(deps *FlowDeps) *Flow {
	handlers := baseHandlers(deps)
	handlers = append(handlers,
		NewSeedRedemptionHandler(deps.SeedCodec, deps.Proofs, deps.RetryCounter, deps.SessionManager, deps.Config),
		NewKeyProofHandler(deps.Proofs, deps.Config, deps.formats()...),
		NewInitPinRetryCounterHandler(deps.Proofs, deps.RetryCounter, deps.Config),
	)
	handlers = append(handlers, tailHandlers(deps)...)
	handlers = append(handlers, NewSeedIssuanceHandler(deps.SeedCodec, deps.Config))

	return NewFlow(&FlowConfig{
		Variant:        FlowB1,
		SessionManager: deps.SessionManager,
		Handlers:       handlers,
		Metrics:        deps.Metrics,
		AfterToken:     KindSeedCredential,
		SupportsSeed:   true,
	})
}
