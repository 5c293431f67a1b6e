/*
Copyright Bundesdruckerei GmbH. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package identification

import (
	"context"
	"fmt"
	"net/url"
	"sync"
)

// ProviderConfig wires a Provider.
type ProviderConfig struct {
	// IdentityProviderURL is the entry endpoint of the external eID provider.
	IdentityProviderURL string

	// CallbackURL is the finish-authorization endpoint of the serving flow,
	// passed to the provider so it can send the user agent back.
	CallbackURL string
}

// Provider builds the redirect that hands the user agent to the external
// identity provider. The provider later posts the identification result,
// keyed by the issuer state, to the result receiver.
type Provider struct {
	providerURL string
	callbackURL string

	buildOnce sync.Once
	buildErr  error
	base      *url.URL
}

// NewProvider creates a Provider. The provider URL is parsed on first use so
// construction stays cheap for flows that never authorize.
func NewProvider(config *ProviderConfig) *Provider {
	return &Provider{
		providerURL: config.IdentityProviderURL,
		callbackURL: config.CallbackURL,
	}
}

// StartIdentification returns the provider URL carrying the issuer state and
// the callback the provider redirects to afterwards.
func (p *Provider) StartIdentification(_ context.Context, issuerState string) (*url.URL, error) {
	p.buildOnce.Do(func() {
		base, err := url.Parse(p.providerURL)
		if err != nil {
			p.buildErr = fmt.Errorf("parse identity provider url: %w", err)
			return
		}

		p.base = base
	})

	if p.buildErr != nil {
		return nil, p.buildErr
	}

	target := *p.base

	q := target.Query()
	q.Set("issuer_state", issuerState)
	q.Set("callback", p.callbackURL)
	target.RawQuery = q.Encode()

	return &target, nil
}
