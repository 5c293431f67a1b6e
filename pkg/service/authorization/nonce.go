/*
Copyright Bundesdruckerei GmbH. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package authorization

import (
	"time"
)

// Nonce is a single-purpose random value with a bounded lifetime.
type Nonce struct {
	Value     string
	ExpiresAt time.Time
}

// NewNonce mints a nonce valid for the given duration from now.
func NewNonce(validity time.Duration) Nonce {
	return Nonce{
		Value:     RandomToken(),
		ExpiresAt: time.Now().UTC().Add(validity),
	}
}

// Expired reports whether the nonce lifetime has passed.
func (n Nonce) Expired() bool {
	return time.Now().After(n.ExpiresAt)
}

// NonceService mints DPoP nonces and binds them to sessions.
type NonceService struct {
	lifetime time.Duration
}

// NewNonceService creates a NonceService minting nonces with the given
// lifetime.
func NewNonceService(lifetime time.Duration) *NonceService {
	return &NonceService{lifetime: lifetime}
}

// GenerateDPoPNonce mints a fresh DPoP nonce, stores it in the session and
// returns it. Any previous nonce is superseded.
func (s *NonceService) GenerateDPoPNonce(session *Session) Nonce {
	nonce := NewNonce(s.lifetime)

	session.SetParameter(KeyDPoPNonce, nonce.Value)
	session.SetInstant(KeyDPoPNonceExpires, nonce.ExpiresAt)

	return nonce
}

// DPoPNonceFromSession returns the nonce currently bound to the session, or
// ok == false when none was issued yet. The nonce is returned even when
// expired so callers can distinguish a stale value from a wrong one.
func (s *NonceService) DPoPNonceFromSession(session *Session) (Nonce, bool, error) {
	value, ok := session.OptionalParameter(KeyDPoPNonce)
	if !ok {
		return Nonce{}, false, nil
	}

	expires, err := session.CheckedInstant(KeyDPoPNonceExpires)
	if err != nil {
		return Nonce{}, false, err
	}

	return Nonce{Value: value, ExpiresAt: expires}, true, nil
}
