/*
Copyright Bundesdruckerei GmbH. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package authorization

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrDataNotFound is returned by stores when no live record matches. Expired
// records are indistinguishable from absent ones at the store level.
var ErrDataNotFound = errors.New("data not found")

type sessionStore interface {
	Create(ctx context.Context, variant FlowVariant, next RequestKind, ttl time.Duration) (*Session, error)
	FindByRequestURI(ctx context.Context, requestURI string) (*Session, error)
	FindByIssuerState(ctx context.Context, issuerState string) (*Session, error)
	FindByAuthorizationCode(ctx context.Context, code string) (*Session, error)
	FindByAccessToken(ctx context.Context, token string) (*Session, error)
	FindByRefreshTokenDigest(ctx context.Context, digest string) (*Session, error)
	FindByIssuerSessionID(ctx context.Context, sessionID string) (*Session, error)
	Update(ctx context.Context, session *Session, ttl time.Duration) error
}

type sessionIDNonceStore interface {
	Create(ctx context.Context, value string, expiresAt time.Time) error
	// Consume returns the expiry of an unused nonce and marks it used. A
	// second Consume of the same value fails with ErrDataNotFound.
	Consume(ctx context.Context, value string) (time.Time, error)
}

// SessionManagerConfig wires a SessionManager.
type SessionManagerConfig struct {
	SessionStore      sessionStore
	SessionIDNonces   sessionIDNonceStore
	SessionLifetime   time.Duration
	SessionIDLifetime time.Duration
	Scheme            string
}

// SessionManager creates, resolves and persists sessions. Every lookup
// validates the correlation token's shape before touching the store and maps
// store misses to the protocol error the failing request step requires.
type SessionManager struct {
	store             sessionStore
	sessionIDNonces   sessionIDNonceStore
	sessionLifetime   time.Duration
	sessionIDLifetime time.Duration
	scheme            string
}

// NewSessionManager creates a SessionManager.
func NewSessionManager(config *SessionManagerConfig) *SessionManager {
	return &SessionManager{
		store:             config.SessionStore,
		sessionIDNonces:   config.SessionIDNonces,
		sessionLifetime:   config.SessionLifetime,
		sessionIDLifetime: config.SessionIDLifetime,
		scheme:            config.Scheme,
	}
}

// InitSession creates a fresh session expecting a pushed authorization
// request.
func (m *SessionManager) InitSession(ctx context.Context, variant FlowVariant) (*Session, error) {
	session, err := m.store.Create(ctx, variant, KindPushedAuthorization, m.sessionLifetime)
	if err != nil {
		return nil, oidcerrServer(fmt.Errorf("init session: %w", err))
	}

	return session, nil
}

// InitTokenSession creates a fresh session that starts directly at the token
// request, as refresh token and seed token grants do.
func (m *SessionManager) InitTokenSession(ctx context.Context, variant FlowVariant) (*Session, error) {
	session, err := m.store.Create(ctx, variant, KindToken, m.sessionLifetime)
	if err != nil {
		return nil, oidcerrServer(fmt.Errorf("init token session: %w", err))
	}

	return session, nil
}

// LoadByRequestURI resolves the session a PAR request created. Malformed
// request URIs are rejected without a store round trip.
func (m *SessionManager) LoadByRequestURI(ctx context.Context, variant FlowVariant, requestURI string) (*Session, error) {
	if _, ok := ParseRequestURI(requestURI); !ok {
		return nil, invalidRequestURI()
	}

	session, err := m.store.FindByRequestURI(ctx, requestURI)
	if err != nil {
		if errors.Is(err, ErrDataNotFound) {
			return nil, invalidRequestURI()
		}

		return nil, oidcerrServer(fmt.Errorf("load session by request_uri: %w", err))
	}

	if session.FlowVariant != variant {
		return nil, invalidRequestURI()
	}

	return session, nil
}

// LoadByIssuerState resolves the session behind an issuer_state value,
// regardless of flow variant. Used by the identification result receiver,
// which does not know which flow started the identification.
func (m *SessionManager) LoadByIssuerState(ctx context.Context, issuerState string) (*Session, error) {
	if !IsValidToken(issuerState) {
		return nil, invalidParam("issuer_state invalid")
	}

	session, err := m.store.FindByIssuerState(ctx, issuerState)
	if err != nil {
		if errors.Is(err, ErrDataNotFound) {
			return nil, invalidParam("issuer_state invalid")
		}

		return nil, oidcerrServer(fmt.Errorf("load session by issuer_state: %w", err))
	}

	return session, nil
}

// LoadByIssuerStateForFlow is LoadByIssuerState restricted to one variant,
// used by the finish-authorization endpoint.
func (m *SessionManager) LoadByIssuerStateForFlow(ctx context.Context, variant FlowVariant, issuerState string) (*Session, error) {
	session, err := m.LoadByIssuerState(ctx, issuerState)
	if err != nil {
		return nil, err
	}

	if session.FlowVariant != variant {
		return nil, invalidParam("issuer_state invalid")
	}

	return session, nil
}

// LoadByAuthorizationCode resolves the session behind a grant code. A miss is
// an invalid_grant, never a hint whether the code ever existed.
func (m *SessionManager) LoadByAuthorizationCode(ctx context.Context, variant FlowVariant, code string) (*Session, error) {
	if !IsValidToken(code) {
		return nil, invalidGrant("invalid authorization code")
	}

	session, err := m.store.FindByAuthorizationCode(ctx, code)
	if err != nil {
		if errors.Is(err, ErrDataNotFound) {
			return nil, invalidGrant("invalid authorization code")
		}

		return nil, oidcerrServer(fmt.Errorf("load session by code: %w", err))
	}

	if session.FlowVariant != variant {
		return nil, invalidGrant("invalid authorization code")
	}

	return session, nil
}

// LoadByAuthorization resolves the session behind an Authorization header of
// the form "<scheme> <token>". Every failure is a 401 carrying a
// WWW-Authenticate challenge.
func (m *SessionManager) LoadByAuthorization(ctx context.Context, variant FlowVariant, authorization string) (*Session, error) {
	scheme, token, found := strings.Cut(authorization, " ")
	if authorization == "" || !found {
		return nil, unauthorized(m.scheme, "missing or malformed authorization header")
	}

	if !strings.EqualFold(scheme, m.scheme) {
		return nil, unauthorized(m.scheme, "unsupported authorization scheme")
	}

	if !IsValidToken(token) {
		return nil, unauthorized(m.scheme, "invalid access token")
	}

	session, err := m.store.FindByAccessToken(ctx, token)
	if err != nil {
		if errors.Is(err, ErrDataNotFound) {
			return nil, unauthorized(m.scheme, "invalid access token")
		}

		return nil, oidcerrServer(fmt.Errorf("load session by access token: %w", err))
	}

	if session.FlowVariant != variant {
		return nil, unauthorized(m.scheme, "invalid access token")
	}

	return session, nil
}

// LoadOrInitByRefreshToken resolves the session a refresh token already
// started, or creates a fresh token session for it. The token value never
// reaches the store, only its digest.
func (m *SessionManager) LoadOrInitByRefreshToken(ctx context.Context, variant FlowVariant, refreshToken string) (*Session, error) {
	digest := Digest(refreshToken)

	session, err := m.store.FindByRefreshTokenDigest(ctx, digest)
	if err == nil {
		if session.FlowVariant != variant {
			return nil, invalidGrant("invalid refresh token")
		}

		return session, nil
	}

	if !errors.Is(err, ErrDataNotFound) {
		return nil, oidcerrServer(fmt.Errorf("load session by refresh token: %w", err))
	}

	session, err = m.InitTokenSession(ctx, variant)
	if err != nil {
		return nil, err
	}

	session.SetParameter(KeyRefreshTokenDigest, digest)

	return session, nil
}

// LoadOrInitByIssuerSessionID resolves the session a seed token request
// started, or creates a fresh token session bound to the session id. The
// binding is what lets the DPoP nonce retry land on the same session; the
// session id nonce itself stays unconsumed until the proofs verify.
func (m *SessionManager) LoadOrInitByIssuerSessionID(ctx context.Context, variant FlowVariant, sessionID string) (*Session, error) {
	if !IsValidToken(sessionID) {
		return nil, invalidGrant("invalid session id")
	}

	session, err := m.store.FindByIssuerSessionID(ctx, sessionID)
	if err == nil {
		if session.FlowVariant != variant {
			return nil, invalidGrant("invalid session id")
		}

		return session, nil
	}

	if !errors.Is(err, ErrDataNotFound) {
		return nil, oidcerrServer(fmt.Errorf("load session by session id: %w", err))
	}

	session, err = m.InitTokenSession(ctx, variant)
	if err != nil {
		return nil, err
	}

	session.SetParameter(KeyIssuerSessionID, sessionID)

	return session, nil
}

// CreateSessionIDNonce mints a single-use session id for the b1 session
// endpoint.
func (m *SessionManager) CreateSessionIDNonce(ctx context.Context) (Nonce, error) {
	nonce := NewNonce(m.sessionIDLifetime)

	if err := m.sessionIDNonces.Create(ctx, nonce.Value, nonce.ExpiresAt); err != nil {
		return Nonce{}, oidcerrServer(fmt.Errorf("create session id nonce: %w", err))
	}

	return nonce, nil
}

// ConsumeSessionIDNonce redeems a session id issued by CreateSessionIDNonce.
// Unknown, used and expired values are all rejected the same way.
func (m *SessionManager) ConsumeSessionIDNonce(ctx context.Context, value string) (Nonce, error) {
	if !IsValidToken(value) {
		return Nonce{}, invalidGrant("invalid session id")
	}

	expiresAt, err := m.sessionIDNonces.Consume(ctx, value)
	if err != nil {
		if errors.Is(err, ErrDataNotFound) {
			return Nonce{}, invalidGrant("invalid session id")
		}

		return Nonce{}, oidcerrServer(fmt.Errorf("consume session id nonce: %w", err))
	}

	if time.Now().After(expiresAt) {
		return Nonce{}, invalidGrant("invalid session id")
	}

	return Nonce{Value: value, ExpiresAt: expiresAt}, nil
}

// Persist writes the session back, refreshing its lifetime. Persist runs
// exactly once per processed request, whether the pipeline succeeded or not.
func (m *SessionManager) Persist(ctx context.Context, session *Session) error {
	if err := m.store.Update(ctx, session, m.sessionLifetime); err != nil {
		return oidcerrServer(fmt.Errorf("persist session %s: %w", session.ID, err))
	}

	return nil
}
