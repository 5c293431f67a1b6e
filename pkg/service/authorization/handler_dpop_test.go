/*
Copyright Bundesdruckerei GmbH. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package authorization_test

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"net/http"
	"net/url"
	"testing"
	"time"

	"github.com/go-jose/go-jose/v3"
	"github.com/go-jose/go-jose/v3/jwt"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/Bundesdruckerei-GmbH/pid-issuer-sub002/pkg/restapi/oidcerr"
	"github.com/Bundesdruckerei-GmbH/pid-issuer-sub002/pkg/service/authorization"
	"github.com/Bundesdruckerei-GmbH/pid-issuer-sub002/pkg/service/dpop"
)

var tokenURL = &url.URL{Scheme: "https", Host: "issuer.example.com", Path: "/c/token"}

func newDPoPHandler() authorization.Handler {
	validator := dpop.NewValidator(&dpop.Config{
		ProofValidity: 5 * time.Minute,
		TimeTolerance: 30 * time.Second,
	})

	return authorization.NewDPoPHandler(validator, authorization.NewNonceService(5*time.Minute))
}

func newDPoPKey(t *testing.T) *ecdsa.PrivateKey {
	t.Helper()

	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	return key
}

func signDPoPProof(t *testing.T, key *ecdsa.PrivateKey, nonce, accessToken string) string {
	t.Helper()

	opts := (&jose.SignerOptions{EmbedJWK: true}).WithType("dpop+jwt")

	signer, err := jose.NewSigner(jose.SigningKey{Algorithm: jose.ES256, Key: key}, opts)
	require.NoError(t, err)

	claims := map[string]interface{}{
		"jti": uuid.NewString(),
		"htm": http.MethodPost,
		"htu": tokenURL.String(),
		"iat": time.Now().Unix(),
	}

	if nonce != "" {
		claims["nonce"] = nonce
	}

	if accessToken != "" {
		claims["ath"] = dpop.HashAccessToken(accessToken)
	}

	proof, err := jwt.Signed(signer).Claims(claims).CompactSerialize()
	require.NoError(t, err)

	return proof
}

func dpopRequest(proof string) *authorization.Request {
	header := http.Header{}
	if proof != "" {
		header.Set("DPoP", proof)
	}

	return &authorization.Request{
		Method: http.MethodPost,
		URI:    tokenURL,
		Params: url.Values{},
		Header: header,
	}
}

func TestDPoPNonceRetryProtocol(t *testing.T) {
	handler := newDPoPHandler()
	key := newDPoPKey(t)
	ctx := context.Background()

	session := authorization.NewSession("s1", authorization.FlowC, authorization.KindToken)

	// first attempt without a nonce: retry signal plus a fresh nonce
	resp := authorization.NewResponse()
	err := handler.ProcessTokenRequest(ctx, dpopRequest(signDPoPProof(t, key, "", "")), resp, session)

	oidcErr, ok := oidcerr.As(err)
	require.True(t, ok)
	require.Equal(t, oidcerr.CodeUseDPoPNonce, oidcErr.Code)
	require.Equal(t, "nonce required", oidcErr.Description)

	nonce := oidcErr.Headers["DPoP-Nonce"]
	require.True(t, authorization.IsValidToken(nonce))

	// retry with the issued nonce: accepted, key bound, next nonce issued
	resp = authorization.NewResponse()
	err = handler.ProcessTokenRequest(ctx, dpopRequest(signDPoPProof(t, key, nonce, "")), resp, session)
	require.NoError(t, err)

	boundKey, err := session.CheckedKey(authorization.KeyDPoPPublicKey)
	require.NoError(t, err)
	require.True(t, boundKey.Key.(*ecdsa.PublicKey).Equal(key.Public()))

	nextNonce := resp.Header.Get("DPoP-Nonce")
	require.True(t, authorization.IsValidToken(nextNonce))
	require.NotEqual(t, nonce, nextNonce)

	t.Run("replayed nonce is rejected with a fresh one", func(t *testing.T) {
		resp := authorization.NewResponse()
		err := handler.ProcessTokenRequest(ctx, dpopRequest(signDPoPProof(t, key, nonce, "")), resp, session)

		oidcErr, ok := oidcerr.As(err)
		require.True(t, ok)
		require.Equal(t, oidcerr.CodeUseDPoPNonce, oidcErr.Code)
		require.Equal(t, "invalid nonce", oidcErr.Description)
		require.True(t, authorization.IsValidToken(oidcErr.Headers["DPoP-Nonce"]))
	})
}

func TestDPoPProofMissing(t *testing.T) {
	handler := newDPoPHandler()

	session := authorization.NewSession("s1", authorization.FlowC, authorization.KindToken)

	err := handler.ProcessTokenRequest(context.Background(), dpopRequest(""), authorization.NewResponse(), session)

	requireOidcErr(t, err, oidcerr.CodeInvalidDPoPProof, "DPoP proof missing")
}

func TestDPoPProofMalformed(t *testing.T) {
	handler := newDPoPHandler()

	session := authorization.NewSession("s1", authorization.FlowC, authorization.KindToken)

	err := handler.ProcessTokenRequest(
		context.Background(), dpopRequest("not.a.jws"), authorization.NewResponse(), session)

	requireOidcErr(t, err, oidcerr.CodeInvalidDPoPProof, "invalid DPoP proof")
}

func TestDPoPExpiredNonce(t *testing.T) {
	handler := newDPoPHandler()
	key := newDPoPKey(t)

	session := authorization.NewSession("s1", authorization.FlowC, authorization.KindToken)
	session.SetParameter(authorization.KeyDPoPNonce, "expirednonce0123456789")
	session.SetInstant(authorization.KeyDPoPNonceExpires, time.Now().Add(-time.Minute))

	err := handler.ProcessTokenRequest(context.Background(),
		dpopRequest(signDPoPProof(t, key, "expirednonce0123456789", "")), authorization.NewResponse(), session)

	requireOidcErr(t, err, oidcerr.CodeInvalidDPoPProof, "nonce expired")
}

func TestDPoPKeyContinuity(t *testing.T) {
	handler := newDPoPHandler()
	key := newDPoPKey(t)
	ctx := context.Background()

	session := authorization.NewSession("s1", authorization.FlowC, authorization.KindToken)

	nonceService := authorization.NewNonceService(5 * time.Minute)
	nonce := nonceService.GenerateDPoPNonce(session)

	require.NoError(t, session.SetKey(authorization.KeyDPoPPublicKey,
		&jose.JSONWebKey{Key: key.Public(), Algorithm: string(jose.ES256)}))

	t.Run("same key passes", func(t *testing.T) {
		err := handler.ProcessTokenRequest(ctx,
			dpopRequest(signDPoPProof(t, key, nonce.Value, "")), authorization.NewResponse(), session)
		require.NoError(t, err)
	})

	t.Run("different key is rejected", func(t *testing.T) {
		nonce := nonceService.GenerateDPoPNonce(session)

		err := handler.ProcessTokenRequest(ctx,
			dpopRequest(signDPoPProof(t, newDPoPKey(t), nonce.Value, "")), authorization.NewResponse(), session)

		requireOidcErr(t, err, oidcerr.CodeInvalidDPoPProof, "key mismatch")
	})
}

func TestDPoPSeedTokenNonceRequired(t *testing.T) {
	handler := newDPoPHandler()
	key := newDPoPKey(t)

	session := authorization.NewSession("s1", authorization.FlowB1, authorization.KindToken)

	err := handler.ProcessSeedTokenRequest(context.Background(),
		dpopRequest(signDPoPProof(t, key, "", "")), authorization.NewResponse(), session)

	oidcErr, ok := oidcerr.As(err)
	require.True(t, ok)
	require.Equal(t, oidcerr.CodeUseDPoPNonce, oidcErr.Code)
	require.True(t, authorization.IsValidToken(oidcErr.Headers["DPoP-Nonce"]))
}

func TestDPoPCredentialRequest(t *testing.T) {
	handler := newDPoPHandler()
	key := newDPoPKey(t)
	ctx := context.Background()

	accessToken := authorization.RandomToken()

	newCredentialSession := func(t *testing.T) (*authorization.Session, authorization.Nonce) {
		t.Helper()

		session := authorization.NewSession("s1", authorization.FlowC, authorization.KindCredential)
		session.SetParameter(authorization.KeyAccessToken, accessToken)

		require.NoError(t, session.SetKey(authorization.KeyDPoPPublicKey,
			&jose.JSONWebKey{Key: key.Public(), Algorithm: string(jose.ES256)}))

		nonce := authorization.NewNonceService(5 * time.Minute).GenerateDPoPNonce(session)

		return session, nonce
	}

	t.Run("valid ath", func(t *testing.T) {
		session, nonce := newCredentialSession(t)

		err := handler.ProcessCredentialRequest(ctx,
			dpopRequest(signDPoPProof(t, key, nonce.Value, accessToken)), authorization.NewResponse(), session)
		require.NoError(t, err)
	})

	t.Run("missing ath is unauthorized", func(t *testing.T) {
		session, nonce := newCredentialSession(t)

		err := handler.ProcessCredentialRequest(ctx,
			dpopRequest(signDPoPProof(t, key, nonce.Value, "")), authorization.NewResponse(), session)

		oidcErr, ok := oidcerr.As(err)
		require.True(t, ok)
		require.Equal(t, oidcerr.CodeInvalidRequest, oidcErr.Code)
		require.Equal(t, http.StatusUnauthorized, oidcErr.Status)
		require.Equal(t, authorization.SchemeDPoP, oidcErr.Headers["WWW-Authenticate"])
	})

	t.Run("malformed proof is unauthorized", func(t *testing.T) {
		session, _ := newCredentialSession(t)

		err := handler.ProcessCredentialRequest(ctx,
			dpopRequest("not.a.jws"), authorization.NewResponse(), session)

		oidcErr, ok := oidcerr.As(err)
		require.True(t, ok)
		require.Equal(t, http.StatusUnauthorized, oidcErr.Status)
		require.Equal(t, authorization.SchemeDPoP, oidcErr.Headers["WWW-Authenticate"])
	})

	t.Run("no bound key is a server error", func(t *testing.T) {
		session, nonce := newCredentialSession(t)
		session.Remove(authorization.KeyDPoPPublicKey)

		err := handler.ProcessCredentialRequest(ctx,
			dpopRequest(signDPoPProof(t, key, nonce.Value, accessToken)), authorization.NewResponse(), session)

		oidcErr, ok := oidcerr.As(err)
		require.True(t, ok)
		require.Equal(t, oidcerr.CodeServerError, oidcErr.Code)
	})
}
