/*
Copyright Bundesdruckerei GmbH. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package authorization

import (
	"net/http"
	"net/url"
	"time"

	"github.com/Bundesdruckerei-GmbH/pid-issuer-sub002/pkg/restapi/oidcerr"
)

// FlowVariant identifies one issuance flow. The variant is fixed when a
// session is created and determines the handler chain and the URL prefix of
// every endpoint the session may talk to.
type FlowVariant string

const (
	// FlowC is the base flow: PAR, authorization, identification,
	// finish-authorization, token and credential requests.
	FlowC FlowVariant = "c"

	// FlowC1 extends the base flow with refresh tokens. The refresh token is
	// an encrypted seed credential bound to the wallet's DPoP key.
	FlowC1 FlowVariant = "c1"

	// FlowB1 extends the base flow with PIN-protected seed credentials that
	// can be redeemed in a later session without a new identification.
	FlowB1 FlowVariant = "b1"
)

// RequestKind enumerates the request types the flow pipeline processes. The
// session records which kind it expects next.
type RequestKind string

const (
	KindPushedAuthorization  RequestKind = "PUSHED_AUTHORIZATION"
	KindAuthorization        RequestKind = "AUTHORIZATION"
	KindIdentificationResult RequestKind = "IDENTIFICATION_RESULT"
	KindFinishAuthorization  RequestKind = "FINISH_AUTHORIZATION"
	KindToken                RequestKind = "TOKEN"
	KindSeedCredential       RequestKind = "SEED_CREDENTIAL"
	KindCredential           RequestKind = "CREDENTIAL"
)

// SessionKey names a value in the session parameter bag. All values are
// stored as strings; instants use RFC 3339 and keys use their JWK JSON form.
type SessionKey string

const (
	KeyRequestURI            SessionKey = "request_uri"
	KeyRequestURIExpires     SessionKey = "request_uri_exp_time"
	KeyIssuerState           SessionKey = "issuer_state"
	KeyState                 SessionKey = "state"
	KeyClientID              SessionKey = "client_id"
	KeyRedirectURI           SessionKey = "redirect_uri"
	KeyScope                 SessionKey = "scope"
	KeyCodeChallenge         SessionKey = "code_challenge"
	KeyAuthorizationCode     SessionKey = "authorization_code"
	KeyAuthorizationExpires  SessionKey = "authorization_code_exp_time"
	KeyAccessToken           SessionKey = "access_token"
	KeyAccessTokenExpires    SessionKey = "access_token_exp_time"
	KeyCNonce                SessionKey = "c_nonce"
	KeyCNonceExpires         SessionKey = "c_nonce_exp_time"
	KeyDPoPNonce             SessionKey = "dpop_nonce"
	KeyDPoPNonceExpires      SessionKey = "dpop_nonce_exp_time"
	KeyDPoPPublicKey         SessionKey = "dpop_public_key"
	KeyIdentificationData    SessionKey = "identification_data"
	KeyIdentificationError   SessionKey = "identification_error"
	KeyVerifiedProofKeys     SessionKey = "verified_proof_keys"
	KeyIssuerSessionID       SessionKey = "pid_issuer_session_id"
	KeyIssuerSessionExpires  SessionKey = "pid_issuer_session_id_exp_time"
	KeyClientInstanceKey     SessionKey = "client_instance_key"
	KeyPinDerivedPublicKey   SessionKey = "pin_derived_public_key"
	KeyPinRetryCounterDigest SessionKey = "pin_retry_counter_digest"
	KeyRefreshTokenDigest    SessionKey = "refresh_token_digest"
)

// Credential formats accepted on the credential endpoint.
const (
	FormatSDJWT = "vc+sd-jwt"
	FormatMdoc  = "mso_mdoc"
)

// Proof is a single key proof inside a credential request.
type Proof struct {
	ProofType string `json:"proof_type"`
	JWT       string `json:"jwt"`
}

// CredentialRequest is the parsed JSON body of a credential request.
type CredentialRequest struct {
	Format  string   `json:"format"`
	Vct     string   `json:"vct,omitempty"`
	Doctype string   `json:"doctype,omitempty"`
	Proof   *Proof   `json:"proof,omitempty"`
	Proofs  []string `json:"-"`
}

// SeedCredentialRequest is the parsed JSON body of a b1 seed credential
// request carrying the two PIN setup proofs.
type SeedCredentialRequest struct {
	PinDerivedEphKeyPop string `json:"pin_derived_eph_key_pop"`
	DeviceKeyPop        string `json:"device_key_pop"`
}

// SeedTokenRequest carries the parameters of a b1 token request redeeming a
// seed credential, beyond the plain form parameters.
type SeedTokenRequest struct {
	SeedCredential      string
	PinDerivedEphKeyPop string
	DeviceKeyPop        string
}

// Request is the transport-neutral view of one inbound request handed to the
// flow pipeline by the REST layer.
type Request struct {
	Method string
	URI    *url.URL
	Params url.Values
	Header http.Header

	Credential     *CredentialRequest
	SeedCredential *SeedCredentialRequest
	SeedToken      *SeedTokenRequest
}

// Param returns the single value of a request parameter. Missing and repeated
// parameters both yield ok == false; callers that must distinguish the two use
// RequiredParam.
func (r *Request) Param(name string) (string, bool) {
	vals, ok := r.Params[name]
	if !ok || len(vals) != 1 {
		return "", false
	}

	return vals[0], true
}

// HasParam reports whether the parameter is present at least once.
func (r *Request) HasParam(name string) bool {
	_, ok := r.Params[name]
	return ok
}

// Response accumulates what the flow pipeline wants to send back: a status,
// headers and a flat JSON body that successive handlers merge into.
type Response struct {
	Status int
	Header http.Header
	Body   map[string]interface{}

	// Redirect, when non-empty, turns the response into a redirect to this
	// location with the given Status.
	Redirect string
}

// NewResponse returns an empty 200 response.
func NewResponse() *Response {
	return &Response{
		Status: http.StatusOK,
		Header: http.Header{},
		Body:   map[string]interface{}{},
	}
}

// SetRedirect turns the response into a redirect.
func (r *Response) SetRedirect(status int, location string) {
	r.Status = status
	r.Redirect = location
}

// Put adds a member to the JSON body.
func (r *Response) Put(name string, value interface{}) {
	r.Body[name] = value
}

// RedirectError is returned by finish-authorization processing when the error
// must be delivered to the wallet's redirect URI instead of the response body.
type RedirectError struct {
	RedirectURI string
	State       string
	Err         *oidcerr.Error
}

func (e *RedirectError) Error() string {
	return e.Err.Error()
}

func (e *RedirectError) Unwrap() error {
	return e.Err
}

// Location renders the redirect target with error, error_description and
// state query parameters appended.
func (e *RedirectError) Location() string {
	u, err := url.Parse(e.RedirectURI)
	if err != nil {
		return e.RedirectURI
	}

	q := u.Query()
	q.Set("error", string(e.Err.Code))

	if e.Err.Description != "" {
		q.Set("error_description", e.Err.Description)
	}

	if e.State != "" {
		q.Set("state", e.State)
	}

	u.RawQuery = q.Encode()

	return u.String()
}

// Config holds the lifetimes and identity of the authorization server shared
// by all flows.
type Config struct {
	BaseURL *url.URL

	RequestURILifetime        time.Duration
	AuthorizationCodeLifetime time.Duration
	AccessTokenLifetime       time.Duration
	CNonceLifetime            time.Duration
	DPoPNonceLifetime         time.Duration
	SessionLifetime           time.Duration
	ProofValidity             time.Duration
	ProofTimeTolerance        time.Duration
	MaxBatchSize              int
}

// CredentialIssuerIdentifier is the audience value proofs for the given flow
// must carry: the base URL with the flow variant appended as the path.
func (c *Config) CredentialIssuerIdentifier(variant FlowVariant) string {
	return c.BaseURL.JoinPath(string(variant)).String()
}
