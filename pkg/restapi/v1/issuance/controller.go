/*
Copyright Bundesdruckerei GmbH. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package issuance exposes the authorization flows over HTTP. Each flow
// variant gets its own route group under /{variant}/.
package issuance

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"

	"github.com/labstack/echo/v4"
	"github.com/tidwall/gjson"
	"github.com/trustbloc/logutil-go/pkg/log"

	"github.com/Bundesdruckerei-GmbH/pid-issuer-sub002/internal/logfields"
	"github.com/Bundesdruckerei-GmbH/pid-issuer-sub002/pkg/restapi/oidcerr"
	"github.com/Bundesdruckerei-GmbH/pid-issuer-sub002/pkg/service/authorization"
	"github.com/Bundesdruckerei-GmbH/pid-issuer-sub002/pkg/service/identification"
)

var logger = log.New("restapi-issuance")

const maxBodySize = 1 << 20

// Config wires a Controller.
type Config struct {
	// ExternalURL is the public base URL clients address the issuer under.
	// DPoP htu validation compares against it, so it must match what the
	// wallet sees, not what the reverse proxy forwards.
	ExternalURL *url.URL
	Flows       map[authorization.FlowVariant]*authorization.Flow
	Results     *authorization.ResultReceiver
}

// Controller handles the issuance API endpoints.
type Controller struct {
	externalURL *url.URL
	flows       map[authorization.FlowVariant]*authorization.Flow
	results     *authorization.ResultReceiver
}

// NewController creates a Controller.
func NewController(config Config) *Controller {
	return &Controller{
		externalURL: config.ExternalURL,
		flows:       config.Flows,
		results:     config.Results,
	}
}

// RegisterHandlers mounts the issuance routes on the echo instance.
func RegisterHandlers(e *echo.Echo, c *Controller) {
	for variant, flow := range c.flows {
		g := e.Group("/" + string(variant))

		g.POST("/par", c.pushedAuthorizationRequest(flow))
		g.GET("/authorize", c.authorizationRequest(flow))
		g.GET("/finish-authorization", c.finishAuthorizationRequest(flow))
		g.POST("/token", c.tokenRequest(flow))
		g.POST("/credential", c.credentialRequest(flow))

		if variant == authorization.FlowB1 {
			g.POST("/session", c.sessionRequest(flow))
			g.POST("/seed-credential", c.seedCredentialRequest(flow))
		}
	}

	e.POST("/identification-result", c.identificationResult)
}

func (c *Controller) pushedAuthorizationRequest(flow *authorization.Flow) echo.HandlerFunc {
	return func(e echo.Context) error {
		req, err := c.formRequest(e)
		if err != nil {
			return c.writeError(e, err)
		}

		resp, err := flow.ProcessPushedAuthRequest(e.Request().Context(), req)
		if err != nil {
			return c.writeError(e, err)
		}

		return c.writeResponse(e, resp)
	}
}

func (c *Controller) authorizationRequest(flow *authorization.Flow) echo.HandlerFunc {
	return func(e echo.Context) error {
		req := c.queryRequest(e)

		resp, err := flow.ProcessAuthRequest(e.Request().Context(), req)
		if err != nil {
			return c.writeError(e, err)
		}

		return c.writeResponse(e, resp)
	}
}

func (c *Controller) finishAuthorizationRequest(flow *authorization.Flow) echo.HandlerFunc {
	return func(e echo.Context) error {
		req := c.queryRequest(e)

		resp, err := flow.ProcessFinishAuthRequest(e.Request().Context(), req)
		if err != nil {
			return c.writeError(e, err)
		}

		return c.writeResponse(e, resp)
	}
}

func (c *Controller) tokenRequest(flow *authorization.Flow) echo.HandlerFunc {
	return func(e echo.Context) error {
		req, err := c.formRequest(e)
		if err != nil {
			return c.writeError(e, err)
		}

		resp, err := flow.ProcessTokenRequest(e.Request().Context(), req)
		if err != nil {
			return c.writeError(e, err)
		}

		return c.writeResponse(e, resp)
	}
}

func (c *Controller) credentialRequest(flow *authorization.Flow) echo.HandlerFunc {
	return func(e echo.Context) error {
		req := c.baseRequest(e)

		credential, err := parseCredentialRequest(e)
		if err != nil {
			return c.writeError(e, err)
		}

		req.Credential = credential

		resp, err := flow.ProcessCredentialRequest(e.Request().Context(), req)
		if err != nil {
			return c.writeError(e, err)
		}

		return c.writeResponse(e, resp)
	}
}

func (c *Controller) seedCredentialRequest(flow *authorization.Flow) echo.HandlerFunc {
	return func(e echo.Context) error {
		req := c.baseRequest(e)

		seedCredential, err := parseSeedCredentialRequest(e)
		if err != nil {
			return c.writeError(e, err)
		}

		req.SeedCredential = seedCredential

		resp, err := flow.ProcessSeedCredentialRequest(e.Request().Context(), req)
		if err != nil {
			return c.writeError(e, err)
		}

		return c.writeResponse(e, resp)
	}
}

func (c *Controller) sessionRequest(flow *authorization.Flow) echo.HandlerFunc {
	return func(e echo.Context) error {
		resp, err := flow.ProcessSessionRequest(e.Request().Context())
		if err != nil {
			return c.writeError(e, err)
		}

		return c.writeResponse(e, resp)
	}
}

// identificationResultRequest is the callback body the identification
// provider posts after the eID interaction finished.
type identificationResultRequest struct {
	IssuerState string          `json:"issuer_state"`
	Data        json.RawMessage `json:"data,omitempty"`
	Error       string          `json:"error,omitempty"`
}

func (c *Controller) identificationResult(e echo.Context) error {
	ctx := e.Request().Context()

	var result identificationResultRequest

	if err := e.Bind(&result); err != nil {
		return c.writeError(e, oidcerr.NewInvalidRequest("malformed identification result"))
	}

	if result.IssuerState == "" {
		return c.writeError(e, oidcerr.NewInvalidRequest("issuer_state missing"))
	}

	if result.Error != "" || len(result.Data) == 0 {
		if err := c.results.IdentificationFailed(ctx, result.IssuerState, result.Error); err != nil {
			return c.writeError(e, err)
		}

		return e.NoContent(http.StatusNoContent)
	}

	data, err := identification.ParseData(string(result.Data))
	if err != nil {
		return c.writeError(e, oidcerr.NewInvalidRequest("malformed identification data"))
	}

	if err = c.results.IdentificationSucceeded(ctx, result.IssuerState, data); err != nil {
		return c.writeError(e, err)
	}

	return e.NoContent(http.StatusNoContent)
}

// baseRequest captures method, absolute URI and headers. The URI is rebuilt
// on the configured external URL so DPoP htu checks hold behind proxies.
func (c *Controller) baseRequest(e echo.Context) *authorization.Request {
	httpReq := e.Request()

	uri := *c.externalURL
	uri.Path = httpReq.URL.Path
	uri.RawQuery = httpReq.URL.RawQuery

	return &authorization.Request{
		Method: httpReq.Method,
		URI:    &uri,
		Params: url.Values{},
		Header: httpReq.Header,
	}
}

func (c *Controller) queryRequest(e echo.Context) *authorization.Request {
	req := c.baseRequest(e)
	req.Params = e.Request().URL.Query()

	return req
}

func (c *Controller) formRequest(e echo.Context) (*authorization.Request, error) {
	req := c.baseRequest(e)

	httpReq := e.Request()

	if err := httpReq.ParseForm(); err != nil {
		return nil, oidcerr.NewInvalidRequest("malformed request body")
	}

	req.Params = httpReq.PostForm

	return req, nil
}

func parseCredentialRequest(e echo.Context) (*authorization.CredentialRequest, error) {
	body, err := readBody(e)
	if err != nil {
		return nil, err
	}

	var credential authorization.CredentialRequest

	if err = json.Unmarshal(body, &credential); err != nil {
		return nil, oidcerr.NewInvalidCredentialRequest("malformed credential request")
	}

	// The batch member is {"proofs": {"jwt": [...]}}. Anything else under
	// proofs is not a known proof type.
	if proofs := gjson.GetBytes(body, "proofs"); proofs.Exists() {
		jwts := proofs.Get("jwt")
		if !jwts.IsArray() {
			return nil, oidcerr.NewInvalidProof("unsupported proof type")
		}

		for _, entry := range jwts.Array() {
			if entry.Type != gjson.String {
				return nil, oidcerr.NewInvalidProof("malformed proofs")
			}

			credential.Proofs = append(credential.Proofs, entry.String())
		}
	}

	return &credential, nil
}

func parseSeedCredentialRequest(e echo.Context) (*authorization.SeedCredentialRequest, error) {
	body, err := readBody(e)
	if err != nil {
		return nil, err
	}

	var seedCredential authorization.SeedCredentialRequest

	if err = json.Unmarshal(body, &seedCredential); err != nil {
		return nil, oidcerr.NewInvalidRequest("malformed seed credential request")
	}

	return &seedCredential, nil
}

func readBody(e echo.Context) ([]byte, error) {
	body, err := io.ReadAll(io.LimitReader(e.Request().Body, maxBodySize))
	if err != nil {
		return nil, oidcerr.NewInvalidRequest("unreadable request body")
	}

	return body, nil
}

func (c *Controller) writeResponse(e echo.Context, resp *authorization.Response) error {
	header := e.Response().Header()

	for name, values := range resp.Header {
		for _, value := range values {
			header.Add(name, value)
		}
	}

	if resp.Redirect != "" {
		return e.Redirect(resp.Status, resp.Redirect)
	}

	if len(resp.Body) == 0 {
		return e.NoContent(resp.Status)
	}

	return e.JSON(resp.Status, resp.Body)
}

func (c *Controller) writeError(e echo.Context, err error) error {
	ctx := e.Request().Context()

	var redirect *authorization.RedirectError

	if errors.As(err, &redirect) {
		logger.Infoc(ctx, "request failed, redirecting error", log.WithError(redirect.Err))

		return e.Redirect(http.StatusFound, redirect.Location())
	}

	oidcErr, ok := oidcerr.As(err)
	if !ok {
		oidcErr = oidcerr.NewServerError(err)
	}

	if oidcErr.Status >= http.StatusInternalServerError {
		logger.Errorc(ctx, "request failed", log.WithError(err))
	} else {
		logger.Infoc(ctx, "request rejected",
			logfields.WithErrorCode(string(oidcErr.Code)), log.WithError(err))
	}

	header := e.Response().Header()
	for name, value := range oidcErr.Headers {
		header.Set(name, value)
	}

	return e.JSON(oidcErr.Status, oidcErr.Body())
}
