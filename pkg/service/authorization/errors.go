/*
Copyright Bundesdruckerei GmbH. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package authorization

import (
	"github.com/Bundesdruckerei-GmbH/pid-issuer-sub002/pkg/restapi/oidcerr"
)

func oidcerrServer(err error) *oidcerr.Error {
	return oidcerr.NewServerError(err)
}

func invalidParam(description string) *oidcerr.Error {
	return oidcerr.NewInvalidRequest(description)
}

func invalidRequestURI() *oidcerr.Error {
	return oidcerr.NewInvalidRequest("request_uri invalid")
}

func invalidGrant(description string) *oidcerr.Error {
	return oidcerr.NewInvalidGrant(description)
}

func unauthorized(scheme, description string) *oidcerr.Error {
	return oidcerr.NewUnauthorized(scheme, description)
}
