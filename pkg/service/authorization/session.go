/*
Copyright Bundesdruckerei GmbH. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package authorization

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-jose/go-jose/v3"

	"github.com/Bundesdruckerei-GmbH/pid-issuer-sub002/pkg/restapi/oidcerr"
)

// Session is the per-flow state shared by all handlers. The flow variant is
// fixed at creation; everything else lives in the parameter bag.
type Session struct {
	ID                  string
	FlowVariant         FlowVariant
	NextExpectedRequest RequestKind

	params map[SessionKey]string
}

// NewSession creates an empty session for the given variant expecting the
// given request kind next.
func NewSession(id string, variant FlowVariant, next RequestKind) *Session {
	return &Session{
		ID:                  id,
		FlowVariant:         variant,
		NextExpectedRequest: next,
		params:              map[SessionKey]string{},
	}
}

// RestoreSession rebuilds a session from its stored form. The parameter map
// is copied.
func RestoreSession(id string, variant FlowVariant, next RequestKind, params map[SessionKey]string) *Session {
	s := NewSession(id, variant, next)

	for k, v := range params {
		s.params[k] = v
	}

	return s
}

// IsNextAllowedRequest reports whether the session expects the given request
// kind next.
func (s *Session) IsNextAllowedRequest(kind RequestKind) bool {
	return s.NextExpectedRequest == kind
}

// Parameters returns a copy of the parameter bag for persistence.
func (s *Session) Parameters() map[SessionKey]string {
	out := make(map[SessionKey]string, len(s.params))

	for k, v := range s.params {
		out[k] = v
	}

	return out
}

// SetParameter stores a string value.
func (s *Session) SetParameter(key SessionKey, value string) {
	s.params[key] = value
}

// SetInstant stores a point in time in RFC 3339 form with nanoseconds.
func (s *Session) SetInstant(key SessionKey, t time.Time) {
	s.params[key] = t.UTC().Format(time.RFC3339Nano)
}

// SetKey stores a JWK in its JSON form.
func (s *Session) SetKey(key SessionKey, jwk *jose.JSONWebKey) error {
	raw, err := jwk.MarshalJSON()
	if err != nil {
		return fmt.Errorf("marshal session key %s: %w", key, err)
	}

	s.params[key] = string(raw)

	return nil
}

// SetStringList stores a list of strings as a JSON array.
func (s *Session) SetStringList(key SessionKey, values []string) {
	raw, _ := json.Marshal(values) //nolint:errchkjson

	s.params[key] = string(raw)
}

// Contains reports whether the key is present.
func (s *Session) Contains(key SessionKey) bool {
	_, ok := s.params[key]
	return ok
}

// Remove deletes the key from the bag.
func (s *Session) Remove(key SessionKey) {
	delete(s.params, key)
}

// Parameter returns the raw value, or the empty string if absent.
func (s *Session) Parameter(key SessionKey) string {
	return s.params[key]
}

// OptionalParameter returns the raw value and whether it is present.
func (s *Session) OptionalParameter(key SessionKey) (string, bool) {
	v, ok := s.params[key]
	return v, ok
}

// CheckedParameter returns the value or a server error when the key is
// absent. Absence of a key a prior handler must have written is a bug, not a
// client error.
func (s *Session) CheckedParameter(key SessionKey) (string, error) {
	v, ok := s.params[key]
	if !ok {
		return "", oidcerr.NewServerError(fmt.Errorf("session %s: parameter %s not set", s.ID, key))
	}

	return v, nil
}

// CheckedInstant returns the value parsed as an RFC 3339 instant.
func (s *Session) CheckedInstant(key SessionKey) (time.Time, error) {
	v, err := s.CheckedParameter(key)
	if err != nil {
		return time.Time{}, err
	}

	t, err := time.Parse(time.RFC3339Nano, v)
	if err != nil {
		return time.Time{}, oidcerr.NewServerError(fmt.Errorf("session %s: parameter %s is not an instant: %w", s.ID, key, err))
	}

	return t, nil
}

// OptionalInstant returns the parsed instant and whether it was present. A
// present but unparsable value yields a server error.
func (s *Session) OptionalInstant(key SessionKey) (time.Time, bool, error) {
	v, ok := s.params[key]
	if !ok {
		return time.Time{}, false, nil
	}

	t, err := time.Parse(time.RFC3339Nano, v)
	if err != nil {
		return time.Time{}, false, oidcerr.NewServerError(fmt.Errorf("session %s: parameter %s is not an instant: %w", s.ID, key, err))
	}

	return t, true, nil
}

// CheckedKey returns the value parsed as a JWK.
func (s *Session) CheckedKey(key SessionKey) (*jose.JSONWebKey, error) {
	v, err := s.CheckedParameter(key)
	if err != nil {
		return nil, err
	}

	jwk := &jose.JSONWebKey{}
	if err = jwk.UnmarshalJSON([]byte(v)); err != nil {
		return nil, oidcerr.NewServerError(fmt.Errorf("session %s: parameter %s is not a JWK: %w", s.ID, key, err))
	}

	return jwk, nil
}

// OptionalKey returns the parsed JWK and whether it was present.
func (s *Session) OptionalKey(key SessionKey) (*jose.JSONWebKey, bool, error) {
	v, ok := s.params[key]
	if !ok {
		return nil, false, nil
	}

	jwk := &jose.JSONWebKey{}
	if err := jwk.UnmarshalJSON([]byte(v)); err != nil {
		return nil, false, oidcerr.NewServerError(fmt.Errorf("session %s: parameter %s is not a JWK: %w", s.ID, key, err))
	}

	return jwk, true, nil
}

// CheckedStringList returns the value parsed as a JSON string array.
func (s *Session) CheckedStringList(key SessionKey) ([]string, error) {
	v, err := s.CheckedParameter(key)
	if err != nil {
		return nil, err
	}

	var out []string
	if err = json.Unmarshal([]byte(v), &out); err != nil {
		return nil, oidcerr.NewServerError(fmt.Errorf("session %s: parameter %s is not a string list: %w", s.ID, key, err))
	}

	return out, nil
}
