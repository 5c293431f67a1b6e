/*
Copyright Bundesdruckerei GmbH. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package identification models the result of the external eID identification
// and the client that hands the user agent over to the identity provider.
package identification

import (
	"encoding/json"
	"fmt"
)

// Address is the registered address of the identified person.
type Address struct {
	StreetAddress string `json:"street_address,omitempty"`
	Locality      string `json:"locality,omitempty"`
	PostalCode    string `json:"postal_code,omitempty"`
	Country       string `json:"country,omitempty"`
}

// PersonalData is the validated identity data the identification provider
// returns and the credential is built from.
type PersonalData struct {
	FamilyName   string   `json:"family_name"`
	GivenName    string   `json:"given_name"`
	BirthDate    string   `json:"birthdate"`
	BirthName    string   `json:"birth_family_name,omitempty"`
	PlaceOfBirth string   `json:"place_of_birth,omitempty"`
	Address      *Address `json:"address,omitempty"`
	Nationality  string   `json:"nationality,omitempty"`
}

// Marshal serializes the data for the session parameter bag and the seed
// credential payload.
func (d *PersonalData) Marshal() (string, error) {
	raw, err := json.Marshal(d)
	if err != nil {
		return "", fmt.Errorf("marshal personal data: %w", err)
	}

	return string(raw), nil
}

// ParseData is the inverse of Marshal.
func ParseData(raw string) (*PersonalData, error) {
	data := &PersonalData{}

	if err := json.Unmarshal([]byte(raw), data); err != nil {
		return nil, fmt.Errorf("parse personal data: %w", err)
	}

	if data.FamilyName == "" || data.GivenName == "" || data.BirthDate == "" {
		return nil, fmt.Errorf("personal data incomplete")
	}

	return data, nil
}
