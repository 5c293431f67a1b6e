/*
Copyright Bundesdruckerei GmbH. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package identification_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Bundesdruckerei-GmbH/pid-issuer-sub002/pkg/service/identification"
)

func TestPersonalDataRoundTrip(t *testing.T) {
	data := &identification.PersonalData{
		FamilyName:   "Mustermann",
		GivenName:    "Erika",
		BirthDate:    "1964-08-12",
		BirthName:    "Gabler",
		PlaceOfBirth: "Berlin",
		Address: &identification.Address{
			StreetAddress: "Heidestrasse 17",
			Locality:      "Koeln",
			PostalCode:    "51147",
			Country:       "D",
		},
		Nationality: "D",
	}

	raw, err := data.Marshal()
	require.NoError(t, err)

	parsed, err := identification.ParseData(raw)
	require.NoError(t, err)
	require.Equal(t, data, parsed)
}

func TestParseData(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		err  string
	}{
		{
			name: "malformed json",
			raw:  "{",
			err:  "parse personal data",
		},
		{
			name: "family name missing",
			raw:  `{"given_name":"Erika","birthdate":"1964-08-12"}`,
			err:  "personal data incomplete",
		},
		{
			name: "given name missing",
			raw:  `{"family_name":"Mustermann","birthdate":"1964-08-12"}`,
			err:  "personal data incomplete",
		},
		{
			name: "birthdate missing",
			raw:  `{"family_name":"Mustermann","given_name":"Erika"}`,
			err:  "personal data incomplete",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := identification.ParseData(tt.raw)
			require.ErrorContains(t, err, tt.err)
		})
	}

	t.Run("optional members may be absent", func(t *testing.T) {
		parsed, err := identification.ParseData(`{"family_name":"Mustermann","given_name":"Erika","birthdate":"1964-08-12"}`)
		require.NoError(t, err)
		require.Nil(t, parsed.Address)
		require.Empty(t, parsed.Nationality)
	})
}

func TestMarshalOmitsEmptyMembers(t *testing.T) {
	data := &identification.PersonalData{
		FamilyName: "Mustermann",
		GivenName:  "Erika",
		BirthDate:  "1964-08-12",
	}

	raw, err := data.Marshal()
	require.NoError(t, err)
	require.JSONEq(t, `{"family_name":"Mustermann","given_name":"Erika","birthdate":"1964-08-12"}`, raw)
}
