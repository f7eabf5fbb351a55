// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package credentials

import (
	"fmt"
	"net/url"
	"strings"

	"golang.org/x/oauth2"
)

// GrantType is the OAuth2 grant a credential type uses.
type GrantType string

const (
	// GrantAuthorizationCode is the three-legged authorization code grant.
	GrantAuthorizationCode GrantType = "authorizationCode"

	// GrantClientCredentials is the two-legged client credentials grant.
	GrantClientCredentials GrantType = "clientCredentials"
)

// Authentication selects where client credentials go on token requests.
type Authentication string

const (
	// AuthenticationBody sends client_id and client_secret as form fields.
	AuthenticationBody Authentication = "body"

	// AuthenticationHeader sends them as an HTTP Basic Authorization header.
	AuthenticationHeader Authentication = "header"
)

// Descriptor is the static OAuth2 declaration of a credential type.
type Descriptor struct {
	// Name identifies the credential type and is the default credential name.
	Name string

	// DisplayName is shown to users.
	DisplayName string

	// DocumentationURL points at the provider's API docs.
	DocumentationURL string

	GrantType      GrantType
	AuthURL        string
	AccessTokenURL string

	// Scope is a space separated scope list. Empty requests no scopes.
	Scope string

	// AuthQueryParameters are extra parameters appended to the authorize
	// URL, in query string form ("a=1&b=2").
	AuthQueryParameters string

	Authentication Authentication
}

// RDStationOAuth2 describes the RD Station Marketing OAuth2 app.
var RDStationOAuth2 = Descriptor{
	Name:                "rdStationOAuth2Api",
	DisplayName:         "RD Station OAuth2 API",
	DocumentationURL:    "https://developers.rdstation.com/reference/introducao-rdsm",
	GrantType:           GrantAuthorizationCode,
	AuthURL:             "https://api.rd.services/auth/dialog",
	AccessTokenURL:      "https://api.rd.services/auth/token",
	Scope:               "",
	AuthQueryParameters: "",
	Authentication:      AuthenticationBody,
}

// Validate checks the descriptor is usable.
func (d Descriptor) Validate() error {
	if d.Name == "" {
		return fmt.Errorf("credential type name is required")
	}
	if d.GrantType != GrantAuthorizationCode && d.GrantType != GrantClientCredentials {
		return fmt.Errorf("unsupported grant type %q", d.GrantType)
	}
	if d.GrantType == GrantAuthorizationCode && d.AuthURL == "" {
		return fmt.Errorf("authorization URL is required for %s", d.GrantType)
	}
	if d.AccessTokenURL == "" {
		return fmt.Errorf("access token URL is required")
	}
	if d.Authentication != AuthenticationBody && d.Authentication != AuthenticationHeader {
		return fmt.Errorf("authentication must be body or header, got %q", d.Authentication)
	}
	if _, err := url.ParseQuery(d.AuthQueryParameters); err != nil {
		return fmt.Errorf("invalid auth query parameters: %w", err)
	}
	return nil
}

// Scopes returns the scope list, or nil when no scope is declared.
func (d Descriptor) Scopes() []string {
	return strings.Fields(d.Scope)
}

// OAuth2Config builds the golang.org/x/oauth2 configuration for cred.
func (d Descriptor) OAuth2Config(cred *Credential) *oauth2.Config {
	style := oauth2.AuthStyleInHeader
	if d.Authentication == AuthenticationBody {
		style = oauth2.AuthStyleInParams
	}

	return &oauth2.Config{
		ClientID:     cred.ClientID,
		ClientSecret: cred.ClientSecret,
		RedirectURL:  cred.RedirectURL,
		Scopes:       d.Scopes(),
		Endpoint: oauth2.Endpoint{
			AuthURL:   d.AuthURL,
			TokenURL:  d.AccessTokenURL,
			AuthStyle: style,
		},
	}
}

// authURLOptions converts AuthQueryParameters into oauth2 options.
func (d Descriptor) authURLOptions() []oauth2.AuthCodeOption {
	values, err := url.ParseQuery(d.AuthQueryParameters)
	if err != nil {
		return nil
	}
	var opts []oauth2.AuthCodeOption
	for key, vals := range values {
		for _, v := range vals {
			opts = append(opts, oauth2.SetAuthURLParam(key, v))
		}
	}
	return opts
}
