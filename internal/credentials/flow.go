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
	"context"
	"fmt"
	"net/http"

	"golang.org/x/oauth2"
)

// AuthCodeURL returns the URL the user visits to authorize the app.
func (d Descriptor) AuthCodeURL(cred *Credential, state string) (string, error) {
	if d.GrantType != GrantAuthorizationCode {
		return "", fmt.Errorf("credential type %s does not use the authorization code grant", d.Name)
	}
	if err := cred.Validate(); err != nil {
		return "", err
	}
	return d.OAuth2Config(cred).AuthCodeURL(state, d.authURLOptions()...), nil
}

// Exchange trades an authorization code for a token and stores the updated
// credential under name. client may be nil to use http.DefaultClient.
func (d Descriptor) Exchange(ctx context.Context, store Store, name string, cred *Credential, code string, client *http.Client) (*oauth2.Token, error) {
	if code == "" {
		return nil, fmt.Errorf("authorization code is required")
	}
	if err := cred.Validate(); err != nil {
		return nil, err
	}

	if client != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, client)
	}

	token, err := d.OAuth2Config(cred).Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("exchange authorization code: %w", err)
	}

	updated := *cred
	updated.Token = token
	if err := store.Save(ctx, name, &updated); err != nil {
		return token, fmt.Errorf("save credential %q: %w", name, err)
	}
	return token, nil
}
