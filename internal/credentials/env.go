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
	"os"

	"golang.org/x/oauth2"
)

// Environment variables read by EnvStore.
const (
	EnvClientID     = "RDSTATION_CLIENT_ID"
	EnvClientSecret = "RDSTATION_CLIENT_SECRET"
	EnvRedirectURL  = "RDSTATION_REDIRECT_URL"
	EnvAccessToken  = "RDSTATION_ACCESS_TOKEN"
	EnvRefreshToken = "RDSTATION_REFRESH_TOKEN"
)

// EnvStore provides read-only access to a single credential set held in
// environment variables. Every credential name resolves to the same set.
type EnvStore struct {
	getenv func(string) string
}

// NewEnvStore creates a new environment variable store.
func NewEnvStore() *EnvStore {
	return &EnvStore{getenv: os.Getenv}
}

// Name returns the backend identifier.
func (e *EnvStore) Name() string {
	return BackendEnv
}

// Get builds a credential from the environment.
// A token is attached when an access or refresh token is set. With only a
// refresh token the access token is empty and the first use refreshes it.
func (e *EnvStore) Get(ctx context.Context, name string) (*Credential, error) {
	clientID := e.getenv(EnvClientID)
	if clientID == "" {
		return nil, fmt.Errorf("%w: %s not set", ErrCredentialNotFound, EnvClientID)
	}

	cred := &Credential{
		ClientID:     clientID,
		ClientSecret: e.getenv(EnvClientSecret),
		RedirectURL:  e.getenv(EnvRedirectURL),
	}

	access := e.getenv(EnvAccessToken)
	refresh := e.getenv(EnvRefreshToken)
	if access != "" || refresh != "" {
		cred.Token = &oauth2.Token{
			AccessToken:  access,
			RefreshToken: refresh,
			TokenType:    "Bearer",
		}
	}

	return cred, nil
}

// Save returns ErrReadOnlyBackend as the environment store is read-only.
func (e *EnvStore) Save(ctx context.Context, name string, cred *Credential) error {
	return ErrReadOnlyBackend
}
