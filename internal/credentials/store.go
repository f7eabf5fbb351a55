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

// Package credentials stores OAuth2 credential sets and describes the
// OAuth2 apps they belong to.
package credentials

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/oauth2"
)

var (
	// ErrCredentialNotFound is returned when no credential exists under a name.
	ErrCredentialNotFound = errors.New("credential not found")

	// ErrBackendUnavailable is returned when a store cannot be used in the current environment.
	ErrBackendUnavailable = errors.New("backend unavailable")

	// ErrReadOnlyBackend is returned when attempting to modify a read-only store.
	ErrReadOnlyBackend = errors.New("backend is read-only")
)

// Credential is one stored OAuth2 credential set.
type Credential struct {
	ClientID     string `json:"client_id"`
	ClientSecret string `json:"client_secret"`
	RedirectURL  string `json:"redirect_url,omitempty"`

	// Token is the last issued token. Nil until the authorization code
	// has been exchanged.
	Token *oauth2.Token `json:"token,omitempty"`
}

// Validate checks the credential carries client identification.
func (c *Credential) Validate() error {
	if c.ClientID == "" {
		return fmt.Errorf("client_id is required")
	}
	if c.ClientSecret == "" {
		return fmt.Errorf("client_secret is required")
	}
	return nil
}

// Store persists credential sets by name.
type Store interface {
	// Name returns the backend identifier (e.g., "keychain", "env").
	Name() string

	// Get retrieves a credential. Returns ErrCredentialNotFound if absent.
	Get(ctx context.Context, name string) (*Credential, error)

	// Save stores a credential, replacing any previous value.
	// Returns ErrReadOnlyBackend if not supported.
	Save(ctx context.Context, name string, cred *Credential) error
}

// Backend names accepted by NewStore.
const (
	BackendKeychain = "keychain"
	BackendEnv      = "env"
)

// NewStore creates the store for the named backend.
func NewStore(backend string) (Store, error) {
	switch backend {
	case BackendKeychain, "":
		return NewKeychainStore(), nil
	case BackendEnv:
		return NewEnvStore(), nil
	default:
		return nil, fmt.Errorf("unknown credential backend %q", backend)
	}
}
