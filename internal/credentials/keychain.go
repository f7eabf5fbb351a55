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
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/zalando/go-keyring"
)

// keychainService is the service name used for keychain entries.
const keychainService = "rdstation-connector"

// KeychainStore keeps credentials in the system keychain as JSON.
// Supported platforms:
//   - macOS: Keychain Access
//   - Linux: Secret Service API (GNOME Keyring, KWallet)
//   - Windows: Credential Manager
type KeychainStore struct {
	service string
}

// NewKeychainStore creates a keychain-backed store.
func NewKeychainStore() *KeychainStore {
	return &KeychainStore{service: keychainService}
}

// Name returns the backend identifier.
func (k *KeychainStore) Name() string {
	return BackendKeychain
}

// Get retrieves and decodes a credential from the keychain.
func (k *KeychainStore) Get(ctx context.Context, name string) (*Credential, error) {
	raw, err := keyring.Get(k.service, name)
	if err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrCredentialNotFound, name)
		}
		if isKeychainUnavailableError(err) {
			return nil, fmt.Errorf("%w: %s", ErrBackendUnavailable, err.Error())
		}
		return nil, fmt.Errorf("keychain error: %w", err)
	}

	var cred Credential
	if err := json.Unmarshal([]byte(raw), &cred); err != nil {
		return nil, fmt.Errorf("decode credential %q: %w", name, err)
	}
	return &cred, nil
}

// Save encodes and stores a credential in the keychain.
func (k *KeychainStore) Save(ctx context.Context, name string, cred *Credential) error {
	data, err := json.Marshal(cred)
	if err != nil {
		return fmt.Errorf("encode credential %q: %w", name, err)
	}

	if err := keyring.Set(k.service, name, string(data)); err != nil {
		if isKeychainUnavailableError(err) {
			return fmt.Errorf("%w: %s", ErrBackendUnavailable, err.Error())
		}
		return fmt.Errorf("keychain error: %w", err)
	}
	return nil
}

// Delete removes a credential from the keychain.
func (k *KeychainStore) Delete(ctx context.Context, name string) error {
	if err := keyring.Delete(k.service, name); err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return fmt.Errorf("%w: %s", ErrCredentialNotFound, name)
		}
		return fmt.Errorf("keychain error: %w", err)
	}
	return nil
}

// isKeychainUnavailableError checks if an error indicates the keychain is locked or inaccessible.
func isKeychainUnavailableError(err error) bool {
	if err == nil {
		return false
	}

	errStr := strings.ToLower(err.Error())
	for _, indicator := range []string{
		"locked",
		"cannot access",
		"permission denied",
		"failed to unlock",
		"user interaction required",
		"secret service",
		"dbus",
		"user canceled",
	} {
		if strings.Contains(errStr, indicator) {
			return true
		}
	}
	return false
}
