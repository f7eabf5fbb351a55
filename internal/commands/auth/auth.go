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

// Package auth implements the OAuth2 authorization commands for the
// RD Station credential.
package auth

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/tombee/rdstation-connector/internal/cli/prompt"
	"github.com/tombee/rdstation-connector/internal/commands/shared"
	"github.com/tombee/rdstation-connector/internal/config"
	"github.com/tombee/rdstation-connector/internal/credentials"
)

// newPrompter is replaced in tests. Prompts read the command's input and
// write to its error stream so --json output on stdout stays parseable.
var newPrompter = func(cmd *cobra.Command) prompt.Prompter {
	in, ok := shared.PromptInput(cmd.InOrStdin())
	if !ok {
		return prompt.NewTerminalPrompter(nil, nil)
	}
	out, _ := cmd.ErrOrStderr().(*os.File)
	return prompt.NewTerminalPrompter(in, out)
}

type credentialFlags struct {
	clientID     string
	clientSecret string
	redirectURI  string
}

func (f *credentialFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.clientID, "client-id", "", "OAuth2 client ID (default: stored credential or prompt)")
	cmd.Flags().StringVar(&f.clientSecret, "client-secret", "", "OAuth2 client secret (default: stored credential or prompt)")
	cmd.Flags().StringVar(&f.redirectURI, "redirect-uri", "", "Redirect URI registered for the app")
}

// NewCommand creates the auth command.
func NewCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "auth",
		Short: "Authorize the RD Station OAuth2 credential",
		Long: `Authorize the connector against RD Station using the OAuth2
authorization code grant.

  1. rdstation auth url        prints the URL to open in a browser
  2. rdstation auth exchange   trades the returned code for tokens and stores them

Tokens are refreshed automatically on use and written back to the store.`,
	}

	cmd.AddCommand(newURLCommand())
	cmd.AddCommand(newExchangeCommand())
	cmd.AddCommand(newStatusCommand())
	cmd.AddCommand(newLogoutCommand())
	return cmd
}

func newURLCommand() *cobra.Command {
	var flags credentialFlags
	var state string

	cmd := &cobra.Command{
		Use:   "url",
		Short: "Print the authorization URL",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, store, err := open()
			if err != nil {
				return err
			}

			cred, err := resolveCredential(cmd.Context(), store, cfg.Credential, flags, newPrompter(cmd))
			if err != nil {
				return err
			}
			if state == "" {
				state = uuid.NewString()
			}

			authURL, err := credentials.RDStationOAuth2.AuthCodeURL(cred, state)
			if err != nil {
				return shared.NewInvalidInputError("failed to build authorization URL", err)
			}

			if shared.GetJSON() {
				return shared.EmitJSON(cmd.OutOrStdout(), struct {
					shared.JSONResponse
					URL   string `json:"url"`
					State string `json:"state"`
				}{shared.NewResponse("auth url"), authURL, state})
			}
			fmt.Fprintln(cmd.OutOrStdout(), authURL)
			return nil
		},
	}

	flags.register(cmd)
	cmd.Flags().StringVar(&state, "state", "", "Opaque state echoed back on redirect (default: random UUID)")
	return cmd
}

func newExchangeCommand() *cobra.Command {
	var flags credentialFlags
	var code string

	cmd := &cobra.Command{
		Use:   "exchange",
		Short: "Exchange an authorization code for tokens",
		Long: `Exchange the code RD Station appended to the redirect URI for an
access and refresh token, then store them under the configured credential
name. Without --code the code is prompted for.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, store, err := open()
			if err != nil {
				return err
			}

			p := newPrompter(cmd)
			cred, err := resolveCredential(cmd.Context(), store, cfg.Credential, flags, p)
			if err != nil {
				return err
			}
			if code == "" {
				if code, err = ask(cmd.Context(), p, "code", "Authorization code or the full redirect URL", false); err != nil {
					return err
				}
			}
			code = codeFromInput(code)

			httpTransport, err := shared.NewHTTPTransport(cfg, shared.NewLogger(cfg, cmd.ErrOrStderr()))
			if err != nil {
				return err
			}

			token, err := credentials.RDStationOAuth2.Exchange(cmd.Context(), store, cfg.Credential, cred, code, httpTransport.Client())
			if errors.Is(err, credentials.ErrReadOnlyBackend) {
				writeEnvExports(cmd.OutOrStdout(), token.AccessToken, token.RefreshToken)
				return nil
			}
			if err != nil {
				return shared.NewAuthError("authorization failed", err)
			}

			expiry := "never"
			if !token.Expiry.IsZero() {
				expiry = token.Expiry.Format(time.RFC3339)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Stored token for credential %q in %s (expires %s)\n", cfg.Credential, store.Name(), expiry)
			return nil
		},
	}

	flags.register(cmd)
	cmd.Flags().StringVar(&code, "code", "", "Authorization code (default: prompt)")
	return cmd
}

func newStatusCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the stored credential state",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, store, err := open()
			if err != nil {
				return err
			}

			status := Status{
				JSONResponse: shared.NewResponse("auth status"),
				Credential:   cfg.Credential,
				Backend:      store.Name(),
			}
			cred, err := store.Get(cmd.Context(), cfg.Credential)
			switch {
			case errors.Is(err, credentials.ErrCredentialNotFound):
			case err != nil:
				return shared.NewAuthError("failed to read credential", err)
			default:
				status.Configured = true
				status.ClientID = cred.ClientID
				if cred.Token != nil {
					status.Authorized = true
					status.HasRefreshToken = cred.Token.RefreshToken != ""
					if !cred.Token.Expiry.IsZero() {
						expiry := cred.Token.Expiry
						status.Expiry = &expiry
					}
				}
			}

			if shared.GetJSON() {
				return shared.EmitJSON(cmd.OutOrStdout(), status)
			}
			status.write(cmd.OutOrStdout())
			return nil
		},
	}
}

// deleter is implemented by stores that can remove credentials.
type deleter interface {
	Delete(ctx context.Context, name string) error
}

func newLogoutCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Remove the stored credential",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, store, err := open()
			if err != nil {
				return err
			}

			d, ok := store.(deleter)
			if !ok {
				return shared.NewInvalidInputError(
					fmt.Sprintf("the %s credential backend is read-only", store.Name()),
					fmt.Errorf("unset %s and %s instead", credentials.EnvAccessToken, credentials.EnvRefreshToken),
				)
			}

			err = d.Delete(cmd.Context(), cfg.Credential)
			switch {
			case errors.Is(err, credentials.ErrCredentialNotFound):
				fmt.Fprintf(cmd.OutOrStdout(), "No credential %q in %s\n", cfg.Credential, store.Name())
				return nil
			case err != nil:
				return shared.NewAuthError("failed to remove credential", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Removed credential %q from %s\n", cfg.Credential, store.Name())
			return nil
		},
	}
}

// Status describes a stored credential without exposing secrets.
type Status struct {
	shared.JSONResponse
	Credential      string     `json:"credential"`
	Backend         string     `json:"backend"`
	Configured      bool       `json:"configured"`
	ClientID        string     `json:"client_id,omitempty"`
	Authorized      bool       `json:"authorized"`
	HasRefreshToken bool       `json:"has_refresh_token"`
	Expiry          *time.Time `json:"expiry,omitempty"`
}

func (s Status) write(w io.Writer) {
	fmt.Fprintf(w, "credential:    %s (%s)\n", s.Credential, s.Backend)
	if !s.Configured {
		fmt.Fprintln(w, "status:        not configured")
		return
	}
	fmt.Fprintf(w, "client id:     %s\n", s.ClientID)
	if !s.Authorized {
		fmt.Fprintln(w, "status:        not authorized (run 'rdstation auth exchange')")
		return
	}
	fmt.Fprintln(w, "status:        authorized")
	fmt.Fprintf(w, "refresh token: %v\n", s.HasRefreshToken)
	if s.Expiry != nil {
		fmt.Fprintf(w, "expires:       %s\n", s.Expiry.Format(time.RFC3339))
	}
}

func open() (*config.Config, credentials.Store, error) {
	cfg, err := shared.LoadConfig()
	if err != nil {
		return nil, nil, err
	}
	store, err := shared.NewStore(cfg)
	if err != nil {
		return nil, nil, err
	}
	return cfg, store, nil
}

// resolveCredential starts from the stored credential, applies flags, and
// prompts for a missing client ID or secret.
func resolveCredential(ctx context.Context, store credentials.Store, name string, flags credentialFlags, p prompt.Prompter) (*credentials.Credential, error) {
	cred, err := store.Get(ctx, name)
	if errors.Is(err, credentials.ErrCredentialNotFound) {
		cred, err = &credentials.Credential{}, nil
	}
	if err != nil {
		return nil, shared.NewAuthError("failed to read credential", err)
	}

	if flags.clientID != "" {
		cred.ClientID = flags.clientID
	}
	if flags.clientSecret != "" {
		cred.ClientSecret = flags.clientSecret
	}
	if flags.redirectURI != "" {
		cred.RedirectURL = flags.redirectURI
	}

	if cred.ClientID == "" {
		if cred.ClientID, err = ask(ctx, p, "client_id", "OAuth2 client ID of the RD Station app", false); err != nil {
			return nil, err
		}
	}
	if cred.ClientSecret == "" {
		if cred.ClientSecret, err = ask(ctx, p, "client_secret", "OAuth2 client secret of the RD Station app", true); err != nil {
			return nil, err
		}
	}
	return cred, nil
}

func ask(ctx context.Context, p prompt.Prompter, name, desc string, secret bool) (string, error) {
	if !p.IsInteractive() {
		return "", shared.NewNonInteractiveError(fmt.Sprintf("%s is required", name), fmt.Errorf("pass --%s", flagName(name)))
	}

	var value string
	var err error
	if secret {
		value, err = p.PromptSecret(ctx, name, desc)
	} else {
		value, err = p.PromptString(ctx, name, desc, "")
	}
	if err != nil {
		return "", shared.NewInvalidInputError(fmt.Sprintf("failed to read %s", name), err)
	}
	value = strings.TrimSpace(value)
	if value == "" {
		return "", shared.NewInvalidInputError(fmt.Sprintf("%s is required", name), nil)
	}
	return value, nil
}

// codeFromInput accepts either a bare authorization code or the redirect URL
// RD Station sent the browser to, and returns the code.
func codeFromInput(input string) string {
	input = strings.TrimSpace(input)
	u, err := url.Parse(input)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return input
	}
	if code := u.Query().Get("code"); code != "" {
		return code
	}
	return input
}

func flagName(name string) string {
	switch name {
	case "client_id":
		return "client-id"
	case "client_secret":
		return "client-secret"
	default:
		return name
	}
}

// writeEnvExports prints tokens for read-only backends.
func writeEnvExports(w io.Writer, access, refresh string) {
	fmt.Fprintln(w, "# credential backend is read-only; export these to use the token")
	fmt.Fprintf(w, "export %s=%s\n", credentials.EnvAccessToken, access)
	if refresh != "" {
		fmt.Fprintf(w, "export %s=%s\n", credentials.EnvRefreshToken, refresh)
	}
}
