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

/*
Package cli provides the root command and shared configuration for the
rdstation CLI.

This package creates the root Cobra command and handles global concerns like
version information, persistent flags, and error handling. Individual commands
are implemented in the internal/commands subpackages.

# Command Tree

	rdstation
	├── send          Send one event per input item
	├── auth          Authorize the OAuth2 credential
	│   ├── url       Print the authorization URL
	│   ├── exchange  Exchange an authorization code for tokens
	│   ├── status    Show the stored credential state
	│   └── logout    Remove the stored credential
	├── operations    List event categories and parameters
	├── completion    Generate shell completion scripts
	├── version       Show version
	└── help          Show help

# Global Flags

	--verbose, -v   Enable debug logging
	--quiet, -q     Only log errors
	--json          Output in JSON format
	--config        Path to config file

# Exit Codes

	0   success
	1   execution failed (API or transport error)
	2   invalid input (items, parameters, or event payload)
	3   configuration error
	4   authentication error
	70  a prompt was needed in non-interactive mode
*/
package cli
