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

package shared

import (
	"io"
	"os"

	"golang.org/x/term"
)

// isTerminal is replaced in tests.
var isTerminal = func(f *os.File) bool {
	return term.IsTerminal(int(f.Fd()))
}

// PromptInput returns in as a terminal that prompts can read from. ok is
// false when RDSTATION_NON_INTERACTIVE=true, when CI=true or
// GITHUB_ACTIONS=true is set, or when in is not a terminal, such as an
// authorization code piped into "auth exchange".
func PromptInput(in io.Reader) (*os.File, bool) {
	if os.Getenv("RDSTATION_NON_INTERACTIVE") == "true" {
		return nil, false
	}
	if isCIEnvironment() {
		return nil, false
	}
	f, ok := in.(*os.File)
	if !ok || !isTerminal(f) {
		return nil, false
	}
	return f, true
}

// isCIEnvironment checks the CI variables set by hosted runners.
func isCIEnvironment() bool {
	for _, envVar := range []string{"CI", "GITHUB_ACTIONS"} {
		if value := os.Getenv(envVar); value == "true" || value == "1" {
			return true
		}
	}
	return false
}
