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
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func fakeTerminal(t *testing.T, terminal bool) {
	t.Helper()
	orig := isTerminal
	isTerminal = func(*os.File) bool { return terminal }
	t.Cleanup(func() { isTerminal = orig })
}

func TestPromptInput(t *testing.T) {
	tests := []struct {
		name     string
		env      map[string]string
		terminal bool
		pipe     bool
		want     bool
	}{
		{name: "terminal", terminal: true, want: true},
		{name: "not a terminal", terminal: false},
		{name: "piped code", terminal: true, pipe: true},
		{name: "RDSTATION_NON_INTERACTIVE", env: map[string]string{"RDSTATION_NON_INTERACTIVE": "true"}, terminal: true},
		{name: "RDSTATION_NON_INTERACTIVE=false", env: map[string]string{"RDSTATION_NON_INTERACTIVE": "false"}, terminal: true, want: true},
		{name: "CI=true", env: map[string]string{"CI": "true"}, terminal: true},
		{name: "CI=1", env: map[string]string{"CI": "1"}, terminal: true},
		{name: "CI=false", env: map[string]string{"CI": "false"}, terminal: true, want: true},
		{name: "GITHUB_ACTIONS", env: map[string]string{"GITHUB_ACTIONS": "true"}, terminal: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for _, v := range []string{"RDSTATION_NON_INTERACTIVE", "CI", "GITHUB_ACTIONS"} {
				t.Setenv(v, "")
			}
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			fakeTerminal(t, tt.terminal)

			f, err := os.Create(filepath.Join(t.TempDir(), "stdin"))
			if err != nil {
				t.Fatal(err)
			}
			defer f.Close()

			var got bool
			if tt.pipe {
				_, got = PromptInput(strings.NewReader("code-from-pipe\n"))
			} else {
				var in *os.File
				in, got = PromptInput(f)
				if got && in != f {
					t.Error("PromptInput() should return the given file")
				}
			}
			if got != tt.want {
				t.Errorf("PromptInput() ok = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestPromptInput_RealFileIsNotTerminal(t *testing.T) {
	t.Setenv("RDSTATION_NON_INTERACTIVE", "")
	t.Setenv("CI", "")
	t.Setenv("GITHUB_ACTIONS", "")

	f, err := os.Create(filepath.Join(t.TempDir(), "stdin"))
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	if _, ok := PromptInput(f); ok {
		t.Error("a regular file must not be treated as a terminal")
	}
}
