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

package prompt

import "context"

// Prompter collects values from the user.
type Prompter interface {
	// PromptString asks for a line of text. An empty answer yields def.
	PromptString(ctx context.Context, name, desc string, def string) (string, error)

	// PromptSecret asks for a value without echoing it.
	PromptSecret(ctx context.Context, name, desc string) (string, error)

	// IsInteractive reports whether prompts can be shown.
	IsInteractive() bool
}

// MaxInputSize is the maximum allowed input size in bytes.
const MaxInputSize = 65536
