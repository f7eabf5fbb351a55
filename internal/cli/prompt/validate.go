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

import (
	"fmt"
	"strings"
	"unicode"
)

// ValidateToken validates a prompted OAuth2 value: a client ID, client
// secret or authorization code. Surrounding whitespace is allowed and
// trimmed by callers; anything else outside printable non-space characters
// is rejected, which catches codes pasted with stray text or escape
// sequences.
func ValidateToken(input string) error {
	if len(input) > MaxInputSize {
		return fmt.Errorf("input exceeds maximum size of %d bytes", MaxInputSize)
	}

	for i, r := range strings.TrimSpace(input) {
		switch {
		case r == 0:
			return fmt.Errorf("input contains null byte at position %d", i)
		case unicode.IsControl(r):
			return fmt.Errorf("input contains invalid control character at position %d", i)
		case unicode.IsSpace(r):
			return fmt.Errorf("input contains whitespace at position %d", i)
		}
	}

	return nil
}
