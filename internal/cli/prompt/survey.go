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
	"context"
	"fmt"
	"os"

	"github.com/AlecAivazis/survey/v2"
)

// SurveyPrompter implements Prompter using the survey library.
type SurveyPrompter struct {
	interactive bool
	opts        []survey.AskOpt
}

// NewSurveyPrompter creates a new survey-based prompter on the process stdio.
func NewSurveyPrompter(interactive bool) *SurveyPrompter {
	return &SurveyPrompter{
		interactive: interactive,
	}
}

// NewTerminalPrompter reads answers from in and writes prompts to out, so
// prompts never land on stdout. A nil in yields a non-interactive prompter.
func NewTerminalPrompter(in, out *os.File) *SurveyPrompter {
	if in == nil {
		return NewSurveyPrompter(false)
	}
	if out == nil {
		out = os.Stderr
	}
	return &SurveyPrompter{
		interactive: true,
		opts:        []survey.AskOpt{survey.WithStdio(in, out, out)},
	}
}

// PromptString collects a string input using survey.Input.
func (sp *SurveyPrompter) PromptString(ctx context.Context, name, desc string, def string) (string, error) {
	if !sp.interactive {
		return "", fmt.Errorf("cannot prompt for %s in non-interactive mode", name)
	}

	var result string
	prompt := &survey.Input{
		Message: fmt.Sprintf("%s: %s", name, desc),
		Default: def,
	}

	opts := append([]survey.AskOpt{survey.WithValidator(tokenValidator)}, sp.opts...)
	err := survey.AskOne(prompt, &result, opts...)
	return result, err
}

// PromptSecret collects a required value using survey.Password.
func (sp *SurveyPrompter) PromptSecret(ctx context.Context, name, desc string) (string, error) {
	if !sp.interactive {
		return "", fmt.Errorf("cannot prompt for %s in non-interactive mode", name)
	}

	var result string
	prompt := &survey.Password{
		Message: fmt.Sprintf("%s: %s", name, desc),
	}

	opts := append([]survey.AskOpt{survey.WithValidator(survey.Required), survey.WithValidator(tokenValidator)}, sp.opts...)
	err := survey.AskOne(prompt, &result, opts...)
	return result, err
}

// IsInteractive returns whether the prompter can display interactive prompts.
func (sp *SurveyPrompter) IsInteractive() bool {
	return sp.interactive
}

func tokenValidator(ans interface{}) error {
	if str, ok := ans.(string); ok {
		return ValidateToken(str)
	}
	return nil
}
