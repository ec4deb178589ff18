/* Copyright 2025 Dnote Authors
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

// Package ui provides the interactive parts of the command line interface
package ui

import (
	"io"
	"os"

	"github.com/dnote/papercli/pkg/cli/log"
	"github.com/dnote/papercli/pkg/prompt"
	"github.com/pkg/errors"
	"golang.org/x/crypto/ssh/terminal"
)

// IsInteractive reports whether stdin is a terminal a user can answer
// prompts on
func IsInteractive() bool {
	return terminal.IsTerminal(int(os.Stdin.Fd()))
}

// Confirm prompts for user input to confirm a choice
func Confirm(r io.Reader, question string, optimistic bool) (bool, error) {
	log.Askf("%s", prompt.FormatQuestion(question, optimistic))

	confirmed, err := prompt.ReadYesNo(r, optimistic)
	if err != nil {
		return false, errors.Wrap(err, "getting user input")
	}

	return confirmed, nil
}
