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

// Package prompt provides utilities for interactive prompts
package prompt

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/pkg/errors"
)

// ErrInvalidChoice is returned when an answer matches none of the choices
var ErrInvalidChoice = errors.New("invalid choice")

// Choice is one answer of a multiple choice question. Key is the shortcut
// the user types, Value is what the caller receives.
type Choice struct {
	Key   string
	Label string
	Value string
}

// FormatQuestion formats a yes/no question with the appropriate choice indicator
func FormatQuestion(question string, optimistic bool) string {
	choices := "(y/N)"
	if optimistic {
		choices = "(Y/n)"
	}
	return fmt.Sprintf("%s %s", question, choices)
}

// FormatChoices formats a multiple choice question, e.g.
// "Keep which version? [l]ocal/[r]emote/[s]kip"
func FormatChoices(question string, choices []Choice) string {
	parts := make([]string, 0, len(choices))
	for _, c := range choices {
		label := c.Label
		if strings.HasPrefix(strings.ToLower(label), strings.ToLower(c.Key)) {
			label = fmt.Sprintf("[%s]%s", label[:len(c.Key)], label[len(c.Key):])
		} else {
			label = fmt.Sprintf("[%s] %s", c.Key, label)
		}
		parts = append(parts, label)
	}

	return fmt.Sprintf("%s %s", question, strings.Join(parts, "/"))
}

func asBuffered(r io.Reader) *bufio.Reader {
	if br, ok := r.(*bufio.Reader); ok {
		return br
	}

	return bufio.NewReader(r)
}

func readLine(r io.Reader) (string, error) {
	input, err := asBuffered(r).ReadString('\n')
	if err != nil && !(err == io.EOF && input != "") {
		return "", err
	}

	return strings.ToLower(strings.TrimSpace(input)), nil
}

// ReadYesNo reads and parses a yes/no response from the given reader.
// Returns true if confirmed, respecting optimistic mode.
// In optimistic mode, empty input is treated as confirmation.
func ReadYesNo(r io.Reader, optimistic bool) (bool, error) {
	input, err := readLine(r)
	if err != nil {
		return false, err
	}

	confirmed := input == "y" || input == "yes"
	if optimistic {
		confirmed = confirmed || input == ""
	}

	return confirmed, nil
}

// ReadChoice reads one line and matches it against the keys or labels of the
// given choices. Pass a *bufio.Reader to read several answers from one stream.
func ReadChoice(r io.Reader, choices []Choice) (Choice, error) {
	input, err := readLine(r)
	if err != nil {
		return Choice{}, err
	}

	for _, c := range choices {
		if input == strings.ToLower(c.Key) || input == strings.ToLower(c.Label) || input == strings.ToLower(c.Value) {
			return c, nil
		}
	}

	return Choice{}, errors.Wrapf(ErrInvalidChoice, "'%s'", input)
}
