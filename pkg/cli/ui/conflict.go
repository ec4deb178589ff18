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

package ui

import (
	"bufio"
	"context"
	"io"

	"github.com/dnote/papercli/pkg/cli/library"
	"github.com/dnote/papercli/pkg/cli/log"
	"github.com/dnote/papercli/pkg/cli/reconcile"
	"github.com/dnote/papercli/pkg/cli/utils/diff"
	"github.com/dnote/papercli/pkg/prompt"
	"github.com/pkg/errors"
)

// maxAttempts is how many invalid answers are accepted before a conflict is
// skipped
const maxAttempts = 3

var conflictChoices = []prompt.Choice{
	{Key: "l", Label: "local", Value: reconcile.TakeLocal.String()},
	{Key: "r", Label: "remote", Value: reconcile.TakeRemote.String()},
	{Key: "s", Label: "skip", Value: reconcile.Skip.String()},
}

func decisionOf(c prompt.Choice) reconcile.Decision {
	switch c.Value {
	case reconcile.TakeLocal.String():
		return reconcile.TakeLocal
	case reconcile.TakeRemote.String():
		return reconcile.TakeRemote
	}

	return reconcile.Skip
}

func sideText(s string) string {
	if s == "" {
		return "(deleted)\n"
	}

	return s
}

// ConflictText renders a conflict with the differing lines between markers
func ConflictText(c reconcile.Conflict) string {
	return diff.Conflict(sideText(c.LocalText), sideText(c.RemoteText))
}

// answer is the result of one read from the terminal
type answer struct {
	choice prompt.Choice
	err    error
}

// answerReader reads answers in the background so that waiting for one can
// be cancelled. A read still blocked when its wait is cancelled is handed to
// the next wait rather than started again.
type answerReader struct {
	br      *bufio.Reader
	pending chan answer
}

func (a *answerReader) read(ctx context.Context) (prompt.Choice, error) {
	if a.pending == nil {
		ch := make(chan answer, 1)
		a.pending = ch
		go func() {
			c, err := prompt.ReadChoice(a.br, conflictChoices)
			ch <- answer{choice: c, err: err}
		}()
	}

	select {
	case ans := <-a.pending:
		a.pending = nil
		return ans.choice, ans.err
	case <-ctx.Done():
		return prompt.Choice{}, ctx.Err()
	}
}

// NewDecider returns a function asking the user about each conflict on
// the terminal. Answers are read from r. A conflict is skipped after
// repeated invalid answers, and all remaining ones when input ends.
// Waiting for an answer ends when the context is done.
func NewDecider(r io.Reader) reconcile.DecideFunc {
	ar := &answerReader{br: bufio.NewReader(r)}

	return func(ctx context.Context, conflicts []reconcile.Conflict) (map[library.ID]reconcile.Decision, error) {
		ret := map[library.ID]reconcile.Decision{}

		for i, c := range conflicts {
			if err := ctx.Err(); err != nil {
				return ret, err
			}

			log.Plain("\n")
			log.Warnf("conflict %d of %d: %s (%s)\n", i+1, len(conflicts), c.ID, c.Reason)
			log.Plain(ConflictText(c))

			d, err := ask(ctx, ar)
			if errors.Cause(err) == io.EOF {
				log.Warnf("no more input, skipping the remaining conflicts\n")
				return ret, nil
			}
			if err != nil {
				return ret, err
			}

			ret[c.ID] = d
		}

		return ret, nil
	}
}

func ask(ctx context.Context, ar *answerReader) (reconcile.Decision, error) {
	question := prompt.FormatChoices("Keep which version?", conflictChoices)

	for attempt := 0; attempt < maxAttempts; attempt++ {
		log.Askf("%s", question)

		c, err := ar.read(ctx)
		if errors.Is(err, prompt.ErrInvalidChoice) {
			log.Errorf("%s\n", err.Error())
			continue
		}
		if err != nil {
			return reconcile.Skip, err
		}

		return decisionOf(c), nil
	}

	log.Warnf("skipping after %d invalid answers\n", maxAttempts)
	return reconcile.Skip, nil
}
