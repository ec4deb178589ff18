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

package strategy

import (
	"github.com/dnote/papercli/pkg/cli/config"
	"github.com/dnote/papercli/pkg/cli/context"
	"github.com/dnote/papercli/pkg/cli/infra"
	"github.com/dnote/papercli/pkg/cli/log"
	"github.com/dnote/papercli/pkg/cli/reconcile"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

var example = `
  * Show the configured strategy
  papercli strategy

  * Keep the most recently modified version of conflicting entities
  papercli strategy prefer-newest`

// NewCmd returns a new strategy command
func NewCmd(ctx context.PaperCtx) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "strategy [name]",
		Short:   "Show or set the conflict strategy",
		Example: example,
		Args:    cobra.MaximumNArgs(1),
		RunE:    newRun(ctx),
	}

	return cmd
}

func newRun(ctx context.PaperCtx) infra.RunEFunc {
	return func(cmd *cobra.Command, args []string) error {
		if len(args) == 0 {
			log.Plainf("%s\n", ctx.Strategy)
			return nil
		}

		strategy, err := reconcile.ParseStrategy(args[0])
		if err != nil {
			return err
		}

		cf, err := config.Read(ctx)
		if err != nil {
			return errors.Wrap(err, "reading the config")
		}
		cf.Strategy = strategy

		if err := config.Write(ctx, cf); err != nil {
			return errors.Wrap(err, "writing the config")
		}

		log.Successf("conflict strategy set to %s\n", strategy)

		return nil
	}
}
