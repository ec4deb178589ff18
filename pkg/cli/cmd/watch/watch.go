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

package watch

import (
	gocontext "context"
	"os"
	"os/signal"
	"syscall"

	"github.com/dnote/papercli/pkg/cli/context"
	"github.com/dnote/papercli/pkg/cli/infra"
	"github.com/dnote/papercli/pkg/cli/log"
	"github.com/dnote/papercli/pkg/cli/reconcile"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

var example = `
  * Sync in the background until interrupted
  papercli watch`

// NewCmd returns a new watch command
func NewCmd(ctx context.PaperCtx) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "watch",
		Short:   "Sync periodically and whenever the mirror changes",
		Example: example,
		RunE:    newRun(ctx),
	}

	return cmd
}

func newRun(ctx context.PaperCtx) infra.RunEFunc {
	return func(cmd *cobra.Command, args []string) error {
		if ctx.RemotePath == "" {
			return errors.New("no remote path. Set remotePath in the config or PAPERCLI_REMOTE_PATH")
		}
		if !ctx.AutoSync {
			log.Warnf("autoSync is off in the config, watching anyway\n")
		}

		closeLog := log.RouteEntries(ctx.WatchLogPath(), os.Stderr)
		defer closeLog()

		engine := infra.NewEngine(ctx, ctx.RemotePath)
		run := func(c gocontext.Context) (*reconcile.Result, error) {
			return engine.Run(c, reconcile.Options{Strategy: ctx.Strategy})
		}

		c, stop := signal.NotifyContext(gocontext.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		scheduler := reconcile.NewScheduler(run, ctx.AutoSyncInterval, ctx.RemotePath, ctx.Clock)
		if err := scheduler.Start(c); err != nil {
			return errors.Wrap(err, "starting auto-sync")
		}
		defer scheduler.Stop()

		log.Infof("watching %s every %s. Press Ctrl+C to stop.\n", ctx.RemotePath, ctx.AutoSyncInterval)
		scheduler.Trigger(c, "start")

		<-c.Done()
		log.Plain("\n")
		log.Infof("stopping\n")

		return nil
	}
}
