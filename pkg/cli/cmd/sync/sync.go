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

package sync

import (
	gocontext "context"
	"os"
	"os/signal"
	"syscall"

	"github.com/dnote/papercli/pkg/cli/config"
	"github.com/dnote/papercli/pkg/cli/context"
	"github.com/dnote/papercli/pkg/cli/infra"
	"github.com/dnote/papercli/pkg/cli/log"
	"github.com/dnote/papercli/pkg/cli/output"
	"github.com/dnote/papercli/pkg/cli/reconcile"
	"github.com/dnote/papercli/pkg/cli/ui"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

var example = `
  * Sync with the configured mirror
  papercli sync

  * Sync with another mirror, keeping the newest version of conflicts
  papercli sync --remote /mnt/usb/papers --strategy prefer-newest`

// ErrNoRemote is returned when no mirror is configured or given
var ErrNoRemote = errors.New("no remote path. Set remotePath in the config, PAPERCLI_REMOTE_PATH, or pass --remote")

var strategyFlag string
var remoteFlag string

// NewCmd returns a new sync command
func NewCmd(ctx context.PaperCtx) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "sync",
		Aliases: []string{"s"},
		Short:   "Sync the library with the remote mirror",
		Example: example,
		RunE:    newRun(ctx),
	}

	f := cmd.Flags()
	f.StringVar(&strategyFlag, "strategy", "", "conflict strategy for this run (prefer-local, prefer-remote, prefer-newest, manual)")
	f.StringVar(&remoteFlag, "remote", "", "path to the remote mirror (defaults to value in config)")

	return cmd
}

// resolveOptions merges the flags over the configuration of ctx
func resolveOptions(ctx context.PaperCtx, remote, strategy string) (string, reconcile.Strategy, error) {
	cf := config.Config{
		RemotePath:       ctx.RemotePath,
		Strategy:         ctx.Strategy,
		AutoSyncInterval: config.Duration(ctx.AutoSyncInterval),
	}
	if remote != "" {
		cf.RemotePath = remote
	}
	if strategy != "" {
		cf.Strategy = reconcile.Strategy(strategy)
	}

	cf, err := config.Normalize(cf, ctx.Paths.Home)
	if err != nil {
		return "", "", err
	}
	if cf.RemotePath == "" {
		return "", "", ErrNoRemote
	}

	return cf.RemotePath, cf.Strategy, nil
}

func newRun(ctx context.PaperCtx) infra.RunEFunc {
	return func(cmd *cobra.Command, args []string) error {
		remote, strategy, err := resolveOptions(ctx, remoteFlag, strategyFlag)
		if err != nil {
			return err
		}

		opts := reconcile.Options{Strategy: strategy}
		if ui.IsInteractive() {
			opts.Decide = ui.NewDecider(os.Stdin)
		}

		closeLog := log.RouteEntries(ctx.LogPath(), nil)
		defer closeLog()

		c, stop := signal.NotifyContext(gocontext.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		result, err := infra.NewEngine(ctx, remote).Run(c, opts)
		if result != nil {
			output.SyncResult(result)
		}
		if err != nil {
			return errors.Wrapf(err, "syncing with %s", remote)
		}

		return nil
	}
}
