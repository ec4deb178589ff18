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

package doctor

import (
	gocontext "context"
	"os"
	"os/signal"
	"syscall"

	"github.com/dnote/papercli/pkg/cli/consts"
	"github.com/dnote/papercli/pkg/cli/context"
	"github.com/dnote/papercli/pkg/cli/database"
	"github.com/dnote/papercli/pkg/cli/doctor"
	"github.com/dnote/papercli/pkg/cli/infra"
	"github.com/dnote/papercli/pkg/cli/lock"
	"github.com/dnote/papercli/pkg/cli/log"
	"github.com/dnote/papercli/pkg/cli/output"
	"github.com/dnote/papercli/pkg/cli/ui"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

var example = `
  * Report integrity problems of the library
  papercli doctor scan

  * Fix them without asking
  papercli doctor repair --yes`

var yesFlag bool

// NewCmd returns a new doctor command
func NewCmd(ctx context.PaperCtx) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "doctor",
		Short:   "Check and repair the integrity of the library",
		Example: example,
	}

	scan := &cobra.Command{
		Use:   "scan",
		Short: "Report integrity problems without changing anything",
		RunE:  newScanRun(ctx),
	}

	repair := &cobra.Command{
		Use:   "repair",
		Short: "Scan the library and fix what can be fixed",
		RunE:  newRepairRun(ctx),
	}
	repair.Flags().BoolVarP(&yesFlag, "yes", "y", false, "repair without confirmation")

	cmd.AddCommand(scan, repair)

	return cmd
}

func lockLibrary(ctx context.PaperCtx) (func(), error) {
	unlock, err := infra.NewLocker(ctx).TryLock()
	if errors.Is(err, lock.ErrBusy) {
		return nil, errors.New("a sync or doctor run is in progress, try again later")
	}
	if err != nil {
		return nil, errors.Wrap(err, "locking the library")
	}

	return unlock, nil
}

func newScanRun(ctx context.PaperCtx) infra.RunEFunc {
	return func(cmd *cobra.Command, args []string) error {
		unlock, err := lockLibrary(ctx)
		if err != nil {
			return err
		}
		defer unlock()

		report, err := doctor.Scan(cmd.Context(), ctx.DB, ctx.PDFDir(), ctx.Clock)
		if err != nil {
			return errors.Wrap(err, "scanning the library")
		}

		output.DoctorReport(report)

		return nil
	}
}

func newRepairRun(ctx context.PaperCtx) infra.RunEFunc {
	return func(cmd *cobra.Command, args []string) error {
		c, stop := signal.NotifyContext(gocontext.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		closeLog := log.RouteEntries(ctx.LogPath(), nil)
		defer closeLog()

		unlock, err := lockLibrary(ctx)
		if err != nil {
			return err
		}
		defer unlock()

		report, err := doctor.Scan(c, ctx.DB, ctx.PDFDir(), ctx.Clock)
		if err != nil {
			return errors.Wrap(err, "scanning the library")
		}

		output.DoctorReport(report)
		if len(report.Violations) == 0 {
			return nil
		}

		if !yesFlag {
			ok, err := ui.Confirm(os.Stdin, "Repair these issues?", false)
			if err != nil {
				return errors.Wrap(err, "getting confirmation")
			}
			if !ok {
				log.Warnf("aborted by user\n")
				return nil
			}
		}

		outcomes := doctor.Repair(c, ctx.DB, ctx.PDFDir(), report)
		output.RepairOutcomes(outcomes)

		if err := database.UpsertSystem(ctx.DB, consts.SystemLastDoctorAt, ctx.Clock.Now().Unix()); err != nil {
			return errors.Wrap(err, "saving the repair time")
		}

		var failed int
		for _, o := range outcomes {
			if o.Status == doctor.StatusFailed {
				failed++
			}
		}
		if failed > 0 {
			return errors.Errorf("%d repairs failed", failed)
		}

		return nil
	}
}
