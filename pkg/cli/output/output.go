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

// Package output provides functions to print informations on the terminal
// in a consistent manner
package output

import (
	"strings"

	"github.com/dnote/papercli/pkg/cli/doctor"
	"github.com/dnote/papercli/pkg/cli/log"
	"github.com/dnote/papercli/pkg/cli/reconcile"
)

// SyncResult prints the summary of a sync cycle, then what failed and what
// is still pending
func SyncResult(r *reconcile.Result) {
	summary := r.Summary()
	if len(r.Failures) > 0 || len(r.Pending()) > 0 {
		log.Warnf("%s\n", summary)
	} else {
		log.Successf("%s\n", summary)
	}

	for _, f := range r.Failures {
		log.Errorf("%s: %s\n", subject(f), f.Err.Error())
	}
	for _, c := range r.Pending() {
		log.Printf("conflict %s (%s)\n", c.ID, c.Reason)
	}
	if len(r.Pending()) > 0 {
		log.Infof("run 'papercli sync --strategy manual' to resolve the conflicts\n")
	}
}

func subject(e *reconcile.Error) string {
	if e.Entity == "" {
		return string(e.Phase)
	}

	return string(e.Entity)
}

// DoctorReport prints the violations of a doctor scan grouped by kind
func DoctorReport(r doctor.Report) {
	if len(r.Violations) == 0 {
		log.Success("no issues found\n")
		return
	}

	for _, kind := range doctor.Kinds {
		n := r.Count(kind)
		if n == 0 {
			continue
		}

		log.Warnf("%s (%d)\n", kind, n)
		for _, v := range r.Violations {
			if v.Kind != kind {
				continue
			}
			log.Plainf("  %s: %s (%s)\n", strings.Join(v.Subjects, " "), v.Detail, v.Action)
		}
	}

	log.Infof("%d issues found. Run 'papercli doctor repair' to fix them.\n", len(r.Violations))
}

// RepairOutcomes prints the outcome of each repair and a tally
func RepairOutcomes(outcomes []doctor.Outcome) {
	counts := map[doctor.Status]int{}

	for _, o := range outcomes {
		counts[o.Status]++

		what := strings.Join(o.Violation.Subjects, " ")
		switch o.Status {
		case doctor.StatusFixed:
			log.Successf("%s: %s\n", what, o.Detail)
		case doctor.StatusFlagged:
			log.Warnf("%s: %s\n", what, o.Detail)
		case doctor.StatusSkipped:
			log.Plainf("  %s: %s\n", what, o.Detail)
		case doctor.StatusFailed:
			log.Errorf("%s: %s\n", what, o.Err.Error())
		}
	}

	log.Infof("%d fixed, %d flagged, %d skipped, %d failed\n",
		counts[doctor.StatusFixed], counts[doctor.StatusFlagged], counts[doctor.StatusSkipped], counts[doctor.StatusFailed])
}
