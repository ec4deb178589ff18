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
	"context"
	"os"
	"path"
	"path/filepath"

	"github.com/dnote/papercli/pkg/cli/database"
	"github.com/dnote/papercli/pkg/cli/library"
	"github.com/dnote/papercli/pkg/cli/log"
	"github.com/pkg/errors"
)

// Status is the outcome of repairing one violation
type Status string

const (
	// StatusFixed means the remediation was applied
	StatusFixed Status = "fixed"
	// StatusFlagged means the violation needs a manual decision
	StatusFlagged Status = "flagged"
	// StatusSkipped means the store changed since the scan and the
	// violation no longer applies
	StatusSkipped Status = "skipped"
	// StatusFailed means the remediation failed and was rolled back
	StatusFailed Status = "failed"
)

// Outcome is the result of repairing one violation
type Outcome struct {
	Violation Violation
	Status    Status
	Detail    string
	Err       error
}

// Repair applies the remediation of every violation of a scan report, each
// in its own transaction. A failure is recorded in its outcome and does not
// stop the repair of the other violations.
func Repair(ctx context.Context, db *database.DB, pdfDir string, report Report) []Outcome {
	outcomes := make([]Outcome, 0, len(report.Violations))

	for _, v := range report.Violations {
		if err := ctx.Err(); err != nil {
			outcomes = append(outcomes, Outcome{Violation: v, Status: StatusFailed, Err: err})
			continue
		}

		o := repairOne(ctx, db, pdfDir, v)
		entry := log.WithFields(log.Fields{"kind": string(v.Kind), "subjects": v.Subjects, "status": string(o.Status)})
		if o.Err != nil {
			entry.ErrorWrap(o.Err, "repairing a violation")
		} else {
			entry.Info("repaired a violation")
		}

		outcomes = append(outcomes, o)
	}

	return outcomes
}

func repairOne(ctx context.Context, db *database.DB, pdfDir string, v Violation) Outcome {
	switch v.Kind {
	case KindDuplicateIdentity:
		return Outcome{Violation: v, Status: StatusFlagged, Detail: "merging loses data, resolve manually"}
	case KindDatabaseIntegrity:
		return Outcome{Violation: v, Status: StatusFlagged, Detail: v.Action}
	}

	tx, err := db.BeginContext(ctx)
	if err != nil {
		return Outcome{Violation: v, Status: StatusFailed, Err: errors.Wrap(err, "beginning a transaction")}
	}

	var status Status
	var detail string
	switch v.Kind {
	case KindDanglingLink:
		status, detail, err = deleteLink(tx, v)
	case KindAbsolutePath, KindMissingFile:
		status, detail, err = fixPath(ctx, tx, pdfDir, v)
	case KindOrphanedFile:
		status, detail, err = deleteOrphan(tx, pdfDir, v)
	default:
		err = errors.Errorf("unknown violation kind '%s'", v.Kind)
	}
	if err != nil {
		tx.Rollback()
		return Outcome{Violation: v, Status: StatusFailed, Err: err}
	}

	if err := tx.Commit(); err != nil {
		return Outcome{Violation: v, Status: StatusFailed, Err: errors.Wrap(err, "committing the repair")}
	}

	return Outcome{Violation: v, Status: status, Detail: detail}
}

func deleteLink(tx *database.DB, v Violation) (Status, string, error) {
	var query string
	switch v.table {
	case "paper_authors":
		query = "DELETE FROM paper_authors WHERE paper_id = ? AND author_id = ?"
	case "paper_collections":
		query = "DELETE FROM paper_collections WHERE paper_id = ? AND collection_id = ?"
	default:
		return "", "", errors.Errorf("unknown link table '%s'", v.table)
	}

	res, err := tx.Exec(query, v.parentID, v.childID)
	if err != nil {
		return "", "", errors.Wrapf(err, "deleting a %s row", v.table)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return "", "", errors.Wrap(err, "counting affected rows")
	}
	if n == 0 {
		return StatusSkipped, "the link row is gone", nil
	}

	return StatusFixed, "deleted the link row", nil
}

// currentPDFPaths returns the stored pdf path of every paper
func currentPDFPaths(tx *database.DB) (map[int]string, error) {
	rows, err := tx.Query("SELECT id, pdf_path FROM papers WHERE pdf_path IS NOT NULL AND pdf_path != ''")
	if err != nil {
		return nil, errors.Wrap(err, "querying pdf paths")
	}
	defer rows.Close()

	ret := map[int]string{}
	for rows.Next() {
		var id int
		var p string
		if err := rows.Scan(&id, &p); err != nil {
			return nil, errors.Wrap(err, "scanning a pdf path")
		}
		ret[id] = p
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "iterating pdf paths")
	}

	return ret, nil
}

// fixPath rewrites an absolute path inside the pdf directory as a relative
// one. Any other broken path is relinked to the only unreferenced file with
// the same name, or cleared.
func fixPath(ctx context.Context, tx *database.DB, pdfDir string, v Violation) (Status, string, error) {
	paperID := v.paperIDs[0]

	paths, err := currentPDFPaths(tx)
	if err != nil {
		return "", "", err
	}
	if paths[paperID] != v.path {
		return StatusSkipped, "the pdf path changed since the scan", nil
	}

	if v.Kind == KindAbsolutePath {
		if rel, ok := library.RelPDFPath(pdfDir, v.path); ok {
			exists, err := fileExists(v.path)
			if err != nil {
				return "", "", err
			}
			if exists {
				if err := database.UpdatePDFPath(tx, paperID, rel); err != nil {
					return "", "", err
				}
				return StatusFixed, "rewrote the path as " + rel, nil
			}
		}
	}

	referenced := map[string]bool{}
	for _, p := range paths {
		if rel, ok := library.RelPDFPath(pdfDir, p); ok {
			referenced[rel] = true
		}
	}

	base := path.Base(filepath.ToSlash(v.path))
	var candidates []string
	err = walkPDFs(ctx, pdfDir, func(rel string) error {
		if path.Base(rel) == base && !referenced[rel] {
			candidates = append(candidates, rel)
		}
		return nil
	})
	if err != nil {
		return "", "", err
	}

	if len(candidates) == 1 {
		if err := database.UpdatePDFPath(tx, paperID, candidates[0]); err != nil {
			return "", "", err
		}
		return StatusFixed, "relinked to " + candidates[0], nil
	}

	if err := database.UpdatePDFPath(tx, paperID, ""); err != nil {
		return "", "", err
	}
	if len(candidates) > 1 {
		return StatusFixed, "cleared the pdf path, several files are named " + base, nil
	}

	return StatusFixed, "cleared the pdf path", nil
}

// deleteOrphan deletes a file unless a paper references it by now
func deleteOrphan(tx *database.DB, pdfDir string, v Violation) (Status, string, error) {
	paths, err := currentPDFPaths(tx)
	if err != nil {
		return "", "", err
	}
	for _, p := range paths {
		if rel, ok := library.RelPDFPath(pdfDir, p); ok && rel == v.path {
			return StatusSkipped, "a paper references the file", nil
		}
	}

	target := filepath.Join(pdfDir, filepath.FromSlash(v.path))
	if err := os.Remove(target); err != nil {
		if os.IsNotExist(err) {
			return StatusSkipped, "the file is gone", nil
		}
		return "", "", errors.Wrapf(err, "deleting %s", target)
	}

	return StatusFixed, "deleted the file", nil
}
