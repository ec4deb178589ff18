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

package context

import (
	"path/filepath"

	"github.com/dnote/papercli/pkg/cli/consts"
	"github.com/dnote/papercli/pkg/cli/utils"
	"github.com/pkg/errors"
)

// InitDirs creates the papercli directories if they don't already exist
func InitDirs(paths Paths) error {
	dirs := []struct {
		base string
		name string
	}{
		{paths.Config, "config"},
		{paths.Data, "data"},
		{paths.Cache, "cache"},
		{paths.State, "state"},
	}

	for _, d := range dirs {
		if d.base == "" {
			continue
		}
		if err := utils.EnsureDir(filepath.Join(d.base, consts.AppDirName)); err != nil {
			return errors.Wrapf(err, "initializing %s dir", d.name)
		}
	}

	if paths.Data != "" {
		pdfDir := filepath.Join(paths.Data, consts.AppDirName, consts.PDFDirName)
		if err := utils.EnsureDir(pdfDir); err != nil {
			return errors.Wrap(err, "initializing pdf dir")
		}
	}

	return nil
}
