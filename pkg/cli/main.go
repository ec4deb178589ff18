/* Copyright (C) 2019, 2020, 2021, 2022, 2023, 2024, 2025 Dnote contributors
 *
 * This file is part of Dnote.
 *
 * Dnote is free software: you can redistribute it and/or modify
 * it under the terms of the GNU General Public License as published by
 * the Free Software Foundation, either version 3 of the License, or
 * (at your option) any later version.
 *
 * Dnote is distributed in the hope that it will be useful,
 * but WITHOUT ANY WARRANTY; without even the implied warranty of
 * MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
 * GNU General Public License for more details.
 *
 * You should have received a copy of the GNU General Public License
 * along with Dnote.  If not, see <https://www.gnu.org/licenses/>.
 */

package main

import (
	"os"
	"strings"

	"github.com/dnote/papercli/pkg/cli/infra"
	"github.com/dnote/papercli/pkg/cli/log"
	_ "github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"

	// commands
	"github.com/dnote/papercli/pkg/cli/cmd/doctor"
	"github.com/dnote/papercli/pkg/cli/cmd/root"
	"github.com/dnote/papercli/pkg/cli/cmd/strategy"
	"github.com/dnote/papercli/pkg/cli/cmd/sync"
	"github.com/dnote/papercli/pkg/cli/cmd/version"
	"github.com/dnote/papercli/pkg/cli/cmd/watch"
)

// versionTag is populated during link time
var versionTag = "master"

// parseDataDir extracts --dataDir flag value from command line arguments
// regardless of where it appears (before or after subcommand).
// Returns empty string if not found.
func parseDataDir(args []string) string {
	for i, arg := range args {
		if strings.HasPrefix(arg, "--dataDir=") {
			return strings.TrimPrefix(arg, "--dataDir=")
		}
		if arg == "--dataDir" && i+1 < len(args) {
			return args[i+1]
		}
	}
	return ""
}

func main() {
	// --dataDir can appear after the subcommand (e.g. "papercli sync
	// --dataDir ./lib") and root.ParseFlags only parses flags before it.
	dataDir := parseDataDir(os.Args[1:])

	ctx, err := infra.Init(versionTag, dataDir)
	if err != nil {
		log.Errorf("%s\n", errors.Wrap(err, "initializing context").Error())
		os.Exit(1)
	}
	defer ctx.DB.Close()

	root.Register(sync.NewCmd(*ctx))
	root.Register(doctor.NewCmd(*ctx))
	root.Register(strategy.NewCmd(*ctx))
	root.Register(watch.NewCmd(*ctx))
	root.Register(version.NewCmd(*ctx))

	if err := root.Execute(); err != nil {
		log.Errorf("%s\n", err.Error())
		ctx.DB.Close()
		os.Exit(1)
	}
}
