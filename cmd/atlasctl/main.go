// Copyright 2025 KrakLabs
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published
// by the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program. If not, see <https://www.gnu.org/licenses/>.
//
// For commercial licensing, contact: licensing@kraklabs.com
//
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package main implements atlasctl, the command-line front end for the
// boundary atlas build/resume/lookup/serve operations.
//
// Usage:
//
//	atlasctl build --states 55,09,33 --layers cd --year 2024
//	atlasctl resume <checkpoint-id> [--retry-failed]
//	atlasctl lookup --lat 43.07393 --lon -89.40123
//	atlasctl serve --addr :8080
package main

import (
	"fmt"
	"os"

	flag "github.com/spf13/pflag"

	"github.com/kraklabs/boundaryatlas/internal/config"
)

// GlobalFlags holds flags shared across every subcommand.
type GlobalFlags struct {
	ConfigPath string
	JSON       bool
	NoColor    bool
	Verbose    int
}

func main() {
	var (
		configPath = flag.StringP("config", "c", "", "Path to atlas config YAML")
		jsonOutput = flag.Bool("json", false, "Output in JSON format")
		noColor    = flag.Bool("no-color", false, "Disable color output")
		verbose    = flag.CountP("verbose", "v", "Increase verbosity")
	)
	flag.SetInterspersed(false)

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, `atlasctl - boundary atlas build and lookup CLI

Usage:
  atlasctl <command> [options]

Commands:
  build     Run a full rebuild for a (states, layers, year) scope
  resume    Resume an interrupted batch from its checkpoint
  lookup    Query the committed snapshot for a point
  serve     Start the HTTP lookup server

Global Options:
  -c, --config      Path to atlas config YAML
  --json            Output in JSON format
  --no-color        Disable color output
  -v, --verbose     Increase verbosity

`)
	}

	flag.Parse()
	if os.Getenv("NO_COLOR") != "" {
		*noColor = true
	}

	globals := GlobalFlags{ConfigPath: *configPath, JSON: *jsonOutput, NoColor: *noColor, Verbose: *verbose}
	initColors(globals.NoColor)

	args := flag.Args()
	if len(args) == 0 {
		flag.Usage()
		os.Exit(1)
	}

	cfg := config.Default()
	if globals.ConfigPath != "" {
		loaded, err := config.Load(globals.ConfigPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "atlasctl: load config: %v\n", err)
			os.Exit(1)
		}
		cfg = loaded
	}

	command, cmdArgs := args[0], args[1:]
	var err error
	switch command {
	case "build":
		err = runBuild(cmdArgs, cfg, globals)
	case "resume":
		err = runResume(cmdArgs, cfg, globals)
	case "lookup":
		err = runLookup(cmdArgs, cfg, globals)
	case "serve":
		err = runServe(cmdArgs, cfg, globals)
	default:
		fmt.Fprintf(os.Stderr, "atlasctl: unknown command %q\n", command)
		flag.Usage()
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "atlasctl: %v\n", err)
		os.Exit(1)
	}
}
