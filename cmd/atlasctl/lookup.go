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

package main

import (
	"fmt"

	flag "github.com/spf13/pflag"

	"github.com/kraklabs/boundaryatlas/internal/config"
	"github.com/kraklabs/boundaryatlas/pkg/commitment"
	"github.com/kraklabs/boundaryatlas/pkg/lookup"
)

func runLookup(args []string, cfg config.Config, globals GlobalFlags) error {
	fs := flag.NewFlagSet("lookup", flag.ExitOnError)
	lat := fs.Float64("lat", 0, "Latitude")
	lon := fs.Float64("lon", 0, "Longitude")
	if err := fs.Parse(args); err != nil {
		return err
	}

	store, err := commitment.NewStore(cfg.Persistence.DatabasePath)
	if err != nil {
		return err
	}
	snap, err := store.LoadCurrent()
	if err != nil {
		return fmt.Errorf("no committed snapshot available: %w", err)
	}

	svc := lookup.NewService(lookup.Options{})
	svc.Swap(snap)

	id, found, err := svc.Lookup(*lat, *lon)
	if err != nil {
		return err
	}
	if !found {
		fmt.Println("no district found")
		return nil
	}
	fmt.Println(id)
	return nil
}
