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

// Package logging sets up the structured logger shared across the atlas
// pipeline. Every constructor elsewhere in this module follows the same
// fallback rule: a nil *slog.Logger becomes slog.Default().
package logging

import (
	"log/slog"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/exp/zapslog"
)

// OrDefault returns logger if non-nil, otherwise slog.Default().
func OrDefault(logger *slog.Logger) *slog.Logger {
	if logger == nil {
		return slog.Default()
	}
	return logger
}

// Format selects the text rendering of log records.
type Format string

const (
	FormatText Format = "text"
	FormatJSON Format = "json"
)

// New builds the process-wide logger. FormatJSON wires zap's production
// encoder behind slog's handler interface (via zapslog) for log aggregation
// in production deployments; FormatText uses slog's own handler for local
// development, matching the teacher's plain-vs-structured CLI split.
func New(format Format, level slog.Level) *slog.Logger {
	if format == FormatJSON {
		zapLogger, err := zap.NewProduction()
		if err != nil {
			return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
		}
		return slog.New(zapslog.NewHandler(zapLogger.Core()))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}
