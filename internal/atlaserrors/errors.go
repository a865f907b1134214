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

// Package atlaserrors defines the closed set of error kinds used across the
// atlas pipeline and the single classification seam that maps a raw error
// (a network failure, an HTTP status, a library error string) onto one of
// them. No other package should pattern-match on error text directly.
package atlaserrors

import (
	"errors"
	"fmt"
	"strings"
)

// Kind is a closed tag identifying why an operation failed.
type Kind string

const (
	KindNetwork           Kind = "network_error"
	KindRateLimited       Kind = "rate_limited"
	KindNotFound          Kind = "not_found"
	KindIntegrityFailure  Kind = "integrity_failure"
	KindParseError        Kind = "parse_error"
	KindValidationHalt    Kind = "validation_halt"
	KindDuplicateID       Kind = "duplicate_boundary_id"
	KindInvalidCoordinate Kind = "invalid_coordinates"
	KindCheckpointMissing Kind = "checkpoint_not_found"
	KindCircuitOpen       Kind = "circuit_open"
	KindConfiguration     Kind = "configuration_error"
	KindUnknown           Kind = "unknown"
)

// Retryable reports whether operations classified with this kind should be
// retried by the caller rather than treated as terminal.
func (k Kind) Retryable() bool {
	switch k {
	case KindNetwork, KindRateLimited:
		return true
	default:
		return false
	}
}

// Error wraps an underlying cause with a classified Kind.
type Error struct {
	Kind  Kind
	Msg   string
	Cause error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Msg, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

func (e *Error) Unwrap() error { return e.Cause }

// New builds a classified error.
func New(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Msg: msg}
}

// Wrap builds a classified error around a cause.
func Wrap(kind Kind, msg string, cause error) *Error {
	return &Error{Kind: kind, Msg: msg, Cause: cause}
}

// As extracts a *Error from err, if any is present in its chain.
func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// KindOf returns the classified Kind of err, KindUnknown if err does not
// carry one and does not match any of the raw patterns Classify knows.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	if e, ok := As(err); ok {
		return e.Kind
	}
	return Classify(err)
}

// Classify is the single seam that turns a raw, unclassified error (as
// returned by an HTTP client, exec.Command, or a parser) into a Kind by
// pattern-matching its message. Centralizing this here means no other
// package does its own string matching on error text.
func Classify(err error) Kind {
	if err == nil {
		return ""
	}
	msg := strings.ToLower(err.Error())

	switch {
	case containsAny(msg, "econnreset", "etimedout", "fetch failed", "connection refused", "no such host", "i/o timeout"):
		return KindNetwork
	case containsAny(msg, "429", "503", "rate limit", "too many requests"):
		return KindRateLimited
	case containsAny(msg, "404", "not found"):
		return KindNotFound
	case containsAny(msg, "checksum mismatch", "integrity", "digest mismatch"):
		return KindIntegrityFailure
	default:
		return KindUnknown
	}
}

func containsAny(s string, substrs ...string) bool {
	for _, sub := range substrs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
