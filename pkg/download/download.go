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

// Package download implements the Download & Integrity Layer: streaming
// fetch to disk, SHA-256 integrity verification against a checksum
// manifest, retry with exponential backoff, and Dead-Letter Queue
// persistence on terminal failure.
package download

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"sync"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"golang.org/x/time/rate"

	"github.com/kraklabs/boundaryatlas/internal/atlaserrors"
)

// hostLimiters enforces spec.md §5's "rate limiting is per-endpoint,
// enforced with a minimum delay between requests to the same host" policy:
// one token-bucket limiter per host, shared across every Download call in
// the process.
var hostLimiters = struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}{limiters: map[string]*rate.Limiter{}}

// minHostInterval is the minimum spacing between requests to a single
// host; a single token refilled at this rate models "a minimum delay
// between requests to the same host" rather than a burst-tolerant quota.
const minHostInterval = 200 * time.Millisecond

func limiterForHost(rawURL string) *rate.Limiter {
	host := rawURL
	if u, err := url.Parse(rawURL); err == nil && u.Host != "" {
		host = u.Host
	}

	hostLimiters.mu.Lock()
	defer hostLimiters.mu.Unlock()
	l, ok := hostLimiters.limiters[host]
	if !ok {
		l = rate.NewLimiter(rate.Every(minHostInterval), 1)
		hostLimiters.limiters[host] = l
	}
	return l
}

// ManifestPolicy controls behavior when no checksum manifest entry exists
// for a (layer, state, vintage).
type ManifestPolicy string

const (
	ManifestStrict  ManifestPolicy = "strict"  // refuse to proceed
	ManifestLenient ManifestPolicy = "lenient" // log and proceed unverified
)

// Options configures one download attempt.
type Options struct {
	URL              string
	OutPath          string
	ExpectedSHA256   string // empty if the manifest has no entry
	ManifestPolicy   ManifestPolicy
	MaxAttempts      int
	RetryBaseDelay   time.Duration
	Timeout          time.Duration
}

// Result reports what a successful download observed.
type Result struct {
	BytesWritten  int64
	ContentSHA256 string
	Verified      bool
}

// Download streams url to OutPath and verifies its digest when a manifest
// entry is present. A mismatch raises IntegrityFailure, which is never
// retried (spec.md §4.2: "non-transient").
func Download(ctx context.Context, client *http.Client, opts Options) (Result, error) {
	if err := limiterForHost(opts.URL).Wait(ctx); err != nil {
		return Result{}, atlaserrors.Wrap(atlaserrors.KindNetwork, "rate limiter wait", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, opts.URL, nil)
	if err != nil {
		return Result{}, atlaserrors.Wrap(atlaserrors.KindConfiguration, "build download request", err)
	}

	resp, err := client.Do(req)
	if err != nil {
		return Result{}, atlaserrors.Wrap(atlaserrors.Classify(err), "download request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return Result{}, atlaserrors.New(atlaserrors.KindNotFound, fmt.Sprintf("download %s: 404", opts.URL))
	}
	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode == http.StatusServiceUnavailable {
		return Result{}, atlaserrors.New(atlaserrors.KindRateLimited, fmt.Sprintf("download %s: %d", opts.URL, resp.StatusCode))
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return Result{}, atlaserrors.New(atlaserrors.KindNetwork, fmt.Sprintf("download %s: unexpected status %d", opts.URL, resp.StatusCode))
	}

	out, err := os.Create(opts.OutPath)
	if err != nil {
		return Result{}, atlaserrors.Wrap(atlaserrors.KindConfiguration, "create output file", err)
	}
	defer out.Close()

	hasher := sha256.New()
	n, err := io.Copy(out, io.TeeReader(resp.Body, hasher))
	if err != nil {
		return Result{}, atlaserrors.Wrap(atlaserrors.KindNetwork, "stream download body", err)
	}

	digest := hex.EncodeToString(hasher.Sum(nil))
	result := Result{BytesWritten: n, ContentSHA256: digest}

	if opts.ExpectedSHA256 == "" {
		if opts.ManifestPolicy == ManifestStrict {
			return Result{}, atlaserrors.New(atlaserrors.KindIntegrityFailure, fmt.Sprintf("no manifest entry for %s and policy is strict", opts.URL))
		}
		return result, nil
	}

	if digest != opts.ExpectedSHA256 {
		return Result{}, atlaserrors.New(atlaserrors.KindIntegrityFailure, fmt.Sprintf("checksum mismatch for %s: expected %s got %s", opts.URL, opts.ExpectedSHA256, digest))
	}
	result.Verified = true
	return result, nil
}

// NewRetryingClient builds an http.Client wired to hashicorp/go-retryablehttp
// with the exponential backoff schedule spec.md §4.2 specifies
// (base · 2^attempt), used by DownloadWithRetry.
func NewRetryingClient(maxAttempts int, baseDelay, timeout time.Duration) *http.Client {
	rc := retryablehttp.NewClient()
	rc.RetryMax = maxAttempts
	rc.RetryWaitMin = baseDelay
	rc.RetryWaitMax = baseDelay * (1 << maxAttempts)
	rc.Logger = nil
	rc.HTTPClient.Timeout = timeout
	return rc.StandardClient()
}

// DownloadWithRetry wraps Download with a retrying HTTP client and, on
// terminal (exhausted or non-retryable) failure, persists the job to the
// supplied DeadLetterQueue keyed by an idempotency hash of (url, layer,
// state, year).
func DownloadWithRetry(ctx context.Context, opts Options, dlq *DeadLetterQueue, layer, stateFIPS string, vintage int) (Result, error) {
	client := NewRetryingClient(opts.MaxAttempts, opts.RetryBaseDelay, opts.Timeout)
	result, err := Download(ctx, client, opts)
	if err == nil {
		return result, nil
	}

	kind := atlaserrors.KindOf(err)
	if kind == atlaserrors.KindIntegrityFailure {
		// Non-transient: escalate, but still record to the DLQ for
		// operator visibility if one is configured.
		if dlq != nil {
			_ = dlq.RecordFailure(opts.URL, layer, stateFIPS, vintage, err.Error())
		}
		return Result{}, err
	}

	if dlq != nil {
		if dlqErr := dlq.RecordFailure(opts.URL, layer, stateFIPS, vintage, err.Error()); dlqErr != nil {
			return Result{}, fmt.Errorf("download failed (%w) and DLQ record failed: %v", err, dlqErr)
		}
	}
	return Result{}, err
}
