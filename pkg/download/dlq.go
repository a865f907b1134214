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

package download

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"
)

// dlqBucket is the single bbolt bucket holding Dead-Letter Queue rows,
// keyed by the idempotency hash spec.md §4.2 defines.
var dlqBucket = []byte("dead_letter_queue")

// FailureStatus is the closed set of DLQ row states.
type FailureStatus string

const (
	StatusPending   FailureStatus = "pending"
	StatusRetrying  FailureStatus = "retrying"
	StatusExhausted FailureStatus = "exhausted"
	StatusResolved  FailureStatus = "resolved"
)

// FailedDownload is one DLQ row (spec.md §3, §6).
type FailedDownload struct {
	IDHash       string        `json:"id_hash"`
	URL          string        `json:"url"`
	Layer        string        `json:"layer"`
	StateFIPS    string        `json:"state_fips"`
	Vintage      int           `json:"vintage"`
	AttemptCount int           `json:"attempt_count"`
	MaxAttempts  int           `json:"max_attempts"`
	Status       FailureStatus `json:"status"`
	LastError    string        `json:"last_error"`
	NextRetryAt  time.Time     `json:"next_retry_at"`
	CreatedAt    time.Time     `json:"created_at"`
	ResolvedAt   time.Time     `json:"resolved_at,omitempty"`
}

// DeadLetterQueue persists failed downloads in an embedded, single-writer
// bbolt store, matching the acquisition subsystem's single-writer
// discipline (spec.md §5).
type DeadLetterQueue struct {
	db          *bolt.DB
	maxAttempts int
	baseDelay   time.Duration
}

// OpenDLQ opens (creating if necessary) a DLQ backed by the bbolt file at
// path.
func OpenDLQ(path string, maxAttempts int, baseDelay time.Duration) (*DeadLetterQueue, error) {
	db, err := bolt.Open(path, 0o644, &bolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("open dlq store: %w", err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(dlqBucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create dlq bucket: %w", err)
	}
	return &DeadLetterQueue{db: db, maxAttempts: maxAttempts, baseDelay: baseDelay}, nil
}

// Close closes the underlying store.
func (q *DeadLetterQueue) Close() error { return q.db.Close() }

// idempotencyKey computes sha256(url || layer || state || year), per
// spec.md §4.2.
func idempotencyKey(url, layer, stateFIPS string, vintage int) string {
	h := sha256.Sum256([]byte(fmt.Sprintf("%s%s%s%d", url, layer, stateFIPS, vintage)))
	return hex.EncodeToString(h[:])
}

// RecordFailure increments the attempt_count on the row for this job's
// idempotency key, creating it if absent, and flips status to exhausted
// once attempt_count reaches maxAttempts.
func (q *DeadLetterQueue) RecordFailure(url, layer, stateFIPS string, vintage int, lastError string) error {
	key := idempotencyKey(url, layer, stateFIPS, vintage)
	now := time.Now().UTC()

	return q.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(dlqBucket)
		var row FailedDownload
		if existing := b.Get([]byte(key)); existing != nil {
			if err := json.Unmarshal(existing, &row); err != nil {
				return fmt.Errorf("unmarshal existing dlq row: %w", err)
			}
		} else {
			row = FailedDownload{
				IDHash:      key,
				URL:         url,
				Layer:       layer,
				StateFIPS:   stateFIPS,
				Vintage:     vintage,
				MaxAttempts: q.maxAttempts,
				CreatedAt:   now,
			}
		}

		row.AttemptCount++
		row.LastError = lastError
		delay := q.baseDelay * time.Duration(1<<uint(row.AttemptCount))
		row.NextRetryAt = now.Add(delay)

		if row.AttemptCount >= row.MaxAttempts {
			row.Status = StatusExhausted
		} else {
			row.Status = StatusRetrying
		}

		data, err := json.Marshal(row)
		if err != nil {
			return fmt.Errorf("marshal dlq row: %w", err)
		}
		return b.Put([]byte(key), data)
	})
}

// Get returns the DLQ row for a given job, if present.
func (q *DeadLetterQueue) Get(url, layer, stateFIPS string, vintage int) (FailedDownload, bool, error) {
	key := idempotencyKey(url, layer, stateFIPS, vintage)
	var row FailedDownload
	var found bool
	err := q.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(dlqBucket).Get([]byte(key))
		if data == nil {
			return nil
		}
		found = true
		return json.Unmarshal(data, &row)
	})
	return row, found, err
}

// Resolve marks a row resolved, e.g. after a subsequent successful
// download.
func (q *DeadLetterQueue) Resolve(url, layer, stateFIPS string, vintage int) error {
	key := idempotencyKey(url, layer, stateFIPS, vintage)
	return q.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(dlqBucket)
		data := b.Get([]byte(key))
		if data == nil {
			return nil
		}
		var row FailedDownload
		if err := json.Unmarshal(data, &row); err != nil {
			return err
		}
		row.Status = StatusResolved
		row.ResolvedAt = time.Now().UTC()
		out, err := json.Marshal(row)
		if err != nil {
			return err
		}
		return b.Put([]byte(key), out)
	})
}

// All returns every DLQ row, for operator inspection or resumption.
func (q *DeadLetterQueue) All() ([]FailedDownload, error) {
	var rows []FailedDownload
	err := q.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(dlqBucket).ForEach(func(k, v []byte) error {
			var row FailedDownload
			if err := json.Unmarshal(v, &row); err != nil {
				return err
			}
			rows = append(rows, row)
			return nil
		})
	})
	return rows, err
}
