// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package badger

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/AleutianAI/beaver/services/beaver/decider"
	"github.com/AleutianAI/beaver/services/beaver/machine"
)

// ErrNotFound is returned when no record exists for a machine.
var ErrNotFound = errors.New("record not found")

const recordPrefix = "cert/"

// Record is one stored decision.
type Record struct {
	// Machine is the compact text form of the decided machine.
	Machine string `json:"machine"`

	// Decision is the decision as the runner emitted it.
	Decision decider.Decision `json:"decision"`

	// RunID identifies the batch or request that produced the decision.
	RunID string `json:"run_id,omitempty"`

	// StoredAt is when the record was written (UTC).
	StoredAt time.Time `json:"stored_at"`
}

// Store reads and writes decision records.
//
// # Thread Safety
//
// Store is safe for concurrent use.
type Store struct {
	db     *DB
	logger *slog.Logger
	now    func() time.Time
}

// NewStore wraps an open database. A nil logger falls back to slog.Default.
func NewStore(db *DB, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		db:     db,
		logger: logger.With("component", "store"),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Key returns the store key for m.
func Key(m *machine.Machine) ([]byte, error) {
	enc, err := m.MarshalBinary()
	if err != nil {
		return nil, fmt.Errorf("encode machine: %w", err)
	}
	key := make([]byte, 0, len(recordPrefix)+hex.EncodedLen(len(enc)))
	key = append(key, recordPrefix...)
	return hex.AppendEncode(key, enc), nil
}

// Put stores the decision for m, replacing any earlier record.
//
// Inputs:
//   - ctx: Checked before the transaction starts.
//   - m: The decided machine.
//   - d: The decision to store.
//   - runID: Optional run identifier.
//
// Outputs:
//   - Record: The record as stored.
//   - error: Non-nil if encoding or the write fails.
func (s *Store) Put(ctx context.Context, m *machine.Machine, d decider.Decision, runID string) (Record, error) {
	key, err := Key(m)
	if err != nil {
		return Record{}, err
	}
	rec := Record{Machine: m.String(), Decision: d, RunID: runID, StoredAt: s.now()}
	val, err := json.Marshal(rec)
	if err != nil {
		return Record{}, fmt.Errorf("encode record: %w", err)
	}
	err = s.db.WithTxn(ctx, func(txn *badger.Txn) error {
		return txn.Set(key, val)
	})
	if err != nil {
		return Record{}, fmt.Errorf("put %s: %w", rec.Machine, err)
	}
	s.logger.Debug("record stored", "machine", rec.Machine, "verdict", d.Verdict, "decider", d.Decider)
	return rec, nil
}

// Get returns the record for m, or ErrNotFound.
func (s *Store) Get(ctx context.Context, m *machine.Machine) (Record, error) {
	key, err := Key(m)
	if err != nil {
		return Record{}, err
	}
	var rec Record
	err = s.db.WithReadTxn(ctx, func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		if errors.Is(err, badger.ErrKeyNotFound) {
			return fmt.Errorf("%w: %s", ErrNotFound, m)
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &rec)
		})
	})
	if err != nil {
		return Record{}, err
	}
	return rec, nil
}

// Delete removes the record for m. Deleting a missing record is not an
// error.
func (s *Store) Delete(ctx context.Context, m *machine.Machine) error {
	key, err := Key(m)
	if err != nil {
		return err
	}
	return s.db.WithTxn(ctx, func(txn *badger.Txn) error {
		return txn.Delete(key)
	})
}

// List calls fn for every record in key order. Iteration stops at the first
// error from fn or when ctx is cancelled.
func (s *Store) List(ctx context.Context, fn func(Record) error) error {
	return s.db.WithReadTxn(ctx, func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(recordPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			var rec Record
			err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &rec)
			})
			if err != nil {
				return fmt.Errorf("decode %s: %w", it.Item().Key(), err)
			}
			if err := fn(rec); err != nil {
				return err
			}
		}
		return nil
	})
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}
