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
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/beaver/services/beaver/decider"
	"github.com/AleutianAI/beaver/services/beaver/decider/bouncers"
	"github.com/AleutianAI/beaver/services/beaver/decider/cyclers"
	"github.com/AleutianAI/beaver/services/beaver/machine"
	"github.com/AleutianAI/beaver/services/beaver/verify"
)

func openStore(t *testing.T) *Store {
	t.Helper()
	db, err := Open(InMemoryConfig())
	require.NoError(t, err)
	s := NewStore(db, nil)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func decide(t *testing.T, d decider.Decider, text string) (*machine.Machine, decider.Decision) {
	t.Helper()
	m := machine.MustParse(text)
	dec, err := d.Decide(context.Background(), m, decider.DefaultBudget())
	require.NoError(t, err)
	return m, dec
}

func TestOpen_RequiresPath(t *testing.T) {
	_, err := Open(Config{})
	assert.Error(t, err)
}

func TestOpen_Persistent(t *testing.T) {
	dir := t.TempDir()
	m, dec := decide(t, cyclers.New(), "1RB1RB_1LA1LA")

	db, err := Open(DefaultConfig(dir))
	require.NoError(t, err)
	_, err = NewStore(db, nil).Put(context.Background(), m, dec, "run-1")
	require.NoError(t, err)
	require.NoError(t, db.Close())

	db, err = Open(DefaultConfig(dir))
	require.NoError(t, err)
	s := NewStore(db, nil)
	defer s.Close()

	rec, err := s.Get(context.Background(), m)
	require.NoError(t, err)
	assert.Equal(t, "run-1", rec.RunID)
	assert.Equal(t, dec, rec.Decision)
}

func TestKey(t *testing.T) {
	key, err := Key(machine.MustParse("1RB1LB_1LA---"))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(key), "cert/"))
	// 2 header bytes + 4 cells of 3 bytes, hex encoded.
	assert.Len(t, key, len("cert/")+2*(2+4*3))
}

func TestStore_PutGet(t *testing.T) {
	s := openStore(t)
	fixed := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	s.now = func() time.Time { return fixed }

	m, dec := decide(t, cyclers.New(), "1RB0RB_0LA---")
	require.True(t, dec.Proven())

	put, err := s.Put(context.Background(), m, dec, "")
	require.NoError(t, err)
	assert.Equal(t, fixed, put.StoredAt)

	got, err := s.Get(context.Background(), m)
	require.NoError(t, err)
	assert.Equal(t, put, got)
	assert.NoError(t, verify.Certificate(context.Background(), m, got.Decision.Certificate))
}

func TestStore_BouncerCertificateSurvivesRoundTrip(t *testing.T) {
	s := openStore(t)
	m, dec := decide(t, bouncers.New(), "1LB1RA_0RA1LB")
	require.True(t, dec.Proven(), dec.String())

	_, err := s.Put(context.Background(), m, dec, "")
	require.NoError(t, err)
	got, err := s.Get(context.Background(), m)
	require.NoError(t, err)

	assert.Equal(t, dec.Certificate.Bouncer.Formula.String(), got.Decision.Certificate.Bouncer.Formula.String())
	assert.NoError(t, verify.Certificate(context.Background(), m, got.Decision.Certificate))
}

func TestStore_GetMissing(t *testing.T) {
	s := openStore(t)
	_, err := s.Get(context.Background(), machine.MustParse("1RA---"))
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestStore_PutReplaces(t *testing.T) {
	s := openStore(t)
	m := machine.MustParse("1RA---")
	_, err := s.Put(context.Background(), m, decider.Unknown(decider.KindCyclers, decider.ReasonStepBudget, 10), "a")
	require.NoError(t, err)
	_, err = s.Put(context.Background(), m, decider.Unknown(decider.KindTCyclers, decider.ReasonNone, 3), "b")
	require.NoError(t, err)

	got, err := s.Get(context.Background(), m)
	require.NoError(t, err)
	assert.Equal(t, "b", got.RunID)
	assert.Equal(t, decider.KindTCyclers, got.Decision.Decider)
}

func TestStore_ListAndDelete(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()
	texts := []string{"1RA---", "1LA---", "1RB1RB_1LA1LA"}
	for _, text := range texts {
		_, err := s.Put(ctx, machine.MustParse(text), decider.Unknown(decider.KindCyclers, decider.ReasonStepBudget, 1), "")
		require.NoError(t, err)
	}

	var seen []string
	require.NoError(t, s.List(ctx, func(r Record) error {
		seen = append(seen, r.Machine)
		return nil
	}))
	assert.ElementsMatch(t, texts, seen)

	require.NoError(t, s.Delete(ctx, machine.MustParse("1LA---")))
	require.NoError(t, s.Delete(ctx, machine.MustParse("1LA---")), "deleting twice is fine")

	seen = seen[:0]
	require.NoError(t, s.List(ctx, func(r Record) error {
		seen = append(seen, r.Machine)
		return nil
	}))
	assert.ElementsMatch(t, []string{"1RA---", "1RB1RB_1LA1LA"}, seen)
}

func TestStore_ListStopsOnError(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()
	for _, text := range []string{"1RA---", "1LA---"} {
		_, err := s.Put(ctx, machine.MustParse(text), decider.Unknown(decider.KindCyclers, decider.ReasonStepBudget, 1), "")
		require.NoError(t, err)
	}

	stop := errors.New("stop")
	calls := 0
	err := s.List(ctx, func(Record) error {
		calls++
		return stop
	})
	assert.ErrorIs(t, err, stop)
	assert.Equal(t, 1, calls)
}

func TestStore_CancelledContext(t *testing.T) {
	s := openStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := s.Put(ctx, machine.MustParse("1RA---"), decider.Unknown(decider.KindCyclers, decider.ReasonStepBudget, 1), "")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestDB_WithTxnRollsBackOnError(t *testing.T) {
	db, err := Open(InMemoryConfig())
	require.NoError(t, err)
	defer db.Close()

	boom := errors.New("boom")
	err = db.WithTxn(context.Background(), func(txn *badger.Txn) error {
		require.NoError(t, txn.Set([]byte("k"), []byte("v")))
		return boom
	})
	assert.ErrorIs(t, err, boom)

	err = db.WithReadTxn(context.Background(), func(txn *badger.Txn) error {
		_, err := txn.Get([]byte("k"))
		return err
	})
	assert.ErrorIs(t, err, badger.ErrKeyNotFound)
}
