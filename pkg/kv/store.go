// Copyright 2026 The Rockshrew Authors
// This file is part of rockshrew-go.
//
// rockshrew-go is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// rockshrew-go is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with rockshrew-go. If not, see <http://www.gnu.org/licenses/>.

package kv

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/gofrs/flock"

	"github.com/rockshrew-go/rockshrew/pkg/rerr"
	"github.com/rockshrew-go/rockshrew/pkg/rlog"
)

// Mode selects whether a Store owns the on-disk files for writing
// (Primary) or follows another process's files read-only (Secondary),
// mirroring spec.md §4.1's open(path, log_dir?, mode) contract.
type Mode int

const (
	Primary Mode = iota
	Secondary
)

// CatchUpInterval is how often a Secondary-mode Store begins a fresh read
// transaction to observe the primary's latest commits. MDBX readers
// already see the newest committed snapshot the instant they begin a
// transaction; this ticker exists only so callers polling GetLatest get
// the spec's "~1s" observable cadence instead of depending on them to
// start a new transaction themselves.
const CatchUpInterval = time.Second

// Store is the height-versioned key/value store described by spec.md
// §4.1. All public methods are safe for concurrent use; writes serialize
// naturally because MDBX allows only one RwTx at a time.
type Store struct {
	env  Env
	mode Mode
	log  rlog.Logger

	lock *flock.Flock // primary-mode advisory lock; nil in secondary mode

	mu       sync.Mutex // guards height, orders CommitBlock/RollbackTo
	height   uint32
	haveAny  bool
	stopPoll chan struct{}
}

// Open opens or creates the store at path. Primary mode takes an
// advisory process lock and may create missing tables; secondary mode
// opens the same tables read-only and starts a background catch-up
// ticker. A format mismatch in the on-disk config record (primary mode
// only — secondary never writes one) fails with ErrReindexRequired.
func Open(path string, mode Mode, log rlog.Logger) (*Store, error) {
	var lock *flock.Flock
	if mode == Primary {
		lock = flock.New(filepath.Join(path, "LOCK"))
		locked, err := lock.TryLock()
		if err != nil {
			return nil, fmt.Errorf("acquire store lock: %w", err)
		}
		if !locked {
			return nil, fmt.Errorf("store at %s is already open for writing", path)
		}
	}

	env, err := openMdbxEnv(path, mode == Secondary)
	if err != nil {
		if lock != nil {
			lock.Unlock()
		}
		return nil, err
	}

	s, err := newStore(env, mode, log)
	if err != nil {
		env.Close()
		if lock != nil {
			lock.Unlock()
		}
		return nil, err
	}
	s.lock = lock
	return s, nil
}

// newStore wires an already-open Env into a Store. Split out from Open so
// store_test.go can exercise the versioning/rollback logic against an
// in-memory fake Env instead of the cgo-backed MDBX engine.
func newStore(env Env, mode Mode, log rlog.Logger) (*Store, error) {
	s := &Store{env: env, mode: mode, log: log}

	if mode == Primary {
		if err := s.initPrimary(); err != nil {
			return nil, err
		}
	} else {
		if err := s.refreshHeight(context.Background()); err != nil {
			return nil, err
		}
		s.stopPoll = make(chan struct{})
		go s.pollLoop()
	}

	return s, nil
}

func (s *Store) initPrimary() error {
	tx, err := s.env.BeginRw(context.Background())
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := ensureConfig(tx); err != nil {
		return err
	}
	h, ok, err := loadHeight(tx)
	if err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	s.height, s.haveAny = h, ok
	return nil
}

func (s *Store) pollLoop() {
	ticker := time.NewTicker(CatchUpInterval)
	defer ticker.Stop()
	for {
		select {
		case <-s.stopPoll:
			return
		case <-ticker.C:
			if err := s.refreshHeight(context.Background()); err != nil && s.log != nil {
				s.log.Warnw("secondary catch-up failed", "error", err)
			}
		}
	}
}

func (s *Store) refreshHeight(ctx context.Context) error {
	tx, err := s.env.BeginRo(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	h, ok, err := loadHeight(tx)
	if err != nil {
		return err
	}
	s.mu.Lock()
	if ok {
		s.height, s.haveAny = h, true
	}
	s.mu.Unlock()
	return nil
}

func loadHeight(tx Getter) (uint32, bool, error) {
	raw, ok, err := tx.Get(TblHeight, HeightKey)
	if err != nil || !ok {
		return 0, ok, err
	}
	h, ok := decodeHeight(raw)
	if !ok {
		return 0, false, fmt.Errorf("corrupt height record (len=%d)", len(raw))
	}
	return h, true, nil
}

// Height returns the last committed height, the in-memory cache kept
// current by CommitBlock/RollbackTo (primary mode) or the catch-up
// ticker (secondary mode).
func (s *Store) Height() (uint32, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.height, s.haveAny
}

// GetAt returns the value written at the greatest height <= height for
// key, or ok=false if none exists.
func (s *Store) GetAt(ctx context.Context, key []byte, height uint32) ([]byte, bool, error) {
	tx, err := s.env.BeginRo(ctx)
	if err != nil {
		return nil, false, err
	}
	defer tx.Rollback()
	return getAtTx(tx, key, height)
}

func getAtTx(tx Getter, key []byte, height uint32) ([]byte, bool, error) {
	_, v, ok, err := tx.SeekLast(TblState, statePrefix(key), stateKey(key, height))
	if err != nil || !ok {
		return nil, false, err
	}
	return v, true, nil
}

// GetLatest is get_at(key, H).
func (s *Store) GetLatest(ctx context.Context, key []byte) ([]byte, bool, error) {
	h, ok := s.Height()
	if !ok {
		return nil, false, nil
	}
	return s.GetAt(ctx, key, h)
}

// GetBlockHash returns the upstream hash recorded for height, or
// rerr.ErrUnknownHeight if none was ever recorded.
func (s *Store) GetBlockHash(ctx context.Context, height uint32) ([]byte, error) {
	tx, err := s.env.BeginRo(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()
	v, ok, err := tx.Get(TblHeightToHash, HeightToHashKey(height))
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, rerr.ErrUnknownHeight
	}
	return v, nil
}

// WriteBatch accumulates the key/value writes a single block's WASM
// program run stages via __set, for atomic application by CommitBlock.
// order preserves insertion order so TblUpdates rows get stable,
// densely packed key-ids.
type WriteBatch struct {
	Height uint32
	order  [][]byte
	values map[string][]byte
}

// NewWriteBatch starts an empty batch for the block being processed at
// height.
func NewWriteBatch(height uint32) *WriteBatch {
	return &WriteBatch{Height: height, values: make(map[string][]byte)}
}

// Set stages a write; last write for a given key within the batch wins,
// matching a WASM program calling __set twice for the same key in one
// run.
func (b *WriteBatch) Set(key, val []byte) {
	sk := string(key)
	if _, exists := b.values[sk]; !exists {
		b.order = append(b.order, append([]byte(nil), key...))
	}
	b.values[sk] = append([]byte(nil), val...)
}

func (b *WriteBatch) Len() int { return len(b.order) }

// CommitBlock atomically applies batch's writes, the updates reverse
// index, the height-to-hash record, the tip header, and the height
// advancement for a single committed block, per spec.md §4.1's
// commit_block contract. tipHeader is the raw block bytes committed at
// this height, recorded verbatim under TblTip for the crash-recovery
// sanity check described in spec.md §3.2 — it is advisory only and is
// not itself read by any other store algorithm.
func (s *Store) CommitBlock(ctx context.Context, hash []byte, tipHeader []byte, batch *WriteBatch) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.mode != Primary {
		return fmt.Errorf("%w: CommitBlock called on a non-primary store", rerr.ErrStoreError)
	}

	tx, err := s.env.BeginRw(ctx)
	if err != nil {
		return fmt.Errorf("%w: %v", rerr.ErrStoreError, err)
	}
	defer tx.Rollback()

	for i, key := range batch.order {
		val := batch.values[string(key)]
		if err := tx.Put(TblState, stateKey(key, batch.Height), val); err != nil {
			return fmt.Errorf("%w: put state: %v", rerr.ErrStoreError, err)
		}
		if err := tx.Put(TblUpdates, updatesKey(batch.Height, uint32(i)), key); err != nil {
			return fmt.Errorf("%w: put updates: %v", rerr.ErrStoreError, err)
		}
	}
	if err := tx.Put(TblHeightToHash, HeightToHashKey(batch.Height), hash); err != nil {
		return fmt.Errorf("%w: put height-to-hash: %v", rerr.ErrStoreError, err)
	}
	if err := tx.Put(TblTip, TipKey, tipHeader); err != nil {
		return fmt.Errorf("%w: put tip: %v", rerr.ErrStoreError, err)
	}
	if err := tx.Put(TblHeight, HeightKey, encodeHeight(batch.Height)); err != nil {
		return fmt.Errorf("%w: put height: %v", rerr.ErrStoreError, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: commit: %v", rerr.ErrStoreError, err)
	}

	s.height, s.haveAny = batch.Height, true
	return nil
}

// Tip returns the raw block bytes recorded at the last commit, for
// crash-recovery sanity checks against the separately recorded height
// (spec.md §3.2). Rollback does not rewrite this record — it is
// advisory only, overwritten on the next forward commit, and callers
// must not treat it as authoritative chain state.
func (s *Store) Tip(ctx context.Context) ([]byte, bool, error) {
	tx, err := s.env.BeginRo(ctx)
	if err != nil {
		return nil, false, err
	}
	defer tx.Rollback()
	v, ok, err := tx.Get(TblTip, TipKey)
	if err != nil {
		return nil, false, err
	}
	return v, ok, nil
}

// RollbackTo scans TblUpdates upward from h+1, deleting every state
// version and updates row it recorded, and every height-to-hash entry for
// the rolled-back heights, in one atomic write batch — so the store is
// never observed in a state that straddles old and new tips.
func (s *Store) RollbackTo(ctx context.Context, h uint32) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.mode != Primary {
		return fmt.Errorf("%w: RollbackTo called on a non-primary store", rerr.ErrStoreError)
	}
	if s.haveAny && h >= s.height {
		return nil
	}

	tx, err := s.env.BeginRw(ctx)
	if err != nil {
		return fmt.Errorf("%w: %v", rerr.ErrStoreError, err)
	}
	defer tx.Rollback()

	var toDelete [][]byte
	var touchedHeights []uint32
	upper := s.height
	for hp := h + 1; hp <= upper; hp++ {
		heightErr := tx.ForPrefix(TblUpdates, updatesHeightPrefix(hp), func(k, userKey []byte) error {
			toDelete = append(toDelete, append([]byte(nil), k...))
			toDelete = append(toDelete, stateKey(userKey, hp))
			return nil
		})
		if heightErr != nil {
			return fmt.Errorf("%w: scan updates: %v", rerr.ErrStoreError, heightErr)
		}
		touchedHeights = append(touchedHeights, hp)
	}

	for i := 0; i < len(toDelete); i += 2 {
		updatesK, stateK := toDelete[i], toDelete[i+1]
		if err := tx.Delete(TblState, stateK); err != nil {
			return fmt.Errorf("%w: delete state: %v", rerr.ErrStoreError, err)
		}
		if err := tx.Delete(TblUpdates, updatesK); err != nil {
			return fmt.Errorf("%w: delete updates: %v", rerr.ErrStoreError, err)
		}
	}
	for _, hp := range touchedHeights {
		if err := tx.Delete(TblHeightToHash, HeightToHashKey(hp)); err != nil {
			return fmt.Errorf("%w: delete height-to-hash: %v", rerr.ErrStoreError, err)
		}
	}
	if err := tx.Put(TblHeight, HeightKey, encodeHeight(h)); err != nil {
		return fmt.Errorf("%w: put height: %v", rerr.ErrStoreError, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: commit: %v", rerr.ErrStoreError, err)
	}

	s.height, s.haveAny = h, true
	return nil
}

// Flush is idempotent: the first call flips the config record's
// compacted flag and forces durable sync; later calls are no-ops beyond
// the sync, matching "compacted, never rewritten thereafter except on
// format migration".
func (s *Store) Flush(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.mode != Primary {
		return s.env.Sync()
	}

	tx, err := s.env.BeginRw(ctx)
	if err != nil {
		return fmt.Errorf("%w: %v", rerr.ErrStoreError, err)
	}
	defer tx.Rollback()

	cfg, ok, err := loadConfig(tx)
	if err != nil {
		return fmt.Errorf("%w: %v", rerr.ErrStoreError, err)
	}
	if ok && !cfg.Compacted {
		cfg.Compacted = true
		if err := putConfig(tx, cfg); err != nil {
			return fmt.Errorf("%w: %v", rerr.ErrStoreError, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("%w: commit: %v", rerr.ErrStoreError, err)
		}
	}
	return s.env.Sync()
}

// Close releases the store's engine handle and, in primary mode, its
// advisory process lock.
func (s *Store) Close() error {
	if s.stopPoll != nil {
		close(s.stopPoll)
	}
	err := s.env.Close()
	if s.lock != nil {
		_ = s.lock.Unlock()
	}
	return err
}

// StateVersion is one decoded TblState row, for the debug inspection
// surface below.
type StateVersion struct {
	Key    []byte
	Height uint32
}

// UpdateEntry is one decoded TblUpdates row.
type UpdateEntry struct {
	Height uint32
	KeyID  uint32
	Key    []byte
}

// InspectStateVersions walks every recorded version of every key,
// decoding each physical TblState row back into (key, height) with
// splitStateKey. It exists for operator tooling — diagnosing a
// suspiciously large keyspace or confirming a specific key's version
// history — not for any indexing or view codepath, so it always takes
// its own read transaction rather than threading one through.
func (s *Store) InspectStateVersions(ctx context.Context, limit int) ([]StateVersion, error) {
	tx, err := s.env.BeginRo(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	var out []StateVersion
	err = tx.ForPrefix(TblState, nil, func(k, _ []byte) error {
		if limit > 0 && len(out) >= limit {
			return errStopInspect
		}
		userKey, height, ok := splitStateKey(k)
		if !ok {
			return nil
		}
		out = append(out, StateVersion{Key: append([]byte(nil), userKey...), Height: height})
		return nil
	})
	if err != nil && err != errStopInspect {
		return nil, err
	}
	return out, nil
}

// InspectUpdates walks every TblUpdates row touched at height, decoding
// each physical key back into (height, keyID) with splitUpdatesKey. Used
// by operator tooling to confirm what RollbackTo would delete for a
// given height before actually calling it.
func (s *Store) InspectUpdates(ctx context.Context, height uint32) ([]UpdateEntry, error) {
	tx, err := s.env.BeginRo(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	var out []UpdateEntry
	err = tx.ForPrefix(TblUpdates, updatesHeightPrefix(height), func(k, userKey []byte) error {
		h, keyID, ok := splitUpdatesKey(k)
		if !ok {
			return nil
		}
		out = append(out, UpdateEntry{Height: h, KeyID: keyID, Key: append([]byte(nil), userKey...)})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// errStopInspect is a sentinel used only to break out of ForPrefix's
// walker once InspectStateVersions hits its limit.
var errStopInspect = fmt.Errorf("inspect limit reached")
