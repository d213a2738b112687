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
	"bytes"
	"context"
	"sort"
	"sync"
)

// memEnv is a tiny in-memory stand-in for mdbxEnv, good enough to exercise
// Store's versioning/rollback/commit logic in tests without linking the
// cgo-backed engine. It gives read transactions a point-in-time snapshot
// and serializes write transactions, matching the guarantees Store
// actually depends on.
type memEnv struct {
	mu     sync.Mutex
	tables map[string]map[string][]byte
}

func newMemEnv() *memEnv {
	tables := make(map[string]map[string][]byte, len(Tables))
	for _, t := range Tables {
		tables[t] = make(map[string][]byte)
	}
	return &memEnv{tables: tables}
}

func (e *memEnv) snapshot() map[string]map[string][]byte {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make(map[string]map[string][]byte, len(e.tables))
	for t, m := range e.tables {
		cp := make(map[string][]byte, len(m))
		for k, v := range m {
			cp[k] = v
		}
		out[t] = cp
	}
	return out
}

func (e *memEnv) BeginRo(ctx context.Context) (Tx, error) {
	return &memTx{env: e, tables: e.snapshot()}, nil
}

func (e *memEnv) BeginRw(ctx context.Context) (RwTx, error) {
	e.mu.Lock()
	tables := make(map[string]map[string][]byte, len(e.tables))
	for t, m := range e.tables {
		cp := make(map[string][]byte, len(m))
		for k, v := range m {
			cp[k] = v
		}
		tables[t] = cp
	}
	return &memTx{env: e, tables: tables, writable: true, held: true}, nil
}

func (e *memEnv) Sync() error { return nil }
func (e *memEnv) Close() error { return nil }

type memTx struct {
	env      *memEnv
	tables   map[string]map[string][]byte
	writable bool
	held     bool
}

func (t *memTx) Get(table string, key []byte) ([]byte, bool, error) {
	v, ok := t.tables[table][string(key)]
	return v, ok, nil
}

func (t *memTx) Put(table string, key, val []byte) error {
	t.tables[table][string(key)] = append([]byte(nil), val...)
	return nil
}

func (t *memTx) Delete(table string, key []byte) error {
	delete(t.tables[table], string(key))
	return nil
}

func (t *memTx) sortedKeys(table string) []string {
	ks := make([]string, 0, len(t.tables[table]))
	for k := range t.tables[table] {
		ks = append(ks, k)
	}
	sort.Strings(ks)
	return ks
}

func (t *memTx) SeekLast(table string, prefix, seek []byte) ([]byte, []byte, bool, error) {
	var best string
	found := false
	for _, k := range t.sortedKeys(table) {
		if k > string(seek) {
			break
		}
		if !bytes.HasPrefix([]byte(k), prefix) {
			continue
		}
		best = k
		found = true
	}
	if !found {
		return nil, nil, false, nil
	}
	return []byte(best), t.tables[table][best], true, nil
}

func (t *memTx) ForPrefix(table string, prefix []byte, walker func(k, v []byte) error) error {
	started := false
	for _, k := range t.sortedKeys(table) {
		if !bytes.HasPrefix([]byte(k), prefix) {
			if started {
				// keys sharing a prefix are contiguous in sorted order;
				// once we've left the run we're done, mirroring the real
				// cursor's early stop at the first differing prefix.
				break
			}
			continue
		}
		started = true
		if err := walker([]byte(k), t.tables[table][k]); err != nil {
			return err
		}
	}
	return nil
}

func (t *memTx) Commit() error {
	if t.writable && t.held {
		t.env.tables = t.tables
		t.env.mu.Unlock()
		t.held = false
	}
	return nil
}

func (t *memTx) Rollback() {
	if t.writable && t.held {
		t.env.mu.Unlock()
		t.held = false
	}
}
