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

import "context"

// Getter is the read side of a transaction, trimmed from erigon-lib/kv's
// Getter/Tx interfaces down to what the versioned store actually needs:
// exact lookups and prefix-bounded cursor walks, nothing from the
// temporal/DupSort/stream surface.
type Getter interface {
	// Get returns the value stored under table/key, or (nil, false) if
	// absent.
	Get(table string, key []byte) (val []byte, ok bool, err error)

	// SeekLast positions at the greatest key <= seek that shares prefix
	// with it, returning ok=false once the cursor walks outside prefix
	// or off the front of the table.
	SeekLast(table string, prefix, seek []byte) (key, val []byte, ok bool, err error)

	// ForPrefix calls walker for every key in table with the given
	// prefix, in ascending key order, stopping early if walker returns
	// an error.
	ForPrefix(table string, prefix []byte, walker func(k, v []byte) error) error
}

// Putter is the write side of a transaction.
type Putter interface {
	Put(table string, key, val []byte) error
	Delete(table string, key []byte) error
}

// Tx is a read-only transaction: a consistent snapshot of every table as
// of the moment it began.
type Tx interface {
	Getter
	Commit() error
	Rollback()
}

// RwTx is a read-write transaction. Only the primary-mode Store ever
// opens one; MDBX itself also refuses a second concurrent writer.
type RwTx interface {
	Tx
	Putter
}

// Env is the minimal subset of an opened MDBX environment the Store
// depends on. mdbxEnv (mdbx.go) is the only implementation; it exists as
// an interface so store_test.go can substitute an in-memory fake without
// touching the cgo-backed engine.
type Env interface {
	BeginRo(ctx context.Context) (Tx, error)
	BeginRw(ctx context.Context) (RwTx, error)
	// Sync forces the environment's dirty pages to durable storage.
	Sync() error
	Close() error
}
