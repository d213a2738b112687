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
	"fmt"

	"github.com/erigontech/mdbx-go/mdbx"
)

// mdbxEnv adapts *mdbx.Env to the Env interface. dbis caches the table
// handles opened at startup so transactions never pay OpenDBI's lookup
// cost per call.
type mdbxEnv struct {
	env  *mdbx.Env
	dbis map[string]mdbx.DBI
}

// openMdbxEnv opens (creating if absent) an MDBX environment at path with
// every table in Tables, matching the "opening creates missing keyspaces"
// contract. readOnly corresponds to secondary-mode: a read-only
// environment that only ever observes committed snapshots, never writes.
func openMdbxEnv(path string, readOnly bool) (*mdbxEnv, error) {
	env, err := mdbx.NewEnv()
	if err != nil {
		return nil, fmt.Errorf("mdbx new env: %w", err)
	}
	if err := env.SetMaxDBs(len(Tables)); err != nil {
		return nil, fmt.Errorf("mdbx set max dbs: %w", err)
	}
	flags := uint(mdbx.Coalesce | mdbx.LifoReclaim)
	if readOnly {
		flags |= mdbx.Readonly
	}
	if err := env.Open(path, flags, 0o644); err != nil {
		return nil, fmt.Errorf("mdbx open %s: %w", path, err)
	}

	me := &mdbxEnv{env: env, dbis: make(map[string]mdbx.DBI, len(Tables))}
	if readOnly {
		// Secondary handles never create tables; the primary must have
		// already done so on its own first open.
		err = env.View(func(txn *mdbx.Txn) error {
			for _, tbl := range Tables {
				dbi, err := txn.OpenDBI(tbl, 0, nil, nil)
				if err != nil {
					return fmt.Errorf("open table %s: %w", tbl, err)
				}
				me.dbis[tbl] = dbi
			}
			return nil
		})
	} else {
		err = env.Update(func(txn *mdbx.Txn) error {
			for _, tbl := range Tables {
				dbi, err := txn.OpenDBI(tbl, mdbx.Create, nil, nil)
				if err != nil {
					return fmt.Errorf("create table %s: %w", tbl, err)
				}
				me.dbis[tbl] = dbi
			}
			return nil
		})
	}
	if err != nil {
		env.Close()
		return nil, err
	}
	return me, nil
}

func (e *mdbxEnv) dbi(table string) (mdbx.DBI, error) {
	dbi, ok := e.dbis[table]
	if !ok {
		return 0, fmt.Errorf("unknown table %q", table)
	}
	return dbi, nil
}

func (e *mdbxEnv) BeginRo(ctx context.Context) (Tx, error) {
	txn, err := e.env.BeginTxn(nil, mdbx.Readonly)
	if err != nil {
		return nil, err
	}
	return &mdbxTx{env: e, txn: txn}, nil
}

func (e *mdbxEnv) BeginRw(ctx context.Context) (RwTx, error) {
	txn, err := e.env.BeginTxn(nil, 0)
	if err != nil {
		return nil, err
	}
	return &mdbxTx{env: e, txn: txn}, nil
}

func (e *mdbxEnv) Sync() error {
	return e.env.Sync(true, false)
}

func (e *mdbxEnv) Close() error {
	e.env.Close()
	return nil
}

// mdbxTx implements both Tx and RwTx; RwTx is just Tx plus the Putter
// methods, so one struct serves both, same as erigon-lib/kv's mdbxTx.
type mdbxTx struct {
	env *mdbxEnv
	txn *mdbx.Txn
}

func (t *mdbxTx) Commit() error {
	_, err := t.txn.Commit()
	return err
}

func (t *mdbxTx) Rollback() {
	t.txn.Abort()
}

func (t *mdbxTx) Get(table string, key []byte) ([]byte, bool, error) {
	dbi, err := t.env.dbi(table)
	if err != nil {
		return nil, false, err
	}
	val, err := t.txn.Get(dbi, key)
	if mdbx.IsNotFound(err) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return val, true, nil
}

func (t *mdbxTx) Put(table string, key, val []byte) error {
	dbi, err := t.env.dbi(table)
	if err != nil {
		return err
	}
	return t.txn.Put(dbi, key, val, 0)
}

func (t *mdbxTx) Delete(table string, key []byte) error {
	dbi, err := t.env.dbi(table)
	if err != nil {
		return err
	}
	err = t.txn.Del(dbi, key, nil)
	if mdbx.IsNotFound(err) {
		return nil
	}
	return err
}

// SeekLast positions a cursor at seek (or the nearest key greater than
// it) and walks backward until it finds a key within prefix, implementing
// the "greatest height <= target" read pattern §4.1 specifies for
// TblState point-in-time reads.
func (t *mdbxTx) SeekLast(table string, prefix, seek []byte) ([]byte, []byte, bool, error) {
	dbi, err := t.env.dbi(table)
	if err != nil {
		return nil, nil, false, err
	}
	cur, err := t.txn.OpenCursor(dbi)
	if err != nil {
		return nil, nil, false, err
	}
	defer cur.Close()

	k, v, err := cur.Get(seek, nil, mdbx.SetRange)
	switch {
	case mdbx.IsNotFound(err):
		// Every key in the table sorts before seek: the tail of the
		// table is the candidate, if it shares the prefix.
		k, v, err = cur.Get(nil, nil, mdbx.Last)
		if mdbx.IsNotFound(err) {
			return nil, nil, false, nil
		}
		if err != nil {
			return nil, nil, false, err
		}
	case err != nil:
		return nil, nil, false, err
	default:
		// cursor landed on the first key >= seek; if it's an exact
		// match we're done, otherwise step back one to get < seek.
		if !bytes.Equal(k, seek) {
			k, v, err = cur.Get(nil, nil, mdbx.Prev)
			if mdbx.IsNotFound(err) {
				return nil, nil, false, nil
			}
			if err != nil {
				return nil, nil, false, err
			}
		}
	}
	if !bytes.HasPrefix(k, prefix) {
		return nil, nil, false, nil
	}
	return append([]byte(nil), k...), append([]byte(nil), v...), true, nil
}

func (t *mdbxTx) ForPrefix(table string, prefix []byte, walker func(k, v []byte) error) error {
	dbi, err := t.env.dbi(table)
	if err != nil {
		return err
	}
	cur, err := t.txn.OpenCursor(dbi)
	if err != nil {
		return err
	}
	defer cur.Close()

	for k, v, err := cur.Get(prefix, nil, mdbx.SetRange); ; k, v, err = cur.Get(nil, nil, mdbx.Next) {
		if mdbx.IsNotFound(err) {
			return nil
		}
		if err != nil {
			return err
		}
		if !bytes.HasPrefix(k, prefix) {
			return nil
		}
		if err := walker(k, v); err != nil {
			return err
		}
	}
}
