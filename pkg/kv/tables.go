// Copyright 2021 The Erigon Authors
// (original work)
// Copyright 2026 The Rockshrew Authors
// (modifications: keyspace schema replaced with the height-versioned
// indexer schema; Ethereum-specific tables removed)
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

// Package kv implements the height-versioned key/value store that backs
// the indexer: every logical key carries a full history of (height ->
// value) snapshots, and views can be answered at any past height.
package kv

import "fmt"

// CurrentFormat is bumped whenever the on-disk table layout changes in a
// way that isn't forward compatible. A store opened against data written
// under a different format fails with ErrReindexRequired.
const CurrentFormat uint64 = 0

// Table names - each one is a distinct MDBX table (not a byte-prefix
// inside a shared table), so MDBX owns ordering within each keyspace.
const (
	// TblConfig holds exactly one record: the serialized Config (format,
	// compacted) under ConfigKey.
	TblConfig = "Config"

	// TblTip holds exactly one record: the full raw bytes of the last
	// committed block (not just its header), under TipKey. Used for
	// crash-recovery sanity checks only.
	TblTip = "Tip"

	// TblHeight holds exactly one record: the last committed height as
	// little-endian u32, under HeightKey.
	TblHeight = "Height"

	// TblState is the versioned user keyspace. Key:
	//   len(key):u32-LE ‖ key ‖ height:u32-BE
	// Value: the bytes the WASM program wrote via __set. The big-endian
	// height suffix makes "greatest height <= h" a reverse scan from h.
	TblState = "State"

	// TblUpdates is the per-height reverse index of touched keys, used by
	// rollback. Key: height:u32-BE ‖ key-id:u32-LE. Value: the original
	// (unprefixed) user key bytes.
	TblUpdates = "Updates"

	// TblHeightToHash maps height -> 32-byte upstream block hash, used by
	// reorg detection. Key: "/__INTERNAL/height-to-hash/" ‖ decimal(height).
	TblHeightToHash = "HeightToHash"
)

// Tables lists every table the store must open or create. App code must
// not reference an MDBX table name that isn't in this list.
var Tables = []string{
	TblConfig,
	TblTip,
	TblHeight,
	TblState,
	TblUpdates,
	TblHeightToHash,
}

// Fixed single-byte keys, kept for parity with the original schema
// (config/tip/height are each a one-row table, so the key value itself
// barely matters, but naming it keeps call sites self-documenting).
var (
	ConfigKey = []byte("C")
	TipKey    = []byte("T")
	HeightKey = []byte("H")
)

const heightToHashPrefix = "/__INTERNAL/height-to-hash/"

// HeightToHashKey renders the height-to-hash lookup key for height h,
// matching the original "/__INTERNAL/height-to-hash/" ‖ decimal(height)
// layout so operators inspecting the raw table with an external dump
// tool see the familiar string keys.
func HeightToHashKey(h uint32) []byte {
	return []byte(fmt.Sprintf("%s%d", heightToHashPrefix, h))
}
