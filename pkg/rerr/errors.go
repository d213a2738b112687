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

// Package rerr centralizes the error kinds from which the rest of the
// system makes retry-vs-abort decisions. Call sites wrap these with
// fmt.Errorf("...: %w", ...) and compare with errors.Is.
package rerr

import "errors"

var (
	// ErrUpstreamUnavailable is returned when the block source client
	// exhausts its retry budget talking to the daemon. The fetcher logs
	// and keeps retrying at the outer loop; it is never fatal to the
	// process.
	ErrUpstreamUnavailable = errors.New("upstream unavailable: retries exhausted")

	// ErrStoreError wraps an I/O failure from the embedded KV engine.
	// Fatal to the processor task; the supervisor terminates the process.
	ErrStoreError = errors.New("store error")

	// ErrRuntimeTrap wraps a WASM program trap that survived a
	// memory-refresh retry. The processor halts on the offending height
	// rather than skipping it.
	ErrRuntimeTrap = errors.New("wasm runtime trap")

	// ErrInvalidParams is an RPC-layer error: malformed or missing params.
	ErrInvalidParams = errors.New("invalid params")

	// ErrMethodNotFound is an RPC-layer error: unknown method name.
	ErrMethodNotFound = errors.New("method not found")

	// ErrReindexRequired means the on-disk config record's format doesn't
	// match kv.CurrentFormat; the store refuses to open.
	ErrReindexRequired = errors.New("reindex required: incompatible on-disk format")

	// ErrBadOverlay means preview's overlay block failed to decode or ran
	// only partially before trapping; the overlay is discarded.
	ErrBadOverlay = errors.New("bad overlay block")

	// ErrUnknownHeight is returned by GetBlockHash when no hash is on
	// record for the requested height.
	ErrUnknownHeight = errors.New("unknown height")
)
