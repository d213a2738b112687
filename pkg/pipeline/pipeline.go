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

// Package pipeline implements the reorg-aware two-stage ingestion
// pipeline: a fetcher that pulls blocks (and detects reorgs) concurrently
// with a processor that runs the WASM program and commits results in
// strict height order.
package pipeline

import "fmt"

// Kind discriminates the messages the fetcher sends the processor.
type Kind int

const (
	// KindBlock carries a fetched block ready to be processed.
	KindBlock Kind = iota
	// KindRollback tells the processor to roll the store back to Height
	// before any further blocks are applied, per a detected reorg.
	KindRollback
	// KindError reports a fetch failure at Height; after sending it the
	// fetcher sleeps 1s before retrying (a failed tip wait is retried
	// without that sleep).
	KindError
)

// Message is the fetcher->processor channel element.
type Message struct {
	Kind   Kind
	Height uint32
	Block  []byte
	Hash   []byte
	Err    error
}

func (m Message) String() string {
	switch m.Kind {
	case KindBlock:
		return fmt.Sprintf("Block(%d)", m.Height)
	case KindRollback:
		return fmt.Sprintf("Rollback(%d)", m.Height)
	default:
		return fmt.Sprintf("Error(%d, %v)", m.Height, m.Err)
	}
}

// ResultKind discriminates the processor->supervisor channel element.
type ResultKind int

const (
	ResultSuccess ResultKind = iota
	ResultError
)

// Result is the processor->supervisor channel element.
type Result struct {
	Kind   ResultKind
	Height uint32
	Err    error
}

// reorgLookback is the "trust depth": a height h < tip - reorgLookback
// is fetched without any backward hash walk, per spec.md §4.4. A walk
// started nearer the tip is not bounded by it and may descend to 0.
const reorgLookback = 6

func minU32(a, b uint32) uint32 {
	if a < b {
		return a
	}
	return b
}
