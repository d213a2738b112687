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

// Package watermark holds CURRENT_HEIGHT, the process-wide observable
// tip every "latest"-height view reads. A bare sync/atomic word is the
// whole job here; no third-party atomics/counter library in the pack
// does anything a single atomic store/load doesn't already do (see DESIGN.md).
package watermark

import "sync/atomic"

// Watermark is a process-wide height that updates only after a block's
// commit is durable (release) and is read by views resolving "latest"
// (acquire).
type Watermark struct {
	v atomic.Uint32
	// set distinguishes "never committed anything" from "committed
	// height 0", since atomic.Uint32's zero value is indistinguishable
	// from an explicit Store(0).
	set atomic.Bool
}

// Advance publishes h as the new watermark. Callers must only call this
// after the corresponding commit is durable in the store.
func (w *Watermark) Advance(h uint32) {
	w.v.Store(h)
	w.set.Store(true)
}

// Get returns the current watermark and whether anything has ever been
// committed.
func (w *Watermark) Get() (uint32, bool) {
	return w.v.Load(), w.set.Load()
}
