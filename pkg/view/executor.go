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

// Package view implements the read-only query surface the RPC server
// calls into: view (run a named export against committed state) and
// preview (run an uncommitted block, then view against the result,
// without ever touching the store).
package view

import (
	"context"
	"fmt"

	"github.com/rockshrew-go/rockshrew/pkg/rerr"
	"github.com/rockshrew-go/rockshrew/pkg/wasmhost"
)

// Runner is the subset of *wasmhost.Host the executor depends on.
type Runner interface {
	Run(ctx context.Context, exportName string, rc *wasmhost.RunContext) ([]byte, error)
}

// Executor serves view/preview calls. It holds no state of its own
// beyond its references to the host and store: every call builds a
// fresh RunContext, so concurrent callers only ever contend on the
// host's internal mutex.
type Executor struct {
	host  Runner
	store wasmhost.Reader
}

func NewExecutor(host Runner, store wasmhost.Reader) *Executor {
	return &Executor{host: host, store: store}
}

// View runs name(input) in view mode at height, reading through to the
// store for anything not already answered by an overlay. Any __set the
// export issues is discarded with the RunContext once the call returns.
func (e *Executor) View(ctx context.Context, name string, input []byte, height uint32) ([]byte, error) {
	rc := wasmhost.NewViewContext(e.store, height, input, nil)
	out, err := e.host.Run(ctx, name, rc)
	if err != nil {
		return nil, fmt.Errorf("view %s at height %d: %w", name, height, err)
	}
	return out, nil
}

// Preview runs _start over overlayBlock in preview mode at height+1,
// capturing every write into an in-memory overlay, then runs
// name(input) in view mode at height+1 with that overlay consulted
// before the store. The store is never mutated; the overlay is
// discarded once Preview returns.
func (e *Executor) Preview(ctx context.Context, overlayBlock []byte, name string, input []byte, height uint32) ([]byte, error) {
	previewHeight := height + 1

	stage := wasmhost.NewRunContext(wasmhost.ModePreview, e.store, previewHeight, overlayBlock)
	if _, err := e.host.Run(ctx, "_start", stage); err != nil {
		return nil, fmt.Errorf("%w: preview block at height %d: %v", rerr.ErrBadOverlay, previewHeight, err)
	}

	rc := wasmhost.NewViewContext(e.store, previewHeight, input, stage.Overlay)
	out, err := e.host.Run(ctx, name, rc)
	if err != nil {
		return nil, fmt.Errorf("preview view %s at height %d: %w", name, previewHeight, err)
	}
	return out, nil
}
