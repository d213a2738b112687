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

package pipeline

import (
	"context"
	"fmt"

	"github.com/rockshrew-go/rockshrew/pkg/kv"
	"github.com/rockshrew-go/rockshrew/pkg/rerr"
	"github.com/rockshrew-go/rockshrew/pkg/rlog"
	"github.com/rockshrew-go/rockshrew/pkg/wasmhost"
)

// Store is the subset of *kv.Store the processor depends on. GetAt is
// needed to hand the WASM host a real store to fall back to when __get
// is called during index-mode processing (a block's program may read
// state the program itself didn't write this run).
type Store interface {
	CommitBlock(ctx context.Context, hash []byte, tipHeader []byte, batch *kv.WriteBatch) error
	RollbackTo(ctx context.Context, h uint32) error
	GetAt(ctx context.Context, key []byte, height uint32) ([]byte, bool, error)
}

// Runner is the subset of *wasmhost.Host the processor depends on.
type Runner interface {
	Run(ctx context.Context, exportName string, rc *wasmhost.RunContext) ([]byte, error)
}

// Processor is the consumer half of the pipeline: it applies messages in
// strict height order, running the WASM program and committing its
// writes for each block.
type Processor struct {
	store Store
	host  Runner
	in    <-chan Message
	out   chan<- Result
	log   rlog.Logger
}

func NewProcessor(store Store, host Runner, in <-chan Message, out chan<- Result, log rlog.Logger) *Processor {
	return &Processor{store: store, host: host, in: in, out: out, log: log}
}

// Run dequeues messages until in is closed or ctx is canceled. A
// height-ordering violation is a fatal invariant violation: the
// single-fetcher design makes it impossible in practice, so this path
// only exists to fail loudly rather than silently corrupt the store.
func (p *Processor) Run(ctx context.Context, expectedNext uint32) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-p.in:
			if !ok {
				return nil
			}
			next, err := p.handle(ctx, msg, expectedNext)
			if err != nil {
				p.result(ctx, Result{Kind: ResultError, Height: msg.Height, Err: err})
				return err
			}
			expectedNext = next
		}
	}
}

func (p *Processor) handle(ctx context.Context, msg Message, expectedNext uint32) (uint32, error) {
	switch msg.Kind {
	case KindRollback:
		if err := p.store.RollbackTo(ctx, msg.Height); err != nil {
			return expectedNext, fmt.Errorf("rollback to %d: %w", msg.Height, err)
		}
		return msg.Height + 1, nil

	case KindError:
		if p.log != nil {
			p.log.Warnw("fetcher reported error, retrying fetch", "height", msg.Height, "error", msg.Err)
		}
		return expectedNext, nil

	case KindBlock:
		if msg.Height != expectedNext {
			return expectedNext, fmt.Errorf("height ordering violated: expected %d, got %d", expectedNext, msg.Height)
		}
		if err := p.processBlock(ctx, msg); err != nil {
			return expectedNext, err
		}
		p.result(ctx, Result{Kind: ResultSuccess, Height: msg.Height})
		return msg.Height + 1, nil

	default:
		return expectedNext, fmt.Errorf("unknown message kind %d", msg.Kind)
	}
}

func (p *Processor) processBlock(ctx context.Context, msg Message) error {
	rc := wasmhost.NewRunContext(wasmhost.ModeIndex, p.store, msg.Height, msg.Block)
	if _, err := p.host.Run(ctx, "_start", rc); err != nil {
		return fmt.Errorf("%w: height %d: %v", rerr.ErrRuntimeTrap, msg.Height, err)
	}

	batch := kv.NewWriteBatch(msg.Height)
	rc.Flush(batch)
	if err := p.store.CommitBlock(ctx, msg.Hash, msg.Block, batch); err != nil {
		return fmt.Errorf("%w: height %d: %v", rerr.ErrStoreError, msg.Height, err)
	}
	return nil
}

func (p *Processor) result(ctx context.Context, r Result) {
	select {
	case p.out <- r:
	case <-ctx.Done():
	}
}
