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
	"bytes"
	"context"
	"errors"
	"time"

	"github.com/rockshrew-go/rockshrew/pkg/rlog"
)

// BlockSource is the subset of rpcclient.Client the fetcher depends on.
type BlockSource interface {
	GetBlockCount(ctx context.Context) (uint32, error)
	GetBlockHash(ctx context.Context, height uint32) ([]byte, error)
	GetBlock(ctx context.Context, hash []byte) ([]byte, error)
	WaitForHeight(ctx context.Context, h uint32) error
}

// HashRecorder is the subset of kv.Store the fetcher depends on: it reads
// previously recorded hashes for reorg_scan. The fetcher does not write
// hashes itself; a block's hash is recorded only when the processor's
// CommitBlock commits that block, so a fetched but not yet committed
// height has no local hash.
type HashRecorder interface {
	GetBlockHash(ctx context.Context, height uint32) ([]byte, error)
}

// Fetcher is the producer half of the pipeline.
type Fetcher struct {
	source BlockSource
	hashes HashRecorder
	out    chan<- Message
	log    rlog.Logger
}

// NewFetcher builds a Fetcher that sends to out; out is owned by the
// caller and closed once Run returns.
func NewFetcher(source BlockSource, hashes HashRecorder, out chan<- Message, log rlog.Logger) *Fetcher {
	return &Fetcher{source: source, hashes: hashes, out: out, log: log}
}

// Run drives the fetch loop starting at startHeight until ctx is
// canceled. It never returns an error for transient upstream failures —
// those become KindError messages and the loop continues, per the
// "UpstreamUnavailable... pipeline logs and continues" propagation rule.
func (f *Fetcher) Run(ctx context.Context, startHeight uint32) error {
	next := startHeight
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		if err := f.source.WaitForHeight(ctx, next); err != nil {
			if errors.Is(err, context.Canceled) {
				return nil
			}
			if !f.send(ctx, Message{Kind: KindError, Height: next, Err: err}) {
				return nil
			}
			continue
		}

		best, rollbackTo, needRollback, err := f.reorgScan(ctx, next)
		if err != nil {
			if f.log != nil {
				f.log.Warnw("reorg scan failed", "height", next, "error", err)
			}
			if !f.send(ctx, Message{Kind: KindError, Height: next, Err: err}) {
				return nil
			}
			f.sleep(ctx, time.Second)
			continue
		}
		if needRollback {
			if !f.send(ctx, Message{Kind: KindRollback, Height: rollbackTo}) {
				return nil
			}
		}

		hash, err := f.source.GetBlockHash(ctx, best)
		if err != nil {
			if !f.send(ctx, Message{Kind: KindError, Height: best, Err: err}) {
				return nil
			}
			f.sleep(ctx, time.Second)
			continue
		}
		block, err := f.source.GetBlock(ctx, hash)
		if err != nil {
			if !f.send(ctx, Message{Kind: KindError, Height: best, Err: err}) {
				return nil
			}
			f.sleep(ctx, time.Second)
			continue
		}

		if !f.send(ctx, Message{Kind: KindBlock, Height: best, Block: block, Hash: hash}) {
			return nil
		}
		next = best + 1
	}
}

func (f *Fetcher) send(ctx context.Context, m Message) bool {
	select {
	case f.out <- m:
		return true
	case <-ctx.Done():
		return false
	}
}

func (f *Fetcher) sleep(ctx context.Context, d time.Duration) {
	select {
	case <-time.After(d):
	case <-ctx.Done():
	}
}

// reorgScan implements spec.md §4.4's reorg_scan(h): deep history (more
// than reorgLookback below tip) is trusted outright; near the tip, walk
// backward comparing locally recorded hashes against the upstream's
// until a common ancestor is found.
func (f *Fetcher) reorgScan(ctx context.Context, h uint32) (best uint32, rollbackTo uint32, needRollback bool, err error) {
	tip, err := f.source.GetBlockCount(ctx)
	if err != nil {
		return 0, 0, false, err
	}
	if h < tip-minU32(reorgLookback, tip) {
		return h, 0, false, nil
	}

	for c := h; ; c-- {
		local, lerr := f.hashes.GetBlockHash(ctx, c)
		remote, remoteErr := f.source.GetBlockHash(ctx, c)
		if remoteErr != nil {
			return 0, 0, false, remoteErr
		}
		if lerr == nil && bytes.Equal(local, remote) {
			if c == h {
				return c, 0, false, nil
			}
			return c + 1, c, true, nil
		}
		if c == 0 {
			return 0, 0, true, nil
		}
	}
}
