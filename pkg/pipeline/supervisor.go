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
	"errors"

	"github.com/rockshrew-go/rockshrew/pkg/rlog"
)

// Watermark is the process-wide observable tip the supervisor advances
// after each successful commit.
type Watermark interface {
	Advance(h uint32)
}

// Supervisor consumes the processor's results, advancing the watermark
// on success and stopping the pipeline at exitAt or on the first fatal
// error, per spec.md §4.4.
type Supervisor struct {
	results <-chan Result
	wm      Watermark
	log     rlog.Logger
	exitAt  uint32
	hasExit bool
}

// NewSupervisor builds a Supervisor. hasExit false means run until
// canceled or a fatal error, never stopping on height alone.
func NewSupervisor(results <-chan Result, wm Watermark, log rlog.Logger, exitAt uint32, hasExit bool) *Supervisor {
	return &Supervisor{results: results, wm: wm, log: log, exitAt: exitAt, hasExit: hasExit}
}

// ErrExitAtReached is returned once the watermark reaches the
// configured exit_at height, the cue for the caller to begin graceful
// shutdown (cancel the pipeline's context, flush the store).
var ErrExitAtReached = errors.New("pipeline: exit_at height reached")

// Run drains results until the channel closes, ctx is canceled, a
// ResultError arrives, or exit_at is reached.
func (sup *Supervisor) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case r, ok := <-sup.results:
			if !ok {
				return nil
			}
			switch r.Kind {
			case ResultSuccess:
				sup.wm.Advance(r.Height)
				if sup.hasExit && r.Height >= sup.exitAt {
					return ErrExitAtReached
				}
			case ResultError:
				if sup.log != nil {
					sup.log.Errorw("processor reported fatal error, shutting down", "height", r.Height, "error", r.Err)
				}
				return r.Err
			}
		}
	}
}
