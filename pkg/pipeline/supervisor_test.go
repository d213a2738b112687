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
	"testing"

	"github.com/stretchr/testify/require"
)

type fakeWatermark struct {
	heights []uint32
}

func (f *fakeWatermark) Advance(h uint32) {
	f.heights = append(f.heights, h)
}

func TestSupervisorStopsAtExitAt(t *testing.T) {
	results := make(chan Result, 8)
	for h := uint32(0); h <= 5; h++ {
		results <- Result{Kind: ResultSuccess, Height: h}
	}
	wm := &fakeWatermark{}
	sup := NewSupervisor(results, wm, nil, 3, true)

	err := sup.Run(context.Background())
	require.ErrorIs(t, err, ErrExitAtReached)
	require.Equal(t, []uint32{0, 1, 2, 3}, wm.heights)
}

func TestSupervisorPropagatesFatalError(t *testing.T) {
	results := make(chan Result, 2)
	results <- Result{Kind: ResultSuccess, Height: 0}
	boom := errors.New("boom")
	results <- Result{Kind: ResultError, Height: 1, Err: boom}

	wm := &fakeWatermark{}
	sup := NewSupervisor(results, wm, nil, 0, false)
	err := sup.Run(context.Background())
	require.ErrorIs(t, err, boom)
	require.Equal(t, []uint32{0}, wm.heights)
}

func TestSupervisorStopsOnChannelClose(t *testing.T) {
	results := make(chan Result)
	close(results)
	wm := &fakeWatermark{}
	sup := NewSupervisor(results, wm, nil, 0, false)
	require.NoError(t, sup.Run(context.Background()))
}

func TestSupervisorRunsIndefinitelyWithoutExitAt(t *testing.T) {
	results := make(chan Result, 1)
	results <- Result{Kind: ResultSuccess, Height: 100}
	close(results)
	wm := &fakeWatermark{}
	sup := NewSupervisor(results, wm, nil, 0, false)
	require.NoError(t, sup.Run(context.Background()))
	require.Equal(t, []uint32{100}, wm.heights)
}
