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
	"testing"

	"github.com/stretchr/testify/require"
)

// fakeSource stands in for rpcclient.Client: tip is the upstream's
// reported chain height, and hashes maps height -> upstream hash. A
// fetcher under test never calls WaitForHeight/GetBlock through
// reorgScan directly, so those are left unimplemented by the callers
// that only exercise reorgScan.
type fakeSource struct {
	tip    uint32
	hashes map[uint32][]byte
}

func (f *fakeSource) GetBlockCount(ctx context.Context) (uint32, error) { return f.tip, nil }

func (f *fakeSource) GetBlockHash(ctx context.Context, height uint32) ([]byte, error) {
	return f.hashes[height], nil
}

func (f *fakeSource) GetBlock(ctx context.Context, hash []byte) ([]byte, error) { return nil, nil }

func (f *fakeSource) WaitForHeight(ctx context.Context, h uint32) error { return nil }

// fakeHashes stands in for kv.Store's GetBlockHash: it answers with
// whatever local history a test configures, independent of the
// upstream's view in fakeSource.
type fakeHashes struct {
	hashes map[uint32][]byte
}

func (f *fakeHashes) GetBlockHash(ctx context.Context, height uint32) ([]byte, error) {
	return f.hashes[height], nil
}

// Deep history (more than reorgLookback below tip) is trusted outright
// without consulting any recorded hash at all.
func TestReorgScanTrustsDeepHistoryOutright(t *testing.T) {
	source := &fakeSource{tip: 1000}
	local := &fakeHashes{}
	f := NewFetcher(source, local, nil, nil)

	best, rollbackTo, needRollback, err := f.reorgScan(context.Background(), 500)
	require.NoError(t, err)
	require.Equal(t, uint32(500), best)
	require.Equal(t, uint32(0), rollbackTo)
	require.False(t, needRollback)
}

// Near the tip, if the local hash at h already matches upstream, no
// rollback is needed and h itself is returned as the next block to
// fetch.
func TestReorgScanSingleStepMatchNoRollback(t *testing.T) {
	source := &fakeSource{tip: 10, hashes: map[uint32][]byte{10: {0xaa}}}
	local := &fakeHashes{hashes: map[uint32][]byte{10: {0xaa}}}
	f := NewFetcher(source, local, nil, nil)

	best, rollbackTo, needRollback, err := f.reorgScan(context.Background(), 10)
	require.NoError(t, err)
	require.Equal(t, uint32(10), best)
	require.Equal(t, uint32(0), rollbackTo)
	require.False(t, needRollback)
}

// When h's locally recorded hash diverges from upstream, reorg_scan
// walks backward until it finds a height where local and remote agree,
// then reports a rollback to that common ancestor and best = ancestor+1.
func TestReorgScanMultiStepRollbackToCommonAncestor(t *testing.T) {
	source := &fakeSource{
		tip: 10,
		hashes: map[uint32][]byte{
			10: {0x10}, 9: {0x09}, 8: {0x08}, 7: {0x07},
		},
	}
	local := &fakeHashes{
		hashes: map[uint32][]byte{
			// heights 8,9,10 were reorged away upstream: local still has
			// the old chain's hashes at those heights, but 7 matches.
			10: {0xff}, 9: {0xfe}, 8: {0xfd}, 7: {0x07},
		},
	}
	f := NewFetcher(source, local, nil, nil)

	best, rollbackTo, needRollback, err := f.reorgScan(context.Background(), 10)
	require.NoError(t, err)
	require.True(t, needRollback)
	require.Equal(t, uint32(7), rollbackTo)
	require.Equal(t, uint32(8), best)
}

// If the backward walk never finds agreement all the way down to
// genesis, reorg_scan reports a rollback to height 0 with best = 0.
func TestReorgScanGenesisExhaustedRollsBackToZero(t *testing.T) {
	source := &fakeSource{
		tip: 3,
		hashes: map[uint32][]byte{
			3: {0x03}, 2: {0x02}, 1: {0x01}, 0: {0x00},
		},
	}
	local := &fakeHashes{
		hashes: map[uint32][]byte{
			3: {0xf3}, 2: {0xf2}, 1: {0xf1}, 0: {0xf0},
		},
	}
	f := NewFetcher(source, local, nil, nil)

	best, rollbackTo, needRollback, err := f.reorgScan(context.Background(), 3)
	require.NoError(t, err)
	require.True(t, needRollback)
	require.Equal(t, uint32(0), rollbackTo)
	require.Equal(t, uint32(0), best)
}

// A height with no locally recorded hash at all (never seen before) is
// treated the same as a mismatch: the walk keeps going backward.
func TestReorgScanMissingLocalHashTreatedAsMismatch(t *testing.T) {
	source := &fakeSource{
		tip:    5,
		hashes: map[uint32][]byte{5: {0x05}, 4: {0x04}},
	}
	local := &fakeHashes{hashes: map[uint32][]byte{4: {0x04}}}
	f := NewFetcher(source, local, nil, nil)

	best, rollbackTo, needRollback, err := f.reorgScan(context.Background(), 5)
	require.NoError(t, err)
	require.True(t, needRollback)
	require.Equal(t, uint32(4), rollbackTo)
	require.Equal(t, uint32(5), best)
}
