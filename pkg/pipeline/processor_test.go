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

	"github.com/rockshrew-go/rockshrew/pkg/kv"
	"github.com/rockshrew-go/rockshrew/pkg/wasmhost"
)

// fakeStore stands in for *kv.Store: it just records what the processor
// asked it to do, without touching any real MDBX env.
type fakeStore struct {
	commits     []fakeCommit
	rollbacks   []uint32
	commitErr   error
	rollbackErr error
}

type fakeCommit struct {
	hash      []byte
	tipHeader []byte
	height    uint32
}

func (f *fakeStore) CommitBlock(ctx context.Context, hash []byte, tipHeader []byte, batch *kv.WriteBatch) error {
	if f.commitErr != nil {
		return f.commitErr
	}
	f.commits = append(f.commits, fakeCommit{hash: hash, tipHeader: tipHeader, height: batch.Height})
	return nil
}

func (f *fakeStore) RollbackTo(ctx context.Context, h uint32) error {
	if f.rollbackErr != nil {
		return f.rollbackErr
	}
	f.rollbacks = append(f.rollbacks, h)
	return nil
}

func (f *fakeStore) GetAt(ctx context.Context, key []byte, height uint32) ([]byte, bool, error) {
	return nil, false, nil
}

// fakeHost stands in for *wasmhost.Host: it stages a fixed write into
// the RunContext's overlay, the way a real program's _start would via
// __set, without needing a compiled .wasm fixture.
type fakeHost struct {
	writes map[string][]byte
	runErr error
}

func (f *fakeHost) Run(ctx context.Context, exportName string, rc *wasmhost.RunContext) ([]byte, error) {
	if f.runErr != nil {
		return nil, f.runErr
	}
	for k, v := range f.writes {
		rc.Overlay[k] = v
	}
	return nil, nil
}

func TestProcessorCommitsBlockInOrder(t *testing.T) {
	store := &fakeStore{}
	host := &fakeHost{writes: map[string][]byte{"k": []byte("v")}}
	out := make(chan Result, 1)
	p := NewProcessor(store, host, nil, out, nil)

	next, err := p.handle(context.Background(), Message{Kind: KindBlock, Height: 0, Block: []byte("blk0"), Hash: []byte{0x00}}, 0)
	require.NoError(t, err)
	require.Equal(t, uint32(1), next)
	require.Len(t, store.commits, 1)
	require.Equal(t, []byte{0x00}, store.commits[0].hash)
	require.Equal(t, []byte("blk0"), store.commits[0].tipHeader)
	require.Equal(t, uint32(0), store.commits[0].height)

	result := <-out
	require.Equal(t, ResultSuccess, result.Kind)
	require.Equal(t, uint32(0), result.Height)
}

// A height-ordering violation is a fatal invariant violation: handle
// must return an error and leave expectedNext (and the store) untouched
// rather than silently accepting the out-of-order block.
func TestProcessorRejectsHeightOrderingViolation(t *testing.T) {
	store := &fakeStore{}
	host := &fakeHost{}
	p := NewProcessor(store, host, nil, nil, nil)

	next, err := p.handle(context.Background(), Message{Kind: KindBlock, Height: 5}, 3)
	require.Error(t, err)
	require.Equal(t, uint32(3), next, "expectedNext must not advance on a rejected block")
	require.Empty(t, store.commits, "no commit must happen for an out-of-order block")
}

func TestProcessorDispatchesRollback(t *testing.T) {
	store := &fakeStore{}
	host := &fakeHost{}
	p := NewProcessor(store, host, nil, nil, nil)

	next, err := p.handle(context.Background(), Message{Kind: KindRollback, Height: 10}, 15)
	require.NoError(t, err)
	require.Equal(t, uint32(11), next)
	require.Equal(t, []uint32{10}, store.rollbacks)
}

// A KindError message just logs and retries: expectedNext is unchanged
// and nothing is committed or rolled back.
func TestProcessorKindErrorIsNonFatal(t *testing.T) {
	store := &fakeStore{}
	host := &fakeHost{}
	p := NewProcessor(store, host, nil, nil, nil)

	next, err := p.handle(context.Background(), Message{Kind: KindError, Height: 7}, 7)
	require.NoError(t, err)
	require.Equal(t, uint32(7), next)
	require.Empty(t, store.commits)
	require.Empty(t, store.rollbacks)
}

// A WASM trap during the index run must surface as an error without
// ever reaching CommitBlock.
func TestProcessorWasmTrapSkipsCommit(t *testing.T) {
	store := &fakeStore{}
	host := &fakeHost{runErr: errors.New("trap")}
	p := NewProcessor(store, host, nil, nil, nil)

	next, err := p.handle(context.Background(), Message{Kind: KindBlock, Height: 0, Block: []byte("blk0"), Hash: []byte{0x00}}, 0)
	require.Error(t, err)
	require.Equal(t, uint32(0), next)
	require.Empty(t, store.commits)
}
