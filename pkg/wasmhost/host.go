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

// Package wasmhost loads the indexer's WASM program once and runs its
// _start export against a context the caller controls: an indexing run
// that stages writes into a real commit batch, or a view/preview run
// that reads through an overlay and never touches the store.
package wasmhost

import (
	"context"
	"encoding/binary"
	"fmt"
	"os"
	"sync"

	mmap "github.com/edsrzf/mmap-go"
	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"

	"github.com/rockshrew-go/rockshrew/pkg/kv"
	"github.com/rockshrew-go/rockshrew/pkg/rerr"
	"github.com/rockshrew-go/rockshrew/pkg/rlog"
)

// Mode is the host's execution mode for the run in progress, per
// spec.md §4.2's {block_bytes, height, batch, mode} context.
type Mode int

const (
	ModeIndex Mode = iota
	ModeView
	ModePreview
)

const absentLen int32 = -1

// Reader is the read side of kv.Store the host falls back to when a
// run's overlays don't have an answer for __get. Expressed as an
// interface (rather than *kv.Store) so callers that already hold a
// narrower store abstraction (e.g. pipeline.Store) can pass it straight
// through.
type Reader interface {
	GetAt(ctx context.Context, key []byte, height uint32) ([]byte, bool, error)
}

// RunContext is the per-invocation state the host imports read and
// mutate. One RunContext backs exactly one Run call.
type RunContext struct {
	Mode   Mode
	Height uint32
	Input  []byte // block bytes ‖ height:u32-LE for index/preview; view input for view mode's named export

	// Overlay holds writes made during this run (view mode: discarded;
	// preview mode: the preview's own in-memory layer read back by the
	// subsequent view call; index mode: staged here then flushed into a
	// real kv.WriteBatch by Flush()).
	Overlay map[string][]byte

	// ReadOverlay is consulted by __get before falling through to the
	// store; preview's view-phase sets this to the overlay populated by
	// its own _start run.
	ReadOverlay map[string][]byte

	store Reader
}

// NewRunContext builds the context for an index-mode or preview-overlay
// _start invocation: block bytes ‖ height:u32-LE, matching §4.2's
// __host_len/__load_input contract.
func NewRunContext(mode Mode, store Reader, height uint32, blockBytes []byte) *RunContext {
	input := make([]byte, len(blockBytes)+4)
	copy(input, blockBytes)
	binary.LittleEndian.PutUint32(input[len(blockBytes):], height)
	return &RunContext{
		Mode:    mode,
		Height:  height,
		Input:   input,
		Overlay: make(map[string][]byte),
		store:   store,
	}
}

// NewViewContext builds the context for a named-export view call: input
// is the caller-supplied argument bytes, not a block.
func NewViewContext(store Reader, height uint32, input []byte, readOverlay map[string][]byte) *RunContext {
	return &RunContext{
		Mode:        ModeView,
		Height:      height,
		Input:       input,
		Overlay:     make(map[string][]byte),
		ReadOverlay: readOverlay,
		store:       store,
	}
}

// Flush copies the run's staged writes into batch, for the processor to
// pass to Store.CommitBlock. Index mode only.
func (rc *RunContext) Flush(batch *kv.WriteBatch) {
	for k, v := range rc.Overlay {
		batch.Set([]byte(k), v)
	}
}

// Host owns the compiled WASM program and the mutex that serializes
// every run against its single linear-memory instance.
type Host struct {
	log      rlog.Logger
	runtime  wazero.Runtime
	compiled wazero.CompiledModule
	wasmFile mmap.MMap

	mu sync.Mutex
}

// New mmaps wasmPath once and compiles it once; every Run call
// instantiates a fresh module against the same compiled code, which is
// how "reinstantiate linear memory" is realized without recompiling.
func New(ctx context.Context, wasmPath string, log rlog.Logger) (*Host, error) {
	f, err := os.Open(wasmPath)
	if err != nil {
		return nil, fmt.Errorf("open wasm program: %w", err)
	}
	defer f.Close()

	mapped, err := mmap.Map(f, mmap.RDONLY, 0)
	if err != nil {
		return nil, fmt.Errorf("mmap wasm program: %w", err)
	}

	runtime := wazero.NewRuntime(ctx)
	compiled, err := runtime.CompileModule(ctx, mapped)
	if err != nil {
		runtime.Close(ctx)
		mapped.Unmap()
		return nil, fmt.Errorf("compile wasm program: %w", err)
	}

	h := &Host{log: log, runtime: runtime, compiled: compiled, wasmFile: mapped}
	return h, nil
}

func (h *Host) Close(ctx context.Context) error {
	err := h.runtime.Close(ctx)
	if uerr := h.wasmFile.Unmap(); err == nil {
		err = uerr
	}
	return err
}

// Run instantiates a fresh module, binds rc's imports, and calls
// exportName() -> (ptr, len). The export is called with no arguments:
// the program reads rc.Input (block bytes ‖ height, or a view's input
// bytes) through __host_len/__load_input. On trap the
// host reinstantiates from the compiled module and retries exactly once;
// a second failure is ErrRuntimeTrap.
func (h *Host) Run(ctx context.Context, exportName string, rc *RunContext) ([]byte, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	out, err := h.runOnce(ctx, exportName, rc)
	if err == nil {
		return out, nil
	}
	if h.log != nil {
		h.log.Warnw("wasm run trapped, refreshing memory and retrying", "export", exportName, "height", rc.Height, "error", err)
	}
	rc.Overlay = make(map[string][]byte)
	out, err = h.runOnce(ctx, exportName, rc)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", rerr.ErrRuntimeTrap, err)
	}
	return out, nil
}

func (h *Host) runOnce(ctx context.Context, exportName string, rc *RunContext) ([]byte, error) {
	builder := h.runtime.NewHostModuleBuilder("env")
	bindImports(builder, rc, h.log)
	hostMod, err := builder.Instantiate(ctx)
	if err != nil {
		return nil, fmt.Errorf("bind host imports: %w", err)
	}
	defer hostMod.Close(ctx)

	mod, err := h.runtime.InstantiateModule(ctx, h.compiled, wazero.NewModuleConfig())
	if err != nil {
		return nil, fmt.Errorf("instantiate module: %w", err)
	}
	defer mod.Close(ctx)

	fn := mod.ExportedFunction(exportName)
	if fn == nil {
		return nil, fmt.Errorf("program has no export %q", exportName)
	}
	results, err := fn.Call(ctx)
	if err != nil {
		return nil, fmt.Errorf("call %s: %w", exportName, err)
	}
	if len(results) != 2 {
		return nil, fmt.Errorf("%s returned %d values, want (ptr, len)", exportName, len(results))
	}
	ptr, ln := uint32(results[0]), uint32(results[1])
	if ln == 0 {
		return nil, nil
	}
	out, ok := mod.Memory().Read(ptr, ln)
	if !ok {
		return nil, fmt.Errorf("%s returned out-of-bounds memory region", exportName)
	}
	return append([]byte(nil), out...), nil
}

func bindImports(b wazero.HostModuleBuilder, rc *RunContext, log rlog.Logger) {
	b.NewFunctionBuilder().WithFunc(func(context.Context, api.Module) int32 {
		return int32(len(rc.Input))
	}).Export("__host_len")

	b.NewFunctionBuilder().WithFunc(func(_ context.Context, mod api.Module, ptr uint32) {
		mod.Memory().Write(ptr, rc.Input)
	}).Export("__load_input")

	b.NewFunctionBuilder().WithFunc(func(_ context.Context, mod api.Module, kptr, klen uint32) int32 {
		key, ok := mod.Memory().Read(kptr, klen)
		if !ok {
			return absentLen
		}
		val, ok := lookup(rc, key)
		if !ok {
			return absentLen
		}
		return int32(len(val))
	}).Export("__get_len")

	b.NewFunctionBuilder().WithFunc(func(_ context.Context, mod api.Module, kptr, klen, vptr uint32) {
		key, ok := mod.Memory().Read(kptr, klen)
		if !ok {
			return
		}
		val, ok := lookup(rc, key)
		if !ok {
			return
		}
		mod.Memory().Write(vptr, val)
	}).Export("__get")

	b.NewFunctionBuilder().WithFunc(func(_ context.Context, mod api.Module, kptr, klen, vptr, vlen uint32) {
		if rc.Mode == ModeView {
			return
		}
		key, ok := mod.Memory().Read(kptr, klen)
		if !ok {
			return
		}
		val, ok := mod.Memory().Read(vptr, vlen)
		if !ok {
			return
		}
		rc.Overlay[string(key)] = append([]byte(nil), val...)
	}).Export("__set")

	b.NewFunctionBuilder().WithFunc(func(context.Context, api.Module) {
		// Index mode flushes by the processor copying Overlay into a
		// kv.WriteBatch after Run returns; view/preview never commit.
	}).Export("__flush")

	b.NewFunctionBuilder().WithFunc(func(_ context.Context, mod api.Module, ptr, ln uint32) {
		msg, ok := mod.Memory().Read(ptr, ln)
		if !ok || log == nil {
			return
		}
		log.Debugw("wasm program log", "message", string(msg))
	}).Export("__log")
}

// lookup resolves __get/__get_len: the write-overlay for this run first
// (writes staged by this run's own __set calls), then ReadOverlay
// (preview's captured writes when reading from the second/view run),
// then the store at rc.Height.
func lookup(rc *RunContext, key []byte) ([]byte, bool) {
	if v, ok := rc.Overlay[string(key)]; ok {
		return v, true
	}
	if rc.ReadOverlay != nil {
		if v, ok := rc.ReadOverlay[string(key)]; ok {
			return v, true
		}
	}
	if rc.store == nil {
		return nil, false
	}
	v, ok, err := rc.store.GetAt(context.Background(), key, rc.Height)
	if err != nil || !ok {
		return nil, false
	}
	return v, true
}
