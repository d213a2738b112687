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

// Command rockshrew-view is a read-only follower: it opens a store in
// secondary mode, catching up with a primary indexer's commits, and
// serves the same metashrew_* view surface without ever writing.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/rockshrew-go/rockshrew/internal/config"
	"github.com/rockshrew-go/rockshrew/pkg/kv"
	"github.com/rockshrew-go/rockshrew/pkg/rlog"
	"github.com/rockshrew-go/rockshrew/pkg/rpcserver"
	"github.com/rockshrew-go/rockshrew/pkg/view"
	"github.com/rockshrew-go/rockshrew/pkg/wasmhost"
)

func main() {
	app := &cli.App{
		Name:  "rockshrew-view",
		Usage: "serve historical views over a secondary store replica",
		Flags: config.ViewFlags(),
		Action: func(c *cli.Context) error {
			cfg, err := config.NewViewServerConfig(c)
			if err != nil {
				return err
			}
			return run(c.Context, cfg)
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// heightAdapter adapts *kv.Store's (uint32, bool) Height() to the
// rpcserver.HeightSource shape expected by metashrew_height, since a
// secondary-mode follower has no watermark of its own — its observable
// tip is simply whatever the store's background catch-up ticker last
// saw committed.
type heightAdapter struct{ store *kv.Store }

func (h heightAdapter) Get() (uint32, bool) { return h.store.Height() }

func run(ctx context.Context, cfg config.ViewServerConfig) error {
	log := rlog.New(cfg.RocksLabel, false)
	defer log.Sync()

	ctx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	store, err := kv.Open(cfg.DBPath, kv.Secondary, log.Named("store"))
	if err != nil {
		return fmt.Errorf("open secondary store: %w", err)
	}
	defer store.Close()

	host, err := wasmhost.New(ctx, cfg.ProgramPath, log.Named("wasm"))
	if err != nil {
		return fmt.Errorf("load wasm program: %w", err)
	}
	defer host.Close(ctx)

	executor := view.NewExecutor(host, store)
	srv := rpcserver.New(heightAdapter{store}, store, executor, log.Named("rpc"))
	httpServer := &http.Server{Addr: fmt.Sprintf("%s:%d", cfg.Host, cfg.Port), Handler: srv.Router(nil)}

	errCh := make(chan error, 1)
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("rpc server: %w", err)
			return
		}
		errCh <- nil
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		_ = httpServer.Shutdown(shutdownCtx)
		return <-errCh
	case err := <-errCh:
		return err
	}
}
