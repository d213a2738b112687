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

// Command rockshrew-indexer drives a WASM indexer program over a chain
// daemon's blocks, persisting its writes into a versioned store and
// serving historical views over JSON-RPC.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"
	"golang.org/x/sync/errgroup"

	"github.com/rockshrew-go/rockshrew/internal/config"
	"github.com/rockshrew-go/rockshrew/pkg/kv"
	"github.com/rockshrew-go/rockshrew/pkg/pipeline"
	"github.com/rockshrew-go/rockshrew/pkg/rlog"
	"github.com/rockshrew-go/rockshrew/pkg/rpcclient"
	"github.com/rockshrew-go/rockshrew/pkg/rpcserver"
	"github.com/rockshrew-go/rockshrew/pkg/view"
	"github.com/rockshrew-go/rockshrew/pkg/wasmhost"
	"github.com/rockshrew-go/rockshrew/pkg/watermark"
)

func main() {
	app := &cli.App{
		Name:  "rockshrew-indexer",
		Usage: "index a WASM program's state over a proof-of-work chain",
		Flags: config.IndexerFlags(),
		Action: func(c *cli.Context) error {
			cfg, err := config.NewIndexerConfig(c)
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

func run(ctx context.Context, cfg config.IndexerConfig) error {
	log := rlog.New(cfg.Label, false)
	defer log.Sync()

	ctx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	store, err := kv.Open(cfg.DBPath, kv.Primary, log.Named("store"))
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer store.Close()

	host, err := wasmhost.New(ctx, cfg.IndexerPath, log.Named("wasm"))
	if err != nil {
		return fmt.Errorf("load wasm program: %w", err)
	}
	defer host.Close(ctx)

	client := rpcclient.New(cfg.DaemonRPCURL, cfg.Auth, 30*time.Second)

	startHeight := cfg.StartBlock
	if h, ok := store.Height(); ok {
		startHeight = h + 1
	}

	pipelineCh := make(chan pipeline.Message, cfg.PipelineSize)
	resultsCh := make(chan pipeline.Result, cfg.PipelineSize)

	fetcher := pipeline.NewFetcher(client, store, pipelineCh, log.Named("fetcher"))
	processor := pipeline.NewProcessor(store, host, pipelineCh, resultsCh, log.Named("processor"))
	wm := &watermark.Watermark{}
	supervisor := pipeline.NewSupervisor(resultsCh, wm, log.Named("supervisor"), cfg.ExitAt, cfg.HasExitAt)

	executor := view.NewExecutor(host, store)
	srv := rpcserver.New(wm, store, executor, log.Named("rpc"))
	httpServer := &http.Server{Addr: fmt.Sprintf("%s:%d", cfg.Host, cfg.Port), Handler: srv.Router(cfg.CORS)}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer close(pipelineCh)
		return fetcher.Run(gctx, startHeight)
	})
	g.Go(func() error {
		defer close(resultsCh)
		return processor.Run(gctx, startHeight)
	})
	g.Go(func() error {
		return supervisor.Run(gctx)
	})
	g.Go(func() error {
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("rpc server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		// Reaching exit_at, an interrupt, or any sibling goroutine's
		// fatal error all cancel gctx; whichever happens first, bring
		// the HTTP server down so g.Wait() can return.
		<-gctx.Done()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		return httpServer.Shutdown(shutdownCtx)
	})

	err = g.Wait()
	if err != nil && !errors.Is(err, pipeline.ErrExitAtReached) {
		return err
	}
	return store.Flush(context.Background())
}
