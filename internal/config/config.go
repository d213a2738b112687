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

// Package config defines the CLI surface for both binaries this module
// ships, mirroring how Erigon's own command tree declares flags with
// urfave/cli/v2 and decodes them into a small struct per command.
package config

import (
	"fmt"
	"strings"

	"github.com/urfave/cli/v2"
)

// IndexerConfig holds the flags cmd/rockshrew-indexer parses.
type IndexerConfig struct {
	DaemonRPCURL string
	IndexerPath  string
	DBPath       string
	StartBlock   uint32
	Auth         string
	Label        string
	ExitAt       uint32
	HasExitAt    bool
	Host         string
	Port         int
	CORS         []string
	PipelineSize int
}

// ViewServerConfig holds the flags cmd/rockshrew-view parses.
type ViewServerConfig struct {
	ProgramPath   string
	RocksLabel    string
	DBPath        string
	SecondaryPath string
	Host          string
	Port          int
}

var indexerFlags = []cli.Flag{
	&cli.StringFlag{Name: "daemon-rpc-url", Required: true, Usage: "JSON-RPC URL of the upstream chain daemon"},
	&cli.StringFlag{Name: "indexer", Required: true, Usage: "path to the WASM indexer program"},
	&cli.StringFlag{Name: "db-path", Required: true, Usage: "path to the primary store's data directory"},
	&cli.UintFlag{Name: "start-block", Value: 0, Usage: "height to begin indexing from on a fresh store"},
	&cli.StringFlag{Name: "auth", Usage: "basic auth credentials as user:pass"},
	&cli.StringFlag{Name: "label", Usage: "tag applied to this process's log and metric output"},
	&cli.IntFlag{Name: "exit-at", Value: -1, Usage: "stop after committing this height (omit to run indefinitely)"},
	&cli.StringFlag{Name: "host", Value: "127.0.0.1", Usage: "RPC server bind address"},
	&cli.IntFlag{Name: "port", Value: 8080, Usage: "RPC server bind port"},
	&cli.StringSliceFlag{Name: "cors", Usage: "allowed CORS origin (repeatable)"},
	&cli.IntFlag{Name: "pipeline-size", Value: 5, Usage: "bounded channel depth between fetcher and processor"},
}

// IndexerFlags returns the urfave/cli/v2 flag set for rockshrew-indexer.
func IndexerFlags() []cli.Flag {
	return indexerFlags
}

// NewIndexerConfig decodes an IndexerConfig from a parsed cli.Context.
func NewIndexerConfig(c *cli.Context) (IndexerConfig, error) {
	cfg := IndexerConfig{
		DaemonRPCURL: c.String("daemon-rpc-url"),
		IndexerPath:  c.String("indexer"),
		DBPath:       c.String("db-path"),
		StartBlock:   uint32(c.Uint("start-block")),
		Auth:         c.String("auth"),
		Label:        c.String("label"),
		Host:         c.String("host"),
		Port:         c.Int("port"),
		CORS:         c.StringSlice("cors"),
		PipelineSize: c.Int("pipeline-size"),
	}
	if exitAt := c.Int("exit-at"); exitAt >= 0 {
		cfg.ExitAt = uint32(exitAt)
		cfg.HasExitAt = true
	}
	if cfg.Auth != "" && !strings.Contains(cfg.Auth, ":") {
		return cfg, fmt.Errorf("--auth must be in user:pass form")
	}
	if cfg.PipelineSize <= 0 {
		return cfg, fmt.Errorf("--pipeline-size must be positive")
	}
	return cfg, nil
}

var viewFlags = []cli.Flag{
	&cli.StringFlag{Name: "program-path", Required: true, Usage: "path to the WASM program views are run against"},
	&cli.StringFlag{Name: "rocks-label", Usage: "tag applied to this process's log output"},
	&cli.StringFlag{Name: "db-path", Required: true, Usage: "path to the primary store's shared data directory"},
	&cli.StringFlag{Name: "secondary-path", Required: true, Usage: "path to this follower's private catch-up files"},
	&cli.StringFlag{Name: "host", Value: "127.0.0.1", Usage: "RPC server bind address"},
	&cli.IntFlag{Name: "port", Value: 8081, Usage: "RPC server bind port"},
}

// ViewFlags returns the urfave/cli/v2 flag set for rockshrew-view.
func ViewFlags() []cli.Flag {
	return viewFlags
}

// NewViewServerConfig decodes a ViewServerConfig from a parsed cli.Context.
func NewViewServerConfig(c *cli.Context) (ViewServerConfig, error) {
	return ViewServerConfig{
		ProgramPath:   c.String("program-path"),
		RocksLabel:    c.String("rocks-label"),
		DBPath:        c.String("db-path"),
		SecondaryPath: c.String("secondary-path"),
		Host:          c.String("host"),
		Port:          c.Int("port"),
	}, nil
}
