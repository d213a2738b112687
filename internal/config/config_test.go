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

package config

import (
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v2"
)

func TestNewIndexerConfigDefaults(t *testing.T) {
	app := &cli.App{
		Flags: IndexerFlags(),
		Action: func(c *cli.Context) error {
			cfg, err := NewIndexerConfig(c)
			require.NoError(t, err)
			require.Equal(t, "http://localhost:8332", cfg.DaemonRPCURL)
			require.Equal(t, 5, cfg.PipelineSize)
			require.False(t, cfg.HasExitAt)
			return nil
		},
	}
	err := app.Run([]string{"rockshrew-indexer", "--daemon-rpc-url", "http://localhost:8332", "--indexer", "prog.wasm", "--db-path", "/tmp/db"})
	require.NoError(t, err)
}

func TestNewIndexerConfigExitAt(t *testing.T) {
	app := &cli.App{
		Flags: IndexerFlags(),
		Action: func(c *cli.Context) error {
			cfg, err := NewIndexerConfig(c)
			require.NoError(t, err)
			require.True(t, cfg.HasExitAt)
			require.Equal(t, uint32(100), cfg.ExitAt)
			return nil
		},
	}
	err := app.Run([]string{"rockshrew-indexer", "--daemon-rpc-url", "u", "--indexer", "p", "--db-path", "/tmp/db", "--exit-at", "100"})
	require.NoError(t, err)
}

func TestNewIndexerConfigRejectsMalformedAuth(t *testing.T) {
	app := &cli.App{
		Flags: IndexerFlags(),
		Action: func(c *cli.Context) error {
			_, err := NewIndexerConfig(c)
			require.Error(t, err)
			return nil
		},
	}
	err := app.Run([]string{"rockshrew-indexer", "--daemon-rpc-url", "u", "--indexer", "p", "--db-path", "/tmp/db", "--auth", "no-colon-here"})
	require.NoError(t, err)
}

func TestNewViewServerConfig(t *testing.T) {
	app := &cli.App{
		Flags: ViewFlags(),
		Action: func(c *cli.Context) error {
			cfg, err := NewViewServerConfig(c)
			require.NoError(t, err)
			require.Equal(t, "/tmp/primary", cfg.DBPath)
			require.Equal(t, "/tmp/secondary", cfg.SecondaryPath)
			require.Equal(t, 8081, cfg.Port)
			return nil
		},
	}
	err := app.Run([]string{"rockshrew-view", "--program-path", "p.wasm", "--db-path", "/tmp/primary", "--secondary-path", "/tmp/secondary"})
	require.NoError(t, err)
}
