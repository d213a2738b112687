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

package kv

import (
	"fmt"

	json "github.com/goccy/go-json"

	"github.com/rockshrew-go/rockshrew/pkg/rerr"
)

// Config is the single row kept in TblConfig, per the schema's §3.2
// "config" keyspace.
type Config struct {
	Format    uint64 `json:"format"`
	Compacted bool   `json:"compacted"`
}

func loadConfig(tx Getter) (Config, bool, error) {
	raw, ok, err := tx.Get(TblConfig, ConfigKey)
	if err != nil || !ok {
		return Config{}, ok, err
	}
	var c Config
	if err := json.Unmarshal(raw, &c); err != nil {
		return Config{}, false, fmt.Errorf("decode config record: %w", err)
	}
	return c, true, nil
}

func putConfig(tx Putter, c Config) error {
	raw, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("encode config record: %w", err)
	}
	return tx.Put(TblConfig, ConfigKey, raw)
}

// ensureConfig loads the config record, creating it with CurrentFormat on
// first open, and fails closed with ErrReindexRequired on a format
// mismatch rather than guessing at forward compatibility.
func ensureConfig(tx RwTx) (Config, error) {
	c, ok, err := loadConfig(tx)
	if err != nil {
		return Config{}, err
	}
	if !ok {
		c = Config{Format: CurrentFormat, Compacted: false}
		if err := putConfig(tx, c); err != nil {
			return Config{}, err
		}
		return c, nil
	}
	if c.Format != CurrentFormat {
		return Config{}, fmt.Errorf("%w: on-disk format %d, expected %d", rerr.ErrReindexRequired, c.Format, CurrentFormat)
	}
	return c, nil
}
