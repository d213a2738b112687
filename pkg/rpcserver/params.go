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

package rpcserver

import (
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"

	json "github.com/goccy/go-json"
)

func paramString(params []json.RawMessage, idx int) (string, error) {
	if idx >= len(params) {
		return "", fmt.Errorf("missing param %d", idx)
	}
	var v string
	if err := json.Unmarshal(params[idx], &v); err != nil {
		return "", fmt.Errorf("param %d must be a string", idx)
	}
	return v, nil
}

func paramUint32(params []json.RawMessage, idx int) (uint32, error) {
	if idx >= len(params) {
		return 0, fmt.Errorf("missing param %d", idx)
	}
	var v uint64
	if err := json.Unmarshal(params[idx], &v); err != nil {
		return 0, fmt.Errorf("param %d must be a number", idx)
	}
	return uint32(v), nil
}

func decodeHexParam(s string) ([]byte, error) {
	return hex.DecodeString(strings.TrimPrefix(s, "0x"))
}

// heightParam accepts either a JSON number or the literal string
// "latest", resolving the latter against height.
func heightParam(params []json.RawMessage, idx int, height HeightSource) (uint32, error) {
	if idx >= len(params) {
		return 0, fmt.Errorf("missing param %d", idx)
	}
	raw := strings.TrimSpace(string(params[idx]))
	if raw == `"latest"` {
		h, ok := height.Get()
		if !ok {
			return 0, fmt.Errorf("no blocks indexed yet")
		}
		return h, nil
	}
	var v uint64
	if err := json.Unmarshal(params[idx], &v); err == nil {
		return uint32(v), nil
	}
	// Some callers pass the height as a decimal string rather than a
	// bare number; accept that too.
	var s string
	if err := json.Unmarshal(params[idx], &s); err == nil {
		n, err := strconv.ParseUint(s, 10, 32)
		if err != nil {
			return 0, fmt.Errorf("param %d must be a number or \"latest\"", idx)
		}
		return uint32(n), nil
	}
	return 0, fmt.Errorf("param %d must be a number or \"latest\"", idx)
}

// parseViewParams extracts (view_name, input_hex-decoded, height) from
// the 3-param shape shared by metashrew_view and (after the leading
// block_hex param is stripped) metashrew_preview.
func parseViewParams(params []json.RawMessage, height HeightSource) (name string, input []byte, h uint32, err error) {
	if len(params) < 3 {
		return "", nil, 0, fmt.Errorf("requires 3 params: name, input, height")
	}
	name, err = paramString(params, 0)
	if err != nil {
		return "", nil, 0, err
	}
	inputHex, err := paramString(params, 1)
	if err != nil {
		return "", nil, 0, err
	}
	input, err = decodeHexParam(inputHex)
	if err != nil {
		return "", nil, 0, fmt.Errorf("bad input hex: %w", err)
	}
	h, err = heightParam(params, 2, height)
	if err != nil {
		return "", nil, 0, err
	}
	return name, input, h, nil
}
