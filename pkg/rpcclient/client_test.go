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

package rpcclient

import (
	"context"
	"encoding/hex"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	json "github.com/goccy/go-json"
	"github.com/stretchr/testify/require"

	"github.com/rockshrew-go/rockshrew/pkg/rerr"
)

func jsonOK(t *testing.T, w http.ResponseWriter, result interface{}) {
	t.Helper()
	raw, err := json.Marshal(result)
	require.NoError(t, err)
	resp := rpcResponse{Result: raw}
	body, err := json.Marshal(resp)
	require.NoError(t, err)
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(body)
}

func TestGetBlockCount(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		jsonOK(t, w, 42)
	}))
	defer srv.Close()

	c := New(srv.URL, "", time.Second)
	n, err := c.GetBlockCount(context.Background())
	require.NoError(t, err)
	require.Equal(t, uint32(42), n)
}

func TestGetBlockHashAndBlock(t *testing.T) {
	wantHash := []byte{0xde, 0xad, 0xbe, 0xef}
	wantBlock := []byte{0x01, 0x02, 0x03}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req rpcRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		switch req.Method {
		case "getblockhash":
			jsonOK(t, w, hex.EncodeToString(wantHash))
		case "getblock":
			jsonOK(t, w, hex.EncodeToString(wantBlock))
		default:
			t.Fatalf("unexpected method %s", req.Method)
		}
	}))
	defer srv.Close()

	c := New(srv.URL, "", time.Second)
	hash, err := c.GetBlockHash(context.Background(), 7)
	require.NoError(t, err)
	require.Equal(t, wantHash, hash)

	block, err := c.GetBlock(context.Background(), hash)
	require.NoError(t, err)
	require.Equal(t, wantBlock, block)
}

func TestCallExhaustsRetriesAsUpstreamUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := New(srv.URL, "", time.Second, WithRetryPolicy(time.Millisecond, 5*time.Millisecond, 3))
	_, err := c.GetBlockCount(context.Background())
	require.ErrorIs(t, err, rerr.ErrUpstreamUnavailable)
}

func TestBasicAuthEmbedded(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		require.True(t, ok)
		require.Equal(t, "alice", user)
		require.Equal(t, "hunter2", pass)
		jsonOK(t, w, 1)
	}))
	defer srv.Close()

	c := New(srv.URL, "alice:hunter2", time.Second)
	_, err := c.GetBlockCount(context.Background())
	require.NoError(t, err)
}
