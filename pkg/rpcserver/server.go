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

// Package rpcserver exposes the four metashrew_* JSON-RPC methods over a
// single POST route, backed by the view executor and the store's
// committed-height watermark.
package rpcserver

import (
	"context"
	"encoding/hex"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	json "github.com/goccy/go-json"

	"github.com/rockshrew-go/rockshrew/pkg/rlog"
)

// HeightSource answers metashrew_height: the latest height whose commit
// is durable and observable, per the watermark's release/acquire
// contract.
type HeightSource interface {
	Get() (height uint32, ok bool)
}

// HashSource answers metashrew_getblockhash.
type HashSource interface {
	GetBlockHash(ctx context.Context, height uint32) ([]byte, error)
}

// ViewPreviewer answers metashrew_view and metashrew_preview.
type ViewPreviewer interface {
	View(ctx context.Context, name string, input []byte, height uint32) ([]byte, error)
	Preview(ctx context.Context, overlayBlock []byte, name string, input []byte, height uint32) ([]byte, error)
}

// Server builds the chi.Router serving the four methods.
type Server struct {
	height HeightSource
	hashes HashSource
	view   ViewPreviewer
	log    rlog.Logger
}

func New(height HeightSource, hashes HashSource, view ViewPreviewer, log rlog.Logger) *Server {
	return &Server{height: height, hashes: hashes, view: view, log: log}
}

// Router builds the HTTP handler: a single POST "/" route, mirroring
// the one-route JSON-RPC surface this system's predecessor exposed,
// with CORS configured from the --cors flag's allowed origins.
func (s *Server) Router(corsOrigins []string) http.Handler {
	r := chi.NewRouter()
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   corsOrigins,
		AllowedMethods:   []string{"POST", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type"},
		AllowCredentials: false,
	}))
	r.Post("/", s.handle)
	return r
}

type rpcRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data"`
}

type rpcResponse struct {
	ID      json.RawMessage `json:"id"`
	JSONRPC string          `json:"jsonrpc"`
	Result  string          `json:"result,omitempty"`
	Error   *rpcError       `json:"error,omitempty"`
}

const (
	codeMethodNotFound = -32601
	codeInvalidParams  = -32602
	codeApplicationErr = -32000
)

// handle never returns an HTTP 5xx for application-level failures — the
// transport is best-effort transparent, and every error becomes a
// structured JSON-RPC error response instead.
func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
	var req rpcRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, nil, codeInvalidParams, "malformed request body")
		return
	}

	var params []json.RawMessage
	if len(req.Params) > 0 {
		if err := json.Unmarshal(req.Params, &params); err != nil {
			s.writeError(w, req.ID, codeInvalidParams, "params must be an array")
			return
		}
	}

	switch req.Method {
	case "metashrew_height":
		s.handleHeight(w, req.ID)
	case "metashrew_getblockhash":
		s.handleGetBlockHash(w, r.Context(), req.ID, params)
	case "metashrew_view":
		s.handleView(w, r.Context(), req.ID, params)
	case "metashrew_preview":
		s.handlePreview(w, r.Context(), req.ID, params)
	default:
		s.writeError(w, req.ID, codeMethodNotFound, "method not found: "+req.Method)
	}
}

func (s *Server) handleHeight(w http.ResponseWriter, id json.RawMessage) {
	h, ok := s.height.Get()
	if !ok {
		s.writeError(w, id, codeApplicationErr, "no blocks indexed yet")
		return
	}
	s.writeResult(w, id, strconv.FormatUint(uint64(h), 10))
}

func (s *Server) handleGetBlockHash(w http.ResponseWriter, ctx context.Context, id json.RawMessage, params []json.RawMessage) {
	height, err := paramUint32(params, 0)
	if err != nil {
		s.writeError(w, id, codeInvalidParams, err.Error())
		return
	}
	hash, err := s.hashes.GetBlockHash(ctx, height)
	if err != nil {
		s.writeError(w, id, codeApplicationErr, err.Error())
		return
	}
	s.writeResult(w, id, "0x"+hex.EncodeToString(hash))
}

func (s *Server) handleView(w http.ResponseWriter, ctx context.Context, id json.RawMessage, params []json.RawMessage) {
	name, input, height, err := parseViewParams(params, s.height)
	if err != nil {
		s.writeError(w, id, codeInvalidParams, err.Error())
		return
	}
	out, err := s.view.View(ctx, name, input, height)
	if err != nil {
		s.writeError(w, id, codeApplicationErr, err.Error())
		return
	}
	s.writeResult(w, id, "0x"+hex.EncodeToString(out))
}

func (s *Server) handlePreview(w http.ResponseWriter, ctx context.Context, id json.RawMessage, params []json.RawMessage) {
	if len(params) < 4 {
		s.writeError(w, id, codeInvalidParams, "metashrew_preview requires 4 params")
		return
	}
	blockHex, err := paramString(params, 0)
	if err != nil {
		s.writeError(w, id, codeInvalidParams, err.Error())
		return
	}
	block, err := decodeHexParam(blockHex)
	if err != nil {
		s.writeError(w, id, codeInvalidParams, "bad block hex: "+err.Error())
		return
	}
	name, input, height, err := parseViewParams(params[1:], s.height)
	if err != nil {
		s.writeError(w, id, codeInvalidParams, err.Error())
		return
	}
	out, err := s.view.Preview(ctx, block, name, input, height)
	if err != nil {
		s.writeError(w, id, codeApplicationErr, err.Error())
		return
	}
	s.writeResult(w, id, "0x"+hex.EncodeToString(out))
}

func (s *Server) writeResult(w http.ResponseWriter, id json.RawMessage, result string) {
	s.writeJSON(w, rpcResponse{JSONRPC: "2.0", ID: id, Result: result})
}

func (s *Server) writeError(w http.ResponseWriter, id json.RawMessage, code int, msg string) {
	s.writeJSON(w, rpcResponse{JSONRPC: "2.0", ID: id, Error: &rpcError{Code: code, Message: msg}})
}

func (s *Server) writeJSON(w http.ResponseWriter, resp rpcResponse) {
	w.Header().Set("Content-Type", "application/json")
	body, err := json.Marshal(resp)
	if err != nil {
		if s.log != nil {
			s.log.Errorw("failed to marshal rpc response", "error", err)
		}
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	_, _ = w.Write(body)
}
