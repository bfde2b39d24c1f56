// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


// Package server implements the thin loopback file-server process: the
// HTTP+JSON wire contract the remote backend client talks to. It is
// usually backed by a directory store, which persists posted images to
// its own file tree and keeps only a reference next to the text fields.
package server

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/poiesic/geoset/storage"
)

// Server serves the wire contract over a storage backend.
type Server struct {
	backend storage.Backend
	logger  *slog.Logger
	router  chi.Router
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets a custom logger. Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// New creates a server over an initialized backend.
func New(backend storage.Backend, opts ...Option) *Server {
	s := &Server{
		backend: backend,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}

	r := chi.NewRouter()
	r.Use(chimiddleware.Logger)
	r.Use(chimiddleware.Recoverer)

	r.Get("/entries", s.handleListEntries)
	r.Post("/entries", s.handleSaveEntry)
	r.Get("/entries/{id}", s.handleGetEntry)
	r.Delete("/entries/{id}", s.handleDeleteEntry)
	r.Get("/config/{key}", s.handleGetConfig)
	r.Post("/config/{key}", s.handleSaveConfig)
	r.Get("/stats", s.handleStats)
	r.Delete("/clear", s.handleClear)

	s.router = r
	return s
}

// Handler returns the HTTP handler for mounting or serving.
func (s *Server) Handler() http.Handler {
	return s.router
}

// ListenAndServe serves on addr until the listener fails.
func (s *Server) ListenAndServe(addr string) error {
	s.logger.Info("file server listening", "addr", addr)
	return http.ListenAndServe(addr, s.router)
}
