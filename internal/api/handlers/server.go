// Package handlers implements the read-only operation status API.
//
// Handlers do not register their own routes; the app router wires them.
//
// Import Path: dbaas.io/workflow/internal/api/handlers
package handlers

import (
	"context"

	"dbaas.io/workflow/internal/store"
)

// Pinger is the readiness dependency (the database pool).
type Pinger interface {
	Ping(ctx context.Context) error
}

// Server holds the handler dependencies.
type Server struct {
	restores store.RestoreReader
	db       Pinger
}

// ServerDeps holds all dependencies for creating a Server.
type ServerDeps struct {
	Restores store.RestoreReader
	DB       Pinger // Optional: readiness reports "skipped" when nil
}

// NewServer creates a new Server with all dependencies.
func NewServer(deps ServerDeps) *Server {
	return &Server{
		restores: deps.Restores,
		db:       deps.DB,
	}
}
