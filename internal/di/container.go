// Package di wires the server together. The injector in wire_gen.go is
// generated from wire.go.
package di

import (
	"memo-web/internal/client"
	"memo-web/internal/config"
	"memo-web/internal/observability"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// Container holds everything an entry point needs to serve requests.
type Container struct {
	Config   *config.Config
	Logger   *zap.Logger
	Level    zap.AtomicLevel
	Metrics  *observability.Collector
	Registry *client.Registry
	Router   *chi.Mux
}
