//go:build wireinject
// +build wireinject

package di

import (
	"context"

	"memo-web/internal/config"

	"github.com/google/wire"
)

// InitializeContainer builds the container. The returned func releases
// everything in reverse order of creation.
func InitializeContainer(ctx context.Context, cfg *config.Config) (*Container, func(), error) {
	wire.Build(SuperSet)
	return nil, nil, nil
}
