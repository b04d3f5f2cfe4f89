//go:build wireinject
// +build wireinject

// The build tag makes sure the stub is not built in the final build.

package injector

import (
	"github.com/google/wire"

	"github.com/zeusync/scenesync/internal/server"
)

// InitializeServer builds a fully wired server from cfg.
func InitializeServer(cfg server.Config) (*server.Server, error) {
	wire.Build(ServerSet)
	return nil, nil
}
