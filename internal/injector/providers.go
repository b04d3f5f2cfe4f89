package injector

import (
	"github.com/google/wire"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/zeusync/scenesync/internal/core/events/bus"
	"github.com/zeusync/scenesync/internal/core/observability/log"
	"github.com/zeusync/scenesync/internal/server"
)

// ServerSet provides a *server.Server from a server.Config.
var ServerSet = wire.NewSet(
	ProvideLogger,
	ProvideEventBus,
	ProvideRegisterer,
	ProvideServer,
)

func ProvideLogger(cfg server.Config) log.Log {
	return log.New(cfg.LogLevel)
}

func ProvideEventBus() bus.EventBus {
	return bus.New()
}

func ProvideRegisterer() prometheus.Registerer {
	return prometheus.NewRegistry()
}

func ProvideServer(cfg server.Config, logger log.Log, events bus.EventBus, reg prometheus.Registerer) (*server.Server, error) {
	return server.NewServer(cfg,
		server.WithLogger(logger),
		server.WithEventBus(events),
		server.WithRegisterer(reg))
}
