package injector

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zeusync/scenesync/internal/core/observability/log"
	"github.com/zeusync/scenesync/internal/server"
)

func TestInitializeServer(t *testing.T) {
	cfg := server.DefaultServerConfig()
	cfg.LogLevel = log.LevelError

	s, err := InitializeServer(cfg)
	require.NoError(t, err)
	assert.Equal(t, 1, s.Scene().Len())
	assert.NotNil(t, s.Metrics())
	assert.Equal(t, cfg.ListenAddr, s.Config().ListenAddr)
}

func TestInitializeServer_InvalidConfig(t *testing.T) {
	cfg := server.DefaultServerConfig()
	cfg.Encoding = "xml"

	_, err := InitializeServer(cfg)
	assert.ErrorIs(t, err, server.ErrInvalidConfig)
}
