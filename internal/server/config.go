package server

import (
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/zeusync/scenesync/internal/core/network"
	"github.com/zeusync/scenesync/internal/core/observability/log"
	"github.com/zeusync/scenesync/internal/core/parameter"
	"github.com/zeusync/scenesync/internal/core/scene"
	"github.com/zeusync/scenesync/internal/core/snapshot"
	"github.com/zeusync/scenesync/internal/core/systems/physics"
)

// Config holds server configuration
type Config struct {
	// Network settings
	ListenAddr string `yaml:"listen_addr"`
	// QUICAddr enables the QUIC listener when set.
	QUICAddr    string `yaml:"quic_addr"`
	TLSCertFile string `yaml:"tls_cert_file"`
	TLSKeyFile  string `yaml:"tls_key_file"`

	// Simulation settings
	TickRate int            `yaml:"tick_rate"`
	Gravity  parameter.Vec3 `yaml:"gravity"`

	// Replication settings
	SnapsPerSecond   int               `yaml:"snaps_per_second"`
	ProtocolVersion  uint32            `yaml:"protocol_version"`
	Encoding         snapshot.Encoding `yaml:"encoding"`
	MaxMessageSize   int               `yaml:"max_message_size"`
	SerializeWorkers int               `yaml:"serialize_workers"`
	InboundQueueSize int               `yaml:"inbound_queue_size"`
	ShutdownTimeout  time.Duration     `yaml:"shutdown_timeout"`

	// Content
	PrefabFile string  `yaml:"prefab_file"`
	Spawn      []Spawn `yaml:"spawn"`

	// Logging
	LogLevel log.Level `yaml:"log_level"`
}

// Spawn instantiates a prefab when the server starts.
type Spawn struct {
	Prefab   string         `yaml:"prefab"`
	Name     string         `yaml:"name"`
	Role     scene.Role     `yaml:"role"`
	Position parameter.Vec3 `yaml:"position"`
}

// DefaultServerConfig returns default server configuration
func DefaultServerConfig() Config {
	return Config{
		ListenAddr:       "127.0.0.1:8080",
		TickRate:         60,
		Gravity:          physics.EarthGravity,
		SnapsPerSecond:   network.DefaultSnapsPerSecond,
		ProtocolVersion:  1,
		Encoding:         snapshot.EncodingJSON,
		MaxMessageSize:   snapshot.DefaultMaxMessageSize,
		SerializeWorkers: 4,
		InboundQueueSize: 1024,
		ShutdownTimeout:  5 * time.Second,
		LogLevel:         log.LevelInfo,
	}
}

// LoadConfig decodes YAML from r over the defaults and validates the result.
func LoadConfig(r io.Reader) (Config, error) {
	cfg := DefaultServerConfig()
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && err != io.EOF {
		return Config{}, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func LoadConfigFile(path string) (Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return Config{}, fmt.Errorf("open config: %w", err)
	}
	defer f.Close()
	return LoadConfig(f)
}

func (c Config) Validate() error {
	invalid := func(field string, v any) error {
		return fmt.Errorf("%w: %s = %v", ErrInvalidConfig, field, v)
	}
	switch {
	case c.ListenAddr == "":
		return invalid("listen_addr", `""`)
	case c.TickRate <= 0:
		return invalid("tick_rate", c.TickRate)
	case c.SnapsPerSecond <= 0:
		return invalid("snaps_per_second", c.SnapsPerSecond)
	case c.Encoding != snapshot.EncodingJSON && c.Encoding != snapshot.EncodingBinary:
		return invalid("encoding", c.Encoding)
	case c.MaxMessageSize <= snapshot.HeaderSize:
		return invalid("max_message_size", c.MaxMessageSize)
	case c.SerializeWorkers <= 0:
		return invalid("serialize_workers", c.SerializeWorkers)
	case c.InboundQueueSize <= 0:
		return invalid("inbound_queue_size", c.InboundQueueSize)
	case c.ShutdownTimeout <= 0:
		return invalid("shutdown_timeout", c.ShutdownTimeout)
	case (c.TLSCertFile == "") != (c.TLSKeyFile == ""):
		return invalid("tls_key_file", c.TLSKeyFile)
	}
	for i, sp := range c.Spawn {
		if sp.Prefab == "" || sp.Name == "" {
			return invalid(fmt.Sprintf("spawn[%d]", i), sp)
		}
	}
	return nil
}

func (c Config) networkConfig() network.Config {
	return network.Config{
		SnapsPerSecond:   c.SnapsPerSecond,
		Encoding:         c.Encoding,
		ProtocolVersion:  c.ProtocolVersion,
		MaxMessageSize:   c.MaxMessageSize,
		SerializeWorkers: c.SerializeWorkers,
	}
}

func (c Config) tickInterval() time.Duration {
	return time.Second / time.Duration(c.TickRate)
}
