package prefab

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/zeusync/scenesync/internal/core/parameter"
)

var (
	ErrEmptyPrefabName = errors.New("prefab name is empty")
	ErrUnknownPrefab   = errors.New("unknown prefab")
	ErrPrefabConflict  = errors.New("prefab already registered with a different definition")
	ErrNoPhysics       = errors.New("prefab needs physics but no physics capability is configured")
	ErrUnknownFormat   = errors.New("unknown prefab file format")
)

// Definition describes an entity template. Children are instantiated
// recursively and attached under the created entity.
type Definition struct {
	Name      string       `json:"name" yaml:"name"`
	Scripts   []string     `json:"scripts,omitempty" yaml:"scripts,omitempty"`
	Collision *Collision   `json:"collision,omitempty" yaml:"collision,omitempty"`
	RigidBody *RigidBody   `json:"rigidBody,omitempty" yaml:"rigidBody,omitempty"`
	Children  []Definition `json:"children,omitempty" yaml:"children,omitempty"`
}

type Collision struct {
	Shape       string         `json:"shape" yaml:"shape"`
	HalfExtents parameter.Vec3 `json:"halfExtents" yaml:"halfExtents"`
	Radius      float64        `json:"radius,omitempty" yaml:"radius,omitempty"`
	Length      float64        `json:"length,omitempty" yaml:"length,omitempty"`
}

type RigidBody struct {
	Type           string  `json:"type" yaml:"type"`
	Mass           float64 `json:"mass,omitempty" yaml:"mass,omitempty"`
	Restitution    float64 `json:"restitution,omitempty" yaml:"restitution,omitempty"`
	Friction       float64 `json:"friction,omitempty" yaml:"friction,omitempty"`
	LinearDamping  float64 `json:"linearDamping,omitempty" yaml:"linearDamping,omitempty"`
	AngularDamping float64 `json:"angularDamping,omitempty" yaml:"angularDamping,omitempty"`
}

// LoadJSON reads a JSON array of definitions.
func LoadJSON(r io.Reader) ([]Definition, error) {
	var defs []Definition
	dec := json.NewDecoder(r)
	if err := dec.Decode(&defs); err != nil {
		return nil, fmt.Errorf("decode prefabs: %w", err)
	}
	return defs, nil
}

// LoadYAML reads a YAML sequence of definitions.
func LoadYAML(r io.Reader) ([]Definition, error) {
	var defs []Definition
	dec := yaml.NewDecoder(r)
	if err := dec.Decode(&defs); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("decode prefabs: %w", err)
	}
	return defs, nil
}

// LoadFile picks the decoder from the file extension.
func LoadFile(path string) ([]Definition, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return LoadJSON(f)
	case ".yaml", ".yml":
		return LoadYAML(f)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownFormat, path)
	}
}
