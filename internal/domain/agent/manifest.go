package agent

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/bytedance/sonic"
	"github.com/goccy/go-yaml"
	"github.com/pelletier/go-toml/v2"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/synapse/internal/shared/id"
)

// Manifest declares agents to register at startup
type Manifest struct {
	// AutoStart starts every agent that does not override it
	AutoStart bool         `json:"auto_start" yaml:"auto_start" toml:"auto_start"`
	Agents    []Definition `json:"agents" yaml:"agents" toml:"agents"`
}

// Definition is one agent entry
type Definition struct {
	Name      string   `json:"name" yaml:"name" toml:"name"`
	Command   string   `json:"command" yaml:"command" toml:"command"`
	Args      []string `json:"args,omitempty" yaml:"args,omitempty" toml:"args,omitempty"`
	AutoStart *bool    `json:"auto_start,omitempty" yaml:"auto_start,omitempty" toml:"auto_start,omitempty"`
}

// ShouldStart resolves the entry's auto-start flag against the default
func (d Definition) ShouldStart(fallback bool) bool {
	if d.AutoStart != nil {
		return *d.AutoStart
	}
	return fallback
}

// LoadManifest reads a manifest, choosing the decoder by file extension
func LoadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}

	manifest, err := ParseManifest(data, filepath.Ext(path))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return manifest, nil
}

// ParseManifest decodes data in the given format (".yaml", ".yml", ".toml"
// or ".json", leading dot optional) and validates it.
func ParseManifest(data []byte, format string) (*Manifest, error) {
	var manifest Manifest

	var err error
	switch strings.ToLower(strings.TrimPrefix(format, ".")) {
	case "yaml", "yml":
		err = yaml.Unmarshal(data, &manifest)
	case "toml":
		err = toml.Unmarshal(data, &manifest)
	case "json":
		err = sonic.Unmarshal(data, &manifest)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedManifest, format)
	}
	if err != nil {
		return nil, fmt.Errorf("decode manifest: %w", err)
	}

	if err := manifest.Validate(); err != nil {
		return nil, err
	}
	return &manifest, nil
}

// Validate checks that every entry has a name and command and that names
// are unique.
func (m *Manifest) Validate() error {
	var errs []error
	seen := make(map[string]bool, len(m.Agents))

	for i, def := range m.Agents {
		switch {
		case strings.TrimSpace(def.Name) == "":
			errs = append(errs, fmt.Errorf("agents[%d]: name is required", i))
		case seen[def.Name]:
			errs = append(errs, fmt.Errorf("agents[%d]: duplicate name %q", i, def.Name))
		}
		seen[def.Name] = true

		if strings.TrimSpace(def.Command) == "" {
			errs = append(errs, fmt.Errorf("agents[%d]: command is required", i))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalidManifest, errors.Join(errs...))
	}
	return nil
}

// Apply registers every manifest entry and starts the ones marked for
// auto-start. Start failures are logged and collected; registration
// always completes.
func (s *Supervisor) Apply(m *Manifest, autoStart bool) ([]id.AgentID, error) {
	fallback := autoStart || m.AutoStart

	ids := make([]id.AgentID, 0, len(m.Agents))
	var errs []error
	for _, def := range m.Agents {
		agent := s.Register(def.Name, def.Command, def.Args)
		ids = append(ids, agent.ID)

		if !def.ShouldStart(fallback) {
			continue
		}
		if err := s.Start(agent.ID); err != nil {
			s.logger.Warn("Auto-start failed",
				zap.String("agent_id", agent.ID.String()),
				zap.String("name", def.Name),
				zap.Error(err),
			)
			errs = append(errs, fmt.Errorf("%s: %w", def.Name, err))
		}
	}
	return ids, errors.Join(errs...)
}
