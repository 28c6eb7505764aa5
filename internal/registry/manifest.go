package registry

import (
	"fmt"

	"github.com/anttikivi/semver"
	"github.com/go-viper/mapstructure/v2"
)

// TransportKind names the plugin transport variants a manifest may declare.
type TransportKind string

// The supported transport kinds.
const (
	TransportStdio TransportKind = "stdio"
	TransportHTTP  TransportKind = "http"
)

// Manifest is the parsed, validated contents of one plugin's cattackle.toml.
type Manifest struct {
	Name        string
	Version     *semver.Version
	Description string
	Commands    map[string]CommandInfo
	MCP         MCPConfig

	// Dir is the directory the manifest was loaded from, not part of the
	// TOML schema itself.
	Dir string
}

// CommandInfo describes one command a plugin advertises.
type CommandInfo struct {
	Description string `mapstructure:"description" toml:"description"`
}

// MCPConfig is the manifest's [cattackle.mcp] table: a tagged union keyed by
// Transport.
type MCPConfig struct {
	Transport     TransportKind     `mapstructure:"transport" toml:"transport"`
	TimeoutSecs   float64           `mapstructure:"timeout" toml:"timeout"`
	MaxRetries    int               `mapstructure:"max_retries" toml:"max_retries"`
	Command       string            `mapstructure:"command" toml:"command"`
	Args          []string          `mapstructure:"args" toml:"args"`
	Cwd           string            `mapstructure:"cwd" toml:"cwd"`
	Env           map[string]string `mapstructure:"env" toml:"env"`
	URL           string            `mapstructure:"url" toml:"url"`
	AuthHeaders   map[string]string `mapstructure:"auth_headers" toml:"auth_headers"`
}

// rawManifest mirrors the on-disk TOML shape before validation.
type rawManifest struct {
	Cattackle rawCattackle `toml:"cattackle"`
}

type rawCattackle struct {
	Name        string                 `toml:"name"`
	Version     string                 `toml:"version"`
	Description string                 `toml:"description"`
	Commands    map[string]CommandInfo `toml:"commands"`
	MCP         map[string]any         `toml:"mcp"`
}

func toManifest(raw rawManifest, dir string) (*Manifest, error) {
	if raw.Cattackle.Name == "" {
		return nil, fmt.Errorf("%w: missing cattackle.name", errInvalidManifest)
	}

	v, err := semver.Parse(raw.Cattackle.Version)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid cattackle.version %q: %w", errInvalidManifest, raw.Cattackle.Version, err)
	}

	var mcp MCPConfig

	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		Result:           &mcp,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to build mcp config decoder: %w", err)
	}

	if err := decoder.Decode(raw.Cattackle.MCP); err != nil {
		return nil, fmt.Errorf("%w: invalid cattackle.mcp: %w", errInvalidManifest, err)
	}

	switch mcp.Transport {
	case TransportStdio:
		if mcp.Command == "" {
			return nil, fmt.Errorf("%w: stdio transport requires mcp.command", errInvalidManifest)
		}
	case TransportHTTP:
		if mcp.URL == "" {
			return nil, fmt.Errorf("%w: http transport requires mcp.url", errInvalidManifest)
		}
	default:
		return nil, fmt.Errorf("%w: unsupported mcp.transport %q", errInvalidManifest, mcp.Transport)
	}

	if mcp.TimeoutSecs <= 0 {
		mcp.TimeoutSecs = defaultTimeoutSecs
	}

	if _, set := raw.Cattackle.MCP["max_retries"]; !set || mcp.MaxRetries < 0 {
		mcp.MaxRetries = defaultMaxRetries
	}

	return &Manifest{
		Name:        raw.Cattackle.Name,
		Version:     v,
		Description: raw.Cattackle.Description,
		Commands:    raw.Cattackle.Commands,
		MCP:         mcp,
		Dir:         dir,
	}, nil
}
