// Package config loads renderbridge.yaml.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/go-drift/renderbridge/pkg/codec"
	"github.com/go-drift/renderbridge/pkg/logging"
	"golang.org/x/mod/semver"
	"gopkg.in/yaml.v3"
)

// FileName is the configuration file looked up in a project directory.
const FileName = "renderbridge.yaml"

// Transport networks.
const (
	NetworkStream = "stream"
	NetworkGRPC   = "grpc"
)

// Defaults applied by Resolve.
const (
	DefaultRuntimeID   = 1
	DefaultDensity     = 1.0
	DefaultNetwork     = NetworkStream
	DefaultAddr        = "127.0.0.1:7420"
	DefaultLogLevel    = "info"
	defaultWireVersion = "v13"
)

// Config mirrors renderbridge.yaml.
type Config struct {
	Runtime   RuntimeConfig   `yaml:"runtime"`
	Wire      WireConfig      `yaml:"wire"`
	Strings   StringsConfig   `yaml:"strings"`
	Transport TransportConfig `yaml:"transport"`
	Inspect   InspectConfig   `yaml:"inspect"`
	Log       LogConfig       `yaml:"log"`
}

// RuntimeConfig describes the runtime instance served by this process.
type RuntimeConfig struct {
	ID      int64   `yaml:"id,omitempty"`
	Density float64 `yaml:"density,omitempty"`
}

// WireConfig selects the payload format version.
type WireConfig struct {
	Version string `yaml:"version,omitempty"`
}

// StringsConfig bounds the per-runtime string table.
type StringsConfig struct {
	MaxEntries int `yaml:"max_entries,omitempty"`
}

// TransportConfig selects how commands reach the bridge.
type TransportConfig struct {
	Network string `yaml:"network,omitempty"`
	Addr    string `yaml:"addr,omitempty"`
}

// InspectConfig enables the JSON-RPC inspector when Addr is set.
type InspectConfig struct {
	Addr string `yaml:"addr,omitempty"`
}

// LogConfig controls logging.
type LogConfig struct {
	Level   string `yaml:"level,omitempty"`
	Verbose bool   `yaml:"verbose,omitempty"`
}

// Resolved holds validated settings with defaults applied.
type Resolved struct {
	Path        string
	RuntimeID   int64
	Density     float32
	WireVersion uint32
	MaxStrings  int
	Network     string
	Addr        string
	InspectAddr string
	LogLevel    slog.Level
	Verbose     bool
}

// Load reads and parses the file at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return &cfg, nil
}

// LoadOptional reads renderbridge.yaml from dir if present. A missing file
// yields an empty Config.
func LoadOptional(dir string) (*Config, error) {
	cfg, err := Load(filepath.Join(dir, FileName))
	if errors.Is(err, os.ErrNotExist) {
		return &Config{}, nil
	}
	return cfg, err
}

// Resolve loads renderbridge.yaml from dir (if present) and resolves
// defaults.
func Resolve(dir string) (*Resolved, error) {
	cfg, err := LoadOptional(dir)
	if err != nil {
		return nil, err
	}
	r, err := cfg.Resolve()
	if err != nil {
		return nil, err
	}
	r.Path = filepath.Join(dir, FileName)
	return r, nil
}

// Resolve validates c and applies defaults.
func (c *Config) Resolve() (*Resolved, error) {
	r := &Resolved{
		RuntimeID:   c.Runtime.ID,
		Density:     float32(c.Runtime.Density),
		MaxStrings:  c.Strings.MaxEntries,
		Network:     strings.ToLower(strings.TrimSpace(c.Transport.Network)),
		Addr:        strings.TrimSpace(c.Transport.Addr),
		InspectAddr: strings.TrimSpace(c.Inspect.Addr),
		LogLevel:    logging.ParseLevel(c.Log.Level),
		Verbose:     c.Log.Verbose,
	}
	if r.RuntimeID == 0 {
		r.RuntimeID = DefaultRuntimeID
	}
	if c.Runtime.Density < 0 {
		return nil, fmt.Errorf("runtime.density must be positive, got %v", c.Runtime.Density)
	}
	if r.Density == 0 {
		r.Density = DefaultDensity
	}
	if r.MaxStrings < 0 {
		return nil, fmt.Errorf("strings.max_entries must not be negative, got %d", r.MaxStrings)
	}
	if r.MaxStrings == 0 {
		r.MaxStrings = codec.DefaultMaxEntries
	}
	switch r.Network {
	case "":
		r.Network = DefaultNetwork
	case NetworkStream, NetworkGRPC:
	default:
		return nil, fmt.Errorf("transport.network must be %q or %q, got %q", NetworkStream, NetworkGRPC, r.Network)
	}
	if r.Addr == "" {
		r.Addr = DefaultAddr
	}

	version, err := ParseWireVersion(c.Wire.Version)
	if err != nil {
		return nil, err
	}
	r.WireVersion = version
	return r, nil
}

// ParseWireVersion accepts "13", "v13" or a full semantic version such as
// "v13.0.0" and returns the major number. Empty selects the default.
func ParseWireVersion(s string) (uint32, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		s = defaultWireVersion
	}
	if !strings.HasPrefix(s, "v") {
		s = "v" + s
	}
	if !semver.IsValid(s) {
		return 0, fmt.Errorf("wire.version %q is not a valid version", s)
	}
	lo := "v" + strconv.FormatUint(uint64(codec.MinVersion), 10)
	hi := "v" + strconv.FormatUint(uint64(codec.MaxVersion), 10)
	major := semver.Major(s)
	if semver.Compare(major, lo) < 0 || semver.Compare(major, hi) > 0 {
		return 0, fmt.Errorf("wire.version %s outside supported range %s..%s", major, lo, hi)
	}
	n, err := strconv.ParseUint(strings.TrimPrefix(major, "v"), 10, 32)
	if err != nil {
		return 0, fmt.Errorf("wire.version %q: %w", s, err)
	}
	return uint32(n), nil
}

// FindRoot walks up from dir to the nearest directory holding
// renderbridge.yaml. It returns dir itself when none is found.
func FindRoot(dir string) string {
	for cur := dir; ; {
		if _, err := os.Stat(filepath.Join(cur, FileName)); err == nil {
			return cur
		}
		parent := filepath.Dir(cur)
		if parent == cur {
			return dir
		}
		cur = parent
	}
}
