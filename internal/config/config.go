// Package config resolves harness configuration from an optional YAML file
// and environment overrides. Environment variables win over the file.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Environment overrides.
const (
	EnvDebugPort   = "PEERVAULT_DEBUG_PORT"   // discovery port on localhost
	EnvEndpointA   = "PEERVAULT_ENDPOINT_A"   // direct WebSocket URL for peer A (skips discovery)
	EnvEndpointB   = "PEERVAULT_ENDPOINT_B"   // direct WebSocket URL for peer B (skips discovery)
	EnvFixtureRoot = "PEERVAULT_FIXTURE_ROOT" // vault folder fixtures are created under
)

// Config is the fully resolved harness configuration.
type Config struct {
	// DebugPort is the DevTools discovery port on localhost.
	DebugPort int `yaml:"debugPort"`

	// PeerAName and PeerBName are the logical instance names resolved
	// against discovered window titles.
	PeerAName string `yaml:"peerAName"`
	PeerBName string `yaml:"peerBName"`

	// EndpointA / EndpointB, when set, are used directly and discovery is
	// skipped for that peer.
	EndpointA string `yaml:"endpointA"`
	EndpointB string `yaml:"endpointB"`

	// FixtureRoot is the vault folder fixtures are generated under.
	FixtureRoot string `yaml:"fixtureRoot"`

	// ConvergeTimeout bounds each convergence wait.
	ConvergeTimeout time.Duration `yaml:"convergeTimeout"`

	// CallTimeout bounds each protocol round trip.
	CallTimeout time.Duration `yaml:"callTimeout"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		DebugPort:       9222,
		PeerAName:       "peer-a",
		PeerBName:       "peer-b",
		FixtureRoot:     "e2e",
		ConvergeTimeout: 60 * time.Second,
		CallTimeout:     10 * time.Second,
	}
}

// Load resolves the configuration: defaults, then the YAML file at path (if
// path is empty a missing file is not an error), then environment overrides.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, readErr := os.ReadFile(path)
		switch {
		case errors.Is(readErr, fs.ErrNotExist):
			return Config{}, fmt.Errorf("config file %q does not exist", path)
		case readErr != nil:
			return Config{}, fmt.Errorf("failed to read config file %q: %w", path, readErr)
		default:
			if unmarshalErr := yaml.Unmarshal(data, &cfg); unmarshalErr != nil {
				return Config{}, fmt.Errorf("failed to parse config file %q: %w", path, unmarshalErr)
			}
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return Config{}, err
	}
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	if portStr, found := os.LookupEnv(EnvDebugPort); found && portStr != "" {
		port, parseErr := strconv.Atoi(portStr)
		if parseErr != nil {
			return fmt.Errorf("invalid %s %q: %w", EnvDebugPort, portStr, parseErr)
		}
		c.DebugPort = port
	}
	if ep, found := os.LookupEnv(EnvEndpointA); found && ep != "" {
		c.EndpointA = ep
	}
	if ep, found := os.LookupEnv(EnvEndpointB); found && ep != "" {
		c.EndpointB = ep
	}
	if root, found := os.LookupEnv(EnvFixtureRoot); found && root != "" {
		c.FixtureRoot = root
	}
	return nil
}

func (c *Config) validate() error {
	if c.DebugPort <= 0 || c.DebugPort > 65535 {
		return fmt.Errorf("debug port %d is out of range", c.DebugPort)
	}
	if c.PeerAName == c.PeerBName {
		return fmt.Errorf("peer names must differ, both are %q", c.PeerAName)
	}
	if c.ConvergeTimeout <= 0 {
		return errors.New("converge timeout must be positive")
	}
	if c.CallTimeout <= 0 {
		return errors.New("call timeout must be positive")
	}
	return nil
}

// DiscoveryBaseURL returns the local listing endpoint.
func (c Config) DiscoveryBaseURL() string {
	return fmt.Sprintf("http://127.0.0.1:%d", c.DebugPort)
}
