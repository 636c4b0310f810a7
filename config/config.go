// Copyright (C) 2019-2024, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package config loads and validates the node's configuration: a
// viper.Viper reads OCM_-prefixed environment variables and an optional
// config file, unmarshals them into Config, and Validate rejects the
// malformed combinations spec.md §6 calls out.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/musictopeople/ocm-go/utils/logging"
)

const envPrefix = "OCM"

var (
	errP2PDiscoveryPortsEqual = errors.New("config: p2p and discovery ports must differ")
	errDataDirEmpty           = errors.New("config: data-dir must be set")
	errSharedSecretEmpty      = errors.New("config: shared-secret must be set")
	errDirectoryURLInvalid    = errors.New("config: directory-url is not a valid http(s) URL")
)

// NetworkConfig configures the C6 transport and, optionally, C7 discovery.
type NetworkConfig struct {
	ListenHost       string        `mapstructure:"listen-host"`
	ListenPort       uint16        `mapstructure:"listen-port"`
	SharedSecret     string        `mapstructure:"shared-secret"`
	AdvertiseAddr    string        `mapstructure:"advertise-addr"`
	DiscoveryEnabled bool          `mapstructure:"discovery-enabled"`
	DiscoveryPort    uint16        `mapstructure:"discovery-port"`
	BroadcastAddr    string        `mapstructure:"broadcast-addr"`
	NATTraversal     bool          `mapstructure:"nat-traversal"`
	SyncInterval     time.Duration `mapstructure:"sync-interval"`
}

// DirectoryConfig configures the best-effort DID directory client.
type DirectoryConfig struct {
	URL     string        `mapstructure:"url"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// Config is the node's full, validated configuration surface.
type Config struct {
	DataDir   string          `mapstructure:"data-dir"`
	Network   NetworkConfig   `mapstructure:"network"`
	Directory DirectoryConfig `mapstructure:"directory"`
	Logging   logging.Config  `mapstructure:"-"`

	LogLevel        string `mapstructure:"log-level"`
	LogDisplayLevel string `mapstructure:"log-display-level"`
	LogDir          string `mapstructure:"log-dir"`
	LogJSON         bool   `mapstructure:"log-json"`
}

// Default returns the config every unset key resolves to, mirroring the
// teacher's habit of seeding viper with defaults before a file/env
// override is applied.
func Default() Config {
	return Config{
		DataDir: "./ocm-data",
		Network: NetworkConfig{
			ListenHost:    "0.0.0.0",
			ListenPort:    9651,
			DiscoveryPort: 9652,
			BroadcastAddr: "255.255.255.255:9652",
			SyncInterval:  30 * time.Second,
		},
		Directory: DirectoryConfig{
			Timeout: 5 * time.Second,
		},
		LogLevel:        "info",
		LogDisplayLevel: "info",
		LogJSON:         true,
	}
}

// NewViper builds a viper.Viper primed with Default()'s values, an
// OCM_-prefixed environment reader, and (if configFile is non-empty) a
// config file to merge on top.
func NewViper(configFile string) (*viper.Viper, error) {
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	def := Default()
	v.SetDefault("data-dir", def.DataDir)
	v.SetDefault("network.listen-host", def.Network.ListenHost)
	v.SetDefault("network.listen-port", def.Network.ListenPort)
	v.SetDefault("network.discovery-port", def.Network.DiscoveryPort)
	v.SetDefault("network.broadcast-addr", def.Network.BroadcastAddr)
	v.SetDefault("network.sync-interval", def.Network.SyncInterval)
	v.SetDefault("directory.timeout", def.Directory.Timeout)
	v.SetDefault("log-level", def.LogLevel)
	v.SetDefault("log-display-level", def.LogDisplayLevel)
	v.SetDefault("log-json", def.LogJSON)

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("config: read config file: %w", err)
		}
	}
	return v, nil
}

// Load unmarshals v into a Config and validates it.
func Load(v *viper.Viper) (*Config, error) {
	cfg := Default()
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}

	level, err := logging.ToLevel(cfg.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	displayLevel, err := logging.ToLevel(cfg.LogDisplayLevel)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	cfg.Logging = logging.Config{
		Level:        level,
		DisplayLevel: displayLevel,
		Directory:    cfg.LogDir,
		JSONFormat:   cfg.LogJSON,
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects the malformed configurations spec.md §6 calls out:
// equal P2P/discovery ports, an unknown log level, and a malformed
// directory URL.
func (c *Config) Validate() error {
	if c.DataDir == "" {
		return errDataDirEmpty
	}
	if c.Network.SharedSecret == "" {
		return errSharedSecretEmpty
	}
	if c.Network.DiscoveryEnabled && c.Network.ListenPort == c.Network.DiscoveryPort {
		return errP2PDiscoveryPortsEqual
	}
	if _, err := logging.ToLevel(c.LogLevel); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if c.Directory.URL != "" {
		u, err := url.Parse(c.Directory.URL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return errDirectoryURLInvalid
		}
	}
	return nil
}
