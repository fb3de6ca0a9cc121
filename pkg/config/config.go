package config

// Package config provides a reusable loader for Plexus fabric configuration
// files and environment variables. It is versioned so that applications can
// depend on a stable API contract.
//
// Version: v0.1.0

import (
	"fmt"

	"github.com/spf13/viper"

	"plexus/pkg/utils"
)

// Version is the semantic version of this configuration package.
const Version = "v0.1.0"

// Config represents the unified configuration for a fabric node. It is
// unmarshalled from the YAML files Load reads (default.yaml plus an optional
// per-environment file, searched for under cmd/config and config).
type Config struct {
	Network struct {
		BindInterface string `mapstructure:"bind_interface" json:"bind_interface"`
		MulticastCIDR string `mapstructure:"multicast_cidr" json:"multicast_cidr"`
		Port          int    `mapstructure:"port" json:"port"`
		TTL           int    `mapstructure:"ttl" json:"ttl"`
	} `mapstructure:"network" json:"network"`

	Consensus struct {
		HeartbeatIntervalSeconds int `mapstructure:"heartbeat_interval_seconds" json:"heartbeat_interval_seconds"`
		PeerTimeoutSeconds       int `mapstructure:"peer_timeout_seconds" json:"peer_timeout_seconds"`
		ProposalTimeoutSeconds   int `mapstructure:"proposal_timeout_seconds" json:"proposal_timeout_seconds"`
		ReservedAddresses        int `mapstructure:"reserved_addresses" json:"reserved_addresses"`
	} `mapstructure:"consensus" json:"consensus"`

	Neurons struct {
		Relevant []string `mapstructure:"relevant" json:"relevant"`
		Ignored  []string `mapstructure:"ignored" json:"ignored"`
	} `mapstructure:"neurons" json:"neurons"`

	Codecs struct {
		Allowed []string `mapstructure:"allowed" json:"allowed"`
	} `mapstructure:"codecs" json:"codecs"`

	Logging struct {
		Level string `mapstructure:"level" json:"level"`
		File  string `mapstructure:"file" json:"file"`
	} `mapstructure:"logging" json:"logging"`
}

// AppConfig holds the configuration loaded via Load or LoadFromEnv.
var AppConfig Config

// Load reads configuration files and merges any environment specific
// overrides. The resulting configuration is stored in AppConfig and returned.
//
// The function uses the provided environment name to merge additional config
// files. If env is empty, only the default configuration is loaded.
func Load(env string) (*Config, error) {
	viper.SetConfigName("default")
	viper.AddConfigPath("cmd/config")
	viper.AddConfigPath("config")
	viper.SetConfigType("yaml")
	if err := viper.ReadInConfig(); err != nil {
		return nil, utils.Wrap(err, "load config")
	}

	if env != "" {
		viper.SetConfigName(env)
		if err := viper.MergeInConfig(); err != nil {
			return nil, utils.Wrap(err, fmt.Sprintf("merge %s config", env))
		}
	}

	viper.AutomaticEnv() // picks up from .env

	if err := viper.Unmarshal(&AppConfig); err != nil {
		return nil, utils.Wrap(err, "unmarshal config")
	}
	return &AppConfig, nil
}

// LoadFromEnv loads configuration using the PLEXUS_ENV environment variable.
func LoadFromEnv() (*Config, error) {
	return Load(utils.EnvOrDefault("PLEXUS_ENV", ""))
}
