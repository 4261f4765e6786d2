package config

// Configuration loading and validation for the enipstate server

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/tturner/enipstate/internal/errors"
)

// ServerSettings holds the listener and session policy.
type ServerSettings struct {
	ListenIP         string `yaml:"listen_ip"`
	TCPPort          int    `yaml:"tcp_port"`
	MaxSessions      int    `yaml:"max_sessions"`
	MaxSessionsPerIP int    `yaml:"max_sessions_per_ip"`
	IdleTimeoutSec   int    `yaml:"idle_timeout_sec"`
	RequireRegister  *bool  `yaml:"require_register,omitempty"`
}

// LoggingSettings holds log level and optional log file.
type LoggingSettings struct {
	Level string `yaml:"level"`
	File  string `yaml:"file,omitempty"`
}

// IdentitySettings describes what the server advertises in ListServices.
type IdentitySettings struct {
	ServiceName     string `yaml:"service_name"`
	CapabilityFlags uint16 `yaml:"capability_flags"`
}

// ParserSettings toggles payload grammars. Disabled CPF item types parse as
// opaque bytes; disabled commands are answered with an invalid-command
// status.
type ParserSettings struct {
	DisableItems    []uint16 `yaml:"disable_items,omitempty"`
	DisableCommands []uint16 `yaml:"disable_commands,omitempty"`
}

// ServerConfig is the root of the server configuration file.
type ServerConfig struct {
	Server   ServerSettings   `yaml:"server"`
	Logging  LoggingSettings  `yaml:"logging"`
	Identity IdentitySettings `yaml:"identity"`
	Parser   ParserSettings   `yaml:"parser,omitempty"`
}

// CreateDefaultServerConfig returns the configuration used when no file is
// given.
func CreateDefaultServerConfig() *ServerConfig {
	requireRegister := true
	return &ServerConfig{
		Server: ServerSettings{
			ListenIP:         "0.0.0.0",
			TCPPort:          44818,
			MaxSessions:      64,
			MaxSessionsPerIP: 8,
			IdleTimeoutSec:   60,
			RequireRegister:  &requireRegister,
		},
		Logging: LoggingSettings{
			Level: "info",
		},
		Identity: IdentitySettings{
			ServiceName:     "Communications",
			CapabilityFlags: 0x0120,
		},
	}
}

// LoadServerConfig loads and validates a server configuration file.
func LoadServerConfig(path string) (*ServerConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.WrapConfigError(err, path)
	}

	cfg := CreateDefaultServerConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, errors.WrapConfigError(fmt.Errorf("parse YAML: %w", err), path)
	}

	applyServerDefaults(cfg)
	if err := ValidateServerConfig(cfg); err != nil {
		return nil, errors.WrapConfigError(err, path)
	}
	return cfg, nil
}

// ValidateServerConfig checks field ranges and cross-field consistency.
func ValidateServerConfig(cfg *ServerConfig) error {
	if cfg.Server.ListenIP == "" {
		return fmt.Errorf("server.listen_ip must be set")
	}
	if cfg.Server.TCPPort < 1 || cfg.Server.TCPPort > 65535 {
		return fmt.Errorf("server.tcp_port %d out of range 1-65535", cfg.Server.TCPPort)
	}
	if cfg.Server.MaxSessions < 1 {
		return fmt.Errorf("server.max_sessions must be at least 1")
	}
	if cfg.Server.MaxSessionsPerIP < 1 {
		return fmt.Errorf("server.max_sessions_per_ip must be at least 1")
	}
	if cfg.Server.MaxSessionsPerIP > cfg.Server.MaxSessions {
		return fmt.Errorf("server.max_sessions_per_ip %d exceeds server.max_sessions %d",
			cfg.Server.MaxSessionsPerIP, cfg.Server.MaxSessions)
	}
	if cfg.Server.IdleTimeoutSec < 0 {
		return fmt.Errorf("server.idle_timeout_sec must not be negative")
	}
	switch cfg.Logging.Level {
	case "", "silent", "error", "info", "verbose", "debug":
	default:
		return fmt.Errorf("logging.level %q is not one of silent, error, info, verbose, debug", cfg.Logging.Level)
	}
	if cfg.Identity.ServiceName == "" {
		return fmt.Errorf("identity.service_name must be set")
	}
	if len(cfg.Identity.ServiceName) > 64 {
		return fmt.Errorf("identity.service_name longer than 64 characters")
	}
	return nil
}

func applyServerDefaults(cfg *ServerConfig) {
	def := CreateDefaultServerConfig()
	if cfg.Server.ListenIP == "" {
		cfg.Server.ListenIP = def.Server.ListenIP
	}
	if cfg.Server.TCPPort == 0 {
		cfg.Server.TCPPort = def.Server.TCPPort
	}
	if cfg.Server.MaxSessions == 0 {
		cfg.Server.MaxSessions = def.Server.MaxSessions
	}
	if cfg.Server.MaxSessionsPerIP == 0 {
		cfg.Server.MaxSessionsPerIP = def.Server.MaxSessionsPerIP
	}
	if cfg.Server.IdleTimeoutSec == 0 {
		cfg.Server.IdleTimeoutSec = def.Server.IdleTimeoutSec
	}
	if cfg.Server.RequireRegister == nil {
		cfg.Server.RequireRegister = def.Server.RequireRegister
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = def.Logging.Level
	}
	if cfg.Identity.ServiceName == "" {
		cfg.Identity.ServiceName = def.Identity.ServiceName
	}
	if cfg.Identity.CapabilityFlags == 0 {
		cfg.Identity.CapabilityFlags = def.Identity.CapabilityFlags
	}
}

// WriteDefaultServerConfig writes an annotated default configuration file.
func WriteDefaultServerConfig(path string) error {
	cfg := CreateDefaultServerConfig()
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal default config: %w", err)
	}
	header := []byte("# enipstate server configuration\n")
	if err := os.WriteFile(path, append(header, data...), 0o644); err != nil {
		return fmt.Errorf("write default config: %w", err)
	}
	return nil
}
