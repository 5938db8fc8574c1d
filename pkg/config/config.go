// Package config provides YAML-based configuration loading for redfoxmq
// nodes: logging, listener endpoints and socket tuning.
package config

import (
    "errors"
    "fmt"
    "os"
    "path/filepath"
    "strings"
    "time"

    "github.com/spf13/viper"

    "github.com/Dmdv/redfoxmq/pkg/transport"
)

// Config is the root application configuration.
type Config struct {
    // AppName optional logical name of the node/application
    AppName string `mapstructure:"app_name"`

    // Log holds logging configuration
    Log LogConfig `mapstructure:"log"`

    // Listeners configures the endpoints this node accepts connections on
    Listeners []ListenerConfig `mapstructure:"listeners"`

    // Socket holds the tuning applied to every accepted/dialed connection
    Socket SocketConfig `mapstructure:"socket"`
}

// LogConfig defines logger settings.
type LogConfig struct {
    // Level: debug, info, warn, error
    Level string `mapstructure:"level"`
    // Format: console or json
    Format string `mapstructure:"format"`
    // Outputs: list of outputs: stdout, stderr, or file paths
    Outputs []string `mapstructure:"outputs"`

    // Rotation controls file rotation when writing to files
    Rotation RotationConfig `mapstructure:"rotation"`
    // Development toggles development-friendly logging options
    Development bool `mapstructure:"development"`
}

// RotationConfig controls log file rotation for file outputs.
type RotationConfig struct {
    Enable     bool   `mapstructure:"enable"`
    Filename   string `mapstructure:"filename"`
    MaxSizeMB  int    `mapstructure:"max_size_mb"`
    MaxBackups int    `mapstructure:"max_backups"`
    MaxAgeDays int    `mapstructure:"max_age_days"`
    Compress   bool   `mapstructure:"compress"`
}

// ListenerConfig describes one endpoint to accept connections on.
// Example YAML:
//
//	listeners:
//	  - kind: tcp
//	    host: 0.0.0.0
//	    port: 7055
//	    node_type: backbone
//	  - kind: quic
//	    host: 0.0.0.0
//	    port: 7056
//	  - kind: inproc
//	    name: broker
type ListenerConfig struct {
    Kind     string `mapstructure:"kind"`
    Host     string `mapstructure:"host"`
    Port     int    `mapstructure:"port"`
    Name     string `mapstructure:"name"`
    NodeType string `mapstructure:"node_type"`
}

// Endpoint converts the listener section to a transport endpoint.
func (l ListenerConfig) Endpoint() (transport.Endpoint, error) {
    kind, err := transport.ParseKind(l.Kind)
    if err != nil {
        return transport.Endpoint{}, err
    }
    ep := transport.Endpoint{Kind: kind, Host: l.Host, Port: l.Port, Name: l.Name}
    if err := ep.Validate(); err != nil {
        return transport.Endpoint{}, err
    }
    return ep, nil
}

// Node returns the node-type policy for the listener; anything but "leaf"
// means backbone.
func (l ListenerConfig) Node() transport.NodeType {
    if strings.ToLower(strings.TrimSpace(l.NodeType)) == "leaf" {
        return transport.NodeLeaf
    }
    return transport.NodeBackbone
}

// SocketConfig mirrors transport.SocketConfig in config-file units
// (milliseconds and bytes).
type SocketConfig struct {
    SendTimeoutMS     int `mapstructure:"send_timeout_ms"`
    ReceiveTimeoutMS  int `mapstructure:"receive_timeout_ms"`
    SendBufferSize    int `mapstructure:"send_buffer_size"`
    ReceiveBufferSize int `mapstructure:"receive_buffer_size"`
}

// Transport converts the section to the value the transport layer takes.
func (s SocketConfig) Transport() transport.SocketConfig {
    return transport.SocketConfig{
        SendTimeout:       time.Duration(s.SendTimeoutMS) * time.Millisecond,
        ReceiveTimeout:    time.Duration(s.ReceiveTimeoutMS) * time.Millisecond,
        SendBufferSize:    s.SendBufferSize,
        ReceiveBufferSize: s.ReceiveBufferSize,
    }
}

// Default returns a Config populated with sensible defaults.
func Default() *Config {
    return &Config{
        AppName: "redfoxmq-node",
        Log: LogConfig{
            Level:       "info",
            Format:      "console",
            Outputs:     []string{"stdout"},
            Development: true,
            Rotation: RotationConfig{
                Enable:     false,
                Filename:   "logs/redfoxmq.log",
                MaxSizeMB:  50,
                MaxBackups: 3,
                MaxAgeDays: 28,
                Compress:   true,
            },
        },
        Listeners: []ListenerConfig{
            {Kind: "tcp", Host: "0.0.0.0", Port: 7055, NodeType: "backbone"},
        },
        Socket: SocketConfig{
            SendTimeoutMS:     30000,
            ReceiveTimeoutMS:  30000,
            SendBufferSize:    16384,
            ReceiveBufferSize: 16384,
        },
    }
}

// Load reads configuration from the provided path (if non-empty),
// otherwise it searches common locations and supports environment overrides.
// Environment variables use the prefix REDFOXMQ and `.`/`-` are replaced
// with `_`. Example: REDFOXMQ_LOG_LEVEL=debug
func Load(path string) (*Config, error) {
    cfg := Default()

    v := viper.New()
    v.SetConfigType("yaml")
    v.SetEnvPrefix("REDFOXMQ")
    v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
    v.AutomaticEnv()

    // seed defaults for viper so env-only configs work
    v.SetDefault("app_name", cfg.AppName)
    v.SetDefault("log.level", cfg.Log.Level)
    v.SetDefault("log.format", cfg.Log.Format)
    v.SetDefault("log.outputs", cfg.Log.Outputs)
    v.SetDefault("log.development", cfg.Log.Development)
    v.SetDefault("log.rotation.enable", cfg.Log.Rotation.Enable)
    v.SetDefault("log.rotation.filename", cfg.Log.Rotation.Filename)
    v.SetDefault("log.rotation.max_size_mb", cfg.Log.Rotation.MaxSizeMB)
    v.SetDefault("log.rotation.max_backups", cfg.Log.Rotation.MaxBackups)
    v.SetDefault("log.rotation.max_age_days", cfg.Log.Rotation.MaxAgeDays)
    v.SetDefault("log.rotation.compress", cfg.Log.Rotation.Compress)
    v.SetDefault("listeners", cfg.Listeners)
    v.SetDefault("socket.send_timeout_ms", cfg.Socket.SendTimeoutMS)
    v.SetDefault("socket.receive_timeout_ms", cfg.Socket.ReceiveTimeoutMS)
    v.SetDefault("socket.send_buffer_size", cfg.Socket.SendBufferSize)
    v.SetDefault("socket.receive_buffer_size", cfg.Socket.ReceiveBufferSize)

    if path == "" {
        if envPath := os.Getenv("REDFOXMQ_CONFIG"); envPath != "" {
            path = envPath
        }
    }

    if path != "" {
        v.SetConfigFile(path)
    } else {
        v.SetConfigName("redfoxmq")
        v.AddConfigPath(".")
        v.AddConfigPath("./configs")
        if home, err := os.UserHomeDir(); err == nil {
            v.AddConfigPath(filepath.Join(home, ".redfoxmq"))
        }
    }

    // Read config file if present; if not found, continue with defaults/env
    if err := v.ReadInConfig(); err != nil {
        var notFound viper.ConfigFileNotFoundError
        if !errors.As(err, &notFound) {
            return nil, fmt.Errorf("read config: %w", err)
        }
    }

    if err := v.Unmarshal(cfg); err != nil {
        return nil, fmt.Errorf("decode config: %w", err)
    }

    if err := cfg.validate(); err != nil {
        return nil, err
    }
    return cfg, nil
}

func (c *Config) validate() error {
    lvl := strings.ToLower(strings.TrimSpace(c.Log.Level))
    switch lvl {
    case "debug", "info", "warn", "warning", "error":
        // ok
    default:
        return fmt.Errorf("invalid log.level: %q", c.Log.Level)
    }

    if c.Log.Format == "" {
        c.Log.Format = "console"
    }
    if len(c.Log.Outputs) == 0 {
        c.Log.Outputs = []string{"stdout"}
    }
    for i := range c.Listeners {
        c.Listeners[i].Kind = strings.ToLower(strings.TrimSpace(c.Listeners[i].Kind))
        if _, err := c.Listeners[i].Endpoint(); err != nil {
            return fmt.Errorf("listener %d: %w", i, err)
        }
    }
    if c.Socket.SendTimeoutMS < 0 || c.Socket.ReceiveTimeoutMS < 0 {
        return errors.New("socket timeouts must be non-negative")
    }
    return nil
}

// MustLoad is a convenience that panics on error.
func MustLoad(path string) *Config {
    cfg, err := Load(path)
    if err != nil {
        panic(err)
    }
    return cfg
}
