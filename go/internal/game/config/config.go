// Package config loads client settings from a YAML file overlaid with
// TRIVIA_* environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/mcdev12/maninthemiddle/go/internal/game/channel"
	"github.com/mcdev12/maninthemiddle/go/internal/game/clocksync"
	"github.com/mcdev12/maninthemiddle/go/internal/game/intent"
	"gopkg.in/yaml.v3"
)

// ErrInvalid wraps every validation failure.
var ErrInvalid = errors.New("invalid config")

type Config struct {
	Server      ServerConfig      `yaml:"server"`
	Channel     ChannelConfig     `yaml:"channel"`
	Clock       ClockConfig       `yaml:"clock"`
	Loop        LoopConfig        `yaml:"loop"`
	Limits      LimitsConfig      `yaml:"limits"`
	Relay       RelayConfig       `yaml:"relay"`
	StateServer StateServerConfig `yaml:"state_server"`
	Log         LogConfig         `yaml:"log"`
}

type ServerConfig struct {
	URL string `yaml:"url"`
}

type ChannelConfig struct {
	WriteTimeout   time.Duration `yaml:"write_timeout"`
	ReadTimeout    time.Duration `yaml:"read_timeout"`
	PingInterval   time.Duration `yaml:"ping_interval"`
	MaxMessageSize int64         `yaml:"max_message_size"`
	SendBuffer     int           `yaml:"send_buffer"`
}

type ClockConfig struct {
	Tick time.Duration `yaml:"tick"`
}

// LoopConfig sizes the client event loop. Queue is how many closures may
// wait for the loop before producers block.
type LoopConfig struct {
	Queue int `yaml:"queue"`
}

type LimitsConfig struct {
	Disinformation int `yaml:"disinformation"`
	Assistant      int `yaml:"assistant"`
}

type RelayConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Stream        string `yaml:"stream"`
	SubjectPrefix string `yaml:"subject_prefix"`
}

type StateServerConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
}

type LogConfig struct {
	Level string `yaml:"level"`
}

// Default returns the built-in settings.
func Default() *Config {
	ch := channel.DefaultConfig()
	limits := intent.DefaultLimits()
	return &Config{
		Server: ServerConfig{URL: "ws://localhost:5000/ws"},
		Channel: ChannelConfig{
			WriteTimeout:   ch.WriteTimeout,
			ReadTimeout:    ch.ReadTimeout,
			PingInterval:   ch.PingInterval,
			MaxMessageSize: ch.MaxMessageSize,
			SendBuffer:     ch.SendBuffer,
		},
		Clock: ClockConfig{Tick: clocksync.DefaultTickInterval},
		Loop:  LoopConfig{Queue: 256},
		Limits: LimitsConfig{
			Disinformation: limits.Disinformation,
			Assistant:      limits.Assistant,
		},
		Relay: RelayConfig{
			URL:           "nats://localhost:4222",
			Stream:        "TRIVIA_SESSIONS",
			SubjectPrefix: "trivia.session",
		},
		StateServer: StateServerConfig{Addr: ":8090"},
		Log:         LogConfig{Level: "info"},
	}
}

// Load reads path on top of the defaults. A missing file is not an error
// so the client can run from environment variables alone.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("failed to read config file: %w", err)
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config: %w", err)
			}
		}
	}

	cfg.ApplyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnv overrides settings from TRIVIA_* environment variables.
func (c *Config) ApplyEnv() {
	c.Server.URL = getEnv("TRIVIA_SERVER_URL", c.Server.URL)
	c.Log.Level = getEnv("TRIVIA_LOG_LEVEL", c.Log.Level)
	c.Clock.Tick = getEnvAsDuration("TRIVIA_CLOCK_TICK", c.Clock.Tick)
	c.Loop.Queue = getEnvAsInt("TRIVIA_LOOP_QUEUE", c.Loop.Queue)
	c.Limits.Disinformation = getEnvAsInt("TRIVIA_DISINFORMATION_USES", c.Limits.Disinformation)
	c.Limits.Assistant = getEnvAsInt("TRIVIA_ASSISTANT_USES", c.Limits.Assistant)

	if url := os.Getenv("TRIVIA_NATS_URL"); url != "" {
		c.Relay.URL = url
		c.Relay.Enabled = true
	}
	if addr := os.Getenv("TRIVIA_STATE_ADDR"); addr != "" {
		c.StateServer.Addr = addr
		c.StateServer.Enabled = true
	}
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	switch {
	case c.Server.URL == "":
		return fmt.Errorf("%w: server url is required", ErrInvalid)
	case c.Clock.Tick <= 0:
		return fmt.Errorf("%w: clock tick must be positive, got %s", ErrInvalid, c.Clock.Tick)
	case c.Loop.Queue < 0:
		return fmt.Errorf("%w: loop queue must not be negative", ErrInvalid)
	case c.Limits.Disinformation < 0:
		return fmt.Errorf("%w: disinformation uses must not be negative", ErrInvalid)
	case c.Limits.Assistant < 0:
		return fmt.Errorf("%w: assistant uses must not be negative", ErrInvalid)
	case c.Channel.SendBuffer < 0:
		return fmt.Errorf("%w: send buffer must not be negative", ErrInvalid)
	case c.Relay.Enabled && (c.Relay.URL == "" || c.Relay.Stream == "" || c.Relay.SubjectPrefix == ""):
		return fmt.Errorf("%w: relay needs url, stream and subject prefix", ErrInvalid)
	case c.StateServer.Enabled && c.StateServer.Addr == "":
		return fmt.Errorf("%w: state server addr is required", ErrInvalid)
	}
	return nil
}

// Transport returns the channel adapter settings.
func (c ChannelConfig) Transport() channel.Config {
	return channel.Config{
		WriteTimeout:   c.WriteTimeout,
		ReadTimeout:    c.ReadTimeout,
		PingInterval:   c.PingInterval,
		MaxMessageSize: c.MaxMessageSize,
		SendBuffer:     c.SendBuffer,
	}
}

// Intent returns the per-round action limits.
func (c LimitsConfig) Intent() intent.Limits {
	return intent.Limits{Disinformation: c.Disinformation, Assistant: c.Assistant}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvAsDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
