package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

type Config struct {
	Mode     string `mapstructure:"mode"`
	HTTPPort int    `mapstructure:"http_port"`
	GRPCPort int    `mapstructure:"grpc_port"`
	LogLevel string `mapstructure:"log_level"`
	Secret   string `mapstructure:"secret"`

	ObserverBuffer   int           `mapstructure:"observer_buffer"`
	EventBuffer      int           `mapstructure:"event_buffer"`
	TeardownTimeout  time.Duration `mapstructure:"teardown_timeout"`
	StatsConcurrency int           `mapstructure:"stats_concurrency"`
	ShutdownTimeout  time.Duration `mapstructure:"shutdown_timeout"`

	ICEServers  []string `mapstructure:"ice_servers"`
	DisableMDNS bool     `mapstructure:"disable_mdns"`
	UDPPortMin  uint16   `mapstructure:"udp_port_min"`
	UDPPortMax  uint16   `mapstructure:"udp_port_max"`

	// media fed into local tracks
	VideoFile         string `mapstructure:"video_file"`
	InitialVideoTrack bool   `mapstructure:"initial_video_track"`

	RateLimit float64 `mapstructure:"rate_limit"`
	RateBurst int     `mapstructure:"rate_burst"`

	// websocket observer
	ReadLimit  int64         `mapstructure:"read_limit"`
	PingPeriod time.Duration `mapstructure:"ping_period"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("mode", "release")
	v.SetDefault("http_port", 8080)
	v.SetDefault("grpc_port", 50051)
	v.SetDefault("log_level", "info")
	v.SetDefault("secret", "change-me")
	v.SetDefault("observer_buffer", 64)
	v.SetDefault("event_buffer", 1024)
	v.SetDefault("teardown_timeout", "5s")
	v.SetDefault("stats_concurrency", 8)
	v.SetDefault("shutdown_timeout", "5s")
	v.SetDefault("ice_servers", []string{"stun:stun.l.google.com:19302"})
	v.SetDefault("disable_mdns", true)
	v.SetDefault("udp_port_min", 0)
	v.SetDefault("udp_port_max", 0)
	v.SetDefault("video_file", "")
	v.SetDefault("initial_video_track", true)
	v.SetDefault("rate_limit", 50)
	v.SetDefault("rate_burst", 100)
	v.SetDefault("read_limit", 4096)
	v.SetDefault("ping_period", "54s")
}

// Load reads config/config.<CONFIG_ENV>.yaml on top of the defaults.
// RTC_-prefixed environment variables override both.
func Load() (*Config, error) {
	env := os.Getenv("CONFIG_ENV")
	if env == "" {
		env = "dev"
	}
	return LoadFile(fmt.Sprintf("config/config.%s.yaml", env))
}

func LoadFile(fileName string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetConfigFile(fileName)
	v.SetEnvPrefix("RTC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		log.Warn().Str("module", "config").Str("file", fileName).Msg("config file not found, using defaults")
	} else {
		log.Info().Str("module", "config").Str("file", fileName).Msg("config loaded")
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	log.Info().Str("module", "config").
		Str("mode", cfg.Mode).
		Int("http_port", cfg.HTTPPort).
		Int("grpc_port", cfg.GRPCPort).
		Msg("config ready")
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.Mode != "debug" && c.Mode != "release" {
		return fmt.Errorf("mode must be debug or release, got %q", c.Mode)
	}
	if c.UDPPortMax < c.UDPPortMin {
		return fmt.Errorf("udp_port_max %d below udp_port_min %d", c.UDPPortMax, c.UDPPortMin)
	}
	if c.ObserverBuffer < 1 {
		return fmt.Errorf("observer_buffer must be positive, got %d", c.ObserverBuffer)
	}
	return nil
}
