package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	API    APIConfig    `mapstructure:"api"`
	Socket SocketConfig `mapstructure:"socket"`
	Chat   ChatConfig   `mapstructure:"chat"`
	Log    LogConfig    `mapstructure:"log"`
}

type APIConfig struct {
	BaseURL string `mapstructure:"base_url"`
}

type SocketConfig struct {
	URL string `mapstructure:"url"`
}

type ChatConfig struct {
	// SeenDelay is how long after the delivered ack the seen ack fires,
	// approximating genuine read time rather than instant auto-read.
	SeenDelay time.Duration `mapstructure:"seen_delay"`

	// QuietWindow is how long after the last keystroke stopTyping fires.
	QuietWindow time.Duration `mapstructure:"quiet_window"`

	// TypingTTL clears a peer's typing indicator if no further typing
	// event arrives.
	TypingTTL time.Duration `mapstructure:"typing_ttl"`
}

type LogConfig struct {
	File  string `mapstructure:"file"`
	Level string `mapstructure:"level"`
}

// Load reads configuration from an optional YAML file with environment
// overrides (DEVKNOT_API_BASE_URL and friends) on top of defaults.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetDefault("api.base_url", "http://localhost:7777")
	v.SetDefault("socket.url", "ws://localhost:7777/ws")
	v.SetDefault("chat.seen_delay", 700*time.Millisecond)
	v.SetDefault("chat.quiet_window", 800*time.Millisecond)
	v.SetDefault("chat.typing_ttl", 3*time.Second)
	v.SetDefault("log.file", "devknot.log")
	v.SetDefault("log.level", "info")

	v.SetEnvPrefix("DEVKNOT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}
