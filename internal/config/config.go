package config

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Mode       string `mapstructure:"mode"`
	Port       int    `mapstructure:"port"`
	StaticPath string `mapstructure:"static_path"`
	Secret     string `mapstructure:"secret"`

	Gateway Gateway `mapstructure:"gateway"`
}

// Gateway holds the videoroom gateway connection settings.
type Gateway struct {
	URL               string        `mapstructure:"url"`
	AdminSecret       string        `mapstructure:"admin_secret"`
	ConnectTimeout    time.Duration `mapstructure:"connect_timeout"`
	RequestTimeout    time.Duration `mapstructure:"request_timeout"`
	EventTimeout      time.Duration `mapstructure:"event_timeout"`
	KeepaliveInterval time.Duration `mapstructure:"keepalive_interval"`
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	env := os.Getenv("CONFIG_ENV")
	if env == "" {
		env = "dev"
	}
	fileName := fmt.Sprintf("config/config.%s.yaml", env)

	v.SetConfigFile(fileName)
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	v.SetDefault("mode", "release")
	v.SetDefault("port", 8080)
	v.SetDefault("static_path", "./web")
	v.SetDefault("gateway.url", "ws://localhost:8188/janus")
	v.SetDefault("gateway.connect_timeout", "8s")
	v.SetDefault("gateway.request_timeout", "10s")
	v.SetDefault("gateway.event_timeout", "8s")
	v.SetDefault("gateway.keepalive_interval", "25s")

	if err := v.ReadInConfig(); err != nil {
		fmt.Printf("⚠️ Config file not found (%s), using defaults\n", fileName)
	} else {
		fmt.Printf("✅ Loaded config: %s\n", fileName)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	fmt.Printf("🧩 Mode: %s | Port: %d | Gateway: %s\n", cfg.Mode, cfg.Port, cfg.Gateway.URL)
	return &cfg, nil
}
