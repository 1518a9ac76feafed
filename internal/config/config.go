package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Mode         string   `mapstructure:"mode"`
	Port         int      `mapstructure:"port"`
	Secret       string   `mapstructure:"secret"`
	AllowOrigins []string `mapstructure:"allow_origins"`
	DatabaseURL  string   `mapstructure:"database_url"`

	CallInterval   time.Duration `mapstructure:"call_interval"`
	MinInterval    time.Duration `mapstructure:"min_interval"`
	MaxInterval    time.Duration `mapstructure:"max_interval"`
	MaxBoards      int           `mapstructure:"max_boards"`
	ReconnectGrace time.Duration `mapstructure:"reconnect_grace"`
	SessionTTL     time.Duration `mapstructure:"session_ttl"`
	SweepInterval  time.Duration `mapstructure:"sweep_interval"`

	ReadLimit  int64         `mapstructure:"read_limit"`
	SendBuffer int           `mapstructure:"send_buffer"`
	RateLimit  int           `mapstructure:"rate_limit"`
	RateWindow time.Duration `mapstructure:"rate_window"`
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
	v.SetDefault("secret", "loto-dev-secret")
	v.SetDefault("allow_origins", []string{})
	v.SetDefault("call_interval", "5s")
	v.SetDefault("min_interval", "250ms")
	v.SetDefault("max_interval", "60s")
	v.SetDefault("max_boards", 2)
	v.SetDefault("reconnect_grace", "60s")
	v.SetDefault("session_ttl", "2h")
	v.SetDefault("sweep_interval", "15s")
	v.SetDefault("read_limit", 32768)
	v.SetDefault("send_buffer", 32)
	v.SetDefault("rate_limit", 20)
	v.SetDefault("rate_window", "1s")

	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		fmt.Printf("⚠️ Config file not found (%s), using defaults\n", fileName)
	} else {
		fmt.Printf("✅ Loaded config: %s\n", fileName)
	}

	// PORT and DATABASE_URL come from the environment (or .env) when set.
	if p := os.Getenv("PORT"); p != "" {
		if port, err := strconv.Atoi(p); err == nil {
			v.Set("port", port)
		}
	}
	if dsn := os.Getenv("DATABASE_URL"); dsn != "" {
		v.Set("database_url", dsn)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	fmt.Printf("🧩 Mode: %s | Port: %d\n", cfg.Mode, cfg.Port)
	return &cfg, nil
}
