package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the full application configuration
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Redis     RedisConfig     `yaml:"redis"`
	JWT       JWTConfig       `yaml:"jwt"`
	Messaging MessagingConfig `yaml:"messaging"`
	CORS      CORSConfig      `yaml:"cors"`
}

// ServerConfig HTTP server settings
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// DatabaseConfig MySQL settings
type DatabaseConfig struct {
	Host            string `yaml:"host"`
	Port            int    `yaml:"port"`
	User            string `yaml:"user"`
	Password        string `yaml:"password"`
	Name            string `yaml:"name"`
	MaxIdleConns    int    `yaml:"max_idle_conns"`
	MaxOpenConns    int    `yaml:"max_open_conns"`
	ConnMaxLifetime int    `yaml:"conn_max_lifetime"` // seconds
}

// GetDSN builds the MySQL DSN
func (d *DatabaseConfig) GetDSN() string {
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=utf8mb4&parseTime=True&loc=UTC",
		d.User, d.Password, d.Host, d.Port, d.Name)
}

// RedisConfig Redis settings
type RedisConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	PoolSize int    `yaml:"pool_size"`
}

// JWTConfig token settings
type JWTConfig struct {
	Secret   string `yaml:"secret"`
	TTLHours int    `yaml:"ttl_hours"`
}

// TTL returns the token lifetime
func (j *JWTConfig) TTL() time.Duration {
	if j.TTLHours <= 0 {
		return 24 * time.Hour
	}
	return time.Duration(j.TTLHours) * time.Hour
}

// MessagingConfig tunables for the messaging core
type MessagingConfig struct {
	DebounceWindowMS  int    `yaml:"debounce_window_ms"`  // realtime refresh quiet window
	TypingExpirySec   int    `yaml:"typing_expiry_sec"`   // typing signal auto-expiry
	FreeStartCredits  int    `yaml:"free_start_credits"`  // free grant for new members
	MonthlyMessageCap int    `yaml:"monthly_message_cap"` // cap for non-subscribers
	IntakeAPIKey      string `yaml:"intake_api_key"`      // purchase intake endpoint key
}

// DebounceWindow returns the realtime refresh quiet window
func (m *MessagingConfig) DebounceWindow() time.Duration {
	if m.DebounceWindowMS <= 0 {
		return 1500 * time.Millisecond
	}
	return time.Duration(m.DebounceWindowMS) * time.Millisecond
}

// TypingExpiry returns the typing signal lifetime
func (m *MessagingConfig) TypingExpiry() time.Duration {
	if m.TypingExpirySec <= 0 {
		return 4 * time.Second
	}
	return time.Duration(m.TypingExpirySec) * time.Second
}

// CORSConfig allowed origins
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// Load reads a YAML config file and applies env var overrides
func Load(path string) (*Config, error) {
	cfg := &Config{}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.applyEnvOverrides()
	return cfg, nil
}

// applyEnvOverrides lets env vars win over file values (secrets are
// expected to arrive via env, not the checked-in yaml)
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			c.Server.Port = port
		}
	}
	if v := os.Getenv("DB_HOST"); v != "" {
		c.Database.Host = v
	}
	if v := os.Getenv("DB_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			c.Database.Port = port
		}
	}
	if v := os.Getenv("DB_USER"); v != "" {
		c.Database.User = v
	}
	if v := os.Getenv("DB_PASSWORD"); v != "" {
		c.Database.Password = v
	}
	if v := os.Getenv("DB_NAME"); v != "" {
		c.Database.Name = v
	}
	if v := os.Getenv("REDIS_HOST"); v != "" {
		c.Redis.Host = v
	}
	if v := os.Getenv("REDIS_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			c.Redis.Port = port
		}
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		c.Redis.Password = v
	}
	if v := os.Getenv("JWT_SECRET"); v != "" {
		c.JWT.Secret = v
	}
	if v := os.Getenv("INTAKE_API_KEY"); v != "" {
		c.Messaging.IntakeAPIKey = v
	}
}
