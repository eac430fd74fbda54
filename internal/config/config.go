// ABOUTME: Configuration loading and parsing for parley
// ABOUTME: Supports YAML files with environment variable expansion and duration parsing

package config

import (
	"fmt"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

// Storage driver names accepted by database.driver.
const (
	DriverMemory = "memory"
	DriverSQLite = "sqlite"
)

// Config represents the complete parley configuration
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Auth     AuthConfig     `yaml:"auth"`
	Reply    ReplyConfig    `yaml:"reply"`
	Logging  LoggingConfig  `yaml:"logging"`
	Users    []UserConfig   `yaml:"users"`

	Conversations []ConversationConfig `yaml:"conversations"`
}

// ServerConfig holds server address configuration
type ServerConfig struct {
	HTTPAddr string `yaml:"http_addr"`
}

// DatabaseConfig selects the storage backend
type DatabaseConfig struct {
	Driver string `yaml:"driver"` // "memory" or "sqlite"
	Path   string `yaml:"path"`   // required for sqlite
}

// AuthConfig holds authentication configuration
type AuthConfig struct {
	JWTSecret string        `yaml:"jwt_secret"`
	TokenTTL  time.Duration `yaml:"-"`

	// Raw string value for YAML unmarshaling
	TokenTTLRaw string `yaml:"token_ttl"`
}

// ReplyConfig holds the deferred auto-reply timing
type ReplyConfig struct {
	Delay time.Duration `yaml:"-"`

	// Raw string value for YAML unmarshaling
	DelayRaw string `yaml:"delay"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// UserConfig is a user provisioned at startup. Passwords are hashed before
// they reach the store.
type UserConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	Email    string `yaml:"email"`
}

// ConversationConfig is a conversation fixture provisioned at startup. Owner
// names a user from the users list.
type ConversationConfig struct {
	Name     string          `yaml:"name"`
	Owner    string          `yaml:"owner"`
	Messages []MessageConfig `yaml:"messages"`
}

// MessageConfig is a fixture message. An empty author means the conversation
// owner; the literal "AI" marks an automated message.
type MessageConfig struct {
	Text   string `yaml:"text"`
	Author string `yaml:"author"`
}

// Load reads a configuration file from the given path and returns a parsed Config.
// Environment variables in the format ${VAR_NAME} are expanded.
// Duration strings are parsed into time.Duration values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	// Expand environment variables in the raw YAML content
	expandedData := expandEnvVars(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expandedData), &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	// Parse duration fields
	if err := parseDurations(&cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}

	// Validate required fields
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding environment variable values.
// If the environment variable is not set, it is replaced with an empty string.
func expandEnvVars(s string) string {
	// Match ${VAR_NAME} pattern
	re := regexp.MustCompile(`\$\{([^}]+)\}`)

	return re.ReplaceAllStringFunc(s, func(match string) string {
		// Extract variable name from ${VAR_NAME}
		varName := re.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}

// Validate checks that all required configuration fields are present and valid.
// Returns an error describing the first validation failure encountered.
func (c *Config) Validate() error {
	if c.Server.HTTPAddr == "" {
		return fmt.Errorf("server.http_addr is required")
	}

	switch c.Database.Driver {
	case "", DriverMemory:
		// in-memory needs no path
	case DriverSQLite:
		if c.Database.Path == "" {
			return fmt.Errorf("database.path is required for the sqlite driver")
		}
	default:
		return fmt.Errorf("unknown database.driver %q", c.Database.Driver)
	}

	if c.Auth.JWTSecret == "" {
		return fmt.Errorf("auth.jwt_secret is required")
	}

	usernames := make(map[string]bool, len(c.Users))
	for i, u := range c.Users {
		if u.Username == "" || u.Password == "" {
			return fmt.Errorf("users[%d]: username and password are required", i)
		}
		usernames[u.Username] = true
	}

	for i, conv := range c.Conversations {
		if conv.Name == "" || conv.Owner == "" {
			return fmt.Errorf("conversations[%d]: name and owner are required", i)
		}
		if !usernames[conv.Owner] {
			return fmt.Errorf("conversations[%d]: owner %q is not in the users list", i, conv.Owner)
		}
		for j, msg := range conv.Messages {
			if msg.Text == "" {
				return fmt.Errorf("conversations[%d].messages[%d]: text is required", i, j)
			}
		}
	}

	return nil
}

// parseDurations converts the raw duration strings into time.Duration values
func parseDurations(cfg *Config) error {
	var err error

	if cfg.Auth.TokenTTLRaw != "" {
		cfg.Auth.TokenTTL, err = time.ParseDuration(cfg.Auth.TokenTTLRaw)
		if err != nil {
			return fmt.Errorf("parsing token_ttl %q: %w", cfg.Auth.TokenTTLRaw, err)
		}
	}

	if cfg.Reply.DelayRaw != "" {
		cfg.Reply.Delay, err = time.ParseDuration(cfg.Reply.DelayRaw)
		if err != nil {
			return fmt.Errorf("parsing reply delay %q: %w", cfg.Reply.DelayRaw, err)
		}
	}

	return nil
}
