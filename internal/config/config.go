package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config holds application configuration loaded from environment variables.
// It is built once at startup and passed by pointer; nothing mutates it afterwards.
type Config struct {
	Port     int    `envconfig:"PORT" default:"8080"`
	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`
	Version  string `envconfig:"VERSION" default:"dev"`

	StoreDriver      string        `envconfig:"STORE_DRIVER" default:"postgres"`
	DBHost           string        `envconfig:"DB_HOST" default:"localhost"`
	DBPort           int           `envconfig:"DB_PORT" default:"5432"`
	DBName           string        `envconfig:"DB_NAME" default:"sentinel"`
	DBUser           string        `envconfig:"DB_USER" default:"sentinel"`
	DBPassword       string        `envconfig:"DB_PASSWORD" default:""`
	DBMaxConns       int32         `envconfig:"DB_MAX_CONNS" default:"5"`
	DBConnectTimeout time.Duration `envconfig:"DB_CONNECT_TIMEOUT" default:"5s"`
	SQLitePath       string        `envconfig:"SQLITE_PATH" default:"sentinel.db"`

	RedisURL   string        `envconfig:"REDIS_URL" default:"redis://localhost:6379/0"`
	SessionTTL time.Duration `envconfig:"SESSION_TTL" default:"2m"`

	DiscordToken      string   `envconfig:"DISCORD_TOKEN" default:""`
	LinkedRoleID      string   `envconfig:"DISCORD_LINKED_ROLE_ID" default:""`
	QuarantineRoleID  string   `envconfig:"DISCORD_QUARANTINE_ROLE_ID" default:""`
	StaffRoleIDs      []string `envconfig:"DISCORD_STAFF_ROLE_IDS" default:""`
	QuarantineMessage string   `envconfig:"QUARANTINE_MESSAGE" default:"You are currently quarantined. Contact staff on Discord."`

	BypassRoutes []string `envconfig:"BYPASS_ROUTES" default:""`

	LoginTimeout       time.Duration `envconfig:"LOGIN_TIMEOUT" default:"4s"`
	MembershipTimeout  time.Duration `envconfig:"MEMBERSHIP_TIMEOUT" default:"2s"`
	FollowupTimeout    time.Duration `envconfig:"FOLLOWUP_TIMEOUT" default:"30s"`
	ReconcilerInterval time.Duration `envconfig:"RECONCILER_INTERVAL" default:"5m"`
	CodeTTL            time.Duration `envconfig:"CODE_TTL" default:"0"`
	LinkRatePerMinute  int           `envconfig:"LINK_RATE_PER_MINUTE" default:"5"`

	BridgeKeyHash string `envconfig:"BRIDGE_KEY_HASH" required:"true"`
}

// Load reads configuration from environment variables into a Config struct.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	cfg.StaffRoleIDs = compact(cfg.StaffRoleIDs)
	cfg.BypassRoutes = compact(cfg.BypassRoutes)
	return &cfg, nil
}

// DatabaseURL builds the Postgres connection string from the DB_* settings.
func (c *Config) DatabaseURL() string {
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(c.DBUser, c.DBPassword),
		Host:   fmt.Sprintf("%s:%d", c.DBHost, c.DBPort),
		Path:   "/" + c.DBName,
	}
	return u.String()
}

// DiscordEnabled reports whether a bot token was configured.
func (c *Config) DiscordEnabled() bool {
	return c.DiscordToken != ""
}

func (c *Config) validate() error {
	switch c.StoreDriver {
	case "postgres", "sqlite":
	default:
		return fmt.Errorf("STORE_DRIVER must be \"postgres\" or \"sqlite\", got %q", c.StoreDriver)
	}
	if c.ReconcilerInterval <= 0 {
		return fmt.Errorf("RECONCILER_INTERVAL must be positive")
	}
	if c.MembershipTimeout >= c.LoginTimeout {
		return fmt.Errorf("MEMBERSHIP_TIMEOUT must be shorter than LOGIN_TIMEOUT")
	}
	if c.CodeTTL < 0 {
		return fmt.Errorf("CODE_TTL must not be negative")
	}
	return nil
}

// compact drops blank entries left over from trailing commas.
func compact(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		s = strings.TrimSpace(s)
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}
