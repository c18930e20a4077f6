// Package config provides configuration management using viper.
// It supports loading from YAML files and environment variable overrides.
package config

import (
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	Discord   DiscordConfig   `mapstructure:"discord"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Economy   EconomyConfig   `mapstructure:"economy"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
	Log       LogConfig       `mapstructure:"log"`
}

// DiscordConfig holds Discord gateway credentials and the guild layout the bot relies on.
type DiscordConfig struct {
	Token              string   `mapstructure:"token"`
	AppID              string   `mapstructure:"app_id"`
	GuildID            string   `mapstructure:"guild_id"`
	BotChannelID       string   `mapstructure:"bot_channel_id"`
	AttackChannelID    string   `mapstructure:"attack_channel_id"`
	LotteryChannelID   string   `mapstructure:"lottery_channel_id"`
	BegChannelID       string   `mapstructure:"beg_channel_id"`
	GuildWarChannelID  string   `mapstructure:"guildwar_channel_id"`
	ModRoleID          string   `mapstructure:"mod_role_id"`
	PenaltyRoleID      string   `mapstructure:"penalty_role_id"`
	FastAttackRoleID   string   `mapstructure:"fast_attack_role_id"`
	BoosterRoleID      string   `mapstructure:"booster_role_id"`
	ProtectedUserIDs   []string `mapstructure:"protected_user_ids"`
	ForceCommandUpdate bool     `mapstructure:"force_command_update"`
}

// DatabaseConfig holds PostgreSQL connection configuration.
type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	Name            string        `mapstructure:"name"`
	PoolSize        int           `mapstructure:"pool_size"`
	ConnectTimeout  time.Duration `mapstructure:"connect_timeout"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
	MaxConnIdleTime time.Duration `mapstructure:"max_conn_idle_time"`
}

// EconomyConfig holds currency naming and tunable prices.
type EconomyConfig struct {
	PointName           string `mapstructure:"point_name"`
	RoleDurationMinutes int    `mapstructure:"role_duration_minutes"`
	// RolePrices is "role_id:price,role_id:price" and seeds the shop when it is empty.
	RolePrices     string `mapstructure:"role_prices"`
	PredictionCost int64  `mapstructure:"prediction_cost"`
}

// SchedulerConfig holds sweep intervals.
type SchedulerConfig struct {
	PredictionLockInterval time.Duration `mapstructure:"prediction_lock_interval"`
	RoleExpiryInterval     time.Duration `mapstructure:"role_expiry_interval"`
	TrapPruneInterval      time.Duration `mapstructure:"trap_prune_interval"`
}

// MetricsConfig holds the health and metrics listener.
type MetricsConfig struct {
	Addr string `mapstructure:"addr"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level string `mapstructure:"level"`
}

// DSN returns the PostgreSQL connection string.
func (d *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=disable",
		d.User, d.Password, d.Host, d.Port, d.Name,
	)
}

// RoleDuration returns how long a purchased role is held.
func (e *EconomyConfig) RoleDuration() time.Duration {
	return time.Duration(e.RoleDurationMinutes) * time.Minute
}

// ParseRolePrices parses RolePrices into a role id to price map.
// Malformed entries are reported rather than skipped.
func (e *EconomyConfig) ParseRolePrices() (map[string]int64, error) {
	prices := make(map[string]int64)
	if strings.TrimSpace(e.RolePrices) == "" {
		return prices, nil
	}
	for _, pair := range strings.Split(e.RolePrices, ",") {
		roleID, rawPrice, ok := strings.Cut(strings.TrimSpace(pair), ":")
		if !ok || roleID == "" {
			return nil, fmt.Errorf("invalid role price entry %q", pair)
		}
		price, err := strconv.ParseInt(strings.TrimSpace(rawPrice), 10, 64)
		if err != nil || price <= 0 {
			return nil, fmt.Errorf("invalid price for role %s: %q", roleID, rawPrice)
		}
		prices[strings.TrimSpace(roleID)] = price
	}
	return prices, nil
}

// Load reads configuration from file and environment variables.
// It looks for config.yaml in the config directory.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(configPath)
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	// Nested keys map to upper-case env names, e.g. DISCORD_TOKEN, DATABASE_HOST.
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if err := bindLegacyEnv(v); err != nil {
		return nil, err
	}

	// Config file is optional, env vars can provide all config
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

// bindLegacyEnv maps the flat env names used by existing deployments.
func bindLegacyEnv(v *viper.Viper) error {
	bindings := map[string][]string{
		"database.user":                 {"DATABASE_USER", "DB_USER"},
		"database.password":             {"DATABASE_PASSWORD", "DB_PASSWORD"},
		"database.name":                 {"DATABASE_NAME", "DB_NAME"},
		"database.host":                 {"DATABASE_HOST", "DB_HOST"},
		"database.port":                 {"DATABASE_PORT", "DB_PORT"},
		"discord.guild_id":              {"DISCORD_GUILD_ID", "GUILD_ID"},
		"discord.bot_channel_id":        {"DISCORD_BOT_CHANNEL_ID", "BOT_CHANNEL_ID"},
		"discord.mod_role_id":           {"DISCORD_MOD_ROLE_ID", "MOD_ROLE_ID"},
		"economy.point_name":            {"ECONOMY_POINT_NAME", "POINT_NAME"},
		"economy.role_duration_minutes": {"ECONOMY_ROLE_DURATION_MINUTES", "ROLE_DURATION_MINUTES"},
		"economy.role_prices":           {"ECONOMY_ROLE_PRICES", "ROLE_PRICES"},
		"economy.prediction_cost":       {"ECONOMY_PREDICTION_COST", "PREDICTION_COST"},
	}
	for key, envs := range bindings {
		if err := v.BindEnv(append([]string{key}, envs...)...); err != nil {
			return fmt.Errorf("failed to bind env for %s: %w", key, err)
		}
	}
	return nil
}

// setDefaults sets default configuration values.
func setDefaults(v *viper.Viper) {
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "economy")
	v.SetDefault("database.name", "economy")
	v.SetDefault("database.pool_size", 20)
	v.SetDefault("database.connect_timeout", "10s")
	v.SetDefault("database.max_conn_lifetime", "1h")
	v.SetDefault("database.max_conn_idle_time", "30m")

	v.SetDefault("economy.point_name", "point")
	v.SetDefault("economy.role_duration_minutes", 1440)
	v.SetDefault("economy.role_prices", "")
	v.SetDefault("economy.prediction_cost", 100)

	v.SetDefault("scheduler.prediction_lock_interval", "5s")
	v.SetDefault("scheduler.role_expiry_interval", "1m")
	v.SetDefault("scheduler.trap_prune_interval", "1m")

	v.SetDefault("metrics.addr", ":9090")
	v.SetDefault("log.level", "info")
}

// IsModerator reports whether any of the member roles is the moderator role.
func (c *DiscordConfig) IsModerator(roles []string) bool {
	if c.ModRoleID == "" {
		return false
	}
	return slices.Contains(roles, c.ModRoleID)
}

// IsProtected reports whether a user may never be attacked.
func (c *DiscordConfig) IsProtected(userID string) bool {
	return slices.Contains(c.ProtectedUserIDs, userID)
}

// HasRole reports whether roleID is set and present in roles.
func HasRole(roles []string, roleID string) bool {
	return roleID != "" && slices.Contains(roles, roleID)
}
