package config

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/viper"
)

// Viper keys and the environment variables they are bound to.
const (
	KeyHost            = "host"
	KeyUser            = "user"
	KeyPassword        = "password"
	KeyDatabase        = "database"
	KeyPort            = "port"
	KeyConnectionLimit = "connection-limit"
	KeyQueueLimit      = "queue-limit"
	KeyQueryTimeout    = "query-timeout"
)

var envBindings = map[string]string{
	KeyHost:            "MYSQL_HOST",
	KeyUser:            "MYSQL_USER",
	KeyPassword:        "MYSQL_PASSWORD",
	KeyDatabase:        "MYSQL_DATABASE",
	KeyPort:            "MYSQL_PORT",
	KeyConnectionLimit: "CONNECTION_LIMIT",
	KeyQueueLimit:      "QUEUE_LIMIT",
	KeyQueryTimeout:    "MYSQL_QUERY_TIMEOUT",
}

// BindEnv attaches the connection and pool keys to their environment variables.
func BindEnv(v *viper.Viper) error {
	for key, env := range envBindings {
		if err := v.BindEnv(key, env); err != nil {
			return fmt.Errorf("failed to bind %s: %w", env, err)
		}
	}
	return nil
}

// FromEnv builds a Config from the MYSQL_* variables bound by BindEnv.
//
// Host, user, password and database are all required; MYSQL_PORT is optional
// and corrected to DefaultPort when invalid.
func FromEnv(v *viper.Viper) (*Config, error) {
	var missing []string
	for _, key := range []string{KeyHost, KeyUser, KeyPassword, KeyDatabase} {
		if !v.IsSet(key) || v.GetString(key) == "" {
			missing = append(missing, envBindings[key])
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: missing required environment variables: %v", ErrInvalidConfig, missing)
	}

	return &Config{
		Host:     v.GetString(KeyHost),
		User:     v.GetString(KeyUser),
		Password: v.GetString(KeyPassword),
		Database: v.GetString(KeyDatabase),
		Port:     ParsePort(v.GetString(KeyPort)),
	}, nil
}

// Load resolves the startup configuration: a URL argument when given,
// otherwise the environment.
func Load(v *viper.Viper, args []string) (*Config, error) {
	if len(args) > 0 && args[0] != "" {
		return ParseURL(args[0])
	}
	cfg, err := FromEnv(v)
	if err != nil {
		return nil, fmt.Errorf("%w (pass a mysql:// URL argument or set the MYSQL_* variables)", err)
	}
	return cfg, nil
}

// PoolOptionsFrom reads pool sizing from viper, normalizing invalid values.
func PoolOptionsFrom(v *viper.Viper) PoolOptions {
	opts := DefaultPoolOptions()
	if v.IsSet(KeyConnectionLimit) {
		opts.ConnectionLimit = v.GetInt(KeyConnectionLimit)
	}
	if v.IsSet(KeyQueueLimit) {
		opts.QueueLimit = v.GetInt(KeyQueueLimit)
	}
	if v.IsSet(KeyQueryTimeout) {
		opts.QueryTimeout = parseTimeout(v.GetString(KeyQueryTimeout))
	}
	return opts.Normalize()
}

// parseTimeout accepts a Go duration ("30s") or a bare number of seconds.
func parseTimeout(raw string) time.Duration {
	if d, err := time.ParseDuration(raw); err == nil {
		return d
	}
	if seconds, err := strconv.Atoi(raw); err == nil {
		return time.Duration(seconds) * time.Second
	}
	return 0
}
