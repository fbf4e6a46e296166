// Package main implements diag-log, which prints the mysql-mcp diagnostic log.
//
// Every failed tool call is recorded by the server with the statement and
// parameters that triggered it. diag-log reads those entries back from the
// configured backend and writes them to stdout as an indented JSON array.
//
// Exit codes:
//   - 0: Success (including an empty log)
//   - 1: Error (unknown backend, unreadable log)
//
// Environment variables:
//   - MYSQL_MCP_LOG_BACKEND: Optional. "json" (default), "sqlite" or "postgres".
//   - MYSQL_MCP_LOG_PATH: Optional. Custom path for the JSON log file.
//   - MYSQL_MCP_SQLITE_PATH: Optional. Custom path for the SQLite database.
//   - MYSQL_MCP_POSTGRES_URL: Required for the postgres backend.
package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/JamesPrial/mysql-mcp/internal/storage"
)

const (
	keyDir         = "dir"
	keyOperation   = "operation"
	keyKind        = "kind"
	keyLogBackend  = "log-backend"
	keyLogPath     = "log-path"
	keySQLitePath  = "sqlite-path"
	keyPostgresURL = "postgres-url"
)

var backendEnv = map[string]string{
	keyLogBackend:  "MYSQL_MCP_LOG_BACKEND",
	keyLogPath:     "MYSQL_MCP_LOG_PATH",
	keySQLitePath:  "MYSQL_MCP_SQLITE_PATH",
	keyPostgresURL: "MYSQL_MCP_POSTGRES_URL",
}

func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	v := viper.New()

	cmd := &cobra.Command{
		Use:           "diag-log [--operation NAME] [--kind KIND]",
		Short:         "Print the mysql-mcp diagnostic log as JSON",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		PreRunE: func(cmd *cobra.Command, _ []string) error {
			_ = godotenv.Load(".env")
			_ = godotenv.Load(".env.local")
			for key, env := range backendEnv {
				if err := v.BindEnv(key, env); err != nil {
					return fmt.Errorf("failed to bind %s: %w", env, err)
				}
			}
			return v.BindPFlags(cmd.Flags())
		},
		RunE: func(_ *cobra.Command, _ []string) error {
			return printLog(v, stdout)
		},
	}
	cmd.SetOut(stderr)
	cmd.SetErr(stderr)

	flags := cmd.Flags()
	flags.String(keyDir, "", "project directory the log paths are resolved against (default: working directory)")
	flags.String(keyOperation, "", "only show failures of this tool, e.g. query")
	flags.String(keyKind, "", "only show failures of this kind, e.g. InternalError")
	flags.String(keyLogBackend, storage.BackendJSON, "diagnostic log backend: json, sqlite or postgres (MYSQL_MCP_LOG_BACKEND)")
	flags.String(keyLogPath, "", "JSON diagnostic log path (MYSQL_MCP_LOG_PATH)")
	flags.String(keySQLitePath, "", "SQLite diagnostic log path (MYSQL_MCP_SQLITE_PATH)")
	flags.String(keyPostgresURL, "", "PostgreSQL connection string (MYSQL_MCP_POSTGRES_URL)")

	return cmd
}

// printLog loads the matching entries and writes them as indented JSON.
func printLog(v *viper.Viper, stdout io.Writer) error {
	baseDir := v.GetString(keyDir)
	if baseDir == "" {
		cwd, err := os.Getwd()
		if err != nil {
			return fmt.Errorf("failed to get working directory: %w", err)
		}
		baseDir = cwd
	}

	backend, err := storage.GetStorageBackend(baseDir, storage.Settings{
		Backend:     v.GetString(keyLogBackend),
		LogPath:     v.GetString(keyLogPath),
		SQLitePath:  v.GetString(keySQLitePath),
		PostgresURL: v.GetString(keyPostgresURL),
	})
	if err != nil {
		return err
	}

	entries, err := storage.Select(backend, v.GetString(keyOperation), v.GetString(keyKind))
	if err != nil {
		return fmt.Errorf("failed to read diagnostic log: %w", err)
	}

	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode entries: %w", err)
	}
	_, err = fmt.Fprintln(stdout, string(data))
	return err
}

// run contains the main logic, returning an exit code.
func run(args []string, stdout, stderr io.Writer) int {
	cmd := newRootCmd(stdout, stderr)
	cmd.SetArgs(args)
	if err := cmd.Execute(); err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}
