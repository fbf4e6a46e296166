package dispatch_test

import (
	"context"
	"encoding/json"
	"os/exec"
	"strings"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/mysql"

	"github.com/JamesPrial/mysql-mcp/internal/config"
	"github.com/JamesPrial/mysql-mcp/internal/dispatch"
)

func dockerAvailable() bool {
	return exec.Command("docker", "info").Run() == nil
}

func startMySQL(t *testing.T, database string) config.Config {
	t.Helper()

	if testing.Short() {
		t.Skip("skipping MySQL container test in short mode")
	}
	if !dockerAvailable() {
		t.Skip("Docker not available, skipping MySQL container tests")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Minute)
	defer cancel()

	ctr, err := mysql.Run(ctx,
		"mysql:8.0.36",
		mysql.WithDatabase(database),
		mysql.WithUsername("root"),
		mysql.WithPassword("testpass"),
	)
	if err != nil {
		t.Skipf("failed to start MySQL container: %v", err)
	}
	t.Cleanup(func() {
		if err := testcontainers.TerminateContainer(ctr); err != nil {
			t.Logf("failed to terminate container: %s", err)
		}
	})

	host, err := ctr.Host(ctx)
	if err != nil {
		t.Fatalf("failed to get container host: %v", err)
	}
	port, err := ctr.MappedPort(ctx, "3306/tcp")
	if err != nil {
		t.Fatalf("failed to get mapped port: %v", err)
	}

	return config.Config{
		Host:     host,
		User:     "root",
		Password: "testpass",
		Database: database,
		Port:     config.ParsePort(port.Port()),
	}
}

func mustDispatch(t *testing.T, d *dispatch.Dispatcher, op string, args map[string]any) string {
	t.Helper()
	res, err := d.Dispatch(context.Background(), op, args)
	if err != nil {
		t.Fatalf("%s(%v) error: %v", op, args, err)
	}
	return res.Text
}

func Test_Dispatcher_AgainstMySQL(t *testing.T) {
	cfg := startMySQL(t, "shop")

	d := dispatch.New(dispatch.WithConfig(&cfg))
	defer func() { _ = d.Shutdown() }()

	mustDispatch(t, d, dispatch.OpExecute, map[string]any{
		"sql": "CREATE TABLE users (id INT AUTO_INCREMENT PRIMARY KEY, name VARCHAR(64) NOT NULL, active BOOLEAN)",
	})

	var summary map[string]any
	out := mustDispatch(t, d, dispatch.OpExecute, map[string]any{
		"sql":    "INSERT INTO users (name, active) VALUES (?, ?), (?, ?)",
		"params": []any{"ada", true, "grace", nil},
	})
	if err := json.Unmarshal([]byte(out), &summary); err != nil {
		t.Fatalf("execute output not JSON: %v", err)
	}
	if summary["affectedRows"] != float64(2) {
		t.Errorf("affectedRows = %v, want 2", summary["affectedRows"])
	}

	var rows []map[string]any
	out = mustDispatch(t, d, dispatch.OpQuery, map[string]any{"sql": "SELECT name FROM users WHERE id = ?", "params": []any{2.0}})
	if err := json.Unmarshal([]byte(out), &rows); err != nil {
		t.Fatalf("query output not JSON: %v", err)
	}
	if len(rows) != 1 || rows[0]["name"] != "grace" {
		t.Errorf("rows = %v", rows)
	}

	if out := mustDispatch(t, d, dispatch.OpListTables, nil); !strings.Contains(out, "users") {
		t.Errorf("list_tables = %s", out)
	}
	if out := mustDispatch(t, d, dispatch.OpDescribeTable, map[string]any{"table": "users"}); !strings.Contains(out, `"Field": "active"`) {
		t.Errorf("describe_table = %s", out)
	}
	if out := mustDispatch(t, d, dispatch.OpDescribeTable, map[string]any{"table": "shop.users"}); !strings.Contains(out, `"Field": "active"`) {
		t.Errorf("describe_table qualified = %s", out)
	}
	if out := mustDispatch(t, d, dispatch.OpShowStatement, map[string]any{"sql": "SHOW VARIABLES LIKE 'version'"}); !strings.Contains(out, "8.0") {
		t.Errorf("show_statement = %s", out)
	}
	if out := mustDispatch(t, d, dispatch.OpExplain, map[string]any{"sql": "SELECT * FROM users WHERE id = 1"}); !strings.Contains(out, `"table": "users"`) {
		t.Errorf("explain = %s", out)
	}

	_, err := d.Dispatch(context.Background(), dispatch.OpDescribeTable, map[string]any{"table": "users`; DROP TABLE users; --"})
	requireKind(t, err, dispatch.InternalError)
	if out := mustDispatch(t, d, dispatch.OpQuery, map[string]any{"sql": "SELECT COUNT(*) AS n FROM users"}); !strings.Contains(out, `"n": 2`) {
		t.Errorf("users table damaged: %s", out)
	}

	_, err = d.Dispatch(context.Background(), dispatch.OpQuery, map[string]any{"sql": "SELECT * FROM missing_table"})
	requireKind(t, err, dispatch.InternalError)
	if !strings.Contains(err.Error(), "missing_table") {
		t.Errorf("raw error detail missing: %v", err)
	}

	// Reconnecting to the same server with the fields form keeps working.
	mustDispatch(t, d, dispatch.OpConnectDB, map[string]any{
		"host": cfg.Host, "user": cfg.User, "password": cfg.Password, "database": cfg.Database, "port": float64(cfg.Port),
	})
	if out := mustDispatch(t, d, dispatch.OpQuery, map[string]any{"sql": "SELECT DATABASE() AS db"}); !strings.Contains(out, `"db": "shop"`) {
		t.Errorf("after connect_db: %s", out)
	}
}
