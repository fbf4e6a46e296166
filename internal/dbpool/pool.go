// Package dbpool owns the pooled MySQL connection used by the dispatcher.
//
// The pool is a database/sql handle opened through go-sql-driver/mysql. It
// caps open connections at the configured limit, lets excess callers wait
// for a free connection, and optionally rejects callers once a bounded wait
// queue is full.
package dbpool

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"

	"github.com/JamesPrial/mysql-mcp/internal/config"
)

// ConnMaxLifetime recycles connections so server-side idle timeouts never bite.
const ConnMaxLifetime = time.Hour

// ErrQueueLimit is returned when every connection is busy and the wait
// queue is already at its limit.
var ErrQueueLimit = errors.New("queue limit reached")

// ErrClosed is returned by operations on a pool that has been closed.
var ErrClosed = errors.New("connection pool is closed")

// Row is one result row keyed by column name.
type Row map[string]any

// ExecSummary describes the outcome of a statement that returns no rows.
type ExecSummary struct {
	AffectedRows int64 `json:"affectedRows"`
	InsertID     int64 `json:"insertId"`
}

// Pool is a bounded set of MySQL connections.
type Pool struct {
	db      *sql.DB
	timeout time.Duration

	// slots admits at most ConnectionLimit+QueueLimit concurrent callers.
	// nil when the queue is unbounded.
	slots chan struct{}
}

// DriverConfig translates a connection configuration into driver settings.
//
// Parameters are interpolated client-side so that statements which MySQL
// cannot prepare (SHOW, DESCRIBE, most DDL) run the same way with or
// without arguments. Multi-statement text is left disabled.
func DriverConfig(cfg config.Config) *mysql.Config {
	mc := mysql.NewConfig()
	mc.User = cfg.User
	mc.Passwd = cfg.Password
	mc.Net = "tcp"
	mc.Addr = net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port))
	mc.DBName = cfg.Database
	mc.InterpolateParams = true
	mc.ParseTime = true
	return mc
}

// Open creates a pool for cfg. No connection is made until first use.
func Open(_ context.Context, cfg config.Config, opts config.PoolOptions) (*Pool, error) {
	opts = opts.Normalize()

	connector, err := mysql.NewConnector(DriverConfig(cfg))
	if err != nil {
		return nil, fmt.Errorf("failed to create connector: %w", err)
	}

	db := sql.OpenDB(connector)
	db.SetMaxOpenConns(opts.ConnectionLimit)
	db.SetMaxIdleConns(opts.ConnectionLimit)
	db.SetConnMaxLifetime(ConnMaxLifetime)

	p := &Pool{
		db:      db,
		timeout: opts.QueryTimeout,
	}
	if opts.QueueLimit > 0 {
		p.slots = make(chan struct{}, opts.ConnectionLimit+opts.QueueLimit)
	}

	return p, nil
}

// Ping verifies that a connection can be established.
func (p *Pool) Ping(ctx context.Context) error {
	release, err := p.acquire()
	if err != nil {
		return err
	}
	defer release()

	ctx, cancel := p.withTimeout(ctx)
	defer cancel()

	return p.db.PingContext(ctx)
}

// Query runs a statement that returns rows and collects them all.
//
// The returned slice is never nil, so an empty result encodes as [].
func (p *Pool) Query(ctx context.Context, query string, args ...any) ([]Row, error) {
	release, err := p.acquire()
	if err != nil {
		return nil, err
	}
	defer release()

	ctx, cancel := p.withTimeout(ctx)
	defer cancel()

	rows, err := p.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, translate(err)
	}
	defer func() { _ = rows.Close() }()

	return ScanRows(rows)
}

// Exec runs a statement that does not return rows.
func (p *Pool) Exec(ctx context.Context, query string, args ...any) (ExecSummary, error) {
	release, err := p.acquire()
	if err != nil {
		return ExecSummary{}, err
	}
	defer release()

	ctx, cancel := p.withTimeout(ctx)
	defer cancel()

	res, err := p.db.ExecContext(ctx, query, args...)
	if err != nil {
		return ExecSummary{}, translate(err)
	}

	var summary ExecSummary
	if summary.AffectedRows, err = res.RowsAffected(); err != nil {
		return ExecSummary{}, err
	}
	if summary.InsertID, err = res.LastInsertId(); err != nil {
		return ExecSummary{}, err
	}
	return summary, nil
}

// Stats exposes the database/sql pool counters.
func (p *Pool) Stats() sql.DBStats {
	return p.db.Stats()
}

// Close prevents new work and waits for in-flight statements to finish.
func (p *Pool) Close() error {
	return p.db.Close()
}

func (p *Pool) acquire() (func(), error) {
	if p.slots == nil {
		return func() {}, nil
	}
	select {
	case p.slots <- struct{}{}:
		return func() { <-p.slots }, nil
	default:
		return nil, ErrQueueLimit
	}
}

func (p *Pool) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if p.timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, p.timeout)
}

func translate(err error) error {
	if errors.Is(err, sql.ErrConnDone) || strings.Contains(err.Error(), "sql: database is closed") {
		return fmt.Errorf("%w: %v", ErrClosed, err)
	}
	return err
}

// ScanRows reads every remaining row into a Row map.
//
// []byte values (the driver's representation of text, decimals and blobs)
// become strings so they serialize as JSON text rather than base64.
func ScanRows(rows *sql.Rows) ([]Row, error) {
	columns, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("failed to read columns: %w", err)
	}

	result := make([]Row, 0)
	for rows.Next() {
		values := make([]any, len(columns))
		ptrs := make([]any, len(columns))
		for i := range values {
			ptrs[i] = &values[i]
		}

		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("failed to scan row %d: %w", len(result)+1, err)
		}

		row := make(Row, len(columns))
		for i, col := range columns {
			row[col] = normalizeValue(values[i])
		}
		result = append(result, row)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}

func normalizeValue(v any) any {
	if b, ok := v.([]byte); ok {
		return string(b)
	}
	return v
}

// QuoteIdentifier returns name as a single backtick-quoted MySQL identifier.
//
// Embedded backticks are doubled, so no input can terminate the identifier
// and change the structure of the surrounding statement.
func QuoteIdentifier(name string) string {
	return "`" + strings.ReplaceAll(name, "`", "``") + "`"
}

// QuoteQualifiedIdentifier quotes each dot-separated part of name, so
// "shop.users" becomes `shop`.`users`. Each part is quoted with
// QuoteIdentifier.
func QuoteQualifiedIdentifier(name string) string {
	parts := strings.Split(name, ".")
	for i, part := range parts {
		parts[i] = QuoteIdentifier(part)
	}
	return strings.Join(parts, ".")
}
