// Package dispatch routes named database operations to their handlers.
//
// A Dispatcher owns the connection configuration and the single live pool
// built from it. Every operation validates its arguments, forwards a
// statement to the pool and renders the outcome as pretty-printed JSON.
// Every error a Dispatcher returns is a *Failure.
package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/JamesPrial/mysql-mcp/internal/config"
	"github.com/JamesPrial/mysql-mcp/internal/dbpool"
	"github.com/JamesPrial/mysql-mcp/internal/storage"
)

// Pool is the part of a connection pool the handlers use.
type Pool interface {
	Query(ctx context.Context, query string, args ...any) ([]dbpool.Row, error)
	Exec(ctx context.Context, query string, args ...any) (dbpool.ExecSummary, error)
	Close() error
}

// Opener builds a pool for a configuration.
type Opener func(ctx context.Context, cfg config.Config, opts config.PoolOptions) (Pool, error)

// OpenMySQL is the default Opener.
func OpenMySQL(ctx context.Context, cfg config.Config, opts config.PoolOptions) (Pool, error) {
	p, err := dbpool.Open(ctx, cfg, opts)
	if err != nil {
		return nil, err
	}
	return p, nil
}

// Result is the text payload of a successful operation.
type Result struct {
	Text string
}

// operation is one entry of the dispatch table.
type operation struct {
	// exclusive operations run with every other operation drained.
	exclusive bool
	handle    func(ctx context.Context, d *Dispatcher, args map[string]any) (*Result, error)
}

// Dispatcher owns the configuration and the pool.
//
// Ordinary operations hold the read side of gate for their whole run;
// connect_db, Reconfigure and Shutdown take the write side, so a pool is
// never swapped or closed underneath a running statement.
type Dispatcher struct {
	gate sync.RWMutex

	mu       sync.Mutex // guards cfg, pool and closed
	cfg      *config.Config
	pool     Pool
	closed   bool
	poolOpts config.PoolOptions

	open   Opener
	logger *log.Logger
	diag   storage.StorageBackend
	detail ErrorDetail
	ops    map[string]operation
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithConfig sets the initial connection configuration.
func WithConfig(cfg *config.Config) Option {
	return func(d *Dispatcher) {
		if cfg != nil {
			c := *cfg
			d.cfg = &c
		}
	}
}

// WithPoolOptions sets pool sizing for every pool the Dispatcher creates.
func WithPoolOptions(opts config.PoolOptions) Option {
	return func(d *Dispatcher) { d.poolOpts = opts.Normalize() }
}

// WithOpener replaces the pool factory.
func WithOpener(open Opener) Option {
	return func(d *Dispatcher) {
		if open != nil {
			d.open = open
		}
	}
}

// WithLogger sets the logger failures are written to.
func WithLogger(l *log.Logger) Option {
	return func(d *Dispatcher) {
		if l != nil {
			d.logger = l
		}
	}
}

// WithDiagnostics sets the backend failures are persisted to.
func WithDiagnostics(b storage.StorageBackend) Option {
	return func(d *Dispatcher) {
		if b != nil {
			d.diag = b
		}
	}
}

// WithErrorDetail sets how driver errors are reported to callers.
func WithErrorDetail(detail ErrorDetail) Option {
	return func(d *Dispatcher) { d.detail = detail }
}

// New creates a Dispatcher. Without WithConfig, a configuration must be
// supplied through Configure or connect_db before any statement can run.
func New(opts ...Option) *Dispatcher {
	d := &Dispatcher{
		poolOpts: config.DefaultPoolOptions(),
		open:     OpenMySQL,
		logger:   log.New(io.Discard, "", 0),
		diag:     storage.DiscardBackend{},
		detail:   ErrorDetailRaw,
	}
	for _, opt := range opts {
		opt(d)
	}
	d.ops = operations()
	return d
}

// Operations returns the registered operation names in sorted order.
func (d *Dispatcher) Operations() []string {
	names := make([]string, 0, len(d.ops))
	for name := range d.ops {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Config returns a copy of the current configuration, or nil.
func (d *Dispatcher) Config() *config.Config {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.cfg == nil {
		return nil
	}
	c := *d.cfg
	return &c
}

// Configure resolves src against the current configuration and adopts it.
// It does not touch a live pool; use Reconfigure to replace one.
func (d *Dispatcher) Configure(src config.Source) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	cfg, err := config.Resolve(src, d.cfg)
	if err != nil {
		return &Failure{Kind: InvalidConfig, Message: err.Error(), Err: err}
	}
	d.cfg = cfg
	return nil
}

// EnsurePool returns the live pool, creating it from the current
// configuration if there is none.
func (d *Dispatcher) EnsurePool(ctx context.Context) (Pool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.ensurePoolLocked(ctx)
}

func (d *Dispatcher) ensurePoolLocked(ctx context.Context) (Pool, error) {
	if d.closed {
		return nil, failure(InternalError, "dispatcher is shut down")
	}
	if d.pool != nil {
		return d.pool, nil
	}
	if d.cfg == nil {
		return nil, failure(InvalidRequest, "Database configuration not set. Use connect_db tool first.")
	}

	p, err := d.open(ctx, *d.cfg, d.poolOpts)
	if err != nil {
		return nil, &Failure{Kind: InternalError, Message: "Failed to connect to database", Err: err}
	}
	d.pool = p
	poolEvent("open")
	d.logger.Printf("connection pool created for %s", d.cfg.Target())
	return p, nil
}

// Reconfigure retires the live pool, adopts the configuration described by
// src and opens a pool for it. In-flight operations finish first.
func (d *Dispatcher) Reconfigure(ctx context.Context, src config.Source) (*config.Config, error) {
	d.gate.Lock()
	defer d.gate.Unlock()
	return d.reconfigureLocked(ctx, src)
}

// reconfigureLocked requires the write side of gate.
func (d *Dispatcher) reconfigureLocked(ctx context.Context, src config.Source) (*config.Config, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return nil, failure(InternalError, "dispatcher is shut down")
	}

	// Resolve first so a bad request leaves the current pool alone.
	cfg, err := config.Resolve(src, d.cfg)
	if err != nil {
		return nil, &Failure{Kind: InvalidInput, Message: err.Error(), Err: err}
	}

	if err := d.closePoolLocked(); err != nil {
		return nil, &Failure{Kind: InternalError, Message: "Failed to close existing connection", Err: err}
	}

	d.cfg = cfg
	if _, err := d.ensurePoolLocked(ctx); err != nil {
		return nil, err
	}

	c := *cfg
	return &c, nil
}

// Shutdown closes the pool. Later operations fail with InternalError.
// It is safe to call more than once.
func (d *Dispatcher) Shutdown() error {
	d.gate.Lock()
	defer d.gate.Unlock()

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return nil
	}
	d.closed = true

	if err := d.closePoolLocked(); err != nil {
		return &Failure{Kind: InternalError, Message: "Failed to close connection pool", Err: err}
	}
	return nil
}

func (d *Dispatcher) closePoolLocked() error {
	if d.pool == nil {
		return nil
	}
	p := d.pool
	d.pool = nil
	poolEvent("close")
	return p.Close()
}

// Dispatch runs the operation registered under name.
func (d *Dispatcher) Dispatch(ctx context.Context, name string, args map[string]any) (*Result, error) {
	start := time.Now()

	op, ok := d.ops[name]
	if !ok {
		f := failuref(UnknownOperation, "Unknown tool: %s", name)
		d.record(name, f)
		observe("unknown", f, start)
		return nil, f
	}

	if op.exclusive {
		d.gate.Lock()
		defer d.gate.Unlock()
	} else {
		d.gate.RLock()
		defer d.gate.RUnlock()
	}

	res, err := op.handle(ctx, d, args)
	if err != nil {
		f := asFailure(err)
		d.record(name, f)
		observe(name, f, start)
		return nil, d.present(f)
	}

	observe(name, nil, start)
	return res, nil
}

// driverFailure wraps a driver error together with the statement that caused it.
func driverFailure(msg, sql string, params []any, err error) *Failure {
	return &Failure{Kind: InternalError, Message: msg, Err: err, SQL: sql, Params: params}
}

// record logs f and appends it to the diagnostic log. A diagnostic write
// error is logged and otherwise ignored.
func (d *Dispatcher) record(operation string, f *Failure) {
	if f.SQL != "" {
		d.logger.Printf("%s failed: kind=%s sql=%q params=%v error=%s", operation, f.Kind, f.SQL, f.Params, f.Cause())
	} else {
		d.logger.Printf("%s failed: kind=%s error=%s", operation, f.Kind, f.Cause())
	}

	entry := storage.NewLogEntry(operation, f.SQL, f.Params, string(f.Kind), f.Cause())
	if err := d.diag.AppendEntry(entry); err != nil {
		d.logger.Printf("failed to write diagnostic entry: %v", err)
	}
}

// present applies the error detail policy to the failure returned to the caller.
func (d *Dispatcher) present(f *Failure) *Failure {
	if f.Kind != InternalError {
		return f
	}

	out := *f
	if d.detail == ErrorDetailGeneric {
		out.Message = genericMessage
	} else {
		out.Message = f.Cause()
	}
	return &out
}

// asFailure guarantees a *Failure, classifying anything else as internal.
func asFailure(err error) *Failure {
	var f *Failure
	if errors.As(err, &f) {
		return f
	}
	return &Failure{Kind: InternalError, Message: "unexpected error", Err: err}
}

// textResult pretty-prints v as the operation's payload.
func textResult(v any) (*Result, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, &Failure{Kind: InternalError, Message: fmt.Sprintf("failed to encode result: %v", err), Err: err}
	}
	return &Result{Text: string(data)}, nil
}
