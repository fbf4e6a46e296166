package dispatch

import (
	"context"
	"fmt"

	"github.com/JamesPrial/mysql-mcp/internal/dbpool"
)

// Operation names as exposed to MCP clients.
const (
	OpQuery         = "query"
	OpExecute       = "execute"
	OpListTables    = "list_tables"
	OpDescribeTable = "describe_table"
	OpShowStatement = "show_statement"
	OpExplain       = "explain"
	OpConnectDB     = "connect_db"
)

const listTablesSQL = "SHOW TABLES"

func operations() map[string]operation {
	return map[string]operation{
		OpQuery:         {handle: handleQuery},
		OpExecute:       {handle: handleExecute},
		OpListTables:    {handle: handleListTables},
		OpDescribeTable: {handle: handleDescribeTable},
		OpShowStatement: {handle: handleShowStatement},
		OpExplain:       {handle: handleExplain},
		OpConnectDB:     {handle: handleConnectDB, exclusive: true},
	}
}

// handleQuery runs a SELECT with optional positional parameters.
func handleQuery(ctx context.Context, d *Dispatcher, raw map[string]any) (*Result, error) {
	var args StatementArgs
	if err := decodeArgs(raw, &args); err != nil {
		return nil, err
	}
	if blank(args.SQL) {
		return nil, failure(InvalidInput, "SQL query is required")
	}
	if !startsWith(args.SQL, "SELECT") {
		return nil, failure(InvalidInput, "Only SELECT queries are allowed with query tool")
	}
	params, err := normalizeParams(args.Params)
	if err != nil {
		return nil, err
	}

	return queryRows(ctx, d, "Query execution failed", args.SQL, params)
}

// handleExecute runs any statement that is not a SELECT.
func handleExecute(ctx context.Context, d *Dispatcher, raw map[string]any) (*Result, error) {
	var args StatementArgs
	if err := decodeArgs(raw, &args); err != nil {
		return nil, err
	}
	if blank(args.SQL) {
		return nil, failure(InvalidInput, "SQL query is required")
	}
	if startsWith(args.SQL, "SELECT") {
		return nil, failure(InvalidInput, "Use query tool for SELECT statements")
	}
	params, err := normalizeParams(args.Params)
	if err != nil {
		return nil, err
	}

	pool, err := d.EnsurePool(ctx)
	if err != nil {
		return nil, err
	}
	summary, err := pool.Exec(ctx, args.SQL, params...)
	if err != nil {
		return nil, driverFailure("Execute failed", args.SQL, params, err)
	}
	return textResult(summary)
}

func handleListTables(ctx context.Context, d *Dispatcher, _ map[string]any) (*Result, error) {
	return queryRows(ctx, d, "List tables failed", listTablesSQL, nil)
}

// handleDescribeTable quotes each part of a possibly database-qualified table
// name; it is never spliced into the statement unescaped.
func handleDescribeTable(ctx context.Context, d *Dispatcher, raw map[string]any) (*Result, error) {
	var args TableArgs
	if err := decodeArgs(raw, &args); err != nil {
		return nil, err
	}
	if blank(args.Table) {
		return nil, failure(InvalidInput, "Table name is required")
	}

	sql := "DESCRIBE " + dbpool.QuoteQualifiedIdentifier(args.Table)
	return queryRows(ctx, d, "Describe table failed", sql, nil)
}

func handleShowStatement(ctx context.Context, d *Dispatcher, raw map[string]any) (*Result, error) {
	var args SQLArgs
	if err := decodeArgs(raw, &args); err != nil {
		return nil, err
	}
	if blank(args.SQL) {
		return nil, failure(InvalidInput, "SQL statement is required")
	}
	if !startsWith(args.SQL, "SHOW") {
		return nil, failure(InvalidInput, "Only statements starting with SHOW are allowed")
	}

	return queryRows(ctx, d, "SHOW statement failed", args.SQL, nil)
}

// handleExplain prefixes the caller's text verbatim.
func handleExplain(ctx context.Context, d *Dispatcher, raw map[string]any) (*Result, error) {
	var args SQLArgs
	if err := decodeArgs(raw, &args); err != nil {
		return nil, err
	}
	if blank(args.SQL) {
		return nil, failure(InvalidInput, "SQL statement is required")
	}

	return queryRows(ctx, d, "EXPLAIN failed", "EXPLAIN "+args.SQL, nil)
}

// handleConnectDB runs with the gate held exclusively.
func handleConnectDB(ctx context.Context, d *Dispatcher, raw map[string]any) (*Result, error) {
	var args ConnectArgs
	if err := decodeArgs(raw, &args); err != nil {
		return nil, err
	}

	cfg, err := d.reconfigureLocked(ctx, args.Source)
	if err != nil {
		return nil, err
	}
	d.logger.Printf("reconfigured: %s", cfg)

	return &Result{Text: fmt.Sprintf("Successfully connected to database %s", cfg.Target())}, nil
}

func queryRows(ctx context.Context, d *Dispatcher, failMsg, sql string, params []any) (*Result, error) {
	pool, err := d.EnsurePool(ctx)
	if err != nil {
		return nil, err
	}
	rows, err := pool.Query(ctx, sql, params...)
	if err != nil {
		return nil, driverFailure(failMsg, sql, params, err)
	}
	return textResult(rows)
}
