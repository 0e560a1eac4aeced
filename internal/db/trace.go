package db

import (
	"context"
	"database/sql/driver"
	"errors"
	"fmt"
	"log/slog"
	"time"

	sqlite3 "github.com/mattn/go-sqlite3"
)

// tracingConnector opens sqlite3 connections whose statements are logged with
// their arguments and duration. Use it through sql.OpenDB.
type tracingConnector struct {
	dsn    string
	logger *slog.Logger
	drv    *sqlite3.SQLiteDriver
}

func newTracingConnector(dsn string, logger *slog.Logger) *tracingConnector {
	return &tracingConnector{dsn: dsn, logger: logger, drv: &sqlite3.SQLiteDriver{}}
}

func (c *tracingConnector) Connect(context.Context) (driver.Conn, error) {
	conn, err := c.drv.Open(c.dsn)
	if err != nil {
		return nil, err
	}
	return &tracingConn{Conn: conn, logger: c.logger}, nil
}

func (c *tracingConnector) Driver() driver.Driver { return c.drv }

type tracingConn struct {
	driver.Conn
	logger *slog.Logger
}

func (c *tracingConn) Prepare(query string) (driver.Stmt, error) {
	return c.PrepareContext(context.Background(), query)
}

func (c *tracingConn) PrepareContext(ctx context.Context, query string) (driver.Stmt, error) {
	var (
		stmt driver.Stmt
		err  error
	)
	if p, ok := c.Conn.(driver.ConnPrepareContext); ok {
		stmt, err = p.PrepareContext(ctx, query)
	} else {
		stmt, err = c.Conn.Prepare(query)
	}
	if err != nil {
		return nil, err
	}
	return &tracingStmt{Stmt: stmt, query: query, logger: c.logger}, nil
}

func (c *tracingConn) BeginTx(ctx context.Context, opts driver.TxOptions) (driver.Tx, error) {
	if b, ok := c.Conn.(driver.ConnBeginTx); ok {
		return b.BeginTx(ctx, opts)
	}
	//nolint:staticcheck // SA1019 fallback for drivers without BeginTx
	return c.Conn.Begin()
}

type tracingStmt struct {
	driver.Stmt
	query  string
	logger *slog.Logger
}

var errNoContext = errors.New("db: statement does not support context")

func (s *tracingStmt) ExecContext(ctx context.Context, args []driver.NamedValue) (driver.Result, error) {
	e, ok := s.Stmt.(driver.StmtExecContext)
	if !ok {
		return nil, errNoContext
	}
	start := time.Now()
	res, err := e.ExecContext(ctx, args)
	s.log("exec", args, start, err)
	return res, err
}

func (s *tracingStmt) QueryContext(ctx context.Context, args []driver.NamedValue) (driver.Rows, error) {
	q, ok := s.Stmt.(driver.StmtQueryContext)
	if !ok {
		return nil, errNoContext
	}
	start := time.Now()
	rows, err := q.QueryContext(ctx, args)
	s.log("query", args, start, err)
	return rows, err
}

func (s *tracingStmt) log(op string, args []driver.NamedValue, start time.Time, err error) {
	attrs := []any{
		"op", op,
		"sql", s.query,
		"args", formatArgs(args),
		"elapsed", time.Since(start),
	}
	if err != nil {
		attrs = append(attrs, "error", err)
	}
	s.logger.Debug("sql", attrs...)
}

func formatArgs(args []driver.NamedValue) []string {
	out := make([]string, len(args))
	for i, a := range args {
		v := "NULL"
		switch t := a.Value.(type) {
		case nil:
		case []byte:
			v = string(t)
		default:
			v = fmt.Sprint(t)
		}
		if a.Name != "" {
			v = a.Name + "=" + v
		}
		out[i] = v
	}
	return out
}
