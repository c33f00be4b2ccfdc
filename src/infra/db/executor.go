package db

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
)

// Row is one result row keyed by column name.
type Row map[string]any

// String returns the column as a string, or "" when it is NULL or not a string.
func (r Row) String(col string) string {
	v, _ := r[col].(string)
	return v
}

// Int64 returns integer columns of any width as int64.
func (r Row) Int64(col string) int64 {
	switch v := r[col].(type) {
	case int64:
		return v
	case int32:
		return int64(v)
	case int16:
		return int64(v)
	case int:
		return int64(v)
	}
	return 0
}

// Float64 returns float columns as float64.
func (r Row) Float64(col string) float64 {
	switch v := r[col].(type) {
	case float64:
		return v
	case float32:
		return float64(v)
	}
	return 0
}

// Time returns timestamp columns.
func (r Row) Time(col string) time.Time {
	v, _ := r[col].(time.Time)
	return v
}

// Bool returns boolean columns.
func (r Row) Bool(col string) bool {
	v, _ := r[col].(bool)
	return v
}

// Result is the outcome of one statement. Rows is empty, never nil, when the
// statement returned no rows; RowCount is the number of rows returned or
// affected.
type Result struct {
	Columns  []string
	Rows     []Row
	RowCount int64
}

// Statement is one SQL statement with its positional arguments.
type Statement struct {
	SQL  string
	Args []any
}

// Stmt builds a Statement.
func Stmt(sql string, args ...any) Statement {
	return Statement{SQL: sql, Args: args}
}

// Conn is a connection borrowed from a Manager. It is owned by one goroutine
// until Release.
type Conn struct {
	m        *Manager
	raw      poolConn
	inTx     bool
	broken   bool
	released bool
}

// Execute runs sql on the manager's pool: it borrows a connection, runs the
// statement and releases the connection on every path.
func (m *Manager) Execute(ctx context.Context, sql string, args ...any) (*Result, error) {
	ctx, cancel := m.withStatementTimeout(ctx)
	defer cancel()

	start := time.Now()
	c, err := m.Acquire(ctx)
	if err != nil {
		m.observeQuery(ctx, sql, len(args), nil, err, time.Since(start), false)
		return nil, err
	}
	defer m.Release(c)

	return c.Execute(ctx, sql, args...)
}

// Execute runs sql on this connection and reports it to the observers.
func (c *Conn) Execute(ctx context.Context, sql string, args ...any) (*Result, error) {
	ctx, cancel := c.m.bind(ctx)
	defer cancel()

	start := time.Now()
	res, err := c.query(ctx, sql, args...)
	c.m.observeQuery(ctx, sql, len(args), res, err, time.Since(start), c.inTx)

	switch {
	case err == nil:
		c.m.markHealthy()
	case IsConnectivity(err):
		c.m.connectionLost(err)
	}
	return res, err
}

func (c *Conn) query(ctx context.Context, sql string, args ...any) (*Result, error) {
	if c.released {
		return nil, &Error{Kind: KindQuery, Op: "execute", Err: fmt.Errorf("connection already released")}
	}

	rows, err := c.raw.Query(ctx, sql, args...)
	if err != nil {
		return nil, c.fail("execute", err)
	}

	fields := rows.FieldDescriptions()
	maps, err := pgx.CollectRows(rows, pgx.RowToMap)
	if err != nil {
		return nil, c.fail("execute", err)
	}

	res := &Result{
		Columns:  make([]string, len(fields)),
		Rows:     make([]Row, len(maps)),
		RowCount: rows.CommandTag().RowsAffected(),
	}
	for i, f := range fields {
		res.Columns[i] = f.Name
	}
	for i, r := range maps {
		res.Rows[i] = Row(r)
	}
	return res, nil
}

// exec runs a statement without result rows or instrumentation.
func (c *Conn) exec(ctx context.Context, sql string) error {
	if _, err := c.raw.Exec(ctx, sql); err != nil {
		return c.fail("execute", err)
	}
	return nil
}

// fail classifies err and flags the connection for discard when its state on
// the wire is unknown.
func (c *Conn) fail(op string, err error) error {
	cerr := classify(op, err)
	switch KindOf(cerr) {
	case KindTimeout, KindConnectivity:
		c.broken = true
	}
	return cerr
}

// close returns the connection to the pool, or discards it when broken.
func (c *Conn) close() {
	if c.released {
		return
	}
	c.released = true
	if c.broken {
		c.raw.Discard(context.Background())
		return
	}
	c.raw.Release()
}

func (m *Manager) observeQuery(ctx context.Context, sql string, params int, res *Result, err error, d time.Duration, inTx bool) {
	e := QueryLogEntry{
		Statement: truncateStatement(sql),
		Params:    params,
		Duration:  d,
		Success:   err == nil,
		InTx:      inTx,
	}
	if res != nil {
		e.Rows = res.RowCount
	}
	if err != nil {
		e.Kind = KindOf(err)
		e.Code = SQLState(err)
	}
	m.obs.QueryExecuted(ctx, e)
}
