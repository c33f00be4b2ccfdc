package db

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
)

// rollbackTimeout bounds ROLLBACK, which runs even when the caller's context
// is already done.
const rollbackTimeout = 5 * time.Second

type txOptions struct {
	isolation  pgx.TxIsoLevel
	accessMode pgx.TxAccessMode
}

// TxOption configures RunTransaction.
type TxOption func(*txOptions)

// WithIsolation sets the transaction isolation level.
func WithIsolation(level pgx.TxIsoLevel) TxOption {
	return func(o *txOptions) { o.isolation = level }
}

// ReadOnly starts the transaction in read-only mode.
func ReadOnly() TxOption {
	return func(o *txOptions) { o.accessMode = pgx.ReadOnly }
}

func (o txOptions) begin() string {
	var b strings.Builder
	b.WriteString("BEGIN")
	if o.isolation != "" {
		b.WriteString(" ISOLATION LEVEL ")
		b.WriteString(strings.ToUpper(string(o.isolation)))
	}
	if o.accessMode != "" {
		b.WriteString(" ")
		b.WriteString(strings.ToUpper(string(o.accessMode)))
	}
	return b.String()
}

// RunTransaction executes stmts in order on a single connection, atomically.
// On the first failure it rolls back and returns a *TransactionError carrying
// the index of the failing statement and the original error. On success it
// returns one Result per statement.
func (m *Manager) RunTransaction(ctx context.Context, stmts []Statement, opts ...TxOption) ([]*Result, error) {
	var o txOptions
	for _, opt := range opts {
		opt(&o)
	}

	ctx, cancel := m.withStatementTimeout(ctx)
	defer cancel()

	start := time.Now()
	c, err := m.Acquire(ctx)
	if err != nil {
		m.obs.TransactionFinished(ctx, TxLogEntry{Statements: len(stmts), Duration: time.Since(start), FailedIndex: -1, Err: err})
		return nil, err
	}
	defer m.Release(c)

	results, err := c.runTransaction(ctx, stmts, o)

	entry := TxLogEntry{Statements: len(stmts), Duration: time.Since(start), Committed: err == nil, FailedIndex: -2, Err: err}
	var txErr *TransactionError
	if errors.As(err, &txErr) {
		entry.FailedIndex = txErr.Index
		entry.RolledBack = txErr.RolledBack
	}
	m.obs.TransactionFinished(ctx, entry)

	return results, err
}

// The connection is only released by the caller after COMMIT or ROLLBACK
// has returned.
func (c *Conn) runTransaction(ctx context.Context, stmts []Statement, o txOptions) ([]*Result, error) {
	ctx, cancel := c.m.bind(ctx)
	defer cancel()

	if err := c.exec(ctx, o.begin()); err != nil {
		if IsConnectivity(err) {
			c.m.connectionLost(err)
		}
		return nil, &TransactionError{Index: -1, Statement: "BEGIN", Err: err}
	}

	c.inTx = true
	defer func() { c.inTx = false }()

	results := make([]*Result, 0, len(stmts))
	for i, s := range stmts {
		res, err := c.Execute(ctx, s.SQL, s.Args...)
		if err != nil {
			txErr := &TransactionError{Index: i, Statement: truncateStatement(s.SQL), Err: err}
			c.rollback(txErr)
			return nil, txErr
		}
		results = append(results, res)
	}

	if err := c.exec(ctx, "COMMIT"); err != nil {
		txErr := &TransactionError{Index: -1, Statement: "COMMIT", Err: err}
		// A server-side COMMIT failure ends the transaction; a lost
		// connection leaves its outcome unknown.
		if SQLState(err) != "" {
			txErr.RolledBack = true
		} else {
			c.broken = true
		}
		if IsConnectivity(err) {
			c.m.connectionLost(err)
		}
		return nil, txErr
	}
	return results, nil
}

// rollback issues ROLLBACK on a context detached from the caller's. A broken
// connection is discarded instead, which aborts the transaction server-side.
func (c *Conn) rollback(txErr *TransactionError) {
	if c.broken {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), rollbackTimeout)
	defer cancel()

	if err := c.exec(ctx, "ROLLBACK"); err != nil {
		txErr.RollbackErr = err
		c.broken = true
		c.m.log.Error("rollback failed, discarding connection", "error", err)
		return
	}
	txErr.RolledBack = true
}
