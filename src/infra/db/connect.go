package db

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"productservice/src/infra/config"
)

// applicationName is reported to the server in pg_stat_activity.
const applicationName = "product-service"

// connPool is the part of pgxpool the Manager depends on.
type connPool interface {
	Acquire(ctx context.Context) (poolConn, error)
	Stat() poolStat
	Close()
}

// poolConn is one borrowed connection.
type poolConn interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	// Release returns the connection to the idle set.
	Release()
	// Discard closes the connection and frees its slot.
	Discard(ctx context.Context)
}

type poolStat struct {
	Acquired int32
	Idle     int32
	Total    int32
	Max      int32
}

// PoolConfig translates the connection parameters and the SSL decision into
// a pgxpool configuration. It performs no I/O.
func PoolConfig(cfg config.DatabaseConfig, ssl SSLMode) (*pgxpool.Config, error) {
	pc, err := pgxpool.ParseConfig(cfg.DSN(ssl.String()))
	if err != nil {
		// The parse error may echo the password back.
		return nil, &Error{Kind: KindConfiguration, Op: "pool config", Err: errors.New("invalid connection parameters")}
	}

	pc.MaxConns = int32(cfg.PoolMax)
	pc.MinConns = 0
	pc.MaxConnIdleTime = cfg.IdleTimeout
	if cfg.IdleTimeout < pc.HealthCheckPeriod {
		pc.HealthCheckPeriod = cfg.IdleTimeout
	}

	pc.ConnConfig.ConnectTimeout = cfg.ConnectTimeout
	pc.ConnConfig.TLSConfig = ssl.TLSConfig(cfg.Host)
	pc.ConnConfig.Fallbacks = nil
	pc.ConnConfig.RuntimeParams["application_name"] = applicationName

	return pc, nil
}

// newPgxPool builds the production pool. pgxpool dials lazily, so no
// connection is opened here.
func newPgxPool(ctx context.Context, cfg config.DatabaseConfig, ssl SSLMode) (connPool, error) {
	pc, err := PoolConfig(cfg, ssl)
	if err != nil {
		return nil, err
	}
	pool, err := pgxpool.NewWithConfig(ctx, pc)
	if err != nil {
		return nil, &Error{Kind: KindConfiguration, Op: "create pool", Err: err}
	}
	return &pgxPool{pool: pool}, nil
}

type pgxPool struct {
	pool *pgxpool.Pool
}

func (p *pgxPool) Acquire(ctx context.Context) (poolConn, error) {
	c, err := p.pool.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	return &pgxConn{conn: c}, nil
}

func (p *pgxPool) Stat() poolStat {
	s := p.pool.Stat()
	return poolStat{
		Acquired: s.AcquiredConns(),
		Idle:     s.IdleConns(),
		Total:    s.TotalConns(),
		Max:      s.MaxConns(),
	}
}

func (p *pgxPool) Close() {
	p.pool.Close()
}

type pgxConn struct {
	conn *pgxpool.Conn
}

func (c *pgxConn) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	return c.conn.Query(ctx, sql, args...)
}

func (c *pgxConn) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	return c.conn.Exec(ctx, sql, args...)
}

func (c *pgxConn) Release() {
	c.conn.Release()
}

// Discard takes the connection out of the pool and closes it.
func (c *pgxConn) Discard(ctx context.Context) {
	raw := c.conn.Hijack()
	ctx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	_ = raw.Close(ctx)
}
