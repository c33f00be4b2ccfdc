package db

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"os"
	"sync"
	"sync/atomic"
	"syscall"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/require"

	"productservice/src/infra/config"
)

// fakeResult is what the fake server answers for one statement.
type fakeResult struct {
	columns []string
	rows    [][]any
	tag     string
	err     error
	// block waits for the statement context to be done.
	block bool
}

// fakeServer scripts statement results and records what was sent.
type fakeServer struct {
	mu       sync.Mutex
	handler  func(sql string, args []any) fakeResult
	dialErr  error
	dialFail int // remaining dial failures when dialErr is set; <0 means forever
	log      []string
}

func newFakeServer() *fakeServer {
	return &fakeServer{}
}

func (s *fakeServer) handle(fn func(sql string, args []any) fakeResult) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handler = fn
}

// refuse makes the next n dials fail; n < 0 refuses forever, 0 accepts again.
func (s *fakeServer) refuse(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dialFail = n
	s.dialErr = errRefused
}

func (s *fakeServer) dial() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch {
	case s.dialFail < 0:
		return s.dialErr
	case s.dialFail > 0:
		s.dialFail--
		return s.dialErr
	}
	return nil
}

func (s *fakeServer) run(sql string, args []any) fakeResult {
	s.mu.Lock()
	s.log = append(s.log, sql)
	h := s.handler
	s.mu.Unlock()

	switch sql {
	case probeSQL:
		return fakeResult{
			columns: []string{"current_time", "version"},
			rows:    [][]any{{time.Now(), "PostgreSQL 16.4 (fake)"}},
			tag:     "SELECT 1",
		}
	}
	if h != nil {
		return h(sql, args)
	}
	switch sql {
	case healthSQL:
		return fakeResult{columns: []string{"health_check"}, rows: [][]any{{int32(1)}}, tag: "SELECT 1"}
	case "BEGIN":
		return fakeResult{tag: "BEGIN"}
	case "COMMIT":
		return fakeResult{tag: "COMMIT"}
	case "ROLLBACK":
		return fakeResult{tag: "ROLLBACK"}
	}
	return fakeResult{tag: "SELECT 0"}
}

// statements returns what was sent, probe round-trips excluded.
func (s *fakeServer) statements() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.log))
	for _, sql := range s.log {
		if sql != probeSQL {
			out = append(out, sql)
		}
	}
	return out
}

func (s *fakeServer) resetLog() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.log = nil
}

var errRefused = &net.OpError{Op: "dial", Net: "tcp", Err: os.NewSyscallError("connect", syscall.ECONNREFUSED)}

// fakePool is a bounded pool: at most max connections are borrowed at once.
type fakePool struct {
	srv   *fakeServer
	max   int32
	slots chan struct{}

	acquires atomic.Int32

	mu        sync.Mutex
	acquired  int32
	idle      int32
	discarded int
	closed    bool
}

func newFakePool(srv *fakeServer, max int) *fakePool {
	return &fakePool{srv: srv, max: int32(max), slots: make(chan struct{}, max)}
}

func (p *fakePool) Acquire(ctx context.Context) (poolConn, error) {
	p.acquires.Add(1)
	select {
	case p.slots <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	if err := p.srv.dial(); err != nil {
		<-p.slots
		return nil, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.idle > 0 {
		p.idle--
	}
	p.acquired++
	return &fakeConn{pool: p}, nil
}

func (p *fakePool) Stat() poolStat {
	p.mu.Lock()
	defer p.mu.Unlock()
	return poolStat{Acquired: p.acquired, Idle: p.idle, Total: p.acquired + p.idle, Max: p.max}
}

func (p *fakePool) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
}

func (p *fakePool) isClosed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

func (p *fakePool) discards() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.discarded
}

type fakeConn struct {
	pool *fakePool
}

func (c *fakeConn) do(ctx context.Context, sql string, args []any) fakeResult {
	if err := ctx.Err(); err != nil {
		return fakeResult{err: err}
	}
	r := c.pool.srv.run(sql, args)
	if r.block {
		<-ctx.Done()
		return fakeResult{err: ctx.Err()}
	}
	return r
}

func (c *fakeConn) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	r := c.do(ctx, sql, args)
	if r.err != nil {
		return nil, r.err
	}
	fields := make([]pgconn.FieldDescription, len(r.columns))
	for i, name := range r.columns {
		fields[i] = pgconn.FieldDescription{Name: name}
	}
	return &fakeRows{fields: fields, rows: r.rows, tag: pgconn.NewCommandTag(r.tag), i: -1}, nil
}

func (c *fakeConn) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	r := c.do(ctx, sql, args)
	return pgconn.NewCommandTag(r.tag), r.err
}

func (c *fakeConn) Release() {
	c.pool.mu.Lock()
	c.pool.acquired--
	c.pool.idle++
	c.pool.mu.Unlock()
	<-c.pool.slots
}

func (c *fakeConn) Discard(context.Context) {
	c.pool.mu.Lock()
	c.pool.acquired--
	c.pool.discarded++
	c.pool.mu.Unlock()
	<-c.pool.slots
}

type fakeRows struct {
	fields []pgconn.FieldDescription
	rows   [][]any
	tag    pgconn.CommandTag
	i      int
	closed bool
}

func (r *fakeRows) Close()                                       { r.closed = true }
func (r *fakeRows) Err() error                                   { return nil }
func (r *fakeRows) CommandTag() pgconn.CommandTag                { return r.tag }
func (r *fakeRows) FieldDescriptions() []pgconn.FieldDescription { return r.fields }
func (r *fakeRows) RawValues() [][]byte                          { return nil }
func (r *fakeRows) Conn() *pgx.Conn                              { return nil }

func (r *fakeRows) Next() bool {
	if r.closed {
		return false
	}
	r.i++
	if r.i >= len(r.rows) {
		r.closed = true
		return false
	}
	return true
}

func (r *fakeRows) Values() ([]any, error) {
	if r.i < 0 || r.i >= len(r.rows) {
		return nil, errors.New("fake rows: no current row")
	}
	return r.rows[r.i], nil
}

func (r *fakeRows) Scan(dest ...any) error {
	if len(dest) == 1 {
		if rs, ok := dest[0].(pgx.RowScanner); ok {
			return rs.ScanRow(r)
		}
	}
	return errors.New("fake rows: only RowScanner destinations are supported")
}

// recordingScheduler replaces time.AfterFunc: it records every delay and
// runs the action right away on its own goroutine.
type recordingScheduler struct {
	mu     sync.Mutex
	delays []time.Duration
}

func (s *recordingScheduler) afterFunc(d time.Duration, f func()) func() bool {
	s.mu.Lock()
	s.delays = append(s.delays, d)
	s.mu.Unlock()
	go f()
	return func() bool { return false }
}

func (s *recordingScheduler) recorded() []time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]time.Duration(nil), s.delays...)
}

// parkedScheduler records delays and never fires.
type parkedScheduler struct {
	recordingScheduler
}

func (s *parkedScheduler) afterFunc(d time.Duration, _ func()) func() bool {
	s.mu.Lock()
	s.delays = append(s.delays, d)
	s.mu.Unlock()
	return func() bool { return true }
}

// recordingObserver keeps every event.
type recordingObserver struct {
	mu      sync.Mutex
	queries []QueryLogEntry
	txs     []TxLogEntry
	changes []StateChange
}

func (o *recordingObserver) QueryExecuted(_ context.Context, e QueryLogEntry) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.queries = append(o.queries, e)
}

func (o *recordingObserver) TransactionFinished(_ context.Context, e TxLogEntry) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.txs = append(o.txs, e)
}

func (o *recordingObserver) StateChanged(e StateChange) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.changes = append(o.changes, e)
}

func (o *recordingObserver) queryLog() []QueryLogEntry {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]QueryLogEntry(nil), o.queries...)
}

func (o *recordingObserver) txLog() []TxLogEntry {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]TxLogEntry(nil), o.txs...)
}

func (o *recordingObserver) transitions() [][2]State {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([][2]State, len(o.changes))
	for i, c := range o.changes {
		out[i] = [2]State{c.From, c.To}
	}
	return out
}

// retryDelays returns the NextDelay of every change that followed a failure.
func (o *recordingObserver) retryDelays() []time.Duration {
	o.mu.Lock()
	defer o.mu.Unlock()
	var out []time.Duration
	for _, c := range o.changes {
		if c.NextDelay > 0 {
			out = append(out, c.NextDelay)
		}
	}
	return out
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testConfig() config.DatabaseConfig {
	return config.DatabaseConfig{
		Host:             "localhost",
		Port:             5432,
		User:             "postgres",
		Password:         "password",
		Name:             "product_db",
		PoolMax:          2,
		IdleTimeout:      30 * time.Second,
		ConnectTimeout:   500 * time.Millisecond,
		StatementTimeout: 5 * time.Second,
		MaxRetries:       5,
		RetryBaseDelay:   time.Second,
		RetryMaxDelay:    10 * time.Second,
		ShutdownGrace:    time.Second,
	}
}

type testEnv struct {
	m     *Manager
	srv   *fakeServer
	pool  *fakePool
	obs   *recordingObserver
	sched *recordingScheduler
}

// newTestEnv builds a Manager over a fake pool with an immediate scheduler.
// It does not call Initialize.
func newTestEnv(t *testing.T, cfg config.DatabaseConfig) *testEnv {
	t.Helper()

	env := &testEnv{
		srv:   newFakeServer(),
		obs:   &recordingObserver{},
		sched: &recordingScheduler{},
	}
	env.pool = newFakePool(env.srv, cfg.PoolMax)

	backoff := NewBackoff(cfg.RetryBaseDelay, cfg.RetryMaxDelay, cfg.MaxRetries)
	backoff.afterFunc = env.sched.afterFunc

	env.m = New(cfg, SSLDisabled, discardLogger(), WithObserver(env.obs), WithBackoff(backoff))
	env.m.newPool = func(context.Context) (connPool, error) { return env.pool, nil }

	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = env.m.Shutdown(ctx)
	})
	return env
}

// connected initializes the manager and waits for the first probe.
func (env *testEnv) connected(t *testing.T) *testEnv {
	t.Helper()
	require.NoError(t, env.m.Initialize(context.Background()))
	waitForState(t, env.m, StateConnected)
	env.srv.resetLog()
	return env
}

func waitForState(t *testing.T, m *Manager, want State) {
	t.Helper()
	require.Eventually(t, func() bool { return m.State() == want }, 2*time.Second, 5*time.Millisecond,
		"state never became %s (last %s)", want, m.State())
}

func pgError(code, msg string) *pgconn.PgError {
	return &pgconn.PgError{Severity: "ERROR", Code: code, Message: msg}
}
