package db

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"productservice/src/infra/config"
)

const (
	probeSQL = "SELECT NOW() AS current_time, version() AS version"

	// drainAfterCancel bounds the wait for borrowers once in-flight
	// statements have been canceled by Shutdown.
	drainAfterCancel = time.Second
)

// PoolStats is a point-in-time snapshot of the pool and connectivity state.
type PoolStats struct {
	Active  int32 `json:"active"`
	Idle    int32 `json:"idle"`
	Waiting int32 `json:"waiting"`
	Total   int32 `json:"total"`
	Max     int32 `json:"max"`
	State   State `json:"state"`
	Attempt int   `json:"retry_attempt"`
}

// Option configures a Manager.
type Option func(*Manager)

// WithObserver adds an instrumentation sink. The slog sink is always installed.
func WithObserver(o Observer) Option {
	return func(m *Manager) {
		if o != nil {
			m.obs = append(m.obs, o)
		}
	}
}

// WithBackoff replaces the backoff built from the config.
func WithBackoff(b *Backoff) Option {
	return func(m *Manager) {
		m.backoff = b
	}
}

// Manager owns the connection pool and the connectivity state machine.
//
// Every state transition happens under mu. Observer callbacks run after mu
// is released.
type Manager struct {
	cfg     config.DatabaseConfig
	ssl     SSLMode
	log     *slog.Logger
	obs     Observers
	backoff *Backoff
	now     func() time.Time
	newPool func(ctx context.Context) (connPool, error)

	mu          sync.Mutex
	pool        connPool
	state       State
	retry       RetryState
	initialized bool
	closed      bool
	probing     bool
	stopRetry   func() bool

	waiting     atomic.Int32
	borrowed    sync.WaitGroup
	unavailable chan error

	root   context.Context
	cancel context.CancelFunc
}

// New creates a Manager. It performs no I/O; call Initialize to build the pool.
func New(cfg config.DatabaseConfig, ssl SSLMode, log *slog.Logger, opts ...Option) *Manager {
	root, cancel := context.WithCancel(context.Background())
	m := &Manager{
		cfg:         cfg,
		ssl:         ssl,
		log:         log,
		obs:         Observers{NewLogObserver(log)},
		backoff:     NewBackoff(cfg.RetryBaseDelay, cfg.RetryMaxDelay, cfg.MaxRetries),
		now:         time.Now,
		state:       StateDisconnected,
		unavailable: make(chan error, 1),
		root:        root,
		cancel:      cancel,
	}
	m.newPool = func(ctx context.Context) (connPool, error) {
		return newPgxPool(ctx, m.cfg, m.ssl)
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Initialize builds the pool and starts the first probe in the background.
// It returns as soon as the pool exists; connectivity is reported through
// State, Stats and Unavailable.
func (m *Manager) Initialize(ctx context.Context) error {
	m.mu.Lock()
	if m.initialized {
		m.mu.Unlock()
		return &Error{Kind: KindConfiguration, Op: "initialize", Err: ErrAlreadyInitialized}
	}
	if m.closed {
		m.mu.Unlock()
		return &Error{Kind: KindNotConnected, Op: "initialize", Err: ErrClosed}
	}
	m.initialized = true
	m.mu.Unlock()

	pool, err := m.newPool(ctx)
	if err != nil {
		return classify("initialize", err)
	}

	m.mu.Lock()
	m.pool = pool
	m.mu.Unlock()

	m.log.Info("database pool initialized",
		"host", m.cfg.Host,
		"port", m.cfg.Port,
		"database", m.cfg.Name,
		"ssl", m.ssl.String(),
		"pool_max", m.cfg.PoolMax,
	)

	go m.probe(m.root, false)
	return nil
}

// State returns the current connectivity state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// SSLMode returns the transport security the pool was built with.
func (m *Manager) SSLMode() SSLMode {
	return m.ssl
}

// Unavailable delivers the last probe error once the retry budget is
// exhausted. The process owner decides what to do with it.
func (m *Manager) Unavailable() <-chan error {
	return m.unavailable
}

// Probe runs a round-trip check now and reports whether it succeeded.
// It is the only way out of StateFailed; the database health Monitor calls
// it when a check finds the manager failed. A pending scheduled probe is
// superseded. If another probe is already in flight Probe returns false
// without waiting for it.
func (m *Manager) Probe(ctx context.Context) bool {
	return m.probe(ctx, true)
}

func (m *Manager) probe(ctx context.Context, explicit bool) bool {
	var events []StateChange

	m.mu.Lock()
	if m.closed || m.pool == nil || m.probing {
		m.mu.Unlock()
		return false
	}
	fromFailed := m.state == StateFailed
	if fromFailed && !explicit {
		m.mu.Unlock()
		return false
	}
	m.cancelRetryLocked()
	m.probing = true
	events = m.setStateLocked(events, StateProbing, nil)
	pool := m.pool
	m.mu.Unlock()
	m.emit(events)
	events = events[:0]

	version, err := m.roundTrip(ctx, pool)

	m.mu.Lock()
	m.probing = false
	if m.closed {
		m.mu.Unlock()
		return false
	}

	now := m.now()
	if err == nil {
		m.retry.reset(now)
		events = m.setStateLocked(events, StateConnected, nil)
		events[len(events)-1].Version = version
		m.mu.Unlock()
		m.emit(events)
		return true
	}

	attempt := m.retry.fail(now)
	switch {
	case fromFailed:
		m.retry.NextDelay = 0
		events = m.setStateLocked(events, StateFailed, err)
	case m.backoff.Exhausted(attempt):
		// NextDelay is reported even though nothing is scheduled.
		m.retry.NextDelay = m.backoff.NextDelay(attempt)
		events = m.setStateLocked(events, StateFailed, err)
		m.signalUnavailable(err)
	default:
		m.retry.NextDelay = m.backoff.NextDelay(attempt)
		events = m.setStateLocked(events, StateDisconnected, err)
		m.stopRetry = m.backoff.Schedule(attempt, m.scheduledProbe)
	}
	m.mu.Unlock()
	m.emit(events)
	return false
}

func (m *Manager) scheduledProbe() {
	m.mu.Lock()
	m.stopRetry = nil
	m.mu.Unlock()
	m.probe(m.root, false)
}

// roundTrip borrows a connection straight from the pool, bypassing the
// state checks of Acquire, and runs the probe statement.
func (m *Manager) roundTrip(ctx context.Context, pool connPool) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, 2*m.cfg.ConnectTimeout)
	defer cancel()

	raw, err := pool.Acquire(ctx)
	if err != nil {
		return "", classify("probe", err)
	}
	c := &Conn{m: m, raw: raw}
	res, err := c.query(ctx, probeSQL)
	if err != nil {
		c.broken = true
		c.close()
		return "", err
	}
	c.close()

	if len(res.Rows) == 1 {
		if v, ok := res.Rows[0]["version"].(string); ok {
			return v, nil
		}
	}
	return "", nil
}

// Acquire borrows a connection. It fails fast while the manager is Failed or
// shut down, and waits at most ConnectTimeout for a free slot.
// Every successful Acquire must be paired with Release.
func (m *Manager) Acquire(ctx context.Context) (*Conn, error) {
	m.mu.Lock()
	switch {
	case m.closed:
		m.mu.Unlock()
		return nil, &Error{Kind: KindNotConnected, Op: "acquire", Err: ErrClosed}
	case m.pool == nil:
		m.mu.Unlock()
		return nil, &Error{Kind: KindNotConnected, Op: "acquire", Err: ErrNotInitialized}
	case m.state == StateFailed:
		m.mu.Unlock()
		return nil, &Error{Kind: KindNotConnected, Op: "acquire", Err: ErrNotConnected}
	}
	pool := m.pool
	m.borrowed.Add(1)
	m.mu.Unlock()

	m.waiting.Add(1)
	actx, cancel := context.WithTimeout(ctx, m.cfg.ConnectTimeout)
	raw, err := pool.Acquire(actx)
	cancel()
	m.waiting.Add(-1)

	if err != nil {
		m.borrowed.Done()
		return nil, m.acquireError(ctx, pool, err)
	}
	return &Conn{m: m, raw: raw}, nil
}

func (m *Manager) acquireError(ctx context.Context, pool connPool, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return &Error{Kind: KindTimeout, Op: "acquire", Err: ctxErr}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		if st := pool.Stat(); st.Acquired >= st.Max {
			return &Error{
				Kind: KindPoolExhausted,
				Op:   "acquire",
				Err:  fmt.Errorf("%w: no connection freed within %s", ErrPoolExhausted, m.cfg.ConnectTimeout),
			}
		}
		err = &Error{Kind: KindConnectivity, Op: "acquire", Err: fmt.Errorf("connect timed out after %s: %w", m.cfg.ConnectTimeout, err)}
	}
	cerr := classify("acquire", err)
	if IsConnectivity(cerr) {
		m.connectionLost(cerr)
	}
	return cerr
}

// Release returns c to the pool. Connections flagged broken are closed
// instead. Releasing twice is a no-op.
func (m *Manager) Release(c *Conn) {
	if c == nil || c.released {
		return
	}
	c.close()
	m.borrowed.Done()
}

// connectionLost moves a Connected manager to Disconnected and hands
// recovery to the probe cycle.
func (m *Manager) connectionLost(err error) {
	var events []StateChange

	m.mu.Lock()
	if m.closed || m.probing || m.stopRetry != nil || m.state != StateConnected {
		m.mu.Unlock()
		return
	}
	events = m.setStateLocked(events, StateDisconnected, err)
	m.mu.Unlock()
	m.emit(events)

	go m.probe(m.root, false)
}

// markHealthy records a successful statement: a Disconnected manager is
// Connected again and its pending retry is dropped.
func (m *Manager) markHealthy() {
	var events []StateChange

	m.mu.Lock()
	if m.closed || m.probing || m.state != StateDisconnected {
		m.mu.Unlock()
		return
	}
	m.cancelRetryLocked()
	m.retry.reset(m.now())
	events = m.setStateLocked(events, StateConnected, nil)
	m.mu.Unlock()
	m.emit(events)
}

// Stats returns a snapshot of pool occupancy and connectivity.
func (m *Manager) Stats() PoolStats {
	m.mu.Lock()
	state, attempt, pool := m.state, m.retry.Attempt, m.pool
	m.mu.Unlock()

	var st poolStat
	if pool != nil {
		st = pool.Stat()
	} else {
		st.Max = int32(m.cfg.PoolMax)
	}
	return PoolStats{
		Active:  st.Acquired,
		Idle:    st.Idle,
		Waiting: m.waiting.Load(),
		Total:   st.Total,
		Max:     st.Max,
		State:   state,
		Attempt: attempt,
	}
}

// Shutdown stops new acquisitions and pending probes, waits for borrowed
// connections until ctx is done, then cancels in-flight statements and
// closes the pool. It returns ctx's error when the grace period ran out.
func (m *Manager) Shutdown(ctx context.Context) error {
	var events []StateChange

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	m.cancelRetryLocked()
	pool := m.pool
	if m.state != StateDisconnected {
		events = m.setStateLocked(events, StateDisconnected, nil)
	}
	m.mu.Unlock()
	m.emit(events)

	drained := make(chan struct{})
	go func() {
		m.borrowed.Wait()
		close(drained)
	}()

	var err error
	select {
	case <-drained:
	case <-ctx.Done():
		err = ctx.Err()
		m.log.Warn("shutdown grace period elapsed, canceling in-flight statements")
		m.cancel()
		select {
		case <-drained:
		case <-time.After(drainAfterCancel):
			m.log.Error("connections still borrowed after cancel, closing pool in background")
			if pool != nil {
				go pool.Close()
			}
			return err
		}
	}

	m.cancel()
	if pool != nil {
		pool.Close()
	}
	m.log.Info("database pool closed")
	return err
}

func (m *Manager) setStateLocked(events []StateChange, to State, err error) []StateChange {
	from := m.state
	m.state = to
	return append(events, StateChange{
		From:      from,
		To:        to,
		Attempt:   m.retry.Attempt,
		NextDelay: m.retry.NextDelay,
		Err:       err,
	})
}

func (m *Manager) cancelRetryLocked() {
	if m.stopRetry != nil {
		m.stopRetry()
		m.stopRetry = nil
	}
	m.retry.NextDelay = 0
}

func (m *Manager) signalUnavailable(err error) {
	select {
	case m.unavailable <- &Error{Kind: KindNotConnected, Op: "probe", Err: fmt.Errorf("%w: %w", ErrNotConnected, err)}:
	default:
	}
}

func (m *Manager) emit(events []StateChange) {
	for _, e := range events {
		m.obs.StateChanged(e)
	}
}

// withStatementTimeout applies the configured statement timeout when ctx has
// no deadline of its own.
func (m *Manager) withStatementTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if _, ok := ctx.Deadline(); ok || m.cfg.StatementTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, m.cfg.StatementTimeout)
}

// bind derives a context that is also canceled when Shutdown gives up
// waiting for borrowed connections.
func (m *Manager) bind(ctx context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(ctx)
	stop := context.AfterFunc(m.root, cancel)
	return ctx, func() {
		stop()
		cancel()
	}
}
