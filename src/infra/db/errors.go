package db

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"syscall"

	"github.com/jackc/pgx/v5/pgconn"
)

// Kind classifies every error surfaced by this package.
type Kind int

const (
	KindUnknown Kind = iota
	// KindConfiguration: missing or invalid connection parameters. Never retried.
	KindConfiguration
	// KindConnectivity: unreachable host, refused or reset connection, DNS,
	// authentication or TLS failure. Recovered by the probe cycle.
	KindConnectivity
	// KindPoolExhausted: no connection became free within the connect timeout.
	KindPoolExhausted
	// KindNotConnected: the manager is in the terminal Failed state or shut down.
	KindNotConnected
	// KindQuery: malformed statement, constraint violation, type mismatch.
	KindQuery
	// KindTransaction: a statement inside a transaction failed, or commit failed.
	KindTransaction
	// KindTimeout: the caller's deadline expired or the call was canceled.
	KindTimeout
)

func (k Kind) String() string {
	switch k {
	case KindConfiguration:
		return "configuration"
	case KindConnectivity:
		return "connectivity"
	case KindPoolExhausted:
		return "pool_exhausted"
	case KindNotConnected:
		return "not_connected"
	case KindQuery:
		return "query"
	case KindTransaction:
		return "transaction"
	case KindTimeout:
		return "timeout"
	default:
		return "unknown"
	}
}

var (
	// ErrPoolExhausted is returned by Acquire when the bound is reached and no
	// connection is released within the connect timeout.
	ErrPoolExhausted = errors.New("connection pool exhausted")

	// ErrNotConnected is returned by Acquire while the manager is Failed.
	ErrNotConnected = errors.New("database not connected")

	// ErrAlreadyInitialized is returned by a second Initialize call.
	ErrAlreadyInitialized = errors.New("connection manager already initialized")

	// ErrNotInitialized is returned when the pool is used before Initialize.
	ErrNotInitialized = errors.New("connection manager not initialized")

	// ErrClosed is returned by Acquire after Shutdown.
	ErrClosed = errors.New("connection manager shut down")
)

// Error carries the classification of a failure together with its cause.
type Error struct {
	Kind Kind
	// Op is the operation that failed, e.g. "acquire", "execute", "probe".
	Op string
	// Code is the SQLSTATE when the server reported one.
	Code string
	Err  error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString("db: ")
	if e.Op != "" {
		b.WriteString(e.Op)
		b.WriteString(": ")
	}
	b.WriteString(e.Kind.String())
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

// Unwrap returns the cause for errors.Is/As support.
func (e *Error) Unwrap() error {
	return e.Err
}

// TransactionError reports which statement of a transaction failed and
// whether the rollback was issued. Err is the original failure, never the
// rollback's own outcome.
type TransactionError struct {
	// Index of the failing statement, or -1 when BEGIN or COMMIT failed.
	Index int
	// Statement is the truncated text of the failing statement.
	Statement string
	// RolledBack is true once ROLLBACK completed on the server.
	RolledBack bool
	// RollbackErr records a failed ROLLBACK; the connection was discarded.
	RollbackErr error
	Err         error
}

func (e *TransactionError) Error() string {
	switch {
	case e.Index >= 0:
		return fmt.Sprintf("db: transaction: statement %d failed (rolled back: %t): %v", e.Index, e.RolledBack, e.Err)
	default:
		return fmt.Sprintf("db: transaction: %s failed (rolled back: %t): %v", e.Statement, e.RolledBack, e.Err)
	}
}

func (e *TransactionError) Unwrap() error {
	return e.Err
}

// KindOf returns the classification carried by err.
func KindOf(err error) Kind {
	if err == nil {
		return KindUnknown
	}
	var txErr *TransactionError
	if errors.As(err, &txErr) {
		return KindTransaction
	}
	var dbErr *Error
	if errors.As(err, &dbErr) {
		return dbErr.Kind
	}
	return KindUnknown
}

// IsConnectivity reports whether err, or the statement failure inside a
// transaction error, is a connectivity failure.
func IsConnectivity(err error) bool {
	var dbErr *Error
	return errors.As(err, &dbErr) && dbErr.Kind == KindConnectivity
}

// IsUnavailable reports whether err means the database cannot serve requests
// right now: lost connectivity, exhausted pool or terminal failure.
func IsUnavailable(err error) bool {
	var dbErr *Error
	if !errors.As(err, &dbErr) {
		return false
	}
	switch dbErr.Kind {
	case KindConnectivity, KindPoolExhausted, KindNotConnected:
		return true
	}
	return false
}

// SQLState returns the server error code carried by err, if any.
func SQLState(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	return ""
}

// classify wraps a driver error with its Kind. Already classified errors pass through.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	var dbErr *Error
	if errors.As(err, &dbErr) {
		return err
	}
	return &Error{Kind: kindOf(err), Op: op, Code: SQLState(err), Err: err}
}

func kindOf(err error) Kind {
	var connectErr *pgconn.ConnectError
	switch {
	case errors.As(err, &connectErr):
		return KindConnectivity
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled), pgconn.Timeout(err):
		return KindTimeout
	case isConnectivityErr(err):
		return KindConnectivity
	default:
		return KindQuery
	}
}

func isConnectivityErr(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch {
		case strings.HasPrefix(pgErr.Code, "08"), // connection_exception
			strings.HasPrefix(pgErr.Code, "28"): // invalid_authorization_specification
			return true
		}
		switch pgErr.Code {
		case "3D000", // invalid_catalog_name
			"53300",                   // too_many_connections
			"57P01", "57P02", "57P03": // admin_shutdown, crash_shutdown, cannot_connect_now
			return true
		}
		return false
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}

	switch {
	case errors.Is(err, io.EOF),
		errors.Is(err, io.ErrUnexpectedEOF),
		errors.Is(err, net.ErrClosed),
		errors.Is(err, syscall.ECONNREFUSED),
		errors.Is(err, syscall.ECONNRESET),
		errors.Is(err, syscall.EPIPE):
		return true
	}

	return pgconn.SafeToRetry(err)
}

// Hint returns an operator-facing troubleshooting tip for a connectivity
// failure, or "" when there is nothing specific to suggest.
func Hint(err error) string {
	if err == nil {
		return ""
	}
	switch SQLState(err) {
	case "28000":
		return "server rejected the connection (pg_hba.conf): set DB_SSL=require for managed databases or DB_SSL=false for a local server without TLS"
	case "28P01":
		return "password authentication failed: check DB_USER and DB_PASSWORD"
	case "3D000":
		return "database does not exist: check DB_NAME or create the database"
	case "53300":
		return "server has no free connection slots: lower DB_POOL_MAX or raise max_connections"
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return "host not found: check DB_HOST and network reachability"
	}
	if errors.Is(err, syscall.ECONNREFUSED) {
		return "connection refused: check DB_PORT, that the server is running, and firewall or security group rules"
	}
	if errors.Is(err, ErrPoolExhausted) {
		return "all connections are busy: raise DB_POOL_MAX or DB_CONNECT_TIMEOUT"
	}
	if errors.Is(err, ErrNotConnected) {
		return "reconnection budget exhausted: check the database and restart the service"
	}
	return ""
}
