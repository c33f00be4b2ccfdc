package db

import (
	"context"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"
)

// maxStatementLen bounds statement text in logs and errors.
const maxStatementLen = 100

// QueryLogEntry describes one executed statement. Parameter values are never
// recorded.
type QueryLogEntry struct {
	Statement string
	Params    int
	Rows      int64
	Duration  time.Duration
	Success   bool
	Kind      Kind
	Code      string
	InTx      bool
}

// TxLogEntry describes one finished transaction.
type TxLogEntry struct {
	Statements int
	Duration   time.Duration
	Committed  bool
	// FailedIndex is the failing statement, -1 for BEGIN/COMMIT, or -2 when
	// the transaction committed.
	FailedIndex int
	RolledBack  bool
	Err         error
}

// StateChange describes one connectivity state transition.
type StateChange struct {
	From      State
	To        State
	Attempt   int
	NextDelay time.Duration
	// Version is the server version reported by a successful probe.
	Version string
	Err     error
}

// Observer receives instrumentation events from the Manager. Implementations
// must be safe for concurrent use and must not call back into the Manager.
type Observer interface {
	QueryExecuted(ctx context.Context, e QueryLogEntry)
	TransactionFinished(ctx context.Context, e TxLogEntry)
	StateChanged(e StateChange)
}

// Observers fans events out to several sinks.
type Observers []Observer

func (o Observers) QueryExecuted(ctx context.Context, e QueryLogEntry) {
	for _, obs := range o {
		obs.QueryExecuted(ctx, e)
	}
}

func (o Observers) TransactionFinished(ctx context.Context, e TxLogEntry) {
	for _, obs := range o {
		obs.TransactionFinished(ctx, e)
	}
}

func (o Observers) StateChanged(e StateChange) {
	for _, obs := range o {
		obs.StateChanged(e)
	}
}

// LogObserver writes events to a slog.Logger. Successful statements are
// logged at debug level, failures at error level.
type LogObserver struct {
	Log *slog.Logger
}

// NewLogObserver returns an Observer backed by log.
func NewLogObserver(log *slog.Logger) *LogObserver {
	return &LogObserver{Log: log}
}

func (o *LogObserver) QueryExecuted(ctx context.Context, e QueryLogEntry) {
	attrs := []slog.Attr{
		slog.String("statement", e.Statement),
		slog.Int("params", e.Params),
		slog.Duration("duration", e.Duration),
	}
	if e.InTx {
		attrs = append(attrs, slog.Bool("in_tx", true))
	}
	if e.Success {
		attrs = append(attrs, slog.Int64("rows", e.Rows))
		o.Log.LogAttrs(ctx, slog.LevelDebug, "query executed", attrs...)
		return
	}
	attrs = append(attrs, slog.String("kind", e.Kind.String()))
	if e.Code != "" {
		attrs = append(attrs, slog.String("code", e.Code))
	}
	o.Log.LogAttrs(ctx, slog.LevelError, "query failed", attrs...)
}

func (o *LogObserver) TransactionFinished(ctx context.Context, e TxLogEntry) {
	if e.Committed {
		o.Log.LogAttrs(ctx, slog.LevelDebug, "transaction committed",
			slog.Int("statements", e.Statements),
			slog.Duration("duration", e.Duration),
		)
		return
	}
	o.Log.LogAttrs(ctx, slog.LevelError, "transaction failed",
		slog.Int("statements", e.Statements),
		slog.Int("failed_index", e.FailedIndex),
		slog.Bool("rolled_back", e.RolledBack),
		slog.Duration("duration", e.Duration),
		slog.Any("error", e.Err),
	)
}

func (o *LogObserver) StateChanged(e StateChange) {
	switch e.To {
	case StateConnected:
		args := []any{"from", e.From.String()}
		if e.Version != "" {
			args = append(args, "server_version", e.Version)
		}
		o.Log.Info("database connected", args...)
	case StateDisconnected:
		if e.Err == nil {
			o.Log.Info("database disconnected")
			return
		}
		args := []any{"attempt", e.Attempt, "error", e.Err}
		if e.NextDelay > 0 {
			args = append(args, "retry_in", e.NextDelay)
		}
		if hint := Hint(e.Err); hint != "" {
			args = append(args, "hint", hint)
		}
		o.Log.Warn("database connection lost", args...)
	case StateFailed:
		args := []any{"attempt", e.Attempt, "error", e.Err}
		if hint := Hint(e.Err); hint != "" {
			args = append(args, "hint", hint)
		}
		o.Log.Error("database unavailable, retries exhausted", args...)
	default:
		o.Log.Debug("database probing", "attempt", e.Attempt)
	}
}

// truncateStatement collapses whitespace and cuts the statement to
// maxStatementLen characters.
func truncateStatement(sql string) string {
	s := strings.Join(strings.Fields(sql), " ")
	if utf8.RuneCountInString(s) <= maxStatementLen {
		return s
	}
	runes := []rune(s)
	return string(runes[:maxStatementLen]) + "..."
}
