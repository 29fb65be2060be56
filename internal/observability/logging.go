// Package observability provides logging, metrics, and tracing.
package observability

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"

	"doubtdesk/internal/models"

	"github.com/google/uuid"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Logger is the application-wide structured logger.
var Logger *slog.Logger

// LogContextKey is a type for context keys used by the logging package.
type LogContextKey string

// Context keys picked up by the context-aware handler.
const (
	RequestIDKey     LogContextKey = "request_id"
	UserIDKey        LogContextKey = "user_id"
	TraceIDKey       LogContextKey = "trace_id"
	CorrelationIDKey LogContextKey = "correlation_id"
)

// ctxHandler is a slog.Handler that adds context values to the log record.
type ctxHandler struct {
	slog.Handler
}

// Handle adds context values to the record before passing it to the underlying handler.
func (h *ctxHandler) Handle(ctx context.Context, r slog.Record) error {
	if rid, ok := ctx.Value(RequestIDKey).(string); ok {
		r.AddAttrs(slog.String("request_id", rid))
	}
	if uid, ok := ctx.Value(UserIDKey).(uint); ok {
		r.AddAttrs(slog.Any("user_id", uid))
	}
	if tid, ok := ctx.Value(TraceIDKey).(string); ok {
		r.AddAttrs(slog.String("trace_id", tid))
	}
	if cid, ok := ctx.Value(CorrelationIDKey).(string); ok {
		r.AddAttrs(slog.String("correlation_id", cid))
	}
	return h.Handler.Handle(ctx, r)
}

func (h *ctxHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &ctxHandler{h.Handler.WithAttrs(attrs)}
}

func (h *ctxHandler) WithGroup(name string) slog.Handler {
	return &ctxHandler{h.Handler.WithGroup(name)}
}

func init() {
	Logger = NewLogger(os.Getenv("APP_ENV"), os.Stdout)
}

// NewLogger builds a context-aware logger: JSON in production, text otherwise.
func NewLogger(env string, w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{Level: slog.LevelInfo}

	var handler slog.Handler
	if env == "production" || env == "prod" {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}
	return slog.New(&ctxHandler{handler})
}

// LogFileOptions configures the optional rolling log file.
type LogFileOptions struct {
	Path       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

// Configure replaces Logger for the given environment. When a log file path
// is set, records are written to stdout and to a size-rotated file.
func Configure(env string, file LogFileOptions) io.Closer {
	var w io.Writer = os.Stdout
	var closer io.Closer = io.NopCloser(nil)

	if file.Path != "" {
		lj := &lumberjack.Logger{
			Filename:   file.Path,
			MaxSize:    nz(file.MaxSizeMB, 100),
			MaxBackups: nz(file.MaxBackups, 3),
			MaxAge:     nz(file.MaxAgeDays, 7),
			Compress:   file.Compress,
		}
		w = io.MultiWriter(os.Stdout, lj)
		closer = lj
	}

	Logger = NewLogger(env, w)
	slog.SetDefault(Logger)
	return closer
}

func nz(v, def int) int {
	if v == 0 {
		return def
	}
	return v
}

// NewCorrelationID creates a new unique correlation ID.
func NewCorrelationID() string {
	return uuid.NewString()
}

// WithCorrelationID returns a new context with the given correlation ID.
func WithCorrelationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, CorrelationIDKey, id)
}

// EnsureCorrelationID returns ctx carrying a correlation ID, creating one if absent.
func EnsureCorrelationID(ctx context.Context) context.Context {
	if ExtractCorrelationID(ctx) != "" {
		return ctx
	}
	return WithCorrelationID(ctx, NewCorrelationID())
}

// ExtractCorrelationID retrieves the correlation ID from the context.
func ExtractCorrelationID(ctx context.Context) string {
	if id, ok := ctx.Value(CorrelationIDKey).(string); ok {
		return id
	}
	return ""
}

// RepoLogger provides structured logging for repository operations.
type RepoLogger struct {
	tableName string
}

// NewRepoLogger creates a new RepoLogger for the given table.
func NewRepoLogger(tableName string) *RepoLogger {
	return &RepoLogger{tableName: tableName}
}

// LogMutation records a committed write.
func (l *RepoLogger) LogMutation(ctx context.Context, operation string, attrs ...slog.Attr) {
	base := []slog.Attr{
		slog.String("table", l.tableName),
		slog.String("operation", operation),
	}
	Logger.LogAttrs(ctx, slog.LevelInfo, "repository mutation", append(base, attrs...)...)
}

// LogError logs a repository error. AppErrors other than internal ones are
// logged at warn.
func (l *RepoLogger) LogError(ctx context.Context, err error, operation string) {
	level := slog.LevelError
	var appErr *models.AppError
	if errors.As(err, &appErr) && appErr.Code != models.CodeInternal {
		level = slog.LevelWarn
	}
	Logger.Log(ctx, level, "repository error",
		slog.String("table", l.tableName),
		slog.String("operation", operation),
		slog.String("error", err.Error()),
	)
}
