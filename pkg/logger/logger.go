// Package logger provides the process-wide structured logger, built on
// log/slog.
//
// WithCtx returns the request-scoped logger injected by the Logger
// middleware, so every line from a handler carries its request_id:
//
//	log := logger.WithCtx(r.Context())
//	log.Info("order status updated", "order_id", id, "to", status)
package logger

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/tickethub/tickethub/config"
	"github.com/tickethub/tickethub/pkg/database"
)

var L *slog.Logger

// redacted lists attribute keys whose values never reach a log sink.
var redacted = map[string]struct{}{
	"password":         {},
	"current_password": {},
	"new_password":     {},
	"token":            {},
	"otp":              {},
	"authorization":    {},
}

func init() {
	L = slog.New(newConsoleHandler(os.Stdout, config.AppEnv()))
	slog.SetDefault(L)
}

func newConsoleHandler(w io.Writer, env string) slog.Handler {
	opts := &slog.HandlerOptions{Level: slog.LevelDebug, ReplaceAttr: redact}
	switch env {
	case "production", "prod":
		opts.Level = slog.LevelInfo
		return slog.NewJSONHandler(w, opts)
	default:
		return slog.NewTextHandler(w, opts)
	}
}

func redact(_ []string, a slog.Attr) slog.Attr {
	if _, ok := redacted[strings.ToLower(a.Key)]; ok {
		return slog.String(a.Key, "[redacted]")
	}
	return a
}

// Setup attaches the MongoDB sink when LOG_MONGO_URI is configured. The
// returned func flushes pending records and must be called on shutdown.
func Setup(ctx context.Context) (func(), error) {
	uri := config.LogMongoURI()
	if uri == "" {
		return func() {}, nil
	}

	client, db, err := database.OpenMongo(ctx, uri, config.MongoDatabase())
	if err != nil {
		return func() {}, err
	}

	level := slog.LevelDebug
	if env := config.AppEnv(); env == "production" || env == "prod" {
		level = slog.LevelInfo
	}
	mh := NewMongoHandler(ctx, db.Collection("logs"), level)

	L = slog.New(NewMultiHandler(newConsoleHandler(os.Stdout, config.AppEnv()), mh))
	slog.SetDefault(L)

	return func() {
		mh.Close()
		_ = client.Disconnect(context.Background())
	}, nil
}

type ctxKey struct{}

// WithCtx returns the logger stored by InjectLogger, or the base logger.
func WithCtx(ctx context.Context) *slog.Logger {
	if log, ok := ctx.Value(ctxKey{}).(*slog.Logger); ok && log != nil {
		return log
	}
	return L
}

// InjectLogger stores a request-scoped logger in ctx.
func InjectLogger(ctx context.Context, log *slog.Logger) context.Context {
	return context.WithValue(ctx, ctxKey{}, log)
}

func Debug(msg string, args ...any) { L.Debug(msg, args...) }
func Info(msg string, args ...any)  { L.Info(msg, args...) }
func Warn(msg string, args ...any)  { L.Warn(msg, args...) }
func Error(msg string, args ...any) { L.Error(msg, args...) }
