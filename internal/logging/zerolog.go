package logging

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// ZerologLogger adapts zerolog to Logger. Used for human-readable console
// output during local development.
type ZerologLogger struct {
	l zerolog.Logger
}

func NewZerologLogger(l zerolog.Logger) *ZerologLogger {
	return &ZerologLogger{l: l}
}

// NewConsoleLogger builds a colored console logger writing to w (stdout when nil).
func NewConsoleLogger(w io.Writer, level zerolog.Level) *ZerologLogger {
	if w == nil {
		w = os.Stdout
	}
	cw := zerolog.ConsoleWriter{Out: w, TimeFormat: time.DateTime}
	return NewZerologLogger(zerolog.New(cw).Level(level).With().Timestamp().Logger())
}

func (z *ZerologLogger) Debug(ctx context.Context, msg string, args ...any) {
	z.event(z.l.Debug(), ctx, msg, args)
}

func (z *ZerologLogger) Info(ctx context.Context, msg string, args ...any) {
	z.event(z.l.Info(), ctx, msg, args)
}

func (z *ZerologLogger) Warn(ctx context.Context, msg string, args ...any) {
	z.event(z.l.Warn(), ctx, msg, args)
}

func (z *ZerologLogger) Error(ctx context.Context, msg string, args ...any) {
	z.event(z.l.Error(), ctx, msg, args)
}

func (z *ZerologLogger) With(args ...any) Logger {
	return &ZerologLogger{l: z.l.With().Fields(pairs(args)).Logger()}
}

func (z *ZerologLogger) event(e *zerolog.Event, ctx context.Context, msg string, args []any) {
	if ctx != nil {
		e = e.Ctx(ctx)
		if id := RequestID(ctx); id != "" {
			e = e.Str("request_id", id)
		}
	}
	e.Fields(pairs(args)).Msg(msg)
}

// pairs turns slog-style variadic key-value args into a zerolog field map.
// A dangling key is recorded under "!BADKEY", as slog does.
func pairs(args []any) map[string]any {
	fields := make(map[string]any, len(args)/2)
	for i := 0; i < len(args); i += 2 {
		if i+1 >= len(args) {
			fields["!BADKEY"] = args[i]
			break
		}
		key, ok := args[i].(string)
		if !ok {
			key = fmt.Sprint(args[i])
		}
		if err, ok := args[i+1].(error); ok {
			fields[key] = err.Error()
			continue
		}
		fields[key] = args[i+1]
	}
	return fields
}
