// Package notify is the toast sink: an in-process hub that fans user-facing
// messages out to WebSocket clients, terminals and the log.
package notify

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Level is the severity of a toast.
type Level string

const (
	LevelSuccess Level = "success"
	LevelInfo    Level = "info"
	LevelWarning Level = "warning"
	LevelError   Level = "error"
)

// Toast is one user-facing message. Delivery is fire-and-forget.
type Toast struct {
	ID         string    `json:"id,omitempty"`
	Level      Level     `json:"level"`
	Title      string    `json:"title"`
	Message    string    `json:"message,omitempty"`
	PropertyID string    `json:"propertyId,omitempty"`
	CreatedAt  time.Time `json:"createdAt"`
}

// Sink accepts toasts. Implementations must not block the caller for long.
type Sink interface {
	Notify(ctx context.Context, t Toast)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, t Toast)

func (f SinkFunc) Notify(ctx context.Context, t Toast) { f(ctx, t) }

// Discard drops every toast.
var Discard Sink = SinkFunc(func(context.Context, Toast) {})

// WriterSink prints toasts as single lines, e.g. "[success] Status updated: Property marked as Sold".
type WriterSink struct {
	mu sync.Mutex
	w  io.Writer
}

func NewWriterSink(w io.Writer) *WriterSink {
	return &WriterSink{w: w}
}

func (s *WriterSink) Notify(_ context.Context, t Toast) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t.Message == "" {
		fmt.Fprintf(s.w, "[%s] %s\n", t.Level, t.Title)
		return
	}
	fmt.Fprintf(s.w, "[%s] %s: %s\n", t.Level, t.Title, t.Message)
}

// LogSink writes toasts to a zap logger at a level matching the toast.
type LogSink struct {
	logger *zap.Logger
}

func NewLogSink(logger *zap.Logger) *LogSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogSink{logger: logger}
}

func (s *LogSink) Notify(_ context.Context, t Toast) {
	fields := []zap.Field{zap.String("title", t.Title), zap.String("message", t.Message)}
	if t.PropertyID != "" {
		fields = append(fields, zap.String("property_id", t.PropertyID))
	}
	switch t.Level {
	case LevelError:
		s.logger.Error("toast", fields...)
	case LevelWarning:
		s.logger.Warn("toast", fields...)
	default:
		s.logger.Info("toast", fields...)
	}
}
