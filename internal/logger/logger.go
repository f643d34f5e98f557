package logger

import (
	"io"
	"net/http"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// Setup builds the process logger. Dev mode switches to debug level and
// the console writer.
func Setup(dev bool) zerolog.Logger {
	return New(os.Stderr, dev)
}

// New builds a logger writing to w.
func New(w io.Writer, dev bool) zerolog.Logger {
	level := zerolog.InfoLevel
	if dev {
		level = zerolog.DebugLevel
	}

	logger := zerolog.New(w).Level(level).With().Timestamp().Caller().Logger()

	if dev {
		logger = logger.Output(zerolog.ConsoleWriter{Out: w, FormatTimestamp: func(i any) string {
			return time.Now().Format(time.RFC3339)
		}}).Level(level).With().Stack().Logger()
	}

	return logger
}

var _ http.RoundTripper = (*Requests)(nil)

// Requests logs every outbound HTTP call with its status and duration.
// Request bodies are never logged; they carry PINs and OTPs.
type Requests struct {
	logger zerolog.Logger
	next   http.RoundTripper
}

// NewRequests wraps next, or http.DefaultTransport when next is nil.
func NewRequests(logger zerolog.Logger, next http.RoundTripper) *Requests {
	if next == nil {
		next = http.DefaultTransport
	}
	return &Requests{logger: logger, next: next}
}

func (r *Requests) RoundTrip(req *http.Request) (*http.Response, error) {
	started := time.Now()

	ctx := r.logger.With().
		Str("method", req.Method).
		Str("path", req.URL.Path).
		Str("request_id", req.Header.Get("X-Request-Id")).
		Logger().WithContext(req.Context())

	resp, err := r.next.RoundTrip(req.WithContext(ctx))
	if err != nil {
		zerolog.Ctx(ctx).Error().
			Err(err).
			Dur("duration", time.Since(started)).
			Msg("http call")

		return resp, err
	}

	event := zerolog.Ctx(ctx).Debug()
	if resp.StatusCode >= http.StatusInternalServerError {
		event = zerolog.Ctx(ctx).Warn()
	}
	event.
		Int("status", resp.StatusCode).
		Dur("duration", time.Since(started)).
		Msg("http call")

	return resp, nil
}
