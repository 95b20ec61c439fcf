package history

import (
	"log/slog"
	"net/http"
	"time"
)

// loggingTransport logs each outgoing request with method, path, status code
// and duration.
type loggingTransport struct {
	next   http.RoundTripper
	logger *slog.Logger
}

func (t *loggingTransport) RoundTrip(r *http.Request) (*http.Response, error) {
	start := time.Now()
	resp, err := t.next.RoundTrip(r)
	duration := time.Since(start)

	attrs := []slog.Attr{
		slog.String("method", r.Method),
		slog.String("path", r.URL.Path),
		slog.Duration("duration", duration),
	}
	if err != nil {
		attrs = append(attrs, slog.String("error", err.Error()))
		t.logger.LogAttrs(r.Context(), slog.LevelError, "request", attrs...)
		return nil, err
	}
	attrs = append(attrs, slog.Int("status", resp.StatusCode))

	switch {
	case resp.StatusCode >= 500:
		t.logger.LogAttrs(r.Context(), slog.LevelError, "request", attrs...)
	case resp.StatusCode >= 400:
		t.logger.LogAttrs(r.Context(), slog.LevelWarn, "request", attrs...)
	default:
		t.logger.LogAttrs(r.Context(), slog.LevelDebug, "request", attrs...)
	}
	return resp, nil
}
