package middleware

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

type logEntry struct {
	level string
	msg   string
	args  map[string]any
}

// Logger which keeps entries in memory
type memLogger struct {
	entries []logEntry
}

func (l *memLogger) add(level, msg string, args []any) {
	fields := make(map[string]any, len(args)/2)
	for i := 0; i+1 < len(args); i += 2 {
		fields[args[i].(string)] = args[i+1]
	}
	l.entries = append(l.entries, logEntry{level: level, msg: msg, args: fields})
}

func (l *memLogger) Info(msg string, args ...any)  { l.add("info", msg, args) }
func (l *memLogger) Error(msg string, args ...any) { l.add("error", msg, args) }

func TestLoggerMiddleware(t *testing.T) {
	l := &memLogger{}

	h := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
		_, err := w.Write([]byte("hi"))
		require.NoError(t, err, "should write response")
	})

	srv := httptest.NewServer(LoggerMiddleware(l)(h))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/orders?status=pending")
	require.NoError(t, err, "should make request to test server")
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err, "should read response body")
	defer resp.Body.Close() // nolint:errcheck

	require.Equalf(t, http.StatusTeapot, resp.StatusCode, "should return status Teapot. Resp: %s", string(body))
	require.Equal(t, "hi", string(body))

	require.Len(t, l.entries, 1, "logger should be called once")
	entry := l.entries[0]
	require.Equal(t, "info", entry.level)
	require.Equal(t, "HTTP request served", entry.msg)
	require.Equal(t, "GET", entry.args["method"])
	require.Equal(t, "/api/orders?status=pending", entry.args["uri"])
	require.Equal(t, http.StatusTeapot, entry.args["status"])
	require.Equal(t, 2, entry.args["size"], "size should be 2 (length of 'hi')")
	require.NotEmpty(t, entry.args["duration"])

	requestID := resp.Header.Get(RequestIDHeader)
	require.NotEmpty(t, requestID, "request id should be generated")
	require.Equal(t, requestID, entry.args["request_id"])
}

func TestLoggerMiddleware_RequestID(t *testing.T) {
	l := &memLogger{}
	h := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {})

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set(RequestIDHeader, "req-42")
	LoggerMiddleware(l)(h).ServeHTTP(rec, req)

	require.Equal(t, "req-42", rec.Header().Get(RequestIDHeader))
	require.Equal(t, "req-42", l.entries[0].args["request_id"])
	require.Equal(t, http.StatusOK, l.entries[0].args["status"], "no explicit status means 200")
}

func TestLoggerMiddleware_ServerError(t *testing.T) {
	l := &memLogger{}
	h := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.WriteHeader(http.StatusOK) // ignored, the status is sent already
	})

	rec := httptest.NewRecorder()
	LoggerMiddleware(l)(h).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/orders", nil))

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	require.Len(t, l.entries, 1)
	require.Equal(t, "error", l.entries[0].level)
	require.Equal(t, http.StatusInternalServerError, l.entries[0].args["status"])
}

func TestLoggerMiddleware_Flush(t *testing.T) {
	h := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f, ok := w.(http.Flusher)
		require.True(t, ok, "logging writer should keep streaming available")
		_, _ = w.Write([]byte("data"))
		f.Flush()
	})

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/events", nil)
	LoggerMiddleware(&memLogger{})(h).ServeHTTP(rec, req)

	require.True(t, rec.Flushed, "should flush underlying writer")
	require.Equal(t, "data", rec.Body.String())
}
