package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/jaennil/tileproxy/pkg/logger"
)

type recordingLogger struct {
	fields []any
	lines  *[]string
}

func (r recordingLogger) Debug(msg string, _ ...any) { *r.lines = append(*r.lines, msg) }
func (r recordingLogger) Info(msg string, _ ...any)  { *r.lines = append(*r.lines, msg) }
func (r recordingLogger) Warn(msg string, _ ...any)  { *r.lines = append(*r.lines, msg) }
func (r recordingLogger) Error(msg string, _ ...any) { *r.lines = append(*r.lines, msg) }
func (r recordingLogger) Fatal(msg string, _ ...any) { *r.lines = append(*r.lines, msg) }

func (r recordingLogger) With(keysAndValues ...any) logger.Logger {
	return recordingLogger{fields: append(append([]any{}, r.fields...), keysAndValues...), lines: r.lines}
}

func TestGinZapLogger(t *testing.T) {
	gin.SetMode(gin.TestMode)

	var lines []string
	root := recordingLogger{lines: &lines}

	var seen recordingLogger
	r := gin.New()
	r.Use(ClientIdentity("anon"), GinZapLogger(root))
	r.GET("/", func(c *gin.Context) {
		seen = Logger(c).(recordingLogger)
		c.Status(http.StatusNoContent)
	})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(RequestIDHeader, "req-1")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if got := w.Header().Get(RequestIDHeader); got != "req-1" {
		t.Errorf("request id header = %q", got)
	}
	if len(seen.fields) != 4 || seen.fields[0] != "request_id" || seen.fields[1] != "req-1" || seen.fields[2] != "client" {
		t.Errorf("request logger fields = %v", seen.fields)
	}
	if len(lines) != 1 || lines[0] != "request" {
		t.Errorf("logged = %v", lines)
	}

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	if w.Header().Get(RequestIDHeader) == "" {
		t.Error("no request id generated")
	}
}
