package http_server

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/jaennil/tileproxy/pkg/config"
	"github.com/jaennil/tileproxy/pkg/logger"
)

func TestNewServerPropagatesLogger(t *testing.T) {
	l := logger.NewNoOp()
	ctx := logger.WithLogger(context.Background(), l)

	var got logger.Logger
	h := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = logger.FromContext(r.Context())
	})

	srv := NewServer(ctx, config.Server{Port: "9999", ReadTimeout: time.Second}, h)
	if srv.Addr != ":9999" {
		t.Fatalf("addr = %q, want :9999", srv.Addr)
	}
	if srv.ReadTimeout != time.Second {
		t.Fatalf("read timeout = %s", srv.ReadTimeout)
	}

	srv.Handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	if got != l {
		t.Fatalf("expected application logger in request context")
	}
}
