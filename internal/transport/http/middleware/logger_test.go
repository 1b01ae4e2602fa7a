package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestLoggerRecordsRoutePattern(t *testing.T) {
	gin.SetMode(gin.TestMode)
	core, logs := observer.New(zapcore.DebugLevel)

	router := gin.New()
	router.Use(EnrichContext(), RequestID(), Logger(zap.New(core)))
	router.GET("/api/v1/users/:id", func(c *gin.Context) { c.String(http.StatusOK, "ok") })
	router.GET("/healthz", func(c *gin.Context) { c.Status(http.StatusOK) })
	router.GET("/boom", func(c *gin.Context) { c.Status(http.StatusInternalServerError) })

	for _, path := range []string{"/api/v1/users/7f3c", "/healthz", "/boom"} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		req.RemoteAddr = "203.0.113.45:5000"
		router.ServeHTTP(httptest.NewRecorder(), req)
	}

	entries := logs.All()
	if len(entries) != 3 {
		t.Fatalf("expected 3 access entries, got %d", len(entries))
	}

	first := entries[0].ContextMap()
	if first["route"] != "/api/v1/users/:id" {
		t.Fatalf("expected route pattern, got %v", first["route"])
	}
	if first["client_ip"] == "203.0.113.45" {
		t.Fatal("client ip must be masked")
	}
	if first["request_id"] == nil || first["trace_id"] == "" {
		t.Fatalf("expected correlation ids, got %v", first)
	}
	if entries[0].Level != zapcore.InfoLevel {
		t.Fatalf("expected info, got %s", entries[0].Level)
	}
	if entries[1].Level != zapcore.DebugLevel {
		t.Fatalf("expected probe at debug, got %s", entries[1].Level)
	}
	if entries[2].Level != zapcore.ErrorLevel {
		t.Fatalf("expected 5xx at error, got %s", entries[2].Level)
	}
}

func TestLoggerSkipsDisabledLevels(t *testing.T) {
	gin.SetMode(gin.TestMode)
	core, logs := observer.New(zapcore.InfoLevel)

	router := gin.New()
	router.Use(Logger(zap.New(core)))
	router.GET("/metrics", func(c *gin.Context) { c.Status(http.StatusOK) })
	router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if logs.Len() != 0 {
		t.Fatalf("expected probe to be dropped at info level, got %d entries", logs.Len())
	}
}
