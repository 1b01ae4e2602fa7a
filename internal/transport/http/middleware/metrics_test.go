package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestHTTPMetricsCountsRequestsAndErrorCodes(t *testing.T) {
	gin.SetMode(gin.TestMode)

	metrics, err := NewHTTPMetrics(HTTPMetricsOptions{Registerer: prometheus.NewRegistry()})
	if err != nil {
		t.Fatalf("NewHTTPMetrics: %v", err)
	}

	router := gin.New()
	router.Use(metrics.Handler())
	router.POST("/api/v1/recovery-key/redeem", func(c *gin.Context) {
		SetErrorCode(c, "ALREADY_USED")
		c.Status(http.StatusUnauthorized)
	})
	router.GET("/healthz", func(c *gin.Context) { c.Status(http.StatusOK) })

	for _, req := range []*http.Request{
		httptest.NewRequest(http.MethodPost, "/api/v1/recovery-key/redeem", nil),
		httptest.NewRequest(http.MethodPost, "/api/v1/recovery-key/redeem", nil),
		httptest.NewRequest(http.MethodGet, "/healthz", nil),
		httptest.NewRequest(http.MethodPost, "/api/v1/unknown/abc", nil),
	} {
		router.ServeHTTP(httptest.NewRecorder(), req)
	}

	if got := testutil.ToFloat64(metrics.Requests.WithLabelValues(http.MethodPost, "/api/v1/recovery-key/redeem", "401")); got != 2 {
		t.Fatalf("expected 2 redeem requests, got %f", got)
	}
	if got := testutil.ToFloat64(metrics.Requests.WithLabelValues(http.MethodPost, "unmatched", "404")); got != 1 {
		t.Fatalf("expected unmatched request counted once, got %f", got)
	}
	if got := testutil.ToFloat64(metrics.Errors.WithLabelValues("/api/v1/recovery-key/redeem", "ALREADY_USED")); got != 2 {
		t.Fatalf("expected 2 ALREADY_USED errors, got %f", got)
	}
	if got := testutil.CollectAndCount(metrics.Errors); got != 1 {
		t.Fatalf("successful requests must not add error series, got %d", got)
	}
	if got := testutil.ToFloat64(metrics.InFlight); got != 0 {
		t.Fatalf("expected in-flight gauge back at 0, got %f", got)
	}
}

func TestNewHTTPMetricsReusesRegisteredCollectors(t *testing.T) {
	registry := prometheus.NewRegistry()

	first, err := NewHTTPMetrics(HTTPMetricsOptions{Registerer: registry})
	if err != nil {
		t.Fatalf("first registration: %v", err)
	}
	second, err := NewHTTPMetrics(HTTPMetricsOptions{Registerer: registry})
	if err != nil {
		t.Fatalf("second registration: %v", err)
	}
	if first.Requests != second.Requests || first.Errors != second.Errors {
		t.Fatal("expected collectors to be shared across registrations")
	}
}

func TestHTTPMetricsHandlerNoopWhenNil(t *testing.T) {
	gin.SetMode(gin.TestMode)

	router := gin.New()
	router.Use((*HTTPMetrics)(nil).Handler())
	router.GET("/ping", func(c *gin.Context) { c.Status(http.StatusOK) })

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/ping", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
}
