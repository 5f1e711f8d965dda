package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestObserveHTTPRequestCountsServerErrors(t *testing.T) {
	before := testutil.ToFloat64(httpErrors.WithLabelValues("/api/test", http.MethodGet))

	ObserveHTTPRequest("/api/test", http.MethodGet, http.StatusOK, 10*time.Millisecond)
	ObserveHTTPRequest("/api/test", http.MethodGet, http.StatusInternalServerError, 20*time.Millisecond)

	if got := testutil.ToFloat64(httpRequests.WithLabelValues("/api/test", http.MethodGet, "500")); got < 1 {
		t.Fatalf("expected 500 request to be counted, got %v", got)
	}
	if got := testutil.ToFloat64(httpErrors.WithLabelValues("/api/test", http.MethodGet)); got != before+1 {
		t.Fatalf("expected exactly one new server error, got %v -> %v", before, got)
	}
}

func TestDomainCounters(t *testing.T) {
	RecordTokenFetchFailure("SOL", "balance")
	RecordTransaction("BTC", "sell")
	RecordPlan(2)

	if got := testutil.ToFloat64(tokenFetchFailures.WithLabelValues("SOL", "balance")); got < 1 {
		t.Fatalf("token failure not recorded: %v", got)
	}
	if got := testutil.ToFloat64(transactionsPrepared.WithLabelValues("BTC", "sell")); got < 1 {
		t.Fatalf("transaction not recorded: %v", got)
	}
}

func TestHandlerExposesCollectors(t *testing.T) {
	ObserveHTTPRequest("/api/portfolio", http.MethodGet, http.StatusOK, time.Millisecond)
	RecordPlan(0)

	server := httptest.NewServer(Handler())
	defer server.Close()

	resp, err := http.Get(server.URL)
	if err != nil {
		t.Fatalf("scrape metrics: %v", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	for _, name := range []string{
		"rebalancer_http_requests_total",
		"rebalancer_http_request_duration_seconds_bucket",
		"rebalancer_plans_built_total",
		"go_goroutines",
	} {
		if !strings.Contains(string(body), name) {
			t.Fatalf("metric %s missing from exposition", name)
		}
	}
}
