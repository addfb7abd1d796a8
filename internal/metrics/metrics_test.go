package metrics

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestRecorderHandlerExposesIncrementedCounter(t *testing.T) {
	r := NewRecorder()
	r.IncRequest("claude", "can_use_tool")
	r.IncRequest("claude", "can_use_tool")
	r.IncPolicyDenial("codex", "rate_limited")
	r.IncUnsupportedSubtype("gemini", "mcp_list_tools")
	r.IncReconnectAttempt("claude")
	r.ObserveControlLatency("claude", "can_use_tool", 42*time.Millisecond)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	r.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	body := rec.Body.String()
	if !strings.Contains(body, `gateway_requests_total{provider="claude",subtype="can_use_tool"} 2`) {
		t.Fatalf("expected request counter at 2, body:\n%s", body)
	}
	if !strings.Contains(body, "gateway_policy_denials_total") {
		t.Fatalf("expected policy denial counter present, body:\n%s", body)
	}
}

func TestRecorderGatherReflectsCounters(t *testing.T) {
	r := NewRecorder()
	r.IncRequest("mock", "keep_alive")

	families, err := r.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}

	var found bool
	for _, fam := range families {
		if fam.GetName() != "gateway_requests_total" {
			continue
		}
		for _, m := range fam.GetMetric() {
			if m.GetCounter().GetValue() == 1 {
				found = true
			}
		}
	}
	if !found {
		t.Fatal("expected gateway_requests_total to report a value of 1 after one IncRequest")
	}
}

func TestPusherNoopsWithoutEndpoint(t *testing.T) {
	r := NewRecorder()
	p := NewPusher(r, "", time.Second)

	done := make(chan struct{})
	go func() {
		p.Run(t.Context())
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run should return immediately when Endpoint is empty")
	}
}

func TestPusherPostsFlattenedPoints(t *testing.T) {
	r := NewRecorder()
	r.IncRequest("claude", "initialize")

	received := make(chan otlpPush, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		var push otlpPush
		if err := json.NewDecoder(req.Body).Decode(&push); err != nil {
			t.Errorf("decode push body: %v", err)
		}
		received <- push
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	p := NewPusher(r, srv.URL, time.Hour)
	p.push(t.Context())

	select {
	case push := <-received:
		var sawRequests bool
		for _, point := range push.Metrics {
			if point.Name == "gateway_requests_total" && point.Value == 1 {
				sawRequests = true
			}
		}
		if !sawRequests {
			t.Fatalf("expected a gateway_requests_total point with value 1, got %+v", push.Metrics)
		}
	case <-time.After(time.Second):
		t.Fatal("collector never received a push")
	}
}
