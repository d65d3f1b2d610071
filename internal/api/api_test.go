package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/opensource-finance/kestrel/internal/bus"
	"github.com/opensource-finance/kestrel/internal/cache"
	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/gates"
	"github.com/opensource-finance/kestrel/internal/history"
	"github.com/opensource-finance/kestrel/internal/pipeline"
	"github.com/opensource-finance/kestrel/internal/repository"
	"github.com/opensource-finance/kestrel/internal/typology"
	"github.com/opensource-finance/kestrel/internal/worker"
)

type stubAdjudicator struct {
	verdict *domain.Verdict
}

func (a *stubAdjudicator) Adjudicate(ctx context.Context, input *domain.AdjudicationInput) (*domain.Verdict, error) {
	return a.verdict, nil
}

// newTestServer wires a server against a temp SQLite repository, in-memory
// cache, channel bus, and local gates with a stubbed adjudicator.
func newTestServer(t *testing.T) (*Server, *worker.Worker, domain.Repository) {
	t.Helper()

	tmpFile, err := os.CreateTemp("", "kestrel-api-*.db")
	if err != nil {
		t.Fatalf("failed to create temp file: %v", err)
	}
	tmpPath := tmpFile.Name()
	tmpFile.Close()
	t.Cleanup(func() { os.Remove(tmpPath) })

	repo, err := repository.New(domain.RepositoryConfig{Driver: "sqlite", SQLitePath: tmpPath})
	if err != nil {
		t.Fatalf("failed to create repository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })

	lru := cache.NewLRUCache(100)
	eventBus := bus.NewChannelBus(100)
	t.Cleanup(func() { eventBus.Close() })

	hist := history.NewService(repo, lru, time.Minute, nil)

	thresholds := domain.DefaultThresholds()
	pl := pipeline.New(
		gates.NewLocalStatisticalGate(thresholds.StatisticalGate),
		gates.NewLocalNarrativeGate(thresholds.NarrativeGate),
		&stubAdjudicator{verdict: &domain.Verdict{Decision: domain.DecisionReview, Confidence: 0.7}},
		domain.DefaultBudgets(),
		nil,
	)

	wrk := worker.NewWorker(eventBus, repo, hist, pl, nil)

	detector, err := typology.NewDetector()
	if err != nil {
		t.Fatalf("failed to create detector: %v", err)
	}

	cfg := domain.ServerConfig{
		Host:         "localhost",
		Port:         8080,
		ReadTimeout:  30,
		WriteTimeout: 30,
	}

	return NewServer(cfg, repo, lru, eventBus, wrk, detector, thresholds, "test-v1"), wrk, repo
}

func TestScreenEndpoint(t *testing.T) {
	server, _, _ := newTestServer(t)

	t.Run("SuccessfulScreening", func(t *testing.T) {
		reqBody := TransactionRequest{
			Sender:   PartyInfo{AccountID: "acc-001", BankID: "bank-001"},
			Receiver: PartyInfo{AccountID: "acc-002", BankID: "bank-002"},
			Amount: AmountInfo{
				Sent:         250,
				CurrencySent: "USD",
			},
			PaymentFormat: "ACH",
		}

		body, _ := json.Marshal(reqBody)
		req := httptest.NewRequest(http.MethodPost, "/screen", bytes.NewBuffer(body))
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("X-Tenant-ID", "tenant-001")

		rr := httptest.NewRecorder()
		server.Router().ServeHTTP(rr, req)

		if rr.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
		}

		var resp ScreenResponse
		if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
			t.Fatalf("failed to parse response: %v", err)
		}

		if resp.ScreeningID == "" {
			t.Error("expected screeningId in response")
		}
		if resp.TransactionID == "" {
			t.Error("expected transactionId in response")
		}
		// A modest first transaction for a fresh account clears the
		// statistical gate and never reaches the deeper layers.
		if resp.Decision != domain.DecisionApprove {
			t.Errorf("expected decision APPROVE, got %s", resp.Decision)
		}
		if len(resp.LayersInvoked) != 1 {
			t.Errorf("expected 1 layer invoked, got %d", len(resp.LayersInvoked))
		}
		if resp.Metadata.Version != "test-v1" {
			t.Errorf("expected version test-v1, got %s", resp.Metadata.Version)
		}
		if resp.Metadata.TraceID == "" {
			t.Error("expected traceId in metadata")
		}

		// The screening and transaction are retrievable afterward.
		getScreening := httptest.NewRequest(http.MethodGet, "/screenings/"+resp.ScreeningID, nil)
		getScreening.Header.Set("X-Tenant-ID", "tenant-001")
		rr = httptest.NewRecorder()
		server.Router().ServeHTTP(rr, getScreening)
		if rr.Code != http.StatusOK {
			t.Errorf("expected status 200 for screening retrieval, got %d", rr.Code)
		}

		getTx := httptest.NewRequest(http.MethodGet, "/transactions/"+resp.TransactionID, nil)
		getTx.Header.Set("X-Tenant-ID", "tenant-001")
		rr = httptest.NewRecorder()
		server.Router().ServeHTTP(rr, getTx)
		if rr.Code != http.StatusOK {
			t.Errorf("expected status 200 for transaction retrieval, got %d", rr.Code)
		}
	})

	t.Run("MissingTenantID", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/screen", bytes.NewBufferString("{}"))
		req.Header.Set("Content-Type", "application/json")

		rr := httptest.NewRecorder()
		server.Router().ServeHTTP(rr, req)

		if rr.Code != http.StatusBadRequest {
			t.Errorf("expected status 400, got %d", rr.Code)
		}
	})

	t.Run("InvalidJSON", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/screen", bytes.NewBufferString("not-json"))
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("X-Tenant-ID", "tenant-001")

		rr := httptest.NewRecorder()
		server.Router().ServeHTTP(rr, req)

		if rr.Code != http.StatusBadRequest {
			t.Errorf("expected status 400, got %d", rr.Code)
		}
	})

	t.Run("MissingAccounts", func(t *testing.T) {
		reqBody := TransactionRequest{
			Amount:        AmountInfo{Sent: 100, CurrencySent: "USD"},
			PaymentFormat: "Wire",
		}
		body, _ := json.Marshal(reqBody)
		req := httptest.NewRequest(http.MethodPost, "/screen", bytes.NewBuffer(body))
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("X-Tenant-ID", "tenant-001")

		rr := httptest.NewRecorder()
		server.Router().ServeHTTP(rr, req)

		if rr.Code != http.StatusBadRequest {
			t.Errorf("expected status 400, got %d", rr.Code)
		}
	})

	t.Run("InvalidAmount", func(t *testing.T) {
		reqBody := TransactionRequest{
			Sender:        PartyInfo{AccountID: "acc-001", BankID: "bank-001"},
			Receiver:      PartyInfo{AccountID: "acc-002", BankID: "bank-002"},
			Amount:        AmountInfo{Sent: -100, CurrencySent: "USD"},
			PaymentFormat: "Wire",
		}
		body, _ := json.Marshal(reqBody)
		req := httptest.NewRequest(http.MethodPost, "/screen", bytes.NewBuffer(body))
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("X-Tenant-ID", "tenant-001")

		rr := httptest.NewRecorder()
		server.Router().ServeHTTP(rr, req)

		if rr.Code != http.StatusBadRequest {
			t.Errorf("expected status 400, got %d", rr.Code)
		}
	})

	t.Run("MissingPaymentFormat", func(t *testing.T) {
		reqBody := TransactionRequest{
			Sender:   PartyInfo{AccountID: "acc-001", BankID: "bank-001"},
			Receiver: PartyInfo{AccountID: "acc-002", BankID: "bank-002"},
			Amount:   AmountInfo{Sent: 100, CurrencySent: "USD"},
		}
		body, _ := json.Marshal(reqBody)
		req := httptest.NewRequest(http.MethodPost, "/screen", bytes.NewBuffer(body))
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("X-Tenant-ID", "tenant-001")

		rr := httptest.NewRecorder()
		server.Router().ServeHTTP(rr, req)

		if rr.Code != http.StatusBadRequest {
			t.Errorf("expected status 400, got %d", rr.Code)
		}
	})

	t.Run("ResponseHeaders", func(t *testing.T) {
		reqBody := TransactionRequest{
			Sender:        PartyInfo{AccountID: "acc-001", BankID: "bank-001"},
			Receiver:      PartyInfo{AccountID: "acc-002", BankID: "bank-002"},
			Amount:        AmountInfo{Sent: 100, CurrencySent: "USD"},
			PaymentFormat: "ACH",
		}
		body, _ := json.Marshal(reqBody)
		req := httptest.NewRequest(http.MethodPost, "/screen", bytes.NewBuffer(body))
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("X-Tenant-ID", "tenant-001")

		rr := httptest.NewRecorder()
		server.Router().ServeHTTP(rr, req)

		if rr.Header().Get("X-Request-ID") == "" {
			t.Error("expected X-Request-ID header in response")
		}
		if rr.Header().Get("X-Trace-ID") == "" {
			t.Error("expected X-Trace-ID header in response")
		}
		if rr.Header().Get("Content-Type") != "application/json" {
			t.Error("expected Content-Type: application/json")
		}
	})
}

func TestIngestEndpoint(t *testing.T) {
	server, wrk, repo := newTestServer(t)

	if err := wrk.Start(); err != nil {
		t.Fatalf("failed to start worker: %v", err)
	}
	defer wrk.Stop()

	reqBody := TransactionRequest{
		Sender:        PartyInfo{AccountID: "acc-async-001", BankID: "bank-001"},
		Receiver:      PartyInfo{AccountID: "acc-async-002", BankID: "bank-002"},
		Amount:        AmountInfo{Sent: 300, CurrencySent: "USD"},
		PaymentFormat: "ACH",
	}

	body, _ := json.Marshal(reqBody)
	req := httptest.NewRequest(http.MethodPost, "/transactions", bytes.NewBuffer(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Tenant-ID", "tenant-async")

	rr := httptest.NewRecorder()
	server.Router().ServeHTTP(rr, req)

	if rr.Code != http.StatusAccepted {
		t.Fatalf("expected status 202, got %d: %s", rr.Code, rr.Body.String())
	}

	var resp map[string]string
	json.Unmarshal(rr.Body.Bytes(), &resp)
	if resp["transactionId"] == "" {
		t.Error("expected transactionId in response")
	}
	if resp["status"] != "queued" {
		t.Errorf("expected status 'queued', got '%s'", resp["status"])
	}

	// The worker picks the transaction up off the bus and persists a
	// screening result.
	deadline := time.After(2 * time.Second)
	for {
		screenings, err := repo.ListScreenings(context.Background(), "tenant-async", 10, 0)
		if err == nil && len(screenings) == 1 {
			if screenings[0].TransactionID != resp["transactionId"] {
				t.Errorf("expected screening for %s, got %s", resp["transactionId"], screenings[0].TransactionID)
			}
			return
		}
		select {
		case <-deadline:
			t.Fatal("timed out waiting for async screening")
		case <-time.After(20 * time.Millisecond):
		}
	}
}

func TestScreeningRetrieval(t *testing.T) {
	server, _, _ := newTestServer(t)

	t.Run("GetScreeningNotFound", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/screenings/no-such-id", nil)
		req.Header.Set("X-Tenant-ID", "tenant-001")

		rr := httptest.NewRecorder()
		server.Router().ServeHTTP(rr, req)

		if rr.Code != http.StatusNotFound {
			t.Errorf("expected status 404, got %d", rr.Code)
		}
	})

	t.Run("ListScreeningsEmpty", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/screenings", nil)
		req.Header.Set("X-Tenant-ID", "tenant-001")

		rr := httptest.NewRecorder()
		server.Router().ServeHTTP(rr, req)

		if rr.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d", rr.Code)
		}

		var resp struct {
			Count int `json:"count"`
		}
		json.Unmarshal(rr.Body.Bytes(), &resp)
		if resp.Count != 0 {
			t.Errorf("expected 0 screenings, got %d", resp.Count)
		}
	})

	t.Run("GetTransactionNotFound", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/transactions/no-such-id", nil)
		req.Header.Set("X-Tenant-ID", "tenant-001")

		rr := httptest.NewRecorder()
		server.Router().ServeHTTP(rr, req)

		if rr.Code != http.StatusNotFound {
			t.Errorf("expected status 404, got %d", rr.Code)
		}
	})
}

func TestConfigEndpoints(t *testing.T) {
	server, _, _ := newTestServer(t)

	t.Run("GetThresholds", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/thresholds", nil)
		req.Header.Set("X-Tenant-ID", "tenant-001")

		rr := httptest.NewRecorder()
		server.Router().ServeHTTP(rr, req)

		if rr.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d", rr.Code)
		}

		var resp domain.Thresholds
		if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
			t.Fatalf("failed to parse response: %v", err)
		}
		if resp.StatisticalGate != 3.0 {
			t.Errorf("expected statistical gate 3.0, got %f", resp.StatisticalGate)
		}
		if resp.NarrativeGate != 0.7 {
			t.Errorf("expected narrative gate 0.7, got %f", resp.NarrativeGate)
		}
	})

	t.Run("ListTypologies", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/typologies", nil)
		req.Header.Set("X-Tenant-ID", "tenant-001")

		rr := httptest.NewRecorder()
		server.Router().ServeHTTP(rr, req)

		if rr.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d", rr.Code)
		}

		var resp struct {
			Typologies []string `json:"typologies"`
			Count      int      `json:"count"`
		}
		json.Unmarshal(rr.Body.Bytes(), &resp)

		if resp.Count == 0 {
			t.Error("expected at least one typology")
		}
		found := false
		for _, name := range resp.Typologies {
			if name == "Structuring" {
				found = true
			}
		}
		if !found {
			t.Error("expected Structuring in typology list")
		}
	})
}

func TestMetricsEndpoint(t *testing.T) {
	server, _, _ := newTestServer(t)

	// Screen one labeled transaction so the confusion counts move.
	label := false
	reqBody := TransactionRequest{
		Sender:        PartyInfo{AccountID: "acc-m-001", BankID: "bank-001"},
		Receiver:      PartyInfo{AccountID: "acc-m-002", BankID: "bank-002"},
		Amount:        AmountInfo{Sent: 200, CurrencySent: "USD"},
		PaymentFormat: "ACH",
		IsLaundering:  &label,
	}
	body, _ := json.Marshal(reqBody)
	req := httptest.NewRequest(http.MethodPost, "/screen", bytes.NewBuffer(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Tenant-ID", "tenant-001")
	rr := httptest.NewRecorder()
	server.Router().ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}

	req = httptest.NewRequest(http.MethodGet, "/metrics", nil)
	req.Header.Set("X-Tenant-ID", "tenant-001")
	rr = httptest.NewRecorder()
	server.Router().ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}

	var resp struct {
		Counts   domain.EvaluationMetrics `json:"counts"`
		Accuracy float64                  `json:"accuracy"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}

	if resp.Counts.TrueNegatives != 1 {
		t.Errorf("expected 1 true negative, got %d", resp.Counts.TrueNegatives)
	}
	if resp.Counts.StatisticalOnly != 1 {
		t.Errorf("expected 1 statistical-only screening, got %d", resp.Counts.StatisticalOnly)
	}
	if resp.Accuracy != 1.0 {
		t.Errorf("expected accuracy 1.0, got %f", resp.Accuracy)
	}
}

func TestHealthEndpoints(t *testing.T) {
	server, _, _ := newTestServer(t)

	t.Run("HealthCheck", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/health", nil)

		rr := httptest.NewRecorder()
		server.Router().ServeHTTP(rr, req)

		if rr.Code != http.StatusOK {
			t.Errorf("expected status 200, got %d", rr.Code)
		}

		var resp map[string]string
		json.Unmarshal(rr.Body.Bytes(), &resp)

		if resp["status"] != "healthy" {
			t.Errorf("expected status 'healthy', got '%s'", resp["status"])
		}
		if resp["version"] != "test-v1" {
			t.Errorf("expected version 'test-v1', got '%s'", resp["version"])
		}
	})

	t.Run("ReadyCheck", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/ready", nil)

		rr := httptest.NewRecorder()
		server.Router().ServeHTTP(rr, req)

		if rr.Code != http.StatusOK {
			t.Errorf("expected status 200, got %d", rr.Code)
		}
	})
}

func TestMiddleware(t *testing.T) {
	t.Run("TenantMiddlewareExtractsID", func(t *testing.T) {
		var capturedTenantID string

		handler := TenantMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			capturedTenantID = GetTenantID(r.Context())
			w.WriteHeader(http.StatusOK)
		}))

		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("X-Tenant-ID", "my-tenant-123")

		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)

		if capturedTenantID != "my-tenant-123" {
			t.Errorf("expected tenant ID 'my-tenant-123', got '%s'", capturedTenantID)
		}
	})

	t.Run("TracingMiddlewareSetsRequestID", func(t *testing.T) {
		var capturedRequestID string

		handler := TracingMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if v, ok := r.Context().Value(RequestIDKey).(string); ok {
				capturedRequestID = v
			}
			w.WriteHeader(http.StatusOK)
		}))

		req := httptest.NewRequest(http.MethodGet, "/", nil)
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)

		if capturedRequestID == "" {
			t.Error("expected request ID to be set")
		}

		if rr.Header().Get("X-Request-ID") == "" {
			t.Error("expected X-Request-ID response header")
		}
	})

	t.Run("RecoverMiddlewareHandlesPanic", func(t *testing.T) {
		handler := RecoverMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			panic("test panic")
		}))

		req := httptest.NewRequest(http.MethodGet, "/", nil)
		rr := httptest.NewRecorder()

		handler.ServeHTTP(rr, req)

		if rr.Code != http.StatusInternalServerError {
			t.Errorf("expected status 500, got %d", rr.Code)
		}
	})
}
