package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/typology"
	"github.com/opensource-finance/kestrel/internal/worker"
)

// Handler holds dependencies for API handlers.
type Handler struct {
	repo       domain.Repository
	cache      domain.Cache
	bus        domain.EventBus
	worker     *worker.Worker
	detector   *typology.Detector
	thresholds domain.Thresholds
	version    string
}

// NewHandler creates a new API handler.
func NewHandler(repo domain.Repository, cache domain.Cache, bus domain.EventBus, wrk *worker.Worker, detector *typology.Detector, thresholds domain.Thresholds, version string) *Handler {
	return &Handler{
		repo:       repo,
		cache:      cache,
		bus:        bus,
		worker:     wrk,
		detector:   detector,
		thresholds: thresholds,
		version:    version,
	}
}

// TransactionRequest is the request body for POST /screen and
// POST /transactions.
type TransactionRequest struct {
	ID            string     `json:"id,omitempty"`
	Sender        PartyInfo  `json:"sender"`
	Receiver      PartyInfo  `json:"receiver"`
	Amount        AmountInfo `json:"amount"`
	PaymentFormat string     `json:"paymentFormat"`
	Timestamp     *time.Time `json:"timestamp,omitempty"`

	// IsLaundering carries the ground-truth label for labeled datasets.
	IsLaundering *bool `json:"isLaundering,omitempty"`
}

// PartyInfo identifies one side of the transaction.
type PartyInfo struct {
	AccountID string `json:"accountId"`
	BankID    string `json:"bankId"`
}

// AmountInfo represents the transaction amount.
type AmountInfo struct {
	Sent             float64 `json:"sent"`
	Received         float64 `json:"received"`
	CurrencySent     string  `json:"currencySent"`
	CurrencyReceived string  `json:"currencyReceived"`
}

// ScreenResponse is the response for POST /screen.
type ScreenResponse struct {
	ScreeningID   string          `json:"screeningId"`
	TransactionID string          `json:"transactionId"`
	Decision      domain.Decision `json:"decision"`
	Confidence    float64         `json:"confidence"`
	LayersInvoked []domain.Layer  `json:"layersInvoked"`
	Metadata      struct {
		TraceID string `json:"traceId"`
		TotalMs int64  `json:"totalMs"`
		Version string `json:"version"`
	} `json:"metadata"`
}

// toTransaction materializes the request into a domain transaction,
// filling defaults the ingestion contract allows callers to omit.
func (req *TransactionRequest) toTransaction(tenantID string) *domain.Transaction {
	ts := time.Now().UTC()
	if req.Timestamp != nil {
		ts = req.Timestamp.UTC()
	}

	amount := domain.Amount{
		Sent:             req.Amount.Sent,
		Received:         req.Amount.Received,
		CurrencySent:     req.Amount.CurrencySent,
		CurrencyReceived: req.Amount.CurrencyReceived,
	}
	if amount.Received == 0 {
		amount.Received = amount.Sent
	}
	if amount.CurrencyReceived == "" {
		amount.CurrencyReceived = amount.CurrencySent
	}

	return &domain.Transaction{
		ID:            req.ID,
		TenantID:      tenantID,
		Sender:        domain.Party{AccountID: req.Sender.AccountID, BankID: req.Sender.BankID},
		Receiver:      domain.Party{AccountID: req.Receiver.AccountID, BankID: req.Receiver.BankID},
		Amount:        amount,
		PaymentFormat: req.PaymentFormat,
		Timestamp:     ts,
		CreatedAt:     time.Now().UTC(),
		IsLaundering:  req.IsLaundering,
	}
}

// validate rejects requests the screening pipeline could not process.
func (req *TransactionRequest) validate() string {
	if req.Sender.AccountID == "" || req.Receiver.AccountID == "" {
		return "sender.accountId and receiver.accountId are required"
	}
	if req.Amount.Sent <= 0 {
		return "amount.sent must be positive"
	}
	if req.PaymentFormat == "" {
		return "paymentFormat is required"
	}
	return ""
}

// Screen handles POST /screen requests: the transaction is screened
// synchronously and the decision returned in the response.
func (h *Handler) Screen(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx := r.Context()
	tenantID := GetTenantID(ctx)
	traceID := GetTraceID(ctx)

	var req TransactionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}

	if msg := req.validate(); msg != "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": msg,
		})
		return
	}

	tx := req.toTransaction(tenantID)

	result, err := h.worker.Screen(ctx, tenantID, tx)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidInput) {
			writeJSON(w, http.StatusBadRequest, map[string]string{
				"error": err.Error(),
			})
			return
		}
		slog.Error("screening failed", "tx_id", tx.ID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "screening failed",
		})
		return
	}

	resp := ScreenResponse{
		ScreeningID:   result.ID,
		TransactionID: result.TransactionID,
		Decision:      result.FinalDecision,
		Confidence:    result.FinalConfidence,
		LayersInvoked: result.LayersInvoked,
	}
	resp.Metadata.TraceID = traceID
	resp.Metadata.TotalMs = time.Since(start).Milliseconds()
	resp.Metadata.Version = h.version

	writeJSON(w, http.StatusOK, resp)
}

// IngestTransaction handles POST /transactions: the transaction is queued on
// the event bus and screened asynchronously by the worker.
func (h *Handler) IngestTransaction(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)

	var req TransactionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}

	if msg := req.validate(); msg != "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": msg,
		})
		return
	}

	tx := req.toTransaction(tenantID)
	if tx.ID == "" {
		tx.ID = uuid.New().String()
	}

	payload, err := json.Marshal(tx)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to encode transaction",
		})
		return
	}

	if err := h.bus.Publish(ctx, tenantID, domain.TopicTransactionIngested, payload); err != nil {
		slog.Error("failed to queue transaction", "tx_id", tx.ID, "error", err)
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "failed to queue transaction",
		})
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]string{
		"transactionId": tx.ID,
		"status":        "queued",
	})
}

// Health returns server health status.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	status := "healthy"

	if h.repo != nil {
		if err := h.repo.Ping(r.Context()); err != nil {
			status = "degraded"
		}
	}

	if h.cache != nil {
		if err := h.cache.Ping(r.Context()); err != nil {
			status = "degraded"
		}
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status":  status,
		"version": h.version,
	})
}

// Ready returns whether the server is ready to accept traffic.
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"ready": "true",
	})
}

// GetScreening retrieves a screening result by ID.
func (h *Handler) GetScreening(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)
	screeningID := chi.URLParam(r, "id")

	if screeningID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "screening id is required",
		})
		return
	}

	if h.repo == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "repository not available",
		})
		return
	}

	result, err := h.repo.GetScreening(ctx, tenantID, screeningID)
	if err != nil {
		slog.Error("failed to get screening", "id", screeningID, "error", err)
		writeJSON(w, http.StatusNotFound, map[string]string{
			"error": "screening not found",
		})
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// ListScreenings returns recent screenings for the tenant, newest first.
func (h *Handler) ListScreenings(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)

	if h.repo == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "repository not available",
		})
		return
	}

	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}
	offset := 0
	if v := r.URL.Query().Get("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			offset = n
		}
	}

	screenings, err := h.repo.ListScreenings(ctx, tenantID, limit, offset)
	if err != nil {
		slog.Error("failed to list screenings", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to list screenings",
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"screenings": screenings,
		"count":      len(screenings),
	})
}

// GetTransaction retrieves a transaction by ID.
func (h *Handler) GetTransaction(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)
	txID := chi.URLParam(r, "id")

	if txID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "transaction id is required",
		})
		return
	}

	if h.repo == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "repository not available",
		})
		return
	}

	tx, err := h.repo.GetTransaction(ctx, tenantID, txID)
	if err != nil {
		slog.Error("failed to get transaction", "id", txID, "error", err)
		writeJSON(w, http.StatusNotFound, map[string]string{
			"error": "transaction not found",
		})
		return
	}

	writeJSON(w, http.StatusOK, tx)
}

// GetThresholds returns the escalation thresholds the pipeline runs with.
func (h *Handler) GetThresholds(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.thresholds)
}

// ListTypologies returns the typologies the detector screens for.
func (h *Handler) ListTypologies(w http.ResponseWriter, r *http.Request) {
	if h.detector == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "typology detector not available",
		})
		return
	}

	names := h.detector.Names()

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"typologies": names,
		"count":      len(names),
	})
}

// GetMetrics returns screening quality metrics accumulated from labeled
// transactions.
func (h *Handler) GetMetrics(w http.ResponseWriter, r *http.Request) {
	if h.worker == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "worker not available",
		})
		return
	}

	m := h.worker.Metrics()

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"counts":    m,
		"precision": m.Precision(),
		"recall":    m.Recall(),
		"f1":        m.F1(),
		"accuracy":  m.Accuracy(),
	})
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
