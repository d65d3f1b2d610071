// Benchmark tool for testing Kestrel against labeled AML transaction data.
//
// Usage:
//   go run cmd/benchmark/main.go -csv /path/to/transactions.csv -url http://localhost:8080
//
// This tool:
//   1. Reads IBM AML-style transaction data (with laundering labels)
//   2. Sends each transaction to Kestrel for screening
//   3. Compares Kestrel's decision (BLOCK/REVIEW vs APPROVE) with the labels
//   4. Calculates precision, recall, F1-score, confusion matrix, and the
//      per-layer escalation profile that drives screening cost
package main

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// LabeledTransaction represents a row from an IBM AML-style dataset.
type LabeledTransaction struct {
	Timestamp        string
	SenderBank       string
	SenderAccount    string
	ReceiverBank     string
	ReceiverAccount  string
	AmountReceived   float64
	CurrencyReceived string
	AmountSent       float64
	CurrencySent     string
	PaymentFormat    string
	IsLaundering     bool
}

// ScreenRequest is the Kestrel API request format.
type ScreenRequest struct {
	Sender        Party      `json:"sender"`
	Receiver      Party      `json:"receiver"`
	Amount        Amount     `json:"amount"`
	PaymentFormat string     `json:"paymentFormat"`
	Timestamp     *time.Time `json:"timestamp,omitempty"`
	IsLaundering  *bool      `json:"isLaundering,omitempty"`
}

type Party struct {
	AccountID string `json:"accountId"`
	BankID    string `json:"bankId"`
}

type Amount struct {
	Sent             float64 `json:"sent"`
	Received         float64 `json:"received"`
	CurrencySent     string  `json:"currencySent"`
	CurrencyReceived string  `json:"currencyReceived"`
}

// ScreenResponse is the Kestrel API response format.
type ScreenResponse struct {
	ScreeningID   string   `json:"screeningId"`
	TransactionID string   `json:"transactionId"`
	Decision      string   `json:"decision"` // APPROVE, REVIEW, or BLOCK
	Confidence    float64  `json:"confidence"`
	LayersInvoked []string `json:"layersInvoked"`
}

// Metrics tracks benchmark results.
type Metrics struct {
	TruePositives  int64 // Laundering flagged (BLOCK/REVIEW)
	FalsePositives int64 // Clean flagged
	TrueNegatives  int64 // Clean approved
	FalseNegatives int64 // Laundering approved (missed!)

	TotalProcessed  int64
	TotalLaundering int64
	TotalClean      int64
	TotalErrors     int64

	StatisticalOnly int64 // Approved at layer 1
	NarrativeRuns   int64 // Reached layer 2
	ExpertRuns      int64 // Reached layer 3

	ProcessingTimeMs int64
}

func main() {
	// Parse flags
	csvPath := flag.String("csv", "", "Path to labeled AML CSV file")
	baseURL := flag.String("url", "http://localhost:8080", "Kestrel base URL")
	tenantID := flag.String("tenant", "benchmark-test", "Tenant ID for requests")
	limit := flag.Int("limit", 10000, "Maximum transactions to process (0 = all)")
	workers := flag.Int("workers", 10, "Number of concurrent workers")
	launderingOnly := flag.Bool("laundering-only", false, "Only test laundering transactions")
	sampleRate := flag.Float64("sample", 1.0, "Sample rate for clean transactions (0.0-1.0)")
	verbose := flag.Bool("verbose", false, "Print each transaction result")
	flag.Parse()

	if *csvPath == "" {
		fmt.Println("Usage: benchmark -csv /path/to/transactions.csv [-url http://localhost:8080]")
		fmt.Println("\nFlags:")
		flag.PrintDefaults()
		os.Exit(1)
	}

	fmt.Println("===================================================================")
	fmt.Println("          KESTREL BENCHMARK - Labeled AML Screening")
	fmt.Println("===================================================================")
	fmt.Printf("\nCSV File:    %s\n", *csvPath)
	fmt.Printf("Kestrel URL: %s\n", *baseURL)
	fmt.Printf("Tenant ID:   %s\n", *tenantID)
	fmt.Printf("Workers:     %d\n", *workers)
	fmt.Printf("Limit:       %d\n", *limit)
	fmt.Printf("Sample Rate: %.2f\n", *sampleRate)
	fmt.Println()

	// Check Kestrel is running
	if err := checkHealth(*baseURL); err != nil {
		fmt.Printf("ERROR: Kestrel not reachable at %s: %v\n", *baseURL, err)
		fmt.Println("\nMake sure Kestrel is running:")
		fmt.Println("  go run cmd/kestrel/main.go")
		os.Exit(1)
	}
	fmt.Println("Kestrel is healthy")

	// Read labeled data
	fmt.Printf("\nReading transactions from %s...\n", *csvPath)
	transactions, err := readLabeledCSV(*csvPath, *limit, *launderingOnly, *sampleRate)
	if err != nil {
		fmt.Printf("ERROR: Failed to read CSV: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Loaded %d transactions\n", len(transactions))

	launderingCount := 0
	for _, tx := range transactions {
		if tx.IsLaundering {
			launderingCount++
		}
	}
	fmt.Printf("  - Laundering: %d (%.2f%%)\n", launderingCount, 100*float64(launderingCount)/float64(len(transactions)))
	fmt.Printf("  - Clean:      %d (%.2f%%)\n", len(transactions)-launderingCount, 100*float64(len(transactions)-launderingCount)/float64(len(transactions)))

	// Run benchmark
	fmt.Printf("\nRunning benchmark with %d workers...\n", *workers)
	startTime := time.Now()
	metrics := runBenchmark(transactions, *baseURL, *tenantID, *workers, *verbose)
	duration := time.Since(startTime)

	printResults(metrics, duration)
}

func checkHealth(baseURL string) error {
	resp, err := http.Get(baseURL + "/health")
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unhealthy: status %d", resp.StatusCode)
	}
	return nil
}

func readLabeledCSV(path string, limit int, launderingOnly bool, sampleRate float64) ([]LabeledTransaction, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	reader := csv.NewReader(file)

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}

	// Column names per the IBM AML dataset: "From Bank", "Account",
	// "To Bank", "Account.1", "Amount Received", "Receiving Currency",
	// "Amount Paid", "Payment Currency", "Payment Format", "Is Laundering".
	colIndex := make(map[string]int)
	for i, col := range header {
		colIndex[strings.ToLower(strings.TrimSpace(col))] = i
	}

	col := func(record []string, name string) string {
		if i, ok := colIndex[name]; ok && i < len(record) {
			return strings.TrimSpace(record[i])
		}
		return ""
	}

	var transactions []LabeledTransaction
	sampleCounter := 0

	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			continue // Skip malformed rows
		}

		isLaundering := col(record, "is laundering") == "1"

		if launderingOnly && !isLaundering {
			continue
		}

		// Sample clean transactions
		if !isLaundering && sampleRate < 1.0 {
			sampleCounter++
			if float64(sampleCounter%100)/100.0 >= sampleRate {
				continue
			}
		}

		amountReceived, _ := strconv.ParseFloat(col(record, "amount received"), 64)
		amountSent, _ := strconv.ParseFloat(col(record, "amount paid"), 64)
		if amountSent == 0 {
			amountSent = amountReceived
		}

		tx := LabeledTransaction{
			Timestamp:        col(record, "timestamp"),
			SenderBank:       col(record, "from bank"),
			SenderAccount:    col(record, "account"),
			ReceiverBank:     col(record, "to bank"),
			ReceiverAccount:  col(record, "account.1"),
			AmountReceived:   amountReceived,
			CurrencyReceived: col(record, "receiving currency"),
			AmountSent:       amountSent,
			CurrencySent:     col(record, "payment currency"),
			PaymentFormat:    col(record, "payment format"),
			IsLaundering:     isLaundering,
		}

		transactions = append(transactions, tx)

		if limit > 0 && len(transactions) >= limit {
			break
		}
	}

	return transactions, nil
}

func runBenchmark(transactions []LabeledTransaction, baseURL, tenantID string, numWorkers int, verbose bool) *Metrics {
	metrics := &Metrics{}

	work := make(chan LabeledTransaction, 100)
	var wg sync.WaitGroup

	for i := 0; i < numWorkers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			client := &http.Client{Timeout: 30 * time.Second}

			for tx := range work {
				start := time.Now()
				result, err := screenTransaction(client, baseURL, tenantID, tx)
				elapsed := time.Since(start).Milliseconds()

				atomic.AddInt64(&metrics.ProcessingTimeMs, elapsed)
				atomic.AddInt64(&metrics.TotalProcessed, 1)

				if err != nil {
					atomic.AddInt64(&metrics.TotalErrors, 1)
					if verbose {
						fmt.Printf("ERROR: %s -> %v\n", tx.SenderAccount, err)
					}
					continue
				}

				if tx.IsLaundering {
					atomic.AddInt64(&metrics.TotalLaundering, 1)
				} else {
					atomic.AddInt64(&metrics.TotalClean, 1)
				}

				switch len(result.LayersInvoked) {
				case 1:
					atomic.AddInt64(&metrics.StatisticalOnly, 1)
				case 2:
					atomic.AddInt64(&metrics.NarrativeRuns, 1)
				default:
					atomic.AddInt64(&metrics.NarrativeRuns, 1)
					atomic.AddInt64(&metrics.ExpertRuns, 1)
				}

				predicted := result.Decision == "BLOCK" || result.Decision == "REVIEW"
				actual := tx.IsLaundering

				if predicted && actual {
					atomic.AddInt64(&metrics.TruePositives, 1)
				} else if predicted && !actual {
					atomic.AddInt64(&metrics.FalsePositives, 1)
				} else if !predicted && !actual {
					atomic.AddInt64(&metrics.TrueNegatives, 1)
				} else { // !predicted && actual
					atomic.AddInt64(&metrics.FalseNegatives, 1)
				}

				if verbose {
					status := "OK "
					if (predicted && !actual) || (!predicted && actual) {
						status = "MISS"
					}
					account := tx.SenderAccount
					if len(account) > 12 {
						account = account[:12]
					}
					fmt.Printf("%s %-12s | Format: %-12s | Amount: $%12.2f | Laundering: %-5v | Kestrel: %-7s (%.2f) | Layers: %d\n",
						status,
						account,
						tx.PaymentFormat,
						tx.AmountSent,
						tx.IsLaundering,
						result.Decision,
						result.Confidence,
						len(result.LayersInvoked),
					)
				}
			}
		}()
	}

	for _, tx := range transactions {
		work <- tx
	}
	close(work)

	wg.Wait()

	return metrics
}

func screenTransaction(client *http.Client, baseURL, tenantID string, tx LabeledTransaction) (*ScreenResponse, error) {
	label := tx.IsLaundering
	req := ScreenRequest{
		Sender: Party{
			AccountID: tx.SenderAccount,
			BankID:    tx.SenderBank,
		},
		Receiver: Party{
			AccountID: tx.ReceiverAccount,
			BankID:    tx.ReceiverBank,
		},
		Amount: Amount{
			Sent:             tx.AmountSent,
			Received:         tx.AmountReceived,
			CurrencySent:     tx.CurrencySent,
			CurrencyReceived: tx.CurrencyReceived,
		},
		PaymentFormat: tx.PaymentFormat,
		IsLaundering:  &label,
	}
	if ts, err := time.Parse("2006/01/02 15:04", tx.Timestamp); err == nil {
		req.Timestamp = &ts
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequest(http.MethodPost, baseURL+"/screen", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-Tenant-ID", tenantID)

	resp, err := client.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("status %d", resp.StatusCode)
	}

	var result ScreenResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, err
	}

	return &result, nil
}

func printResults(m *Metrics, duration time.Duration) {
	fmt.Println("\n===================================================================")
	fmt.Println("                      BENCHMARK RESULTS")
	fmt.Println("===================================================================")

	fmt.Printf("\nDATASET STATISTICS\n")
	fmt.Printf("   Total Processed:  %d\n", m.TotalProcessed)
	fmt.Printf("   Total Laundering: %d\n", m.TotalLaundering)
	fmt.Printf("   Total Clean:      %d\n", m.TotalClean)
	fmt.Printf("   Errors:           %d\n", m.TotalErrors)

	fmt.Printf("\nCONFUSION MATRIX\n")
	fmt.Println("                          Predicted")
	fmt.Println("                    Flagged     Approved")
	fmt.Println("              +----------+----------+")
	fmt.Printf("   Actual  L  | %8d | %8d |  (TP, FN)\n", m.TruePositives, m.FalseNegatives)
	fmt.Println("              +----------+----------+")
	fmt.Printf("           C  | %8d | %8d |  (FP, TN)\n", m.FalsePositives, m.TrueNegatives)
	fmt.Println("              +----------+----------+")

	precision := float64(0)
	if m.TruePositives+m.FalsePositives > 0 {
		precision = float64(m.TruePositives) / float64(m.TruePositives+m.FalsePositives)
	}

	recall := float64(0)
	if m.TruePositives+m.FalseNegatives > 0 {
		recall = float64(m.TruePositives) / float64(m.TruePositives+m.FalseNegatives)
	}

	f1 := float64(0)
	if precision+recall > 0 {
		f1 = 2 * (precision * recall) / (precision + recall)
	}

	accuracy := float64(0)
	total := m.TruePositives + m.TrueNegatives + m.FalsePositives + m.FalseNegatives
	if total > 0 {
		accuracy = float64(m.TruePositives+m.TrueNegatives) / float64(total)
	}

	fmt.Printf("\nDETECTION METRICS\n")
	fmt.Printf("   Precision:  %.4f  (of flagged, how many were actual laundering)\n", precision)
	fmt.Printf("   Recall:     %.4f  (of laundering, how many did we catch)\n", recall)
	fmt.Printf("   F1-Score:   %.4f  (harmonic mean of precision & recall)\n", f1)
	fmt.Printf("   Accuracy:   %.4f  (overall correct predictions)\n", accuracy)

	fmt.Printf("\nLAYER COST PROFILE\n")
	if m.TotalProcessed > 0 {
		fmt.Printf("   Approved at layer 1:  %d (%.2f%%)\n", m.StatisticalOnly, 100*float64(m.StatisticalOnly)/float64(m.TotalProcessed))
		fmt.Printf("   Reached layer 2:      %d (%.2f%%)\n", m.NarrativeRuns, 100*float64(m.NarrativeRuns)/float64(m.TotalProcessed))
		fmt.Printf("   Reached layer 3:      %d (%.2f%%)\n", m.ExpertRuns, 100*float64(m.ExpertRuns)/float64(m.TotalProcessed))
	}

	fmt.Printf("\nDETECTION ANALYSIS\n")
	if m.TotalLaundering > 0 {
		detectionRate := float64(m.TruePositives) / float64(m.TotalLaundering) * 100
		missRate := float64(m.FalseNegatives) / float64(m.TotalLaundering) * 100
		fmt.Printf("   Laundering Caught: %d / %d (%.2f%%)\n", m.TruePositives, m.TotalLaundering, detectionRate)
		fmt.Printf("   Laundering Missed: %d / %d (%.2f%%)\n", m.FalseNegatives, m.TotalLaundering, missRate)
	}
	if m.TotalClean > 0 {
		falseAlarmRate := float64(m.FalsePositives) / float64(m.TotalClean) * 100
		fmt.Printf("   False Alarms:      %d / %d (%.2f%%)\n", m.FalsePositives, m.TotalClean, falseAlarmRate)
	}

	fmt.Printf("\nPERFORMANCE\n")
	fmt.Printf("   Total Duration:   %v\n", duration.Round(time.Millisecond))
	if m.TotalProcessed > 0 {
		avgMs := float64(m.ProcessingTimeMs) / float64(m.TotalProcessed)
		tps := float64(m.TotalProcessed) / duration.Seconds()
		fmt.Printf("   Avg Latency:      %.2f ms\n", avgMs)
		fmt.Printf("   Throughput:       %.2f tx/sec\n", tps)
	}

	fmt.Println()
}
