// Benchmark replays a labeled order dataset against a running Shrike
// instance and reports decision quality.
//
// Usage:
//
//	go run cmd/benchmark/main.go -csv /path/to/orders.csv -url http://localhost:8080
//
// A DECLINE decision counts as a fraud prediction; with -review-as-alert
// a REVIEW counts too. Predictions are compared against the is_fraud
// column and summarized as a confusion matrix with precision, recall,
// F1, and accuracy.
//
// Expected columns: amount, customer_id, email, ip_address, is_fraud.
// Optional columns: currency, device_fingerprint, country.
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

type labeledOrder struct {
	Amount            float64
	Currency          string
	CustomerID        string
	Email             string
	IPAddress         string
	DeviceFingerprint string
	IsFraud           bool
}

type assessRequest struct {
	Amount            float64 `json:"amount"`
	Currency          string  `json:"currency"`
	CustomerID        string  `json:"customerId"`
	Email             string  `json:"email"`
	IPAddress         string  `json:"ipAddress"`
	DeviceFingerprint string  `json:"deviceFingerprint,omitempty"`
}

// assessResponse carries only the response fields the benchmark scores on.
type assessResponse struct {
	ID          string  `json:"id"`
	RiskScore   int     `json:"riskScore"`
	Probability float64 `json:"probability"`
	Tier        string  `json:"tier"`
	Decision    string  `json:"decision"`
}

// tally accumulates the confusion matrix across workers. Fields are
// updated with atomics.
type tally struct {
	truePos  int64 // fraud declined
	falsePos int64 // legit declined
	trueNeg  int64 // legit passed
	falseNeg int64 // fraud passed

	processed int64
	fraud     int64
	nonFraud  int64
	failed    int64

	latencyMs int64
}

// record classifies one prediction against its label.
func (t *tally) record(predicted, actual bool) {
	switch {
	case predicted && actual:
		atomic.AddInt64(&t.truePos, 1)
	case predicted && !actual:
		atomic.AddInt64(&t.falsePos, 1)
	case !predicted && !actual:
		atomic.AddInt64(&t.trueNeg, 1)
	default:
		atomic.AddInt64(&t.falseNeg, 1)
	}
}

// ratio guards against a zero denominator.
func ratio(num, den int64) float64 {
	if den == 0 {
		return 0
	}
	return float64(num) / float64(den)
}

func main() {
	csvPath := flag.String("csv", "", "path to labeled orders CSV")
	baseURL := flag.String("url", "http://localhost:8080", "Shrike base URL")
	tenant := flag.String("tenant", "benchmark-test", "tenant header value")
	limit := flag.Int("limit", 10000, "max orders to replay (0 = all)")
	workers := flag.Int("workers", 10, "concurrent request workers")
	reviewAsAlert := flag.Bool("review-as-alert", false, "count REVIEW decisions as fraud predictions")
	verbose := flag.Bool("verbose", false, "print each order result")
	flag.Parse()

	if *csvPath == "" {
		fmt.Println("usage: benchmark -csv /path/to/orders.csv [-url http://localhost:8080]")
		fmt.Println()
		flag.PrintDefaults()
		os.Exit(1)
	}

	fmt.Printf("shrike benchmark\n  csv:     %s\n  url:     %s\n  tenant:  %s\n  workers: %d\n  limit:   %d\n\n",
		*csvPath, *baseURL, *tenant, *workers, *limit)

	if err := ping(*baseURL); err != nil {
		fmt.Printf("shrike not reachable at %s: %v\n", *baseURL, err)
		fmt.Println("start it first: go run cmd/shrike/main.go")
		os.Exit(1)
	}

	orders, err := loadOrders(*csvPath, *limit)
	if err != nil {
		fmt.Printf("load csv: %v\n", err)
		os.Exit(1)
	}

	var fraud int
	for _, o := range orders {
		if o.IsFraud {
			fraud++
		}
	}
	fmt.Printf("loaded %d orders (%d fraud, %d legit)\n\n", len(orders), fraud, len(orders)-fraud)

	started := time.Now()
	counts := replay(orders, *baseURL, *tenant, *workers, *reviewAsAlert, *verbose)
	report(counts, time.Since(started))
}

func ping(baseURL string) error {
	resp, err := http.Get(baseURL + "/health")
	if err != nil {
		return err
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health returned %d", resp.StatusCode)
	}
	return nil
}

func loadOrders(path string, limit int) ([]labeledOrder, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	header, err := r.Read()
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}

	cols := make(map[string]int, len(header))
	for i, name := range header {
		cols[strings.ToLower(strings.TrimSpace(name))] = i
	}
	field := func(row []string, name string) string {
		i, ok := cols[name]
		if !ok || i >= len(row) {
			return ""
		}
		return row[i]
	}

	var orders []labeledOrder
	for limit <= 0 || len(orders) < limit {
		row, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			continue // malformed row
		}

		amount, _ := strconv.ParseFloat(field(row, "amount"), 64)
		if amount <= 0 {
			continue
		}
		currency := field(row, "currency")
		if currency == "" {
			currency = "USD"
		}

		orders = append(orders, labeledOrder{
			Amount:            amount,
			Currency:          currency,
			CustomerID:        field(row, "customer_id"),
			Email:             field(row, "email"),
			IPAddress:         field(row, "ip_address"),
			DeviceFingerprint: field(row, "device_fingerprint"),
			IsFraud:           field(row, "is_fraud") == "1",
		})
	}
	return orders, nil
}

func replay(orders []labeledOrder, baseURL, tenant string, workers int, reviewAsAlert, verbose bool) *tally {
	counts := &tally{}
	queue := make(chan labeledOrder, 100)

	var wg sync.WaitGroup
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer wg.Done()
			client := &http.Client{Timeout: 10 * time.Second}

			for order := range queue {
				began := time.Now()
				result, err := assess(client, baseURL, tenant, order)
				atomic.AddInt64(&counts.latencyMs, time.Since(began).Milliseconds())
				atomic.AddInt64(&counts.processed, 1)

				if err != nil {
					atomic.AddInt64(&counts.failed, 1)
					if verbose {
						fmt.Printf("ERROR %s: %v\n", order.CustomerID, err)
					}
					continue
				}

				if order.IsFraud {
					atomic.AddInt64(&counts.fraud, 1)
				} else {
					atomic.AddInt64(&counts.nonFraud, 1)
				}

				predicted := result.Decision == "DECLINE" ||
					(reviewAsAlert && result.Decision == "REVIEW")
				counts.record(predicted, order.IsFraud)

				if verbose {
					mark := "ok  "
					if predicted != order.IsFraud {
						mark = "MISS"
					}
					fmt.Printf("%s %-12s $%10.2f fraud=%-5v -> %-7s p=%.2f %s\n",
						mark, clip(order.CustomerID, 12), order.Amount,
						order.IsFraud, result.Decision, result.Probability, result.Tier)
				}
			}
		}()
	}

	for _, order := range orders {
		queue <- order
	}
	close(queue)
	wg.Wait()

	return counts
}

func clip(s string, n int) string {
	if len(s) > n {
		return s[:n]
	}
	return s
}

func assess(client *http.Client, baseURL, tenant string, order labeledOrder) (*assessResponse, error) {
	payload, err := json.Marshal(assessRequest{
		Amount:            order.Amount,
		Currency:          order.Currency,
		CustomerID:        order.CustomerID,
		Email:             order.Email,
		IPAddress:         order.IPAddress,
		DeviceFingerprint: order.DeviceFingerprint,
	})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequest(http.MethodPost, baseURL+"/assess", bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Tenant-ID", tenant)

	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("assess returned %d", resp.StatusCode)
	}

	var out assessResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, err
	}
	return &out, nil
}

func report(t *tally, elapsed time.Duration) {
	fmt.Println("\n==== results ====")
	fmt.Printf("processed %d  (fraud %d, legit %d, errors %d)\n\n",
		t.processed, t.fraud, t.nonFraud, t.failed)

	fmt.Println("confusion matrix (rows = actual, cols = predicted)")
	fmt.Printf("            declined    passed\n")
	fmt.Printf("  fraud   %9d %9d\n", t.truePos, t.falseNeg)
	fmt.Printf("  legit   %9d %9d\n\n", t.falsePos, t.trueNeg)

	precision := ratio(t.truePos, t.truePos+t.falsePos)
	recall := ratio(t.truePos, t.truePos+t.falseNeg)
	var f1 float64
	if precision+recall > 0 {
		f1 = 2 * precision * recall / (precision + recall)
	}
	accuracy := ratio(t.truePos+t.trueNeg, t.truePos+t.trueNeg+t.falsePos+t.falseNeg)

	fmt.Printf("precision %.4f   recall %.4f   f1 %.4f   accuracy %.4f\n\n",
		precision, recall, f1, accuracy)

	if t.fraud > 0 {
		fmt.Printf("fraud caught:  %d/%d (%.2f%%)\n", t.truePos, t.fraud, 100*ratio(t.truePos, t.fraud))
		fmt.Printf("fraud missed:  %d/%d (%.2f%%)\n", t.falseNeg, t.fraud, 100*ratio(t.falseNeg, t.fraud))
	}
	if t.nonFraud > 0 {
		fmt.Printf("false alarms:  %d/%d (%.2f%%)\n", t.falsePos, t.nonFraud, 100*ratio(t.falsePos, t.nonFraud))
	}

	fmt.Printf("\nduration %v", elapsed.Round(time.Millisecond))
	if t.processed > 0 {
		fmt.Printf("   avg latency %.2f ms   throughput %.1f req/s",
			float64(t.latencyMs)/float64(t.processed),
			float64(t.processed)/elapsed.Seconds())
	}
	fmt.Println()
}
