// Load generator for exercising a running Mlinzi instance with
// synthetic Tanzanian mobile-money traffic.
//
// Usage:
//
//	go run cmd/loadgen/main.go -url http://localhost:8080 -count 1000 -workers 8
//
// Most traffic is benign daytime activity; a configurable fraction is
// injected with fraud markers (large night transfers, VPN, foreign
// devices) so alert paths get exercised too.
package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"math/rand"
	"net/http"
	"os"
	"sync"
	"sync/atomic"
	"time"
)

type transactionRequest struct {
	Amount    float64           `json:"amount"`
	Platform  string            `json:"platform"`
	Type      string            `json:"type"`
	Timestamp time.Time         `json:"timestamp"`
	Metadata  map[string]string `json:"metadata"`
}

type analyzeResponse struct {
	TransactionID string `json:"transactionId"`
	Assessment    struct {
		Score float64  `json:"score"`
		Level string   `json:"level"`
		Flags []string `json:"flags"`
	} `json:"assessment"`
}

type metrics struct {
	sent     atomic.Int64
	failed   atomic.Int64
	low      atomic.Int64
	medium   atomic.Int64
	high     atomic.Int64
	critical atomic.Int64
}

var (
	platforms = []string{"M-Pesa", "Tigo Pesa", "Airtel Money", "HaloPesa", "Azam Pesa", "T-Pesa"}
	txTypes   = []string{"send", "receive", "pay", "withdraw", "deposit", "buy_airtime", "pay_merchant"}
	locations = []string{"Dar es Salaam", "Dodoma", "Mwanza", "Arusha", "Mbeya", "Tanga"}
)

func main() {
	url := flag.String("url", "http://localhost:8080", "Mlinzi base URL")
	count := flag.Int("count", 1000, "number of transactions to send")
	workers := flag.Int("workers", 8, "concurrent senders")
	fraudRate := flag.Float64("fraud-rate", 0.05, "fraction of transactions with fraud markers")
	seed := flag.Int64("seed", time.Now().UnixNano(), "random seed")
	flag.Parse()

	rng := rand.New(rand.NewSource(*seed))

	jobs := make(chan transactionRequest, *workers)
	var m metrics
	var wg sync.WaitGroup

	client := &http.Client{Timeout: 10 * time.Second}

	for i := 0; i < *workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for req := range jobs {
				send(client, *url, req, &m)
			}
		}()
	}

	start := time.Now()

	// Transaction generation is single-threaded so one seed reproduces
	// one traffic pattern.
	for i := 0; i < *count; i++ {
		if rng.Float64() < *fraudRate {
			jobs <- fraudulentTransaction(rng)
		} else {
			jobs <- benignTransaction(rng)
		}
	}
	close(jobs)
	wg.Wait()

	elapsed := time.Since(start)
	total := m.sent.Load()

	fmt.Println()
	fmt.Println("Load generation complete")
	fmt.Printf("  Sent:       %d (%.0f tx/s)\n", total, float64(total)/elapsed.Seconds())
	fmt.Printf("  Failed:     %d\n", m.failed.Load())
	fmt.Printf("  Low:        %d\n", m.low.Load())
	fmt.Printf("  Medium:     %d\n", m.medium.Load())
	fmt.Printf("  High:       %d\n", m.high.Load())
	fmt.Printf("  Critical:   %d\n", m.critical.Load())

	if m.failed.Load() > 0 {
		os.Exit(1)
	}
}

// benignTransaction is daytime activity with familiar characteristics.
func benignTransaction(rng *rand.Rand) transactionRequest {
	hour := 8 + rng.Intn(12) // 08:00 - 19:00
	ts := time.Now().UTC().Truncate(24 * time.Hour).Add(time.Duration(hour) * time.Hour)

	return transactionRequest{
		Amount:    float64(1000 + rng.Intn(150000)),
		Platform:  platforms[rng.Intn(2)], // concentrate on two platforms
		Type:      txTypes[rng.Intn(len(txTypes))],
		Timestamp: ts,
		Metadata: map[string]string{
			"location":    locations[rng.Intn(2)],
			"networkType": "mobile_data",
		},
	}
}

// fraudulentTransaction carries the classic markers: large amount at
// night, anonymizing network, foreign device.
func fraudulentTransaction(rng *rand.Rand) transactionRequest {
	hour := rng.Intn(7) // 00:00 - 06:00
	ts := time.Now().UTC().Truncate(24 * time.Hour).Add(time.Duration(hour) * time.Hour)

	return transactionRequest{
		Amount:    float64(500000 + rng.Intn(2000000)),
		Platform:  platforms[rng.Intn(len(platforms))],
		Type:      "send",
		Timestamp: ts,
		Metadata: map[string]string{
			"deviceId":    fmt.Sprintf("device-%d", rng.Intn(1000)),
			"networkType": "vpn",
		},
	}
}

func send(client *http.Client, baseURL string, req transactionRequest, m *metrics) {
	payload, err := json.Marshal(req)
	if err != nil {
		m.failed.Add(1)
		return
	}

	resp, err := client.Post(baseURL+"/transactions", "application/json", bytes.NewReader(payload))
	if err != nil {
		m.failed.Add(1)
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		m.failed.Add(1)
		return
	}

	var result analyzeResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		m.failed.Add(1)
		return
	}

	m.sent.Add(1)
	switch result.Assessment.Level {
	case "medium":
		m.medium.Add(1)
	case "high":
		m.high.Add(1)
	case "critical":
		m.critical.Add(1)
	default:
		m.low.Add(1)
	}
}
