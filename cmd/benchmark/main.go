// Benchmark tool for load-testing Kestrel with synthetic compliance cases.
//
// Usage:
//   go run cmd/benchmark/main.go -url http://localhost:8080 -cases 1000
//
// This tool:
//   1. Creates synthetic cases with varied decision types and artifact mixes
//   2. Posts submissions and attachments for a configurable fraction of cases
//   3. Fetches decision intelligence for each case (first access computes)
//   4. Reports throughput, latency, and the confidence band distribution
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

var decisionTypes = []string{"standard_review", "expedited_review", "renewal"}

// CaseRequest is the Kestrel API request format for creating a case.
type CaseRequest struct {
	DecisionType string         `json:"decisionType"`
	Metadata     map[string]any `json:"metadata,omitempty"`
}

// CaseResponse is the created case.
type CaseResponse struct {
	ID           string `json:"id"`
	DecisionType string `json:"decisionType"`
	Status       string `json:"status"`
}

// IntelligenceResponse is the subset of the intelligence record we inspect.
type IntelligenceResponse struct {
	CaseID          string  `json:"caseId"`
	ConfidenceScore float64 `json:"confidenceScore"`
	ConfidenceBand  string  `json:"confidenceBand"`
	Gaps            []any   `json:"gaps"`
	BiasFlags       []any   `json:"biasFlags"`
}

// Metrics tracks benchmark results.
type Metrics struct {
	CasesCreated   int64
	Submissions    int64
	Attachments    int64
	IntelFetched   int64
	TotalErrors    int64
	BandHigh       int64
	BandMedium     int64
	BandLow        int64
	TotalGaps      int64
	TotalBiasFlags int64

	ProcessingTimeMs int64
}

func main() {
	baseURL := flag.String("url", "http://localhost:8080", "Kestrel base URL")
	tenantID := flag.String("tenant", "benchmark-test", "Tenant ID for requests")
	caseCount := flag.Int("cases", 1000, "Number of synthetic cases to create")
	workers := flag.Int("workers", 10, "Number of concurrent workers")
	submitRate := flag.Float64("submit", 0.7, "Fraction of cases that get a submission (0.0-1.0)")
	attachRate := flag.Float64("attach", 0.5, "Fraction of cases that get an attachment (0.0-1.0)")
	verbose := flag.Bool("verbose", false, "Print each case result")
	flag.Parse()

	fmt.Println("KESTREL BENCHMARK - Synthetic Case Load")
	fmt.Printf("\nKestrel URL: %s\n", *baseURL)
	fmt.Printf("Tenant ID:   %s\n", *tenantID)
	fmt.Printf("Cases:       %d\n", *caseCount)
	fmt.Printf("Workers:     %d\n", *workers)
	fmt.Printf("Submit Rate: %.2f\n", *submitRate)
	fmt.Printf("Attach Rate: %.2f\n", *attachRate)
	fmt.Println()

	// Check Kestrel is running
	if err := checkHealth(*baseURL); err != nil {
		fmt.Printf("ERROR: Kestrel not reachable at %s: %v\n", *baseURL, err)
		fmt.Println("\nMake sure Kestrel is running:")
		fmt.Println("  go run cmd/kestrel/main.go")
		os.Exit(1)
	}
	fmt.Println("Kestrel is healthy")

	fmt.Printf("\nRunning benchmark with %d workers...\n", *workers)
	startTime := time.Now()
	metrics := runBenchmark(*baseURL, *tenantID, *caseCount, *workers, *submitRate, *attachRate, *verbose)
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

func runBenchmark(baseURL, tenantID string, caseCount, numWorkers int, submitRate, attachRate float64, verbose bool) *Metrics {
	metrics := &Metrics{}

	work := make(chan int, 100)
	var wg sync.WaitGroup

	for i := 0; i < numWorkers; i++ {
		wg.Add(1)
		go func(seed int64) {
			defer wg.Done()
			client := &http.Client{Timeout: 10 * time.Second}
			rng := rand.New(rand.NewSource(seed))

			for n := range work {
				start := time.Now()
				result, err := runCase(client, baseURL, tenantID, rng, submitRate, attachRate, metrics)
				elapsed := time.Since(start).Milliseconds()

				atomic.AddInt64(&metrics.ProcessingTimeMs, elapsed)

				if err != nil {
					atomic.AddInt64(&metrics.TotalErrors, 1)
					if verbose {
						fmt.Printf("ERROR: case %d -> %v\n", n, err)
					}
					continue
				}

				atomic.AddInt64(&metrics.IntelFetched, 1)
				switch result.ConfidenceBand {
				case "high":
					atomic.AddInt64(&metrics.BandHigh, 1)
				case "medium":
					atomic.AddInt64(&metrics.BandMedium, 1)
				default:
					atomic.AddInt64(&metrics.BandLow, 1)
				}
				atomic.AddInt64(&metrics.TotalGaps, int64(len(result.Gaps)))
				atomic.AddInt64(&metrics.TotalBiasFlags, int64(len(result.BiasFlags)))

				if verbose {
					fmt.Printf("case %-36s | score %6.2f | band %-6s | gaps %d | flags %d | %dms\n",
						result.CaseID, result.ConfidenceScore, result.ConfidenceBand,
						len(result.Gaps), len(result.BiasFlags), elapsed)
				}
			}
		}(int64(i) + 1)
	}

	for n := 0; n < caseCount; n++ {
		work <- n
	}
	close(work)

	wg.Wait()

	return metrics
}

// runCase creates one case, attaches artifacts per the configured rates,
// then fetches intelligence (first access computes).
func runCase(client *http.Client, baseURL, tenantID string, rng *rand.Rand, submitRate, attachRate float64, metrics *Metrics) (*IntelligenceResponse, error) {
	dt := decisionTypes[rng.Intn(len(decisionTypes))]

	var created CaseResponse
	if err := postJSON(client, baseURL+"/cases", tenantID, CaseRequest{DecisionType: dt}, &created); err != nil {
		return nil, fmt.Errorf("create case: %w", err)
	}
	atomic.AddInt64(&metrics.CasesCreated, 1)

	caseURL := baseURL + "/cases/" + created.ID

	if rng.Float64() < submitRate {
		fields := map[string]any{
			"applicant_name": fmt.Sprintf("applicant-%d", rng.Intn(10000)),
			"summary":        "synthetic benchmark submission",
		}
		// Half of submissions are sparse to exercise partial completeness
		if rng.Float64() < 0.5 {
			fields["jurisdiction"] = "US"
			fields["requested_action"] = "approve"
		}
		body := map[string]any{"fields": fields}
		if err := postJSON(client, caseURL+"/submission", tenantID, body, nil); err != nil {
			return nil, fmt.Errorf("submission: %w", err)
		}
		atomic.AddInt64(&metrics.Submissions, 1)
	}

	if rng.Float64() < attachRate {
		body := map[string]any{
			"fileName":    fmt.Sprintf("evidence-%d.pdf", rng.Intn(10000)),
			"contentType": "application/pdf",
			"sizeBytes":   int64(rng.Intn(1 << 20)),
		}
		if err := postJSON(client, caseURL+"/attachments", tenantID, body, nil); err != nil {
			return nil, fmt.Errorf("attachment: %w", err)
		}
		atomic.AddInt64(&metrics.Attachments, 1)
	}

	var intel IntelligenceResponse
	if err := getJSON(client, caseURL+"/intelligence", tenantID, &intel); err != nil {
		return nil, fmt.Errorf("intelligence: %w", err)
	}
	return &intel, nil
}

func postJSON(client *http.Client, url, tenantID string, body any, out any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Tenant-ID", tenantID)

	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return fmt.Errorf("status %d", resp.StatusCode)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func getJSON(client *http.Client, url, tenantID string, out any) error {
	req, err := http.NewRequest(http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	req.Header.Set("X-Tenant-ID", tenantID)

	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("status %d", resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func printResults(m *Metrics, duration time.Duration) {
	fmt.Println("\nBENCHMARK RESULTS")

	fmt.Printf("\nARTIFACTS\n")
	fmt.Printf("   Cases Created:    %d\n", m.CasesCreated)
	fmt.Printf("   Submissions:      %d\n", m.Submissions)
	fmt.Printf("   Attachments:      %d\n", m.Attachments)
	fmt.Printf("   Intel Fetched:    %d\n", m.IntelFetched)
	fmt.Printf("   Errors:           %d\n", m.TotalErrors)

	fmt.Printf("\nCONFIDENCE BANDS\n")
	if m.IntelFetched > 0 {
		fmt.Printf("   High:    %6d (%.2f%%)\n", m.BandHigh, 100*float64(m.BandHigh)/float64(m.IntelFetched))
		fmt.Printf("   Medium:  %6d (%.2f%%)\n", m.BandMedium, 100*float64(m.BandMedium)/float64(m.IntelFetched))
		fmt.Printf("   Low:     %6d (%.2f%%)\n", m.BandLow, 100*float64(m.BandLow)/float64(m.IntelFetched))
		fmt.Printf("   Avg Gaps/Case:       %.2f\n", float64(m.TotalGaps)/float64(m.IntelFetched))
		fmt.Printf("   Avg Bias Flags/Case: %.2f\n", float64(m.TotalBiasFlags)/float64(m.IntelFetched))
	}

	fmt.Printf("\nPERFORMANCE\n")
	fmt.Printf("   Total Duration:   %v\n", duration.Round(time.Millisecond))
	if m.IntelFetched > 0 {
		avgMs := float64(m.ProcessingTimeMs) / float64(m.IntelFetched)
		cps := float64(m.IntelFetched) / duration.Seconds()
		fmt.Printf("   Avg Case Latency: %.2f ms (create + artifacts + compute)\n", avgMs)
		fmt.Printf("   Throughput:       %.2f cases/sec\n", cps)
	}

	fmt.Println()
}
