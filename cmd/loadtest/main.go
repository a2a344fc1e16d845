// Loadtest fires concurrent requests at a gateway route and reports status
// codes, how many answers were breaker fallbacks, latency percentiles and the
// breaker state of every dependency afterwards.
//
// Usage:
//
//	go run ./cmd/loadtest -url http://localhost:8080/users/1/details -concurrency 20 -requests 2000
//	go run ./cmd/loadtest -url http://localhost:8080/orders -method POST -body '{"entries":[1]}' -token <jwt>
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

type options struct {
	target      string
	method      string
	body        string
	header      string
	token       string
	concurrency int
	requests    int
	timeout     time.Duration
}

type report struct {
	Requests    int            `json:"requests"`
	Errors      int            `json:"errors"`
	Fallbacks   int            `json:"fallbacks"`
	StatusCodes map[int]int    `json:"status_codes"`
	Duration    time.Duration  `json:"duration"`
	Latencies   latencySummary `json:"latencies"`
}

type latencySummary struct {
	P50 time.Duration `json:"p50"`
	P90 time.Duration `json:"p90"`
	P99 time.Duration `json:"p99"`
	Max time.Duration `json:"max"`
}

func main() {
	var opts options
	flag.StringVar(&opts.target, "url", "http://localhost:8080/users", "Target URL")
	flag.StringVar(&opts.method, "method", http.MethodGet, "HTTP method")
	flag.StringVar(&opts.body, "body", "", "Request body")
	flag.StringVar(&opts.header, "auth-header", "auth-token", "Credential header name")
	flag.StringVar(&opts.token, "token", "", "Bearer token sent with every request")
	flag.IntVar(&opts.concurrency, "concurrency", 10, "Number of concurrent workers")
	flag.IntVar(&opts.requests, "requests", 100, "Total number of requests to send")
	flag.DurationVar(&opts.timeout, "timeout", 10*time.Second, "Per-request timeout")
	flag.Parse()

	rep, err := run(context.Background(), opts)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load test failed: %v\n", err)
		os.Exit(1)
	}

	printReport(os.Stdout, opts, rep)

	if circuits, err := fetchCircuits(opts.target); err == nil {
		fmt.Println("\nCircuits:")
		for _, name := range sortedKeys(circuits) {
			fmt.Printf("  %s -> %s\n", name, circuits[name])
		}
	}

	if rep.Errors > 0 {
		os.Exit(2)
	}
}

func run(ctx context.Context, opts options) (report, error) {
	if opts.concurrency < 1 || opts.requests < 1 {
		return report{}, fmt.Errorf("concurrency and requests must be positive")
	}

	client := &http.Client{Timeout: opts.timeout}

	var (
		mutex     sync.Mutex
		latencies = make([]time.Duration, 0, opts.requests)
		rep       = report{StatusCodes: make(map[int]int)}
	)

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(opts.concurrency)

	start := time.Now()
	for i := 0; i < opts.requests; i++ {
		g.Go(func() error {
			status, fallback, dur, err := fire(ctx, client, opts)

			mutex.Lock()
			defer mutex.Unlock()

			rep.Requests++
			latencies = append(latencies, dur)
			if err != nil {
				rep.Errors++
				return nil
			}
			rep.StatusCodes[status]++
			if fallback {
				rep.Fallbacks++
			}
			return nil
		})
	}
	_ = g.Wait()

	rep.Duration = time.Since(start)
	rep.Latencies = summarize(latencies)
	return rep, nil
}

// fire sends one request. A 503 whose error mentions a temporarily
// unavailable service is a breaker fallback.
func fire(ctx context.Context, client *http.Client, opts options) (int, bool, time.Duration, error) {
	var body io.Reader
	if opts.body != "" {
		body = bytes.NewBufferString(opts.body)
	}

	req, err := http.NewRequestWithContext(ctx, opts.method, opts.target, body)
	if err != nil {
		return 0, false, 0, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if opts.token != "" {
		req.Header.Set(opts.header, "Bearer "+opts.token)
	}

	start := time.Now()
	resp, err := client.Do(req)
	dur := time.Since(start)
	if err != nil {
		return 0, false, dur, err
	}
	defer resp.Body.Close()

	var payload struct {
		Error string `json:"error"`
	}
	raw, _ := io.ReadAll(resp.Body)
	_ = json.Unmarshal(raw, &payload)

	fallback := resp.StatusCode == http.StatusServiceUnavailable &&
		strings.Contains(payload.Error, "temporarily unavailable")

	return resp.StatusCode, fallback, dur, nil
}

func summarize(latencies []time.Duration) latencySummary {
	if len(latencies) == 0 {
		return latencySummary{}
	}

	sorted := make([]time.Duration, len(latencies))
	copy(sorted, latencies)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	pick := func(p float64) time.Duration {
		return sorted[int(float64(len(sorted)-1)*p)]
	}

	return latencySummary{
		P50: pick(0.50),
		P90: pick(0.90),
		P99: pick(0.99),
		Max: sorted[len(sorted)-1],
	}
}

// fetchCircuits reads breaker states from the gateway's /health endpoint.
func fetchCircuits(target string) (map[string]string, error) {
	u, err := url.Parse(target)
	if err != nil {
		return nil, err
	}
	u.Path = "/health"
	u.RawQuery = ""

	resp, err := http.Get(u.String())
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var health struct {
		Circuits map[string]struct {
			Status string `json:"status"`
		} `json:"circuits"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&health); err != nil {
		return nil, err
	}

	states := make(map[string]string, len(health.Circuits))
	for name, c := range health.Circuits {
		states[name] = c.Status
	}
	return states, nil
}

func printReport(w io.Writer, opts options, rep report) {
	fmt.Fprintln(w, "--- Load Test Summary ---")
	fmt.Fprintf(w, "Target: %s %s\n", opts.method, opts.target)
	fmt.Fprintf(w, "Requests: %d  Concurrency: %d\n", rep.Requests, opts.concurrency)
	fmt.Fprintf(w, "Transport errors: %d  Fallbacks: %d\n", rep.Errors, rep.Fallbacks)
	fmt.Fprintf(w, "Duration: %v  Throughput: %.2f req/s\n", rep.Duration, float64(rep.Requests)/rep.Duration.Seconds())

	fmt.Fprintln(w, "\nStatus codes:")
	codes := make([]int, 0, len(rep.StatusCodes))
	for code := range rep.StatusCodes {
		codes = append(codes, code)
	}
	sort.Ints(codes)
	for _, code := range codes {
		fmt.Fprintf(w, "  %d -> %d\n", code, rep.StatusCodes[code])
	}

	fmt.Fprintf(w, "\nLatency: p50=%v p90=%v p99=%v max=%v\n",
		rep.Latencies.P50, rep.Latencies.P90, rep.Latencies.P99, rep.Latencies.Max)
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
