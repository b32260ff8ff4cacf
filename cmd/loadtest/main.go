package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

const (
	idempotencyHeader = "Idempotency-Key"
	scenarioMethod    = "scenario"
	methodCreate      = "POST /orders"
	methodDelete      = "DELETE /orders/{id}"
)

type loadMode string

const (
	modeCreate       loadMode = "create"
	modeCreateDup    loadMode = "create-dup"
	modeCreateDelete loadMode = "create-delete"
)

// errDedupViolation — повторы с одним токеном получили разные заказы.
var errDedupViolation = errors.New("duplicate request token produced different orders")

type config struct {
	baseURL     string
	total       int
	totalSet    bool
	duration    time.Duration
	concurrency int
	timeout     time.Duration
	mode        loadMode
	dupFactor   int
	tables      int
	dish        string
	outputPath  string
}

func parseConfig() (config, error) {
	var cfg config
	var modeValue string
	var timeoutValue string
	var durationValue string

	flag.StringVar(&cfg.baseURL, "url", "http://localhost:8080", "order API base URL")
	flag.IntVar(&cfg.total, "total", 400, "total scenarios to execute in count mode; in duration mode only used when explicitly set")
	flag.StringVar(&durationValue, "duration", "0s", "optional time-based run duration (e.g. 10m, 15m)")
	flag.IntVar(&cfg.concurrency, "concurrency", 40, "number of concurrent workers")
	flag.StringVar(&timeoutValue, "timeout", "5s", "per-request timeout")
	flag.StringVar(&modeValue, "mode", string(modeCreate), "load mode: create | create-dup | create-delete")
	flag.IntVar(&cfg.dupFactor, "dup", 3, "concurrent duplicates per request token in create-dup mode")
	flag.IntVar(&cfg.tables, "tables", 20, "number of tables orders are spread across")
	flag.StringVar(&cfg.dish, "dish", "soup", "dish id for generated orders")
	flag.StringVar(&cfg.outputPath, "output", "", "optional JSON report output file path")
	flag.Parse()

	timeout, err := time.ParseDuration(strings.TrimSpace(timeoutValue))
	if err != nil {
		return cfg, fmt.Errorf("parse timeout: %w", err)
	}
	cfg.timeout = timeout

	duration, err := time.ParseDuration(strings.TrimSpace(durationValue))
	if err != nil {
		return cfg, fmt.Errorf("parse duration: %w", err)
	}
	cfg.duration = duration

	flag.CommandLine.Visit(func(f *flag.Flag) {
		if f.Name == "total" {
			cfg.totalSet = true
		}
	})

	mode, err := parseMode(modeValue)
	if err != nil {
		return cfg, err
	}
	cfg.mode = mode
	cfg.baseURL = strings.TrimRight(strings.TrimSpace(cfg.baseURL), "/")

	if cfg.baseURL == "" {
		return cfg, errors.New("url is required")
	}
	if cfg.duration < 0 {
		return cfg, errors.New("duration must be >= 0")
	}
	if cfg.duration == 0 && cfg.total <= 0 {
		return cfg, errors.New("total must be > 0 when duration is not set")
	}
	if cfg.duration > 0 && cfg.totalSet && cfg.total <= 0 {
		return cfg, errors.New("total must be > 0 when explicitly set with duration")
	}
	if cfg.concurrency <= 0 {
		return cfg, errors.New("concurrency must be > 0")
	}
	if cfg.timeout <= 0 {
		return cfg, errors.New("timeout must be > 0")
	}
	if cfg.dupFactor < 2 {
		return cfg, errors.New("dup must be >= 2")
	}
	if cfg.tables <= 0 {
		return cfg, errors.New("tables must be > 0")
	}
	if strings.TrimSpace(cfg.dish) == "" {
		return cfg, errors.New("dish is required")
	}

	return cfg, nil
}

func parseMode(value string) (loadMode, error) {
	switch loadMode(strings.TrimSpace(value)) {
	case modeCreate:
		return modeCreate, nil
	case modeCreateDup:
		return modeCreateDup, nil
	case modeCreateDelete:
		return modeCreateDelete, nil
	default:
		return "", fmt.Errorf("unsupported mode: %s", value)
	}
}

func main() {
	cfg, err := parseConfig()
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "invalid config: %v\n", err)
		os.Exit(1)
	}

	result := run(cfg)

	printReport(result, cfg)
	if cfg.outputPath != "" {
		if err := writeJSONReport(cfg.outputPath, result); err != nil {
			_, _ = fmt.Fprintf(os.Stderr, "failed to write report: %v\n", err)
			os.Exit(1)
		}
	}

	if result.FailedScenarios > 0 || result.DedupViolations > 0 {
		os.Exit(1)
	}
}

func run(cfg config) report {
	client := newAPIClient(cfg)
	startedAt := time.Now()

	jobs := make(chan int, cfg.concurrency*2)
	var failures int64
	var wg sync.WaitGroup

	for workerID := 0; workerID < cfg.concurrency; workerID++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for id := range jobs {
				if runErr := runScenario(client, cfg, id); runErr != nil {
					atomic.AddInt64(&failures, 1)
				}
			}
		}()
	}

	dispatchJobs(jobs, cfg)
	wg.Wait()

	result := client.col.buildReport(startedAt, time.Since(startedAt))
	if result.FailedScenarios == 0 && failures > 0 {
		result.FailedScenarios = failures
		result.ErrorRate = ratio(result.FailedScenarios, result.TotalScenarios)
	}
	return result
}

func dispatchJobs(jobs chan<- int, cfg config) {
	defer close(jobs)

	if cfg.duration <= 0 {
		for i := 0; i < cfg.total; i++ {
			jobs <- i
		}
		return
	}

	timer := time.NewTimer(cfg.duration)
	defer timer.Stop()

	for i := 0; ; i++ {
		if cfg.totalSet && i >= cfg.total {
			return
		}

		select {
		case <-timer.C:
			return
		case jobs <- i:
		}
	}
}

func runScenario(client *apiClient, cfg config, index int) (err error) {
	scenarioStart := time.Now()
	defer func() {
		code := "ok"
		if err != nil {
			code = "failed"
		}
		client.col.record(scenarioMethod, time.Since(scenarioStart), code, err == nil)
	}()

	token := "lt-" + uuid.NewString()
	table := index%cfg.tables + 1

	switch cfg.mode {
	case modeCreate:
		_, err = client.createOrder(token, table, cfg.dish)
		return err

	case modeCreateDup:
		ids := make([]string, cfg.dupFactor)
		errs := make([]error, cfg.dupFactor)
		var wg sync.WaitGroup
		for i := range ids {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				ids[i], errs[i] = client.createOrder(token, table, cfg.dish)
			}(i)
		}
		wg.Wait()

		if err = errors.Join(errs...); err != nil {
			return err
		}
		for _, id := range ids[1:] {
			if id != ids[0] {
				client.col.recordDedupViolation()
				return fmt.Errorf("%w: token %s got %s and %s", errDedupViolation, token, ids[0], id)
			}
		}
		return nil

	case modeCreateDelete:
		id, createErr := client.createOrder(token, table, cfg.dish)
		if createErr != nil {
			return createErr
		}
		if err = client.deleteOrder(id, http.StatusNoContent); err != nil {
			return err
		}
		// Повторное удаление обязано вернуть 404.
		return client.deleteOrder(id, http.StatusNotFound)

	default:
		return fmt.Errorf("unsupported mode: %s", cfg.mode)
	}
}

// apiClient — тонкий HTTP-клиент API заказов, пишущий статистику в collector.
type apiClient struct {
	baseURL string
	http    *http.Client
	col     *collector
}

func newAPIClient(cfg config) *apiClient {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.MaxIdleConnsPerHost = cfg.concurrency * max(cfg.dupFactor, 1)

	return &apiClient{
		baseURL: cfg.baseURL,
		http:    &http.Client{Timeout: cfg.timeout, Transport: transport},
		col:     newCollector(),
	}
}

type orderItem struct {
	DishID   string `json:"dish_id"`
	Quantity int    `json:"quantity"`
}

type createRequest struct {
	TableNumber int         `json:"table_number"`
	Items       []orderItem `json:"items"`
}

// createdOrder — API отдаёт id строкой, клиент не разбирает его.
type createdOrder struct {
	ID string `json:"id"`
}

func (c *apiClient) createOrder(token string, table int, dish string) (string, error) {
	body, err := json.Marshal(createRequest{
		TableNumber: table,
		Items:       []orderItem{{DishID: dish, Quantity: 1}},
	})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(context.Background(), http.MethodPost, c.baseURL+"/orders", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(idempotencyHeader, token)

	var order createdOrder
	if err := c.do(methodCreate, req, http.StatusCreated, &order); err != nil {
		return "", err
	}
	if order.ID == "" {
		return "", errors.New("create response returned empty order id")
	}
	return order.ID, nil
}

func (c *apiClient) deleteOrder(id string, wantStatus int) error {
	req, err := http.NewRequestWithContext(context.Background(), http.MethodDelete, fmt.Sprintf("%s/orders/%s", c.baseURL, id), nil)
	if err != nil {
		return err
	}
	return c.do(methodDelete, req, wantStatus, nil)
}

func (c *apiClient) do(method string, req *http.Request, wantStatus int, out any) error {
	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.col.record(method, time.Since(start), "transport_error", false)
		return err
	}
	defer resp.Body.Close()

	ok := resp.StatusCode == wantStatus
	c.col.record(method, time.Since(start), fmt.Sprintf("%d", resp.StatusCode), ok)
	if !ok {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%s: unexpected status %d: %s", method, resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
