package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"math"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

const (
	basePath         = "/api/v1"
	headerUserID     = "X-User-ID"
	headerUserRole   = "X-User-Role"
	headerIdemKey    = "Idempotency-Key"
	roleAdmin        = "admin"
	outcomeTransport = "transport"

	kindInsufficientStock   = "InsufficientStock"
	kindTransactionConflict = "TransactionConflict"
)

type loadMode string

const (
	// modePlace только оформляет заказы; на малом остатке это проверка конкуренции за товар.
	modePlace loadMode = "place"
	// modePlacePay после оформления отмечает оплату от имени администратора.
	modePlacePay loadMode = "place-pay"
	// modePlaceShip проводит заказ через processing и shipped, часть заказов отменяет.
	modePlaceShip loadMode = "place-ship"
)

type config struct {
	baseURL         string
	total           int
	totalSet        bool
	duration        time.Duration
	concurrency     int
	timeout         time.Duration
	mode            loadMode
	cancelRate      int
	conflictRetries int
	userID          string
	adminID         string
	addressID       string
	productID       string
	color           string
	amount          int
	paymentMethod   string
	outputPath      string
}

type latencySummary struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
	Avg float64 `json:"avg"`
	P50 float64 `json:"p50"`
	P95 float64 `json:"p95"`
	P99 float64 `json:"p99"`
}

type methodReport struct {
	Calls     int64            `json:"calls"`
	Success   int64            `json:"success"`
	Failed    int64            `json:"failed"`
	ErrorRate float64          `json:"error_rate"`
	Codes     map[string]int64 `json:"codes"`
	LatencyMs latencySummary   `json:"latency_ms"`
}

type report struct {
	StartedAt         time.Time               `json:"started_at"`
	DurationSeconds   float64                 `json:"duration_seconds"`
	TotalScenarios    int64                   `json:"total_scenarios"`
	SuccessScenarios  int64                   `json:"success_scenarios"`
	FailedScenarios   int64                   `json:"failed_scenarios"`
	OutOfStock        int64                   `json:"out_of_stock"`
	ErrorRate         float64                 `json:"error_rate"`
	RPS               float64                 `json:"rps"`
	ScenarioLatencyMs latencySummary          `json:"scenario_latency_ms"`
	Methods           map[string]methodReport `json:"methods"`
}

type methodStats struct {
	calls     int64
	success   int64
	failed    int64
	codes     map[string]int64
	latencies []float64
}

type collector struct {
	mu         sync.Mutex
	methods    map[string]*methodStats
	outOfStock int64
}

func newCollector() *collector {
	return &collector{methods: make(map[string]*methodStats)}
}

func (c *collector) record(method string, latency time.Duration, code string, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	stats, found := c.methods[method]
	if !found {
		stats = &methodStats{codes: make(map[string]int64)}
		c.methods[method] = stats
	}

	stats.calls++
	if ok {
		stats.success++
	} else {
		stats.failed++
	}
	stats.codes[code]++
	stats.latencies = append(stats.latencies, float64(latency.Microseconds())/1000.0)
}

func (c *collector) recordOutOfStock() {
	c.mu.Lock()
	c.outOfStock++
	c.mu.Unlock()
}

func (c *collector) buildReport(startedAt time.Time, duration time.Duration) report {
	c.mu.Lock()
	defer c.mu.Unlock()

	result := report{
		StartedAt:       startedAt.UTC(),
		DurationSeconds: duration.Seconds(),
		OutOfStock:      c.outOfStock,
		Methods:         make(map[string]methodReport, len(c.methods)),
	}

	if scenarioStats := c.methods["scenario"]; scenarioStats != nil {
		result.TotalScenarios = scenarioStats.calls
		result.SuccessScenarios = scenarioStats.success
		result.FailedScenarios = scenarioStats.failed
		result.ErrorRate = ratio(scenarioStats.failed, scenarioStats.calls)
		result.ScenarioLatencyMs = buildLatencySummary(scenarioStats.latencies)
	}
	if duration > 0 {
		result.RPS = float64(result.TotalScenarios) / duration.Seconds()
	}

	for name, stats := range c.methods {
		codesCopy := make(map[string]int64, len(stats.codes))
		for code, count := range stats.codes {
			codesCopy[code] = count
		}
		result.Methods[name] = methodReport{
			Calls:     stats.calls,
			Success:   stats.success,
			Failed:    stats.failed,
			ErrorRate: ratio(stats.failed, stats.calls),
			Codes:     codesCopy,
			LatencyMs: buildLatencySummary(stats.latencies),
		}
	}

	return result
}

func parseConfig(fs *flag.FlagSet, args []string) (config, error) {
	var cfg config
	var modeValue string

	fs.StringVar(&cfg.baseURL, "addr", "http://localhost:8080", "storefront HTTP base URL")
	fs.IntVar(&cfg.total, "total", 400, "total scenarios to execute in count mode; in duration mode only used when explicitly set")
	fs.DurationVar(&cfg.duration, "duration", 0, "optional time-based run duration (e.g. 10m, 15m)")
	fs.IntVar(&cfg.concurrency, "concurrency", 40, "number of concurrent workers")
	fs.DurationVar(&cfg.timeout, "timeout", 5*time.Second, "per-request timeout")
	fs.StringVar(&modeValue, "mode", string(modePlace), "load mode: place | place-pay | place-ship")
	fs.IntVar(&cfg.cancelRate, "cancel-rate", 0, "cancel probability in percent for place-ship mode (0..100)")
	fs.IntVar(&cfg.conflictRetries, "conflict-retries", 3, "retries with the same idempotency key on 409 TransactionConflict")
	fs.StringVar(&cfg.userID, "user", "user-1", "customer id sent in "+headerUserID)
	fs.StringVar(&cfg.adminID, "admin", "admin-1", "admin id for pay/status calls")
	fs.StringVar(&cfg.addressID, "address", "address-1", "delivery address id")
	fs.StringVar(&cfg.productID, "product", "product-2", "product id to order")
	fs.StringVar(&cfg.color, "color", "black", "product color")
	fs.IntVar(&cfg.amount, "amount", 1, "units per order")
	fs.StringVar(&cfg.paymentMethod, "payment-method", "cash_on_delivery", "cash_on_delivery | online_wallet")
	fs.StringVar(&cfg.outputPath, "output", "", "optional JSON report output file path")
	if err := fs.Parse(args); err != nil {
		return cfg, err
	}

	fs.Visit(func(f *flag.Flag) {
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

	switch {
	case cfg.baseURL == "":
		return cfg, errors.New("addr is required")
	case cfg.duration < 0:
		return cfg, errors.New("duration must be >= 0")
	case cfg.duration == 0 && cfg.total <= 0:
		return cfg, errors.New("total must be > 0 when duration is not set")
	case cfg.duration > 0 && cfg.totalSet && cfg.total <= 0:
		return cfg, errors.New("total must be > 0 when explicitly set with duration")
	case cfg.concurrency <= 0:
		return cfg, errors.New("concurrency must be > 0")
	case cfg.timeout <= 0:
		return cfg, errors.New("timeout must be > 0")
	case cfg.amount <= 0:
		return cfg, errors.New("amount must be > 0")
	case cfg.conflictRetries < 0:
		return cfg, errors.New("conflict-retries must be >= 0")
	case cfg.cancelRate < 0 || cfg.cancelRate > 100:
		return cfg, errors.New("cancel-rate must be between 0 and 100")
	case strings.TrimSpace(cfg.userID) == "" || strings.TrimSpace(cfg.adminID) == "":
		return cfg, errors.New("user and admin are required")
	case strings.TrimSpace(cfg.productID) == "" || strings.TrimSpace(cfg.addressID) == "":
		return cfg, errors.New("product and address are required")
	}

	return cfg, nil
}

func parseMode(value string) (loadMode, error) {
	switch loadMode(strings.TrimSpace(value)) {
	case modePlace:
		return modePlace, nil
	case modePlacePay:
		return modePlacePay, nil
	case modePlaceShip:
		return modePlaceShip, nil
	default:
		return "", fmt.Errorf("unsupported mode: %s", value)
	}
}

func main() {
	cfg, err := parseConfig(flag.CommandLine, os.Args[1:])
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "invalid config: %v\n", err)
		os.Exit(1)
	}

	client := &http.Client{
		Transport: &http.Transport{
			MaxIdleConns:        cfg.concurrency,
			MaxIdleConnsPerHost: cfg.concurrency,
			IdleConnTimeout:     30 * time.Second,
		},
	}

	result, err := runLoad(context.Background(), client, cfg)
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "load test aborted: %v\n", err)
		os.Exit(1)
	}

	printReport(os.Stdout, result, cfg)
	if cfg.outputPath != "" {
		if err := writeJSONReport(cfg.outputPath, result); err != nil {
			_, _ = fmt.Fprintf(os.Stderr, "failed to write report: %v\n", err)
			os.Exit(1)
		}
	}

	if result.FailedScenarios > 0 {
		os.Exit(1)
	}
}

// runLoad раздаёт сценарии воркерам errgroup. Ошибка сценария не останавливает прогон, она попадает в отчёт.
func runLoad(ctx context.Context, client *http.Client, cfg config) (report, error) {
	startedAt := time.Now()
	runID := fmt.Sprintf("%d-%d", startedAt.UnixNano(), os.Getpid())
	col := newCollector()
	runner := &scenarioRunner{client: client, cfg: cfg, runID: runID, col: col}

	jobs := make(chan int, cfg.concurrency*2)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		dispatchJobs(gctx, jobs, cfg)
		return nil
	})
	for i := 0; i < cfg.concurrency; i++ {
		g.Go(func() error {
			for id := range jobs {
				_ = runner.run(gctx, id)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return report{}, err
	}

	return col.buildReport(startedAt, time.Since(startedAt)), ctx.Err()
}

func dispatchJobs(ctx context.Context, jobs chan<- int, cfg config) {
	defer close(jobs)

	var deadline <-chan time.Time
	if cfg.duration > 0 {
		timer := time.NewTimer(cfg.duration)
		defer timer.Stop()
		deadline = timer.C
	}

	for i := 0; ; i++ {
		if (cfg.duration <= 0 || cfg.totalSet) && i >= cfg.total {
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-deadline:
			return
		case jobs <- i:
		}
	}
}

type scenarioRunner struct {
	client *http.Client
	cfg    config
	runID  string
	col    *collector
}

type placeOrderBody struct {
	AddressID     string     `json:"addressId"`
	PaymentMethod string     `json:"paymentMethod"`
	CartItems     []cartLine `json:"cartItems"`
}

type cartLine struct {
	ProductID string `json:"productId"`
	Color     string `json:"color"`
	Amount    int    `json:"amount"`
}

type apiError struct {
	Error struct {
		Kind    string `json:"kind"`
		Message string `json:"message"`
	} `json:"error"`
}

// callResult — итог одного HTTP-вызова: статус и kind ошибки из тела ответа.
type callResult struct {
	status int
	kind   string
	body   []byte
}

func (r callResult) code() string {
	if r.status == 0 {
		return outcomeTransport
	}
	if r.kind != "" {
		return strconv.Itoa(r.status) + " " + r.kind
	}
	return strconv.Itoa(r.status)
}

func (s *scenarioRunner) run(ctx context.Context, index int) error {
	start := time.Now()
	outcome := "ok"
	ok := true
	defer func() {
		s.col.record("scenario", time.Since(start), outcome, ok)
	}()

	orderID, placed, err := s.placeOrder(ctx, index)
	if err != nil {
		outcome, ok = "failed", false
		return err
	}
	if !placed {
		// Остаток закончился: для нагрузки на один товар это ожидаемый исход, а не сбой.
		outcome = "out_of_stock"
		s.col.recordOutOfStock()
		return nil
	}

	switch s.cfg.mode {
	case modePlacePay:
		err = s.markPaid(ctx, orderID)
	case modePlaceShip:
		if shouldCancelScenario(index, s.cfg.cancelRate) {
			err = s.updateStatus(ctx, orderID, "canceled")
			break
		}
		if err = s.updateStatus(ctx, orderID, "processing"); err == nil {
			err = s.updateStatus(ctx, orderID, "shipped")
		}
	}
	if err != nil {
		outcome, ok = "failed", false
	}
	return err
}

func (s *scenarioRunner) placeOrder(ctx context.Context, index int) (string, bool, error) {
	body, err := json.Marshal(placeOrderBody{
		AddressID:     s.cfg.addressID,
		PaymentMethod: s.cfg.paymentMethod,
		CartItems:     []cartLine{{ProductID: s.cfg.productID, Color: s.cfg.color, Amount: s.cfg.amount}},
	})
	if err != nil {
		return "", false, err
	}
	key := fmt.Sprintf("lt-place-%s-%d", s.runID, index)

	for attempt := 0; ; attempt++ {
		res, callErr := s.call(ctx, "PlaceOrder", http.MethodPost, "/orders", s.cfg.userID, "", body, key, http.StatusCreated)
		switch {
		case callErr == nil:
			var order struct {
				ID string `json:"id"`
			}
			if err := json.Unmarshal(res.body, &order); err != nil || order.ID == "" {
				return "", false, errors.New("place order response has no order id")
			}
			return order.ID, true, nil
		case res.kind == kindInsufficientStock:
			return "", false, nil
		case res.kind == kindTransactionConflict && attempt < s.cfg.conflictRetries:
			select {
			case <-ctx.Done():
				return "", false, ctx.Err()
			case <-time.After(time.Duration(attempt+1) * 20 * time.Millisecond):
			}
		default:
			return "", false, callErr
		}
	}
}

func (s *scenarioRunner) markPaid(ctx context.Context, orderID string) error {
	_, err := s.call(ctx, "MarkPaid", http.MethodPost, "/orders/"+orderID+"/pay", s.cfg.adminID, roleAdmin, nil, "", http.StatusOK)
	return err
}

func (s *scenarioRunner) updateStatus(ctx context.Context, orderID, status string) error {
	body, err := json.Marshal(map[string]string{"processStatus": status})
	if err != nil {
		return err
	}
	_, err = s.call(ctx, "UpdateStatus", http.MethodPatch, "/orders/"+orderID+"/status", s.cfg.adminID, roleAdmin, body, "", http.StatusOK)
	return err
}

func (s *scenarioRunner) call(
	ctx context.Context,
	method, httpMethod, path, userID, role string,
	body []byte,
	idempotencyKey string,
	want int,
) (callResult, error) {
	start := time.Now()
	res, err := s.do(ctx, httpMethod, path, userID, role, body, idempotencyKey)
	if err == nil && res.status != want {
		err = fmt.Errorf("%s %s: unexpected status %s", httpMethod, path, res.code())
	}
	s.col.record(method, time.Since(start), res.code(), err == nil)
	return res, err
}

func (s *scenarioRunner) do(ctx context.Context, httpMethod, path, userID, role string, body []byte, idempotencyKey string) (callResult, error) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.timeout)
	defer cancel()

	var reader io.Reader = http.NoBody
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, httpMethod, s.cfg.baseURL+basePath+path, reader)
	if err != nil {
		return callResult{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(headerUserID, userID)
	if role != "" {
		req.Header.Set(headerUserRole, role)
	}
	if idempotencyKey != "" {
		req.Header.Set(headerIdemKey, idempotencyKey)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return callResult{}, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return callResult{status: resp.StatusCode}, err
	}
	res := callResult{status: resp.StatusCode, body: raw}
	if resp.StatusCode >= http.StatusBadRequest {
		var apiErr apiError
		if json.Unmarshal(raw, &apiErr) == nil {
			res.kind = apiErr.Error.Kind
		}
	}
	return res, nil
}

func shouldCancelScenario(index, cancelRate int) bool {
	if cancelRate <= 0 {
		return false
	}
	if cancelRate >= 100 {
		return true
	}
	return index%100 < cancelRate
}

func writeJSONReport(path string, result report) error {
	cleanPath := filepath.Clean(path)
	if cleanPath == "." || cleanPath == string(filepath.Separator) {
		return errors.New("output path must point to a file")
	}
	if cleanPath == ".." || strings.HasPrefix(cleanPath, ".."+string(filepath.Separator)) {
		return fmt.Errorf("output path must be inside current directory: %s", path)
	}

	// #nosec G304 -- path is an explicit CLI output parameter for local load-test reports.
	file, err := os.Create(cleanPath)
	if err != nil {
		return err
	}
	defer file.Close()

	encoder := json.NewEncoder(file)
	encoder.SetIndent("", "  ")
	return encoder.Encode(result)
}

func printReport(out io.Writer, result report, cfg config) {
	_, _ = fmt.Fprintln(out, "Load test summary")
	_, _ = fmt.Fprintf(out, "mode=%s run=%s total=%d success=%d failed=%d out_of_stock=%d error_rate=%.4f\n",
		cfg.mode,
		runTarget(cfg),
		result.TotalScenarios,
		result.SuccessScenarios,
		result.FailedScenarios,
		result.OutOfStock,
		result.ErrorRate,
	)
	_, _ = fmt.Fprintf(out, "duration=%.2fs rps=%.2f\n", result.DurationSeconds, result.RPS)
	_, _ = fmt.Fprintf(out, "scenario latency ms: min=%.2f avg=%.2f p50=%.2f p95=%.2f p99=%.2f max=%.2f\n",
		result.ScenarioLatencyMs.Min,
		result.ScenarioLatencyMs.Avg,
		result.ScenarioLatencyMs.P50,
		result.ScenarioLatencyMs.P95,
		result.ScenarioLatencyMs.P99,
		result.ScenarioLatencyMs.Max,
	)

	methodNames := make([]string, 0, len(result.Methods))
	for name := range result.Methods {
		if name == "scenario" {
			continue
		}
		methodNames = append(methodNames, name)
	}
	sort.Strings(methodNames)
	for _, name := range methodNames {
		stats := result.Methods[name]
		_, _ = fmt.Fprintf(out,
			"%s: calls=%d success=%d failed=%d error_rate=%.4f p95=%.2fms\n",
			name,
			stats.Calls,
			stats.Success,
			stats.Failed,
			stats.ErrorRate,
			stats.LatencyMs.P95,
		)
	}
}

func runTarget(cfg config) string {
	if cfg.duration <= 0 {
		return fmt.Sprintf("count:%d", cfg.total)
	}
	if cfg.totalSet {
		return fmt.Sprintf("duration:%s,max-total:%d", cfg.duration, cfg.total)
	}
	return fmt.Sprintf("duration:%s", cfg.duration)
}

func buildLatencySummary(values []float64) latencySummary {
	if len(values) == 0 {
		return latencySummary{}
	}

	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)

	var sum float64
	for _, value := range sorted {
		sum += value
	}

	return latencySummary{
		Min: sorted[0],
		Max: sorted[len(sorted)-1],
		Avg: sum / float64(len(sorted)),
		P50: percentile(sorted, 50),
		P95: percentile(sorted, 95),
		P99: percentile(sorted, 99),
	}
}

func percentile(sorted []float64, p float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	if len(sorted) == 1 {
		return sorted[0]
	}

	rank := (p / 100.0) * float64(len(sorted)-1)
	lower := int(math.Floor(rank))
	upper := int(math.Ceil(rank))
	if lower == upper {
		return sorted[lower]
	}

	weight := rank - float64(lower)
	return sorted[lower] + (sorted[upper]-sorted[lower])*weight
}

func ratio(failed, total int64) float64 {
	if total <= 0 {
		return 0
	}
	return float64(failed) / float64(total)
}
