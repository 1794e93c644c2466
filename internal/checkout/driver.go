package checkout

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/torosent/checkoutrace/internal/config"
	"github.com/torosent/checkoutrace/internal/httpclient"
	"github.com/torosent/checkoutrace/internal/metrics"
	"github.com/torosent/checkoutrace/internal/runner"
	"github.com/torosent/checkoutrace/internal/tracing"
)

const (
	checkoutPath = "/checkout"
	healthPath   = "/health"

	// IdempotencyScenario tags requests sent by IdempotencyTest.
	IdempotencyScenario = "idempotency"
)

// Driver issues checkout requests and records what came back.
type Driver struct {
	baseURL             string
	productID           string
	userID              string
	expectedStock       int
	idempotencyAttempts int
	pacing              time.Duration

	client      *http.Client
	checkout    *httpclient.RequestBuilder
	idempotency *httpclient.RequestBuilder
	health      *httpclient.RequestBuilder

	recorder metrics.Recorder
	logger   *zap.Logger
	tracer   trace.Tracer
	now      func() time.Time
}

// Option customises a Driver.
type Option func(*Driver)

// WithClient replaces the HTTP client built from the config timeout.
func WithClient(c *http.Client) Option {
	return func(d *Driver) {
		if c != nil {
			d.client = c
		}
	}
}

// WithTracing starts a span per request and, when the provider asks for it,
// injects W3C trace headers.
func WithTracing(p *tracing.Provider) Option {
	return func(d *Driver) {
		d.tracer = p.Tracer()
		if p.ShouldPropagate() {
			d.checkout.WithHeaderInjector(tracing.InjectHTTPHeaders)
			d.idempotency.WithHeaderInjector(tracing.InjectHTTPHeaders)
		}
	}
}

// NewDriver builds a Driver for cfg. A nil recorder discards metrics and a
// nil logger is replaced with a no-op logger.
func NewDriver(cfg *config.Config, recorder metrics.Recorder, logger *zap.Logger, opts ...Option) (*Driver, error) {
	if cfg == nil {
		return nil, errors.New("config cannot be nil")
	}
	if recorder == nil {
		recorder = metrics.Discard
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")

	checkoutBuilder, err := httpclient.NewJSONRequestBuilder(http.MethodPost, baseURL+checkoutPath, Request{
		UserID:    cfg.UserID,
		ProductID: cfg.ProductID,
		Quantity:  cfg.Quantity,
	})
	if err != nil {
		return nil, fmt.Errorf("checkout request: %w", err)
	}
	idempotencyBuilder, err := httpclient.NewJSONRequestBuilder(http.MethodPost, baseURL+checkoutPath, Request{
		UserID:    cfg.UserID,
		ProductID: cfg.ProductID,
		Quantity:  cfg.IdempotencyQuantity,
	})
	if err != nil {
		return nil, fmt.Errorf("idempotency request: %w", err)
	}
	healthBuilder, err := httpclient.NewRequestBuilder(http.MethodGet, baseURL+healthPath, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("health request: %w", err)
	}

	d := &Driver{
		baseURL:             baseURL,
		productID:           cfg.ProductID,
		userID:              cfg.UserID,
		expectedStock:       cfg.ExpectedStock,
		idempotencyAttempts: cfg.IdempotencyAttempts,
		pacing:              cfg.Pacing,
		client:              httpclient.NewClient(cfg.Timeout),
		checkout:            checkoutBuilder,
		idempotency:         idempotencyBuilder,
		health:              healthBuilder,
		recorder:            recorder,
		logger:              logger,
		tracer:              (*tracing.Provider)(nil).Tracer(),
		now:                 time.Now,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d, nil
}

// Do runs one checkout iteration so a Driver can be handed to the runner.
func (d *Driver) Do(ctx context.Context) error {
	return d.ExecuteCheckout(ctx)
}

// response is what one HTTP exchange produced. Status is 0 when err is set.
type response struct {
	status  int
	body    []byte
	latency time.Duration
	err     error
}

func (d *Driver) send(ctx context.Context, builder *httpclient.RequestBuilder) response {
	req, err := builder.Build(ctx)
	if err != nil {
		return response{err: err}
	}

	start := time.Now()
	resp, err := d.client.Do(req)
	if err != nil {
		return response{latency: time.Since(start), err: err}
	}
	body, readErr := httpclient.ReadBody(resp)
	// Latency covers the full body so it matches what the server spent.
	latency := time.Since(start)
	if readErr != nil {
		d.logger.Debug("response body truncated", zap.Int("status", resp.StatusCode), zap.Error(readErr))
	}
	return response{status: resp.StatusCode, body: body, latency: latency}
}

// ExecuteCheckout sends one checkout, records the request, the checks and the
// outcome rates, logs the outcome line and then pauses for the pacing
// interval. It returns an error only for unexpected failures.
func (d *Driver) ExecuteCheckout(ctx context.Context) error {
	scenario := runner.ScenarioFromContext(ctx)

	spanCtx, span := tracing.StartRequestSpan(ctx, d.tracer, http.MethodPost, checkoutPath, scenario)
	res := d.send(spanCtx, d.checkout)

	// A request cut short by the run stopping says nothing about the service.
	if res.err != nil && ctx.Err() != nil {
		tracing.EndSpan(span, ctx.Err())
		return ctx.Err()
	}

	d.recorder.RecordRequest(res.latency, res.err, &metrics.RequestMetadata{
		Scenario:   scenario,
		StatusCode: res.status,
	})
	for _, check := range EvaluateChecks(res.status, res.latency, res.body) {
		d.recorder.RecordCheck(scenario, check.Name, check.Pass)
	}

	cls := Classify(res.status, res.body)
	d.recordOutcome(scenario, cls.Outcome)
	d.logOutcome(scenario, res, cls)

	var iterErr error
	if cls.Outcome == OutcomeUnexpectedFailure {
		iterErr = res.err
		if iterErr == nil {
			iterErr = &runner.HTTPError{StatusCode: res.status, Body: string(res.body)}
		}
	}
	tracing.EndSpan(span, iterErr, tracing.ResponseAttributes(res.status, string(cls.Outcome))...)

	pause(ctx, d.pacing)
	return iterErr
}

// recordOutcome adds one true sample to the rate matching outcome. The other
// rates are left untouched, so a rate only ever holds true samples and a bad
// request leaves all three unchanged.
func (d *Driver) recordOutcome(scenario string, outcome Outcome) {
	if name := rateFor(outcome); name != "" {
		d.recorder.AddRate(scenario, name, true)
	}
}

func (d *Driver) logOutcome(scenario string, res response, cls Classification) {
	log := d.logger.With(zap.String("scenario", scenario))
	switch cls.Outcome {
	case OutcomeSuccess:
		if cls.Duplicate {
			log.Info(fmt.Sprintf("Duplicate order detected: %s", cls.OrderID))
		}
	case OutcomeStockExhausted:
		log.Info("Stock exhausted - this is expected")
	case OutcomeBadRequest:
		if cls.ValidJSON {
			log.Warn(fmt.Sprintf("Bad request: %s", cls.Error))
		} else {
			log.Warn(fmt.Sprintf("Bad request with unparseable body: %s", res.body))
		}
	case OutcomeUnexpectedFailure:
		fields := []zap.Field{}
		if res.err != nil {
			fields = append(fields, zap.Error(res.err))
		}
		log.Warn(fmt.Sprintf("Potential race condition failure - Status: %d, Body: %s", res.status, res.body), fields...)
	}
}

// Setup logs the run banner and probes GET /health. A failed probe is only
// a warning.
func (d *Driver) Setup(ctx context.Context) RunContext {
	lines := []string{
		"=== CHECKOUTRACE: CHECKOUT RACE CONDITION TEST ===",
		fmt.Sprintf("Testing endpoint: %s%s", d.baseURL, checkoutPath),
		fmt.Sprintf("Product ID: %s", d.productID),
		fmt.Sprintf("User ID: %s", d.userID),
		fmt.Sprintf("Expected initial stock: %d", d.expectedStock),
		"",
		"This test will:",
		"1. Send concurrent checkout requests",
		"2. Try to expose race conditions in stock checking",
		"3. Measure how many requests succeed vs fail",
		"4. Show duplicate order handling",
		"",
		"Expected behavior with race conditions:",
		"- More orders created than available stock",
		"- Database constraint violations",
		"- Inconsistent stock levels",
		"=====================================",
	}
	d.banner(lines)

	res := d.send(ctx, d.health)
	if res.status != http.StatusOK {
		fields := []zap.Field{}
		if res.err != nil {
			fields = append(fields, zap.Error(res.err))
		}
		d.logger.Warn(fmt.Sprintf("Warning: Health check failed. Status: %d", res.status), fields...)
	}

	return RunContext{StartTime: d.now()}
}

// Teardown logs the completion banner, the elapsed time and the SQL queries
// that verify the run against the database. The queries are never executed.
func (d *Driver) Teardown(rc RunContext) {
	elapsed := d.now().Sub(rc.StartTime)
	lines := []string{
		"",
		"=== TEST COMPLETED ===",
		fmt.Sprintf("Test duration: %gs", float64(elapsed.Milliseconds())/1000),
		"",
		"ANALYSIS TIPS:",
		"1. Check your database - count actual orders created",
		"2. Verify final stock level vs expected",
		"3. Look for database errors in server logs",
		"4. Race conditions will show as:",
		"   - More orders than initial stock",
		"   - Negative stock values",
		"   - Database constraint violations",
		"",
		"SQL to check results:",
	}
	lines = append(lines, VerificationQueries(d.productID)...)
	lines = append(lines, "======================")
	d.banner(lines)
}

// VerificationQueries returns the advisory SQL for a product.
func VerificationQueries(productID string) []string {
	return []string{
		fmt.Sprintf("SELECT COUNT(*) as total_orders FROM orders WHERE product_id = '%s';", productID),
		fmt.Sprintf("SELECT stock FROM products WHERE id = '%s';", productID),
	}
}

// IdempotencyTest sends the same checkout back to back and logs each status.
// A status of 0 means the request never got a response.
func (d *Driver) IdempotencyTest(ctx context.Context) []int {
	statuses := make([]int, 0, d.idempotencyAttempts)
	for i := 1; i <= d.idempotencyAttempts; i++ {
		if ctx.Err() != nil {
			break
		}
		spanCtx, span := tracing.StartRequestSpan(ctx, d.tracer, http.MethodPost, checkoutPath, IdempotencyScenario)
		res := d.send(spanCtx, d.idempotency)
		tracing.EndSpan(span, res.err, tracing.ResponseAttributes(res.status, string(Classify(res.status, res.body).Outcome))...)

		d.recorder.RecordRequest(res.latency, res.err, &metrics.RequestMetadata{
			Scenario:   IdempotencyScenario,
			StatusCode: res.status,
		})

		fields := []zap.Field{}
		if res.err != nil {
			fields = append(fields, zap.Error(res.err))
		}
		d.logger.Info(fmt.Sprintf("Idempotency test %d: Status %d", i, res.status), fields...)
		statuses = append(statuses, res.status)
	}
	return statuses
}

func (d *Driver) banner(lines []string) {
	for _, line := range lines {
		d.logger.Info(line)
	}
}

func pause(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
