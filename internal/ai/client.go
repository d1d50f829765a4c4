package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/nutriscan/nutriscan/internal/domain/assessment"
)

var (
	// ErrUnavailable covers exhausted retries against the prediction service.
	ErrUnavailable = errors.New("prediction service unavailable")
	// ErrUnusableResponse covers a reachable service whose output carried no
	// usable structured or narrative fields.
	ErrUnusableResponse = errors.New("prediction response unusable")
)

type Config struct {
	BaseURL       string
	Timeout       time.Duration // per-attempt bound, default 30s
	MaxAttempts   int           // default 3
	RetryDelay    time.Duration // linear: delay before attempt n+1 is RetryDelay*n
	HealthTimeout time.Duration // default 5s
}

// Observer receives prediction call outcomes for metrics. May be nil.
type Observer interface {
	ObserveAI(result string, seconds float64)
}

// Client calls the external prediction service, tolerating it being slow,
// down, or returning odd shapes. It never blocks past its configured timeout
// budget and the fallback path never fails.
type Client struct {
	cfg  Config
	http *http.Client
	log  *slog.Logger
	obs  Observer
}

func NewClient(cfg Config, log *slog.Logger, obs Observer) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}

	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}

	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = 2 * time.Second
	}

	if cfg.HealthTimeout <= 0 {
		cfg.HealthTimeout = 5 * time.Second
	}

	if log == nil {
		log = slog.Default()
	}

	return &Client{
		cfg: cfg,
		// per-attempt deadlines come from the request context
		http: &http.Client{},
		log:  log,
		obs:  obs,
	}
}

// BuildPayload flattens the intake fields into the numeric payload the
// prediction service expects. The caller must pass an assessment whose lab
// values are already decrypted; a record read back in the same request as a
// save may still hold ciphertext.
func BuildPayload(a *assessment.Assessment) map[string]float64 {
	payload := make(map[string]float64, 18)

	put := func(key string, v *int) {
		if v != nil {
			payload[key] = float64(*v)
		}
	}

	putLab := func(key string, v *assessment.LabValue) {
		if v != nil && v.Raw == "" {
			payload[key] = v.Value
		}
	}

	put("fatigue", a.Fatigue)
	put("hair_loss", a.HairLoss)
	put("acidity", a.Acidity)
	put("dizziness", a.Dizziness)
	put("muscle_pain", a.MusclePain)
	put("numbness", a.Numbness)
	put("vegetarian", a.Vegetarian)
	put("smoking", a.Smoking)
	put("alcohol", a.Alcohol)
	put("iron_food_freq", a.IronFoodFreq)
	put("dairy_freq", a.DairyFreq)
	put("junk_food_freq", a.JunkFoodFreq)
	put("sunlight_min", a.SunlightMin)

	putLab("hemoglobin", a.Hemoglobin)
	putLab("ferritin", a.Ferritin)
	putLab("vitamin_b12", a.VitaminB12)
	putLab("vitamin_d", a.VitaminD)
	putLab("calcium", a.Calcium)

	return payload
}

// Predict calls the upstream model and returns its analysis. It retries
// transient failures (timeout, network, 5xx) with linearly increasing
// backoff and gives up on anything the service explicitly rejected (4xx).
// Used by the explicit re-analyze path, which surfaces failures.
func (c *Client) Predict(ctx context.Context, a *assessment.Assessment) (*assessment.Analysis, error) {
	start := time.Now()

	an, err := c.predict(ctx, a)

	if c.obs != nil {
		result := "ok"

		if err != nil {
			result = "error"
		}

		c.obs.ObserveAI(result, time.Since(start).Seconds())
	}

	return an, err
}

// AnalyzeWithFallback is the create-path entry point: it degrades to the
// local rule-based estimate instead of surfacing an error, so assessment
// creation can never fail on the AI step.
func (c *Client) AnalyzeWithFallback(ctx context.Context, a *assessment.Assessment) *assessment.Analysis {
	start := time.Now()

	an, err := c.predict(ctx, a)

	if err == nil {
		if c.obs != nil {
			c.obs.ObserveAI("ok", time.Since(start).Seconds())
		}

		return an
	}

	c.log.Warn("prediction failed, using rule-based fallback", "err", err)

	if c.obs != nil {
		c.obs.ObserveAI("fallback", time.Since(start).Seconds())
	}

	return Fallback(a, err.Error())
}

func (c *Client) predict(ctx context.Context, a *assessment.Assessment) (*assessment.Analysis, error) {
	body, err := json.Marshal(BuildPayload(a))

	if err != nil {
		return nil, err
	}

	var lastErr error

	for attempt := 1; attempt <= c.cfg.MaxAttempts; attempt++ {
		if attempt > 1 {
			// linear backoff: retryDelay * previous attempt number
			delay := c.cfg.RetryDelay * time.Duration(attempt-1)

			select {
			case <-ctx.Done():
				return nil, fmt.Errorf("%w: %v", ErrUnavailable, ctx.Err())
			case <-time.After(delay):
			}
		}

		an, retryable, err := c.attempt(ctx, body)

		if err == nil {
			return an, nil
		}

		if !retryable {
			return nil, err
		}

		lastErr = err
		c.log.Debug("prediction attempt failed", "attempt", attempt, "err", err)
	}

	return nil, fmt.Errorf("%w: %v", ErrUnavailable, lastErr)
}

func (c *Client) attempt(ctx context.Context, body []byte) (an *assessment.Analysis, retryable bool, err error) {
	actx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(actx, http.MethodPost, c.predictURL(), bytes.NewReader(body))

	if err != nil {
		return nil, false, err
	}

	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)

	if err != nil {
		return nil, isTransient(err), err
	}

	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))

	if err != nil {
		return nil, true, err
	}

	if resp.StatusCode >= 500 {
		return nil, true, fmt.Errorf("prediction service returned %d", resp.StatusCode)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		// the service rejected the payload; retrying the same body is useless
		return nil, false, fmt.Errorf("prediction service rejected request with %d", resp.StatusCode)
	}

	obj, err := normalizeResponse(data)

	if err != nil {
		return nil, false, err
	}

	an, ok := extractAnalysis(obj)

	if !ok {
		return nil, false, ErrUnusableResponse
	}

	return an, false, nil
}

// predictURL appends the /predict suffix unless the configured base URL
// already carries it.
func (c *Client) predictURL() string {
	base := strings.TrimRight(c.cfg.BaseURL, "/")

	if strings.HasSuffix(base, "/predict") {
		return base
	}

	return base + "/predict"
}

func (c *Client) healthURL() string {
	base := strings.TrimRight(c.cfg.BaseURL, "/")
	base = strings.TrimSuffix(base, "/predict")

	return base + "/health"
}

func isTransient(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var netErr net.Error

	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	msg := err.Error()

	return strings.Contains(msg, "connection refused") ||
		strings.Contains(msg, "connection reset") ||
		strings.Contains(msg, "network is unreachable") ||
		strings.Contains(msg, "no such host") ||
		strings.Contains(msg, "EOF")
}

// Status is the upstream availability report.
type Status struct {
	Available bool   `json:"available"`
	Status    string `json:"status"`
	LatencyMS int64  `json:"latencyMs"`
}

// Health probes the service's /health path with its own short timeout. It
// never returns an error: an unreachable upstream is itself a valid answer.
// The public warm-up endpoint calls this fire-and-forget to wake a cold
// service.
func (c *Client) Health(ctx context.Context) Status {
	hctx, cancel := context.WithTimeout(ctx, c.cfg.HealthTimeout)
	defer cancel()

	start := time.Now()

	req, err := http.NewRequestWithContext(hctx, http.MethodGet, c.healthURL(), nil)

	if err != nil {
		return Status{Available: false, Status: "error"}
	}

	resp, err := c.http.Do(req)

	if err != nil {
		return Status{Available: false, Status: "unreachable", LatencyMS: time.Since(start).Milliseconds()}
	}

	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	st := Status{LatencyMS: time.Since(start).Milliseconds()}

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		st.Available = true
		st.Status = "ok"
	} else {
		st.Status = fmt.Sprintf("http_%d", resp.StatusCode)
	}

	return st
}
