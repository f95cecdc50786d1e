package location

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"templog-server/internal/modules/templog/types"
)

const DefaultIPAPIURL = "http://ip-api.com/json"

var (
	errUnexpectedStatus = errors.New("unexpected status code")
	errLookupFailed     = errors.New("lookup failed")
)

// callerGoneError marks a lookup cut short by the caller's own context. The
// breaker does not count it against the upstream.
type callerGoneError struct {
	err error
}

func (e *callerGoneError) Error() string { return e.err.Error() }
func (e *callerGoneError) Unwrap() error { return e.err }

func upstreamHealthy(err error) bool {
	var gone *callerGoneError
	return err == nil || errors.As(err, &gone)
}

// IPAPIConfig configures an IPAPIProvider.
type IPAPIConfig struct {
	URL           string
	Timeout       time.Duration
	RatePerMinute int
	// FailureThreshold consecutive failures open the circuit.
	FailureThreshold uint32
	// OpenTimeout is how long the circuit stays open before a probe is allowed.
	OpenTimeout time.Duration
	Client      *http.Client
}

// IPAPIProvider resolves the position of the host through ip-api.com. A
// lookup is attempted once. After repeated failures the circuit opens and
// lookups fail immediately until the open timeout elapses.
type IPAPIProvider struct {
	url     string
	client  *http.Client
	limiter *rate.Limiter
	circuit *gobreaker.CircuitBreaker
	logger  *slog.Logger
}

type ipapiResponse struct {
	Status  string  `json:"status"`
	Message string  `json:"message"`
	Lat     float64 `json:"lat"`
	Lon     float64 `json:"lon"`
}

func NewIPAPIProvider(cfg IPAPIConfig, logger *slog.Logger) *IPAPIProvider {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.URL == "" {
		cfg.URL = DefaultIPAPIURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.RatePerMinute <= 0 {
		cfg.RatePerMinute = 45
	}
	if cfg.FailureThreshold == 0 {
		cfg.FailureThreshold = 5
	}
	if cfg.OpenTimeout <= 0 {
		cfg.OpenTimeout = 30 * time.Second
	}
	client := cfg.Client
	if client == nil {
		client = &http.Client{Timeout: cfg.Timeout}
	}

	threshold := cfg.FailureThreshold
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "ipapi",
		MaxRequests: 1,
		Timeout:     cfg.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		IsSuccessful: upstreamHealthy,
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.Warn("location circuit state changed", "breaker", name, "from", from.String(), "to", to.String())
		},
	})

	return &IPAPIProvider{
		url:     cfg.URL,
		client:  client,
		limiter: rate.NewLimiter(rate.Every(time.Minute/time.Duration(cfg.RatePerMinute)), 1),
		circuit: cb,
		logger:  logger,
	}
}

func (p *IPAPIProvider) CurrentPosition(ctx context.Context) (types.Position, error) {
	if err := p.limiter.Wait(ctx); err != nil {
		return types.Position{}, fmt.Errorf("%w: %v", ErrLocationUnavailable, err)
	}

	result, err := p.circuit.Execute(func() (interface{}, error) {
		pos, err := p.lookup(ctx)
		if err != nil && ctx.Err() != nil {
			return nil, &callerGoneError{err: err}
		}
		return pos, err
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return types.Position{}, fmt.Errorf("%w: circuit open", ErrLocationUnavailable)
		}
		return types.Position{}, fmt.Errorf("%w: %v", ErrLocationUnavailable, err)
	}

	pos, ok := result.(types.Position)
	if !ok {
		return types.Position{}, fmt.Errorf("%w: unexpected result type", ErrLocationUnavailable)
	}
	return pos, nil
}

func (p *IPAPIProvider) lookup(ctx context.Context) (types.Position, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.url, nil)
	if err != nil {
		return types.Position{}, err
	}
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := p.client.Do(req)
	if err != nil {
		return types.Position{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return types.Position{}, fmt.Errorf("%w: %d", errUnexpectedStatus, resp.StatusCode)
	}

	var payload ipapiResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return types.Position{}, fmt.Errorf("decode response: %w", err)
	}
	if payload.Status != "success" {
		return types.Position{}, fmt.Errorf("%w: status=%q message=%q", errLookupFailed, payload.Status, payload.Message)
	}

	pos := types.Position{Latitude: payload.Lat, Longitude: payload.Lon}
	p.logger.Debug("location resolved",
		"lat", pos.Latitude,
		"long", pos.Longitude,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return pos, nil
}
