package loadtest

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// DefaultRequestTimeout bounds every request issued by the HTTP sampler.
const DefaultRequestTimeout = 30 * time.Second

// AuthType selects how a request is authenticated against the target.
type AuthType string

const (
	AuthNone   AuthType = "none"
	AuthJWT    AuthType = "jwt"
	AuthAPIKey AuthType = "api_key"
)

// Endpoint is one entry of an actor profile's endpoint table.
type Endpoint struct {
	Name    string            `json:"name" yaml:"name"`
	Method  string            `json:"method" yaml:"method"`
	Path    string            `json:"path" yaml:"path"`
	Headers map[string]string `json:"headers,omitempty" yaml:"headers"`
	Body    interface{}       `json:"body,omitempty" yaml:"body"`
	Weight  int               `json:"weight" yaml:"weight"`
	Auth    AuthType          `json:"auth,omitempty" yaml:"auth"`
}

// Request is what a virtual user asks the sampler to execute.
type Request struct {
	Endpoint  Endpoint
	ActorID   string
	ActorType string
	// Deadline is the actor's session deadline. Zero means none.
	Deadline time.Time
}

// Sampler issues exactly one request and reports its outcome. Implementations
// never return transport failures as errors; they are folded into the
// Measurement.
type Sampler interface {
	Sample(ctx context.Context, req Request) Measurement
}

// SamplerConfig configures the HTTP sampler.
type SamplerConfig struct {
	BaseURL   string
	Timeout   time.Duration
	MaxRPS    float64 // 0 disables the global rate cap
	JWTSecret string
	APIKey    string
	Client    *http.Client
}

// HTTPSampler implements Sampler over net/http.
type HTTPSampler struct {
	baseURL   string
	client    *http.Client
	limiter   *rate.Limiter
	jwtSecret []byte
	apiKey    string
	logger    *zap.Logger
}

// NewHTTPSampler creates a sampler for the given target.
func NewHTTPSampler(cfg SamplerConfig, logger *zap.Logger) (*HTTPSampler, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("%w: target base URL is required", ErrInvalidScenario)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultRequestTimeout
	}

	var client *http.Client
	if cfg.Client != nil {
		c := *cfg.Client
		client = &c
	} else {
		client = &http.Client{
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 100,
				IdleConnTimeout:     90 * time.Second,
			},
		}
	}
	client.Timeout = cfg.Timeout

	s := &HTTPSampler{
		baseURL:   strings.TrimRight(cfg.BaseURL, "/"),
		client:    client,
		jwtSecret: []byte(cfg.JWTSecret),
		apiKey:    cfg.APIKey,
		logger:    logger,
	}
	if cfg.MaxRPS > 0 {
		burst := int(cfg.MaxRPS)
		if burst < 1 {
			burst = 1
		}
		s.limiter = rate.NewLimiter(rate.Limit(cfg.MaxRPS), burst)
	}
	return s, nil
}

// Sample issues one request. Status codes >= 500 and transport failures are
// recorded as failures; everything below 500 counts as success. When the rate
// cap cannot grant a token before req.Deadline or ctx ends, nothing is sent
// and the returned Measurement is marked Dropped.
func (s *HTTPSampler) Sample(ctx context.Context, req Request) Measurement {
	m := Measurement{
		Endpoint:  req.Endpoint.Name,
		Method:    req.Endpoint.Method,
		ActorID:   req.ActorID,
		ActorType: req.ActorType,
	}
	if m.Method == "" {
		m.Method = http.MethodGet
	}

	if s.limiter != nil {
		if err := s.wait(ctx, req.Deadline); err != nil {
			m.Timestamp = time.Now()
			m.Dropped = true
			m.Error = fmt.Sprintf("rate limiter: %v", err)
			return m
		}
	}

	start := time.Now()
	m.Timestamp = start

	httpReq, err := s.buildRequest(ctx, req)
	if err != nil {
		m.ResponseTimeMs = elapsedMs(start)
		m.Error = err.Error()
		return m
	}

	resp, err := s.client.Do(httpReq)
	if err != nil {
		m.ResponseTimeMs = elapsedMs(start)
		m.Error = classifyTransportError(err)
		s.logger.Debug("request failed",
			zap.String("endpoint", m.Endpoint),
			zap.String("actor_id", m.ActorID),
			zap.Error(err))
		return m
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	_ = resp.Body.Close()

	m.ResponseTimeMs = elapsedMs(start)
	m.StatusCode = resp.StatusCode
	m.Success = resp.StatusCode < 500
	if !m.Success {
		m.Error = fmt.Sprintf("HTTP %d", resp.StatusCode)
	}
	return m
}

// wait blocks for a rate-limiter token, never past deadline.
func (s *HTTPSampler) wait(ctx context.Context, deadline time.Time) error {
	if !deadline.IsZero() {
		var cancel context.CancelFunc
		ctx, cancel = context.WithDeadline(ctx, deadline)
		defer cancel()
	}
	return s.limiter.Wait(ctx)
}

func (s *HTTPSampler) buildRequest(ctx context.Context, req Request) (*http.Request, error) {
	ep := req.Endpoint
	method := ep.Method
	if method == "" {
		method = http.MethodGet
	}

	var body io.Reader
	if ep.Body != nil {
		data, err := json.Marshal(ep.Body)
		if err != nil {
			return nil, fmt.Errorf("encode body: %w", err)
		}
		body = bytes.NewReader(data)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, s.baseURL+ep.Path, body)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	for k, v := range ep.Headers {
		httpReq.Header.Set(k, v)
	}
	httpReq.Header.Set("X-Actor-ID", req.ActorID)

	if err := s.authenticate(httpReq, ep.Auth, req.ActorID); err != nil {
		return nil, err
	}
	return httpReq, nil
}

// authenticate applies the endpoint's auth mode. Missing credentials leave
// the request unauthenticated so the target's own 401 is measured.
func (s *HTTPSampler) authenticate(httpReq *http.Request, auth AuthType, actorID string) error {
	switch auth {
	case AuthJWT:
		if len(s.jwtSecret) == 0 {
			return nil
		}
		now := time.Now()
		token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
			Subject:   actorID,
			Issuer:    "perfharness",
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
		})
		signed, err := token.SignedString(s.jwtSecret)
		if err != nil {
			return fmt.Errorf("sign token: %w", err)
		}
		httpReq.Header.Set("Authorization", "Bearer "+signed)
	case AuthAPIKey:
		if s.apiKey != "" {
			httpReq.Header.Set("X-API-Key", s.apiKey)
		}
	}
	return nil
}

func classifyTransportError(err error) string {
	var netErr interface{ Timeout() bool }
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.As(err, &netErr) && netErr.Timeout():
		return "timeout"
	case errors.Is(err, context.Canceled):
		return "canceled"
	default:
		return err.Error()
	}
}

func elapsedMs(start time.Time) float64 {
	return float64(time.Since(start)) / float64(time.Millisecond)
}
