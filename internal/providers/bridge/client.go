package bridge

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/bytedance/sonic"
	"github.com/go-resty/resty/v2"
	"github.com/hashicorp/go-retryablehttp"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/GriffinCanCode/membrane/internal/infrastructure/tracing"
)

// ErrRemote is returned when the bridge endpoint reports a failure
var ErrRemote = errors.New("bridge endpoint error")

// Config defines how the HTTP bridge reaches its endpoint
type Config struct {
	BaseURL    string
	Timeout    time.Duration
	MaxRetries int
	RetryWait  time.Duration // Minimum wait between retries
	RateLimit  float64       // Requests per second, 0 for unlimited
	Token      string        // Bearer token sent with every request
}

// DefaultConfig returns the defaults for baseURL
func DefaultConfig(baseURL string) Config {
	return Config{
		BaseURL:    baseURL,
		Timeout:    10 * time.Second,
		MaxRetries: 3,
		RetryWait:  200 * time.Millisecond,
	}
}

// Client forwards guest bridge calls to an HTTP endpoint.
//
//	POST {base}/call/{method}   {"args": [...]}  -> {"result": ..., "error": ""}
//	POST {base}/events/{event}  {"data": ...}    -> 2xx
type Client struct {
	resty   *resty.Client
	limiter *rate.Limiter
	logger  *zap.Logger
}

type callRequest struct {
	Args []interface{} `json:"args"`
}

type callResponse struct {
	Result interface{} `json:"result"`
	Error  string      `json:"error,omitempty"`
}

type emitRequest struct {
	Data interface{} `json:"data"`
}

// New creates an HTTP bridge client
func New(cfg Config, logger *zap.Logger) (*Client, error) {
	if _, err := url.ParseRequestURI(cfg.BaseURL); err != nil {
		return nil, fmt.Errorf("invalid bridge url %q: %w", cfg.BaseURL, err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("bridge")

	retryClient := retryablehttp.NewClient()
	retryClient.RetryMax = cfg.MaxRetries
	retryClient.RetryWaitMin = cfg.RetryWait
	retryClient.RetryWaitMax = 10 * cfg.RetryWait
	retryClient.Logger = retryLogger{logger.Sugar()}

	restyClient := resty.NewWithClient(retryClient.StandardClient()).
		SetBaseURL(cfg.BaseURL).
		SetTimeout(cfg.Timeout).
		SetHeader("User-Agent", "membrane-bridge/1.0").
		SetJSONMarshaler(sonic.Marshal).
		SetJSONUnmarshaler(sonic.Unmarshal)
	if cfg.Token != "" {
		restyClient.SetAuthToken(cfg.Token)
	}

	limiter := rate.NewLimiter(rate.Inf, 0)
	if cfg.RateLimit > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), max(1, int(cfg.RateLimit)))
	}

	return &Client{resty: restyClient, limiter: limiter, logger: logger}, nil
}

// Call invokes method on the endpoint and returns its result
func (c *Client) Call(ctx context.Context, method string, args ...interface{}) (interface{}, error) {
	if args == nil {
		args = []interface{}{}
	}
	var out callResponse
	resp, err := c.post(ctx, "/call/{name}", method, callRequest{Args: args}, &out)
	if err != nil {
		return nil, err
	}
	if out.Error != "" {
		return nil, fmt.Errorf("%w: %s: %s", ErrRemote, method, out.Error)
	}
	c.logger.Debug("bridge call", zap.String("method", method), zap.Duration("took", resp.Time()))
	return out.Result, nil
}

// Emit delivers event to the endpoint
func (c *Client) Emit(ctx context.Context, event string, data interface{}) error {
	_, err := c.post(ctx, "/events/{name}", event, emitRequest{Data: data}, nil)
	return err
}

func (c *Client) post(ctx context.Context, path, name string, body, result interface{}) (*resty.Response, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit error: %w", err)
	}

	req := c.resty.R().
		SetContext(ctx).
		SetPathParam("name", name).
		SetBody(body)
	if result != nil {
		req.SetResult(result)
	}
	tracing.Inject(ctx, req.Header)

	resp, err := req.Post(path)
	if err != nil {
		return nil, fmt.Errorf("bridge %s: %w", name, err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("%w: %s: status %d", ErrRemote, name, resp.StatusCode())
	}
	return resp, nil
}

// retryLogger adapts zap to retryablehttp's leveled logger
type retryLogger struct {
	s *zap.SugaredLogger
}

func (l retryLogger) Error(msg string, kv ...interface{}) { l.s.Errorw(msg, kv...) }
func (l retryLogger) Info(msg string, kv ...interface{})  { l.s.Debugw(msg, kv...) }
func (l retryLogger) Debug(msg string, kv ...interface{}) { l.s.Debugw(msg, kv...) }
func (l retryLogger) Warn(msg string, kv ...interface{})  { l.s.Warnw(msg, kv...) }
