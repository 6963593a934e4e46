// Package transport is the HTTP boundary towards the remote user API. Every
// failure leaving this package is a *domain.GatewayError.
package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/simp-lee/userdir/internal/domain"
)

// DefaultTimeout applies when Config.Timeout is zero.
const DefaultTimeout = 10 * time.Second

// Transport fetches a resource relative to the API base URL and decodes the
// JSON body into out. It returns the HTTP status code alongside the error.
type Transport interface {
	Get(ctx context.Context, path string, out any) (int, error)
}

// Config configures the HTTP client.
type Config struct {
	BaseURL string
	Timeout time.Duration
	Logger  *slog.Logger
}

// Client implements Transport on top of resty.
type Client struct {
	rc *resty.Client
}

var _ Transport = (*Client)(nil)

// NewClient creates a Client that sends JSON requests to cfg.BaseURL.
func NewClient(cfg Config) *Client {
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	rc := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetTimeout(timeout).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json").
		SetLogger(restyLogger{log: log.With(slog.String("component", "transport"))})

	return &Client{rc: rc}
}

// Get implements Transport.
func (c *Client) Get(ctx context.Context, path string, out any) (int, error) {
	resp, err := c.rc.R().SetContext(ctx).Get(path)
	if err != nil {
		return 0, normalizeTransportError(err)
	}

	status := resp.StatusCode()
	if status < http.StatusOK || status >= http.StatusMultipleChoices {
		return status, normalizeStatusError(status, resp.Body())
	}

	if err := json.Unmarshal(resp.Body(), out); err != nil {
		return status, domain.NewGatewayError("", status, domain.GatewayCodeDecode,
			fmt.Errorf("decode response: %w", err))
	}
	return status, nil
}

// errorBody is the optional error payload a server may send with a non-2xx status.
type errorBody struct {
	Message string `json:"message"`
}

func normalizeStatusError(status int, body []byte) *domain.GatewayError {
	var eb errorBody
	// Non-JSON bodies simply carry no server message.
	_ = json.Unmarshal(body, &eb)

	code := domain.GatewayCodeBadResponse
	if status >= 400 && status < 500 {
		code = domain.GatewayCodeBadRequest
	}
	return domain.NewGatewayError(eb.Message, status, code,
		fmt.Errorf("request failed with status code %d", status))
}

func normalizeTransportError(err error) *domain.GatewayError {
	code := domain.GatewayCodeNetwork
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		code = domain.GatewayCodeTimeout
	}
	return domain.NewGatewayError("", 0, code, err)
}

// restyLogger routes resty's printf-style logging into slog.
type restyLogger struct {
	log *slog.Logger
}

func (l restyLogger) Errorf(format string, v ...any) {
	l.log.Error(fmt.Sprintf(format, v...))
}

func (l restyLogger) Warnf(format string, v ...any) {
	l.log.Warn(fmt.Sprintf(format, v...))
}

func (l restyLogger) Debugf(format string, v ...any) {
	l.log.Debug(fmt.Sprintf(format, v...))
}
