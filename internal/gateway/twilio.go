package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/Jeelislive/Unified-Inbox-for-Multi-Channel-Customer/internal/domain"
	"github.com/aniladanir/retry"
	"github.com/google/uuid"
)

const DefaultBaseURL = "https://api.twilio.com"

// SendRequest is one outbound message in domain form. Addresses are bare
// E.164 numbers; the client applies the wire tag.
type SendRequest struct {
	Channel     domain.Channel
	From        string
	To          string
	Body        string
	Credentials domain.Credentials
}

// Client transmits messages through the gateway.
type Client interface {
	Send(ctx context.Context, req SendRequest) (externalID string, err error)
}

type Config struct {
	BaseURL  string
	Timeout  time.Duration
	MaxRetry *int
}

type twilioClient struct {
	baseURL    string
	httpClient *http.Client
	retrier    *retry.Retrier
	logger     *slog.Logger
}

// NewTwilioClient creates a client for the Twilio-compatible messages API
func NewTwilioClient(cfg Config, logger *slog.Logger) (Client, error) {
	// initialize retrier
	retrierOpts := make([]retry.Option, 0)
	if cfg.MaxRetry != nil {
		retrierOpts = append(retrierOpts, retry.WithMaxAttemps(*cfg.MaxRetry))
	}
	retrier, err := retry.New(retrierOpts...)
	if err != nil {
		return nil, fmt.Errorf("encountered error when initializing retrier: %w", err)
	}

	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &twilioClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: timeout,
		},
		retrier: retrier,
		logger:  logger,
	}, nil
}

type messageResponse struct {
	Sid    string `json:"sid"`
	Status string `json:"status"`
}

type errorResponse struct {
	Code     int    `json:"code"`
	Message  string `json:"message"`
	MoreInfo string `json:"more_info"`
	Status   int    `json:"status"`
}

// Send posts the message and returns the gateway's message sid
func (c *twilioClient) Send(ctx context.Context, req SendRequest) (string, error) {
	if req.Credentials.AccountID == "" || req.Credentials.AuthToken == "" {
		return "", &domain.GatewaySendError{Channel: req.Channel, Err: errors.New("missing gateway credentials")}
	}

	form := url.Values{}
	form.Set("From", FormatAddress(req.Channel, req.From))
	form.Set("To", FormatAddress(req.Channel, req.To))
	form.Set("Body", req.Body)

	// the retrier may hand back control while an attempt is still unwinding
	var (
		mu      sync.Mutex
		sid     string
		lastErr error
	)
	retryFunc := func(attempt int) (terminate bool) {
		retryLogger := c.logger.With(slog.Int("attempt", attempt), slog.String("channel", req.Channel.String()))

		id, err := c.doSendRequest(ctx, req, form)

		mu.Lock()
		defer mu.Unlock()
		if err == nil {
			sid = id
			return true
		}

		lastErr = err
		var sendErr *domain.GatewaySendError
		if errors.As(err, &sendErr) && sendErr.Retryable() && ctx.Err() == nil {
			retryLogger.Warn("gateway send failed, retrying", "error", err.Error())
			return false
		}

		retryLogger.Error("gateway send failed", "error", err.Error())
		return true
	}

	<-c.retrier.Retry(ctx, retryFunc, true)

	mu.Lock()
	defer mu.Unlock()

	if sid != "" {
		return sid, nil
	}
	if lastErr != nil {
		return "", lastErr
	}

	// retrier gave up before the first attempt
	cause := ctx.Err()
	if cause == nil {
		cause = errors.New("no send attempt made")
	}
	return "", &domain.GatewaySendError{Channel: req.Channel, Err: cause}
}

func (c *twilioClient) doSendRequest(ctx context.Context, req SendRequest, form url.Values) (string, error) {
	endpoint := fmt.Sprintf("%s/2010-04-01/Accounts/%s/Messages.json", c.baseURL, url.PathEscape(req.Credentials.AccountID))

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return "", &domain.GatewaySendError{Channel: req.Channel, Err: err}
	}
	httpReq.SetBasicAuth(req.Credentials.AccountID, req.Credentials.AuthToken)
	httpReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("X-Request-ID", uuid.NewString())

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", &domain.GatewaySendError{Channel: req.Channel, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", &domain.GatewaySendError{Channel: req.Channel, StatusCode: resp.StatusCode, Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var apiErr errorResponse
		if err := json.Unmarshal(body, &apiErr); err != nil || apiErr.Message == "" {
			return "", &domain.GatewaySendError{
				Channel:    req.Channel,
				StatusCode: resp.StatusCode,
				Err:        fmt.Errorf("unexpected status code: %d body=%q", resp.StatusCode, string(body)),
			}
		}
		return "", &domain.GatewaySendError{
			Channel:    req.Channel,
			StatusCode: resp.StatusCode,
			Code:       apiErr.Code,
			Err:        errors.New(apiErr.Message),
		}
	}

	var result messageResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return "", &domain.GatewaySendError{
			Channel:    req.Channel,
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("failed to decode json: %w body=%q", err, string(body)),
		}
	}
	if result.Sid == "" {
		return "", &domain.GatewaySendError{
			Channel:    req.Channel,
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("missing sid in response body=%q", string(body)),
		}
	}

	return result.Sid, nil
}
