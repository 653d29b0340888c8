package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/tidwall/gjson"
	"go.uber.org/zap"

	appErrors "github.com/unclebandit/campaign-dispatch/internal/errors"
	"github.com/unclebandit/campaign-dispatch/internal/logger"
)

// maxAttempts bounds sends per request: one retry, only for retryable provider errors.
const maxAttempts = 2

const maxResponseBytes = 1 << 20

type ClientConfig struct {
	BaseURL       string
	APIVersion    string
	PhoneNumberID string
	AccessToken   string
	Timeout       time.Duration
	RetryDelay    time.Duration
}

// Client is the stateless HTTP boundary to the messaging provider.
type Client struct {
	http       *http.Client
	endpoint   string
	token      string
	retryDelay time.Duration
	log        *logger.Logger
}

func NewClient(cfg ClientConfig, httpClient *http.Client, log *logger.Logger) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}
	if log == nil {
		log = logger.Nop()
	}
	base := strings.TrimRight(cfg.BaseURL, "/")
	return &Client{
		http:       httpClient,
		endpoint:   fmt.Sprintf("%s/%s/%s/messages", base, cfg.APIVersion, cfg.PhoneNumberID),
		token:      cfg.AccessToken,
		retryDelay: cfg.RetryDelay,
		log:        log,
	}
}

func (c *Client) SendTemplate(ctx context.Context, req TemplateRequest) (*SendResult, error) {
	return c.send(ctx, templateMessage(req))
}

func (c *Client) SendText(ctx context.Context, req TextRequest) (*SendResult, error) {
	return c.send(ctx, textMessage(req))
}

func (c *Client) send(ctx context.Context, payload *messagePayload) (*SendResult, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode message: %w", err)
	}

	for attempt := 1; ; attempt++ {
		res, err := c.do(ctx, body)
		if err == nil {
			return res, nil
		}
		pe, ok := appErrors.AsProviderError(err)
		if !ok || !pe.Retryable() || attempt >= maxAttempts {
			return nil, err
		}

		c.log.Debug("provider send retry scheduled",
			zap.String("to", payload.To), zap.Int("code", pe.Code), zap.String("kind", pe.Kind.Name),
			zap.Int("attempt", attempt+1), zap.Duration("delay", c.retryDelay))
		if err := sleep(ctx, c.retryDelay); err != nil {
			return nil, err
		}
	}
}

func (c *Client) do(ctx context.Context, body []byte) (*SendResult, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("provider request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("read provider response: %w", err)
	}
	return parseResponse(resp.StatusCode, raw)
}

// parseResponse turns a provider reply into message ids or a classified *ProviderError.
func parseResponse(status int, raw []byte) (*SendResult, error) {
	if !gjson.ValidBytes(raw) {
		if status >= 200 && status < 300 {
			return nil, fmt.Errorf("provider returned invalid JSON with status %d", status)
		}
		return nil, appErrors.NewProviderError(status, 0, 0, "", strings.TrimSpace(truncate(string(raw), 200)), "")
	}

	doc := gjson.ParseBytes(raw)
	if e := doc.Get("error"); e.Exists() {
		return nil, appErrors.NewProviderError(
			status,
			int(e.Get("code").Int()),
			int(e.Get("error_subcode").Int()),
			e.Get("type").String(),
			e.Get("message").String(),
			e.Get("fbtrace_id").String(),
		)
	}
	if status < 200 || status >= 300 {
		return nil, appErrors.NewProviderError(status, 0, 0, "", http.StatusText(status), "")
	}

	var ids []string
	doc.Get("messages.#.id").ForEach(func(_, v gjson.Result) bool {
		if id := v.String(); id != "" {
			ids = append(ids, id)
		}
		return true
	})
	if len(ids) == 0 {
		return nil, fmt.Errorf("provider response without message ids")
	}
	return &SendResult{MessageIDs: ids}, nil
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

var _ Sender = (*Client)(nil)
