package meta

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/inmobium/crm-messaging/pkg/logger"
	"github.com/inmobium/crm-messaging/pkg/prom"
	"github.com/valyala/fasthttp"
)

// Client is the outbound side of the WhatsApp Business Platform. The real
// implementation wraps the Graph API; tests provide a deterministic fake.
type Client interface {
	SendText(ctx context.Context, phoneNumberID, to, body string) (*SendResult, error)
	SendTemplate(ctx context.Context, phoneNumberID, to, name, language string) (*SendResult, error)
}

type SendResult struct {
	ProviderID string
}

// ErrorKind buckets provider failures into the retry policy the reply flow
// follows: transient errors fail the attempt, out-of-session errors trigger
// the template fallback, permanent errors fail without retry.
type ErrorKind int

const (
	KindTransient ErrorKind = iota
	KindOutOfSession
	KindPermanent
)

// Graph error codes that mean the free-form send was rejected because no
// 24-hour customer-service window is open.
var outOfSessionCodes = map[int]bool{
	131047: true, // re-engagement message required
	131026: true, // message undeliverable / no session
	131051: true, // unsupported message type outside session
	470:    true, // legacy: message sent outside allowed window
}

// APIError is a structured Graph API rejection.
type APIError struct {
	StatusCode int
	Code       int
	Subcode    int
	Type       string
	Message    string
	Details    string
	Raw        json.RawMessage
}

func (e *APIError) Error() string {
	return fmt.Sprintf("graph api error: status=%d code=%d message=%s", e.StatusCode, e.Code, e.Message)
}

// Classify maps a send error onto the retry policy. Anything that is not a
// structured Graph rejection (timeouts, connection resets, 5xx) is
// transient.
func Classify(err error) ErrorKind {
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		return KindTransient
	}
	if apiErr.StatusCode >= 500 {
		return KindTransient
	}
	if outOfSessionCodes[apiErr.Code] {
		return KindOutOfSession
	}
	return KindPermanent
}

type ClientConfig struct {
	BaseURL     string // default https://graph.facebook.com
	APIVersion  string // default v20.0
	AccessToken string
	Timeout     time.Duration // default 30s
	MaxConns    int
}

type HTTPClient struct {
	config ClientConfig
	client *fasthttp.Client
}

func NewHTTPClient(config ClientConfig) *HTTPClient {
	if config.BaseURL == "" {
		config.BaseURL = "https://graph.facebook.com"
	}
	if config.APIVersion == "" {
		config.APIVersion = "v20.0"
	}
	if config.Timeout <= 0 {
		config.Timeout = 30 * time.Second
	}
	if config.MaxConns <= 0 {
		config.MaxConns = 64
	}

	return &HTTPClient{
		config: config,
		client: &fasthttp.Client{
			MaxConnsPerHost:     config.MaxConns,
			ReadTimeout:         config.Timeout,
			WriteTimeout:        config.Timeout,
			MaxIdleConnDuration: 60 * time.Second,
		},
	}
}

func (c *HTTPClient) SendText(ctx context.Context, phoneNumberID, to, body string) (*SendResult, error) {
	payload := sendTextRequest{
		MessagingProduct: "whatsapp",
		RecipientType:    "individual",
		To:               to,
		Type:             "text",
		Text:             TextBody{Body: body},
	}
	return c.send(ctx, phoneNumberID, "text", payload)
}

func (c *HTTPClient) SendTemplate(ctx context.Context, phoneNumberID, to, name, language string) (*SendResult, error) {
	payload := sendTemplateRequest{
		MessagingProduct: "whatsapp",
		To:               to,
		Type:             "template",
		Template: templatePayload{
			Name:     name,
			Language: templateLanguage{Code: language},
		},
	}
	return c.send(ctx, phoneNumberID, "template", payload)
}

func (c *HTTPClient) send(ctx context.Context, phoneNumberID, operation string, payload any) (*SendResult, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/%s/%s/messages", c.config.BaseURL, c.config.APIVersion, phoneNumberID)

	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(url)
	req.Header.SetMethod(fasthttp.MethodPost)
	req.Header.SetContentType("application/json")
	req.Header.Set("Authorization", "Bearer "+c.config.AccessToken)
	req.SetBody(body)

	timeout := c.config.Timeout
	if deadline, ok := ctx.Deadline(); ok {
		if until := time.Until(deadline); until < timeout {
			timeout = until
		}
	}

	start := time.Now()
	err = c.client.DoTimeout(req, resp, timeout)
	latency := time.Since(start)
	prom.ObserveHistogramVec(prom.SystemMessages, prom.MetricProviderDuration, latency.Seconds(), operation)
	if err != nil {
		logger.Warn("[meta] send transport error", "url", url, "latency", latency.String(), "error", err)
		return nil, fmt.Errorf("graph api request failed: %w", err)
	}

	status := resp.StatusCode()
	respBody := append([]byte(nil), resp.Body()...)

	if status >= 200 && status < 300 {
		var out sendResponse
		if err := json.Unmarshal(respBody, &out); err != nil {
			return nil, fmt.Errorf("failed to decode graph response: %w", err)
		}
		if len(out.Messages) == 0 || out.Messages[0].ID == "" {
			return nil, fmt.Errorf("graph response missing message id")
		}
		logger.Debug("[meta] send ok", "provider_id", out.Messages[0].ID, "latency", latency.String())
		return &SendResult{ProviderID: out.Messages[0].ID}, nil
	}

	apiErr := &APIError{StatusCode: status, Raw: respBody}
	var parsed errorResponse
	if err := json.Unmarshal(respBody, &parsed); err == nil {
		apiErr.Code = parsed.Error.Code
		apiErr.Subcode = parsed.Error.Subcode
		apiErr.Type = parsed.Error.Type
		apiErr.Message = parsed.Error.Message
		if parsed.Error.ErrorData != nil {
			apiErr.Details = parsed.Error.ErrorData.Details
		}
	}
	logger.Warn("[meta] send rejected", "status", status, "code", apiErr.Code, "message", apiErr.Message)
	return nil, apiErr
}
