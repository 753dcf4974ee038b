package whatsapp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"log/slog"

	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"
)

const (
	defaultBaseURL   = "https://graph.facebook.com/v19.0"
	defaultUserAgent = "gendei-whatsapp/0.1"

	maxMediaBytes = 16 << 20
	maxRetryDelay = 30 * time.Second
)

// ErrCircuitOpen reports that sends are being short-circuited after repeated
// provider failures.
var ErrCircuitOpen = errors.New("whatsapp: circuit open")

// Config controls how the Graph API client behaves.
type Config struct {
	BaseURL       string
	APIToken      string
	PhoneNumberID string
	Timeout       time.Duration
	MaxRetries    int
	Backoff       time.Duration
	RatePerSecond float64
	HTTPClient    *http.Client
	Logger        *slog.Logger
	UserAgent     string
}

// Client wraps the WhatsApp Cloud API endpoints the bot needs. Every send
// passes through a token-bucket rate limit and a circuit breaker, then retries
// transient failures with exponential backoff.
type Client struct {
	apiToken      string
	baseURL       string
	phoneNumberID string
	httpClient    *http.Client
	maxRetries    int
	backoff       time.Duration
	limiter       *rate.Limiter
	breaker       *gobreaker.CircuitBreaker
	logger        *slog.Logger
	userAgent     string
}

// New creates a configured Client with sane defaults.
func New(cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.APIToken) == "" {
		return nil, errors.New("whatsapp: API token is required")
	}
	if strings.TrimSpace(cfg.PhoneNumberID) == "" {
		return nil, errors.New("whatsapp: phone number id is required")
	}
	baseURL := strings.TrimSpace(cfg.BaseURL)
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	baseURL = strings.TrimRight(baseURL, "/")
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 15 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	maxRetries := cfg.MaxRetries
	if maxRetries < 0 {
		maxRetries = 0
	}
	backoff := cfg.Backoff
	if backoff <= 0 {
		backoff = 250 * time.Millisecond
	}
	perSecond := cfg.RatePerSecond
	if perSecond <= 0 {
		perSecond = 20
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	userAgent := strings.TrimSpace(cfg.UserAgent)
	if userAgent == "" {
		userAgent = defaultUserAgent
	}
	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "whatsapp-send",
		MaxRequests: 3,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state change", "breaker", name, "from", from.String(), "to", to.String())
		},
	})
	return &Client{
		apiToken:      cfg.APIToken,
		baseURL:       baseURL,
		phoneNumberID: cfg.PhoneNumberID,
		httpClient:    httpClient,
		maxRetries:    maxRetries,
		backoff:       backoff,
		limiter:       rate.NewLimiter(rate.Limit(perSecond), int(perSecond)),
		breaker:       breaker,
		logger:        logger,
		userAgent:     userAgent,
	}, nil
}

// SendText delivers a plain text message.
func (c *Client) SendText(ctx context.Context, to, body string) (*SendResult, error) {
	if err := validateRecipient(to); err != nil {
		return nil, err
	}
	if strings.TrimSpace(body) == "" {
		return nil, errors.New("whatsapp: message body required")
	}
	return c.send(ctx, textRequest{
		MessagingProduct: "whatsapp",
		RecipientType:    "individual",
		To:               to,
		Type:             "text",
		Text:             textBody{Body: body},
	})
}

// SendButtons delivers an interactive quick-reply message with up to three
// buttons.
func (c *Client) SendButtons(ctx context.Context, to, body string, buttons []Button) (*SendResult, error) {
	if err := validateRecipient(to); err != nil {
		return nil, err
	}
	if err := validateButtons(buttons); err != nil {
		return nil, err
	}
	action := interactiveAction{}
	for _, b := range buttons {
		action.Buttons = append(action.Buttons, interactiveButton{
			Type:  "reply",
			Reply: buttonReply{ID: b.ID, Title: b.Title},
		})
	}
	return c.send(ctx, interactiveRequest{
		MessagingProduct: "whatsapp",
		RecipientType:    "individual",
		To:               to,
		Type:             "interactive",
		Interactive: interactiveBody{
			Type:   "button",
			Body:   interactiveText{Text: body},
			Action: action,
		},
	})
}

// SendList delivers an interactive list message. Used when the options do not
// fit in three buttons, e.g. slot pickers.
func (c *Client) SendList(ctx context.Context, to, body, buttonLabel string, sections []ListSection) (*SendResult, error) {
	if err := validateRecipient(to); err != nil {
		return nil, err
	}
	if err := validateSections(sections); err != nil {
		return nil, err
	}
	if strings.TrimSpace(buttonLabel) == "" {
		buttonLabel = "Ver opções"
	}
	action := interactiveAction{Button: buttonLabel}
	for _, s := range sections {
		section := listSectionBody{Title: s.Title}
		for _, row := range s.Rows {
			section.Rows = append(section.Rows, listRowBody{ID: row.ID, Title: row.Title, Description: row.Description})
		}
		action.Sections = append(action.Sections, section)
	}
	return c.send(ctx, interactiveRequest{
		MessagingProduct: "whatsapp",
		RecipientType:    "individual",
		To:               to,
		Type:             "interactive",
		Interactive: interactiveBody{
			Type:   "list",
			Body:   interactiveText{Text: body},
			Action: action,
		},
	})
}

// MarkRead flags an inbound message as read. Failures are not worth retrying
// aggressively; callers typically log and move on.
func (c *Client) MarkRead(ctx context.Context, messageID string) error {
	if strings.TrimSpace(messageID) == "" {
		return errors.New("whatsapp: message id required")
	}
	body, err := json.Marshal(markReadRequest{
		MessagingProduct: "whatsapp",
		Status:           "read",
		MessageID:        messageID,
	})
	if err != nil {
		return fmt.Errorf("whatsapp: marshal mark read: %w", err)
	}
	_, err = c.invoke(ctx, http.MethodPost, "/"+c.phoneNumberID+"/messages", body)
	return err
}

// MediaURL resolves a media id into a short-lived download URL.
func (c *Client) MediaURL(ctx context.Context, mediaID string) (string, error) {
	if strings.TrimSpace(mediaID) == "" {
		return "", errors.New("whatsapp: media id required")
	}
	data, err := c.invoke(ctx, http.MethodGet, "/"+mediaID, nil)
	if err != nil {
		return "", err
	}
	var media mediaResponse
	if err := json.Unmarshal(data, &media); err != nil {
		return "", fmt.Errorf("whatsapp: decode media response: %w", err)
	}
	if media.URL == "" {
		return "", errors.New("whatsapp: media response missing url")
	}
	return media.URL, nil
}

// DownloadMedia fetches media content from a resolved URL. The URL is only
// valid for a few minutes and requires the same bearer token.
func (c *Client) DownloadMedia(ctx context.Context, mediaURL string) ([]byte, error) {
	if strings.TrimSpace(mediaURL) == "" {
		return nil, errors.New("whatsapp: media url required")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, mediaURL, nil)
	if err != nil {
		return nil, fmt.Errorf("whatsapp: build media request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiToken)
	req.Header.Set("User-Agent", c.userAgent)
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("whatsapp: download media: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("whatsapp: media download status %d", resp.StatusCode)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxMediaBytes+1))
	if err != nil {
		return nil, fmt.Errorf("whatsapp: read media body: %w", err)
	}
	if len(data) > maxMediaBytes {
		return nil, errors.New("whatsapp: media exceeds size limit")
	}
	return data, nil
}

func (c *Client) send(ctx context.Context, payload any) (*SendResult, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("whatsapp: marshal send body: %w", err)
	}
	data, err := c.invoke(ctx, http.MethodPost, "/"+c.phoneNumberID+"/messages", body)
	if err != nil {
		return nil, err
	}
	var resp sendResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, fmt.Errorf("whatsapp: decode send response: %w", err)
	}
	result := &SendResult{}
	if len(resp.Messages) > 0 {
		result.MessageID = resp.Messages[0].ID
	}
	return result, nil
}

func (c *Client) invoke(ctx context.Context, method, path string, body []byte) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("whatsapp: rate limit wait: %w", err)
	}
	out, err := c.breaker.Execute(func() (any, error) {
		return c.invokeWithRetry(ctx, method, path, body)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, ErrCircuitOpen
		}
		return nil, err
	}
	return out.([]byte), nil
}

func (c *Client) invokeWithRetry(ctx context.Context, method, path string, body []byte) ([]byte, error) {
	fullURL := c.baseURL + "/" + strings.TrimLeft(path, "/")
	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		var bodyReader io.Reader
		if body != nil {
			bodyReader = bytes.NewReader(body)
		}
		req, err := http.NewRequestWithContext(ctx, method, fullURL, bodyReader)
		if err != nil {
			return nil, fmt.Errorf("whatsapp: build request: %w", err)
		}
		req.Header.Set("Authorization", "Bearer "+c.apiToken)
		req.Header.Set("User-Agent", c.userAgent)
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		resp, err := c.httpClient.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			if !shouldRetry(0, err) || attempt == c.maxRetries {
				return nil, fmt.Errorf("whatsapp: http error: %w", err)
			}
			lastErr = err
			c.logRetry(path, attempt, 0, err)
			if sleepErr := c.sleep(ctx, c.retryDelay(attempt, 0)); sleepErr != nil {
				return nil, sleepErr
			}
			continue
		}
		data, readErr := io.ReadAll(resp.Body)
		resp.Body.Close()
		if readErr != nil {
			return nil, fmt.Errorf("whatsapp: read response: %w", readErr)
		}
		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			return data, nil
		}
		apiErr := decodeAPIError(resp.StatusCode, data)
		if attempt < c.maxRetries && shouldRetry(resp.StatusCode, nil) {
			lastErr = apiErr
			c.logRetry(path, attempt, resp.StatusCode, apiErr)
			if sleepErr := c.sleep(ctx, c.retryDelay(attempt, retryAfterHint(resp))); sleepErr != nil {
				return nil, sleepErr
			}
			continue
		}
		return nil, apiErr
	}
	if lastErr != nil {
		return nil, lastErr
	}
	return nil, errors.New("whatsapp: request failed without response")
}

// retryDelay computes the wait before the next attempt: capped exponential
// backoff with ±50% jitter, overridden by a server Retry-After hint.
func (c *Client) retryDelay(attempt int, retryAfter time.Duration) time.Duration {
	if retryAfter > 0 {
		if retryAfter > maxRetryDelay {
			return maxRetryDelay
		}
		return retryAfter
	}
	delay := c.backoff * time.Duration(1<<attempt)
	if delay > maxRetryDelay || delay <= 0 {
		delay = maxRetryDelay
	}
	// Jitter spreads concurrent workers so they do not retry in lockstep.
	return delay/2 + time.Duration(rand.Int63n(int64(delay)))
}

func (c *Client) sleep(ctx context.Context, delay time.Duration) error {
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// retryAfterHint parses a Retry-After header, either delta-seconds or an
// HTTP date. Zero means no hint.
func retryAfterHint(resp *http.Response) time.Duration {
	v := resp.Header.Get("Retry-After")
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	if at, err := http.ParseTime(v); err == nil {
		if d := time.Until(at); d > 0 {
			return d
		}
	}
	return 0
}

func (c *Client) logRetry(path string, attempt int, status int, err error) {
	if c.logger == nil {
		return
	}
	c.logger.Warn("whatsapp retry",
		"path", path,
		"attempt", attempt+1,
		"status", status,
		"error", err,
	)
}

func shouldRetry(status int, err error) bool {
	if err != nil {
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			return true
		}
		return !errors.Is(err, context.Canceled)
	}
	if status == http.StatusTooManyRequests || status == http.StatusRequestTimeout {
		return true
	}
	return status >= 500 && status <= 599
}

type apiError struct {
	StatusCode int `json:"-"`
	Err        struct {
		Message   string `json:"message"`
		Type      string `json:"type"`
		Code      int    `json:"code"`
		Subcode   int    `json:"error_subcode"`
		FBTraceID string `json:"fbtrace_id"`
	} `json:"error"`
}

func (e *apiError) Error() string {
	if e.Err.Message != "" {
		return fmt.Sprintf("whatsapp: %s (status=%d code=%d)", e.Err.Message, e.StatusCode, e.Err.Code)
	}
	return fmt.Sprintf("whatsapp: http status %d", e.StatusCode)
}

func decodeAPIError(status int, body []byte) error {
	var parsed apiError
	if err := json.Unmarshal(body, &parsed); err != nil {
		parsed = apiError{}
		parsed.Err.Message = string(body)
	}
	parsed.StatusCode = status
	return &parsed
}
