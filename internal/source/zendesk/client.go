package zendesk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/nhle/helpdesk-sync/internal/source"
)

// ClientConfig holds the connection settings for a Client.
type ClientConfig struct {
	// BaseURL is the root URL of the helpdesk (e.g., https://acme.zendesk.com).
	BaseURL string

	// User is the agent email. With APIToken set, requests authenticate
	// as "<user>/token"; otherwise Password is used.
	User     string
	Password string
	APIToken string

	Timeout    time.Duration
	RetryCount int

	// RetryWait is the base wait between retries when the server sends
	// no Retry-After header. Defaults to one second.
	RetryWait time.Duration
}

// Client is a thin REST client for the helpdesk API v2. Basic and token
// authentication, JSON decoding, and retry on HTTP 429 are handled by
// the underlying resty client.
type Client struct {
	baseURL string
	http    *resty.Client
}

// NewClient creates a new helpdesk HTTP client.
func NewClient(cfg ClientConfig) *Client {
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.RetryWait == 0 {
		cfg.RetryWait = time.Second
	}

	baseURL := strings.TrimRight(cfg.BaseURL, "/")

	user, secret := cfg.User, cfg.Password
	if cfg.APIToken != "" {
		user, secret = cfg.User+"/token", cfg.APIToken
	}

	httpClient := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(cfg.Timeout).
		SetBasicAuth(user, secret).
		SetHeader("Accept", "application/json").
		SetHeader("User-Agent", "helpdesk-sync/1.0").
		SetRetryCount(cfg.RetryCount).
		SetRetryWaitTime(cfg.RetryWait).
		SetRetryMaxWaitTime(30 * time.Second).
		SetRetryAfter(retryAfter).
		AddRetryCondition(func(resp *resty.Response, err error) bool {
			return resp != nil && resp.StatusCode() == http.StatusTooManyRequests
		})

	return &Client{
		baseURL: baseURL,
		http:    httpClient,
	}
}

// Get performs an HTTP GET request and decodes the JSON response into
// result. path may be relative to the base URL or an absolute next-page
// URL returned by the API.
func (c *Client) Get(
	ctx context.Context,
	path string,
	params map[string]string,
	result any,
) error {
	req := c.http.R().SetContext(ctx)
	if len(params) > 0 {
		req.SetQueryParams(params)
	}

	resp, err := req.Get(path)
	if err != nil {
		return fmt.Errorf("executing request GET %s: %w", path, err)
	}

	if resp.StatusCode() == http.StatusUnauthorized {
		return &source.AuthError{
			SourceType: source.SourceTypeZendesk,
			Message: fmt.Sprintf(
				"authentication failed (401): check the user and "+
					"password or API token for %s", c.baseURL,
			),
		}
	}

	if !resp.IsSuccess() {
		return parseAPIError(resp.StatusCode(), http.MethodGet, path, resp.Body())
	}

	if result == nil || resp.StatusCode() == http.StatusNoContent {
		return nil
	}

	if err := decodeJSON(resp.Body(), result); err != nil {
		return fmt.Errorf("unmarshaling response from GET %s: %w", path, err)
	}

	return nil
}

// decodeJSON unmarshals data keeping numbers as json.Number so large ids
// are not rounded through float64.
func decodeJSON(data []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	return dec.Decode(v)
}

// retryAfter reads the Retry-After header. A zero duration tells resty
// to fall back to its exponential backoff.
func retryAfter(_ *resty.Client, resp *resty.Response) (time.Duration, error) {
	if resp == nil {
		return 0, nil
	}
	if header := resp.Header().Get("Retry-After"); header != "" {
		if seconds, err := strconv.Atoi(header); err == nil && seconds > 0 {
			return time.Duration(seconds) * time.Second, nil
		}
	}
	return 0, nil
}
