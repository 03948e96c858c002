package catalog

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	pkgerrors "github.com/angelmondragon/packfinderz-cart/pkg/errors"
)

const (
	productPath           = "/api/products/"
	recommendationsPath   = "/api/recommendations/cart"
	responseBodyReadLimit = 1 << 20
	errorBodyReadLimit    = 1024
	defaultRequestTimeout = 10 * time.Second
)

var errBaseURLRequired = errors.New("catalog base url is required")

// Client talks to the storefront product and recommendation endpoints.
type Client struct {
	httpClient *http.Client
	baseURL    string
}

type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithTimeout sets the default client's overall request timeout.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		if timeout > 0 && c.httpClient != nil {
			c.httpClient.Timeout = timeout
		}
	}
}

func NewClient(baseURL string, opts ...Option) (*Client, error) {
	trimmed := strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if trimmed == "" {
		return nil, errBaseURLRequired
	}
	client := &Client{
		baseURL:    trimmed,
		httpClient: &http.Client{Timeout: defaultRequestTimeout},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(client)
		}
	}
	return client, nil
}

// FetchProduct implements ProductFetcher.
func (c *Client) FetchProduct(ctx context.Context, slug string) (Snapshot, error) {
	slug = strings.TrimSpace(slug)
	if slug == "" {
		return Snapshot{}, pkgerrors.New(pkgerrors.CodeValidation, "product slug is required")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+productPath+url.PathEscape(slug), nil)
	if err != nil {
		return Snapshot{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "build product request")
	}
	req.Header.Set("Accept", "application/json")

	body, status, err := c.do(req)
	if err != nil {
		return Snapshot{}, err
	}
	if status == http.StatusNotFound {
		return Snapshot{}, fmt.Errorf("%s: %w", slug, ErrProductNotFound)
	}
	if status < 200 || status >= 300 {
		return Snapshot{}, statusError("product lookup", status, body)
	}

	snap, ok, err := decodeProduct(body)
	if err != nil {
		return Snapshot{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode product response")
	}
	if !ok {
		return Snapshot{}, fmt.Errorf("%s: %w", slug, ErrProductNotFound)
	}
	return snap, nil
}

// Recommend implements Recommender.
func (c *Client) Recommend(ctx context.Context, in Request) (Response, error) {
	payload, err := json.Marshal(in)
	if err != nil {
		return Response{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "marshal recommendation request")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+recommendationsPath, bytes.NewReader(payload))
	if err != nil {
		return Response{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "build recommendation request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	body, status, err := c.do(req)
	if err != nil {
		return Response{}, err
	}
	if status == http.StatusNotFound {
		return Response{}, ErrProductNotFound
	}
	if status < 200 || status >= 300 {
		return Response{}, statusError("recommendations", status, body)
	}

	var decoded wireRecommendations
	if err := json.Unmarshal(body, &decoded); err != nil {
		return Response{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode recommendation response")
	}
	return decoded.response(), nil
}

func (c *Client) do(req *http.Request) ([]byte, int, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "execute catalog request")
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, responseBodyReadLimit))
	if err != nil {
		return nil, resp.StatusCode, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "read catalog response")
	}
	return body, resp.StatusCode, nil
}

func statusError(op string, status int, body []byte) error {
	snippet := body
	if len(snippet) > errorBodyReadLimit {
		snippet = snippet[:errorBodyReadLimit]
	}
	return pkgerrors.New(pkgerrors.CodeDependency, fmt.Sprintf("%s failed with status %d", op, status)).
		WithDetails(map[string]any{"status": status, "body": strings.TrimSpace(string(snippet))})
}
