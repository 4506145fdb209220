package upstream

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"nowplaying-proxy-go/logcolors"

	log "github.com/sirupsen/logrus"
)

const (
	defaultTimeout = 5 * time.Second
	// maxBodyBytes bounds how much of an upstream body is read into memory
	maxBodyBytes = 32 << 20
)

// BrowserImageHeaders are sent with image fetches so that CDNs which check the
// requesting origin serve the artwork.
var BrowserImageHeaders = map[string]string{
	"User-Agent":      "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
	"Accept":          "image/avif,image/webp,image/apng,image/svg+xml,image/*,*/*;q=0.8",
	"Accept-Language": "en-US,en;q=0.9",
	"Referer":         "https://listen.tidal.com/",
	"Origin":          "https://listen.tidal.com",
	"Cache-Control":   "no-cache",
}

// Result is a successful upstream response.
type Result struct {
	Body        []byte
	ContentType string
	StatusCode  int
}

// Client performs single GET requests against the device and content origins.
// TLS certificates are not verified: the device serves a self-signed certificate.
// There are no retries at this layer.
type Client struct {
	httpClient   *http.Client
	apiTimeout   time.Duration
	imageTimeout time.Duration
}

// NewClient creates a client with the given per-request bounds for API and image fetches.
func NewClient(apiTimeout, imageTimeout time.Duration) *Client {
	if apiTimeout <= 0 {
		apiTimeout = defaultTimeout
	}
	if imageTimeout <= 0 {
		imageTimeout = defaultTimeout
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}

	return &Client{
		httpClient:   &http.Client{Transport: transport},
		apiTimeout:   apiTimeout,
		imageTimeout: imageTimeout,
	}
}

// FetchJSON fetches url and returns its body, which must be valid JSON.
func (c *Client) FetchJSON(ctx context.Context, url string) (json.RawMessage, error) {
	res, err := c.do(ctx, url, nil, c.apiTimeout)
	if err != nil {
		return nil, err
	}

	if !json.Valid(res.Body) {
		return nil, &FetchError{Kind: KindMalformed, URL: url, StatusCode: res.StatusCode, Err: errors.New("response is not valid JSON")}
	}
	return json.RawMessage(res.Body), nil
}

// FetchBytes fetches url as binary content with the given request headers.
func (c *Client) FetchBytes(ctx context.Context, url string, headers map[string]string) (*Result, error) {
	return c.do(ctx, url, headers, c.imageTimeout)
}

func (c *Client) do(ctx context.Context, url string, headers map[string]string, timeout time.Duration) (*Result, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, &FetchError{Kind: KindNetwork, URL: url, Err: fmt.Errorf("failed to create request: %w", err)}
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	log.Debugf("%s GET %s", logcolors.LogUpstream, url)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, classify(url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, &FetchError{Kind: KindStatus, URL: url, StatusCode: resp.StatusCode, Err: fmt.Errorf("upstream returned status %d", resp.StatusCode)}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes+1))
	if err != nil {
		fe := classify(url, err)
		fe.StatusCode = resp.StatusCode
		return nil, fe
	}
	if len(body) > maxBodyBytes {
		return nil, &FetchError{Kind: KindMalformed, URL: url, StatusCode: resp.StatusCode, Err: fmt.Errorf("response body exceeds %d bytes", maxBodyBytes)}
	}

	return &Result{
		Body:        body,
		ContentType: resp.Header.Get("Content-Type"),
		StatusCode:  resp.StatusCode,
	}, nil
}

func classify(url string, err error) *FetchError {
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return &FetchError{Kind: KindTimeout, URL: url, Err: err}
	}
	return &FetchError{Kind: KindNetwork, URL: url, Err: err}
}
