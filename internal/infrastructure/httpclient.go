package infrastructure

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/yourusername/reel-extract-go/internal/domain"
	"golang.org/x/net/proxy"
)

// maxPageBytes bounds how much of an HTML or JSON body is read into memory
const maxPageBytes = 8 << 20

// HTTPClient is the shared client used by all HTTP-based strategies
type HTTPClient struct {
	client    *http.Client
	userAgent string
}

// NewHTTPClient creates a client from config. A non-empty ProxyURL routes all traffic through it.
// config.Timeout bounds connecting and waiting for response headers only; body
// transfers run until the request context ends.
func NewHTTPClient(config *domain.HTTPConfig) (*HTTPClient, error) {
	transport := http.DefaultTransport.(*http.Transport).Clone()

	dialer := &net.Dialer{Timeout: 30 * time.Second, KeepAlive: 30 * time.Second}
	if config.Timeout > 0 {
		dialer.Timeout = config.Timeout
		transport.TLSHandshakeTimeout = config.Timeout
		transport.ResponseHeaderTimeout = config.Timeout
	}
	transport.DialContext = dialer.DialContext

	if config.ProxyURL != "" {
		if err := configureProxy(transport, dialer, config.ProxyURL); err != nil {
			return nil, err
		}
	}

	userAgent := config.UserAgent
	if userAgent == "" {
		userAgent = domain.DefaultUserAgent
	}

	return &HTTPClient{
		client: &http.Client{
			Transport: transport,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= 10 {
					return fmt.Errorf("too many redirects")
				}
				return nil
			},
		},
		userAgent: userAgent,
	}, nil
}

// NewHTTPClientWith wraps an existing http.Client, mainly for tests
func NewHTTPClientWith(client *http.Client, userAgent string) *HTTPClient {
	if userAgent == "" {
		userAgent = domain.DefaultUserAgent
	}
	return &HTTPClient{client: client, userAgent: userAgent}
}

// configureProxy sets up proxy configuration for the transport
func configureProxy(transport *http.Transport, dialer *net.Dialer, proxyURL string) error {
	parsedURL, err := url.Parse(proxyURL)
	if err != nil {
		return fmt.Errorf("invalid proxy URL: %w", err)
	}

	switch parsedURL.Scheme {
	case "http", "https":
		transport.Proxy = http.ProxyURL(parsedURL)
	case "socks5":
		var auth *proxy.Auth
		if parsedURL.User != nil {
			password, _ := parsedURL.User.Password()
			auth = &proxy.Auth{User: parsedURL.User.Username(), Password: password}
		}
		socksDialer, err := proxy.SOCKS5("tcp", parsedURL.Host, auth, dialer)
		if err != nil {
			return fmt.Errorf("failed to create SOCKS5 proxy: %w", err)
		}
		transport.Proxy = nil
		if cd, ok := socksDialer.(proxy.ContextDialer); ok {
			transport.DialContext = cd.DialContext
		} else {
			transport.DialContext = func(ctx context.Context, network, addr string) (net.Conn, error) {
				return socksDialer.Dial(network, addr)
			}
		}
	default:
		return fmt.Errorf("unsupported proxy scheme: %s", parsedURL.Scheme)
	}

	return nil
}

// do sends a request with the browser user agent and extra headers, requiring a 200 response
func (c *HTTPClient) do(req *http.Request, headers map[string]string) (*http.Response, error) {
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")
	for key, value := range headers {
		req.Header.Set(key, value)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("unexpected status %d from %s", resp.StatusCode, req.URL.Host)
	}
	return resp, nil
}

// GetPage fetches a URL and returns the body as text
func (c *HTTPClient) GetPage(ctx context.Context, pageURL string, headers map[string]string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	if _, ok := headers["Accept"]; !ok {
		req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	}

	resp, err := c.do(req, headers)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxPageBytes))
	if err != nil {
		return "", fmt.Errorf("failed to read body: %w", err)
	}
	return string(body), nil
}

// GetJSON fetches a URL and decodes the JSON body into out
func (c *HTTPClient) GetJSON(ctx context.Context, apiURL string, headers map[string]string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, apiURL, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.do(req, headers)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := json.NewDecoder(io.LimitReader(resp.Body, maxPageBytes)).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// PostForm submits a urlencoded form and returns the raw response body
func (c *HTTPClient) PostForm(ctx context.Context, apiURL string, form url.Values, headers map[string]string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, apiURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.do(req, headers)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxPageBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to read body: %w", err)
	}
	return body, nil
}

// DownloadTo streams mediaURL into dest and returns the number of bytes written.
// On any error the partial file is removed.
func (c *HTTPClient) DownloadTo(ctx context.Context, mediaURL, dest string, headers map[string]string) (int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, mediaURL, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "*/*")

	resp, err := c.do(req, headers)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	file, err := os.Create(dest)
	if err != nil {
		return 0, fmt.Errorf("failed to create file: %w", err)
	}

	written, copyErr := io.Copy(file, resp.Body)
	closeErr := file.Close()
	if copyErr == nil {
		copyErr = closeErr
	}
	if copyErr != nil {
		os.Remove(dest)
		return 0, fmt.Errorf("failed to write video: %w", copyErr)
	}
	if written == 0 {
		os.Remove(dest)
		return 0, fmt.Errorf("empty response body")
	}
	return written, nil
}
