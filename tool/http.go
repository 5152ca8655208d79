package tool

import (
	"net/http"
	"time"
)

var (
	DefaultTimeout       = 30 * time.Second
	ConnectionHttpClient *http.Client
	TransferHttpClient   *http.Client
)

func init() {
	ConnectionHttpClient = NewHTTPClient(DefaultTimeout)
	TransferHttpClient = NewHTTPClient(0)
}

// NewHTTPClient creates an HTTP client with the shared transport tuning.
// A zero timeout means no overall deadline (long multipart transfers are
// bounded by the request context instead).
func NewHTTPClient(timeout time.Duration) *http.Client {
	transport := &http.Transport{
		MaxIdleConns:        50,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     90 * time.Second,
		DisableKeepAlives:   false,
	}
	return &http.Client{
		Timeout:   timeout,
		Transport: transport,
	}
}

// SetHTTPTimeout reinitializes the API client with the configured timeout.
// Call once after config load; the transfer client stays unbounded.
func SetHTTPTimeout(timeout time.Duration) {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	ConnectionHttpClient = NewHTTPClient(timeout)
}

// GetHttpClient returns the shared client for API calls (request, complete,
// status, delete).
func GetHttpClient() *http.Client {
	return ConnectionHttpClient
}

// GetTransferHttpClient returns the shared client for the presigned multipart
// transfer. It carries no overall timeout.
func GetTransferHttpClient() *http.Client {
	return TransferHttpClient
}

// NewJSONReq decorates an outgoing API request with the JSON content type and
// the client User-Agent. Wraps http.NewRequest / http.NewRequestWithContext
// directly: tool.NewJSONReq(http.NewRequestWithContext(...)).
func NewJSONReq(req *http.Request, err error) (*http.Request, error) {
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", UserAgent())
	return req, nil
}

// WithAuth attaches the bearer token when one is configured.
func WithAuth(req *http.Request, token string) *http.Request {
	if req != nil && token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return req
}
