package tool

import (
	"fmt"
	"net/url"
	"strings"
)

// NormalizeEndpoint trims a configured endpoint to a canonical base URL:
// scheme defaults to http when missing, trailing slashes are dropped.
func NormalizeEndpoint(endpoint string) string {
	e := strings.TrimSpace(endpoint)
	if e == "" {
		return e
	}
	if !strings.Contains(e, "://") {
		e = "http://" + e
	}
	return strings.TrimRight(e, "/")
}

// EndpointHost extracts the hostname of an endpoint, used by the ICMP
// preflight probe.
func EndpointHost(endpoint string) (string, error) {
	u, err := url.Parse(NormalizeEndpoint(endpoint))
	if err != nil {
		return "", fmt.Errorf("failed to parse endpoint %q: %v", endpoint, err)
	}
	if u.Hostname() == "" {
		return "", fmt.Errorf("endpoint %q has no host", endpoint)
	}
	return u.Hostname(), nil
}

// BuildRequestUploadURL builds the POST /uploads URL.
func BuildRequestUploadURL(endpoint string) string {
	return fmt.Sprintf("%s/uploads", NormalizeEndpoint(endpoint))
}

// BuildCompleteUploadURL builds the POST /uploads/complete URL.
func BuildCompleteUploadURL(endpoint string) string {
	return fmt.Sprintf("%s/uploads/complete", NormalizeEndpoint(endpoint))
}

// BuildUploadStatusURL builds the GET /uploads/{id}/status URL.
func BuildUploadStatusURL(endpoint, uploadID string) string {
	return fmt.Sprintf("%s/uploads/%s/status", NormalizeEndpoint(endpoint), url.PathEscape(uploadID))
}

// BuildDeleteUploadURL builds the DELETE /uploads/{id} URL.
func BuildDeleteUploadURL(endpoint, uploadID string) string {
	return fmt.Sprintf("%s/uploads/%s", NormalizeEndpoint(endpoint), url.PathEscape(uploadID))
}
