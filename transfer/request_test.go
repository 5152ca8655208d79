package transfer

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/bytedance/sonic"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mkesani1/intake-go/types"
)

// apiStub answers every request with a fixed status and body while recording
// what the client sent.
type apiStub struct {
	mu     sync.Mutex
	code   int
	body   string
	method string
	path   string
	header http.Header
	sent   []byte
}

func newAPIStub(t *testing.T, code int, body string) (*apiStub, string) {
	t.Helper()
	s := &apiStub{code: code, body: body}
	ts := httptest.NewServer(s)
	t.Cleanup(ts.Close)
	return s, ts.URL
}

func (s *apiStub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	s.mu.Lock()
	s.method = r.Method
	s.path = r.URL.Path
	s.header = r.Header.Clone()
	s.sent = body
	s.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(s.code)
	_, _ = w.Write([]byte(s.body))
}

func (s *apiStub) recorded() (method, path string, header http.Header, body []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.method, s.path, s.header, s.sent
}

func TestRequestUploadSuccess(t *testing.T) {
	stub, endpoint := newAPIStub(t, http.StatusOK, `{
		"upload_id": "u-42",
		"presigned_url": "http://storage.local/storage/u-42",
		"presigned_fields": {"key": "samples/u-42/report.csv", "x-intake-token": "tok"},
		"expires_at": "2026-08-25T12:00:00Z",
		"status": "pending"
	}`)

	resp, err := RequestUpload(context.Background(), endpoint, "sekret", &types.UploadRequest{
		Filename: "report.csv",
		Size:     1234,
		MimeType: "text/csv",
		FormData: map[string]string{"client_version": "test"},
	})
	require.NoError(t, err)

	assert.Equal(t, "u-42", resp.UploadID)
	assert.Equal(t, "http://storage.local/storage/u-42", resp.PresignedURL)
	assert.Equal(t, "samples/u-42/report.csv", resp.PresignedFields["key"])

	method, path, header, sent := stub.recorded()
	assert.Equal(t, http.MethodPost, method)
	assert.Equal(t, "/uploads", path)
	assert.Equal(t, "Bearer sekret", header.Get("Authorization"))
	assert.Equal(t, "application/json", header.Get("Content-Type"))

	var wire types.UploadRequest
	require.NoError(t, sonic.Unmarshal(sent, &wire))
	assert.Equal(t, "report.csv", wire.Filename)
	assert.Equal(t, int64(1234), wire.Size)
	assert.Equal(t, "text/csv", wire.MimeType)
	assert.Equal(t, "test", wire.FormData["client_version"])
}

func TestRequestUploadNoAuthHeaderWithoutToken(t *testing.T) {
	stub, endpoint := newAPIStub(t, http.StatusOK,
		`{"upload_id":"u-1","presigned_url":"http://s/1"}`)

	_, err := RequestUpload(context.Background(), endpoint, "", &types.UploadRequest{Filename: "a.csv", Size: 1})
	require.NoError(t, err)

	_, _, header, _ := stub.recorded()
	assert.Empty(t, header.Get("Authorization"))
}

func TestRequestUploadErrorMapping(t *testing.T) {
	tests := []struct {
		name string
		code int
		body string
		want string
	}{
		{"bad request carries server message", http.StatusBadRequest, `{"error":"size must be positive"}`, "size must be positive"},
		{"bad request without body", http.StatusBadRequest, ``, "invalid request"},
		{"unauthorized", http.StatusUnauthorized, `{}`, "unauthorized"},
		{"payload too large", http.StatusRequestEntityTooLarge, ``, "server size limit"},
		{"unsupported media type", http.StatusUnsupportedMediaType, ``, "unsupported file type"},
		{"throttled", http.StatusTooManyRequests, ``, "too many requests"},
		{"server error", http.StatusInternalServerError, ``, "intake server error"},
		{"bad gateway", http.StatusBadGateway, ``, "intake server error"},
		{"ok with empty body", http.StatusOK, ``, "body is empty"},
		{"ok missing upload_id", http.StatusOK, `{"presigned_url":"http://s/1"}`, "missing upload_id"},
		{"ok missing presigned_url", http.StatusOK, `{"upload_id":"u-1"}`, "missing presigned_url"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, endpoint := newAPIStub(t, tt.code, tt.body)
			_, err := RequestUpload(context.Background(), endpoint, "", &types.UploadRequest{Filename: "a.csv", Size: 10})
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestRequestUploadInvalidParams(t *testing.T) {
	_, err := RequestUpload(context.Background(), "", "", &types.UploadRequest{})
	assert.Error(t, err)

	_, err = RequestUpload(context.Background(), "http://127.0.0.1:1", "", nil)
	assert.Error(t, err)
}
