package transfer

import (
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"sort"
	"strings"

	"github.com/mkesani1/intake-go/tool"
	"github.com/mkesani1/intake-go/types"
)

// FileFieldName is the multipart field carrying the file content. Storage
// backends evaluate the presigned policy fields as they stream in, so every
// field must be written before this part.
const FileFieldName = "file"

// ProgressFunc receives byte counters while the file part streams out.
// loaded counts file bytes only, not multipart framing.
type ProgressFunc func(loaded, total int64)

type progressReader struct {
	r        io.Reader
	total    int64
	loaded   int64
	onChange ProgressFunc
}

func (p *progressReader) Read(b []byte) (int, error) {
	n, err := p.r.Read(b)
	if n > 0 {
		p.loaded += int64(n)
		if p.onChange != nil {
			p.onChange(p.loaded, p.total)
		}
	}
	return n, err
}

// PostToPresigned streams the file as multipart/form-data to the presigned
// URL granted by RequestUpload. The body is piped, never buffered whole, and
// the request aborts as soon as ctx is canceled. Returns the storage ETag
// (quotes trimmed) on success.
func PostToPresigned(ctx context.Context, presignedURL string, fields map[string]string, info *types.FileInfo, src io.Reader, onProgress ProgressFunc) (string, error) {
	if presignedURL == "" {
		return "", fmt.Errorf("invalid parameters: presignedURL must not be empty")
	}
	if info == nil || src == nil {
		return "", fmt.Errorf("invalid parameters: info and src must not be nil")
	}

	// Check if already canceled
	select {
	case <-ctx.Done():
		return "", fmt.Errorf("upload canceled: %w", ctx.Err())
	default:
	}

	if onProgress != nil {
		onProgress(0, info.Size)
	}

	pr, pw := io.Pipe()
	writer := multipart.NewWriter(pw)
	counted := &progressReader{r: src, total: info.Size, onChange: onProgress}
	go func() {
		err := writeMultipartBody(ctx, writer, fields, info, counted)
		if closeErr := writer.Close(); err == nil {
			err = closeErr
		}
		pw.CloseWithError(err)
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, presignedURL, pr)
	if err != nil {
		return "", fmt.Errorf("failed to create storage request: %v", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	req.Header.Set("User-Agent", tool.UserAgent())

	client := tool.GetTransferHttpClient()
	resp, err := client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return "", fmt.Errorf("upload canceled: %w", ctx.Err())
		}
		return "", fmt.Errorf("failed to send file to storage: %v", err)
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			tool.DefaultLogger.Errorf("Failed to close response body: %v", err)
		}
	}()

	switch {
	case resp.StatusCode == http.StatusForbidden:
		return "", fmt.Errorf("storage rejected the upload: presigned URL expired or signature mismatch")
	case resp.StatusCode == StatusPayloadTooLarge:
		return "", fmt.Errorf("storage rejected the upload: body too large")
	case resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices:
		return "", fmt.Errorf("storage upload failed: %s", resp.Status)
	}

	if onProgress != nil {
		onProgress(info.Size, info.Size)
	}
	etag := strings.Trim(resp.Header.Get("ETag"), `"`)
	tool.DefaultLogger.Infof("File %s stored (%d bytes, etag %q)", info.Name, info.Size, etag)
	return etag, nil
}

// writeMultipartBody writes every presigned field (stable order), then the
// single file part.
func writeMultipartBody(ctx context.Context, writer *multipart.Writer, fields map[string]string, info *types.FileInfo, src io.Reader) error {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if err := writer.WriteField(k, fields[k]); err != nil {
			return fmt.Errorf("failed to write presigned field %q: %v", k, err)
		}
	}

	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="%s"; filename="%s"`,
		FileFieldName, escapeQuotes(info.Name)))
	if info.MimeType != "" {
		header.Set("Content-Type", info.MimeType)
	}
	part, err := writer.CreatePart(header)
	if err != nil {
		return fmt.Errorf("failed to create file part: %v", err)
	}
	if _, err := tool.CopyWithContext(ctx, part, src); err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("upload canceled: %w", ctx.Err())
		}
		return fmt.Errorf("failed to stream file content: %v", err)
	}
	return nil
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

func escapeQuotes(s string) string {
	return quoteEscaper.Replace(s)
}
