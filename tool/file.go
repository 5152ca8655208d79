package tool

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"mime"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"

	"github.com/mkesani1/intake-go/types"
)

// FileInfoFromPath inspects a local file and fills the immutable FileInfo
// record: name, size, MIME type, extension and semantic type. The MIME type
// comes from content sniffing; a generic sniff result falls back to the
// extension table so mislabelled CSV/JSON files still resolve.
func FileInfoFromPath(filePath string) (*types.FileInfo, error) {
	stat, err := os.Stat(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat file: %v", err)
	}
	if stat.IsDir() {
		return nil, fmt.Errorf("path is a directory, not a file: %s", filePath)
	}

	info := &types.FileInfo{
		Name:         filepath.Base(filePath),
		Size:         stat.Size(),
		Extension:    normalizedExt(filePath),
		LastModified: stat.ModTime(),
	}

	if stat.Size() > 0 {
		if detected, err := mimetype.DetectFile(filePath); err == nil {
			info.MimeType = types.NormalizeMimeType(detected.String())
		} else {
			DefaultLogger.Debugf("MIME sniff failed for %s: %v", filePath, err)
		}
	}
	fillFallbackMime(info)

	info.SemanticType, _ = types.ResolveSemanticType(info.MimeType, info.Extension)
	return info, nil
}

// FileInfoFromBytes builds a FileInfo for in-memory content (tests, piped
// input). The name still contributes the extension fallback.
func FileInfoFromBytes(name string, data []byte) *types.FileInfo {
	info := &types.FileInfo{
		Name:         name,
		Size:         int64(len(data)),
		Extension:    normalizedExt(name),
		LastModified: time.Now(),
	}
	if len(data) > 0 {
		info.MimeType = types.NormalizeMimeType(mimetype.Detect(data).String())
	}
	fillFallbackMime(info)
	info.SemanticType, _ = types.ResolveSemanticType(info.MimeType, info.Extension)
	return info
}

// The sniffer reports text/plain or application/octet-stream for anything it
// has no magic bytes for; in that case the extension-registered MIME is the
// better label to send to the API.
func fillFallbackMime(info *types.FileInfo) {
	generic := info.MimeType == "" ||
		info.MimeType == "application/octet-stream" ||
		info.MimeType == "text/plain"
	if !generic {
		return
	}
	if info.Extension != "" {
		if byExt := mime.TypeByExtension("." + info.Extension); byExt != "" {
			info.MimeType = types.NormalizeMimeType(byExt)
			return
		}
	}
	if info.MimeType == "" {
		info.MimeType = "application/octet-stream"
	}
}

func normalizedExt(name string) string {
	return strings.ToLower(strings.TrimPrefix(filepath.Ext(name), "."))
}

// FileChecksum computes the SHA-256 of a file, hex encoded. The CLI attaches
// it to form_data so the backend can verify the stored object.
func FileChecksum(filePath string) (string, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return "", fmt.Errorf("failed to open file for hashing: %v", err)
	}
	defer file.Close()

	hasher := sha256.New()
	if _, err := io.Copy(hasher, file); err != nil {
		return "", fmt.Errorf("failed to calculate SHA256: %v", err)
	}
	return hex.EncodeToString(hasher.Sum(nil)), nil
}
