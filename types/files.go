package types

import (
	"strings"
	"time"
)

// SemanticFileType is the closed set of sample-data categories the intake
// pipeline understands. Anything outside it is rejected by validation.
type SemanticFileType string

const (
	FileTypeCSV   SemanticFileType = "csv"
	FileTypeJSON  SemanticFileType = "json"
	FileTypeXML   SemanticFileType = "xml"
	FileTypeImage SemanticFileType = "image"
	FileTypeAudio SemanticFileType = "audio"
)

// Valid reports whether t is one of the known semantic types.
func (t SemanticFileType) Valid() bool {
	switch t {
	case FileTypeCSV, FileTypeJSON, FileTypeXML, FileTypeImage, FileTypeAudio:
		return true
	}
	return false
}

// FileInfo is the immutable description of a selected file, computed once
// before an upload starts.
type FileInfo struct {
	Name         string           `json:"name"`
	Size         int64            `json:"size"`
	MimeType     string           `json:"mime_type,omitempty"`
	Extension    string           `json:"extension,omitempty"` // lowercase, no dot
	SemanticType SemanticFileType `json:"semantic_type,omitempty"`
	LastModified time.Time        `json:"last_modified"`
}

var mimeSemanticTypes = map[string]SemanticFileType{
	"text/csv":         FileTypeCSV,
	"application/csv":  FileTypeCSV,
	"application/json": FileTypeJSON,
	"text/json":        FileTypeJSON,
	"application/xml":  FileTypeXML,
	"text/xml":         FileTypeXML,
}

var extensionSemanticTypes = map[string]SemanticFileType{
	"csv":  FileTypeCSV,
	"json": FileTypeJSON,
	"xml":  FileTypeXML,
	"png":  FileTypeImage,
	"jpg":  FileTypeImage,
	"jpeg": FileTypeImage,
	"gif":  FileTypeImage,
	"webp": FileTypeImage,
	"bmp":  FileTypeImage,
	"svg":  FileTypeImage,
	"mp3":  FileTypeAudio,
	"wav":  FileTypeAudio,
	"m4a":  FileTypeAudio,
	"ogg":  FileTypeAudio,
	"flac": FileTypeAudio,
	"aac":  FileTypeAudio,
}

// ResolveSemanticType maps a MIME type and a file extension onto the semantic
// enum. The MIME table wins; the extension table is only consulted when the
// MIME type is empty or unknown (browsers and OSes often report generic types
// for CSV/JSON). Returns false when neither source resolves.
func ResolveSemanticType(mimeType, extension string) (SemanticFileType, bool) {
	mt := NormalizeMimeType(mimeType)
	if t, ok := mimeSemanticTypes[mt]; ok {
		return t, true
	}
	switch {
	case strings.HasPrefix(mt, "image/"):
		return FileTypeImage, true
	case strings.HasPrefix(mt, "audio/"):
		return FileTypeAudio, true
	}
	if t, ok := extensionSemanticTypes[strings.ToLower(strings.TrimPrefix(extension, "."))]; ok {
		return t, true
	}
	return "", false
}

// NormalizeMimeType lowercases a MIME type and strips parameters
// ("Text/CSV; charset=utf-8" -> "text/csv").
func NormalizeMimeType(mimeType string) string {
	mt := strings.ToLower(strings.TrimSpace(mimeType))
	if i := strings.IndexByte(mt, ';'); i >= 0 {
		mt = strings.TrimSpace(mt[:i])
	}
	return mt
}
