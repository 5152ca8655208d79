package upload

import (
	"fmt"
	"strings"

	"github.com/mkesani1/intake-go/types"
)

// Validator applies the client-side acceptance policy to a FileInfo before
// any network call happens.
type Validator struct {
	cfg types.UploadConfig
}

func NewValidator(cfg types.UploadConfig) *Validator {
	return &Validator{cfg: cfg}
}

// Validate returns the first failing rule and its user-facing message, or
// ValidationNone. Order matters and is fixed: empty beats too-large beats
// invalid-type, so a truncated export reads as "empty" rather than "wrong
// type". An absent file counts as empty.
func (v *Validator) Validate(info *types.FileInfo) (types.ValidationError, string) {
	if info == nil {
		return types.ValidationEmptyFile, "No file selected"
	}
	if info.Size == 0 {
		return types.ValidationEmptyFile, "File is empty"
	}
	if v.cfg.MaxSizeBytes > 0 && info.Size > v.cfg.MaxSizeBytes {
		return types.ValidationFileTooLarge,
			fmt.Sprintf("File exceeds the maximum size of %s", humanSize(v.cfg.MaxSizeBytes))
	}
	if !info.SemanticType.Valid() || !v.cfg.AllowsType(info.SemanticType) || !v.mimeAccepted(info.MimeType) {
		return types.ValidationInvalidType,
			"File type is not supported. Upload CSV, JSON, XML, image or audio files"
	}
	if v.cfg.MaxFileNameLength > 0 && len(info.Name) > v.cfg.MaxFileNameLength {
		return types.ValidationInvalidType,
			fmt.Sprintf("File name is longer than %d characters", v.cfg.MaxFileNameLength)
	}
	return types.ValidationNone, ""
}

// mimeAccepted checks the optional extra MIME allowlist. Entries may be
// exact ("text/csv") or a prefix wildcard ("image/*"). An empty list imposes
// no restriction beyond the semantic tables.
func (v *Validator) mimeAccepted(mimeType string) bool {
	if len(v.cfg.AcceptedMimeTypes) == 0 {
		return true
	}
	mt := types.NormalizeMimeType(mimeType)
	for _, accepted := range v.cfg.AcceptedMimeTypes {
		a := types.NormalizeMimeType(accepted)
		if a == mt {
			return true
		}
		if prefix, ok := strings.CutSuffix(a, "/*"); ok && strings.HasPrefix(mt, prefix+"/") {
			return true
		}
	}
	return false
}

func humanSize(n int64) string {
	const mb = 1024 * 1024
	switch {
	case n >= mb && n%mb == 0:
		return fmt.Sprintf("%d MB", n/mb)
	case n >= mb:
		return fmt.Sprintf("%.1f MB", float64(n)/float64(mb))
	default:
		return fmt.Sprintf("%d bytes", n)
	}
}
