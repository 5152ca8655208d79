package upload

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mkesani1/intake-go/tool"
	"github.com/mkesani1/intake-go/types"
)

func csvInfo(size int64) *types.FileInfo {
	return &types.FileInfo{
		Name:         "samples.csv",
		Size:         size,
		MimeType:     "text/csv",
		Extension:    "csv",
		SemanticType: types.FileTypeCSV,
	}
}

func TestValidateOrderOfChecks(t *testing.T) {
	v := NewValidator(types.UploadConfig{
		MaxSizeBytes:      1_000_000,
		AllowedTypes:      []types.SemanticFileType{types.FileTypeCSV},
		MaxFileNameLength: 255,
	})

	t.Run("absent file reads as empty", func(t *testing.T) {
		code, msg := v.Validate(nil)
		assert.Equal(t, types.ValidationEmptyFile, code)
		assert.Equal(t, "No file selected", msg)
	})

	t.Run("empty beats everything", func(t *testing.T) {
		// zero-byte file of a type that is not even allowed still reads as empty
		info := &types.FileInfo{Name: "x.zip", Size: 0}
		code, msg := v.Validate(info)
		assert.Equal(t, types.ValidationEmptyFile, code)
		assert.Equal(t, "File is empty", msg)
	})

	t.Run("too large beats invalid type", func(t *testing.T) {
		info := &types.FileInfo{Name: "x.zip", Size: 2_000_000}
		code, _ := v.Validate(info)
		assert.Equal(t, types.ValidationFileTooLarge, code)
	})

	t.Run("exactly max passes the size check", func(t *testing.T) {
		code, _ := v.Validate(csvInfo(1_000_000))
		assert.Equal(t, types.ValidationNone, code)
	})

	t.Run("unresolved type", func(t *testing.T) {
		info := &types.FileInfo{Name: "x.unknownext", Size: 100}
		code, _ := v.Validate(info)
		assert.Equal(t, types.ValidationInvalidType, code)
	})

	t.Run("resolved but not allowed", func(t *testing.T) {
		info := &types.FileInfo{Name: "x.json", Size: 100, SemanticType: types.FileTypeJSON}
		code, _ := v.Validate(info)
		assert.Equal(t, types.ValidationInvalidType, code)
	})

	t.Run("name too long checked last", func(t *testing.T) {
		info := csvInfo(100)
		info.Name = strings.Repeat("a", 256) + ".csv"
		code, msg := v.Validate(info)
		assert.Equal(t, types.ValidationInvalidType, code)
		assert.Contains(t, msg, "name")
	})
}

func TestValidateScenarios(t *testing.T) {
	t.Run("2MB file against a 1MB cap", func(t *testing.T) {
		v := NewValidator(types.UploadConfig{
			MaxSizeBytes: 1_000_000,
			AllowedTypes: []types.SemanticFileType{types.FileTypeCSV},
		})
		code, msg := v.Validate(csvInfo(2_000_000))
		assert.Equal(t, types.ValidationFileTooLarge, code)
		assert.NotEmpty(t, msg)
	})

	t.Run("small csv against the default config", func(t *testing.T) {
		v := NewValidator(tool.DefaultUploadConfig())
		code, msg := v.Validate(csvInfo(500))
		assert.Equal(t, types.ValidationNone, code)
		assert.Empty(t, msg)
	})

	t.Run("empty file regardless of config", func(t *testing.T) {
		v := NewValidator(tool.DefaultUploadConfig())
		code, _ := v.Validate(csvInfo(0))
		assert.Equal(t, types.ValidationEmptyFile, code)
	})
}

func TestValidateAcceptedMimeTypes(t *testing.T) {
	v := NewValidator(types.UploadConfig{
		MaxSizeBytes:      1_000_000,
		AllowedTypes:      []types.SemanticFileType{types.FileTypeCSV, types.FileTypeImage},
		AcceptedMimeTypes: []string{"text/csv", "image/*"},
	})

	code, _ := v.Validate(csvInfo(100))
	require.Equal(t, types.ValidationNone, code)

	png := &types.FileInfo{Name: "y.png", Size: 100, MimeType: "image/png", Extension: "png", SemanticType: types.FileTypeImage}
	code, _ = v.Validate(png)
	assert.Equal(t, types.ValidationNone, code, "image/* should cover image/png")

	// semantic type allowed, but the extra MIME allowlist rejects it
	bmpish := &types.FileInfo{Name: "y.csv", Size: 100, MimeType: "application/csv", Extension: "csv", SemanticType: types.FileTypeCSV}
	code, _ = v.Validate(bmpish)
	assert.Equal(t, types.ValidationInvalidType, code)
}
