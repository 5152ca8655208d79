package tool

import (
	"crypto/rand"
	"encoding/hex"

	"github.com/google/uuid"
)

func GenerateRandomUUID() string {
	return uuid.New().String()
}

// GenerateUploadToken returns a short hex token. The sandbox backend puts one
// in the presigned fields so the storage endpoint can tie a POST back to its
// upload record.
func GenerateUploadToken() string {
	b := make([]byte, 8) // 8 bytes = 16 hex chars
	if _, err := rand.Read(b); err != nil {
		return GenerateRandomUUID()[:16] // fallback
	}
	return hex.EncodeToString(b)
}
