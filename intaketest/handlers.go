package intaketest

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"math"
	"net/http"
	"time"

	"github.com/bytedance/sonic"
	"github.com/gin-gonic/gin"

	"github.com/mkesani1/intake-go/tool"
	"github.com/mkesani1/intake-go/types"
)

// respondJSON writes v through sonic so responses go through the same codec
// the client parses with.
func respondJSON(c *gin.Context, code int, v any) {
	payload, err := sonic.Marshal(v)
	if err != nil {
		tool.DefaultLogger.Errorf("[Sandbox] Failed to encode response: %v", err)
		c.JSON(http.StatusInternalServerError, tool.FastReturnError("Failed to encode response"))
		return
	}
	c.Data(code, "application/json; charset=utf-8", payload)
}

// handleRequestUpload implements POST /api/uploads: validate the request,
// mint an upload record and answer with a presigned URL pointing back at
// this server's /storage endpoint.
func (s *Server) handleRequestUpload(c *gin.Context) {
	body, err := c.GetRawData()
	if err != nil {
		tool.DefaultLogger.Errorf("[Sandbox] Failed to read upload request body: %v", err)
		c.JSON(http.StatusBadRequest, tool.FastReturnError("Failed to read request body"))
		return
	}

	var request types.UploadRequest
	if err := sonic.Unmarshal(body, &request); err != nil {
		c.JSON(http.StatusBadRequest, tool.FastReturnError("Invalid request body"))
		return
	}
	if request.Filename == "" {
		c.JSON(http.StatusBadRequest, tool.FastReturnError("filename is required"))
		return
	}
	if request.Size <= 0 {
		c.JSON(http.StatusBadRequest, tool.FastReturnError("size must be positive"))
		return
	}
	if s.opts.MaxSizeBytes > 0 && request.Size > s.opts.MaxSizeBytes {
		c.JSON(http.StatusRequestEntityTooLarge, tool.FastReturnError("file exceeds the size limit"))
		return
	}

	now := time.Now()
	rec := &uploadRecord{
		ID:        tool.GenerateRandomUUID(),
		Filename:  request.Filename,
		Size:      request.Size,
		MimeType:  request.MimeType,
		FormData:  request.FormData,
		Token:     tool.GenerateUploadToken(),
		ExpiresAt: now.Add(s.opts.PresignedTTL),
		Status:    types.StatusPending,
	}
	rec.ObjectKey = fmt.Sprintf("samples/%s/%s", rec.ID, rec.Filename)
	s.store.put(rec)

	tool.DefaultLogger.Infof("[Sandbox] Upload slot granted: id=%s file=%s size=%d", rec.ID, rec.Filename, rec.Size)
	respondJSON(c, http.StatusOK, &types.UploadResponse{
		UploadID:     rec.ID,
		PresignedURL: fmt.Sprintf("http://%s/storage/%s", c.Request.Host, rec.ID),
		PresignedFields: map[string]string{
			"key":            rec.ObjectKey,
			"x-intake-token": rec.Token,
		},
		ExpiresAt: rec.ExpiresAt,
		Status:    string(rec.Status),
	})
}

// handleStoragePost implements the presigned POST target. It walks the
// multipart stream in wire order and rejects any file part that arrives
// before all presigned fields, the same way S3-style storage evaluates its
// policy fields.
func (s *Server) handleStoragePost(c *gin.Context) {
	id := c.Param("id")
	rec, ok := s.store.get(id)
	if !ok {
		c.JSON(http.StatusNotFound, tool.FastReturnError("unknown upload"))
		return
	}
	if time.Now().After(rec.ExpiresAt) {
		c.JSON(http.StatusForbidden, tool.FastReturnError("presigned URL expired"))
		return
	}

	mr, err := c.Request.MultipartReader()
	if err != nil {
		c.JSON(http.StatusBadRequest, tool.FastReturnError("expected multipart/form-data body"))
		return
	}

	seen := map[string]string{}
	var written int64
	var etag string
	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			c.JSON(http.StatusBadRequest, tool.FastReturnError("malformed multipart body"))
			return
		}

		if part.FormName() != "file" {
			value, err := io.ReadAll(io.LimitReader(part, 8<<10))
			if err != nil {
				c.JSON(http.StatusBadRequest, tool.FastReturnError("failed to read form field"))
				return
			}
			seen[part.FormName()] = string(value)
			continue
		}

		// Policy fields are evaluated before the object body streams in; a
		// file part ahead of them is a contract violation.
		if seen["key"] != rec.ObjectKey || seen["x-intake-token"] == "" {
			tool.DefaultLogger.Errorf("[Sandbox] File part arrived before presigned fields for %s", id)
			c.JSON(http.StatusBadRequest, tool.FastReturnError("file field must follow the presigned fields"))
			return
		}
		if seen["x-intake-token"] != rec.Token {
			c.JSON(http.StatusForbidden, tool.FastReturnError("invalid upload token"))
			return
		}

		hasher := sha256.New()
		n, err := tool.CopyWithContext(c.Request.Context(), hasher, part)
		if err != nil {
			tool.DefaultLogger.Errorf("[Sandbox] Storage stream for %s failed after %d bytes: %v", id, n, err)
			c.JSON(http.StatusInternalServerError, tool.FastReturnError("failed to read file content"))
			return
		}
		written = n
		etag = hex.EncodeToString(hasher.Sum(nil))
	}

	if etag == "" {
		c.JSON(http.StatusBadRequest, tool.FastReturnError("missing file field"))
		return
	}
	if rec.Size > 0 && written != rec.Size {
		c.JSON(http.StatusBadRequest, tool.FastReturnError("size mismatch"))
		return
	}

	s.store.update(id, func(r *uploadRecord) {
		r.ReceivedBytes = written
		r.ETag = etag
		r.Status = types.StatusUploaded
	})

	tool.DefaultLogger.Infof("[Sandbox] Stored %d bytes for upload %s (etag %s)", written, id, etag)
	c.Header("ETag", `"`+etag+`"`)
	c.Status(http.StatusNoContent)
}

// handleComplete implements POST /api/uploads/complete: the client's
// completion notice moves an uploaded record into the scan pipeline.
func (s *Server) handleComplete(c *gin.Context) {
	body, err := c.GetRawData()
	if err != nil {
		c.JSON(http.StatusBadRequest, tool.FastReturnError("Failed to read request body"))
		return
	}
	var request types.CompleteRequest
	if err := sonic.Unmarshal(body, &request); err != nil {
		c.JSON(http.StatusBadRequest, tool.FastReturnError("Invalid request body"))
		return
	}
	if request.UploadID == "" {
		c.JSON(http.StatusBadRequest, tool.FastReturnError("upload_id is required"))
		return
	}

	rec, ok := s.store.get(request.UploadID)
	if !ok {
		c.JSON(http.StatusNotFound, tool.FastReturnError("unknown upload"))
		return
	}

	if !request.Success {
		s.store.update(rec.ID, func(r *uploadRecord) {
			r.Status = types.StatusFailed
			r.AnalysisResult = map[string]any{"error": "client reported a failed transfer"}
		})
		respondJSON(c, http.StatusOK, &types.CompleteResponse{
			Success:  true,
			Message:  "upload marked failed",
			UploadID: rec.ID,
		})
		return
	}

	switch rec.Status {
	case types.StatusPending:
		c.JSON(http.StatusBadRequest, tool.FastReturnError("no object stored for this upload"))
		return
	case types.StatusUploaded:
		// proceed
	default:
		respondJSON(c, http.StatusOK, &types.CompleteResponse{
			Success:  true,
			Message:  "already in pipeline",
			UploadID: rec.ID,
		})
		return
	}

	if request.ETag != "" && rec.ETag != "" && request.ETag != rec.ETag {
		c.JSON(http.StatusBadRequest, tool.FastReturnError("etag does not match the stored object"))
		return
	}

	if s.store.advance(rec.ID, types.StatusUploaded, types.StatusScanning, nil) {
		go s.walkPipeline(rec.ID)
	}

	tool.DefaultLogger.Infof("[Sandbox] Upload %s entering the scan pipeline", rec.ID)
	respondJSON(c, http.StatusOK, &types.CompleteResponse{
		Success:  true,
		Message:  "processing started",
		UploadID: rec.ID,
	})
}

// walkPipeline simulates the server-side scan/analysis pipeline on the
// configured delays. Each transition re-checks the record: a deleted or
// failed upload stops the walk.
func (s *Server) walkPipeline(id string) {
	time.Sleep(s.opts.ScanDelay)
	if !s.store.advance(id, types.StatusScanning, types.StatusProcessing, func(r *uploadRecord) {
		r.ProcessingStarted = time.Now()
	}) {
		return
	}

	time.Sleep(s.opts.ProcessDelay)
	final := s.opts.FinalStatus
	s.store.advance(id, types.StatusProcessing, final, func(r *uploadRecord) {
		now := time.Now()
		r.ProcessedAt = &now
		switch final {
		case types.StatusQuarantined:
			r.AnalysisResult = map[string]any{"reason": "Malware scan flagged the file"}
		case types.StatusFailed:
			r.AnalysisResult = map[string]any{"error": "Analysis pipeline error"}
		default:
			r.AnalysisResult = map[string]any{
				"verdict":      "clean",
				"sha256":       r.ETag,
				"size_bytes":   r.ReceivedBytes,
				"content_type": r.MimeType,
			}
		}
	})
}

// handleStatus implements GET /api/uploads/:id/status. While the record is
// in the pipeline the analysis_result carries progress hints; at completion
// it carries the analysis output.
func (s *Server) handleStatus(c *gin.Context) {
	rec, ok := s.store.get(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, tool.FastReturnError("unknown upload"))
		return
	}

	response := &types.StatusResponse{
		UploadID:    rec.ID,
		Filename:    rec.Filename,
		Status:      string(rec.Status),
		ProcessedAt: rec.ProcessedAt,
	}
	switch rec.Status {
	case types.StatusScanning:
		response.AnalysisResult = map[string]any{"step": "malware_scan"}
	case types.StatusProcessing:
		response.AnalysisResult = s.processingHints(rec)
	default:
		response.AnalysisResult = rec.AnalysisResult
	}

	respondJSON(c, http.StatusOK, response)
}

// processingHints derives the optional progress keys from how far the walker
// has come through ProcessDelay.
func (s *Server) processingHints(rec uploadRecord) map[string]any {
	hints := map[string]any{"step": "analysis"}
	if rec.ProcessingStarted.IsZero() || s.opts.ProcessDelay <= 0 {
		return hints
	}
	elapsed := time.Since(rec.ProcessingStarted)
	pct := math.Round(float64(elapsed) / float64(s.opts.ProcessDelay) * 100)
	if pct < 1 {
		pct = 1
	}
	if pct > 99 {
		pct = 99
	}
	hints["progress_percent"] = pct
	if s.opts.ServerETA {
		remaining := math.Ceil((s.opts.ProcessDelay - elapsed).Seconds())
		if remaining < 0 {
			remaining = 0
		}
		hints["estimated_seconds_remaining"] = remaining
	}
	return hints
}

// handleDelete implements DELETE /api/uploads/:id. A missing record answers
// 404 with success=false so cancellation can treat it as already gone.
func (s *Server) handleDelete(c *gin.Context) {
	id := c.Param("id")
	if !s.store.delete(id) {
		respondJSON(c, http.StatusNotFound, &types.DeleteResponse{Success: false})
		return
	}
	tool.DefaultLogger.Infof("[Sandbox] Upload %s deleted", id)
	respondJSON(c, http.StatusOK, &types.DeleteResponse{Success: true})
}
