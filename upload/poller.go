package upload

import (
	"context"
	"math"
	"time"

	"github.com/charmbracelet/log"

	"github.com/mkesani1/intake-go/tool"
	"github.com/mkesani1/intake-go/transfer"
	"github.com/mkesani1/intake-go/types"
)

const (
	// DefaultPollInterval is the delay between status fetches.
	DefaultPollInterval = 3 * time.Second

	// DefaultETASeconds is reported while processing when the server gives
	// no estimate and no progress percentage to extrapolate from.
	DefaultETASeconds int64 = 120
)

// Poller watches a server-side upload until it reaches a terminal status,
// folding every snapshot into the session. Transient fetch errors are
// logged and the loop keeps going; the server will be asked again on the
// next tick.
type Poller struct {
	endpoint  string
	authToken string
	interval  time.Duration
	maxPolls  int
	log       *log.Logger
}

// NewPoller builds a poller against the given API endpoint. A non-positive
// interval falls back to DefaultPollInterval; maxPolls <= 0 polls until the
// upload terminates or ctx ends.
func NewPoller(endpoint, authToken string, interval time.Duration, maxPolls int) *Poller {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	return &Poller{
		endpoint:  endpoint,
		authToken: authToken,
		interval:  interval,
		maxPolls:  maxPolls,
		log:       tool.DefaultLogger,
	}
}

// Run polls uploadID until the session is terminal, the poll budget runs
// out, or ctx is done. Updates are attributed to attemptID so a canceled
// attempt cannot touch the session afterwards.
func (p *Poller) Run(ctx context.Context, session *Session, attemptID, uploadID string) error {
	if uploadID == "" {
		return nil
	}

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	var processingStarted time.Time
	polls := 0
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}

		if session.Terminal() {
			return nil
		}
		if p.maxPolls > 0 && polls >= p.maxPolls {
			p.log.Warnf("Giving up on upload %s after %d status polls", uploadID, polls)
			return nil
		}
		polls++

		status, err := transfer.FetchStatus(ctx, p.endpoint, p.authToken, uploadID)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			p.log.Warnf("Status poll for upload %s failed: %v", uploadID, err)
			continue
		}

		mapped, ok := types.UploadStatusFrom(status.Status)
		if !ok {
			p.log.Debugf("Upload %s reported unknown status %q, keeping current state", uploadID, status.Status)
			continue
		}

		if mapped == types.StatusProcessing && processingStarted.IsZero() {
			processingStarted = time.Now()
		}

		update := serverUpdate{
			status:   mapped,
			analysis: status.AnalysisResult,
			step:     processingStep(mapped, status.AnalysisResult),
		}
		if mapped == types.StatusProcessing {
			elapsed := time.Duration(0)
			if !processingStarted.IsZero() {
				elapsed = time.Since(processingStarted)
			}
			eta := estimateETA(status.AnalysisResult, elapsed)
			update.eta = &eta
		}
		switch mapped {
		case types.StatusFailed:
			update.message = analysisString(status.AnalysisResult, "error", "Processing failed")
		case types.StatusQuarantined:
			update.message = analysisString(status.AnalysisResult, "reason", "File was quarantined by the malware scan")
		}

		session.applyServerUpdate(attemptID, update)

		if mapped.Terminal() {
			return nil
		}
	}
}

// estimateETA picks the remaining-seconds estimate for a processing upload.
// A server-provided estimate wins; otherwise the elapsed processing time is
// extrapolated from the reported completion percentage; with neither, a flat
// placeholder is used.
func estimateETA(analysis map[string]any, elapsed time.Duration) int64 {
	if v, ok := analysisNumber(analysis, "estimated_seconds_remaining"); ok && v >= 0 {
		return int64(math.Round(v))
	}
	if pct, ok := analysisNumber(analysis, "progress_percent"); ok && pct > 0 && pct <= 100 {
		total := elapsed.Seconds() * (100 / pct)
		remaining := int64(math.Round(total - elapsed.Seconds()))
		if remaining < 0 {
			remaining = 0
		}
		return remaining
	}
	return DefaultETASeconds
}

func analysisNumber(m map[string]any, key string) (float64, bool) {
	if m == nil {
		return 0, false
	}
	switch v := m[key].(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	}
	return 0, false
}

func analysisString(m map[string]any, key, fallback string) string {
	if m != nil {
		if s, ok := m[key].(string); ok && s != "" {
			return s
		}
	}
	return fallback
}

// processingStep names the pipeline stage shown to the user. The server may
// publish one in the analysis hints; otherwise the raw status doubles as the
// step for the in-pipeline states.
func processingStep(status types.UploadStatus, analysis map[string]any) string {
	if m := analysis; m != nil {
		if s, ok := m["step"].(string); ok && s != "" {
			return s
		}
	}
	switch status {
	case types.StatusScanning, types.StatusProcessing:
		return string(status)
	}
	return ""
}
