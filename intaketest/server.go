package intaketest

import (
	"net/http"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"github.com/mkesani1/intake-go/tool"
	"github.com/mkesani1/intake-go/types"
)

// Options tunes the sandbox behavior. The zero value gives a fast, friendly
// backend: short pipeline delays, completed as the final status, no rate
// limit, no size limit.
type Options struct {
	// ScanDelay is how long an upload sits in scanning after completion is
	// notified; ProcessDelay how long it sits in processing after that.
	ScanDelay    time.Duration
	ProcessDelay time.Duration

	// FinalStatus is where the pipeline walker ends: completed, failed or
	// quarantined. Anything else falls back to completed.
	FinalStatus types.UploadStatus

	// ServerETA includes estimated_seconds_remaining in the processing
	// status hints, exercising the client's prefer-server-estimate path.
	ServerETA bool

	// MaxSizeBytes rejects upload requests above it with 413. Zero means no
	// limit.
	MaxSizeBytes int64

	// RequestsPerSecond throttles the API endpoints with 429 when positive.
	RequestsPerSecond float64

	// PresignedTTL is the presigned window length. Storage POSTs after it
	// has passed answer 403. Defaults to 15 minutes.
	PresignedTTL time.Duration
}

func (o *Options) withDefaults() {
	if o.ScanDelay <= 0 {
		o.ScanDelay = 20 * time.Millisecond
	}
	if o.ProcessDelay <= 0 {
		o.ProcessDelay = 40 * time.Millisecond
	}
	if _, ok := types.UploadStatusFrom(string(o.FinalStatus)); !ok || !o.FinalStatus.Terminal() {
		o.FinalStatus = types.StatusCompleted
	}
	if o.PresignedTTL == 0 {
		o.PresignedTTL = 15 * time.Minute
	}
}

// Server is an in-process intake backend implementing the upload API
// contract. Tests run it through Handler(); the -sandbox CLI mode runs it
// through Run().
type Server struct {
	opts    Options
	store   *store
	limiter *rate.Limiter

	mu     sync.Mutex
	engine *gin.Engine
	server *http.Server
}

// NewServer builds a sandbox backend with the given options.
func NewServer(opts Options) *Server {
	opts.withDefaults()
	s := &Server{
		opts:  opts,
		store: newStore(opts.PresignedTTL),
	}
	if opts.RequestsPerSecond > 0 {
		s.limiter = rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), 1)
	}
	s.engine = s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() *gin.Engine {
	if tool.DefaultLogger.GetLevel() == log.DebugLevel {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}
	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(tool.AllowAllCORS())

	api := engine.Group("/api", s.throttle)
	{
		api.POST("/uploads", s.handleRequestUpload)
		api.POST("/uploads/complete", s.handleComplete)
		api.GET("/uploads/:id/status", s.handleStatus)
		api.DELETE("/uploads/:id", s.handleDelete)
	}

	// The presigned URLs handed out by /api/uploads point back here.
	engine.POST("/storage/:id", s.handleStoragePost)

	return engine
}

// throttle applies the optional request budget to the API group. The storage
// endpoint is exempt: a presigned POST is not an API call.
func (s *Server) throttle(c *gin.Context) {
	if s.limiter != nil && !s.limiter.Allow() {
		c.AbortWithStatusJSON(http.StatusTooManyRequests, tool.FastReturnError("Too many requests"))
		return
	}
	c.Next()
}

// Handler exposes the sandbox as an http.Handler for httptest servers.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Run serves the sandbox on addr and blocks.
func (s *Server) Run(addr string) error {
	s.mu.Lock()
	s.server = &http.Server{
		Addr:    addr,
		Handler: s.engine,
	}
	srv := s.server
	s.mu.Unlock()

	tool.DefaultLogger.Infof("Sandbox intake backend listening on http://%s (final status: %s)", addr, s.opts.FinalStatus)
	return srv.ListenAndServe()
}
