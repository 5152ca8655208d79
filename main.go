package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/skip2/go-qrcode"

	"github.com/mkesani1/intake-go/intaketest"
	"github.com/mkesani1/intake-go/notifyhub"
	"github.com/mkesani1/intake-go/tool"
	"github.com/mkesani1/intake-go/types"
	"github.com/mkesani1/intake-go/upload"
)

func main() {
	flags := tool.SetFlags()

	// .env is optional and only for local development; real deployments set
	// INTAKE_* variables directly.
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		tool.DefaultLogger.Warnf("Failed to load .env: %v", err)
	}

	tool.InitLogger()
	setLogLevel(flags.Log)

	appCfg, err := tool.LoadConfig(flags.ConfigPath)
	if err != nil {
		tool.DefaultLogger.Fatalf("%v", err)
	}
	applyFlagOverrides(&appCfg, flags)
	tool.SetHTTPTimeout(time.Duration(appCfg.HTTPTimeoutSeconds) * time.Second)

	if flags.Sandbox {
		runSandbox(appCfg)
		return
	}

	if flags.File == "" {
		tool.DefaultLogger.Fatalf("No file given: run with -file <path>, or -sandbox for the local backend")
	}
	os.Exit(runUpload(appCfg, flags))
}

func setLogLevel(mode string) {
	switch strings.ToLower(mode) {
	case "", "dev":
		tool.DefaultLogger.SetLevel(log.DebugLevel)
	case "prod":
		tool.DefaultLogger.SetLevel(log.InfoLevel)
	case "none":
		tool.DefaultLogger.SetLevel(log.FatalLevel)
	default:
		tool.DefaultLogger.Warnf("Unknown log mode %q, using debug level", mode)
		tool.DefaultLogger.SetLevel(log.DebugLevel)
	}
}

func applyFlagOverrides(cfg *types.AppConfig, flags types.Flags) {
	if flags.Endpoint != "" {
		cfg.Endpoint = tool.NormalizeEndpoint(flags.Endpoint)
	}
	if flags.PollInterval > 0 {
		cfg.PollIntervalSeconds = flags.PollInterval
	}
	if flags.MaxPolls > 0 {
		cfg.MaxPolls = flags.MaxPolls
	}
	if flags.Notify {
		cfg.Notify.Enabled = true
	}
	if flags.NotifyAddr != "" {
		cfg.Notify.Addr = flags.NotifyAddr
	}
	if flags.SandboxAddr != "" {
		cfg.Sandbox.Addr = flags.SandboxAddr
	}
}

// runSandbox serves the local stand-in intake backend and blocks.
func runSandbox(cfg types.AppConfig) {
	final, _ := types.UploadStatusFrom(cfg.Sandbox.FinalStatus)
	server := intaketest.NewServer(intaketest.Options{
		ScanDelay:    time.Duration(cfg.Sandbox.ScanDelayMs) * time.Millisecond,
		ProcessDelay: time.Duration(cfg.Sandbox.ProcessDelayMs) * time.Millisecond,
		FinalStatus:  final,
		ServerETA:    true,
	})
	if err := server.Run(cfg.Sandbox.Addr); err != nil {
		tool.DefaultLogger.Fatalf("Sandbox server failed: %v", err)
	}
}

// runUpload drives one file through the full intake pipeline and returns the
// process exit code: 0 only when the final status is completed.
func runUpload(cfg types.AppConfig, flags types.Flags) int {
	ctx := context.Background()

	if flags.Probe {
		if result, err := tool.ProbeEndpoint(ctx, cfg.Endpoint); err != nil {
			tool.DefaultLogger.Warnf("Endpoint probe failed, continuing anyway: %v", err)
		} else {
			tool.DefaultLogger.Infof("Endpoint %s reachable: avg rtt %s, loss %.0f%%",
				result.Host, result.AvgRtt, result.PacketLoss)
		}
	}

	src, err := upload.FileSource(flags.File)
	if err != nil {
		tool.DefaultLogger.Fatalf("%v", err)
	}
	tool.DefaultLogger.Infof("Selected %s: %d bytes, %s (%s)",
		src.Info.Name, src.Info.Size, src.Info.MimeType, orUnknown(string(src.Info.SemanticType)))

	formData := map[string]string{"client_version": tool.ClientVersion}
	if sum, err := tool.FileChecksum(flags.File); err == nil {
		formData["sha256"] = sum
	} else {
		tool.DefaultLogger.Warnf("Failed to hash %s: %v", flags.File, err)
	}
	for k, v := range flags.FormData {
		formData[k] = v
	}

	session := upload.NewSession(src.Info)
	if cfg.Notify.Enabled {
		startNotifyHub(session, cfg.Notify.Addr)
	}
	if flags.QRPath != "" {
		watchForStatusQR(session, cfg.Endpoint, flags.QRPath)
	}
	unsubscribe := session.Subscribe(logTransitions())
	defer unsubscribe()

	orchestrator := upload.NewOrchestrator(cfg)
	attempt, err := orchestrator.Start(ctx, session, src, formData)
	if err != nil {
		tool.DefaultLogger.Fatalf("Failed to start upload: %v", err)
	}

	canceler := upload.NewCanceler(cfg.Endpoint, cfg.AuthToken)
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		<-sigCh
		tool.DefaultLogger.Warnf("Interrupt received, canceling upload")
		canceler.Cancel(ctx, session)
		<-sigCh
		tool.DefaultLogger.Errorf("Second interrupt, exiting now")
		os.Exit(1)
	}()

	go func() {
		for {
			select {
			case p := <-attempt.Progress():
				tool.DefaultLogger.Infof("Uploading %s: %d%% (%d/%d bytes)",
					src.Info.Name, p.Percentage, p.LoadedBytes, p.TotalBytes)
			case <-attempt.Done():
				return
			}
		}
	}()

	final, _ := attempt.Wait(context.Background())
	switch final.Status {
	case types.StatusCompleted:
		tool.DefaultLogger.Infof("Upload of %s completed", final.File.Name)
		if len(final.AnalysisResult) > 0 {
			tool.DefaultLogger.Infof("Analysis result: %v", final.AnalysisResult)
		}
		return 0
	case types.StatusQuarantined:
		tool.DefaultLogger.Errorf("Upload of %s was quarantined: %s", final.File.Name, final.ErrorMessage)
		return 1
	default:
		tool.DefaultLogger.Errorf("Upload of %s did not complete (status %s): %s",
			final.File.Name, final.Status, final.ErrorMessage)
		return 1
	}
}

// logTransitions returns a session observer that logs each status change
// once, with the processing step and ETA when known.
func logTransitions() func(types.UploadState) {
	var mu sync.Mutex
	var last types.UploadStatus
	return func(st types.UploadState) {
		mu.Lock()
		changed := st.Status != last
		last = st.Status
		mu.Unlock()
		if !changed {
			return
		}
		switch {
		case st.Status == types.StatusProcessing && st.EstimatedSecondsRemaining != nil:
			tool.DefaultLogger.Infof("Status: %s (step %s, about %ds remaining)",
				st.Status, orUnknown(st.ProcessingStep), *st.EstimatedSecondsRemaining)
		case st.ProcessingStep != "":
			tool.DefaultLogger.Infof("Status: %s (step %s)", st.Status, st.ProcessingStep)
		default:
			tool.DefaultLogger.Infof("Status: %s", st.Status)
		}
	}
}

// watchForStatusQR writes a QR code PNG of the status URL as soon as the
// server assigns an upload id, so the pipeline can be watched from a phone.
func watchForStatusQR(session *upload.Session, endpoint, path string) {
	var once sync.Once
	session.Subscribe(func(st types.UploadState) {
		if st.ServerUploadID == "" {
			return
		}
		once.Do(func() {
			url := tool.BuildUploadStatusURL(endpoint, st.ServerUploadID)
			if err := qrcode.WriteFile(url, qrcode.Medium, 256, path); err != nil {
				tool.DefaultLogger.Warnf("Failed to write status QR code: %v", err)
				return
			}
			tool.DefaultLogger.Infof("Status URL QR code written to %s (%s)", path, url)
		})
	})
}

// startNotifyHub mirrors session state to local UIs over WebSocket.
func startNotifyHub(session *upload.Session, addr string) {
	hub := notifyhub.New()
	session.Subscribe(notifyhub.StateObserver(hub))

	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.GET("/notify-ws", tool.OnlyAllowLocal, notifyhub.HandleNotifyWS(hub))

	go func() {
		tool.DefaultLogger.Infof("Notify hub listening on ws://%s/notify-ws", addr)
		if err := http.ListenAndServe(addr, engine); err != nil {
			tool.DefaultLogger.Errorf("Notify hub server failed: %v", err)
		}
	}()
}

func orUnknown(s string) string {
	if s == "" {
		return "unknown"
	}
	return s
}
