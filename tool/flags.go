package tool

import (
	"flag"
	"fmt"
	"strings"

	"github.com/mkesani1/intake-go/types"
)

// SetFlags parses CLI flags and returns the override config.
func SetFlags() types.Flags {
	cfg := types.Flags{FormData: map[string]string{}}
	flag.StringVar(&cfg.Log, "log", "", "log mode: dev|prod")
	flag.StringVar(&cfg.ConfigPath, "useConfigPath", "", "override config file path")
	flag.StringVar(&cfg.Endpoint, "endpoint", "", "override intake API endpoint")
	flag.StringVar(&cfg.File, "file", "", "sample file to upload")
	flag.Func("data", "extra form_data entry as key=value (repeatable)", func(v string) error {
		key, value, ok := strings.Cut(v, "=")
		if !ok || key == "" {
			return fmt.Errorf("expected key=value, got %q", v)
		}
		cfg.FormData[key] = value
		return nil
	})
	flag.BoolVar(&cfg.Probe, "probe", false, "ICMP-probe the endpoint host before uploading")
	flag.StringVar(&cfg.QRPath, "qr", "", "write a QR code PNG of the status URL to this path")
	flag.IntVar(&cfg.PollInterval, "pollInterval", 0, "status poll interval in seconds (0 = config value)")
	flag.IntVar(&cfg.MaxPolls, "maxPolls", 0, "stop polling after this many status requests (0 = config value)")
	flag.BoolVar(&cfg.Notify, "notify", false, "serve session state to local UIs over WebSocket")
	flag.StringVar(&cfg.NotifyAddr, "notifyAddr", "", "override notify listen address")
	flag.BoolVar(&cfg.Sandbox, "sandbox", false, "run the local stand-in intake backend instead of uploading")
	flag.StringVar(&cfg.SandboxAddr, "sandboxAddr", "", "override sandbox listen address")
	flag.Parse()
	return cfg
}
