package tool

import (
	"fmt"
	"os"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"

	"github.com/mkesani1/intake-go/types"
)

var (
	ConfigPath    = "config.yaml" // be aware that it can be changed, default to ./config.yaml
	CurrentConfig types.AppConfig
)

// Default acceptance policy: 50 MB cap, all five sample categories, no extra
// MIME restriction beyond the semantic tables.
func DefaultUploadConfig() types.UploadConfig {
	return types.UploadConfig{
		MaxSizeBytes: 50 * 1024 * 1024,
		AllowedTypes: []types.SemanticFileType{
			types.FileTypeCSV,
			types.FileTypeJSON,
			types.FileTypeXML,
			types.FileTypeImage,
			types.FileTypeAudio,
		},
		AcceptedMimeTypes: nil,
		MaxFileNameLength: 255,
	}
}

func defaultConfig() types.AppConfig {
	return types.AppConfig{
		Endpoint:            "http://127.0.0.1:8787/api", // the sandbox default, point it at the real API in config.yaml
		AuthToken:           "",
		HTTPTimeoutSeconds:  30,
		PollIntervalSeconds: 3, // the processing pipeline is slow, no point hammering it
		MaxPolls:            0, // poll until terminal
		Upload:              DefaultUploadConfig(),
		Notify: types.NotifyConfig{
			Enabled: false,
			Addr:    "127.0.0.1:8788",
		},
		Sandbox: types.SandboxConfig{
			Addr:           "127.0.0.1:8787",
			ScanDelayMs:    1500,
			ProcessDelayMs: 3000,
			FinalStatus:    string(types.StatusCompleted),
		},
	}
}

// LoadConfig reads the YAML config at path (defaults written back when the
// file does not exist yet), then applies INTAKE_* environment overrides.
func LoadConfig(path string) (types.AppConfig, error) {
	if path == "" {
		path = ConfigPath
	}
	ConfigPath = path

	cfg := defaultConfig()

	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			if writeErr := writeConfig(path, cfg); writeErr != nil {
				return cfg, fmt.Errorf("config file not found, and failed to generate default config: %v", writeErr)
			}
			DefaultLogger.Infof("Created new config file at %s with defaults", path)
			return finishLoad(cfg)
		}
		return cfg, fmt.Errorf("failed to read config file: %v", err)
	}
	if info.IsDir() {
		return cfg, fmt.Errorf("config file path is a directory: %s", path)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("failed to read config file: %v", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse config file: %v", err)
	}
	return finishLoad(cfg)
}

// finishLoad layers env vars over the file values and backfills anything a
// hand-edited file left empty.
func finishLoad(cfg types.AppConfig) (types.AppConfig, error) {
	if err := env.Parse(&cfg); err != nil {
		return cfg, fmt.Errorf("failed to apply environment overrides: %v", err)
	}
	normalizeConfig(&cfg)
	CurrentConfig = cfg
	return cfg, nil
}

func normalizeConfig(cfg *types.AppConfig) {
	def := defaultConfig()
	if cfg.Endpoint == "" {
		cfg.Endpoint = def.Endpoint
	}
	cfg.Endpoint = NormalizeEndpoint(cfg.Endpoint)
	if cfg.HTTPTimeoutSeconds <= 0 {
		cfg.HTTPTimeoutSeconds = def.HTTPTimeoutSeconds
	}
	if cfg.PollIntervalSeconds <= 0 {
		cfg.PollIntervalSeconds = def.PollIntervalSeconds
	}
	if cfg.MaxPolls < 0 {
		cfg.MaxPolls = 0
	}
	if cfg.Upload.MaxSizeBytes <= 0 {
		cfg.Upload.MaxSizeBytes = def.Upload.MaxSizeBytes
	}
	if len(cfg.Upload.AllowedTypes) == 0 {
		cfg.Upload.AllowedTypes = def.Upload.AllowedTypes
	}
	if cfg.Upload.MaxFileNameLength <= 0 {
		cfg.Upload.MaxFileNameLength = def.Upload.MaxFileNameLength
	}
	if cfg.Notify.Addr == "" {
		cfg.Notify.Addr = def.Notify.Addr
	}
	if cfg.Sandbox.Addr == "" {
		cfg.Sandbox.Addr = def.Sandbox.Addr
	}
	if cfg.Sandbox.FinalStatus == "" {
		cfg.Sandbox.FinalStatus = def.Sandbox.FinalStatus
	}
}

func writeConfig(path string, cfg types.AppConfig) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func GetCurrentConfig() *types.AppConfig {
	return &CurrentConfig
}

// PersistConfig updates the in-memory config and writes it back to the
// config file.
func PersistConfig(cfg *types.AppConfig) {
	if cfg == nil {
		return
	}
	CurrentConfig = *cfg
	if err := writeConfig(ConfigPath, CurrentConfig); err != nil {
		DefaultLogger.Warnf("Failed to persist config: %v", err)
	}
}
