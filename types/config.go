package types

// UploadConfig is the client-side acceptance policy applied before any
// network call.
type UploadConfig struct {
	MaxSizeBytes      int64              `yaml:"max_size_bytes" env:"INTAKE_MAX_SIZE_BYTES"`
	AllowedTypes      []SemanticFileType `yaml:"allowed_types" env:"INTAKE_ALLOWED_TYPES"`
	AcceptedMimeTypes []string           `yaml:"accepted_mime_types,omitempty" env:"INTAKE_ACCEPTED_MIME_TYPES"`
	MaxFileNameLength int                `yaml:"max_file_name_length" env:"INTAKE_MAX_FILE_NAME_LENGTH"`
}

// AllowsType reports whether the semantic type is in the configured allow
// list. An empty list allows nothing; configs loaded through tool.LoadConfig
// always carry the default list.
func (c UploadConfig) AllowsType(t SemanticFileType) bool {
	for _, allowed := range c.AllowedTypes {
		if allowed == t {
			return true
		}
	}
	return false
}

// NotifyConfig controls the local WebSocket hub that mirrors session state
// to UIs.
type NotifyConfig struct {
	Enabled bool   `yaml:"enabled" env:"INTAKE_NOTIFY_ENABLED"`
	Addr    string `yaml:"addr" env:"INTAKE_NOTIFY_ADDR"`
}

// SandboxConfig configures the local stand-in backend (-sandbox mode).
type SandboxConfig struct {
	Addr           string `yaml:"addr" env:"INTAKE_SANDBOX_ADDR"`
	ScanDelayMs    int    `yaml:"scan_delay_ms"`
	ProcessDelayMs int    `yaml:"process_delay_ms"`
	FinalStatus    string `yaml:"final_status"`
}

// AppConfig is the stored configuration loaded from the YAML config file,
// overridable per-field through INTAKE_* environment variables.
type AppConfig struct {
	Endpoint            string        `yaml:"endpoint" env:"INTAKE_ENDPOINT"`
	AuthToken           string        `yaml:"auth_token,omitempty" env:"INTAKE_AUTH_TOKEN"`
	HTTPTimeoutSeconds  int           `yaml:"http_timeout_seconds" env:"INTAKE_HTTP_TIMEOUT_SECONDS"`
	PollIntervalSeconds int           `yaml:"poll_interval_seconds" env:"INTAKE_POLL_INTERVAL_SECONDS"`
	MaxPolls            int           `yaml:"max_polls" env:"INTAKE_MAX_POLLS"` // 0 = poll until terminal
	Upload              UploadConfig  `yaml:"upload"`
	Notify              NotifyConfig  `yaml:"notify"`
	Sandbox             SandboxConfig `yaml:"sandbox"`
}

// Flags holds runtime overrides from CLI flags.
type Flags struct {
	Log          string // log mode: dev|prod
	ConfigPath   string
	Endpoint     string
	File         string
	FormData     map[string]string // repeated -data key=value pairs
	Probe        bool              // ICMP preflight of the endpoint host
	QRPath       string            // write a status-URL QR PNG here once the upload is accepted
	PollInterval int               // seconds, overrides config when > 0
	MaxPolls     int               // overrides config when > 0
	Notify       bool
	NotifyAddr   string
	Sandbox      bool
	SandboxAddr  string
}
