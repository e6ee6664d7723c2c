package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/tailorcast/monitoring-agents-it/agent/internal/threshold"
)

// Default values applied when fields are absent from the config file.
const (
	DefaultSchedule       = "0 */6 * * *"
	DefaultTimeout        = 5 * time.Minute
	DefaultStateDir       = "./state"
	DefaultSSHPort        = 22
	DefaultSSHUser        = "ubuntu"
	DefaultAPITimeoutMs   = 5000
	DefaultPostgresPort   = 5432
	DefaultPostgresSSL    = "require"
	DefaultRegion         = "us-east-1"
	DefaultS3Endpoint     = "s3.amazonaws.com"
	DefaultDiskNamespace  = "CWAgent"
	DefaultLLMProvider    = "bedrock"
	DefaultLLMModel       = "us.anthropic.claude-3-5-haiku-20241022-v1:0"
	DefaultLLMMaxTokens   = 4096
	DefaultLLMBudgetUSD   = 3.0
	DefaultServerAddr     = ":8080"
	DefaultAPIKeyHeader   = "X-API-Key"
	DefaultLogLevel       = "info"
	DefaultLogFormat      = "json"
	historyFileName       = "metric_history.json"
	budgetFileName        = "llm_budget.json"
	lockFileName          = "agent.pid"
)

// ErrInvalid is wrapped by every validation error.
var ErrInvalid = errors.New("invalid config")

// Config is the full agent configuration. Fields map 1:1 to
// config.example.yaml.
type Config struct {
	Monitoring MonitoringConfig `yaml:"monitoring"`
	Targets    TargetsConfig    `yaml:"targets"`
	Thresholds threshold.Set    `yaml:"thresholds"`
	Telegram   TelegramConfig   `yaml:"telegram"`
	Webhooks   []WebhookConfig  `yaml:"webhooks"`

	// LLM is nil when the section is absent, which disables analysis.
	LLM *LLMConfig `yaml:"llm"`

	Server  ServerConfig  `yaml:"server"`
	Logging LoggingConfig `yaml:"logging"`
}

// MonitoringConfig controls cadence and local state.
type MonitoringConfig struct {
	// Schedule is a 5-field cron expression.
	Schedule string `yaml:"schedule"`

	// Timeout bounds one whole run, collectors included.
	Timeout time.Duration `yaml:"timeout"`

	// StateDir holds the incident history, budget file and PID lock.
	StateDir string `yaml:"state_dir"`

	// LockFile overrides the PID lock path.
	LockFile string `yaml:"lock_file"`

	// RunOnStart triggers one run immediately when the scheduler starts.
	RunOnStart *bool `yaml:"run_on_start"`
}

// HistoryPath is the incident counter file.
func (m MonitoringConfig) HistoryPath() string { return filepath.Join(m.StateDir, historyFileName) }

// BudgetPath is the LLM spend file.
func (m MonitoringConfig) BudgetPath() string { return filepath.Join(m.StateDir, budgetFileName) }

// LockPath is the PID lock file.
func (m MonitoringConfig) LockPath() string {
	if m.LockFile != "" {
		return m.LockFile
	}
	return filepath.Join(m.StateDir, lockFileName)
}

// StartImmediately reports whether the scheduler runs once at startup.
func (m MonitoringConfig) StartImmediately() bool {
	return m.RunOnStart == nil || *m.RunOnStart
}

// TargetsConfig lists everything that gets probed.
type TargetsConfig struct {
	VPSServers   []VPSServer   `yaml:"vps_servers"`
	EC2Instances []EC2Instance `yaml:"ec2_instances"`
	APIEndpoints []APIEndpoint `yaml:"api_endpoints"`
	Databases    []Database    `yaml:"databases"`
	LLMModels    []LLMModel    `yaml:"llm_models"`
	S3Buckets    []S3Bucket    `yaml:"s3_buckets"`
	TLSEndpoints []TLSEndpoint `yaml:"tls_endpoints"`
}

// VPSServer is a host reached over SSH. The docker collector uses the same
// list unless SkipDocker is set.
type VPSServer struct {
	Name       string `yaml:"name"`
	Host       string `yaml:"host"`
	Port       int    `yaml:"port"`
	Username   string `yaml:"username"`
	SSHKeyPath string `yaml:"ssh_key_path"`

	// NodeExporter, when set, is a node_exporter /metrics URL used instead
	// of SSH for resource readings.
	NodeExporter string `yaml:"node_exporter"`

	SkipDocker bool `yaml:"skip_docker"`
}

// Addr returns host:port for SSH.
func (v VPSServer) Addr() string { return fmt.Sprintf("%s:%d", v.Host, v.Port) }

// EC2Instance is an AWS instance checked through the EC2 and CloudWatch APIs.
type EC2Instance struct {
	InstanceID    string `yaml:"instance_id"`
	Name          string `yaml:"name"`
	Region        string `yaml:"region"`
	MonitorDisk   bool   `yaml:"monitor_disk"`
	DiskNamespace string `yaml:"disk_namespace"`
	DiskPath      string `yaml:"disk_path"`
	DiskDevice    string `yaml:"disk_device"`
	DiskFSType    string `yaml:"disk_fstype"`
}

// APIEndpoint is an HTTP health URL.
type APIEndpoint struct {
	Name      string `yaml:"name"`
	URL       string `yaml:"url"`
	TimeoutMs int    `yaml:"timeout_ms"`
}

// Timeout returns the request timeout.
func (a APIEndpoint) Timeout() time.Duration { return time.Duration(a.TimeoutMs) * time.Millisecond }

// Database is a PostgreSQL instance. Credentials come from POSTGRES_USER and
// POSTGRES_PASSWORD unless UserEnv/PasswordEnv name other variables.
type Database struct {
	Name        string `yaml:"name"`
	Host        string `yaml:"host"`
	Port        int    `yaml:"port"`
	Database    string `yaml:"database"`
	Table       string `yaml:"table"`
	SSLMode     string `yaml:"ssl_mode"`
	SSLRootCert string `yaml:"sslrootcert"`
	UserEnv     string `yaml:"user_env"`
	PasswordEnv string `yaml:"password_env"`
}

// DisplayName returns Name or host/database.
func (d Database) DisplayName() string {
	if d.Name != "" {
		return d.Name
	}
	return d.Host + "/" + d.Database
}

// User resolves the login from the environment.
func (d Database) User() string { return os.Getenv(envOr(d.UserEnv, "POSTGRES_USER")) }

// Password resolves the password from the environment.
func (d Database) Password() string { return os.Getenv(envOr(d.PasswordEnv, "POSTGRES_PASSWORD")) }

// LLMModel is a model endpoint probed for availability.
type LLMModel struct {
	Provider string `yaml:"provider"`
	Endpoint string `yaml:"endpoint"`
	ModelID  string `yaml:"model_id"`
	Region   string `yaml:"region"`

	// KeyEnv names the variable holding the Azure API key, AZURE_OPENAI_KEY by default.
	KeyEnv string `yaml:"key_env"`
}

// DisplayName identifies the model in reports.
func (l LLMModel) DisplayName() string {
	if l.ModelID != "" {
		return l.Provider + "/" + l.ModelID
	}
	return l.Provider
}

// Key resolves the API key from the environment.
func (l LLMModel) Key() string { return os.Getenv(envOr(l.KeyEnv, "AZURE_OPENAI_KEY")) }

// S3Bucket is an object storage bucket. Endpoint allows S3-compatible stores.
type S3Bucket struct {
	Bucket   string `yaml:"bucket"`
	Region   string `yaml:"region"`
	Endpoint string `yaml:"endpoint"`
	Insecure bool   `yaml:"insecure"`
}

// TLSEndpoint is a host whose certificate expiry is tracked.
type TLSEndpoint struct {
	Name               string `yaml:"name"`
	Address            string `yaml:"address"`
	ServerName         string `yaml:"server_name"`
	InsecureSkipVerify bool   `yaml:"insecure_skip_verify"`
}

// TelegramConfig is the primary delivery channel.
type TelegramConfig struct {
	BotToken string `yaml:"bot_token"`
	ChatID   string `yaml:"chat_id"`
}

// Enabled reports whether Telegram delivery is configured.
func (t TelegramConfig) Enabled() bool { return t.BotToken != "" && t.ChatID != "" }

// WebhookConfig defines one webhook delivery target.
type WebhookConfig struct {
	// Type is one of: slack | teams | http.
	Type string `yaml:"type"`

	// URLEnv is the name of the environment variable holding the webhook URL.
	URLEnv string `yaml:"url_env"`
}

// URL returns the webhook URL resolved from the environment.
func (w WebhookConfig) URL() string { return getenv(w.URLEnv) }

// LLMConfig configures the analysis model.
type LLMConfig struct {
	Provider       string  `yaml:"provider"`
	Model          string  `yaml:"model"`
	Region         string  `yaml:"region"`
	MaxTokens      int     `yaml:"max_tokens"`
	DailyBudgetUSD float64 `yaml:"daily_budget_usd"`
}

// ServerConfig configures the status API.
type ServerConfig struct {
	Enabled bool       `yaml:"enabled"`
	Addr    string     `yaml:"addr"`
	Auth    AuthConfig `yaml:"auth"`
}

// AuthConfig configures REST API authentication.
type AuthConfig struct {
	// Mode is one of: apikey | none.
	Mode string `yaml:"mode"`

	// Header is the HTTP header carrying the key.
	Header string `yaml:"header"`

	// KeyEnv is the name of the environment variable holding the expected API key.
	KeyEnv string `yaml:"key_env"`
}

// Key returns the API key resolved from the environment.
func (a AuthConfig) Key() string { return getenv(a.KeyEnv) }

// LoggingConfig selects the slog handler.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

var envPattern = regexp.MustCompile(`\$\{(\w+)\}`)

// expandEnv replaces ${VAR} with the variable's value. Unset variables
// expand to the empty string.
func expandEnv(data []byte) []byte {
	return envPattern.ReplaceAllFunc(data, func(m []byte) []byte {
		return []byte(os.Getenv(string(envPattern.FindSubmatch(m)[1])))
	})
}

// Load reads and parses the YAML config file at path.
// ${VAR} placeholders are expanded from the environment and missing
// optional fields are filled with defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read file: %w", err)
	}
	return Parse(data)
}

// Parse decodes a config document.
func Parse(data []byte) (*Config, error) {
	cfg := defaults()
	if err := yaml.Unmarshal(expandEnv(data), cfg); err != nil {
		return nil, fmt.Errorf("config: parse yaml: %w", err)
	}
	applyTargetDefaults(cfg)

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}

// defaults returns a Config pre-populated with default values.
func defaults() *Config {
	return &Config{
		Monitoring: MonitoringConfig{
			Schedule: DefaultSchedule,
			Timeout:  DefaultTimeout,
			StateDir: DefaultStateDir,
		},
		Thresholds: threshold.Default(),
		Server: ServerConfig{
			Addr: DefaultServerAddr,
		},
		Logging: LoggingConfig{
			Level:  DefaultLogLevel,
			Format: DefaultLogFormat,
		},
	}
}

// applyTargetDefaults fills per-entry defaults that yaml cannot pre-seed
// inside lists.
func applyTargetDefaults(cfg *Config) {
	t := &cfg.Targets
	for i := range t.VPSServers {
		v := &t.VPSServers[i]
		v.Port = intOr(v.Port, DefaultSSHPort)
		v.Username = strOr(v.Username, DefaultSSHUser)
	}
	for i := range t.EC2Instances {
		e := &t.EC2Instances[i]
		e.Region = strOr(e.Region, DefaultRegion)
		e.DiskNamespace = strOr(e.DiskNamespace, DefaultDiskNamespace)
		e.DiskPath = strOr(e.DiskPath, "/")
		e.Name = strOr(e.Name, e.InstanceID)
	}
	for i := range t.APIEndpoints {
		a := &t.APIEndpoints[i]
		a.TimeoutMs = intOr(a.TimeoutMs, DefaultAPITimeoutMs)
	}
	for i := range t.Databases {
		d := &t.Databases[i]
		d.Port = intOr(d.Port, DefaultPostgresPort)
		d.SSLMode = strOr(d.SSLMode, DefaultPostgresSSL)
	}
	for i := range t.LLMModels {
		l := &t.LLMModels[i]
		l.Region = strOr(l.Region, DefaultRegion)
	}
	for i := range t.S3Buckets {
		s := &t.S3Buckets[i]
		s.Region = strOr(s.Region, DefaultRegion)
		s.Endpoint = strOr(s.Endpoint, DefaultS3Endpoint)
	}
	for i := range t.TLSEndpoints {
		e := &t.TLSEndpoints[i]
		e.Name = strOr(e.Name, e.Address)
	}

	if l := cfg.LLM; l != nil {
		l.Provider = strOr(l.Provider, DefaultLLMProvider)
		l.Model = strOr(l.Model, DefaultLLMModel)
		l.Region = strOr(l.Region, DefaultRegion)
		l.MaxTokens = intOr(l.MaxTokens, DefaultLLMMaxTokens)
		if l.DailyBudgetUSD == 0 {
			l.DailyBudgetUSD = DefaultLLMBudgetUSD
		}
	}
	if cfg.Server.Auth.Mode == "apikey" {
		cfg.Server.Auth.Header = strOr(cfg.Server.Auth.Header, DefaultAPIKeyHeader)
	}
}

var bucketName = regexp.MustCompile(`^[a-z0-9][a-z0-9.-]*[a-z0-9]$`)

// validate checks required fields and structural constraints.
func validate(cfg *Config) error {
	m := cfg.Monitoring
	if n := len(strings.Fields(m.Schedule)); n != 5 {
		return invalid("monitoring.schedule: cron expression must have 5 fields, got %d", n)
	}
	if m.Timeout <= 0 {
		return invalid("monitoring.timeout must be positive")
	}
	if m.StateDir == "" {
		return invalid("monitoring.state_dir is required")
	}

	if err := validateThresholds(cfg.Thresholds); err != nil {
		return err
	}

	t := cfg.Targets
	for i, v := range t.VPSServers {
		if v.Name == "" || v.Host == "" {
			return invalid("targets.vps_servers[%d]: name and host are required", i)
		}
		if v.NodeExporter == "" && v.SSHKeyPath == "" {
			return invalid("targets.vps_servers[%d] %q: ssh_key_path or node_exporter is required", i, v.Name)
		}
	}
	for i, e := range t.EC2Instances {
		if e.InstanceID == "" {
			return invalid("targets.ec2_instances[%d]: instance_id is required", i)
		}
	}
	for i, a := range t.APIEndpoints {
		if a.Name == "" {
			return invalid("targets.api_endpoints[%d]: name is required", i)
		}
		if !strings.HasPrefix(a.URL, "http://") && !strings.HasPrefix(a.URL, "https://") {
			return invalid("targets.api_endpoints[%d] %q: url must start with http:// or https://", i, a.Name)
		}
	}
	for i, d := range t.Databases {
		if d.Host == "" || d.Database == "" {
			return invalid("targets.databases[%d]: host and database are required", i)
		}
	}
	for i, l := range t.LLMModels {
		switch l.Provider {
		case "bedrock":
			if l.ModelID == "" {
				return invalid("targets.llm_models[%d]: model_id is required for bedrock", i)
			}
		case "azure":
			if l.Endpoint == "" {
				return invalid("targets.llm_models[%d]: endpoint is required for azure", i)
			}
		default:
			return invalid("targets.llm_models[%d]: unknown provider %q", i, l.Provider)
		}
	}
	for i, s := range t.S3Buckets {
		if len(s.Bucket) < 3 || len(s.Bucket) > 63 || !bucketName.MatchString(s.Bucket) {
			return invalid("targets.s3_buckets[%d]: invalid bucket name %q", i, s.Bucket)
		}
	}
	for i, e := range t.TLSEndpoints {
		if e.Address == "" {
			return invalid("targets.tls_endpoints[%d]: address is required", i)
		}
	}

	if (cfg.Telegram.BotToken == "") != (cfg.Telegram.ChatID == "") {
		return invalid("telegram: bot_token and chat_id must be set together")
	}
	for i, w := range cfg.Webhooks {
		switch w.Type {
		case "slack", "teams", "http":
		default:
			return invalid("webhooks[%d]: unknown type %q", i, w.Type)
		}
		if w.URLEnv == "" {
			return invalid("webhooks[%d]: url_env is required", i)
		}
	}

	if l := cfg.LLM; l != nil {
		if l.Provider != "bedrock" && l.Provider != "none" {
			return invalid("llm.provider: unsupported provider %q", l.Provider)
		}
		if l.MaxTokens < 100 {
			return invalid("llm.max_tokens must be at least 100")
		}
		if l.DailyBudgetUSD < 0.1 {
			return invalid("llm.daily_budget_usd must be at least 0.1")
		}
	}

	switch cfg.Server.Auth.Mode {
	case "", "none":
	case "apikey":
		if cfg.Server.Auth.KeyEnv == "" {
			return invalid("server.auth.key_env is required for apikey mode")
		}
	default:
		return invalid("server.auth.mode: unknown mode %q", cfg.Server.Auth.Mode)
	}

	switch strings.ToLower(cfg.Logging.Format) {
	case "json", "text":
	default:
		return invalid("logging.format: unknown format %q", cfg.Logging.Format)
	}
	return nil
}

// validateThresholds rejects yellow cut-points that sit beyond red.
func validateThresholds(s threshold.Set) error {
	checks := []struct {
		family threshold.Family
		dir    threshold.Direction
	}{
		{threshold.FamilyCPU, threshold.HigherIsWorse},
		{threshold.FamilyRAM, threshold.HigherIsWorse},
		{threshold.FamilyDiskFree, threshold.LowerIsWorse},
		{threshold.FamilyAPIResponse, threshold.HigherIsWorse},
		{threshold.FamilyCertDays, threshold.LowerIsWorse},
	}
	for _, c := range checks {
		red, okR := s.Red(c.family)
		yellow, okY := s.Yellow(c.family)
		if !okR || !okY {
			continue
		}
		if threshold.Breached(yellow, red, c.dir) && yellow != red {
			return invalid("thresholds.%s: yellow cut-point %v is beyond red %v", c.family, yellow, red)
		}
	}
	return nil
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalid, fmt.Sprintf(format, args...))
}

func getenv(name string) string {
	if name == "" {
		return ""
	}
	return os.Getenv(name)
}

func envOr(name, fallback string) string {
	if name == "" {
		return fallback
	}
	return name
}

func strOr(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}

func intOr(v, fallback int) int {
	if v == 0 {
		return fallback
	}
	return v
}

// Count returns the number of configured targets across all kinds.
func (t TargetsConfig) Count() int {
	return len(t.VPSServers) + len(t.EC2Instances) + len(t.APIEndpoints) +
		len(t.Databases) + len(t.LLMModels) + len(t.S3Buckets) + len(t.TLSEndpoints)
}
