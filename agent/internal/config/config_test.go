package config

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/tailorcast/monitoring-agents-it/agent/internal/threshold"
)

func TestLoad_Valid(t *testing.T) {
	t.Setenv("TG_TOKEN", "123:abc")
	yaml := `
monitoring:
  schedule: "*/15 * * * *"
  timeout: 2m
  state_dir: /var/lib/monitor
targets:
  vps_servers:
    - name: web-1
      host: 10.0.0.5
      ssh_key_path: /keys/id_ed25519
  api_endpoints:
    - name: checkout
      url: https://shop.example.com/health
  s3_buckets:
    - bucket: backups-prod
thresholds:
  cpu_red: 95
  api_slow_ms: 1500
telegram:
  bot_token: ${TG_TOKEN}
  chat_id: "-100200"
llm:
  daily_budget_usd: 1.5
`
	cfg := loadFromString(t, yaml)

	if cfg.Monitoring.Schedule != "*/15 * * * *" {
		t.Errorf("schedule: got %q", cfg.Monitoring.Schedule)
	}
	if cfg.Monitoring.Timeout != 2*time.Minute {
		t.Errorf("timeout: got %v", cfg.Monitoring.Timeout)
	}
	if got := cfg.Monitoring.HistoryPath(); got != "/var/lib/monitor/metric_history.json" {
		t.Errorf("history path: got %q", got)
	}
	if cfg.Telegram.BotToken != "123:abc" {
		t.Errorf("bot_token not expanded: got %q", cfg.Telegram.BotToken)
	}

	v := cfg.Targets.VPSServers[0]
	if v.Port != DefaultSSHPort || v.Username != DefaultSSHUser || v.Addr() != "10.0.0.5:22" {
		t.Errorf("vps defaults: %+v", v)
	}
	if cfg.Targets.APIEndpoints[0].Timeout() != 5*time.Second {
		t.Errorf("api timeout: got %v", cfg.Targets.APIEndpoints[0].Timeout())
	}
	if cfg.Targets.S3Buckets[0].Endpoint != DefaultS3Endpoint {
		t.Errorf("s3 endpoint: got %q", cfg.Targets.S3Buckets[0].Endpoint)
	}

	if red, _ := cfg.Thresholds.Red(threshold.FamilyCPU); red != 95 {
		t.Errorf("cpu_red: got %v", red)
	}
	if yellow, _ := cfg.Thresholds.Yellow(threshold.FamilyCPU); yellow != 70 {
		t.Errorf("cpu_yellow default: got %v", yellow)
	}
	if slow, _ := cfg.Thresholds.Yellow(threshold.FamilyAPIResponse); slow != 1500 {
		t.Errorf("api_slow_ms: got %v", slow)
	}

	if cfg.LLM == nil || cfg.LLM.Model != DefaultLLMModel || cfg.LLM.DailyBudgetUSD != 1.5 {
		t.Errorf("llm: %+v", cfg.LLM)
	}
	if cfg.Targets.Count() != 3 {
		t.Errorf("target count: got %d", cfg.Targets.Count())
	}
}

func TestLoad_Defaults(t *testing.T) {
	cfg := loadFromString(t, "targets: {}\n")

	if cfg.Monitoring.Schedule != DefaultSchedule {
		t.Errorf("default schedule: got %q", cfg.Monitoring.Schedule)
	}
	if cfg.Monitoring.Timeout != DefaultTimeout {
		t.Errorf("default timeout: got %v", cfg.Monitoring.Timeout)
	}
	if !cfg.Monitoring.StartImmediately() {
		t.Error("run_on_start should default to true")
	}
	if cfg.Monitoring.LockPath() != filepath.Join(DefaultStateDir, "agent.pid") {
		t.Errorf("lock path: got %q", cfg.Monitoring.LockPath())
	}
	if cfg.LLM != nil {
		t.Error("absent llm section should leave analysis disabled")
	}
	if cfg.Telegram.Enabled() {
		t.Error("telegram should be disabled without credentials")
	}
	if cfg.Server.Addr != DefaultServerAddr {
		t.Errorf("server addr: got %q", cfg.Server.Addr)
	}
}

func TestLoad_NullThresholdUnsetsCutPoint(t *testing.T) {
	cfg := loadFromString(t, "thresholds:\n  ram_red: null\n")
	if _, ok := cfg.Thresholds.Red(threshold.FamilyRAM); ok {
		t.Error("ram_red should be unset")
	}
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"bad cron", "monitoring:\n  schedule: \"* * *\"\n"},
		{"negative timeout", "monitoring:\n  timeout: -1s\n"},
		{"vps without host", "targets:\n  vps_servers:\n    - name: a\n      ssh_key_path: k\n"},
		{"vps without access", "targets:\n  vps_servers:\n    - name: a\n      host: h\n"},
		{"api bad url", "targets:\n  api_endpoints:\n    - name: a\n      url: ftp://x\n"},
		{"bucket name", "targets:\n  s3_buckets:\n    - bucket: Bad_Bucket\n"},
		{"llm provider", "targets:\n  llm_models:\n    - provider: openai\n"},
		{"telegram half", "telegram:\n  bot_token: x\n"},
		{"webhook type", "webhooks:\n  - type: pagerduty\n    url_env: X\n"},
		{"auth mode", "server:\n  auth:\n    mode: magictoken\n"},
		{"apikey without env", "server:\n  auth:\n    mode: apikey\n"},
		{"yellow beyond red", "thresholds:\n  cpu_red: 80\n  cpu_yellow: 85\n"},
		{"disk yellow beyond red", "thresholds:\n  disk_free_red: 20\n  disk_free_yellow: 10\n"},
		{"log format", "logging:\n  format: xml\n"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := loadStringErr(t, tc.yaml)
			if !errors.Is(err, ErrInvalid) {
				t.Fatalf("expected ErrInvalid, got %v", err)
			}
		})
	}
}

func TestLoad_MalformedYAML(t *testing.T) {
	_, err := loadStringErr(t, "monitoring: [\n")
	if err == nil || errors.Is(err, ErrInvalid) {
		t.Fatalf("expected parse error, got %v", err)
	}
}

func TestExpandEnv_UnsetIsEmpty(t *testing.T) {
	t.Setenv("SET_VAR", "yes")
	got := string(expandEnv([]byte("a=${SET_VAR} b=${SURELY_UNSET_VAR_X} c=$PLAIN")))
	if got != "a=yes b= c=$PLAIN" {
		t.Errorf("expandEnv: got %q", got)
	}
}

func TestDatabase_Credentials(t *testing.T) {
	t.Setenv("POSTGRES_USER", "monitor")
	t.Setenv("ALT_PW", "s3cret")
	d := Database{PasswordEnv: "ALT_PW", Host: "db", Database: "app"}
	if d.User() != "monitor" || d.Password() != "s3cret" {
		t.Errorf("credentials: %q/%q", d.User(), d.Password())
	}
	if d.DisplayName() != "db/app" {
		t.Errorf("display name: %q", d.DisplayName())
	}
}

func TestAuthConfig_Key(t *testing.T) {
	t.Setenv("TEST_API_KEY", "supersecret")
	a := AuthConfig{Mode: "apikey", KeyEnv: "TEST_API_KEY"}
	if got := a.Key(); got != "supersecret" {
		t.Errorf("Key(): got %q, want %q", got, "supersecret")
	}
	if got := (AuthConfig{Mode: "apikey"}).Key(); got != "" {
		t.Errorf("Key() with no KeyEnv: got %q, want empty", got)
	}
}

func TestWebhookConfig_URL(t *testing.T) {
	t.Setenv("TEAMS_URL", "https://teams.example.com/webhook")
	w := WebhookConfig{Type: "teams", URLEnv: "TEAMS_URL"}
	if got := w.URL(); got != "https://teams.example.com/webhook" {
		t.Errorf("URL(): got %q", got)
	}
}

func TestWatch_ReloadsValidConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	writeFile(t, path, "monitoring:\n  schedule: \"0 * * * *\"\n")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	got := make(chan *Config, 16)
	go func() { _ = Watch(ctx, path, func(c *Config) { got <- c }) }()
	time.Sleep(100 * time.Millisecond)

	writeFile(t, path, "monitoring:\n  schedule: \"30 * * * *\"\n")
	deadline := time.After(3 * time.Second)
	for {
		select {
		case c := <-got:
			// A truncate can surface as an intermediate empty document.
			if c.Monitoring.Schedule == "30 * * * *" {
				return
			}
		case <-deadline:
			t.Fatal("no reload observed")
		}
	}
}

func TestWatch_FollowsRenameSaveAndSkipsInvalid(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	writeFile(t, path, "monitoring:\n  schedule: \"0 * * * *\"\n")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	got := make(chan *Config, 16)
	go func() { _ = Watch(ctx, path, func(c *Config) { got <- c }) }()
	time.Sleep(100 * time.Millisecond)

	writeFile(t, path, "monitoring:\n  schedule: \"bad\"\n")
	select {
	case c := <-got:
		t.Fatalf("invalid config delivered: %+v", c.Monitoring)
	case <-time.After(600 * time.Millisecond):
	}

	tmp := filepath.Join(dir, ".config.yaml.tmp")
	writeFile(t, tmp, "monitoring:\n  schedule: \"15 * * * *\"\n")
	if err := os.Rename(tmp, path); err != nil {
		t.Fatal(err)
	}
	select {
	case c := <-got:
		if c.Monitoring.Schedule != "15 * * * *" {
			t.Errorf("schedule = %q", c.Monitoring.Schedule)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("rename save not observed")
	}
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
}

// loadFromString writes yaml to a temp file and calls Load, failing on error.
func loadFromString(t *testing.T, content string) *Config {
	t.Helper()
	cfg, err := loadStringErr(t, content)
	if err != nil {
		t.Fatalf("Load() unexpected error: %v", err)
	}
	return cfg
}

// loadStringErr writes yaml to a temp file and calls Load, returning any error.
func loadStringErr(t *testing.T, content string) (*Config, error) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	writeFile(t, path, content)
	return Load(path)
}
