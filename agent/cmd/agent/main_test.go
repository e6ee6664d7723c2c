package main

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T) (path, stateDir string) {
	t.Helper()
	dir := t.TempDir()
	stateDir = filepath.Join(dir, "state")
	path = filepath.Join(dir, "config.yaml")
	yaml := fmt.Sprintf(`monitoring:
  schedule: "0 */6 * * *"
  state_dir: %q
logging:
  level: error
  format: text
`, stateDir)
	if err := os.WriteFile(path, []byte(yaml), 0o644); err != nil {
		t.Fatal(err)
	}
	return path, stateDir
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	t.Cleanup(func() {
		dryRun = false
		logLevel = ""
		rootCmd.SetArgs(nil)
	})
	err := rootCmd.Execute()
	return out.String(), err
}

func TestOnce_DryRunPrintsReport(t *testing.T) {
	cfgPath, stateDir := writeConfig(t)
	out, err := execute(t, "--config", cfgPath, "once", "--dry-run")
	if err != nil {
		t.Fatalf("once --dry-run: %v\n%s", err, out)
	}
	if !strings.Contains(out, "All Systems Healthy") {
		t.Errorf("report not printed:\n%s", out)
	}
	if _, err := os.Stat(filepath.Join(stateDir, "agent.pid")); !os.IsNotExist(err) {
		t.Error("lock file left behind")
	}
}

func TestIncidents_PrintsTable(t *testing.T) {
	cfgPath, stateDir := writeConfig(t)
	now := time.Now()
	doc := fmt.Sprintf(`{"date":%q,"incidents":{"vps:web-1:cpu_usage_pct":{"count":3,"first_seen":%q,"last_seen":%q}}}`,
		now.Format("2006-01-02"), now.Format(time.RFC3339), now.Format(time.RFC3339))
	if err := os.MkdirAll(stateDir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(stateDir, "metric_history.json"), []byte(doc), 0o644); err != nil {
		t.Fatal(err)
	}

	out, err := execute(t, "--config", cfgPath, "incidents")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "Incidents for "+now.Format("2006-01-02")+": 1") {
		t.Errorf("missing header:\n%s", out)
	}
	if !strings.Contains(out, "vps:web-1:cpu_usage_pct") || !strings.Contains(out, "3") {
		t.Errorf("missing row:\n%s", out)
	}
}

func TestMissingConfig(t *testing.T) {
	if _, err := execute(t, "--config", filepath.Join(t.TempDir(), "absent.yaml"), "incidents"); err == nil {
		t.Error("expected error for missing config")
	}
}
