package collector

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	dto "github.com/prometheus/client_model/go"

	"github.com/tailorcast/monitoring-agents-it/agent/internal/config"
	"github.com/tailorcast/monitoring-agents-it/agent/internal/threshold"
	"github.com/tailorcast/monitoring-agents-it/pkg/types"
)

// node_exporter metric names.
const (
	nodeCPUSeconds   = "node_cpu_seconds_total"
	nodeMemTotal     = "node_memory_MemTotal_bytes"
	nodeMemAvailable = "node_memory_MemAvailable_bytes"
	nodeFSAvail      = "node_filesystem_avail_bytes"
	nodeFSSize       = "node_filesystem_size_bytes"
)

// defaultCPUSampleGap is the spacing of the two node_exporter scrapes used to
// derive CPU utilisation from cumulative counters.
const defaultCPUSampleGap = time.Second

var (
	topUserSys = regexp.MustCompile(`%?Cpu\(s\):\s*([\d.]+)\s+us,\s*([\d.]+)\s+sy`)
	topUser    = regexp.MustCompile(`%?Cpu\(s\):\s*([\d.]+)%?\s+us`)
	topIdle    = regexp.MustCompile(`([\d.]+)\s+id`)
)

type resources struct {
	cpu, ram, diskFree float64
}

// VPS reads CPU, RAM and free root disk from Linux hosts.
type VPS struct {
	servers   []config.VPSServer
	set       threshold.Set
	runner    Runner
	client    *http.Client
	sampleGap time.Duration
	logger    *slog.Logger
}

// NewVPS returns the vps collector.
func NewVPS(servers []config.VPSServer, set threshold.Set, runner Runner, logger *slog.Logger) *VPS {
	return &VPS{
		servers:   servers,
		set:       set,
		runner:    runner,
		client:    newHTTPClient(),
		sampleGap: defaultCPUSampleGap,
		logger:    logger,
	}
}

// Name implements Collector.
func (v *VPS) Name() string { return NameVPS }

// Collect implements Collector.
func (v *VPS) Collect(ctx context.Context) ([]types.Observation, error) {
	v.logger.Info("collector: checking vps servers", "count", len(v.servers))
	return fanOut(ctx, v.servers, v.check), nil
}

func (v *VPS) check(ctx context.Context, srv config.VPSServer) types.Observation {
	var (
		r   resources
		err error
	)
	if srv.NodeExporter != "" {
		r, err = v.fromExporter(ctx, srv.NodeExporter)
	} else {
		r, err = v.fromSSH(ctx, srv)
	}
	if err != nil {
		v.logger.Warn("collector: vps check failed", "target", srv.Name, "err", err)
		return types.Failed(NameVPS, srv.Name, types.SeverityRed,
			types.Metrics{{Key: "host", Value: srv.Host}},
			"Collection failed: "+err.Error(), err)
	}

	sev := types.Worst(
		threshold.Evaluate(v.set, threshold.FamilyCPU, r.cpu, threshold.HigherIsWorse),
		types.Worst(
			threshold.Evaluate(v.set, threshold.FamilyRAM, r.ram, threshold.HigherIsWorse),
			threshold.Evaluate(v.set, threshold.FamilyDiskFree, r.diskFree, threshold.LowerIsWorse),
		),
	)
	return types.NewObservation(NameVPS, srv.Name, sev, types.Metrics{
		{Key: "cpu_usage_pct", Value: round1(r.cpu)},
		{Key: "ram_usage_pct", Value: round1(r.ram)},
		{Key: "disk_free_pct", Value: round1(r.diskFree)},
		{Key: "host", Value: srv.Host},
	}, fmt.Sprintf("CPU: %.1f%%, RAM: %.1f%%, Disk free: %.1f%%", r.cpu, r.ram, r.diskFree))
}

func (v *VPS) fromSSH(ctx context.Context, srv config.VPSServer) (resources, error) {
	out, err := v.runner.Run(ctx, srv, "top -bn1", "free -m", "df -h")
	if err != nil {
		return resources{}, err
	}
	if len(out) != 3 {
		return resources{}, fmt.Errorf("expected 3 command outputs, got %d", len(out))
	}
	var r resources
	if r.cpu, err = parseTop(out[0]); err != nil {
		return resources{}, err
	}
	if r.ram, err = parseFree(out[1]); err != nil {
		return resources{}, err
	}
	if r.diskFree, err = parseDF(out[2]); err != nil {
		return resources{}, err
	}
	return r, nil
}

// parseTop returns user+system CPU from `top -bn1`, falling back to user
// only and then to 100 - idle.
func parseTop(out string) (float64, error) {
	if m := topUserSys.FindStringSubmatch(out); m != nil {
		us, _ := strconv.ParseFloat(m[1], 64)
		sy, _ := strconv.ParseFloat(m[2], 64)
		return us + sy, nil
	}
	if m := topUser.FindStringSubmatch(out); m != nil {
		us, _ := strconv.ParseFloat(m[1], 64)
		return us, nil
	}
	if m := topIdle.FindStringSubmatch(out); m != nil {
		id, _ := strconv.ParseFloat(m[1], 64)
		return 100 - id, nil
	}
	return 0, fmt.Errorf("cannot parse cpu from top output: %q", truncate(out, 200))
}

// parseFree returns used/total memory from `free -m` as a percentage.
func parseFree(out string) (float64, error) {
	for _, line := range strings.Split(strings.TrimSpace(out), "\n") {
		if !strings.HasPrefix(line, "Mem:") {
			continue
		}
		f := strings.Fields(line)
		if len(f) < 3 {
			break
		}
		total, err1 := strconv.ParseFloat(f[1], 64)
		used, err2 := strconv.ParseFloat(f[2], 64)
		if err1 == nil && err2 == nil && total > 0 {
			return used / total * 100, nil
		}
	}
	return 0, fmt.Errorf("cannot parse memory from free output: %q", truncate(out, 200))
}

// parseDF returns the free percentage of the root filesystem from `df -h`.
func parseDF(out string) (float64, error) {
	lines := strings.Split(strings.TrimSpace(out), "\n")
	for _, line := range lines[1:] {
		f := strings.Fields(line)
		if len(f) < 6 || f[len(f)-1] != "/" {
			continue
		}
		use, err := strconv.ParseFloat(strings.TrimSuffix(f[len(f)-2], "%"), 64)
		if err == nil {
			return 100 - use, nil
		}
	}
	return 0, fmt.Errorf("cannot find root partition in df output: %q", truncate(out, 200))
}

func (v *VPS) fromExporter(ctx context.Context, url string) (resources, error) {
	first, err := fetchMetrics(ctx, v.client, url)
	if err != nil {
		return resources{}, err
	}
	if v.sampleGap > 0 {
		t := time.NewTimer(v.sampleGap)
		select {
		case <-ctx.Done():
			t.Stop()
			return resources{}, ctx.Err()
		case <-t.C:
		}
	}
	second, err := fetchMetrics(ctx, v.client, url)
	if err != nil {
		return resources{}, err
	}
	return exporterResources(first, second)
}

// exporterResources derives utilisation from two node_exporter scrapes.
func exporterResources(first, second map[string]*dto.MetricFamily) (resources, error) {
	var r resources

	idle0, ok0 := sumFamily(first[nodeCPUSeconds], map[string]string{"mode": "idle"})
	idle1, ok1 := sumFamily(second[nodeCPUSeconds], map[string]string{"mode": "idle"})
	all0, _ := sumFamily(first[nodeCPUSeconds], nil)
	all1, _ := sumFamily(second[nodeCPUSeconds], nil)
	if !ok0 || !ok1 {
		return r, fmt.Errorf("node_exporter: %s missing", nodeCPUSeconds)
	}
	if d := all1 - all0; d > 0 {
		r.cpu = (1 - (idle1-idle0)/d) * 100
	}

	total, okT := sumFamily(second[nodeMemTotal], nil)
	avail, okA := sumFamily(second[nodeMemAvailable], nil)
	if !okT || !okA || total <= 0 {
		return r, fmt.Errorf("node_exporter: memory metrics missing")
	}
	r.ram = (1 - avail/total) * 100

	root := map[string]string{"mountpoint": "/"}
	size, okS := sumFamily(second[nodeFSSize], root)
	free, okF := sumFamily(second[nodeFSAvail], root)
	if !okS || !okF || size <= 0 {
		return r, fmt.Errorf("node_exporter: root filesystem metrics missing")
	}
	r.diskFree = free / size * 100
	return r, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
