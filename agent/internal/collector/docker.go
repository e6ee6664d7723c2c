package collector

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"strings"

	"github.com/tailorcast/monitoring-agents-it/agent/internal/config"
	"github.com/tailorcast/monitoring-agents-it/pkg/types"
)

const dockerPS = `docker ps -a --format "{{json .}}"`

var exitCode = regexp.MustCompile(`exited \((\d+)\)`)

// container is one line of `docker ps --format "{{json .}}"`.
type container struct {
	ID     string `json:"ID"`
	Names  string `json:"Names"`
	Image  string `json:"Image"`
	Status string `json:"Status"`
}

// Docker reports the state of every container on each server.
type Docker struct {
	servers []config.VPSServer
	runner  Runner
	logger  *slog.Logger
}

// NewDocker returns the docker collector.
func NewDocker(servers []config.VPSServer, runner Runner, logger *slog.Logger) *Docker {
	return &Docker{servers: servers, runner: runner, logger: logger}
}

// Name implements Collector.
func (d *Docker) Name() string { return NameDocker }

// Collect implements Collector.
func (d *Docker) Collect(ctx context.Context) ([]types.Observation, error) {
	d.logger.Info("collector: checking docker containers", "servers", len(d.servers))
	return flatten(fanOut(ctx, d.servers, d.check)), nil
}

func (d *Docker) check(ctx context.Context, srv config.VPSServer) []types.Observation {
	out, err := d.runner.Run(ctx, srv, dockerPS)
	if err == nil && len(out) != 1 {
		err = fmt.Errorf("expected 1 command output, got %d", len(out))
	}
	if err != nil {
		d.logger.Warn("collector: docker check failed", "target", srv.Name, "err", err)
		return []types.Observation{types.Failed(NameDocker, srv.Name, types.SeverityRed,
			types.Metrics{{Key: "host", Value: srv.Host}},
			"Collection failed: "+err.Error(), err)}
	}

	cs := parseDockerPS(out[0], d.logger)
	if len(cs) == 0 {
		return []types.Observation{types.NewObservation(NameDocker, srv.Name+"/no-containers",
			types.SeverityYellow,
			types.Metrics{{Key: "host", Value: srv.Host}, {Key: "server", Value: srv.Name}},
			"No containers found")}
	}

	obs := make([]types.Observation, 0, len(cs))
	for _, c := range cs {
		sev, msg := classifyContainer(c.Status)
		id := c.ID
		if len(id) > 12 {
			id = id[:12]
		}
		obs = append(obs, types.NewObservation(NameDocker, srv.Name+"/"+c.Names, sev, types.Metrics{
			{Key: "container_id", Value: id},
			{Key: "image", Value: c.Image},
			{Key: "status", Value: c.Status},
			{Key: "host", Value: srv.Host},
			{Key: "server", Value: srv.Name},
		}, msg))
	}
	return obs
}

// parseDockerPS decodes one JSON object per line, skipping lines that do not
// parse.
func parseDockerPS(out string, logger *slog.Logger) []container {
	var cs []container
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		var c container
		if err := json.Unmarshal([]byte(line), &c); err != nil {
			logger.Warn("collector: skipping unparsable docker ps line", "line", truncate(line, 100), "err", err)
			continue
		}
		if c.Names == "" {
			c.Names = "unknown"
		}
		cs = append(cs, c)
	}
	return cs
}

// classifyContainer maps a docker status string to a severity.
func classifyContainer(status string) (types.Severity, string) {
	s := strings.ToLower(status)
	switch {
	case strings.HasPrefix(s, "up"):
		if strings.Contains(s, "(unhealthy)") {
			return types.SeverityRed, "Container unhealthy"
		}
		return types.SeverityGreen, "Container running"
	case strings.Contains(s, "restarting"):
		return types.SeverityYellow, "Container restarting"
	case strings.Contains(s, "exited"):
		m := exitCode.FindStringSubmatch(s)
		if m == nil {
			return types.SeverityYellow, "Container stopped"
		}
		code, _ := strconv.Atoi(m[1])
		if code == 0 {
			return types.SeverityYellow, "Container stopped cleanly (exit 0)"
		}
		return types.SeverityRed, fmt.Sprintf("Container exited with error (exit %d)", code)
	case strings.Contains(s, "created"):
		return types.SeverityYellow, "Container created but not started"
	case strings.Contains(s, "dead"), strings.Contains(s, "removing"):
		return types.SeverityRed, "Container in error state"
	}
	return types.SeverityUnknown, "Unknown status: " + s
}
