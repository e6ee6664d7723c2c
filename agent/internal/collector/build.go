package collector

import (
	"log/slog"

	"github.com/tailorcast/monitoring-agents-it/agent/internal/config"
)

// Deps are the external clients collectors use. Zero fields get production
// defaults.
type Deps struct {
	Logger  *slog.Logger
	SSH     Runner
	AWS     AWSClients
	Bedrock BedrockFactory
}

func (d Deps) withDefaults() Deps {
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	if d.SSH == nil {
		d.SSH = SSHRunner{}
	}
	if d.AWS == nil {
		d.AWS = DefaultAWSClients()
	}
	if d.Bedrock == nil {
		d.Bedrock = DefaultBedrockFactory()
	}
	return d
}

// FromConfig registers a collector for every target kind that has targets,
// in the order vps, docker, ec2, api, database, s3, llm, tls.
func FromConfig(cfg *config.Config, deps Deps) (*Registry, error) {
	deps = deps.withDefaults()
	t := cfg.Targets
	set := cfg.Thresholds
	reg := NewRegistry()

	var cs []Collector
	if len(t.VPSServers) > 0 {
		cs = append(cs, NewVPS(t.VPSServers, set, deps.SSH, deps.Logger))
	}
	if srv := dockerServers(t.VPSServers); len(srv) > 0 {
		cs = append(cs, NewDocker(srv, deps.SSH, deps.Logger))
	}
	if len(t.EC2Instances) > 0 {
		cs = append(cs, NewEC2(t.EC2Instances, set, deps.AWS, deps.Logger))
	}
	if len(t.APIEndpoints) > 0 {
		cs = append(cs, NewAPI(t.APIEndpoints, set, deps.Logger))
	}
	if len(t.Databases) > 0 {
		cs = append(cs, NewDatabase(t.Databases, deps.Logger))
	}
	if len(t.S3Buckets) > 0 {
		cs = append(cs, NewS3(t.S3Buckets, deps.Logger))
	}
	if len(t.LLMModels) > 0 {
		cs = append(cs, NewLLM(t.LLMModels, deps.Bedrock, deps.Logger))
	}
	if len(t.TLSEndpoints) > 0 {
		cs = append(cs, NewTLS(t.TLSEndpoints, set, deps.Logger))
	}
	for _, c := range cs {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return reg, nil
}

// dockerServers keeps servers reachable over SSH that have not opted out.
func dockerServers(all []config.VPSServer) []config.VPSServer {
	var out []config.VPSServer
	for _, s := range all {
		if s.SSHKeyPath != "" && !s.SkipDocker {
			out = append(out, s)
		}
	}
	return out
}
