// Package collector probes infrastructure targets and turns each probe into
// a types.Observation.
//
// One Collector exists per target kind:
//   - vps: CPU, RAM and root disk over SSH (top, free, df) or node_exporter
//   - docker: container states over SSH (docker ps)
//   - ec2: instance state plus CloudWatch CPU and optional CWAgent disk
//   - api: HTTP status and response time
//   - database: PostgreSQL connectivity, version and optional row count
//   - s3: bucket existence, listability and versioning
//   - llm: Bedrock or Azure OpenAI model availability
//   - tls: days until certificate expiry
//
// Expected failures never surface as errors: a target that cannot be reached
// becomes a RED observation with Error set, and a target that cannot be
// checked (missing credentials, unsupported provider) becomes UNKNOWN.
// Targets within a collector are probed concurrently and results keep the
// configured order.
package collector
