// Package config loads and watches the agent configuration file (config.yaml).
//
// Top-level sections:
//   - monitoring: cron schedule, run timeout, state_dir, lock_file, run_on_start
//   - targets: vps_servers, ec2_instances, api_endpoints, databases,
//     llm_models, s3_buckets, tls_endpoints
//   - thresholds: red/yellow cut-points (see package threshold)
//   - telegram, webhooks: delivery channels
//   - llm: analysis model and daily budget; absent disables analysis
//   - server: status API listen address and auth
//   - logging: level and format
//
// Load(path) expands ${VAR} placeholders from the environment, applies
// defaults (6-hourly schedule, 5m timeout, ./state), then validates required
// fields and enums. Validation errors wrap ErrInvalid.
//
// Watch(ctx, path, onChange) uses fsnotify to detect file changes and calls
// onChange with the newly parsed Config. It handles the rename→create pattern
// used by atomic-save editors (vim, VS Code) by re-adding the watch after
// a rename event.
package config
