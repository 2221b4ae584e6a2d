// Package config loads the driftlog-server configuration.
//
// Config fields (under the `server:` key):
//   - Host                     : listen interface (default 0.0.0.0)
//   - HTTPPort                 : REST API and live tail (default 8000)
//   - GRPCPort                 : gRPC LogService, 0 disables (default 50051)
//   - LogLevel                 : debug | info | warn | error (default info)
//   - Auth.Mode                : "apikey" or "none"
//   - Auth.KeyEnv              : environment variable holding the expected API key
//   - Auth.Header              : header / metadata key (default "x-api-key")
//   - Retention.Window         : maximum record age (default 1h)
//   - Retention.SweepInterval  : time between expiration sweeps (default 1m)
//   - Stream.Interval          : live-tail heartbeat period (default 5s)
//
// Load(path) applies defaults, then the YAML file, then DRIFTLOG_*
// environment variables, then validates. Watch(ctx, path, fn) reloads on
// file change; only the log level is applied at runtime.
package config
