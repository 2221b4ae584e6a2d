// Package bench drives load against a running driftlog-server.
//
// A Runner executes two phases of Config.Requests HTTP calls each, with at
// most Config.Concurrency in flight:
//
//  1. insert: POST /log with a random service and message.
//  2. query: GET /log, cycling through unfiltered, service_name, and a random
//     1-24h start_time/end_time window.
//
// Each phase is summarised as min/max/mean/median latency and requests per
// second. After the phases the runner scrapes GET /metrics and reports the
// server's stored-record gauge and ingest/reject counters.
package bench
