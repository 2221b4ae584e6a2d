// Package store holds ingested log records in memory. It provides a
// thread-safe, time-indexed record store with filtered queries sorted by
// timestamp and age-based expiration.
//
// All timestamps are normalized to UTC before they are stored or compared
// (see Canonical and ParseTimestamp).
package store
