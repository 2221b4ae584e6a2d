// Package types defines the JSON wire types shared by driftlog-server and the
// load generator. They mirror store.Record but are independent of it so
// clients do not import server internals.
package types
