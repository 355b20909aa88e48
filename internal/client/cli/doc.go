// Package cli provides the catchkeeper command-line client.
//
// Every command opens the on-device store, runs against the catch service
// and closes the store again; nothing waits on the network unless asked to.
// The daemon command keeps the background sync running until interrupted.
//
// Commands:
//   - log, list, show, update, delete, stats: local catch journal
//   - sync, pull, fullsync, daemon: push and reconcile with the server
//   - register, login, logout, whoami, ping: device session
//   - backup: upload a snapshot to object storage
//   - cache get|set|invalidate|clear: inspect the TTL cache
//
// Output is plain text by default; --format json or yaml prints the
// underlying records.
package cli
