package models

import (
	"bytes"
	"encoding/json"
	"time"
)

// SchemaVersion is the current version of every persisted blob.
const SchemaVersion = 1

// CatchesEnvelope is the persisted form of the local record collection.
type CatchesEnvelope struct {
	Version int     `json:"version"`
	Records []Catch `json:"records"`
}

// QueueEnvelope is the persisted form of the pending sync queue.
type QueueEnvelope struct {
	Version    int         `json:"version"`
	Operations []Operation `json:"operations"`
}

// CacheEntry is the persisted form of one cache value.
type CacheEntry struct {
	Version   int             `json:"version"`
	Value     json.RawMessage `json:"value"`
	ExpiresAt time.Time       `json:"expiresAt"`
}

// Expired reports whether now is past the entry's expiry.
func (e CacheEntry) Expired(now time.Time) bool {
	return now.After(e.ExpiresAt)
}

// IsLegacyArray reports whether raw is an unversioned bare JSON array,
// the format used before envelopes were introduced.
func IsLegacyArray(raw []byte) bool {
	t := bytes.TrimSpace(raw)
	return len(t) > 0 && t[0] == '['
}
