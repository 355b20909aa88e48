// Package models holds the rows the reference server persists.
package models

import (
	"encoding/json"
	"time"
)

type User struct {
	ID           string
	UserName     string
	PasswordHash []byte
	CreatedAt    time.Time
}

// Catch is a stored record. The server orders and partitions by the typed
// columns and keeps the rest of the record as an opaque payload.
type Catch struct {
	ID        string
	UserID    string
	CreatedAt time.Time
	UpdatedAt *time.Time
	Payload   json.RawMessage
}
