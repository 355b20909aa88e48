package rpc

import (
	"encoding/json"
	"time"
)

// Document is a record as the remote store sees it: identity, ordering
// timestamps and an opaque JSON payload.
type Document struct {
	ID        string          `json:"id"`
	CreatedAt time.Time       `json:"createdAt"`
	UpdatedAt *time.Time      `json:"updatedAt,omitempty"`
	Payload   json.RawMessage `json:"payload"`
}

type MutationKind string

const (
	MutationUpsert MutationKind = "upsert"
	MutationDelete MutationKind = "delete"
)

type Mutation struct {
	Kind     MutationKind `json:"kind"`
	ID       string       `json:"id"`
	Document *Document    `json:"document,omitempty"`
}

type CommitRequest struct {
	Mutations []Mutation `json:"mutations"`
}

type CommitResponse struct {
	Applied int `json:"applied"`
}

type ListRecentRequest struct {
	Limit int `json:"limit"`
}

type ListRecentResponse struct {
	Documents []Document `json:"documents"`
}

type RegisterRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type RegisterResponse struct {
	UserID string `json:"userId"`
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type LoginResponse struct {
	AccessToken string    `json:"accessToken"`
	ExpiresAt   time.Time `json:"expiresAt"`
}

type PingRequest struct{}

type PingResponse struct {
	Status string `json:"status"`
}
