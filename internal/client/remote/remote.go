// Package remote defines the authoritative store the sync engine pushes to
// and pulls from, with an in-process implementation, a disabled one for
// devices without a configured server, and a gRPC client.
package remote

import (
	"context"

	"github.com/dmitrijs2005/catchkeeper/internal/client/models"
	"github.com/dmitrijs2005/catchkeeper/internal/common"
)

type MutationKind string

const (
	Upsert MutationKind = "upsert"
	Delete MutationKind = "delete"
)

// Mutation is one element of an atomic commit. Record is set for upserts.
type Mutation struct {
	Kind   MutationKind
	ID     string
	Record *models.Catch
}

// Store is the remote authoritative store, partitioned by owner.
type Store interface {
	// Commit applies all mutations or none. Upserts are idempotent by ID;
	// deleting an absent ID is not an error.
	Commit(ctx context.Context, ownerID string, mutations []Mutation) error
	// ListRecent returns up to limit records, newest createdAt first.
	ListRecent(ctx context.Context, ownerID string, limit int) ([]models.Catch, error)
}

// Disabled is used when no remote endpoint is configured: every call fails
// with common.ErrUnavailable, so local work keeps queuing.
type Disabled struct{}

func (Disabled) Commit(context.Context, string, []Mutation) error {
	return common.ErrUnavailable
}

func (Disabled) ListRecent(context.Context, string, int) ([]models.Catch, error) {
	return nil, common.ErrUnavailable
}
