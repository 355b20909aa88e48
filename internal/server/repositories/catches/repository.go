package catches

import (
	"context"

	"github.com/dmitrijs2005/catchkeeper/internal/server/models"
)

type Repository interface {
	Upsert(ctx context.Context, c *models.Catch) error
	Delete(ctx context.Context, userID, id string) error
	ListRecent(ctx context.Context, userID string, limit int) ([]*models.Catch, error)
}
