package services

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/dmitrijs2005/catchkeeper/internal/common"
	"github.com/dmitrijs2005/catchkeeper/internal/dbx"
	"github.com/dmitrijs2005/catchkeeper/internal/server/models"
	"github.com/dmitrijs2005/catchkeeper/internal/server/repositories/repomanager"
)

const (
	minListLimit = 1
	maxListLimit = 1000
)

// Change is one mutation of a commit: an upsert carries Catch, a delete
// carries only ID.
type Change struct {
	Delete bool
	ID     string
	Catch  *models.Catch
}

type SyncService struct {
	db           *sql.DB
	repomanager  repomanager.RepositoryManager
	maxBatchSize int
}

func NewSyncService(db *sql.DB, m repomanager.RepositoryManager, maxBatchSize int) *SyncService {
	return &SyncService{db: db, repomanager: m, maxBatchSize: maxBatchSize}
}

// Commit applies changes for userID in a single transaction: either every
// change is stored or none is. Upserts are stamped with userID regardless of
// what the client sent.
func (s *SyncService) Commit(ctx context.Context, userID string, changes []Change) (int, error) {
	if len(changes) > s.maxBatchSize {
		return 0, fmt.Errorf("%w: %d mutations, limit %d", common.ErrBatchTooLarge, len(changes), s.maxBatchSize)
	}
	for i, c := range changes {
		if c.ID == "" || (!c.Delete && (c.Catch == nil || c.Catch.ID != c.ID || !json.Valid(c.Catch.Payload))) {
			return 0, fmt.Errorf("%w: mutation %d", common.ErrMalformedOperation, i)
		}
	}
	if len(changes) == 0 {
		return 0, nil
	}

	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		repo := s.repomanager.Catches(tx)
		for _, c := range changes {
			if c.Delete {
				if err := repo.Delete(ctx, userID, c.ID); err != nil {
					return err
				}
				continue
			}
			row := *c.Catch
			row.UserID = userID
			if err := repo.Upsert(ctx, &row); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return len(changes), nil
}

// ListRecent returns the user's newest catches; limit is clamped to [1, 1000].
func (s *SyncService) ListRecent(ctx context.Context, userID string, limit int) ([]*models.Catch, error) {
	limit = min(max(limit, minListLimit), maxListLimit)
	return s.repomanager.Catches(s.db).ListRecent(ctx, userID, limit)
}
