// Package catches provides the PostgreSQL-backed store of synchronized
// catch records.
package catches

import (
	"context"
	"fmt"

	"github.com/dmitrijs2005/catchkeeper/internal/common"
	"github.com/dmitrijs2005/catchkeeper/internal/dbx"
	"github.com/dmitrijs2005/catchkeeper/internal/server/models"
)

// PostgresRepository implements catch storage over a dbx.DBTX (*sql.DB or *sql.Tx).
type PostgresRepository struct {
	db dbx.DBTX
}

// NewPostgresRepository constructs a repository bound to the given DBTX.
func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Upsert inserts or replaces a catch by ID. If the ID already belongs to
// another user, no row is touched and ErrOwnershipConflict is returned.
func (r *PostgresRepository) Upsert(ctx context.Context, c *models.Catch) error {
	query := `
		INSERT INTO catches (id, user_id, created_at, updated_at, payload)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id)
		DO UPDATE SET
			created_at = EXCLUDED.created_at,
			updated_at = EXCLUDED.updated_at,
			payload = EXCLUDED.payload
			WHERE catches.user_id = EXCLUDED.user_id;
	`
	res, err := r.db.ExecContext(ctx, query,
		c.ID, c.UserID, c.CreatedAt, c.UpdatedAt, []byte(c.Payload))
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected error: %w", err)
	}
	switch n {
	case 1:
		return nil
	case 0:
		return fmt.Errorf("catch %s: %w", c.ID, common.ErrOwnershipConflict)
	default:
		return fmt.Errorf("unexpected rows affected: %d", n)
	}
}

// Delete removes the user's catch. A missing row is not an error.
func (r *PostgresRepository) Delete(ctx context.Context, userID, id string) error {
	query := `DELETE FROM catches WHERE user_id = $1 AND id = $2`
	if _, err := r.db.ExecContext(ctx, query, userID, id); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

// ListRecent returns up to limit of the user's catches, newest created first.
func (r *PostgresRepository) ListRecent(ctx context.Context, userID string, limit int) ([]*models.Catch, error) {
	query := `SELECT id, user_id, created_at, updated_at, payload FROM catches
		WHERE user_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2
		`
	rows, err := r.db.QueryContext(ctx, query, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to select catches: %w", err)
	}
	defer rows.Close()

	var result []*models.Catch
	for rows.Next() {
		var (
			item    models.Catch
			payload []byte
		)
		if err := rows.Scan(&item.ID, &item.UserID, &item.CreatedAt, &item.UpdatedAt, &payload); err != nil {
			return nil, err
		}
		item.Payload = payload
		result = append(result, &item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}
