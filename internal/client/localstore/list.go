package localstore

import (
	"context"
	"time"

	"github.com/dmitrijs2005/catchkeeper/internal/client/models"
)

// Cursor anchors a page at the last item of the previous one. An empty ID
// means "strictly older than CreatedAt".
type Cursor struct {
	CreatedAt time.Time `json:"createdAt"`
	ID        string    `json:"id,omitempty"`
}

// after reports whether c sorts strictly after the cursor in newest-first order.
func (cur Cursor) after(c models.Catch) bool {
	if c.CreatedAt.Before(cur.CreatedAt) {
		return true
	}
	return cur.ID != "" && c.CreatedAt.Equal(cur.CreatedAt) && c.ID < cur.ID
}

type ListOptions struct {
	// Species filters by case-insensitive exact match.
	Species string
	Limit   int
	Offset  int
	Cursor  *Cursor
}

type Page struct {
	Items []models.Catch `json:"items"`
	// Next is nil on the last page.
	Next *Cursor `json:"next,omitempty"`
	// Total counts records matching the filter, ignoring pagination.
	Total int `json:"total"`
}

// List returns one page, newest first. Paging by Cursor is stable against
// records inserted at the head between calls.
func (s *Store) List(ctx context.Context, opts ListOptions) (Page, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ensureLoaded(ctx); err != nil {
		return Page{}, err
	}

	limit := opts.Limit
	if limit <= 0 {
		limit = DefaultPageSize
	}

	var page Page
	skipped := 0
	for _, c := range s.records {
		if !c.MatchesSpecies(opts.Species) {
			continue
		}
		page.Total++
		if opts.Cursor != nil && !opts.Cursor.after(c) {
			continue
		}
		if skipped < opts.Offset {
			skipped++
			continue
		}
		if len(page.Items) == limit {
			last := page.Items[len(page.Items)-1]
			page.Next = &Cursor{CreatedAt: last.CreatedAt, ID: last.ID}
			continue
		}
		page.Items = append(page.Items, c.Clone())
	}
	if page.Items == nil {
		page.Items = []models.Catch{}
	}
	return page, nil
}
