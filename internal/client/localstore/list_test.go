package localstore

import (
	"context"
	"testing"
	"time"

	"github.com/dmitrijs2005/catchkeeper/internal/client/models"
	"github.com/dmitrijs2005/catchkeeper/internal/client/storage"
	"github.com/stretchr/testify/require"
)

func TestList_DefaultsAndFilter(t *testing.T) {
	s, clock := newTestStore(t, storage.NewMemoryKV())
	ctx := context.Background()
	createN(t, s, clock, 2, "Pike")
	createN(t, s, clock, 3, "perch")

	page, err := s.List(ctx, ListOptions{})
	require.NoError(t, err)
	require.Len(t, page.Items, 5)
	require.Equal(t, 5, page.Total)
	require.Nil(t, page.Next)

	page, err = s.List(ctx, ListOptions{Species: "PERCH"})
	require.NoError(t, err)
	require.Equal(t, []string{"id-005", "id-004", "id-003"}, ids(page.Items))
	require.Equal(t, 3, page.Total)
}

func TestList_EmptyIsNotNil(t *testing.T) {
	s, _ := newTestStore(t, storage.NewMemoryKV())
	page, err := s.List(context.Background(), ListOptions{Species: "none"})
	require.NoError(t, err)
	require.NotNil(t, page.Items)
	require.Empty(t, page.Items)
}

func TestList_Offset(t *testing.T) {
	s, clock := newTestStore(t, storage.NewMemoryKV())
	createN(t, s, clock, 5, "Pike")

	page, err := s.List(context.Background(), ListOptions{Limit: 2, Offset: 2})
	require.NoError(t, err)
	require.Equal(t, []string{"id-003", "id-002"}, ids(page.Items))
	require.NotNil(t, page.Next)
}

func TestList_CursorStableAgainstHeadInsert(t *testing.T) {
	s, clock := newTestStore(t, storage.NewMemoryKV())
	ctx := context.Background()
	createN(t, s, clock, 5, "Pike")

	first, err := s.List(ctx, ListOptions{Limit: 2})
	require.NoError(t, err)
	require.Equal(t, []string{"id-005", "id-004"}, ids(first.Items))
	require.NotNil(t, first.Next)

	// A new record lands at the head between the two calls.
	_, err = s.Create(ctx, models.CatchInput{Species: "Pike"})
	require.NoError(t, err)

	second, err := s.List(ctx, ListOptions{Limit: 2, Cursor: first.Next})
	require.NoError(t, err)
	require.Equal(t, []string{"id-003", "id-002"}, ids(second.Items))

	third, err := s.List(ctx, ListOptions{Limit: 2, Cursor: second.Next})
	require.NoError(t, err)
	require.Equal(t, []string{"id-001"}, ids(third.Items))
	require.Nil(t, third.Next)
}

func TestList_CursorBreaksTiesByID(t *testing.T) {
	s, _ := newTestStore(t, storage.NewMemoryKV())
	ctx := context.Background()
	// Same clock instant for all three.
	for i := 0; i < 3; i++ {
		_, err := s.Create(ctx, models.CatchInput{Species: "Pike"})
		require.NoError(t, err)
	}

	first, err := s.List(ctx, ListOptions{Limit: 1})
	require.NoError(t, err)
	require.Equal(t, []string{"id-003"}, ids(first.Items))

	rest, err := s.List(ctx, ListOptions{Limit: 5, Cursor: first.Next})
	require.NoError(t, err)
	require.Equal(t, []string{"id-002", "id-001"}, ids(rest.Items))
}

func TestList_TimeOnlyCursor(t *testing.T) {
	s, clock := newTestStore(t, storage.NewMemoryKV())
	createN(t, s, clock, 3, "Pike")

	page, err := s.List(context.Background(), ListOptions{Cursor: &Cursor{CreatedAt: start.Add(2 * time.Second)}})
	require.NoError(t, err)
	require.Equal(t, []string{"id-002", "id-001"}, ids(page.Items))
}
