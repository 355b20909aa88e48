package services

import (
	"context"
	"database/sql"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/dmitrijs2005/catchkeeper/internal/common"
	"github.com/dmitrijs2005/catchkeeper/internal/dbx"
	"github.com/dmitrijs2005/catchkeeper/internal/server/models"
	"github.com/dmitrijs2005/catchkeeper/internal/server/repositories/catches"
	"github.com/dmitrijs2005/catchkeeper/internal/server/repositories/users"
)

func newSQLMockDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New error: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db, mock
}

type fakeUsersRepo struct {
	created *models.User
	byName  map[string]*models.User
	err     error
}

func (f *fakeUsersRepo) Create(_ context.Context, u *models.User) (*models.User, error) {
	if f.err != nil {
		return nil, f.err
	}
	cp := *u
	cp.ID = "u-" + u.UserName
	f.created = &cp
	return &cp, nil
}

func (f *fakeUsersRepo) GetUserByLogin(_ context.Context, login string) (*models.User, error) {
	if f.err != nil {
		return nil, f.err
	}
	u, ok := f.byName[login]
	if !ok {
		return nil, common.ErrorNotFound
	}
	return u, nil
}

type catchOp struct {
	delete bool
	userID string
	id     string
}

type fakeCatchesRepo struct {
	ops       []catchOp
	failOnID  string
	failErr   error
	list      []*models.Catch
	lastLimit int
}

func (f *fakeCatchesRepo) Upsert(_ context.Context, c *models.Catch) error {
	if c.ID == f.failOnID {
		return f.failErr
	}
	f.ops = append(f.ops, catchOp{userID: c.UserID, id: c.ID})
	return nil
}

func (f *fakeCatchesRepo) Delete(_ context.Context, userID, id string) error {
	if id == f.failOnID {
		return f.failErr
	}
	f.ops = append(f.ops, catchOp{delete: true, userID: userID, id: id})
	return nil
}

func (f *fakeCatchesRepo) ListRecent(_ context.Context, _ string, limit int) ([]*models.Catch, error) {
	f.lastLimit = limit
	return f.list, nil
}

type fakeRepoManager struct {
	u *fakeUsersRepo
	c *fakeCatchesRepo
}

func (m *fakeRepoManager) RunMigrations(context.Context, *sql.DB) error { return nil }
func (m *fakeRepoManager) Users(dbx.DBTX) users.Repository           { return m.u }
func (m *fakeRepoManager) Catches(dbx.DBTX) catches.Repository       { return m.c }
