package repomanager

import (
	"context"
	"database/sql"

	"github.com/dmitrijs2005/catchkeeper/internal/dbx"
	"github.com/dmitrijs2005/catchkeeper/internal/server/repositories/catches"
	"github.com/dmitrijs2005/catchkeeper/internal/server/repositories/users"
)

type RepositoryManager interface {
	RunMigrations(context.Context, *sql.DB) error
	Users(db dbx.DBTX) users.Repository
	Catches(db dbx.DBTX) catches.Repository
}
