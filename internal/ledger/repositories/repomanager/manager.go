package repomanager

import (
	"context"
	"database/sql"

	"github.com/starfrich/cryptletter/internal/dbx"
	"github.com/starfrich/cryptletter/internal/ledger/repositories/creators"
	"github.com/starfrich/cryptletter/internal/ledger/repositories/grants"
	"github.com/starfrich/cryptletter/internal/ledger/repositories/payments"
	"github.com/starfrich/cryptletter/internal/ledger/repositories/posts"
	"github.com/starfrich/cryptletter/internal/ledger/repositories/subscriptions"
)

type RepositoryManager interface {
	RunMigrations(context.Context, *sql.DB) error
	Creators(db dbx.DBTX) creators.Repository
	Posts(db dbx.DBTX) posts.Repository
	Subscriptions(db dbx.DBTX) subscriptions.Repository
	Grants(db dbx.DBTX) grants.Repository
	Payments(db dbx.DBTX) payments.Repository
}
