package repomanager

import (
	"context"
	"database/sql"

	"github.com/dmitrijs2005/sealchat/internal/dbx"
	"github.com/dmitrijs2005/sealchat/internal/server/repositories/chatgroups"
	"github.com/dmitrijs2005/sealchat/internal/server/repositories/friendships"
	"github.com/dmitrijs2005/sealchat/internal/server/repositories/keypairs"
	"github.com/dmitrijs2005/sealchat/internal/server/repositories/messages"
	"github.com/dmitrijs2005/sealchat/internal/server/repositories/refreshtokens"
	"github.com/dmitrijs2005/sealchat/internal/server/repositories/users"
)

// RepositoryManager vends repositories bound to a DBTX, so the same code
// path works inside and outside a transaction.
type RepositoryManager interface {
	RunMigrations(context.Context, *sql.DB) error
	Users(db dbx.DBTX) users.Repository
	KeyPairs(db dbx.DBTX) keypairs.Repository
	Friendships(db dbx.DBTX) friendships.Repository
	Messages(db dbx.DBTX) messages.Repository
	RefreshTokens(db dbx.DBTX) refreshtokens.Repository
	ChatGroups(db dbx.DBTX) chatgroups.Repository
}
