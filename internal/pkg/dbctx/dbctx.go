package dbctx

import (
	"context"

	"gorm.io/gorm"
)

// Context pairs a request context with the transaction to run in. A nil Tx
// means the caller is not in a transaction.
type Context struct {
	Ctx context.Context
	Tx  *gorm.DB
}

// Conn returns the transaction when set, else db, bound to Ctx.
func (c Context) Conn(db *gorm.DB) *gorm.DB {
	conn := c.Tx
	if conn == nil {
		conn = db
	}
	ctx := c.Ctx
	if ctx == nil {
		ctx = context.Background()
	}
	return conn.WithContext(ctx)
}
