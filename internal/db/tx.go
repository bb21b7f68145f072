package db

import (
	"context"

	"gorm.io/gorm"
)

// TxRunner opens request-scoped transactions.
type TxRunner struct {
	db *gorm.DB
}

func NewTxRunner(db *gorm.DB) *TxRunner { return &TxRunner{db: db} }

// DB returns the handle bound to ctx, outside any transaction.
func (r *TxRunner) DB(ctx context.Context) *gorm.DB { return r.db.WithContext(ctx) }

// InTx runs fn in a transaction; a returned error rolls it back.
func (r *TxRunner) InTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return r.db.WithContext(ctx).Transaction(fn)
}
