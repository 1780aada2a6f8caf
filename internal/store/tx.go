package store

import (
	"context"
	"database/sql"
)

// makeTx begins a transaction, handing back its discard and commit.
type makeTx = func(ctx context.Context) (tx *sql.Tx, discard, commit func() error, err error)

func newMakeTx(db *sql.DB) makeTx {
	return func(ctx context.Context) (*sql.Tx, func() error, func() error, error) {
		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return nil, nil, nil, err
		}
		return tx,
			func() error {
				return tx.Rollback()
			},
			func() error {
				return tx.Commit()
			},
			nil
	}
}
