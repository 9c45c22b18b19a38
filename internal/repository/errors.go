// Package repository holds the MySQL-backed stores.  Lookups that miss are
// reported as apperr.ErrNotFound and duplicate-key violations as
// apperr.ErrConflict so that higher layers never need to inspect driver
// errors.
package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/go-sql-driver/mysql"

	"github.com/autoseers/carseer/internal/apperr"
)

// mysqlDuplicateEntry is ER_DUP_ENTRY.
const mysqlDuplicateEntry = 1062

// isDuplicate reports whether err is a unique-key violation.
func isDuplicate(err error) bool {
	var me *mysql.MySQLError
	return errors.As(err, &me) && me.Number == mysqlDuplicateEntry
}

// notFound translates sql.ErrNoRows into apperr.ErrNotFound naming what was
// looked up.  Other errors pass through unchanged.
func notFound(err error, what string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s: %w", what, apperr.ErrNotFound)
	}
	return err
}

// withTx runs fn inside a transaction, committing when fn returns nil and
// rolling back otherwise.
func withTx(ctx context.Context, db *sql.DB, fn func(tx *sql.Tx) error) (err error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
			return
		}
		err = tx.Commit()
	}()
	return fn(tx)
}
