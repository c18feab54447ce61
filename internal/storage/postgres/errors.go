package postgres

import (
	"database/sql"
	"errors"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

// Коды SQLSTATE, которые переводятся в доменные ошибки.
const (
	codeUniqueViolation      = "23505"
	codeForeignKeyViolation  = "23503"
	codeCheckViolation       = "23514"
	codeSerializationFailure = "40001"
	codeDeadlockDetected     = "40P01"
	codeLockNotAvailable     = "55P03"
)

// translateError переводит ошибку драйвера в доменный вид на границе хранилища.
func translateError(op string, err error) error {
	if err == nil {
		return nil
	}
	if domain.KindOf(err) != domain.KindInternal {
		return err
	}

	kind := domain.ErrInternal
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case codeSerializationFailure, codeDeadlockDetected, codeLockNotAvailable, codeUniqueViolation:
			kind = domain.ErrTransactionConflict
		case codeCheckViolation:
			kind = domain.ErrInsufficientStock
		case codeForeignKeyViolation:
			kind = domain.ErrNotFound
		}
	}
	return &domain.StoreError{Op: op, Cause: err, Kind: kind}
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == codeUniqueViolation
	}
	return false
}

// requireAffected возвращает notFound, если запрос не затронул ни одной строки.
func requireAffected(res sql.Result, notFound error) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return translateError("rows affected", err)
	}
	if affected == 0 {
		return notFound
	}
	return nil
}
