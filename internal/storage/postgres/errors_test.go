package postgres

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

func TestTranslateError(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want domain.Kind
	}{
		{name: "serialization", err: &pgconn.PgError{Code: codeSerializationFailure}, want: domain.KindTransactionConflict},
		{name: "deadlock", err: &pgconn.PgError{Code: codeDeadlockDetected}, want: domain.KindTransactionConflict},
		{name: "lock timeout", err: &pgconn.PgError{Code: codeLockNotAvailable}, want: domain.KindTransactionConflict},
		{name: "check", err: &pgconn.PgError{Code: codeCheckViolation}, want: domain.KindInsufficientStock},
		{name: "unique", err: &pgconn.PgError{Code: codeUniqueViolation}, want: domain.KindTransactionConflict},
		{name: "foreign key", err: &pgconn.PgError{Code: codeForeignKeyViolation}, want: domain.KindNotFound},
		{name: "syntax", err: &pgconn.PgError{Code: "42601"}, want: domain.KindInternal},
		{name: "plain", err: errors.New("connection reset"), want: domain.KindInternal},
		{name: "domain passthrough", err: domain.ErrColorNotFound, want: domain.KindNotFound},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := translateError("op", tc.err)
			if kind := domain.KindOf(got); kind != tc.want {
				t.Fatalf("KindOf = %s, want %s (err %v)", kind, tc.want, got)
			}
			if !errors.Is(got, tc.err) {
				t.Fatalf("translated error must keep the original in chain")
			}
		})
	}

	if translateError("op", nil) != nil {
		t.Fatal("nil must stay nil")
	}
}

func TestTranslateError_HidesDriverText(t *testing.T) {
	pgErr := &pgconn.PgError{
		Severity:       "ERROR",
		Code:           codeCheckViolation,
		Message:        `new row for relation "product_color_stocks" violates check constraint "product_color_stocks_stock_non_negative"`,
		ConstraintName: "product_color_stocks_stock_non_negative",
	}

	err := translateError("decrement stock", pgErr)
	if got, want := err.Error(), "decrement stock: insufficient stock"; got != want {
		t.Fatalf("Error() = %q, want %q", got, want)
	}

	var cause *pgconn.PgError
	if !errors.As(err, &cause) || cause.ConstraintName != pgErr.ConstraintName {
		t.Fatalf("driver error must stay reachable for logs, got %v", cause)
	}
	if !errors.Is(err, domain.ErrInsufficientStock) {
		t.Fatal("expected insufficient stock kind in chain")
	}

	lock := translateError("lock stock row", &pgconn.PgError{Code: codeLockNotAvailable, Message: "canceling statement due to lock timeout"})
	if got, want := lock.Error(), "lock stock row: transaction conflict"; got != want {
		t.Fatalf("Error() = %q, want %q", got, want)
	}
}

func TestTranslateError_KeepsContextErrors(t *testing.T) {
	err := translateError("op", context.DeadlineExceeded)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline in chain, got %v", err)
	}
}

func TestStoreRejectsForeignTx(t *testing.T) {
	store := &Store{}
	other := &Store{}

	if _, err := store.txFrom(&pgTx{store: other}); !errors.Is(err, domain.ErrForeignTx) {
		t.Fatalf("expected ErrForeignTx, got %v", err)
	}

	type alienTx struct{ domain.Tx }
	if _, err := store.querier(alienTx{}); !errors.Is(err, domain.ErrForeignTx) {
		t.Fatalf("expected ErrForeignTx, got %v", err)
	}
}
