// Package txn выполняет единицы работы в транзакции хранилища.
package txn

import (
	"context"
	"errors"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

// RetryConfig конфигурация повторов при конфликте транзакций.
type RetryConfig struct {
	MaxAttempts   int
	InitialDelay  time.Duration
	MaxDelay      time.Duration
	BackoffFactor float64
}

// DefaultRetryConfig возвращает конфигурацию по умолчанию.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:   3,
		InitialDelay:  100 * time.Millisecond,
		MaxDelay:      5 * time.Second,
		BackoffFactor: 2.0,
	}
}

func (c RetryConfig) normalize() RetryConfig {
	def := DefaultRetryConfig()
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = def.MaxAttempts
	}
	if c.InitialDelay < 0 {
		c.InitialDelay = 0
	}
	if c.MaxDelay <= 0 {
		c.MaxDelay = def.MaxDelay
	}
	if c.BackoffFactor < 1 {
		c.BackoffFactor = def.BackoffFactor
	}
	return c
}

// Run открывает транзакцию, выполняет fn и фиксирует результат.
// Транзакция откатывается, если fn вернула ошибку или запаниковала,
// а также если ctx отменён до commit.
func Run(ctx context.Context, transactor domain.Transactor, fn func(tx domain.Tx) error) (err error) {
	if err := ctx.Err(); err != nil {
		return err
	}

	tx, err := transactor.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	committed := false
	defer func() {
		if committed {
			return
		}
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, domain.ErrTxDone) {
			err = errors.Join(err, fmt.Errorf("rollback: %w", rbErr))
		}
	}()

	if err = fn(tx); err != nil {
		return err
	}
	if err = ctx.Err(); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	committed = true
	return nil
}

// RunWithRetry повторяет единицу работы целиком, пока ошибка относится к TransactionConflict.
// Каждая попытка получает новую транзакцию.
func RunWithRetry(ctx context.Context, transactor domain.Transactor, cfg RetryConfig, logger *log.Entry, fn func(tx domain.Tx) error) error {
	cfg = cfg.normalize()
	if logger == nil {
		logger = log.WithField("component", "txn")
	}

	delay := cfg.InitialDelay
	var lastErr error
	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		lastErr = Run(ctx, transactor, fn)
		if lastErr == nil {
			if attempt > 1 {
				logger.WithField("attempt", attempt).Info("Transaction succeeded after retry")
			}
			return nil
		}
		if domain.KindOf(lastErr) != domain.KindTransactionConflict {
			return lastErr
		}
		if attempt == cfg.MaxAttempts {
			break
		}

		logger.WithFields(log.Fields{
			"attempt": attempt,
			"delay":   delay,
			"error":   lastErr,
		}).Warn("Transaction conflict, retrying")

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return errors.Join(lastErr, ctx.Err())
		case <-timer.C:
		}

		delay = time.Duration(float64(delay) * cfg.BackoffFactor)
		if delay > cfg.MaxDelay {
			delay = cfg.MaxDelay
		}
	}

	logger.WithFields(log.Fields{
		"max_attempts": cfg.MaxAttempts,
		"error":        lastErr,
	}).Error("Transaction failed after all retry attempts")
	return lastErr
}
