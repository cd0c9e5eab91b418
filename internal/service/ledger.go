package service

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.uber.org/zap"
)

const reconcileBatchSize = 100

// applyLedger учитывает пожертвование в собранной сумме кампании с ограниченным числом попыток.
// При неудаче пожертвование остаётся неучтённым до следующей сверки.
func (s *Service) applyLedger(ctx context.Context, donationID string, log *zap.Logger) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = s.ledgerRetryDelay

	_, err := backoff.Retry(ctx, func() (bool, error) {
		return s.repo.ApplyDonationToLedger(ctx, donationID)
	}, backoff.WithBackOff(b), backoff.WithMaxTries(s.ledgerTries))
	if err != nil {
		log.Error("ledger increment deferred to reconciliation", zap.Error(err))
	}
}

// ReconcileLedger учитывает в собранных суммах все пожертвования, которые ещё не были учтены.
// Возвращает число учтённых пожертвований.
func (s *Service) ReconcileLedger(ctx context.Context) (int, error) {
	applied := 0
	for {
		ids, err := s.repo.GetUnappliedDonations(ctx, reconcileBatchSize)
		if err != nil {
			return applied, fmt.Errorf("load unapplied donations: %w", err)
		}
		if len(ids) == 0 {
			return applied, nil
		}

		progress := false
		for _, id := range ids {
			ok, err := s.repo.ApplyDonationToLedger(ctx, id)
			if err != nil {
				s.logger.Warn("reconciliation failed for donation", zap.String("donationID", id), zap.Error(err))
				continue
			}
			progress = true
			if ok {
				applied++
			}
		}

		if len(ids) < reconcileBatchSize || !progress {
			return applied, nil
		}
	}
}

// StartLedgerReconciliation запускает фоновую периодическую сверку собранных сумм.
func (s *Service) StartLedgerReconciliation(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				n, err := s.ReconcileLedger(ctx)
				if err != nil {
					s.logger.Warn("ledger reconciliation failed", zap.Error(err))
					continue
				}
				if n > 0 {
					s.logger.Info("ledger reconciled", zap.Int("applied", n))
				}
			}
		}
	}()
}
