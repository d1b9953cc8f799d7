package service

import (
	"context"
	"fmt"
	"time"

	"stream-wallet/internal/model"
	"stream-wallet/internal/repository"
)

// ReportService produces per-period ledger summaries.
type ReportService struct {
	ledger   *repository.LedgerRepository
	timezone *time.Location
	now      func() time.Time
}

// NewReportService creates a new ReportService instance.
func NewReportService(ledger *repository.LedgerRepository, timezone *time.Location) *ReportService {
	if timezone == nil {
		timezone = time.UTC
	}
	return &ReportService{
		ledger:   ledger,
		timezone: timezone,
		now:      time.Now,
	}
}

// PeriodStart returns when the current period began in the report timezone.
func (s *ReportService) PeriodStart(period model.Period) time.Time {
	return period.Start(s.now().In(s.timezone))
}

// Summaries totals each account's entries in one currency since the start
// of the current period, highest credited first.
func (s *ReportService) Summaries(ctx context.Context, currency model.Currency, period model.Period, limit int) ([]*model.PeriodSummary, error) {
	if !currency.Valid() {
		return nil, fmt.Errorf("%w: unknown currency %q", ErrInvalidInput, currency)
	}
	return s.ledger.PeriodSummaries(ctx, currency, s.PeriodStart(period), defaultLimit(limit))
}
