package status

import (
	"context"
	"errors"

	"catalogue-ingester/core/delivery"
	"catalogue-ingester/core/ledger"

	"go.uber.org/zap"
)

// ErrLedgerDisabled is returned by RecentFailures when no ledger is configured.
var ErrLedgerDisabled = errors.New("failure ledger disabled")

// StatsSource provides controller counters. *delivery.Stats satisfies it.
type StatsSource interface {
	Snapshot() delivery.Snapshot
}

// FailureSource lists recorded failures. *ledger.Ledger satisfies it.
type FailureSource interface {
	Recent(ctx context.Context, limit int) ([]ledger.FailedKey, error)
}

// Report is the body of GET /status.
type Report struct {
	delivery.Snapshot
	Topics []string `json:"topics"`
	Policy string   `json:"policy"`
	Ledger bool     `json:"ledger"`
}

// Service builds status reports.
type Service struct {
	stats    StatsSource
	failures FailureSource
	topics   []string
	policy   string
	logger   *zap.Logger
}

// NewService creates a Service. failures may be nil.
func NewService(stats StatsSource, failures FailureSource, topics []string, policy string, logger *zap.Logger) *Service {
	return &Service{
		stats:    stats,
		failures: failures,
		topics:   topics,
		policy:   policy,
		logger:   logger,
	}
}

// Report returns the current counters.
func (s *Service) Report() Report {
	return Report{
		Snapshot: s.stats.Snapshot(),
		Topics:   s.topics,
		Policy:   s.policy,
		Ledger:   s.failures != nil,
	}
}

// RecentFailures returns at most limit failed keys, newest first.
func (s *Service) RecentFailures(ctx context.Context, limit int) ([]ledger.FailedKey, error) {
	if s.failures == nil {
		return nil, ErrLedgerDisabled
	}
	return s.failures.Recent(ctx, limit)
}
