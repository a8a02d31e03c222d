package storage

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/wa-ai-replybot-go/internal/models"
)

// Ledger owns the statistics record. Load and Save never fail the caller;
// Update serializes load-mutate-save so overlapping messages cannot lose increments.
type Ledger struct {
	backend Backend
	logger  *logrus.Logger
	now     func() time.Time

	mu sync.Mutex
}

// NewLedger wraps a backend
func NewLedger(backend Backend, logger *logrus.Logger) *Ledger {
	return &Ledger{
		backend: backend,
		logger:  logger,
		now:     time.Now,
	}
}

// Load returns the persisted record or a fresh zeroed one
func (l *Ledger) Load(ctx context.Context) *models.Stats {
	stats, err := l.backend.Load(ctx)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			l.logger.WithError(err).Warn("Failed to load stats, starting fresh record")
		}
		return models.NewStats(l.now())
	}
	if stats.StartTime.IsZero() {
		stats.StartTime = l.now()
	}
	return stats
}

// Save stamps LastActive and overwrites the record. Errors are logged and swallowed.
func (l *Ledger) Save(ctx context.Context, stats *models.Stats) {
	now := l.now()
	stats.LastActive = &now
	if err := l.backend.Save(ctx, stats); err != nil {
		l.logger.WithError(err).Error("Failed to save stats")
	}
}

// Update applies mutate to the current record and persists it
func (l *Ledger) Update(ctx context.Context, mutate func(*models.Stats)) models.Stats {
	l.mu.Lock()
	defer l.mu.Unlock()

	stats := l.Load(ctx)
	mutate(stats)
	l.Save(ctx, stats)
	return *stats
}

// Snapshot returns a copy of the persisted record without writing
func (l *Ledger) Snapshot(ctx context.Context) models.Stats {
	l.mu.Lock()
	defer l.mu.Unlock()
	return *l.Load(ctx)
}
