package outbox

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/imbroke/backend/internal/infrastructure/kafka"
	"github.com/imbroke/backend/internal/metrics"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

type Processor struct {
	db           *sql.DB
	repo         *Repository
	producer     kafka.Producer
	pollInterval time.Duration
	pollTimeout  time.Duration
	batchSize    int
	logger       *zap.Logger
	now          func() time.Time
}

func NewProcessor(db *sql.DB, repo *Repository, producer kafka.Producer, pollInterval, pollTimeout time.Duration, batchSize int, logger *zap.Logger) *Processor {
	return &Processor{
		db:           db,
		repo:         repo,
		producer:     producer,
		pollInterval: pollInterval,
		pollTimeout:  pollTimeout,
		batchSize:    batchSize,
		logger:       logger.With(zap.String("component", "outbox_processor")),
		now:          time.Now,
	}
}

// Run polls for pending messages until ctx is cancelled.
func (p *Processor) Run(ctx context.Context) error {
	p.logger.Info("starting outbox processor", zap.Duration("poll_interval", p.pollInterval))
	ticker := time.NewTicker(p.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			p.logger.Info("outbox processor stopped")
			return nil
		case <-ticker.C:
			if _, err := p.ProcessBatch(ctx); err != nil {
				p.logger.Error("outbox batch failed", zap.Error(err))
			}
		}
	}
}

// ProcessBatch relays one batch and returns how many messages were sent.
// Messages that fail to publish stay pending and are retried on a later poll.
func (p *Processor) ProcessBatch(ctx context.Context) (int, error) {
	queryCtx, cancel := context.WithTimeout(ctx, p.pollTimeout)
	defer cancel()

	tx, err := p.db.BeginTx(queryCtx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin outbox tx: %w", err)
	}
	defer tx.Rollback()

	messages, err := p.repo.PendingTx(queryCtx, tx, p.batchSize)
	if err != nil {
		return 0, err
	}
	if len(messages) == 0 {
		return 0, nil
	}

	sent := make([]string, 0, len(messages))
	for _, msg := range messages {
		if err := p.producer.Produce(ctx, msg.Key, msg.Topic, msg.Payload); err != nil {
			metrics.RecordOutboxPublish(false)
			p.logger.Warn("outbox message not published",
				zap.String("message_id", msg.ID),
				zap.String("topic", msg.Topic),
				zap.Error(err))
			continue
		}
		metrics.RecordOutboxPublish(true)
		sent = append(sent, msg.ID)
	}

	// Produce may outlive the poll timeout, so the status update gets its own.
	updateCtx, cancelUpdate := context.WithTimeout(ctx, p.pollTimeout)
	defer cancelUpdate()
	if err := p.repo.MarkSent(updateCtx, tx, sent, p.now().UTC()); err != nil {
		return 0, err
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit outbox tx: %w", err)
	}

	p.logger.Info("outbox batch relayed", zap.Int("sent", len(sent)), zap.Int("pending", len(messages)-len(sent)))
	return len(sent), nil
}

// Purger removes relayed messages older than the retention window on a cron
// schedule.
type Purger struct {
	db        *sql.DB
	repo      *Repository
	retention time.Duration
	cron      *cron.Cron
	logger    *zap.Logger
}

func NewPurger(db *sql.DB, repo *Repository, schedule string, retention time.Duration, logger *zap.Logger) (*Purger, error) {
	p := &Purger{
		db:        db,
		repo:      repo,
		retention: retention,
		cron:      cron.New(),
		logger:    logger.With(zap.String("component", "outbox_purger")),
	}
	if _, err := p.cron.AddFunc(schedule, p.purge); err != nil {
		return nil, fmt.Errorf("invalid outbox purge schedule %q: %w", schedule, err)
	}
	return p, nil
}

func (p *Purger) Start() {
	p.cron.Start()
}

// Stop waits for a running purge to finish.
func (p *Purger) Stop() {
	<-p.cron.Stop().Done()
}

func (p *Purger) purge() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	n, err := p.repo.PurgeSent(ctx, p.db, time.Now().UTC().Add(-p.retention))
	if err != nil {
		p.logger.Error("outbox purge failed", zap.Error(err))
		return
	}
	if n > 0 {
		p.logger.Info("outbox purged", zap.Int64("deleted", n))
	}
}
