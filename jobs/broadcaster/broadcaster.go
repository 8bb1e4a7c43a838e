// Package broadcaster drains the event outbox to Kafka. Each pending record
// is marked SENT, published, then marked ACKED, or FAILED with one more
// retry. A crash between SENT and ACKED republishes the record, so consumers
// see every event at least once and dedupe on the event ID.
package broadcaster

import (
	"context"
	"time"

	"go.uber.org/zap"

	exitwal "ledgerbook/infra/wal/exit"
)

// Publisher is the sink. infra/kafka provides a kafka-go and a sarama one.
type Publisher interface {
	Publish(ctx context.Context, key, value []byte) error
	Close() error
}

type Config struct {
	Interval   time.Duration
	MaxRetries uint32
}

type Broadcaster struct {
	outbox    *exitwal.ExitWAL
	publisher Publisher
	cfg       Config
	log       *zap.Logger
}

// ------------------------------------------------
// CONSTRUCTOR
// ------------------------------------------------

func New(outbox *exitwal.ExitWAL, publisher Publisher, cfg Config, log *zap.Logger) *Broadcaster {
	if cfg.Interval <= 0 {
		cfg.Interval = 250 * time.Millisecond
	}
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = 5
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Broadcaster{
		outbox:    outbox,
		publisher: publisher,
		cfg:       cfg,
		log:       log,
	}
}

// ------------------------------------------------
// START LOOP
// ------------------------------------------------

// Start drains the outbox every interval until ctx is done.
func (b *Broadcaster) Start(ctx context.Context) {
	b.log.Info("[broadcaster] started", zap.Duration("interval", b.cfg.Interval))

	go func() {
		ticker := time.NewTicker(b.cfg.Interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				b.log.Info("[broadcaster] stopped")
				return

			case <-ticker.C:
				if _, err := b.DrainOnce(ctx); err != nil {
					b.log.Warn("[broadcaster] drain failed", zap.Error(err))
				}
			}
		}
	}()
}

// ------------------------------------------------
// DRAIN
// ------------------------------------------------

// DrainOnce makes one pass over the pending records and returns how many
// were acked. A publish failure is recorded on the record and does not stop
// the pass; an outbox failure does.
func (b *Broadcaster) DrainOnce(ctx context.Context) (int, error) {
	acked := 0
	err := b.outbox.ScanPending(b.cfg.MaxRetries, func(rec exitwal.ExitRecord) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := b.outbox.UpdateState(rec.Seq, exitwal.StateSent, rec.Retries); err != nil {
			return err
		}

		if err := b.publisher.Publish(ctx, rec.Key, rec.Payload); err != nil {
			retries := rec.Retries + 1
			b.log.Warn("[broadcaster] publish failed",
				zap.Uint64("seq", rec.Seq),
				zap.Uint32("retries", retries),
				zap.Error(err),
			)
			if retries >= b.cfg.MaxRetries {
				b.log.Error("[broadcaster] giving up on event", zap.Uint64("seq", rec.Seq))
			}
			return b.outbox.UpdateState(rec.Seq, exitwal.StateFailed, retries)
		}

		acked++
		return b.outbox.UpdateState(rec.Seq, exitwal.StateAcked, rec.Retries)
	})
	return acked, err
}

// ------------------------------------------------
// SHUTDOWN
// ------------------------------------------------

func (b *Broadcaster) Close() error {
	return b.publisher.Close()
}
