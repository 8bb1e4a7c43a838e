package service

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"go.uber.org/zap"
)

// Compact drops WAL segments whose commands are all committed to the store
// and outbox events that were acked. Returns segments and events removed.
func (s *MarketService) Compact() (int, int, error) {
	applied, err := s.store.AppliedSeq()
	if err != nil {
		return 0, 0, err
	}
	segs, err := s.wal.TruncateBefore(applied)
	if err != nil {
		return segs, 0, err
	}

	outbox := s.store.Outbox()
	last, err := outbox.LastSeq()
	if err != nil {
		return segs, 0, err
	}
	events, err := outbox.TruncateAckedUpTo(last)
	return segs, events, err
}

// StartCompactionJob runs Compact every interval until ctx is done.
func (s *MarketService) StartCompactionJob(ctx context.Context, interval time.Duration) {
	go func() {
		t := time.NewTicker(interval)
		defer t.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
			}

			segs, events, err := s.Compact()
			if err != nil {
				s.log.Warn("[compaction] failed", zap.Error(err))
				continue
			}
			if segs > 0 || events > 0 {
				s.log.Info("[compaction] done",
					zap.Int("segments", segs),
					zap.Int("events", events),
				)
			}
		}
	}()
}

// Checkpoint copies the store into dir/<applied seq> and returns that
// sequence. Commands wait while the copy is taken, so it matches a WAL
// position exactly.
func (s *MarketService) Checkpoint(dir string) (uint64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	applied, err := s.store.AppliedSeq()
	if err != nil {
		return 0, err
	}
	dest := filepath.Join(dir, fmt.Sprintf("%020d", applied))
	if err := s.store.Checkpoint(dest); err != nil {
		return 0, fmt.Errorf("checkpoint %s: %w", dest, err)
	}
	return applied, nil
}

// StartSnapshotJob checkpoints the store every interval until ctx is done.
// A checkpoint for an unchanged sequence is skipped.
func (s *MarketService) StartSnapshotJob(ctx context.Context, dir string, interval time.Duration) {
	go func() {
		t := time.NewTicker(interval)
		defer t.Stop()

		var last uint64
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
			}

			applied, err := s.store.AppliedSeq()
			if err != nil || applied == last {
				continue
			}
			seq, err := s.Checkpoint(dir)
			if err != nil {
				s.log.Warn("[snapshot] failed", zap.Error(err))
				continue
			}
			last = seq
			s.log.Info("[snapshot] written", zap.Uint64("seq", seq), zap.String("dir", dir))
		}
	}()
}
