package service

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	entrywal "ledgerbook/infra/wal/entry"
)

// Replay re-applies WAL commands the store has not committed yet and moves
// the sequencer past everything in the WAL. It must run before the service
// takes requests. Returns the number of commands applied.
func (s *MarketService) Replay(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	applied, err := s.store.AppliedSeq()
	if err != nil {
		return 0, fmt.Errorf("%w: applied seq: %w", ErrStorage, err)
	}

	n := 0
	last, err := entrywal.Replay(s.walDir, func(rec *entrywal.Record) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		if rec.Seq <= applied {
			return nil
		}
		cmd, err := DecodeCommand(rec.Type, rec.Data)
		if err != nil {
			return err
		}
		n++
		if _, err := s.applyRecord(rec, cmd); errors.Is(err, ErrStorage) {
			return err
		}
		return nil
	})
	if err != nil {
		return n, fmt.Errorf("replay: %w", err)
	}

	s.seq.Advance(max(last, applied))
	s.log.Info("[service] replay done",
		zap.Uint64("applied_before", applied),
		zap.Uint64("last_seq", last),
		zap.Int("replayed", n),
	)
	return n, nil
}
