// Package entry is the ingress write-ahead log: every accepted command is
// framed and appended here before it touches state, so the store can be
// rebuilt by replaying what it has not yet committed.
package entry

import (
	"encoding/binary"
	"fmt"
	"os"
	"sync"
	"time"

	"ledgerbook/infra/memory"
)

// Frame: [type:1][seq:8][time:8][len:4][payload][crc:4]
const (
	headerSize = 1 + 8 + 8 + 4
	crcSize    = 4
)

type Config struct {
	Dir             string
	SegmentSize     int64
	SegmentDuration time.Duration
	// SyncEveryWrite fsyncs after each append.
	SyncEveryWrite bool
}

type WAL struct {
	mu sync.Mutex

	dir        string
	segSize    int64
	segDur     time.Duration
	syncWrites bool

	current    *segment
	segIndex   int
	lastRotate time.Time
	// rotateErr is the last failed rotation; it is retried on the next append.
	rotateErr error

	frames *memory.BufferPool
}

// Open appends to the newest existing segment, or creates the first one.
// A frame torn by a crash at the end of that segment is cut off first, so
// new records never follow a partial one.
func Open(cfg Config) (*WAL, error) {
	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, err
	}

	files, err := listSegments(cfg.Dir)
	if err != nil {
		return nil, err
	}
	index := 0
	if n := len(files); n > 0 {
		if index, err = segmentIndex(files[n-1]); err != nil {
			return nil, fmt.Errorf("entry wal: bad segment name %s: %w", files[n-1], err)
		}
	}

	seg, err := openSegment(cfg.Dir, index)
	if err != nil {
		return nil, err
	}
	if seg.offset > 0 {
		end, err := validLength(segmentPath(cfg.Dir, index))
		if err != nil {
			_ = seg.close()
			return nil, fmt.Errorf("entry wal: scan newest segment: %w", err)
		}
		if end < seg.offset {
			if err := seg.truncate(end); err != nil {
				_ = seg.close()
				return nil, fmt.Errorf("entry wal: drop torn tail: %w", err)
			}
		}
	}

	return &WAL{
		dir:        cfg.Dir,
		segSize:    cfg.SegmentSize,
		segDur:     cfg.SegmentDuration,
		syncWrites: cfg.SyncEveryWrite,
		current:    seg,
		segIndex:   index,
		lastRotate: time.Now(),
		frames:     memory.NewBufferPool(256),
	}, nil
}

func (w *WAL) Append(r *Record) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	payloadLen := len(r.Data)
	buf := w.frames.Get(headerSize + payloadLen + crcSize)
	defer w.frames.Put(buf)
	frame := *buf

	frame[0] = byte(r.Type)
	binary.BigEndian.PutUint64(frame[1:9], r.Seq)
	binary.BigEndian.PutUint64(frame[9:17], uint64(r.Time))
	binary.BigEndian.PutUint32(frame[17:21], uint32(payloadLen))
	copy(frame[headerSize:], r.Data)

	crc := CRC32(frame[:headerSize+payloadLen])
	binary.BigEndian.PutUint32(frame[headerSize+payloadLen:], crc)

	if err := w.current.append(frame); err != nil {
		return err
	}
	if w.syncWrites {
		if err := w.current.sync(); err != nil {
			return err
		}
	}

	// The frame is written, so a failed rotation must not fail the append.
	if w.shouldRotate() {
		w.rotateErr = w.rotate()
	}
	return nil
}

// RotateErr reports the last rotation failure, or nil once a rotation
// succeeds again.
func (w *WAL) RotateErr() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.rotateErr
}

func (w *WAL) shouldRotate() bool {
	if w.segSize > 0 && w.current.offset >= w.segSize {
		return true
	}
	return w.segDur > 0 && time.Since(w.lastRotate) >= w.segDur
}

// rotate leaves the current segment in place unless the next one opened.
func (w *WAL) rotate() error {
	if err := w.current.sync(); err != nil {
		return err
	}
	seg, err := openSegment(w.dir, w.segIndex+1)
	if err != nil {
		return err
	}
	_ = w.current.close()

	w.segIndex++
	w.current = seg
	w.lastRotate = time.Now()
	return nil
}

// TruncateBefore removes closed segments whose records are all at or below
// seq. The segment being written is never removed.
func (w *WAL) TruncateBefore(seq uint64) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	files, err := listSegments(w.dir)
	if err != nil {
		return 0, err
	}

	removed := 0
	current := segmentPath(w.dir, w.segIndex)
	for _, path := range files {
		if path == current {
			continue
		}
		maxSeq, err := maxSeqInSegment(path)
		if err != nil {
			continue
		}
		if maxSeq <= seq {
			if err := os.Remove(path); err != nil {
				return removed, err
			}
			removed++
		}
	}
	return removed, nil
}

func (w *WAL) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.current.sync(); err != nil {
		return err
	}
	return w.current.close()
}
