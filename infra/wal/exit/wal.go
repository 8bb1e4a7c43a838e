// Package exit is the outbox of emitted market events. Records live in the
// store's pebble DB and are staged into the same batch as the state change
// that produced them, so an event exists exactly when its change committed.
package exit

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"time"

	"github.com/cockroachdb/pebble"
)

var ErrBadRecord = errors.New("exit wal: invalid record")

// -------------------- State --------------------

type ExitState uint8

const (
	StateNew ExitState = iota
	StateSent
	StateAcked
	StateFailed
)

func (s ExitState) String() string {
	switch s {
	case StateNew:
		return "NEW"
	case StateSent:
		return "SENT"
	case StateAcked:
		return "ACKED"
	case StateFailed:
		return "FAILED"
	default:
		return "UNKNOWN"
	}
}

// -------------------- Record --------------------

type ExitRecord struct {
	Seq         uint64
	State       ExitState
	Retries     uint32
	LastAttempt int64
	Key         []byte
	Payload     []byte
}

// binary encoding: [state:1][retries:4][lastAttempt:8][keyLen:2][key][payload]
const fixedLen = 1 + 4 + 8 + 2

func encodeRecord(r ExitRecord) []byte {
	buf := make([]byte, fixedLen+len(r.Key)+len(r.Payload))
	buf[0] = byte(r.State)
	binary.BigEndian.PutUint32(buf[1:5], r.Retries)
	binary.BigEndian.PutUint64(buf[5:13], uint64(r.LastAttempt))
	binary.BigEndian.PutUint16(buf[13:15], uint16(len(r.Key)))
	n := copy(buf[fixedLen:], r.Key)
	copy(buf[fixedLen+n:], r.Payload)
	return buf
}

func decodeRecord(seq uint64, b []byte) (ExitRecord, error) {
	if len(b) < fixedLen {
		return ExitRecord{}, fmt.Errorf("%w: length %d", ErrBadRecord, len(b))
	}
	keyLen := int(binary.BigEndian.Uint16(b[13:15]))
	if len(b) < fixedLen+keyLen {
		return ExitRecord{}, fmt.Errorf("%w: key length %d", ErrBadRecord, keyLen)
	}
	return ExitRecord{
		Seq:         seq,
		State:       ExitState(b[0]),
		Retries:     binary.BigEndian.Uint32(b[1:5]),
		LastAttempt: int64(binary.BigEndian.Uint64(b[5:13])),
		Key:         append([]byte(nil), b[fixedLen:fixedLen+keyLen]...),
		Payload:     append([]byte(nil), b[fixedLen+keyLen:]...),
	}, nil
}

// -------------------- WAL --------------------

type ExitWAL struct {
	db *pebble.DB
}

// New uses db, which the caller owns and closes.
func New(db *pebble.DB) *ExitWAL {
	return &ExitWAL{db: db}
}

// -------------------- API --------------------

// Stage adds a new entry to batch. It becomes visible when batch commits.
func (w *ExitWAL) Stage(batch *pebble.Batch, seq uint64, key, payload []byte) error {
	rec := ExitRecord{State: StateNew, Key: key, Payload: payload}
	return batch.Set(keyFor(seq), encodeRecord(rec), nil)
}

// UpdateState updates state after send / ack / failure.
func (w *ExitWAL) UpdateState(seq uint64, state ExitState, retries uint32) error {
	rec, err := w.Get(seq)
	if err != nil {
		return err
	}
	rec.State = state
	rec.Retries = retries
	rec.LastAttempt = time.Now().UnixNano()
	return w.db.Set(keyFor(seq), encodeRecord(rec), pebble.Sync)
}

// Delete removes an entry (cleanup after ack).
func (w *ExitWAL) Delete(seq uint64) error {
	return w.db.Delete(keyFor(seq), pebble.Sync)
}

func (w *ExitWAL) Get(seq uint64) (ExitRecord, error) {
	val, closer, err := w.db.Get(keyFor(seq))
	if err != nil {
		return ExitRecord{}, err
	}
	defer closer.Close()

	return decodeRecord(seq, val)
}

// LastSeq is the highest staged sequence, 0 when the outbox is empty.
func (w *ExitWAL) LastSeq() (uint64, error) {
	iter, err := w.db.NewIter(&pebble.IterOptions{
		LowerBound: []byte(prefix),
		UpperBound: []byte(upperBound),
	})
	if err != nil {
		return 0, err
	}
	defer iter.Close()

	if !iter.Last() {
		return 0, iter.Error()
	}
	return parseKey(iter.Key())
}

// -------------------- Scan --------------------

// ScanByState iterates all records in the given state in sequence order.
func (w *ExitWAL) ScanByState(state ExitState, fn func(rec ExitRecord) error) error {
	return w.scan(func(rec ExitRecord) error {
		if rec.State != state {
			return nil
		}
		return fn(rec)
	})
}

// ScanPending visits records that still need publishing: new ones, ones a
// crash left in SENT, and failed ones below maxRetries.
func (w *ExitWAL) ScanPending(maxRetries uint32, fn func(rec ExitRecord) error) error {
	return w.scan(func(rec ExitRecord) error {
		switch rec.State {
		case StateNew, StateSent:
			return fn(rec)
		case StateFailed:
			if rec.Retries < maxRetries {
				return fn(rec)
			}
		}
		return nil
	})
}

// TruncateAckedUpTo deletes acked records with seq <= upTo.
func (w *ExitWAL) TruncateAckedUpTo(upTo uint64) (int, error) {
	batch := w.db.NewBatch()
	defer batch.Close()

	n := 0
	err := w.scan(func(rec ExitRecord) error {
		if rec.Seq > upTo || rec.State != StateAcked {
			return nil
		}
		n++
		return batch.Delete(keyFor(rec.Seq), nil)
	})
	if err != nil {
		return 0, err
	}
	if n == 0 {
		return 0, nil
	}
	return n, batch.Commit(pebble.Sync)
}

func (w *ExitWAL) scan(fn func(rec ExitRecord) error) error {
	iter, err := w.db.NewIter(&pebble.IterOptions{
		LowerBound: []byte(prefix),
		UpperBound: []byte(upperBound),
	})
	if err != nil {
		return err
	}
	defer iter.Close()

	for iter.First(); iter.Valid(); iter.Next() {
		seq, err := parseKey(iter.Key())
		if err != nil {
			return err
		}
		rec, err := decodeRecord(seq, iter.Value())
		if err != nil {
			return err
		}
		if err := fn(rec); err != nil {
			return err
		}
	}
	return iter.Error()
}

// -------------------- Helpers --------------------

const (
	prefix     = "outbox/"
	upperBound = "outbox/~"
)

func keyFor(seq uint64) []byte {
	return []byte(fmt.Sprintf(prefix+"%020d", seq))
}

func parseKey(b []byte) (uint64, error) {
	var seq uint64
	_, err := fmt.Sscanf(string(bytes.TrimPrefix(b, []byte(prefix))), "%d", &seq)
	return seq, err
}
