// Package store is the resource store: at most one record of a given kind
// per owner address, persisted in pebble.
//
// All access goes through a Txn. A Txn decodes records on first touch and
// keeps them in memory; Commit writes every modified record, the staged
// outbox events and the applied command sequence in one synced batch, and
// Discard drops everything. Nothing a Txn does is visible before Commit.
package store

import (
	"encoding"
	"encoding/binary"
	"errors"
	"fmt"
	"sync"

	"github.com/cockroachdb/pebble"
	"github.com/cockroachdb/pebble/vfs"

	"ledgerbook/domain/account"
	exitwal "ledgerbook/infra/wal/exit"
)

var (
	ErrExists       = errors.New("store: record already exists")
	ErrNotFound     = errors.New("store: record not found")
	ErrTypeMismatch = errors.New("store: record type mismatch")
	ErrTxnDone      = errors.New("store: transaction already finished")
)

// Record is anything the store can persist.
type Record interface {
	encoding.BinaryMarshaler
	encoding.BinaryUnmarshaler
}

type Options struct {
	Dir string
	// FS overrides the filesystem, e.g. vfs.NewMem() in tests.
	FS vfs.FS
}

type Store struct {
	db     *pebble.DB
	outbox *exitwal.ExitWAL

	// commitMu orders commits so outbox sequences are gap free.
	commitMu sync.Mutex
	eventSeq uint64
}

func Open(opts Options) (*Store, error) {
	db, err := pebble.Open(opts.Dir, &pebble.Options{FS: opts.FS})
	if err != nil {
		return nil, fmt.Errorf("open store %s: %w", opts.Dir, err)
	}
	s := &Store{db: db, outbox: exitwal.New(db)}
	if s.eventSeq, err = s.outbox.LastSeq(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Outbox exposes the event outbox sharing this store's DB.
func (s *Store) Outbox() *exitwal.ExitWAL {
	return s.outbox
}

var metaApplied = []byte("meta/applied_seq")

// AppliedSeq is the last command sequence whose effects were committed.
func (s *Store) AppliedSeq() (uint64, error) {
	val, closer, err := s.db.Get(metaApplied)
	if errors.Is(err, pebble.ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	defer closer.Close()
	if len(val) != 8 {
		return 0, fmt.Errorf("store: bad applied seq length %d", len(val))
	}
	return binary.BigEndian.Uint64(val), nil
}

// MarkApplied records seq as applied without other changes, for commands
// that were rejected.
func (s *Store) MarkApplied(seq uint64) error {
	t := s.Begin()
	t.SetSeq(seq)
	return t.Commit()
}

// Checkpoint writes a consistent copy of the DB, outbox included, to dir.
// dir must not exist yet.
func (s *Store) Checkpoint(dir string) error {
	return s.db.Checkpoint(dir, pebble.WithFlushedWAL())
}

func (s *Store) Begin() *Txn {
	return &Txn{s: s, staged: make(map[string]*staged)}
}

func recordKey(owner account.Address, kind string) []byte {
	return []byte("rec/" + owner.String() + "/" + kind)
}

// ---------------- Commit ----------------

func (s *Store) commit(t *Txn) error {
	batch := s.db.NewBatch()
	defer batch.Close()

	for _, k := range t.order {
		st := t.staged[k]
		if !st.dirty {
			continue
		}
		if st.rec == nil {
			if err := batch.Delete([]byte(k), nil); err != nil {
				return err
			}
			continue
		}
		val, err := st.rec.MarshalBinary()
		if err != nil {
			return fmt.Errorf("encode %s: %w", k, err)
		}
		if err := batch.Set([]byte(k), val, nil); err != nil {
			return err
		}
	}

	if t.seq > 0 {
		var buf [8]byte
		binary.BigEndian.PutUint64(buf[:], t.seq)
		if err := batch.Set(metaApplied, buf[:], nil); err != nil {
			return err
		}
	}

	s.commitMu.Lock()
	defer s.commitMu.Unlock()

	next := s.eventSeq
	for _, ev := range t.events {
		next++
		if err := s.outbox.Stage(batch, next, ev.key, ev.payload); err != nil {
			return err
		}
	}
	if batch.Empty() {
		return nil
	}
	if err := batch.Commit(pebble.Sync); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	s.eventSeq = next
	return nil
}
