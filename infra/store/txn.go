package store

import (
	"errors"
	"fmt"

	"github.com/cockroachdb/pebble"

	"ledgerbook/domain/account"
)

type staged struct {
	rec   Record
	dirty bool
}

type event struct {
	key     []byte
	payload []byte
}

// Txn is one atomic unit of work. It is not safe for concurrent use.
type Txn struct {
	s      *Store
	staged map[string]*staged
	order  []string
	events []event
	seq    uint64
	done   bool
}

// recordPtr constrains P to a pointer to T that is a Record.
type recordPtr[T any] interface {
	*T
	Record
}

// load returns the staged slot for (owner, kind), reading it from the DB on
// first use. A missing record yields a slot with a nil rec.
func load[T any, P recordPtr[T]](t *Txn, owner account.Address, kind string) (*staged, error) {
	if t.done {
		return nil, ErrTxnDone
	}
	k := string(recordKey(owner, kind))
	if st, ok := t.staged[k]; ok {
		return st, nil
	}

	st := &staged{}
	val, closer, err := t.s.db.Get([]byte(k))
	switch {
	case errors.Is(err, pebble.ErrNotFound):
	case err != nil:
		return nil, err
	default:
		p := P(new(T))
		err = p.UnmarshalBinary(val)
		_ = closer.Close()
		if err != nil {
			return nil, fmt.Errorf("decode %s: %w", k, err)
		}
		st.rec = p
	}
	t.staged[k] = st
	t.order = append(t.order, k)
	return st, nil
}

func typed[T any, P recordPtr[T]](st *staged, owner account.Address, kind string) (P, error) {
	if st.rec == nil {
		return nil, fmt.Errorf("%w: %s at %s", ErrNotFound, kind, owner)
	}
	p, ok := st.rec.(P)
	if !ok {
		return nil, fmt.Errorf("%w: %s at %s is %T", ErrTypeMismatch, kind, owner, st.rec)
	}
	return p, nil
}

// Create stores v under (owner, kind). Fails with ErrExists if present.
func Create[T any, P recordPtr[T]](t *Txn, owner account.Address, kind string, v P) error {
	st, err := load[T, P](t, owner, kind)
	if err != nil {
		return err
	}
	if st.rec != nil {
		return fmt.Errorf("%w: %s at %s", ErrExists, kind, owner)
	}
	st.rec = v
	st.dirty = true
	return nil
}

// Read returns the record for inspection. Changes to it are not persisted
// unless the same record is also borrowed.
func Read[T any, P recordPtr[T]](t *Txn, owner account.Address, kind string) (P, error) {
	st, err := load[T, P](t, owner, kind)
	if err != nil {
		return nil, err
	}
	return typed[T, P](st, owner, kind)
}

// Borrow returns the record for modification; it is written on Commit.
func Borrow[T any, P recordPtr[T]](t *Txn, owner account.Address, kind string) (P, error) {
	st, err := load[T, P](t, owner, kind)
	if err != nil {
		return nil, err
	}
	p, err := typed[T, P](st, owner, kind)
	if err != nil {
		return nil, err
	}
	st.dirty = true
	return p, nil
}

// BorrowOrCreate borrows the record, creating it with init when absent.
func BorrowOrCreate[T any, P recordPtr[T]](t *Txn, owner account.Address, kind string, init func() P) (P, error) {
	ok, err := Exists[T, P](t, owner, kind)
	if err != nil {
		return nil, err
	}
	if !ok {
		if err := Create[T, P](t, owner, kind, init()); err != nil {
			return nil, err
		}
	}
	return Borrow[T, P](t, owner, kind)
}

func Exists[T any, P recordPtr[T]](t *Txn, owner account.Address, kind string) (bool, error) {
	st, err := load[T, P](t, owner, kind)
	if err != nil {
		return false, err
	}
	return st.rec != nil, nil
}

// Delete removes the record and returns it.
func Delete[T any, P recordPtr[T]](t *Txn, owner account.Address, kind string) (P, error) {
	st, err := load[T, P](t, owner, kind)
	if err != nil {
		return nil, err
	}
	p, err := typed[T, P](st, owner, kind)
	if err != nil {
		return nil, err
	}
	st.rec = nil
	st.dirty = true
	return p, nil
}

// Emit stages an outbox event committed together with this Txn.
func (t *Txn) Emit(key, payload []byte) {
	t.events = append(t.events, event{key: key, payload: payload})
}

// SetSeq records the command sequence this Txn applies.
func (t *Txn) SetSeq(seq uint64) {
	t.seq = seq
}

func (t *Txn) Commit() error {
	if t.done {
		return ErrTxnDone
	}
	t.done = true
	return t.s.commit(t)
}

// Discard drops every staged change. Safe to call after Commit.
func (t *Txn) Discard() {
	t.done = true
	t.staged = nil
	t.events = nil
}
