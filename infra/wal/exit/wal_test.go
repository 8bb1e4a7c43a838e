package exit

import (
	"testing"

	"github.com/cockroachdb/pebble"
	"github.com/cockroachdb/pebble/vfs"
	"github.com/stretchr/testify/require"
)

func openMem(t *testing.T) *pebble.DB {
	db, err := pebble.Open("outbox", &pebble.Options{FS: vfs.NewMem()})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func stage(t *testing.T, w *ExitWAL, db *pebble.DB, seqs ...uint64) {
	b := db.NewBatch()
	for _, s := range seqs {
		require.NoError(t, w.Stage(b, s, []byte("k"), []byte{byte(s)}))
	}
	require.NoError(t, b.Commit(pebble.Sync))
}

func TestStageInvisibleUntilCommit(t *testing.T) {
	db := openMem(t)
	w := New(db)

	b := db.NewBatch()
	require.NoError(t, w.Stage(b, 1, nil, []byte("x")))
	_, err := w.Get(1)
	require.ErrorIs(t, err, pebble.ErrNotFound)
	require.NoError(t, b.Close())
}

func TestStateTransitions(t *testing.T) {
	db := openMem(t)
	w := New(db)
	stage(t, w, db, 1, 2, 3)

	require.NoError(t, w.UpdateState(2, StateFailed, 1))
	require.NoError(t, w.UpdateState(3, StateAcked, 0))

	rec, err := w.Get(2)
	require.NoError(t, err)
	require.Equal(t, StateFailed, rec.State)
	require.Equal(t, uint32(1), rec.Retries)
	require.Equal(t, []byte{2}, rec.Payload)
	require.Equal(t, []byte("k"), rec.Key)

	var pending []uint64
	require.NoError(t, w.ScanPending(3, func(r ExitRecord) error {
		pending = append(pending, r.Seq)
		return nil
	}))
	require.Equal(t, []uint64{1, 2}, pending)

	pending = nil
	require.NoError(t, w.ScanPending(1, func(r ExitRecord) error {
		pending = append(pending, r.Seq)
		return nil
	}))
	require.Equal(t, []uint64{1}, pending)

	last, err := w.LastSeq()
	require.NoError(t, err)
	require.Equal(t, uint64(3), last)
}

func TestTruncateAcked(t *testing.T) {
	db := openMem(t)
	w := New(db)
	stage(t, w, db, 1, 2, 3)
	require.NoError(t, w.UpdateState(1, StateAcked, 0))
	require.NoError(t, w.UpdateState(3, StateAcked, 0))

	n, err := w.TruncateAckedUpTo(2)
	require.NoError(t, err)
	require.Equal(t, 1, n)

	_, err = w.Get(1)
	require.ErrorIs(t, err, pebble.ErrNotFound)
	_, err = w.Get(3)
	require.NoError(t, err)
}
