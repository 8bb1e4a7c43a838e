package entry

import (
	"errors"
	"os"
	"testing"

	"github.com/stretchr/testify/require"
)

func appendN(t *testing.T, w *WAL, from, to uint64) {
	t.Helper()
	for s := from; s <= to; s++ {
		require.NoError(t, w.Append(NewRecord(RecordPlaceLimit, s, []byte{byte(s), 0xAB})))
	}
}

func TestAppendReplay(t *testing.T) {
	dir := t.TempDir()
	w, err := Open(Config{Dir: dir, SegmentSize: 1 << 20})
	require.NoError(t, err)
	appendN(t, w, 1, 5)
	require.NoError(t, w.Close())

	var seqs []uint64
	last, err := Replay(dir, func(r *Record) error {
		require.Equal(t, RecordPlaceLimit, r.Type)
		require.Equal(t, []byte{byte(r.Seq), 0xAB}, r.Data)
		seqs = append(seqs, r.Seq)
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, uint64(5), last)
	require.Equal(t, []uint64{1, 2, 3, 4, 5}, seqs)
}

func TestReopenContinuesNewestSegment(t *testing.T) {
	dir := t.TempDir()
	w, err := Open(Config{Dir: dir, SegmentSize: 60})
	require.NoError(t, err)
	appendN(t, w, 1, 6)
	require.NoError(t, w.Close())

	w, err = Open(Config{Dir: dir, SegmentSize: 60})
	require.NoError(t, err)
	appendN(t, w, 7, 9)
	require.NoError(t, w.Close())

	files, err := listSegments(dir)
	require.NoError(t, err)
	require.Greater(t, len(files), 1)

	last, err := Replay(dir, func(*Record) error { return nil })
	require.NoError(t, err)
	require.Equal(t, uint64(9), last)
}

func TestReplayDetectsCorruption(t *testing.T) {
	dir := t.TempDir()
	w, err := Open(Config{Dir: dir, SegmentSize: 1 << 20})
	require.NoError(t, err)
	appendN(t, w, 1, 2)
	require.NoError(t, w.Close())

	path := segmentPath(dir, 0)
	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	raw[headerSize] ^= 0xFF
	require.NoError(t, os.WriteFile(path, raw, 0o644))

	_, err = Replay(dir, func(*Record) error { return nil })
	require.True(t, errors.Is(err, ErrCorrupt))
}

func TestReplayToleratesTornTail(t *testing.T) {
	dir := t.TempDir()
	w, err := Open(Config{Dir: dir, SegmentSize: 1 << 20})
	require.NoError(t, err)
	appendN(t, w, 1, 3)
	require.NoError(t, w.Close())

	path := segmentPath(dir, 0)
	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, raw[:len(raw)-3], 0o644))

	last, err := Replay(dir, func(*Record) error { return nil })
	require.NoError(t, err)
	require.Equal(t, uint64(2), last)
}

func TestTruncateBefore(t *testing.T) {
	dir := t.TempDir()
	// Every frame is 27 bytes, so each segment holds two records.
	w, err := Open(Config{Dir: dir, SegmentSize: 50})
	require.NoError(t, err)
	appendN(t, w, 1, 5)

	removed, err := w.TruncateBefore(4)
	require.NoError(t, err)
	require.Equal(t, 2, removed)

	var seqs []uint64
	_, err = Replay(dir, func(r *Record) error {
		seqs = append(seqs, r.Seq)
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, []uint64{5}, seqs)
	require.NoError(t, w.Close())
}

func TestReopenDropsTornTail(t *testing.T) {
	dir := t.TempDir()
	w, err := Open(Config{Dir: dir, SegmentSize: 1 << 20})
	require.NoError(t, err)
	appendN(t, w, 1, 3)
	require.NoError(t, w.Close())

	// A crash mid-append leaves part of a header behind.
	path := segmentPath(dir, 0)
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	require.NoError(t, err)
	_, err = f.Write([]byte{byte(RecordPlaceLimit), 0, 0, 0, 0, 0, 0, 0, 4, 0xFF, 0xFF})
	require.NoError(t, err)
	require.NoError(t, f.Close())

	w, err = Open(Config{Dir: dir, SegmentSize: 1 << 20})
	require.NoError(t, err)
	appendN(t, w, 4, 6)
	require.NoError(t, w.Close())

	var seqs []uint64
	last, err := Replay(dir, func(r *Record) error {
		seqs = append(seqs, r.Seq)
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, uint64(6), last)
	require.Equal(t, []uint64{1, 2, 3, 4, 5, 6}, seqs)
}

func TestOpenRefusesCorruptNewestSegment(t *testing.T) {
	dir := t.TempDir()
	w, err := Open(Config{Dir: dir, SegmentSize: 1 << 20})
	require.NoError(t, err)
	appendN(t, w, 1, 2)
	require.NoError(t, w.Close())

	path := segmentPath(dir, 0)
	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	raw[headerSize] ^= 0xFF
	require.NoError(t, os.WriteFile(path, raw, 0o644))

	_, err = Open(Config{Dir: dir, SegmentSize: 1 << 20})
	require.True(t, errors.Is(err, ErrCorrupt))
}

func TestFailedRotationKeepsAppending(t *testing.T) {
	dir := t.TempDir()
	w, err := Open(Config{Dir: dir, SegmentSize: 50})
	require.NoError(t, err)

	// A directory where the next segment belongs makes the rotation fail.
	blocker := segmentPath(dir, 1)
	require.NoError(t, os.Mkdir(blocker, 0o755))

	appendN(t, w, 1, 3)
	require.Error(t, w.RotateErr())

	require.NoError(t, os.Remove(blocker))
	appendN(t, w, 4, 4)
	require.NoError(t, w.RotateErr())
	require.NoError(t, w.Close())

	var seqs []uint64
	_, err = Replay(dir, func(r *Record) error {
		seqs = append(seqs, r.Seq)
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, []uint64{1, 2, 3, 4}, seqs)
}
