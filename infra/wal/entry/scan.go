package entry

import (
	"encoding/binary"
	"errors"
	"io"
	"os"
)

// maxSeqInSegment returns the highest sequence in a segment without
// checking payloads. Only used to decide which segments TruncateBefore may
// drop.
func maxSeqInSegment(path string) (uint64, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	var maxSeq uint64
	header := make([]byte, headerSize)
	for {
		if _, err := io.ReadFull(f, header); err != nil {
			if err == io.EOF || err == io.ErrUnexpectedEOF {
				return maxSeq, nil
			}
			return maxSeq, err
		}

		seq := binary.BigEndian.Uint64(header[1:9])
		if seq > maxSeq {
			maxSeq = seq
		}

		payloadLen := binary.BigEndian.Uint32(header[17:21])
		if _, err := f.Seek(int64(payloadLen)+crcSize, io.SeekCurrent); err != nil {
			return maxSeq, err
		}
	}
}

// validLength returns the offset just past the last complete frame of a
// segment. A frame cut short at the end is not counted; a checksum failure
// is returned as ErrCorrupt.
func validLength(path string) (int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	var end int64
	for {
		rec, err := readRecord(f)
		if err != nil {
			if err == io.EOF || errors.Is(err, io.ErrUnexpectedEOF) {
				return end, nil
			}
			return end, err
		}
		end += int64(headerSize + len(rec.Data) + crcSize)
	}
}
