// Package tfrecord reads and writes TFRecord files holding tf.train.Example
// messages, the on-disk format produced for preprocessed specs.
package tfrecord

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
	"io"
)

// ErrCorrupt is returned when a record's length or payload checksum does not match.
var ErrCorrupt = errors.New("tfrecord: corrupt record")

var castagnoli = crc32.MakeTable(crc32.Castagnoli)

const maskDelta = 0xa282ead8

func maskedCRC(data []byte) uint32 {
	crc := crc32.Checksum(data, castagnoli)
	return ((crc >> 15) | (crc << 17)) + maskDelta
}

// RecordWriter frames payloads as TFRecords.
type RecordWriter struct {
	w   io.Writer
	hdr [12]byte
	ftr [4]byte
}

// NewRecordWriter returns a RecordWriter writing to w.
func NewRecordWriter(w io.Writer) *RecordWriter {
	return &RecordWriter{w: w}
}

// Write writes one record: length, length CRC, payload, payload CRC.
func (rw *RecordWriter) Write(payload []byte) error {
	binary.LittleEndian.PutUint64(rw.hdr[:8], uint64(len(payload)))
	binary.LittleEndian.PutUint32(rw.hdr[8:], maskedCRC(rw.hdr[:8]))
	if _, err := rw.w.Write(rw.hdr[:]); err != nil {
		return fmt.Errorf("writing record header: %w", err)
	}
	if _, err := rw.w.Write(payload); err != nil {
		return fmt.Errorf("writing record payload: %w", err)
	}
	binary.LittleEndian.PutUint32(rw.ftr[:], maskedCRC(payload))
	if _, err := rw.w.Write(rw.ftr[:]); err != nil {
		return fmt.Errorf("writing record footer: %w", err)
	}
	return nil
}

// RecordReader iterates over the records of a TFRecord stream.
type RecordReader struct {
	r      *bufio.Reader
	offset int64
}

// NewRecordReader returns a RecordReader reading from r.
func NewRecordReader(r io.Reader) *RecordReader {
	return &RecordReader{r: bufio.NewReader(r)}
}

// Next returns the next payload. It returns io.EOF after the last record and
// an error wrapping ErrCorrupt when a checksum does not verify.
func (rr *RecordReader) Next() ([]byte, error) {
	var hdr [12]byte
	n, err := io.ReadFull(rr.r, hdr[:])
	if err == io.EOF {
		return nil, io.EOF
	}
	if err != nil {
		return nil, fmt.Errorf("%w: truncated header at offset %d", ErrCorrupt, rr.offset)
	}
	if binary.LittleEndian.Uint32(hdr[8:]) != maskedCRC(hdr[:8]) {
		return nil, fmt.Errorf("%w: length checksum mismatch at offset %d", ErrCorrupt, rr.offset)
	}

	length := binary.LittleEndian.Uint64(hdr[:8])
	payload := make([]byte, length)
	if _, err := io.ReadFull(rr.r, payload); err != nil {
		return nil, fmt.Errorf("%w: truncated payload at offset %d", ErrCorrupt, rr.offset)
	}

	var ftr [4]byte
	if _, err := io.ReadFull(rr.r, ftr[:]); err != nil {
		return nil, fmt.Errorf("%w: truncated footer at offset %d", ErrCorrupt, rr.offset)
	}
	if binary.LittleEndian.Uint32(ftr[:]) != maskedCRC(payload) {
		return nil, fmt.Errorf("%w: payload checksum mismatch at offset %d", ErrCorrupt, rr.offset)
	}

	rr.offset += int64(n) + int64(length) + 4
	return payload, nil
}
