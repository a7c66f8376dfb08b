package protocol

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/vmihailenco/msgpack/v5"
)

// Binary WebSocket frames carry a single msgpack-encoded MeasurementData.
// Recorded sessions use the same encoding with a 4-byte big-endian length
// prefix per record.

// MaxRecordSize bounds a single framed record
const MaxRecordSize = 64 * 1024

// EncodeMeasurement encodes d as msgpack
func EncodeMeasurement(d MeasurementData) ([]byte, error) {
	b, err := msgpack.Marshal(&d)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal msgpack measurement: %w", err)
	}
	return b, nil
}

// DecodeMeasurement decodes a msgpack measurement
func DecodeMeasurement(b []byte) (MeasurementData, error) {
	var d MeasurementData
	if err := msgpack.Unmarshal(b, &d); err != nil {
		return MeasurementData{}, fmt.Errorf("failed to unmarshal msgpack measurement: %w", err)
	}
	return d, nil
}

// WriteRecord writes d to w with a length prefix
func WriteRecord(w io.Writer, d MeasurementData) error {
	payload, err := EncodeMeasurement(d)
	if err != nil {
		return err
	}
	var prefix [4]byte
	binary.BigEndian.PutUint32(prefix[:], uint32(len(payload)))
	if _, err := w.Write(prefix[:]); err != nil {
		return fmt.Errorf("failed to write length prefix: %w", err)
	}
	if _, err := w.Write(payload); err != nil {
		return fmt.Errorf("failed to write msgpack record: %w", err)
	}
	return nil
}

// ReadRecord reads one length-prefixed record.
// Returns io.EOF at a clean end of stream.
func ReadRecord(r io.Reader) (MeasurementData, error) {
	var prefix [4]byte
	if _, err := io.ReadFull(r, prefix[:]); err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) {
			return MeasurementData{}, fmt.Errorf("truncated length prefix: %w", err)
		}
		return MeasurementData{}, err
	}
	n := binary.BigEndian.Uint32(prefix[:])
	if n > MaxRecordSize {
		return MeasurementData{}, fmt.Errorf("record of %d bytes exceeds limit %d", n, MaxRecordSize)
	}
	payload := make([]byte, n)
	if _, err := io.ReadFull(r, payload); err != nil {
		return MeasurementData{}, fmt.Errorf("truncated record: %w", err)
	}
	return DecodeMeasurement(payload)
}
