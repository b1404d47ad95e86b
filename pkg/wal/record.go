package wal

// ============================================================================
// Record Codec
// Responsibility: Binary layout of one WAL record
// ============================================================================
//
// Layout (little-endian):
//
//   offset 0   u32  body length L
//   offset 4   u32  CRC32 over the body
//   offset 8   body:
//              u64  record index
//              u16  type-key length
//              ...  type key
//              ...  payload
//
// L == 0 marks the zero-filled unwritten tail of a segment, which is why
// segments are pre-allocated with zeros and a record body can never be empty
// (the index alone occupies eight bytes).
//
// ============================================================================

import (
	"encoding/binary"
	"fmt"
	"math"
)

// recordHeaderSize is the fixed prefix before the body: length + checksum.
const recordHeaderSize = 8

// Record is one decoded WAL entry.
type Record struct {
	Index   uint64 // strictly increasing, assigned by the store
	TypeKey string // concrete command type tag for the decoder registry
	Payload []byte // serialized command
}

// encodedSize returns the on-disk size of a record.
func encodedSize(typeKey string, payload []byte) int {
	return recordHeaderSize + 8 + 2 + len(typeKey) + len(payload)
}

// encodeRecord serializes a record into a fresh buffer.
func encodeRecord(index uint64, typeKey string, payload []byte) ([]byte, error) {
	if len(typeKey) > math.MaxUint16 {
		return nil, fmt.Errorf("wal: type key too long (%d bytes)", len(typeKey))
	}

	buf := make([]byte, encodedSize(typeKey, payload))
	body := buf[recordHeaderSize:]

	binary.LittleEndian.PutUint64(body[0:8], index)
	binary.LittleEndian.PutUint16(body[8:10], uint16(len(typeKey)))
	copy(body[10:], typeKey)
	copy(body[10+len(typeKey):], payload)

	binary.LittleEndian.PutUint32(buf[0:4], uint32(len(body)))
	binary.LittleEndian.PutUint32(buf[4:8], Checksum(body))
	return buf, nil
}

// decodeRecord parses the record at the start of buf.
//
// Returns errEndOfSegment at the zero-filled tail. Any structural or
// checksum failure returns ErrCorruptRecord; the caller decides whether the
// position makes it a tolerable torn tail or real corruption. The payload
// slice is copied out of the mapped region so it stays valid after unmap.
func decodeRecord(buf []byte) (Record, int, error) {
	if len(buf) < recordHeaderSize {
		return Record{}, 0, errEndOfSegment
	}

	bodyLen := binary.LittleEndian.Uint32(buf[0:4])
	if bodyLen == 0 {
		return Record{}, 0, errEndOfSegment
	}
	if bodyLen < 10 || recordHeaderSize+int(bodyLen) > len(buf) {
		return Record{}, 0, ErrCorruptRecord
	}

	stored := binary.LittleEndian.Uint32(buf[4:8])
	body := buf[recordHeaderSize : recordHeaderSize+int(bodyLen)]
	if !VerifyChecksum(body, stored) {
		return Record{}, 0, ErrCorruptRecord
	}

	index := binary.LittleEndian.Uint64(body[0:8])
	typeKeyLen := int(binary.LittleEndian.Uint16(body[8:10]))
	if 10+typeKeyLen > len(body) {
		return Record{}, 0, ErrCorruptRecord
	}

	typeKey := string(body[10 : 10+typeKeyLen])
	payload := make([]byte, len(body)-10-typeKeyLen)
	copy(payload, body[10+typeKeyLen:])

	return Record{Index: index, TypeKey: typeKey, Payload: payload},
		recordHeaderSize + int(bodyLen), nil
}
