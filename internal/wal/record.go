// Package wal implements the append-only write-ahead log of mutations
// (spec §4.5): a single binary file of length-framed, checksummed records
// with four pluggable durability modes.
package wal

import (
	"encoding/binary"
	"hash/crc32"

	"github.com/chaturanga836/docstore/internal/common"
)

// magic marks the start of every record, guarding against reading a
// non-WAL file or badly misaligned offsets.
var magic = [4]byte{'D', 'O', 'C', 'W'}

// Op identifies the kind of mutation a record carries.
type Op byte

const (
	OpSet Op = iota
	OpDelete
	OpPush
	OpAddNum
	OpCheckpoint
	// OpCommit and OpAbort close a transaction's WAL span (spec §4.8.1);
	// they carry no document path or payload (the engine stores a
	// transaction id in Path).
	OpCommit
	OpAbort
)

// Record is one WAL entry: a mutation at Path with an optional JSON Payload,
// tagged with the LSN assigned when it was appended.
type Record struct {
	LSN     common.LSN
	Op      Op
	Path    string
	Payload []byte
}

// encode serializes r per the spec §4.5 wire layout: magic, lsn, op,
// path_len+path, payload_len+payload, crc32 over everything preceding.
func (r Record) encode() []byte {
	size := 4 + 8 + 1 + 4 + len(r.Path) + 4 + len(r.Payload)
	buf := make([]byte, size, size+4)
	off := 0
	copy(buf[off:], magic[:])
	off += 4
	binary.LittleEndian.PutUint64(buf[off:], uint64(r.LSN))
	off += 8
	buf[off] = byte(r.Op)
	off += 1
	binary.LittleEndian.PutUint32(buf[off:], uint32(len(r.Path)))
	off += 4
	off += copy(buf[off:], r.Path)
	binary.LittleEndian.PutUint32(buf[off:], uint32(len(r.Payload)))
	off += 4
	off += copy(buf[off:], r.Payload)

	sum := crc32.ChecksumIEEE(buf)
	return appendUint32(buf, sum)
}

func appendUint32(buf []byte, v uint32) []byte {
	var tmp [4]byte
	binary.LittleEndian.PutUint32(tmp[:], v)
	return append(buf, tmp[:]...)
}

// decodeRecord reads one record starting at data[0], returning the record,
// the number of bytes consumed, and an error if the record is malformed or
// its checksum does not match (torn-tail / corruption detection, spec §4.7).
func decodeRecord(data []byte) (Record, int, error) {
	const fixedHeader = 4 + 8 + 1 + 4 // magic + lsn + op + path_len
	if len(data) < fixedHeader {
		return Record{}, 0, errShortRecord
	}
	off := 0
	if data[0] != magic[0] || data[1] != magic[1] || data[2] != magic[2] || data[3] != magic[3] {
		return Record{}, 0, errBadMagic
	}
	off += 4
	lsn := binary.LittleEndian.Uint64(data[off:])
	off += 8
	op := Op(data[off])
	off += 1
	pathLen := binary.LittleEndian.Uint32(data[off:])
	off += 4
	if off+int(pathLen)+4 > len(data) {
		return Record{}, 0, errShortRecord
	}
	path := string(data[off : off+int(pathLen)])
	off += int(pathLen)
	payloadLen := binary.LittleEndian.Uint32(data[off:])
	off += 4
	if off+int(payloadLen)+4 > len(data) {
		return Record{}, 0, errShortRecord
	}
	payload := data[off : off+int(payloadLen)]
	off += int(payloadLen)
	wantSum := binary.LittleEndian.Uint32(data[off:])
	off += 4

	gotSum := crc32.ChecksumIEEE(data[:off-4])
	if gotSum != wantSum {
		return Record{}, 0, errChecksumMismatch
	}

	rec := Record{
		LSN:  common.LSN(lsn),
		Op:   op,
		Path: path,
	}
	if len(payload) > 0 {
		rec.Payload = append([]byte(nil), payload...)
	}
	return rec, off, nil
}
