// Package journal implements the version log / sync log pair behind
// PagedFile (spec component C2). It is a direct adaptation of the
// teacher's pkg/wal: the same CRC32-checksummed, LSN-ordered, rotating
// log file, but entries redo a page write or a page free instead of a
// KV insert/delete.
package journal

import (
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"time"
)

// OpType is the kind of operation a journal entry redoes.
type OpType byte

const (
	OpPageWrite  OpType = 1
	OpPageFree   OpType = 2
	OpCommit     OpType = 3
	OpCheckpoint OpType = 4
)

// EntryHeaderSize mirrors the teacher's layout: LSN(8) + TxnID(8) +
// OpType(1) + Reserved(7) + PageID(4) + PayloadLen(4) + Timestamp(8).
const EntryHeaderSize = 40

// Entry is one journal record.
type Entry struct {
	LSN       uint64
	TxnID     uint64
	OpType    OpType
	PageID    uint32
	Payload   []byte // full page contents for OpPageWrite; empty otherwise
	Timestamp time.Time
}

// Encode serializes the entry with a trailing CRC32, format
// [Header(40)][Payload][CRC32(4)].
func (e *Entry) Encode() []byte {
	payloadLen := len(e.Payload)
	total := EntryHeaderSize + payloadLen + 4
	buf := make([]byte, total)

	binary.LittleEndian.PutUint64(buf[0:8], e.LSN)
	binary.LittleEndian.PutUint64(buf[8:16], e.TxnID)
	buf[16] = byte(e.OpType)
	binary.LittleEndian.PutUint32(buf[24:28], e.PageID)
	binary.LittleEndian.PutUint32(buf[28:32], uint32(payloadLen))
	binary.LittleEndian.PutUint64(buf[32:40], uint64(e.Timestamp.Unix()))

	copy(buf[EntryHeaderSize:], e.Payload)

	crc := crc32.ChecksumIEEE(buf[:EntryHeaderSize+payloadLen])
	binary.LittleEndian.PutUint32(buf[EntryHeaderSize+payloadLen:], crc)
	return buf
}

// DecodeEntry deserializes and CRC-validates a journal entry.
func DecodeEntry(data []byte) (*Entry, error) {
	if len(data) < EntryHeaderSize+4 {
		return nil, ErrTruncated
	}
	dataLen := len(data)
	storedCRC := binary.LittleEndian.Uint32(data[dataLen-4:])
	computedCRC := crc32.ChecksumIEEE(data[:dataLen-4])
	if storedCRC != computedCRC {
		return nil, ErrCorrupted
	}

	e := &Entry{
		LSN:    binary.LittleEndian.Uint64(data[0:8]),
		TxnID:  binary.LittleEndian.Uint64(data[8:16]),
		OpType: OpType(data[16]),
		PageID: binary.LittleEndian.Uint32(data[24:28]),
	}
	payloadLen := binary.LittleEndian.Uint32(data[28:32])
	ts := binary.LittleEndian.Uint64(data[32:40])
	e.Timestamp = time.Unix(int64(ts), 0)

	expected := EntryHeaderSize + int(payloadLen) + 4
	if len(data) < expected {
		return nil, ErrTruncated
	}
	if payloadLen > 0 {
		e.Payload = make([]byte, payloadLen)
		copy(e.Payload, data[EntryHeaderSize:EntryHeaderSize+int(payloadLen)])
	}
	return e, nil
}

// Size returns the encoded size of the entry.
func (e *Entry) Size() int { return EntryHeaderSize + len(e.Payload) + 4 }

func (e *Entry) String() string {
	names := map[OpType]string{OpPageWrite: "PAGE_WRITE", OpPageFree: "PAGE_FREE", OpCommit: "COMMIT", OpCheckpoint: "CHECKPOINT"}
	return fmt.Sprintf("Journal[LSN=%d TxnID=%d Op=%s PageID=%d PayloadLen=%d]",
		e.LSN, e.TxnID, names[e.OpType], e.PageID, len(e.Payload))
}
