package lob

import "encoding/binary"

// blockHeaderSize is the fixed, padded on-disk header of one Block
// record per spec.md §3's object header: object id of the containing
// directory entry, next-block link (LIFO expunge chaining), data
// length, compressed-length, and a flags/expunge word.
const blockHeaderSize = 48

// blockBytes is a typed byte-slice accessor over one Block header,
// following pkg/btree/node.go's BNode convention of reading/writing an
// on-disk record through getter/setter methods on a []byte rather than
// a parsed struct.
type blockBytes []byte

func (b blockBytes) nextBlock() ObjectID   { return decodeObjectID(b[0:8]) }
func (b blockBytes) setNextBlock(id ObjectID) { encodeObjectID(b[0:8], id) }

func (b blockBytes) usedPageNumber() uint32 {
	return binary.LittleEndian.Uint32(b[8:12]) &^ expungeBit
}
func (b blockBytes) setUsedPageNumber(n uint32) {
	expunged := b.expunged()
	binary.LittleEndian.PutUint32(b[8:12], n)
	if expunged {
		b.setExpunged(true)
	}
}

func (b blockBytes) expunged() bool {
	return binary.LittleEndian.Uint32(b[8:12])&expungeBit != 0
}
func (b blockBytes) setExpunged(v bool) {
	word := binary.LittleEndian.Uint32(b[8:12])
	if v {
		word |= expungeBit
	} else {
		word &^= expungeBit
	}
	binary.LittleEndian.PutUint32(b[8:12], word)
}

func (b blockBytes) dataLength() uint32 { return binary.LittleEndian.Uint32(b[12:16]) }
func (b blockBytes) setDataLength(n uint32) {
	binary.LittleEndian.PutUint32(b[12:16], n)
}

func (b blockBytes) compressedLength() uint32 { return binary.LittleEndian.Uint32(b[16:20]) }
func (b blockBytes) setCompressedLength(n uint32) {
	binary.LittleEndian.PutUint32(b[16:20], n)
}

// firstData is where the first DataPage run for this object begins.
func (b blockBytes) firstData() ObjectID   { return decodeObjectID(b[20:28]) }
func (b blockBytes) setFirstData(id ObjectID) { encodeObjectID(b[20:28], id) }

const blockCompressed uint8 = 1 << 0

func (b blockBytes) flags() uint8     { return b[28] }
func (b blockBytes) setFlags(f uint8) { b[28] = f }

func (b blockBytes) isCompressed() bool { return b.flags()&blockCompressed != 0 }
func (b blockBytes) setCompressed(v bool) {
	f := b.flags()
	if v {
		f |= blockCompressed
	} else {
		f &^= blockCompressed
	}
	b.setFlags(f)
}

// expungeTxID records which transaction issued the pending expunge, so
// compact() can ask pkg/txreg whether that transaction is still active
// before reclaiming the block (reading a not-yet-committed expunge would
// be a dirty read).
func (b blockBytes) expungeTxID() uint64 { return binary.LittleEndian.Uint64(b[32:40]) }
func (b blockBytes) setExpungeTxID(id uint64) {
	binary.LittleEndian.PutUint64(b[32:40], id)
}

// prevBlock points at the pre-image Block an in-progress update() has
// stashed the old payload pointers in, per spec.md §3's Block field of
// the same name. Nil once no update is pending.
func (b blockBytes) prevBlock() ObjectID      { return decodeObjectID(b[40:48]) }
func (b blockBytes) setPrevBlock(id ObjectID) { encodeObjectID(b[40:48], id) }
