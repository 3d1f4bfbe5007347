package lob

import "encoding/binary"

// topPage is the LOB file's single root page: bookkeeping for the
// DirPage chain used both to find a slot with room for a new Block and
// to drive compact()'s linear sweep. Grounded on pkg/pagedfile.go's own
// meta-page pattern (a small fixed-layout header struct read/written
// through a byte slice) generalized from "one per file" to "one per
// LOB store".
type topPage struct {
	buf []byte
}

func newTopPage(buf []byte) topPage {
	binary.LittleEndian.PutUint32(buf[0:4], pageTypeTop)
	return topPage{buf: buf}
}

func (t topPage) firstDirPage() uint32 { return binary.LittleEndian.Uint32(t.buf[12:16]) }
func (t topPage) setFirstDirPage(id uint32) {
	binary.LittleEndian.PutUint32(t.buf[12:16], id)
}

func (t topPage) dirPageCount() uint32 { return binary.LittleEndian.Uint32(t.buf[16:20]) }
func (t topPage) setDirPageCount(n uint32) {
	binary.LittleEndian.PutUint32(t.buf[16:20], n)
}

func (t topPage) totalInserted() uint32 { return binary.LittleEndian.Uint32(t.buf[20:24]) }
func (t topPage) setTotalInserted(n uint32) {
	binary.LittleEndian.PutUint32(t.buf[20:24], n)
}

func (t topPage) totalExpunged() uint32 { return binary.LittleEndian.Uint32(t.buf[24:28]) }
func (t topPage) setTotalExpunged(n uint32) {
	binary.LittleEndian.PutUint32(t.buf[24:28], n)
}

// expungeHead is the LIFO expunge list's most-recently-expunged Block,
// chained backwards through blockBytes.nextBlock(), so compact() can
// sweep just the expunged objects instead of every live one.
func (t topPage) expungeHead() ObjectID { return decodeObjectID(t.buf[28:36]) }
func (t topPage) setExpungeHead(id ObjectID) {
	encodeObjectID(t.buf[28:36], id)
}
