package lob

import "encoding/binary"

// dataPage holds one chunk of an object's (possibly compressed) payload.
// Large objects span a chain of dataPages linked by nextPageID, mirroring
// dirPage's chaining convention.
type dataPage struct {
	buf []byte
}

func dataPagePayloadCap(pageSize int) int { return pageSize - commonHeaderSize }

func newDataPage(buf []byte) *dataPage {
	binary.LittleEndian.PutUint32(buf[0:4], pageTypeData)
	binary.LittleEndian.PutUint32(buf[4:8], 0)
	binary.LittleEndian.PutUint32(buf[8:12], 0)
	return &dataPage{buf: buf}
}

func openDataPage(buf []byte) *dataPage { return &dataPage{buf: buf} }

func (d *dataPage) nextPageID() uint32      { return binary.LittleEndian.Uint32(d.buf[4:8]) }
func (d *dataPage) setNextPageID(id uint32) { binary.LittleEndian.PutUint32(d.buf[4:8], id) }

func (d *dataPage) payloadLen() uint32     { return binary.LittleEndian.Uint32(d.buf[8:12]) }
func (d *dataPage) setPayloadLen(n uint32) { binary.LittleEndian.PutUint32(d.buf[8:12], n) }

func (d *dataPage) payload() []byte {
	return d.buf[commonHeaderSize : commonHeaderSize+int(d.payloadLen())]
}

func (d *dataPage) writePayload(chunk []byte) {
	n := copy(d.buf[commonHeaderSize:], chunk)
	d.setPayloadLen(uint32(n))
}
