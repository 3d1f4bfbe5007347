package pagedfile

import "encoding/binary"

const freeListHeader = 8

// lnode is one page of the unrolled free-list linked list, directly
// grounded on the teacher's pkg/storage/freelist.go LNode: an 8-byte
// "next" pointer followed by a packed array of freed page pointers.
type lnode []byte

func (n lnode) getNext() uint32            { return binary.LittleEndian.Uint32(n[0:4]) }
func (n lnode) setNext(next uint32)        { binary.LittleEndian.PutUint32(n[0:4], next) }
func (n lnode) cap(pageSize int) int       { return (pageSize - freeListHeader) / 4 }
func (n lnode) getPtr(idx int) uint32      { return binary.LittleEndian.Uint32(n[freeListHeader+idx*4:]) }
func (n lnode) setPtr(idx int, ptr uint32) { binary.LittleEndian.PutUint32(n[freeListHeader+idx*4:], ptr) }

// FreeListV1 is the single-level unrolled-linked-list free manager
// (FileId.version < 5), adapted field-for-field from
// pkg/storage/freelist.go's FreeList: maxSeq still freezes the list at
// the start of a transaction so a transaction cannot reuse pages it is
// in the process of freeing itself.
type FreeListV1 struct {
	get func(uint32) []byte
	set func(uint32, []byte)
	new func([]byte) uint32

	pageSize int

	headPage uint32
	headSeq  uint64
	tailPage uint32
	tailSeq  uint64
	maxSeq   uint64
}

func newFreeListV1(pageSize int, get func(uint32) []byte, set func(uint32, []byte), newFn func([]byte) uint32) *FreeListV1 {
	return &FreeListV1{pageSize: pageSize, get: get, set: set, new: newFn}
}

func (fl *FreeListV1) Total() int {
	if fl.headSeq >= fl.tailSeq {
		return 0
	}
	return int(fl.tailSeq - fl.headSeq)
}

func (fl *FreeListV1) PopHead() uint32 {
	if fl.headSeq >= fl.tailSeq {
		return 0
	}
	if fl.maxSeq > 0 && fl.maxSeq < fl.tailSeq && fl.headSeq >= fl.maxSeq {
		return 0
	}
	if fl.headPage == 0 {
		return 0
	}
	node := lnode(fl.get(fl.headPage))
	idx := int(fl.headSeq % uint64(node.cap(fl.pageSize)))
	ptr := node.getPtr(idx)
	fl.headSeq++

	if fl.headSeq%uint64(node.cap(fl.pageSize)) == 0 {
		next := node.getNext()
		if next != 0 {
			fl.PushTail(fl.headPage)
			fl.headPage = next
		}
	}
	return ptr
}

func (fl *FreeListV1) PushTail(ptr uint32) {
	if fl.tailPage == 0 {
		page := make([]byte, fl.pageSize)
		lnode(page).setNext(0)
		fl.tailPage = fl.new(page)
		fl.headPage = fl.tailPage
	}

	cap := lnode(make([]byte, fl.pageSize)).cap(fl.pageSize)
	idx := int(fl.tailSeq % uint64(cap))

	if idx == 0 && fl.tailSeq > 0 {
		newPage := make([]byte, fl.pageSize)
		lnode(newPage).setNext(0)
		newTail := fl.new(newPage)

		oldPage := make([]byte, fl.pageSize)
		copy(oldPage, fl.get(fl.tailPage))
		lnode(oldPage).setNext(newTail)
		fl.set(fl.tailPage, oldPage)

		fl.tailPage = newTail
		idx = 0
	}

	page := make([]byte, fl.pageSize)
	copy(page, fl.get(fl.tailPage))
	lnode(page).setPtr(idx, ptr)
	fl.set(fl.tailPage, page)
	fl.tailSeq++
}

// SetMaxSeq freezes the list at the current tail, preventing a
// transaction from consuming pages it frees itself before commit.
func (fl *FreeListV1) SetMaxSeq() { fl.maxSeq = fl.tailSeq }

func (fl *FreeListV1) Serialize() []byte {
	data := make([]byte, 40)
	binary.LittleEndian.PutUint32(data[0:], fl.headPage)
	binary.LittleEndian.PutUint64(data[4:], fl.headSeq)
	binary.LittleEndian.PutUint32(data[12:], fl.tailPage)
	binary.LittleEndian.PutUint64(data[16:], fl.tailSeq)
	binary.LittleEndian.PutUint64(data[24:], fl.maxSeq)
	return data
}

func (fl *FreeListV1) Deserialize(data []byte) {
	fl.headPage = binary.LittleEndian.Uint32(data[0:])
	fl.headSeq = binary.LittleEndian.Uint64(data[4:])
	fl.tailPage = binary.LittleEndian.Uint32(data[12:])
	fl.tailSeq = binary.LittleEndian.Uint64(data[16:])
	fl.maxSeq = binary.LittleEndian.Uint64(data[24:])
}

// FreeListV2 is the free manager selected for FileId.version >= 5 (spec
// §4.2). It delegates every operation to one FreeListV1 and uses that
// list's on-disk layout unchanged; it keeps no second level (no group
// pages or per-group bitmaps).
type FreeListV2 struct {
	groups   *FreeListV1
	pageSize int
}

func newFreeListV2(pageSize int, get func(uint32) []byte, set func(uint32, []byte), newFn func([]byte) uint32) *FreeListV2 {
	return &FreeListV2{groups: newFreeListV1(pageSize, get, set, newFn), pageSize: pageSize}
}

func (fl *FreeListV2) PopHead() uint32    { return fl.groups.PopHead() }
func (fl *FreeListV2) PushTail(p uint32)  { fl.groups.PushTail(p) }
func (fl *FreeListV2) SetMaxSeq()         { fl.groups.SetMaxSeq() }
func (fl *FreeListV2) Total() int         { return fl.groups.Total() }
func (fl *FreeListV2) Serialize() []byte  { return fl.groups.Serialize() }
func (fl *FreeListV2) Deserialize(d []byte) { fl.groups.Deserialize(d) }
