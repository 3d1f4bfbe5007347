// Package lob's Store ties pagecache+pagedfile together into the C3
// LOB operation surface of spec.md §4.3: Insert/Get/Expunge/UndoExpunge/
// Update/UndoUpdate/Append/Truncate/Replace/Compact. Grounded on the
// teacher's pkg/storage.KV for the "one physical file, one cache, one
// mutex-guarded Go type exposing CRUD" shape, generalized from a B+Tree
// key/value store to an object-id-addressed large-object store.
package lob

import (
	"fmt"
	"sync"

	"github.com/trmeister/fulltext2/pkg/ftlerr"
	"github.com/trmeister/fulltext2/pkg/pagecache"
	"github.com/trmeister/fulltext2/pkg/pagedfile"
	"github.com/trmeister/fulltext2/pkg/txreg"
)

// Store is one LOB file.
type Store struct {
	mu    sync.Mutex
	phys  *pagedfile.File
	cache *pagecache.Cache
	txreg *txreg.Registry
}

// NewStore wraps an (unmounted) pagedfile.File as a LOB store.
func NewStore(phys *pagedfile.File, cacheCount int, reg *txreg.Registry) *Store {
	return &Store{
		phys:  phys,
		cache: pagecache.New(phys, cacheCount),
		txreg: reg,
	}
}

// Create materializes a fresh LOB file with an empty TopPage.
func (s *Store) Create() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.phys.Create(); err != nil {
		return err
	}
	h, err := s.cache.AllocatePage(func(buf []byte) { newTopPage(buf) })
	if err != nil {
		return err
	}
	if uint32(h.ID()) != topPageID {
		h.Close(false)
		return ftlerr.New(ftlerr.Unexpected, "lob.create", fmt.Errorf("expected top page at id %d, got %d", topPageID, h.ID()))
	}
	h.MarkDirty()
	h.Close(true)
	return s.flushLocked()
}

// Mount attaches to an already-created LOB file.
func (s *Store) Mount() error { return s.phys.Mount() }

// Close unmounts the underlying file.
func (s *Store) Close() error { return s.phys.Unmount() }

func (s *Store) flushLocked() error {
	if err := s.cache.FlushAllPages(); err != nil {
		return err
	}
	return s.phys.Commit()
}

// Flush persists every dirty page and commits the physical file.
func (s *Store) Flush() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.flushLocked()
}

func (s *Store) attachTop(mode pagecache.FixMode) (*pagecache.Handle, topPage, error) {
	h, err := s.cache.AttachPage(topPageID, mode, nil)
	if err != nil {
		return nil, topPage{}, err
	}
	return h, topPage{buf: h.Bytes()}, nil
}

// findOrAllocDirPage returns a dirPage handle with at least one free
// slot, allocating a new one and linking it into the chain if every
// existing dirPage is full.
func (s *Store) findOrAllocDirPage(top topPage) (*pagecache.Handle, *dirPage, error) {
	id := top.firstDirPage()
	for id != 0 {
		h, err := s.cache.AttachPage(pagecache.PageID(id), pagecache.Write, nil)
		if err != nil {
			return nil, nil, err
		}
		d := openDirPage(h.Bytes())
		if d.firstFreeSlot() >= 0 {
			return h, d, nil
		}
		next := d.nextPageID()
		h.Close(false)
		id = next
	}

	h, err := s.cache.AllocatePage(func(buf []byte) { newDirPage(buf) })
	if err != nil {
		return nil, nil, err
	}
	d := openDirPage(h.Bytes())
	d.setNextPageID(top.firstDirPage())
	top.setFirstDirPage(uint32(h.ID()))
	top.setDirPageCount(top.dirPageCount() + 1)
	return h, d, nil
}

// writeChunks stores data (already compressed or raw) across a chain of
// dataPages, returning the first page's id.
func (s *Store) writeChunks(data []byte) (uint32, error) {
	if len(data) == 0 {
		return 0, nil
	}
	pageCap := dataPagePayloadCap(s.phys.PageSize())
	var firstID uint32
	var prevHandle *pagecache.Handle
	var prevPage *dataPage
	for off := 0; off < len(data); off += pageCap {
		end := off + pageCap
		if end > len(data) {
			end = len(data)
		}
		h, err := s.cache.AllocatePage(func(buf []byte) { newDataPage(buf) })
		if err != nil {
			return 0, err
		}
		dp := openDataPage(h.Bytes())
		dp.writePayload(data[off:end])
		h.MarkDirty()
		if prevHandle == nil {
			firstID = uint32(h.ID())
		} else {
			prevPage.setNextPageID(uint32(h.ID()))
			prevHandle.Close(true)
		}
		prevHandle, prevPage = h, dp
	}
	if prevHandle != nil {
		prevHandle.Close(true)
	}
	return firstID, nil
}

func (s *Store) readChunks(firstID uint32, rawLen int) ([]byte, error) {
	out := make([]byte, 0, rawLen)
	id := firstID
	for id != 0 && len(out) < rawLen {
		h, err := s.cache.AttachPage(pagecache.PageID(id), pagecache.ReadOnly, nil)
		if err != nil {
			return nil, err
		}
		dp := openDataPage(h.Bytes())
		out = append(out, dp.payload()...)
		id = dp.nextPageID()
		h.Close(false)
	}
	return out, nil
}

func (s *Store) freeChunks(firstID uint32) {
	id := firstID
	for id != 0 {
		h, err := s.cache.AttachPage(pagecache.PageID(id), pagecache.Write, nil)
		if err != nil {
			return
		}
		dp := openDataPage(h.Bytes())
		next := dp.nextPageID()
		s.cache.FreePage(h)
		id = next
	}
}

// Insert stores data as a new object and returns its ObjectID.
func (s *Store) Insert(data []byte) (ObjectID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	topHandle, top, err := s.attachTop(pagecache.Write)
	if err != nil {
		return ObjectID{}, err
	}
	defer topHandle.Close(true)

	dirHandle, dir, err := s.findOrAllocDirPage(top)
	if err != nil {
		return ObjectID{}, err
	}
	defer dirHandle.Close(true)

	slot := dir.firstFreeSlot()
	if slot < 0 {
		return ObjectID{}, ftlerr.New(ftlerr.Unexpected, "lob.insert", fmt.Errorf("newly allocated dirPage has no free slot"))
	}

	payload, compressed := compress(data)
	if !compressed {
		payload = data
	}
	firstData, err := s.writeChunks(payload)
	if err != nil {
		return ObjectID{}, err
	}

	b := dir.block(slot)
	b.setNextBlock(ObjectID{})
	b.setUsedPageNumber(0)
	b.setExpunged(false)
	b.setDataLength(uint32(len(data)))
	b.setCompressedLength(uint32(len(payload)))
	b.setFirstData(firstData)
	b.setCompressed(compressed)
	b.setExpungeTxID(0)
	dir.setOccupied(slot, true)
	dir.setUsedCount(dir.usedCount() + 1)

	top.setTotalInserted(top.totalInserted() + 1)

	return ObjectID{PageID: uint32(dirHandle.ID()), Offset: uint32(dir.slotOffset(slot))}, nil
}

func (s *Store) loadBlock(id ObjectID, mode pagecache.FixMode) (*pagecache.Handle, blockBytes, error) {
	h, err := s.cache.AttachPage(pagecache.PageID(id.PageID), mode, nil)
	if err != nil {
		return nil, nil, err
	}
	buf := h.Bytes()
	if int(id.Offset)+blockHeaderSize > len(buf) {
		h.Close(false)
		return nil, nil, ftlerr.New(ftlerr.BadArgument, "lob.loadBlock", fmt.Errorf("object id %+v out of range", id))
	}
	return h, blockBytes(buf[id.Offset : id.Offset+blockHeaderSize]), nil
}

// Get reads an object's current value. Returns ftlerr.NotFound if the
// object has been expunged (even if not yet physically reclaimed).
func (s *Store) Get(id ObjectID) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	h, b, err := s.loadBlock(id, pagecache.ReadOnly)
	if err != nil {
		return nil, err
	}
	if b.expunged() {
		h.Close(false)
		return nil, ftlerr.New(ftlerr.NotFound, "lob.get", fmt.Errorf("object %+v is expunged", id))
	}
	firstData := b.firstData()
	dataLength := b.dataLength()
	compressedLength := b.compressedLength()
	compressed := b.isCompressed()
	h.Close(false)

	raw, err := s.readChunks(firstData.PageID, int(compressedLength))
	if err != nil {
		return nil, err
	}
	if !compressed {
		return raw, nil
	}
	return decompress(raw, int(dataLength))
}

// Expunge logically deletes an object, chaining it onto the store-wide
// expunge list so Compact can reclaim it once txID is no longer active.
func (s *Store) Expunge(id ObjectID, txID uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	topHandle, top, err := s.attachTop(pagecache.Write)
	if err != nil {
		return err
	}
	defer topHandle.Close(true)

	h, b, err := s.loadBlock(id, pagecache.Write)
	if err != nil {
		return err
	}
	defer h.Close(true)

	if b.expunged() {
		return ftlerr.New(ftlerr.BadArgument, "lob.expunge", fmt.Errorf("object %+v already expunged", id))
	}
	b.setExpunged(true)
	b.setExpungeTxID(txID)
	b.setNextBlock(top.expungeHead())
	top.setExpungeHead(id)
	top.setTotalExpunged(top.totalExpunged() + 1)
	return nil
}

// UndoExpunge reverses a not-yet-compacted Expunge, used when the
// expunging transaction rolls back. It only clears the expunge bit; the
// block stays linked in the expunge list (harmless — Compact skips
// objects whose expunge bit is already clear) rather than attempting an
// O(n) list unlink.
func (s *Store) UndoExpunge(id ObjectID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	h, b, err := s.loadBlock(id, pagecache.Write)
	if err != nil {
		return err
	}
	defer h.Close(true)
	if !b.expunged() {
		return ftlerr.New(ftlerr.BadArgument, "lob.undoExpunge", fmt.Errorf("object %+v is not expunged", id))
	}
	b.setExpunged(false)
	b.setExpungeTxID(0)
	return nil
}

// Replace overwrites an object's value in place (new data, same
// ObjectID), freeing the old data-page chain.
func (s *Store) Replace(id ObjectID, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	h, b, err := s.loadBlock(id, pagecache.Write)
	if err != nil {
		return err
	}
	defer h.Close(true)
	if b.expunged() {
		return ftlerr.New(ftlerr.NotFound, "lob.replace", fmt.Errorf("object %+v is expunged", id))
	}

	oldFirst := b.firstData()

	payload, compressed := compress(data)
	if !compressed {
		payload = data
	}
	firstData, err := s.writeChunks(payload)
	if err != nil {
		return err
	}

	b.setDataLength(uint32(len(data)))
	b.setCompressedLength(uint32(len(payload)))
	b.setFirstData(firstData)
	b.setCompressed(compressed)

	s.freeChunks(oldFirst.PageID)
	return nil
}

// Update overwrites an object's value in place, but unlike Replace it
// keeps the old payload pointers recoverable: a fresh pre-image Block is
// allocated, stamped with id's current dataLength/compressedLength/
// firstData/compressed flag and marked expunged under txID, then chained
// onto the store-wide expunge list exactly as Expunge does. Only once
// the pre-image is safely staged does id itself get the new payload and
// a prevBlock link to the pre-image, per spec.md §4.3's two-phase
// protocol — the old pages are never freed here, since the pre-image
// Block now owns them; UndoUpdate or an eventual Compact is what frees
// them.
func (s *Store) Update(id ObjectID, txID uint64, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	topHandle, top, err := s.attachTop(pagecache.Write)
	if err != nil {
		return err
	}
	defer topHandle.Close(true)

	h, b, err := s.loadBlock(id, pagecache.Write)
	if err != nil {
		return err
	}
	defer h.Close(true)
	if b.expunged() {
		return ftlerr.New(ftlerr.NotFound, "lob.update", fmt.Errorf("object %+v is expunged", id))
	}
	if !b.prevBlock().IsNil() {
		return ftlerr.New(ftlerr.BadArgument, "lob.update", fmt.Errorf("object %+v already has an update pending undo", id))
	}

	dirHandle, dir, err := s.findOrAllocDirPage(top)
	if err != nil {
		return err
	}
	defer dirHandle.Close(true)
	slot := dir.firstFreeSlot()
	if slot < 0 {
		return ftlerr.New(ftlerr.Unexpected, "lob.update", fmt.Errorf("newly allocated dirPage has no free slot"))
	}

	pre := dir.block(slot)
	pre.setNextBlock(top.expungeHead())
	pre.setUsedPageNumber(0)
	pre.setDataLength(b.dataLength())
	pre.setCompressedLength(b.compressedLength())
	pre.setFirstData(b.firstData())
	pre.setCompressed(b.isCompressed())
	pre.setPrevBlock(ObjectID{})
	pre.setExpungeTxID(txID)
	pre.setExpunged(true)
	dir.setOccupied(slot, true)
	dir.setUsedCount(dir.usedCount() + 1)
	preID := ObjectID{PageID: uint32(dirHandle.ID()), Offset: uint32(dir.slotOffset(slot))}

	top.setExpungeHead(preID)
	top.setTotalExpunged(top.totalExpunged() + 1)

	payload, compressed := compress(data)
	if !compressed {
		payload = data
	}
	firstData, err := s.writeChunks(payload)
	if err != nil {
		return err
	}

	b.setDataLength(uint32(len(data)))
	b.setCompressedLength(uint32(len(payload)))
	b.setFirstData(firstData)
	b.setCompressed(compressed)
	b.setPrevBlock(preID)

	return nil
}

// UndoUpdate reverses a not-yet-compacted Update, restoring id's
// pre-image payload pointers from the pre-image Block Update staged —
// no data argument needed, since the previous bytes never left disk.
// The post-image pages being discarded are freed, the pre-image Block's
// slot is unlinked from the expunge list and reclaimed immediately
// (it was only ever a staging area, never a real object, so there is
// no reason to wait for Compact), and id itself goes back to having no
// pending update.
func (s *Store) UndoUpdate(id ObjectID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	topHandle, top, err := s.attachTop(pagecache.Write)
	if err != nil {
		return err
	}
	defer topHandle.Close(true)

	h, b, err := s.loadBlock(id, pagecache.Write)
	if err != nil {
		return err
	}
	defer h.Close(true)

	preID := b.prevBlock()
	if preID.IsNil() {
		return ftlerr.New(ftlerr.BadArgument, "lob.undoUpdate", fmt.Errorf("object %+v has no pending update", id))
	}

	preHandle, pre, err := s.loadBlock(preID, pagecache.Write)
	if err != nil {
		return err
	}
	defer preHandle.Close(true)

	// Unlink the pre-image Block from the expunge list before its slot
	// is reclaimed, so a later Compact never walks into freed memory.
	if err := s.unlinkExpunged(top, preID, pre.nextBlock()); err != nil {
		return err
	}

	// The post-image pages are the value being discarded by the undo.
	s.freeChunks(b.firstData().PageID)

	b.setDataLength(pre.dataLength())
	b.setCompressedLength(pre.compressedLength())
	b.setFirstData(pre.firstData())
	b.setCompressed(pre.isCompressed())
	b.setPrevBlock(ObjectID{})

	dir := openDirPage(preHandle.Bytes())
	slot := (int(preID.Offset) - dir.slotsOff) / blockHeaderSize
	dir.setOccupied(slot, false)
	dir.setUsedCount(dir.usedCount() - 1)
	top.setTotalExpunged(top.totalExpunged() - 1)

	return nil
}

// unlinkExpunged rewires the expunge list to skip target, whose
// successor is known to be targetNext already (the caller has target's
// Block open). Used by UndoUpdate to remove a pre-image Block that is
// being reclaimed outside Compact's normal sweep.
func (s *Store) unlinkExpunged(top topPage, target, targetNext ObjectID) error {
	if top.expungeHead() == target {
		top.setExpungeHead(targetNext)
		return nil
	}
	cur := top.expungeHead()
	for !cur.IsNil() {
		h, b, err := s.loadBlock(cur, pagecache.Write)
		if err != nil {
			return err
		}
		next := b.nextBlock()
		if next == target {
			b.setNextBlock(targetNext)
			h.Close(true)
			return nil
		}
		h.Close(true)
		cur = next
	}
	return ftlerr.New(ftlerr.Unexpected, "lob.unlinkExpunged", fmt.Errorf("object %+v not found on expunge list", target))
}

// Append adds extra bytes to the end of an object's current value.
func (s *Store) Append(id ObjectID, extra []byte) error {
	cur, err := s.Get(id)
	if err != nil {
		return err
	}
	combined := make([]byte, 0, len(cur)+len(extra))
	combined = append(combined, cur...)
	combined = append(combined, extra...)
	return s.Replace(id, combined)
}

// Truncate shortens an object's value to length n.
func (s *Store) Truncate(id ObjectID, n int) error {
	cur, err := s.Get(id)
	if err != nil {
		return err
	}
	if n < 0 || n > len(cur) {
		return ftlerr.New(ftlerr.BadArgument, "lob.truncate", fmt.Errorf("truncate length %d out of range [0,%d]", n, len(cur)))
	}
	return s.Replace(id, cur[:n])
}

// CompactStats summarizes one Compact pass.
type CompactStats struct {
	Reclaimed int
	Remaining int
}

// Compact walks the expunge list, reclaiming every block whose
// expunging transaction is no longer active. Blocks whose transaction
// is still active are left in place (and re-linked onto the new list
// head stored in the TopPage) so a later Compact call can retry them.
func (s *Store) Compact() (CompactStats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	topHandle, top, err := s.attachTop(pagecache.Write)
	if err != nil {
		return CompactStats{}, err
	}
	defer topHandle.Close(true)

	var stats CompactStats
	var newHead ObjectID
	cur := top.expungeHead()

	for !cur.IsNil() {
		h, b, err := s.loadBlock(cur, pagecache.Write)
		if err != nil {
			return stats, err
		}
		next := b.nextBlock()
		txID := b.expungeTxID()
		firstData := b.firstData()

		if !b.expunged() {
			// Was undone; drop it from the list without reclaiming.
			h.Close(true)
			cur = next
			continue
		}
		if s.txreg != nil && s.txreg.IsActive(txID) {
			// Still potentially visible to its own transaction; keep it
			// on the list for a later Compact pass.
			b.setNextBlock(newHead)
			newHead = cur
			stats.Remaining++
			h.Close(true)
			cur = next
			continue
		}

		s.freeChunks(firstData.PageID)
		// cur.PageID addresses the same dirPage h is already attached to
		// (an ObjectID's PageID is the dirPage holding its Block slot),
		// so the occupied bit is cleared directly through h rather than
		// attaching the page a second time.
		dir := openDirPage(h.Bytes())
		slot := (int(cur.Offset) - dir.slotsOff) / blockHeaderSize
		dir.setOccupied(slot, false)
		dir.setUsedCount(dir.usedCount() - 1)

		h.Close(true)
		stats.Reclaimed++
		cur = next
	}

	top.setExpungeHead(newHead)
	return stats, nil
}
