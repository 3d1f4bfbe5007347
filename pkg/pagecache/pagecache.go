// Package pagecache implements the engine's LRU cache of fixed-size
// physical pages (spec component C1). It is grounded on two shapes from
// the example corpus: the doubly-linked LRU list + map of
// other_examples' standalone buffer pool (moveToHead/evictLRU), and the
// attach/flush/page-pointer bookkeeping of the teacher's
// pkg/storage/kv.go. Page instances are owned exclusively by the Cache;
// callers hold reference-counted Handles that unfix on Close, per the
// "Page as {data, dirty} owned by the cache" re-architecture note.
package pagecache

import (
	"sync"

	"github.com/trmeister/fulltext2/pkg/ftlerr"
)

// PageID identifies a physical page within one PagedFile. It is an
// alias of uint32, so pkg/pagedfile.File's uint32-based methods satisfy
// Physical directly.
type PageID = uint32

// FixMode controls how a page is attached.
type FixMode int

const (
	ReadOnly FixMode = iota
	Write
	WriteDiscardable
)

// Physical is the narrow interface the cache needs from the underlying
// physical file (implemented by pkg/pagedfile.File). Kept minimal so
// pagecache has no import-cycle dependency on pagedfile.
type Physical interface {
	ReadPage(id PageID) ([]byte, error)
	WritePage(id PageID, data []byte) error
	AllocatePage() (PageID, error)
	FreePage(id PageID) error
	PageSize() int
}

// CancelToken is polled by long read-only scans, replacing the source's
// coroutine-less cancel polling with an explicit, testable object (see
// DESIGN NOTES).
type CancelToken struct {
	mu        sync.Mutex
	cancelled bool
}

func (c *CancelToken) Cancel() {
	c.mu.Lock()
	c.cancelled = true
	c.mu.Unlock()
}

func (c *CancelToken) IsCancelled() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cancelled
}

// Progress accumulates verification results across a verify pass. A
// per-attachPage Progress is created by callers and merged into a
// parent via Merge, mirroring the source's Progress-accumulator idiom.
type Progress struct {
	Checked int
	Failed  int
	Reason  string
}

func (p *Progress) Merge(child Progress) {
	p.Checked += child.Checked
	p.Failed += child.Failed
	if child.Failed > 0 && p.Reason == "" {
		p.Reason = child.Reason
	}
}

type page struct {
	id    PageID
	buf   []byte
	dirty bool
	pins  int32
	mode  FixMode

	prev, next *page // LRU links; nil when pinned (not in LRU list)
	inFreelist bool
}

// Handle is a reference-counted fix on one page. Callers must call
// Close exactly once; the underlying page is unfixed (and, if the pin
// count drops to zero, returned to the LRU list) on Close.
type Handle struct {
	c    *Cache
	p    *page
	once sync.Once
}

func (h *Handle) Bytes() []byte { return h.p.buf }

func (h *Handle) MarkDirty() { h.c.markDirty(h.p) }

func (h *Handle) ID() PageID { return h.p.id }

// Close unfixes the page. dirty indicates whether the caller made
// modifications that must be preserved (equivalent to unfixing with
// Dirty vs NotDirty mode).
func (h *Handle) Close(dirty bool) {
	h.once.Do(func() {
		h.c.unfix(h.p, dirty)
	})
}

// Cache is the LRU page cache for one physical file.
type Cache struct {
	phys       Physical
	cacheCount int // configured limit on clean, unpinned pages retained

	mu    sync.Mutex // guards everything below: per-file latch (m_cLatch)
	byID  map[PageID]*page
	head  *page // most recently used sentinel-adjacent
	tail  *page // least recently used sentinel-adjacent
	clean int   // count of pages currently unpinned & clean, eligible for LRU eviction

	attachesSinceCancelCheck int
}

// New creates a Cache fronting phys with the given clean-page retention
// limit (spec default 10).
func New(phys Physical, cacheCount int) *Cache {
	c := &Cache{
		phys:       phys,
		cacheCount: cacheCount,
		byID:       make(map[PageID]*page),
	}
	c.head = &page{}
	c.tail = &page{}
	c.head.next = c.tail
	c.tail.prev = c.head
	return c
}

func (c *Cache) addToHead(p *page) {
	p.next = c.head.next
	p.prev = c.head
	c.head.next.prev = p
	c.head.next = p
}

func (c *Cache) removeFromList(p *page) {
	if p.prev == nil && p.next == nil {
		return
	}
	p.prev.next = p.next
	p.next.prev = p.prev
	p.prev, p.next = nil, nil
}

func (c *Cache) moveToHead(p *page) {
	c.removeFromList(p)
	c.addToHead(p)
}

// AttachPage fixes the page, attaching it from cache if present or
// reading it from the physical file otherwise, and bumps its LRU
// position. token may be nil to disable cancel polling (write paths).
func (c *Cache) AttachPage(id PageID, mode FixMode, token *CancelToken) (*Handle, error) {
	c.mu.Lock()
	if token != nil {
		c.attachesSinceCancelCheck++
		if c.attachesSinceCancelCheck >= 100 {
			c.attachesSinceCancelCheck = 0
			if token.IsCancelled() {
				c.mu.Unlock()
				return nil, ftlerr.New(ftlerr.Cancelled, "pagecache.attachPage", nil)
			}
		}
	}

	if p, ok := c.byID[id]; ok {
		if p.pins == 0 {
			c.clean--
			c.removeFromList(p)
		}
		p.pins++
		p.mode = mode
		c.mu.Unlock()
		return &Handle{c: c, p: p}, nil
	}
	c.mu.Unlock()

	buf, err := c.phys.ReadPage(id)
	if err != nil {
		return nil, ftlerr.New(ftlerr.Unexpected, "pagecache.attachPage", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if p, ok := c.byID[id]; ok {
		// lost the race against a concurrent attach
		if p.pins == 0 {
			c.clean--
			c.removeFromList(p)
		}
		p.pins++
		p.mode = mode
		return &Handle{c: c, p: p}, nil
	}
	p := &page{id: id, buf: buf, mode: mode, pins: 1}
	c.byID[id] = p
	return &Handle{c: c, p: p}, nil
}

// AllocatePage obtains a new page (from the physical free list, or by
// extending the file), initializes it with init, and attaches it
// Write-fixed.
func (c *Cache) AllocatePage(init func(buf []byte)) (*Handle, error) {
	id, err := c.phys.AllocatePage()
	if err != nil {
		return nil, ftlerr.New(ftlerr.Unexpected, "pagecache.allocatePage", err)
	}
	buf := make([]byte, c.phys.PageSize())
	if init != nil {
		init(buf)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	p := &page{id: id, buf: buf, mode: Write, pins: 1, dirty: true}
	c.byID[id] = p
	return &Handle{c: c, p: p}, nil
}

func (c *Cache) markDirty(p *page) {
	c.mu.Lock()
	p.dirty = true
	c.mu.Unlock()
}

// unfix releases one pin on p. When the pin count reaches zero the page
// either joins the freelist (if marked freed) or the clean LRU list,
// never both at once (the freelist/LRU exclusivity invariant).
func (c *Cache) unfix(p *page, dirty bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if dirty {
		p.dirty = true
	}
	p.pins--
	if p.pins > 0 {
		return
	}
	if p.inFreelist {
		return // already removed from the attach table by freePage
	}
	if !p.dirty {
		c.clean++
		c.addToHead(p)
		c.evictOverLimitLocked()
	}
}

// freePage marks the page as freed; physical release is deferred to
// FlushAllPages, per spec contract.
func (c *Cache) FreePage(h *Handle) {
	c.mu.Lock()
	defer c.mu.Unlock()
	p := h.p
	p.inFreelist = true
	p.dirty = false
	c.removeFromList(p)
}

// evictOverLimitLocked detaches clean, unpinned pages in LRU order while
// the clean count exceeds cacheCount. Caller holds c.mu.
func (c *Cache) evictOverLimitLocked() {
	for c.clean > c.cacheCount {
		lru := c.tail.prev
		if lru == c.head {
			return
		}
		c.removeFromList(lru)
		delete(c.byID, lru.id)
		c.clean--
	}
}

// FlushAllPages implements the C1 contract: freelist pages are
// physically freed and recycled; LRU pages are unfixed (already clean,
// by construction, since only unpinned pages sit in the LRU list) and
// dropped; the cache is reset to empty.
func (c *Cache) FlushAllPages() error {
	c.mu.Lock()
	freed := make([]PageID, 0)
	dirtyPages := make(map[PageID][]byte)
	for id, p := range c.byID {
		if p.inFreelist {
			freed = append(freed, id)
			continue
		}
		if p.dirty {
			dirtyPages[id] = p.buf
		}
	}
	c.byID = make(map[PageID]*page)
	c.head.next = c.tail
	c.tail.prev = c.head
	c.clean = 0
	c.mu.Unlock()

	for id, buf := range dirtyPages {
		if err := c.phys.WritePage(id, buf); err != nil {
			return ftlerr.New(ftlerr.Unexpected, "pagecache.flushAllPages", err)
		}
	}
	for _, id := range freed {
		if err := c.phys.FreePage(id); err != nil {
			return ftlerr.New(ftlerr.Unexpected, "pagecache.flushAllPages", err)
		}
	}
	return nil
}

// RecoverAllPages discards all cached modifications without physically
// freeing anything (the discard-uncommitted-changes path).
func (c *Cache) RecoverAllPages() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.byID = make(map[PageID]*page)
	c.head.next = c.tail
	c.tail.prev = c.head
	c.clean = 0
}

// SaveAllPages writes every dirty page back to the physical file but
// keeps clean pages resident up to cacheCount, evicting the rest.
func (c *Cache) SaveAllPages() error {
	c.mu.Lock()
	dirtyPages := make(map[PageID][]byte)
	for id, p := range c.byID {
		if p.dirty && !p.inFreelist {
			dirtyPages[id] = append([]byte(nil), p.buf...)
		}
	}
	c.mu.Unlock()

	for id, buf := range dirtyPages {
		if err := c.phys.WritePage(id, buf); err != nil {
			return ftlerr.New(ftlerr.Unexpected, "pagecache.saveAllPages", err)
		}
	}

	c.mu.Lock()
	for _, p := range dirtyPages {
		_ = p
	}
	for id, p := range c.byID {
		if p.pins == 0 && !p.inFreelist {
			p.dirty = false
			if p.prev == nil && p.next == nil {
				c.clean++
				c.addToHead(p)
			}
		}
		_ = id
	}
	c.evictOverLimitLocked()
	c.mu.Unlock()
	return nil
}

// Stats is used by tests and the admin surface (pagecache eviction
// scenario, spec §8 scenario 6).
type Stats struct {
	Attached   int
	LRUSize    int
	Freelisted int
}

func (c *Cache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := Stats{Attached: len(c.byID)}
	for _, p := range c.byID {
		if p.inFreelist {
			s.Freelisted++
		}
	}
	s.LRUSize = c.clean
	return s
}
