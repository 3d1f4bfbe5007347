// Package indexfile implements the FullText2 inverted-file persistence
// component (C4): one logical index presented as four disjoint paged
// sub-files — leaf, overflow, btree, "other" — each with its own page
// size drawn from pkg/fileid.FileID. It is a thin specialization of
// pkg/pagedfile+pkg/pagecache (spec.md §4.4): no page-level layout for
// index content is prescribed beyond the sub-file shape and a Type tag
// per page. The btree sub-file reuses pkg/btree almost verbatim — it is
// exactly the on-disk B-tree-over-byte-sliced-pages shape this
// component needs — bound to the sub-file's own page pool through
// get/new/del callbacks the way pkg/fileid.ParamStore binds it to an
// in-memory arena.
package indexfile

import (
	"fmt"
	"path/filepath"

	"github.com/trmeister/fulltext2/internal/config"
	"github.com/trmeister/fulltext2/pkg/btree"
	"github.com/trmeister/fulltext2/pkg/fileid"
	"github.com/trmeister/fulltext2/pkg/ftlerr"
	"github.com/trmeister/fulltext2/pkg/pagecache"
	"github.com/trmeister/fulltext2/pkg/pagedfile"
)

// PageType tags the first word of every page so that a misdirected
// lookup (e.g. page 0 of the btree sub-file fetched as a plain node)
// can be rejected instead of silently misinterpreted.
type PageType uint32

const (
	_ PageType = iota
	TypeBtreeHeader
	TypeNode
	TypeLeaf
	TypeOverflow
	TypeOther
)

// headerPageID is this engine's placement of spec.md §4.4's "B-tree
// header page always has ID 0": pkg/pagedfile.File reserves physical
// page 0 internally for its own meta page (mirroring pkg/lob's
// topPageID resolution of the identical tension), so the header lives
// at the first page the btree sub-file ever allocates, page 1. Callers
// never see the raw pagedfile numbering; Header() enforces the
// lookup invariant directly.
const headerPageID = 1

// subFile is one of leaf/overflow/other: a physical file plus its own
// page cache, with no btree structure imposed on it.
type subFile struct {
	phys  *pagedfile.File
	cache *pagecache.Cache
}

func (s *subFile) allocate(typ PageType) (*pagecache.Handle, error) {
	return s.cache.AllocatePage(func(buf []byte) { writeType(buf, typ) })
}

func writeType(buf []byte, typ PageType) {
	buf[0], buf[1], buf[2], buf[3] = byte(typ), byte(typ>>8), byte(typ>>16), byte(typ>>24)
}

func readType(buf []byte) PageType {
	return PageType(uint32(buf[0]) | uint32(buf[1])<<8 | uint32(buf[2])<<16 | uint32(buf[3])<<24)
}

// File is one FullText2 inverted-file: the four sub-file spaces spec.md
// §2/§4.4 describe, each sized per the owning FileID.
type File struct {
	dir string
	id  fileid.FileID

	leaf     *subFile
	overflow *subFile
	other    *subFile

	btreePhys  *pagedfile.File
	btreeCache *pagecache.Cache
	pool       *btreePagePool
	tree       *btree.BTree
}

func subFilePaths(dir, name string) pagedfile.StorageStrategy {
	base := filepath.Join(dir, name)
	cfg := config.Get()
	return pagedfile.StorageStrategy{
		MasterPath:     base + ".db",
		VersionLogPath: base + ".vlog",
		SyncLogPath:    base + ".slog",
		MaxSize:        cfg.FileMaxSize,
		ExtensionSize:  cfg.FileExtensionSize,
	}
}

// New builds an (unmounted) File for dir, sized according to id's page
// size hints. The btree sub-file's physical page size is fixed at
// pkg/btree.BTREE_PAGE_SIZE regardless of id.BtreePageSizeKB — the
// on-disk B-tree layout hard-codes its page geometry the same way the
// teacher's own btree.go does, so the hint value is retained only for
// FileID round-tripping, not used to reshape the sub-file (documented
// Open Question resolution, mirrored from pkg/lob's topPageID note).
func New(dir string, id fileid.FileID) *File {
	cfg := config.Get()
	f := &File{dir: dir, id: id}

	f.leaf = &subFile{phys: &pagedfile.File{
		Strategy: subFilePaths(dir, "leaf"),
		PageSz:   id.LeafPageSizeKB * 1024,
		Version:  id.Version,
	}}
	f.overflow = &subFile{phys: &pagedfile.File{
		Strategy: subFilePaths(dir, "overflow"),
		PageSz:   id.OverflowPageSizeKB * 1024,
		Version:  id.Version,
	}}
	f.other = &subFile{phys: &pagedfile.File{
		Strategy: subFilePaths(dir, "other"),
		PageSz:   id.OtherPageSizeKB * 1024,
		Version:  id.Version,
	}}
	f.btreePhys = &pagedfile.File{
		Strategy: subFilePaths(dir, "btree"),
		PageSz:   btree.BTREE_PAGE_SIZE,
		Version:  id.Version,
	}
	f.leaf.cache = pagecache.New(f.leaf.phys, cfg.CacheCount)
	f.overflow.cache = pagecache.New(f.overflow.phys, cfg.CacheCount)
	f.other.cache = pagecache.New(f.other.phys, cfg.CacheCount)
	f.btreeCache = pagecache.New(f.btreePhys, cfg.CacheCount)
	f.pool = &btreePagePool{cache: f.btreeCache}
	f.tree = &btree.BTree{}
	f.tree.SetCallbacks(f.pool.get, f.pool.new, f.pool.del)
	return f
}

// btreePagePool adapts pkg/pagecache to pkg/btree's synchronous
// get(ptr)/new(node)/del(ptr) callback shape: each call fixes, copies,
// and unfixes within the call itself, so no Handle escapes across a
// yield point (the pagecache ownership rule from spec.md §3).
type btreePagePool struct {
	cache *pagecache.Cache
}

func (p *btreePagePool) get(ptr uint64) []byte {
	h, err := p.cache.AttachPage(pagecache.PageID(ptr), pagecache.ReadOnly, nil)
	if err != nil {
		panic(fmt.Sprintf("indexfile: btree page %d unavailable: %v", ptr, err))
	}
	buf := append([]byte(nil), h.Bytes()...)
	h.Close(false)
	return buf
}

func (p *btreePagePool) new(node []byte) uint64 {
	h, err := p.cache.AllocatePage(func(buf []byte) { copy(buf, node) })
	if err != nil {
		panic(fmt.Sprintf("indexfile: btree page allocation failed: %v", err))
	}
	h.MarkDirty()
	id := h.ID()
	h.Close(true)
	return uint64(id)
}

func (p *btreePagePool) del(ptr uint64) {
	h, err := p.cache.AttachPage(pagecache.PageID(ptr), pagecache.Write, nil)
	if err != nil {
		return
	}
	p.cache.FreePage(h)
}

// Create materializes all four sub-files and the btree header page.
func (f *File) Create() error {
	for _, s := range []*subFile{f.leaf, f.overflow, f.other} {
		if err := s.phys.Create(); err != nil {
			return err
		}
	}
	if err := f.btreePhys.Create(); err != nil {
		return err
	}
	h, err := f.btreeCache.AllocatePage(func(buf []byte) { writeType(buf, TypeBtreeHeader) })
	if err != nil {
		return err
	}
	if uint32(h.ID()) != headerPageID {
		h.Close(false)
		return ftlerr.New(ftlerr.Unexpected, "indexfile.create", fmt.Errorf("expected btree header at page %d, got %d", headerPageID, h.ID()))
	}
	h.MarkDirty()
	h.Close(true)
	return f.Flush()
}

// Mount attaches all four sub-files and restores the btree root pointer
// from the header page.
func (f *File) Mount() error {
	if !f.id.CheckVersion() {
		return ftlerr.New(ftlerr.NotSupported, "indexfile.mount", fmt.Errorf("file version %d predates the minimum supported version", f.id.Version))
	}
	for _, s := range []*subFile{f.leaf, f.overflow, f.other} {
		if err := s.phys.Mount(); err != nil {
			return err
		}
	}
	if err := f.btreePhys.Mount(); err != nil {
		return err
	}
	h, typ, err := f.header(pagecache.ReadOnly)
	if err != nil {
		return err
	}
	if typ != TypeBtreeHeader {
		h.Close(false)
		return ftlerr.New(ftlerr.Unexpected, "indexfile.mount", fmt.Errorf("page %d is not the btree header", headerPageID))
	}
	root := decodeRoot(h.Bytes())
	h.Close(false)
	f.tree.SetRoot(root)
	return nil
}

func (f *File) header(mode pagecache.FixMode) (*pagecache.Handle, PageType, error) {
	h, err := f.btreeCache.AttachPage(headerPageID, mode, nil)
	if err != nil {
		return nil, 0, err
	}
	return h, readType(h.Bytes()), nil
}

func decodeRoot(buf []byte) uint64 {
	var v uint64
	for i := 0; i < 8; i++ {
		v |= uint64(buf[4+i]) << (8 * i)
	}
	return v
}

func encodeRoot(buf []byte, v uint64) {
	for i := 0; i < 8; i++ {
		buf[4+i] = byte(v >> (8 * i))
	}
}

// Btree returns the B-tree over this index's btree sub-file. Callers
// that mutate it must call SaveBtreeRoot before Flush so the new root
// pointer survives a remount.
func (f *File) Btree() *btree.BTree { return f.tree }

// SaveBtreeRoot persists the btree's current root pointer into the
// header page.
func (f *File) SaveBtreeRoot() error {
	h, typ, err := f.header(pagecache.Write)
	if err != nil {
		return err
	}
	if typ != TypeBtreeHeader {
		h.Close(false)
		return ftlerr.New(ftlerr.Unexpected, "indexfile.saveBtreeRoot", fmt.Errorf("page %d is not the btree header", headerPageID))
	}
	encodeRoot(h.Bytes(), f.tree.GetRoot())
	h.Close(true)
	return nil
}

// GetHeaderPage enforces the lookup invariant of spec.md §4.4: fetching
// page 0 (headerPageID in this engine's numbering) of the btree
// sub-file with any type other than TypeBtreeHeader fails Unexpected.
func (f *File) GetHeaderPage(want PageType) (*pagecache.Handle, error) {
	h, typ, err := f.header(pagecache.ReadOnly)
	if err != nil {
		return nil, err
	}
	if typ != want {
		h.Close(false)
		return nil, ftlerr.New(ftlerr.Unexpected, "indexfile.getHeaderPage", fmt.Errorf("page %d has type %d, not %d", headerPageID, typ, want))
	}
	return h, nil
}

// AllocateLeaf, AllocateOverflow, AllocateOther allocate and
// type-stamp a page in the corresponding sub-file, matching spec.md
// §4.4's "Type tag per page... influencing how the inserted-into page
// is initialized".
func (f *File) AllocateLeaf() (*pagecache.Handle, error)     { return f.leaf.allocate(TypeLeaf) }
func (f *File) AllocateOverflow() (*pagecache.Handle, error) { return f.overflow.allocate(TypeOverflow) }
func (f *File) AllocateOther() (*pagecache.Handle, error)    { return f.other.allocate(TypeOther) }

func (f *File) AttachLeaf(id pagecache.PageID, mode pagecache.FixMode) (*pagecache.Handle, error) {
	return f.leaf.cache.AttachPage(id, mode, nil)
}
func (f *File) AttachOverflow(id pagecache.PageID, mode pagecache.FixMode) (*pagecache.Handle, error) {
	return f.overflow.cache.AttachPage(id, mode, nil)
}
func (f *File) AttachOther(id pagecache.PageID, mode pagecache.FixMode) (*pagecache.Handle, error) {
	return f.other.cache.AttachPage(id, mode, nil)
}

// Flush commits every sub-file: cache pages are written back and each
// physical file is fsync-committed.
func (f *File) Flush() error {
	for _, s := range []*subFile{f.leaf, f.overflow, f.other} {
		if err := s.cache.FlushAllPages(); err != nil {
			return err
		}
		if err := s.phys.Commit(); err != nil {
			return err
		}
	}
	if err := f.btreeCache.FlushAllPages(); err != nil {
		return err
	}
	return f.btreePhys.Commit()
}

// Unmount detaches all four sub-files.
func (f *File) Unmount() error {
	var first error
	for _, s := range []*subFile{f.leaf, f.overflow, f.other} {
		if err := s.phys.Unmount(); err != nil && first == nil {
			first = err
		}
	}
	if err := f.btreePhys.Unmount(); err != nil && first == nil {
		first = err
	}
	return first
}

// Destroy removes every sub-file's on-disk state.
func (f *File) Destroy() error {
	var first error
	for _, s := range []*subFile{f.leaf, f.overflow, f.other} {
		if err := s.phys.Destroy(); err != nil && first == nil {
			first = err
		}
	}
	if err := f.btreePhys.Destroy(); err != nil && first == nil {
		first = err
	}
	return first
}

// Move relocates every sub-file to newDir.
func (f *File) Move(newDir string) error {
	for _, s := range []*subFile{f.leaf, f.overflow, f.other} {
		if err := s.phys.Move(newDir); err != nil {
			return err
		}
	}
	if err := f.btreePhys.Move(newDir); err != nil {
		return err
	}
	f.dir = newDir
	return nil
}

// Sync delegates to each sub-file, reporting the union of
// incomplete/modified across all four.
func (f *File) Sync() (incomplete, modified bool, err error) {
	for _, s := range []*subFile{f.leaf, f.overflow, f.other} {
		i, m, e := s.phys.Sync()
		incomplete = incomplete || i
		modified = modified || m
		if e != nil {
			return incomplete, modified, e
		}
	}
	i, m, e := f.btreePhys.Sync()
	return incomplete || i, modified || m, e
}

// VerifyResult aggregates each sub-file's structural verification.
type VerifyResult struct {
	Leaf, Overflow, Other, Btree pagedfile.VerifyResult
}

func (f *File) Verify() (VerifyResult, error) {
	var res VerifyResult
	var err error
	if res.Leaf, err = f.leaf.phys.Verify(); err != nil {
		return res, err
	}
	if res.Overflow, err = f.overflow.phys.Verify(); err != nil {
		return res, err
	}
	if res.Other, err = f.other.phys.Verify(); err != nil {
		return res, err
	}
	if res.Btree, err = f.btreePhys.Verify(); err != nil {
		return res, err
	}
	return res, nil
}

// RecoverAllPages discards uncommitted modifications in every sub-file
// cache without physically freeing anything.
func (f *File) RecoverAllPages() {
	f.leaf.cache.RecoverAllPages()
	f.overflow.cache.RecoverAllPages()
	f.other.cache.RecoverAllPages()
	f.btreeCache.RecoverAllPages()
}

// FlushAllPages is the C1-forwarding half of spec.md §4.8's
// recoverAllPages/flushAllPages pair.
func (f *File) FlushAllPages() error { return f.Flush() }
