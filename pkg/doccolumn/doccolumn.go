// Package doccolumn stores the indexed source text a FullText2 column
// was built from, so pkg/kwic has something to extract snippets out of
// (spec.md §4.7's KWIC step consumes "the indexed source text", which
// spec.md §4 never says where it lives — this package is the
// supplemental storage answer, confirmed against
// original_source/sydney/Driver/FullText2/LogicalInterface.cpp's get()
// returning the stored source alongside search metadata).
//
// It is grounded on pkg/document/simple_store.go's node/children/path
// hierarchy (teacher): "document" becomes a search-file row, "node"
// becomes a Section within it, re-keyed from the teacher's composite KV
// encoding onto a single pkg/btree instance bound to pkg/pagedfile +
// pkg/pagecache, the same binding pkg/indexfile uses, since the
// teacher's own pkg/storage.KV is superseded engine-wide by that pair.
package doccolumn

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"sync"

	"github.com/trmeister/fulltext2/internal/config"
	"github.com/trmeister/fulltext2/pkg/btree"
	"github.com/trmeister/fulltext2/pkg/ftlerr"
	"github.com/trmeister/fulltext2/pkg/pagecache"
	"github.com/trmeister/fulltext2/pkg/pagedfile"
)

// DocID identifies one indexed row (the teacher's "document").
type DocID uint64

// SectionID identifies one section within a document. 0 is the
// document's own root section.
type SectionID uint64

// Section is one indexed span of text within a document, arranged as a
// tree (title/body pairs for sectionized columns; a lone root section
// for plain scalar columns), mirroring pkg/document.Node.
type Section struct {
	ID       SectionID
	ParentID SectionID
	Ordinal  int
	Title    string
	Text     string
	Depth    int
}

const (
	kindSection  = byte(1) // docID|kind|sectionID -> header + chunk count
	kindChunk    = byte(2) // docID|kind|sectionID|chunkIndex -> text chunk
	kindChildren = byte(3) // docID|kind|parentID|ordinal|sectionID -> empty (index only)
	kindNextID   = byte(4) // docID|kind -> next SectionID counter
)

// chunkSize keeps every chunk row's value under pkg/btree's
// BTREE_MAX_VAL_SIZE; the section header is stored in its own row.
const chunkSize = 2048

// headerPageID holds the btree's root pointer across mounts, the same
// separate-page technique pkg/indexfile uses: the root pointer cannot
// live inside the btree it describes, and pkg/pagedfile reserves
// physical page 0 for its own meta page, so the header sits at the
// first page this store ever allocates.
const headerPageID = 1

// Store is the on-disk section/children/path index.
type Store struct {
	mu   sync.Mutex
	phys *pagedfile.File
	tree *btree.BTree
	pool *btreePagePool
}

type btreePagePool struct {
	cache *pagecache.Cache
}

func (p *btreePagePool) get(ptr uint64) []byte {
	h, err := p.cache.AttachPage(pagecache.PageID(ptr), pagecache.ReadOnly, nil)
	if err != nil {
		panic(fmt.Sprintf("doccolumn: page %d unavailable: %v", ptr, err))
	}
	buf := append([]byte(nil), h.Bytes()...)
	h.Close(false)
	return buf
}

func (p *btreePagePool) new(node []byte) uint64 {
	h, err := p.cache.AllocatePage(func(buf []byte) { copy(buf, node) })
	if err != nil {
		panic(fmt.Sprintf("doccolumn: page allocation failed: %v", err))
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

// New builds an (unmounted) Store rooted at dir.
func New(dir string) *Store {
	cfg := config.Get()
	phys := &pagedfile.File{
		Strategy: pagedfile.StorageStrategy{
			MasterPath:     dir + "/doccolumn.db",
			VersionLogPath: dir + "/doccolumn.vlog",
			SyncLogPath:    dir + "/doccolumn.slog",
			MaxSize:        cfg.FileMaxSize,
			ExtensionSize:  cfg.FileExtensionSize,
		},
		PageSz:  btree.BTREE_PAGE_SIZE,
		Version: 4,
	}
	cache := pagecache.New(phys, cfg.CacheCount)
	pool := &btreePagePool{cache: cache}
	tree := &btree.BTree{}
	tree.SetCallbacks(pool.get, pool.new, pool.del)
	return &Store{phys: phys, tree: tree, pool: pool}
}

// Create materializes the backing file and its root-pointer header
// page.
func (s *Store) Create() error {
	if err := s.phys.Create(); err != nil {
		return err
	}
	h, err := s.pool.cache.AllocatePage(func(buf []byte) { binary.BigEndian.PutUint64(buf[:8], 0) })
	if err != nil {
		return err
	}
	if uint32(h.ID()) != headerPageID {
		h.Close(false)
		return ftlerr.New(ftlerr.Unexpected, "doccolumn.create", fmt.Errorf("expected header at page %d, got %d", headerPageID, h.ID()))
	}
	h.MarkDirty()
	h.Close(true)
	return s.Flush()
}

// Mount attaches the backing file and restores the btree root pointer
// from the header page.
func (s *Store) Mount() error {
	if err := s.phys.Mount(); err != nil {
		return err
	}
	h, err := s.pool.cache.AttachPage(headerPageID, pagecache.ReadOnly, nil)
	if err != nil {
		return err
	}
	root := binary.BigEndian.Uint64(h.Bytes()[:8])
	h.Close(false)
	s.tree.SetRoot(root)
	return nil
}

func (s *Store) Unmount() error { return s.phys.Unmount() }
func (s *Store) Destroy() error { return s.phys.Destroy() }

// SaveRoot persists the btree's current root pointer into the header
// page. Callers must invoke this before Flush whenever they have
// mutated the tree.
func (s *Store) SaveRoot() error {
	h, err := s.pool.cache.AttachPage(headerPageID, pagecache.Write, nil)
	if err != nil {
		return err
	}
	binary.BigEndian.PutUint64(h.Bytes()[:8], s.tree.GetRoot())
	h.Close(true)
	return nil
}

func (s *Store) Flush() error {
	if err := s.pool.cache.FlushAllPages(); err != nil {
		return err
	}
	return s.phys.Commit()
}

// --- key encoding ---

func sectionKey(doc DocID, id SectionID) []byte {
	k := make([]byte, 17)
	binary.BigEndian.PutUint64(k[0:8], uint64(doc))
	k[8] = kindSection
	binary.BigEndian.PutUint64(k[9:17], uint64(id))
	return k
}

func chunkKey(doc DocID, id SectionID, idx int) []byte {
	k := make([]byte, 21)
	binary.BigEndian.PutUint64(k[0:8], uint64(doc))
	k[8] = kindChunk
	binary.BigEndian.PutUint64(k[9:17], uint64(id))
	binary.BigEndian.PutUint32(k[17:21], uint32(idx))
	return k
}

func childKey(doc DocID, parent SectionID, ordinal int, id SectionID) []byte {
	k := make([]byte, 29)
	binary.BigEndian.PutUint64(k[0:8], uint64(doc))
	k[8] = kindChildren
	binary.BigEndian.PutUint64(k[9:17], uint64(parent))
	binary.BigEndian.PutUint32(k[17:21], uint32(ordinal))
	binary.BigEndian.PutUint64(k[21:29], uint64(id))
	return k
}

func childPrefix(doc DocID, parent SectionID) []byte {
	k := make([]byte, 17)
	binary.BigEndian.PutUint64(k[0:8], uint64(doc))
	k[8] = kindChildren
	binary.BigEndian.PutUint64(k[9:17], uint64(parent))
	return k
}

func nextIDKey(doc DocID) []byte {
	k := make([]byte, 9)
	binary.BigEndian.PutUint64(k[0:8], uint64(doc))
	k[8] = kindNextID
	return k
}

// --- section header encoding: parentID(8) ordinal(4) depth(4) titleLen(2) title chunkCount(4) ---

func encodeHeader(sec Section, chunkCount int) []byte {
	title := []byte(sec.Title)
	buf := make([]byte, 8+4+4+2+len(title)+4)
	binary.BigEndian.PutUint64(buf[0:8], uint64(sec.ParentID))
	binary.BigEndian.PutUint32(buf[8:12], uint32(sec.Ordinal))
	binary.BigEndian.PutUint32(buf[12:16], uint32(sec.Depth))
	binary.BigEndian.PutUint16(buf[16:18], uint16(len(title)))
	copy(buf[18:18+len(title)], title)
	binary.BigEndian.PutUint32(buf[18+len(title):], uint32(chunkCount))
	return buf
}

func decodeHeader(buf []byte) (parentID SectionID, ordinal, depth int, title string, chunkCount int, err error) {
	if len(buf) < 18 {
		return 0, 0, 0, "", 0, ftlerr.New(ftlerr.LogItemCorrupted, "doccolumn.decodeHeader", nil)
	}
	parentID = SectionID(binary.BigEndian.Uint64(buf[0:8]))
	ordinal = int(binary.BigEndian.Uint32(buf[8:12]))
	depth = int(binary.BigEndian.Uint32(buf[12:16]))
	titleLen := int(binary.BigEndian.Uint16(buf[16:18]))
	if len(buf) < 18+titleLen+4 {
		return 0, 0, 0, "", 0, ftlerr.New(ftlerr.LogItemCorrupted, "doccolumn.decodeHeader", nil)
	}
	title = string(buf[18 : 18+titleLen])
	chunkCount = int(binary.BigEndian.Uint32(buf[18+titleLen:]))
	return parentID, ordinal, depth, title, chunkCount, nil
}

// PutSection inserts or replaces a section, chunking its text across
// multiple btree rows so no single value exceeds BTREE_MAX_VAL_SIZE.
// The caller supplies id and ordinal (monotonic assignment lives in
// NewSectionID, kept separate so callers can also restore a known ID on
// rebuild).
func (s *Store) PutSection(doc DocID, sec Section) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	chunks := splitChunks(sec.Text)
	header := encodeHeader(sec, len(chunks))
	s.tree.Insert(sectionKey(doc, sec.ID), header)
	for i, c := range chunks {
		s.tree.Insert(chunkKey(doc, sec.ID, i), []byte(c))
	}
	if sec.ParentID != sec.ID {
		s.tree.Insert(childKey(doc, sec.ParentID, sec.Ordinal, sec.ID), nil)
	}
	return s.SaveRoot()
}

func splitChunks(text string) []string {
	if text == "" {
		return []string{""}
	}
	b := []byte(text)
	var chunks []string
	for len(b) > 0 {
		n := chunkSize
		if n > len(b) {
			n = len(b)
		}
		chunks = append(chunks, string(b[:n]))
		b = b[n:]
	}
	return chunks
}

// NewSectionID allocates the next SectionID for doc (starting at 1;
// SectionID 0 is reserved for the document's own root section).
func (s *Store) NewSectionID(doc DocID) SectionID {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := nextIDKey(doc)
	next := uint64(1)
	if v, ok := s.tree.Get(key); ok && len(v) == 8 {
		next = binary.BigEndian.Uint64(v) + 1
	}
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, next)
	s.tree.Insert(key, buf)
	return SectionID(next)
}

// GetSection reads back one section's metadata and full (reassembled)
// text.
func (s *Store) GetSection(doc DocID, id SectionID) (Section, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.getSectionLocked(doc, id)
}

func (s *Store) getSectionLocked(doc DocID, id SectionID) (Section, error) {
	buf, ok := s.tree.Get(sectionKey(doc, id))
	if !ok {
		return Section{}, ftlerr.New(ftlerr.BadArgument, "doccolumn.getSection", fmt.Errorf("section %d/%d not found", doc, id))
	}
	parentID, ordinal, depth, title, chunkCount, err := decodeHeader(buf)
	if err != nil {
		return Section{}, err
	}
	var text []byte
	for i := 0; i < chunkCount; i++ {
		c, ok := s.tree.Get(chunkKey(doc, id, i))
		if !ok {
			return Section{}, ftlerr.New(ftlerr.LogItemCorrupted, "doccolumn.getSection", fmt.Errorf("missing chunk %d of section %d/%d", i, doc, id))
		}
		text = append(text, c...)
	}
	return Section{ID: id, ParentID: parentID, Ordinal: ordinal, Depth: depth, Title: title, Text: string(text)}, nil
}

// GetDocumentText is a convenience accessor returning just the root
// section's (SectionID 0) reassembled text, the common case for plain
// (non-sectionized) columns.
func (s *Store) GetDocumentText(doc DocID) (string, error) {
	sec, err := s.GetSection(doc, 0)
	if err != nil {
		return "", err
	}
	return sec.Text, nil
}

// PutDocumentText stores doc's root text with no hierarchy, the
// common case pkg/kwic.Extract draws a plain column's source from.
func (s *Store) PutDocumentText(doc DocID, text string) error {
	return s.PutSection(doc, Section{ID: 0, ParentID: 0, Text: text})
}

// Children returns id's direct children in insertion (ordinal) order.
func (s *Store) Children(doc DocID, id SectionID) ([]Section, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	prefix := childPrefix(doc, id)
	var out []Section
	var scanErr error
	s.tree.Scan(prefix, func(key, _ []byte) bool {
		if !bytes.HasPrefix(key, prefix) {
			return false
		}
		childID := SectionID(binary.BigEndian.Uint64(key[21:29]))
		sec, err := s.getSectionLocked(doc, childID)
		if err != nil {
			scanErr = err
			return false
		}
		out = append(out, sec)
		return true
	})
	return out, scanErr
}

// Path returns the chain of sections from the document root down to id,
// inclusive, grounded on pkg/document.SimpleStore.GetAncestorPath.
func (s *Store) Path(doc DocID, id SectionID) ([]Section, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var path []Section
	cur := id
	for {
		sec, err := s.getSectionLocked(doc, cur)
		if err != nil {
			return nil, err
		}
		path = append([]Section{sec}, path...)
		if cur == 0 || sec.ParentID == cur {
			break
		}
		cur = sec.ParentID
	}
	return path, nil
}

// DeleteDocument removes a document's root section, its full section
// tree, and every children-index entry. Used by the expunge path: a
// FullText2 expunge drops the indexed source alongside its postings.
func (s *Store) DeleteDocument(doc DocID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var ids []SectionID
	ids = append(ids, 0)
	queue := []SectionID{0}
	for len(queue) > 0 {
		parent := queue[0]
		queue = queue[1:]
		prefix := childPrefix(doc, parent)
		var children []SectionID
		s.tree.Scan(prefix, func(key, _ []byte) bool {
			if !bytes.HasPrefix(key, prefix) {
				return false
			}
			children = append(children, SectionID(binary.BigEndian.Uint64(key[21:29])))
			return true
		})
		for _, c := range children {
			ids = append(ids, c)
			queue = append(queue, c)
		}
	}

	for _, id := range ids {
		sec, err := s.getSectionLocked(doc, id)
		if err == nil {
			for i := range splitChunks(sec.Text) {
				s.tree.Delete(chunkKey(doc, id, i))
			}
			if sec.ParentID != id {
				s.tree.Delete(childKey(doc, sec.ParentID, sec.Ordinal, id))
			}
		}
		s.tree.Delete(sectionKey(doc, id))
	}
	s.tree.Delete(nextIDKey(doc))
	return nil
}
