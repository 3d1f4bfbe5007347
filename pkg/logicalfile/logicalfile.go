// Package logicalfile implements the driver-level surface (spec
// component C8): the open/close/insert/update/expunge/get operation set
// the SQL executor calls, plus the projection/sort/limit negotiation
// hooks (delegated to pkg/planhooks) and the Locator API for LOB
// columns. It is the glue package tying pkg/fileid, pkg/indexfile,
// pkg/lob, pkg/doccolumn, pkg/delayedmerge, and pkg/kwic together,
// grounded on the overall shape of the teacher's internal/server
// request handlers (one method per driver operation) with the gRPC
// transport stripped away — this is the transport-free core the admin
// surface calls into.
package logicalfile

import (
	"sync"

	"github.com/trmeister/fulltext2/pkg/delayedmerge"
	"github.com/trmeister/fulltext2/pkg/doccolumn"
	"github.com/trmeister/fulltext2/pkg/fileid"
	"github.com/trmeister/fulltext2/pkg/ftlerr"
	"github.com/trmeister/fulltext2/pkg/indexfile"
	"github.com/trmeister/fulltext2/pkg/kwic"
	"github.com/trmeister/fulltext2/pkg/lob"
	"github.com/trmeister/fulltext2/pkg/pagecache"
	"github.com/trmeister/fulltext2/pkg/pagedfile"
	"github.com/trmeister/fulltext2/pkg/planhooks"
	"github.com/trmeister/fulltext2/pkg/txreg"
)

// OpenMode is the caller's intended access pattern, decoded from the
// driver's OpenOption per spec.md §4.8 ("Search/Read ⇒ ReadOnly;
// Update/Batch ⇒ Write+Discardable").
type OpenMode int

const (
	Search OpenMode = iota
	Read
	Update
	Batch
)

func (m OpenMode) fixMode() pagecache.FixMode {
	switch m {
	case Update, Batch:
		return pagecache.WriteDiscardable
	default:
		return pagecache.ReadOnly
	}
}

// OpenOption is the driver-level parameter bag of spec.md §6's
// "OpenOption / driver surface": a small typed bag rather than the
// source's dynamically-typed (integer, boolean, string, array-of-u32)
// map, since every field this engine actually reads has a fixed type.
type OpenOption struct {
	Mode        OpenMode
	Projection  []int // target field indices
	FieldSelect []bool
	CacheAll    bool
	Limit       int64
	Offset      int64
}

// Tuple is one row passed across the C8 boundary: the indexed text (one
// segment per array-of-string/sectionized element, one element
// otherwise), its language, and an optional score column value.
type Tuple struct {
	Text     []string
	Language string
	Score    float64
}

// Handle is one open logical-file session (spec.md §9: "a per-open-
// handle field, not a process-wide flag" — Batch mode lives here).
type Handle struct {
	mu sync.Mutex

	dir string
	id  fileid.FileID

	index   *indexfile.File
	lobPhys *pagedfile.File
	lobs    *lob.Store
	docs    *doccolumn.Store
	reg     *txreg.Registry
	merge   *delayedmerge.Manager
	pool    *delayedmerge.Pool

	cond *kwic.Condition
	tok  kwic.Tokenizer

	opt       OpenOption
	open      bool
	nextDocID doccolumn.DocID
}

// Create stages id for dir without materializing anything on disk,
// per spec.md §4.8 ("create(tx) — Stage FileId; do not materialise the
// file on disk"). Physical creation is deferred to the first Mount
// after an explicit Destroy-then-Create, or handled by the caller
// invoking (*Handle).materialize once the schema transaction commits.
func Create(dir string, id fileid.FileID) (*Handle, error) {
	if err := id.VerifyHint(); err != nil {
		return nil, err
	}
	id.ClampPageSizes()
	return &Handle{dir: dir, id: id}, nil
}

// materialize creates every backing sub-file. Called once, from Mount
// or from the first Open in Update or Batch mode of a staged Handle.
func (h *Handle) materialize() error {
	h.index = indexfile.New(h.dir, h.id)
	if err := h.index.Create(); err != nil {
		return ftlerr.New(ftlerr.Unexpected, "logicalfile.create", err)
	}

	h.lobPhys = &pagedfile.File{
		Strategy: pagedfile.StorageStrategy{
			MasterPath:     h.dir + "/lob.db",
			VersionLogPath: h.dir + "/lob.vlog",
			SyncLogPath:    h.dir + "/lob.slog",
		},
		PageSz:  h.id.OtherPageSizeKB * 1024,
		Version: h.id.Version,
	}
	h.reg = txreg.NewRegistry()
	h.lobs = lob.NewStore(h.lobPhys, 10, h.reg)
	if err := h.lobs.Create(); err != nil {
		return ftlerr.New(ftlerr.Unexpected, "logicalfile.create", err)
	}

	h.docs = doccolumn.New(h.dir)
	if err := h.docs.Create(); err != nil {
		return ftlerr.New(ftlerr.Unexpected, "logicalfile.create", err)
	}
	return nil
}

// Destroy removes every sub-file unconditionally, per spec.md §4.8
// ("destroy(tx) — Delegate to IndexFile/LobStore; unconditional").
func (h *Handle) Destroy() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.index == nil {
		h.index = indexfile.New(h.dir, h.id)
	}
	if err := h.index.Destroy(); err != nil {
		return err
	}
	if h.lobs != nil {
		if err := h.lobPhys.Destroy(); err != nil {
			return err
		}
	}
	if h.docs != nil {
		return h.docs.Destroy()
	}
	return nil
}

// Mount flips the FileID's mounted flag and mounts every sub-file.
func (h *Handle) Mount() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.id.Mounted = true
	if h.index == nil {
		return h.materializeLocked()
	}
	if err := h.index.Mount(); err != nil {
		return err
	}
	if err := h.lobs.Mount(); err != nil {
		return err
	}
	return h.docs.Mount()
}

func (h *Handle) materializeLocked() error { return h.materialize() }

// Unmount flips the mounted flag off and detaches every sub-file.
func (h *Handle) Unmount() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.id.Mounted = false
	if h.index == nil {
		return nil
	}
	if err := h.index.Unmount(); err != nil {
		return err
	}
	if err := h.lobs.Close(); err != nil {
		return err
	}
	return h.docs.Unmount()
}

// Open decodes opt.Mode into the sub-files' fix mode and caches the
// projection/cache/limit fields for the session, per spec.md §4.8.
func (h *Handle) Open(opt OpenOption, pool *delayedmerge.Pool) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.index == nil {
		if opt.Mode != Update && opt.Mode != Batch {
			return ftlerr.New(ftlerr.FileNotOpen, "logicalfile.open", nil)
		}
		if err := h.materialize(); err != nil {
			return err
		}
		if err := h.index.Mount(); err != nil {
			return err
		}
		if err := h.lobs.Mount(); err != nil {
			return err
		}
		if err := h.docs.Mount(); err != nil {
			return err
		}
	}
	h.opt = opt
	h.open = true
	if pool != nil {
		h.pool = pool
		h.merge = delayedmerge.NewManager(modeFor(h.id.Delayed), h.id.Vacuum, h.id.LockName, pool)
	}
	return nil
}

func modeFor(m fileid.DelayedMode) delayedmerge.Mode {
	switch m {
	case fileid.DelayedSync:
		return delayedmerge.Sync
	case fileid.DelayedAsync:
		return delayedmerge.Async
	default:
		return delayedmerge.None
	}
}

// Close flushes or recovers every sub-file depending on the session's
// open mode, then clears per-cursor state.
func (h *Handle) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.open {
		return nil
	}
	var err error
	if h.opt.Mode == Update || h.opt.Mode == Batch {
		err = h.flushAllLocked()
	} else {
		h.recoverAllLocked()
	}
	h.open = false
	h.cond = nil
	return err
}

// SetCondition installs the KWIC search-term tree this handle's Get
// calls should use to extract snippets, built by the caller from the
// search result's property dictionary (spec.md §4.7).
func (h *Handle) SetCondition(cond *kwic.Condition, tok kwic.Tokenizer) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.cond = cond
	h.tok = tok
}

// Get reads one row's indexed text (applying projection per
// opt.FieldSelect) and, if a KWIC condition is installed, returns the
// extracted snippet instead of the raw text.
func (h *Handle) Get(doc doccolumn.DocID, req kwic.Request) (Tuple, string, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.open {
		return Tuple{}, "", ftlerr.New(ftlerr.FileNotOpen, "logicalfile.get", nil)
	}
	text, err := h.docs.GetDocumentText(doc)
	if err != nil {
		return Tuple{}, "", err
	}
	t := Tuple{Text: []string{text}}
	if h.cond == nil {
		return t, "", nil
	}
	req.Source = t.Text
	snippet, _, err := kwic.Extract(req, h.tok, h.cond)
	if err != nil {
		return t, "", err
	}
	return t, snippet, nil
}

// Insert stores t's text under a freshly allocated document id and
// enqueues a Discard job per spec.md §4.8, unless the session is in
// Batch mode.
func (h *Handle) Insert(t Tuple) (doccolumn.DocID, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.open {
		return 0, ftlerr.New(ftlerr.FileNotOpen, "logicalfile.insert", nil)
	}
	h.nextDocID++
	doc := h.nextDocID
	text := ""
	if len(t.Text) > 0 {
		text = t.Text[0]
	}
	if err := h.docs.PutDocumentText(doc, text); err != nil {
		return 0, err
	}
	h.onMutationLocked()
	return doc, nil
}

// Update overwrites doc's stored text.
func (h *Handle) Update(doc doccolumn.DocID, t Tuple) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.open {
		return ftlerr.New(ftlerr.FileNotOpen, "logicalfile.update", nil)
	}
	text := ""
	if len(t.Text) > 0 {
		text = t.Text[0]
	}
	if err := h.docs.PutDocumentText(doc, text); err != nil {
		return err
	}
	h.onMutationLocked()
	return nil
}

// Expunge deletes doc's indexed text and section tree.
func (h *Handle) Expunge(doc doccolumn.DocID) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.open {
		return ftlerr.New(ftlerr.FileNotOpen, "logicalfile.expunge", nil)
	}
	if err := h.docs.DeleteDocument(doc); err != nil {
		return err
	}
	h.onMutationLocked()
	return nil
}

func (h *Handle) onMutationLocked() {
	if h.merge != nil {
		h.merge.OnMutation(h.opt.Mode == Batch)
	}
}

// GetLocator returns a Locator for a LOB-resident value addressed by
// id, used by driver callers that need random-access get/append/
// replace/truncate rather than a whole-row Get.
func (h *Handle) GetLocator(id lob.ObjectID) *Locator {
	return &Locator{store: h.lobs, id: id}
}

// InsertLob stores bytes as a new LOB-resident value and returns its
// address.
func (h *Handle) InsertLob(data []byte) (lob.ObjectID, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.lobs.Insert(data)
}

// Sync delegates to the index sub-file.
func (h *Handle) Sync() (incomplete, modified bool, err error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.index.Sync()
}

// Move relocates every sub-file to a new area path and updates the
// FileID accordingly.
func (h *Handle) Move(areaPath string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if err := h.index.Move(areaPath); err != nil {
		return err
	}
	h.id.AreaPath = areaPath
	h.dir = areaPath
	return nil
}

// Compact runs the LOB store's Compact() repeatedly, checking cancel
// before each pass, until a pass reclaims nothing (the expunge list is
// drained or every remaining block's transaction is still active). There
// is no separate read-only probe: a store with nothing to reclaim is
// left after one write-mode pass.
func (h *Handle) Compact(cancel *pagecache.CancelToken) (incomplete, modified bool, err error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.lobs == nil {
		return false, false, nil
	}
	for {
		if cancel != nil && cancel.IsCancelled() {
			return true, modified, ftlerr.New(ftlerr.Cancelled, "logicalfile.compact", nil)
		}
		stats, err := h.lobs.Compact()
		if err != nil {
			return false, modified, err
		}
		if stats.Reclaimed == 0 {
			return false, modified, nil
		}
		modified = true
	}
}

// VerifyResult aggregates the per-subsystem verification outcomes.
type VerifyResult struct {
	Index indexfile.VerifyResult
}

// Verify iterates every sub-file and calls its own verify.
func (h *Handle) Verify() (VerifyResult, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	r, err := h.index.Verify()
	return VerifyResult{Index: r}, err
}

// RecoverAllPages forwards to every open sub-file's cache.
func (h *Handle) RecoverAllPages() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.recoverAllLocked()
}

func (h *Handle) recoverAllLocked() {
	if h.index != nil {
		h.index.RecoverAllPages()
	}
}

// FlushAllPages forwards to every open sub-file's cache.
func (h *Handle) FlushAllPages() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.flushAllLocked()
}

func (h *Handle) flushAllLocked() error {
	if h.index == nil {
		return nil
	}
	if err := h.index.FlushAllPages(); err != nil {
		return err
	}
	if h.lobs != nil {
		if err := h.lobs.Flush(); err != nil {
			return err
		}
	}
	if h.docs != nil {
		if err := h.docs.SaveRoot(); err != nil {
			return err
		}
		return h.docs.Flush()
	}
	return nil
}

// FileID returns a copy of the handle's current parameter dictionary.
func (h *Handle) FileID() fileid.FileID {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.id
}

// GetSearchParameter reports whether this file can serve req without
// the executor falling back to a full scan, per spec.md §4.8.
func (h *Handle) GetSearchParameter(req planhooks.SearchRequest) bool {
	return planhooks.GetSearchParameter(h.FileID(), req)
}

// GetProjectionParameter reports whether this file can serve req's
// column projection directly.
func (h *Handle) GetProjectionParameter(req planhooks.ProjectionRequest) bool {
	return planhooks.GetProjectionParameter(h.FileID(), req)
}

// GetSortParameter reports whether this file can serve keys without an
// external sort.
func (h *Handle) GetSortParameter(keys []planhooks.SortKey) bool {
	return planhooks.GetSortParameter(h.FileID(), keys)
}

// GetUpdateParameter reports whether this file can serve req as an
// in-place update.
func (h *Handle) GetUpdateParameter(req planhooks.UpdateRequest) bool {
	return planhooks.GetUpdateParameter(h.FileID(), req)
}

// GetLimitParameter reports whether this file can serve the given
// limit/offset pair without buffering the whole result first.
func (h *Handle) GetLimitParameter(limit, offset int64) bool {
	return planhooks.GetLimitParameter(h.FileID(), limit, offset)
}
