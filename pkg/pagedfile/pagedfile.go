// Package pagedfile implements the physical file component (C2):
// allocation, free-list recycling, mount/unmount, backup/recover, and
// sync over a {master, versionLog, syncLog} path triple. It is a direct
// generalization of the teacher's pkg/storage/kv.go (mmap + two-phase
// fsync commit) from a single B+Tree-shaped file to an arbitrary
// fixed-page-size physical file, with pkg/journal standing in for the
// version log / sync log named in spec.md §3's PhysicalFile entity.
package pagedfile

import (
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"syscall"

	"github.com/trmeister/fulltext2/pkg/ftlerr"
	"github.com/trmeister/fulltext2/pkg/journal"
)

const (
	fileSignature = "FullText2Page01\x00"
	metaPageSize  = 128
)

// PoolStrategy mirrors spec.md §3's buffering strategy.
type PoolStrategy int

const (
	Normal PoolStrategy = iota
	ReadOnlyPool
	Temporary
)

// StorageStrategy names the three files that make up one PagedFile.
type StorageStrategy struct {
	MasterPath     string
	VersionLogPath string
	SyncLogPath    string
	MaxSize        int64
	ExtensionSize  int64
}

// File is one physical paged file.
type File struct {
	Strategy StorageStrategy
	PageSz   int  // bytes per page
	Version  int  // FileId.version; selects v1 vs v2 free management
	Pool     PoolStrategy

	mu sync.Mutex

	fd     *os.File
	mmap   []byte
	mapCap int64

	flushed uint64 // number of pages flushed to disk (page 0 is the meta page)
	temp    [][]byte
	updates map[uint32][]byte

	freeV1 *FreeListV1
	freeV2 *FreeListV2

	versionLog *journal.Journal
	syncLog    *journal.Journal

	mounted bool
	failed  bool
	txSeq   uint64
}

// checkVersion implements spec.md §4.5: files older than version 4 are
// rejected at open.
func checkVersion(version int) error {
	if version < 4 {
		return ftlerr.New(ftlerr.NotSupported, "pagedfile.checkVersion", fmt.Errorf("file version %d is too old", version))
	}
	return nil
}

// usesV2 reports the physical-file category selected by
// FileId.version: v>=5 uses FreeListV2 (PageManageType2),
// else the single-level unrolled list (PageManageType), per spec §4.2.
func (f *File) usesV2() bool { return f.Version >= 5 }

// PageSize implements pagecache.Physical.
func (f *File) PageSize() int { return f.PageSz }

// Create materializes the directory and master file. Per spec.md §3,
// physical creation is deferred in the caller (LogicalFile.create only
// stages the FileId); File.Create is the point where bytes actually
// hit disk.
func (f *File) Create() error {
	if err := checkVersion(f.Version); err != nil {
		return err
	}
	dir := filepath.Dir(f.Strategy.MasterPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return ftlerr.New(ftlerr.Unexpected, "pagedfile.create", err)
	}
	return f.Mount()
}

// Destroy removes the physical file and its containing directory.
func (f *File) Destroy() error {
	f.mu.Lock()
	if f.fd != nil {
		f.unmountLocked()
	}
	f.mu.Unlock()

	for _, p := range []string{f.Strategy.MasterPath, f.Strategy.VersionLogPath, f.Strategy.SyncLogPath} {
		if p == "" {
			continue
		}
		os.Remove(p)
	}
	dir := filepath.Dir(f.Strategy.MasterPath)
	_ = os.Remove(dir) // rmdir of the (now-empty) sub-tree; ignore if non-empty
	return nil
}

// Mount attaches the file handle: opens/creates the master file, maps
// it, loads or initializes the meta page, and opens the version/sync
// logs.
func (f *File) Mount() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.mounted {
		return nil
	}

	fd, err := createFileSync(f.Strategy.MasterPath)
	if err != nil {
		return ftlerr.WithPath(ftlerr.New(ftlerr.FileNotOpen, "pagedfile.mount", err), f.Strategy.MasterPath)
	}
	f.fd = fd

	stat, err := fd.Stat()
	if err != nil {
		return ftlerr.New(ftlerr.Unexpected, "pagedfile.mount", err)
	}

	f.updates = make(map[uint32][]byte)
	f.initFreeLists()

	if stat.Size() == 0 {
		f.flushed = 1 // page 0 reserved for meta
	} else {
		mapSize := int64(64 << 20)
		if stat.Size() > mapSize {
			mapSize = stat.Size()
		}
		chunk, err := syscall.Mmap(int(fd.Fd()), 0, int(mapSize), syscall.PROT_READ, syscall.MAP_SHARED)
		if err != nil {
			return ftlerr.New(ftlerr.Unexpected, "pagedfile.mount", err)
		}
		f.mmap = chunk
		f.mapCap = mapSize
		if err := f.readMetaLocked(); err != nil {
			return err
		}
	}

	if f.Strategy.VersionLogPath != "" {
		f.versionLog = &journal.Journal{Path: f.Strategy.VersionLogPath}
		if err := f.versionLog.Open(); err != nil {
			return ftlerr.New(ftlerr.Unexpected, "pagedfile.mount", err)
		}
	}
	if f.Strategy.SyncLogPath != "" {
		f.syncLog = &journal.Journal{Path: f.Strategy.SyncLogPath}
		if err := f.syncLog.Open(); err != nil {
			return ftlerr.New(ftlerr.Unexpected, "pagedfile.mount", err)
		}
	}

	f.mounted = true
	return nil
}

func (f *File) initFreeLists() {
	getFn := func(ptr uint32) []byte { return f.pageReadLocked(ptr) }
	setFn := func(ptr uint32, node []byte) { f.stageLocked(ptr, node) }
	newFn := func(node []byte) uint32 { return f.pageAppendLocked(node) }
	if f.usesV2() {
		f.freeV2 = newFreeListV2(f.PageSz, getFn, setFn, newFn)
	} else {
		f.freeV1 = newFreeListV1(f.PageSz, getFn, setFn, newFn)
	}
}

// Unmount detaches the file handle without destroying data.
func (f *File) Unmount() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.unmountLocked()
}

func (f *File) unmountLocked() error {
	if !f.mounted {
		return nil
	}
	if f.mmap != nil {
		syscall.Munmap(f.mmap)
		f.mmap = nil
	}
	if f.versionLog != nil {
		f.versionLog.Close()
	}
	if f.syncLog != nil {
		f.syncLog.Close()
	}
	err := f.fd.Close()
	f.mounted = false
	return err
}

func (f *File) IsMounted() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.mounted
}

func (f *File) IsAccessible(force bool) bool {
	if force {
		_, err := os.Stat(f.Strategy.MasterPath)
		return err == nil
	}
	return f.IsMounted()
}

func (f *File) GetFileSize() (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	stat, err := f.fd.Stat()
	if err != nil {
		return 0, ftlerr.New(ftlerr.Unexpected, "pagedfile.getFileSize", err)
	}
	return stat.Size(), nil
}

// ReadPage implements pagecache.Physical.
func (f *File) ReadPage(id uint32) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]byte(nil), f.pageReadLocked(id)...), nil
}

func (f *File) pageReadLocked(id uint32) []byte {
	if page, ok := f.updates[id]; ok {
		return page
	}
	if uint64(id) >= f.flushed {
		idx := uint64(id) - f.flushed
		if idx < uint64(len(f.temp)) {
			return f.temp[idx]
		}
	}
	offset := int64(id) * int64(f.PageSz)
	if offset+int64(f.PageSz) <= int64(len(f.mmap)) {
		return f.mmap[offset : offset+int64(f.PageSz)]
	}
	panic(fmt.Sprintf("pagedfile: bad page id %d (flushed=%d temp=%d)", id, f.flushed, len(f.temp)))
}

// WritePage implements pagecache.Physical: an in-place update of a
// page, staged until Commit.
func (f *File) WritePage(id uint32, data []byte) error {
	if len(data) != f.PageSz {
		return ftlerr.New(ftlerr.BadArgument, "pagedfile.writePage", fmt.Errorf("page size mismatch"))
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := append([]byte(nil), data...)
	f.stageLocked(id, cp)
	if f.versionLog != nil {
		f.txSeq++
		f.versionLog.Append(journal.Entry{LSN: f.versionLog.NextLSN(), TxnID: f.txSeq, OpType: journal.OpPageWrite, PageID: id, Payload: cp})
	}
	return nil
}

// stageLocked records new content for page id until Commit. A page
// allocated since the last Commit is replaced in its pending slot, so
// the pending copy written at Commit carries the new content; any other
// page is staged as an in-place update.
func (f *File) stageLocked(id uint32, data []byte) {
	if uint64(id) >= f.flushed && uint64(id)-f.flushed < uint64(len(f.temp)) {
		f.temp[uint64(id)-f.flushed] = data
		return
	}
	f.updates[id] = data
}

func (f *File) pageAppendLocked(node []byte) uint32 {
	id := uint32(f.flushed) + uint32(len(f.temp))
	f.temp = append(f.temp, node)
	return id
}

// AllocatePage implements pagecache.Physical: pulls from the free list
// before extending the file.
func (f *File) AllocatePage() (uint32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var ptr uint32
	if f.usesV2() {
		ptr = f.freeV2.PopHead()
	} else {
		ptr = f.freeV1.PopHead()
	}
	if ptr != 0 {
		f.updates[ptr] = make([]byte, f.PageSz)
		return ptr, nil
	}
	node := make([]byte, f.PageSz)
	return f.pageAppendLocked(node), nil
}

// FreePage implements pagecache.Physical: only already-flushed pages
// may be recycled; uncommitted temp pages are dropped on revert instead.
func (f *File) FreePage(id uint32) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if uint64(id) < f.flushed {
		if f.usesV2() {
			f.freeV2.PushTail(id)
		} else {
			f.freeV1.PushTail(id)
		}
		if f.versionLog != nil {
			f.txSeq++
			f.versionLog.Append(journal.Entry{LSN: f.versionLog.NextLSN(), TxnID: f.txSeq, OpType: journal.OpPageFree, PageID: id})
		}
	}
	return nil
}

// GetFreePage reports whether a page is currently available for reuse
// without consuming it (used by verify/diagnostics).
func (f *File) GetFreePage() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.usesV2() {
		return f.freeV2.Total()
	}
	return f.freeV1.Total()
}

func (f *File) saveMetaLocked() []byte {
	data := make([]byte, metaPageSize)
	copy(data[:16], []byte(fileSignature))
	binary.LittleEndian.PutUint64(data[16:], f.flushed)
	binary.LittleEndian.PutUint32(data[24:], uint32(f.Version))
	var freeData []byte
	if f.usesV2() {
		freeData = f.freeV2.Serialize()
	} else {
		freeData = f.freeV1.Serialize()
	}
	copy(data[32:], freeData)
	return data
}

func (f *File) loadMetaLocked(data []byte) {
	f.flushed = binary.LittleEndian.Uint64(data[16:])
	if f.usesV2() {
		f.freeV2.Deserialize(data[32:72])
	} else {
		f.freeV1.Deserialize(data[32:72])
	}
}

func (f *File) readMetaLocked() error {
	if len(f.mmap) < metaPageSize {
		return ftlerr.New(ftlerr.LogItemCorrupted, "pagedfile.readMeta", fmt.Errorf("file too small for meta page"))
	}
	data := f.mmap[:metaPageSize]
	sig := string(data[:16])
	if sig[:len(fileSignature)] != fileSignature {
		return ftlerr.New(ftlerr.LogItemCorrupted, "pagedfile.readMeta", fmt.Errorf("bad signature %q", sig))
	}
	f.loadMetaLocked(data)
	return nil
}

// Commit performs the two-phase fsync update: write staged pages, fsync,
// write the meta page, fsync, exactly mirroring kv.go's updateFile.
func (f *File) Commit() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.failed {
		if err := f.writeMetaLocked(f.saveMetaLocked()); err != nil {
			return err
		}
		if err := f.fd.Sync(); err != nil {
			return ftlerr.New(ftlerr.Unexpected, "pagedfile.commit", err)
		}
		f.failed = false
	}

	var savedMaxSeq uint64
	if f.usesV2() {
		savedMaxSeq = f.freeV2.groups.maxSeq
		f.freeV2.SetMaxSeq()
	} else {
		savedMaxSeq = f.freeV1.maxSeq
		f.freeV1.SetMaxSeq()
	}

	err := f.updateFileLocked()
	if err != nil {
		if f.usesV2() {
			f.freeV2.groups.maxSeq = savedMaxSeq
		} else {
			f.freeV1.maxSeq = savedMaxSeq
		}
		f.temp = f.temp[:0]
		f.updates = make(map[uint32][]byte)
		f.failed = true
		return err
	}

	if f.usesV2() {
		f.freeV2.groups.maxSeq = f.freeV2.groups.tailSeq
	} else {
		f.freeV1.maxSeq = f.freeV1.tailSeq
	}
	if f.versionLog != nil {
		f.txSeq++
		f.versionLog.Append(journal.Entry{LSN: f.versionLog.NextLSN(), TxnID: f.txSeq, OpType: journal.OpCommit})
		f.versionLog.Fsync()
	}
	return nil
}

func (f *File) updateFileLocked() error {
	if err := f.writePagesLocked(); err != nil {
		return err
	}
	if err := f.fd.Sync(); err != nil {
		return ftlerr.New(ftlerr.Unexpected, "pagedfile.commit", err)
	}
	if err := f.writeMetaLocked(f.saveMetaLocked()); err != nil {
		return err
	}
	if err := f.fd.Sync(); err != nil {
		return ftlerr.New(ftlerr.Unexpected, "pagedfile.commit", err)
	}
	return nil
}

func (f *File) writePagesLocked() error {
	for ptr, page := range f.updates {
		if _, err := f.fd.WriteAt(page, int64(ptr)*int64(f.PageSz)); err != nil {
			return ftlerr.New(ftlerr.Unexpected, "pagedfile.writePages", err)
		}
	}
	f.updates = make(map[uint32][]byte)

	if len(f.temp) == 0 {
		return nil
	}
	size := (int64(f.flushed) + int64(len(f.temp))) * int64(f.PageSz)
	if err := f.extendMmapLocked(size); err != nil {
		return err
	}
	offset := int64(f.flushed) * int64(f.PageSz)
	for _, page := range f.temp {
		if _, err := f.fd.WriteAt(page, offset); err != nil {
			return ftlerr.New(ftlerr.Unexpected, "pagedfile.writePages", err)
		}
		offset += int64(f.PageSz)
	}
	f.flushed += uint64(len(f.temp))
	f.temp = f.temp[:0]
	return nil
}

func (f *File) writeMetaLocked(data []byte) error {
	if _, err := f.fd.WriteAt(data, 0); err != nil {
		return ftlerr.New(ftlerr.Unexpected, "pagedfile.writeMeta", err)
	}
	return nil
}

func (f *File) extendMmapLocked(size int64) error {
	if size <= f.mapCap {
		return nil
	}
	alloc := f.mapCap
	if alloc < 64<<20 {
		alloc = 64 << 20
	}
	for f.mapCap+alloc < size {
		alloc *= 2
	}
	chunk, err := syscall.Mmap(int(f.fd.Fd()), f.mapCap, int(alloc), syscall.PROT_READ, syscall.MAP_SHARED)
	if err != nil {
		return ftlerr.New(ftlerr.Unexpected, "pagedfile.extendMmap", err)
	}
	if f.mmap == nil {
		f.mmap = chunk
	} else {
		// syscall.Mmap regions are independent; keep the first mapping
		// and re-map to cover the new extent instead of chaining chunks,
		// since File's page reads assume one contiguous view.
		syscall.Munmap(f.mmap)
		full, err := syscall.Mmap(int(f.fd.Fd()), 0, int(f.mapCap+alloc), syscall.PROT_READ, syscall.MAP_SHARED)
		if err != nil {
			return ftlerr.New(ftlerr.Unexpected, "pagedfile.extendMmap", err)
		}
		f.mmap = full
	}
	f.mapCap += alloc
	return nil
}

// Sync flushes any staged writes and reports incomplete/modified, per
// spec's sync(&incomplete, &modified) contract.
func (f *File) Sync() (incomplete, modified bool, err error) {
	f.mu.Lock()
	modified = len(f.updates) > 0 || len(f.temp) > 0
	f.mu.Unlock()
	if !modified {
		return false, false, nil
	}
	if err := f.Commit(); err != nil {
		return true, modified, err
	}
	return false, modified, nil
}

// Move migrates master/versionLog/syncLog to a new directory, with
// compensating rollback on failure via an explicit step counter (spec
// §4.2 failure-handling note).
func (f *File) Move(newDir string) error {
	f.mu.Lock()
	wasMounted := f.mounted
	if wasMounted {
		f.unmountLocked()
	}
	f.mu.Unlock()

	oldDir := filepath.Dir(f.Strategy.MasterPath)
	if oldDir == newDir {
		if wasMounted {
			return f.Mount()
		}
		return nil
	}

	if err := os.MkdirAll(newDir, 0o755); err != nil {
		return ftlerr.New(ftlerr.Unexpected, "pagedfile.move", err)
	}

	// renameAll moves path, plus the numbered files a journal keeps
	// beside it (path.000, path.001, ...), into dir.
	renameAll := func(path, dir string) error {
		names, _ := filepath.Glob(path + ".[0-9]*")
		for _, n := range append(names, path) {
			if err := os.Rename(n, filepath.Join(dir, filepath.Base(n))); err != nil && !os.IsNotExist(err) {
				return err
			}
		}
		return nil
	}

	moved := 0
	rollback := func() {
		paths := []*string{&f.Strategy.MasterPath, &f.Strategy.VersionLogPath, &f.Strategy.SyncLogPath}
		for i := 0; i < moved; i++ {
			p := paths[i]
			if *p == "" {
				continue
			}
			base := filepath.Base(*p)
			renameAll(filepath.Join(newDir, base), oldDir)
		}
	}

	paths := []*string{&f.Strategy.MasterPath, &f.Strategy.VersionLogPath, &f.Strategy.SyncLogPath}
	for _, p := range paths {
		if *p == "" {
			moved++
			continue
		}
		base := filepath.Base(*p)
		newPath := filepath.Join(newDir, base)
		if err := renameAll(*p, newDir); err != nil {
			rollback()
			return ftlerr.New(ftlerr.Unexpected, "pagedfile.move", err)
		}
		*p = newPath
		moved++
	}
	os.Remove(oldDir)

	if wasMounted {
		return f.Mount()
	}
	return nil
}

// StartBackup fsyncs the version log so a backup copy sees every entry
// written so far. restorable is not used, and no log is truncated.
func (f *File) StartBackup(restorable bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.versionLog == nil {
		return ftlerr.New(ftlerr.NotSupported, "pagedfile.startBackup", fmt.Errorf("no version log configured"))
	}
	return f.versionLog.Fsync()
}

// EndBackup is the matching bookend to StartBackup.
func (f *File) EndBackup() error { return nil }

// Recover replays the version log's committed page writes/frees back
// into the mounted file (crash recovery / restore to latest point).
func (f *File) Recover(point uint64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.versionLog == nil {
		return nil
	}
	rec := journal.NewRecovery(f.versionLog)
	return rec.Recover(func(op journal.OpType, pageID uint32, payload []byte) error {
		switch op {
		case journal.OpPageWrite:
			f.updates[pageID] = append([]byte(nil), payload...)
		case journal.OpPageFree:
			if f.usesV2() {
				f.freeV2.PushTail(pageID)
			} else {
				f.freeV1.PushTail(pageID)
			}
		}
		return nil
	})
}

// Restore replays the sync log's committed page writes instead of the
// version log's. point is not used: every committed write in the sync
// log is replayed.
func (f *File) Restore(point uint64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.syncLog == nil {
		return nil
	}
	rec := journal.NewRecovery(f.syncLog)
	return rec.Recover(func(op journal.OpType, pageID uint32, payload []byte) error {
		if op == journal.OpPageWrite {
			f.updates[pageID] = append([]byte(nil), payload...)
		}
		return nil
	})
}

// VerifyResult reports basic structural checks run by Verify.
type VerifyResult struct {
	PagesChecked int
	Corrupt      []uint32
}

// Verify walks every flushed page and checks it is the configured page
// size (a stand-in for deeper structural checks performed by the
// owning IndexFile/LobStore, which know the page's Type tag).
func (f *File) Verify() (VerifyResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	res := VerifyResult{}
	for id := uint64(1); id < f.flushed; id++ {
		res.PagesChecked++
		offset := int64(id) * int64(f.PageSz)
		if offset+int64(f.PageSz) > int64(len(f.mmap)) {
			res.Corrupt = append(res.Corrupt, uint32(id))
		}
	}
	return res, nil
}

func createFileSync(path string) (*os.File, error) {
	fd, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open file: %w", err)
	}
	dirfd, err := os.Open(filepath.Dir(path))
	if err != nil {
		fd.Close()
		return nil, fmt.Errorf("open directory: %w", err)
	}
	defer dirfd.Close()
	if err := dirfd.Sync(); err != nil {
		fd.Close()
		return nil, fmt.Errorf("fsync directory: %w", err)
	}
	return fd, nil
}
