package lob

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/trmeister/fulltext2/pkg/pagedfile"
	"github.com/trmeister/fulltext2/pkg/txreg"
)

func newTestStore(t *testing.T, reg *txreg.Registry) *Store {
	t.Helper()
	dir := t.TempDir()
	phys := &pagedfile.File{
		Strategy: pagedfile.StorageStrategy{
			MasterPath:     filepath.Join(dir, "lob", "master"),
			VersionLogPath: filepath.Join(dir, "lob", "version.log"),
		},
		PageSz:  4096,
		Version: 5,
	}
	s := NewStore(phys, 8, reg)
	if err := s.Create(); err != nil {
		t.Fatalf("Create: %v", err)
	}
	return s
}

func TestStore_InsertGetRoundTrip(t *testing.T) {
	s := newTestStore(t, nil)
	data := []byte("hello lob store")
	id, err := s.Insert(data)
	if err != nil {
		t.Fatalf("Insert: %v", err)
	}
	got, err := s.Get(id)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !bytes.Equal(got, data) {
		t.Fatalf("Get = %q, want %q", got, data)
	}
}

// Scenario 3 (spec.md §8): insert, expunge, compact — the object is
// gone from Get, and reclaimed once its owning transaction is no
// longer active.
func TestStore_InsertExpungeCompact(t *testing.T) {
	reg := txreg.NewRegistry()
	s := newTestStore(t, reg)

	tx := reg.Begin()
	id, err := s.Insert([]byte("to be expunged"))
	if err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if err := s.Expunge(id, tx); err != nil {
		t.Fatalf("Expunge: %v", err)
	}
	if _, err := s.Get(id); err == nil {
		t.Fatalf("expected Get to fail on an expunged object")
	}

	stats, err := s.Compact()
	if err != nil {
		t.Fatalf("Compact: %v", err)
	}
	if stats.Reclaimed != 0 || stats.Remaining != 1 {
		t.Fatalf("Compact while tx active = %+v, want Reclaimed=0 Remaining=1", stats)
	}

	reg.Commit(tx)
	stats, err = s.Compact()
	if err != nil {
		t.Fatalf("Compact: %v", err)
	}
	if stats.Reclaimed != 1 || stats.Remaining != 0 {
		t.Fatalf("Compact after commit = %+v, want Reclaimed=1 Remaining=0", stats)
	}
}

func TestStore_UndoExpunge(t *testing.T) {
	s := newTestStore(t, nil)
	data := []byte("undo me")
	id, err := s.Insert(data)
	if err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if err := s.Expunge(id, 1); err != nil {
		t.Fatalf("Expunge: %v", err)
	}
	if err := s.UndoExpunge(id); err != nil {
		t.Fatalf("UndoExpunge: %v", err)
	}
	got, err := s.Get(id)
	if err != nil {
		t.Fatalf("Get after UndoExpunge: %v", err)
	}
	if !bytes.Equal(got, data) {
		t.Fatalf("Get = %q, want %q", got, data)
	}
}

func TestStore_ReplaceAppendTruncate(t *testing.T) {
	s := newTestStore(t, nil)
	id, err := s.Insert([]byte("abc"))
	if err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if err := s.Append(id, []byte("def")); err != nil {
		t.Fatalf("Append: %v", err)
	}
	got, _ := s.Get(id)
	if !bytes.Equal(got, []byte("abcdef")) {
		t.Fatalf("Get after Append = %q, want abcdef", got)
	}
	if err := s.Truncate(id, 3); err != nil {
		t.Fatalf("Truncate: %v", err)
	}
	got, _ = s.Get(id)
	if !bytes.Equal(got, []byte("abc")) {
		t.Fatalf("Get after Truncate = %q, want abc", got)
	}
}

// Scenario (spec.md §8): for every insert; update(b); undoUpdate,
// get() equals the original value, since undoUpdate restores the
// pre-image Update staged rather than relying on a caller-supplied copy.
func TestStore_UpdateUndoUpdateRoundTrip(t *testing.T) {
	s := newTestStore(t, nil)
	original := []byte("original value")
	id, err := s.Insert(original)
	if err != nil {
		t.Fatalf("Insert: %v", err)
	}

	if err := s.Update(id, 1, []byte("replacement value")); err != nil {
		t.Fatalf("Update: %v", err)
	}
	got, err := s.Get(id)
	if err != nil {
		t.Fatalf("Get after Update: %v", err)
	}
	if !bytes.Equal(got, []byte("replacement value")) {
		t.Fatalf("Get after Update = %q, want %q", got, "replacement value")
	}

	if err := s.UndoUpdate(id); err != nil {
		t.Fatalf("UndoUpdate: %v", err)
	}
	got, err = s.Get(id)
	if err != nil {
		t.Fatalf("Get after UndoUpdate: %v", err)
	}
	if !bytes.Equal(got, original) {
		t.Fatalf("Get after UndoUpdate = %q, want %q", got, original)
	}

	// The pre-image Block is fully reclaimed, not left pending.
	if err := s.UndoUpdate(id); err == nil {
		t.Fatalf("expected second UndoUpdate to fail: no update is pending")
	}
}

// A Compact between Update and UndoUpdate must not touch the pre-image
// Block Update staged: its owning transaction (the one passed to
// Update) is still active.
func TestStore_UpdateSurvivesCompactUntilUndo(t *testing.T) {
	reg := txreg.NewRegistry()
	s := newTestStore(t, reg)
	tx := reg.Begin()

	id, err := s.Insert([]byte("v1"))
	if err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if err := s.Update(id, tx, []byte("v2")); err != nil {
		t.Fatalf("Update: %v", err)
	}

	stats, err := s.Compact()
	if err != nil {
		t.Fatalf("Compact: %v", err)
	}
	if stats.Reclaimed != 0 || stats.Remaining != 1 {
		t.Fatalf("Compact while update tx active = %+v, want Reclaimed=0 Remaining=1", stats)
	}

	if err := s.UndoUpdate(id); err != nil {
		t.Fatalf("UndoUpdate: %v", err)
	}
	got, err := s.Get(id)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !bytes.Equal(got, []byte("v1")) {
		t.Fatalf("Get after UndoUpdate = %q, want v1", got)
	}
}

// Objects large enough to need compression and to span several
// dataPages must still round-trip exactly.
func TestStore_LargeCompressibleValue(t *testing.T) {
	s := newTestStore(t, nil)
	data := bytes.Repeat([]byte("the quick brown fox jumps over the lazy dog. "), 500)
	id, err := s.Insert(data)
	if err != nil {
		t.Fatalf("Insert: %v", err)
	}
	got, err := s.Get(id)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !bytes.Equal(got, data) {
		t.Fatalf("round trip mismatch: got %d bytes, want %d", len(got), len(data))
	}
}

func TestStore_ManyObjectsSpanMultipleDirPages(t *testing.T) {
	s := newTestStore(t, nil)
	var ids []ObjectID
	for i := 0; i < 300; i++ {
		id, err := s.Insert([]byte{byte(i), byte(i >> 8)})
		if err != nil {
			t.Fatalf("Insert #%d: %v", i, err)
		}
		ids = append(ids, id)
	}
	for i, id := range ids {
		got, err := s.Get(id)
		if err != nil {
			t.Fatalf("Get #%d: %v", i, err)
		}
		if got[0] != byte(i) || got[1] != byte(i>>8) {
			t.Fatalf("Get #%d = %v, want [%d %d]", i, got, byte(i), byte(i>>8))
		}
	}
}
