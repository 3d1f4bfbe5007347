package indexfile

import (
	"testing"

	"github.com/trmeister/fulltext2/pkg/fileid"
)

func newTestFile(t *testing.T) *File {
	t.Helper()
	id := fileid.New()
	f := New(t.TempDir(), id)
	if err := f.Create(); err != nil {
		t.Fatalf("create: %v", err)
	}
	return f
}

func TestCreateMountRoundTrip(t *testing.T) {
	dir := t.TempDir()
	id := fileid.New()
	f := New(dir, id)
	if err := f.Create(); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := f.Unmount(); err != nil {
		t.Fatalf("unmount: %v", err)
	}

	f2 := New(dir, id)
	if err := f2.Mount(); err != nil {
		t.Fatalf("mount: %v", err)
	}
	if f2.Btree().GetRoot() != 0 {
		t.Fatalf("expected empty root after fresh create, got %d", f2.Btree().GetRoot())
	}
}

func TestBtreeRootSurvivesRemount(t *testing.T) {
	dir := t.TempDir()
	id := fileid.New()
	f := New(dir, id)
	if err := f.Create(); err != nil {
		t.Fatalf("create: %v", err)
	}
	f.Btree().Insert([]byte("term:abc"), []byte("posting-1"))
	if err := f.SaveBtreeRoot(); err != nil {
		t.Fatalf("save root: %v", err)
	}
	if err := f.Flush(); err != nil {
		t.Fatalf("flush: %v", err)
	}
	if err := f.Unmount(); err != nil {
		t.Fatalf("unmount: %v", err)
	}

	f2 := New(dir, id)
	if err := f2.Mount(); err != nil {
		t.Fatalf("mount: %v", err)
	}
	v, ok := f2.Btree().Get([]byte("term:abc"))
	if !ok || string(v) != "posting-1" {
		t.Fatalf("expected posting to survive remount, got %q ok=%v", v, ok)
	}
}

func TestHeaderPageLookupInvariant(t *testing.T) {
	f := newTestFile(t)
	if _, err := f.GetHeaderPage(TypeNode); err == nil {
		t.Fatalf("expected Unexpected error fetching header page with wrong type")
	}
	h, err := f.GetHeaderPage(TypeBtreeHeader)
	if err != nil {
		t.Fatalf("expected header page to be fetchable with correct type: %v", err)
	}
	h.Close(false)
}

func TestLeafOverflowOtherAllocation(t *testing.T) {
	f := newTestFile(t)
	lh, err := f.AllocateLeaf()
	if err != nil {
		t.Fatalf("allocate leaf: %v", err)
	}
	if got := readType(lh.Bytes()); got != TypeLeaf {
		t.Fatalf("expected leaf page tagged TypeLeaf, got %d", got)
	}
	lh.Close(true)

	oh, err := f.AllocateOverflow()
	if err != nil {
		t.Fatalf("allocate overflow: %v", err)
	}
	if got := readType(oh.Bytes()); got != TypeOverflow {
		t.Fatalf("expected overflow page tagged TypeOverflow, got %d", got)
	}
	oh.Close(true)

	th, err := f.AllocateOther()
	if err != nil {
		t.Fatalf("allocate other: %v", err)
	}
	if got := readType(th.Bytes()); got != TypeOther {
		t.Fatalf("expected other page tagged TypeOther, got %d", got)
	}
	th.Close(true)
}
