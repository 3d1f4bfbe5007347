package logicalfile

import (
	"testing"

	"github.com/trmeister/fulltext2/pkg/delayedmerge"
	"github.com/trmeister/fulltext2/pkg/fileid"
	"github.com/trmeister/fulltext2/pkg/kwic"
	"github.com/trmeister/fulltext2/pkg/planhooks"
)

func newOpenHandle(t *testing.T) *Handle {
	t.Helper()
	id := fileid.New()
	h, err := Create(t.TempDir(), id)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := h.Open(OpenOption{Mode: Update}, nil); err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { _ = h.Close() })
	return h
}

func TestInsertGetRoundTrip(t *testing.T) {
	h := newOpenHandle(t)

	doc, err := h.Insert(Tuple{Text: []string{"the quick brown fox"}})
	if err != nil {
		t.Fatalf("insert: %v", err)
	}
	tup, _, err := h.Get(doc, kwic.Request{})
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if tup.Text[0] != "the quick brown fox" {
		t.Fatalf("got %q", tup.Text[0])
	}
}

func TestUpdateThenGet(t *testing.T) {
	h := newOpenHandle(t)
	doc, err := h.Insert(Tuple{Text: []string{"original"}})
	if err != nil {
		t.Fatalf("insert: %v", err)
	}
	if err := h.Update(doc, Tuple{Text: []string{"replaced"}}); err != nil {
		t.Fatalf("update: %v", err)
	}
	tup, _, err := h.Get(doc, kwic.Request{})
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if tup.Text[0] != "replaced" {
		t.Fatalf("got %q", tup.Text[0])
	}
}

func TestExpungeThenGetFails(t *testing.T) {
	h := newOpenHandle(t)
	doc, err := h.Insert(Tuple{Text: []string{"gone soon"}})
	if err != nil {
		t.Fatalf("insert: %v", err)
	}
	if err := h.Expunge(doc); err != nil {
		t.Fatalf("expunge: %v", err)
	}
	if _, _, err := h.Get(doc, kwic.Request{}); err == nil {
		t.Fatalf("expected error reading expunged document")
	}
}

func TestGetWithKwicCondition(t *testing.T) {
	h := newOpenHandle(t)
	doc, err := h.Insert(Tuple{Text: []string{"abcXYZdefXYZghi"}})
	if err != nil {
		t.Fatalf("insert: %v", err)
	}
	cond := kwic.NewCondition([]kwic.Item{{Term: &kwic.SearchTerm{Text: "XYZ"}}}, nil, 16)
	h.SetCondition(cond, kwic.SimpleTokenizer{})

	_, snippet, err := h.Get(doc, kwic.Request{Size: 7, StartTag: "<b>", EndTag: "</b>", Ellipsis: "..."})
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if snippet == "" {
		t.Fatalf("expected non-empty snippet")
	}
}

func TestLobLocatorRoundTrip(t *testing.T) {
	h := newOpenHandle(t)
	id, err := h.InsertLob([]byte("hello world"))
	if err != nil {
		t.Fatalf("insert lob: %v", err)
	}
	loc := h.GetLocator(id)

	n, err := loc.Length()
	if err != nil {
		t.Fatalf("length: %v", err)
	}
	if n != len("hello world") {
		t.Fatalf("length = %d", n)
	}

	if err := loc.Append([]byte("!")); err != nil {
		t.Fatalf("append: %v", err)
	}
	got, err := loc.Get(1, -1)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if string(got) != "hello world!" {
		t.Fatalf("got %q", got)
	}

	if err := loc.Replace(1, []byte("HELLO")); err != nil {
		t.Fatalf("replace: %v", err)
	}
	got, err = loc.Get(1, -1)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if string(got) != "HELLO world!" {
		t.Fatalf("got %q", got)
	}

	if err := loc.Truncate(5); err != nil {
		t.Fatalf("truncate: %v", err)
	}
	got, err = loc.Get(1, -1)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if string(got) != "HELLO" {
		t.Fatalf("got %q", got)
	}
}

func TestBatchModeSuppressesDiscardJob(t *testing.T) {
	id := fileid.New()
	id.Delayed = fileid.DelayedAsync
	h, err := Create(t.TempDir(), id)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	pool := delayedmerge.New(1,
		func(string) (int, error) { return 0, nil },
		func(string) (int, error) { return 0, nil })
	defer pool.Close()

	if err := h.Open(OpenOption{Mode: Batch}, pool); err != nil {
		t.Fatalf("open: %v", err)
	}
	defer h.Close()

	if _, err := h.Insert(Tuple{Text: []string{"batched"}}); err != nil {
		t.Fatalf("insert: %v", err)
	}
	select {
	case <-pool.Results():
		t.Fatalf("expected no merge job enqueued in batch mode")
	default:
	}
}

func TestMountUnmountRoundTrip(t *testing.T) {
	dir := t.TempDir()
	id := fileid.New()
	h, err := Create(dir, id)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := h.Open(OpenOption{Mode: Update}, nil); err != nil {
		t.Fatalf("open: %v", err)
	}
	if _, err := h.Insert(Tuple{Text: []string{"persisted"}}); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if err := h.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := h.Unmount(); err != nil {
		t.Fatalf("unmount: %v", err)
	}
}

func TestPlanningHooksReflectFileID(t *testing.T) {
	h := newOpenHandle(t)
	defer h.Close()

	if !h.GetSearchParameter(planhooks.SearchRequest{}) {
		t.Fatalf("whole-column search should be servable")
	}
	if h.GetProjectionParameter(planhooks.ProjectionRequest{}) {
		t.Fatalf("empty projection should be refused")
	}
	if !h.GetUpdateParameter(planhooks.UpdateRequest{Fields: []int{0}}) {
		t.Fatalf("writable handle should accept an in-place update")
	}
	if !h.GetLimitParameter(10, 0) {
		t.Fatalf("plain limit should be servable")
	}
	if h.GetLimitParameter(-1, 0) {
		t.Fatalf("negative limit should be refused")
	}
}
