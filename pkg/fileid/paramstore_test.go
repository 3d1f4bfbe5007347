package fileid

import "testing"

func TestParamStore_SetGetDelete(t *testing.T) {
	ps := NewParamStore()
	if err := ps.Set(ParamEntry{FileKey: "idx1", ParamKey: "delayed", Value: "Async"}); err != nil {
		t.Fatalf("Set: %v", err)
	}
	v, ok := ps.Get("idx1", "delayed")
	if !ok || v != "Async" {
		t.Fatalf("Get = %q,%v want Async,true", v, ok)
	}
	if err := ps.Delete("idx1", "delayed"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, ok := ps.Get("idx1", "delayed"); ok {
		t.Fatalf("expected entry to be gone after Delete")
	}
}

func TestParamStore_QueryByKeyValue(t *testing.T) {
	ps := NewParamStore()
	ps.Set(ParamEntry{FileKey: "idx1", ParamKey: "delayed", Value: "Async"})
	ps.Set(ParamEntry{FileKey: "idx2", ParamKey: "delayed", Value: "Async"})
	ps.Set(ParamEntry{FileKey: "idx3", ParamKey: "delayed", Value: "None"})

	got := ps.QueryByKeyValue("delayed", "Async")
	if len(got) != 2 || got[0] != "idx1" || got[1] != "idx2" {
		t.Fatalf("QueryByKeyValue = %v, want [idx1 idx2]", got)
	}
}

func TestStoreFileID(t *testing.T) {
	ps := NewParamStore()
	f, _ := ParseHint("delayed=async,sectionized=true")
	if err := StoreFileID(ps, "idx1", f); err != nil {
		t.Fatalf("StoreFileID: %v", err)
	}
	if v, ok := ps.Get("idx1", "sectionized"); !ok || v != "true" {
		t.Fatalf("sectionized = %q,%v want true,true", v, ok)
	}
}
