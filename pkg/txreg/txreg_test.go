package txreg

import "testing"

func TestActiveUntilCommit(t *testing.T) {
	r := NewRegistry()
	tx := r.Begin()
	if !r.IsActive(tx) {
		t.Fatalf("expected newly begun tx to be active")
	}
	r.Commit(tx)
	if r.IsActive(tx) {
		t.Fatalf("expected committed tx to no longer be active")
	}
}

func TestUnknownTxIsNotActive(t *testing.T) {
	r := NewRegistry()
	if r.IsActive(999) {
		t.Fatalf("expected unknown tx id to be reported inactive")
	}
}

func TestForgetRemovesRecord(t *testing.T) {
	r := NewRegistry()
	tx := r.Begin()
	r.Forget(tx)
	if _, ok := r.Get(tx); ok {
		t.Fatalf("expected forgotten tx to be gone")
	}
}
