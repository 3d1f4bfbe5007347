package fileid

import (
	"errors"
	"testing"

	"github.com/trmeister/fulltext2/pkg/ftlerr"
)

// Scenario 1 (spec.md §8): delayed=(async,vacuum=false) yields
// {delayedMode: Async, vacuum: false}.
func TestParseHint_DelayedAsyncVacuumFalse(t *testing.T) {
	f, err := ParseHint("delayed=(async,vacuum=false)")
	if err != nil {
		t.Fatalf("ParseHint: %v", err)
	}
	if f.Delayed != DelayedAsync {
		t.Errorf("Delayed = %v, want DelayedAsync", f.Delayed)
	}
	if f.Vacuum {
		t.Errorf("Vacuum = true, want false")
	}
}

// Scenario 2 (spec.md §8): inverted=(indexing=Dual,normalized=true,
// nolocation=true) must fail with NotSupported (invariant §3(2)).
func TestParseHint_DualNolocationRejected(t *testing.T) {
	_, err := ParseHint("inverted=(indexing=Dual,normalized=true,nolocation=true)")
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	if !errors.Is(err, ftlerr.ErrNotSupported) {
		t.Errorf("got %v, want NotSupported", err)
	}
}

func TestParseHint_Defaults(t *testing.T) {
	f, err := ParseHint("")
	if err != nil {
		t.Fatalf("ParseHint: %v", err)
	}
	if f.Delayed != DelayedNone {
		t.Errorf("Delayed = %v, want None", f.Delayed)
	}
	if !f.Vacuum {
		t.Errorf("Vacuum = false, want true (default)")
	}
	if f.Indexing != Ngram {
		t.Errorf("Indexing = %v, want Ngram", f.Indexing)
	}
}

func TestParseHint_DelayedSyncLiteral(t *testing.T) {
	f, err := ParseHint("delayed=sync")
	if err != nil {
		t.Fatalf("ParseHint: %v", err)
	}
	if f.Delayed != DelayedSync {
		t.Errorf("Delayed = %v, want Sync", f.Delayed)
	}
}

func TestParseHint_DelayedUnknownChildRejected(t *testing.T) {
	_, err := ParseHint("delayed=(bogus=true)")
	if !errors.Is(err, ftlerr.ErrSQLSyntaxError) {
		t.Errorf("got %v, want SQLSyntaxError", err)
	}
}

func TestParseHint_NormalizedUnknownChildIgnored(t *testing.T) {
	f, err := ParseHint("inverted=(normalized=(bogus=true))")
	if err != nil {
		t.Fatalf("ParseHint: %v", err)
	}
	if !f.Normalize {
		t.Errorf("Normalize = false, want true (presence of child group enables normalization)")
	}
}

func TestParseHint_DistributeOutOfRange(t *testing.T) {
	_, err := ParseHint("inverted=(distribute=150)")
	if !errors.Is(err, ftlerr.ErrNotSupported) {
		t.Errorf("got %v, want NotSupported", err)
	}
}

func TestParseHint_ClusteredDefaultFeature(t *testing.T) {
	f, err := ParseHint("inverted=(indexing=Dual,clustered=())")
	if err != nil {
		t.Fatalf("ParseHint: %v", err)
	}
	if !f.Clustered || f.ClusterFeature != 10 {
		t.Errorf("Clustered=%v ClusterFeature=%d, want true/10", f.Clustered, f.ClusterFeature)
	}
}

func TestParseHint_ClusteredBadFeatureRejected(t *testing.T) {
	_, err := ParseHint("inverted=(clustered=(feature=0))")
	if !errors.Is(err, ftlerr.ErrSQLSyntaxError) {
		t.Errorf("got %v, want SQLSyntaxError", err)
	}
}

func TestVerifyKeys_Sectionized(t *testing.T) {
	f, _ := ParseHint("sectionized=true")
	if err := VerifyKeys(f, []KeyType{KeyArrayOfString}); err != nil {
		t.Errorf("VerifyKeys: %v", err)
	}
	if err := VerifyKeys(f, []KeyType{KeyScalar}); err == nil {
		t.Errorf("expected VerifyKeys to reject a scalar key for sectionized")
	}
}
