package planhooks

import (
	"testing"

	"github.com/trmeister/fulltext2/pkg/fileid"
)

func TestGetSearchParameter(t *testing.T) {
	plain := fileid.New()
	if !GetSearchParameter(plain, SearchRequest{}) {
		t.Fatalf("whole-column search should always be servable")
	}
	if GetSearchParameter(plain, SearchRequest{Section: "body"}) {
		t.Fatalf("non-sectionized file should refuse a section-scoped search")
	}

	sectioned := fileid.New()
	sectioned.Sectionized = true
	if !GetSearchParameter(sectioned, SearchRequest{Section: "body"}) {
		t.Fatalf("sectionized file should serve a section-scoped search")
	}
}

func TestGetProjectionParameter(t *testing.T) {
	id := fileid.New()
	if GetProjectionParameter(id, ProjectionRequest{}) {
		t.Fatalf("empty projection should be refused")
	}
	if !GetProjectionParameter(id, ProjectionRequest{Fields: []int{0}}) {
		t.Fatalf("non-empty projection should be servable")
	}
}

func TestGetSortParameter(t *testing.T) {
	id := fileid.New()
	if GetSortParameter(id, []SortKey{{Field: ScoreField, Ascending: false}}) {
		t.Fatalf("file without a score column cannot sort by score")
	}
	id.ScoreColumn = true
	if !GetSortParameter(id, []SortKey{{Field: ScoreField, Ascending: false}}) {
		t.Fatalf("score-descending should be servable with a score column")
	}
	if GetSortParameter(id, []SortKey{{Field: ScoreField, Ascending: true}}) {
		t.Fatalf("ascending score sort is not supported")
	}
	if GetSortParameter(id, []SortKey{{Field: 3}}) {
		t.Fatalf("arbitrary column sort is not supported")
	}
}

func TestGetUpdateParameter(t *testing.T) {
	id := fileid.New()
	if !GetUpdateParameter(id, UpdateRequest{Fields: []int{0}}) {
		t.Fatalf("writable file should accept an in-place update")
	}
	id.ReadOnly = true
	if GetUpdateParameter(id, UpdateRequest{Fields: []int{0}}) {
		t.Fatalf("read-only file must refuse updates")
	}
}

func TestGetLimitParameter(t *testing.T) {
	id := fileid.New()
	if !GetLimitParameter(id, 10, 0) {
		t.Fatalf("plain limit should be servable")
	}
	if GetLimitParameter(id, -1, 0) {
		t.Fatalf("negative limit should be refused")
	}
	id.Clustered = true
	if GetLimitParameter(id, 10, 5) {
		t.Fatalf("clustered file cannot serve a nonzero offset")
	}
	if !GetLimitParameter(id, 10, 0) {
		t.Fatalf("clustered file can still serve a zero offset")
	}
}
