// Package planhooks implements the five get*Parameter negotiation
// hooks of C8's LogicalFile surface (spec.md §4.8): query-planning
// callbacks the external SQL analyzer consults before it commits to
// pushing a search, projection, sort, update, or limit clause down into
// this file, each answering "can I serve this shape" rather than
// executing anything. It is grounded on the overall orchestration shape
// of pkg/query.Engine (teacher) — narrowed from "execute a query across
// multiple stores" to "answer one capability question against one open
// file" — since the external planner itself (Statement/Analysis/Plan)
// is explicitly out of scope per spec.md §1.
package planhooks

import "github.com/trmeister/fulltext2/pkg/fileid"

// SearchRequest names the search-side shape the planner wants to push
// down: a free-text predicate plus, for sectionized columns, the
// section it targets.
type SearchRequest struct {
	Section string // empty for non-sectionized columns
}

// GetSearchParameter reports whether this file can serve req as a
// pushed-down predicate. A sectionized column can only serve a search
// naming one of its sections (or none, meaning "whole column");
// anything else must fall back to the planner's own row filter.
func GetSearchParameter(id fileid.FileID, req SearchRequest) bool {
	if req.Section == "" {
		return true
	}
	return id.Sectionized
}

// ProjectionRequest names the field indices the caller wants returned.
type ProjectionRequest struct {
	Fields []int
}

// GetProjectionParameter reports whether this file can restrict its
// output to exactly req.Fields server-side. The engine always can,
// since Get already accepts a field-select vector (spec.md §4.8's
// OpenOption.FieldSelect) — the hook exists so the planner can skip a
// client-side projection step when it returns true, which is always,
// provided the request names at least one field.
func GetProjectionParameter(id fileid.FileID, req ProjectionRequest) bool {
	return len(req.Fields) > 0
}

// SortKey is one column the caller wants the result ordered by.
type SortKey struct {
	Field     int
	Ascending bool
}

// GetSortParameter reports whether this file can deliver rows
// pre-sorted by keys. A FullText2 index only ever produces
// relevance-ranked output (the score column, when present) — it cannot
// honor an arbitrary column sort without materializing and sorting the
// whole result set itself, which defeats the point of pushing sort
// down. It answers true only for the degenerate "sort by score
// descending" request when the file carries a score column.
func GetSortParameter(id fileid.FileID, keys []SortKey) bool {
	if !id.ScoreColumn {
		return false
	}
	if len(keys) != 1 {
		return false
	}
	return keys[0].Field == ScoreField && !keys[0].Ascending
}

// ScoreField is the reserved field index representing the search-score
// pseudo-column, mirrored from spec.md §3's "score-column flag".
const ScoreField = -1

// UpdateRequest names the fields an UPDATE statement wants to modify
// in place.
type UpdateRequest struct {
	Fields []int
}

// GetUpdateParameter reports whether this file can apply the update
// itself rather than have the planner expunge-then-reinsert the row.
// Read-only and temporary files never accept in-place updates; every
// other file can, since Update(doc, Tuple) already supports a full
// rewrite of the indexed text.
func GetUpdateParameter(id fileid.FileID, req UpdateRequest) bool {
	if id.ReadOnly || id.Temporary {
		return false
	}
	return len(req.Fields) > 0
}

// GetLimitParameter reports whether this file can apply a LIMIT/OFFSET
// pair itself. It always can for a plain limit (offset 0); an offset
// requires materializing the skipped rows for relevance-ranked results
// since rank only becomes known at evaluation time, so it is refused
// whenever the file is clustered (spec.md §3's clustered-feature
// grouping reorders rows after the fact, which an offset cannot be
// applied ahead of).
func GetLimitParameter(id fileid.FileID, limit, offset int64) bool {
	if limit < 0 {
		return false
	}
	if offset > 0 && id.Clustered {
		return false
	}
	return true
}
