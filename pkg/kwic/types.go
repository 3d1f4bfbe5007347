// Package kwic implements the Keyword-In-Context snippet generator
// (spec component C7): a search-term pattern tree, a multi-pattern
// matcher, a sliding-window seed selector, and a tag/escape/ellipsis
// emitter, per spec.md §4.7. The tokenizer/morphological-analysis
// service it consumes is modeled as the Tokenizer interface (spec.md
// §1: "we consume tokenization results as an abstract service" — the
// UNA/NORM libraries themselves stay out of scope); SimpleTokenizer is
// a Unicode-codepoint-class reference implementation used by tests and
// the admin surface's demo mode. Normalization uses
// golang.org/x/text/unicode/norm and golang.org/x/text/width, grounded
// the same way pkg/fileid's normalize flag is.
package kwic

// MatchMode is a search term's word-boundary requirement, translated
// into per-position BoundaryKind settings by boundaryFor, per spec.md
// §4.7's table:
//
//	String     -> mid=Expand
//	WordHead   -> head=Insert, mid=Expand
//	WordTail   -> mid=Expand, tail=Insert
//	SimpleWord -> head=Insert, mid=Expand, tail=Insert
//	ExactWord  -> head=Insert, mid=Insert, tail=Insert
type MatchMode int

const (
	String MatchMode = iota
	WordHead
	WordTail
	SimpleWord
	ExactWord
)

// BoundaryKind controls whether a word-separator sentinel is required
// (Insert) or the match may run across the boundary freely (Expand).
type BoundaryKind int

const (
	Expand BoundaryKind = iota
	Insert
)

type boundarySpec struct{ head, mid, tail BoundaryKind }

func boundaryFor(mode MatchMode) boundarySpec {
	switch mode {
	case WordHead:
		return boundarySpec{head: Insert, mid: Expand, tail: Expand}
	case WordTail:
		return boundarySpec{head: Expand, mid: Expand, tail: Insert}
	case SimpleWord:
		return boundarySpec{head: Insert, mid: Expand, tail: Insert}
	case ExactWord:
		return boundarySpec{head: Insert, mid: Insert, tail: Insert}
	default: // String
		return boundarySpec{head: Expand, mid: Expand, tail: Expand}
	}
}

// Escape selects how emitted text is escaped.
type Escape int

const (
	EscapeNone Escape = iota
	EscapeHTML
)

// SearchTerm is one leaf-producing query term.
type SearchTerm struct {
	Text string
	Mode MatchMode
}

// SynonymList is a disjunction of search terms, all treated as
// alternative spellings of the same concept (spec.md §4.7 "SynonymList
// ⇒ add a Disjunction child under Root").
type SynonymList struct {
	Synonyms []SearchTerm
}

// Item is one top-level query element: exactly one of Term or Synonyms
// is set, mirroring the `SearchTerm|SynonymList` union of spec.md §4.7's
// property dictionary (`SearchTermList: array<SearchTerm|SynonymList>`).
type Item struct {
	Term     *SearchTerm
	Synonyms []SearchTerm
}

// Expander performs morphological expansion of one search term into the
// concrete pattern strings the matcher should register (spec.md §4.7
// step 1: "expand morphologically into pattern strings"). The
// morphological analyzer itself (UNA/NORM) is out of scope; Expander is
// the abstract seam. IdentityExpander returns the term unchanged and is
// used by tests and any caller with no morphological service wired up.
type Expander func(term string) []string

// IdentityExpander is the degenerate Expander: one term, one pattern.
func IdentityExpander(term string) []string { return []string{term} }

// Position is a nullable approximate match position (spec.md §4.7
// "position: nullable; the approximate match position returned by the
// index. Null ⇒ use first size characters").
type Position struct {
	Valid bool
	Value int
}

// Properties is the property dictionary of spec.md §4.7's inputs.
type Properties struct {
	RoughKwicSize  []uint32
	SearchTermList []Item
	UnaParamKey    []string
	UnaParamValue  []string
}

// Request bundles one KWIC extraction call's parameters.
type Request struct {
	Source     []string // one element for scalar columns, N for sectionized/array-of-string columns
	Position   Position
	Size       int
	StartTag   string
	EndTag     string
	Escape     Escape
	Ellipsis   string
	MarginPct  int // content-size margin, spec.md §4.7 step 2; 0 means no shrink
	Languages  []string
	Properties Properties
}
