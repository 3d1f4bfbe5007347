package kwic

import (
	"unicode/utf8"

	"github.com/trmeister/fulltext2/pkg/ftlerr"
)

// Extract runs the full KWIC pipeline of spec.md §4.7 against req: it
// tokenizes the chosen source segment, locates condition matches,
// selects the highest-scoring seed window, expands it to size runes
// along word boundaries, and emits the tagged/escaped/ellipsized
// snippet. It returns the snippet and the index of the source segment
// it was drawn from (req.Source may hold more than one segment for
// sectionized or array-of-string columns, per spec.md §4.7 "iterate
// string segments, consuming remaining position/size across
// segments" — simplified here to picking the one segment the position
// hint or first match falls in, since a single emitted snippet can only
// ever come from one contiguous run of text).
func Extract(req Request, tok Tokenizer, cond *Condition) (string, int, error) {
	if len(req.Source) == 0 {
		return "", -1, ftlerr.New(ftlerr.BadArgument, "kwic.Extract", nil)
	}
	if req.Size <= 0 {
		return "", -1, ftlerr.New(ftlerr.BadArgument, "kwic.Extract", nil)
	}
	if tok == nil {
		tok = SimpleTokenizer{}
	}

	segIdx := chooseSegment(req)
	source := req.Source[segIdx]
	text, words, origin := tok.Tokenize(source)

	contentSize := req.Size
	if req.MarginPct > 0 && req.MarginPct < 100 {
		contentSize = req.Size * (100 - req.MarginPct) / 100
		if contentSize <= 0 {
			contentSize = req.Size
		}
	}

	var matches []Match
	if cond != nil {
		matches = cond.FindAll(text, words)
	}

	var w window
	if len(matches) == 0 {
		end := req.Size
		if end > len(text) {
			end = len(text)
		}
		w = determineWindow(text, words, 0, end, req.Size)
	} else {
		lo, hi, _, _ := seedWindow(matches, cond, contentSize)
		w = determineWindow(text, words, matches[lo].Start, matches[hi].End, req.Size)
	}

	snippet := emitWindow(source, origin, matches, w, req.StartTag, req.EndTag, req.Escape, req.Ellipsis)
	return snippet, segIdx, nil
}

// chooseSegment picks the source segment Extract draws its snippet
// from: the one containing the position hint's cumulative rune offset
// when given, otherwise the first segment (spec.md §4.7 "Null ⇒ use
// first size characters").
func chooseSegment(req Request) int {
	if !req.Position.Valid {
		return 0
	}
	remaining := req.Position.Value
	for i, seg := range req.Source {
		n := utf8.RuneCountInString(seg)
		if remaining < n || i == len(req.Source)-1 {
			return i
		}
		remaining -= n
	}
	return 0
}

// BuildCondition compiles a condition tree from a Properties'
// SearchTermList, using expand for morphological expansion (nil selects
// IdentityExpander) bounded by expandLimit.
func BuildCondition(props Properties, expand Expander, expandLimit int) *Condition {
	return NewCondition(props.SearchTermList, expand, expandLimit)
}
