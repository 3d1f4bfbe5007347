package kwic

import (
	"strings"
	"testing"
)

func TestPatternCheckerFindsMultiplePatterns(t *testing.T) {
	pc := NewPatternChecker()
	pc.Add("XYZ")
	pc.Add("abc")
	pc.Build()

	text := []rune("abcXYZdefXYZghi")
	matches := pc.FindAll(text)
	if len(matches) != 3 {
		t.Fatalf("expected 3 matches, got %d: %+v", len(matches), matches)
	}
	if matches[0].Start != 0 || matches[0].End != 3 {
		t.Fatalf("expected first match abc at [0,3), got %+v", matches[0])
	}
	if matches[1].Start != 3 || matches[1].End != 6 {
		t.Fatalf("expected second match XYZ at [3,6), got %+v", matches[1])
	}
	if matches[2].Start != 9 || matches[2].End != 12 {
		t.Fatalf("expected third match XYZ at [9,12), got %+v", matches[2])
	}
}

func TestConditionPerfectScoreSingleTerm(t *testing.T) {
	cond := NewCondition([]Item{{Term: &SearchTerm{Text: "XYZ", Mode: String}}}, nil, 0)
	if cond.PerfectScore() != 1 {
		t.Fatalf("expected perfect score 1 for one item, got %d", cond.PerfectScore())
	}
}

func TestConditionPerfectScoreMultipleTerms(t *testing.T) {
	cond := NewCondition([]Item{
		{Term: &SearchTerm{Text: "abc", Mode: String}},
		{Synonyms: []SearchTerm{{Text: "XYZ", Mode: String}, {Text: "xyz", Mode: String}}},
	}, nil, 0)
	if cond.PerfectScore() != 2 {
		t.Fatalf("expected perfect score 2 for two items, got %d", cond.PerfectScore())
	}
}

func TestExtractBasicKwic(t *testing.T) {
	source := "abcXYZdefXYZghi"
	cond := NewCondition([]Item{{Term: &SearchTerm{Text: "XYZ", Mode: String}}}, nil, 0)
	req := Request{
		Source:   []string{source},
		Size:     7,
		StartTag: "<b>",
		EndTag:   "</b>",
		Ellipsis: "...",
	}
	snippet, idx, err := Extract(req, SimpleTokenizer{}, cond)
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	if idx != 0 {
		t.Fatalf("expected segment 0, got %d", idx)
	}
	if !strings.Contains(snippet, "<b>XYZ</b>") {
		t.Fatalf("expected a tagged XYZ occurrence, got %q", snippet)
	}
}

func TestExtractArrayOfStringPicksOneSegment(t *testing.T) {
	cond := NewCondition([]Item{{Term: &SearchTerm{Text: "fg", Mode: String}}}, nil, 0)
	req := Request{
		Source:   []string{"abcde", "fghij", "klmno"},
		Position: Position{Valid: true, Value: 6},
		Size:     5,
		StartTag: "<b>",
		EndTag:   "</b>",
		Ellipsis: "...",
	}
	snippet, idx, err := Extract(req, SimpleTokenizer{}, cond)
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	if idx != 1 {
		t.Fatalf("expected segment 1 (position 6 falls in 'fghij'), got %d", idx)
	}
	if strings.Count(snippet, "<b>") != 1 {
		t.Fatalf("expected exactly one tagged occurrence, got %q", snippet)
	}
}

func TestExtractRejectsEmptySource(t *testing.T) {
	cond := NewCondition([]Item{{Term: &SearchTerm{Text: "x", Mode: String}}}, nil, 0)
	_, _, err := Extract(Request{Source: nil, Size: 5}, SimpleTokenizer{}, cond)
	if err == nil {
		t.Fatalf("expected error for empty source")
	}
}

func TestExtractNoMatchFallsBackToPrefix(t *testing.T) {
	cond := NewCondition([]Item{{Term: &SearchTerm{Text: "zzz", Mode: String}}}, nil, 0)
	req := Request{Source: []string{"hello world this is a long passage"}, Size: 10, Ellipsis: "..."}
	snippet, _, err := Extract(req, SimpleTokenizer{}, cond)
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	if !strings.HasPrefix(snippet, "hello") {
		t.Fatalf("expected fallback snippet to start at the beginning of the source, got %q", snippet)
	}
}

func TestWordHeadBoundaryRejectsMidWordMatch(t *testing.T) {
	cond := NewCondition([]Item{{Term: &SearchTerm{Text: "cat", Mode: WordHead}}}, nil, 0)
	tok := SimpleTokenizer{}
	text, words, _ := tok.Tokenize("concatenate cat")
	matches := cond.FindAll(text, words)
	if len(matches) != 1 {
		t.Fatalf("expected exactly one WordHead match (the standalone 'cat'), got %d: %+v", len(matches), matches)
	}
	if matches[0].Start != 12 {
		t.Fatalf("expected match at the standalone word, got start=%d", matches[0].Start)
	}
}

func TestExactWordRejectsSubstring(t *testing.T) {
	cond := NewCondition([]Item{{Term: &SearchTerm{Text: "cat", Mode: ExactWord}}}, nil, 0)
	tok := SimpleTokenizer{}
	text, words, _ := tok.Tokenize("concatenate")
	matches := cond.FindAll(text, words)
	if len(matches) != 0 {
		t.Fatalf("expected no ExactWord match inside a larger word, got %+v", matches)
	}
}

// TestExtractLengthBoundAcrossSizes checks the snippet length bound
// SPEC_FULL.md §8 names for every requested size n: the content can
// never shrink below n*(100-margin%)/100 (the margin-adjusted floor),
// and tags plus up to two ellipses are the only things that can push it
// past n. Text is built from single-rune words so window expansion
// never gets clipped to a wider word boundary, making the bound exact
// rather than approximate.
func TestExtractLengthBoundAcrossSizes(t *testing.T) {
	prefix := strings.Repeat("x ", 100)
	suffix := strings.Repeat("y ", 100)
	source := prefix + "q " + suffix
	cond := NewCondition([]Item{{Term: &SearchTerm{Text: "q", Mode: String}}}, nil, 0)

	const startTag, endTag, ellipsis = "<b>", "</b>", "..."
	const marginPct = 20
	const maxSize = 60
	tagOverhead := len([]rune(startTag)) + len([]rune(endTag))

	for n := 1; n <= maxSize; n++ {
		req := Request{
			Source:    []string{source},
			Size:      n,
			StartTag:  startTag,
			EndTag:    endTag,
			Ellipsis:  ellipsis,
			MarginPct: marginPct,
		}
		snippet, _, err := Extract(req, SimpleTokenizer{}, cond)
		if err != nil {
			t.Fatalf("size %d: extract: %v", n, err)
		}

		got := len([]rune(snippet))
		lower := n * (100 - marginPct) / 100
		upper := n + 2*len([]rune(ellipsis)) + tagOverhead
		if got < lower || got > upper {
			t.Fatalf("size %d: snippet length %d outside bound [%d,%d]: %q", n, got, lower, upper, snippet)
		}
	}
}

func TestEscapeHTML(t *testing.T) {
	got := escapeText(`<a href="x">&amp;</a>`, EscapeHTML)
	want := "&lt;a href=&quot;x&quot;&gt;&amp;amp;&lt;/a&gt;"
	if got != want {
		t.Fatalf("escapeText mismatch:\n got: %s\nwant: %s", got, want)
	}
}
