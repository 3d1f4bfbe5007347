package kwic

import (
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"
	"golang.org/x/text/width"
)

// Word is one tokenizer-reported word span, as half-open rune offsets
// into the normalized text returned alongside it.
type Word struct {
	Start, End int
}

// Tokenizer is the abstract word-boundary service spec.md §1 names as
// an external dependency ("we model morphological analysis and
// tokenization as abstract services, not reimplement them"). Tokenize
// returns the normalized rune sequence used for matching plus the word
// spans within it, and origin maps each normalized rune index back to a
// byte offset in the original source string for emission.
type Tokenizer interface {
	Tokenize(source string) (normalized []rune, words []Word, origin []int)
}

// SimpleTokenizer is a Unicode-codepoint-class reference tokenizer: runs
// of letters/digits form a word, everything else (spaces, punctuation)
// is a separator. It NFC-normalizes and fullwidth-folds input via
// golang.org/x/text before tokenizing, mirroring the normalize step
// pkg/fileid's hint parser toggles on the index as a whole, but here
// applied per query at KWIC time.
type SimpleTokenizer struct{}

func (SimpleTokenizer) Tokenize(source string) ([]rune, []Word, []int) {
	folded := width.Fold.String(source)
	normalized := norm.NFC.String(folded)

	runes := make([]rune, 0, len(normalized))
	origin := make([]int, 0, len(normalized))
	byteOff := 0
	for _, r := range normalized {
		runes = append(runes, r)
		origin = append(origin, byteOff)
		byteOff += utf8.RuneLen(r)
	}

	var words []Word
	inWord := false
	start := 0
	isWordRune := func(r rune) bool { return unicode.IsLetter(r) || unicode.IsDigit(r) }
	for i, r := range runes {
		if isWordRune(r) {
			if !inWord {
				start = i
				inWord = true
			}
		} else if inWord {
			words = append(words, Word{Start: start, End: i})
			inWord = false
		}
	}
	if inWord {
		words = append(words, Word{Start: start, End: len(runes)})
	}
	return runes, words, origin
}

// wordBoundaryAt reports whether position pos (a rune index into the
// normalized text) sits on a word boundary, used to enforce Insert-mode
// head/tail constraints and to clip window expansion to whole words.
func wordBoundaryAt(words []Word, pos int) bool {
	for _, w := range words {
		if pos > w.Start && pos < w.End {
			return false
		}
	}
	return true
}

// clipToWordStart moves pos backward to the nearest word start at or
// before pos, so window expansion never begins mid-word.
func clipToWordStart(words []Word, pos int) int {
	for _, w := range words {
		if pos > w.Start && pos < w.End {
			return w.Start
		}
	}
	return pos
}

// clipToWordEnd moves pos forward to the nearest word end at or after
// pos.
func clipToWordEnd(words []Word, pos int) int {
	for _, w := range words {
		if pos > w.Start && pos < w.End {
			return w.End
		}
	}
	return pos
}
