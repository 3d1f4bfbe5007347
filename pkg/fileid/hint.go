// Hint-string grammar for C5: a small hand-written recursive-descent
// parser (DESIGN NOTES §9: "a small recursive-descent parser returning
// a map keyed by an enum HintKey") over the grammar in spec.md §4.5.
// Grounded in original_source/sydney/Driver/FullText2/FileID.cpp's
// readHint/HintArray child-hint recursion, re-expressed without a
// global parameter registry.
package fileid

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/trmeister/fulltext2/pkg/ftlerr"
)

// node is one parsed hint: a name, optionally an unparenthesized value,
// or (exclusively) a parenthesized list of child hints.
type node struct {
	name     string
	value    string
	children []node
	hasValue bool // value was provided after '=' unparenthesized (may be "")
	hasGroup bool // value was a parenthesized child list
}

type hintParser struct {
	s   string
	pos int
}

func (p *hintParser) skipSpace() {
	for p.pos < len(p.s) && (p.s[p.pos] == ' ' || p.s[p.pos] == '\t' || p.s[p.pos] == '\n') {
		p.pos++
	}
}

func (p *hintParser) readIdent() string {
	start := p.pos
	for p.pos < len(p.s) {
		c := p.s[p.pos]
		if (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9') || c == '_' {
			p.pos++
			continue
		}
		break
	}
	return p.s[start:p.pos]
}

func (p *hintParser) readValue() string {
	start := p.pos
	depth := 0
	for p.pos < len(p.s) {
		c := p.s[p.pos]
		if c == '(' {
			depth++
		} else if c == ')' {
			if depth == 0 {
				break
			}
			depth--
		} else if c == ',' && depth == 0 {
			break
		}
		p.pos++
	}
	return strings.TrimSpace(p.s[start:p.pos])
}

func (p *hintParser) parseList() ([]node, error) {
	var list []node
	p.skipSpace()
	if p.pos >= len(p.s) || p.s[p.pos] == ')' {
		return list, nil
	}
	for {
		n, err := p.parseOne()
		if err != nil {
			return nil, err
		}
		list = append(list, n)
		p.skipSpace()
		if p.pos < len(p.s) && p.s[p.pos] == ',' {
			p.pos++
			p.skipSpace()
			continue
		}
		break
	}
	return list, nil
}

func (p *hintParser) parseOne() (node, error) {
	name := p.readIdent()
	if name == "" {
		return node{}, ftlerr.New(ftlerr.SQLSyntaxError, "fileid.parseHint", fmt.Errorf("expected hint name at position %d", p.pos))
	}
	n := node{name: strings.ToLower(name)}
	p.skipSpace()
	if p.pos < len(p.s) && p.s[p.pos] == '=' {
		p.pos++
		p.skipSpace()
		if p.pos < len(p.s) && p.s[p.pos] == '(' {
			p.pos++
			children, err := p.parseList()
			if err != nil {
				return node{}, err
			}
			p.skipSpace()
			if p.pos >= len(p.s) || p.s[p.pos] != ')' {
				return node{}, ftlerr.New(ftlerr.SQLSyntaxError, "fileid.parseHint", fmt.Errorf("unterminated group for %q", n.name))
			}
			p.pos++
			n.children = children
			n.hasGroup = true
		} else {
			n.value = p.readValue()
			n.hasValue = true
		}
	}
	return n, nil
}

// parseHintString parses the top-level hint grammar into a flat node
// list, one per top-level key (inverted, delayed, sectionized, kwic,
// deleteflag).
func parseHintString(s string) ([]node, error) {
	p := &hintParser{s: s}
	list, err := p.parseList()
	if err != nil {
		return nil, err
	}
	p.skipSpace()
	if p.pos != len(p.s) {
		return nil, ftlerr.New(ftlerr.SQLSyntaxError, "fileid.parseHint", fmt.Errorf("unexpected trailing input at %d", p.pos))
	}
	return list, nil
}

// asBool coerces a hint value per spec.md §4.5: "true"/"false"/empty
// are all boolean, and an empty (bare) value means true.
func asBool(value string, hasValue bool) bool {
	if !hasValue || value == "" {
		return true
	}
	return !strings.EqualFold(value, "false")
}

func childByName(children []node, name string) (node, bool) {
	for _, c := range children {
		if c.name == name {
			return c, true
		}
	}
	return node{}, false
}

// ParseHint parses a SQL HINT '...' string into a FileID, applying
// every rule in spec.md §4.5: case-insensitive keys, boolean coercion,
// the normalized/delayed unknown-child-hint asymmetry, the distribute
// range check, clustered.feature default/validation, the vacuum
// default, and a final VerifyHint call.
func ParseHint(hint string) (FileID, error) {
	f := New()
	nodes, err := parseHintString(hint)
	if err != nil {
		return FileID{}, err
	}

	f.Vacuum = true // vacuum defaults to true regardless of whether delayed is given

	for _, n := range nodes {
		switch n.name {
		case "inverted":
			if err := applyInverted(&f, n.children); err != nil {
				return FileID{}, err
			}
		case "delayed":
			if err := applyDelayed(&f, n); err != nil {
				return FileID{}, err
			}
		case "sectionized":
			f.Sectionized = asBool(n.value, n.hasValue)
		case "kwic":
			f.RoughKwic = asBool(n.value, n.hasValue)
		case "deleteflag":
			v := asBool(n.value, n.hasValue)
			f.DeleteFlag = v
			f.ExpungeFlag = v
		}
	}

	if err := f.VerifyHint(); err != nil {
		return FileID{}, err
	}
	f.ClampPageSizes()
	return f, nil
}

func applyInverted(f *FileID, children []node) error {
	for _, c := range children {
		switch c.name {
		case "indexing":
			switch strings.ToLower(c.value) {
			case "ngram":
				f.Indexing = Ngram
			case "word":
				f.Indexing = Word
			case "dual":
				f.Indexing = Dual
			default:
				return ftlerr.New(ftlerr.SQLSyntaxError, "fileid.indexing", fmt.Errorf("unknown indexing type %q", c.value))
			}
		case "normalized":
			if c.hasGroup {
				f.Normalize = true
				for _, gc := range c.children {
					switch gc.name {
					case "stemming":
						f.Stemming = asBool(gc.value, gc.hasValue)
					case "deletespace":
						f.DeleteSpace = asBool(gc.value, gc.hasValue)
					case "carriage":
						f.Carriage = asBool(gc.value, gc.hasValue)
					default:
						// unrecognised child under normalized is ignored
						// (ambient normalization stays enabled), per
						// spec.md §4.5 and the documented asymmetry with delayed.
					}
				}
			} else {
				f.Normalize = asBool(c.value, c.hasValue)
			}
		case "coder":
			for _, gc := range c.children {
				switch gc.name {
				case "id":
					f.CoderID = gc.value
				case "frequency":
					f.CoderFrequency = gc.value
				case "length":
					f.CoderLength = gc.value
				case "location":
					f.CoderLocation = gc.value
				case "wordid":
					f.CoderWordID = gc.value
				case "wordfrequency":
					f.CoderWordFreq = gc.value
				case "wordlength":
					f.CoderWordLength = gc.value
				case "wordlocation":
					f.CoderWordLocation = gc.value
				}
			}
		case "tokenizer":
			f.Tokenizer = c.value
		case "extractor":
			f.Extractor = c.value
		case "language":
			f.DefaultLanguage = c.value
		case "distribute":
			n, err := strconv.Atoi(c.value)
			if err != nil {
				return ftlerr.New(ftlerr.SQLSyntaxError, "fileid.distribute", err)
			}
			if n < 0 || n > 100 {
				return ftlerr.New(ftlerr.NotSupported, "fileid.distribute", fmt.Errorf("distribute %d out of [0,100]", n))
			}
			f.Distribute = n
		case "nolocation":
			f.NoLocation = asBool(c.value, c.hasValue)
		case "notf":
			f.NoTF = asBool(c.value, c.hasValue)
		case "clustered":
			f.Clustered = true
			feature, ok := childByName(c.children, "feature")
			if !ok {
				f.ClusterFeature = 10
				continue
			}
			if feature.value == "" {
				return ftlerr.New(ftlerr.SQLSyntaxError, "fileid.clustered", fmt.Errorf("feature number missing"))
			}
			n, err := strconv.Atoi(feature.value)
			if err != nil || n <= 0 {
				return ftlerr.New(ftlerr.SQLSyntaxError, "fileid.clustered", fmt.Errorf("illegal feature number %q", feature.value))
			}
			f.ClusterFeature = n
		case "maxwordlength":
			n, err := strconv.Atoi(c.value)
			if err != nil {
				return ftlerr.New(ftlerr.SQLSyntaxError, "fileid.maxwordlength", err)
			}
			f.MaxWordLength = n
		}
	}
	return nil
}

func applyDelayed(f *FileID, n node) error {
	if !n.hasValue && !n.hasGroup {
		f.Delayed = DelayedAsync
		return nil
	}
	if n.hasValue {
		switch strings.ToLower(n.value) {
		case "true", "":
			f.Delayed = DelayedAsync
		case "false":
			f.Delayed = DelayedNone
		case "sync":
			f.Delayed = DelayedSync
		case "async":
			f.Delayed = DelayedAsync
		default:
			return ftlerr.New(ftlerr.SQLSyntaxError, "fileid.delayed", fmt.Errorf("unknown delayed value %q", n.value))
		}
		return nil
	}

	// Parenthesized form: delayed=(sync,async,vacuum=<bool>). Unknown
	// children throw, unlike normalized's silent-ignore behaviour — the
	// asymmetry is explicitly preserved per spec.md §9 Open Questions.
	f.Delayed = DelayedAsync
	for _, c := range n.children {
		switch c.name {
		case "sync":
			f.Delayed = DelayedSync
		case "async":
			f.Delayed = DelayedAsync
		case "vacuum":
			if strings.EqualFold(c.value, "false") {
				f.Vacuum = false
			}
		default:
			return ftlerr.New(ftlerr.SQLSyntaxError, "fileid.delayed", fmt.Errorf("unknown delayed child hint %q", c.name))
		}
	}
	return nil
}

// VerifyHint implements §4.5's "after all hints are applied,
// verifyHint() must succeed" gate, covering the schema-independent
// invariants of spec.md §3 (2) and (3). Schema-dependent invariants (4,
// 5 — sectionized/language-array key shape, key-count bound) are
// checked separately by VerifyKeys once the caller knows the column
// key shape, since the hint parser alone has no schema access.
func (f *FileID) VerifyHint() error {
	if f.NoLocation && f.Indexing == Dual {
		return ftlerr.New(ftlerr.NotSupported, "fileid.verifyHint", fmt.Errorf("nolocation is incompatible with Dual indexing"))
	}
	if f.NoTF && !f.NoLocation {
		return ftlerr.New(ftlerr.NotSupported, "fileid.verifyHint", fmt.Errorf("notf requires nolocation"))
	}
	return nil
}

// KeyType classifies one column key of the index, the minimal schema
// shape VerifyKeys needs.
type KeyType int

const (
	KeyScalar KeyType = iota
	KeyArrayOfString
)

// VerifyKeys checks the schema-dependent invariants of spec.md §3 (1),
// (4), (5) against the file's actual key list.
func VerifyKeys(f FileID, keys []KeyType) error {
	if len(keys) > 31 {
		return ftlerr.New(ftlerr.NotSupported, "fileid.verifyKeys", fmt.Errorf("%d key fields exceeds the 31-bit mask limit", len(keys)))
	}
	arrayKeys := 0
	for _, k := range keys {
		if k == KeyArrayOfString {
			arrayKeys++
		}
	}
	if f.Sectionized {
		if arrayKeys != 1 || len(keys) != 1 {
			return ftlerr.New(ftlerr.NotSupported, "fileid.verifyKeys", fmt.Errorf("sectionized requires exactly one array-of-string key"))
		}
	}
	if f.LanguageColumn {
		if len(keys) != 1 || keys[0] != KeyArrayOfString {
			return ftlerr.New(ftlerr.NotSupported, "fileid.verifyKeys", fmt.Errorf("a language-array field requires the sole key to be array-of-string"))
		}
	}
	return nil
}
