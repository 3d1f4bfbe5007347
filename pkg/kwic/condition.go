package kwic

// nodeKind distinguishes the three condition-tree node shapes built
// here: Root, Disjunction and Leaf. No Conjunction node is built.
type nodeKind int

const (
	kindRoot nodeKind = iota
	kindDisjunction
	kindLeaf
)

type condNode struct {
	kind     nodeKind
	parent   int
	children []int
	// leaf-only:
	patternID int
	boundary  boundarySpec
}

// Condition is the compiled search-term tree: every top-level Item
// (whether a bare SearchTerm or an explicit SynonymList) becomes a
// Disjunction under Root grouping its morphological-expansion leaves,
// since each expansion is an alternative spelling of the same intent —
// Root itself then requires one hit per Item (AND across distinct
// search terms, OR across alternatives of one), matching the
// "expand...add leaves...compute score" description of spec.md §4.7.
type Condition struct {
	nodes       []condNode
	checker     *PatternChecker
	rootID      int
	expandLimit int
}

// NewCondition compiles items into a pattern tree and matcher. expand
// performs morphological expansion (see Expander); results beyond
// expandLimit are discarded (spec.md §4.7 "bounded by limit"; a limit
// <=0 means unbounded).
func NewCondition(items []Item, expand Expander, expandLimit int) *Condition {
	if expand == nil {
		expand = IdentityExpander
	}
	c := &Condition{checker: NewPatternChecker(), expandLimit: expandLimit}
	c.nodes = append(c.nodes, condNode{kind: kindRoot, parent: -1})
	c.rootID = 0

	addExpansions := func(parent int, term SearchTerm) {
		patterns := expand(term.Text)
		if expandLimit > 0 && len(patterns) > expandLimit {
			patterns = patterns[:expandLimit]
		}
		b := boundaryFor(term.Mode)
		for _, pat := range patterns {
			if pat == "" {
				continue
			}
			pid := c.checker.Add(pat)
			leaf := condNode{kind: kindLeaf, parent: parent, patternID: pid, boundary: b}
			c.nodes = append(c.nodes, leaf)
			leafID := len(c.nodes) - 1
			c.nodes[parent].children = append(c.nodes[parent].children, leafID)
		}
	}

	for _, item := range items {
		c.nodes = append(c.nodes, condNode{kind: kindDisjunction, parent: c.rootID})
		disjID := len(c.nodes) - 1
		c.nodes[c.rootID].children = append(c.nodes[c.rootID].children, disjID)

		if item.Term != nil {
			addExpansions(disjID, *item.Term)
		}
		for _, syn := range item.Synonyms {
			addExpansions(disjID, syn)
		}
	}
	c.checker.Build()
	return c
}

// leafBoundary returns the boundary requirement for the leaf matching
// patternID.
func (c *Condition) leafBoundary(patternID int) boundarySpec {
	for _, n := range c.nodes {
		if n.kind == kindLeaf && n.patternID == patternID {
			return n.boundary
		}
	}
	return boundarySpec{}
}

// FindAll returns every raw pattern occurrence in text, filtered to
// those whose boundary requirements (Insert at head/tail) are satisfied
// at the match's edges. Mid-boundary Insert requirements are not
// checked, here or when patterns are registered; only the head and tail
// edges of a match are tested.
func (c *Condition) FindAll(text []rune, words []Word) []Match {
	raw := c.checker.FindAll(text)
	var out []Match
	for _, m := range raw {
		b := c.leafBoundary(m.PatternID)
		if b.head == Insert && !wordBoundaryAt(words, m.Start) {
			continue
		}
		if b.tail == Insert && !wordBoundaryAt(words, m.End) {
			continue
		}
		out = append(out, m)
	}
	return out
}

// scoreWithHits computes the tree's score given a hit count per leaf
// (indexed by patternID): a Disjunction contributes the max of its
// children, Root (and any future Conjunction) sums its children's
// contributions, and a Leaf contributes 1 if hit at least once.
func (c *Condition) scoreWithHits(hits map[int]int) int {
	var score func(id int) int
	score = func(id int) int {
		n := c.nodes[id]
		switch n.kind {
		case kindLeaf:
			if hits[n.patternID] > 0 {
				return 1
			}
			return 0
		case kindDisjunction:
			best := 0
			for _, ch := range n.children {
				if s := score(ch); s > best {
					best = s
				}
			}
			return best
		default: // Root
			sum := 0
			for _, ch := range n.children {
				sum += score(ch)
			}
			return sum
		}
	}
	return score(c.rootID)
}

// PerfectScore is the score attained when every distinct Item
// contributes a hit: one per top-level Disjunction under Root.
func (c *Condition) PerfectScore() int {
	return len(c.nodes[c.rootID].children)
}
