package kwic

// PatternChecker is a multi-pattern substring matcher over rune slices,
// built as an Aho-Corasick automaton. No ecosystem module in the
// retrieved pack offers multi-pattern string matching (DESIGN.md records
// this as a justified stdlib-only component); the trie/failure-link
// construction follows the classic automaton shape, not any one file in
// the corpus.
type PatternChecker struct {
	patterns [][]rune
	nodes    []acNode
	built    bool
}

type acNode struct {
	children map[rune]int
	fail     int
	output   []int // pattern indices ending at this node
}

func newACNode() acNode {
	return acNode{children: make(map[rune]int)}
}

// NewPatternChecker returns an empty checker; call Add for each pattern
// and Build once before FindAll.
func NewPatternChecker() *PatternChecker {
	pc := &PatternChecker{}
	pc.nodes = append(pc.nodes, newACNode()) // root
	return pc
}

// Add registers pattern and returns its pattern ID (index into the
// registration order, stable across Add calls).
func (pc *PatternChecker) Add(pattern string) int {
	pc.built = false
	runes := []rune(pattern)
	id := len(pc.patterns)
	pc.patterns = append(pc.patterns, runes)

	cur := 0
	for _, r := range runes {
		next, ok := pc.nodes[cur].children[r]
		if !ok {
			pc.nodes = append(pc.nodes, newACNode())
			next = len(pc.nodes) - 1
			pc.nodes[cur].children[r] = next
		}
		cur = next
	}
	pc.nodes[cur].output = append(pc.nodes[cur].output, id)
	return id
}

// Build constructs the failure-link automaton. Must be called after all
// patterns are registered and before FindAll.
func (pc *PatternChecker) Build() {
	queue := make([]int, 0, len(pc.nodes))
	for r, child := range pc.nodes[0].children {
		pc.nodes[child].fail = 0
		queue = append(queue, child)
		_ = r
	}
	for head := 0; head < len(queue); head++ {
		cur := queue[head]
		for r, child := range pc.nodes[cur].children {
			fail := pc.nodes[cur].fail
			for {
				if next, ok := pc.nodes[fail].children[r]; ok && next != child {
					pc.nodes[child].fail = next
					break
				}
				if fail == 0 {
					pc.nodes[child].fail = 0
					break
				}
				fail = pc.nodes[fail].fail
			}
			pc.nodes[child].output = append(pc.nodes[child].output, pc.nodes[pc.nodes[child].fail].output...)
			queue = append(queue, child)
		}
	}
	pc.built = true
}

// Match is one occurrence of a registered pattern within searched text,
// given as half-open rune offsets [Start,End).
type Match struct {
	PatternID int
	Start     int
	End       int
}

// FindAll returns every occurrence of every registered pattern in text,
// in ascending Start order (ties broken by PatternID), per spec.md
// §4.7's requirement that seed selection considers matches left to
// right.
func (pc *PatternChecker) FindAll(text []rune) []Match {
	if !pc.built {
		pc.Build()
	}
	var matches []Match
	cur := 0
	for i, r := range text {
		for {
			if next, ok := pc.nodes[cur].children[r]; ok {
				cur = next
				break
			}
			if cur == 0 {
				break
			}
			cur = pc.nodes[cur].fail
		}
		for _, pid := range pc.nodes[cur].output {
			plen := len(pc.patterns[pid])
			matches = append(matches, Match{PatternID: pid, Start: i + 1 - plen, End: i + 1})
		}
	}
	sortMatches(matches)
	return matches
}

func sortMatches(m []Match) {
	// insertion sort: match counts per query are small, and this keeps
	// the package free of a sort.Slice closure allocation in the hot path.
	for i := 1; i < len(m); i++ {
		j := i
		for j > 0 && (m[j-1].Start > m[j].Start || (m[j-1].Start == m[j].Start && m[j-1].PatternID > m[j].PatternID)) {
			m[j-1], m[j] = m[j], m[j-1]
			j--
		}
	}
}
