// Package fileid implements the schema-ID wrapper (spec component C5):
// the FileID parameter dictionary, its hint-string grammar, and page
// sizing. The parameter dictionary's multi-index persistence is
// grounded on the teacher's pkg/metadata.MetadataStore (entity/key/value
// triples become file/hint/value triples); the parser itself is new,
// hand-written recursive descent per DESIGN NOTES.
package fileid

import "github.com/trmeister/fulltext2/internal/config"

// IndexingType is the inverted-file indexing strategy.
type IndexingType int

const (
	Ngram IndexingType = iota
	Word
	Dual
)

// DelayedMode selects how mutations reach the main index (C6).
type DelayedMode int

const (
	DelayedNone DelayedMode = iota
	DelayedSync
	DelayedAsync
)

// FileID is the persistent parameter dictionary for one physical file,
// matching the entity definition of spec.md §3 field-for-field.
type FileID struct {
	Version int // current = 4; files below 4 are rejected at open (checkVersion)

	Indexing IndexingType

	LeafPageSizeKB     int
	OverflowPageSizeKB int
	BtreePageSizeKB    int
	OtherPageSizeKB    int

	Tokenizer string
	CoderID           string
	CoderFrequency    string
	CoderLength       string
	CoderLocation     string
	CoderWordID       string
	CoderWordFreq     string
	CoderWordLength   string
	CoderWordLocation string

	Normalize   bool
	Stemming    bool
	DeleteSpace bool
	Carriage    bool

	Extractor        string
	DefaultLanguage  string
	Distribute       int // 0..100
	Clustered        bool
	ClusterFeature   int
	NoLocation       bool
	NoTF             bool
	ExpungeFlag      bool
	MaxWordLength    int
	Delayed          DelayedMode
	Vacuum           bool
	Sectionized      bool
	LanguageColumn   bool
	ScoreColumn      bool
	RoughKwic        bool
	Mounted          bool
	ReadOnly         bool
	Temporary        bool
	AreaPath         string
	LockName         string

	DeleteFlag bool // deleteflag top-level hint
}

// New returns a FileID with spec-mandated defaults: version 4, page
// sizes per §4.5 (16/16/16/4 KiB). Vacuum is left false here; ParseHint
// sets it to true by default, whether or not delayed is given.
func New() FileID {
	cfg := config.Get()
	return FileID{
		Version:            4,
		Indexing:           Ngram,
		LeafPageSizeKB:     cfg.LeafPageSizeKB,
		OverflowPageSizeKB: cfg.OverflowPageSizeKB,
		BtreePageSizeKB:    cfg.BtreePageSizeKB,
		OtherPageSizeKB:    cfg.OtherPageSizeKB,
		ClusterFeature:     10,
	}
}

// ClampPageSizes rounds every page size up to the physical minimum and
// is idempotent, matching invariant 6 ("page sizes are rounded up to
// the physical minimum, stored in KiB units").
func (f *FileID) ClampPageSizes() {
	cfg := config.Get()
	f.LeafPageSizeKB = config.ClampPageSizeKB(f.LeafPageSizeKB, cfg.PhysicalMinPageKB)
	f.OverflowPageSizeKB = config.ClampPageSizeKB(f.OverflowPageSizeKB, cfg.PhysicalMinPageKB)
	f.BtreePageSizeKB = config.ClampPageSizeKB(f.BtreePageSizeKB, cfg.PhysicalMinPageKB)
	f.OtherPageSizeKB = config.ClampPageSizeKB(f.OtherPageSizeKB, cfg.PhysicalMinPageKB)
}

// CheckVersion implements §4.5's checkVersion(id) = version >= 4.
func (f *FileID) CheckVersion() bool { return f.Version >= 4 }
