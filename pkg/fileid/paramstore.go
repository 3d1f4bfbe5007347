// ParamStore persists the FileID parameter dictionary as (fileKey,
// paramKey) -> value triples with a secondary by-value index, so a host
// can ask "which files set delayed=async" without a full scan. Adapted
// from the teacher's pkg/metadata.MetadataStore multi-index shape
// (PREFIX_METADATA_ENTITY / PREFIX_METADATA_VALUE) — entity/key/value
// triples become file/hint/value triples — re-expressed over
// pkg/btree.BTree directly instead of pkg/storage.KV, since the
// parameter dictionary is small, in-memory, per-schema state rather
// than a page-file-backed document store.
package fileid

import (
	"fmt"
	"sort"
	"sync"

	"github.com/trmeister/fulltext2/pkg/btree"
)

// ParamEntry is one persisted (file, hint key, value) triple.
type ParamEntry struct {
	FileKey  string
	ParamKey string
	Value    string
}

// arena is a trivial in-memory page backing for pkg/btree.BTree: the
// parameter dictionary is schema-catalog-sized, not page-file-sized, so
// it does not need pkg/pagedfile's on-disk page management.
type arena struct {
	mu     sync.Mutex
	pages  map[uint64][]byte
	nextID uint64
}

func newArena() *arena { return &arena{pages: make(map[uint64][]byte)} }

func (a *arena) get(id uint64) []byte {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.pages[id]
}

func (a *arena) new(data []byte) uint64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.nextID++
	id := a.nextID
	buf := make([]byte, len(data))
	copy(buf, data)
	a.pages[id] = buf
	return id
}

func (a *arena) del(id uint64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.pages, id)
}

// ParamStore is the persisted, multi-indexed parameter dictionary.
type ParamStore struct {
	primary *btree.BTree // (fileKey, paramKey) -> value
	byValue *btree.BTree // (paramKey, value, fileKey) -> ""
	arena   *arena
}

// NewParamStore creates an empty parameter dictionary.
func NewParamStore() *ParamStore {
	a := newArena()
	ps := &ParamStore{arena: a}
	primary := &btree.BTree{}
	primary.SetCallbacks(a.get, a.new, a.del)
	byValue := &btree.BTree{}
	byValue.SetCallbacks(a.get, a.new, a.del)
	ps.primary = primary
	ps.byValue = byValue
	return ps
}

// encodeKey builds an escaped, null-terminated composite key from parts,
// preserving lexicographic ordering across parts (adapted from
// pkg/storage/encoding.go's escapeString scheme).
func encodeKey(parts ...string) []byte {
	out := make([]byte, 0, 64)
	for _, p := range parts {
		for i := 0; i < len(p); i++ {
			c := p[i]
			if c == 0x00 || c == 0xFF {
				out = append(out, 0xFF, c)
			} else {
				out = append(out, c)
			}
		}
		out = append(out, 0)
	}
	return out
}

// Set stores (or overwrites) one parameter entry.
func (ps *ParamStore) Set(e ParamEntry) error {
	if old, ok := ps.primary.Get(encodeKey(e.FileKey, e.ParamKey)); ok {
		ps.byValue.Delete(encodeKey(e.ParamKey, string(old), e.FileKey))
	}
	ps.primary.Insert(encodeKey(e.FileKey, e.ParamKey), []byte(e.Value))
	ps.byValue.Insert(encodeKey(e.ParamKey, e.Value, e.FileKey), []byte{})
	return nil
}

// Get returns one parameter entry's value.
func (ps *ParamStore) Get(fileKey, paramKey string) (string, bool) {
	v, ok := ps.primary.Get(encodeKey(fileKey, paramKey))
	if !ok {
		return "", false
	}
	return string(v), true
}

// Delete removes one parameter entry.
func (ps *ParamStore) Delete(fileKey, paramKey string) error {
	v, ok := ps.primary.Get(encodeKey(fileKey, paramKey))
	if !ok {
		return fmt.Errorf("fileid.paramstore: no entry for %s/%s", fileKey, paramKey)
	}
	ps.primary.Delete(encodeKey(fileKey, paramKey))
	ps.byValue.Delete(encodeKey(paramKey, string(v), fileKey))
	return nil
}

// QueryByKeyValue returns every fileKey that has paramKey set to value.
func (ps *ParamStore) QueryByKeyValue(paramKey, value string) []string {
	prefix := encodeKey(paramKey, value)
	var out []string
	ps.byValue.Scan(prefix, func(key, _ []byte) bool {
		if len(key) < len(prefix) || string(key[:len(prefix)]) != string(prefix) {
			return false
		}
		fileKey := key[len(prefix):]
		if len(fileKey) > 0 && fileKey[len(fileKey)-1] == 0 {
			fileKey = fileKey[:len(fileKey)-1]
		}
		out = append(out, string(fileKey))
		return true
	})
	sort.Strings(out)
	return out
}

// StoreFileID persists every field of f under fileKey as individual
// ParamEntry rows, so the dictionary can answer per-field queries.
func StoreFileID(ps *ParamStore, fileKey string, f FileID) error {
	entries := map[string]string{
		"version":     fmt.Sprint(f.Version),
		"indexing":    fmt.Sprint(f.Indexing),
		"delayed":     fmt.Sprint(f.Delayed),
		"vacuum":      fmt.Sprint(f.Vacuum),
		"sectionized": fmt.Sprint(f.Sectionized),
		"nolocation":  fmt.Sprint(f.NoLocation),
		"notf":        fmt.Sprint(f.NoTF),
		"clustered":   fmt.Sprint(f.Clustered),
		"tokenizer":   f.Tokenizer,
		"language":    f.DefaultLanguage,
	}
	for k, v := range entries {
		if err := ps.Set(ParamEntry{FileKey: fileKey, ParamKey: k, Value: v}); err != nil {
			return err
		}
	}
	return nil
}
