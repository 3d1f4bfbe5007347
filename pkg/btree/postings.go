// ABOUTME: Term-id/posting-list encoding for the inverted file's term dictionary
// ABOUTME: The one FullText2-specific KV shape this package's otherwise-generic tree stores

package btree

import "encoding/binary"

// TermKey encodes a term-id as the tree's lookup key. Big-endian so
// that term-id order matches byte-slice order, which is what
// nodeLookupLE's bytes.Compare assumes.
func TermKey(termID uint64) []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, termID)
	return buf
}

// DecodeTermKey is TermKey's inverse, used when scanning the
// dictionary back from raw tree keys (pkg/btree.BTree.Scan).
func DecodeTermKey(key []byte) uint64 {
	return binary.BigEndian.Uint64(key)
}

// Posting is one term occurrence: the document-id and frequency coder
// streams spec.md §3 names for the inverted file, collapsed to a
// single value per hit. Location/length streams are out of scope for
// this dictionary (that's the leaf/overflow sub-files' job, not the
// btree term index).
type Posting struct {
	DocID     uint64
	Frequency uint32
}

// EncodePostingList serializes a term's posting list as the tree's
// value bytes: document-id delta (postings arrive in increasing
// DocID order) plus frequency per posting.
func EncodePostingList(postings []Posting) []byte {
	buf := make([]byte, 0, len(postings)*8)
	var prev uint64
	for _, p := range postings {
		var tmp [binary.MaxVarintLen64]byte
		n := binary.PutUvarint(tmp[:], p.DocID-prev)
		buf = append(buf, tmp[:n]...)
		prev = p.DocID

		var freq [4]byte
		binary.BigEndian.PutUint32(freq[:], p.Frequency)
		buf = append(buf, freq[:]...)
	}
	return buf
}

// DecodePostingList is EncodePostingList's inverse.
func DecodePostingList(data []byte) []Posting {
	var postings []Posting
	var prev uint64
	for len(data) > 0 {
		delta, n := binary.Uvarint(data)
		data = data[n:]
		freq := binary.BigEndian.Uint32(data[:4])
		data = data[4:]

		prev += delta
		postings = append(postings, Posting{DocID: prev, Frequency: freq})
	}
	return postings
}
