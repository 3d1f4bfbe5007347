// ABOUTME: Tests for B+Tree iterator and range scans
// ABOUTME: Verifies SeekLE, Next, and Scan operations over term/posting-list KVs

package btree

import (
	"bytes"
	"testing"
)

func postingsFor(termID uint64) []Posting {
	return []Posting{{DocID: termID * 100, Frequency: uint32(termID)}}
}

func TestIteratorEmpty(t *testing.T) {
	c := newTestContext()
	iter := c.tree.NewIterator()

	if iter.SeekLE(TermKey(1)) {
		t.Error("Expected SeekLE to fail on empty tree")
	}

	if iter.Valid() {
		t.Error("Iterator should not be valid on empty tree")
	}
}

func TestIteratorSeekLE(t *testing.T) {
	c := newTestContext()

	// Insert terms: 1, 3, 5
	c.add(1, postingsFor(1))
	c.add(3, postingsFor(3))
	c.add(5, postingsFor(5))

	iter := c.tree.NewIterator()

	// Seek to exact term
	if !iter.SeekLE(TermKey(3)) {
		t.Fatal("SeekLE failed")
	}
	if !iter.Valid() {
		t.Fatal("Iterator should be valid")
	}
	if !bytes.Equal(iter.Key(), TermKey(3)) {
		t.Errorf("Expected term 3, got %v", iter.Key())
	}
	if !samePostings(DecodePostingList(iter.Val()), postingsFor(3)) {
		t.Errorf("Expected postings for term 3, got %v", DecodePostingList(iter.Val()))
	}

	// Seek to term that doesn't exist (should find previous)
	if !iter.SeekLE(TermKey(4)) {
		t.Fatal("SeekLE failed")
	}
	if !bytes.Equal(iter.Key(), TermKey(3)) {
		t.Errorf("Expected term 3, got %v", iter.Key())
	}

	// Seek to term before all terms
	if !iter.SeekLE(TermKey(0)) {
		t.Fatal("SeekLE failed")
	}
	// Should be at sentinel or first term
}

func TestIteratorNext(t *testing.T) {
	c := newTestContext()

	// Insert terms 0..9
	for i := uint64(0); i < 10; i++ {
		c.add(i, postingsFor(i))
	}

	iter := c.tree.NewIterator()
	if !iter.SeekLE(TermKey(0)) {
		t.Fatal("SeekLE failed")
	}

	// Iterate through all terms
	count := uint64(0)
	for iter.Valid() {
		if !bytes.Equal(iter.Key(), TermKey(count)) {
			t.Errorf("Expected term %d, got %v", count, iter.Key())
		}
		if !samePostings(DecodePostingList(iter.Val()), postingsFor(count)) {
			t.Errorf("Expected postings for term %d, got %v", count, DecodePostingList(iter.Val()))
		}

		count++
		if count < 10 {
			if !iter.Next() {
				t.Fatalf("Next failed at index %d", count)
			}
		} else {
			if iter.Next() {
				t.Error("Next should fail at end")
			}
		}
	}

	if count != 10 {
		t.Errorf("Expected to iterate over 10 terms, got %d", count)
	}
}

func TestIteratorScan(t *testing.T) {
	c := newTestContext()

	// Insert 20 terms
	for i := uint64(0); i < 20; i++ {
		c.add(i, postingsFor(i))
	}

	// Scan from term 5 to term 15
	results := make(map[uint64][]Posting)
	c.tree.Scan(TermKey(5), func(key, val []byte) bool {
		termID := DecodeTermKey(key)
		if termID > 15 {
			return false
		}
		results[termID] = DecodePostingList(val)
		return true
	})

	// Should have terms from 5 to 15
	expectedCount := 11
	if len(results) != expectedCount {
		t.Errorf("Expected %d results, got %d", expectedCount, len(results))
	}

	for i := uint64(5); i <= 15; i++ {
		postings, ok := results[i]
		if !ok {
			t.Errorf("Missing term %d", i)
			continue
		}
		if !samePostings(postings, postingsFor(i)) {
			t.Errorf("Term %d: expected %v, got %v", i, postingsFor(i), postings)
		}
	}
}

func TestIteratorLargeRange(t *testing.T) {
	c := newTestContext()

	// Insert 100 terms
	for i := uint64(0); i < 100; i++ {
		c.add(i, postingsFor(i))
	}

	// Scan all terms
	count := 0
	c.tree.Scan(TermKey(0), func(key, val []byte) bool {
		count++
		return true
	})

	if count != 100 {
		t.Errorf("Expected to scan 100 terms, got %d", count)
	}
}

func TestIteratorPartialScan(t *testing.T) {
	c := newTestContext()

	// Insert 50 terms
	for i := uint64(0); i < 50; i++ {
		c.add(i, postingsFor(i))
	}

	// Scan and stop after 10 items
	count := 0
	c.tree.Scan(TermKey(10), func(key, val []byte) bool {
		count++
		return count < 10
	})

	if count != 10 {
		t.Errorf("Expected to scan 10 terms, got %d", count)
	}
}
