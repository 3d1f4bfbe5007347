// ABOUTME: Unit tests for B+Tree node operations
// ABOUTME: Tests node creation, KV access, and manipulation functions over term/posting-list KVs

package btree

import (
	"bytes"
	"testing"
)

func TestNodeHeader(t *testing.T) {
	node := make(BNode, BTREE_PAGE_SIZE)

	// Test setting and getting header
	node.setHeader(BNODE_LEAF, 3)

	if node.btype() != BNODE_LEAF {
		t.Errorf("Expected node type %d, got %d", BNODE_LEAF, node.btype())
	}

	if node.nkeys() != 3 {
		t.Errorf("Expected 3 keys, got %d", node.nkeys())
	}
}

func TestNodePointers(t *testing.T) {
	node := make(BNode, BTREE_PAGE_SIZE)
	node.setHeader(BNODE_NODE, 3)

	// Set pointers
	node.setPtr(0, 100)
	node.setPtr(1, 200)
	node.setPtr(2, 300)

	// Verify pointers
	if node.getPtr(0) != 100 {
		t.Errorf("Expected pointer 100, got %d", node.getPtr(0))
	}
	if node.getPtr(1) != 200 {
		t.Errorf("Expected pointer 200, got %d", node.getPtr(1))
	}
	if node.getPtr(2) != 300 {
		t.Errorf("Expected pointer 300, got %d", node.getPtr(2))
	}
}

func TestNodeKVOperations(t *testing.T) {
	node := make(BNode, BTREE_PAGE_SIZE)
	node.setHeader(BNODE_LEAF, 0)

	// Add a term's KV pair
	key1 := TermKey(1)
	val1 := EncodePostingList([]Posting{{DocID: 10, Frequency: 2}})

	node.setHeader(BNODE_LEAF, 1)
	nodeAppendKV(node, 0, 0, key1, val1)

	// Verify key and value
	gotKey := node.getKey(0)
	if !bytes.Equal(gotKey, key1) {
		t.Errorf("Expected key %v, got %v", key1, gotKey)
	}

	gotVal := node.getVal(0)
	if !bytes.Equal(gotVal, val1) {
		t.Errorf("Expected value %v, got %v", val1, gotVal)
	}
}

func TestNodeAppendMultipleKVs(t *testing.T) {
	node := make(BNode, BTREE_PAGE_SIZE)
	node.setHeader(BNODE_LEAF, 3)

	// Add multiple terms' KV pairs
	keys := [][]byte{
		TermKey(1),
		TermKey(2),
		TermKey(3),
	}
	vals := [][]byte{
		EncodePostingList([]Posting{{DocID: 10, Frequency: 1}}),
		EncodePostingList([]Posting{{DocID: 20, Frequency: 2}}),
		EncodePostingList([]Posting{{DocID: 30, Frequency: 3}}),
	}

	for i := 0; i < 3; i++ {
		nodeAppendKV(node, uint16(i), 0, keys[i], vals[i])
	}

	// Verify all KVs
	for i := 0; i < 3; i++ {
		gotKey := node.getKey(uint16(i))
		if !bytes.Equal(gotKey, keys[i]) {
			t.Errorf("Key %d: expected %v, got %v", i, keys[i], gotKey)
		}

		gotVal := node.getVal(uint16(i))
		if !bytes.Equal(gotVal, vals[i]) {
			t.Errorf("Value %d: expected %v, got %v", i, vals[i], gotVal)
		}
	}
}

func TestNodeLookupLE(t *testing.T) {
	node := make(BNode, BTREE_PAGE_SIZE)
	node.setHeader(BNODE_LEAF, 4)

	// Create sorted term-ids
	keys := [][]byte{
		TermKey(1),
		TermKey(3),
		TermKey(5),
		TermKey(7),
	}

	for i, key := range keys {
		nodeAppendKV(node, uint16(i), 0, key, EncodePostingList([]Posting{{DocID: 1, Frequency: 1}}))
	}

	tests := []struct {
		searchKey []byte
		expected  uint16
	}{
		{TermKey(1), 0},
		{TermKey(2), 0}, // between 1 and 3
		{TermKey(3), 1},
		{TermKey(4), 1}, // between 3 and 5
		{TermKey(5), 2},
		{TermKey(6), 2}, // between 5 and 7
		{TermKey(7), 3},
		{TermKey(8), 3}, // after 7
	}

	for _, tt := range tests {
		got := nodeLookupLE(node, tt.searchKey)
		if got != tt.expected {
			t.Errorf("nodeLookupLE(%v) = %d, want %d", tt.searchKey, got, tt.expected)
		}
	}
}

func TestNodeAppendRange(t *testing.T) {
	oldNode := make(BNode, BTREE_PAGE_SIZE)
	oldNode.setHeader(BNODE_LEAF, 3)

	// Populate old node with terms 1, 2, 3
	keys := [][]byte{TermKey(1), TermKey(2), TermKey(3)}
	vals := [][]byte{
		EncodePostingList([]Posting{{DocID: 1, Frequency: 1}}),
		EncodePostingList([]Posting{{DocID: 2, Frequency: 1}}),
		EncodePostingList([]Posting{{DocID: 3, Frequency: 1}}),
	}

	for i := 0; i < 3; i++ {
		nodeAppendKV(oldNode, uint16(i), 0, keys[i], vals[i])
	}

	// Create new node and copy range
	newNode := make(BNode, BTREE_PAGE_SIZE)
	newNode.setHeader(BNODE_LEAF, 2)

	// Copy 2 entries from oldNode[1:3] to newNode[0:2]
	nodeAppendRange(newNode, oldNode, 0, 1, 2)

	// Verify copied data
	expectedKeys := [][]byte{TermKey(2), TermKey(3)}
	expectedVals := [][]byte{vals[1], vals[2]}

	for i := 0; i < 2; i++ {
		gotKey := newNode.getKey(uint16(i))
		if !bytes.Equal(gotKey, expectedKeys[i]) {
			t.Errorf("Key %d: expected %v, got %v", i, expectedKeys[i], gotKey)
		}

		gotVal := newNode.getVal(uint16(i))
		if !bytes.Equal(gotVal, expectedVals[i]) {
			t.Errorf("Value %d: expected %v, got %v", i, expectedVals[i], gotVal)
		}
	}
}

func TestNodeSize(t *testing.T) {
	node := make(BNode, BTREE_PAGE_SIZE)
	node.setHeader(BNODE_LEAF, 2)

	nodeAppendKV(node, 0, 0, TermKey(1), EncodePostingList([]Posting{{DocID: 1, Frequency: 1}}))
	nodeAppendKV(node, 1, 0, TermKey(2), EncodePostingList([]Posting{{DocID: 2, Frequency: 1}}))

	size := node.nbytes()

	// Size should be header + pointers + offsets + actual KV data
	// This is a basic sanity check
	if size == 0 || size > BTREE_PAGE_SIZE {
		t.Errorf("Invalid node size: %d", size)
	}
}
