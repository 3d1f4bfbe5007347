package journal

import (
	"fmt"
	"os"
)

// ReplayFunc redoes one page-level operation during recovery.
type ReplayFunc func(op OpType, pageID uint32, payload []byte) error

// Recovery replays a Journal's committed transactions, grounded on the
// teacher's pkg/wal.Recovery (same group-by-transaction /
// last-checkpoint logic, generalized to page ops).
type Recovery struct {
	j *Journal
}

func NewRecovery(j *Journal) *Recovery { return &Recovery{j: j} }

type txn struct {
	TxnID     uint64
	StartLSN  uint64
	Entries   []*Entry
	Committed bool
}

func readAll(files []string) ([]*Entry, error) {
	var entries []*Entry
	for _, f := range files {
		fd, err := os.Open(f)
		if err != nil {
			return nil, err
		}
		for {
			e, err := readEntry(fd)
			if err != nil {
				break
			}
			entries = append(entries, e)
		}
		fd.Close()
	}
	return entries, nil
}

func groupByTransaction(entries []*Entry) []*txn {
	byID := make(map[uint64]*txn)
	var order []*txn
	for _, e := range entries {
		if e.OpType == OpCheckpoint {
			continue
		}
		t, ok := byID[e.TxnID]
		if !ok {
			t = &txn{TxnID: e.TxnID, StartLSN: e.LSN}
			byID[e.TxnID] = t
			order = append(order, t)
		}
		if e.OpType == OpCommit {
			t.Committed = true
		} else {
			t.Entries = append(t.Entries, e)
		}
	}
	return order
}

func findLastCheckpoint(entries []*Entry) *Entry {
	for i := len(entries) - 1; i >= 0; i-- {
		if entries[i].OpType == OpCheckpoint {
			return entries[i]
		}
	}
	return nil
}

// Recover replays every committed transaction's page operations in LSN
// order, skipping transactions that began before the last checkpoint.
func (r *Recovery) Recover(replay ReplayFunc) error {
	files, err := r.j.findLogFiles()
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	entries, err := readAll(files)
	if err != nil {
		return fmt.Errorf("read journal entries: %w", err)
	}
	txns := groupByTransaction(entries)
	checkpoint := findLastCheckpoint(entries)

	for _, t := range txns {
		if checkpoint != nil && t.StartLSN < checkpoint.LSN {
			continue
		}
		if !t.Committed {
			continue
		}
		for _, e := range t.Entries {
			if e.OpType == OpPageWrite || e.OpType == OpPageFree {
				if err := replay(e.OpType, e.PageID, e.Payload); err != nil {
					return fmt.Errorf("replay failed at LSN %d: %w", e.LSN, err)
				}
			}
		}
	}
	return nil
}
