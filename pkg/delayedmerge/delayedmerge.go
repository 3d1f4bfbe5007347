// Package delayedmerge implements the delayed-update pipeline (C6): the
// small/large segment model and a background worker pool that consumes
// a single job kind, Discard(lockName) — "this index's small segment may
// have produced a new version; consider discarding old versions". It is
// grounded on pkg/wal/checkpoint.go's ticker-driven background-goroutine
// shape (Start/Stop with stopCh/doneCh), generalized from one periodic
// task to a bounded pool of N workers draining a shared job channel, per
// spec.md §4.6 and §5 ("the DelayedMerge pool is a separate set of
// threads consuming a shared queue; each job takes a lock on the named
// index's lock name").
package delayedmerge

import (
	"sync"
	"time"
)

// Mode selects how mutations reach the main index, per spec.md §4.6.
type Mode int

const (
	// None applies every mutation to the main index directly.
	None Mode = iota
	// Sync routes mutations to a small segment merged before the
	// statement returns.
	Sync
	// Async routes mutations to a small segment merged later by the
	// background pool.
	Async
)

// SegmentState distinguishes the live write target from sealed,
// merge-eligible segments (spec.md §3 "Segment").
type SegmentState int

const (
	Small SegmentState = iota
	Large
)

// DocumentRange is the inclusive [First,Last] document-id span a
// segment covers.
type DocumentRange struct {
	First, Last uint64
}

func (r DocumentRange) contains(id uint64) bool { return id >= r.First && id <= r.Last }

// Segment is one generation of the delayed-merge model.
type Segment struct {
	Generation uint64
	State      SegmentState
	Range      DocumentRange
}

// MergeFunc merges every small segment of lockName into the main index,
// returning the number of documents merged. Supplied by the caller
// (pkg/logicalfile), since only it knows how to fold a small segment's
// rows into indexfile/lob state.
type MergeFunc func(lockName string) (merged int, err error)

// VacuumFunc reclaims pages belonging to logically-deleted entries once
// no transaction can observe them (spec.md §4.6 "vacuum=true ... the job
// also compacts deleted entries", chaining pkg/lob.Store.Compact /
// pkg/indexfile vacuum after a successful merge).
type VacuumFunc func(lockName string) (reclaimed int, err error)

// Job is the pool's single job kind.
type Job struct {
	LockName string
}

// Result reports the outcome of one job.
type Result struct {
	LockName string
	Merged   int
	Vacuumed int
	Err      error
	Duration time.Duration
}

// LockTable is the engine's stand-in for the external lock manager
// named out of scope in spec.md §1: each job acquires its index's named
// lock before merging, so two concurrent Discard jobs for the same
// index never run their merge functions in parallel (spec.md §5).
type LockTable struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func NewLockTable() *LockTable {
	return &LockTable{locks: make(map[string]*sync.Mutex)}
}

func (t *LockTable) named(name string) *sync.Mutex {
	t.mu.Lock()
	defer t.mu.Unlock()
	l, ok := t.locks[name]
	if !ok {
		l = &sync.Mutex{}
		t.locks[name] = l
	}
	return l
}

// Pool is the DelayedMerge worker pool: N goroutines draining a shared
// job queue, one job kind (Discard), per spec.md §4.6/§5.
type Pool struct {
	merge  MergeFunc
	vacuum VacuumFunc
	locks  *LockTable

	jobs    chan Job
	results chan Result
	wg      sync.WaitGroup
}

// New builds a pool of workers workers. merge and vacuum may be called
// concurrently for different lockNames but never for the same one
// (enforced by LockTable).
func New(workers int, merge MergeFunc, vacuum VacuumFunc) *Pool {
	if workers < 1 {
		workers = 1
	}
	p := &Pool{
		merge:   merge,
		vacuum:  vacuum,
		locks:   NewLockTable(),
		jobs:    make(chan Job, 256),
		results: make(chan Result, 256),
	}
	for i := 0; i < workers; i++ {
		p.wg.Add(1)
		go p.runWorker()
	}
	return p
}

func (p *Pool) runWorker() {
	defer p.wg.Done()
	for job := range p.jobs {
		p.process(job)
	}
}

func (p *Pool) process(job Job) {
	lock := p.locks.named(job.LockName)
	lock.Lock()
	defer lock.Unlock()

	start := time.Now()
	res := Result{LockName: job.LockName}
	merged, err := p.merge(job.LockName)
	res.Merged = merged
	if err != nil {
		res.Err = err
		res.Duration = time.Since(start)
		p.deliver(res)
		return
	}
	if p.vacuum != nil {
		if n, err := p.vacuum(job.LockName); err != nil {
			res.Err = err
		} else {
			res.Vacuumed = n
		}
	}
	res.Duration = time.Since(start)
	p.deliver(res)
}

func (p *Pool) deliver(res Result) {
	select {
	case p.results <- res:
	default:
		// Results channel is a best-effort observability feed read
		// through Results(); a full buffer means nobody is watching, so
		// drop rather than block a worker.
	}
}

// Enqueue submits a Discard job asynchronously. Batch-mode callers
// should not call Enqueue at all (spec.md §4.6 "batch mode disables job
// enqueue"), which is why this package has no package-level flag for it
// — the decision lives in the caller's per-handle batch-mode field, per
// DESIGN NOTES §9.
func (p *Pool) Enqueue(lockName string) {
	p.jobs <- Job{LockName: lockName}
}

// RunSync performs a merge (and, if vacuum is configured, a vacuum)
// inline and returns its result, for Mode == Sync callers that must
// merge before their statement returns.
func (p *Pool) RunSync(lockName string) Result {
	start := time.Now()
	lock := p.locks.named(lockName)
	lock.Lock()
	defer lock.Unlock()

	res := Result{LockName: lockName}
	merged, err := p.merge(lockName)
	res.Merged = merged
	if err != nil {
		res.Err = err
		res.Duration = time.Since(start)
		return res
	}
	if p.vacuum != nil {
		if n, err := p.vacuum(lockName); err != nil {
			res.Err = err
		} else {
			res.Vacuumed = n
		}
	}
	res.Duration = time.Since(start)
	return res
}

// Results exposes completed-job outcomes for observability wiring.
func (p *Pool) Results() <-chan Result { return p.results }

// Close stops accepting new jobs and waits for in-flight ones to drain.
func (p *Pool) Close() {
	close(p.jobs)
	p.wg.Wait()
	close(p.results)
}

// Manager ties a Mode, a Pool, and the small/large segment list of one
// index together, implementing spec.md §4.6's mode dispatch.
type Manager struct {
	mu       sync.Mutex
	mode     Mode
	vacuum   bool
	lockName string
	pool     *Pool
	segments []Segment
	nextGen  uint64
}

func NewManager(mode Mode, vacuum bool, lockName string, pool *Pool) *Manager {
	return &Manager{mode: mode, vacuum: vacuum, lockName: lockName, pool: pool}
}

// Mode reports the manager's dispatch mode.
func (m *Manager) Mode() Mode {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.mode
}

// OnMutation implements spec.md §4.6's "a Discard job is enqueued on
// every successful update/insert/expunge if not in batch mode". batch
// is the caller's per-Handle flag (DESIGN NOTES §9), not package state.
func (m *Manager) OnMutation(batch bool) {
	if m.mode == None || batch {
		return
	}
	if m.mode == Sync {
		m.pool.RunSync(m.lockName)
		return
	}
	m.pool.Enqueue(m.lockName)
}

// Seal appends a sealed, merge-eligible large segment ending at lastDoc,
// at the next generation, and returns it. No small segment is added to
// the list.
func (m *Manager) Seal(lastDoc uint64) Segment {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextGen++
	sealed := Segment{Generation: m.nextGen, State: Large, Range: DocumentRange{Last: lastDoc}}
	m.segments = append(m.segments, sealed)
	return sealed
}

// Segments returns a snapshot of the tracked segment list.
func (m *Manager) Segments() []Segment {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Segment, len(m.segments))
	copy(out, m.segments)
	return out
}

// Vacuum reports whether successful merges should chain a compaction
// pass, per the FileID's vacuum flag (defaults true once delayed is set,
// per spec.md §4.5).
func (m *Manager) Vacuum() bool { return m.vacuum }
