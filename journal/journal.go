// Package journal records collection cycles in a SQLite database so the
// collector's behaviour can be examined after a run.
package journal

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/tliron/commonlog"
	_ "modernc.org/sqlite"

	"github.com/chazu/babygc/vm"
)

// Entry is one recorded collection.
type Entry struct {
	VMID        string
	Cycle       uint64
	Trigger     string
	HeapBefore  int
	Marked      int
	Swept       int
	Live        int
	Threshold   int
	WeakCleared int
	Duration    time.Duration
	At          time.Time
}

// Journal handles SQLite storage for collection statistics.
type Journal struct {
	db   *sql.DB
	path string
	log  commonlog.Logger
	mu   sync.Mutex
}

// Open opens or creates the journal database at path.
func Open(path string) (*Journal, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("creating journal directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// Set busy timeout for concurrent access
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}

	_, err = db.Exec(`CREATE TABLE IF NOT EXISTS cycles (
		vm_id        TEXT    NOT NULL,
		cycle        INTEGER NOT NULL,
		trigger_kind TEXT    NOT NULL,
		heap_before  INTEGER NOT NULL,
		marked       INTEGER NOT NULL,
		swept        INTEGER NOT NULL,
		live         INTEGER NOT NULL,
		threshold    INTEGER NOT NULL,
		weak_cleared INTEGER NOT NULL,
		duration_ns  INTEGER NOT NULL,
		at_ns        INTEGER NOT NULL,
		PRIMARY KEY (vm_id, cycle)
	)`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating table: %w", err)
	}

	return &Journal{
		db:   db,
		path: path,
		log:  commonlog.GetLogger("babygc.journal"),
	}, nil
}

// Path returns the database path.
func (j *Journal) Path() string {
	return j.path
}

// Close closes the database connection
func (j *Journal) Close() error {
	if j.db != nil {
		return j.db.Close()
	}
	return nil
}

// Record stores the statistics of one collection.
func (j *Journal) Record(vmID string, s *vm.GCStats) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	_, err := j.db.Exec(
		`INSERT OR REPLACE INTO cycles
		(vm_id, cycle, trigger_kind, heap_before, marked, swept, live, threshold, weak_cleared, duration_ns, at_ns)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		vmID, int64(s.Cycle), s.Trigger.String(), s.HeapBefore, s.Marked, s.Swept,
		s.Live, s.Threshold, s.WeakCleared, int64(s.Duration), s.Timestamp.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("recording cycle %d: %w", s.Cycle, err)
	}
	return nil
}

// Cycles returns the recorded collections of one VM in cycle order.
func (j *Journal) Cycles(vmID string) ([]Entry, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	rows, err := j.db.Query(
		`SELECT cycle, trigger_kind, heap_before, marked, swept, live, threshold, weak_cleared, duration_ns, at_ns
		FROM cycles WHERE vm_id = ? ORDER BY cycle`, vmID)
	if err != nil {
		return nil, fmt.Errorf("querying cycles: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var (
			e                Entry
			cycle, dur, atNs int64
		)
		if err := rows.Scan(&cycle, &e.Trigger, &e.HeapBefore, &e.Marked, &e.Swept,
			&e.Live, &e.Threshold, &e.WeakCleared, &dur, &atNs); err != nil {
			return nil, fmt.Errorf("scanning cycle: %w", err)
		}
		e.VMID = vmID
		e.Cycle = uint64(cycle)
		e.Duration = time.Duration(dur)
		e.At = time.Unix(0, atNs)
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading cycles: %w", err)
	}
	return entries, nil
}

// Attach records every future collection of v. Write failures are logged
// rather than returned, since collection itself cannot fail.
func (j *Journal) Attach(v *vm.VM) {
	id := v.ID()
	v.OnCollect(func(s *vm.GCStats) {
		if err := j.Record(id, s); err != nil {
			j.log.Errorf("journal %s: %v", j.path, err)
		}
	})
}
