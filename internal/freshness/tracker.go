// Package freshness implements the Freshness Tracker (C3): a per-path
// record of {last-read, last-agent-edit, last-external-edit,
// read-count} answering "may this path be modified?" before a file-edit
// or file-write handler commits a mutation (spec §4.3). It is orthogonal
// to the Permission Engine: freshness is a safety net against silent
// overwrites, checked inside the tool handler rather than the engine
// (spec §9).
package freshness

import (
	"os"
	"sync"
	"time"
)

// Record is the per-path bookkeeping the Tracker maintains.
type Record struct {
	LastRead         *time.Time
	LastAgentEdit    *time.Time
	LastExternalEdit *time.Time
	ReadCount        int
}

// Clock abstracts time.Now for deterministic tests.
type Clock func() time.Time

// StatFunc abstracts os.Stat (mtime lookup) for deterministic tests.
type StatFunc func(path string) (mtime time.Time, err error)

// Tracker is process-wide state: one instance shared by every tool
// invocation in a process, with documented reset points (spec §3). It
// is never a package-level global (spec §9) — construct one and inject
// it wherever tools are wired.
type Tracker struct {
	mu      sync.Mutex
	records map[string]*Record
	now     Clock
	stat    StatFunc
}

// New constructs a Tracker using the real clock and filesystem.
func New() *Tracker {
	return &Tracker{
		records: make(map[string]*Record),
		now:     time.Now,
		stat:    defaultStat,
	}
}

// NewWithClock is used by tests to inject a deterministic clock/stat.
func NewWithClock(now Clock, stat StatFunc) *Tracker {
	return &Tracker{
		records: make(map[string]*Record),
		now:     now,
		stat:    stat,
	}
}

func defaultStat(path string) (time.Time, error) {
	info, err := os.Stat(path)
	if err != nil {
		return time.Time{}, err
	}
	return info.ModTime(), nil
}

func (t *Tracker) recordFor(path string) *Record {
	r, ok := t.records[path]
	if !ok {
		r = &Record{}
		t.records[path] = r
	}
	return r
}

// UpdateRead marks path as freshly read. A read re-establishes ground
// truth, so it clears LastAgentEdit.
func (t *Tracker) UpdateRead(path string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	r := t.recordFor(path)
	now := t.now()
	r.LastRead = &now
	r.ReadCount++
	r.LastAgentEdit = nil

	if mtime, err := t.stat(path); err == nil {
		r.LastExternalEdit = &mtime
	}
}

// UpdateAgentEdit marks path as just written by the agent.
func (t *Tracker) UpdateAgentEdit(path string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	r := t.recordFor(path)
	now := t.now()
	r.LastAgentEdit = &now

	if mtime, err := t.stat(path); err == nil {
		r.LastExternalEdit = &mtime
	}
}

// Check answers "may this path be modified?" per the decision table in
// spec §4.3.
func (t *Tracker) Check(path string) (needsRead bool, reason string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	r, ok := t.records[path]
	if !ok {
		return true, "must read before modify"
	}

	switch {
	case r.LastAgentEdit != nil:
		mtime, err := t.stat(path)
		if err != nil {
			return true, "inaccessible"
		}
		if mtime.After(*r.LastAgentEdit) {
			return true, "externally modified"
		}
		return false, "agent has latest"

	case r.LastRead != nil:
		mtime, err := t.stat(path)
		if err != nil {
			return true, "inaccessible"
		}
		if mtime.After(*r.LastRead) {
			return true, "externally modified"
		}
		return false, "unchanged"

	default:
		return true, "must read before modify"
	}
}

// Record returns a copy of the current record for path, if any.
func (t *Tracker) Record(path string) (Record, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	r, ok := t.records[path]
	if !ok {
		return Record{}, false
	}
	return *r, true
}

// Clear removes the record for path — an explicit reset point.
func (t *Tracker) Clear(path string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.records, path)
}

// ClearAll removes every record — used on session reset.
func (t *Tracker) ClearAll() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.records = make(map[string]*Record)
}
