// Package queue holds the pending-upload queue and its persistence.
package queue

// Entry is an archived file waiting to be uploaded.
type Entry struct {
	LocalPath         string `json:"local_path"`
	RemoteDestination string `json:"remote_destination"` // bucket/key
}

// Queue is the in-memory, ordered list of pending uploads for one run.
// Duplicates are allowed; Remove drops the first exact match only.
type Queue struct {
	entries []Entry
}

// New creates a queue holding a copy of entries.
func New(entries []Entry) *Queue {
	q := &Queue{entries: make([]Entry, 0, len(entries))}
	q.entries = append(q.entries, entries...)
	return q
}

// Append adds an entry to the end of the queue.
func (q *Queue) Append(e Entry) {
	q.entries = append(q.entries, e)
}

// Remove deletes the first entry equal to e. It reports whether one was found.
func (q *Queue) Remove(e Entry) bool {
	for i, cur := range q.entries {
		if cur == e {
			q.entries = append(q.entries[:i], q.entries[i+1:]...)
			return true
		}
	}
	return false
}

// Snapshot returns a copy of the current entries, safe to range over while
// the queue is mutated.
func (q *Queue) Snapshot() []Entry {
	out := make([]Entry, len(q.entries))
	copy(out, q.entries)
	return out
}

// Entries is an alias of Snapshot used when persisting.
func (q *Queue) Entries() []Entry {
	return q.Snapshot()
}

// LocalPaths returns the set of local paths currently pending.
func (q *Queue) LocalPaths() map[string]struct{} {
	set := make(map[string]struct{}, len(q.entries))
	for _, e := range q.entries {
		set[e.LocalPath] = struct{}{}
	}
	return set
}

// Contains reports whether localPath is pending.
func (q *Queue) Contains(localPath string) bool {
	for _, e := range q.entries {
		if e.LocalPath == localPath {
			return true
		}
	}
	return false
}

// Len returns the number of pending entries.
func (q *Queue) Len() int {
	return len(q.entries)
}
