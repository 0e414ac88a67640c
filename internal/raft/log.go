package raft

import "sync"

// Log is the in-memory replicated log. Index 0 is always the sentinel
// (term 0, empty command); real entries occupy indices
// lastIncludedIndex+1 .. lastIndex. Entries below lastIncludedIndex have
// been compacted into a snapshot and are no longer retrievable.
//
// Written only by the owning Node (Propose, its RPC handlers and its
// snapshotting); readers (Propose's caller,
// the apply loop) go through the Node's own locking. Each Log method takes
// Log's own lock, but a sequence of calls (such as TruncateAfter followed
// by Append) is atomic only under the Node's mu.
type Log struct {
	mu                sync.RWMutex
	entries           []LogEntry // entries[i] is at index lastIncludedIndex+1+i
	lastIncludedIndex uint64
	lastIncludedTerm  uint64
}

// NewLog returns an empty log with the standard index-0 sentinel.
func NewLog() *Log {
	return &Log{}
}

// LastIndex returns the index of the last entry in the log (0 if empty and
// un-compacted).
func (l *Log) LastIndex() uint64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.lastIncludedIndex + uint64(len(l.entries))
}

// LastTerm returns the term of the last entry in the log (0 for the
// sentinel).
func (l *Log) LastTerm() uint64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if n := len(l.entries); n > 0 {
		return l.entries[n-1].Term
	}
	return l.lastIncludedTerm
}

// Get returns the entry at index, or (zero, false) if it has been
// compacted away or does not yet exist. Index 0 returns the sentinel.
func (l *Log) Get(index uint64) (LogEntry, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.getLocked(index)
}

func (l *Log) getLocked(index uint64) (LogEntry, bool) {
	if index == 0 {
		return LogEntry{}, true
	}
	if index <= l.lastIncludedIndex {
		return LogEntry{}, false
	}
	offset := index - l.lastIncludedIndex - 1
	if offset >= uint64(len(l.entries)) {
		return LogEntry{}, false
	}
	return l.entries[offset], true
}

// Term returns the term stored at index (0 for the sentinel), or
// (0, false) if the index is unknown to this log.
func (l *Log) Term(index uint64) (uint64, bool) {
	e, ok := l.Get(index)
	if !ok {
		return 0, false
	}
	return e.Term, true
}

// Append adds entries to the end of the log. Callers must ensure entries
// are contiguous and follow the current LastIndex (the Node's apply of
// conflict resolution handles truncation before calling Append).
func (l *Log) Append(entries ...LogEntry) {
	if len(entries) == 0 {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, entries...)
}

// TruncateAfter discards every entry with index > after, keeping the log
// consistent with a leader that has overwritten our tail.
func (l *Log) TruncateAfter(after uint64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if after < l.lastIncludedIndex {
		after = l.lastIncludedIndex
	}
	offset := after - l.lastIncludedIndex
	if offset >= uint64(len(l.entries)) {
		return
	}
	l.entries = l.entries[:offset]
}

// EntriesFrom returns a copy of every entry with index >= from, in order.
func (l *Log) EntriesFrom(from uint64) []LogEntry {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if from <= l.lastIncludedIndex {
		from = l.lastIncludedIndex + 1
	}
	offset := from - l.lastIncludedIndex - 1
	if offset >= uint64(len(l.entries)) {
		return nil
	}
	out := make([]LogEntry, len(l.entries)-int(offset))
	copy(out, l.entries[offset:])
	return out
}

// ConflictSearch finds the first index carrying conflictTerm, scanning
// backward from before. Used to compute AppendEntriesResponse.ConflictIndex
// when a follower's entry at the leader's PrevLogIndex has a different
// term than the leader expects — the fast-backtrack optimization.
func (l *Log) ConflictSearch(before uint64, conflictTerm uint64) uint64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	idx := before
	for idx > l.lastIncludedIndex+1 {
		e, ok := l.getLocked(idx - 1)
		if !ok || e.Term != conflictTerm {
			break
		}
		idx--
	}
	return idx
}

// CompactBefore discards every entry with index <= upToIndex, recording it
// as covered by a snapshot. The caller is responsible for having persisted
// the corresponding Snapshot before calling this.
func (l *Log) CompactBefore(upToIndex, upToTerm uint64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if upToIndex <= l.lastIncludedIndex {
		return
	}
	offset := upToIndex - l.lastIncludedIndex
	if offset > uint64(len(l.entries)) {
		offset = uint64(len(l.entries))
	}
	l.entries = append([]LogEntry(nil), l.entries[offset:]...)
	l.lastIncludedIndex = upToIndex
	l.lastIncludedTerm = upToTerm
}

// Size returns the number of entries retained in memory (post-compaction
// entries are not counted), used to decide when to take a snapshot.
func (l *Log) Size() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.entries)
}

// LastIncluded returns the index/term covered by the most recent snapshot
// compaction (0, 0 if none has occurred).
func (l *Log) LastIncluded() (uint64, uint64) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.lastIncludedIndex, l.lastIncludedTerm
}
