package storage

import "github.com/octoreflex/ranswarm/internal/cache"

// BoltPersister adapts DB to cache.Persister, snapshotting evicted agent
// working sets to the working_sets bucket.
type BoltPersister struct {
	db *DB
}

// NewBoltPersister wraps db as a cache.Persister.
func NewBoltPersister(db *DB) *BoltPersister {
	return &BoltPersister{db: db}
}

// PersistEvicted implements cache.Persister.
func (p *BoltPersister) PersistEvicted(e cache.Entry) error {
	return p.db.PutWorkingSet(WorkingSetRecord{
		AgentID:          e.ID,
		QTableBytes:      e.QTableBytes,
		TrajectoryBytes:  e.TrajectoryBytes,
		HNSWSliceBytes:   e.HNSWSliceBytes,
		MemoryUsageBytes: e.MemoryUsageBytes,
		LastAccessed:     e.LastAccessed,
		AccessCount:      e.AccessCount,
	})
}
