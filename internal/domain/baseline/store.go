package baseline

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

const shardCount = 32

type shard struct {
	mu        sync.RWMutex
	baselines map[uuid.UUID]*Baseline
}

// DefaultCapacity bounds each rolling sequence when none is configured.
const DefaultCapacity = 10

// Store holds behavioral baselines keyed by subject id. It is sharded so
// updates for different subjects do not contend; operations on one subject
// are linearizable under its shard lock.
type Store struct {
	shards   [shardCount]shard
	capacity int
}

// NewStore creates a baseline store with the given sequence capacity.
func NewStore(capacity int) *Store {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	s := &Store{capacity: capacity}
	for i := range s.shards {
		s.shards[i].baselines = make(map[uuid.UUID]*Baseline)
	}
	return s
}

func (s *Store) shardFor(subjectID uuid.UUID) *shard {
	return &s.shards[subjectID[0]%shardCount]
}

// RecordSample appends a behavioral sample for the subject, creating the
// baseline on first use.
func (s *Store) RecordSample(subjectID uuid.UUID, kind SampleKind, value float64, at time.Time) {
	sh := s.shardFor(subjectID)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	b, ok := sh.baselines[subjectID]
	if !ok {
		b = newBaseline(s.capacity)
		sh.baselines[subjectID] = b
	}
	b.record(kind, value, at)
}

// RecordIdentity tracks a device fingerprint and IP for the subject.
func (s *Store) RecordIdentity(subjectID uuid.UUID, fingerprint, ip string, at time.Time) {
	sh := s.shardFor(subjectID)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	b, ok := sh.baselines[subjectID]
	if !ok {
		b = newBaseline(s.capacity)
		sh.baselines[subjectID] = b
	}
	b.recordIdentity(fingerprint, ip, at)
}

// Snapshot returns a deep copy of the subject's baseline, or false if the
// subject has never been seen.
func (s *Store) Snapshot(subjectID uuid.UUID) (*Baseline, bool) {
	sh := s.shardFor(subjectID)
	sh.mu.RLock()
	defer sh.mu.RUnlock()

	b, ok := sh.baselines[subjectID]
	if !ok {
		return nil, false
	}
	return b.clone(), true
}

// ActiveSince returns subjects whose baseline saw a sample after the cutoff.
// Used by the behavioral sweep to enumerate candidates.
func (s *Store) ActiveSince(cutoff time.Time) []uuid.UUID {
	var subjects []uuid.UUID
	for i := range s.shards {
		sh := &s.shards[i]
		sh.mu.RLock()
		for id, b := range sh.baselines {
			if b.lastSeen.After(cutoff) {
				subjects = append(subjects, id)
			}
		}
		sh.mu.RUnlock()
	}
	return subjects
}

// PruneIdle drops baselines with no samples since maxIdle ago and returns
// how many were removed. Retention policy for inactive subjects; capacity
// trimming itself happens on every write.
func (s *Store) PruneIdle(maxIdle time.Duration) int {
	cutoff := time.Now().Add(-maxIdle)
	pruned := 0
	for i := range s.shards {
		sh := &s.shards[i]
		sh.mu.Lock()
		for id, b := range sh.baselines {
			if b.lastSeen.Before(cutoff) {
				delete(sh.baselines, id)
				pruned++
			}
		}
		sh.mu.Unlock()
	}
	return pruned
}

// Len returns the number of tracked subjects.
func (s *Store) Len() int {
	n := 0
	for i := range s.shards {
		sh := &s.shards[i]
		sh.mu.RLock()
		n += len(sh.baselines)
		sh.mu.RUnlock()
	}
	return n
}
