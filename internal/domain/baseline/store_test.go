package baseline

import (
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStore_RecordSample_CapacityBound(t *testing.T) {
	store := NewStore(10)
	subject := uuid.New()

	for i := 0; i < 50; i++ {
		store.RecordSample(subject, SampleSessionDuration, float64(i), time.Now())
	}

	b, ok := store.Snapshot(subject)
	require.True(t, ok)
	seq := b.Samples(SampleSessionDuration)
	require.Len(t, seq, 10)
	// FIFO eviction keeps the newest samples
	assert.Equal(t, float64(40), seq[0])
	assert.Equal(t, float64(49), seq[9])
}

func TestStore_Snapshot_UnknownSubject(t *testing.T) {
	store := NewStore(10)
	_, ok := store.Snapshot(uuid.New())
	assert.False(t, ok)
}

func TestStore_Snapshot_IsDeepCopy(t *testing.T) {
	store := NewStore(10)
	subject := uuid.New()
	store.RecordSample(subject, SampleTypingInterval, 120, time.Now())

	snap, ok := store.Snapshot(subject)
	require.True(t, ok)

	store.RecordSample(subject, SampleTypingInterval, 500, time.Now())
	assert.Len(t, snap.Samples(SampleTypingInterval), 1)
}

func TestBaseline_Mean(t *testing.T) {
	store := NewStore(10)
	subject := uuid.New()
	for _, v := range []float64{100, 200, 300} {
		store.RecordSample(subject, SampleClickDuration, v, time.Now())
	}

	b, _ := store.Snapshot(subject)
	mean, ok := b.Mean(SampleClickDuration)
	require.True(t, ok)
	assert.InDelta(t, 200, mean, 1e-9)

	_, ok = b.Mean(SampleSessionDuration)
	assert.False(t, ok)
}

func TestStore_RecordIdentity_BoundedUnique(t *testing.T) {
	store := NewStore(3)
	subject := uuid.New()

	store.RecordIdentity(subject, "fp-1", "10.0.0.1", time.Now())
	store.RecordIdentity(subject, "fp-1", "10.0.0.1", time.Now()) // duplicate ignored
	store.RecordIdentity(subject, "fp-2", "10.0.0.2", time.Now())
	store.RecordIdentity(subject, "fp-3", "10.0.0.3", time.Now())
	store.RecordIdentity(subject, "fp-4", "10.0.0.4", time.Now())

	b, _ := store.Snapshot(subject)
	assert.Len(t, b.Fingerprints(), 3)
	assert.NotContains(t, b.Fingerprints(), "fp-1") // oldest evicted
	assert.Contains(t, b.Fingerprints(), "fp-4")
}

func TestStore_ConcurrentSameSubject(t *testing.T) {
	store := NewStore(10)
	subject := uuid.New()

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				store.RecordSample(subject, SampleSessionDuration, float64(i), time.Now())
				store.Snapshot(subject)
			}
		}()
	}
	wg.Wait()

	b, ok := store.Snapshot(subject)
	require.True(t, ok)
	// Sequence never exceeds capacity regardless of interleaving
	assert.LessOrEqual(t, len(b.Samples(SampleSessionDuration)), 10)
}

func TestStore_PruneIdle(t *testing.T) {
	store := NewStore(10)
	stale := uuid.New()
	fresh := uuid.New()

	store.RecordSample(stale, SampleSessionDuration, 1, time.Now().Add(-48*time.Hour))
	store.RecordSample(fresh, SampleSessionDuration, 1, time.Now())

	pruned := store.PruneIdle(24 * time.Hour)
	assert.Equal(t, 1, pruned)

	_, ok := store.Snapshot(stale)
	assert.False(t, ok)
	_, ok = store.Snapshot(fresh)
	assert.True(t, ok)
	assert.Equal(t, 1, store.Len())
}

func TestStore_ActiveSince(t *testing.T) {
	store := NewStore(10)
	old := uuid.New()
	recent := uuid.New()

	store.RecordSample(old, SampleSessionDuration, 1, time.Now().Add(-2*time.Hour))
	store.RecordSample(recent, SampleSessionDuration, 1, time.Now())

	active := store.ActiveSince(time.Now().Add(-time.Hour))
	require.Len(t, active, 1)
	assert.Equal(t, recent, active[0])
}
