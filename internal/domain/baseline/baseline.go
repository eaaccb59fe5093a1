package baseline

import "time"

// SampleKind identifies a behavioral feature tracked in the baseline
type SampleKind string

const (
	SampleSessionDuration SampleKind = "session_duration"
	SampleTypingInterval  SampleKind = "typing_interval"
	SampleClickDuration   SampleKind = "click_duration"
)

// Kinds lists every tracked behavioral feature.
func Kinds() []SampleKind {
	return []SampleKind{SampleSessionDuration, SampleTypingInterval, SampleClickDuration}
}

// Baseline is a subject's rolling recent-behavior profile: bounded FIFO
// sequences of numeric samples plus bounded sets of recent device
// fingerprints and IP addresses.
type Baseline struct {
	samples      map[SampleKind][]float64
	fingerprints []string
	ips          []string
	capacity     int
	lastSeen     time.Time
}

func newBaseline(capacity int) *Baseline {
	return &Baseline{
		samples:  make(map[SampleKind][]float64, 3),
		capacity: capacity,
	}
}

// record appends a sample, evicting the oldest when the sequence is full.
func (b *Baseline) record(kind SampleKind, value float64, at time.Time) {
	seq := b.samples[kind]
	if len(seq) >= b.capacity {
		seq = seq[1:]
	}
	b.samples[kind] = append(seq, value)
	if at.After(b.lastSeen) {
		b.lastSeen = at
	}
}

// recordIdentity tracks a device fingerprint and IP, bounded like samples.
func (b *Baseline) recordIdentity(fingerprint, ip string, at time.Time) {
	if fingerprint != "" {
		b.fingerprints = appendBoundedUnique(b.fingerprints, fingerprint, b.capacity)
	}
	if ip != "" {
		b.ips = appendBoundedUnique(b.ips, ip, b.capacity)
	}
	if at.After(b.lastSeen) {
		b.lastSeen = at
	}
}

func appendBoundedUnique(set []string, value string, capacity int) []string {
	for _, v := range set {
		if v == value {
			return set
		}
	}
	if len(set) >= capacity {
		set = set[1:]
	}
	return append(set, value)
}

// Samples returns the stored sequence for a feature.
func (b *Baseline) Samples(kind SampleKind) []float64 {
	return b.samples[kind]
}

// Mean returns the feature mean and whether any samples exist.
func (b *Baseline) Mean(kind SampleKind) (float64, bool) {
	seq := b.samples[kind]
	if len(seq) == 0 {
		return 0, false
	}
	var sum float64
	for _, v := range seq {
		sum += v
	}
	return sum / float64(len(seq)), true
}

// TrailingMean returns the newest sample for a feature together with the
// mean of the samples preceding it. Needs at least two samples, so a sweep
// never scores a first-ever observation against itself.
func (b *Baseline) TrailingMean(kind SampleKind) (current, mean float64, ok bool) {
	seq := b.samples[kind]
	if len(seq) < 2 {
		return 0, 0, false
	}
	current = seq[len(seq)-1]
	var sum float64
	for _, v := range seq[:len(seq)-1] {
		sum += v
	}
	return current, sum / float64(len(seq)-1), true
}

// Empty reports whether no feature has any samples yet.
func (b *Baseline) Empty() bool {
	for _, kind := range Kinds() {
		if len(b.samples[kind]) > 0 {
			return false
		}
	}
	return true
}

// Fingerprints returns recent device fingerprints.
func (b *Baseline) Fingerprints() []string { return b.fingerprints }

// IPs returns recent IP addresses.
func (b *Baseline) IPs() []string { return b.ips }

// LastSeen returns the timestamp of the newest recorded sample.
func (b *Baseline) LastSeen() time.Time { return b.lastSeen }

// clone deep-copies the baseline for lock-free reads by callers.
func (b *Baseline) clone() *Baseline {
	c := &Baseline{
		samples:      make(map[SampleKind][]float64, len(b.samples)),
		fingerprints: append([]string(nil), b.fingerprints...),
		ips:          append([]string(nil), b.ips...),
		capacity:     b.capacity,
		lastSeen:     b.lastSeen,
	}
	for kind, seq := range b.samples {
		c.samples[kind] = append([]float64(nil), seq...)
	}
	return c
}
