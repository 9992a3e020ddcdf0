package telemetry

import (
	"sort"
	"strconv"
	"sync"
	"time"
)

const (
	defaultMaxMemoryRecords = 1000
	failedBufferCap         = 100
	retentionWindow         = time.Hour
)

// buffer is the two-tier in-memory store (§4.6): a bounded main ring,
// newest-wins on overflow, and a bounded failed ring for records that
// exhausted their retries. All structural mutation holds mu briefly;
// the sync loop takes a snapshot and releases the lock before doing any
// I/O.
type buffer struct {
	mu sync.Mutex

	maxMemory int
	main      []Record
	failed    []Record

	stats Stats
}

func newBuffer(maxMemory int) *buffer {
	if maxMemory <= 0 {
		maxMemory = defaultMaxMemoryRecords
	}
	return &buffer{maxMemory: maxMemory}
}

// add appends a freshly-sanitized record, evicting the oldest main-ring
// entry if the ring is already at capacity.
func (b *buffer) add(r Record) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.main) >= b.maxMemory {
		if !b.main[0].Synced {
			b.stats.PendingSync--
		}
		b.main = b.main[1:]
	}
	b.main = append(b.main, r)
	b.stats.TotalRecords++
	b.stats.PendingSync++
}

// pending returns up to n unsynced records in capture-time order. The
// main ring is not strictly capture-ordered (reviveFailed appends older
// records at its tail), so the unsynced records are sorted first.
func (b *buffer) pending(n int) []Record {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]Record, 0, n)
	for i := range b.main {
		if !b.main[i].Synced {
			out = append(out, b.main[i])
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CaptureTime < out[j].CaptureTime })
	if len(out) > n {
		out = out[:n]
	}
	return out
}

// markSynced flips Synced on every record whose (VehicleID, CaptureTime,
// Nonce) key matches one just uploaded successfully.
func (b *buffer) markSynced(batch []Record) {
	b.mu.Lock()
	defer b.mu.Unlock()
	keys := make(map[string]struct{}, len(batch))
	for _, r := range batch {
		keys[recordKey(r)] = struct{}{}
	}
	for i := range b.main {
		if _, ok := keys[recordKey(b.main[i])]; ok && !b.main[i].Synced {
			b.main[i].Synced = true
			b.stats.PendingSync--
		}
	}
	b.stats.LastSyncTime = float64(time.Now().Unix())
}

// markFailed increments retry_count for a failed batch; any record at or
// above maxRetries moves to the bounded failed ring and stops retrying
// from the main ring.
func (b *buffer) markFailed(batch []Record, maxRetries int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	keys := make(map[string]struct{}, len(batch))
	for _, r := range batch {
		keys[recordKey(r)] = struct{}{}
	}
	b.stats.SyncFailures++

	remaining := b.main[:0]
	for _, r := range b.main {
		if _, hit := keys[recordKey(r)]; !hit {
			remaining = append(remaining, r)
			continue
		}
		r.RetryCount++
		if r.RetryCount >= maxRetries {
			b.pushFailed(r)
			b.stats.FailedSync++
			b.stats.PendingSync--
			continue
		}
		remaining = append(remaining, r)
	}
	b.main = remaining
}

func (b *buffer) pushFailed(r Record) {
	if len(b.failed) >= failedBufferCap {
		b.failed = b.failed[1:]
		b.stats.FailedSync--
	}
	b.failed = append(b.failed, r)
}

// reviveFailed moves up to n records from the failed ring back onto the
// main ring with retry state reset, per §4.6's periodic re-admission.
func (b *buffer) reviveFailed(n int) []Record {
	b.mu.Lock()
	defer b.mu.Unlock()
	revived := make([]Record, 0, n)
	for len(b.failed) > 0 && len(revived) < n {
		r := b.failed[0]
		b.failed = b.failed[1:]
		r.RetryCount = 0
		r.Synced = false
		b.main = append(b.main, r)
		revived = append(revived, r)
		b.stats.FailedSync--
		b.stats.PendingSync++
	}
	return revived
}

// evictStale drops synced records older than retentionWindow.
func (b *buffer) evictStale(now time.Time) {
	b.mu.Lock()
	defer b.mu.Unlock()
	cutoff := float64(now.Add(-retentionWindow).Unix())
	remaining := b.main[:0]
	for _, r := range b.main {
		if r.Synced && r.CaptureTime < cutoff {
			continue
		}
		remaining = append(remaining, r)
	}
	b.main = remaining
}

// snapshot returns copies of both rings and current stats for disk
// checkpointing or the gateway's stats_update payload.
func (b *buffer) snapshot() ([]Record, []Record, Stats) {
	b.mu.Lock()
	defer b.mu.Unlock()
	main := append([]Record(nil), b.main...)
	failed := append([]Record(nil), b.failed...)
	return main, failed, b.stats
}

// restore replaces both rings wholesale, used at startup when a
// persisted snapshot is reloaded.
func (b *buffer) restore(main, failed []Record, stats Stats) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.main = main
	b.failed = failed
	b.stats = stats
}

func recordKey(r Record) string {
	return r.VehicleID + "|" + strconv.FormatFloat(r.CaptureTime, 'g', -1, 64) + "|" + r.Nonce
}
