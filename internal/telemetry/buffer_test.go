package telemetry

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func mkRecord(vehicleID string, t float64) Record {
	return Record{VehicleID: vehicleID, CaptureTime: t, Nonce: time.Now().Format(time.RFC3339Nano), Data: map[string]any{"x": 1}}
}

func TestBufferEvictsOldestOnOverflow(t *testing.T) {
	b := newBuffer(2)
	b.add(mkRecord("v1", 1))
	b.add(mkRecord("v1", 2))
	b.add(mkRecord("v1", 3))

	main, _, _ := b.snapshot()
	require.Len(t, main, 2)
	require.Equal(t, float64(2), main[0].CaptureTime)
	require.Equal(t, float64(3), main[1].CaptureTime)
}

func TestMarkFailedMovesToFailedRingAfterMaxRetries(t *testing.T) {
	b := newBuffer(10)
	r := mkRecord("v1", 1)
	b.add(r)

	for i := 0; i < 3; i++ {
		pending := b.pending(10)
		require.Len(t, pending, 1)
		b.markFailed(pending, 3)
	}

	main, failed, _ := b.snapshot()
	require.Len(t, main, 0)
	require.Len(t, failed, 1)
}

func TestMarkSyncedIsNeverRetransmitted(t *testing.T) {
	b := newBuffer(10)
	b.add(mkRecord("v1", 1))

	pending := b.pending(10)
	require.Len(t, pending, 1)
	b.markSynced(pending)

	require.Empty(t, b.pending(10))
}

func TestReviveFailedCapsAtTen(t *testing.T) {
	b := newBuffer(100)
	for i := 0; i < 15; i++ {
		r := mkRecord("v1", float64(i))
		r.Nonce = r.Nonce + string(rune('a'+i))
		b.pushFailed(r)
	}
	revived := b.reviveFailed(10)
	require.Len(t, revived, 10)
	for _, r := range revived {
		require.Equal(t, 0, r.RetryCount)
		require.False(t, r.Synced)
	}
}

func TestEvictStaleRemovesOldSyncedRecords(t *testing.T) {
	b := newBuffer(10)
	old := mkRecord("v1", float64(time.Now().Add(-2*time.Hour).Unix()))
	old.Synced = true
	fresh := mkRecord("v1", float64(time.Now().Unix()))
	fresh.Synced = true

	b.main = append(b.main, old, fresh)
	b.evictStale(time.Now())

	main, _, _ := b.snapshot()
	require.Len(t, main, 1)
	require.Equal(t, fresh.CaptureTime, main[0].CaptureTime)
}
