package telemetry

import (
	"encoding/json"
	"log/slog"
	"os"
	"time"
)

// snapshotFile is the on-disk schema for the buffer (§6): memory and
// failed rings plus stats, stamped with the time it was written.
type snapshotFile struct {
	MemoryBuffer []Record `json:"memory_buffer"`
	FailedBuffer []Record `json:"failed_buffer"`
	Stats        Stats    `json:"stats"`
	SavedAt      float64  `json:"saved_at"`
}

// load reads a persisted snapshot from path. A missing file is not an
// error (fresh state). A corrupt file is quarantined by renaming it with
// a .bad suffix and fresh state begins; the quarantine itself is
// best-effort and never fails startup.
func load(log *slog.Logger, path string) (main, failed []Record, stats Stats) {
	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			log.Warn("telemetry buffer file unreadable, starting fresh", "path", path, "err", err)
		}
		return nil, nil, Stats{}
	}

	var snap snapshotFile
	if err := json.Unmarshal(data, &snap); err != nil {
		log.Warn("telemetry buffer file corrupt, quarantining", "path", path, "err", err)
		if rerr := os.Rename(path, path+".bad"); rerr != nil {
			log.Warn("failed to quarantine corrupt buffer file", "path", path, "err", rerr)
		}
		return nil, nil, Stats{}
	}

	log.Info("telemetry buffer loaded", "path", path, "pending", len(snap.MemoryBuffer), "failed", len(snap.FailedBuffer))
	return snap.MemoryBuffer, snap.FailedBuffer, snap.Stats
}

// save writes the current buffer state to path. Failure is logged, never
// fatal: the in-memory buffer is still authoritative.
func save(log *slog.Logger, path string, main, failed []Record, stats Stats) {
	snap := snapshotFile{
		MemoryBuffer: main,
		FailedBuffer: failed,
		Stats:        stats,
		SavedAt:      float64(time.Now().Unix()),
	}
	data, err := json.Marshal(snap)
	if err != nil {
		log.Error("failed to marshal telemetry buffer snapshot", "err", err)
		return
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		log.Error("failed to write telemetry buffer snapshot", "path", path, "err", err)
	}
}
