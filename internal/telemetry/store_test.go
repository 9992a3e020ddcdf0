package telemetry

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/skybridge-io/mavfabric/internal/config"
	"github.com/skybridge-io/mavfabric/internal/hub"
	"github.com/skybridge-io/mavfabric/internal/mavlink"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestIntakeSanitizesSafetySetNulls(t *testing.T) {
	cfg := config.TelemetryConfig{MaxMemoryRecords: 10, BatchSize: 50, MaxRetries: 3, CheckpointInterval: 100}
	s := New(discardLogger(), cfg, "vehicle-1")

	delta := mavlink.StateDelta{HasGPS: true, Lat: 1, Lon: 2, AltitudeM: -1, FixType: 3, Satellites: 9}
	s.intake(hub.TelemetryEvent{Delta: delta})

	pending := s.buf.pending(10)
	require.Len(t, pending, 1)
	require.Equal(t, float64(0), pending[0].Data["altitude"])
}

func TestSyncOnceMarksSyncedOn2xx(t *testing.T) {
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		var body map[string]any
		json.NewDecoder(r.Body).Decode(&body)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	cfg := config.TelemetryConfig{
		MaxMemoryRecords: 10, BatchSize: 50, MaxRetries: 3,
		IngestBaseURL: srv.URL, IngestAPIKey: "secret-key",
	}
	s := New(discardLogger(), cfg, "vehicle-1")
	s.intake(hub.TelemetryEvent{Delta: mavlink.StateDelta{HasAttitude: true, RollDeg: 1, PitchDeg: 2, YawDeg: 3}})

	s.syncOnce(context.Background())

	require.Equal(t, "Bearer secret-key", gotAuth)
	require.Empty(t, s.buf.pending(10))
}

func TestSyncOnceMarksFailedOnNon2xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	cfg := config.TelemetryConfig{
		MaxMemoryRecords: 10, BatchSize: 50, MaxRetries: 3,
		IngestBaseURL: srv.URL, IngestAPIKey: "k",
	}
	s := New(discardLogger(), cfg, "vehicle-1")
	s.intake(hub.TelemetryEvent{Delta: mavlink.StateDelta{HasAttitude: true}})

	s.syncOnce(context.Background())

	pending := s.buf.pending(10)
	require.Len(t, pending, 1)
	require.Equal(t, 1, pending[0].RetryCount)
}

func TestRunCheckpointsOnShutdown(t *testing.T) {
	dir := t.TempDir()
	cfg := config.TelemetryConfig{
		MaxMemoryRecords: 10, BatchSize: 50, MaxRetries: 3,
		CheckpointInterval: 1000,
		BufferFile:         filepath.Join(dir, "buffer.json"),
	}
	s := New(discardLogger(), cfg, "vehicle-1")

	events := make(chan hub.TelemetryEvent, 1)
	events <- hub.TelemetryEvent{Delta: mavlink.StateDelta{HasAttitude: true, RollDeg: 1}}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Run(ctx, events)
		close(done)
	}()

	require.Eventually(t, func() bool {
		return len(s.buf.pending(10)) == 1
	}, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not exit after context cancel")
	}

	main, _, _ := load(discardLogger(), cfg.BufferFile)
	require.Len(t, main, 1)
}
