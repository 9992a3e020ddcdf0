package tcpserver

import (
	"context"
	"log/slog"
	"time"
)

const statsReportInterval = 60 * time.Second

// ReportStats logs a one-line connection/byte summary every 60s, the
// logging convenience the spec's §4.4 supplement carries forward from
// mavlink_tcp_proxy.py's _stats_reporter. It never blocks ctx shutdown.
func (p *TunnelProxy) ReportStats(ctx context.Context) {
	ticker := time.NewTicker(statsReportInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.log.Info("tunnel proxy stats",
				"connections_total", p.Counters.ConnectionsTotal.Load(),
				"connections_active", p.Counters.ConnectionsActive.Load(),
				"bytes_to_upstream", p.Counters.BytesToUpstream.Load(),
				"bytes_to_client", p.Counters.BytesToClient.Load(),
				"errors", p.Counters.Errors.Load())
		}
	}
}

// ReportStats logs the attached-mode server's stats on the same cadence.
func (s *AttachedServer) ReportStats(ctx context.Context, l *slog.Logger) {
	ticker := time.NewTicker(statsReportInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.Info("tcp session server stats",
				"connections_total", s.Counters.ConnectionsTotal.Load(),
				"connections_active", s.Counters.ConnectionsActive.Load(),
				"rejections", s.Counters.Rejections.Load(),
				"errors", s.Counters.Errors.Load())
		}
	}
}
