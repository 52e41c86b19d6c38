package main

import (
	"context"
	"log/slog"
	"time"

	"github.com/caleheinzz25/realtime-energy-monitoring/query"
	"github.com/caleheinzz25/realtime-energy-monitoring/usage"
)

// reportStatus logs the realtime board and today's usage of every panel
// each interval until ctx is done.
func reportStatus(ctx context.Context, svc *query.Service, interval time.Duration, logger *slog.Logger) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			logStatus(ctx, svc, logger)
		}
	}
}

func logStatus(ctx context.Context, svc *query.Service, logger *slog.Logger) {
	board, err := svc.Realtime(ctx)
	if err != nil {
		logger.Warn("Panel status unavailable", "error", err)
		return
	}

	online := 0
	for _, p := range board.Panels {
		attrs := []any{
			"panel", p.PanelID,
			"floor", p.Floor,
			"status", p.Status,
			"last_update", p.LastUpdateRelative,
		}
		if p.Status == usage.Online {
			online++
		}
		if today, err := svc.TodayUsage(ctx, p.PanelID); err == nil {
			attrs = append(attrs, "today_kwh", today.UsageKWh, "today_cost", today.Cost)
		}
		logger.Debug("Panel status", attrs...)
	}
	logger.Info("Panel status summary", "panels", len(board.Panels), "online", online)
}
