package cache

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/classpulse/clo-analysis/internal/analysis"
)

const reportTTL = 15 * time.Minute

// ReportCache stores computed coverage reports in Redis, keyed per CLO set.
// Cache trouble is never fatal: misses and write failures fall back to
// recomputation.
type ReportCache struct {
	client *redis.Client
}

// NewReportCache creates a coverage report cache on top of c.
func NewReportCache(c *Cache) *ReportCache {
	return &ReportCache{client: c.Client}
}

func reportKey(cloSetID string) string {
	return "coverage:" + cloSetID
}

func (r *ReportCache) GetReport(ctx context.Context, cloSetID string) (*analysis.CoverageReport, bool) {
	data, err := r.client.Get(ctx, reportKey(cloSetID)).Bytes()
	if err != nil {
		if err != redis.Nil {
			slog.Warn("coverage cache read failed", "clo_set_id", cloSetID, "error", err)
		}
		return nil, false
	}

	var report analysis.CoverageReport
	if err := json.Unmarshal(data, &report); err != nil {
		slog.Warn("coverage cache entry is unreadable, dropping it", "clo_set_id", cloSetID, "error", err)
		r.Invalidate(ctx, cloSetID)
		return nil, false
	}
	return &report, true
}

func (r *ReportCache) SetReport(ctx context.Context, cloSetID string, report *analysis.CoverageReport) {
	data, err := json.Marshal(report)
	if err != nil {
		slog.Warn("could not encode coverage report", "clo_set_id", cloSetID, "error", err)
		return
	}
	if err := r.client.Set(ctx, reportKey(cloSetID), data, reportTTL).Err(); err != nil {
		slog.Warn("coverage cache write failed", "clo_set_id", cloSetID, "error", err)
	}
}

func (r *ReportCache) Invalidate(ctx context.Context, cloSetID string) {
	if err := r.client.Del(ctx, reportKey(cloSetID)).Err(); err != nil {
		slog.Warn("coverage cache invalidation failed", "clo_set_id", cloSetID, "error", err)
	}
}
