// Package health computes the service health reported on /health.
package health

import (
	"context"
	"math"
	"net/http"
	"time"

	"github.com/giygas/herbolaria-api/interfaces"
)

const pingTimeout = 2 * time.Second

// HealthCheckerImpl implements the interfaces.HealthChecker interface
type HealthCheckerImpl struct {
	dataStore      interfaces.CatalogStore
	records        interfaces.RecordRepository
	drafts         interfaces.DraftStore
	reloadInterval time.Duration
	nextReload     func() time.Time
}

// NewHealthChecker creates a health checker. records, drafts and nextReload
// may be nil.
func NewHealthChecker(
	dataStore interfaces.CatalogStore,
	records interfaces.RecordRepository,
	drafts interfaces.DraftStore,
	reloadInterval time.Duration,
	nextReload func() time.Time,
) interfaces.HealthChecker {
	return &HealthCheckerImpl{
		dataStore:      dataStore,
		records:        records,
		drafts:         drafts,
		reloadInterval: reloadInterval,
		nextReload:     nextReload,
	}
}

// HealthCheck returns the health status with its HTTP code.
// The catalog is stale after three missed reloads and unhealthy after six.
func (h *HealthCheckerImpl) HealthCheck() (status string, data map[string]any, httpStatus int) {
	herbs := h.dataStore.GetHerbs()
	formulas := h.dataStore.GetFormulas()
	lastUpdate := h.dataStore.GetLastUpdated()
	isUpdating := h.dataStore.IsUpdating()

	dataAge := time.Since(lastUpdate)

	databaseOK := true
	if h.records != nil {
		ctx, cancel := context.WithTimeout(context.Background(), pingTimeout)
		databaseOK = h.records.Ping(ctx) == nil
		cancel()
	}

	switch {
	case len(herbs) == 0:
		status = "unhealthy"
		httpStatus = http.StatusServiceUnavailable

	case !databaseOK:
		status = "unhealthy"
		httpStatus = http.StatusServiceUnavailable

	case h.reloadInterval > 0 && dataAge > 6*h.reloadInterval:
		status = "unhealthy"
		httpStatus = http.StatusServiceUnavailable

	case h.reloadInterval > 0 && dataAge > 3*h.reloadInterval:
		status = "degraded"
		httpStatus = http.StatusOK

	default:
		status = "healthy"
		httpStatus = http.StatusOK
	}

	data = map[string]any{
		"last_update":    lastUpdate.Format(time.RFC3339),
		"data_age_hours": math.Round(dataAge.Hours()*10) / 10,
		"herbs":          len(herbs),
		"formulas":       len(formulas),
		"is_updating":    isUpdating,
		"database_ok":    databaseOK,
	}

	if h.drafts != nil {
		data["drafts"] = h.drafts.Count()
	}

	if next := h.CalculateNextUpdate(); !next.IsZero() {
		data["next_update"] = next.Format(time.RFC3339)
	}

	if start := h.dataStore.GetServerStartTime(); !start.IsZero() {
		data["uptime_seconds"] = math.Round(time.Since(start).Seconds())
	}

	return status, data, httpStatus
}

// CalculateNextUpdate returns the next scheduled reload. Without a running
// scheduler it estimates it from the last update and the interval.
func (h *HealthCheckerImpl) CalculateNextUpdate() time.Time {
	if h.nextReload != nil {
		if next := h.nextReload(); !next.IsZero() {
			return next
		}
	}

	lastUpdate := h.dataStore.GetLastUpdated()
	if lastUpdate.IsZero() || h.reloadInterval <= 0 {
		return time.Time{}
	}

	next := lastUpdate.Add(h.reloadInterval)
	now := time.Now()
	for next.Before(now) {
		next = next.Add(h.reloadInterval)
	}
	return next
}
