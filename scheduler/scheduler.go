// Package scheduler runs the background jobs of the herbolaria API: catalog
// reloads, draft expiry and a stale-catalog monitor.
package scheduler

import (
	"fmt"
	"sync"
	"time"

	"github.com/go-co-op/gocron"

	"github.com/giygas/herbolaria-api/interfaces"
	"github.com/giygas/herbolaria-api/logging"
	"github.com/giygas/herbolaria-api/metrics"
	"github.com/giygas/herbolaria-api/safety"
)

// Compile-time check to ensure Scheduler implements Scheduler interface
var _ interfaces.Scheduler = (*Scheduler)(nil)

// Scheduler reloads the catalog and expires idle drafts
type Scheduler struct {
	dataStore      interfaces.CatalogStore
	parser         interfaces.CatalogParser
	validator      interfaces.DataValidator
	drafts         interfaces.DraftStore
	rulesParser    interfaces.RulesParser
	rules          *safety.Source
	reloadInterval time.Duration
	draftTTL       time.Duration
	scheduler      *gocron.Scheduler

	reportMu sync.RWMutex
	report   *interfaces.CatalogQualityReport

	stopMonitor chan struct{}
	stopOnce    sync.Once
}

// NewScheduler creates a scheduler with injected dependencies. drafts may be
// nil when draft expiry is not wanted.
func NewScheduler(
	dataStore interfaces.CatalogStore,
	parser interfaces.CatalogParser,
	validator interfaces.DataValidator,
	drafts interfaces.DraftStore,
	reloadInterval, draftTTL time.Duration,
) *Scheduler {
	return &Scheduler{
		dataStore:      dataStore,
		parser:         parser,
		validator:      validator,
		drafts:         drafts,
		reloadInterval: reloadInterval,
		draftTTL:       draftTTL,
		scheduler:      gocron.NewScheduler(time.Local),
		stopMonitor:    make(chan struct{}),
	}
}

// WithRules makes every catalog reload also read the custom safety rules
// and swap them into source.
func (s *Scheduler) WithRules(parser interfaces.RulesParser, source *safety.Source) *Scheduler {
	s.rulesParser = parser
	s.rules = source
	return s
}

// Start loads the catalog once, then schedules the periodic jobs
func (s *Scheduler) Start() error {
	if err := s.updateData(); err != nil {
		logging.Error("Failed to perform initial catalog load", "error", err)
		return fmt.Errorf("initial catalog load failed: %w", err)
	}

	_, err := s.scheduler.Every(s.reloadInterval).WaitForSchedule().Tag("catalog-reload").Do(func() {
		if err := s.updateData(); err != nil {
			logging.Error("Failed to reload catalog", "error", err)
		}
	})
	if err != nil {
		logging.Error("Failed to schedule catalog reload", "error", err)
		return fmt.Errorf("failed to schedule catalog reload: %w", err)
	}

	if s.drafts != nil && s.draftTTL > 0 {
		// Check a few times per TTL so drafts do not outlive it by much
		_, err = s.scheduler.Every(purgeInterval(s.draftTTL)).WaitForSchedule().Tag("draft-expiry").Do(s.purgeDrafts)
		if err != nil {
			logging.Error("Failed to schedule draft expiry", "error", err)
			return fmt.Errorf("failed to schedule draft expiry: %w", err)
		}
	}

	s.scheduler.StartAsync()

	s.startHealthMonitoring()

	return nil
}

// Stop stops the scheduled jobs and the monitor
func (s *Scheduler) Stop() {
	s.scheduler.Stop()
	s.stopOnce.Do(func() { close(s.stopMonitor) })
}

// NextReload returns the next scheduled catalog reload, or the zero time
// when the scheduler is not running
func (s *Scheduler) NextReload() time.Time {
	jobs, err := s.scheduler.FindJobsByTag("catalog-reload")
	if err != nil || len(jobs) == 0 {
		return time.Time{}
	}
	return jobs[0].NextRun()
}

// Report returns the quality report of the last successful load
func (s *Scheduler) Report() *interfaces.CatalogQualityReport {
	s.reportMu.RLock()
	defer s.reportMu.RUnlock()
	return s.report
}

func purgeInterval(ttl time.Duration) time.Duration {
	interval := ttl / 4
	if interval < time.Minute {
		interval = time.Minute
	}
	if interval > time.Hour {
		interval = time.Hour
	}
	return interval
}

// updateData parses the catalog and swaps it into the store
func (s *Scheduler) updateData() error {
	// Prevent concurrent updates
	if !s.dataStore.BeginUpdate() {
		logging.Info("Catalog reload already in progress, skipping...")
		return nil
	}
	defer s.dataStore.EndUpdate()

	start := time.Now()
	logging.Info("Starting catalog reload", "started_at", start.Format(time.RFC3339))

	herbs, formulas, err := s.parser.ParseCatalog()
	if err != nil {
		metrics.CatalogReloadsTotal.WithLabelValues("error").Inc()
		return fmt.Errorf("failed to parse catalog: %w", err)
	}

	if len(herbs) == 0 {
		// Keep serving the previous catalog rather than an empty one
		metrics.CatalogReloadsTotal.WithLabelValues("error").Inc()
		return fmt.Errorf("catalog contains no herbs")
	}

	report := s.validator.ReportCatalogQuality(herbs, formulas)
	logReport(report)

	s.dataStore.UpdateData(herbs, formulas)
	s.updateRules()

	s.reportMu.Lock()
	s.report = report
	s.reportMu.Unlock()

	elapsed := time.Since(start)
	metrics.CatalogReloadsTotal.WithLabelValues("ok").Inc()
	metrics.CatalogReloadDuration.Observe(elapsed.Seconds())
	metrics.CatalogHerbs.Set(float64(len(herbs)))
	metrics.CatalogFormulas.Set(float64(len(formulas)))

	logging.Info("Catalog reload completed",
		"duration", elapsed.String(),
		"herb_count", len(herbs),
		"formula_count", len(formulas))

	return nil
}

// updateRules reloads the custom safety rules. A broken rules file keeps the
// rules already in use rather than failing the catalog reload.
func (s *Scheduler) updateRules() {
	if s.rulesParser == nil || s.rules == nil {
		return
	}

	table, err := s.rulesParser.ParseRules()
	if err == nil {
		_, err = s.rules.Load(table)
	}
	if err != nil {
		metrics.SafetyRuleReloadsTotal.WithLabelValues("error").Inc()
		logging.Error("Failed to load custom safety rules, keeping current ones",
			"error", err,
			"rules_version", s.rules.Current().Version())
		return
	}
	metrics.SafetyRuleReloadsTotal.WithLabelValues("ok").Inc()
}

func logReport(report *interfaces.CatalogQualityReport) {
	if report == nil {
		return
	}

	if len(report.EmptyFormulas) > 0 {
		logging.Warn("Formulas without shares",
			"count", len(report.EmptyFormulas),
			"formula_ids", report.EmptyFormulas,
		)
	}

	if report.UnresolvedReferences > 0 {
		logging.Warn("Formula shares referencing unknown herbs",
			"count", report.UnresolvedReferences,
		)
	}

	if report.SharesWithoutDose > 0 {
		logging.Warn("Formula shares without percentage or grams",
			"count", report.SharesWithoutDose,
		)
	}

	if len(report.RescaledFormulas) > 0 {
		logging.Warn("Formulas whose percentages do not add up to 100",
			"count", len(report.RescaledFormulas),
			"formula_ids", report.RescaledFormulas,
		)
	}
}

func (s *Scheduler) purgeDrafts() {
	removed := s.drafts.PurgeIdle(s.draftTTL)
	metrics.DraftsActive.Set(float64(s.drafts.Count()))
	if removed > 0 {
		logging.Info("Expired idle drafts", "removed", removed, "ttl", s.draftTTL.String())
	}
}

// startHealthMonitoring warns when the catalog has not been reloaded for
// several intervals in a row
func (s *Scheduler) startHealthMonitoring() {
	go func() {
		ticker := time.NewTicker(s.reloadInterval)
		defer ticker.Stop()

		for {
			select {
			case <-s.stopMonitor:
				return
			case <-ticker.C:
				if s.isStale(time.Now()) {
					logging.Warn("Catalog has not been reloaded recently",
						"last_update", s.dataStore.GetLastUpdated().Format(time.RFC3339))
				}
			}
		}
	}()
}

func (s *Scheduler) isStale(now time.Time) bool {
	return now.Sub(s.dataStore.GetLastUpdated()) > 3*s.reloadInterval
}
