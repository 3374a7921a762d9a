package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/crosslens/gst-recon-engine/internal/store"
	"github.com/crosslens/gst-recon-engine/pkg/models"
)

// AlertFunc receives critical findings as they are scored; the API layer
// wires it to the websocket hub. May be nil.
type AlertFunc func(models.Mismatch)

// Reconciler orchestrates the four-level pipeline for one entity/period
// scope and aggregates the run summary.
type Reconciler struct {
	cfg    Config
	store  store.GraphStore
	level1 *Matcher
	level2 *ChainValidator
	level3 *CycleDetector
	level4 *RiskPropagator
	scorer *Scorer
	alert  AlertFunc
	log    *logrus.Entry
}

func NewReconciler(cfg Config, st store.GraphStore, alert AlertFunc) *Reconciler {
	return &Reconciler{
		cfg:    cfg,
		store:  st,
		level1: NewMatcher(cfg.Matching, cfg.Tax, st),
		level2: NewChainValidator(cfg.Matching, cfg.Tax, st),
		level3: NewCycleDetector(cfg.Cycles, cfg.Tax, st),
		level4: NewRiskPropagator(cfg.PageRank, cfg.Risk, st),
		scorer: NewScorer(st),
		alert:  alert,
		log:    logrus.WithField("component", "reconciler"),
	}
}

// RunFull executes all four levels for a GSTIN and return period. Levels 1
// and 2 read independently persisted data and Levels 3 and 4 are
// graph-wide, so the four run concurrently and join before scoring. Any
// level error fails the whole run; side effects persisted by completed
// levels remain.
func (r *Reconciler) RunFull(ctx context.Context, gstinID, period string) (*models.ReconciliationSummary, error) {
	runID := newRunID()
	start := time.Now()
	log := r.log.WithFields(logrus.Fields{"run": runID, "gstin": gstinID, "period": period})
	log.Info("starting full reconciliation")

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		runErr   error
		l1Out    *MatchOutput
		l2Found  []models.Mismatch
		l3Found  []models.Mismatch
		l4Result *models.RiskPropagationResult
	)
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	fail := func(level string, err error) {
		mu.Lock()
		defer mu.Unlock()
		if runErr == nil {
			runErr = fmt.Errorf("%s (gstin=%s period=%s): %w", level, gstinID, period, err)
			cancel()
		}
	}

	wg.Add(4)
	go func() {
		defer wg.Done()
		out, err := r.level1.Match(ctx, gstinID, period)
		if err != nil {
			fail("level1", err)
			return
		}
		if err := r.level1.PersistMatches(ctx, out); err != nil {
			fail("level1", err)
			return
		}
		mu.Lock()
		l1Out = out
		mu.Unlock()
	}()
	go func() {
		defer wg.Done()
		found, err := r.level2.Validate(ctx, gstinID, period)
		if err != nil {
			fail("level2", err)
			return
		}
		mu.Lock()
		l2Found = found
		mu.Unlock()
	}()
	go func() {
		defer wg.Done()
		found, err := r.level3.Detect(ctx)
		if err != nil {
			fail("level3", err)
			return
		}
		mu.Lock()
		l3Found = found
		mu.Unlock()
	}()
	go func() {
		defer wg.Done()
		result, err := r.level4.Propagate(ctx)
		if err != nil {
			fail("level4", err)
			return
		}
		mu.Lock()
		l4Result = result
		mu.Unlock()
	}()
	wg.Wait()

	if runErr != nil {
		runsTotal.WithLabelValues("full", "error").Inc()
		return nil, runErr
	}

	all := append(l1Out.Mismatches(), l2Found...)
	all = append(all, l3Found...)
	all = r.scorer.ScoreBatch(ctx, all)

	summary := r.buildSummary(ctx, runID, gstinID, period, start, l1Out, all)
	summary.RiskResult = l4Result

	r.observe("full", summary)
	r.notifyCritical(all)

	log.WithFields(logrus.Fields{
		"matched":    summary.Matched,
		"mismatches": len(all),
		"itcAtRisk":  summary.ITCAtRisk,
		"elapsed":    summary.ElapsedSecs,
	}).Info("reconciliation complete")
	return summary, nil
}

// RunLevel1Only runs just the matcher and scorer, for fast interactive use.
func (r *Reconciler) RunLevel1Only(ctx context.Context, gstinID, period string) (*models.ReconciliationSummary, error) {
	runID := "REC-L1-" + newRunID()[4:]
	start := time.Now()

	out, err := r.level1.Match(ctx, gstinID, period)
	if err != nil {
		runsTotal.WithLabelValues("level1", "error").Inc()
		return nil, fmt.Errorf("level1 (gstin=%s period=%s): %w", gstinID, period, err)
	}
	if err := r.level1.PersistMatches(ctx, out); err != nil {
		runsTotal.WithLabelValues("level1", "error").Inc()
		return nil, fmt.Errorf("level1 (gstin=%s period=%s): %w", gstinID, period, err)
	}

	all := r.scorer.ScoreBatch(ctx, out.Mismatches())
	summary := r.buildSummary(ctx, runID, gstinID, period, start, out, all)

	r.observe("level1", summary)
	r.notifyCritical(all)
	return summary, nil
}

// ListGSTINs returns all active entities known to the store.
func (r *Reconciler) ListGSTINs(ctx context.Context) ([]string, error) {
	return r.store.ListGSTINs(ctx)
}

// ListPeriods returns all known return periods.
func (r *Reconciler) ListPeriods(ctx context.Context) ([]string, error) {
	return r.store.ListPeriods(ctx)
}

func (r *Reconciler) buildSummary(
	ctx context.Context,
	runID, gstinID, period string,
	start time.Time,
	l1Out *MatchOutput,
	all []models.Mismatch,
) *models.ReconciliationSummary {
	byType := make(map[string]int)
	bySeverity := make(map[string]int)
	totalAtRisk := 0.0
	for _, mm := range all {
		byType[string(mm.Type)]++
		bySeverity[string(mm.Severity)]++
		totalAtRisk += mm.FinancialImpact.ITCAtRisk
	}

	claimed, err := r.store.TotalITCClaimed(ctx, gstinID, period)
	if err != nil {
		// The claimed total is reporting context, not a pipeline input.
		r.log.WithField("gstin", gstinID).Warnf("total ITC claimed lookup failed: %v", err)
	}

	exact, partial, unmatched := l1Out.Counts()
	return &models.ReconciliationSummary{
		RunID:                runID,
		GSTIN:                gstinID,
		ReturnPeriod:         period,
		RunTimestamp:         start.UTC(),
		TotalInvoices:        len(l1Out.Results),
		Matched:              exact,
		PartialMatched:       partial,
		Unmatched:            unmatched,
		MismatchesByType:     byType,
		MismatchesBySeverity: bySeverity,
		TotalITCClaimed:      round2(claimed),
		ITCAtRisk:            round2(totalAtRisk),
		ITCVerified:          round2(maxF(0, claimed-totalAtRisk)),
		NetExposure:          round2(totalAtRisk),
		Mismatches:           all,
		ElapsedSecs:          round2(time.Since(start).Seconds()),
	}
}

func (r *Reconciler) observe(mode string, summary *models.ReconciliationSummary) {
	runsTotal.WithLabelValues(mode, "ok").Inc()
	runDuration.WithLabelValues(mode).Observe(summary.ElapsedSecs)
	for _, mm := range summary.Mismatches {
		mismatchesDetected.WithLabelValues(string(mm.Type), string(mm.Severity)).Inc()
	}
	itcAtRisk.Set(summary.ITCAtRisk)
}

func (r *Reconciler) notifyCritical(mismatches []models.Mismatch) {
	if r.alert == nil {
		return
	}
	for _, mm := range mismatches {
		if mm.Severity == models.SeverityCritical {
			r.alert(mm)
		}
	}
}
