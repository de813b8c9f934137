/*
auditor.go - Periodic balance audit

PURPOSE:
  Periodically re-derives the balance of every open folio from its entries
  and repairs the cached Folio.Balance when it drifted. Drift should never
  happen; when it does, the ledger logs a warning with both values.

DESIGN:
  - Runs a background goroutine with a configurable interval
  - Walks every tenant, then every open folio of that tenant
  - Each folio goes through Ledger.Recompute, so it takes the same folio
    lock as any other write and never races a posting
  - One failing folio does not stop the run

USAGE:
  auditor := NewBalanceAuditor(ledger, logger)
  auditor.Interval = cfg.AuditInterval
  auditor.Start()
  // ... later
  auditor.Stop()

SEE ALSO:
  - handlers.go: RecomputeFolio endpoint (manual trigger)
  - folio/ledger.go: Recompute
*/
package api

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/warp/folio-ledger/folio"
)

// AuditorActor is recorded on any write the auditor causes.
const AuditorActor = "balance-auditor"

// AuditReport summarizes one audit run.
type AuditReport struct {
	Tenants int
	Folios  int
	Drifted int
	Failed  int
}

// BalanceAuditor handles the automated balance audit.
type BalanceAuditor struct {
	Ledger   *folio.Ledger
	Logger   *logrus.Logger
	Interval time.Duration

	ticker *time.Ticker
	stop   chan struct{}
	wg     sync.WaitGroup
	mu     sync.Mutex
}

func NewBalanceAuditor(ledger *folio.Ledger, logger *logrus.Logger) *BalanceAuditor {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &BalanceAuditor{
		Ledger:   ledger,
		Logger:   logger,
		Interval: time.Hour,
	}
}

// Start begins periodic audits. A zero Interval disables the auditor.
func (a *BalanceAuditor) Start() {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.Interval <= 0 {
		a.Logger.Info("balance auditor disabled")
		return
	}
	if a.ticker != nil {
		return
	}

	a.ticker = time.NewTicker(a.Interval)
	a.stop = make(chan struct{})
	a.wg.Add(1)
	go a.run(a.ticker, a.stop)

	a.Logger.WithField("interval", a.Interval.String()).Info("balance auditor started")
}

// Stop halts the auditor and waits for an in-flight run to finish.
func (a *BalanceAuditor) Stop() {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.ticker == nil {
		return
	}
	a.ticker.Stop()
	close(a.stop)
	a.wg.Wait()
	a.ticker = nil
	a.Logger.Info("balance auditor stopped")
}

func (a *BalanceAuditor) run(ticker *time.Ticker, stop <-chan struct{}) {
	defer a.wg.Done()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		<-stop
		cancel()
	}()

	// Run immediately on start
	a.RunNow(ctx)

	for {
		select {
		case <-ticker.C:
			a.RunNow(ctx)
		case <-stop:
			return
		}
	}
}

// RunNow audits every open folio once.
func (a *BalanceAuditor) RunNow(ctx context.Context) AuditReport {
	var report AuditReport

	tenants, err := a.Ledger.Tenants(ctx)
	if err != nil {
		a.Logger.WithError(err).Error("balance audit: listing tenants failed")
		return report
	}

	for _, tenant := range tenants {
		if ctx.Err() != nil {
			break
		}
		report.Tenants++
		scope := folio.Scope{TenantID: tenant, Actor: AuditorActor}

		folios, err := a.Ledger.ListFolios(ctx, scope, folio.FolioFilter{Status: folio.StatusOpen})
		if err != nil {
			a.Logger.WithField("tenant_id", tenant).WithError(err).Error("balance audit: listing folios failed")
			report.Failed++
			continue
		}

		for _, f := range folios {
			report.Folios++
			res, err := a.Ledger.Recompute(ctx, scope, f.ID)
			if err != nil {
				a.Logger.WithFields(logrus.Fields{
					"tenant_id": tenant,
					"folio_id":  f.ID,
				}).WithError(err).Error("balance audit: recompute failed")
				report.Failed++
				continue
			}
			if res.Drifted {
				report.Drifted++
			}
		}
	}

	a.Logger.WithFields(logrus.Fields{
		"tenants": report.Tenants,
		"folios":  report.Folios,
		"drifted": report.Drifted,
		"failed":  report.Failed,
	}).Info("balance audit completed")
	return report
}
