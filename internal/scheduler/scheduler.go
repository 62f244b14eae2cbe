// Package scheduler drives the 8 fixed daily session windows plus the
// monthly car/house fund distributions off a single robfig/cron
// instance (spec.md §4.I). The yearly travel fund allocation is not
// scheduled here.
// Grounded in the teacher's automation service loop
// (services/automation/automation_service.go), which polls on a fixed
// cadence and dispatches idempotent per-tick work; here the cadence is
// cron-driven rather than interval-driven because the spec names
// fixed wall-clock windows, not a polling period.
package scheduler

import (
	"context"
	"fmt"

	"github.com/robfig/cron/v3"

	"github.com/r3e-network/mlm-compensation-engine/internal/binaryengine"
	"github.com/r3e-network/mlm-compensation-engine/internal/fundengine"
	"github.com/r3e-network/mlm-compensation-engine/internal/logging"
	"github.com/r3e-network/mlm-compensation-engine/internal/plan"
)

// Scheduler owns the cron instance and the engines it triggers.
type Scheduler struct {
	cron      *cron.Cron
	binaryEng *binaryengine.Service
	fundEng   *fundengine.Service
	timezone  string
	log       *logging.Logger
}

// New constructs a Scheduler bound to the given engines. timezone must
// be a valid IANA location name (spec.md §6 default "Asia/Kolkata");
// cmd/engined validates it beforehand via config.Validate.
func New(binaryEng *binaryengine.Service, fundEng *fundengine.Service, timezone string) (*Scheduler, error) {
	loc, err := timeLoadLocation(timezone)
	if err != nil {
		return nil, fmt.Errorf("scheduler: %w", err)
	}
	c := cron.New(cron.WithLocation(loc))
	return &Scheduler{cron: c, binaryEng: binaryEng, fundEng: fundEng, timezone: timezone, log: logging.Default()}, nil
}

// Start registers the 8 session triggers, the monthly fund triggers,
// and starts the cron loop. It does not register a yearly travel-fund
// trigger: that allocation takes an admin-supplied total and runs
// through planctl's allocate-travel-fund command instead
// (spec.md §4.H: "admin-supplied totalTravelFund").
func (s *Scheduler) Start(ctx context.Context) error {
	for _, window := range plan.SessionWindows {
		idx := window.Index
		if _, err := s.cron.AddFunc(window.CronSpec(), func() {
			s.runSession(ctx, idx)
		}); err != nil {
			return fmt.Errorf("scheduler: register session %d: %w", idx, err)
		}
	}

	// Monthly fund distributions fire just after midnight on the 1st.
	if _, err := s.cron.AddFunc("5 0 1 * *", func() {
		s.runMonthlyFunds(ctx)
	}); err != nil {
		return fmt.Errorf("scheduler: register monthly fund trigger: %w", err)
	}

	s.cron.Start()
	return nil
}

// Stop halts the cron loop and waits for any in-flight job to finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}

// TriggerSessionNow is the admin path (spec.md §4.I): it attempts the
// same idempotent insert as the cron-driven path. If the sentinel
// already exists it is a no-op returning AlreadyProcessed=true.
func (s *Scheduler) TriggerSessionNow(ctx context.Context, dateKey string, sessionIndex int) (binaryengine.Report, error) {
	return s.binaryEng.RunSession(ctx, dateKey, sessionIndex)
}

func (s *Scheduler) runSession(ctx context.Context, sessionIndex int) {
	dateKey := currentDateKey(s.timezone)
	report, err := s.binaryEng.RunSession(ctx, dateKey, sessionIndex)
	if err != nil {
		s.log.WithError(err).WithFields(map[string]interface{}{
			"date_key":      dateKey,
			"session_index": sessionIndex,
		}).Error("session run failed")
		return
	}
	s.log.WithFields(map[string]interface{}{
		"date_key":          dateKey,
		"session_index":     sessionIndex,
		"already_processed": report.AlreadyProcessed,
		"pairs_matched":     report.PairsMatched,
	}).Info("session run complete")
}

func (s *Scheduler) runMonthlyFunds(ctx context.Context) {
	month := currentMonthKey(s.timezone)
	if _, err := s.fundEng.DistributeCarFund(ctx, month); err != nil {
		s.log.WithError(err).WithFields(map[string]interface{}{"month": month}).Error("car fund distribution failed")
	}
	if _, err := s.fundEng.DistributeHouseFund(ctx, month); err != nil {
		s.log.WithError(err).WithFields(map[string]interface{}{"month": month}).Error("house fund distribution failed")
	}
}
