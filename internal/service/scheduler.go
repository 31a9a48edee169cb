package service

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"golang.org/x/sync/singleflight"

	"github.com/MimeLyc/jobrelay/internal/dedup"
	"github.com/MimeLyc/jobrelay/pkg/icron"
	"github.com/MimeLyc/jobrelay/pkg/log"
)

// Runner is one pipeline pass.
type Runner interface {
	Run(ctx context.Context, trigger string) (RunSummary, error)
}

// Scheduler triggers a Runner from cron. Overlapping triggers within the
// process collapse into the run already in flight.
type Scheduler struct {
	runner   Runner
	cron     *cron.Cron
	cronExpr string
	group    singleflight.Group
	handler  ErrorHandler
	onFatal  func(error)
}

func NewScheduler(cronExpr string, runner Runner, c *cron.Cron) *Scheduler {
	return &Scheduler{
		runner:   runner,
		cron:     c,
		cronExpr: cronExpr,
		handler:  NewDefaultErrorHandler(),
		onFatal: func(err error) {
			log.Fatal("CRITICAL: %v", err)
		},
	}
}

// Schedule registers the pipeline with the cron instance. The caller starts
// and stops the cron.
func (s *Scheduler) Schedule(ctx context.Context) error {
	info, err := icron.GetTriggerInfo(s.cronExpr, time.Now())
	if err != nil {
		return WrapError(err, ErrConfig, "invalid cron expression").WithContext("cron_expr", s.cronExpr)
	}
	log.Info("Scheduling runs with %q, next at %s", s.cronExpr, info.Next.Format(time.RFC3339))

	_, err = s.cron.AddFunc(s.cronExpr, func() {
		s.tick(ctx)
	})
	if err != nil {
		return WrapError(err, ErrConfig, "failed to register cron job")
	}
	return nil
}

// RunOnce runs the pipeline, joining a run already in flight. The bool
// reports whether the result was shared with a concurrent caller.
func (s *Scheduler) RunOnce(ctx context.Context, trigger string) (RunSummary, bool, error) {
	v, err, shared := s.group.Do("run", func() (any, error) {
		return s.runner.Run(ctx, trigger)
	})
	summary, _ := v.(RunSummary)
	return summary, shared, err
}

func (s *Scheduler) tick(ctx context.Context) {
	err := SafeExecute(func() error {
		_, _, err := s.RunOnce(ctx, TriggerSchedule)
		return err
	})
	if err == nil {
		return
	}
	if dedup.IsFatal(err) {
		s.onFatal(err)
		return
	}
	s.handler.Handle(err)
}
