package service

import (
	"context"
	"errors"
	"path/filepath"
	"time"

	"github.com/MimeLyc/jobrelay/internal/config"
	"github.com/MimeLyc/jobrelay/internal/dedup"
	"github.com/MimeLyc/jobrelay/internal/jobs"
	"github.com/MimeLyc/jobrelay/internal/persistence"
	"github.com/MimeLyc/jobrelay/pkg/file"
	"github.com/MimeLyc/jobrelay/pkg/log"
)

// Pipeline runs fetch, dedup, publish and save once per call to Run.
type Pipeline struct {
	cfg       config.Config
	fetcher   Fetcher
	publisher Publisher
	ledger    Ledger
	now       func() time.Time
}

type PipelineOption func(*Pipeline)

func WithLedger(ledger Ledger) PipelineOption {
	return func(p *Pipeline) {
		p.ledger = ledger
	}
}

func WithPipelineClock(now func() time.Time) PipelineOption {
	return func(p *Pipeline) {
		if now != nil {
			p.now = now
		}
	}
}

func NewPipeline(cfg config.Config, fetcher Fetcher, publisher Publisher, opts ...PipelineOption) *Pipeline {
	p := &Pipeline{
		cfg:       cfg,
		fetcher:   fetcher,
		publisher: publisher,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// OpenStore builds the dedup store described by cfg. The caller calls Load.
func OpenStore(cfg config.Config, opts ...dedup.Option) (*dedup.Store, error) {
	base := []dedup.Option{
		dedup.WithArchiveThreshold(cfg.Store.ArchiveThreshold),
		dedup.WithLookbackMonths(cfg.Store.LookbackMonths),
	}
	store, err := dedup.New(cfg.Store.Dir, append(base, opts...)...)
	if err != nil {
		return nil, WrapError(err, ErrConfig, "invalid store configuration")
	}
	return store, nil
}

// LockStore takes the store's advisory lock for the duration of a mutation.
func LockStore(cfg config.Config) (*file.Lock, error) {
	lock, err := file.AcquireLock(filepath.Join(cfg.Store.Dir, dedup.LockFileName))
	if err != nil {
		if errors.Is(err, file.ErrLocked) {
			return nil, NewErrorWithCause(ErrLock, "store is locked by another run", err).
				WithContext("dir", cfg.Store.Dir)
		}
		return nil, WrapError(err, ErrLock, "failed to acquire store lock")
	}
	return lock, nil
}

// Run executes one pass. Postings whose publish fails are not marked and are
// retried on the next run. When ctx is cancelled publishing stops but the
// postings already published are still saved. A returned error for which
// dedup.IsFatal holds means the process must stop.
func (p *Pipeline) Run(ctx context.Context, trigger string) (RunSummary, error) {
	summary := RunSummary{Trigger: trigger, StartedAt: p.now()}

	lock, err := LockStore(p.cfg)
	if err != nil {
		return summary, err
	}
	defer func() {
		if err := lock.Release(); err != nil {
			log.Warn("Failed to release store lock %s: %v", lock.Path(), err)
		}
	}()

	summary.RunID = p.startRun(ctx, trigger, summary.StartedAt)

	var events []dedup.ArchivalEvent
	store, err := OpenStore(p.cfg,
		dedup.WithClock(p.now),
		dedup.WithArchivalHook(func(e dedup.ArchivalEvent) { events = append(events, e) }),
	)
	if err != nil {
		p.finishRun(ctx, summary, err)
		return summary, err
	}
	store.Load()

	postings, err := p.fetcher.Fetch(ctx)
	if err != nil {
		var relayErr *RelayError
		if !errors.As(err, &relayErr) {
			err = WrapError(err, ErrFetch, "failed to fetch postings")
		}
		p.finishRun(ctx, summary, err)
		return summary, err
	}
	summary.Fetched = len(postings)
	log.Info("Fetched %d candidate postings (%s run)", len(postings), trigger)

	interrupted := p.publishNew(ctx, store, postings, &summary)

	report, err := store.Save()
	summary.Archived = report.Archived
	summary.Trimmed = report.Trimmed
	summary.ArchiveErr = report.ArchiveErr
	summary.ActiveSize = store.Len()
	p.recordArchivals(ctx, summary.RunID, events)
	if err != nil {
		wrapped := wrapStoreError(err).WithContext("dir", p.cfg.Store.Dir)
		p.finishRun(ctx, summary, wrapped)
		return summary, wrapped
	}
	if report.ArchiveErr != nil {
		log.Warn("Archival deferred to the next run: %v", report.ArchiveErr)
	}

	summary.Duration = p.now().Sub(summary.StartedAt)
	if interrupted != nil {
		err := NewErrorWithCause(ErrPublish, "run interrupted before all postings were published", interrupted)
		p.finishRun(ctx, summary, err)
		return summary, err
	}

	p.finishRun(ctx, summary, nil)
	p.pruneLedger(ctx)
	log.Info("Run finished: fetched=%d published=%d duplicates=%d reopened=%d failed=%d archived=%d active=%d",
		summary.Fetched, summary.Published, summary.Duplicates, summary.Reopened,
		summary.Failed, summary.Archived, summary.ActiveSize)
	return summary, nil
}

// publishNew returns the context error when the run was interrupted.
func (p *Pipeline) publishNew(ctx context.Context, store *dedup.Store, postings []jobs.Posting, summary *RunSummary) error {
	for _, posting := range postings {
		if err := ctx.Err(); err != nil {
			log.Warn("Stopping publication: %v", err)
			return err
		}

		id := posting.Identifier()
		if id == "" {
			summary.Failed++
			log.Warn("Skipping posting without identity: %+v", posting)
			continue
		}

		var meta dedup.Metadata
		if posting.PostedAt != "" {
			if postedAt, ok := jobs.ParsePostedDate(posting.PostedAt); ok {
				meta.PostedAt = postedAt
			} else {
				log.Debug("Unparseable posted date %q for %s", posting.PostedAt, id)
			}
		}

		result := store.Check(id, meta)
		p.recordDecision(ctx, summary.RunID, result)
		if result.Posted {
			summary.Duplicates++
			continue
		}

		if err := p.publisher.Publish(ctx, posting); err != nil {
			summary.Failed++
			log.Error("Failed to publish %s: %v", id, err)
			continue
		}
		store.MarkPosted(id)
		summary.Published++
		if result.Verdict == dedup.VerdictReopened {
			summary.Reopened++
		}
	}
	return nil
}

func (p *Pipeline) startRun(ctx context.Context, trigger string, startedAt time.Time) string {
	if p.ledger == nil {
		return ""
	}
	id, err := p.ledger.StartRun(ctx, trigger, startedAt)
	if err != nil {
		log.Warn("%v", WrapError(err, ErrLedger, "failed to record run start"))
		return ""
	}
	return id
}

func (p *Pipeline) finishRun(ctx context.Context, summary RunSummary, runErr error) {
	if p.ledger == nil || summary.RunID == "" {
		return
	}
	record := persistence.RunRecord{
		ID:         summary.RunID,
		Status:     persistence.RunSuccess,
		Fetched:    summary.Fetched,
		Published:  summary.Published,
		Duplicates: summary.Duplicates,
		Reopened:   summary.Reopened,
		Failed:     summary.Failed,
		Archived:   summary.Archived,
		ActiveSize: summary.ActiveSize,
		FinishedAt: p.now(),
	}
	if runErr != nil {
		record.Status = persistence.RunFailed
		record.Error = runErr.Error()
	}
	// The ledger outlives a cancelled run context.
	if err := p.ledger.FinishRun(context.WithoutCancel(ctx), record); err != nil {
		log.Warn("%v", WrapError(err, ErrLedger, "failed to record run result"))
	}
}

func (p *Pipeline) recordDecision(ctx context.Context, runID string, result dedup.Result) {
	if p.ledger == nil || runID == "" {
		return
	}
	record := persistence.DecisionRecord{
		RunID:        runID,
		JobID:        result.ID,
		Verdict:      string(result.Verdict),
		ArchiveMonth: result.ArchiveMonth,
		DecidedAt:    p.now(),
	}
	if result.Reopen != nil {
		record.Rule = result.Reopen.Rule
		record.Reason = result.Reopen.Reason
	}
	if err := p.ledger.RecordDecision(context.WithoutCancel(ctx), record); err != nil {
		log.Warn("%v", WrapError(err, ErrLedger, "failed to record decision").WithContext("id", result.ID))
	}
}

func (p *Pipeline) recordArchivals(ctx context.Context, runID string, events []dedup.ArchivalEvent) {
	if p.ledger == nil || runID == "" {
		return
	}
	for _, e := range events {
		record := persistence.ArchivalRecord{
			RunID:      runID,
			Month:      e.Month,
			Count:      e.Count,
			Added:      e.Added,
			Bootstrap:  e.Bootstrap,
			ArchivedAt: p.now(),
		}
		if e.Err != nil {
			record.Error = e.Err.Error()
		}
		if err := p.ledger.RecordArchival(context.WithoutCancel(ctx), record); err != nil {
			log.Warn("%v", WrapError(err, ErrLedger, "failed to record archival"))
		}
	}
}

func (p *Pipeline) pruneLedger(ctx context.Context) {
	if p.ledger == nil || p.cfg.Pipeline.RetentionDays <= 0 {
		return
	}
	cutoff := p.now().AddDate(0, 0, -p.cfg.Pipeline.RetentionDays)
	n, err := p.ledger.DeleteRunsBefore(ctx, cutoff)
	if err != nil {
		log.Warn("%v", WrapError(err, ErrLedger, "failed to prune run history"))
		return
	}
	if n > 0 {
		log.Info("Pruned %d runs older than %s from the ledger", n, cutoff.Format(time.DateOnly))
	}
}
