package cli

import (
	"fmt"
	"io"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"

	"github.com/MimeLyc/jobrelay/internal/config"
	"github.com/MimeLyc/jobrelay/internal/persistence"
	"github.com/MimeLyc/jobrelay/internal/service"
	"github.com/MimeLyc/jobrelay/pkg/log"
)

// RunOutput is the JSON shape of the run command.
type RunOutput struct {
	RunID      string `json:"run_id,omitempty"`
	Fetched    int    `json:"fetched"`
	Published  int    `json:"published"`
	Duplicates int    `json:"duplicates"`
	Reopened   int    `json:"reopened"`
	Failed     int    `json:"failed"`
	Archived   int    `json:"archived"`
	Trimmed    int    `json:"trimmed"`
	ActiveSize int    `json:"active_size"`
	ArchiveErr string `json:"archive_error,omitempty"`
	Duration   string `json:"duration"`
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Fetch, deduplicate and publish once",
		Long: `Run the pipeline once: read the feed file, publish every posting that
has not been posted before to the outbox, then save the store.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runOnce(rootOpts, cmd)
		},
	}
	return cmd
}

func runOnce(opts *RootOptions, cmd *cobra.Command) error {
	ledger := openLedger(*opts.cfg)
	if ledger != nil {
		defer ledger.Close()
	}

	summary, err := newPipeline(*opts.cfg, ledger).Run(cmd.Context(), service.TriggerManual)
	if err != nil {
		return err
	}

	out := RunOutput{
		RunID:      summary.RunID,
		Fetched:    summary.Fetched,
		Published:  summary.Published,
		Duplicates: summary.Duplicates,
		Reopened:   summary.Reopened,
		Failed:     summary.Failed,
		Archived:   summary.Archived,
		Trimmed:    summary.Trimmed,
		ActiveSize: summary.ActiveSize,
		Duration:   summary.Duration.Round(time.Millisecond).String(),
	}
	if summary.ArchiveErr != nil {
		out.ArchiveErr = summary.ArchiveErr.Error()
	}
	return opts.formatter(cmd).Emit(out, func(w io.Writer) {
		fmt.Fprintf(w, "fetched %d, published %d (reopened %d), duplicates %d, failed %d\n",
			out.Fetched, out.Published, out.Reopened, out.Duplicates, out.Failed)
		fmt.Fprintf(w, "active %d, archived %d\n", out.ActiveSize, out.Archived)
		if out.ArchiveErr != "" {
			fmt.Fprintf(w, "archival deferred: %s\n", out.ArchiveErr)
		}
	})
}

// NewScheduleCommand creates the schedule command.
func NewScheduleCommand(rootOpts *RootOptions) *cobra.Command {
	var runNow bool

	cmd := &cobra.Command{
		Use:   "schedule",
		Short: "Run the pipeline on the configured cron schedule",
		Long: `Run the pipeline every time CRON_EXPR fires until interrupted.

A run that is still in progress when the next trigger fires absorbs that
trigger. An unverified store write stops the process.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSchedule(rootOpts, cmd, runNow)
		},
	}

	cmd.Flags().BoolVar(&runNow, "run-now", false, "run once immediately before waiting for the schedule")
	return cmd
}

func runSchedule(opts *RootOptions, cmd *cobra.Command, runNow bool) error {
	ctx := cmd.Context()
	ledger := openLedger(*opts.cfg)
	if ledger != nil {
		defer ledger.Close()
	}

	c := cron.New(cron.WithLocation(location(opts.cfg.System.TZ)))
	scheduler := service.NewScheduler(opts.cfg.Pipeline.CronExpr, newPipeline(*opts.cfg, ledger), c)
	if err := scheduler.Schedule(ctx); err != nil {
		return err
	}

	if runNow {
		if _, _, err := scheduler.RunOnce(ctx, service.TriggerManual); err != nil {
			return err
		}
	}

	c.Start()
	<-ctx.Done()
	log.Info("Stopping scheduler: %v", ctx.Err())
	<-c.Stop().Done()
	return nil
}

func newPipeline(cfg config.Config, ledger *persistence.SQLiteStore) *service.Pipeline {
	var opts []service.PipelineOption
	if ledger != nil {
		opts = append(opts, service.WithLedger(ledger))
	}
	return service.NewPipeline(cfg,
		service.NewFileFetcher(cfg.Pipeline.FeedFile),
		service.NewOutboxPublisher(cfg.Pipeline.OutboxFile),
		opts...,
	)
}

// openLedger returns nil when the ledger cannot be opened; runs continue
// without history.
func openLedger(cfg config.Config) *persistence.SQLiteStore {
	ledger, err := persistence.NewSQLiteStore(cfg.DBPath())
	if err != nil {
		log.Warn("%v", service.WrapError(err, service.ErrLedger, "run ledger unavailable").
			WithContext("path", cfg.DBPath()))
		return nil
	}
	return ledger
}

func location(tz string) *time.Location {
	loc, err := time.LoadLocation(tz)
	if err != nil {
		log.Warn("Unknown TZ %q, using UTC: %v", tz, err)
		return time.UTC
	}
	return loc
}
