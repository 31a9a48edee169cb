package cli

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/MimeLyc/jobrelay/internal/persistence"
	"github.com/MimeLyc/jobrelay/internal/service"
	"github.com/MimeLyc/jobrelay/pkg/icron"
)

// StatusOutput is the JSON shape of the status command.
type StatusOutput struct {
	StoreDir   string           `json:"store_dir"`
	Active     int              `json:"active"`
	Threshold  int              `json:"threshold"`
	HardCap    int              `json:"hard_cap"`
	Partitions []PartitionEntry `json:"partitions"`
	CronExpr   string           `json:"cron_expr"`
	NextRun    time.Time        `json:"next_run"`
	LastRun    *RunEntry        `json:"last_run,omitempty"`
}

type PartitionEntry struct {
	Month string `json:"month"`
	Count int    `json:"count"`
}

type RunEntry struct {
	ID         string    `json:"id"`
	Trigger    string    `json:"trigger"`
	Status     string    `json:"status"`
	Fetched    int       `json:"fetched"`
	Published  int       `json:"published"`
	Duplicates int       `json:"duplicates"`
	Archived   int       `json:"archived"`
	Error      string    `json:"error,omitempty"`
	StartedAt  time.Time `json:"started_at"`
}

func toRunEntry(r persistence.RunRecord) RunEntry {
	return RunEntry{
		ID:         r.ID,
		Trigger:    r.Trigger,
		Status:     string(r.Status),
		Fetched:    r.Fetched,
		Published:  r.Published,
		Duplicates: r.Duplicates,
		Archived:   r.Archived,
		Error:      r.Error,
		StartedAt:  r.StartedAt,
	}
}

// NewStatusCommand creates the status command.
func NewStatusCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show store sizes, archive partitions and the next scheduled run",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStatus(rootOpts, cmd)
		},
	}
	return cmd
}

func runStatus(opts *RootOptions, cmd *cobra.Command) error {
	store, err := service.OpenStore(*opts.cfg)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open store", err)
	}
	store.Load()

	stats, err := store.Stats()
	if err != nil {
		return WrapExitError(ExitFailure, "failed to list archive partitions", err)
	}
	out := StatusOutput{
		StoreDir:   opts.cfg.Store.Dir,
		Active:     stats.Active,
		Threshold:  stats.Threshold,
		HardCap:    stats.HardCap,
		Partitions: make([]PartitionEntry, 0, len(stats.Partitions)),
		CronExpr:   opts.cfg.Pipeline.CronExpr,
	}
	for _, p := range stats.Partitions {
		out.Partitions = append(out.Partitions, PartitionEntry{Month: p.Month, Count: p.Count})
	}

	info, err := icron.GetTriggerInfo(opts.cfg.Pipeline.CronExpr, time.Now().In(location(opts.cfg.System.TZ)))
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid cron expression", err)
	}
	out.NextRun = info.Next

	if ledger := openLedger(*opts.cfg); ledger != nil {
		defer ledger.Close()
		if runs, err := ledger.ListRuns(cmd.Context(), 1); err == nil && len(runs) > 0 {
			last := toRunEntry(runs[0])
			out.LastRun = &last
		}
	}

	return opts.formatter(cmd).Emit(out, func(w io.Writer) {
		fmt.Fprintf(w, "store:      %s\n", out.StoreDir)
		fmt.Fprintf(w, "active:     %d (archive above %d, hard cap %d)\n", out.Active, out.Threshold, out.HardCap)
		if len(out.Partitions) == 0 {
			fmt.Fprintln(w, "partitions: none")
		} else {
			fmt.Fprintln(w, "partitions:")
			for _, p := range out.Partitions {
				fmt.Fprintf(w, "  %s  %d\n", p.Month, p.Count)
			}
		}
		fmt.Fprintf(w, "schedule:   %s (next %s, in %s)\n", out.CronExpr,
			out.NextRun.Format(time.RFC3339), info.TimeUntilNext.Round(time.Second))
		if out.LastRun != nil {
			fmt.Fprintf(w, "last run:   %s %s at %s, published %d\n", out.LastRun.Trigger, out.LastRun.Status,
				out.LastRun.StartedAt.Format(time.RFC3339), out.LastRun.Published)
		}
	})
}

// NewHistoryCommand creates the history command.
func NewHistoryCommand(rootOpts *RootOptions) *cobra.Command {
	var (
		limit int
		jobID string
	)

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recent runs, or the decisions taken for one identifier",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if limit <= 0 {
				return NewExitError(ExitCommandError, "--limit must be positive")
			}
			return runHistory(rootOpts, cmd, limit, jobID)
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "number of runs to show")
	cmd.Flags().StringVar(&jobID, "job", "", "show the decisions recorded for this identifier instead")
	return cmd
}

type DecisionEntry struct {
	RunID        string    `json:"run_id"`
	Verdict      string    `json:"verdict"`
	Rule         int       `json:"rule,omitempty"`
	ArchiveMonth string    `json:"archive_month,omitempty"`
	Reason       string    `json:"reason,omitempty"`
	DecidedAt    time.Time `json:"decided_at"`
}

func runHistory(opts *RootOptions, cmd *cobra.Command, limit int, jobID string) error {
	ledger, err := persistence.NewSQLiteStore(opts.cfg.DBPath())
	if err != nil {
		return WrapExitError(ExitFailure, "failed to open run ledger", err)
	}
	defer ledger.Close()

	if jobID != "" {
		decisions, err := ledger.ListDecisions(cmd.Context(), jobID)
		if err != nil {
			return WrapExitError(ExitFailure, "failed to read decisions", err)
		}
		out := make([]DecisionEntry, 0, len(decisions))
		for _, d := range decisions {
			out = append(out, DecisionEntry{
				RunID:        d.RunID,
				Verdict:      d.Verdict,
				Rule:         d.Rule,
				ArchiveMonth: d.ArchiveMonth,
				Reason:       d.Reason,
				DecidedAt:    d.DecidedAt,
			})
		}
		return opts.formatter(cmd).Emit(out, func(w io.Writer) {
			if len(out) == 0 {
				fmt.Fprintf(w, "no decisions recorded for %s\n", jobID)
				return
			}
			for _, d := range out {
				fmt.Fprintf(w, "%s  %-18s %s", d.DecidedAt.Format(time.RFC3339), d.Verdict, d.RunID)
				if d.Reason != "" {
					fmt.Fprintf(w, "  rule %d: %s", d.Rule, d.Reason)
				}
				fmt.Fprintln(w)
			}
		})
	}

	runs, err := ledger.ListRuns(cmd.Context(), limit)
	if err != nil {
		return WrapExitError(ExitFailure, "failed to read runs", err)
	}
	out := make([]RunEntry, 0, len(runs))
	for _, r := range runs {
		out = append(out, toRunEntry(r))
	}
	return opts.formatter(cmd).Emit(out, func(w io.Writer) {
		if len(out) == 0 {
			fmt.Fprintln(w, "no runs recorded")
			return
		}
		for _, r := range out {
			fmt.Fprintf(w, "%s  %-8s %-8s fetched=%d published=%d duplicates=%d archived=%d",
				r.StartedAt.Format(time.RFC3339), r.Trigger, r.Status,
				r.Fetched, r.Published, r.Duplicates, r.Archived)
			if r.Error != "" {
				fmt.Fprintf(w, " error=%q", r.Error)
			}
			fmt.Fprintln(w)
		}
	})
}
