package cli

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/MimeLyc/jobrelay/internal/dedup"
	"github.com/MimeLyc/jobrelay/internal/jobs"
	"github.com/MimeLyc/jobrelay/internal/service"
)

// CheckOutput is the JSON shape of the check command.
type CheckOutput struct {
	ID           string `json:"id"`
	Posted       bool   `json:"posted"`
	Verdict      string `json:"verdict"`
	ArchiveMonth string `json:"archive_month,omitempty"`
	Rule         int    `json:"rule,omitempty"`
	Reason       string `json:"reason,omitempty"`
}

// NewCheckCommand creates the check command.
func NewCheckCommand(rootOpts *RootOptions) *cobra.Command {
	var postedDate string

	cmd := &cobra.Command{
		Use:   "check <id>",
		Short: "Report whether an identifier counts as already posted",
		Long: `Check one identifier against the active store and the newest archive
partitions, applying the reopening rules to archived hits.

The store is only read; nothing is marked.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCheck(rootOpts, cmd, args[0], postedDate)
		},
	}

	cmd.Flags().StringVar(&postedDate, "posted-date", "", "source-reported posting date (RFC3339, YYYY-MM-DD or unix time)")
	return cmd
}

func runCheck(opts *RootOptions, cmd *cobra.Command, id, postedDate string) error {
	var meta dedup.Metadata
	if postedDate != "" {
		t, ok := jobs.ParsePostedDate(postedDate)
		if !ok {
			return NewExitError(ExitCommandError, fmt.Sprintf("unrecognised --posted-date %q", postedDate))
		}
		meta.PostedAt = t
	}

	store, err := service.OpenStore(*opts.cfg)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open store", err)
	}
	store.Load()

	result := store.Check(id, meta)
	out := CheckOutput{
		ID:           result.ID,
		Posted:       result.Posted,
		Verdict:      string(result.Verdict),
		ArchiveMonth: result.ArchiveMonth,
	}
	if result.Reopen != nil {
		out.Rule = result.Reopen.Rule
		out.Reason = result.Reopen.Reason
	}

	return opts.formatter(cmd).Emit(out, func(w io.Writer) {
		state := "not posted"
		if out.Posted {
			state = "posted"
		}
		fmt.Fprintf(w, "%s: %s (%s)\n", out.ID, state, out.Verdict)
		if out.ArchiveMonth != "" {
			fmt.Fprintf(w, "  archived in %s", out.ArchiveMonth)
			if meta.PostedAt.IsZero() {
				fmt.Fprint(w, ", no posting date")
			} else {
				fmt.Fprintf(w, ", posted %s", meta.PostedAt.Format(time.DateOnly))
			}
			fmt.Fprintln(w)
		}
		if out.Reason != "" {
			fmt.Fprintf(w, "  rule %d: %s\n", out.Rule, out.Reason)
		}
	})
}
