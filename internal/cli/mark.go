package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/MimeLyc/jobrelay/internal/service"
	"github.com/MimeLyc/jobrelay/pkg/log"
)

// MarkOutput is the JSON shape of the mark command.
type MarkOutput struct {
	Marked     int    `json:"marked"`
	Already    int    `json:"already"`
	Archived   int    `json:"archived"`
	Trimmed    int    `json:"trimmed"`
	ActiveSize int    `json:"active_size"`
	ArchiveErr string `json:"archive_error,omitempty"`
}

// NewMarkCommand creates the mark command.
func NewMarkCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mark <id>...",
		Short: "Record identifiers as posted and save the store",
		Long: `Mark one or more identifiers as posted, then save the active store.

Saving runs the archival policy, so a large active store may move its oldest
identifiers into the current month's partition.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMark(rootOpts, cmd, args)
		},
	}
	return cmd
}

func runMark(opts *RootOptions, cmd *cobra.Command, ids []string) error {
	lock, err := service.LockStore(*opts.cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := lock.Release(); err != nil {
			log.Warn("Failed to release store lock: %v", err)
		}
	}()

	store, err := service.OpenStore(*opts.cfg)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open store", err)
	}
	store.Load()

	var out MarkOutput
	for _, id := range ids {
		if store.MarkPosted(id) {
			out.Marked++
		} else {
			out.Already++
		}
	}

	report, err := store.Save()
	if err != nil {
		return err
	}
	out.Archived = report.Archived
	out.Trimmed = report.Trimmed
	out.ActiveSize = store.Len()
	if report.ArchiveErr != nil {
		out.ArchiveErr = report.ArchiveErr.Error()
	}

	return opts.formatter(cmd).Emit(out, func(w io.Writer) {
		fmt.Fprintf(w, "marked %d, already posted %d, active %d\n", out.Marked, out.Already, out.ActiveSize)
		if out.Archived > 0 {
			fmt.Fprintf(w, "archived %d\n", out.Archived)
		}
		if out.ArchiveErr != "" {
			fmt.Fprintf(w, "archival deferred: %s\n", out.ArchiveErr)
		}
	})
}
