package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/MimeLyc/jobrelay/internal/config"
)

// NewSettingsCommand creates the settings command group.
func NewSettingsCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "settings",
		Short: "Show or change the runtime settings file",
	}
	cmd.AddCommand(newSettingsShowCommand(rootOpts))
	cmd.AddCommand(newSettingsSetCommand(rootOpts))
	return cmd
}

func newSettingsShowCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the effective runtime settings",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return emitSettings(rootOpts, cmd, rootOpts.cfg.RuntimeSettings(), config.RuntimeSettingsFilePath())
		},
	}
}

func newSettingsSetCommand(rootOpts *RootOptions) *cobra.Command {
	var next config.RuntimeSettings

	cmd := &cobra.Command{
		Use:   "set",
		Short: "Update the runtime settings file",
		Long: `Write the runtime settings file. Flags left unset keep their effective
values. Running schedulers pick up the change on restart.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			current := rootOpts.cfg.RuntimeSettings()
			if !cmd.Flags().Changed("cron") {
				next.CronExpr = current.CronExpr
			}
			if !cmd.Flags().Changed("threshold") {
				next.ArchiveThreshold = current.ArchiveThreshold
			}
			if !cmd.Flags().Changed("feed") {
				next.FeedFile = current.FeedFile
			}
			if !cmd.Flags().Changed("outbox") {
				next.OutboxFile = current.OutboxFile
			}

			path := config.RuntimeSettingsFilePath()
			store, err := config.NewRuntimeSettingsStore(path, current)
			if err != nil {
				return WrapExitError(ExitCommandError, "current settings are invalid", err)
			}
			saved, err := store.UpdateRuntimeSettings(next)
			if err != nil {
				return WrapExitError(ExitCommandError, "failed to update settings", err)
			}
			return emitSettings(rootOpts, cmd, saved, store.Path())
		},
	}

	cmd.Flags().StringVar(&next.CronExpr, "cron", "", "cron expression for scheduled runs")
	cmd.Flags().IntVar(&next.ArchiveThreshold, "threshold", 0, "active-store size above which a save archives")
	cmd.Flags().StringVar(&next.FeedFile, "feed", "", "feed file")
	cmd.Flags().StringVar(&next.OutboxFile, "outbox", "", "outbox file")
	return cmd
}

func emitSettings(opts *RootOptions, cmd *cobra.Command, settings config.RuntimeSettings, path string) error {
	return opts.formatter(cmd).Emit(settings, func(w io.Writer) {
		fmt.Fprintf(w, "settings file:     %s\n", path)
		fmt.Fprintf(w, "cron_expr:         %s\n", settings.CronExpr)
		fmt.Fprintf(w, "archive_threshold: %d\n", settings.ArchiveThreshold)
		fmt.Fprintf(w, "feed_file:         %s\n", settings.FeedFile)
		fmt.Fprintf(w, "outbox_file:       %s\n", settings.OutboxFile)
	})
}
