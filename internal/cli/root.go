package cli

import (
	"fmt"
	"slices"

	"github.com/spf13/cobra"

	"github.com/MimeLyc/jobrelay/internal/config"
	"github.com/MimeLyc/jobrelay/pkg/log"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose  bool
	Format   string // "json" | "text"
	StoreDir string

	cfg *config.Config
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// skipConfig marks commands that run without loading configuration.
const skipConfig = "skip-config"

// NewRootCommand creates the root command of the jobrelay CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "jobrelay",
		Short: "jobrelay - publish each job posting once",
		Long: `Relay job postings downstream exactly once.

Posted identifiers live in a bounded active store; older ones move into
monthly archive partitions, and a posting seen long ago may be published
again when it looks genuinely reopened.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !slices.Contains(ValidFormats, opts.Format) {
				return NewExitError(ExitCommandError,
					fmt.Sprintf("invalid format %q: must be one of %v", opts.Format, ValidFormats))
			}
			if cmd.Annotations[skipConfig] == "true" {
				return nil
			}
			return opts.loadConfig(cmd)
		},
	}

	// Global flags
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().StringVar(&opts.StoreDir, "store", "", "store directory (overrides STORE_DIR)")

	// Add subcommands
	cmd.AddCommand(NewCheckCommand(opts))
	cmd.AddCommand(NewMarkCommand(opts))
	cmd.AddCommand(NewRunCommand(opts))
	cmd.AddCommand(NewScheduleCommand(opts))
	cmd.AddCommand(NewStatusCommand(opts))
	cmd.AddCommand(NewHistoryCommand(opts))
	cmd.AddCommand(NewIDCommand(opts))
	cmd.AddCommand(NewSettingsCommand(opts))

	return cmd
}

// loadConfig reads configuration and points the global logger at stderr so
// stdout stays parseable.
func (o *RootOptions) loadConfig(cmd *cobra.Command) error {
	var extra []config.Option
	if o.StoreDir != "" {
		dir := o.StoreDir
		extra = append(extra, func(c *config.Config) { c.Store.Dir = dir })
	}
	cfg, err := config.Load(extra...)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load configuration", err)
	}
	o.cfg = cfg

	level := log.ParseLevel(cfg.System.LogLevel)
	if o.Verbose {
		level = log.LevelDebug
	}
	log.SetLogger(log.NewWriterLogger(cmd.ErrOrStderr(), level))
	return nil
}

func (o *RootOptions) formatter(cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{
		Format: o.Format,
		Writer: cmd.OutOrStdout(),
	}
}
