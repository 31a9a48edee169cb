package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/MimeLyc/jobrelay/internal/jobs"
)

// NewIDCommand creates the id command.
func NewIDCommand(rootOpts *RootOptions) *cobra.Command {
	var posting jobs.Posting

	cmd := &cobra.Command{
		Use:   "id",
		Short: "Print the identifier derived from a posting's attributes",
		Long: `Derive the identifier a posting without an explicit id receives.

Attributes are normalised before hashing, so case and spacing differences
produce the same identifier.`,
		Args:        cobra.NoArgs,
		Annotations: map[string]string{skipConfig: "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			if strings.TrimSpace(posting.Company+posting.Title+posting.Location+posting.URL) == "" {
				return NewExitError(ExitCommandError, "at least one of --company, --title, --location, --url is required")
			}
			id := posting.Identifier()
			return rootOpts.formatter(cmd).Emit(map[string]string{"id": id}, func(w io.Writer) {
				fmt.Fprintln(w, id)
			})
		},
	}

	cmd.Flags().StringVar(&posting.Company, "company", "", "company name")
	cmd.Flags().StringVar(&posting.Title, "title", "", "job title")
	cmd.Flags().StringVar(&posting.Location, "location", "", "job location")
	cmd.Flags().StringVar(&posting.URL, "url", "", "posting URL")
	return cmd
}
