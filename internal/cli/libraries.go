package cli

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/hupe1980/again/internal/config"
	"github.com/hupe1980/again/internal/diag"
	"github.com/hupe1980/again/internal/library"
	"github.com/hupe1980/again/internal/logging"
)

type librariesReport struct {
	Libraries []string `json:"libraries"`
	BasePaths []string `json:"basePaths"`
}

func newLibrariesCommand() *cobra.Command {
	table := &tableOptions{}

	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "libraries [entry] [unit...]",
		Short: "Print the files that would be watched",
		Long: `Libraries builds the library set exactly like a watch refresh and prints
it together with the base paths whose directories would be watched.
Units that cannot be resolved are reported on stderr.`,
		Args: cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg := config.FromContext(ctx)

			units, err := buildTable(cfg, table, args)
			if err != nil {
				return &ExitError{Code: 2, Err: err}
			}

			builder := &library.Builder{
				Table:  units,
				Self:   table.self,
				Pseudo: pseudoUnits(cfg),
				Logger: logging.FromContext(ctx),
				Diag:   diag.New(cmd.ErrOrStderr(), cfg.NoColor),
			}

			libraries, basePaths := builder.Build()

			report := librariesReport{Libraries: libraries.Sorted(), BasePaths: basePaths}

			if jsonOutput {
				data, err := json.MarshalIndent(report, "", "  ")
				if err != nil {
					return fmt.Errorf("marshaling libraries: %w", err)
				}

				_, err = fmt.Fprintln(cmd.OutOrStdout(), string(data))

				return err
			}

			return writeLibraries(cmd.OutOrStdout(), report)
		},
	}

	registerTableFlags(cmd, table)
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "output as JSON")

	return cmd
}

func writeLibraries(w io.Writer, report librariesReport) error {
	sections := []struct {
		title string
		paths []string
	}{
		{"libraries", report.Libraries},
		{"base paths", report.BasePaths},
	}

	for _, s := range sections {
		if _, err := fmt.Fprintf(w, "%s (%d):\n", s.title, len(s.paths)); err != nil {
			return err
		}

		for _, p := range s.paths {
			if _, err := fmt.Fprintf(w, "  %s\n", p); err != nil {
				return err
			}
		}
	}

	return nil
}
