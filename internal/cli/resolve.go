package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/hupe1980/again/internal/config"
	"github.com/hupe1980/again/internal/diag"
	"github.com/hupe1980/again/internal/library"
)

func newResolveCommand() *cobra.Command {
	table := &tableOptions{}

	var entry string

	cmd := &cobra.Command{
		Use:   "resolve <unit>...",
		Short: "Print the file each unit id resolves to",
		Long: `Resolve maps unit ids to absolute file paths the same way the reload
loop does: absolute ids are kept, relative ids are tried against each load
path entry in order and then the entry file's directory. Without any load
path the current directory is used.

Unresolvable ids are reported on stderr and make the command exit with 1.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.FromContext(cmd.Context())

			var entryArgs []string
			if entry != "" {
				entryArgs = []string{entry}
			}

			units, err := buildTable(cfg, table, entryArgs)
			if err != nil {
				return &ExitError{Code: 2, Err: err}
			}

			basePaths := (&library.Builder{Table: units}).BasePaths()
			if len(basePaths) == 0 {
				wd, err := os.Getwd()
				if err != nil {
					return fmt.Errorf("getting working directory: %w", err)
				}

				basePaths = []string{wd}
			}

			reporter := diag.New(cmd.ErrOrStderr(), cfg.NoColor)
			failed := 0

			for _, id := range args {
				path, ok := library.Resolve(id, basePaths)
				if !ok {
					reporter.Unresolved(id)
					failed++

					continue
				}

				if _, err := fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", id, path); err != nil {
					return err
				}
			}

			if failed > 0 {
				return &ExitError{Code: 1}
			}

			return nil
		},
	}

	registerTableFlags(cmd, table)
	cmd.Flags().StringVar(&entry, "entry", "", "entry file whose directory is searched last")

	return cmd
}
