package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/hupe1980/again/internal/version"
)

func newVersionCommand() *cobra.Command {
	var (
		jsonOutput bool
		short      bool
	)

	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Long: `Print the version of again together with the commit, build date, Go
version and platform. Binaries built without -ldflags report the module
version and VCS data embedded by the Go toolchain.`,
		Args: cobra.NoArgs,
		// Version needs no config.
		PersistentPreRunE: func(*cobra.Command, []string) error { return nil },
		RunE: func(cmd *cobra.Command, _ []string) error {
			info := version.GetInfo()
			out := info.String()

			switch {
			case short:
				out = info.Version
			case jsonOutput:
				j, err := info.JSON()
				if err != nil {
					return err
				}

				out = j
			}

			_, err := fmt.Fprintln(cmd.OutOrStdout(), out)

			return err
		},
	}

	f := cmd.Flags()
	f.BoolVar(&jsonOutput, "json", false, "output version info as JSON")
	f.BoolVar(&short, "short", false, "print only the version number")
	cmd.MarkFlagsMutuallyExclusive("json", "short")

	return cmd
}
