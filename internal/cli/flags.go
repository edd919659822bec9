package cli

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/hupe1980/again/internal/config"
	"github.com/hupe1980/again/internal/library"
	"github.com/hupe1980/again/internal/unit"
)

// tableOptions selects the loaded units a command works on.
type tableOptions struct {
	manifest string
	self     string
}

// registerTableFlags adds the flags that describe the loaded-units table.
func registerTableFlags(cmd *cobra.Command, opts *tableOptions) {
	f := cmd.Flags()
	f.StringVar(&opts.manifest, "manifest", "", "YAML manifest listing entry, load-path and units")
	f.StringSlice("load-path", nil, "directories relative unit ids resolve against")
	f.StringVar(&opts.self, "self", "", "additional unit id to always watch")
}

// registerWatchFlags adds the flags that tune watching and loading. Their
// names match the config keys so viper picks them up.
func registerWatchFlags(f *pflag.FlagSet) {
	f.String("loader", config.LoaderExec, "unit loader: exec, service")
	f.String("command", "", `command template, "{}" is replaced by the file to load (default "{}")`)
	f.String("watch-backend", config.BackendFSNotify, "change notification backend: fsnotify, poll")
	f.Duration("debounce", config.DefaultDebounce, "coalescing window for fsnotify events")
	f.Duration("poll-interval", config.DefaultPollInterval, "rescan interval of the poll backend")
	f.Duration("join-backoff", config.DefaultJoinBackoff, "idle interval between watch generations")
	f.Duration("grace-period", config.DefaultGracePeriod, "time a service gets to exit before it is killed")
}

// buildTable combines the manifest, the configuration and positional
// arguments ([entry] [unit...]) into a static table.
func buildTable(cfg *config.Config, opts *tableOptions, args []string) (unit.Static, error) {
	var entry string

	units := append([]string(nil), cfg.Units...)

	if len(args) > 0 {
		entry = args[0]
		units = append(units, args[1:]...)
	}

	var table unit.Static

	if opts.manifest != "" {
		m, err := unit.LoadManifest(opts.manifest)
		if err != nil {
			return unit.Static{}, err
		}

		table = m.Merge(entry, cfg.LoadPath, units)
	} else {
		table = unit.Static{EntryFile: entry, Path: cfg.LoadPath, IDs: units}
	}

	if table.EntryFile != "" {
		abs, err := filepath.Abs(table.EntryFile)
		if err != nil {
			return unit.Static{}, fmt.Errorf("resolving entry %q: %w", table.EntryFile, err)
		}

		table.EntryFile = abs
	}

	return table, nil
}

// pseudoUnits returns the configured pseudo unit ids, falling back to the
// built-in list.
func pseudoUnits(cfg *config.Config) []string {
	if len(cfg.PseudoUnits) == 0 {
		return library.DefaultPseudo
	}

	return cfg.PseudoUnits
}
