// Package loader provides Unit Loaders: the collaborators that re-execute a
// changed unit. A loader is told explicitly whether a load is a reload, so
// reloaded units can skip their startup logic without comparing paths.
package loader

import (
	"context"
	"errors"
	"os"
)

// ErrLoad is the category of every failure raised while loading a unit.
var ErrLoad = errors.New("unit failed to load")

// Environment variables passed to subprocess loaders.
const (
	// EnvReloaded is "1" when the process was started by a reload.
	EnvReloaded = "AGAIN_RELOADED"
	// EnvOriginal holds the path of the file that changed. It differs from
	// the loaded path when the entry file is reloaded through a copy.
	EnvOriginal = "AGAIN_ORIGINAL"
)

// Request describes one load.
type Request struct {
	// Path is the file to execute.
	Path string
	// Original is the watched file that triggered the load.
	Original string
	// Entry is the program's entry file, empty when it has none.
	Entry string
	// Scratch is the directory holding Path when Path is a staged copy of
	// the entry file. Empty otherwise.
	Scratch string
	// Reloaded is false only for the initial load at startup.
	Reloaded bool
}

// Loader re-executes a unit.
type Loader interface {
	Load(ctx context.Context, req Request) error
}

// Retainer is implemented by loaders whose work outlives Load. When Retains
// reports true and Load succeeds, the loader owns Request.Scratch and
// removes it once nothing reads the staged file anymore.
type Retainer interface {
	Loader
	Retains() bool
}

// Func adapts a function to the Loader interface.
type Func func(ctx context.Context, req Request) error

// Load implements Loader.
func (f Func) Load(ctx context.Context, req Request) error { return f(ctx, req) }

// Reloading reports whether the current process was started by a reload.
// Subprocess units call it to skip one-time startup work.
func Reloading() bool {
	return os.Getenv(EnvReloaded) == "1"
}

func requestEnv(req Request) []string {
	reloaded := "0"
	if req.Reloaded {
		reloaded = "1"
	}

	original := req.Original
	if original == "" {
		original = req.Path
	}

	return append(os.Environ(), EnvReloaded+"="+reloaded, EnvOriginal+"="+original)
}
