package reload

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/hupe1980/again/internal/library"
)

// stage places a snapshot of path under a fresh scratch directory named
// after the reload marker and the current time, and returns both. The
// snapshot is a hard link when possible and a byte copy otherwise. A
// non-empty dir is returned whenever the directory was created, even on
// error, so the caller can remove it.
func stage(path, tmp string, now time.Time, logger *slog.Logger) (dir, staged string, err error) {
	prefix := library.ReloadMarker + "-dir-" + strconv.FormatInt(now.Unix(), 10) + "-"

	dir, err = os.MkdirTemp(tmp, prefix)
	if err != nil {
		return "", "", fmt.Errorf("creating scratch directory: %w", err)
	}

	staged = filepath.Join(dir, library.ReloadMarker+filepath.Base(path))

	if linkErr := os.Link(path, staged); linkErr == nil {
		return dir, staged, nil
	}

	n, err := copyFile(path, staged)
	if err != nil {
		return dir, "", err
	}

	logger.Debug("hard link unavailable, copied entry file",
		slog.String("path", path),
		slog.String("size", humanize.Bytes(uint64(n))), //nolint:gosec // n is never negative.
	)

	return dir, staged, nil
}

// copyFile copies src to dst, preserving the permission bits.
func copyFile(src, dst string) (int64, error) {
	in, err := os.Open(src)
	if err != nil {
		return 0, fmt.Errorf("opening %s: %w", src, err)
	}
	defer in.Close()

	info, err := in.Stat()
	if err != nil {
		return 0, fmt.Errorf("stat %s: %w", src, err)
	}

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_EXCL, info.Mode().Perm())
	if err != nil {
		return 0, fmt.Errorf("creating %s: %w", dst, err)
	}

	n, copyErr := io.Copy(out, in)
	closeErr := out.Close()

	if copyErr != nil {
		return n, fmt.Errorf("copying %s: %w", src, copyErr)
	}

	if closeErr != nil {
		return n, fmt.Errorf("closing %s: %w", dst, closeErr)
	}

	return n, nil
}
