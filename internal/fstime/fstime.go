// Package fstime reports the best-available creation time for a file.
//
// POSIX does not expose creation time portably. On Linux the statx syscall
// can return the birth time when the filesystem records one; everywhere else
// (and on filesystems that don't) we fall back to the modification time.
// Callers that use this for age-based decisions inherit an up-to-one-period
// skew after a process restart; that behavior is documented, not a bug.
package fstime

import (
	"os"
	"time"
)

// CreationTime returns the creation time of the file at path. When the
// platform or filesystem cannot provide one, the modification time from fi is
// returned instead.
func CreationTime(path string, fi os.FileInfo) time.Time {
	if bt, ok := birthTime(path); ok {
		return bt
	}
	return fi.ModTime()
}
