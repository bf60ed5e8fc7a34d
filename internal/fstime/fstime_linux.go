//go:build linux

package fstime

import (
	"time"

	"golang.org/x/sys/unix"
)

// birthTime asks statx for the file birth time. Not all filesystems fill it
// in (tmpfs and ext4 do, many network filesystems don't), so the result mask
// must be checked.
func birthTime(path string) (time.Time, bool) {
	var stx unix.Statx_t
	err := unix.Statx(unix.AT_FDCWD, path, 0, unix.STATX_BTIME, &stx)
	if err != nil || stx.Mask&unix.STATX_BTIME == 0 {
		return time.Time{}, false
	}
	if stx.Btime.Sec == 0 && stx.Btime.Nsec == 0 {
		return time.Time{}, false
	}
	return time.Unix(stx.Btime.Sec, int64(stx.Btime.Nsec)), true
}
