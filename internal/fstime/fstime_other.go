//go:build !linux

package fstime

import "time"

func birthTime(path string) (time.Time, bool) {
	return time.Time{}, false
}
