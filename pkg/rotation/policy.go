// Package rotation decides when a live log file must be archived and
// performs the renaming, retention and compression choreography around it.
//
// The engine is driven by the owning sink: the sink asks ShouldRotate after
// every flush and calls Rotate when the answer is yes. Everything the engine
// does between calls is plain filesystem state; the only background work is
// gzip compression, which runs on its own goroutine and is joined before the
// next rotation of the same file.
package rotation

import (
	"encoding/binary"
	"io"
	"time"
)

// Age selects the period length for age-based rotation.
type Age int

const (
	// AgeHour rotates once the live file is an hour old.
	AgeHour Age = iota
	// AgeDay rotates once the live file is a day old.
	AgeDay
)

// Duration returns the period length.
func (a Age) Duration() time.Duration {
	if a == AgeDay {
		return 24 * time.Hour
	}
	return time.Hour
}

// AgeTrigger rotates the file when it has existed for a full period.
// UsePrevious controls the moment stamped into the archive name: when set,
// timestamp-named archives carry the previous completed period (yesterday for
// AgeDay, the last full hour for AgeHour), mirroring logrotate conventions.
type AgeTrigger struct {
	Age         Age
	UsePrevious bool
}

// RetentionKind selects the upkeep applied to old archives after a rotation.
type RetentionKind int

const (
	// KeepAll never deletes archives.
	KeepAll RetentionKind = iota
	// KeepCount keeps the Count most recent archives.
	KeepCount
	// KeepAge deletes archives older than MaxAge. Only meaningful with the
	// timestamp naming scheme; numeric suffixes carry no age.
	KeepAge
)

// Retention configures archive upkeep.
type Retention struct {
	Kind   RetentionKind
	Count  int
	MaxAge time.Duration
}

// KeepLast keeps only the n most recent archives.
func KeepLast(n int) Retention { return Retention{Kind: KeepCount, Count: n} }

// DeleteOlderThan deletes archives older than d.
func DeleteOlderThan(d time.Duration) Retention { return Retention{Kind: KeepAge, MaxAge: d} }

// KeepEverything disables archive deletion.
func KeepEverything() Retention { return Retention{Kind: KeepAll} }

// Policy describes one file's rotation behavior. At least one of ByAge and
// BySize must be set. With an empty TimeLayout archives are named
// <path>.1, <path>.2, ... (1 newest); otherwise <path>.<stamp> using
// TimeLayout as a time.Format layout.
type Policy struct {
	// ByAge enables age-based rotation when non-nil.
	ByAge *AgeTrigger

	// BySize enables size-based rotation when positive, in bytes.
	BySize int64

	// TimeLayout selects the timestamp naming scheme when non-empty.
	TimeLayout string

	// Keep selects archive upkeep.
	Keep Retention

	// ArchiveDir receives rotated files. Empty means the live file's
	// directory.
	ArchiveDir string

	// Compress enables background gzip compression of archives.
	Compress bool

	// CompressKeep is the number of most recent archives left uncompressed
	// when Compress is set.
	CompressKeep int
}

// BySize is a convenience policy: rotate at sizeLimit bytes, numeric naming,
// keep maxFiles archives.
func BySize(sizeLimit int64, maxFiles int) Policy {
	return Policy{BySize: sizeLimit, Keep: KeepLast(maxFiles)}
}

// ByAge is a convenience policy: rotate per period, timestamp naming with
// layout, delete archives older than maxAge.
func ByAge(age Age, usePrevious bool, layout string, maxAge time.Duration) Policy {
	return Policy{
		ByAge:      &AgeTrigger{Age: age, UsePrevious: usePrevious},
		TimeLayout: layout,
		Keep:       Retention{Kind: KeepAge, MaxAge: maxAge},
	}
}

// Enabled reports whether the policy has any active trigger.
func (p Policy) Enabled() bool {
	return p.ByAge != nil || p.BySize > 0
}

// WriteHash feeds every policy field into w, in a fixed order, for
// configuration checksums.
func (p Policy) WriteHash(w io.Writer) {
	var buf [8]byte
	u64 := func(v uint64) {
		binary.LittleEndian.PutUint64(buf[:], v)
		w.Write(buf[:])
	}
	b := func(v bool) {
		if v {
			u64(1)
		} else {
			u64(0)
		}
	}
	if p.ByAge != nil {
		u64(uint64(p.ByAge.Age) + 2)
		b(p.ByAge.UsePrevious)
	} else {
		u64(0)
	}
	u64(uint64(p.BySize))
	io.WriteString(w, p.TimeLayout)
	u64(uint64(p.Keep.Kind))
	u64(uint64(p.Keep.Count))
	u64(uint64(p.Keep.MaxAge))
	io.WriteString(w, p.ArchiveDir)
	b(p.Compress)
	u64(uint64(p.CompressKeep))
}
