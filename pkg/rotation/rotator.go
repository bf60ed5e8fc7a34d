package rotation

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gofrs/flock"
	"github.com/pkg/errors"

	"github.com/spoutlog/spout/internal/metrics"
)

// ErrorFunc receives non-fatal engine failures. Rotation is best-effort;
// nothing here ever propagates to the logging caller.
type ErrorFunc func(op, path, msg string, err error)

// Archive is one rotated file known to the engine.
type Archive struct {
	Path       string
	Seq        int       // numeric scheme, 1 newest
	Stamp      time.Time // timestamp scheme
	Compressed bool
}

// Rotator owns the rotation state for a single live file. It is driven by
// exactly one goroutine (the sink's writer); the internal mutex only guards
// the archive bookkeeping against the background compression goroutine.
type Rotator struct {
	policy Policy
	path   string // live file
	base   string
	dir    string // archive directory

	mu       sync.Mutex
	archives []Archive // newest first

	compressDone chan struct{} // nil when no compression is in flight

	lock *flock.Flock // serializes rename choreography across processes

	errorFn ErrorFunc
	stats   *metrics.Collector

	now func() time.Time
}

// New builds a Rotator for the live file at path and scans the archive
// directory so existing archives are accounted for.
func New(path string, p Policy) (*Rotator, error) {
	if !p.Enabled() {
		return nil, errors.New("rotation policy has no trigger")
	}
	dir := p.ArchiveDir
	if dir == "" {
		dir = filepath.Dir(path)
	} else if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Wrap(err, "create archive dir")
	}
	r := &Rotator{
		policy:  p,
		path:    filepath.Clean(path),
		base:    filepath.Base(path),
		dir:     dir,
		lock:    flock.New(filepath.Join(dir, filepath.Base(path)+".lock")),
		errorFn: func(op, path, msg string, err error) {},
		now:     time.Now,
	}
	r.scan()
	return r, nil
}

// SetErrorFunc routes engine failures to fn.
func (r *Rotator) SetErrorFunc(fn ErrorFunc) {
	if fn != nil {
		r.errorFn = fn
	}
}

// SetMetrics attaches a collector for rotation counters.
func (r *Rotator) SetMetrics(c *metrics.Collector) { r.stats = c }

// ShouldRotate evaluates the configured triggers against the live file's
// cumulative size and creation time.
func (r *Rotator) ShouldRotate(size int64, created time.Time) bool {
	if t := r.policy.ByAge; t != nil {
		// A clock stepped backwards also rotates; a stale creation time
		// is worse than an early archive.
		if age := r.now().Sub(created); age > t.Age.Duration() || age < 0 {
			return true
		}
	}
	if r.policy.BySize > 0 && size > r.policy.BySize {
		return true
	}
	return false
}

// Archives returns a copy of the current bookkeeping, newest first.
func (r *Rotator) Archives() []Archive {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Archive, len(r.archives))
	copy(out, r.archives)
	return out
}

// Rotate archives the live file, applies retention, and kicks off background
// compression. Any prior rotation's compression is joined first so two passes
// never touch the same archive set. The caller reopens the live path
// afterwards.
func (r *Rotator) Rotate() error {
	r.WaitCompression()

	if err := r.lock.Lock(); err != nil {
		r.errorFn("rotate", r.path, "acquire rotate lock", err)
	} else {
		defer func() {
			if err := r.lock.Unlock(); err != nil {
				r.errorFn("rotate", r.path, "release rotate lock", err)
			}
		}()
	}

	if err := r.rename(); err != nil {
		return err
	}
	if r.stats != nil {
		r.stats.TrackRotation()
	}
	r.applyRetention()
	r.startCompression()
	return nil
}

// rename moves the live file to its archive name, cascading any blocking
// archive out of the way first.
func (r *Rotator) rename() error {
	if _, err := os.Stat(r.path); os.IsNotExist(err) {
		return nil // nothing to archive
	}
	var target string
	var arch Archive
	if r.numeric() {
		if err := r.cascade(1); err != nil {
			return err
		}
		target = r.archiveName(strconv.Itoa(1), false)
		arch = Archive{Path: target, Seq: 1}
	} else {
		stamp := r.stampTime()
		target = r.archiveName(stamp.Format(r.policy.TimeLayout), false)
		if err := r.unblock(target); err != nil {
			return err
		}
		arch = Archive{Path: target, Stamp: stamp}
	}
	if err := os.Rename(r.path, target); err != nil {
		r.errorFn("rotate", r.path, "archive live file", err)
		return errors.Wrap(err, "archive live file")
	}
	if r.numeric() {
		// Shift the bookkeeping only once the live file has actually moved.
		r.bumpSeqs()
	}
	r.mu.Lock()
	r.archives = append([]Archive{arch}, r.archives...)
	r.sortLocked()
	r.mu.Unlock()
	return nil
}

func (r *Rotator) numeric() bool { return r.policy.TimeLayout == "" }

// archiveName builds dir/base.suffix, with a trailing .gz for compressed
// archives.
func (r *Rotator) archiveName(suffix string, compressed bool) string {
	name := filepath.Join(r.dir, r.base+"."+suffix)
	if compressed {
		name += ".gz"
	}
	return name
}

// cascade frees the numeric slot seq by pushing the chain of existing
// archives one position toward older numbers, oldest first, so no archive is
// ever overwritten. Depth is bounded by the archive-set size.
func (r *Rotator) cascade(seq int) error {
	cur, compressed, ok := r.numericAt(seq)
	if !ok {
		return nil
	}
	if err := r.cascade(seq + 1); err != nil {
		return err
	}
	next := r.archiveName(strconv.Itoa(seq+1), compressed)
	if err := os.Rename(cur, next); err != nil {
		r.errorFn("rotate", cur, "cascade archive", err)
		return errors.Wrap(err, "cascade archive")
	}
	return nil
}

// numericAt reports the on-disk archive occupying slot seq, if any.
func (r *Rotator) numericAt(seq int) (path string, compressed bool, ok bool) {
	plain := r.archiveName(strconv.Itoa(seq), false)
	if _, err := os.Stat(plain); err == nil {
		return plain, false, true
	}
	gz := r.archiveName(strconv.Itoa(seq), true)
	if _, err := os.Stat(gz); err == nil {
		return gz, true, true
	}
	return "", false, false
}

// bumpSeqs shifts the in-memory numeric bookkeeping after a cascade.
func (r *Rotator) bumpSeqs() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.archives {
		r.archives[i].Seq++
		r.archives[i].Path = r.archiveName(strconv.Itoa(r.archives[i].Seq), r.archives[i].Compressed)
	}
}

// unblock clears a timestamp-name collision by renaming the blocker to its
// own next suffix (.1, .2, ...), recursively.
func (r *Rotator) unblock(target string) error {
	blocked := target
	if _, err := os.Stat(blocked); os.IsNotExist(err) {
		if _, err := os.Stat(blocked + ".gz"); os.IsNotExist(err) {
			return nil
		}
		blocked += ".gz"
	}
	for n := 1; ; n++ {
		next := fmt.Sprintf("%s.%d", blocked, n)
		if _, err := os.Stat(next); os.IsNotExist(err) {
			if err := os.Rename(blocked, next); err != nil {
				r.errorFn("rotate", blocked, "move colliding archive", err)
				return errors.Wrap(err, "move colliding archive")
			}
			r.mu.Lock()
			for i := range r.archives {
				if r.archives[i].Path == blocked {
					r.archives[i].Path = next
					break
				}
			}
			r.mu.Unlock()
			return nil
		}
	}
}

// stampTime returns the moment encoded into a timestamp archive name.
func (r *Rotator) stampTime() time.Time {
	now := r.now()
	if t := r.policy.ByAge; t != nil && t.UsePrevious {
		switch t.Age {
		case AgeHour:
			return now.Truncate(time.Hour).Add(-time.Hour)
		case AgeDay:
			y, m, d := now.AddDate(0, 0, -1).Date()
			return time.Date(y, m, d, 0, 0, 0, 0, now.Location())
		}
	}
	return now
}

// applyRetention deletes archives per the configured upkeep.
func (r *Rotator) applyRetention() {
	r.mu.Lock()
	defer r.mu.Unlock()

	switch r.policy.Keep.Kind {
	case KeepAll:
	case KeepCount:
		if n := r.policy.Keep.Count; n >= 0 && len(r.archives) > n {
			for _, a := range r.archives[n:] {
				r.removeLocked(a)
			}
			r.archives = r.archives[:n:n]
		}
	case KeepAge:
		if r.numeric() {
			return // numeric suffixes carry no age
		}
		cutoff := r.now().Add(-r.policy.Keep.MaxAge)
		// Scan oldest to newest; archives are sorted newest first, so stop
		// at the first one still inside the window.
		keep := len(r.archives)
		for i := len(r.archives) - 1; i >= 0; i-- {
			if r.archives[i].Stamp.After(cutoff) {
				break
			}
			r.removeLocked(r.archives[i])
			keep = i
		}
		r.archives = r.archives[:keep:keep]
	}
}

func (r *Rotator) removeLocked(a Archive) {
	if err := os.Remove(a.Path); err != nil && !os.IsNotExist(err) {
		r.errorFn("retention", a.Path, "remove old archive", err)
		return
	}
	if r.stats != nil {
		r.stats.TrackRetention()
	}
}

// scan rebuilds the archive bookkeeping from the directory contents.
func (r *Rotator) scan() {
	entries, err := os.ReadDir(r.dir)
	if err != nil {
		r.errorFn("scan", r.dir, "read archive dir", err)
		return
	}
	prefix := r.base + "."
	var found []Archive
	for _, e := range entries {
		if e.IsDir() || !strings.HasPrefix(e.Name(), prefix) {
			continue
		}
		suffix := strings.TrimPrefix(e.Name(), prefix)
		compressed := strings.HasSuffix(suffix, ".gz")
		if compressed {
			suffix = strings.TrimSuffix(suffix, ".gz")
		}
		a := Archive{Path: filepath.Join(r.dir, e.Name()), Compressed: compressed}
		if r.numeric() {
			seq, err := strconv.Atoi(suffix)
			if err != nil || seq < 1 {
				continue
			}
			a.Seq = seq
		} else {
			stamp, err := time.Parse(r.policy.TimeLayout, suffix)
			if err != nil {
				continue
			}
			a.Stamp = stamp
		}
		found = append(found, a)
	}
	r.mu.Lock()
	r.archives = found
	r.sortLocked()
	r.mu.Unlock()
}

// sortLocked keeps archives newest first.
func (r *Rotator) sortLocked() {
	if r.numeric() {
		sort.Slice(r.archives, func(i, j int) bool {
			return r.archives[i].Seq < r.archives[j].Seq
		})
	} else {
		sort.Slice(r.archives, func(i, j int) bool {
			return r.archives[i].Stamp.After(r.archives[j].Stamp)
		})
	}
}
