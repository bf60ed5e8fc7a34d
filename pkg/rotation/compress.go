package rotation

import (
	"io"
	"os"

	"github.com/klauspost/compress/gzip"
)

// startCompression gzips every archive beyond the CompressKeep newest on a
// fresh goroutine. CPU-bound work must never hold up the writer; the next
// Rotate joins this goroutine instead, so two passes never race over the
// archive set.
func (r *Rotator) startCompression() {
	if !r.policy.Compress {
		return
	}

	keep := r.policy.CompressKeep
	if keep < 0 {
		keep = 0
	}

	r.mu.Lock()
	var pending []int
	for i, a := range r.archives {
		if i < keep || a.Compressed {
			continue
		}
		pending = append(pending, i)
	}
	r.mu.Unlock()
	if len(pending) == 0 {
		return
	}

	done := make(chan struct{})
	r.compressDone = done
	go func() {
		defer close(done)
		for _, idx := range pending {
			r.mu.Lock()
			a := r.archives[idx]
			r.mu.Unlock()
			gzPath, err := compressFile(a.Path)
			if err != nil {
				r.errorFn("compress", a.Path, "compress archive", err)
				continue
			}
			r.mu.Lock()
			r.archives[idx].Compressed = true
			r.archives[idx].Path = gzPath
			r.mu.Unlock()
			if r.stats != nil {
				r.stats.TrackCompress()
			}
		}
	}()
}

// WaitCompression blocks until any in-flight compression pass finishes. Taken
// on explicit flushes (shutdown, panic, manual) and at the top of Rotate,
// never on the steady-state write path.
func (r *Rotator) WaitCompression() {
	if r.compressDone == nil {
		return
	}
	<-r.compressDone
	r.compressDone = nil
}

// compressFile writes path.gz next to path and removes the original. A
// half-written .gz is deleted on failure so a retry starts clean.
func compressFile(path string) (string, error) {
	src, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer src.Close()

	gzPath := path + ".gz"
	dst, err := os.OpenFile(gzPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return "", err
	}

	gw := gzip.NewWriter(dst)
	if _, err = io.Copy(gw, src); err == nil {
		err = gw.Close()
	} else {
		gw.Close()
	}
	if cerr := dst.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(gzPath)
		return "", err
	}
	if err := os.Remove(path); err != nil {
		return gzPath, err
	}
	return gzPath, nil
}
