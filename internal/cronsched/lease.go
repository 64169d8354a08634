package cronsched

import (
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// DefaultLeaseDuration is how long a lock file is honored before a
// different scheduler instance is allowed to reclaim it as stale.
const DefaultLeaseDuration = 120 * time.Second

// Lease is a filesystem-based mutual-exclusion lock for one job tick: an
// O_CREAT|O_EXCL lock file, so a single-node or crash-prone deployment
// doesn't need a database to avoid double-firing a job. A lock file older
// than the lease duration is considered stale and reclaimed.
type Lease struct {
	dir      string
	duration time.Duration
}

// NewLease returns a Lease that stores lock files under dir.
func NewLease(dir string, duration time.Duration) (*Lease, error) {
	if duration <= 0 {
		duration = DefaultLeaseDuration
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("cronsched: create lease dir: %w", err)
	}
	return &Lease{dir: dir, duration: duration}, nil
}

func (l *Lease) path(jobID string) string {
	return filepath.Join(l.dir, jobID+".lock")
}

// Acquire attempts to take the lease for jobID. It succeeds if no lock file
// exists, or if an existing one is older than the lease duration (the
// holder is presumed dead — e.g. crashed mid-tick). The returned release
// func must be called when the job finishes; it is a no-op if the lease
// was not actually acquired.
func (l *Lease) Acquire(jobID string) (acquired bool, release func(), err error) {
	path := l.path(jobID)

	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err == nil {
		if _, werr := fmt.Fprintf(f, "%d\n", os.Getpid()); werr != nil {
			f.Close()
			os.Remove(path)
			return false, func() {}, fmt.Errorf("cronsched: write lease: %w", werr)
		}
		f.Close()
		return true, func() { os.Remove(path) }, nil
	}
	if !os.IsExist(err) {
		return false, func() {}, fmt.Errorf("cronsched: open lease: %w", err)
	}

	// Lock file already exists: check staleness by mtime.
	info, statErr := os.Stat(path)
	if statErr != nil {
		if os.IsNotExist(statErr) {
			// Raced with the holder's release; try again once.
			return l.Acquire(jobID)
		}
		return false, func() {}, fmt.Errorf("cronsched: stat lease: %w", statErr)
	}
	if time.Since(info.ModTime()) < l.duration {
		return false, func() {}, nil
	}

	// Stale: reclaim by removing and retrying the exclusive create.
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return false, func() {}, fmt.Errorf("cronsched: remove stale lease: %w", err)
	}
	f, err = os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		if os.IsExist(err) {
			// Another instance reclaimed it first.
			return false, func() {}, nil
		}
		return false, func() {}, fmt.Errorf("cronsched: reclaim lease: %w", err)
	}
	if _, werr := fmt.Fprintf(f, "%d\n", os.Getpid()); werr != nil {
		f.Close()
		os.Remove(path)
		return false, func() {}, fmt.Errorf("cronsched: write reclaimed lease: %w", werr)
	}
	f.Close()
	return true, func() { os.Remove(path) }, nil
}

// Touch refreshes a held lease's mtime so a long-running job isn't reclaimed
// as stale mid-execution by another scheduler instance.
func (l *Lease) Touch(jobID string) error {
	now := time.Now()
	return os.Chtimes(l.path(jobID), now, now)
}
