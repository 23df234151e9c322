package director

import (
	"os"
	"syscall"

	"github.com/go-wdl/wdlrun/internal/errs"
)

// RunLock holds the advisory exclusive flock on workflow.log/task.log for
// the run's lifetime (spec.md §4.N "Holds an advisory flock on
// workflow.log while in progress so that external observers can detect
// liveness").
type RunLock struct {
	f *os.File
}

func AcquireRunLock(path string) (*RunLock, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, errs.Wrap(errs.KindFilesystem, err, "open %s", path)
	}
	if err := syscall.Flock(int(f.Fd()), syscall.LOCK_EX|syscall.LOCK_NB); err != nil {
		f.Close()
		return nil, errs.Wrap(errs.KindConfiguration, err, "run directory %s is locked by another invocation", path)
	}
	return &RunLock{f: f}, nil
}

func (l *RunLock) Release() error {
	syscall.Flock(int(l.f.Fd()), syscall.LOCK_UN)
	return l.f.Close()
}
