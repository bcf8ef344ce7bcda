//go:build profile

package prof

import (
	"errors"
	"fmt"
	"os"
	"runtime"
	"runtime/pprof"
	"sync"

	"github.com/ardnew/sinn7/pkg"
)

// ErrActive indicates a profiling session is already running.
var ErrActive = errors.New("profile session already active")

var (
	activeMu sync.Mutex
	active   bool
)

// Enabled reports whether profiling is compiled in.
func Enabled() bool { return true }

// Session is a running profiling session.
type Session struct {
	opts Options
	cpu  *os.File

	once sync.Once
	err  error
}

// Start begins a session. CPU sampling starts immediately; contention
// sampling is enabled if a mutex or block profile is requested.
func Start(opts Options) (*Session, error) {
	activeMu.Lock()
	defer activeMu.Unlock()

	if active {
		return nil, ErrActive
	}

	s := &Session{opts: opts}
	if opts.CPU != "" {
		f, err := os.Create(opts.CPU)
		if err != nil {
			return nil, fmt.Errorf("cpu profile: %w", err)
		}
		if err := pprof.StartCPUProfile(f); err != nil {
			f.Close()
			return nil, fmt.Errorf("cpu profile: %w", err)
		}
		s.cpu = f
	}
	if opts.Mutex != "" {
		runtime.SetMutexProfileFraction(opts.rate())
	}
	if opts.Block != "" {
		runtime.SetBlockProfileRate(opts.rate())
	}

	active = true
	return s, nil
}

// Stop ends CPU sampling and writes the snapshot profiles. It is safe to
// call more than once; later calls return the first result.
func (s *Session) Stop() error {
	s.once.Do(func() {
		activeMu.Lock()
		defer activeMu.Unlock()

		if s.cpu != nil {
			pprof.StopCPUProfile()
			s.err = errors.Join(s.err, s.cpu.Close())
		}
		if s.opts.Heap != "" {
			runtime.GC()
			s.err = errors.Join(s.err, writeProfile("heap", s.opts.Heap))
		}
		if s.opts.Mutex != "" {
			s.err = errors.Join(s.err, writeProfile("mutex", s.opts.Mutex))
			runtime.SetMutexProfileFraction(0)
		}
		if s.opts.Block != "" {
			s.err = errors.Join(s.err, writeProfile("block", s.opts.Block))
			runtime.SetBlockProfileRate(0)
		}
		active = false
	})
	return s.err
}

func writeProfile(name, path string) error {
	p := pprof.Lookup(name)
	if p == nil {
		return fmt.Errorf("%w: profile %q", pkg.ErrNotSupported, name)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("%s profile: %w", name, err)
	}
	defer f.Close()
	return p.WriteTo(f, 0)
}
