//go:build profile

package prof

import (
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
)

func nonEmpty(t *testing.T, path string) {
	t.Helper()
	fi, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat %s: %v", path, err)
	}
	if fi.Size() == 0 {
		t.Errorf("%s is empty", filepath.Base(path))
	}
}

func TestSession_WritesProfiles(t *testing.T) {
	dir := t.TempDir()
	opts := Options{
		CPU:   filepath.Join(dir, "cpu.prof"),
		Heap:  filepath.Join(dir, "heap.prof"),
		Mutex: filepath.Join(dir, "mutex.prof"),
		Block: filepath.Join(dir, "block.prof"),
	}

	s, err := Start(opts)
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	var mu sync.Mutex
	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 1000; j++ {
				mu.Lock()
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if err := s.Stop(); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
	for _, p := range []string{opts.CPU, opts.Heap, opts.Mutex, opts.Block} {
		nonEmpty(t, p)
	}

	if err := s.Stop(); err != nil {
		t.Errorf("second Stop() error = %v", err)
	}
}

func TestSession_FailFastWhenActive(t *testing.T) {
	s, err := Start(Options{CPU: filepath.Join(t.TempDir(), "cpu.prof")})
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer s.Stop()

	if _, err := Start(Options{}); !errors.Is(err, ErrActive) {
		t.Errorf("Start() error = %v, want %v", err, ErrActive)
	}
}

func TestSession_InvalidPath(t *testing.T) {
	if s, err := Start(Options{CPU: "/nonexistent/directory/cpu.prof"}); err == nil {
		s.Stop()
		t.Error("Start() error = nil, want error for invalid path")
	}

	// A failed start leaves no session active.
	s, err := Start(Options{})
	if err != nil {
		t.Fatalf("Start() after failure error = %v", err)
	}
	s.Stop()
}

func TestEnabled(t *testing.T) {
	if !Enabled() {
		t.Error("Enabled() = false with profile tag")
	}
}
