//go:build !profile

package prof

import (
	"fmt"

	"github.com/ardnew/sinn7/pkg"
)

// Enabled reports whether profiling is compiled in.
func Enabled() bool { return false }

// Session is a no-op without the "profile" tag.
type Session struct{}

// Start fails if any profile is requested, since none can be written.
func Start(opts Options) (*Session, error) {
	if opts.Any() {
		return nil, fmt.Errorf("%w: rebuild with -tags profile", pkg.ErrNotSupported)
	}
	return &Session{}, nil
}

// Stop does nothing.
func (s *Session) Stop() error { return nil }
