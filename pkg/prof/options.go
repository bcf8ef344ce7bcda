package prof

// Options names the profile files of a session. Empty paths are skipped.
type Options struct {
	CPU   string
	Heap  string
	Mutex string
	Block string

	// Rate is the mutex fraction and block rate used while sampling
	// contention. Zero samples every event.
	Rate int
}

func (o Options) rate() int {
	if o.Rate <= 0 {
		return 1
	}
	return o.Rate
}

// Any reports whether any profile is requested.
func (o Options) Any() bool {
	return o.CPU != "" || o.Heap != "" || o.Mutex != "" || o.Block != ""
}
