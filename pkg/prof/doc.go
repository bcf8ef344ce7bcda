// Package prof captures pprof profiles around a playback run.
//
// Profiling is compiled in only with the "profile" build tag:
//
//	go build -tags profile ./cmd/sinn7play
//
// A [Session] starts CPU sampling and, when requested, mutex or block
// contention sampling. Stop writes the snapshot profiles:
//
//	s, err := prof.Start(prof.Options{CPU: "cpu.prof", Mutex: "mutex.prof"})
//	if err != nil {
//	    return err
//	}
//	defer s.Stop()
//
// The mutex profile is the useful one for the streaming engine: the
// dispatcher, completion callbacks and the host writer all meet on the
// substream and DMA buffer locks.
package prof
