package pcm

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/ardnew/sinn7/hal"
	"github.com/ardnew/sinn7/pkg"
)

// mockHAL is a DeviceHAL for testing. By default every transfer completes
// successfully on its own goroutine.
type mockHAL struct {
	mu sync.Mutex

	// hold keeps transfers pending until completed by the test.
	hold bool
	// ignoreCancel leaves cancelled transfers pending.
	ignoreCancel bool
	// submitErr rejects submissions.
	submitErr error

	nextID    hal.TransferID
	pending   map[hal.TransferID]hal.CompletionFunc
	submits   int
	cancels   int
	transfers [][]byte
	controls  []hal.SetupPacket
	detached  chan struct{}
}

var _ hal.DeviceHAL = (*mockHAL)(nil)

func newMockHAL() *mockHAL {
	return &mockHAL{
		pending:  make(map[hal.TransferID]hal.CompletionFunc),
		detached: make(chan struct{}),
	}
}

func (m *mockHAL) ControlTransfer(ctx context.Context, setup *hal.SetupPacket, data []byte) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.controls = append(m.controls, *setup)
	return len(data), nil
}

func (m *mockHAL) SetInterface(iface, alt uint8) error { return nil }

func (m *mockHAL) SubmitBulk(ep uint8, data []byte, done hal.CompletionFunc) (hal.TransferID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.submits++
	if m.submitErr != nil {
		return 0, m.submitErr
	}
	m.nextID++
	id := m.nextID
	m.transfers = append(m.transfers, append([]byte(nil), data...))

	if m.hold {
		m.pending[id] = done
		return id, nil
	}
	n := len(data)
	go done(pkg.TransferStatusSuccess, n)
	return id, nil
}

func (m *mockHAL) Cancel(id hal.TransferID) error {
	m.mu.Lock()
	m.cancels++
	done, ok := m.pending[id]
	if !ok || m.ignoreCancel {
		m.mu.Unlock()
		return nil
	}
	delete(m.pending, id)
	m.mu.Unlock()

	go done(pkg.TransferStatusCancelled, 0)
	return nil
}

func (m *mockHAL) Info() hal.DeviceInfo {
	return hal.DeviceInfo{VendorID: 0x200c, ProductID: 0x1006, Bus: 1, Address: 2}
}

func (m *mockHAL) Detached() <-chan struct{} { return m.detached }

func (m *mockHAL) Close() error { return nil }

// completeAll finishes every held transfer with status.
func (m *mockHAL) completeAll(status pkg.TransferStatus) int {
	m.mu.Lock()
	pending := m.pending
	m.pending = make(map[hal.TransferID]hal.CompletionFunc)
	m.mu.Unlock()

	for _, done := range pending {
		done(status, 0)
	}
	return len(pending)
}

func (m *mockHAL) setHold(hold bool) {
	m.mu.Lock()
	m.hold = hold
	m.mu.Unlock()
}

func (m *mockHAL) setSubmitErr(err error) {
	m.mu.Lock()
	m.submitErr = err
	m.mu.Unlock()
}

func (m *mockHAL) submitCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.submits
}

func (m *mockHAL) pendingCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.pending)
}

func (m *mockHAL) snapshot() [][]byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([][]byte(nil), m.transfers...)
}

// testStream is a HostStream backed by a DMABuffer.
type testStream struct {
	dma     *DMABuffer
	mu      sync.Mutex
	periods int
	notify  chan struct{}

	// onPeriod runs on the dispatcher goroutine after each period.
	onPeriod func()
}

func newTestStream(size int) *testStream {
	return &testStream{dma: NewDMABuffer(size), notify: make(chan struct{}, 1)}
}

func (s *testStream) DMA() *DMABuffer { return s.dma }

func (s *testStream) PeriodElapsed() {
	s.mu.Lock()
	s.periods++
	s.mu.Unlock()
	if s.onPeriod != nil {
		s.onPeriod()
	}
	select {
	case s.notify <- struct{}{}:
	default:
	}
}

func (s *testStream) elapsed() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.periods
}

// testConfig returns a configuration with short timeouts.
func testConfig() Config {
	cfg := DefaultConfig()
	cfg.StartTimeout = 200 * time.Millisecond
	cfg.StopTimeout = 20 * time.Millisecond
	return cfg
}

// eventually polls cond until it holds or the deadline passes.
func eventually(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}
