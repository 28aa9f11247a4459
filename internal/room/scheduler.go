package room

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// Scheduler drives the two periodic loops of one playing session: a fixed
// timestep simulation tick and a coarser broadcast tick. The two run on
// independent tickers so simulation correctness never depends on broadcast
// cadence; broadcast cadence is tuned purely for bandwidth.
//
// Callbacks run on scheduler goroutines; the session serializes them against
// message handlers with its own lock, and every callback re-validates the
// phase under that lock. Stop may therefore be called while holding the
// session lock: it signals cancellation without waiting, and any tick that
// was already in flight is neutralized by the phase guard.
type Scheduler struct {
	clock clockwork.Clock

	mu   sync.Mutex
	stop chan struct{}
}

func NewScheduler(clock clockwork.Clock) *Scheduler {
	return &Scheduler{clock: clock}
}

// Start launches the simulation and broadcast loops. onSim receives the
// fixed timestep. Any previous run is cancelled before the successors are
// created.
func (s *Scheduler) Start(simInterval, broadcastInterval time.Duration, onSim func(dt time.Duration), onBroadcast func()) {
	s.Stop()

	s.mu.Lock()
	stop := make(chan struct{})
	s.stop = stop
	s.mu.Unlock()

	go s.loop(stop, simInterval, func() { onSim(simInterval) })
	go s.loop(stop, broadcastInterval, onBroadcast)
}

func (s *Scheduler) loop(stop chan struct{}, interval time.Duration, fn func()) {
	ticker := s.clock.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.Chan():
			select {
			case <-stop:
				return
			default:
			}
			fn()
		}
	}
}

// Stop cancels both loops. Idempotent.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stop != nil {
		close(s.stop)
		s.stop = nil
	}
}

// Running reports whether the loops are active.
func (s *Scheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stop != nil
}
