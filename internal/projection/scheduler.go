package projection

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/private-escrow/escrowd/internal/escrow"
)

// Scheduler runs one watch loop per agreement id: a fast poll for the
// agreement itself, a slower one for the discussion log, plus ambient
// refreshes (focus regained, bus events) squeezed through a rate gate.
// Background refresh failures are logged and swallowed; only explicit
// Refresh calls surface errors.
type Scheduler struct {
	fetcher *Fetcher
	store   *Store
	log     *zap.Logger

	pollInterval       time.Duration
	discussionInterval time.Duration
	idleTimeout        time.Duration

	// newGate builds the rate gate for a fresh watch, swappable in tests
	newGate func() *ambientGate

	mu      sync.Mutex
	watches map[string]*watch
}

type watch struct {
	ambient chan struct{}
	touch   chan struct{}
	stop    chan struct{}
	gate    *ambientGate
}

func NewScheduler(fetcher *Fetcher, store *Store, pollInterval, discussionInterval, ambientMin, idleTimeout time.Duration, log *zap.Logger) *Scheduler {
	s := &Scheduler{
		fetcher:            fetcher,
		store:              store,
		log:                log,
		pollInterval:       pollInterval,
		discussionInterval: discussionInterval,
		idleTimeout:        idleTimeout,
		watches:            make(map[string]*watch),
	}
	s.newGate = func() *ambientGate { return &ambientGate{min: ambientMin} }
	return s
}

// Watch starts syncing the id if it is not watched yet. The first snapshot
// is fetched synchronously so callers see data or an error right away.
// Re-watching an already watched id counts as activity and pushes the idle
// deadline out.
func (s *Scheduler) Watch(ctx context.Context, id string) error {
	s.mu.Lock()
	if w, ok := s.watches[id]; ok {
		s.mu.Unlock()
		select {
		case w.touch <- struct{}{}:
		default:
		}
		return nil
	}
	w := &watch{
		ambient: make(chan struct{}, 1),
		touch:   make(chan struct{}, 1),
		stop:    make(chan struct{}),
		gate:    s.newGate(),
	}
	s.watches[id] = w
	s.mu.Unlock()

	if err := s.Refresh(ctx, id); err != nil {
		s.Unwatch(id)
		return err
	}

	go s.run(id, w)
	return nil
}

// Unwatch stops the watch loop and keeps the last snapshot in the store.
func (s *Scheduler) Unwatch(id string) {
	s.mu.Lock()
	w, ok := s.watches[id]
	if ok {
		delete(s.watches, id)
	}
	s.mu.Unlock()
	if ok {
		close(w.stop)
	}
}

// Watching reports whether a loop is running for the id.
func (s *Scheduler) Watching(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.watches[id]
	return ok
}

// Refresh performs one authoritative fetch now and surfaces the error.
func (s *Scheduler) Refresh(ctx context.Context, id string) error {
	snap, err := s.fetcher.FetchSnapshot(ctx, id)
	if err != nil {
		return err
	}
	s.store.Replace(id, snap)
	return nil
}

// Ambient requests an out-of-band refresh, e.g. when a bus event arrives or
// a client reconnects. Requests inside the gate's minimum interval are
// dropped.
func (s *Scheduler) Ambient(id string) {
	s.mu.Lock()
	w, ok := s.watches[id]
	s.mu.Unlock()
	if !ok {
		return
	}
	if !w.gate.Allow(time.Now()) {
		return
	}
	select {
	case w.ambient <- struct{}{}:
	default:
	}
}

func (s *Scheduler) run(id string, w *watch) {
	poll := time.NewTicker(s.pollInterval)
	defer poll.Stop()
	discussion := time.NewTicker(s.discussionInterval)
	defer discussion.Stop()
	idle := time.NewTimer(s.idleTimeout)
	defer idle.Stop()

	log := s.log.With(zap.String("agreement", escrow.ShortID(id)))
	log.Debug("watch started")

	for {
		select {
		case <-w.stop:
			log.Debug("watch stopped")
			return

		case <-poll.C:
			s.silentRefresh(id, log)
			if snap := s.store.Authoritative(id); snap != nil && snap.Agreement.State.Terminal() {
				// terminal agreements stop changing, no point polling on
				log.Debug("agreement reached terminal state, unwatching")
				s.Unwatch(id)
				return
			}

		case <-discussion.C:
			ctx, cancel := context.WithTimeout(context.Background(), s.pollInterval)
			msgs, err := s.fetcher.FetchDiscussion(ctx, id)
			cancel()
			if err != nil {
				log.Debug("discussion refresh failed", zap.Error(err))
				continue
			}
			s.store.ReplaceDiscussion(id, msgs)

		case <-w.ambient:
			s.silentRefresh(id, log)
			resetIdle(idle, s.idleTimeout)

		case <-w.touch:
			resetIdle(idle, s.idleTimeout)

		case <-idle.C:
			log.Debug("watch idle, stopping")
			s.Unwatch(id)
			return
		}
	}
}

func resetIdle(idle *time.Timer, timeout time.Duration) {
	if !idle.Stop() {
		select {
		case <-idle.C:
		default:
		}
	}
	idle.Reset(timeout)
}

func (s *Scheduler) silentRefresh(id string, log *zap.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), s.pollInterval*2)
	defer cancel()
	if err := s.Refresh(ctx, id); err != nil {
		log.Debug("background refresh failed", zap.Error(err))
	}
}

// ambientGate throttles ambient refreshes to at most one per min interval.
type ambientGate struct {
	mu   sync.Mutex
	last time.Time
	min  time.Duration
}

func (g *ambientGate) Allow(now time.Time) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.last.IsZero() && now.Sub(g.last) < g.min {
		return false
	}
	g.last = now
	return true
}
