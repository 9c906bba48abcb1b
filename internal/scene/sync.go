package scene

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"
)

// Provider is the consumed collaborator interface: it returns the raw
// object/camera/light description of the authoring scene on demand. A nil
// scene with a nil error means "nothing to report this cycle".
type Provider interface {
	Scene(ctx context.Context) (*RawScene, error)
}

// Config holds synchronizer tunables.
type Config struct {
	Interval   time.Duration // fixed sync-loop period
	HistoryCap int           // bounded change-history capacity
}

const (
	defaultInterval   = 100 * time.Millisecond
	defaultHistoryCap = 100
)

type observer struct {
	name  string
	fn    func(Change) error
	async bool
}

// Synchronizer tracks the canonical scene snapshot and turns successive
// snapshots into minimal change events. It is Idle until Start is called
// and returns to Idle on Stop; while Syncing it runs a cancellable
// fixed-interval loop against the Provider. Cycle N+1's fetch never starts
// before cycle N's diff-and-notify completes.
type Synchronizer struct {
	mu        sync.RWMutex
	cfg       Config
	provider  Provider
	current   *State
	previous  *State
	history   []Change
	pending   []Change
	observers []observer

	syncing bool
	cancel  context.CancelFunc
	done    chan struct{}
}

// NewSynchronizer returns an idle synchronizer. provider may be nil when
// all updates arrive through Update calls from the enclosing platform.
func NewSynchronizer(cfg Config, provider Provider) *Synchronizer {
	if cfg.Interval <= 0 {
		cfg.Interval = defaultInterval
	}
	if cfg.HistoryCap <= 0 {
		cfg.HistoryCap = defaultHistoryCap
	}
	return &Synchronizer{cfg: cfg, provider: provider}
}

// Subscribe registers a synchronous observer, invoked inline in
// registration order for every change event. An error return (or panic) is
// logged and does not affect other observers or the sync loop.
func (s *Synchronizer) Subscribe(name string, fn func(Change) error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.observers = append(s.observers, observer{name: name, fn: fn})
}

// SubscribeAsync registers an observer that is invoked on its own goroutine
// per event. Registration order relative to synchronous observers is still
// the dispatch order.
func (s *Synchronizer) SubscribeAsync(name string, fn func(Change) error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.observers = append(s.observers, observer{name: name, fn: fn, async: true})
}

// Start begins the fixed-interval sync loop. Calling Start while already
// syncing is a no-op.
func (s *Synchronizer) Start(ctx context.Context) {
	s.mu.Lock()
	if s.syncing || s.provider == nil {
		s.mu.Unlock()
		return
	}
	loopCtx, cancel := context.WithCancel(ctx)
	s.syncing = true
	s.cancel = cancel
	s.done = make(chan struct{})
	done := s.done
	s.mu.Unlock()

	go s.loop(loopCtx, done)
	log.Println("[sync] scene synchronization started")
}

// Stop cancels the sync loop and waits for the in-flight cycle to finish.
// Safe to call when already stopped.
func (s *Synchronizer) Stop() {
	s.mu.Lock()
	if !s.syncing {
		s.mu.Unlock()
		return
	}
	cancel := s.cancel
	done := s.done
	s.mu.Unlock()

	cancel()
	<-done

	s.mu.Lock()
	s.syncing = false
	s.cancel = nil
	s.done = nil
	s.mu.Unlock()
	log.Println("[sync] scene synchronization stopped")
}

func (s *Synchronizer) loop(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	for {
		s.cycle(ctx)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// cycle performs one fetch-diff-notify pass. Errors from the provider are
// logged and the cycle is skipped; the loop keeps running.
func (s *Synchronizer) cycle(ctx context.Context) {
	raw, err := s.provider.Scene(ctx)
	if err != nil {
		if ctx.Err() == nil {
			log.Printf("[sync] provider error: %v", err)
		}
		return
	}
	if raw == nil {
		return
	}
	s.Update(raw)
}

// Update publishes a new snapshot built from raw, diffing it against the
// current one. The resulting change events are appended to the bounded
// history, queued for the broadcast tick, and dispatched to observers. The
// events are returned for callers that want them directly.
func (s *Synchronizer) Update(raw *RawScene) []Change {
	st := NewState(raw)

	s.mu.Lock()
	prev := s.current
	if prev == nil {
		// The first real snapshot diffs against an empty scene so that
		// initial objects surface as added events.
		prev = emptyState()
	}
	changes := diff(prev, st)
	s.record(changes)
	s.previous = s.current
	s.current = st
	obs := make([]observer, len(s.observers))
	copy(obs, s.observers)
	s.mu.Unlock()

	s.dispatch(obs, changes)
	return changes
}

// Clear synthesizes a single cleared event and swaps in an empty snapshot.
func (s *Synchronizer) Clear() {
	change := Change{Kind: ChangeCleared, Time: time.Now()}

	s.mu.Lock()
	if s.current == nil {
		s.mu.Unlock()
		return
	}
	s.record([]Change{change})
	s.previous = s.current
	s.current = emptyState()
	obs := make([]observer, len(s.observers))
	copy(obs, s.observers)
	s.mu.Unlock()

	s.dispatch(obs, []Change{change})
	log.Println("[sync] scene cleared")
}

// record appends changes to the history and pending queues, evicting the
// oldest entries once capacity is reached. Caller holds the lock.
func (s *Synchronizer) record(changes []Change) {
	for _, c := range changes {
		s.history = append(s.history, c)
		if len(s.history) > s.cfg.HistoryCap {
			s.history = s.history[1:]
		}
		s.pending = append(s.pending, c)
		if len(s.pending) > s.cfg.HistoryCap {
			s.pending = s.pending[1:]
		}
	}
}

func (s *Synchronizer) dispatch(obs []observer, changes []Change) {
	for _, c := range changes {
		for _, o := range obs {
			if o.async {
				go invokeObserver(o, c)
			} else {
				invokeObserver(o, c)
			}
		}
	}
}

// invokeObserver isolates one observer call: an error or panic is logged
// and never propagates.
func invokeObserver(o observer, c Change) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("[sync] observer %q panicked on %s(%s): %v", o.name, c.Kind, c.Name, r)
		}
	}()
	if err := o.fn(c); err != nil {
		log.Printf("[sync] observer %q failed on %s(%s): %v", o.name, c.Kind, c.Name, err)
	}
}

// Drain removes and returns up to max queued change events, oldest first.
// The broadcast tick calls this once per tick.
func (s *Synchronizer) Drain(max int) []Change {
	s.mu.Lock()
	defer s.mu.Unlock()
	if max <= 0 || len(s.pending) == 0 {
		return nil
	}
	n := max
	if n > len(s.pending) {
		n = len(s.pending)
	}
	out := make([]Change, n)
	copy(out, s.pending[:n])
	s.pending = s.pending[n:]
	return out
}

// Current returns the latest published snapshot, or nil before the first
// update. Snapshots are immutable and safe to share.
func (s *Synchronizer) Current() *State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

// Previous returns the snapshot replaced by the latest update.
func (s *Synchronizer) Previous() *State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.previous
}

// ObjectData returns the named object from the current snapshot.
func (s *Synchronizer) ObjectData(name string) (Object, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.current == nil {
		return Object{}, false
	}
	return s.current.Get(name)
}

// RecentChanges returns up to limit of the most recent history entries,
// oldest first. limit <= 0 returns the whole history.
func (s *Synchronizer) RecentChanges(limit int) []Change {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := len(s.history)
	if limit > 0 && limit < n {
		n = limit
	}
	out := make([]Change, n)
	copy(out, s.history[len(s.history)-n:])
	return out
}

// Summary describes the current scene for status queries.
type Summary struct {
	Objects      int       `json:"objects"`
	SceneName    string    `json:"scene_name"`
	ActiveObject string    `json:"active_object,omitempty"`
	FrameCurrent int       `json:"frame_current"`
	LastUpdate   time.Time `json:"last_update"`
	Status       string    `json:"status"`
}

// Summarize reports the current scene in queryable form.
func (s *Synchronizer) Summarize() Summary {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.current == nil {
		return Summary{SceneName: "None", Status: "no_scene"}
	}
	return Summary{
		Objects:      s.current.Len(),
		SceneName:    s.current.SceneName,
		ActiveObject: s.current.ActiveObject,
		FrameCurrent: s.current.FrameCurrent,
		LastUpdate:   s.current.Timestamp,
		Status:       "active",
	}
}

// Status reports the synchronizer's own state.
type Status struct {
	Syncing     bool          `json:"syncing"`
	Interval    time.Duration `json:"interval"`
	HistoryLen  int           `json:"history_len"`
	PendingLen  int           `json:"pending_len"`
	Observers   int           `json:"observers"`
	SceneLoaded bool          `json:"scene_loaded"`
}

// SyncStatus returns loop and bookkeeping state.
func (s *Synchronizer) SyncStatus() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Status{
		Syncing:     s.syncing,
		Interval:    s.cfg.Interval,
		HistoryLen:  len(s.history),
		PendingLen:  len(s.pending),
		Observers:   len(s.observers),
		SceneLoaded: s.current != nil,
	}
}

// String implements fmt.Stringer for log lines.
func (st Status) String() string {
	return fmt.Sprintf("syncing=%t history=%d pending=%d observers=%d", st.Syncing, st.HistoryLen, st.PendingLen, st.Observers)
}
