// Package session drives interactive queries: it debounces keystrokes,
// cancels superseded lookups and only ever delivers the newest result.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/bastiangx/docserve/internal/logger"
	"github.com/bastiangx/docserve/pkg/index"
	"github.com/bastiangx/docserve/pkg/rank"
	"github.com/bastiangx/docserve/pkg/suggest"
	"github.com/charmbracelet/log"
	"github.com/google/uuid"
)

// DefaultDebounce is the trailing debounce window applied to Submit.
const DefaultDebounce = 40 * time.Millisecond

// ErrCancelled is the outcome of a query superseded by a newer one or
// stopped by Close. It is never passed to OnError.
var ErrCancelled = errors.New("query cancelled")

// State of the session's current query.
type State int32

const (
	StateIdle State = iota
	StatePending
	StateCompleted
	StateCancelled
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StatePending:
		return "pending"
	case StateCompleted:
		return "completed"
	case StateCancelled:
		return "cancelled"
	case StateFailed:
		return "failed"
	}
	return fmt.Sprintf("State(%d)", int32(s))
}

// Update is a delivered query result.
type Update struct {
	Seq     uint64
	Query   string
	Key     index.Key
	Results []rank.Result
	Elapsed time.Duration
}

// QueryError reports a failed query.
type QueryError struct {
	Seq   uint64
	Query string
	Err   error
}

func (e *QueryError) Error() string {
	return fmt.Sprintf("query %d (%q): %v", e.Seq, e.Query, e.Err)
}

func (e *QueryError) Unwrap() error { return e.Err }

// Option configures a Session.
type Option func(*Session)

// WithDebounce sets the trailing debounce window; 0 runs every submission.
func WithDebounce(d time.Duration) Option {
	return func(s *Session) {
		if d >= 0 {
			s.debounce = d
		}
	}
}

// WithLimit sets the maximum number of results per query.
func WithLimit(n int) Option {
	return func(s *Session) { s.limit = n }
}

// WithLogger replaces the session logger.
func WithLogger(l *log.Logger) Option {
	return func(s *Session) {
		if l != nil {
			s.logger = l
		}
	}
}

// OnResult registers the result callback.
func OnResult(fn func(Update)) Option {
	return func(s *Session) { s.onResult = fn }
}

// OnError registers the error callback.
func OnError(fn func(*QueryError)) Option {
	return func(s *Session) { s.onError = fn }
}

// Session runs one query pipeline. Callbacks fire at most once per query
// that is not cancelled, in submission order, and never for a query older
// than one already delivered.
type Session struct {
	id        string
	completer suggest.ICompleter
	debounce  time.Duration
	limit     int
	logger    *log.Logger
	onResult  func(Update)
	onError   func(*QueryError)

	base context.Context
	stop context.CancelFunc
	wg   sync.WaitGroup

	// deliverMu orders callback delivery; mu guards the fields below.
	deliverMu sync.Mutex
	mu        sync.Mutex
	seq       uint64
	state     State
	timer     *time.Timer
	cancel    context.CancelFunc
	resolved  uint64
	last      Update
	lastErr   error
	changed   chan struct{}
	closed    bool
}

// New creates an idle session answering queries with completer.
func New(completer suggest.ICompleter, opts ...Option) *Session {
	id := uuid.NewString()
	s := &Session{
		id:        id,
		completer: completer,
		debounce:  DefaultDebounce,
		changed:   make(chan struct{}),
	}
	s.base, s.stop = context.WithCancel(context.Background())
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = logger.New("session")
	}
	s.logger = s.logger.With("session", id[:8])
	return s
}

// ID returns the session's unique id.
func (s *Session) ID() string { return s.id }

// State returns the state of the most recent query.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Results returns the last delivered update.
func (s *Session) Results() (Update, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last, s.last.Seq != 0
}

// Submit queues raw as the newest query and returns its sequence number.
// Any pending or in-flight query is cancelled. Returns 0 once closed.
func (s *Session) Submit(raw string) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0
	}

	s.seq++
	seq := s.seq
	if s.state == StatePending {
		s.logger.Debug("query superseded", "seq", seq-1)
	}
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	s.state = StatePending
	s.broadcastLocked()

	if s.debounce <= 0 {
		s.startLocked(seq, raw)
		return seq
	}
	s.timer = time.AfterFunc(s.debounce, func() { s.fire(seq, raw) })
	return seq
}

func (s *Session) fire(seq uint64, raw string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || seq != s.seq {
		return
	}
	s.timer = nil
	s.startLocked(seq, raw)
}

func (s *Session) startLocked(seq uint64, raw string) {
	ctx, cancel := context.WithCancel(s.base)
	s.cancel = cancel
	s.wg.Add(1)
	go s.run(ctx, cancel, seq, raw)
}

func (s *Session) run(ctx context.Context, cancel context.CancelFunc, seq uint64, raw string) {
	defer s.wg.Done()
	defer cancel()

	out, err := s.completer.Complete(ctx, raw, s.limit)

	s.deliverMu.Lock()
	defer s.deliverMu.Unlock()

	s.mu.Lock()
	if s.closed || seq != s.seq || ctx.Err() != nil {
		s.mu.Unlock()
		s.logger.Debug("discarded stale result", "seq", seq)
		return
	}
	s.cancel = nil
	if err != nil {
		s.state = StateFailed
		s.lastErr = &QueryError{Seq: seq, Query: raw, Err: err}
	} else {
		s.state = StateCompleted
		s.lastErr = nil
		s.last = Update{
			Seq:     seq,
			Query:   raw,
			Key:     out.Key,
			Results: out.Results,
			Elapsed: out.Elapsed,
		}
	}
	update, qerr := s.last, s.lastErr
	s.mu.Unlock()

	if err != nil {
		s.logger.Warn("query failed", "seq", seq, "err", err)
		if s.onError != nil {
			s.onError(qerr.(*QueryError))
		}
	} else {
		s.logger.Debug("query completed", "seq", seq, "results", len(update.Results), "elapsed", update.Elapsed)
		if s.onResult != nil {
			s.onResult(update)
		}
	}

	// Await returns only after the callbacks ran
	s.mu.Lock()
	s.resolved = seq
	s.broadcastLocked()
	s.mu.Unlock()
}

func (s *Session) broadcastLocked() {
	close(s.changed)
	s.changed = make(chan struct{})
}

// Await blocks until query seq is resolved. It returns ErrCancelled when a
// newer submission or Close supersedes it, and the *QueryError when it fails.
func (s *Session) Await(ctx context.Context, seq uint64) (Update, error) {
	for {
		s.mu.Lock()
		switch {
		case seq == 0 || seq < s.seq || (s.closed && s.resolved != seq):
			s.mu.Unlock()
			return Update{}, ErrCancelled
		case s.resolved == seq:
			update, err := s.last, s.lastErr
			s.mu.Unlock()
			if err != nil {
				return Update{}, err
			}
			return update, nil
		}
		ch := s.changed
		s.mu.Unlock()

		select {
		case <-ctx.Done():
			return Update{}, ctx.Err()
		case <-ch:
		}
	}
}

// Close cancels pending work and waits for in-flight queries to return.
// Callbacks never fire after Close returns, so they must not call Close.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	if s.state == StatePending {
		s.state = StateCancelled
	}
	s.broadcastLocked()
	s.mu.Unlock()

	s.stop()
	s.wg.Wait()
	s.logger.Debug("session closed")
}
