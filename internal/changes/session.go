package changes

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
)

// Pass evaluates one ChangeSet. It returns a commit function that
// publishes the result; the Session calls it only when the set is newer
// than everything committed so far. A pass must stop promptly when ctx is
// cancelled.
type Pass func(ctx context.Context, cs ChangeSet) (commit func(), err error)

// Session runs passes one at a time for change sets submitted by
// producers. A newer submission cancels the pass in flight; the cancelled
// set is merged back into the pending one so no path is lost.
type Session struct {
	mailbox *Mailbox
	pass    Pass
	logger  *slog.Logger

	seq atomic.Uint64

	mu        sync.Mutex
	committed uint64

	stopOnce sync.Once
	stopped  chan struct{}
}

type passResult struct {
	commit func()
	err    error
}

// NewSession creates a Session that evaluates with pass.
func NewSession(pass Pass, logger *slog.Logger) *Session {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Session{
		mailbox: NewMailbox(),
		pass:    pass,
		logger:  logger,
		stopped: make(chan struct{}),
	}
}

// Submit assigns cs the next sequence number and queues it. Empty sets are
// dropped and return 0.
func (s *Session) Submit(cs ChangeSet) uint64 {
	if cs.Empty() {
		return 0
	}
	cs.Seq = s.seq.Add(1)
	s.logger.Debug("change set submitted", "seq", cs.Seq, "dirty", len(cs.Dirty), "deleted", len(cs.Deleted))
	s.mailbox.Put(cs)
	return cs.Seq
}

// Committed returns the sequence number of the last committed pass.
func (s *Session) Committed() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.committed
}

// Stop makes Run return once the pass in flight, if any, has finished.
// Unlike cancelling Run's context it does not interrupt that pass.
func (s *Session) Stop() {
	s.stopOnce.Do(func() { close(s.stopped) })
}

// Run processes change sets until ctx is done or Stop is called.
func (s *Session) Run(ctx context.Context) error {
	takeCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-s.stopped:
			cancel()
		case <-takeCtx.Done():
		}
	}()

	for {
		cs, err := s.mailbox.Take(takeCtx)
		if err != nil {
			return nil
		}
		s.runPass(ctx, cs)
		if takeCtx.Err() != nil {
			return nil
		}
	}
}

func (s *Session) runPass(ctx context.Context, cs ChangeSet) {
	passCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	done := make(chan passResult, 1)
	go func() {
		commit, err := s.pass(passCtx, cs)
		done <- passResult{commit: commit, err: err}
	}()

	superseded := false
	var res passResult
wait:
	for {
		select {
		case res = <-done:
			break wait
		case <-s.mailbox.Ready():
			if !superseded && s.mailbox.Pending() {
				superseded = true
				s.logger.Debug("change set superseded", "seq", cs.Seq)
				cancel()
			}
		}
	}

	switch {
	case res.err == nil:
		s.commit(cs.Seq, res.commit)
	case ctx.Err() != nil:
		// session is shutting down
	case superseded && errors.Is(res.err, context.Canceled):
		s.mailbox.Put(cs)
	default:
		s.logger.Error("evaluation pass failed", "seq", cs.Seq, "error", res.err)
	}
}

// commit runs fn if seq is newer than the last committed pass.
func (s *Session) commit(seq uint64, fn func()) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if seq <= s.committed {
		s.logger.Debug("dropping stale result", "seq", seq, "committed", s.committed)
		return false
	}
	s.committed = seq
	if fn != nil {
		fn()
	}
	return true
}
