// Package election implements the leader election core of a cluster
// scheduler: electing exactly one leader among candidate processes via a
// ZooKeeper coordination store, and publishing the current leader's
// identity as a live, deduplicated event stream.
//
//	client, err := election.NewClient(election.ClientConfig{
//	    Hosts:                  []string{"zk1:2181", "zk2:2181"},
//	    SessionTimeout:         10 * time.Second,
//	    ConnectionTimeout:      5 * time.Second,
//	    BlockingConnectTimeout: 10 * time.Second,
//	})
//	el, err := election.NewElection(client, election.Config{
//	    CandidateID:          "worker-n01:8080",
//	    ElectionPath:         "/scheduler/leader",
//	    StreamConnectTimeout: 30 * time.Second,
//	})
//	for ev := range el.Events() {
//	    if ev.Err != nil {
//	        // process-level action: exit and restart under a supervisor.
//	    }
//	    if ev.State.IsLeader() {
//	        // do leader things
//	    }
//	}
//
//	// Abdicate and release resources.
//	el.Cancel()
package election

import (
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// Config configures an Election, per spec.md section 6 ("Inputs the core
// consumes").
type Config struct {
	// CandidateID is this process's unique identity, conventionally
	// "host:port".
	CandidateID string
	// ElectionPath is the configured base path P; the latch operates under
	// P + "-curator" (spec.md section 6).
	ElectionPath string
	// StreamConnectTimeout bounds how long a subscriber will wait for the
	// first leadership observation before the stream fails (spec.md
	// section 4.4).
	StreamConnectTimeout time.Duration
	// Metrics, if nil, defaults to NoopMetrics.
	Metrics Metrics
}

// Election is the lifecycle controller (spec.md section 4.5): it binds
// start/cancel to the subscriber's handle and coordinates abdication
// (removing the membership node) before the underlying store session
// closes.
type Election struct {
	client *Client
	latch  *LeaderLatch
	stream *Stream
	loop   *watchLoop
	exec   *executor
	log    *logrus.Entry

	hookID     int
	cancelOnce sync.Once
}

// NewElection registers a pre-close hook on client, starts the latch, and
// launches the watch/poll loop, per spec.md section 4.5 ("Start"). It does
// not block waiting for a leadership decision: the subscriber consumes
// Events() at its own pace, and the stream's own initial-connect timeout is
// what bounds "never hearing anything" (see DESIGN.md for the rationale,
// recorded as a deliberate departure from the teacher's blocking
// constructor).
//
// If start fails, the returned error is also the terminal error on the
// stream (which is otherwise unusable and should be discarded).
func NewElection(client *Client, conf Config) (*Election, error) {
	latch := NewLeaderLatch(client.Conn(), client.ACL(), client.Retry(), conf.ElectionPath, conf.CandidateID)
	stream := NewStream(conf.StreamConnectTimeout)
	exec := newExecutor()
	loop := newWatchLoop(latch, client.Conn(), stream, client.Retry(), conf.Metrics, exec)

	e := &Election{
		client: client,
		latch:  latch,
		stream: stream,
		loop:   loop,
		exec:   exec,
		log:    logrus.WithField("category", "election"),
	}

	stream.OnComplete(func() { e.Cancel() })

	e.hookID = client.RegisterPreCloseHook(func() { e.Cancel() })

	e.log.Info("starting leader latch")
	startErr := make(chan error, 1)
	exec.Schedule(func() { startErr <- latch.Start() })
	if err := <-startErr; err != nil {
		wrapped := errors.Wrap(err, "while starting leader latch")
		stream.Fail(wrapped)
		return nil, wrapped
	}

	loop.start()
	return e, nil
}

// Events returns the leadership event stream, per spec.md section 4.4.
func (e *Election) Events() <-chan Event { return e.stream.Events() }

// IsLeader reports whether the most recently delivered event was
// ElectedAsLeader. It reads the stream's cached last-delivered state rather
// than consuming Events() itself, so it never competes with the actual
// subscriber for events.
func (e *Election) IsLeader() bool {
	state, ok := e.stream.Last()
	return ok && state.IsLeader()
}

// Cancel abdicates: it deregisters the pre-close hook, stops the watch
// loop, closes the latch (deleting this candidate's membership node), and
// completes the event stream. Cancel is idempotent and synchronous with
// respect to the latch close completing before it returns (spec.md section
// 4.5, "Ordering guarantee").
//
// Cancel is also invoked automatically — once — when the stream completes
// for any other reason (a fatal error), guaranteeing resource release on
// every exit path (spec.md section 4.5, "Subscriber cancel").
func (e *Election) Cancel() {
	e.cancelOnce.Do(func() {
		e.client.DeregisterPreCloseHook(e.hookID)
		e.loop.stop()

		e.log.Info("Closing leader latch")
		done := make(chan struct{})
		e.exec.Schedule(func() {
			if err := e.latch.Close(); err != nil {
				e.log.WithError(err).Warn("error closing leader latch")
			}
			close(done)
		})
		<-done
		e.log.Info("Leader latch closed")
		e.exec.Stop()

		e.stream.Close()
	})
}

// StaticElection is a test double for code that only needs "am I leader"
// without a real or fake ZooKeeper connection, mirroring the teacher's own
// AlwaysLeaderMock (etcdutil/election.go).
type StaticElection struct {
	Leader bool
}

// IsLeader implements the same accessor shape as *Election.
func (s StaticElection) IsLeader() bool { return s.Leader }

// Cancel is a no-op for the static mock.
func (s StaticElection) Cancel() {}
