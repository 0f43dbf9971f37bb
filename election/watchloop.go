package election

import (
	"time"

	"github.com/pkg/errors"
	"github.com/samuel/go-zookeeper/zk"
	"github.com/sirupsen/logrus"
)

// Startup-race retry policy named in spec.md section 4.3: "the loop
// retries with a short linear backoff (attempt x 10ms) up to 100 attempts,
// after which the stream fails." This is a fixed policy, not configurable
// (spec.md section 9).
const (
	startupRetryAttempts = 100
	startupRetryUnit     = 10 * time.Millisecond
)

// watchLoop re-arms a one-shot child-change watch on the election path and,
// on every fire and on startup, re-reads the participant list, translating
// changes into leadership-state emissions on the stream (spec.md section
// 4.3).
type watchLoop struct {
	latch   *LeaderLatch
	conn    Conn
	stream  *Stream
	retry   RetryPolicy
	metrics Metrics
	exec    *executor
	log     *logrus.Entry

	cancelled chan struct{}
}

func newWatchLoop(latch *LeaderLatch, conn Conn, stream *Stream, retry RetryPolicy, metrics Metrics, exec *executor) *watchLoop {
	if metrics == nil {
		metrics = NoopMetrics{}
	}
	return &watchLoop{
		latch:     latch,
		conn:      conn,
		stream:    stream,
		retry:     retry,
		metrics:   metrics,
		exec:      exec,
		log:       logrus.WithField("category", "election-watchloop"),
		cancelled: make(chan struct{}),
	}
}

// start schedules the first iteration onto the executor. Every subsequent
// iteration is scheduled either directly off a watch firing or, during the
// startup race, off a short timer — in both cases by handing a job to the
// same executor, so iterations never run concurrently with each other or
// with a Cancel's latch mutation.
func (w *watchLoop) start() {
	w.exec.Schedule(func() { w.iterate(0) })
}

// stop marks the loop cancelled. A cancelled flag is checked on each watch
// firing before rescheduling (spec.md section 4.3); in-flight iterations
// run to completion.
func (w *watchLoop) stop() {
	select {
	case <-w.cancelled:
	default:
		close(w.cancelled)
	}
}

func (w *watchLoop) isCancelled() bool {
	select {
	case <-w.cancelled:
		return true
	default:
		return false
	}
}

// iterate runs one pass of the protocol in spec.md section 4.3:
//  1. re-arm a child-change watch on the election path (ChildrenW does this
//     atomically together with step 2 — see SPEC_FULL.md section 4),
//  2. read the current participant list,
//  3. derive a leadership state and offer it to the event stream,
//  4. suspend until the watch fires; on fire, go to (1) unless cancelled.
//
// startupAttempt counts consecutive "no such node" retries for the
// node-not-found startup race (spec.md section 4.3).
func (w *watchLoop) iterate(startupAttempt int) {
	if w.isCancelled() {
		return
	}

	var children []string
	var watchCh <-chan zk.Event
	var readErr error
	// retry.Do is the exponential-backoff policy spec.md section 4.1 installs
	// for store reads. zk.ErrNoNode is not a transient failure worth that
	// policy's backoff: it means the election path hasn't been created yet,
	// which has its own dedicated linear-backoff startup race below, so the
	// closure reports it as "done, nothing to retry" while still leaving the
	// actual error in readErr for the caller to inspect.
	_ = w.retry.Do(func() error {
		err := recordRetrievalDuration(w.metrics, func() error {
			var innerErr error
			children, _, watchCh, innerErr = w.conn.ChildrenW(w.latch.ElectionDir())
			return innerErr
		})
		readErr = err
		if errors.Is(err, zk.ErrNoNode) {
			return nil
		}
		return err
	})

	if readErr != nil {
		if errors.Is(readErr, zk.ErrNoNode) {
			if startupAttempt >= startupRetryAttempts {
				w.stream.Fail(errors.Wrap(ErrNodeNotFound, "election path never appeared"))
				return
			}
			delay := time.Duration(startupAttempt+1) * startupRetryUnit
			time.AfterFunc(delay, func() {
				w.exec.Schedule(func() { w.iterate(startupAttempt + 1) })
			})
			return
		}
		w.log.WithError(readErr).Warn("transient error reading participant list")
		w.rearmAfterTransientError()
		return
	}

	participants, parseErr := participantsFromChildren(children)
	if parseErr != nil {
		w.log.WithError(parseErr).Warn("could not parse participant list")
	} else if err := w.emit(participants); err != nil {
		w.stream.Fail(err)
		return
	}

	w.awaitWatch(watchCh)
}

// rearmAfterTransientError treats a transient read error as an empty
// participant list and logs, per spec.md section 4.2 ("the watch/poll loop
// treats transient failures as empty lists and logs"), then re-arms by
// scheduling a fresh top-level iteration shortly after.
func (w *watchLoop) rearmAfterTransientError() {
	time.AfterFunc(startupRetryUnit, func() {
		w.exec.Schedule(func() { w.iterate(0) })
	})
}

// emit derives a LeadershipState from the participant list per the
// "Participant interpretation" rules in spec.md section 4.3 and offers it
// to the stream.
func (w *watchLoop) emit(participants []Participant) error {
	ourID := w.latch.CandidateID()
	var occurrences int
	var leaderID string
	var haveLeader bool
	for _, p := range participants {
		if p.ID == ourID {
			occurrences++
		}
		if p.IsLeader {
			leaderID = p.ID
			haveLeader = true
		}
	}

	switch {
	case occurrences >= 2:
		return errors.Wrapf(ErrDuplicateCandidate, "candidate %q", ourID)
	case occurrences == 0:
		// Latch still initializing; stays deterministic across restarts.
		return nil
	case haveLeader && leaderID == ourID:
		w.stream.Offer(ElectedAsLeader)
	case haveLeader:
		w.stream.Offer(Standby(leaderID))
	default:
		w.stream.Offer(Standby(""))
	}
	return nil
}

// awaitWatch suspends until the one-shot watch fires, then schedules the
// next iteration onto the executor (spec.md section 4.3, step 4). The
// cancelled flag is checked both here and at the top of iterate so a
// cancellation racing with an in-flight watch firing never schedules a new
// iteration.
func (w *watchLoop) awaitWatch(watchCh <-chan zk.Event) {
	if watchCh == nil {
		// No watch was returned (e.g. a degenerate test double); fall back
		// to a short poll rather than suspending forever.
		time.AfterFunc(startupRetryUnit, func() {
			if w.isCancelled() {
				return
			}
			w.exec.Schedule(func() { w.iterate(0) })
		})
		return
	}
	go func() {
		select {
		case <-watchCh:
		case <-w.cancelled:
			return
		}
		if w.isCancelled() {
			return
		}
		w.exec.Schedule(func() { w.iterate(0) })
	}()
}
