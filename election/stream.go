package election

import (
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/Even-Wang/marathon/clock"
)

// streamCapacity is the bounded queue size spec.md section 4.4 names: "16
// elements, drop-oldest on overflow".
const streamCapacity = 16

// Event is one item on the leadership event stream: either a LeadershipState
// observation, a terminal completion, or a fatal error. This mirrors the
// teacher's own Event{IsLeader, IsDone, Err} tagged struct
// (etcdutil/election.go), generalized to carry a full LeadershipState.
type Event struct {
	State LeadershipState
	// Observed is when this event was dispatched to the subscriber,
	// logged alongside the transition for admin/debug correlation.
	Observed clock.RFC822Time
	Done     bool
	Err      error
}

// Stream delivers a bounded, deduplicated sequence of LeadershipState values
// to a single downstream subscriber, per spec.md section 4.4.
type Stream struct {
	log *logrus.Entry

	out chan Event

	mu       sync.Mutex
	queue    []LeadershipState
	lastSent LeadershipState
	haveSent bool // distinguishes "never sent" from "sent the zero value"
	closed   bool
	failed   bool
	wake     chan struct{}
	stop     chan struct{}

	// delivered and haveDelivered mirror the most recent state actually
	// handed to the subscriber, guarded by mu so IsLeader()-style
	// accessors can read it without becoming a second consumer of out.
	delivered     LeadershipState
	haveDelivered bool

	firstEventOnce sync.Once
	connectTimer   *time.Timer
	connectTimeout chan struct{}

	onCompleteOnce sync.Once
	onComplete     func()
}

// OnComplete registers fn to be invoked exactly once, right before the
// stream's output channel is closed for any reason (graceful Close or a
// Fail). This is how the lifecycle controller (spec.md section 4.5) learns
// that "stream-completion, for any reason, including failure, also
// schedules cancel()" without itself consuming the subscriber's Events()
// channel.
func (s *Stream) OnComplete(fn func()) {
	s.mu.Lock()
	s.onComplete = fn
	s.mu.Unlock()
}

// runOnComplete fires the registered completion hook on a fresh goroutine,
// never the caller's. Fail is routinely called from inside a watch-loop
// iteration running on the election's single executor goroutine, and the
// registered hook is Election.Cancel, which schedules a job onto that same
// executor and blocks waiting for it to run. Calling fn inline here would
// make that wait permanent: the executor goroutine would be blocked inside
// fn's own call stack and could never drain the job fn just scheduled.
func (s *Stream) runOnComplete() {
	s.mu.Lock()
	fn := s.onComplete
	s.mu.Unlock()
	if fn != nil {
		s.onCompleteOnce.Do(func() { go fn() })
	}
}

// NewStream creates a stream whose first emission must occur within
// connectTimeout of this call, or the stream fails with a timeout error
// (spec.md section 4.4, "Initial-connect timeout").
func NewStream(connectTimeout time.Duration) *Stream {
	s := &Stream{
		log:            logrus.WithField("category", "election-stream"),
		out:            make(chan Event, 1),
		lastSent:       Standby(""), // seeded with Standby(none), per spec.md section 4.4
		haveSent:       true,
		wake:           make(chan struct{}, 1),
		stop:           make(chan struct{}),
		connectTimeout: make(chan struct{}),
	}
	s.connectTimer = time.AfterFunc(connectTimeout, func() {
		s.Fail(ErrConnectTimeout)
	})
	go s.run()
	return s
}

// Events returns the channel the subscriber reads from. It is closed after
// the terminal event (Done or Err set) is delivered.
func (s *Stream) Events() <-chan Event { return s.out }

// Last returns the most recently delivered LeadershipState and whether any
// state has been delivered yet. It is safe for concurrent use and does not
// consume from Events(), so callers like Election.IsLeader can query
// current status without competing with the real subscriber for events.
func (s *Stream) Last() (LeadershipState, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.delivered, s.haveDelivered
}

// Offer enqueues a new observation. If the queue is full the oldest queued
// element is dropped (spec.md section 4.4: "leadership events are
// idempotent observations of current state; losing an older state is safe
// because newer states supersede it").
func (s *Stream) Offer(state LeadershipState) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	if len(s.queue) >= streamCapacity {
		s.queue = s.queue[1:]
	}
	s.queue = append(s.queue, state)
	s.mu.Unlock()

	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// Close completes the stream normally: it concatenates a final
// Standby(none) and then closes the output channel, guaranteeing every
// subscriber's last observed state is "not leader" (spec.md section 4.4,
// invariant 4 in section 3).
//
// Calling Close on an already-completed stream is a no-op.
func (s *Stream) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.queue = append(s.queue, Standby(""))
	s.mu.Unlock()

	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// Fail completes the stream with a fatal error. Per the Open Question
// decision recorded in DESIGN.md, the terminal Standby(none) is emitted
// only on graceful Close, never here: an error completion should not claim
// a definite final state the candidate never actually observed.
func (s *Stream) Fail(err error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.failed = true
	s.mu.Unlock()

	s.connectTimer.Stop()
	close(s.stop)
	s.runOnComplete()
	failEvent := Event{Err: err, Observed: clock.NewRFC822Time(time.Now())}
	select {
	case s.out <- failEvent:
		close(s.out)
	default:
		// best-effort: if the subscriber isn't reading, don't block the
		// caller (often the watch loop's single goroutine) forever.
		go func() {
			s.out <- failEvent
			close(s.out)
		}()
	}
}

// run is the stream's single dispatcher goroutine: it pops from the
// bounded queue, applies dedup against the last emitted value, and
// delivers to the subscriber.
func (s *Stream) run() {
	for {
		s.mu.Lock()
		if s.failed {
			s.mu.Unlock()
			return
		}
		if len(s.queue) == 0 {
			if s.closed {
				s.mu.Unlock()
				return
			}
			s.mu.Unlock()
			select {
			case <-s.wake:
			case <-s.stop:
				return
			}
			continue
		}
		state := s.queue[0]
		s.queue = s.queue[1:]
		isLast := s.closed && len(s.queue) == 0
		s.mu.Unlock()

		if !s.haveSent || !state.Equal(s.lastSent) {
			s.haveSent = true
			s.lastSent = state
			now := clock.NewRFC822Time(time.Now())
			s.log.WithField("observed", now.String()).Info(state.String())
			s.firstEventOnce.Do(func() { s.connectTimer.Stop() })

			s.mu.Lock()
			s.delivered = state
			s.haveDelivered = true
			s.mu.Unlock()

			// Fail can close s.out concurrently (a slow subscriber leaves
			// this send blocked on the full buffer); race the send against
			// s.stop, which Fail always closes before it closes s.out.
			select {
			case s.out <- Event{State: state, Observed: now}:
			case <-s.stop:
				return
			}
		}

		if isLast {
			s.runOnComplete()
			select {
			case s.out <- Event{Done: true, Observed: clock.NewRFC822Time(time.Now())}:
			case <-s.stop:
			}
			close(s.out)
			return
		}
	}
}
