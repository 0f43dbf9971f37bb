package election

import "sync"

// executor is the "single-threaded cooperative executor" spec.md section 5
// requires: every latch operation, watch-firing handler, and stream offer
// for one Election instance runs on the single goroutine that drains jobs,
// giving mutual exclusion without a mutex. Spec.md section 9 says the
// concrete mechanism doesn't matter provided it serializes callers; this is
// the plain goroutine-plus-channel realization it suggests.
type executor struct {
	jobs chan func()

	closeOnce sync.Once
	done      chan struct{}
}

func newExecutor() *executor {
	e := &executor{
		jobs: make(chan func(), 64),
		done: make(chan struct{}),
	}
	go e.loop()
	return e
}

func (e *executor) loop() {
	for {
		select {
		case job := <-e.jobs:
			select {
			case <-e.done:
				return
			default:
			}
			job()
		case <-e.done:
			return
		}
	}
}

// Schedule enqueues fn to run on the executor's goroutine. It is safe to
// call from any goroutine, including zk client callback goroutines, per
// spec.md section 5 ("the store client's internal thread(s) may call back
// into the loop only by scheduling onto that executor").
//
// Schedule is a no-op once the executor has been stopped.
func (e *executor) Schedule(fn func()) {
	select {
	case <-e.done:
		return
	default:
	}
	select {
	case e.jobs <- fn:
	case <-e.done:
	}
}

// Stop terminates the executor's goroutine. In-flight jobs already read
// from the channel run to completion; no further scheduled job will run.
func (e *executor) Stop() {
	e.closeOnce.Do(func() { close(e.done) })
}
