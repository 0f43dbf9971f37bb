package election

import "github.com/pkg/errors"

// Sentinel errors a caller may need to distinguish programmatically, per
// the error taxonomy in spec.md section 7.
var (
	// ErrConnectTimeout is returned by NewClient when the blocking connect
	// deadline elapses without the store reporting a session.
	ErrConnectTimeout = errors.New("election: timed out waiting for store connection")

	// ErrDuplicateCandidate is delivered on the event stream when this
	// candidate's id is observed more than once among participants.
	ErrDuplicateCandidate = errors.New("election: candidate id appears more than once among participants")

	// ErrNodeNotFound mirrors zk.ErrNoNode for callers that only depend on
	// this package, not on the zk client directly.
	ErrNodeNotFound = errors.New("election: election path does not exist yet")

	// ErrClosed is returned by LeaderLatch.Start when the latch has already
	// been closed.
	ErrClosed = errors.New("election: already closed")
)
