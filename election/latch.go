package election

import (
	"regexp"
	"sort"
	"strconv"
	"strings"
	"sync/atomic"

	"github.com/pkg/errors"
	"github.com/samuel/go-zookeeper/zk"
)

// LatchState is the lifecycle state of a LeaderLatch.
type LatchState int32

const (
	// LatchLatent is the state before Start is called.
	LatchLatent LatchState = iota
	// LatchStarted is the state after a successful Start.
	LatchStarted
	// LatchClosed is the state after Close.
	LatchClosed
)

func (s LatchState) String() string {
	switch s {
	case LatchLatent:
		return "LATENT"
	case LatchStarted:
		return "STARTED"
	case LatchClosed:
		return "CLOSED"
	default:
		return "UNKNOWN"
	}
}

// Participant is the derived view of one membership node under the
// election path: its candidate id and whether it currently holds
// leadership (the smallest sequence number).
type Participant struct {
	ID       string
	IsLeader bool
}

// protectedSequentialRe matches the node name go-zookeeper's
// CreateProtectedEphemeralSequential produces: a "_c_<guid>-" protection
// prefix, the candidate id we asked it to embed, and a 10-digit sequence
// number appended by the server.
var protectedSequentialRe = regexp.MustCompile(
	`^_c_[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}-(.*)-(\d{10})$`)

// LeaderLatch manages this candidate's ephemeral-sequenced membership node
// under the election path, per spec.md section 4.2.
type LeaderLatch struct {
	conn        Conn
	acl         ACLProvider
	retry       RetryPolicy
	candidateID string
	electionDir string // election path with the "-curator" suffix

	state   int32 // LatchState, accessed atomically
	ourPath string
}

// NewLeaderLatch constructs a latch for candidateID under basePath +
// "-curator", per spec.md section 6 ("Election path layout"). retry is the
// exponential-backoff policy (spec.md section 4.1) applied to GetParticipants'
// store read.
func NewLeaderLatch(conn Conn, acl ACLProvider, retry RetryPolicy, basePath, candidateID string) *LeaderLatch {
	return &LeaderLatch{
		conn:        conn,
		acl:         acl,
		retry:       retry,
		candidateID: candidateID,
		electionDir: basePath + "-curator",
		state:       int32(LatchLatent),
	}
}

// GetState is a synchronous accessor for the latch's lifecycle state.
func (l *LeaderLatch) GetState() LatchState {
	return LatchState(atomic.LoadInt32(&l.state))
}

// Start idempotently creates the parent path if missing, then creates this
// candidate's ephemeral-sequenced child. Transitions LATENT -> STARTED.
func (l *LeaderLatch) Start() error {
	if !atomic.CompareAndSwapInt32(&l.state, int32(LatchLatent), int32(LatchStarted)) {
		if l.GetState() == LatchClosed {
			return ErrClosed
		}
		return errors.New("election: latch already started")
	}

	if err := l.ensurePath(l.electionDir); err != nil {
		atomic.StoreInt32(&l.state, int32(LatchLatent))
		return errors.Wrap(err, "while creating election path")
	}

	path, err := l.conn.CreateProtectedEphemeralSequential(
		l.electionDir+"/"+l.candidateID+"-",
		[]byte(l.candidateID),
		l.acl.ACLForPath(l.electionDir),
	)
	if err != nil {
		atomic.StoreInt32(&l.state, int32(LatchLatent))
		return errors.Wrap(err, "while creating membership node")
	}
	l.ourPath = path
	return nil
}

// ensurePath creates every missing segment of path, mirroring the "mkdir
// -p" loop the DC/OS elector's initialize() runs before creating the lock
// node.
func (l *LeaderLatch) ensurePath(path string) error {
	segments := strings.Split(strings.Trim(path, "/"), "/")
	cur := ""
	for _, seg := range segments {
		cur += "/" + seg
		exists, _, err := l.conn.Exists(cur)
		if err != nil {
			return errors.Wrapf(err, "could not check path %q", cur)
		}
		if exists {
			continue
		}
		if _, err := l.conn.Create(cur, []byte{}, 0, l.acl.ACLForPath(cur)); err != nil {
			if errors.Is(err, zk.ErrNodeExists) {
				continue
			}
			return errors.Wrapf(err, "could not create path %q", cur)
		}
	}
	return nil
}

// Close deletes this candidate's child and transitions to CLOSED. It is
// safe to call after the underlying session has already disconnected
// (not-found errors are swallowed, per spec.md section 4.2).
func (l *LeaderLatch) Close() error {
	prev := LatchState(atomic.SwapInt32(&l.state, int32(LatchClosed)))
	if prev != LatchStarted {
		return nil
	}
	if l.ourPath == "" {
		return nil
	}
	err := l.conn.Delete(l.ourPath, -1)
	if err != nil && !errors.Is(err, zk.ErrNoNode) {
		return errors.Wrapf(err, "while deleting membership node %q", l.ourPath)
	}
	return nil
}

// GetParticipants reads the children of this latch's election path and
// returns the ordered participant list, retrying transient store errors
// under this latch's installed RetryPolicy (spec.md section 4.1). A
// persistent failure after the retry budget is exhausted is the caller's to
// handle (spec.md section 4.2 says the watch/poll loop treats transient
// failures as an empty list and logs).
func (l *LeaderLatch) GetParticipants() ([]Participant, error) {
	var participants []Participant
	err := l.retry.Do(func() error {
		p, err := GetParticipants(l.conn, l.electionDir)
		if err != nil {
			return err
		}
		participants = p
		return nil
	})
	return participants, err
}

// ElectionDir returns the path this latch creates membership nodes under.
func (l *LeaderLatch) ElectionDir() string { return l.electionDir }

// CandidateID returns the id this latch registers as.
func (l *LeaderLatch) CandidateID() string { return l.candidateID }

// GetParticipants reads the children of the election path, orders them by
// embedded sequence number, and returns their ids with the first (lowest
// sequence) marked as leader.
func GetParticipants(conn Conn, electionDir string) ([]Participant, error) {
	children, _, err := conn.Children(electionDir)
	if err != nil {
		return nil, err
	}
	return participantsFromChildren(children)
}

// participantsFromChildren parses a raw children listing into an ordered
// participant slice. Children that do not match the protected-sequential
// naming convention are skipped (they are either legacy records under the
// shared parent or foreign nodes, per spec.md section 3's "Election path"
// note about coexisting with legacy records).
func participantsFromChildren(children []string) ([]Participant, error) {
	type seqChild struct {
		seq int64
		id  string
	}
	var parsed []seqChild
	for _, child := range children {
		m := protectedSequentialRe.FindStringSubmatch(child)
		if m == nil {
			continue
		}
		seq, err := strconv.ParseInt(m[2], 10, 64)
		if err != nil {
			continue
		}
		parsed = append(parsed, seqChild{seq: seq, id: m[1]})
	}
	sort.Slice(parsed, func(i, j int) bool { return parsed[i].seq < parsed[j].seq })

	participants := make([]Participant, len(parsed))
	for i, p := range parsed {
		participants[i] = Participant{ID: p.id, IsLeader: i == 0}
	}
	return participants, nil
}
