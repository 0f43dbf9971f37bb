package election

import (
	"testing"

	"github.com/samuel/go-zookeeper/zk"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const guid = "01234567-89ab-cdef-0123-456789abcdef"

func protectedName(id string, seq int) string {
	return "_c_" + guid + "-" + id + "-" + padSeq(seq)
}

func padSeq(seq int) string {
	s := "0000000000"
	digits := []byte{}
	n := seq
	if n == 0 {
		digits = []byte{'0'}
	}
	for n > 0 {
		digits = append([]byte{byte('0' + n%10)}, digits...)
		n /= 10
	}
	return s[:10-len(digits)] + string(digits)
}

func TestParticipantsFromChildren(t *testing.T) {
	children := []string{
		protectedName("worker-2", 5),
		protectedName("worker-1", 2),
		"some-unrelated-legacy-node",
		protectedName("worker-3", 9),
	}

	participants, err := participantsFromChildren(children)
	require.NoError(t, err)
	require.Len(t, participants, 3)

	assert.Equal(t, "worker-1", participants[0].ID)
	assert.True(t, participants[0].IsLeader)
	assert.Equal(t, "worker-2", participants[1].ID)
	assert.False(t, participants[1].IsLeader)
	assert.Equal(t, "worker-3", participants[2].ID)
	assert.False(t, participants[2].IsLeader)
}

func TestParticipantsFromChildrenEmpty(t *testing.T) {
	participants, err := participantsFromChildren(nil)
	require.NoError(t, err)
	assert.Empty(t, participants)
}

func TestLeaderLatchStartCreatesPathAndNode(t *testing.T) {
	var created []string
	conn := &fakeConn{
		ExistsF: func(string) (bool, *zk.Stat, error) { return false, nil, nil },
		CreateF: func(path string, _ []byte, _ int32, _ []zk.ACL) (string, error) {
			created = append(created, path)
			return path, nil
		},
		CreateProtectedEphemeralSequentialF: func(path string, _ []byte, _ []zk.ACL) (string, error) {
			return path + "0000000001", nil
		},
	}

	latch := NewLeaderLatch(conn, staticACL(), NewRetryPolicy(), "/scheduler/leader", "worker-1")
	require.Equal(t, LatchLatent, latch.GetState())

	err := latch.Start()
	require.NoError(t, err)
	assert.Equal(t, LatchStarted, latch.GetState())
	assert.Equal(t, []string{"/scheduler", "/scheduler/leader-curator"}, created)
}

func TestLeaderLatchStartTwiceFails(t *testing.T) {
	conn := &fakeConn{
		ExistsF: alwaysExists(),
		CreateProtectedEphemeralSequentialF: func(path string, _ []byte, _ []zk.ACL) (string, error) {
			return path + "0000000001", nil
		},
	}
	latch := NewLeaderLatch(conn, staticACL(), NewRetryPolicy(), "/scheduler/leader", "worker-1")
	require.NoError(t, latch.Start())
	assert.Error(t, latch.Start())
}

func TestLeaderLatchCloseDeletesOurNode(t *testing.T) {
	var deletedPath string
	conn := &fakeConn{
		ExistsF: alwaysExists(),
		CreateProtectedEphemeralSequentialF: func(path string, _ []byte, _ []zk.ACL) (string, error) {
			return path + "0000000001", nil
		},
		DeleteF: func(path string, _ int32) error {
			deletedPath = path
			return nil
		},
	}
	latch := NewLeaderLatch(conn, staticACL(), NewRetryPolicy(), "/scheduler/leader", "worker-1")
	require.NoError(t, latch.Start())
	require.NoError(t, latch.Close())
	assert.Equal(t, LatchClosed, latch.GetState())
	assert.NotEmpty(t, deletedPath)
}

func TestLeaderLatchCloseBeforeStartIsNoop(t *testing.T) {
	conn := &fakeConn{}
	latch := NewLeaderLatch(conn, staticACL(), NewRetryPolicy(), "/scheduler/leader", "worker-1")
	assert.NoError(t, latch.Close())
	assert.Equal(t, LatchClosed, latch.GetState())
}

func TestLeaderLatchCloseSwallowsNoNode(t *testing.T) {
	conn := &fakeConn{
		ExistsF: alwaysExists(),
		CreateProtectedEphemeralSequentialF: func(path string, _ []byte, _ []zk.ACL) (string, error) {
			return path + "0000000001", nil
		},
		DeleteF: func(string, int32) error { return zk.ErrNoNode },
	}
	latch := NewLeaderLatch(conn, staticACL(), NewRetryPolicy(), "/scheduler/leader", "worker-1")
	require.NoError(t, latch.Start())
	assert.NoError(t, latch.Close())
}
