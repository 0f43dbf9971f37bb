package election

import "github.com/samuel/go-zookeeper/zk"

// Conn is the subset of *zk.Conn this package depends on. It exists so
// tests can supply a fake implementation instead of a live ZooKeeper
// server, the same pattern the DC/OS elector test uses for its
// ConnAdapter.
type Conn interface {
	Exists(path string) (bool, *zk.Stat, error)
	Create(path string, data []byte, flags int32, acl []zk.ACL) (string, error)
	CreateProtectedEphemeralSequential(path string, data []byte, acl []zk.ACL) (string, error)
	Children(path string) ([]string, *zk.Stat, error)
	ChildrenW(path string) ([]string, *zk.Stat, <-chan zk.Event, error)
	Delete(path string, version int32) error
	Close()
}

var _ Conn = (*zk.Conn)(nil)
