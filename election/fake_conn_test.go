package election

import "github.com/samuel/go-zookeeper/zk"

// fakeConn is a function-field test double for Conn, grounded on the
// DC/OS elector test's ConnAdapter pattern. Any method left nil panics if
// called, which surfaces unexpected calls rather than silently no-opping;
// the one exception is Close, which is a no-op when CloseF is nil.
type fakeConn struct {
	ExistsF                             func(path string) (bool, *zk.Stat, error)
	CreateF                             func(path string, data []byte, flags int32, acl []zk.ACL) (string, error)
	CreateProtectedEphemeralSequentialF func(path string, data []byte, acl []zk.ACL) (string, error)
	ChildrenF                           func(path string) ([]string, *zk.Stat, error)
	ChildrenWF                          func(path string) ([]string, *zk.Stat, <-chan zk.Event, error)
	DeleteF                             func(path string, version int32) error
	CloseF                              func()
}

func (f *fakeConn) Exists(path string) (bool, *zk.Stat, error) { return f.ExistsF(path) }

func (f *fakeConn) Create(path string, data []byte, flags int32, acl []zk.ACL) (string, error) {
	return f.CreateF(path, data, flags, acl)
}

func (f *fakeConn) CreateProtectedEphemeralSequential(path string, data []byte, acl []zk.ACL) (string, error) {
	return f.CreateProtectedEphemeralSequentialF(path, data, acl)
}

func (f *fakeConn) Children(path string) ([]string, *zk.Stat, error) { return f.ChildrenF(path) }

func (f *fakeConn) ChildrenW(path string) ([]string, *zk.Stat, <-chan zk.Event, error) {
	return f.ChildrenWF(path)
}

func (f *fakeConn) Delete(path string, version int32) error { return f.DeleteF(path, version) }

func (f *fakeConn) Close() {
	if f.CloseF != nil {
		f.CloseF()
	}
}

var _ Conn = (*fakeConn)(nil)

// alwaysExists returns a stub ExistsF reporting every path as present,
// useful when a test only cares about latch/watch behavior downstream of
// path creation.
func alwaysExists() func(string) (bool, *zk.Stat, error) {
	return func(string) (bool, *zk.Stat, error) { return true, nil, nil }
}

func staticACL() ACLProvider {
	return staticACLProvider{acl: zk.WorldACL(zk.PermAll)}
}
