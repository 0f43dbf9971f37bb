package election

import (
	"net"
	"sync"
	"time"

	"github.com/mailgun/holster"
	"github.com/pkg/errors"
	"github.com/samuel/go-zookeeper/zk"
	"github.com/sirupsen/logrus"
)

// ACLProvider supplies the ACL to apply to newly created nodes, matching
// Curator's ACLProvider concept referenced in spec.md section 4.1. The
// go-zookeeper client has no such abstraction built in, so this package
// provides its own thin one.
type ACLProvider interface {
	// DefaultACL is used for paths with no more specific ACL.
	DefaultACL() []zk.ACL
	// ACLForPath returns the ACL to use when creating a node at path.
	ACLForPath(path string) []zk.ACL
}

type staticACLProvider struct {
	acl []zk.ACL
}

func (p staticACLProvider) DefaultACL() []zk.ACL         { return p.acl }
func (p staticACLProvider) ACLForPath(_ string) []zk.ACL { return p.acl }

// RetryPolicy wraps a transient store operation with bounded exponential
// backoff, per spec.md section 4.1 ("exponential-backoff retry policy with
// base delay 1s and retry count 10").
type RetryPolicy struct {
	baseDelay time.Duration
	retries   int
}

// NewRetryPolicy builds the default policy spec.md section 4.1 names: base
// delay 1s, retry count 10.
func NewRetryPolicy() RetryPolicy {
	return RetryPolicy{baseDelay: time.Second, retries: 10}
}

// Do calls fn, retrying it with exponential backoff while it returns a
// non-nil error, up to the policy's retry count. Every non-nil error counts
// as retryable; the last error is returned once the retries are exhausted.
func (p RetryPolicy) Do(fn func() error) error {
	backOff := holster.NewBackOff(p.baseDelay, p.baseDelay*time.Duration(1<<uint(p.retries)), 2)
	var err error
	for attempt := 0; attempt <= p.retries; attempt++ {
		if err = fn(); err == nil {
			return nil
		}
		if attempt == p.retries {
			break
		}
		time.Sleep(backOff.Next())
	}
	return err
}

// ClientConfig configures the coordination client factory (spec.md section
// 4.1 / section 6 "Inputs the core consumes").
type ClientConfig struct {
	// Hosts is the ZooKeeper connection string's host list.
	Hosts []string
	// SessionTimeout is the session timeout negotiated with the store.
	SessionTimeout time.Duration
	// ConnectionTimeout bounds an individual dial attempt.
	ConnectionTimeout time.Duration
	// BlockingConnectTimeout bounds how long NewClient blocks waiting for
	// the session to be established before it fails.
	BlockingConnectTimeout time.Duration
	// ACL is the caller-provided baseline ACL. NewClient unions this with a
	// world-readable ACL to produce the effective default ACL.
	ACL []zk.ACL
	// Credentials, if non-nil, are registered as digest auth before the
	// client is considered connected.
	Credentials *Credentials
}

// Client wraps a connected *zk.Conn together with the ACL provider and
// retry policy installed for it, and the shared pre-close hook list that
// the lifecycle controller (spec.md section 4.5) registers against.
type Client struct {
	conn  Conn
	acl   ACLProvider
	retry RetryPolicy
	log   *logrus.Entry

	mu       sync.Mutex
	preClose []func()
	closing  bool
}

// NewClient builds and connects a session-backed ZooKeeper client, applying
// ACLs, authentication, retry policy, and a blocking connect-with-timeout,
// per spec.md section 4.1.
func NewClient(cfg ClientConfig) (*Client, error) {
	log := logrus.WithField("category", "election-client")
	log.Infof("Will do leader election through %s", redactHosts(cfg.Hosts))

	effectiveACL := append(append([]zk.ACL{}, cfg.ACL...), zk.WorldACL(zk.PermRead)...)
	if cfg.Credentials != nil {
		effectiveACL = append(effectiveACL, zk.ACL{
			Perms:  zk.PermAll,
			Scheme: "digest",
			ID:     cfg.Credentials.digestIdentity(),
		})
	}

	dialer := func(network, address string, _ time.Duration) (net.Conn, error) {
		return net.DialTimeout(network, address, cfg.ConnectionTimeout)
	}
	conn, events, err := zk.Connect(cfg.Hosts, cfg.SessionTimeout, zk.WithDialer(dialer))
	if err != nil {
		return nil, errors.Wrap(err, "while dialing zookeeper")
	}

	if cfg.Credentials != nil {
		if err := conn.AddAuth("digest", cfg.Credentials.authToken()); err != nil {
			conn.Close()
			return nil, errors.Wrap(err, "while registering digest auth")
		}
	}

	// Drain session events until connected or until the blocking-connect
	// timeout elapses, capturing the last unhandled error state so a
	// genuine connect failure (auth rejected, etc.) is surfaced instead of
	// a generic timeout.
	var lastErrMu sync.Mutex
	var lastErr error
	connected := make(chan struct{})
	stopDrain := make(chan struct{})
	var drainOnce sync.Once
	go func() {
		for {
			select {
			case ev, ok := <-events:
				if !ok {
					return
				}
				switch ev.State {
				case zk.StateHasSession:
					drainOnce.Do(func() { close(connected) })
				case zk.StateAuthFailed, zk.StateExpired:
					lastErrMu.Lock()
					lastErr = errors.Errorf("zookeeper session state: %v", ev.State)
					lastErrMu.Unlock()
				}
				if ev.Err != nil {
					lastErrMu.Lock()
					lastErr = ev.Err
					lastErrMu.Unlock()
				}
			case <-stopDrain:
				return
			}
		}
	}()

	select {
	case <-connected:
		close(stopDrain)
	case <-time.After(cfg.BlockingConnectTimeout):
		close(stopDrain)
		conn.Close()
		lastErrMu.Lock()
		failure := lastErr
		lastErrMu.Unlock()
		if failure != nil {
			return nil, errors.Wrap(failure, "zookeeper connect failed")
		}
		return nil, ErrConnectTimeout
	}

	c := &Client{
		conn:  conn,
		acl:   staticACLProvider{acl: effectiveACL},
		retry: NewRetryPolicy(),
		log:   log,
	}

	// Keep draining session events for the lifetime of the client so
	// disconnects/reconnects are logged instead of silently lost; this
	// goroutine is the "unhandled-error listener" for the rest of the
	// client's life, not just during the initial connect.
	go func() {
		for ev := range events {
			if ev.Err != nil {
				log.WithError(ev.Err).Warn("zookeeper session event error")
			}
		}
	}()

	return c, nil
}

// RegisterPreCloseHook adds a callback invoked before the underlying
// session is closed (spec.md section 4.5). It returns an id usable with
// DeregisterPreCloseHook.
func (c *Client) RegisterPreCloseHook(fn func()) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.preClose = append(c.preClose, fn)
	return len(c.preClose) - 1
}

// DeregisterPreCloseHook removes a previously registered hook. It is safe
// to call after the client has begun shutting down (errors are swallowed),
// per spec.md section 4.5.
func (c *Client) DeregisterPreCloseHook(id int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closing || id < 0 || id >= len(c.preClose) {
		return
	}
	c.preClose[id] = nil
}

// Close runs every registered pre-close hook, then closes the underlying
// session. Callers outside this package's election core should generally
// not call this directly: the client is shared, and the election core only
// ever deregisters its hook, never closes the client itself (spec.md
// section 5, "Shared resources").
func (c *Client) Close() {
	c.mu.Lock()
	c.closing = true
	hooks := append([]func(){}, c.preClose...)
	c.mu.Unlock()

	for _, h := range hooks {
		if h != nil {
			h()
		}
	}
	c.conn.Close()
}

// Conn exposes the underlying connection for use by the latch and watch
// loop in this package.
func (c *Client) Conn() Conn { return c.conn }

// ACL exposes the installed ACL provider.
func (c *Client) ACL() ACLProvider { return c.acl }

// Retry exposes the installed retry policy.
func (c *Client) Retry() RetryPolicy { return c.retry }

func redactHosts(hosts []string) string {
	if len(hosts) == 0 {
		return "<redacted>"
	}
	return "<redacted: " + hosts[0] + " and others>"
}
