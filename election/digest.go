package election

import (
	"crypto/sha1" //nolint:gosec // required by ZooKeeper's digest auth scheme, not used for security-sensitive hashing here
	"encoding/base64"
	"fmt"
)

// Credentials holds a digest-auth username/password pair for a ZooKeeper
// session, per spec.md section 4.1 ("If credentials are supplied, register
// digest authentication before connecting").
type Credentials struct {
	User     string
	Password string
}

// authToken returns the "user:password" payload passed to zk.Conn.AddAuth
// for the "digest" scheme.
func (c Credentials) authToken() []byte {
	return []byte(c.User + ":" + c.Password)
}

// digestIdentity computes the ZooKeeper digest ACL identity string
// ("user:base64(sha1(user:password))"), the same value ZooKeeper's own
// DigestAuthenticationProvider computes server-side, so that a digest ACL
// entry can be constructed that matches this candidate's own auth token.
func (c Credentials) digestIdentity() string {
	sum := sha1.Sum([]byte(c.User + ":" + c.Password)) //nolint:gosec
	return fmt.Sprintf("%s:%s", c.User, base64.StdEncoding.EncodeToString(sum[:]))
}
