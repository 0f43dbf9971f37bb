package election

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearElectionEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"ELECTION_ZK_HOSTS", "ELECTION_SESSION_TIMEOUT", "ELECTION_CONNECTION_TIMEOUT",
		"ELECTION_BLOCKING_CONNECT_TIMEOUT", "ELECTION_STREAM_CONNECT_TIMEOUT",
		"ELECTION_PATH", "ELECTION_CANDIDATE_ID", "ELECTION_DIGEST_USER", "ELECTION_DIGEST_PASSWORD",
	} {
		old, had := os.LookupEnv(k)
		os.Unsetenv(k)
		t.Cleanup(func() {
			if had {
				os.Setenv(k, old)
			}
		})
	}
}

func TestLoadEnvConfigRequiresCandidateID(t *testing.T) {
	clearElectionEnv(t)
	_, err := LoadEnvConfig()
	assert.Error(t, err)
}

func TestLoadEnvConfigDefaults(t *testing.T) {
	clearElectionEnv(t)
	os.Setenv("ELECTION_CANDIDATE_ID", "worker-1:8080")

	cfg, err := LoadEnvConfig()
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:2181", cfg.ZKHosts)
	assert.Equal(t, 10*time.Second, cfg.SessionTimeout)
	assert.Equal(t, "/scheduler/leader", cfg.ElectionPath)
}

func TestEnvConfigClientConfigSplitsHosts(t *testing.T) {
	cfg := EnvConfig{ZKHosts: "zk1:2181,zk2:2181", DigestUser: "u", DigestPassword: "p"}
	cc := cfg.ClientConfig()
	assert.Equal(t, []string{"zk1:2181", "zk2:2181"}, cc.Hosts)
	require.NotNil(t, cc.Credentials)
	assert.Equal(t, "u", cc.Credentials.User)
}

func TestEnvConfigClientConfigNoCredentialsWhenDigestUserEmpty(t *testing.T) {
	cfg := EnvConfig{ZKHosts: "zk1:2181"}
	cc := cfg.ClientConfig()
	assert.Nil(t, cc.Credentials)
}
