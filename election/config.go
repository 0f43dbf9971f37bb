package election

import (
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/pkg/errors"
)

// EnvConfig is the environment-sourced mirror of ClientConfig plus the
// candidate/election identity fields spec.md section 6 lists under "Inputs
// the core consumes". Grounded on the envconfig-tagged config struct in
// the retrieved pack's phanitejak-kptgolib leader-selector.
type EnvConfig struct {
	ZKHosts                string        `envconfig:"ELECTION_ZK_HOSTS" default:"127.0.0.1:2181"`
	SessionTimeout         time.Duration `envconfig:"ELECTION_SESSION_TIMEOUT" default:"10s"`
	ConnectionTimeout      time.Duration `envconfig:"ELECTION_CONNECTION_TIMEOUT" default:"5s"`
	BlockingConnectTimeout time.Duration `envconfig:"ELECTION_BLOCKING_CONNECT_TIMEOUT" default:"10s"`
	StreamConnectTimeout   time.Duration `envconfig:"ELECTION_STREAM_CONNECT_TIMEOUT" default:"30s"`
	ElectionPath           string        `envconfig:"ELECTION_PATH" default:"/scheduler/leader"`
	CandidateID            string        `envconfig:"ELECTION_CANDIDATE_ID" default:""`
	DigestUser             string        `envconfig:"ELECTION_DIGEST_USER" default:""`
	DigestPassword         string        `envconfig:"ELECTION_DIGEST_PASSWORD" default:""`
}

// LoadEnvConfig reads EnvConfig from the process environment.
func LoadEnvConfig() (EnvConfig, error) {
	var cfg EnvConfig
	if err := envconfig.Process("", &cfg); err != nil {
		return EnvConfig{}, errors.Wrap(err, "while loading election config from environment")
	}
	if cfg.CandidateID == "" {
		return EnvConfig{}, errors.New("ELECTION_CANDIDATE_ID must be set")
	}
	return cfg, nil
}

// ClientConfig converts the env config into a ClientConfig, per spec.md
// section 4.1.
func (c EnvConfig) ClientConfig() ClientConfig {
	cfg := ClientConfig{
		Hosts:                  strings.Split(c.ZKHosts, ","),
		SessionTimeout:         c.SessionTimeout,
		ConnectionTimeout:      c.ConnectionTimeout,
		BlockingConnectTimeout: c.BlockingConnectTimeout,
	}
	if c.DigestUser != "" {
		cfg.Credentials = &Credentials{User: c.DigestUser, Password: c.DigestPassword}
	}
	return cfg
}
