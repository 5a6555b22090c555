// Package config builds the immutable per-connection configuration the
// transport state machine runs under: algorithm allow-lists, timeouts,
// and host-key checking policy.
//
// The functional-options shape (Option func(*Config), With* constructors,
// a zero-value-safe default applied at Build) is grounded on the
// Session/Option pattern in github.com/ericlagergren/dr's dr.go
// (WithStore/Resume), generalized here from a single optional dependency
// to the full set of negotiable knobs spec.md names.
package config

import (
	"errors"
	"time"

	"blitter.com/go/sshx/sshcrypto"
)

// StrictHostKeyChecking selects how the transport reacts to an unknown
// or changed host key, spec.md §4.6.
type StrictHostKeyChecking int

const (
	// StrictYes refuses to proceed on NOT_INCLUDED or CHANGED.
	StrictYes StrictHostKeyChecking = iota
	// StrictAsk calls the configured prompt callback on NOT_INCLUDED and
	// still refuses on CHANGED.
	StrictAsk
	// StrictNo accepts any host key, auto-adding unknown ones.
	StrictNo
)

// ErrEmptyAllowList is returned by Build when an algorithm category's
// allow-list is empty after defaulting.
var ErrEmptyAllowList = errors.New("config: empty algorithm allow-list")

// PromptFunc is called under StrictAsk when a host key is not yet
// recorded; returning false rejects the connection.
type PromptFunc func(host, keyType string, keyBlob []byte) bool

// Config accumulates options before Build freezes them into a Snapshot.
type Config struct {
	kexAlgorithms   []string
	hostKeyAlgorithms []string
	ciphers         []string
	macs            []string

	strictHostKeyChecking StrictHostKeyChecking
	promptFunc            PromptFunc
	knownHostsPath        string

	dialTimeout    time.Duration
	handshakeTimeout time.Duration

	rekeyAfterBytes uint64
	rekeyAfterTime  time.Duration
}

// Option configures a Config.
type Option func(*Config)

// WithKexAlgorithms restricts the client's KEXINIT kex-algorithm
// name-list and its preference order.
func WithKexAlgorithms(names ...string) Option {
	return func(c *Config) { c.kexAlgorithms = names }
}

// WithHostKeyAlgorithms restricts the client's KEXINIT server-host-key
// name-list and its preference order.
func WithHostKeyAlgorithms(names ...string) Option {
	return func(c *Config) { c.hostKeyAlgorithms = names }
}

// WithCiphers restricts the symmetric ciphers offered for both
// directions, in preference order.
func WithCiphers(names ...string) Option {
	return func(c *Config) { c.ciphers = names }
}

// WithMACs restricts the MAC algorithms offered for both directions, in
// preference order.
func WithMACs(names ...string) Option {
	return func(c *Config) { c.macs = names }
}

// WithStrictHostKeyChecking sets the host-key verification policy,
// spec.md §4.6. prompt is consulted only under StrictAsk and may be nil
// for StrictYes/StrictNo.
func WithStrictHostKeyChecking(mode StrictHostKeyChecking, prompt PromptFunc) Option {
	return func(c *Config) {
		c.strictHostKeyChecking = mode
		c.promptFunc = prompt
	}
}

// WithKnownHostsPath sets the known_hosts file path; the default is
// left to the caller constructing a knownhosts.Repository (config does
// not assume a filesystem layout beyond the path it's handed).
func WithKnownHostsPath(path string) Option {
	return func(c *Config) { c.knownHostsPath = path }
}

// WithDialTimeout sets Snapshot.DialTimeout, a bound for the underlying
// TCP dial. transport.Session does not dial and does not read it, and
// cmd/sshx-demo dials without a timeout.
func WithDialTimeout(d time.Duration) Option {
	return func(c *Config) { c.dialTimeout = d }
}

// WithHandshakeTimeout bounds version exchange plus key exchange,
// spec.md §4.8. Session.Handshake applies it as a connection deadline
// when the connection has a SetDeadline method (as a net.Conn does);
// other connections get no timeout, and Rekey does not apply it.
func WithHandshakeTimeout(d time.Duration) Option {
	return func(c *Config) { c.handshakeTimeout = d }
}

// WithRekeyThresholds sets the data volume and elapsed-time thresholds
// that trigger an opportunistic rekey, spec.md §4.9. A zero value
// disables that trigger.
func WithRekeyThresholds(afterBytes uint64, afterTime time.Duration) Option {
	return func(c *Config) {
		c.rekeyAfterBytes = afterBytes
		c.rekeyAfterTime = afterTime
	}
}

// defaults for thresholds not otherwise documented by the OpenSSH
// RFC 4253 §9 recommendation of rekeying after 1 GiB or 1 hour,
// whichever comes first.
const (
	defaultRekeyAfterBytes = 1 << 30
	defaultRekeyAfterTime  = time.Hour

	defaultDialTimeout      = 10 * time.Second
	defaultHandshakeTimeout = 20 * time.Second
)

// Snapshot is the frozen, read-only configuration a transport.Session
// runs under.
type Snapshot struct {
	KexAlgorithms     []string
	HostKeyAlgorithms []string
	Ciphers           []string
	MACs              []string

	StrictHostKeyChecking StrictHostKeyChecking
	Prompt                PromptFunc
	KnownHostsPath        string

	DialTimeout      time.Duration
	HandshakeTimeout time.Duration

	RekeyAfterBytes uint64
	RekeyAfterTime  time.Duration
}

// Build applies opts over sensible defaults (sshcrypto's full supported
// cipher/MAC lists, both fixed-group and group-exchange KEX algorithms,
// RSA and DSA host keys, strict host-key checking) and returns an
// immutable Snapshot.
func Build(opts ...Option) (Snapshot, error) {
	c := &Config{
		kexAlgorithms: []string{
			"diffie-hellman-group-exchange-sha256",
			"diffie-hellman-group14-sha256",
			"diffie-hellman-group14-sha1",
			"diffie-hellman-group-exchange-sha1",
			"diffie-hellman-group1-sha1",
		},
		hostKeyAlgorithms:     []string{"ssh-rsa", "ssh-dss"},
		ciphers:               sshcrypto.SupportedCiphers(),
		macs:                  sshcrypto.SupportedMACs(),
		strictHostKeyChecking: StrictYes,
		dialTimeout:           defaultDialTimeout,
		handshakeTimeout:      defaultHandshakeTimeout,
		rekeyAfterBytes:       defaultRekeyAfterBytes,
		rekeyAfterTime:        defaultRekeyAfterTime,
	}
	for _, opt := range opts {
		opt(c)
	}

	if len(c.kexAlgorithms) == 0 || len(c.hostKeyAlgorithms) == 0 ||
		len(c.ciphers) == 0 || len(c.macs) == 0 {
		return Snapshot{}, ErrEmptyAllowList
	}

	return Snapshot{
		KexAlgorithms:         append([]string(nil), c.kexAlgorithms...),
		HostKeyAlgorithms:     append([]string(nil), c.hostKeyAlgorithms...),
		Ciphers:               append([]string(nil), c.ciphers...),
		MACs:                  append([]string(nil), c.macs...),
		StrictHostKeyChecking: c.strictHostKeyChecking,
		Prompt:                c.promptFunc,
		KnownHostsPath:        c.knownHostsPath,
		DialTimeout:           c.dialTimeout,
		HandshakeTimeout:      c.handshakeTimeout,
		RekeyAfterBytes:       c.rekeyAfterBytes,
		RekeyAfterTime:        c.rekeyAfterTime,
	}, nil
}
