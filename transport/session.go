package transport

import (
	"bufio"
	"io"
	"time"

	"blitter.com/go/sshx/config"
	"blitter.com/go/sshx/internal/slog"
	"blitter.com/go/sshx/kex"
	"blitter.com/go/sshx/knownhosts"
)

// Session is one SSH-2 client connection: version exchange, key
// exchange, and the encrypted/MAC-checked transport that rides on top,
// spec.md §3/§6/§4.8. Construct with NewSession and complete with
// Handshake before calling Send/Recv.
type Session struct {
	conn io.ReadWriteCloser
	r    *bufio.Reader

	cfg  config.Snapshot
	log  *slog.Logger
	repo *knownhosts.Repository

	state State

	clientVersion []byte
	serverVersion []byte

	sessionID []byte // fixed at the first completed KEX, spec.md §8

	out *directionState // client-to-server
	in  *directionState // server-to-client

	bytesSinceRekey uint64
	lastRekey       time.Time
}

// NewSession wraps conn (already dialed) in a Session. repo may be nil to
// disable host-key verification entirely (callers doing so accept full
// responsibility for authenticity, per spec.md §4.6's StrictNo mode doing
// this implicitly at the "accept-and-record" level instead).
func NewSession(conn io.ReadWriteCloser, cfg config.Snapshot, log *slog.Logger, repo *knownhosts.Repository) *Session {
	if log == nil {
		log = slog.Discard
	}
	return &Session{
		conn: conn,
		r:    bufio.NewReader(conn),
		cfg:  cfg,
		log:  log,
		repo: repo,
		out:  newNoneDirectionState(),
		in:   newNoneDirectionState(),
	}
}

// SessionID returns the session identifier fixed at the first completed
// key exchange (spec.md §8: stable across rekeys).
func (s *Session) SessionID() []byte { return s.sessionID }

// State returns the session's current handshake/rekey stage.
func (s *Session) State() State { return s.state }

// Handshake performs version exchange, the initial key exchange, host-key
// verification, and SSH_MSG_NEWKEYS in both directions, per spec.md §4.8.
// host is used only to key the known_hosts lookup/record (it need not
// match conn's remote address literally, matching OpenSSH's behaviour
// with jump hosts/aliases). cfg.HandshakeTimeout is applied as a deadline
// on conn for the duration of the call when conn supports one.
func (s *Session) Handshake(host string) error {
	if dl, ok := s.conn.(interface{ SetDeadline(time.Time) error }); ok && s.cfg.HandshakeTimeout > 0 {
		if err := dl.SetDeadline(time.Now().Add(s.cfg.HandshakeTimeout)); err != nil {
			return err
		}
		defer dl.SetDeadline(time.Time{})
	}

	cv, err := sendVersion(s.conn)
	if err != nil {
		return err
	}
	s.clientVersion = cv
	s.state = StateVersionSent

	sv, err := recvVersion(s.r)
	if err != nil {
		return err
	}
	s.serverVersion = sv
	s.state = StateVersionExchanged

	localKexInit, err := buildKexInit(s.cfg)
	if err != nil {
		return err
	}
	if err := writePacket(s.conn, s.out, localKexInit.Raw); err != nil {
		return err
	}
	s.state = StateKexSent

	remotePayload, err := readPacket(s.r, s.in)
	if err != nil {
		return err
	}
	remoteKexInit, err := kex.ParseKexInit(remotePayload)
	if err != nil {
		return err
	}

	proposal, err := kex.Negotiate(localKexInit, remoteKexInit)
	if err != nil {
		return &NegotiationError{Message: err.Error()}
	}
	if err := rejectNoneCipherOrMAC(proposal); err != nil {
		return err
	}
	s.state = StateKexNegotiated

	algo, err := newAlgorithm(proposal.Get(kex.CatKex))
	if err != nil {
		return err
	}

	ctx := &kex.Context{
		ClientVersion: s.clientVersion,
		ServerVersion: s.serverVersion,
		ClientKexInit: localKexInit.Raw,
		ServerKexInit: remoteKexInit.Raw,
	}
	result, err := runKex(s.readWriter(), s.out, s.in, ctx, algo)
	if err != nil {
		return err
	}

	if s.sessionID == nil {
		s.sessionID = result.H // first KEX only, spec.md §8
	}

	if err := checkHostKey(s.repo, s.cfg, host, result, s.log); err != nil {
		return err
	}
	s.state = StateHostChecked

	if err := writePacket(s.conn, s.out, []byte{byte(21)}); err != nil { // SSH_MSG_NEWKEYS
		return err
	}
	s.state = StateNewKeysSent

	newKeysPayload, err := readPacket(s.r, s.in)
	if err != nil {
		return err
	}
	if len(newKeysPayload) != 1 || newKeysPayload[0] != 21 {
		return &ProtocolError{Reason: ReasonProtocolError, Message: "expected SSH_MSG_NEWKEYS"}
	}
	s.state = StateNewKeysReceived

	newOut, newIn, err := rekeyDirectionStates(s.cfg, proposal, result, s.sessionID)
	if err != nil {
		return err
	}
	newOut.seq = s.out.seq
	newIn.seq = s.in.seq
	s.out = newOut
	s.in = newIn

	s.bytesSinceRekey = 0
	s.lastRekey = time.Now()
	s.state = StateReady
	s.log.Info("handshake complete", "kex", proposal.Get(kex.CatKex), "cipher_c2s", proposal.Get(kex.CatCipherC2S), "cipher_s2c", proposal.Get(kex.CatCipherS2C))
	return nil
}

// readWriter adapts Session's buffered reader and raw writer into a
// single io.ReadWriter for runKex.
func (s *Session) readWriter() io.ReadWriter { return sessionRW{s} }

type sessionRW struct{ s *Session }

func (rw sessionRW) Read(p []byte) (int, error)  { return rw.s.r.Read(p) }
func (rw sessionRW) Write(p []byte) (int, error) { return rw.s.conn.Write(p) }

// Send writes one transport-layer payload (an SSH message, including its
// leading message-number byte) as an encrypted, MAC-protected packet.
func (s *Session) Send(payload []byte) error {
	if s.state != StateReady && s.state != StateRekeying {
		return &ProtocolError{Reason: ReasonProtocolError, Message: "Send before handshake complete"}
	}
	if err := writePacket(s.conn, s.out, payload); err != nil {
		return err
	}
	s.bytesSinceRekey += uint64(len(payload))
	return nil
}

// Recv reads, decrypts, and MAC-verifies the next inbound packet,
// returning its payload.
func (s *Session) Recv() ([]byte, error) {
	if s.state != StateReady && s.state != StateRekeying {
		return nil, &ProtocolError{Reason: ReasonProtocolError, Message: "Recv before handshake complete"}
	}
	payload, err := readPacket(s.r, s.in)
	if err != nil {
		return nil, err
	}
	s.bytesSinceRekey += uint64(len(payload))
	return payload, nil
}

// ShouldRekey reports whether the configured data-volume or elapsed-time
// threshold has been crossed since the last key exchange, spec.md §4.9.
func (s *Session) ShouldRekey() bool {
	if s.cfg.RekeyAfterBytes > 0 && s.bytesSinceRekey >= s.cfg.RekeyAfterBytes {
		return true
	}
	if s.cfg.RekeyAfterTime > 0 && time.Since(s.lastRekey) >= s.cfg.RekeyAfterTime {
		return true
	}
	return false
}

// Rekey performs a fresh key exchange over the existing connection
// without re-doing version exchange, per spec.md §4.9 (the session_id
// established at the first KEX is preserved).
func (s *Session) Rekey() error {
	s.state = StateRekeying

	localKexInit, err := buildKexInit(s.cfg)
	if err != nil {
		return err
	}
	if err := writePacket(s.conn, s.out, localKexInit.Raw); err != nil {
		return err
	}

	remotePayload, err := s.Recv()
	if err != nil {
		return err
	}
	remoteKexInit, err := kex.ParseKexInit(remotePayload)
	if err != nil {
		return err
	}

	proposal, err := kex.Negotiate(localKexInit, remoteKexInit)
	if err != nil {
		return &NegotiationError{Message: err.Error()}
	}
	if err := rejectNoneCipherOrMAC(proposal); err != nil {
		return err
	}

	algo, err := newAlgorithm(proposal.Get(kex.CatKex))
	if err != nil {
		return err
	}

	ctx := &kex.Context{
		ClientVersion: s.clientVersion,
		ServerVersion: s.serverVersion,
		ClientKexInit: localKexInit.Raw,
		ServerKexInit: remoteKexInit.Raw,
	}
	result, err := runKex(s.readWriter(), s.out, s.in, ctx, algo)
	if err != nil {
		return err
	}

	if err := writePacket(s.conn, s.out, []byte{byte(21)}); err != nil {
		return err
	}
	newKeysPayload, err := readPacket(s.r, s.in)
	if err != nil {
		return err
	}
	if len(newKeysPayload) != 1 || newKeysPayload[0] != 21 {
		return &ProtocolError{Reason: ReasonProtocolError, Message: "expected SSH_MSG_NEWKEYS"}
	}

	newOut, newIn, err := rekeyDirectionStates(s.cfg, proposal, result, s.sessionID)
	if err != nil {
		return err
	}
	newOut.seq = s.out.seq
	newIn.seq = s.in.seq
	s.out = newOut
	s.in = newIn

	s.bytesSinceRekey = 0
	s.lastRekey = time.Now()
	s.state = StateReady
	s.log.Info("rekey complete", "kex", proposal.Get(kex.CatKex))
	return nil
}

// Close closes the underlying connection.
func (s *Session) Close() error {
	return s.conn.Close()
}
