package transport

import (
	"bufio"
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha1"
	"crypto/sha256"
	"hash"
	"math/big"
	"net"
	"os"
	"path/filepath"
	"testing"

	"blitter.com/go/sshx/config"
	"blitter.com/go/sshx/dh"
	"blitter.com/go/sshx/kex"
	"blitter.com/go/sshx/knownhosts"
	"blitter.com/go/sshx/wire"
)

// rsaHostKeyBlob and rsaSignatureBlob mirror the helpers in
// kex/kex_test.go: that package's versions are unexported test helpers
// of a different package and so cannot be reused directly from here.
func rsaHostKeyBlob(t *testing.T, pub *rsa.PublicKey) []byte {
	t.Helper()
	b := wire.New(256)
	b.WriteStringVal(kex.HostKeyTypeRSA)
	b.WriteMPInt(big.NewInt(int64(pub.E)))
	b.WriteMPInt(pub.N)
	return b.All()
}

func rsaSignatureBlob(t *testing.T, priv *rsa.PrivateKey, h []byte) []byte {
	t.Helper()
	digest := sha1.Sum(h)
	sig, err := rsa.SignPKCS1v15(rand.Reader, priv, crypto.SHA1, digest[:])
	if err != nil {
		t.Fatalf("SignPKCS1v15: %v", err)
	}
	b := wire.New(256)
	b.WriteStringVal(kex.HostKeyTypeRSA)
	b.WriteString(sig)
	return b.All()
}

// computeExchangeHash recomputes RFC 4253 §8's
// H = hash(V_C||V_S||I_C||I_S||K_S||e||f||K), matching
// kex.computeFixedGroupHash's unexported implementation so the
// simulated server in this test file can agree with the client's
// kex.FixedGroup without reaching into that package's internals.
func computeExchangeHash(hashNew func() hash.Hash, ctx *kex.Context, hostKeyBlob []byte, e, f, k *big.Int) []byte {
	b := wire.New(512)
	b.WriteStringVal(string(ctx.ClientVersion))
	b.WriteStringVal(string(ctx.ServerVersion))
	b.WriteString(ctx.ClientKexInit)
	b.WriteString(ctx.ServerKexInit)
	b.WriteString(hostKeyBlob)
	b.WriteMPInt(e)
	b.WriteMPInt(f)
	b.WriteMPInt(k)
	hsh := hashNew()
	hsh.Write(b.All())
	return hsh.Sum(nil)
}

// runSimulatedServer plays the server half of one SSH-2 handshake over
// conn — version exchange, SSH_MSG_KEXINIT, a fixed-group
// diffie-hellman-group14-sha256 reply signed with priv, and NEWKEYS —
// then echoes back every application payload it receives until conn
// closes or errors. It reports the outcome on doneCh rather than calling
// t.Fatalf, since it runs on its own goroutine.
func runSimulatedServer(t *testing.T, conn net.Conn, cfg config.Snapshot, priv *rsa.PrivateKey, doneCh chan<- error) {
	r := bufio.NewReader(conn)

	if _, err := sendVersion(conn); err != nil {
		doneCh <- err
		return
	}
	clientVersion, err := recvVersion(r)
	if err != nil {
		doneCh <- err
		return
	}
	serverVersion := []byte(ClientVersionString)

	serverKexInit, err := buildKexInit(cfg)
	if err != nil {
		doneCh <- err
		return
	}
	out := newNoneDirectionState()
	in := newNoneDirectionState()
	if err := writePacket(conn, out, serverKexInit.Raw); err != nil {
		doneCh <- err
		return
	}
	clientPayload, err := readPacket(r, in)
	if err != nil {
		doneCh <- err
		return
	}
	clientKexInit, err := kex.ParseKexInit(clientPayload)
	if err != nil {
		doneCh <- err
		return
	}
	proposal, err := kex.Negotiate(clientKexInit, serverKexInit)
	if err != nil {
		doneCh <- err
		return
	}

	hostKeyBlob := rsaHostKeyBlob(t, &priv.PublicKey)

	initPayload, err := readPacket(r, in)
	if err != nil {
		doneCh <- err
		return
	}
	ib := wire.NewFromBytes(initPayload)
	if mt, _ := ib.ReadByte(); mt != kex.MsgKexDHInit {
		doneCh <- &ProtocolError{Message: "expected MsgKexDHInit"}
		return
	}
	e, err := ib.ReadMPInt()
	if err != nil {
		doneCh <- err
		return
	}
	serverEngine, err := dh.NewEngine(kex.Group14)
	if err != nil {
		doneCh <- err
		return
	}
	k, err := serverEngine.SharedSecret(e)
	if err != nil {
		doneCh <- err
		return
	}
	ctx := &kex.Context{
		ClientVersion: clientVersion,
		ServerVersion: serverVersion,
		ClientKexInit: clientKexInit.Raw,
		ServerKexInit: serverKexInit.Raw,
	}
	h := computeExchangeHash(sha256.New, ctx, hostKeyBlob, e, serverEngine.PublicValue(), k)
	sigBlob := rsaSignatureBlob(t, priv, h)

	reply := wire.New(512)
	reply.WriteByte(kex.MsgKexDHReply)
	reply.WriteString(hostKeyBlob)
	reply.WriteMPInt(serverEngine.PublicValue())
	reply.WriteString(sigBlob)
	if err := writePacket(conn, out, reply.All()); err != nil {
		doneCh <- err
		return
	}

	if err := writePacket(conn, out, []byte{21}); err != nil {
		doneCh <- err
		return
	}
	newKeysPayload, err := readPacket(r, in)
	if err != nil {
		doneCh <- err
		return
	}
	if len(newKeysPayload) != 1 || newKeysPayload[0] != 21 {
		doneCh <- &ProtocolError{Message: "expected NEWKEYS"}
		return
	}

	result := kex.Result{K: k, H: h, HostKeyBlob: hostKeyBlob, HashNewFn: sha256.New}
	sessionID := h // fixed at the first KEX

	c2s, s2c, err := rekeyDirectionStates(cfg, proposal, result, sessionID)
	if err != nil {
		doneCh <- err
		return
	}
	// The server's outbound direction is server-to-client; its inbound
	// direction is client-to-server — the opposite assignment from the
	// client's own Session.
	serverOut, serverIn := s2c, c2s

	for {
		payload, err := readPacket(r, serverIn)
		if err != nil {
			doneCh <- nil // client closed the connection; expected at test teardown
			return
		}
		echoed := append([]byte{}, payload...)
		if err := writePacket(conn, serverOut, echoed); err != nil {
			doneCh <- err
			return
		}
	}
}

// loopbackPipe returns two ends of a real TCP connection over loopback.
// A synchronous in-memory net.Pipe cannot carry this protocol's
// simultaneous version-banner writes (RFC 4253 §4.2 has both sides send
// before either is guaranteed to have read) without deadlocking, since
// net.Pipe's Write blocks until the peer's Read consumes it; a loopback
// socket's kernel send buffer absorbs both banners the way a real
// network connection would.
func loopbackPipe(t *testing.T) (client, server net.Conn) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("net.Listen: %v", err)
	}
	defer ln.Close()

	acceptedCh := make(chan net.Conn, 1)
	acceptErrCh := make(chan error, 1)
	go func() {
		c, err := ln.Accept()
		if err != nil {
			acceptErrCh <- err
			return
		}
		acceptedCh <- c
	}()

	client, err = net.Dial("tcp", ln.Addr().String())
	if err != nil {
		t.Fatalf("net.Dial: %v", err)
	}
	select {
	case server = <-acceptedCh:
	case err := <-acceptErrCh:
		t.Fatalf("Accept: %v", err)
	}
	return client, server
}

func testConfig(t *testing.T) config.Snapshot {
	t.Helper()
	cfg, err := config.Build(
		config.WithKexAlgorithms("diffie-hellman-group14-sha256"),
		config.WithHostKeyAlgorithms("ssh-rsa"),
		config.WithCiphers("aes128-ctr"),
		config.WithMACs("hmac-sha2-256"),
		config.WithStrictHostKeyChecking(config.StrictNo, nil),
	)
	if err != nil {
		t.Fatalf("config.Build: %v", err)
	}
	return cfg
}

func TestHandshakeAndEchoEndToEnd(t *testing.T) {
	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}
	cfg := testConfig(t)

	clientConn, serverConn := loopbackPipe(t)
	defer clientConn.Close()
	defer serverConn.Close()

	repoPath := filepath.Join(t.TempDir(), "known_hosts")
	repo, err := knownhosts.Open(repoPath)
	if err != nil {
		t.Fatalf("knownhosts.Open: %v", err)
	}

	doneCh := make(chan error, 1)
	go runSimulatedServer(t, serverConn, cfg, priv, doneCh)

	session := NewSession(clientConn, cfg, nil, repo)
	if err := session.Handshake("test-host"); err != nil {
		t.Fatalf("Handshake: %v", err)
	}
	if session.State() != StateReady {
		t.Fatalf("State() = %v, want StateReady", session.State())
	}
	if len(session.SessionID()) == 0 {
		t.Fatalf("SessionID is empty after handshake")
	}

	if _, err := os.Stat(repoPath); err != nil {
		t.Fatalf("expected known_hosts file to be written: %v", err)
	}

	for i := 0; i < 3; i++ {
		msg := []byte("application data " + string(rune('A'+i)))
		if err := session.Send(msg); err != nil {
			t.Fatalf("Send: %v", err)
		}
		got, err := session.Recv()
		if err != nil {
			t.Fatalf("Recv: %v", err)
		}
		if string(got) != string(msg) {
			t.Fatalf("echo mismatch: got %q want %q", got, msg)
		}
	}

	clientConn.Close()
	serverConn.Close()
	if err := <-doneCh; err != nil {
		t.Fatalf("simulated server reported error: %v", err)
	}
}

func TestHandshakeRejectsUnknownHostKeyUnderStrictYes(t *testing.T) {
	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}
	cfg, err := config.Build(
		config.WithKexAlgorithms("diffie-hellman-group14-sha256"),
		config.WithHostKeyAlgorithms("ssh-rsa"),
		config.WithCiphers("aes128-ctr"),
		config.WithMACs("hmac-sha2-256"),
		config.WithStrictHostKeyChecking(config.StrictYes, nil),
	)
	if err != nil {
		t.Fatalf("config.Build: %v", err)
	}

	clientConn, serverConn := loopbackPipe(t)
	defer clientConn.Close()
	defer serverConn.Close()

	repoPath := filepath.Join(t.TempDir(), "known_hosts")
	repo, err := knownhosts.Open(repoPath)
	if err != nil {
		t.Fatalf("knownhosts.Open: %v", err)
	}

	doneCh := make(chan error, 1)
	go runSimulatedServer(t, serverConn, cfg, priv, doneCh)

	session := NewSession(clientConn, cfg, nil, repo)
	err = session.Handshake("unknown-host")
	if err == nil {
		t.Fatalf("expected Handshake to fail for an unrecorded host under StrictYes")
	}
	if _, ok := err.(*HostKeyError); !ok {
		t.Fatalf("expected *HostKeyError, got %T: %v", err, err)
	}

	clientConn.Close()
	serverConn.Close()
	<-doneCh
}
