package transport

import (
	"bufio"
	"crypto/rand"
	"fmt"
	"io"
	"strings"

	"blitter.com/go/sshx/config"
	"blitter.com/go/sshx/internal/slog"
	"blitter.com/go/sshx/kex"
	"blitter.com/go/sshx/knownhosts"
	"blitter.com/go/sshx/sshcrypto"
)

// ClientVersionString is V_C, sent as the first line of the connection,
// per RFC 4253 §4.2.
const ClientVersionString = "SSH-2.0-sshx_1.0"

// State is the connection's current stage in the handshake/rekey
// lifecycle, spec.md §4.8.
type State int

const (
	StateDisconnected State = iota
	StateVersionSent
	StateVersionExchanged
	StateKexSent
	StateKexNegotiated
	StateHostChecked
	StateNewKeysSent
	StateNewKeysReceived
	StateReady
	StateRekeying
)

func (s State) String() string {
	names := [...]string{
		"DISCONNECTED", "VERSION_SENT", "VERSION_EXCHANGED", "KEX_SENT",
		"KEX_NEGOTIATED", "HOST_CHECKED", "NEWKEYS_SENT", "NEWKEYS_RECEIVED",
		"READY", "REKEYING",
	}
	if int(s) < len(names) {
		return names[s]
	}
	return "UNKNOWN"
}

// maxVersionExchangeLines bounds how many non-version lines (RFC 4253
// §4.2 permits a server banner preceding "SSH-2.0-...") this client will
// skip before giving up.
const maxVersionExchangeLines = 64

// sendVersion writes V_C terminated by CR LF, per RFC 4253 §4.2.
func sendVersion(w io.Writer) ([]byte, error) {
	line := ClientVersionString
	if _, err := io.WriteString(w, line+"\r\n"); err != nil {
		return nil, err
	}
	return []byte(line), nil
}

// recvVersion reads lines until one begins with "SSH-", returning it with
// the trailing CR/LF stripped as V_S.
func recvVersion(r *bufio.Reader) ([]byte, error) {
	for i := 0; i < maxVersionExchangeLines; i++ {
		line, err := r.ReadString('\n')
		if err != nil {
			return nil, err
		}
		line = strings.TrimRight(line, "\r\n")
		if strings.HasPrefix(line, "SSH-") {
			if !strings.HasPrefix(line, "SSH-2.") {
				return nil, &DisconnectError{
					Reason:      ReasonProtocolVersionNotSupported,
					Description: "unsupported protocol version: " + line,
				}
			}
			return []byte(line), nil
		}
	}
	return nil, &ProtocolError{Reason: ReasonProtocolError, Message: "no version line within banner limit"}
}

// buildKexInit constructs this side's SSH_MSG_KEXINIT from the
// configuration's algorithm allow-lists, spec.md §4.5.
func buildKexInit(cfg config.Snapshot) (*kex.KexInit, error) {
	k := &kex.KexInit{}
	if _, err := io.ReadFull(rand.Reader, k.Cookie[:]); err != nil {
		return nil, err
	}
	k.Lists[kex.CatKex] = cfg.KexAlgorithms
	k.Lists[kex.CatHostKey] = cfg.HostKeyAlgorithms
	k.Lists[kex.CatCipherC2S] = cfg.Ciphers
	k.Lists[kex.CatCipherS2C] = cfg.Ciphers
	k.Lists[kex.CatMacC2S] = cfg.MACs
	k.Lists[kex.CatMacS2C] = cfg.MACs
	k.Lists[kex.CatCompC2S] = []string{"none"}
	k.Lists[kex.CatCompS2C] = []string{"none"}
	k.Lists[kex.CatLangC2S] = []string{}
	k.Lists[kex.CatLangS2C] = []string{}
	k.Marshal()
	return k, nil
}

// rejectNoneCipherOrMAC enforces spec.md §4.7/§4.8's pre-authentication
// rule that a negotiated "none" cipher or "none" MAC must never be used
// to protect traffic before authentication completes. The default
// configuration never offers "none" as a cipher/MAC candidate, but a
// caller can still add it via config.WithCiphers/WithMACs, and
// kex.Negotiate has no opinion on which algorithm names are safe to
// pick — so the result has to be checked here, independent of what was
// offered.
func rejectNoneCipherOrMAC(proposal kex.Proposal) error {
	for _, cat := range []kex.Category{kex.CatCipherC2S, kex.CatCipherS2C} {
		if proposal.Get(cat) == "none" {
			return &NegotiationError{Message: "\"none\" cipher is not permitted before authentication"}
		}
	}
	for _, cat := range []kex.Category{kex.CatMacC2S, kex.CatMacS2C} {
		if proposal.Get(cat) == "none" {
			return &NegotiationError{Message: "\"none\" MAC is not permitted before authentication"}
		}
	}
	return nil
}

// newAlgorithm constructs the kex.Algorithm named by a negotiated
// "kex" category value, spec.md §4.4.
func newAlgorithm(name string) (kex.Algorithm, error) {
	switch name {
	case "diffie-hellman-group1-sha1":
		h, _ := sshcrypto.HashByName("sha1")
		return kex.NewFixedGroup(kex.Group1, h), nil
	case "diffie-hellman-group14-sha1":
		h, _ := sshcrypto.HashByName("sha1")
		return kex.NewFixedGroup(kex.Group14, h), nil
	case "diffie-hellman-group14-sha256":
		h, _ := sshcrypto.HashByName("sha256")
		return kex.NewFixedGroup(kex.Group14, h), nil
	case "diffie-hellman-group-exchange-sha1":
		h, _ := sshcrypto.HashByName("sha1")
		return kex.NewGroupExchange(h, kex.GexMinBits, kex.GexPreferredBits, kex.GexMaxBits), nil
	case "diffie-hellman-group-exchange-sha256":
		h, _ := sshcrypto.HashByName("sha256")
		return kex.NewGroupExchange(h, kex.GexMinBits, kex.GexPreferredBits, kex.GexMaxBits), nil
	default:
		return nil, &NegotiationError{Message: "unsupported kex algorithm: " + name}
	}
}

// runKex drives algo to completion, exchanging packets over conn using
// the directionStates currently in effect ("none" on the first exchange,
// the established keys during a rekey), and returns the completed Result.
func runKex(conn io.ReadWriter, out, in *directionState, ctx *kex.Context, algo kex.Algorithm) (kex.Result, error) {
	send, err := algo.Init(ctx)
	if err != nil {
		return kex.Result{}, &CryptoError{Reason: ReasonKeyExchangeFailed, Err: err}
	}
	if send != nil {
		if err := writePacket(conn, out, send); err != nil {
			return kex.Result{}, err
		}
	}
	for {
		payload, err := readPacket(conn, in)
		if err != nil {
			return kex.Result{}, err
		}
		send, outcome, err := algo.Next(ctx, payload)
		if err != nil {
			return kex.Result{}, &CryptoError{Reason: ReasonKeyExchangeFailed, Err: err}
		}
		if send != nil {
			if err := writePacket(conn, out, send); err != nil {
				return kex.Result{}, err
			}
		}
		switch outcome {
		case kex.Done:
			return algo.Result(), nil
		case kex.Failed:
			return kex.Result{}, &CryptoError{Reason: ReasonKeyExchangeFailed, Err: fmt.Errorf("kex algorithm reported Failed")}
		}
	}
}

// checkHostKey applies cfg's StrictHostKeyChecking policy to result's
// host key, spec.md §4.6.
func checkHostKey(repo *knownhosts.Repository, cfg config.Snapshot, host string, result kex.Result, log *slog.Logger) error {
	keyType := kex.HostKeyType(result.HostKeyBlob)
	if repo == nil {
		return nil
	}
	verdict := repo.Check(host, keyType, result.HostKeyBlob)
	switch cfg.StrictHostKeyChecking {
	case config.StrictNo:
		if verdict != knownhosts.OK {
			log.Info("auto-accepting host key", "host", host, "verdict", verdict.String())
			return repo.Add(host, keyType, result.HostKeyBlob, false)
		}
		return nil
	case config.StrictAsk:
		switch verdict {
		case knownhosts.OK:
			return nil
		case knownhosts.NotIncluded:
			if cfg.Prompt != nil && cfg.Prompt(host, keyType, result.HostKeyBlob) {
				return repo.Add(host, keyType, result.HostKeyBlob, false)
			}
			return &HostKeyError{Host: host, Verdict: verdict.String()}
		default:
			return &HostKeyError{Host: host, Verdict: verdict.String()}
		}
	default: // StrictYes
		if verdict != knownhosts.OK {
			return &HostKeyError{Host: host, Verdict: verdict.String()}
		}
		return nil
	}
}

// newNoneDirectionState builds a directionState using the "none" cipher
// and "none" MAC, for use before the first SSH_MSG_NEWKEYS.
func newNoneDirectionState() *directionState {
	noneCipher, _ := sshcrypto.CipherByName("none")
	stream, _ := noneCipher.New(sshcrypto.Encrypt, nil, nil)
	return &directionState{cipher: stream, cipherSpec: noneCipher}
}

// rekeyDirectionStates builds the post-NEWKEYS cipher/MAC states for both
// directions from a completed kex.Result and the negotiated Proposal,
// per spec.md §4.3's key-derivation letters A-F.
func rekeyDirectionStates(cfg config.Snapshot, proposal kex.Proposal, result kex.Result, sessionID []byte) (c2s, s2c *directionState, err error) {
	cipherC2SName := proposal.Get(kex.CatCipherC2S)
	cipherS2CName := proposal.Get(kex.CatCipherS2C)
	macC2SName := proposal.Get(kex.CatMacC2S)
	macS2CName := proposal.Get(kex.CatMacS2C)

	cipherC2S, err := sshcrypto.CipherByName(cipherC2SName)
	if err != nil {
		return nil, nil, &CryptoError{Reason: ReasonKeyExchangeFailed, Err: err}
	}
	cipherS2C, err := sshcrypto.CipherByName(cipherS2CName)
	if err != nil {
		return nil, nil, &CryptoError{Reason: ReasonKeyExchangeFailed, Err: err}
	}
	macC2S, err := sshcrypto.MACByName(macC2SName)
	if err != nil {
		return nil, nil, &CryptoError{Reason: ReasonKeyExchangeFailed, Err: err}
	}
	macS2C, err := sshcrypto.MACByName(macS2CName)
	if err != nil {
		return nil, nil, &CryptoError{Reason: ReasonKeyExchangeFailed, Err: err}
	}

	ivC2S := DeriveKey(result.HashNewFn, result.K, result.H, LetterIVClientToServer, sessionID, cipherC2S.IVSize)
	ivS2C := DeriveKey(result.HashNewFn, result.K, result.H, LetterIVServerToClient, sessionID, cipherS2C.IVSize)
	encC2S := DeriveKey(result.HashNewFn, result.K, result.H, LetterEncKeyClientToServer, sessionID, cipherC2S.KeySize)
	encS2C := DeriveKey(result.HashNewFn, result.K, result.H, LetterEncKeyServerToClient, sessionID, cipherS2C.KeySize)
	macKeyC2S := DeriveKey(result.HashNewFn, result.K, result.H, LetterIntegKeyClientToServer, sessionID, intMax(macC2S.KeySize, 1))
	macKeyS2C := DeriveKey(result.HashNewFn, result.K, result.H, LetterIntegKeyServerToClient, sessionID, intMax(macS2C.KeySize, 1))

	c2s, err = newDirectionState(sshcrypto.Encrypt, cipherC2S, encC2S, ivC2S, macC2S, macKeyC2S)
	if err != nil {
		return nil, nil, &CryptoError{Reason: ReasonKeyExchangeFailed, Err: err}
	}
	s2c, err = newDirectionState(sshcrypto.Decrypt, cipherS2C, encS2C, ivS2C, macS2C, macKeyS2C)
	if err != nil {
		return nil, nil, &CryptoError{Reason: ReasonKeyExchangeFailed, Err: err}
	}
	// These states carry traffic once NEWKEYS completes, the closest
	// this client comes to an "after authentication" boundary.
	c2s.maxPacketLen = maxPacketLenPostAuth
	s2c.maxPacketLen = maxPacketLenPostAuth
	return c2s, s2c, nil
}

func intMax(a, b int) int {
	if a > b {
		return a
	}
	return b
}
