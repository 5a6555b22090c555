// sshx-demo dials a peer, runs the SSH-2 transport handshake, and sends
// whatever it reads from stdin line by line, printing back whatever the
// peer echoes. It exists to exercise transport.Session end to end over a
// real socket, and to give github.com/xtaci/kcp-go a home as an
// alternate carrier alongside TCP, the way xs's "-K" flag lets xsnet.Dial
// pick KCP over TCP (xsnet/net.go, hkexnet/kcp.go).
package main

import (
	"bufio"
	"flag"
	"fmt"
	"net"
	"os"

	kcp "github.com/xtaci/kcp-go"

	"blitter.com/go/sshx/config"
	"blitter.com/go/sshx/internal/slog"
	"blitter.com/go/sshx/knownhosts"
	"blitter.com/go/sshx/transport"
)

var (
	addr           string
	kcpMode        bool
	knownHostsPath string
	strictMode     string
	dbg            bool
)

func usage() {
	fmt.Fprintf(os.Stderr, "usage: sshx-demo [flags] host:port\n")
	flag.PrintDefaults()
}

func main() {
	flag.BoolVar(&kcpMode, "K", false, "use KCP (github.com/xtaci/kcp-go) reliable UDP instead of TCP")
	flag.StringVar(&knownHostsPath, "known-hosts", defaultKnownHostsPath(), "known_hosts `path`")
	flag.StringVar(&strictMode, "strict", "yes", "host key checking: yes | ask | no")
	flag.BoolVar(&dbg, "d", false, "debug logging")
	flag.Usage = usage
	flag.Parse()

	if flag.NArg() != 1 {
		usage()
		os.Exit(2)
	}
	addr = flag.Arg(0)

	conn, err := dial(addr, kcpMode)
	if err != nil {
		fmt.Fprintf(os.Stderr, "sshx-demo: dial: %v\n", err)
		os.Exit(1)
	}
	defer conn.Close()

	strict, err := parseStrictMode(strictMode)
	if err != nil {
		fmt.Fprintf(os.Stderr, "sshx-demo: %v\n", err)
		os.Exit(2)
	}

	cfg, err := config.Build(
		config.WithStrictHostKeyChecking(strict, promptYesNo),
		config.WithKnownHostsPath(knownHostsPath),
	)
	if err != nil {
		fmt.Fprintf(os.Stderr, "sshx-demo: config: %v\n", err)
		os.Exit(1)
	}

	repo, err := knownhosts.Open(cfg.KnownHostsPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "sshx-demo: known_hosts: %v\n", err)
		os.Exit(1)
	}

	var log *slog.Logger
	if dbg {
		log, err = slog.New("sshx-demo")
		if err != nil {
			fmt.Fprintf(os.Stderr, "sshx-demo: logger: %v\n", err)
			os.Exit(1)
		}
		defer log.Close()
	}

	session := transport.NewSession(conn, cfg, log, repo)
	host, _, _ := net.SplitHostPort(addr)
	if err := session.Handshake(host); err != nil {
		fmt.Fprintf(os.Stderr, "sshx-demo: handshake: %v\n", err)
		os.Exit(1)
	}
	fmt.Fprintf(os.Stderr, "sshx-demo: connected, session id %x\n", session.SessionID())

	stdin := bufio.NewScanner(os.Stdin)
	for stdin.Scan() {
		if err := session.Send(stdin.Bytes()); err != nil {
			fmt.Fprintf(os.Stderr, "sshx-demo: send: %v\n", err)
			os.Exit(1)
		}
		reply, err := session.Recv()
		if err != nil {
			fmt.Fprintf(os.Stderr, "sshx-demo: recv: %v\n", err)
			os.Exit(1)
		}
		fmt.Println(string(reply))

		if session.ShouldRekey() {
			if err := session.Rekey(); err != nil {
				fmt.Fprintf(os.Stderr, "sshx-demo: rekey: %v\n", err)
				os.Exit(1)
			}
		}
	}
}

// kcpBlockCryptKey is a fixed placeholder key for kcp-go's own packet
// encryption, deliberately disabled (kcp.NewNoneBlockCrypt): the SSH-2
// transport this demo drives already encrypts and authenticates every
// packet once NEWKEYS completes, so KCP's own BlockCrypt layer would
// only be double-encrypting the handshake itself, which it can't do
// anyway since it runs before any shared secret exists.
var kcpBlockCryptKey = []byte("sshx-demo-kcp-placeholder-key!!")

func dial(addr string, useKCP bool) (net.Conn, error) {
	if useKCP {
		block, err := kcp.NewNoneBlockCrypt(kcpBlockCryptKey)
		if err != nil {
			return nil, err
		}
		return kcp.DialWithOptions(addr, block, 10, 3)
	}
	return net.Dial("tcp", addr)
}

func parseStrictMode(s string) (config.StrictHostKeyChecking, error) {
	switch s {
	case "yes":
		return config.StrictYes, nil
	case "ask":
		return config.StrictAsk, nil
	case "no":
		return config.StrictNo, nil
	}
	return 0, fmt.Errorf("invalid -strict value %q", s)
}

func promptYesNo(host, keyType string, keyBlob []byte) bool {
	fmt.Fprintf(os.Stderr, "The authenticity of host %q (%s) can't be established.\nAdd to known_hosts? [y/N] ", host, keyType)
	reader := bufio.NewReader(os.Stdin)
	line, _ := reader.ReadString('\n')
	return line == "y\n" || line == "Y\n"
}

func defaultKnownHostsPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "known_hosts"
	}
	return home + "/.sshx/known_hosts"
}
