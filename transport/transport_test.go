package transport

import (
	"testing"

	"blitter.com/go/sshx/kex"
)

func proposalWith(kexName, hostKeyAlgo, cipher, mac string) kex.Proposal {
	list := &kex.KexInit{}
	list.Lists[kex.CatKex] = []string{kexName}
	list.Lists[kex.CatHostKey] = []string{hostKeyAlgo}
	list.Lists[kex.CatCipherC2S] = []string{cipher}
	list.Lists[kex.CatCipherS2C] = []string{cipher}
	list.Lists[kex.CatMacC2S] = []string{mac}
	list.Lists[kex.CatMacS2C] = []string{mac}
	list.Lists[kex.CatCompC2S] = []string{"none"}
	list.Lists[kex.CatCompS2C] = []string{"none"}

	proposal, err := kex.Negotiate(list, list)
	if err != nil {
		panic(err) // test construction helper; a mismatch here is a test bug
	}
	return proposal
}

func TestRejectNoneCipherOrMAC(t *testing.T) {
	ordinary := proposalWith("diffie-hellman-group14-sha256", "ssh-rsa", "aes128-ctr", "hmac-sha2-256")
	if err := rejectNoneCipherOrMAC(ordinary); err != nil {
		t.Fatalf("ordinary proposal rejected: %v", err)
	}

	noneCipher := proposalWith("diffie-hellman-group14-sha256", "ssh-rsa", "none", "hmac-sha2-256")
	if err := rejectNoneCipherOrMAC(noneCipher); err == nil {
		t.Fatalf("expected rejection of a negotiated \"none\" cipher")
	} else if _, ok := err.(*NegotiationError); !ok {
		t.Fatalf("expected *NegotiationError, got %T: %v", err, err)
	}

	noneMAC := proposalWith("diffie-hellman-group14-sha256", "ssh-rsa", "aes128-ctr", "none")
	if err := rejectNoneCipherOrMAC(noneMAC); err == nil {
		t.Fatalf("expected rejection of a negotiated \"none\" MAC")
	} else if _, ok := err.(*NegotiationError); !ok {
		t.Fatalf("expected *NegotiationError, got %T: %v", err, err)
	}
}
