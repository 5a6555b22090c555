package kex

import "errors"

// ErrNegotiationFailed is returned when a required category has no
// mutual algorithm between the client's and server's KEXINIT proposals.
var ErrNegotiationFailed = errors.New("kex: negotiation failed")

// ErrUnexpectedMessage is returned when a payload's message number does
// not match what the current state expected.
var ErrUnexpectedMessage = errors.New("kex: unexpected message")

// Proposal is the immutable result of negotiating a client KexInit
// against a server KexInit: one chosen algorithm name per category,
// spec.md §3.
type Proposal struct {
	chosen [NumCategories]string
}

// Get returns the chosen algorithm for a category ("" for an unmet
// optional category).
func (p Proposal) Get(c Category) string { return p.chosen[c] }

// Negotiate computes the ten name-list intersections between client and
// server KEXINITs: for each category, the first entry in the client's
// list that also appears anywhere in the server's list wins. Language
// categories may end up empty; every other category failing to agree is
// ErrNegotiationFailed, per spec.md §4.5 and §8 property 4.
func Negotiate(client, server *KexInit) (Proposal, error) {
	var p Proposal
	for cat := Category(0); cat < NumCategories; cat++ {
		choice, ok := firstCommon(client.Lists[cat], server.Lists[cat])
		if !ok {
			if cat.optional() {
				continue
			}
			return Proposal{}, errors.New("kex: no mutual algorithm for " + categoryNames[cat] + ": " + ErrNegotiationFailed.Error())
		}
		p.chosen[cat] = choice
	}
	return p, nil
}

func firstCommon(client, server []string) (string, bool) {
	for _, c := range client {
		for _, s := range server {
			if c == s {
				return c, true
			}
		}
	}
	return "", false
}

// GuessedKexAlgorithmMatches reports whether, under the "first_kex_packet
//_follows" optimistic-guess rule (RFC 4253 §7.1), the client's and
// server's first KEX algorithm and first host-key algorithm choices agree
// — i.e. whether a speculatively-sent first KEX packet (if either side
// set first_kex_packet_follows) should be honored rather than discarded.
// This client never sends a speculative first packet itself (spec.md
// §4.8 step 5 always waits for negotiation to complete first). The
// transport package does not call this helper: a speculative first KEX
// packet from the server is handed to the negotiated algorithm like any
// other packet, not discarded.
func GuessedKexAlgorithmMatches(client, server *KexInit) bool {
	if len(client.Lists[CatKex]) == 0 || len(server.Lists[CatKex]) == 0 {
		return false
	}
	if len(client.Lists[CatHostKey]) == 0 || len(server.Lists[CatHostKey]) == 0 {
		return false
	}
	return client.Lists[CatKex][0] == server.Lists[CatKex][0] &&
		client.Lists[CatHostKey][0] == server.Lists[CatHostKey][0]
}
