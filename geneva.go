// Package geneva is a reimplementation of the client- and server-side rule processing mechanisms of
// the Geneva project.
//
// Geneva is both a method to describe ways of manipulating packets to attempt to circumvent
// censorship, and a genetic algorithm (GENetic EVAsion) that one can deploy to discover new
// circumventions. (This package does not implement the genetic algorithm.) More broadly, one can
// encode arbitrary instructions for packet manipulation using Geneva rules as a sort of "standard
// syntax", although the use case outside of censorship circumvention may be somewhat tenuous.
//
// This package aims to implement the same triggers and actions that the Geneva project's canonical
// Python package does.
//
// # Quick Background
//
// Geneva rules are called "strategies". A strategy consists of zero or more "action trees" that can
// be applied to inbound or outbound packets. The actions trees define both a "trigger" and a tree
// of actions to take on a packet if the trigger matches. The result of an action tree will be zero
// or more packets that should replace the original packet, which then can be reinjected into the
// host OS' network stack.
//
// # Strategies, Forests, and Action Trees
//
// Let's work from the top down. A strategy, conceptually, looks like this:
//
//	outbound-forest \/ inbound-forest
//
// "outbound-forest" and "inbound-forest" are ordered lists of (trigger, action tree) pairs. The
// Geneva paper calls these ordered lists "forests". The outbound and inbound forests are separated
// by the "\/" characters (that is a backslash followed by a forward-slash); if the strategy omits
// one or the other, then that side of the "\/" is left empty. For example, a strategy that only
// includes an outbound forest would take the form "outbound \/", whereas an inbound-only strategy
// would be "\/ inbound".
//
// The original Geneva paper does not have a name for these (trigger, action tree) pairs. In
// practice, however, the Python code actually defines an action tree as a (trigger, action) pair,
// where the "action" is the root of a tree of actions. This package follows this nomenclature as
// well.
//
// A real example, taken from https://geneva.cs.umd.edu/papers/geneva_ccs19.pdf (pg 2202), would
// look like this:
//
//	[TCP:flags:S]-
//	    duplicate(
//	      tamper{TCP:flags:replace:SA}(send),
//	      send)-| \/
//	[TCP:flags:R]-drop-|
//
// In this example, the outbound forest would trigger on TCP packets that have just the SYN flag set,
// and would perform a few different actions on those packets. The inbound forest would only apply
// to TCP packets with the RST flag set, and would simply drop them. Each of the forests in the
// example are made up of a single (trigger, action tree) pair.
//
// In a forest, each action tree must adhere to the syntax "[trigger]-action-|". Each action tree
// in a forest gets its own copy of the original packet; the trees do not feed into each other.
//
// # Triggers
//
// A trigger defines a way to match packets so that an action tree can be applied to them. In the
// example above, the first trigger is "[TCP:flags:S]". This is a trigger that matches on the TCP
// protocol's "flags" field, and requires that only the SYN flag be set. (Note that this trigger
// will not fire for packets that have, i.e., both SYN and ACK set.) If the packet is not a TCP
// packet, or the flags do not match exactly, then this trigger will not fire.
//
// A trigger may carry a fourth field, its "gas": "[TCP:flags:S:2]" fires for the first two
// matching packets and never again.
//
// # Actions
//
// An action simply encodes steps to manipulate a packet. There are a number of actions described in
// the Geneva paper:
//
//	send
//
// The "send" action simply yields the given packet. Canonical Geneva syntax elides "send" actions
// in the action tree. For instance, the action "duplicate(,)" is equivalent to
// "duplicate(send,send)", and both are written "duplicate". Bear this in mind when reading Geneva
// strategies!
//
//	drop
//
// The "drop" action discards the given packet.
//
//	duplicate(a1, a2)
//
// The "duplicate" action copies the original packet, then applies action a1 to the original and a2
// to the copy. For example, if a1 and a2 are both "send" actions, then the action will yield two
// packets identical to the first.
//
//	fragment{protocol:offset:inOrder}(a1, a2)
//
// The "fragment" action takes the original packet and fragments it, applying a1 to one of the
// fragments and a2 to the other. Since both the IP and TCP layers support fragmentation, the rule
// must specify which layer's payload to fragment. For TCP, the first segment will include up to
// "offset" bytes of the payload; the second segment will contain the rest, with its sequence
// number advanced. For IP, "offset" counts eight-byte units, the unit of the IPv4 fragment offset.
// (You can also indicate that the fragments be returned out-of-order; i.e., reversed, by
// specifying "False" for the "inOrder" argument.)
//
//	tamper{protocol:field:mode[:newValue]}(a1)
//
// The "tamper" action takes the original packet and modifies it in some fashion, depending on the
// protocol, field, and mode given. There are three modes: replace, corrupt, and add. The "replace"
// mode will replace the value of the given field with newValue, the "corrupt" mode will replace
// the value with random data, and "add" adds newValue to a numeric field. Checksums are fixed up
// afterwards unless the tampered field is itself a checksum.
//
// Additionally, note that not all actions are valid for both inbound and outbound directions. The
// Python code mentions that "branching actions are not supported on inbound trees". Practically,
// this means that the duplicate and fragment actions are only useful on outbound packets, while
// the drop and tamper actions can apply to packets of either direction.
//
// See https://censorship.ai for more information about Geneva itself.
package geneva

import (
	"github.com/getlantern/errors"

	"github.com/getlantern/geneva/v2/strategy"
)

// NewStrategy parses st into a Geneva strategy.
//
// This is a convenience wrapper for strategy.ParseStrategy().
func NewStrategy(st string) (*strategy.Strategy, error) {
	s, err := strategy.ParseStrategy(st)
	if err != nil {
		return nil, errors.Wrap(err)
	}

	return s, nil
}
