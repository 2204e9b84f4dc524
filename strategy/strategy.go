// Package strategy provides types and functions for creating Geneva strategies.
//
// A Geneva strategy consists of zero or more action trees that can be applied to inbound or outbound packets. The
// actions trees encode what actions to take on a packet. A strategy, conceptually, looks like this:
//
//	outbound \/ inbound
//
// "outbound" and "inbound" are ordered lists of (trigger, action tree) pairs. The Geneva paper calls these ordered
// lists "forests". The outbound and inbound forests are separated by the "\/" characters; if the strategy omits one or
// the other, then that side of the "\/" is left empty. For example, a strategy that only includes an outbound forest
// would take the form "outbound \/", whereas an inbound-only strategy would be "\/ inbound".
//
// A real example, taken from https://geneva.cs.umd.edu/papers/geneva_ccs19.pdf (pg 2202), would look like this:
//
//	[TCP:flags:S]-
//	   duplicate(
//	      tamper{TCP:flags:replace:SA}(
//	         send),
//	       send)-| \/
//	[TCP:flags:R]-drop-|
//
// In this example, the outbound forest would trigger on TCP packets that have just the SYN flag set, and would
// perform a few different actions on those packets. The inbound forest would only apply to TCP packets with the
// RST flag set, and would simply drop them. Each of the forests in the example are made up of a single (trigger,
// action tree) pair.
package strategy

import (
	"fmt"
	"strings"

	"github.com/getlantern/errors"

	"github.com/getlantern/geneva/v2/actions"
	"github.com/getlantern/geneva/v2/common"
	"github.com/getlantern/geneva/v2/internal/scanner"
)

// Forest refers to an ordered list of (trigger, action tree) pairs.
//
// A nil Forest means the strategy has no rules for that direction. A non-nil empty Forest behaves the same way when
// applied.
type Forest []*actions.ActionTree

// String returns the action trees of the forest separated by spaces.
func (f Forest) String() string {
	trees := make([]string, 0, len(f))
	for _, at := range f {
		trees = append(trees, at.String())
	}

	return strings.Join(trees, " ")
}

// Strategy is the top-level Geneva construct that describes potential inbound and outbound changes to packets.
type Strategy struct {
	Outbound Forest
	Inbound  Forest
}

// Direction is the direction of a packet: either inbound (ingress) or outbound (egress).
type Direction int

const (
	// DirectionInbound indicates a packet received from a remote host (i.e., inbound or ingress traffic).
	DirectionInbound Direction = iota
	// DirectionOutbound indicates a packet to be sent to a remote host (i.e., outbound or egress traffic).
	DirectionOutbound
)

func (d Direction) String() string {
	switch d {
	case DirectionInbound:
		return "inbound"
	case DirectionOutbound:
		return "outbound"
	default:
		return fmt.Sprintf("Direction(%d)", int(d))
	}
}

// ParseDirection parses "inbound" or "outbound" (or their "in"/"out" abbreviations).
func ParseDirection(s string) (Direction, error) {
	switch strings.ToLower(s) {
	case "inbound", "in", "ingress":
		return DirectionInbound, nil
	case "outbound", "out", "egress":
		return DirectionOutbound, nil
	default:
		return 0, &common.ParseError{What: "direction", Text: s}
	}
}

// Forest returns the forest that applies to packets travelling in the given direction.
func (s *Strategy) Forest(dir Direction) Forest {
	if dir == DirectionInbound {
		return s.Inbound
	}

	return s.Outbound
}

// Apply applies the strategy to a given packet.
//
// Each action tree in the forest sees its own copy of the original packet; a tree whose trigger does not match
// contributes its copy unchanged. The results are concatenated in forest order.
func (s *Strategy) Apply(pkt *common.Packet, dir Direction) ([]*common.Packet, error) {
	if dir != DirectionInbound && dir != DirectionOutbound {
		return nil, errors.New("invalid direction %v", dir)
	}

	forest := s.Forest(dir)
	if len(forest) == 0 {
		return []*common.Packet{pkt}, nil
	}

	packets := make([]*common.Packet, 0, len(forest))

	for i, at := range forest {
		// The last action tree can take the original packet; everyone else gets a copy.
		p := pkt
		if i < len(forest)-1 {
			p = pkt.Copy()
		}

		m, err := at.Matches(p)
		if err != nil {
			return nil, fmt.Errorf("error matching action tree %d: %w", i, err)
		}

		if !m {
			// When the action tree doesn't match, return the packet unharmed
			packets = append(packets, p)
			continue
		}

		result, err := at.Apply(p)
		if err != nil {
			return nil, fmt.Errorf("error applying action tree %d: %w", i, err)
		}

		packets = append(packets, result...)
	}

	return packets, nil
}

// ParseStrategy parses a string representation of a strategy into the actual Strategy object.
// If the string is malformed, an error will be returned instead.
//
// A side of the "\/" separator without any action trees yields a nil Forest.
func ParseStrategy(strategy string) (*Strategy, error) {
	// outbound-forest \/ inbound-forest
	s := scanner.NewScanner(strings.TrimSpace(strategy))

	st := &Strategy{}

	var err error
	if st.Outbound, err = parseForest(s); err != nil {
		return nil, err
	}

	// Some renderings write the separator as "-\/-".
	if s.FindToken("-", true) {
		_ = s.Advance(1)
	}

	if _, err = s.Expect(`\/`); err != nil {
		return nil, err
	}

	if s.FindToken("-", true) {
		_ = s.Advance(1)
	}

	if st.Inbound, err = parseForest(s); err != nil {
		return nil, err
	}

	if !s.AtEOF() {
		return nil, s.Errorf("unexpected %q after inbound forest", s.Rest())
	}

	return st, nil
}

// parseForest parses action trees up to the "\/" separator or the end of input.
func parseForest(s *scanner.Scanner) (Forest, error) {
	var forest Forest

	for {
		s.Chomp()

		if s.AtEOF() || s.FindToken(`\/`, true) || s.FindToken(`-\/`, true) {
			return forest, nil
		}

		at, err := actions.ParseActionTree(s)
		if err != nil {
			return nil, err
		}

		forest = append(forest, at)
	}
}

// String returns a string representation of this strategy.
func (s *Strategy) String() string {
	return strings.TrimSpace(fmt.Sprintf(`%s \/ %s`, s.Outbound, s.Inbound))
}
