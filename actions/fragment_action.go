package actions

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/getlantern/geneva/v2/common"
	"github.com/getlantern/geneva/v2/internal"
	"github.com/getlantern/geneva/v2/internal/scanner"
)

// FragmentAction is a Geneva action that splits a packet into two fragments and applies separate action trees to each.
//
// As an example, if Proto is "TCP" and FragSize is 8, this will segment a TCP packet with a 60-byte payload into two
// segments: the first will carry the first eight bytes of the original payload, and the second will carry the
// remaining 52 bytes. Each fragment will retain the original header (modulo the fields that must be updated to mark it
// as a fragment or continuation). Checksums are recomputed.
//
// For "IP", FragSize counts 8-octet units, the unit of the IPv4 fragment offset field.
type FragmentAction struct {
	// Proto is the protocol layer where the packet will be fragmented, as written in the strategy.
	Proto string
	// FragSize is the offset into the protocol's payload where fragmentation will happen.
	FragSize int
	// InOrder specifies whether to return the fragments in order.
	InOrder bool
	// Overlap is the number of bytes the fragments would share. It is carried for round-tripping only.
	Overlap int
	// FirstFragmentAction is the action to apply to the first fragment.
	FirstFragmentAction Action
	// SecondFragmentAction is the action to apply to the second fragment.
	SecondFragmentAction Action

	protocol common.Protocol
}

// NewFragmentAction returns a fragment action. A nil branch is a send.
func NewFragmentAction(
	proto string, size int, inOrder bool, overlap int, first, second Action,
) (*FragmentAction, error) {
	p, err := common.ParseProtocol(proto)
	if err != nil {
		return nil, err
	}

	if overlap < 0 {
		return nil, &common.ParseError{What: "fragment overlap", Text: strconv.Itoa(overlap)}
	}

	return &FragmentAction{
		Proto:                proto,
		FragSize:             size,
		InOrder:              inOrder,
		Overlap:              overlap,
		FirstFragmentAction:  orSend(first),
		SecondFragmentAction: orSend(second),
		protocol:             p,
	}, nil
}

// Apply applies this action to the given packet.
func (a *FragmentAction) Apply(pkt *common.Packet) ([]*common.Packet, error) {
	var (
		first, second *common.Packet
		err           error
	)

	switch a.protocol {
	case common.ProtocolIP:
		first, second, err = FragmentIPPacket(pkt, a.FragSize)
	case common.ProtocolTCP:
		first, second, err = FragmentTCPSegment(pkt, a.FragSize)
	default:
		return nil, &common.LayerError{Proto: a.protocol, Err: common.ErrMissingLayer}
	}

	if err != nil {
		return nil, err
	}

	lpackets, err := a.FirstFragmentAction.Apply(first)
	if err != nil {
		return nil, err
	}

	rpackets, err := a.SecondFragmentAction.Apply(second)
	if err != nil {
		return nil, err
	}

	if !a.InOrder {
		return append(rpackets, lpackets...), nil
	}

	return append(lpackets, rpackets...), nil
}

// String returns a string representation of this Action.
func (a *FragmentAction) String() string {
	overlap := ""
	if a.Overlap != 0 {
		overlap = fmt.Sprintf(":%d", a.Overlap)
	}

	return fmt.Sprintf("fragment{%s:%d:%s%s}%s",
		a.Proto, a.FragSize, pyBool(a.InOrder), overlap,
		branchString(a.FirstFragmentAction, a.SecondFragmentAction))
}

func (a *FragmentAction) isAction() {}

// ParseFragmentAction parses a string representation of a "fragment" action.
// If the string is malformed, an error will be returned instead.
func ParseFragmentAction(s *scanner.Scanner) (Action, error) {
	if _, err := s.Expect("fragment{"); err != nil {
		return nil, err
	}

	str, err := s.Until('}')
	if err != nil {
		return nil, s.Errorf("unterminated fragment rule: %v", internal.EOFUnexpected(err))
	}
	_, _ = s.Pop()

	fields := strings.Split(str, ":")
	if len(fields) < 3 || len(fields) > 4 {
		return nil, s.Errorf("invalid fragment rule %q: expected {proto:size:in_order} or {proto:size:in_order:overlap}",
			str)
	}

	size, err := strconv.Atoi(fields[1])
	if err != nil {
		return nil, &common.ParseError{What: "fragment size", Text: fields[1], Err: err}
	}

	inOrder, err := strconv.ParseBool(fields[2])
	if err != nil {
		return nil, &common.ParseError{What: "fragment order", Text: fields[2], Err: err}
	}

	overlap := 0
	if len(fields) == 4 {
		if overlap, err = strconv.Atoi(fields[3]); err != nil {
			return nil, &common.ParseError{What: "fragment overlap", Text: fields[3], Err: err}
		}
	}

	first, second, err := parseBranches(s)
	if err != nil {
		return nil, fmt.Errorf("invalid fragment rule: %w", err)
	}

	return NewFragmentAction(fields[0], size, inOrder, overlap, first, second)
}

// pyBool renders a boolean the way Geneva strategies spell it.
func pyBool(b bool) string {
	if b {
		return "True"
	}

	return "False"
}
