package actions

import (
	"fmt"

	"github.com/getlantern/geneva/v2/common"
	"github.com/getlantern/geneva/v2/internal/scanner"
)

// DuplicateAction is a Geneva action that duplicates a packet and applies separate action trees to each.
type DuplicateAction struct {
	Left  Action
	Right Action
}

// NewDuplicateAction returns a duplicate action. A nil branch is a send.
func NewDuplicateAction(left, right Action) *DuplicateAction {
	return &DuplicateAction{Left: orSend(left), Right: orSend(right)}
}

// duplicate returns the packet and an independent copy of it.
func duplicate(pkt *common.Packet) (*common.Packet, *common.Packet) {
	return pkt, pkt.Copy()
}

// Apply duplicates packet, returning zero or more potentially-modified packets.
//
// The left branch runs on the original packet and the right branch on the copy. The number of returned packets
// depends on this action's sub-actions.
func (a *DuplicateAction) Apply(pkt *common.Packet) ([]*common.Packet, error) {
	orig, dup := duplicate(pkt)

	lpackets, err := a.Left.Apply(orig)
	if err != nil {
		return nil, err
	}

	rpackets, err := a.Right.Apply(dup)
	if err != nil {
		return nil, err
	}

	return append(lpackets, rpackets...), nil
}

// String returns a string representation of this Action.
func (a *DuplicateAction) String() string {
	return "duplicate" + branchString(a.Left, a.Right)
}

func (a *DuplicateAction) isAction() {}

// ParseDuplicateAction parses a string representation of a "duplicate" action.
// If the string is malformed, an error will be returned instead.
func ParseDuplicateAction(s *scanner.Scanner) (Action, error) {
	if _, err := s.Expect("duplicate"); err != nil {
		return nil, err
	}

	left, right, err := parseBranches(s)
	if err != nil {
		return nil, fmt.Errorf("invalid duplicate rule: %w", err)
	}

	return &DuplicateAction{Left: left, Right: right}, nil
}
