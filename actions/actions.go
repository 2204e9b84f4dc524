// Package actions implements the Geneva actions that transform packets, and the action trees that bind them to
// triggers.
package actions

import (
	"fmt"

	"github.com/getlantern/geneva/v2/common"
	"github.com/getlantern/geneva/v2/internal/scanner"
	"github.com/getlantern/geneva/v2/triggers"
)

// ActionTree represents a Geneva (trigger, action) pair.
//
// Technically, Geneva uses the term "action tree" to refer to the tree of actions in the tuple (trigger, action tree).
// In other words, RootAction here is what they call the "action tree". They have no name for the (trigger, action
// tree) tuple, which this type actually represents.
type ActionTree struct {
	// Trigger is the trigger that, if matched, will fire this action tree.
	Trigger triggers.Trigger
	// RootAction is the root of the action tree. It may have subordinate actions that it calls.
	RootAction Action
}

// Matches returns whether this action tree's trigger matches the packet.
func (at *ActionTree) Matches(pkt *common.Packet) (bool, error) {
	return at.Trigger.Matches(pkt)
}

// Apply runs the action tree on the packet, regardless of whether the trigger matches.
func (at *ActionTree) Apply(pkt *common.Packet) ([]*common.Packet, error) {
	return at.RootAction.Apply(pkt)
}

// String returns a string representation of this ActionTree.
func (at *ActionTree) String() string {
	return fmt.Sprintf("%s-%s-|", at.Trigger, at.RootAction)
}

// ParseActionTree attempts to parse an action tree from its input.
func ParseActionTree(s *scanner.Scanner) (*ActionTree, error) {
	trigger, err := triggers.ParseTrigger(s)
	if err != nil {
		return nil, err
	}

	if _, err = s.Expect("-"); err != nil {
		return nil, err
	}

	root, err := ParseAction(s)
	if err != nil {
		return nil, err
	}

	s.Chomp()

	if _, err = s.Expect("-|"); err != nil {
		return nil, err
	}

	return &ActionTree{Trigger: trigger, RootAction: root}, nil
}

// Action is implemented by any value that describes a Geneva action.
//
// The set of actions is closed: SendAction, DropAction, DuplicateAction, FragmentAction, and TamperAction.
type Action interface {
	// Apply applies the action to the packet, returning zero or more potentially-modified packets.
	//
	// The action may modify the packet it is given.
	Apply(*common.Packet) ([]*common.Packet, error)
	fmt.Stringer

	isAction()
}

// ParseAction parses any supported action from the scanner's current position.
//
// An empty action (i.e., one immediately followed by ",", ")", or "-|") is a SendAction.
func ParseAction(s *scanner.Scanner) (Action, error) {
	s.Chomp()

	switch {
	case s.FindToken("duplicate", true):
		return ParseDuplicateAction(s)
	case s.FindToken("fragment", true):
		return ParseFragmentAction(s)
	case s.FindToken("tamper", true):
		return ParseTamperAction(s)
	case s.FindToken("drop", true):
		_ = s.Advance(4)
		return DefaultDropAction, nil
	case s.FindToken("send", true):
		_ = s.Advance(4)
		return DefaultSendAction, nil
	}

	c, err := s.Peek()
	if err != nil {
		return nil, s.Errorf("expected an action, found end of input")
	}

	switch c {
	case ',', ')', '-':
		return DefaultSendAction, nil
	default:
		return nil, s.Errorf("unknown action at %q", s.Rest())
	}
}

// parseBranches parses the optional "(left,right)" argument list of a duplicate or fragment action. Omitted
// branches are SendActions.
func parseBranches(s *scanner.Scanner) (left, right Action, err error) {
	s.Chomp()

	if _, err = s.Expect("("); err != nil {
		return DefaultSendAction, DefaultSendAction, nil
	}

	if left, err = ParseAction(s); err != nil {
		return nil, nil, err
	}

	s.Chomp()

	if _, err = s.Expect(","); err != nil {
		return nil, nil, err
	}

	if right, err = ParseAction(s); err != nil {
		return nil, nil, err
	}

	s.Chomp()

	if _, err = s.Expect(")"); err != nil {
		return nil, nil, err
	}

	return left, right, nil
}

// branchString renders the argument list of a two-branch action, eliding it when both branches are sends.
func branchString(left, right Action) string {
	l, r := left.String(), right.String()
	if l == "" && r == "" {
		return ""
	}

	return fmt.Sprintf("(%s,%s)", l, r)
}

func orSend(a Action) Action {
	if a == nil {
		return DefaultSendAction
	}

	return a
}
