package actions

import (
	"fmt"
	"strings"

	"github.com/getlantern/geneva/v2/common"
	"github.com/getlantern/geneva/v2/internal"
	"github.com/getlantern/geneva/v2/internal/scanner"
)

// TamperMode describes the way that the "tamper" action can manipulate a packet.
type TamperMode int

const (
	// TamperReplace replaces the value of a packet field with the given value.
	TamperReplace TamperMode = iota
	// TamperCorrupt replaces the value of a packet field with a randomly-generated value.
	TamperCorrupt
	// TamperAdd adds the value to a packet field.
	TamperAdd
)

func (m TamperMode) String() string {
	switch m {
	case TamperReplace:
		return "replace"
	case TamperCorrupt:
		return "corrupt"
	case TamperAdd:
		return "add"
	default:
		return ""
	}
}

// ParseTamperMode parses a tamper mode name.
func ParseTamperMode(s string) (TamperMode, error) {
	switch s {
	case "replace":
		return TamperReplace, nil
	case "corrupt":
		return TamperCorrupt, nil
	case "add":
		return TamperAdd, nil
	default:
		return 0, &common.ParseError{What: "tamper mode", Text: s}
	}
}

// TamperAction is a Geneva action that modifies packets (typically values in the packet header).
//
// After a header field is modified, the IPv4 header checksum and the TCP checksum are recomputed, unless the field
// being tampered is that checksum. Tampering with the payload or TCP options rebuilds the packet with fixed lengths.
type TamperAction struct {
	// Proto is the protocol layer where the modification will occur, as written in the strategy.
	Proto string
	// Field is the layer field to modify.
	Field string
	// Mode indicates how the modification should happen.
	Mode TamperMode
	// NewValue is the value used by the replace and add modes.
	NewValue string
	// Action is the action to apply to the packet after modification.
	Action Action

	field *common.Field
	value common.Value
}

// NewTamperAction returns a tamper action. A nil action is a send.
//
// The replace and add modes take a value, corrupt does not, and add only works on numeric fields.
func NewTamperAction(proto, field string, mode TamperMode, value string, action Action) (*TamperAction, error) {
	p, err := common.ParseProtocol(proto)
	if err != nil {
		return nil, err
	}

	f, err := common.LookupField(p, field)
	if err != nil {
		return nil, err
	}

	a := &TamperAction{
		Proto:    proto,
		Field:    field,
		Mode:     mode,
		NewValue: value,
		Action:   orSend(action),
		field:    f,
	}

	switch mode {
	case TamperReplace:
		a.value, err = f.ParseValue(value)
	case TamperAdd:
		if !f.Numeric() {
			return nil, &common.ParseError{What: "tamper add field", Text: field}
		}

		a.value, err = f.ParseValue(value)
	case TamperCorrupt:
		if value != "" {
			return nil, &common.ParseError{What: "tamper corrupt value", Text: value}
		}
	default:
		return nil, &common.ParseError{What: "tamper mode", Text: mode.String()}
	}

	if err != nil {
		return nil, err
	}

	return a, nil
}

// Apply applies this action to the given packet.
func (a *TamperAction) Apply(pkt *common.Packet) ([]*common.Packet, error) {
	cur, _, err := a.field.Get(pkt.Headers())
	if err != nil {
		return nil, err
	}

	var v common.Value

	switch a.Mode {
	case TamperReplace:
		v = a.value
	case TamperCorrupt:
		v = a.field.Random(cur)
	case TamperAdd:
		v = a.field.ValueOf(cur.Num + a.value.Num)
	}

	if err = a.field.Set(pkt, v); err != nil {
		return nil, err
	}

	return a.Action.Apply(pkt)
}

// String returns a string representation of this Action.
func (a *TamperAction) String() string {
	var b strings.Builder

	fmt.Fprintf(&b, "tamper{%s:%s:%s", a.Proto, a.Field, a.Mode)

	if a.Mode != TamperCorrupt {
		b.WriteString(":" + a.NewValue)
	}

	b.WriteString("}")

	if inner := a.Action.String(); inner != "" {
		fmt.Fprintf(&b, "(%s,)", inner)
	}

	return b.String()
}

func (a *TamperAction) isAction() {}

// ParseTamperAction parses a string representation of a "tamper" action.
// If the string is malformed, an error will be returned instead.
func ParseTamperAction(s *scanner.Scanner) (Action, error) {
	if _, err := s.Expect("tamper{"); err != nil {
		return nil, err
	}

	str, err := s.Until('}')
	if err != nil {
		return nil, s.Errorf("unterminated tamper rule: %v", internal.EOFUnexpected(err))
	}
	_, _ = s.Pop()

	fields := strings.SplitN(str, ":", 4)
	if len(fields) < 3 {
		return nil, s.Errorf("invalid tamper rule %q: expected {proto:field:mode} or {proto:field:mode:value}", str)
	}

	mode, err := ParseTamperMode(fields[2])
	if err != nil {
		return nil, err
	}

	value := ""
	if len(fields) == 4 {
		value = fields[3]
	} else if mode != TamperCorrupt {
		return nil, s.Errorf("invalid tamper rule %q: %s requires a value", str, mode)
	}

	action, err := parseTamperBranch(s)
	if err != nil {
		return nil, fmt.Errorf("invalid tamper rule: %w", err)
	}

	return NewTamperAction(fields[0], fields[1], mode, value, action)
}

// parseTamperBranch parses the optional "(action,)" argument list of a tamper action. The trailing comma may be
// omitted.
func parseTamperBranch(s *scanner.Scanner) (Action, error) {
	s.Chomp()

	if _, err := s.Expect("("); err != nil {
		return DefaultSendAction, nil
	}

	action, err := ParseAction(s)
	if err != nil {
		return nil, err
	}

	s.Chomp()

	if s.FindToken(",", true) {
		_ = s.Advance(1)
		s.Chomp()
	}

	if _, err = s.Expect(")"); err != nil {
		return nil, err
	}

	return action, nil
}
