// Package triggers implements the predicates that decide whether an action tree applies to a packet.
package triggers

import (
	"bytes"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync/atomic"

	"github.com/getlantern/geneva/v2/common"
	"github.com/getlantern/geneva/v2/internal"
	"github.com/getlantern/geneva/v2/internal/scanner"
)

// Trigger is implemented by any value that describes a Geneva trigger.
//
// The set of triggers is closed: IPTrigger and TCPTrigger are the only implementations.
type Trigger interface {
	// Protocol is the protocol that a trigger can act upon.
	Protocol() string
	// Field is a protocol-specific field name.
	Field() string
	// Value is the value to match, as written in the strategy.
	Value() string
	// Gas denotes how many times this trigger can fire before it stops triggering. Zero means unlimited.
	Gas() int
	// Matches returns whether the trigger matches the packet.
	Matches(*common.Packet) (bool, error)
	fmt.Stringer

	isTrigger()
}

// ParseTrigger parses a string representation of a trigger into the actual Trigger object.
// If the string is malformed, and error will be returned instead.
func ParseTrigger(s *scanner.Scanner) (Trigger, error) {
	if _, err := s.Expect("["); err != nil {
		return nil, err
	}

	str, err := s.Until(']')
	if err != nil {
		return nil, s.Errorf("unterminated trigger: %v", internal.EOFUnexpected(err))
	}
	_, _ = s.Pop()

	fields := strings.Split(str, ":")
	if len(fields) < 3 || len(fields) > 4 {
		return nil, s.Errorf("invalid trigger %q: expected [proto:field:value] or [proto:field:value:gas]", str)
	}

	gas := 0
	if len(fields) == 4 {
		if gas, err = strconv.Atoi(fields[3]); err != nil || gas < 0 {
			return nil, &common.ParseError{What: "trigger gas", Text: fields[3], Err: err}
		}
	}

	proto, err := common.ParseProtocol(fields[0])
	if err != nil {
		return nil, err
	}

	var t Trigger

	switch proto {
	case common.ProtocolIP:
		t, err = NewIPTrigger(fields[1], fields[2], gas)
	case common.ProtocolTCP:
		t, err = NewTCPTrigger(fields[1], fields[2], gas)
	}

	if err != nil {
		return nil, err
	}

	return t, nil
}

// trigger holds the state shared by every trigger type.
type trigger struct {
	field *common.Field
	value string
	want  common.Value
	gas   int
	fired atomic.Int64
}

func (t *trigger) init(f *common.Field, value string, gas int) (err error) {
	if value == "" {
		return &common.ParseError{What: f.Proto.String() + " trigger value", Text: value}
	}

	if gas < 0 {
		return &common.ParseError{What: "trigger gas", Text: strconv.Itoa(gas)}
	}

	if t.want, err = f.ParseValue(value); err != nil {
		return err
	}

	t.field = f
	t.value = value
	t.gas = gas

	return nil
}

// String returns a string representation of this trigger.
func (t *trigger) String() string {
	gas := ""
	if t.gas > 0 {
		gas = fmt.Sprintf(":%d", t.gas)
	}

	return fmt.Sprintf("[%s:%s:%s%s]", t.Protocol(), t.Field(), t.value, gas)
}

// Protocol is the protocol that this trigger can act upon.
func (t *trigger) Protocol() string {
	return t.field.Proto.String()
}

// Field is the name of the header field this trigger inspects.
func (t *trigger) Field() string {
	return t.field.Name
}

// Value is the value this trigger matches, as written in the strategy.
func (t *trigger) Value() string {
	return t.value
}

// Gas denotes how many times this trigger can fire before it stops triggering.
func (t *trigger) Gas() int {
	return t.gas
}

// Fired returns how many times this trigger has matched.
func (t *trigger) Fired() int {
	return int(t.fired.Load())
}

func (t *trigger) isTrigger() {}

// Matches returns whether the trigger matches the packet.
//
// A packet that does not carry the trigger's protocol never matches. A packet whose header is present but cannot be
// decoded is an error. Once a trigger with gas has fired that many times, it never matches again.
func (t *trigger) Matches(pkt *common.Packet) (bool, error) {
	if t.exhausted() {
		return false, nil
	}

	got, present, err := t.field.Get(pkt.Headers())
	if err != nil {
		if errors.Is(err, common.ErrMissingLayer) {
			return false, nil
		}

		return false, err
	}

	if !t.compare(got, present) {
		return false, nil
	}

	return t.recordFire(), nil
}

func (t *trigger) compare(got common.Value, present bool) bool {
	f := t.field

	switch {
	case f.Kind == common.KindPayload:
		return bytes.Contains(got.Bytes, t.want.Bytes)
	case f.Dataless():
		return present == (t.want.Num == 1)
	case !present:
		return false
	case f.Kind == common.KindOption && !f.Numeric():
		return bytes.Equal(got.Bytes, t.want.Bytes)
	default:
		return got.Num == t.want.Num
	}
}

func (t *trigger) exhausted() bool {
	return t.gas > 0 && t.fired.Load() >= int64(t.gas)
}

// recordFire consumes one unit of gas. It returns false if the budget ran out while racing other callers.
func (t *trigger) recordFire() bool {
	if t.gas == 0 {
		t.fired.Add(1)
		return true
	}

	for {
		n := t.fired.Load()
		if n >= int64(t.gas) {
			return false
		}

		if t.fired.CompareAndSwap(n, n+1) {
			return true
		}
	}
}
