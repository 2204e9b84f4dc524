package triggers

import (
	"github.com/getlantern/geneva/v2/common"
)

// TCPFields returns a list of the fields supported by the TCP trigger.
func TCPFields() []string {
	return common.FieldNames(common.ProtocolTCP)
}

// ParseTCPField parses a field name and returns the TCP field, or an error if the field is not supported.
func ParseTCPField(field string) (*common.Field, error) {
	return common.LookupField(common.ProtocolTCP, field)
}

// TCPTrigger is a Trigger that matches on the TCP header, over either IPv4 or IPv6.
//
// Flags are written as a string of scapy flag letters ("SA" is SYN+ACK) and match only the exact set. Options without
// data ("options-nop", "options-eol", "options-sackok") take True or False to match on presence; the other options
// match on their value, in decimal or hex for numeric options and as hex bytes otherwise.
type TCPTrigger struct {
	trigger
}

// NewTCPTrigger creates a new TCP trigger.
func NewTCPTrigger(field, value string, gas int) (*TCPTrigger, error) {
	f, err := ParseTCPField(field)
	if err != nil {
		return nil, err
	}

	t := &TCPTrigger{}
	if err = t.init(f, value, gas); err != nil {
		return nil, err
	}

	return t, nil
}
