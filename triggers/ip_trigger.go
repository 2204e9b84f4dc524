package triggers

import (
	"github.com/getlantern/geneva/v2/common"
)

// IPFields returns a list of the fields supported by the IP trigger.
func IPFields() []string {
	return common.FieldNames(common.ProtocolIP)
}

// ParseIPField parses a field name and returns the IP field, or an error if the field is not supported.
func ParseIPField(field string) (*common.Field, error) {
	return common.LookupField(common.ProtocolIP, field)
}

// IPTrigger is a Trigger that matches on the IPv4 header.
//
// The flags field is written as scapy does, e.g. "DF" or "MF+DF", and must match the packet's flags exactly. The
// load field matches if the value occurs anywhere in the IP payload.
type IPTrigger struct {
	trigger
}

// NewIPTrigger creates a new IP trigger.
func NewIPTrigger(field, value string, gas int) (*IPTrigger, error) {
	f, err := ParseIPField(field)
	if err != nil {
		return nil, err
	}

	t := &IPTrigger{}
	if err = t.init(f, value, gas); err != nil {
		return nil, err
	}

	return t, nil
}
