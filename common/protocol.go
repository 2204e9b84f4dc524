package common

import "strings"

// Protocol is a protocol layer that triggers and actions can operate on.
type Protocol int

const (
	// ProtocolIP is IPv4. (IPv6 headers are never matched or modified by IP rules.)
	ProtocolIP Protocol = iota + 1
	// ProtocolTCP is TCP over either IPv4 or IPv6.
	ProtocolTCP
)

// ParseProtocol parses a protocol name, ignoring case.
func ParseProtocol(s string) (Protocol, error) {
	switch strings.ToLower(s) {
	case "ip":
		return ProtocolIP, nil
	case "tcp":
		return ProtocolTCP, nil
	default:
		return 0, &ParseError{What: "protocol", Text: s}
	}
}

func (p Protocol) String() string {
	switch p {
	case ProtocolIP:
		return "IP"
	case ProtocolTCP:
		return "TCP"
	default:
		return "unknown"
	}
}
