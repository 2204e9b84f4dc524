package common

import (
	"encoding/binary"

	"github.com/google/gopacket/layers"

	"github.com/getlantern/geneva/v2/internal"
)

// ComputeIPv4Checksum computes a new checksum for the given IPv4 header and writes it into the header.
func ComputeIPv4Checksum(header []byte) uint16 {
	binary.BigEndian.PutUint16(header[10:], 0)

	c := internal.OnesComplementChecksum{}
	c.AddBytes(header)

	chksum := c.Finalize()
	binary.BigEndian.PutUint16(header[10:], chksum)

	return chksum
}

// VerifyIPv4Checksum verifies whether an IPv4 header's checksum field is correct.
func VerifyIPv4Checksum(header []byte) bool {
	c := internal.OnesComplementChecksum{}
	c.AddBytes(header)

	return c.Finalize() == 0
}

// ComputeTCPChecksum computes the checksum of a TCP segment and writes it into the TCP header.
//
// networkHeader is the IPv4 or IPv6 header used to build the pseudo-header; the segment length is taken from the
// given header and payload rather than from the network header's length field.
func ComputeTCPChecksum(networkHeader, tcpHeader, payload []byte) uint16 {
	binary.BigEndian.PutUint16(tcpHeader[16:], 0)

	c := tcpPseudoHeaderSum(networkHeader, len(tcpHeader)+len(payload))
	c.AddBytes(tcpHeader)
	c.AddBytes(payload)

	chksum := c.Finalize()
	binary.BigEndian.PutUint16(tcpHeader[16:], chksum)

	return chksum
}

// VerifyTCPChecksum verifies whether a TCP segment's checksum field is correct.
func VerifyTCPChecksum(networkHeader, tcpHeader, payload []byte) bool {
	c := tcpPseudoHeaderSum(networkHeader, len(tcpHeader)+len(payload))
	c.AddBytes(tcpHeader)
	c.AddBytes(payload)

	return c.Finalize() == 0
}

func tcpPseudoHeaderSum(networkHeader []byte, length int) internal.OnesComplementChecksum {
	c := internal.OnesComplementChecksum{}

	if networkHeader[0]>>4 == 6 {
		c.AddBytes(networkHeader[8:40]) // source and destination addresses
		c.Add(uint16(length >> 16))
		c.Add(uint16(length))
	} else {
		c.AddBytes(networkHeader[12:20]) // source and destination addresses
		c.Add(uint16(length))
	}

	c.Add(uint16(layers.IPProtocolTCP))

	return c
}
