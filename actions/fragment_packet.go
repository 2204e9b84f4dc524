package actions

import (
	"encoding/binary"

	"github.com/getlantern/geneva/v2/common"
)

const (
	ipv4MoreFragments  = 0x2000
	ipv4FragOffsetMask = 0x1fff
)

// FragmentTCPSegment splits a TCP segment into two segments at the given offset into its payload.
//
// If fragSize is negative or beyond the end of the payload, the payload is split in half. A segment with no payload
// cannot be split, so it is duplicated instead. The second segment's sequence number is advanced past the first
// segment's payload, and both segments get fixed lengths and checksums.
func FragmentTCPSegment(pkt *common.Packet, fragSize int) (*common.Packet, *common.Packet, error) {
	h := pkt.Headers()

	tcpHeader, payload, err := h.TCPSegment()
	if err != nil {
		return nil, nil, err
	}

	if len(payload) == 0 {
		first, second := duplicate(pkt)
		return first, second, nil
	}

	if fragSize < 0 || fragSize > len(payload)-1 {
		fragSize = len(payload) / 2
	}

	ipHeader := h.Network().LayerContents()

	/*
	 * Strangely, all the manual bit-banging below was easier than dealing with creating packets using gopacket.
	 */

	first := buildSegment(ipHeader, tcpHeader, payload[:fragSize], 0)
	second := buildSegment(ipHeader, tcpHeader, payload[fragSize:], uint32(fragSize))

	return first, second, nil
}

// buildSegment assembles a new IP packet from copies of the given headers and payload, advancing the TCP sequence
// number by seqDelta and fixing up lengths and checksums.
func buildSegment(ipHeader, tcpHeader, payload []byte, seqDelta uint32) *common.Packet {
	ipLen, tcpLen := len(ipHeader), len(tcpHeader)

	buf := make([]byte, 0, ipLen+tcpLen+len(payload))
	buf = append(buf, ipHeader...)
	buf = append(buf, tcpHeader...)
	buf = append(buf, payload...)

	ip := buf[:ipLen]
	tcp := buf[ipLen : ipLen+tcpLen]

	setNetworkLength(ip, len(buf))

	// Go does integer wrapping, so the sequence number rolls over on its own.
	binary.BigEndian.PutUint32(tcp[4:], binary.BigEndian.Uint32(tcp[4:])+seqDelta)

	common.ComputeTCPChecksum(ip, tcp, buf[ipLen+tcpLen:])

	return common.NewPacket(buf)
}

// setNetworkLength writes the length fields of an IPv4 or IPv6 header for a packet of total bytes, and fixes the IPv4
// header checksum.
func setNetworkLength(ip []byte, total int) {
	if ip[0]>>4 == 6 {
		binary.BigEndian.PutUint16(ip[4:], uint16(total-len(ip)))
		return
	}

	binary.BigEndian.PutUint16(ip[2:], uint16(total))
	common.ComputeIPv4Checksum(ip)
}

// FragmentIPPacket fragments an IPv4 packet into two fragments at the given offset, counted in 8-octet units.
//
// The first fragment carries fragSize*8 bytes of the IP payload with the More Fragments bit set; the second carries
// the rest, with its fragment offset advanced and the original More Fragments bit. An invalid offset falls back to
// half the payload, rounded down to a multiple of eight. Packets too short to fragment, and IPv6 packets, are
// duplicated instead.
func FragmentIPPacket(pkt *common.Packet, fragSize int) (*common.Packet, *common.Packet, error) {
	if pkt.Version() == 6 {
		first, second := duplicate(pkt)
		return first, second, nil
	}

	header, payload, err := pkt.Headers().Layer(common.ProtocolIP)
	if err != nil {
		return nil, nil, err
	}

	plen := len(payload)

	offset := fragSize * 8
	if fragSize <= 0 || offset >= plen || plen <= 8 {
		offset = plen / 2 / 8 * 8
	}

	if offset == 0 {
		first, second := duplicate(pkt)
		return first, second, nil
	}

	flagsAndOffset := binary.BigEndian.Uint16(header[6:])
	fragOffset := flagsAndOffset & ipv4FragOffsetMask
	flags := flagsAndOffset &^ ipv4FragOffsetMask

	first := buildFragment(header, payload[:offset], flags|ipv4MoreFragments|fragOffset)
	second := buildFragment(header, payload[offset:], flags|(fragOffset+uint16(offset/8)))

	return first, second, nil
}

func buildFragment(ipHeader, payload []byte, flagsAndOffset uint16) *common.Packet {
	buf := make([]byte, 0, len(ipHeader)+len(payload))
	buf = append(buf, ipHeader...)
	buf = append(buf, payload...)

	ip := buf[:len(ipHeader)]
	binary.BigEndian.PutUint16(ip[6:], flagsAndOffset)
	setNetworkLength(ip, len(buf))

	return common.NewPacket(buf)
}
