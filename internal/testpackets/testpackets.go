// Package testpackets provides packet fixtures for tests.
package testpackets

import (
	"net"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
)

// ssh is an IPv4 TCP PSH+ACK segment carrying an SSH banner (192.168.2.48:60986 -> 192.168.2.1:22, TTL 64, DF). The
// TCP header carries NOP, NOP, and Timestamp options and the payload is "SSH-2.0-OpenSSH_8.1\r\n".
var ssh = []byte{
	0x45, 0x00, 0x00, 0x49, 0x00, 0x00, 0x40, 0x00, 0x40, 0x06, 0xb5, 0x2d, 0xc0, 0xa8, 0x02, 0x30, 0xc0,
	0xa8, 0x02, 0x01, 0xee, 0x3a, 0x00, 0x16, 0x6b, 0x8b, 0xad, 0x49, 0x9f, 0x7b, 0x50, 0xae, 0x80, 0x18,
	0x08, 0x0a, 0x61, 0x41, 0x00, 0x00, 0x01, 0x01, 0x08, 0x0a, 0x8b, 0xc1, 0xd9, 0x53, 0x28, 0xbf, 0x41,
	0x06, 0x53, 0x53, 0x48, 0x2d, 0x32, 0x2e, 0x30, 0x2d, 0x4f, 0x70, 0x65, 0x6e, 0x53, 0x53, 0x48, 0x5f,
	0x38, 0x2e, 0x31, 0x0d, 0x0a,
}

// ping is an IPv4 ICMP echo request (192.168.2.48 -> 192.168.2.1) with a 56-byte payload.
var ping = []byte{
	0x45, 0x00, 0x00, 0x54, 0x97, 0x67, 0x00, 0x00, 0x40, 0x01, 0x5d, 0xc0, 0xc0, 0xa8, 0x02, 0x30, 0xc0,
	0xa8, 0x02, 0x01, 0x08, 0x00, 0x13, 0x66, 0xed, 0xba, 0x00, 0x00, 0x61, 0xba, 0x3a, 0x41, 0x00, 0x0d,
	0x6f, 0xd3, 0x08, 0x09, 0x0a, 0x0b, 0x0c, 0x0d, 0x0e, 0x0f, 0x10, 0x11, 0x12, 0x13, 0x14, 0x15, 0x16,
	0x17, 0x18, 0x19, 0x1a, 0x1b, 0x1c, 0x1d, 0x1e, 0x1f, 0x20, 0x21, 0x22, 0x23, 0x24, 0x25, 0x26, 0x27,
	0x28, 0x29, 0x2a, 0x2b, 0x2c, 0x2d, 0x2e, 0x2f, 0x30, 0x31, 0x32, 0x33, 0x34, 0x35, 0x36, 0x37,
}

// SSH returns a fresh copy of the SSH banner segment.
func SSH() []byte {
	return clone(ssh)
}

// SSHPayload is the TCP payload of SSH().
const SSHPayload = "SSH-2.0-OpenSSH_8.1\r\n"

// Ping returns a fresh copy of the ICMP echo request.
func Ping() []byte {
	return clone(ping)
}

func clone(b []byte) []byte {
	buf := make([]byte, len(b))
	copy(buf, b)

	return buf
}

// TCP describes a TCP segment to build. Zero-valued addresses default to 10.0.0.1 -> 10.0.0.2; an IPv6 SrcIP builds
// an IPv6 packet.
type TCP struct {
	SrcIP, DstIP     net.IP
	SrcPort, DstPort uint16
	Seq, Ack         uint32
	TTL              uint8
	SYN, ACK, PSH    bool
	RST, FIN         bool
	Window           uint16
	Options          []layers.TCPOption
	Payload          []byte
}

// Bytes serializes the segment with valid lengths and checksums.
func (p TCP) Bytes() []byte {
	src, dst := p.SrcIP, p.DstIP
	if src == nil {
		src = net.IP{10, 0, 0, 1}
	}

	if dst == nil {
		dst = net.IP{10, 0, 0, 2}
	}

	ttl := p.TTL
	if ttl == 0 {
		ttl = 64
	}

	tcp := &layers.TCP{
		SrcPort: layers.TCPPort(p.SrcPort),
		DstPort: layers.TCPPort(p.DstPort),
		Seq:     p.Seq,
		Ack:     p.Ack,
		SYN:     p.SYN,
		ACK:     p.ACK,
		PSH:     p.PSH,
		RST:     p.RST,
		FIN:     p.FIN,
		Window:  p.Window,
		Options: p.Options,
	}

	var network gopacket.SerializableLayer

	if src.To4() == nil {
		ip := &layers.IPv6{
			Version:    6,
			HopLimit:   ttl,
			NextHeader: layers.IPProtocolTCP,
			SrcIP:      src,
			DstIP:      dst,
		}
		_ = tcp.SetNetworkLayerForChecksum(ip)
		network = ip
	} else {
		ip := &layers.IPv4{
			Version:  4,
			IHL:      5,
			TTL:      ttl,
			Protocol: layers.IPProtocolTCP,
			SrcIP:    src.To4(),
			DstIP:    dst.To4(),
		}
		_ = tcp.SetNetworkLayerForChecksum(ip)
		network = ip
	}

	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{FixLengths: true, ComputeChecksums: true}
	_ = gopacket.SerializeLayers(buf, opts, network, tcp, gopacket.Payload(p.Payload))

	return buf.Bytes()
}

// DecodeTCP decodes raw as an IP packet and returns its TCP layer and the TCP payload, or nil if there is none.
func DecodeTCP(raw []byte) (*layers.TCP, []byte) {
	lt := layers.LayerTypeIPv4
	if len(raw) > 0 && raw[0]>>4 == 6 {
		lt = layers.LayerTypeIPv6
	}

	p := gopacket.NewPacket(raw, lt, gopacket.Default)

	tcp, ok := p.Layer(layers.LayerTypeTCP).(*layers.TCP)
	if !ok {
		return nil, nil
	}

	return tcp, tcp.Payload
}
