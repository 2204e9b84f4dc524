// Package common provides the packet type and the header field codecs shared by Geneva triggers and actions.
package common

import (
	"bytes"

	"github.com/getlantern/errors"
	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
)

// Packet is a single network packet, starting at the IP header.
//
// A Packet owns its buffer: actions that fork a packet call Copy so that each branch can mutate its own bytes.
type Packet struct {
	data []byte
}

// NewPacket wraps data in a Packet. The Packet takes ownership of data.
func NewPacket(data []byte) *Packet {
	return &Packet{data: data}
}

// Data returns the raw bytes of the packet.
func (p *Packet) Data() []byte {
	return p.data
}

// SetData replaces the packet's bytes.
func (p *Packet) SetData(data []byte) {
	p.data = data
}

// Len returns the length of the packet in bytes.
func (p *Packet) Len() int {
	return len(p.data)
}

// Copy returns a deep copy of the packet.
func (p *Packet) Copy() *Packet {
	buf := make([]byte, len(p.data))
	copy(buf, p.data)

	return &Packet{data: buf}
}

// Equal reports whether two packets contain the same bytes.
func (p *Packet) Equal(other *Packet) bool {
	if p == nil || other == nil {
		return p == other
	}

	return bytes.Equal(p.data, other.data)
}

// Version returns the IP version of the packet, or 0 for an empty packet.
func (p *Packet) Version() uint8 {
	if len(p.data) == 0 {
		return 0
	}

	return p.data[0] >> 4
}

// Headers holds the decoded headers of a packet. The layers alias the packet's buffer, so writes to their Contents
// modify the packet in place.
type Headers struct {
	IPv4 *layers.IPv4
	IPv6 *layers.IPv6
	TCP  *layers.TCP

	// tcpHeader and tcpPayload are set whenever the segment holds a fixed header, even if gopacket rejects it, so
	// that fixed header fields stay reachable. tcpFixedOnly marks a data offset that does not fit the segment, in
	// which case tcpHeader is only the 20-byte fixed header.
	tcpHeader    []byte
	tcpPayload   []byte
	tcpFixedOnly bool

	version uint8
	ipErr   error
	tcpErr  error
}

// Headers decodes the packet's IP and TCP headers.
//
// TCP is decoded from IPv4 packets with a zero fragment offset, which includes the first fragment of a fragmented
// packet as long as it holds a fixed TCP header, and from IPv6 packets whose next header is TCP.
func (p *Packet) Headers() *Headers {
	h := &Headers{version: p.Version()}

	switch h.version {
	case 4:
		ip := &layers.IPv4{}
		if err := ip.DecodeFromBytes(p.data, gopacket.NilDecodeFeedback); err != nil {
			h.ipErr = err
			return h
		}

		h.IPv4 = ip

		if ip.Protocol != layers.IPProtocolTCP || ip.FragOffset != 0 {
			return h
		}

		// a first fragment cut inside the fixed header carries no usable TCP header
		if ip.Flags&layers.IPv4MoreFragments != 0 && len(ip.Payload) < 20 {
			return h
		}

		h.decodeTCP(ip.Payload)
	case 6:
		ip := &layers.IPv6{}
		if err := ip.DecodeFromBytes(p.data, gopacket.NilDecodeFeedback); err != nil {
			h.ipErr = err
			return h
		}

		h.IPv6 = ip

		if ip.NextHeader != layers.IPProtocolTCP {
			return h
		}

		h.decodeTCP(ip.Payload)
	}

	return h
}

func (h *Headers) decodeTCP(data []byte) {
	tcp := &layers.TCP{}
	if err := tcp.DecodeFromBytes(data, gopacket.NilDecodeFeedback); err != nil {
		h.tcpErr = err

		if len(data) >= 20 {
			n := int(data[12]>>4) * 4
			if n < 20 || n > len(data) {
				n = 20
				h.tcpFixedOnly = true
			}

			h.tcpHeader, h.tcpPayload = data[:n], data[n:]
		}

		return
	}

	h.TCP = tcp
	h.tcpHeader, h.tcpPayload = tcp.Contents, tcp.Payload
}

// tcpDecodeError returns a LayerError explaining why the TCP layer is not fully decoded.
func (h *Headers) tcpDecodeError() error {
	if h.tcpErr != nil {
		return &LayerError{Proto: ProtocolTCP, Err: h.tcpErr}
	}

	return &LayerError{Proto: ProtocolTCP, Err: ErrMissingLayer}
}

// Network returns the network layer carrying the TCP header, if any.
func (h *Headers) Network() gopacket.NetworkLayer {
	switch {
	case h.IPv4 != nil:
		return h.IPv4
	case h.IPv6 != nil:
		return h.IPv6
	default:
		return nil
	}
}

// Layer returns the raw header bytes and payload of the given protocol.
//
// If the packet does not carry the protocol at all, the returned LayerError wraps ErrMissingLayer. If the header is
// present but cannot be decoded, the LayerError wraps the decoding error. A TCP header whose options are malformed is
// still returned, and a TCP header whose data offset runs past the segment is returned as its 20 fixed bytes, so that
// fixed fields can be read and written. Use TCPSegment where the header/payload boundary matters.
func (h *Headers) Layer(proto Protocol) (header, payload []byte, err error) {
	switch proto {
	case ProtocolIP:
		if h.version == 6 {
			return nil, nil, &LayerError{Proto: proto, Err: ErrMissingLayer}
		}

		if h.ipErr != nil {
			return nil, nil, &LayerError{Proto: proto, Err: h.ipErr}
		}

		if h.IPv4 == nil {
			return nil, nil, &LayerError{Proto: proto, Err: ErrMissingLayer}
		}

		return h.IPv4.Contents, h.IPv4.Payload, nil
	case ProtocolTCP:
		if h.ipErr != nil {
			return nil, nil, &LayerError{Proto: proto, Err: h.ipErr}
		}

		if h.tcpHeader == nil {
			return nil, nil, h.tcpDecodeError()
		}

		return h.tcpHeader, h.tcpPayload, nil
	default:
		return nil, nil, &LayerError{Proto: proto, Err: ErrMissingLayer}
	}
}

// TCPSegment returns the TCP header and payload, split at the data offset. Unlike Layer, it fails when the data
// offset does not fit the segment.
func (h *Headers) TCPSegment() (header, payload []byte, err error) {
	header, payload, err = h.Layer(ProtocolTCP)
	if err != nil {
		return nil, nil, err
	}

	if h.tcpFixedOnly {
		return nil, nil, h.tcpDecodeError()
	}

	return header, payload, nil
}

// UpdateChecksums recomputes the IPv4 header checksum and/or the TCP checksum of the packet in place.
//
// Headers that cannot be located are left alone.
func (p *Packet) UpdateChecksums(ipv4, tcp bool) {
	if ipv4 && p.Version() == 4 && len(p.data) >= 20 {
		if ihl := int(p.data[0]&0x0f) * 4; ihl >= 20 && ihl <= len(p.data) {
			ComputeIPv4Checksum(p.data[:ihl])
		}
	}

	if !tcp {
		return
	}

	h := p.Headers()
	if h.tcpHeader == nil {
		return
	}

	ComputeTCPChecksum(h.Network().LayerContents(), h.tcpHeader, h.tcpPayload)
}

// rebuild serializes the packet's headers from h with a new payload for proto, fixing lengths and checksums.
func (p *Packet) rebuild(h *Headers, proto Protocol, payload []byte) error {
	network := h.Network()
	if network == nil {
		return &LayerError{Proto: proto, Err: ErrMissingLayer}
	}

	ls := []gopacket.SerializableLayer{network.(gopacket.SerializableLayer)}

	if proto == ProtocolTCP {
		if h.TCP == nil {
			return h.tcpDecodeError()
		}

		// gopacket pads the options itself when FixLengths is set.
		h.TCP.Padding = nil
		if err := h.TCP.SetNetworkLayerForChecksum(network); err != nil {
			return errors.Wrap(err)
		}

		ls = append(ls, h.TCP)
	}

	ls = append(ls, gopacket.Payload(payload))

	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{FixLengths: true, ComputeChecksums: true}

	if err := gopacket.SerializeLayers(buf, opts, ls...); err != nil {
		return errors.New("error serializing packet: %v", err)
	}

	p.data = buf.Bytes()

	return nil
}
