package actions_test

import (
	"encoding/binary"
	"errors"
	"testing"

	"github.com/google/gopacket/layers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/getlantern/geneva/v2/actions"
	"github.com/getlantern/geneva/v2/common"
	"github.com/getlantern/geneva/v2/internal/testpackets"
)

// synWithMSS is a SYN from 192.168.0.1:12345 to 192.168.0.2:54321 with seq 0xdeadbeef, an MSS option of 8192, and the
// payload "Test".
func synWithMSS() []byte {
	return []byte{
		0x45, 0x00, 0x00, 0x34, 0x00, 0x00, 0x00, 0x00, 0x80, 0x06, 0xb9, 0x70, 0xc0, 0xa8, 0x00, 0x01, 0xc0,
		0xa8, 0x00, 0x02, 0x30, 0x39, 0xd4, 0x31, 0xde, 0xad, 0xbe, 0xef, 0x00, 0x00, 0x00, 0x00, 0x70, 0x02,
		0x00, 0x00, 0x82, 0x9c, 0x00, 0x00, 0x02, 0x04, 0x20, 0x00, 0x00, 0x00, 0x00, 0x00, 0x54, 0x65, 0x73,
		0x74,
	}
}

func applyTamper(t *testing.T, rule string, raw []byte) *common.Packet {
	t.Helper()

	result, err := parseAction(t, rule).Apply(common.NewPacket(raw))
	require.NoError(t, err)
	require.Len(t, result, 1)

	verifyTCPSegment(t, result[0])

	return result[0]
}

func TestParseTamperAction(t *testing.T) {
	a := parseAction(t, "tamper{TCP:options-mss:replace:15}(drop,)")

	ta, ok := a.(*actions.TamperAction)
	require.True(t, ok, "expected a *TamperAction, got %T", a)

	assert.Equal(t, "TCP", ta.Proto)
	assert.Equal(t, "options-mss", ta.Field)
	assert.Equal(t, actions.TamperReplace, ta.Mode)
	assert.Equal(t, "15", ta.NewValue)
	assert.Equal(t, actions.DefaultDropAction, ta.Action)
}

func TestTamperReplace(t *testing.T) {
	pkt := applyTamper(t, "tamper{TCP:flags:replace:R}", testpackets.SSH())

	tcp, payload := testpackets.DecodeTCP(pkt.Data())
	assert.True(t, tcp.RST)
	assert.False(t, tcp.PSH)
	assert.False(t, tcp.ACK)
	assert.Equal(t, testpackets.SSHPayload, string(payload))
	assert.Equal(t, 73, pkt.Len())
}

func TestTamperReplaceIPHeader(t *testing.T) {
	pkt := applyTamper(t, "tamper{IP:src:replace:10.9.8.7}", testpackets.SSH())

	assert.Equal(t, []byte{10, 9, 8, 7}, pkt.Data()[12:16])
	assert.Equal(t, testpackets.SSH()[16:20], pkt.Data()[16:20])
}

func TestTamperAdd(t *testing.T) {
	tests := []struct {
		rule string
		ttl  byte
	}{
		{"tamper{IP:ttl:add:10}", 74},
		{"tamper{IP:ttl:add:200}", 8},
		{"tamper{IP:ttl:add:0xc0}", 0},
	}
	for _, tc := range tests {
		t.Run(tc.rule, func(t *testing.T) {
			pkt := applyTamper(t, tc.rule, testpackets.SSH())
			assert.Equal(t, tc.ttl, pkt.Data()[8])
		})
	}
}

func TestTamperAddSequence(t *testing.T) {
	pkt := applyTamper(t, "tamper{TCP:seq:add:0x21524111}", synWithMSS())

	tcp, _ := testpackets.DecodeTCP(pkt.Data())
	assert.Equal(t, uint32(0), tcp.Seq, "addition wraps at 32 bits")
}

func TestTamperCorrupt(t *testing.T) {
	pkt := applyTamper(t, "tamper{TCP:load:corrupt}", testpackets.SSH())

	_, payload := testpackets.DecodeTCP(pkt.Data())
	assert.Len(t, payload, len(testpackets.SSHPayload))
	assert.NotEqual(t, testpackets.SSHPayload, string(payload))

	pkt = applyTamper(t, "tamper{TCP:options-sackok:corrupt}", testpackets.SSH())

	// the option is inserted ahead of the padding
	tcp, _ := testpackets.DecodeTCP(pkt.Data())
	assert.True(t, hasOption(tcp, layers.TCPOptionKindSACKPermitted), "options: %v", tcp.Options)
}

func hasOption(tcp *layers.TCP, kind layers.TCPOptionKind) bool {
	for _, opt := range tcp.Options {
		if opt.OptionType == kind {
			return true
		}
	}

	return false
}

func TestTamperChecksumIsKept(t *testing.T) {
	result, err := parseAction(t, "tamper{TCP:chksum:replace:0xbeef}").Apply(common.NewPacket(testpackets.SSH()))
	require.NoError(t, err)

	data := result[0].Data()
	assert.Equal(t, uint16(0xbeef), binary.BigEndian.Uint16(data[36:]))
	assert.True(t, common.VerifyIPv4Checksum(data[:20]))

	result, err = parseAction(t, "tamper{IP:chksum:corrupt}").Apply(common.NewPacket(testpackets.SSH()))
	require.NoError(t, err)

	data = result[0].Data()
	assert.True(t, common.VerifyTCPChecksum(data[:20], data[20:52], data[52:]))
}

func TestTamperLoad(t *testing.T) {
	pkt := applyTamper(t, "tamper{TCP:load:replace:GET / HTTP/1.1}", testpackets.SSH())

	_, payload := testpackets.DecodeTCP(pkt.Data())
	assert.Equal(t, "GET / HTTP/1.1", string(payload))
	assert.Equal(t, 20+32+14, pkt.Len())
}

func TestTamperOptions(t *testing.T) {
	pkt := applyTamper(t, "tamper{TCP:options-mss:replace:1400}", synWithMSS())

	tcp, payload := testpackets.DecodeTCP(pkt.Data())
	require.NotEmpty(t, tcp.Options)
	assert.Equal(t, layers.TCPOptionKind(layers.TCPOptionKindMSS), tcp.Options[0].OptionType)
	assert.Equal(t, []byte{0x05, 0x78}, tcp.Options[0].OptionData)
	assert.Equal(t, "Test", string(payload))

	pkt = applyTamper(t, "tamper{TCP:options-timestamp:replace:}", testpackets.SSH())

	tcp, payload = testpackets.DecodeTCP(pkt.Data())
	assert.Equal(t, uint8(6), tcp.DataOffset, "two NOPs are padded to four bytes")
	assert.Equal(t, testpackets.SSHPayload, string(payload))

	pkt = applyTamper(t, "tamper{TCP:options-wscale:replace:7}", testpackets.SSH())

	tcp, _ = testpackets.DecodeTCP(pkt.Data())
	assert.Equal(t, uint8(9), tcp.DataOffset)
}

func TestTamperPastDataOffset(t *testing.T) {
	ack := testpackets.TCP{SrcPort: 1, DstPort: 2, ACK: true}

	result, err := parseAction(t, "duplicate(tamper{TCP:dataofs:replace:10}(tamper{TCP:chksum:corrupt},),)").
		Apply(common.NewPacket(ack.Bytes()))
	require.NoError(t, err)
	require.Len(t, result, 2)

	// the data offset now points past the segment, but the fixed header is still writable
	assert.Equal(t, byte(0xa0), result[0].Data()[32])
	assert.Equal(t, ack.Bytes(), result[1].Data())

	_, err = parseAction(t, "tamper{TCP:dataofs:replace:10}(tamper{TCP:load:corrupt},)").
		Apply(common.NewPacket(ack.Bytes()))
	assert.Error(t, err, "the payload boundary is unknown")
}

func TestTamperChain(t *testing.T) {
	result, err := parseAction(t, "tamper{TCP:flags:replace:S}(tamper{IP:ttl:replace:3}(duplicate,),)").
		Apply(common.NewPacket(testpackets.SSH()))
	require.NoError(t, err)
	require.Len(t, result, 2)

	for _, p := range result {
		tcp, _ := testpackets.DecodeTCP(p.Data())
		assert.True(t, tcp.SYN)
		assert.Equal(t, byte(3), p.Data()[8])
	}
}

func TestTamperMissingLayer(t *testing.T) {
	_, err := parseAction(t, "tamper{TCP:flags:replace:S}").Apply(common.NewPacket(testpackets.Ping()))

	var le *common.LayerError
	require.True(t, errors.As(err, &le))
	assert.True(t, errors.Is(err, common.ErrMissingLayer))
}

func TestNewTamperAction(t *testing.T) {
	a, err := actions.NewTamperAction("TCP", "window", actions.TamperReplace, "98", nil)
	require.NoError(t, err)
	assert.Equal(t, "tamper{TCP:window:replace:98}", a.String())

	_, err = actions.NewTamperAction("TCP", "flags", actions.TamperAdd, "1", nil)
	assert.Error(t, err)

	_, err = actions.NewTamperAction("TCP", "seq", actions.TamperCorrupt, "1", nil)
	assert.Error(t, err)

	_, err = actions.ParseTamperMode("xor")
	assert.Error(t, err)
}
