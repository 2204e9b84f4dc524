package common

import (
	"encoding/binary"
	"encoding/hex"
	"math/rand"
	"net"
	"strconv"
	"strings"

	"github.com/google/gopacket/layers"
)

// FieldKind describes how a header field's value is written in a strategy and compared against a packet.
type FieldKind int

const (
	// KindUint is an unsigned integer field. Values may be written in decimal or 0x-prefixed hex.
	KindUint FieldKind = iota
	// KindFlags is a flag set: letters from "FSRPAUECN" for TCP, or "+"-joined "MF", "DF" and "evil" for IP.
	KindFlags
	// KindAddress is an IPv4 address in dotted-quad form.
	KindAddress
	// KindPayload is the layer's payload, written as raw text.
	KindPayload
	// KindOption is a TCP option.
	KindOption
)

const (
	tcpOptionKindMD5 layers.TCPOptionKind = 19
	tcpOptionKindUTO layers.TCPOptionKind = 28
)

// Field is a header field that triggers can match on and the tamper action can modify.
type Field struct {
	Proto Protocol
	Name  string
	Kind  FieldKind

	// fixed header fields live at offset, spanning size bytes, and are bits wide after shifting right by shift.
	offset int
	size   int
	shift  uint
	bits   uint

	// options carry optSize bytes of data. Dataless options have optSize 0; variable-length ones have optSize -1
	// and are created with optDefault bytes.
	option     layers.TCPOptionKind
	optSize    int
	optDefault int
}

// Value is a decoded field value.
type Value struct {
	// Num is the numeric value of integer, flag, address, and fixed-size option fields.
	Num uint64
	// Bytes holds payloads, addresses, and option data.
	Bytes []byte
	// Empty is set when an option value was given as the empty string, meaning "no such option".
	Empty bool
}

var ipFields = []*Field{
	{Proto: ProtocolIP, Name: "version", Kind: KindUint, offset: 0, size: 1, shift: 4, bits: 4},
	{Proto: ProtocolIP, Name: "ihl", Kind: KindUint, offset: 0, size: 1, bits: 4},
	{Proto: ProtocolIP, Name: "tos", Kind: KindUint, offset: 1, size: 1, bits: 8},
	{Proto: ProtocolIP, Name: "len", Kind: KindUint, offset: 2, size: 2, bits: 16},
	{Proto: ProtocolIP, Name: "id", Kind: KindUint, offset: 4, size: 2, bits: 16},
	{Proto: ProtocolIP, Name: "flags", Kind: KindFlags, offset: 6, size: 2, shift: 13, bits: 3},
	{Proto: ProtocolIP, Name: "frag", Kind: KindUint, offset: 6, size: 2, bits: 13},
	{Proto: ProtocolIP, Name: "ttl", Kind: KindUint, offset: 8, size: 1, bits: 8},
	{Proto: ProtocolIP, Name: "proto", Kind: KindUint, offset: 9, size: 1, bits: 8},
	{Proto: ProtocolIP, Name: "chksum", Kind: KindUint, offset: 10, size: 2, bits: 16},
	{Proto: ProtocolIP, Name: "src", Kind: KindAddress, offset: 12, size: 4, bits: 32},
	{Proto: ProtocolIP, Name: "dst", Kind: KindAddress, offset: 16, size: 4, bits: 32},
	{Proto: ProtocolIP, Name: "load", Kind: KindPayload},
}

var tcpFields = []*Field{
	{Proto: ProtocolTCP, Name: "sport", Kind: KindUint, offset: 0, size: 2, bits: 16},
	{Proto: ProtocolTCP, Name: "dport", Kind: KindUint, offset: 2, size: 2, bits: 16},
	{Proto: ProtocolTCP, Name: "seq", Kind: KindUint, offset: 4, size: 4, bits: 32},
	{Proto: ProtocolTCP, Name: "ack", Kind: KindUint, offset: 8, size: 4, bits: 32},
	{Proto: ProtocolTCP, Name: "dataofs", Kind: KindUint, offset: 12, size: 1, shift: 4, bits: 4},
	{Proto: ProtocolTCP, Name: "reserved", Kind: KindUint, offset: 12, size: 1, shift: 1, bits: 3},
	{Proto: ProtocolTCP, Name: "flags", Kind: KindFlags, offset: 12, size: 2, bits: 9},
	{Proto: ProtocolTCP, Name: "window", Kind: KindUint, offset: 14, size: 2, bits: 16},
	{Proto: ProtocolTCP, Name: "chksum", Kind: KindUint, offset: 16, size: 2, bits: 16},
	{Proto: ProtocolTCP, Name: "urgptr", Kind: KindUint, offset: 18, size: 2, bits: 16},
	{Proto: ProtocolTCP, Name: "load", Kind: KindPayload},
	{Proto: ProtocolTCP, Name: "options-eol", Kind: KindOption, option: layers.TCPOptionKindEndList},
	{Proto: ProtocolTCP, Name: "options-nop", Kind: KindOption, option: layers.TCPOptionKindNop},
	{Proto: ProtocolTCP, Name: "options-mss", Kind: KindOption, option: layers.TCPOptionKindMSS, optSize: 2},
	{Proto: ProtocolTCP, Name: "options-wscale", Kind: KindOption, option: layers.TCPOptionKindWindowScale, optSize: 1},
	{Proto: ProtocolTCP, Name: "options-sackok", Kind: KindOption, option: layers.TCPOptionKindSACKPermitted},
	{Proto: ProtocolTCP, Name: "options-sack", Kind: KindOption, option: layers.TCPOptionKindSACK, optSize: -1, optDefault: 8},
	{Proto: ProtocolTCP, Name: "options-timestamp", Kind: KindOption, option: layers.TCPOptionKindTimestamps, optSize: 8},
	{Proto: ProtocolTCP, Name: "options-altchksum", Kind: KindOption, option: layers.TCPOptionKindAltChecksum, optSize: 1},
	{Proto: ProtocolTCP, Name: "options-altchksumopt", Kind: KindOption, option: layers.TCPOptionKindAltChecksumData, optSize: -1, optDefault: 2},
	{Proto: ProtocolTCP, Name: "options-md5header", Kind: KindOption, option: tcpOptionKindMD5, optSize: -1, optDefault: 16},
	{Proto: ProtocolTCP, Name: "options-uto", Kind: KindOption, option: tcpOptionKindUTO, optSize: 2},
}

func fieldTable(proto Protocol) []*Field {
	switch proto {
	case ProtocolIP:
		return ipFields
	case ProtocolTCP:
		return tcpFields
	default:
		return nil
	}
}

// FieldNames returns the names of the fields supported for proto, in header order.
func FieldNames(proto Protocol) []string {
	table := fieldTable(proto)
	names := make([]string, 0, len(table))

	for _, f := range table {
		names = append(names, f.Name)
	}

	return names
}

// LookupField returns the named field of proto, or a ParseError if there is no such field.
func LookupField(proto Protocol, name string) (*Field, error) {
	for _, f := range fieldTable(proto) {
		if f.Name == name {
			return f, nil
		}
	}

	return nil, &ParseError{What: proto.String() + " field", Text: name}
}

func (f *Field) String() string {
	return f.Name
}

// Numeric reports whether the field holds a plain number that can be incremented.
func (f *Field) Numeric() bool {
	switch f.Kind {
	case KindUint, KindAddress:
		return true
	case KindOption:
		return f.optSize > 0
	default:
		return false
	}
}

// Dataless reports whether the field is a TCP option that carries no data, so only its presence matters.
func (f *Field) Dataless() bool {
	return f.Kind == KindOption && f.optSize == 0
}

// Width returns the width of a numeric field in bits.
func (f *Field) Width() uint {
	if f.Kind == KindOption {
		return uint(f.optSize) * 8
	}

	return f.bits
}

// Mask returns a mask covering the field's width.
func (f *Field) Mask() uint64 {
	if f.Width() >= 64 {
		return ^uint64(0)
	}

	return 1<<f.Width() - 1
}

// ValueOf builds a Value for the number n, truncated to the field's width.
func (f *Field) ValueOf(n uint64) Value {
	n &= f.Mask()
	v := Value{Num: n}

	switch {
	case f.Kind == KindAddress:
		v.Bytes = make([]byte, 4)
		binary.BigEndian.PutUint32(v.Bytes, uint32(n))
	case f.Kind == KindOption && f.optSize > 0:
		v.Bytes = putUint(n, f.optSize)
	}

	return v
}

// ParseValue decodes a value as written in a strategy.
func (f *Field) ParseValue(text string) (Value, error) {
	switch f.Kind {
	case KindUint:
		n, err := strconv.ParseUint(text, 0, int(f.bits))
		if err != nil {
			return Value{}, f.valueError(text, err)
		}

		return f.ValueOf(n), nil
	case KindFlags:
		var (
			n   uint64
			err error
		)

		if f.Proto == ProtocolTCP {
			n, err = parseTCPFlags(text)
		} else {
			n, err = parseIPFlags(text)
		}

		if err != nil {
			return Value{}, f.valueError(text, err)
		}

		return f.ValueOf(n), nil
	case KindAddress:
		ip := net.ParseIP(text).To4()
		if ip == nil {
			return Value{}, f.valueError(text, nil)
		}

		return f.ValueOf(uint64(binary.BigEndian.Uint32(ip))), nil
	case KindPayload:
		return Value{Bytes: []byte(text)}, nil
	case KindOption:
		return f.parseOption(text)
	default:
		return Value{}, f.valueError(text, nil)
	}
}

func (f *Field) parseOption(text string) (Value, error) {
	if text == "" {
		return Value{Empty: true}, nil
	}

	switch {
	case f.optSize == 0:
		b, err := strconv.ParseBool(text)
		if err != nil {
			return Value{}, f.valueError(text, err)
		}

		if b {
			return Value{Num: 1}, nil
		}

		return Value{}, nil
	case f.optSize > 0:
		n, err := strconv.ParseUint(text, 0, int(f.Width()))
		if err != nil {
			return Value{}, f.valueError(text, err)
		}

		return f.ValueOf(n), nil
	default:
		b, err := hex.DecodeString(strings.TrimPrefix(strings.ToLower(text), "0x"))
		if err != nil {
			return Value{}, f.valueError(text, err)
		}

		return Value{Bytes: b}, nil
	}
}

func (f *Field) valueError(text string, err error) error {
	return &ParseError{What: f.Proto.String() + " " + f.Name + " value", Text: text, Err: err}
}

// Get reads the field from a packet's headers. present is false only for options the packet does not carry.
func (f *Field) Get(h *Headers) (v Value, present bool, err error) {
	header, payload, err := h.Layer(f.Proto)
	if err != nil {
		return Value{}, false, err
	}

	switch f.Kind {
	case KindPayload:
		if f.Proto == ProtocolTCP {
			if _, payload, err = h.TCPSegment(); err != nil {
				return Value{}, false, err
			}
		}

		return Value{Bytes: payload}, true, nil
	case KindOption:
		if h.TCP == nil {
			return Value{}, false, h.tcpDecodeError()
		}

		i := findOption(h.TCP.Options, f.option)
		if i < 0 {
			return Value{}, false, nil
		}

		data := h.TCP.Options[i].OptionData
		if f.optSize == 0 {
			return Value{Num: 1}, true, nil
		}

		return Value{Num: getUint(data), Bytes: data}, true, nil
	default:
		return f.ValueOf(f.readBits(header)), true, nil
	}
}

// Set writes v into the packet and fixes up dependent lengths and checksums. A checksum field that is itself being
// written is left as given.
//
// For options, an empty value (or False for dataless options) removes the option, and an absent option is added.
func (f *Field) Set(p *Packet, v Value) error {
	h := p.Headers()

	header, payload, err := h.Layer(f.Proto)
	if err != nil {
		return err
	}

	switch f.Kind {
	case KindPayload:
		return p.rebuild(h, f.Proto, v.Bytes)
	case KindOption:
		if h.TCP == nil {
			return h.tcpDecodeError()
		}

		switch {
		case v.Empty, f.optSize == 0 && v.Num == 0:
			h.TCP.Options = removeOption(h.TCP.Options, f.option)
		case f.optSize == 0:
			if findOption(h.TCP.Options, f.option) < 0 {
				h.TCP.Options = insertOption(h.TCP.Options, f.option, nil)
			}
		default:
			h.TCP.Options = putOption(h.TCP.Options, f.option, v.Bytes)
		}

		return p.rebuild(h, f.Proto, payload)
	default:
		f.writeBits(header, v.Num)

		isChecksum := f.Name == "chksum"
		p.UpdateChecksums(!(isChecksum && f.Proto == ProtocolIP), !(isChecksum && f.Proto == ProtocolTCP))

		return nil
	}
}

// Random returns a random value for the field. current is used to size payloads and variable-length options.
func (f *Field) Random(current Value) Value {
	switch f.Kind {
	case KindPayload:
		return Value{Bytes: randomBytes(len(current.Bytes))}
	case KindOption:
		switch {
		case f.optSize == 0:
			return Value{Num: 1}
		case f.optSize < 0:
			n := len(current.Bytes)
			if n == 0 {
				n = f.optDefault
			}

			return Value{Bytes: randomBytes(n)}
		}
	}

	return f.ValueOf(rand.Uint64())
}

func (f *Field) readBits(header []byte) uint64 {
	return (getUint(header[f.offset:f.offset+f.size]) >> f.shift) & f.Mask()
}

func (f *Field) writeBits(header []byte, n uint64) {
	b := header[f.offset : f.offset+f.size]
	mask := f.Mask() << f.shift
	cur := getUint(b)
	copy(b, putUint((cur&^mask)|((n<<f.shift)&mask), f.size))
}

func getUint(b []byte) uint64 {
	var n uint64
	for i := 0; i < len(b) && i < 8; i++ {
		n = n<<8 | uint64(b[i])
	}

	return n
}

func putUint(n uint64, size int) []byte {
	b := make([]byte, size)
	for i := size - 1; i >= 0; i-- {
		b[i] = byte(n)
		n >>= 8
	}

	return b
}

func randomBytes(n int) []byte {
	b := make([]byte, n)
	for i := range b {
		b[i] = byte(rand.Uint32())
	}

	return b
}

var tcpFlagLetters = map[rune]uint64{
	'F': 0x001,
	'S': 0x002,
	'R': 0x004,
	'P': 0x008,
	'A': 0x010,
	'U': 0x020,
	'E': 0x040,
	'C': 0x080,
	'N': 0x100,
}

// parseTCPFlags parses a scapy-style flag string such as "SA" into the 9-bit flags field.
func parseTCPFlags(s string) (uint64, error) {
	if s != "" && s[0] >= '0' && s[0] <= '9' {
		return strconv.ParseUint(s, 0, 9)
	}

	var flags uint64

	for _, c := range strings.ToUpper(s) {
		bit, ok := tcpFlagLetters[c]
		if !ok {
			return 0, strconv.ErrSyntax
		}

		flags |= bit
	}

	return flags, nil
}

// parseIPFlags parses a scapy-style flag string such as "MF+DF" into the 3-bit flags field.
func parseIPFlags(s string) (uint64, error) {
	if s == "" {
		return 0, nil
	}

	if s[0] >= '0' && s[0] <= '9' {
		return strconv.ParseUint(s, 0, 3)
	}

	var flags uint64

	for _, flag := range strings.Split(s, "+") {
		switch strings.ToLower(flag) {
		case "mf":
			flags |= uint64(layers.IPv4MoreFragments)
		case "df":
			flags |= uint64(layers.IPv4DontFragment)
		case "evil":
			flags |= uint64(layers.IPv4EvilBit)
		default:
			return 0, strconv.ErrSyntax
		}
	}

	return flags, nil
}

func findOption(opts []layers.TCPOption, kind layers.TCPOptionKind) int {
	for i, o := range opts {
		if o.OptionType == kind {
			return i
		}
	}

	return -1
}

func newOption(kind layers.TCPOptionKind, data []byte) layers.TCPOption {
	switch kind {
	case layers.TCPOptionKindEndList, layers.TCPOptionKindNop:
		return layers.TCPOption{OptionType: kind, OptionLength: 1}
	default:
		return layers.TCPOption{OptionType: kind, OptionLength: uint8(2 + len(data)), OptionData: data}
	}
}

// insertOption adds an option ahead of any end-of-list marker.
func insertOption(opts []layers.TCPOption, kind layers.TCPOptionKind, data []byte) []layers.TCPOption {
	opt := newOption(kind, data)

	end := findOption(opts, layers.TCPOptionKindEndList)
	if end < 0 || kind == layers.TCPOptionKindEndList {
		return append(opts, opt)
	}

	out := make([]layers.TCPOption, 0, len(opts)+1)
	out = append(out, opts[:end]...)
	out = append(out, opt)

	return append(out, opts[end:]...)
}

func putOption(opts []layers.TCPOption, kind layers.TCPOptionKind, data []byte) []layers.TCPOption {
	if i := findOption(opts, kind); i >= 0 {
		opts[i] = newOption(kind, data)
		return opts
	}

	return insertOption(opts, kind, data)
}

func removeOption(opts []layers.TCPOption, kind layers.TCPOptionKind) []layers.TCPOption {
	out := opts[:0]

	for _, o := range opts {
		if o.OptionType != kind {
			out = append(out, o)
		}
	}

	return out
}
