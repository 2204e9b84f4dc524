// Package internal provides internal Geneva types and functions.
package internal

import (
	"encoding/binary"
	"errors"
	"io"
)

// OnesComplementChecksum accumulates 16-bit words into an Internet checksum (RFC 1071).
type OnesComplementChecksum struct {
	chksum uint16
}

// Add folds n into the running sum and returns the new sum.
func (c *OnesComplementChecksum) Add(n uint16) uint16 {
	chksum := uint32(c.chksum) + uint32(n)
	for chksum > 0xffff {
		chksum = (chksum & 0xffff) + (chksum >> 16)
	}

	c.chksum = uint16(chksum)

	return c.chksum
}

// AddBytes adds b as a sequence of big-endian words. An odd trailing byte is padded on the right with zero.
func (c *OnesComplementChecksum) AddBytes(b []byte) {
	for i := 0; i < len(b); i += 2 {
		if len(b)-i == 1 {
			c.Add(uint16(b[i]) << 8)
		} else {
			c.Add(binary.BigEndian.Uint16(b[i:]))
		}
	}
}

// Finalize returns the one's complement of the running sum.
func (c *OnesComplementChecksum) Finalize() uint16 {
	return ^c.chksum
}

// EOFUnexpected converts io.EOF into io.ErrUnexpectedEOF.
func EOFUnexpected(err error) error {
	if errors.Is(err, io.EOF) {
		return io.ErrUnexpectedEOF
	}

	return err
}
