package common

import (
	"errors"
	"fmt"
)

// ErrMissingLayer is wrapped by a LayerError when a packet does not carry the requested protocol header.
var ErrMissingLayer = errors.New("layer not present")

// ParseError is returned when a recognized token in a strategy carries a value outside of its allowed set, such as an
// unknown field name for a protocol or a non-numeric port.
type ParseError struct {
	// What names the kind of token, e.g. "field" or "tamper mode".
	What string
	// Text is the offending text.
	Text string
	// Err is the underlying cause, if any.
	Err error
}

func (e *ParseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("invalid %s %q: %v", e.What, e.Text, e.Err)
	}

	return fmt.Sprintf("invalid %s %q", e.What, e.Text)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// SyntaxError is returned when a strategy does not conform to the grammar.
type SyntaxError struct {
	// Pos is the rune offset into the input where the error was detected.
	Pos int
	Msg string
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("syntax error at position %d: %s", e.Pos, e.Msg)
}

// LayerError is returned when an action needs a protocol header that a packet lacks or that cannot be decoded.
type LayerError struct {
	Proto Protocol
	Err   error
}

func (e *LayerError) Error() string {
	return fmt.Sprintf("%s layer: %v", e.Proto, e.Err)
}

func (e *LayerError) Unwrap() error {
	return e.Err
}
