// Package scanner provides the rune scanner used by the strategy parser.
package scanner

import (
	"fmt"
	"io"
	"unicode"

	"github.com/getlantern/geneva/v2/common"
)

// Scanner is a token scanner tailored to this library.
type Scanner struct {
	rest            []rune
	currentPosition int
}

// NewScanner creates a new scanner with the given source.
func NewScanner(source string) *Scanner {
	return &Scanner{[]rune(source), 0}
}

// Pos returns the current position, in runes, from the start of the source.
func (l *Scanner) Pos() int {
	return l.currentPosition
}

// Rest returns the unconsumed remainder of the source.
func (l *Scanner) Rest() string {
	return string(l.rest[l.currentPosition:])
}

// AtEOF returns whether the whole source has been consumed.
func (l *Scanner) AtEOF() bool {
	return l.currentPosition >= len(l.rest)
}

// Errorf returns a *common.SyntaxError at the current position.
func (l *Scanner) Errorf(format string, args ...interface{}) error {
	return &common.SyntaxError{Pos: l.currentPosition, Msg: fmt.Sprintf(format, args...)}
}

// Peek returns the next rune without consuming it. It returns io.EOF if the scanner is at the end of the source.
func (l *Scanner) Peek() (rune, error) {
	if l.currentPosition >= len(l.rest) {
		return 0, io.EOF
	}

	return l.rest[l.currentPosition], nil
}

// Pop returns the next rune and consumes it. It returns io.EOF if the scanner is at the end of the source.
func (l *Scanner) Pop() (rune, error) {
	b, err := l.Peek()
	if err != nil {
		return 0, err
	}

	l.currentPosition++

	return b, nil
}

// Expect tells the scanner that the given token must be found at the current position, and consumes it.
//
// If it is not found, it will return a *common.SyntaxError and the scanner position will not change.
func (l *Scanner) Expect(token string) (string, error) {
	if !l.FindToken(token, true) {
		if l.AtEOF() {
			return "", l.Errorf("expected %q, found end of input", token)
		}

		return "", l.Errorf("expected %q, found %q", token, l.Rest())
	}

	l.currentPosition += len([]rune(token))

	return token, nil
}

// FindToken returns true if it finds the token at the current position, and false otherwise. It does not consume
// the token.
//
// FindToken will perform a case-insensitive match if caseSensitive = false.
func (l *Scanner) FindToken(token string, caseSensitive bool) bool {
	t := []rune(token)
	if len(t) > len(l.rest)-l.currentPosition {
		return false
	}

	for i, c := range t {
		cur := l.rest[l.currentPosition+i]

		if !caseSensitive {
			c = unicode.ToLower(c)
			cur = unicode.ToLower(cur)
		}

		if cur != c {
			return false
		}
	}

	return true
}

// Until searches for the next occurrence of r and returns the string from the starting position to right before r.
//
// All runes from the starting position to r are consumed. r is not consumed. If r is not found, Until returns io.EOF
// and consumes nothing.
func (l *Scanner) Until(r rune) (string, error) {
	start := l.currentPosition
	for i, c := range l.rest[start:] {
		if r == c {
			l.currentPosition = start + i
			return string(l.rest[start:l.currentPosition]), nil
		}
	}

	return "", io.EOF
}

// Advance consumes count runes but does not return them.
func (l *Scanner) Advance(count int) error {
	if count > len(l.rest)-l.currentPosition {
		return io.EOF
	}

	l.currentPosition += count

	return nil
}

// Chomp advances past any whitespace.
func (l *Scanner) Chomp() {
	for {
		c, err := l.Peek()
		if err != nil {
			return
		}

		if !unicode.IsSpace(c) {
			return
		}

		_ = l.Advance(1)
	}
}
