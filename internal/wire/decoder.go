// Package wire implements the primitive layer of the snapshot format:
// fixed-width big-endian integers and floats, ASCII header lines, and a
// byte cursor used to report the position of decode failures.
package wire

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"strings"
)

// Decoder pulls bytes one at a time from a source, tracking the offset of
// the next unread byte. At most one byte of lookahead is ever held.
type Decoder struct {
	r      io.Reader
	off    int64
	peeked bool
	peekb  byte
	buf    [1]byte
}

func NewDecoder(r io.Reader) *Decoder {
	return &Decoder{r: r}
}

// Offset returns the number of bytes consumed so far.
func (d *Decoder) Offset() int64 {
	return d.off
}

// Unexpected builds a decode error at the current offset.
func (d *Decoder) Unexpected(expected, got string) error {
	return &UnexpectedError{Offset: d.off, Expected: expected, Got: got}
}

// TryNext consumes and returns the next byte, or ok=false at end of input.
func (d *Decoder) TryNext() (b byte, ok bool, err error) {
	if d.peeked {
		d.peeked = false
		d.off++
		return d.peekb, true, nil
	}
	b, ok, err = d.read()
	if ok {
		d.off++
	}
	return b, ok, err
}

// Next consumes and returns the next byte, failing with the given
// expectation description if the source is exhausted.
func (d *Decoder) Next(expected string) (byte, error) {
	b, ok, err := d.TryNext()
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, d.Unexpected(expected, "EOF")
	}
	return b, nil
}

// TryPeek returns the next byte without consuming it, or ok=false at end
// of input.
func (d *Decoder) TryPeek() (b byte, ok bool, err error) {
	if d.peeked {
		return d.peekb, true, nil
	}
	b, ok, err = d.read()
	if err != nil || !ok {
		return 0, false, err
	}
	d.peeked = true
	d.peekb = b
	return b, true, nil
}

// Peek returns the next byte without consuming it, failing with the given
// expectation description at end of input.
func (d *Decoder) Peek(expected string) (byte, error) {
	b, ok, err := d.TryPeek()
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, d.Unexpected(expected, "EOF")
	}
	return b, nil
}

func (d *Decoder) read() (byte, bool, error) {
	for {
		n, err := d.r.Read(d.buf[:])
		if n > 0 {
			return d.buf[0], true, nil
		}
		if err == io.EOF {
			return 0, false, nil
		}
		if err != nil {
			return 0, false, &ReadError{Offset: d.off, Err: err}
		}
	}
}

// ExpectNewline consumes exactly one byte and fails unless it is '\n'.
func (d *Decoder) ExpectNewline() error {
	b, err := d.Next("newline")
	if err != nil {
		return err
	}
	if b != '\n' {
		return d.Unexpected("newline", fmt.Sprintf("non-newline byte %q", b))
	}
	return nil
}

func (d *Decoder) fill(buf []byte, expected string) error {
	for i := range buf {
		b, err := d.Next(expected)
		if err != nil {
			return err
		}
		buf[i] = b
	}
	return nil
}

// ReadU8 reads 1 byte as an unsigned integer.
func (d *Decoder) ReadU8(expected string) (uint8, error) {
	return d.Next(expected)
}

// ReadI8 reads 1 byte as a signed integer.
func (d *Decoder) ReadI8(expected string) (int8, error) {
	b, err := d.Next(expected)
	return int8(b), err
}

// ReadU16 reads 2 bytes as a big-endian unsigned integer.
func (d *Decoder) ReadU16(expected string) (uint16, error) {
	var b [2]byte
	if err := d.fill(b[:], expected); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint16(b[:]), nil
}

// ReadI16 reads 2 bytes as a big-endian signed integer.
func (d *Decoder) ReadI16(expected string) (int16, error) {
	v, err := d.ReadU16(expected)
	return int16(v), err
}

// ReadU24 reads 3 bytes as a big-endian unsigned integer, left-padded
// with a zero high byte.
func (d *Decoder) ReadU24(expected string) (uint32, error) {
	var b [4]byte
	if err := d.fill(b[1:], expected); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(b[:]), nil
}

// ReadU32 reads 4 bytes as a big-endian unsigned integer.
func (d *Decoder) ReadU32(expected string) (uint32, error) {
	var b [4]byte
	if err := d.fill(b[:], expected); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(b[:]), nil
}

// ReadI32 reads 4 bytes as a big-endian signed integer.
func (d *Decoder) ReadI32(expected string) (int32, error) {
	v, err := d.ReadU32(expected)
	return int32(v), err
}

// ReadI64 reads 8 bytes as a big-endian signed integer.
func (d *Decoder) ReadI64(expected string) (int64, error) {
	var b [8]byte
	if err := d.fill(b[:], expected); err != nil {
		return 0, err
	}
	return int64(binary.BigEndian.Uint64(b[:])), nil
}

// ReadF32 reads 4 bytes as a big-endian IEEE-754 single.
func (d *Decoder) ReadF32(expected string) (float32, error) {
	v, err := d.ReadU32(expected)
	return math.Float32frombits(v), err
}

// ReadF64 reads 8 bytes as a big-endian IEEE-754 double.
func (d *Decoder) ReadF64(expected string) (float64, error) {
	var b [8]byte
	if err := d.fill(b[:], expected); err != nil {
		return 0, err
	}
	return math.Float64frombits(binary.BigEndian.Uint64(b[:])), nil
}

// ReadHeaderLine accumulates bytes up to a '\n' and splits the line into
// whitespace-separated tokens. Any non-ASCII byte is a decode error; this
// is the only place the format parses text.
func (d *Decoder) ReadHeaderLine(expected string) ([]string, error) {
	var line strings.Builder
	for {
		b, err := d.Next(expected)
		if err != nil {
			return nil, err
		}
		if b == '\n' {
			break
		}
		if b >= 0x80 {
			return nil, d.Unexpected(expected, fmt.Sprintf("non-ASCII byte 0x%02x", b))
		}
		line.WriteByte(b)
	}
	return strings.Fields(line.String()), nil
}
