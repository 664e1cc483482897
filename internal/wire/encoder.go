package wire

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"
)

// Encoder writes raw bytes and fixed-width big-endian values to a sink.
// The only failure mode is the sink's own I/O error.
type Encoder struct {
	w io.Writer
}

func NewEncoder(w io.Writer) *Encoder {
	return &Encoder{w: w}
}

// WriteByte writes a single byte.
func (e *Encoder) WriteByte(b byte) error {
	var buf [1]byte
	buf[0] = b
	_, err := e.w.Write(buf[:])
	return err
}

// Write writes raw bytes.
func (e *Encoder) Write(p []byte) error {
	_, err := e.w.Write(p)
	return err
}

// WriteString writes the bytes of s.
func (e *Encoder) WriteString(s string) error {
	_, err := io.WriteString(e.w, s)
	return err
}

// Printf formats directly into the sink. Used for header lines only.
func (e *Encoder) Printf(format string, args ...any) error {
	_, err := fmt.Fprintf(e.w, format, args...)
	return err
}

// WriteU8 writes 1 byte.
func (e *Encoder) WriteU8(v uint8) error {
	return e.WriteByte(v)
}

// WriteI8 writes 1 byte, two's complement.
func (e *Encoder) WriteI8(v int8) error {
	return e.WriteByte(byte(v))
}

// WriteU16 writes 2 bytes big-endian.
func (e *Encoder) WriteU16(v uint16) error {
	var b [2]byte
	binary.BigEndian.PutUint16(b[:], v)
	return e.Write(b[:])
}

// WriteI16 writes 2 bytes big-endian, two's complement.
func (e *Encoder) WriteI16(v int16) error {
	return e.WriteU16(uint16(v))
}

// WriteU24 writes the low 3 bytes of v big-endian. The high byte of v
// must be zero.
func (e *Encoder) WriteU24(v uint32) error {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], v)
	return e.Write(b[1:])
}

// WriteU32 writes 4 bytes big-endian.
func (e *Encoder) WriteU32(v uint32) error {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], v)
	return e.Write(b[:])
}

// WriteI32 writes 4 bytes big-endian, two's complement.
func (e *Encoder) WriteI32(v int32) error {
	return e.WriteU32(uint32(v))
}

// WriteI64 writes 8 bytes big-endian, two's complement.
func (e *Encoder) WriteI64(v int64) error {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], uint64(v))
	return e.Write(b[:])
}

// WriteF32 writes 4 bytes of IEEE-754 single big-endian.
func (e *Encoder) WriteF32(v float32) error {
	return e.WriteU32(math.Float32bits(v))
}

// WriteF64 writes 8 bytes of IEEE-754 double big-endian.
func (e *Encoder) WriteF64(v float64) error {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], math.Float64bits(v))
	return e.Write(b[:])
}
