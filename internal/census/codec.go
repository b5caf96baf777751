package census

import (
	"encoding/binary"
	"errors"
	"math"
	"unicode/utf8"
)

var (
	ErrShortBuffer   = errors.New("census: short buffer")
	ErrOverflow      = errors.New("census: varint overflows 64 bits")
	ErrInvalidString = errors.New("census: invalid string")
)

// Writer appends encoded values to a reusable byte slice.
type Writer struct {
	buf []byte
}

// NewWriter creates a Writer with the given initial capacity
func NewWriter(capacity int) *Writer {
	return &Writer{buf: make([]byte, 0, capacity)}
}

// Reset empties the writer, keeping its storage
func (w *Writer) Reset() {
	w.buf = w.buf[:0]
}

// Bytes returns the encoded bytes. The slice is only valid until the next write or Reset.
func (w *Writer) Bytes() []byte {
	return w.buf
}

// Len returns the number of bytes written
func (w *Writer) Len() int {
	return len(w.buf)
}

// Uvarint writes 7 bits per byte, low group first, high bit set on all but the last byte.
func (w *Writer) Uvarint(v uint64) {
	w.buf = binary.AppendUvarint(w.buf, v)
}

// Varint writes a zigzag-encoded signed integer
func (w *Writer) Varint(v int64) {
	w.buf = binary.AppendVarint(w.buf, v)
}

func (w *Writer) F32(v float32) {
	w.buf = binary.LittleEndian.AppendUint32(w.buf, math.Float32bits(v))
}

func (w *Writer) F64(v float64) {
	w.buf = binary.LittleEndian.AppendUint64(w.buf, math.Float64bits(v))
}

// String writes the byte length as a varuint followed by the raw bytes
func (w *Writer) String(s string) {
	w.Uvarint(uint64(len(s)))
	w.buf = append(w.buf, s...)
}

// Reader decodes values from a byte slice. It never panics on malformed input.
type Reader struct {
	buf []byte
	off int
}

func NewReader(b []byte) *Reader {
	return &Reader{buf: b}
}

// Remaining returns the number of unread bytes
func (r *Reader) Remaining() int {
	return len(r.buf) - r.off
}

func (r *Reader) Uvarint() (uint64, error) {
	v, n := binary.Uvarint(r.buf[r.off:])
	switch {
	case n == 0:
		return 0, ErrShortBuffer
	case n < 0:
		return 0, ErrOverflow
	}
	r.off += n
	return v, nil
}

func (r *Reader) Varint() (int64, error) {
	v, n := binary.Varint(r.buf[r.off:])
	switch {
	case n == 0:
		return 0, ErrShortBuffer
	case n < 0:
		return 0, ErrOverflow
	}
	r.off += n
	return v, nil
}

func (r *Reader) F32() (float32, error) {
	if r.Remaining() < 4 {
		return 0, ErrShortBuffer
	}
	v := math.Float32frombits(binary.LittleEndian.Uint32(r.buf[r.off:]))
	r.off += 4
	return v, nil
}

func (r *Reader) F64() (float64, error) {
	if r.Remaining() < 8 {
		return 0, ErrShortBuffer
	}
	v := math.Float64frombits(binary.LittleEndian.Uint64(r.buf[r.off:]))
	r.off += 8
	return v, nil
}

func (r *Reader) String() (string, error) {
	n, err := r.Uvarint()
	if err != nil {
		return "", err
	}
	if n > uint64(r.Remaining()) {
		return "", ErrShortBuffer
	}
	b := r.buf[r.off : r.off+int(n)]
	if !utf8.Valid(b) {
		return "", ErrInvalidString
	}
	r.off += int(n)
	return string(b), nil
}
