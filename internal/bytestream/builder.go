package bytestream

import "github.com/pkg/errors"

var (
	// ErrDecode marks malformed or truncated input. Decoding never recovers from it.
	ErrDecode = errors.New("decode error")
	// ErrEncodeOverflow marks a value or count that does not fit its field.
	ErrEncodeOverflow = errors.New("encode overflow")
	// ErrOutOfRange marks a splice or length-prefix request outside the buffer.
	ErrOutOfRange = errors.New("out of range")
)

// MaxVLQ is the first value a 4-byte VLQ cannot hold.
const MaxVLQ = 0x10000000

// Builder is a growable output buffer. Fixed-width writes truncate to their
// width, so negative values come out two's-complement.
type Builder struct {
	buf []byte
}

func NewBuilder(sizeHint int) *Builder {
	if sizeHint < 0 {
		sizeHint = 0
	}
	return &Builder{buf: make([]byte, 0, sizeHint)}
}

func (b *Builder) Len() int { return len(b.buf) }

func (b *Builder) U8(v int) { b.buf = append(b.buf, byte(v)) }

func (b *Builder) U16BE(v int) { b.buf = append(b.buf, byte(v>>8), byte(v)) }

func (b *Builder) U24BE(v int) { b.buf = append(b.buf, byte(v>>16), byte(v>>8), byte(v)) }

func (b *Builder) U32BE(v int) {
	b.buf = append(b.buf, byte(v>>24), byte(v>>16), byte(v>>8), byte(v))
}

func (b *Builder) U16LE(v int) { b.buf = append(b.buf, byte(v), byte(v>>8)) }

func (b *Builder) U24LE(v int) { b.buf = append(b.buf, byte(v), byte(v>>8), byte(v>>16)) }

func (b *Builder) U32LE(v int) {
	b.buf = append(b.buf, byte(v), byte(v>>8), byte(v>>16), byte(v>>24))
}

// VLQ appends v as a MIDI variable length quantity.
func (b *Builder) VLQ(v int) error {
	if v < 0 || v >= MaxVLQ {
		return errors.Wrapf(ErrEncodeOverflow, "vlq value %d", v)
	}
	b.buf = appendVLQ(b.buf, v)
	return nil
}

func appendVLQ(dst []byte, v int) []byte {
	if v >= 0x200000 {
		dst = append(dst, byte(0x80|(v>>21)))
	}
	if v >= 0x4000 {
		dst = append(dst, byte(0x80|((v>>14)&0x7f)))
	}
	if v >= 0x80 {
		dst = append(dst, byte(0x80|((v>>7)&0x7f)))
	}
	return append(dst, byte(v&0x7f))
}

func (b *Builder) Raw(data []byte) { b.buf = append(b.buf, data...) }

// RawString appends s as UTF-8.
func (b *Builder) RawString(s string) { b.buf = append(b.buf, s...) }

// Insert replaces removeCount bytes at pos with data. data may alias the
// builder's own storage.
func (b *Builder) Insert(pos, removeCount int, data []byte) error {
	if pos < 0 || pos > len(b.buf) {
		return errors.Wrapf(ErrOutOfRange, "insert position %d of %d", pos, len(b.buf))
	}
	if removeCount < 0 || pos+removeCount > len(b.buf) {
		return errors.Wrapf(ErrOutOfRange, "insert removes %d at %d of %d", removeCount, pos, len(b.buf))
	}
	data = append([]byte(nil), data...)
	tailStart := pos + removeCount
	tailLen := len(b.buf) - tailStart
	delta := len(data) - removeCount
	if delta > 0 {
		b.buf = append(b.buf, make([]byte, delta)...)
	}
	copy(b.buf[pos+len(data):], b.buf[tailStart:tailStart+tailLen])
	copy(b.buf[pos:], data)
	if delta < 0 {
		b.buf = b.buf[:len(b.buf)+delta]
	}
	return nil
}

// IntBELen reserves width bytes, runs body, then backpatches the reserved
// bytes with the body length, big-endian.
func (b *Builder) IntBELen(width int, body func(*Builder) error) error {
	return b.intLen(width, true, body)
}

// IntLELen is IntBELen with a little-endian prefix.
func (b *Builder) IntLELen(width int, body func(*Builder) error) error {
	return b.intLen(width, false, body)
}

func (b *Builder) intLen(width int, bigEndian bool, body func(*Builder) error) error {
	if width < 1 || width > 4 {
		return errors.Wrapf(ErrOutOfRange, "length prefix width %d", width)
	}
	start := len(b.buf)
	b.buf = append(b.buf, make([]byte, width)...)
	if err := body(b); err != nil {
		return err
	}
	n := len(b.buf) - start - width
	if n >= 1<<(8*uint(width)) {
		return errors.Wrapf(ErrEncodeOverflow, "block length %d exceeds %d-byte prefix", n, width)
	}
	for i := 0; i < width; i++ {
		shift := uint(8 * i)
		if bigEndian {
			shift = uint(8 * (width - 1 - i))
		}
		b.buf[start+i] = byte(n >> shift)
	}
	return nil
}

// VLQLen runs body and inserts its length as a VLQ in front of it.
func (b *Builder) VLQLen(body func(*Builder) error) error {
	start := len(b.buf)
	if err := body(b); err != nil {
		return err
	}
	n := len(b.buf) - start
	if n >= MaxVLQ {
		return errors.Wrapf(ErrEncodeOverflow, "block length %d exceeds vlq range", n)
	}
	return b.Insert(start, 0, appendVLQ(nil, n))
}

// Finish returns a copy of the written bytes with no spare capacity.
func (b *Builder) Finish() []byte {
	out := make([]byte, len(b.buf))
	copy(out, b.buf)
	return out
}
