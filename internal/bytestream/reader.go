package bytestream

import "github.com/pkg/errors"

// Reader is a bounds-checked cursor over an immutable input buffer. Every
// read either advances and returns a value or fails with ErrDecode.
type Reader struct {
	src []byte
	pos int
}

func NewReader(src []byte) *Reader { return &Reader{src: src} }

func (r *Reader) Pos() int       { return r.pos }
func (r *Reader) Remaining() int { return len(r.src) - r.pos }
func (r *Reader) EOF() bool      { return r.pos >= len(r.src) }

func (r *Reader) need(n int, what string) error {
	if n < 0 || r.pos+n > len(r.src) {
		return errors.Wrapf(ErrDecode, "truncated %s at %d (need %d, have %d)", what, r.pos, n, len(r.src)-r.pos)
	}
	return nil
}

// Peek returns the next byte without consuming it.
func (r *Reader) Peek() (int, error) {
	if err := r.need(1, "byte"); err != nil {
		return 0, err
	}
	return int(r.src[r.pos]), nil
}

func (r *Reader) U8() (int, error) {
	if err := r.need(1, "byte"); err != nil {
		return 0, err
	}
	v := r.src[r.pos]
	r.pos++
	return int(v), nil
}

func (r *Reader) U16BE() (int, error) {
	if err := r.need(2, "u16"); err != nil {
		return 0, err
	}
	v := int(r.src[r.pos])<<8 | int(r.src[r.pos+1])
	r.pos += 2
	return v, nil
}

func (r *Reader) U24BE() (int, error) {
	if err := r.need(3, "u24"); err != nil {
		return 0, err
	}
	v := int(r.src[r.pos])<<16 | int(r.src[r.pos+1])<<8 | int(r.src[r.pos+2])
	r.pos += 3
	return v, nil
}

func (r *Reader) U32BE() (int, error) {
	if err := r.need(4, "u32"); err != nil {
		return 0, err
	}
	v := int(r.src[r.pos])<<24 | int(r.src[r.pos+1])<<16 | int(r.src[r.pos+2])<<8 | int(r.src[r.pos+3])
	r.pos += 4
	return v, nil
}

// VLQ reads a variable length quantity of at most four bytes.
func (r *Reader) VLQ() (int, error) {
	start := r.pos
	v := 0
	for i := 0; i < 4; i++ {
		if err := r.need(1, "vlq"); err != nil {
			return 0, err
		}
		b := r.src[r.pos]
		r.pos++
		v = v<<7 | int(b&0x7f)
		if b&0x80 == 0 {
			return v, nil
		}
	}
	return 0, errors.Wrapf(ErrDecode, "vlq longer than 4 bytes at %d", start)
}

// Bytes returns a copy of the next n bytes.
func (r *Reader) Bytes(n int) ([]byte, error) {
	if err := r.need(n, "block"); err != nil {
		return nil, err
	}
	out := make([]byte, n)
	copy(out, r.src[r.pos:r.pos+n])
	r.pos += n
	return out, nil
}

func (r *Reader) Skip(n int) error {
	if err := r.need(n, "block"); err != nil {
		return err
	}
	r.pos += n
	return nil
}
