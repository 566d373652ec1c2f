// Package envelope encodes the compact level/pitch/range curves stored
// inside channel configuration blobs.
//
// Layout:
//
//	flags u8 [initLo u16] [initHi u16] [sustainIndex u8] count u8 point*
//	point = delta value [deltaHi valueHi]
//
// delta is one byte below 0x80, otherwise two bytes with the high bit of the
// first set (14 bits of payload). The Hi fields are present only when
// FlagDual is set; initHi only when FlagInitial is set as well.
package envelope

import (
	"github.com/pkg/errors"

	"github.com/cbegin/eggsong-go/internal/bytestream"
)

const (
	FlagInitial = 0x01
	FlagDual    = 0x02
	FlagSustain = 0x04
)

const (
	MaxPoints = 255
	MaxLeg    = 0x3fff
)

type Point struct {
	Time  int // absolute ms
	Value int // 0..0xffff
}

// Envelope holds two parallel lines. Lo[0] and Hi[0] are the time-zero
// points carrying the initial values; they are not counted on the wire.
// When FlagDual is clear, Hi mirrors Lo.
type Envelope struct {
	Flags        int
	SustainIndex int // index into Lo/Hi, -1 when there is no sustain point
	Lo           []Point
	Hi           []Point
}

func Default() Envelope {
	return Envelope{
		SustainIndex: -1,
		Lo:           []Point{{}},
		Hi:           []Point{{}},
	}
}

func (e Envelope) Dual() bool { return e.Flags&FlagDual != 0 }

// Duration is the time of the last point on the longer line.
func (e Envelope) Duration() int {
	d := 0
	if n := len(e.Lo); n > 0 {
		d = e.Lo[n-1].Time
	}
	if n := len(e.Hi); n > 0 && e.Hi[n-1].Time > d {
		d = e.Hi[n-1].Time
	}
	return d
}

// Decode reads one envelope from the front of src and reports how many
// bytes it occupied.
func Decode(src []byte) (Envelope, int, error) {
	r := bytestream.NewReader(src)
	env, err := Read(r)
	if err != nil {
		return Envelope{}, 0, err
	}
	return env, r.Pos(), nil
}

// Read decodes one envelope at the reader's cursor.
func Read(r *bytestream.Reader) (Envelope, error) {
	flags, err := r.U8()
	if err != nil {
		return Envelope{}, err
	}
	dual := flags&FlagDual != 0
	initLo, initHi := 0, 0
	if flags&FlagInitial != 0 {
		if initLo, err = r.U16BE(); err != nil {
			return Envelope{}, err
		}
		initHi = initLo
		if dual {
			if initHi, err = r.U16BE(); err != nil {
				return Envelope{}, err
			}
		}
	}
	sustain := -1
	if flags&FlagSustain != 0 {
		s, err := r.U8()
		if err != nil {
			return Envelope{}, err
		}
		sustain = s + 1
	}
	count, err := r.U8()
	if err != nil {
		return Envelope{}, err
	}
	if sustain > count {
		return Envelope{}, errors.Wrapf(bytestream.ErrDecode, "envelope sustain index %d beyond %d points", sustain-1, count)
	}
	env := Envelope{
		Flags:        flags,
		SustainIndex: sustain,
		Lo:           make([]Point, 1, count+1),
		Hi:           make([]Point, 1, count+1),
	}
	env.Lo[0] = Point{Value: initLo}
	env.Hi[0] = Point{Value: initHi}
	tlo, thi := 0, 0
	for i := 0; i < count; i++ {
		d, err := readDelta(r)
		if err != nil {
			return Envelope{}, err
		}
		v, err := r.U16BE()
		if err != nil {
			return Envelope{}, err
		}
		tlo += d
		env.Lo = append(env.Lo, Point{Time: tlo, Value: v})
		if !dual {
			thi = tlo
			env.Hi = append(env.Hi, Point{Time: thi, Value: v})
			continue
		}
		if d, err = readDelta(r); err != nil {
			return Envelope{}, err
		}
		if v, err = r.U16BE(); err != nil {
			return Envelope{}, err
		}
		thi += d
		env.Hi = append(env.Hi, Point{Time: thi, Value: v})
	}
	return env, nil
}

func readDelta(r *bytestream.Reader) (int, error) {
	a, err := r.U8()
	if err != nil {
		return 0, err
	}
	if a&0x80 == 0 {
		return a, nil
	}
	b, err := r.U8()
	if err != nil {
		return 0, err
	}
	if b&0x80 != 0 {
		return 0, errors.Wrapf(bytestream.ErrDecode, "envelope delta longer than 2 bytes at %d", r.Pos()-2)
	}
	return (a&0x7f)<<7 | b, nil
}

// Encode returns the wire form of e.
func Encode(e Envelope) ([]byte, error) {
	b := bytestream.NewBuilder(8 + 5*len(e.Lo))
	if err := Write(b, e); err != nil {
		return nil, err
	}
	return b.Finish(), nil
}

// Write appends the wire form of e. FlagInitial, FlagDual and FlagSustain
// are raised when the envelope needs them; nothing is dropped silently.
func Write(b *bytestream.Builder, e Envelope) error {
	lo, hi := e.Lo, e.Hi
	if len(lo) == 0 {
		lo = []Point{{}}
	}
	if len(hi) == 0 {
		hi = lo
	}
	if len(lo) != len(hi) {
		return errors.Wrapf(bytestream.ErrEncodeOverflow, "envelope lines differ in length: %d vs %d", len(lo), len(hi))
	}
	count := len(lo) - 1
	if count > MaxPoints {
		return errors.Wrapf(bytestream.ErrEncodeOverflow, "envelope has %d points, limit %d", count, MaxPoints)
	}
	flags := e.Flags
	for i := range lo {
		if lo[i] != hi[i] {
			flags |= FlagDual
			break
		}
	}
	if lo[0].Value != 0 || hi[0].Value != 0 {
		flags |= FlagInitial
	}
	if e.SustainIndex >= 1 {
		flags |= FlagSustain
	}
	dual := flags&FlagDual != 0
	if flags&FlagSustain != 0 && (e.SustainIndex < 1 || e.SustainIndex > count) {
		return errors.Wrapf(bytestream.ErrEncodeOverflow, "envelope sustain index %d outside 1..%d", e.SustainIndex, count)
	}

	b.U8(flags)
	if flags&FlagInitial != 0 {
		if err := checkValue(lo[0].Value); err != nil {
			return err
		}
		b.U16BE(lo[0].Value)
		if dual {
			if err := checkValue(hi[0].Value); err != nil {
				return err
			}
			b.U16BE(hi[0].Value)
		}
	}
	if flags&FlagSustain != 0 {
		b.U8(e.SustainIndex - 1)
	}
	b.U8(count)
	for i := 1; i <= count; i++ {
		if err := writePoint(b, lo[i-1], lo[i]); err != nil {
			return err
		}
		if dual {
			if err := writePoint(b, hi[i-1], hi[i]); err != nil {
				return err
			}
		}
	}
	return nil
}

func writePoint(b *bytestream.Builder, prev, p Point) error {
	d := p.Time - prev.Time
	if d < 0 {
		return errors.Wrapf(bytestream.ErrEncodeOverflow, "envelope time goes backward at %d ms", p.Time)
	}
	if d > MaxLeg {
		return errors.Wrapf(bytestream.ErrEncodeOverflow, "envelope leg of %d ms exceeds %d", d, MaxLeg)
	}
	if err := checkValue(p.Value); err != nil {
		return err
	}
	if d >= 0x80 {
		b.U8(0x80 | d>>7)
		b.U8(d & 0x7f)
	} else {
		b.U8(d)
	}
	b.U16BE(p.Value)
	return nil
}

func checkValue(v int) error {
	if v < 0 || v > 0xffff {
		return errors.Wrapf(bytestream.ErrEncodeOverflow, "envelope value %d outside u16", v)
	}
	return nil
}
