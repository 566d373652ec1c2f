// Package egs reads and writes the engine's compact song format.
//
// Binary layout:
//
//	"\0EGS" channel* 0xff event*
//	channel = chid u8, trim u8, mode u8, len u24, payload
//
// Event stream, time advanced only by delays:
//
//	00tttttt                     delay t ms (t > 0)
//	01tttttt                     delay (t+1)*64 ms
//	1000cccc nnnnnnnv vvvvvv00   note, no hold (7-bit velocity)
//	1001cccc nnnnnnnv vvvttttt   note, hold (t+1)*64 ms (4-bit velocity)
//	1010cccc nnnnnnnv vvvttttt   note, hold (t+1)*512 ms
//	1011cccc x                   reserved, 1 byte payload
//	1100cccc xx                  reserved, 2 bytes
//	1101cccc xxx                 reserved, 3 bytes
//	1110cccc xxxx                reserved, 4 bytes
//	1111xxxx len u8, payload     reserved, length-prefixed (not 0xff)
//
// 0x00 and 0xff are never valid in the event stream.
package egs

import (
	"github.com/pkg/errors"

	"github.com/cbegin/eggsong-go/internal/bytestream"
	"github.com/cbegin/eggsong-go/internal/model"
)

const Signature = "\x00EGS"

const (
	// TableTerminator ends the channel table.
	TableTerminator = 0xff

	ShortUnit = 64
	LongUnit  = 512
	// MaxShortDur is the longest hold the short note form can carry.
	MaxShortDur = 32 * ShortUnit
	// MaxLongDur is the longest hold any note can carry.
	MaxLongDur = 32 * LongUnit

	longDelayUnit = 64
	maxLongDelay  = 64 * longDelayUnit
)

// Document is the decoded content of one EGS resource.
type Document struct {
	Channels []*model.Channel // table order
	Events   []model.Event    // time order, IDs unset
	Length   int              // ms, including trailing delay
}

// Decode parses a binary EGS resource.
func Decode(src []byte) (*Document, error) {
	r := bytestream.NewReader(src)
	sig, err := r.Bytes(len(Signature))
	if err != nil || string(sig) != Signature {
		return nil, errors.Wrap(bytestream.ErrDecode, "missing EGS signature")
	}
	channels, err := ReadChannelTable(r, true)
	if err != nil {
		return nil, err
	}
	events, length, err := readEvents(r)
	if err != nil {
		return nil, err
	}
	return &Document{Channels: channels, Events: events, Length: length}, nil
}

// ReadChannelTable reads channel records up to a 0xff chid. Without
// requireTerminator the end of input also ends the table.
func ReadChannelTable(r *bytestream.Reader, requireTerminator bool) ([]*model.Channel, error) {
	var channels []*model.Channel
	for {
		if r.EOF() && !requireTerminator {
			return channels, nil
		}
		chid, err := r.U8()
		if err != nil {
			return nil, errors.Wrap(err, "channel table")
		}
		if chid == TableTerminator {
			return channels, nil
		}
		if chid >= model.ChannelCount {
			return nil, errors.Wrapf(bytestream.ErrDecode, "channel id %d at %d", chid, r.Pos()-1)
		}
		trim, err := r.U8()
		if err != nil {
			return nil, err
		}
		mode, err := r.U8()
		if err != nil {
			return nil, err
		}
		n, err := r.U24BE()
		if err != nil {
			return nil, err
		}
		payload, err := r.Bytes(n)
		if err != nil {
			return nil, errors.Wrapf(err, "channel %d payload", chid)
		}
		ch := model.NewChannel(chid, model.ModeFromWire(mode))
		ch.Trim = trim
		ch.SetPayload(payload)
		channels = append(channels, ch)
	}
}

// WriteChannelTable writes one record per non-nil channel and the terminator.
func WriteChannelTable(b *bytestream.Builder, channels []*model.Channel) error {
	for _, ch := range channels {
		if ch == nil {
			continue
		}
		if err := ch.CheckHeader(); err != nil {
			return err
		}
		payload, err := ch.Payload()
		if err != nil {
			return errors.Wrapf(err, "channel %d", ch.ID)
		}
		b.U8(ch.ID)
		b.U8(ch.Trim)
		b.U8(ch.Mode.Wire())
		if err := b.IntBELen(3, func(b *bytestream.Builder) error {
			b.Raw(payload)
			return nil
		}); err != nil {
			return err
		}
	}
	b.U8(TableTerminator)
	return nil
}

// FutureLen returns the payload length of a reserved opcode, or -1 when the
// length is carried in the stream.
func FutureLen(opcode int) int {
	if opcode >= 0xf0 {
		return -1
	}
	return (opcode >> 4) - 0xa
}

func readEvents(r *bytestream.Reader) ([]model.Event, int, error) {
	var events []model.Event
	now := 0
	for !r.EOF() {
		at := r.Pos()
		op, _ := r.U8()
		switch {
		case op == 0x00 || op == 0xff:
			return nil, 0, errors.Wrapf(bytestream.ErrDecode, "reserved opcode %#02x at %d", op, at)
		case op < 0x40:
			now += op
		case op < 0x80:
			now += ((op & 0x3f) + 1) * longDelayUnit
		case op < 0xb0:
			a, err := r.U8()
			if err != nil {
				return nil, 0, err
			}
			b, err := r.U8()
			if err != nil {
				return nil, 0, err
			}
			events = append(events, model.Event{
				Time: now,
				Chid: op & 0x0f,
				Body: unpackNote(op&0xf0, a, b),
			})
		default:
			n := FutureLen(op)
			chid := op & 0x0f
			if n < 0 {
				chid = model.ChidNone
				var err error
				if n, err = r.U8(); err != nil {
					return nil, 0, err
				}
			}
			payload, err := r.Bytes(n)
			if err != nil {
				return nil, 0, errors.Wrapf(err, "opcode %#02x at %d", op, at)
			}
			events = append(events, model.Event{
				Time: now,
				Chid: chid,
				Body: model.Future{Opcode: op, Payload: payload},
			})
		}
	}
	return events, now, nil
}

func unpackNote(class, a, b int) model.Note {
	n := model.Note{NoteID: a >> 1}
	if class == 0x80 {
		n.Velocity = (a&1)<<6 | b>>2
		return n
	}
	v4 := (a&1)<<3 | b>>5
	n.Velocity = v4<<3 | v4>>1
	t := b & 0x1f
	if class == 0x90 {
		n.Dur = (t + 1) * ShortUnit
	} else {
		n.Dur = (t + 1) * LongUnit
	}
	return n
}

// Encode writes doc in the binary format. Events must be time-sorted; MIDI
// shaped events have no binary form and are skipped.
func Encode(doc *Document) ([]byte, error) {
	b := bytestream.NewBuilder(64 + 3*len(doc.Events))
	b.RawString(Signature)
	if err := WriteChannelTable(b, doc.Channels); err != nil {
		return nil, err
	}
	now := 0
	for _, ev := range doc.Events {
		if ev.Body == nil || ev.Body.Family() != model.FamilyEGS {
			continue
		}
		if ev.Time < now {
			return nil, errors.Errorf("event %d at %d ms out of order (cursor %d ms)", ev.ID, ev.Time, now)
		}
		writeDelay(b, ev.Time-now)
		now = ev.Time
		switch body := ev.Body.(type) {
		case model.Note:
			if err := writeNote(b, ev.Chid, body); err != nil {
				return nil, err
			}
		case model.Future:
			op, err := FutureOpcode(ev.Chid, body.Opcode)
			if err != nil {
				return nil, err
			}
			body.Opcode = op
			if err := writeFuture(b, body); err != nil {
				return nil, err
			}
		}
	}
	if doc.Length > now {
		writeDelay(b, doc.Length-now)
	}
	return b.Finish(), nil
}

func writeDelay(b *bytestream.Builder, ms int) {
	for ms >= maxLongDelay {
		b.U8(0x7f)
		ms -= maxLongDelay
	}
	if ms >= longDelayUnit {
		b.U8(0x40 | (ms/longDelayUnit - 1))
		ms %= longDelayUnit
	}
	if ms > 0 {
		b.U8(ms)
	}
}

// NoteClass returns the opcode class a hold time encodes to.
func NoteClass(dur int) int {
	switch {
	case dur < ShortUnit:
		return 0x80
	case dur <= MaxShortDur:
		return 0x90
	}
	return 0xa0
}

func writeNote(b *bytestream.Builder, chid int, n model.Note) error {
	if chid < 0 || chid >= model.ChannelCount {
		return errors.Wrapf(bytestream.ErrEncodeOverflow, "note on channel %d", chid)
	}
	if n.NoteID < 0 || n.NoteID > 0x7f || n.Velocity < 0 || n.Velocity > 0x7f {
		return errors.Wrapf(bytestream.ErrEncodeOverflow, "note %d velocity %d", n.NoteID, n.Velocity)
	}
	class := NoteClass(n.Dur)
	b.U8(class | chid)
	if class == 0x80 {
		b.U8(n.NoteID<<1 | n.Velocity>>6)
		b.U8((n.Velocity & 0x3f) << 2)
		return nil
	}
	var t int
	if class == 0x90 {
		t = n.Dur/ShortUnit - 1
	} else {
		dur := n.Dur
		if dur > MaxLongDur {
			dur = MaxLongDur
		}
		t = dur/LongUnit - 1
	}
	v4 := n.Velocity >> 3
	b.U8(n.NoteID<<1 | v4>>3)
	b.U8((v4&7)<<5 | t)
	return nil
}

// FutureOpcode returns opcode with its channel nibble taken from chid.
// Length-prefixed opcodes (0xf0 and up) and ChidNone leave it unchanged.
func FutureOpcode(chid, opcode int) (int, error) {
	if opcode < 0xb0 || opcode >= 0xf0 || chid == model.ChidNone {
		return opcode, nil
	}
	if chid < 0 || chid >= model.ChannelCount {
		return 0, errors.Wrapf(bytestream.ErrEncodeOverflow, "opcode %#02x on channel %d", opcode, chid)
	}
	return opcode&0xf0 | chid, nil
}

func writeFuture(b *bytestream.Builder, f model.Future) error {
	if f.Opcode < 0xb0 || f.Opcode > 0xfe {
		return errors.Wrapf(bytestream.ErrEncodeOverflow, "opcode %#x is not a reserved event", f.Opcode)
	}
	b.U8(f.Opcode)
	if n := FutureLen(f.Opcode); n >= 0 {
		if len(f.Payload) != n {
			return errors.Wrapf(bytestream.ErrEncodeOverflow, "opcode %#02x takes %d bytes, have %d", f.Opcode, n, len(f.Payload))
		}
		b.Raw(f.Payload)
		return nil
	}
	payload := f.Payload
	return b.IntBELen(1, func(b *bytestream.Builder) error {
		b.Raw(payload)
		return nil
	})
}
