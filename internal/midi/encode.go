package midi

import (
	"github.com/pkg/errors"

	"github.com/cbegin/eggsong-go/internal/bytestream"
	"github.com/cbegin/eggsong-go/internal/egs"
	"github.com/cbegin/eggsong-go/internal/model"
)

// prefixClear is the channel prefix written to detach a global meta from a
// preceding channel prefix. Readers treat any value past 15 as no channel.
const prefixClear = 0x7f

type trackEncoder struct {
	b             *bytestream.Builder
	tick          int
	runningStatus int
	channelPrefix int
}

// Encode writes doc as a Standard MIDI File: format 0 when every event is
// on track 0, format 1 otherwise. Notes are expanded to NoteOn/NoteOff pairs
// and Future events are dropped.
func Encode(doc *Document) ([]byte, error) {
	division := doc.Division
	if division == 0 {
		division = DefaultDivision
	}
	if division < 0 || division > maxDivision {
		return nil, errors.Wrapf(bytestream.ErrEncodeOverflow, "division %d", division)
	}
	scale := Scale{Division: division, Tempo: FirstTempo(doc.Events)}

	events := ExpandNotes(doc.Events)
	ntracks := 1
	for _, ev := range events {
		if ev.Track >= ntracks {
			ntracks = ev.Track + 1
		}
	}
	if ntracks > 0xffff {
		return nil, errors.Wrapf(bytestream.ErrEncodeOverflow, "%d tracks", ntracks)
	}
	tracks := make([][]model.Event, ntracks)
	for _, ev := range events {
		t := ev.Track
		if t < 0 {
			t = 0
		}
		tracks[t] = append(tracks[t], ev)
	}

	format := 1
	if ntracks == 1 {
		format = 0
	}
	endTick := scale.Ticks(doc.Length)

	b := bytestream.NewBuilder(32 + 4*len(events))
	b.RawString("MThd")
	b.U32BE(6)
	b.U16BE(format)
	b.U16BE(ntracks)
	b.U16BE(division)
	for i, evs := range tracks {
		b.RawString("MTrk")
		err := b.IntBELen(4, func(b *bytestream.Builder) error {
			e := &trackEncoder{b: b, channelPrefix: model.ChidNone}
			if i == 0 {
				if err := e.channelHeader(doc.Channels); err != nil {
					return err
				}
			}
			for _, ev := range evs {
				if err := e.event(scale.Ticks(ev.Time), ev); err != nil {
					return errors.Wrapf(err, "event %d at %d ms", ev.ID, ev.Time)
				}
			}
			end := e.tick
			if endTick > end {
				end = endTick
			}
			if err := e.delta(end); err != nil {
				return err
			}
			b.Raw([]byte{0xff, model.MetaEndOfTrack, 0x00})
			return nil
		})
		if err != nil {
			return nil, errors.Wrapf(err, "track %d", i)
		}
	}
	return b.Finish(), nil
}

// channelHeader writes the channel table meta followed by the Name, Program
// and Volume events other MIDI tools understand.
func (e *trackEncoder) channelHeader(channels []*model.Channel) error {
	table := bytestream.NewBuilder(64)
	if err := egs.WriteChannelTable(table, channels); err != nil {
		return err
	}
	if err := e.meta(0, model.ChidNone, model.MetaEggHeader, table.Finish()); err != nil {
		return err
	}
	for _, ch := range channels {
		if ch == nil {
			continue
		}
		if ch.Name != "" {
			if err := e.meta(0, ch.ID, model.MetaInstrument, []byte(ch.Name)); err != nil {
				return err
			}
		}
		if ch.PID != model.NoProgram {
			if err := e.channel(0, 0xc0|ch.ID, ch.PID); err != nil {
				return errors.Wrapf(err, "channel %d program", ch.ID)
			}
		}
		if ch.Trim != model.TrimUnity {
			if err := e.channel(0, 0xb0|ch.ID, model.ControlVolume, ch.Trim>>1); err != nil {
				return errors.Wrapf(err, "channel %d volume", ch.ID)
			}
		}
	}
	return nil
}

func (e *trackEncoder) event(tick int, ev model.Event) error {
	if tick < e.tick {
		return errors.Errorf("tick %d before %d", tick, e.tick)
	}
	if body, ok := ev.Body.(model.Meta); ok {
		return e.meta(tick, ev.Chid, body.Type, body.Payload)
	}
	if body, ok := ev.Body.(model.Sysex); ok {
		return e.sysex(tick, body)
	}
	if ev.Chid < 0 || ev.Chid >= model.ChannelCount {
		return errors.Wrapf(bytestream.ErrEncodeOverflow, "channel %d", ev.Chid)
	}
	c := ev.Chid
	switch body := ev.Body.(type) {
	case model.NoteOn:
		return e.channel(tick, 0x90|c, body.NoteID, body.Velocity)
	case model.NoteOff:
		return e.channel(tick, 0x80|c, body.NoteID, body.Velocity)
	case model.NoteAdjust:
		return e.channel(tick, 0xa0|c, body.NoteID, body.Velocity)
	case model.Control:
		return e.channel(tick, 0xb0|c, body.Key, body.Value)
	case model.Program:
		return e.channel(tick, 0xc0|c, body.PID)
	case model.Pressure:
		return e.channel(tick, 0xd0|c, body.Velocity)
	case model.Wheel:
		if body.Value < 0 || body.Value > 0x3fff {
			return errors.Wrapf(bytestream.ErrEncodeOverflow, "wheel %d", body.Value)
		}
		return e.channel(tick, 0xe0|c, body.Value&0x7f, body.Value>>7)
	}
	return nil
}

func (e *trackEncoder) delta(tick int) error {
	if err := e.b.VLQ(tick - e.tick); err != nil {
		return err
	}
	e.tick = tick
	return nil
}

func (e *trackEncoder) channel(tick, status int, data ...int) error {
	for _, v := range data {
		if v < 0 || v > 0x7f {
			return errors.Wrapf(bytestream.ErrEncodeOverflow, "data byte %d", v)
		}
	}
	if err := e.delta(tick); err != nil {
		return err
	}
	if status != e.runningStatus {
		e.b.U8(status)
		e.runningStatus = status
	}
	for _, v := range data {
		e.b.U8(v)
	}
	e.channelPrefix = model.ChidNone
	return nil
}

func (e *trackEncoder) meta(tick, chid, typ int, payload []byte) error {
	if chid < 0 || chid >= model.ChannelCount {
		chid = model.ChidNone
	}
	if typ < 0 || typ > 0x7f {
		return errors.Wrapf(bytestream.ErrEncodeOverflow, "meta type %d", typ)
	}
	if chid != e.channelPrefix {
		prefix := chid
		if chid == model.ChidNone {
			prefix = prefixClear
		}
		if err := e.delta(tick); err != nil {
			return err
		}
		e.b.U8(0xff)
		e.b.U8(model.MetaChannelPrefix)
		e.b.U8(1)
		e.b.U8(prefix)
		e.channelPrefix = chid
	}
	if err := e.delta(tick); err != nil {
		return err
	}
	e.b.U8(0xff)
	e.b.U8(typ)
	e.runningStatus = 0
	return e.b.VLQLen(func(b *bytestream.Builder) error {
		b.Raw(payload)
		return nil
	})
}

func (e *trackEncoder) sysex(tick int, s model.Sysex) error {
	if s.Status != 0xf0 && s.Status != 0xf7 {
		return errors.Wrapf(bytestream.ErrEncodeOverflow, "sysex status %#x", s.Status)
	}
	if err := e.delta(tick); err != nil {
		return err
	}
	e.b.U8(s.Status)
	e.runningStatus = 0
	e.channelPrefix = model.ChidNone
	return e.b.VLQLen(func(b *bytestream.Builder) error {
		b.Raw(s.Payload)
		return nil
	})
}
