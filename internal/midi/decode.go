package midi

import (
	"sort"

	"github.com/pkg/errors"

	"github.com/cbegin/eggsong-go/internal/bytestream"
	"github.com/cbegin/eggsong-go/internal/egs"
	"github.com/cbegin/eggsong-go/internal/model"
)

// trackDecoder holds the state that carries from one event to the next
// within a single MTrk chunk.
type trackDecoder struct {
	track         int
	tick          int
	runningStatus int
	channelPrefix int
}

// Decode parses a Standard MIDI File.
func Decode(src []byte) (*Document, error) {
	r := bytestream.NewReader(src)
	doc := &Document{Division: DefaultDivision}
	var (
		events  []model.Event
		ntracks int
		endTick int
	)
	for first := true; !r.EOF(); first = false {
		at := r.Pos()
		id, err := r.Bytes(4)
		if err != nil {
			return nil, errors.Wrap(err, "chunk id")
		}
		n, err := r.U32BE()
		if err != nil {
			return nil, errors.Wrapf(err, "%q chunk length", id)
		}
		body, err := r.Bytes(n)
		if err != nil {
			return nil, errors.Wrapf(err, "%q chunk", id)
		}
		if first && string(id) != "MThd" {
			return nil, errors.Wrapf(bytestream.ErrDecode, "missing MThd at %d", at)
		}
		switch string(id) {
		case "MThd":
			if !first {
				continue
			}
			if err := doc.readHeader(body); err != nil {
				return nil, err
			}
		case "MTrk":
			d := &trackDecoder{track: ntracks, channelPrefix: model.ChidNone}
			evs, err := d.decode(body)
			if err != nil {
				return nil, errors.Wrapf(err, "track %d", ntracks)
			}
			events = append(events, evs...)
			if d.tick > endTick {
				endTick = d.tick
			}
			ntracks++
		}
	}
	if r.Pos() == 0 {
		return nil, errors.Wrap(bytestream.ErrDecode, "empty MIDI file")
	}

	sort.SliceStable(events, func(i, j int) bool { return events[i].Time < events[j].Time })

	header, haveHeader, err := takeChannelHeader(&events)
	if err != nil {
		return nil, err
	}

	scale := Scale{Division: doc.Division, Tempo: FirstTempo(events)}
	for i := range events {
		events[i].Time = scale.MS(events[i].Time)
	}
	doc.Length = scale.MS(endTick)

	doc.Channels, doc.Events = foldChannels(events, header, haveHeader)
	return doc, nil
}

func (doc *Document) readHeader(body []byte) error {
	r := bytestream.NewReader(body)
	format, err := r.U16BE()
	if err != nil {
		return errors.Wrap(err, "MThd")
	}
	if _, err := r.U16BE(); err != nil {
		return errors.Wrap(err, "MThd")
	}
	division, err := r.U16BE()
	if err != nil {
		return errors.Wrap(err, "MThd")
	}
	if division&0x8000 != 0 {
		return errors.Wrapf(bytestream.ErrDecode, "SMPTE division %#04x", division)
	}
	if division == 0 {
		return errors.Wrap(bytestream.ErrDecode, "zero division")
	}
	doc.Format = format
	doc.Division = division
	return nil
}

func (d *trackDecoder) decode(body []byte) ([]model.Event, error) {
	r := bytestream.NewReader(body)
	var events []model.Event
	for !r.EOF() {
		delta, err := r.VLQ()
		if err != nil {
			return nil, err
		}
		d.tick += delta
		ev, end, err := d.next(r)
		if err != nil {
			return nil, err
		}
		if end {
			break
		}
		if ev.Body != nil {
			events = append(events, ev)
		}
	}
	return events, nil
}

// next reads one event. Channel prefix metas update the decoder and yield
// no event; end reports End-of-Track.
func (d *trackDecoder) next(r *bytestream.Reader) (ev model.Event, end bool, err error) {
	at := r.Pos()
	status, err := r.Peek()
	if err != nil {
		return ev, false, err
	}
	ev = model.Event{Time: d.tick, Track: d.track, Chid: model.ChidNone}
	switch {
	case status == 0xff:
		r.U8()
		typ, err := r.U8()
		if err != nil {
			return ev, false, err
		}
		data, err := readBlock(r)
		if err != nil {
			return ev, false, err
		}
		d.runningStatus = 0
		switch typ {
		case model.MetaChannelPrefix:
			d.channelPrefix = model.ChidNone
			if len(data) == 1 && int(data[0]) < model.ChannelCount {
				d.channelPrefix = int(data[0])
			}
			return ev, false, nil
		case model.MetaEndOfTrack:
			return ev, true, nil
		}
		ev.Chid = d.channelPrefix
		ev.Body = model.Meta{Type: typ, Payload: data}
		return ev, false, nil
	case status == 0xf0 || status == 0xf7:
		r.U8()
		data, err := readBlock(r)
		if err != nil {
			return ev, false, err
		}
		d.runningStatus = 0
		d.channelPrefix = model.ChidNone
		ev.Body = model.Sysex{Status: status, Payload: data}
		return ev, false, nil
	case status > 0xf0:
		return ev, false, errors.Wrapf(bytestream.ErrDecode, "unsupported status %#02x at %d", status, at)
	case status >= 0x80:
		r.U8()
		d.runningStatus = status
	case d.runningStatus == 0:
		return ev, false, errors.Wrapf(bytestream.ErrDecode, "data byte %#02x without running status at %d", status, at)
	default:
		status = d.runningStatus
	}
	d.channelPrefix = model.ChidNone

	var data [2]int
	for i := 0; i < dataLen(status); i++ {
		if data[i], err = r.U8(); err != nil {
			return ev, false, err
		}
		if data[i] >= 0x80 {
			return ev, false, errors.Wrapf(bytestream.ErrDecode, "data byte %#02x at %d", data[i], r.Pos()-1)
		}
	}
	ev.Chid = status & 0x0f
	ev.Body = channelBody(status, data[0], data[1])
	return ev, false, nil
}

func readBlock(r *bytestream.Reader) ([]byte, error) {
	n, err := r.VLQ()
	if err != nil {
		return nil, err
	}
	return r.Bytes(n)
}

func channelBody(status, a, b int) model.Body {
	switch status & 0xf0 {
	case 0x80:
		return model.NoteOff{NoteID: a, Velocity: b}
	case 0x90:
		if b == 0 {
			return model.NoteOff{NoteID: a, Velocity: model.OffVelocity}
		}
		return model.NoteOn{NoteID: a, Velocity: b}
	case 0xa0:
		return model.NoteAdjust{NoteID: a, Velocity: b}
	case 0xb0:
		return model.Control{Key: a, Value: b}
	case 0xc0:
		return model.Program{PID: a}
	case 0xd0:
		return model.Pressure{Velocity: a}
	}
	return model.Wheel{Value: a | b<<7}
}

// takeChannelHeader removes the first channel-table meta at tick zero from
// events and parses it.
func takeChannelHeader(events *[]model.Event) ([]*model.Channel, bool, error) {
	evs := *events
	for i, ev := range evs {
		if ev.Time > 0 {
			break
		}
		m, ok := ev.Body.(model.Meta)
		if !ok || m.Type != model.MetaEggHeader {
			continue
		}
		channels, err := egs.ReadChannelTable(bytestream.NewReader(m.Payload), false)
		if err != nil {
			return nil, false, errors.Wrap(err, "channel header meta")
		}
		*events = append(evs[:i:i], evs[i+1:]...)
		return channels, true, nil
	}
	return nil, false, nil
}

const (
	foldProgram = iota
	foldVolume
	foldName
)

type foldKey struct {
	chid int
	kind int
}

// foldChannels builds the channel set and removes the time-zero events that
// configure it. With a channel header the header wins: a Volume is removed
// only when it matches the header trim, and a Program or Name is removed
// when it matches the header or fills in what the table cannot carry (names,
// and program ids of channels without one). Without a header, channels are
// made in GM mode for every channel the file uses and the first Program,
// Volume and Name event of each at time zero sets them up.
func foldChannels(events []model.Event, header []*model.Channel, haveHeader bool) ([]*model.Channel, []model.Event) {
	var chans [model.ChannelCount]*model.Channel
	for _, ch := range header {
		chans[ch.ID] = ch
	}
	seen := map[foldKey]bool{}
	kept := make([]model.Event, 0, len(events))
	for _, ev := range events {
		if ev.Chid < 0 || ev.Chid >= model.ChannelCount {
			kept = append(kept, ev)
			continue
		}
		if !haveHeader && chans[ev.Chid] == nil {
			chans[ev.Chid] = model.NewChannel(ev.Chid, model.ModeGM)
		}
		if ev.Time == 0 && fold(chans[ev.Chid], ev.Body, haveHeader, seen) {
			continue
		}
		kept = append(kept, ev)
	}
	var channels []*model.Channel
	for _, ch := range chans {
		if ch != nil {
			channels = append(channels, ch)
		}
	}
	return channels, kept
}

func fold(ch *model.Channel, body model.Body, check bool, seen map[foldKey]bool) bool {
	if ch == nil {
		return false
	}
	kind := -1
	switch b := body.(type) {
	case model.Program:
		if check && ch.PID != model.NoProgram && b.PID != ch.PID {
			return false
		}
		kind = foldProgram
	case model.Control:
		if b.Key != model.ControlVolume {
			return false
		}
		if check && (ch.Trim == model.TrimUnity || b.Value != ch.Trim>>1) {
			return false
		}
		kind = foldVolume
	case model.Meta:
		if b.Type != model.MetaInstrument {
			return false
		}
		if check && ch.Name != "" && string(b.Payload) != ch.Name {
			return false
		}
		kind = foldName
	default:
		return false
	}
	key := foldKey{ch.ID, kind}
	if seen[key] {
		return false
	}
	seen[key] = true
	switch b := body.(type) {
	case model.Program:
		ch.PID = b.PID
	case model.Control:
		if !check {
			ch.Trim = b.Value * 2
		}
	case model.Meta:
		ch.Name = string(b.Payload)
	}
	return true
}
