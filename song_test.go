package eggsong

import (
	"bytes"
	"reflect"
	"testing"

	"github.com/pkg/errors"
)

// One note held for 96 ticks at 500000 µs per quarter, 96 ticks per quarter.
var halfSecondMIDI = []byte{
	'M', 'T', 'h', 'd', 0, 0, 0, 6, 0, 0, 0, 1, 0, 96,
	'M', 'T', 'r', 'k', 0, 0, 0, 19,
	0x00, 0xff, 0x51, 0x03, 0x07, 0xa1, 0x20,
	0x00, 0x90, 0x3c, 0x64,
	0x60, 0x80, 0x3c, 0x40,
	0x00, 0xff, 0x2f, 0x00,
}

func mustEncode(t *testing.T, s *Song, opts ...EncodeOption) []byte {
	t.Helper()
	out, err := s.Encode(opts...)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	return out
}

func assertSameSong(t *testing.T, a, b *Song) {
	t.Helper()
	for i := range a.Channels {
		if !a.Channels[i].Equal(b.Channels[i]) {
			t.Fatalf("channel %d\nfirst  %+v\nsecond %+v", i, a.Channels[i], b.Channels[i])
		}
	}
	if !reflect.DeepEqual(a.Events, b.Events) {
		t.Fatalf("events\nfirst  %+v\nsecond %+v", a.Events, b.Events)
	}
	if a.Length != b.Length {
		t.Fatalf("length %d != %d", a.Length, b.Length)
	}
}

func TestDecodeSniffsFormat(t *testing.T) {
	s, err := Decode(halfSecondMIDI)
	if err != nil {
		t.Fatalf("midi: %v", err)
	}
	if s.Format != FormatMIDI || s.Division != 96 {
		t.Fatalf("format %v division %d", s.Format, s.Division)
	}
	s, err = Decode([]byte("\x00EGS\xff"))
	if err != nil {
		t.Fatalf("egs: %v", err)
	}
	if s.Format != FormatEGS || len(s.Events) != 0 {
		t.Fatalf("empty egs song = %+v", s)
	}
	_, err = Decode([]byte("RIFF...."))
	if !errors.Is(err, ErrUnrecognizedFormat) || !errors.Is(err, ErrDecode) {
		t.Fatalf("err = %v, want unrecognized format", err)
	}
}

func TestMIDINotePairBecomesEGSNote(t *testing.T) {
	s, err := Decode(halfSecondMIDI)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	var times []int
	for _, ev := range s.Events {
		if IsNoteEvent(ev) {
			times = append(times, ev.Time)
		}
	}
	if !reflect.DeepEqual(times, []int{0, 500}) {
		t.Fatalf("note event times = %v, want [0 500]", times)
	}

	egsEvents := s.EGSEvents()
	if len(egsEvents) != 1 {
		t.Fatalf("egs events = %+v", egsEvents)
	}
	if n := egsEvents[0].Body.(Note); n != (Note{NoteID: 60, Velocity: 100, Dur: 500}) {
		t.Fatalf("note = %+v", n)
	}

	out := mustEncode(t, s, WithFormat(FormatEGS))
	want := []byte{
		0x00, 'E', 'G', 'S',
		0x00, 0x80, 0xff, 0x00, 0x00, 0x00, // channel 0, gm, no program
		0xff,
		0x90, 0x79, 0x86, // short note, duration field 6
		0x46, 0x34, // 448 + 52 ms to the end
	}
	if !bytes.Equal(out, want) {
		t.Fatalf("egs\ngot  % x\nwant % x", out, want)
	}
}

func TestEGSRoundTrip(t *testing.T) {
	s := New()
	lead, err := s.DefineChannel(0)
	if err != nil {
		t.Fatalf("define: %v", err)
	}
	lead.Trim = 0x60
	drums, _ := s.DefineChannel(9)
	s.ChangeChannelMode(drums, ModeGM)
	drums.PID = 0
	s.NewEvent(0, 0, Note{NoteID: 60, Velocity: 0x7f, Dur: 448})
	s.NewEvent(0, 9, Note{NoteID: 36, Velocity: 100})
	s.NewEvent(512, 0, Note{NoteID: 64, Velocity: 0x47, Dur: 2560})
	s.NewEvent(700, 3, Future{Opcode: 0xc3, Payload: []byte{1, 2}})
	s.Length = 5000

	first, err := Decode(mustEncode(t, s))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	second, err := Decode(mustEncode(t, first))
	if err != nil {
		t.Fatalf("decode again: %v", err)
	}
	assertSameSong(t, first, second)
}

func TestMIDIRoundTrip(t *testing.T) {
	first, err := Decode(halfSecondMIDI)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	second, err := Decode(mustEncode(t, first))
	if err != nil {
		t.Fatalf("decode again: %v", err)
	}
	assertSameSong(t, first, second)
}

func TestMIDIRoundTripKeepsNamedChannels(t *testing.T) {
	s := New()
	lead, _ := s.DefineChannel(3)
	lead.Name = "Lead"
	lead.PID = 12
	lead.Trim = 0x60
	pad, _ := s.DefineChannel(5)
	pad.Name = "Pad"
	s.ChangeChannelMode(pad, ModeFM)
	s.NewEvent(0, ChidNone, Meta{Type: 0x01, Payload: []byte("intro")})
	s.NewEvent(0, 5, Program{PID: 33})
	s.NewEvent(0, 3, Note{NoteID: 60, Velocity: 100, Dur: 500})
	s.NewEvent(250, 3, Program{PID: 20})
	s.NewEvent(500, 5, Note{NoteID: 48, Velocity: 80, Dur: 250})

	first, err := Decode(mustEncode(t, s, WithFormat(FormatMIDI)))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	ch := first.Channels[3]
	if ch == nil || ch.Mode != ModeWave || ch.Name != "Lead" || ch.PID != 12 || ch.Trim != 0x60 {
		t.Fatalf("channel 3 = %+v", ch)
	}
	ch = first.Channels[5]
	if ch == nil || ch.Mode != ModeFM || ch.Name != "Pad" || ch.PID != 33 {
		t.Fatalf("channel 5 = %+v", ch)
	}
	for _, ev := range first.Events {
		if _, ok := ev.Body.(Program); ok && ev.Time == 0 {
			t.Fatalf("time-zero program left in events: %+v", ev)
		}
		if m, ok := ev.Body.(Meta); ok && m.Type == 0x04 {
			t.Fatalf("name meta left in events: %+v", ev)
		}
	}

	second, err := Decode(mustEncode(t, first))
	if err != nil {
		t.Fatalf("decode again: %v", err)
	}
	assertSameSong(t, first, second)
}

func TestEGSToMIDI(t *testing.T) {
	s := New()
	s.NewEvent(0, 2, Note{NoteID: 48, Velocity: 96, Dur: 1000})
	s.NewEvent(250, 2, Future{Opcode: 0xb2, Payload: []byte{9}})
	out, err := s.EncodeAs(FormatMIDI, WithDivision(480))
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	back, err := Decode(out)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if back.Division != 480 {
		t.Fatalf("division = %d", back.Division)
	}
	var bodies []Body
	var times []int
	for _, ev := range back.Events {
		bodies = append(bodies, ev.Body)
		times = append(times, ev.Time)
	}
	wantBodies := []Body{NoteOn{NoteID: 48, Velocity: 96}, NoteOff{NoteID: 48, Velocity: 0x40}}
	if !reflect.DeepEqual(bodies, wantBodies) || !reflect.DeepEqual(times, []int{0, 1000}) {
		t.Fatalf("events = %+v", back.Events)
	}
}

func TestEGSEventsPairing(t *testing.T) {
	s := New()
	s.NewEvent(0, 1, NoteOn{NoteID: 60, Velocity: 80})
	s.NewEvent(10, 1, NoteOn{NoteID: 60, Velocity: 90})
	s.NewEvent(100, 1, NoteOff{NoteID: 60})
	s.NewEvent(3000, 1, NoteOff{NoteID: 60})
	s.NewEvent(3000, 2, NoteOn{NoteID: 40, Velocity: 50})
	s.NewEvent(3100, 1, NoteOff{NoteID: 61}) // never opened
	s.NewEvent(3200, 1, Control{Key: 10, Value: 64})
	s.NewEvent(20000, 3, NoteOn{NoteID: 1, Velocity: 1})
	s.NewEvent(40000, 3, NoteOn{NoteID: 1, Velocity: 0})

	var got []Note
	for _, ev := range s.EGSEvents() {
		got = append(got, ev.Body.(Note))
	}
	want := []Note{
		{NoteID: 60, Velocity: 80, Dur: 100},
		{NoteID: 60, Velocity: 90, Dur: 2990},
		{NoteID: 40, Velocity: 50},
		{NoteID: 1, Velocity: 1, Dur: 16384},
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %+v\nwant %+v", got, want)
	}
}

func TestClassifyDuration(t *testing.T) {
	for _, tc := range []struct{ in, out int }{
		{0, 0}, {63, 0}, {64, 64}, {500, 500}, {2048, 2048}, {2049, 2049}, {16384, 16384}, {16385, 16384},
	} {
		if got := ClassifyDuration(tc.in); got != tc.out {
			t.Fatalf("ClassifyDuration(%d) = %d, want %d", tc.in, got, tc.out)
		}
	}
}

func TestMIDITracks(t *testing.T) {
	s := New()
	s.NewEvent(0, 0, Note{NoteID: 60, Velocity: 100, Dur: 200})
	ev := s.NewEvent(100, 1, Program{PID: 4})
	s.Events[1].Track = 2
	if s.Events[1].ID != ev.ID {
		t.Fatalf("event order changed")
	}
	s.NewEvent(150, 0, Future{Opcode: 0xf0})
	tracks := s.MIDITracks()
	if len(tracks) != 3 {
		t.Fatalf("got %d tracks", len(tracks))
	}
	if len(tracks[0]) != 2 || len(tracks[1]) != 0 || len(tracks[2]) != 1 {
		t.Fatalf("tracks = %+v", tracks)
	}
	if off, ok := tracks[0][1].Body.(NoteOff); !ok || tracks[0][1].Time != 200 || off.NoteID != 60 {
		t.Fatalf("note off = %+v", tracks[0][1])
	}
}

func TestTickConversion(t *testing.T) {
	s := New()
	if got := s.Ticks(500); got != 96 {
		t.Fatalf("Ticks(500) = %d, want 96", got)
	}
	if got := s.Millis(96); got != 500 {
		t.Fatalf("Millis(96) = %d, want 500", got)
	}
	s.NewEvent(0, ChidNone, Meta{Type: 0x51, Payload: []byte{0x03, 0xd0, 0x90}})
	if got := s.Ticks(500); got != 192 {
		t.Fatalf("Ticks(500) at 240 bpm = %d, want 192", got)
	}
	s.Division = 480
	if got := s.Millis(960); got != 500 {
		t.Fatalf("Millis(960) = %d, want 500", got)
	}
}

func TestDefineAndChangeChannel(t *testing.T) {
	s := New()
	if _, err := s.DefineChannel(16); err == nil {
		t.Fatalf("channel 16 accepted")
	}
	ch, err := s.DefineChannel(5)
	if err != nil {
		t.Fatalf("define: %v", err)
	}
	if ch.Mode != ModeWave {
		t.Fatalf("new channel mode = %v, want wave", ch.Mode)
	}
	again, _ := s.DefineChannel(5)
	if again != ch {
		t.Fatalf("DefineChannel replaced an existing channel")
	}
	before, _ := ch.Payload()
	s.ChangeChannelMode(ch, ModeFM)
	if ch.Mode != ModeFM {
		t.Fatalf("mode = %v", ch.Mode)
	}
	s.ChangeChannelMode(ch, ModeWave)
	after, _ := ch.Payload()
	if !bytes.Equal(before, after) {
		t.Fatalf("wave config not restored")
	}
}

func TestNewEventOrderAndIDs(t *testing.T) {
	s := New()
	a := s.NewEvent(100, 0, Note{NoteID: 1})
	b := s.NewEvent(50, 0, Note{NoteID: 2})
	c := s.NewEvent(100, 0, Note{NoteID: 3})
	if !(a.ID < b.ID && b.ID < c.ID) {
		t.Fatalf("ids not increasing: %d %d %d", a.ID, b.ID, c.ID)
	}
	var ids []int
	for _, ev := range s.Events {
		ids = append(ids, ev.ID)
	}
	if !reflect.DeepEqual(ids, []int{b.ID, a.ID, c.ID}) {
		t.Fatalf("order = %v", ids)
	}
	if !s.RemoveEvent(a.ID) || s.RemoveEvent(a.ID) {
		t.Fatalf("RemoveEvent")
	}
	s.Events[0].Time = 500
	s.SortEvents()
	if s.Events[0].ID != c.ID {
		t.Fatalf("SortEvents left %+v first", s.Events[0])
	}
}

func TestDuration(t *testing.T) {
	s := New()
	s.NewEvent(1000, 0, Note{NoteID: 60, Dur: 1500})
	s.NewEvent(2000, 0, Note{NoteID: 62})
	if d := s.Duration(); d != 2500 {
		t.Fatalf("duration = %d, want 2500", d)
	}
	s.Length = 4000
	if d := s.Duration(); d != 4000 {
		t.Fatalf("duration = %d, want 4000", d)
	}
}

func TestEventPredicates(t *testing.T) {
	for _, tc := range []struct {
		body                 Body
		note, config, adjust bool
	}{
		{Note{}, true, false, false},
		{NoteOn{}, true, false, false},
		{NoteOff{}, true, false, false},
		{Program{}, false, true, false},
		{Control{}, false, true, false},
		{NoteAdjust{}, false, false, true},
		{Pressure{}, false, false, true},
		{Wheel{}, false, false, true},
		{Meta{}, false, false, false},
		{Future{}, false, false, false},
	} {
		ev := Event{Body: tc.body}
		if IsNoteEvent(ev) != tc.note || IsConfigEvent(ev) != tc.config || IsAdjustEvent(ev) != tc.adjust {
			t.Fatalf("predicates wrong for %T", tc.body)
		}
	}
}

func TestTextThroughSong(t *testing.T) {
	s, err := DecodeText("channel 1\nmode fm\nevents\n0 note 1 60 127 640\n")
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	text, err := s.EncodeText()
	if err != nil {
		t.Fatalf("encode text: %v", err)
	}
	back, err := DecodeText(text)
	if err != nil {
		t.Fatalf("decode text: %v", err)
	}
	assertSameSong(t, s, back)
	bin := mustEncode(t, back)
	fromBin, err := Decode(bin)
	if err != nil {
		t.Fatalf("decode binary: %v", err)
	}
	assertSameSong(t, s, fromBin)
}
