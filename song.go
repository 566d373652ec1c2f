package eggsong

import (
	"bytes"
	"sort"

	"github.com/pkg/errors"

	"github.com/cbegin/eggsong-go/internal/bytestream"
	"github.com/cbegin/eggsong-go/internal/egs"
	"github.com/cbegin/eggsong-go/internal/midi"
	"github.com/cbegin/eggsong-go/internal/model"
)

type (
	Event   = model.Event
	Body    = model.Body
	Channel = model.Channel
	Mode    = model.Mode
	Config  = model.Config

	Note       = model.Note
	Future     = model.Future
	NoteOn     = model.NoteOn
	NoteOff    = model.NoteOff
	NoteAdjust = model.NoteAdjust
	Control    = model.Control
	Program    = model.Program
	Pressure   = model.Pressure
	Wheel      = model.Wheel
	Meta       = model.Meta
	Sysex      = model.Sysex
)

const (
	ModeGM   = model.ModeGM
	ModeNoop = model.ModeNoop
	ModeDrum = model.ModeDrum
	ModeWave = model.ModeWave
	ModeFM   = model.ModeFM
	ModeSub  = model.ModeSub
)

const (
	ChannelCount    = model.ChannelCount
	ChidNone        = model.ChidNone
	DefaultDivision = midi.DefaultDivision
	DefaultTempo    = midi.DefaultTempo
)

var (
	ErrDecode         = bytestream.ErrDecode
	ErrEncodeOverflow = bytestream.ErrEncodeOverflow
	// ErrUnrecognizedFormat is returned by Decode for input that is neither
	// EGS nor MIDI. It matches ErrDecode.
	ErrUnrecognizedFormat = errors.Wrap(bytestream.ErrDecode, "unrecognized format")
)

// Format is the wire format a song came from or is written to.
type Format int

const (
	FormatUnset Format = iota
	FormatEGS
	FormatMIDI
)

func (f Format) String() string {
	switch f {
	case FormatEGS:
		return "egs"
	case FormatMIDI:
		return "mid"
	}
	return "unset"
}

// ParseFormat accepts "egs", "mid" or "midi".
func ParseFormat(s string) (Format, bool) {
	switch s {
	case "egs":
		return FormatEGS, true
	case "mid", "midi":
		return FormatMIDI, true
	}
	return FormatUnset, false
}

// Song is the format-independent model both codecs read and write. Events
// are kept sorted by time; a Song is not safe for concurrent mutation.
type Song struct {
	Channels [ChannelCount]*Channel
	Events   []Event
	Format   Format
	Division int // MIDI ticks per quarter note
	Length   int // ms

	nextEventID int
}

func New() *Song {
	return &Song{Division: DefaultDivision, nextEventID: 1}
}

// Decode reads an EGS or MIDI file, chosen by its leading signature.
func Decode(src []byte) (*Song, error) {
	switch {
	case bytes.HasPrefix(src, []byte(egs.Signature)):
		doc, err := egs.Decode(src)
		if err != nil {
			return nil, err
		}
		s := New()
		s.Format = FormatEGS
		s.adopt(doc.Channels, doc.Events, doc.Length)
		return s, nil
	case bytes.HasPrefix(src, []byte("MThd")):
		doc, err := midi.Decode(src)
		if err != nil {
			return nil, err
		}
		s := New()
		s.Format = FormatMIDI
		s.Division = doc.Division
		s.adopt(doc.Channels, doc.Events, doc.Length)
		return s, nil
	}
	return nil, errors.WithStack(ErrUnrecognizedFormat)
}

// DecodeText reads the EGS text form.
func DecodeText(src string) (*Song, error) {
	doc, err := egs.DecodeText(src)
	if err != nil {
		return nil, err
	}
	s := New()
	s.Format = FormatEGS
	s.adopt(doc.Channels, doc.Events, doc.Length)
	return s, nil
}

func (s *Song) adopt(channels []*Channel, events []Event, length int) {
	for _, ch := range channels {
		s.Channels[ch.ID] = ch
	}
	s.Events = make([]Event, len(events))
	for i, ev := range events {
		ev.ID = s.newEventID()
		s.Events[i] = ev
	}
	s.Length = length
}

func (s *Song) newEventID() int {
	if s.nextEventID < 1 {
		s.nextEventID = 1
	}
	id := s.nextEventID
	s.nextEventID++
	return id
}

type EncodeOption func(*encodeConfig)

type encodeConfig struct {
	format   Format
	division int
}

// WithFormat overrides the song's own Format for one encode.
func WithFormat(f Format) EncodeOption {
	return func(cfg *encodeConfig) {
		cfg.format = f
	}
}

// WithDivision sets the MIDI ticks per quarter note for one encode.
func WithDivision(division int) EncodeOption {
	return func(cfg *encodeConfig) {
		cfg.division = division
	}
}

// Encode writes the song in its Format, EGS when unset.
func (s *Song) Encode(opts ...EncodeOption) ([]byte, error) {
	cfg := encodeConfig{format: s.Format, division: s.Division}
	for _, opt := range opts {
		opt(&cfg)
	}
	switch cfg.format {
	case FormatUnset, FormatEGS:
		return egs.Encode(&egs.Document{
			Channels: s.channelList(),
			Events:   s.EGSEvents(),
			Length:   s.Length,
		})
	case FormatMIDI:
		return midi.Encode(&midi.Document{
			Channels: s.channelList(),
			Events:   s.Events,
			Length:   s.Length,
			Division: cfg.division,
		})
	}
	return nil, errors.Errorf("unknown format %d", cfg.format)
}

func (s *Song) EncodeAs(f Format, opts ...EncodeOption) ([]byte, error) {
	return s.Encode(append(opts, WithFormat(f))...)
}

// EncodeText writes the song in the EGS text form.
func (s *Song) EncodeText() (string, error) {
	return egs.EncodeText(&egs.Document{
		Channels: s.channelList(),
		Events:   s.EGSEvents(),
		Length:   s.Length,
	})
}

func (s *Song) channelList() []*Channel {
	var out []*Channel
	for _, ch := range s.Channels {
		if ch != nil {
			out = append(out, ch)
		}
	}
	return out
}

// DefineChannel returns channel chid, creating it in Wave mode if absent.
func (s *Song) DefineChannel(chid int) (*Channel, error) {
	if chid < 0 || chid >= ChannelCount {
		return nil, errors.Errorf("channel id %d out of range", chid)
	}
	if s.Channels[chid] == nil {
		s.Channels[chid] = model.NewChannel(chid, ModeWave)
	}
	return s.Channels[chid], nil
}

// ChangeChannelMode switches ch to mode. Switching back to a mode the
// channel held before restores that mode's configuration.
func (s *Song) ChangeChannelMode(ch *Channel, mode Mode) {
	ch.ChangeMode(mode)
}

// NewEvent adds an event with a fresh id after any events at the same time
// and returns it.
func (s *Song) NewEvent(time, chid int, body Body) Event {
	ev := Event{ID: s.newEventID(), Time: time, Chid: chid, Body: body}
	i := sort.Search(len(s.Events), func(i int) bool { return s.Events[i].Time > time })
	s.Events = append(s.Events, Event{})
	copy(s.Events[i+1:], s.Events[i:])
	s.Events[i] = ev
	if time > s.Length {
		s.Length = time
	}
	return ev
}

// RemoveEvent deletes the event with id and reports whether it existed.
func (s *Song) RemoveEvent(id int) bool {
	for i, ev := range s.Events {
		if ev.ID == id {
			s.Events = append(s.Events[:i], s.Events[i+1:]...)
			return true
		}
	}
	return false
}

// SortEvents restores time order after Events was edited directly. Events
// at the same time keep their relative order.
func (s *Song) SortEvents() {
	sort.SliceStable(s.Events, func(i, j int) bool { return s.Events[i].Time < s.Events[j].Time })
}

// Duration is the song length in ms: the later of Length and the end of
// the last sounding note.
func (s *Song) Duration() int {
	d := s.Length
	for _, ev := range s.Events {
		if end := ev.EndTime(); end > d {
			d = end
		}
	}
	return d
}

func IsNoteEvent(ev Event) bool   { return model.IsNote(ev.Body) }
func IsConfigEvent(ev Event) bool { return model.IsConfig(ev.Body) }
func IsAdjustEvent(ev Event) bool { return model.IsAdjust(ev.Body) }
