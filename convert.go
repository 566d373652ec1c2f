package eggsong

import (
	"github.com/cbegin/eggsong-go/internal/egs"
	"github.com/cbegin/eggsong-go/internal/midi"
)

// ClassifyDuration maps a held time in ms to the duration an EGS note can
// carry: 0 below one short unit, the time itself up to the short form's
// limit, and at most the long form's limit beyond that.
func ClassifyDuration(ms int) int {
	switch {
	case ms < egs.ShortUnit:
		return 0
	case ms <= egs.MaxShortDur:
		return ms
	case ms > egs.MaxLongDur:
		return egs.MaxLongDur
	}
	return ms
}

// EGSEvents returns the song's events as EGS sees them. NoteOn/NoteOff
// pairs on the same channel and note become one Note, matched first in
// first out; a NoteOn never released becomes a Note with no hold. Other
// MIDI events have no EGS form and are left out.
func (s *Song) EGSEvents() []Event {
	open := map[noteKey][]int{}
	out := make([]Event, 0, len(s.Events))
	for _, ev := range s.Events {
		switch body := ev.Body.(type) {
		case Note, Future:
			out = append(out, ev)
		case NoteOn:
			k := noteKey{ev.Chid, body.NoteID}
			if body.Velocity == 0 {
				release(out, open, k, ev.Time)
				continue
			}
			n := ev
			n.Body = Note{NoteID: body.NoteID, Velocity: body.Velocity}
			out = append(out, n)
			open[k] = append(open[k], len(out)-1)
		case NoteOff:
			release(out, open, noteKey{ev.Chid, body.NoteID}, ev.Time)
		}
	}
	return out
}

type noteKey struct {
	chid, note int
}

func release(out []Event, open map[noteKey][]int, k noteKey, at int) {
	q := open[k]
	if len(q) == 0 {
		return
	}
	i := q[0]
	open[k] = q[1:]
	n := out[i].Body.(Note)
	n.Dur = ClassifyDuration(at - out[i].Time)
	out[i].Body = n
}

// MIDITracks returns the song's events as MIDI sees them, one slice per
// track: Notes become NoteOn/NoteOff pairs and Future events are left out.
func (s *Song) MIDITracks() [][]Event {
	events := midi.ExpandNotes(s.Events)
	ntracks := 1
	for _, ev := range events {
		if ev.Track >= ntracks {
			ntracks = ev.Track + 1
		}
	}
	tracks := make([][]Event, ntracks)
	for _, ev := range events {
		t := ev.Track
		if t < 0 {
			t = 0
		}
		tracks[t] = append(tracks[t], ev)
	}
	return tracks
}

// Ticks converts ms to MIDI ticks at the song's division and first tempo.
func (s *Song) Ticks(ms int) int {
	return s.scale().Ticks(ms)
}

// Millis converts MIDI ticks to ms at the song's division and first tempo.
func (s *Song) Millis(ticks int) int {
	return s.scale().MS(ticks)
}

func (s *Song) scale() midi.Scale {
	division := s.Division
	if division == 0 {
		division = DefaultDivision
	}
	return midi.Scale{Division: division, Tempo: midi.FirstTempo(s.Events)}
}
