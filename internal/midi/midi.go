// Package midi converts between Standard MIDI Files and the song model.
//
// Times in the model are milliseconds. A file is converted with a single
// tick scale taken from its first Set-Tempo event; later tempo changes are
// carried as events but do not affect timing.
package midi

import (
	"sort"

	"github.com/cbegin/eggsong-go/internal/model"
)

const (
	// DefaultDivision is the ticks per quarter note written when a song
	// does not carry its own.
	DefaultDivision = 96
	// DefaultTempo is the SMF default of 120 bpm, in µs per quarter note.
	DefaultTempo = 500000

	maxDivision = 0x7fff
)

// Document is the decoded content of one MIDI file.
type Document struct {
	Channels []*model.Channel // ordered by id
	Events   []model.Event    // time order, IDs unset
	Length   int              // ms, end of the longest track
	Division int
	Format   int // SMF format of the source file
}

// Scale converts between ticks and milliseconds at one tempo.
type Scale struct {
	Division int
	Tempo    int
}

// MS converts a tick count to milliseconds, rounding to nearest.
func (s Scale) MS(ticks int) int {
	den := s.Division * 1000
	return (ticks*s.Tempo + den/2) / den
}

// Ticks converts milliseconds to ticks, rounding to nearest.
func (s Scale) Ticks(ms int) int {
	return (ms*s.Division*1000 + s.Tempo/2) / s.Tempo
}

// FirstTempo returns the tempo of the earliest Set-Tempo meta in events, or
// DefaultTempo.
func FirstTempo(events []model.Event) int {
	best, tempo := -1, DefaultTempo
	for _, ev := range events {
		m, ok := ev.Body.(model.Meta)
		if !ok || m.Type != model.MetaTempo || len(m.Payload) != 3 {
			continue
		}
		v := int(m.Payload[0])<<16 | int(m.Payload[1])<<8 | int(m.Payload[2])
		if v == 0 {
			continue
		}
		if best < 0 || ev.Time < best {
			best, tempo = ev.Time, v
		}
	}
	return tempo
}

// ExpandNotes replaces each Note with a NoteOn and a NoteOff at its end,
// drops Future events, and returns the result in time order. A NoteOff
// produced here sorts ahead of other events at the same time so that a note
// ending where another begins does not cut the new one short.
func ExpandNotes(events []model.Event) []model.Event {
	type ranked struct {
		ev   model.Event
		rank int
	}
	out := make([]ranked, 0, len(events)+len(events)/2)
	for _, ev := range events {
		switch body := ev.Body.(type) {
		case model.Note:
			on, off := ev, ev
			on.Body = model.NoteOn{NoteID: body.NoteID, Velocity: body.Velocity}
			off.Time = ev.Time + body.Dur
			off.Body = model.NoteOff{NoteID: body.NoteID, Velocity: model.OffVelocity}
			rank := 0
			if body.Dur <= 0 {
				off.Time = ev.Time
				rank = 2
			}
			out = append(out, ranked{on, 1}, ranked{off, rank})
		case model.Future:
		default:
			out = append(out, ranked{ev, 1})
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].ev.Time != out[j].ev.Time {
			return out[i].ev.Time < out[j].ev.Time
		}
		return out[i].rank < out[j].rank
	})
	events = make([]model.Event, len(out))
	for i, r := range out {
		events[i] = r.ev
	}
	return events
}

func dataLen(status int) int {
	switch status & 0xf0 {
	case 0xc0, 0xd0:
		return 1
	}
	return 2
}
