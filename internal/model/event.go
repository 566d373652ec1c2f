package model

// ChidNone marks events that belong to no channel (sysex, global meta).
const ChidNone = 0xff

const (
	MetaText          = 0x01
	MetaTrackName     = 0x03
	MetaInstrument    = 0x04
	MetaChannelPrefix = 0x20
	MetaEndOfTrack    = 0x2f
	MetaTempo         = 0x51
	MetaEggHeader     = 0x7f
)

const (
	ControlVolume = 0x07
)

// OffVelocity is the release velocity given to NoteOff events that have no
// velocity of their own (NoteOn with velocity 0, expanded EGS notes).
const OffVelocity = 0x40

// Family tells which wire format an event body came from.
type Family int

const (
	FamilyEGS Family = iota + 1
	FamilyMIDI
)

// Body is one concrete event kind. The set is closed: Note and Future are
// EGS-shaped, everything else is MIDI-shaped.
type Body interface {
	Family() Family
	body()
}

// Note is an EGS note. Dur is in ms; 0 means fire-and-forget.
type Note struct {
	NoteID   int
	Velocity int
	Dur      int
}

// Future is an EGS opcode in 0xb0..0xfe, carried without interpretation.
type Future struct {
	Opcode  int
	Payload []byte
}

type NoteOn struct {
	NoteID   int
	Velocity int
}

type NoteOff struct {
	NoteID   int
	Velocity int
}

// NoteAdjust is polyphonic key pressure.
type NoteAdjust struct {
	NoteID   int
	Velocity int
}

type Control struct {
	Key   int
	Value int
}

type Program struct {
	PID int
}

// Pressure is channel pressure.
type Pressure struct {
	Velocity int
}

// Wheel is the pitch wheel, 0..0x3fff with 0x2000 centered.
type Wheel struct {
	Value int
}

type Meta struct {
	Type    int
	Payload []byte
}

// Sysex keeps its status byte (0xf0 or 0xf7) so escapes survive re-encoding.
type Sysex struct {
	Status  int
	Payload []byte
}

func (Note) Family() Family       { return FamilyEGS }
func (Future) Family() Family     { return FamilyEGS }
func (NoteOn) Family() Family     { return FamilyMIDI }
func (NoteOff) Family() Family    { return FamilyMIDI }
func (NoteAdjust) Family() Family { return FamilyMIDI }
func (Control) Family() Family    { return FamilyMIDI }
func (Program) Family() Family    { return FamilyMIDI }
func (Pressure) Family() Family   { return FamilyMIDI }
func (Wheel) Family() Family      { return FamilyMIDI }
func (Meta) Family() Family       { return FamilyMIDI }
func (Sysex) Family() Family      { return FamilyMIDI }

func (Note) body()       {}
func (Future) body()     {}
func (NoteOn) body()     {}
func (NoteOff) body()    {}
func (NoteAdjust) body() {}
func (Control) body()    {}
func (Program) body()    {}
func (Pressure) body()   {}
func (Wheel) body()      {}
func (Meta) body()       {}
func (Sysex) body()      {}

// Event is one entry of a song's time-sorted event list. Time is always in
// milliseconds; MIDI ticks are converted once at decode time.
type Event struct {
	ID    int
	Time  int
	Chid  int
	Track int // MIDI track the event came from or goes to
	Body  Body
}

func IsNote(b Body) bool {
	switch b.(type) {
	case Note, NoteOn, NoteOff:
		return true
	}
	return false
}

func IsConfig(b Body) bool {
	switch b.(type) {
	case Program, Control:
		return true
	}
	return false
}

func IsAdjust(b Body) bool {
	switch b.(type) {
	case NoteAdjust, Pressure, Wheel:
		return true
	}
	return false
}

// EndTime is the later of the event's time and the end of its note.
func (e Event) EndTime() int {
	if n, ok := e.Body.(Note); ok {
		return e.Time + n.Dur
	}
	return e.Time
}
