package model

import (
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"github.com/cbegin/eggsong-go/internal/bytestream"
	"github.com/cbegin/eggsong-go/internal/envelope"
)

// Mode selects the synthesizer a channel's configuration is shaped for.
type Mode int

const (
	ModeGM   Mode = -1 // General MIDI fallback, program id only
	ModeNoop Mode = 0
	ModeDrum Mode = 1
	ModeWave Mode = 2
	ModeFM   Mode = 3
	ModeSub  Mode = 4
)

// modeGMWire is ModeGM's byte in a channel header.
const modeGMWire = 0xff

func (m Mode) Wire() int {
	if m == ModeGM {
		return modeGMWire
	}
	return int(m) & 0xff
}

func ModeFromWire(b int) Mode {
	if b == modeGMWire {
		return ModeGM
	}
	return Mode(b)
}

var modeNames = map[Mode]string{
	ModeGM:   "gm",
	ModeNoop: "noop",
	ModeDrum: "drum",
	ModeWave: "wave",
	ModeFM:   "fm",
	ModeSub:  "sub",
}

func (m Mode) String() string {
	if name, ok := modeNames[m]; ok {
		return name
	}
	return "mode" + strconv.Itoa(int(m))
}

// ParseMode accepts a mode name, its wire number, or the "modeN" form
// String gives unnamed modes.
func ParseMode(s string) (Mode, bool) {
	for m, name := range modeNames {
		if name == s {
			return m, true
		}
	}
	s = strings.TrimPrefix(s, "mode")
	if n, err := strconv.Atoi(s); err == nil && n >= -1 && n <= 0xff {
		if n == -1 {
			return ModeGM, true
		}
		return ModeFromWire(n), true
	}
	return 0, false
}

// Wave shapes.
const (
	ShapeSine = iota
	ShapeSquare
	ShapeSaw
	ShapeTriangle
	ShapeHarmonics
)

const (
	waveFixedLen = 32
	fmLen        = 50
	subLen       = 14

	// FMFlagAbsoluteRate makes FMConfig.Rate a frequency instead of a multiplier.
	FMFlagAbsoluteRate = 0x01
)

// ADSRLine is one velocity line of a fixed-width envelope. Times are ms,
// levels 0..255.
type ADSRLine struct {
	AttackTime   int
	AttackLevel  int
	DecayTime    int
	SustainLevel int
	ReleaseTime  int
}

// ADSR is the 12-byte envelope of the Wave, FM and Sub layouts: a line for
// minimum velocity and a line for maximum velocity.
type ADSR struct {
	Lo ADSRLine
	Hi ADSRLine
}

// Envelope expands the ADSR into the general point-list form, sustaining
// at the end of the decay leg.
func (a ADSR) Envelope() envelope.Envelope {
	line := func(l ADSRLine) []envelope.Point {
		t1 := l.AttackTime
		t2 := t1 + l.DecayTime
		t3 := t2 + l.ReleaseTime
		return []envelope.Point{
			{Time: 0, Value: 0},
			{Time: t1, Value: l.AttackLevel * 0x101},
			{Time: t2, Value: l.SustainLevel * 0x101},
			{Time: t3, Value: 0},
		}
	}
	env := envelope.Envelope{
		Flags:        envelope.FlagSustain,
		SustainIndex: 2,
		Lo:           line(a.Lo),
		Hi:           line(a.Hi),
	}
	if a.Lo != a.Hi {
		env.Flags |= envelope.FlagDual
	}
	return env
}

func readADSR(r *bytestream.Reader) (ADSR, error) {
	var a ADSR
	for _, l := range []*ADSRLine{&a.Lo, &a.Hi} {
		var err error
		if l.AttackTime, err = r.U8(); err != nil {
			return a, err
		}
		if l.AttackLevel, err = r.U8(); err != nil {
			return a, err
		}
		if l.DecayTime, err = r.U8(); err != nil {
			return a, err
		}
		if l.SustainLevel, err = r.U8(); err != nil {
			return a, err
		}
		if l.ReleaseTime, err = r.U16BE(); err != nil {
			return a, err
		}
	}
	return a, nil
}

func writeADSR(b *bytestream.Builder, a ADSR) error {
	for _, l := range []ADSRLine{a.Lo, a.Hi} {
		for _, v := range []int{l.AttackTime, l.AttackLevel, l.DecayTime, l.SustainLevel} {
			if err := checkU8(v, "envelope field"); err != nil {
				return err
			}
		}
		if err := checkU16(l.ReleaseTime, "envelope release"); err != nil {
			return err
		}
		b.U8(l.AttackTime)
		b.U8(l.AttackLevel)
		b.U8(l.DecayTime)
		b.U8(l.SustainLevel)
		b.U16BE(l.ReleaseTime)
	}
	return nil
}

// Config is a channel's mode-specific configuration. Each mode has exactly
// one Config type.
type Config interface {
	Mode() Mode
	write(b *bytestream.Builder) error
}

// DrumNote is one entry of a drum kit: an embedded sound played for NoteID.
type DrumNote struct {
	NoteID int
	TrimLo int
	TrimHi int
	Level  envelope.Envelope
	Serial []byte
}

type DrumConfig struct {
	Drums []DrumNote
}

type WaveConfig struct {
	Level        ADSR
	Pitch        ADSR // 0x80 is no bend
	PitchRange   int  // cents at full pitch envelope swing
	WheelRange   int  // cents
	Shape        int
	VibratoRate  int // 0.1 Hz
	VibratoDepth int // cents
	Harmonics    []int
}

type FMConfig struct {
	Level         ADSR
	Range         ADSR
	Pitch         ADSR
	PitchRange    int
	WheelRange    int
	Rate          int // 8.8 fixed point
	ModRange      int // 8.8 fixed point
	RangeLFORate  int // ms per cycle
	RangeLFODepth int // 8.8 fixed point
	Feedback      int
	Flags         int
}

type SubConfig struct {
	Level ADSR
	Width int // Hz
}

// GMConfig carries nothing; the program id lives on the channel.
type GMConfig struct{}

type NoopConfig struct{}

// RawConfig holds the payload of a mode this package does not know.
type RawConfig struct {
	RawMode Mode
	Data    []byte
}

func (*DrumConfig) Mode() Mode  { return ModeDrum }
func (*WaveConfig) Mode() Mode  { return ModeWave }
func (*FMConfig) Mode() Mode    { return ModeFM }
func (*SubConfig) Mode() Mode   { return ModeSub }
func (*GMConfig) Mode() Mode    { return ModeGM }
func (*NoopConfig) Mode() Mode  { return ModeNoop }
func (c *RawConfig) Mode() Mode { return c.RawMode }

// DefaultConfig returns the configuration a fresh channel of mode gets.
// Envelope timings follow the synth engines' defaults: 5 ms attack,
// 120 ms decay to 3/4 level, 200 ms release.
func DefaultConfig(mode Mode) Config {
	level := ADSR{
		Lo: ADSRLine{AttackTime: 5, AttackLevel: 0xc0, DecayTime: 120, SustainLevel: 0x90, ReleaseTime: 200},
		Hi: ADSRLine{AttackTime: 5, AttackLevel: 0xff, DecayTime: 120, SustainLevel: 0xbf, ReleaseTime: 200},
	}
	flat := ADSRLine{AttackLevel: 0x80, SustainLevel: 0x80}
	switch mode {
	case ModeDrum:
		return &DrumConfig{}
	case ModeWave:
		return &WaveConfig{
			Level:      level,
			Pitch:      ADSR{Lo: flat, Hi: flat},
			PitchRange: 1200,
			WheelRange: 200,
			Shape:      ShapeSine,
		}
	case ModeFM:
		return &FMConfig{
			Level:      level,
			Range:      level,
			Pitch:      ADSR{Lo: flat, Hi: flat},
			PitchRange: 1200,
			WheelRange: 200,
			Rate:       0x0200,
			ModRange:   0x019a,
		}
	case ModeSub:
		return &SubConfig{Level: level, Width: 200}
	case ModeGM:
		return &GMConfig{}
	case ModeNoop:
		return &NoopConfig{}
	}
	return &RawConfig{RawMode: mode}
}

// ParseConfig decodes a channel payload for mode. A payload whose length
// does not match the mode's layout yields the mode's default and ok=false;
// Channel.SetPayload keeps such payloads raw instead.
func ParseConfig(mode Mode, v []byte) (Config, bool) {
	cfg, err := parseConfig(mode, v)
	if err != nil {
		return DefaultConfig(mode), false
	}
	return cfg, true
}

func parseConfig(mode Mode, v []byte) (Config, error) {
	r := bytestream.NewReader(v)
	switch mode {
	case ModeNoop, ModeGM:
		if len(v) > 0 {
			return nil, errors.Wrapf(bytestream.ErrDecode, "%s payload of %d bytes", mode, len(v))
		}
		return DefaultConfig(mode), nil
	case ModeDrum:
		return parseDrum(r)
	case ModeWave:
		if len(v) < waveFixedLen || len(v) != waveFixedLen+2*int(v[31]) {
			return nil, errors.Wrapf(bytestream.ErrDecode, "wave payload of %d bytes", len(v))
		}
		return parseWave(r)
	case ModeFM:
		if len(v) != fmLen {
			return nil, errors.Wrapf(bytestream.ErrDecode, "fm payload of %d bytes", len(v))
		}
		return parseFM(r)
	case ModeSub:
		if len(v) != subLen {
			return nil, errors.Wrapf(bytestream.ErrDecode, "sub payload of %d bytes", len(v))
		}
		level, err := readADSR(r)
		if err != nil {
			return nil, err
		}
		width, err := r.U16BE()
		if err != nil {
			return nil, err
		}
		return &SubConfig{Level: level, Width: width}, nil
	}
	return &RawConfig{RawMode: mode, Data: append([]byte(nil), v...)}, nil
}

func parseDrum(r *bytestream.Reader) (*DrumConfig, error) {
	cfg := &DrumConfig{}
	for !r.EOF() {
		var d DrumNote
		var err error
		if d.NoteID, err = r.U8(); err != nil {
			return nil, err
		}
		if d.TrimLo, err = r.U8(); err != nil {
			return nil, err
		}
		if d.TrimHi, err = r.U8(); err != nil {
			return nil, err
		}
		if d.Level, err = envelope.Read(r); err != nil {
			return nil, err
		}
		n, err := r.U16BE()
		if err != nil {
			return nil, err
		}
		if d.Serial, err = r.Bytes(n); err != nil {
			return nil, err
		}
		cfg.Drums = append(cfg.Drums, d)
	}
	return cfg, nil
}

func parseWave(r *bytestream.Reader) (*WaveConfig, error) {
	cfg := &WaveConfig{}
	var err error
	if cfg.Level, err = readADSR(r); err != nil {
		return nil, err
	}
	if cfg.Pitch, err = readADSR(r); err != nil {
		return nil, err
	}
	fields := []*int{&cfg.PitchRange, &cfg.WheelRange}
	for _, f := range fields {
		if *f, err = r.U16BE(); err != nil {
			return nil, err
		}
	}
	for _, f := range []*int{&cfg.Shape, &cfg.VibratoRate, &cfg.VibratoDepth} {
		if *f, err = r.U8(); err != nil {
			return nil, err
		}
	}
	count, err := r.U8()
	if err != nil {
		return nil, err
	}
	cfg.Harmonics = make([]int, count)
	for i := range cfg.Harmonics {
		if cfg.Harmonics[i], err = r.U16BE(); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

func parseFM(r *bytestream.Reader) (*FMConfig, error) {
	cfg := &FMConfig{}
	var err error
	for _, a := range []*ADSR{&cfg.Level, &cfg.Range, &cfg.Pitch} {
		if *a, err = readADSR(r); err != nil {
			return nil, err
		}
	}
	for _, f := range []*int{&cfg.PitchRange, &cfg.WheelRange, &cfg.Rate, &cfg.ModRange, &cfg.RangeLFORate, &cfg.RangeLFODepth} {
		if *f, err = r.U16BE(); err != nil {
			return nil, err
		}
	}
	if cfg.Feedback, err = r.U8(); err != nil {
		return nil, err
	}
	if cfg.Flags, err = r.U8(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// EncodeConfig serializes cfg into its channel payload layout.
func EncodeConfig(cfg Config) ([]byte, error) {
	b := bytestream.NewBuilder(64)
	if err := cfg.write(b); err != nil {
		return nil, err
	}
	return b.Finish(), nil
}

func (c *DrumConfig) write(b *bytestream.Builder) error {
	for _, d := range c.Drums {
		for _, v := range []int{d.NoteID, d.TrimLo, d.TrimHi} {
			if err := checkU8(v, "drum field"); err != nil {
				return err
			}
		}
		b.U8(d.NoteID)
		b.U8(d.TrimLo)
		b.U8(d.TrimHi)
		if err := envelope.Write(b, d.Level); err != nil {
			return err
		}
		serial := d.Serial
		if err := b.IntBELen(2, func(b *bytestream.Builder) error {
			b.Raw(serial)
			return nil
		}); err != nil {
			return err
		}
	}
	return nil
}

func (c *WaveConfig) write(b *bytestream.Builder) error {
	if len(c.Harmonics) > 0xff {
		return errors.Wrapf(bytestream.ErrEncodeOverflow, "%d harmonics, limit 255", len(c.Harmonics))
	}
	if err := writeADSR(b, c.Level); err != nil {
		return err
	}
	if err := writeADSR(b, c.Pitch); err != nil {
		return err
	}
	for _, v := range []int{c.PitchRange, c.WheelRange} {
		if err := checkU16(v, "wave range"); err != nil {
			return err
		}
		b.U16BE(v)
	}
	for _, v := range []int{c.Shape, c.VibratoRate, c.VibratoDepth} {
		if err := checkU8(v, "wave field"); err != nil {
			return err
		}
		b.U8(v)
	}
	b.U8(len(c.Harmonics))
	for _, h := range c.Harmonics {
		if err := checkU16(h, "harmonic"); err != nil {
			return err
		}
		b.U16BE(h)
	}
	return nil
}

func (c *FMConfig) write(b *bytestream.Builder) error {
	for _, a := range []ADSR{c.Level, c.Range, c.Pitch} {
		if err := writeADSR(b, a); err != nil {
			return err
		}
	}
	for _, v := range []int{c.PitchRange, c.WheelRange, c.Rate, c.ModRange, c.RangeLFORate, c.RangeLFODepth} {
		if err := checkU16(v, "fm field"); err != nil {
			return err
		}
		b.U16BE(v)
	}
	for _, v := range []int{c.Feedback, c.Flags} {
		if err := checkU8(v, "fm field"); err != nil {
			return err
		}
		b.U8(v)
	}
	return nil
}

func (c *SubConfig) write(b *bytestream.Builder) error {
	if err := writeADSR(b, c.Level); err != nil {
		return err
	}
	if err := checkU16(c.Width, "sub width"); err != nil {
		return err
	}
	b.U16BE(c.Width)
	return nil
}

func (*GMConfig) write(*bytestream.Builder) error   { return nil }
func (*NoopConfig) write(*bytestream.Builder) error { return nil }

func (c *RawConfig) write(b *bytestream.Builder) error {
	b.Raw(c.Data)
	return nil
}

func checkU8(v int, what string) error {
	if v < 0 || v > 0xff {
		return errors.Wrapf(bytestream.ErrEncodeOverflow, "%s %d outside u8", what, v)
	}
	return nil
}

func checkU16(v int, what string) error {
	if v < 0 || v > 0xffff {
		return errors.Wrapf(bytestream.ErrEncodeOverflow, "%s %d outside u16", what, v)
	}
	return nil
}
