package model

import (
	"bytes"
	"testing"
)

func TestChangeModeRestoresCachedConfig(t *testing.T) {
	ch := NewChannel(3, ModeWave)
	wave := ch.Config.(*WaveConfig)
	wave.Harmonics = []int{1, 2, 3}

	ch.ChangeMode(ModeFM)
	if _, ok := ch.Config.(*FMConfig); !ok {
		t.Fatalf("config after switch to fm is %T", ch.Config)
	}
	ch.Config.(*FMConfig).Feedback = 42

	ch.ChangeMode(ModeWave)
	back, ok := ch.Config.(*WaveConfig)
	if !ok || len(back.Harmonics) != 3 {
		t.Fatalf("wave config not restored: %#v", ch.Config)
	}
	ch.ChangeMode(ModeFM)
	if got := ch.Config.(*FMConfig).Feedback; got != 42 {
		t.Fatalf("fm feedback = %d, want 42", got)
	}
	ch.ChangeMode(ModeSub)
	if ch.Config.(*SubConfig).Width != 200 {
		t.Fatalf("fresh mode should get defaults")
	}
}

func TestGMPayloadCarriesProgram(t *testing.T) {
	ch := NewChannel(0, ModeGM)
	v, err := ch.Payload()
	if err != nil || len(v) != 0 {
		t.Fatalf("payload without program = % x, %v", v, err)
	}
	ch.PID = 33
	v, err = ch.Payload()
	if err != nil || len(v) != 1 || v[0] != 33 {
		t.Fatalf("payload = % x, %v", v, err)
	}
	other := NewChannel(0, ModeGM)
	other.SetPayload(v)
	if other.PID != 33 || !other.Equal(ch) {
		t.Fatalf("program did not survive: %d", other.PID)
	}
}

func TestChannelEqualIgnoresCache(t *testing.T) {
	a := NewChannel(1, ModeSub)
	b := NewChannel(1, ModeSub)
	a.ChangeMode(ModeFM)
	a.ChangeMode(ModeSub)
	if !a.Equal(b) {
		t.Fatalf("channels with the same content should be equal")
	}
	b.Trim = 0x20
	if a.Equal(b) {
		t.Fatalf("trim difference not detected")
	}
}

func TestEventPredicates(t *testing.T) {
	for _, tc := range []struct {
		body                  Body
		note, config, adjust bool
	}{
		{Note{NoteID: 60}, true, false, false},
		{NoteOn{}, true, false, false},
		{NoteOff{}, true, false, false},
		{Program{}, false, true, false},
		{Control{Key: ControlVolume}, false, true, false},
		{Wheel{Value: 0x2000}, false, false, true},
		{Pressure{}, false, false, true},
		{NoteAdjust{}, false, false, true},
		{Meta{Type: MetaTempo}, false, false, false},
		{Future{Opcode: 0xb0}, false, false, false},
	} {
		if IsNote(tc.body) != tc.note || IsConfig(tc.body) != tc.config || IsAdjust(tc.body) != tc.adjust {
			t.Fatalf("%T classified wrong", tc.body)
		}
	}
	if (Event{Time: 100, Body: Note{Dur: 64}}).EndTime() != 164 {
		t.Fatalf("note end time wrong")
	}
}

func TestUnparsedPayloadIsKept(t *testing.T) {
	for _, tc := range []struct {
		name string
		mode Mode
		v    []byte
	}{
		{"noop", ModeNoop, []byte{1, 2, 3}},
		{"short wave", ModeWave, []byte{1, 2, 3, 4}},
		{"sub 15", ModeSub, make([]byte, 15)},
		{"truncated drum", ModeDrum, []byte{35, 0, 0}},
		{"gm with extra", ModeGM, []byte{5, 6, 7}},
	} {
		t.Run(tc.name, func(t *testing.T) {
			ch := NewChannel(1, tc.mode)
			ch.SetPayload(tc.v)
			got, err := ch.Payload()
			if err != nil || !bytes.Equal(got, tc.v) {
				t.Fatalf("payload = % x, %v; want % x", got, err, tc.v)
			}
			typed := ch.TypedConfig()
			if _, raw := typed.(*RawConfig); raw || typed.Mode() != tc.mode {
				t.Fatalf("typed config = %#v", typed)
			}
		})
	}

	ch := NewChannel(1, ModeGM)
	ch.SetPayload([]byte{5, 6, 7})
	ch.PID = 9
	if got, _ := ch.Payload(); !bytes.Equal(got, []byte{9, 6, 7}) {
		t.Fatalf("edited program = % x", got)
	}
	if ch.PID != 9 {
		t.Fatalf("pid = %d", ch.PID)
	}
}

func TestTypedConfigOfParsedPayload(t *testing.T) {
	src := NewChannel(2, ModeFM)
	src.Config.(*FMConfig).Feedback = 7
	v, err := src.Payload()
	if err != nil {
		t.Fatalf("payload: %v", err)
	}
	ch := NewChannel(2, ModeFM)
	ch.SetPayload(v)
	fm, ok := ch.TypedConfig().(*FMConfig)
	if !ok || fm.Feedback != 7 {
		t.Fatalf("typed config = %#v", ch.TypedConfig())
	}
}
