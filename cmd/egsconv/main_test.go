package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"gopkg.in/yaml.v3"

	"github.com/cbegin/eggsong-go"
)

func TestResolveTarget(t *testing.T) {
	for _, tc := range []struct {
		to, out, want string
	}{
		{"", "song.mid", "mid"},
		{"", "song.txt", "text"},
		{"", "song.egs", "egs"},
		{"", "song.midi", "mid"},
		{"", "song.bin", "egs"},
		{"MIDI", "song.egs", "mid"},
		{"text", "song.mid", "text"},
	} {
		got, err := resolveTarget(tc.to, tc.out)
		if err != nil || got != tc.want {
			t.Fatalf("resolveTarget(%q, %q) = %q, %v; want %q", tc.to, tc.out, got, err, tc.want)
		}
	}
	if _, err := resolveTarget("wav", "x"); err == nil {
		t.Fatalf("expected error for unknown target")
	}
}

func TestLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "egsconv.yaml")
	if err := os.WriteFile(path, []byte("to: mid\ndivision: 480\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	cfg, err := loadConfig(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.To != "mid" || cfg.Division != 480 {
		t.Fatalf("config = %+v", cfg)
	}
}

func TestDecodeInputFallsBackToText(t *testing.T) {
	song, err := decodeInput("song.txt", []byte("channel 0\nmode wave\nevents\n0 note 0 60 100 0\n"))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(song.Events) != 1 || song.Channels[0] == nil {
		t.Fatalf("song = %+v", song)
	}
}

func TestDumpSong(t *testing.T) {
	song := eggsong.New()
	ch, _ := song.DefineChannel(3)
	ch.Name = "Lead"
	song.NewEvent(0, 3, eggsong.Note{NoteID: 60, Velocity: 100, Dur: 250})
	song.NewEvent(10, eggsong.ChidNone, eggsong.Meta{Type: 0x01, Payload: []byte("hi")})

	out, err := yaml.Marshal(dumpSong(song))
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var back songDump
	if err := yaml.Unmarshal(out, &back); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(back.Channels) != 1 || back.Channels[0].Mode != "wave" || back.Channels[0].Payload == "" {
		t.Fatalf("channels = %+v", back.Channels)
	}
	if len(back.Events) != 2 || back.Events[0].Kind != "note" || *back.Events[0].Chid != 3 || back.Events[1].Chid != nil {
		t.Fatalf("events = %+v", back.Events)
	}
	if !strings.Contains(string(out), "dur=250") {
		t.Fatalf("dump missing note detail:\n%s", out)
	}
}
