package main

import (
	"encoding/hex"
	"fmt"

	"github.com/cbegin/eggsong-go"
)

type songDump struct {
	Format   string        `yaml:"format"`
	Division int           `yaml:"division,omitempty"`
	Length   int           `yaml:"length_ms"`
	Channels []channelDump `yaml:"channels"`
	Events   []eventDump   `yaml:"events"`
}

type channelDump struct {
	ID      int    `yaml:"id"`
	Mode    string `yaml:"mode"`
	Trim    int    `yaml:"trim"`
	Program *int   `yaml:"program,omitempty"`
	Name    string `yaml:"name,omitempty"`
	Payload string `yaml:"payload,omitempty"` // hex
}

type eventDump struct {
	ID     int    `yaml:"id"`
	Time   int    `yaml:"time_ms"`
	Chid   *int   `yaml:"chid,omitempty"`
	Track  int    `yaml:"track,omitempty"`
	Kind   string `yaml:"kind"`
	Detail string `yaml:"detail,omitempty"`
}

func dumpSong(song *eggsong.Song) songDump {
	d := songDump{Format: song.Format.String(), Length: song.Length}
	if song.Format == eggsong.FormatMIDI {
		d.Division = song.Division
	}
	for _, ch := range song.Channels {
		if ch == nil {
			continue
		}
		cd := channelDump{ID: ch.ID, Mode: ch.Mode.String(), Trim: ch.Trim, Name: ch.Name}
		if ch.PID >= 0 {
			pid := ch.PID
			cd.Program = &pid
		}
		if ch.Mode != eggsong.ModeGM {
			if v, err := ch.Payload(); err == nil && len(v) > 0 {
				cd.Payload = hex.EncodeToString(v)
			}
		}
		d.Channels = append(d.Channels, cd)
	}
	for _, ev := range song.Events {
		kind, detail := describe(ev.Body)
		ed := eventDump{ID: ev.ID, Time: ev.Time, Track: ev.Track, Kind: kind, Detail: detail}
		if ev.Chid != eggsong.ChidNone {
			chid := ev.Chid
			ed.Chid = &chid
		}
		d.Events = append(d.Events, ed)
	}
	return d
}

func describe(body eggsong.Body) (string, string) {
	switch b := body.(type) {
	case eggsong.Note:
		return "note", fmt.Sprintf("note=%d vel=%d dur=%d", b.NoteID, b.Velocity, b.Dur)
	case eggsong.Future:
		return "future", fmt.Sprintf("op=%#02x %s", b.Opcode, hex.EncodeToString(b.Payload))
	case eggsong.NoteOn:
		return "note_on", fmt.Sprintf("note=%d vel=%d", b.NoteID, b.Velocity)
	case eggsong.NoteOff:
		return "note_off", fmt.Sprintf("note=%d vel=%d", b.NoteID, b.Velocity)
	case eggsong.NoteAdjust:
		return "note_adjust", fmt.Sprintf("note=%d vel=%d", b.NoteID, b.Velocity)
	case eggsong.Control:
		return "control", fmt.Sprintf("key=%d value=%d", b.Key, b.Value)
	case eggsong.Program:
		return "program", fmt.Sprintf("pid=%d", b.PID)
	case eggsong.Pressure:
		return "pressure", fmt.Sprintf("vel=%d", b.Velocity)
	case eggsong.Wheel:
		return "wheel", fmt.Sprintf("value=%d", b.Value)
	case eggsong.Meta:
		return "meta", fmt.Sprintf("type=%#02x %q", b.Type, b.Payload)
	case eggsong.Sysex:
		return "sysex", fmt.Sprintf("status=%#02x %s", b.Status, hex.EncodeToString(b.Payload))
	}
	return "unknown", ""
}
