package main

import (
	"bytes"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	"gitlab.com/gomidi/midi/v2/smf"
	"gopkg.in/yaml.v3"

	"github.com/cbegin/eggsong-go"
)

type fileConfig struct {
	To       string `yaml:"to"`       // egs, mid or text
	Division int    `yaml:"division"` // MIDI ticks per quarter note
}

func main() {
	var (
		inPath     = flag.String("in", "", "input file (EGS, MIDI or EGS text)")
		outPath    = flag.String("out", "", "output file")
		to         = flag.String("to", "", "output format: egs|mid|text (default from -out extension)")
		division   = flag.Int("division", eggsong.DefaultDivision, "MIDI ticks per quarter note when writing MIDI")
		info       = flag.Bool("info", false, "print a summary of the input")
		dump       = flag.Bool("dump", false, "print the decoded song as YAML")
		configPath = flag.String("config", "", "YAML file with defaults for to and division")
	)
	flag.Parse()

	if *configPath != "" {
		cfg, err := loadConfig(*configPath)
		if err != nil {
			log.Fatal(err)
		}
		set := map[string]bool{}
		flag.Visit(func(f *flag.Flag) { set[f.Name] = true })
		if !set["to"] && cfg.To != "" {
			*to = cfg.To
		}
		if !set["division"] && cfg.Division > 0 {
			*division = cfg.Division
		}
	}

	if strings.TrimSpace(*inPath) == "" {
		log.Fatal("missing -in")
	}
	src, err := os.ReadFile(*inPath)
	if err != nil {
		log.Fatal(err)
	}
	song, err := decodeInput(*inPath, src)
	if err != nil {
		log.Fatalf("%s: %v", *inPath, err)
	}

	if *info {
		printInfo(song)
		if song.Format == eggsong.FormatMIDI {
			if err := printSMFInfo(src); err != nil {
				log.Fatal(err)
			}
		}
	}
	if *dump {
		out, err := yaml.Marshal(dumpSong(song))
		if err != nil {
			log.Fatal(err)
		}
		os.Stdout.Write(out)
	}

	if *outPath == "" {
		return
	}
	target, err := resolveTarget(*to, *outPath)
	if err != nil {
		log.Fatal(err)
	}
	var data []byte
	switch target {
	case "text":
		text, err := song.EncodeText()
		if err != nil {
			log.Fatal(err)
		}
		data = []byte(text)
	default:
		format, _ := eggsong.ParseFormat(target)
		data, err = song.EncodeAs(format, eggsong.WithDivision(*division))
	}
	if err != nil {
		log.Fatal(err)
	}
	if err := os.WriteFile(*outPath, data, 0o644); err != nil {
		log.Fatal(err)
	}
	fmt.Printf("wrote %s (%s, %d bytes)\n", *outPath, target, len(data))
}

func loadConfig(path string) (fileConfig, error) {
	var cfg fileConfig
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// decodeInput reads binary EGS and MIDI by signature and falls back to the
// text form for anything else.
func decodeInput(path string, src []byte) (*eggsong.Song, error) {
	if bytes.HasPrefix(src, []byte("\x00EGS")) || bytes.HasPrefix(src, []byte("MThd")) {
		return eggsong.Decode(src)
	}
	if ext := strings.ToLower(filepath.Ext(path)); ext == ".mid" || ext == ".midi" {
		return eggsong.Decode(src)
	}
	return eggsong.DecodeText(string(src))
}

// resolveTarget picks "text" or a Format name from -to, then from the
// output extension, then EGS.
func resolveTarget(to, outPath string) (string, error) {
	to = strings.ToLower(strings.TrimSpace(to))
	if to == "" {
		to = strings.TrimPrefix(strings.ToLower(filepath.Ext(outPath)), ".")
		if _, ok := eggsong.ParseFormat(to); !ok && to != "txt" {
			to = eggsong.FormatEGS.String()
		}
	}
	if to == "text" || to == "txt" {
		return "text", nil
	}
	f, ok := eggsong.ParseFormat(to)
	if !ok {
		return "", fmt.Errorf("invalid -to %q (expected egs|mid|text)", to)
	}
	return f.String(), nil
}

func printInfo(song *eggsong.Song) {
	fmt.Printf("Format: %s\n", song.Format)
	if song.Format == eggsong.FormatMIDI {
		fmt.Printf("Ticks per quarter note: %d\n", song.Division)
	}
	fmt.Printf("Duration: %d ms\n", song.Duration())
	for _, ch := range song.Channels {
		if ch == nil {
			continue
		}
		fmt.Printf("Channel %d: mode=%s trim=%d", ch.ID, ch.Mode, ch.Trim)
		if ch.PID >= 0 {
			fmt.Printf(" program=%d", ch.PID)
		}
		if ch.Name != "" {
			fmt.Printf(" name=%q", ch.Name)
		}
		fmt.Println()
	}
	var notes, configs, adjusts, other int
	for _, ev := range song.Events {
		switch {
		case eggsong.IsNoteEvent(ev):
			notes++
		case eggsong.IsConfigEvent(ev):
			configs++
		case eggsong.IsAdjustEvent(ev):
			adjusts++
		default:
			other++
		}
	}
	fmt.Printf("Events: %d note, %d config, %d adjust, %d other\n", notes, configs, adjusts, other)
}

// printSMFInfo describes a MIDI file as an independent reader sees it.
func printSMFInfo(src []byte) error {
	s, err := smf.ReadFrom(bytes.NewReader(src))
	if err != nil {
		return fmt.Errorf("smf: %w", err)
	}
	fmt.Printf("SMF format %d, %d tracks", s.Format(), len(s.Tracks))
	if tf, ok := s.TimeFormat.(smf.MetricTicks); ok {
		fmt.Printf(", %d ticks per quarter note", tf)
	}
	fmt.Println()
	for i, track := range s.Tracks {
		var name string
		var noteOns int
		var ticks uint32
		for _, ev := range track {
			ticks += ev.Delta
			var ch, key, vel uint8
			if ev.Message.GetNoteOn(&ch, &key, &vel) && vel > 0 {
				noteOns++
			}
			if name == "" {
				ev.Message.GetMetaTrackName(&name)
			}
		}
		fmt.Printf("  track %d: %d events, %d note-ons, %d ticks", i, len(track), noteOns, ticks)
		if name != "" {
			fmt.Printf(", %q", name)
		}
		fmt.Println()
	}
	return nil
}
