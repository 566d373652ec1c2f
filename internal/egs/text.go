package egs

import (
	"encoding/hex"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"github.com/cbegin/eggsong-go/internal/bytestream"
	"github.com/cbegin/eggsong-go/internal/model"
)

type textChannel struct {
	ch      *model.Channel
	payload []byte
	hasV    bool
}

// DecodeText parses the line-oriented text form. Lines it does not
// understand inside a section are skipped; only an unknown keyword ahead of
// the first section fails the decode.
func DecodeText(src string) (*Document, error) {
	doc := &Document{}
	var (
		section string
		cur     *textChannel
		order   []*textChannel
		byID    = map[int]*textChannel{}
	)
	for i, line := range strings.Split(src, "\n") {
		if k := strings.IndexByte(line, '#'); k >= 0 {
			line = line[:k]
		}
		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}
		switch fields[0] {
		case "channel":
			section = "channel"
			cur = nil
			if len(fields) < 2 {
				continue
			}
			id, err := parseInt(fields[1])
			if err != nil || id < 0 || id >= model.ChannelCount {
				continue
			}
			if tc, ok := byID[id]; ok {
				cur = tc
				continue
			}
			cur = &textChannel{ch: model.NewChannel(id, model.ModeNoop)}
			byID[id] = cur
			order = append(order, cur)
			continue
		case "events":
			section = "events"
			cur = nil
			continue
		}
		switch section {
		case "":
			return nil, errors.Wrapf(bytestream.ErrDecode, "unexpected %q on line %d", fields[0], i+1)
		case "channel":
			if cur != nil {
				cur.field(fields, line)
			}
		case "events":
			if fields[0] == "end" && len(fields) == 2 {
				if n, err := parseInt(fields[1]); err == nil && n > doc.Length {
					doc.Length = n
				}
				continue
			}
			if ev, ok := parseEventLine(fields); ok {
				doc.Events = append(doc.Events, ev)
			}
		}
	}
	for _, tc := range order {
		if tc.hasV {
			tc.ch.SetPayload(tc.payload)
		}
		doc.Channels = append(doc.Channels, tc.ch)
	}
	sort.SliceStable(doc.Events, func(i, j int) bool {
		return doc.Events[i].Time < doc.Events[j].Time
	})
	for _, ev := range doc.Events {
		if ev.Time > doc.Length {
			doc.Length = ev.Time
		}
	}
	return doc, nil
}

func (tc *textChannel) field(fields []string, line string) {
	ch := tc.ch
	switch fields[0] {
	case "trim":
		if len(fields) > 1 {
			if n, err := parseInt(fields[1]); err == nil {
				ch.Trim = n
			}
		}
	case "mode":
		if len(fields) > 1 {
			if m, ok := model.ParseMode(fields[1]); ok {
				ch.Mode = m
				ch.Config = model.DefaultConfig(m)
			}
		}
	case "pid":
		if len(fields) > 1 {
			if n, err := parseInt(fields[1]); err == nil {
				ch.PID = n
			}
		}
	case "name":
		ch.Name = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(line), "name"))
	case "v":
		for _, f := range fields[1:] {
			if b, err := hex.DecodeString(strings.TrimPrefix(f, "0x")); err == nil {
				tc.payload = append(tc.payload, b...)
			}
		}
		tc.hasV = true
	}
}

func parseEventLine(fields []string) (model.Event, bool) {
	if len(fields) < 3 {
		return model.Event{}, false
	}
	at, err := parseInt(fields[0])
	if err != nil || at < 0 {
		return model.Event{}, false
	}
	switch fields[1] {
	case "note":
		if len(fields) != 6 {
			return model.Event{}, false
		}
		var v [4]int
		for k := range v {
			if v[k], err = parseInt(fields[2+k]); err != nil {
				return model.Event{}, false
			}
		}
		return model.Event{
			Time: at,
			Chid: v[0],
			Body: model.Note{NoteID: v[1], Velocity: v[2], Dur: v[3]},
		}, true
	case "future":
		op, err := strconv.ParseUint(strings.TrimPrefix(fields[2], "0x"), 16, 8)
		if err != nil || op < 0xb0 || op == 0xff {
			return model.Event{}, false
		}
		payload := []byte{}
		for _, f := range fields[3:] {
			b, err := hex.DecodeString(strings.TrimPrefix(f, "0x"))
			if err != nil {
				return model.Event{}, false
			}
			payload = append(payload, b...)
		}
		chid := int(op & 0x0f)
		if op >= 0xf0 {
			chid = model.ChidNone
		}
		return model.Event{
			Time: at,
			Chid: chid,
			Body: model.Future{Opcode: int(op), Payload: payload},
		}, true
	}
	return model.Event{}, false
}

func parseInt(s string) (int, error) {
	n, err := strconv.ParseInt(s, 0, 64)
	return int(n), err
}

// EncodeText renders doc in the text form. Only EGS shaped events are
// written.
func EncodeText(doc *Document) (string, error) {
	var sb strings.Builder
	for _, ch := range doc.Channels {
		if ch == nil {
			continue
		}
		payload, err := ch.Payload()
		if err != nil {
			return "", errors.Wrapf(err, "channel %d", ch.ID)
		}
		fmt.Fprintf(&sb, "channel %d\n", ch.ID)
		fmt.Fprintf(&sb, "trim %d\n", ch.Trim)
		fmt.Fprintf(&sb, "mode %s\n", ch.Mode)
		if ch.PID != model.NoProgram && ch.Mode != model.ModeGM {
			fmt.Fprintf(&sb, "pid %d\n", ch.PID)
		}
		if ch.Name != "" {
			fmt.Fprintf(&sb, "name %s\n", ch.Name)
		}
		if ch.Mode == model.ModeGM {
			// the program id leads the payload
			if len(payload) <= 1 {
				payload = nil
			}
			if ch.PID != model.NoProgram {
				fmt.Fprintf(&sb, "pid %d\n", ch.PID)
			}
		}
		for off := 0; off < len(payload); off += 16 {
			end := off + 16
			if end > len(payload) {
				end = len(payload)
			}
			sb.WriteString("v")
			for _, c := range payload[off:end] {
				fmt.Fprintf(&sb, " %02x", c)
			}
			sb.WriteString("\n")
		}
		sb.WriteString("\n")
	}
	sb.WriteString("events\n")
	last := 0
	for _, ev := range doc.Events {
		switch body := ev.Body.(type) {
		case model.Note:
			fmt.Fprintf(&sb, "%d note %d %d %d %d\n", ev.Time, ev.Chid, body.NoteID, body.Velocity, body.Dur)
		case model.Future:
			op, err := FutureOpcode(ev.Chid, body.Opcode)
			if err != nil {
				return "", err
			}
			fmt.Fprintf(&sb, "%d future %02x", ev.Time, op)
			for _, c := range body.Payload {
				fmt.Fprintf(&sb, " %02x", c)
			}
			sb.WriteString("\n")
		default:
			continue
		}
		last = ev.Time
	}
	if doc.Length > last {
		fmt.Fprintf(&sb, "end %d\n", doc.Length)
	}
	return sb.String(), nil
}
