package model

import (
	"github.com/pkg/errors"

	"github.com/cbegin/eggsong-go/internal/bytestream"
)

const (
	ChannelCount = 16
	// TrimUnity is the trim value that leaves a channel's level unchanged.
	TrimUnity = 0x80
	// NoProgram marks a channel without a General MIDI program id.
	NoProgram = -1
)

type Channel struct {
	ID     int
	Trim   int
	Mode   Mode
	PID    int
	Name   string
	Config Config

	// Configs this channel held under other modes, restored when the
	// mode is switched back.
	cached map[Mode]Config
}

// NewChannel returns a channel in mode with its default configuration.
func NewChannel(id int, mode Mode) *Channel {
	return &Channel{
		ID:     id,
		Trim:   TrimUnity,
		Mode:   mode,
		PID:    NoProgram,
		Config: DefaultConfig(mode),
	}
}

// ChangeMode switches the channel to mode. The outgoing configuration is
// remembered so that switching back restores it.
func (c *Channel) ChangeMode(mode Mode) {
	if c.Mode == mode && c.Config != nil {
		return
	}
	if c.cached == nil {
		c.cached = make(map[Mode]Config)
	}
	if c.Config != nil {
		c.cached[c.Mode] = c.Config
	}
	c.Mode = mode
	if cfg, ok := c.cached[mode]; ok {
		c.Config = cfg
		return
	}
	c.Config = DefaultConfig(mode)
}

// Payload serializes the channel's configuration the way a channel header
// carries it. GM channels carry their program id instead. A payload that
// did not parse for the channel's mode is written back as it was read.
func (c *Channel) Payload() ([]byte, error) {
	if c.Mode == ModeGM {
		var v []byte
		if raw, ok := c.Config.(*RawConfig); ok && raw.RawMode == ModeGM {
			v = append(v, raw.Data...)
		}
		if c.PID == NoProgram {
			if len(v) > 0 {
				return v[1:], nil
			}
			return nil, nil
		}
		if err := checkU8(c.PID, "program id"); err != nil {
			return nil, err
		}
		if len(v) == 0 {
			return []byte{byte(c.PID)}, nil
		}
		v[0] = byte(c.PID)
		return v, nil
	}
	cfg := c.Config
	if cfg == nil || cfg.Mode() != c.Mode {
		cfg = DefaultConfig(c.Mode)
	}
	return EncodeConfig(cfg)
}

// SetPayload installs a channel header payload for the channel's mode. A
// payload that does not fit the mode's layout is kept verbatim in a
// RawConfig; TypedConfig gives the mode's default for it.
func (c *Channel) SetPayload(v []byte) {
	if c.Mode == ModeGM {
		if len(v) >= 1 {
			c.PID = int(v[0])
		}
		c.Config = &GMConfig{}
		if len(v) > 1 {
			c.Config = &RawConfig{RawMode: ModeGM, Data: append([]byte(nil), v...)}
		}
		return
	}
	cfg, err := parseConfig(c.Mode, v)
	if err != nil {
		cfg = &RawConfig{RawMode: c.Mode, Data: append([]byte(nil), v...)}
	}
	c.Config = cfg
}

// TypedConfig returns the channel's configuration as its mode's type. A
// payload that was kept raw because it did not parse reads as the default.
func (c *Channel) TypedConfig() Config {
	if raw, ok := c.Config.(*RawConfig); ok && raw.RawMode == c.Mode {
		if _, known := modeNames[c.Mode]; known {
			return DefaultConfig(c.Mode)
		}
		return raw
	}
	if c.Config == nil || c.Config.Mode() != c.Mode {
		return DefaultConfig(c.Mode)
	}
	return c.Config
}

// Equal compares everything but the mode cache.
func (c *Channel) Equal(o *Channel) bool {
	if c == nil || o == nil {
		return c == o
	}
	if c.ID != o.ID || c.Trim != o.Trim || c.Mode != o.Mode || c.PID != o.PID || c.Name != o.Name {
		return false
	}
	a, err := c.Payload()
	if err != nil {
		return false
	}
	b, err := o.Payload()
	if err != nil {
		return false
	}
	return string(a) == string(b)
}

// CheckHeader validates the fixed fields of a channel header.
func (c *Channel) CheckHeader() error {
	if c.ID < 0 || c.ID >= ChannelCount {
		return errors.Wrapf(bytestream.ErrEncodeOverflow, "channel id %d", c.ID)
	}
	return checkU8(c.Trim, "trim")
}
