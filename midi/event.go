package midi

import (
	"fmt"

	gomidi "gitlab.com/gomidi/midi/v2"
)

// Type identifies a MIDI message kind. Channel message types use the status
// high nibble, system types use the full status byte and router-internal
// sentinels are negative so they can never collide with wire values.
type Type int16

// Router-internal pseudo events. Never emitted to a sink.
const (
	CtrlSwitch Type = -7
	GateOut    Type = -6
	CVGateOut  Type = -5
	CVGateIn   Type = -4
	Swap       Type = -3
	Ignore     Type = -2
	Thru       Type = -1
	None       Type = 0
)

// Channel messages
const (
	NoteOff         Type = 0x8
	NoteOn          Type = 0x9
	KeyPress        Type = 0xA
	ControlChange   Type = 0xB
	ProgramChange   Type = 0xC
	ChannelPressure Type = 0xD
	PitchBend       Type = 0xE
)

// System messages
const (
	SysExStart   Type = 0xF0
	TimeCodeQF   Type = 0xF1
	SongPosition Type = 0xF2
	SongSelect   Type = 0xF3
	TuneRequest  Type = 0xF6
	SysExEnd     Type = 0xF7
	Clock        Type = 0xF8
	Start        Type = 0xFA
	Continue     Type = 0xFB
	Stop         Type = 0xFC
	ActiveSense  Type = 0xFE
	Reset        Type = 0xFF
)

// NumChannels is the number of MIDI channels.
const NumChannels = 16

// NumMapTypes is the number of channel message types (NoteOff..PitchBend).
const NumMapTypes = 8

// PitchBendCenter is the 14-bit pitch bend rest value.
const PitchBendCenter = 8192

// IsChannel reports whether t is a channel voice message.
func (t Type) IsChannel() bool {
	return t >= NoteOff && t <= PitchBend
}

// IsSystem reports whether t is a system common/real-time/sysex message.
func (t Type) IsSystem() bool {
	return t >= SysExStart && t <= Reset
}

// IsInternal reports whether t is a router-internal sentinel.
func (t Type) IsInternal() bool {
	return t < None
}

// MapIndex returns the event map row of a channel type (0..7).
func (t Type) MapIndex() int {
	return int(t - NoteOff)
}

func (t Type) String() string {
	switch t {
	case NoteOff:
		return "NoteOff"
	case NoteOn:
		return "NoteOn"
	case KeyPress:
		return "KeyPress"
	case ControlChange:
		return "CC"
	case ProgramChange:
		return "ProgramChange"
	case ChannelPressure:
		return "ChanPressure"
	case PitchBend:
		return "PitchBend"
	case SysExStart:
		return "SysEx"
	case SysExEnd:
		return "SysExEnd"
	case TimeCodeQF:
		return "TimeCodeQF"
	case SongPosition:
		return "SongPosition"
	case SongSelect:
		return "SongSelect"
	case TuneRequest:
		return "TuneRequest"
	case Clock:
		return "Clock"
	case Start:
		return "Start"
	case Continue:
		return "Continue"
	case Stop:
		return "Stop"
	case ActiveSense:
		return "ActiveSense"
	case Reset:
		return "Reset"
	case Ignore:
		return "Ignore"
	case Thru:
		return "Thru"
	case Swap:
		return "Swap"
	}
	return fmt.Sprintf("Type(%d)", int(t))
}

// Event is the canonical MIDI message used throughout the router.
//
// Three-byte channel messages keep data1 in Number and data2 in Value.
// ProgramChange and ChannelPressure keep their single data byte in Value.
// PitchBend keeps LSB in Number and MSB in Value. System messages carry no
// channel; SongPosition uses Number/Value as LSB/MSB, SongSelect and
// TimeCodeQF use Value.
type Event struct {
	Type    Type
	Channel uint8
	Number  uint8
	Value   uint8
}

// NewNoteOn builds a note-on event
func NewNoteOn(channel, note, velocity uint8) Event {
	return Event{Type: NoteOn, Channel: channel & 0x0F, Number: note & 0x7F, Value: velocity & 0x7F}
}

// NewNoteOff builds a note-off event
func NewNoteOff(channel, note, velocity uint8) Event {
	return Event{Type: NoteOff, Channel: channel & 0x0F, Number: note & 0x7F, Value: velocity & 0x7F}
}

// NewKeyPress builds a polyphonic key pressure event
func NewKeyPress(channel, note, pressure uint8) Event {
	return Event{Type: KeyPress, Channel: channel & 0x0F, Number: note & 0x7F, Value: pressure & 0x7F}
}

// NewControlChange builds a control change event
func NewControlChange(channel, controller, value uint8) Event {
	return Event{Type: ControlChange, Channel: channel & 0x0F, Number: controller & 0x7F, Value: value & 0x7F}
}

// NewProgramChange builds a program change event
func NewProgramChange(channel, program uint8) Event {
	return Event{Type: ProgramChange, Channel: channel & 0x0F, Value: program & 0x7F}
}

// NewChannelPressure builds a channel pressure event
func NewChannelPressure(channel, pressure uint8) Event {
	return Event{Type: ChannelPressure, Channel: channel & 0x0F, Value: pressure & 0x7F}
}

// NewPitchBend builds a pitch bend event from a 14-bit value (8192 = center)
func NewPitchBend(channel uint8, bend uint16) Event {
	bend &= 0x3FFF
	return Event{Type: PitchBend, Channel: channel & 0x0F, Number: uint8(bend & 0x7F), Value: uint8(bend >> 7)}
}

// Bend returns the 14-bit pitch bend value.
func (e Event) Bend() uint16 {
	return uint16(e.Value)<<7 | uint16(e.Number)
}

// SetBend replaces the 14-bit pitch bend value.
func (e *Event) SetBend(bend uint16) {
	bend &= 0x3FFF
	e.Number = uint8(bend & 0x7F)
	e.Value = uint8(bend >> 7)
}

// Status returns the wire status byte.
func (e Event) Status() uint8 {
	if e.Type.IsChannel() {
		return uint8(e.Type)<<4 | e.Channel&0x0F
	}
	if e.Type.IsSystem() {
		return uint8(e.Type)
	}
	return 0
}

// Size returns the wire length in bytes, 0 for internal events.
func (e Event) Size() int {
	return statusSize(e.Status())
}

// AppendBytes appends the wire encoding of e to dst. It never allocates
// when dst has capacity for Size() more bytes.
func (e Event) AppendBytes(dst []byte) []byte {
	switch e.Size() {
	case 1:
		return append(dst, e.Status())
	case 2:
		return append(dst, e.Status(), e.Value&0x7F)
	case 3:
		return append(dst, e.Status(), e.Number&0x7F, e.Value&0x7F)
	}
	return dst
}

// Message converts the event to a gomidi message for sending to a driver.
func (e Event) Message() gomidi.Message {
	switch e.Type {
	case NoteOn:
		return gomidi.NoteOn(e.Channel, e.Number, e.Value)
	case NoteOff:
		return gomidi.NoteOffVelocity(e.Channel, e.Number, e.Value)
	case KeyPress:
		return gomidi.PolyAfterTouch(e.Channel, e.Number, e.Value)
	case ControlChange:
		return gomidi.ControlChange(e.Channel, e.Number, e.Value)
	case ProgramChange:
		return gomidi.ProgramChange(e.Channel, e.Value)
	case ChannelPressure:
		return gomidi.AfterTouch(e.Channel, e.Value)
	case PitchBend:
		return gomidi.Pitchbend(e.Channel, int16(e.Bend())-PitchBendCenter)
	}
	return gomidi.Message(e.AppendBytes(nil))
}

func (e Event) String() string {
	if e.Type.IsInternal() {
		return e.Type.String()
	}
	return e.Message().String()
}
