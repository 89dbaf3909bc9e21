package device

import (
	gomidi "gitlab.com/gomidi/midi/v2"

	"go-midirouter/debug"
)

// PadEvent is sent when a pad or button is pressed on a grid controller
type PadEvent struct {
	Row, Col int
	Velocity uint8
}

// LED modes, sent as the note-on channel
const (
	LEDStatic uint8 = 0
	LEDFlash  uint8 = 1
	LEDPulse  uint8 = 2
)

// Launchpad X sysex header: F0 00 20 29 02 0C
var lpxHeader = []byte{0x00, 0x20, 0x29, 0x02, 0x0C}

func lpxSysEx(body ...byte) []byte {
	return gomidi.SysEx(append(append([]byte{}, lpxHeader...), body...))
}

// Launchpad decodes pad presses from a Novation Launchpad X in programmer
// mode. Its input is the router's CTRL port, so every message still reaches
// the router; the launchpad only taps it.
type Launchpad struct {
	out  *Output
	pads chan PadEvent
}

// NewLaunchpad creates a launchpad writing presses to pads, or to its own
// channel when pads is nil.
func NewLaunchpad(out *Output, pads chan PadEvent) *Launchpad {
	if pads == nil {
		pads = make(chan PadEvent, 32)
	}
	return &Launchpad{out: out, pads: pads}
}

// Init switches the device to programmer mode with full brightness and
// external LED feedback.
func (lp *Launchpad) Init() {
	if lp.out == nil {
		return
	}
	for _, msg := range [][]byte{
		lpxSysEx(0x00, 0x7F),       // programmer mode
		lpxSysEx(0x08, 0x7F),       // brightness
		lpxSysEx(0x0A, 0x01, 0x01), // external LED feedback
	} {
		if !lp.out.SendDirect(msg) {
			debug.Warn("launchpad", "init message dropped on %s", lp.out.Name())
		}
	}
}

// Pads returns pad presses. Presses are dropped while nobody reads.
func (lp *Launchpad) Pads() <-chan PadEvent { return lp.pads }

// Tap is the input tap for the launchpad's in port.
func (lp *Launchpad) Tap(msg gomidi.Message) {
	var channel, key, value uint8
	row, col := -1, -1

	switch {
	case msg.GetNoteOn(&channel, &key, &value) && value > 0:
		row, col = noteToRowCol(key)
	case msg.GetControlChange(&channel, &key, &value) && value > 0:
		row, col = ccToRowCol(key)
	}
	if row < 0 {
		return
	}

	select {
	case lp.pads <- PadEvent{Row: row, Col: col, Velocity: value}:
	default:
	}
}

// Launchpad X note mapping
// 8x8 Grid:  Row 0 (bottom) = notes 11-18, Row 7 = notes 81-88
// Side col:  Col 8 (right side scene buttons) = notes 19, 29, ... 89
// Top row:   Row 8 = CC 91-98 on input, notes 91-98 for LEDs

func rowColToNote(row, col int) uint8 {
	if row == 8 {
		return uint8(91 + col)
	}
	return uint8((row+1)*10 + col + 1)
}

func noteToRowCol(note uint8) (row, col int) {
	if note >= 91 && note <= 98 {
		return 8, int(note - 91)
	}
	row = int(note/10) - 1
	col = int(note%10) - 1
	if row < 0 || row > 7 || col < 0 || col > 8 {
		return -1, -1
	}
	return row, col
}

func ccToRowCol(cc uint8) (row, col int) {
	if cc >= 91 && cc <= 98 {
		return 8, int(cc - 91)
	}
	return -1, -1
}

// Launchpad X palette entries {velocity, R, G, B}
var lpxPalette = [][4]uint8{
	{0, 0, 0, 0},         // off
	{5, 255, 0, 0},       // red
	{6, 255, 80, 80},     // bright red
	{7, 180, 60, 60},     // dim red
	{9, 255, 100, 0},     // orange
	{11, 180, 80, 40},    // dim orange
	{13, 255, 200, 0},    // yellow
	{17, 0, 180, 0},      // green
	{19, 0, 100, 0},      // dim green
	{21, 0, 255, 0},      // bright green
	{37, 0, 200, 200},    // cyan
	{43, 40, 60, 120},    // dim blue
	{45, 0, 100, 255},    // blue
	{47, 80, 150, 255},   // bright blue
	{49, 150, 0, 200},    // purple
	{53, 255, 80, 180},   // pink
	{78, 100, 100, 255},  // light blue
	{84, 255, 150, 50},   // bright orange
	{87, 150, 255, 100},  // lime
	{97, 180, 180, 60},   // dim yellow
	{119, 255, 255, 255}, // white
}

// paletteVelocity finds the nearest Launchpad X palette velocity for an RGB
// value.
func paletteVelocity(rgb [3]uint8) uint8 {
	best := uint8(0)
	bestDist := 1 << 30
	r, g, b := int(rgb[0]), int(rgb[1]), int(rgb[2])
	for _, p := range lpxPalette {
		dr, dg, db := r-int(p[1]), g-int(p[2]), b-int(p[3])
		if d := dr*dr + dg*dg + db*db; d < bestDist {
			bestDist = d
			best = p[0]
		}
	}
	return best
}

// FeedbackSender is the part of the router the channel selector draws with.
type FeedbackSender interface {
	FeedbackNoteOn(ch, pitch, velocity uint8) error
}

// ActiveChannel is the part of the filter state the selector drives.
type ActiveChannel interface {
	SetActiveChan(ch int) error
	ActiveChan() int
}

// ChannelSelector turns the two bottom pad rows into an active-channel
// picker: row 0 holds channels 0-7, row 1 channels 8-15. Pressing the lit
// pad clears the active channel. LEDs are drawn through the controller
// feedback port.
type ChannelSelector struct {
	state ActiveChannel
	fb    FeedbackSender
	on    [3]uint8
	off   [3]uint8
	shown [16]uint8
	drawn bool
}

func NewChannelSelector(state ActiveChannel, fb FeedbackSender, on, off [3]uint8) *ChannelSelector {
	return &ChannelSelector{state: state, fb: fb, on: on, off: off}
}

// PadChannel returns the channel a pad selects, or -1.
func PadChannel(row, col int) int {
	if row < 0 || row > 1 || col < 0 || col > 7 {
		return -1
	}
	return row*8 + col
}

// Press handles one pad event and reports whether the active channel changed.
func (cs *ChannelSelector) Press(ev PadEvent) (bool, error) {
	ch := PadChannel(ev.Row, ev.Col)
	if ch < 0 {
		return false, nil
	}
	if cs.state.ActiveChan() == ch {
		ch = -1
	}
	if err := cs.state.SetActiveChan(ch); err != nil {
		return false, err
	}
	debug.Log("launchpad", "active channel %d", ch)
	return true, cs.Draw()
}

// Draw sends the LEDs that differ from what was last sent.
func (cs *ChannelSelector) Draw() error {
	active := cs.state.ActiveChan()
	for ch := 0; ch < 16; ch++ {
		rgb := cs.off
		if ch == active {
			rgb = cs.on
		}
		vel := paletteVelocity(rgb)
		if cs.drawn && cs.shown[ch] == vel {
			continue
		}
		if err := cs.fb.FeedbackNoteOn(LEDStatic, rowColToNote(ch/8, ch%8), vel); err != nil {
			cs.drawn = false
			return err
		}
		cs.shown[ch] = vel
	}
	cs.drawn = true
	return nil
}

// Clear turns the selector LEDs off.
func (cs *ChannelSelector) Clear() error {
	for ch := 0; ch < 16; ch++ {
		if err := cs.fb.FeedbackNoteOn(LEDStatic, rowColToNote(ch/8, ch%8), 0); err != nil {
			return err
		}
		cs.shown[ch] = 0
	}
	cs.drawn = false
	return nil
}
