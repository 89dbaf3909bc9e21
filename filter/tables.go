package filter

import "go-midirouter/midi"

// DefaultCloneCC is the controller set a clone pair gets when first enabled.
var DefaultCloneCC = []uint8{1, 2, 64, 65, 66, 67, 68}

// NoteRange is the per-channel note window and transpose.
type NoteRange struct {
	Low           uint8
	High          uint8
	OctaveTrans   int8
	HalftoneTrans int8
}

// DefaultNoteRange passes every note untransposed.
var DefaultNoteRange = NoteRange{Low: 0, High: 127}

// Transpose returns the shifted pitch clamped to 0..127.
func (nr NoteRange) Transpose(pitch uint8) uint8 {
	return clamp7(int(pitch) + int(nr.OctaveTrans)*12 + int(nr.HalftoneTrans))
}

// Contains reports whether pitch lies inside the window.
func (nr NoteRange) Contains(pitch uint8) bool {
	return pitch >= nr.Low && pitch <= nr.High
}

// Clone is one (from, to) channel pair.
type Clone struct {
	Enabled    bool
	configured bool
	CC         [128]bool
}

func (c *Clone) setCC(ccs []uint8) {
	c.CC = [128]bool{}
	for _, cc := range ccs {
		if cc < 128 {
			c.CC[cc] = true
		}
	}
	c.configured = true
}

// Mapping is one event map entry. Type Ignore drops the source event, Thru
// passes it unchanged; any channel type is a replacement template whose value
// is taken from the source event.
type Mapping struct {
	Set     bool
	Type    midi.Type
	Channel uint8
	Number  uint8
}

// Partner is the other side of a CC swap, or a reverse CC map entry.
type Partner struct {
	Set     bool
	Channel uint8
	Number  uint8
}

// Tables is an immutable snapshot of the structural filter tables. Writers
// copy, modify and publish a new snapshot; the cycle only ever loads one.
type Tables struct {
	NoteRange [midi.NumChannels]NoteRange
	Clone     [midi.NumChannels][midi.NumChannels]Clone
	EventMap  [midi.NumMapTypes][midi.NumChannels][128]Mapping
	Swap      [midi.NumChannels][128]Partner

	// reverse CC→CC index used for controller feedback
	ccReverse [midi.NumChannels][128]Partner
}

func newTables() *Tables {
	t := &Tables{}
	for ch := range t.NoteRange {
		t.NoteRange[ch] = DefaultNoteRange
	}
	return t
}

func (t *Tables) clone() *Tables {
	c := *t
	return &c
}

func (t *Tables) rebuildReverse() {
	t.ccReverse = [midi.NumChannels][128]Partner{}
	row := &t.EventMap[midi.ControlChange.MapIndex()]
	for ch := range row {
		for num := range row[ch] {
			m := row[ch][num]
			if !m.Set || m.Type != midi.ControlChange {
				continue
			}
			rev := &t.ccReverse[m.Channel][m.Number]
			if !rev.Set {
				*rev = Partner{Set: true, Channel: uint8(ch), Number: uint8(num)}
			}
		}
	}
}

// mapKey returns the event map column for an event.
func mapKey(ev midi.Event) uint8 {
	switch ev.Type {
	case midi.ProgramChange:
		return ev.Value
	case midi.ChannelPressure, midi.PitchBend:
		return 0
	}
	return ev.Number
}

func clamp7(v int) uint8 {
	if v < 0 {
		return 0
	}
	if v > 127 {
		return 127
	}
	return uint8(v)
}
