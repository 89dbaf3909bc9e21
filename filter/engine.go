package filter

import (
	"sync/atomic"

	"go-midirouter/midi"
)

// InputFlags select which pipeline stages apply to events from a source.
type InputFlags uint32

const (
	FlagUI         InputFlags = 1 << iota // notify the UI queue
	FlagController                        // report CC values to hardware controls
	FlagClone                             // clone fan-out
	FlagFilter                            // event map and controller auto-mode
	FlagSwap                              // CC swap
	FlagNoteRange                         // note range, transpose and note pairing
	FlagActiveChan                        // active channel delivery
	FlagFeedback                          // controller feedback reverse mapping
)

// Scope says which output ports a result may reach. Bits combine; a port is
// evaluated once per result so it can't receive duplicates.
type Scope uint8

const (
	ScopeRouted   Scope = 1 << iota // ports whose channel map accepts the event
	ScopeActive                     // ports listening to the active channel
	ScopeMaster                     // ports listening to the master channel
	ScopeFeedback                   // controller feedback ports
)

// Result is one engine output.
type Result struct {
	Event midi.Event
	Scope Scope
}

// MaxResults bounds the output of a single Filter call.
const MaxResults = 32

// Batch is a fixed-capacity result list reused across calls.
type Batch struct {
	items    [MaxResults]Result
	n        int
	overflow uint64
}

func (b *Batch) Reset()           { b.n = 0 }
func (b *Batch) Len() int         { return b.n }
func (b *Batch) At(i int) Result  { return b.items[i] }
func (b *Batch) Overflow() uint64 { return b.overflow }
func (b *Batch) Items() []Result  { return b.items[:b.n] }

func (b *Batch) push(ev midi.Event, scope Scope) {
	if b.n == len(b.items) {
		b.overflow++
		return
	}
	b.items[b.n] = Result{Event: ev, Scope: scope}
	b.n++
}

// Notifier receives events for the user interface. Implementations must not
// block.
type Notifier interface {
	WriteEvent(ev midi.Event) bool
}

// Reporter is called when an incoming controller value should update the
// physical controls bound to it.
type Reporter interface {
	ReportControllerValue(channel, number, value uint8)
}

// Controller auto-mode policy. A controller is assumed absolute and repeated
// values never change that. It is committed to relative mode after RelModeConfirm "tents" in a row: an off-centre value within
// RelModeWindow of 64, the centre 64, then another off-centre value in the
// window. Two off-centre values in a row, or anything outside the window,
// restart detection. A relative controller falls back to absolute as soon as
// a value outside the window arrives.
const (
	RelModeWindow  = 15
	RelModeConfirm = 3
)

const (
	ctrlAbsolute uint8 = iota
	ctrlRelative
)

// Engine runs the filter pipeline. Filter must only be called from the
// processing cycle; the runtime tables below are owned by it.
type Engine struct {
	state    *State
	notifier Notifier
	reporter Reporter

	ctrlMode  [midi.NumChannels][128]uint8
	relCount  [midi.NumChannels][128]uint8
	lastCtrl  [midi.NumChannels][128]uint8
	noteState [midi.NumChannels][128]uint8 // 0 = silent, else emitted pitch+1

	lastPB [midi.NumChannels]atomic.Uint32

	uiDropped atomic.Uint64
}

// NewEngine creates an engine bound to a state. notifier and reporter may be
// nil.
func NewEngine(state *State, notifier Notifier, reporter Reporter) *Engine {
	e := &Engine{state: state, notifier: notifier, reporter: reporter}
	for ch := range e.lastPB {
		e.lastPB[ch].Store(midi.PitchBendCenter)
	}
	return e
}

func (e *Engine) State() *State { return e.state }

// SetReporter replaces the controller reporter. Not safe while the cycle runs.
func (e *Engine) SetReporter(r Reporter) { e.reporter = r }

// LastPitchBend returns the last pitch bend seen on a channel. Safe from any
// goroutine.
func (e *Engine) LastPitchBend(ch uint8) uint16 {
	return uint16(e.lastPB[ch&0x0F].Load())
}

// UIDropped counts notifications rejected by a full UI queue.
func (e *Engine) UIDropped() uint64 { return e.uiDropped.Load() }

// NoteSounding returns the emitted pitch of a sounding note. Cycle goroutine
// only.
func (e *Engine) NoteSounding(ch, pitch uint8) (uint8, bool) {
	st := e.noteState[ch&0x0F][pitch&0x7F]
	if st == 0 {
		return 0, false
	}
	return st - 1, true
}

// ControllerValue returns the last absolute value of a controller and
// whether it is decoded as relative. Cycle goroutine only.
func (e *Engine) ControllerValue(ch, num uint8) (value uint8, relative bool) {
	ch, num = ch&0x0F, num&0x7F
	return e.lastCtrl[ch][num], e.ctrlMode[ch][num] == ctrlRelative
}

// Filter runs one event through the pipeline and fills out with zero or
// more results in emission order.
func (e *Engine) Filter(ev midi.Event, flags InputFlags, out *Batch) {
	out.Reset()
	state := e.state

	// 1. system gate
	if ev.Type.IsSystem() {
		if flags&FlagUI != 0 {
			e.notify(ev)
		}
		if state.SystemEvents() {
			out.push(ev, ScopeRouted)
		}
		return
	}
	if !ev.Type.IsChannel() {
		return
	}

	t := state.tables.Load()

	if flags&FlagFeedback != 0 {
		e.feedback(ev, t, out)
		return
	}

	// 2. explicit remap
	if flags&FlagFilter != 0 {
		m := t.EventMap[ev.Type.MapIndex()][ev.Channel][mapKey(ev)]
		if !m.Set && (ev.Type == midi.NoteOff || ev.Type == midi.KeyPress) {
			m = followNoteOn(t.EventMap[midi.NoteOn.MapIndex()][ev.Channel][ev.Number], ev.Type)
		}
		if m.Set {
			switch m.Type {
			case midi.Ignore:
				return
			case midi.Thru:
			default:
				ev = applyMapping(m, ev)
			}
		}
	}

	// 3. swap, once
	if ev.Type == midi.ControlChange && flags&FlagSwap != 0 {
		if p := t.Swap[ev.Channel][ev.Number]; p.Set {
			ev.Channel, ev.Number = p.Channel, p.Number
		}
	}

	// 4. controller auto-mode
	if ev.Type == midi.ControlChange {
		if flags&FlagFilter != 0 {
			ev.Value = e.decodeCC(ev.Channel, ev.Number, ev.Value, state.CCAutoMode())
		} else {
			e.lastCtrl[ev.Channel][ev.Number] = ev.Value
		}
	}

	// 5. note range & transpose
	if flags&FlagNoteRange != 0 {
		var ok bool
		if ev, ok = e.notes(ev, t, out); !ok {
			return
		}
	}

	if ev.Type == midi.PitchBend {
		e.lastPB[ev.Channel].Store(uint32(ev.Bend()))
	}

	// 7. active / master delivery
	scope := ScopeRouted
	if flags&FlagActiveChan != 0 {
		if active := state.ActiveChan(); active >= 0 && int(ev.Channel) == active {
			scope |= ScopeActive
		}
	}
	if master := state.MasterChan(); master >= 0 && isControlEvent(ev.Type) {
		scope |= ScopeMaster
	}
	out.push(ev, scope)

	if flags&FlagUI != 0 {
		e.notify(ev)
	}
	if ev.Type == midi.ControlChange && flags&FlagController != 0 && e.reporter != nil {
		e.reporter.ReportControllerValue(ev.Channel, ev.Number, ev.Value)
	}

	// 6. clone fan-out, after the original so arrival order holds
	if ev.Type == midi.ControlChange && flags&FlagClone != 0 {
		row := &t.Clone[ev.Channel]
		for to := range row {
			c := &row[to]
			if !c.Enabled || uint8(to) == ev.Channel || !c.CC[ev.Number] {
				continue
			}
			cl := ev
			cl.Channel = uint8(to)
			out.push(cl, ScopeRouted)
		}
	}
}

func isControlEvent(t midi.Type) bool {
	return t == midi.ControlChange || t == midi.ProgramChange
}

// followNoteOn lets a note-off or key pressure without its own entry track a
// note-on to note-on mapping of the same key, so the remapped note still
// gets released.
func followNoteOn(m Mapping, typ midi.Type) Mapping {
	if !m.Set || m.Type != midi.NoteOn {
		return Mapping{}
	}
	m.Type = typ
	return m
}

func nearCentre(v uint8) bool {
	d := int(v) - 64
	return d >= -RelModeWindow && d <= RelModeWindow
}

func applyMapping(m Mapping, src midi.Event) midi.Event {
	ev := midi.Event{Type: m.Type, Channel: m.Channel & 0x0F, Value: src.Value}
	switch m.Type {
	case midi.NoteOff, midi.NoteOn, midi.KeyPress, midi.ControlChange:
		ev.Number = m.Number
	}
	if ev.Type == midi.NoteOn && ev.Value == 0 {
		ev.Type = midi.NoteOff
	}
	return ev
}

func (e *Engine) decodeCC(ch, num, v uint8, auto bool) uint8 {
	last := &e.lastCtrl[ch][num]
	if !auto {
		*last = v
		return v
	}
	mode := &e.ctrlMode[ch][num]
	count := &e.relCount[ch][num]
	delta := int(v) - 64
	inWindow := nearCentre(v)

	if *mode == ctrlRelative {
		if !inWindow {
			*mode, *count, *last = ctrlAbsolute, 0, v
			return v
		}
		*last = clamp7(int(*last) + delta)
		return *last
	}

	prev := *last
	switch {
	case !inWindow:
		*count = 0
	case delta == 0:
		if prev == 64 || !nearCentre(prev) {
			*count = 0
		}
	case prev == 64:
		*count++
		if *count >= RelModeConfirm {
			*mode, *count = ctrlRelative, 0
		}
	default:
		*count = 0
	}
	*last = v
	return v
}

// notes applies note range, transpose and note pairing. ok is false when the
// event is dropped.
func (e *Engine) notes(ev midi.Event, t *Tables, out *Batch) (midi.Event, bool) {
	ch, pitch := ev.Channel, ev.Number
	state := &e.noteState[ch][pitch]
	switch ev.Type {
	case midi.NoteOn:
		nr := t.NoteRange[ch]
		if !nr.Contains(pitch) {
			return ev, false
		}
		emitted := nr.Transpose(pitch)
		if *state != 0 && *state-1 != emitted {
			out.push(midi.NewNoteOff(ch, *state-1, 0), ScopeRouted)
		}
		*state = emitted + 1
		ev.Number = emitted
	case midi.NoteOff:
		if *state == 0 {
			return ev, false
		}
		ev.Number = *state - 1
		*state = 0
	case midi.KeyPress:
		if *state == 0 {
			return ev, false
		}
		ev.Number = *state - 1
	}
	return ev, true
}

// feedback maps controller feedback back onto the identity of the physical
// controller that produced it, the inverse of swap and CC→CC remap.
func (e *Engine) feedback(ev midi.Event, t *Tables, out *Batch) {
	if ev.Type == midi.ControlChange {
		e.lastCtrl[ev.Channel][ev.Number] = ev.Value
		if p := t.Swap[ev.Channel][ev.Number]; p.Set {
			ev.Channel, ev.Number = p.Channel, p.Number
		}
		if r := t.ccReverse[ev.Channel][ev.Number]; r.Set {
			ev.Channel, ev.Number = r.Channel, r.Number
		}
	}
	out.push(ev, ScopeFeedback)
}

func (e *Engine) notify(ev midi.Event) {
	if e.notifier == nil {
		return
	}
	if !e.notifier.WriteEvent(ev) {
		e.uiDropped.Add(1)
	}
}
