package router

import (
	"strconv"
	"sync/atomic"

	"github.com/pkg/errors"

	"go-midirouter/filter"
	"go-midirouter/midi"
	"go-midirouter/ring"
)

// OutputID is a handle into the fixed output port arena.
type OutputID int

// Output ports
const (
	OutCh0     OutputID = 0 // OutCh0+n is the port of chain channel n
	OutMain    OutputID = 16
	OutThru    OutputID = 17
	OutNet     OutputID = 18
	OutStep    OutputID = 19
	OutCtrl    OutputID = 20
	NumOutputs          = 21
)

// InputID is a handle into the fixed input port arena.
type InputID int

// Input ports
const (
	InDev0     InputID = 0 // InDev0+n is physical device input n
	InNet      InputID = 16
	InSeq      InputID = 17
	InStep     InputID = 18
	InCtrl     InputID = 19
	InInternal InputID = 20
	InUI       InputID = 21
	InCtrlFB   InputID = 22
	NumInputs          = 23
	NumDevices         = 16
)

func (id OutputID) Valid() bool { return id >= 0 && id < NumOutputs }
func (id InputID) Valid() bool  { return id >= 0 && id < NumInputs }

var outputNames = [...]string{OutMain: "main", OutThru: "thru", OutNet: "net", OutStep: "step", OutCtrl: "ctrl"}

var inputNames = [...]string{InNet: "net", InSeq: "seq", InStep: "step", InCtrl: "ctrl", InInternal: "internal", InUI: "ui", InCtrlFB: "ctrl_fb"}

func (id OutputID) String() string {
	switch {
	case id >= OutCh0 && id < OutMain:
		return "ch" + strconv.Itoa(int(id))
	case id.Valid():
		return outputNames[id]
	}
	return "out?" + strconv.Itoa(int(id))
}

func (id InputID) String() string {
	switch {
	case id >= InDev0 && id < InNet:
		return "dev" + strconv.Itoa(int(id))
	case id.Valid():
		return inputNames[id]
	}
	return "in?" + strconv.Itoa(int(id))
}

// ParseOutputID resolves an output name such as "main" or "ch3".
func ParseOutputID(s string) (OutputID, error) {
	for id := OutputID(0); id < NumOutputs; id++ {
		if id.String() == s {
			return id, nil
		}
	}
	return 0, errors.Wrapf(ErrInvalidPort, "output %q", s)
}

// ParseInputID resolves an input name such as "dev2" or "seq".
func ParseInputID(s string) (InputID, error) {
	for id := InputID(0); id < NumInputs; id++ {
		if id.String() == s {
			return id, nil
		}
	}
	return 0, errors.Wrapf(ErrInvalidPort, "input %q", s)
}

// OutputFlags select per-port dispatch behaviour.
type OutputFlags uint32

const (
	OutDropPC       OutputFlags = 1 << iota // drop program change
	OutTuning                               // add the tuning offset to pitch bend
	OutListenActive                         // receive active channel events
	OutListenMaster                         // receive master channel copies
	OutSystem                               // receive system messages
	OutFeedback                             // receive controller feedback
)

// Input flag presets
const (
	MainInputFlags     = filter.FlagUI | filter.FlagController | filter.FlagClone | filter.FlagFilter | filter.FlagSwap | filter.FlagNoteRange | filter.FlagActiveChan
	SeqInputFlags      = filter.FlagUI | filter.FlagController | filter.FlagActiveChan
	StepInputFlags     = filter.FlagUI | filter.FlagController | filter.FlagClone | filter.FlagFilter | filter.FlagSwap | filter.FlagNoteRange
	CtrlInputFlags     = filter.FlagUI
	InternalInputFlags = filter.FlagUI | filter.FlagClone | filter.FlagFilter | filter.FlagSwap | filter.FlagNoteRange
	UIInputFlags       = filter.FlagNoteRange
	FeedbackInputFlags = filter.FlagFeedback
)

// Per-cycle capacities
const (
	InputQueueSize  = 256
	InputResultSize = 1024
	SysExArenaSize  = 4096
)

var (
	ErrInvalidPort    = errors.New("invalid port")
	ErrInvalidChannel = filter.ErrInvalidChannel
	ErrInvalidNumber  = filter.ErrInvalidNumber
	ErrBufferFull     = errors.New("buffer full")
)

type queued struct {
	ev       midi.Event
	off, len uint16 // sysex payload in the port arena
}

type routed struct {
	ev       midi.Event
	scope    filter.Scope
	off, len uint16
}

// InputPort is a logical input. Its queue and results only live for
// one cycle.
type InputPort struct {
	id    InputID
	name  string
	flags atomic.Uint32
	src   atomic.Pointer[ring.Buffer]

	queue [InputQueueSize]queued
	n     int

	results [InputResultSize]routed
	nres    int

	sysex    [SysExArenaSize]byte
	sysexLen int

	received atomic.Uint64
}

func (p *InputPort) ID() InputID                       { return p.id }
func (p *InputPort) Name() string                      { return p.name }
func (p *InputPort) Flags() filter.InputFlags          { return filter.InputFlags(p.flags.Load()) }
func (p *InputPort) HasFlags(f filter.InputFlags) bool { return p.Flags()&f == f }

// push queues a parsed event, copying sysex payloads into the arena.
func (p *InputPort) push(ev midi.Event, raw []byte) bool {
	if p.n == len(p.queue) {
		return false
	}
	q := queued{ev: ev}
	if ev.Type == midi.SysExStart {
		if p.sysexLen+len(raw) > len(p.sysex) {
			return false
		}
		q.off = uint16(p.sysexLen)
		q.len = uint16(copy(p.sysex[p.sysexLen:], raw))
		p.sysexLen += len(raw)
	}
	p.queue[p.n] = q
	p.n++
	p.received.Add(1)
	return true
}

func (p *InputPort) clear() {
	p.n = 0
	p.nres = 0
	p.sysexLen = 0
}

// OutputPort is a logical output.
type OutputPort struct {
	id       OutputID
	name     string
	midiChan int
	flags    atomic.Uint32
	chans    [midi.NumChannels]atomic.Int32 // logical → physical channel, -1 disabled
	route    [NumInputs]atomic.Bool
	sink     atomic.Pointer[sinkRef]

	counter [NumInputs]int // per source cursor into its results, cycle only
	next    int

	sent    atomic.Uint64
	dropped atomic.Uint64
}

func (p *OutputPort) ID() OutputID                { return p.id }
func (p *OutputPort) Name() string                { return p.name }
func (p *OutputPort) Flags() OutputFlags          { return OutputFlags(p.flags.Load()) }
func (p *OutputPort) HasFlags(f OutputFlags) bool { return p.Flags()&f == f }
func (p *OutputPort) Sent() uint64                { return p.sent.Load() }
func (p *OutputPort) Dropped() uint64             { return p.dropped.Load() }

func (p *OutputPort) resetChans(midiChan int) {
	for ch := range p.chans {
		if midiChan < 0 || ch == midiChan {
			p.chans[ch].Store(int32(ch))
		} else {
			p.chans[ch].Store(-1)
		}
	}
}

func (p *OutputPort) resetCounters() {
	p.counter = [NumInputs]int{}
	p.next = 0
}

// accept decides whether a routed result reaches this port and returns the
// event rewritten for it.
func (p *OutputPort) accept(r *routed, master int, tuning int) (midi.Event, bool) {
	ev := r.ev
	flags := p.Flags()

	if r.scope&filter.ScopeFeedback != 0 {
		return ev, flags&OutFeedback != 0
	}
	if ev.Type.IsSystem() {
		return ev, r.scope&filter.ScopeRouted != 0 && flags&OutSystem != 0
	}

	delivered := false
	if r.scope&filter.ScopeRouted != 0 {
		if mc := p.chans[ev.Channel].Load(); mc >= 0 {
			ev.Channel = uint8(mc)
			delivered = true
		}
	}
	if !delivered && r.scope&filter.ScopeActive != 0 && flags&OutListenActive != 0 {
		delivered = true
	}
	if !delivered && r.scope&filter.ScopeMaster != 0 && flags&OutListenMaster != 0 && master >= 0 {
		ev.Channel = uint8(master)
		delivered = true
	}
	if !delivered {
		return ev, false
	}

	if ev.Type == midi.ProgramChange && flags&OutDropPC != 0 {
		return ev, false
	}
	if ev.Type == midi.PitchBend && flags&OutTuning != 0 && tuning != midi.PitchBendCenter {
		pb := int(ev.Bend()) + tuning - midi.PitchBendCenter
		if pb < 0 {
			pb = 0
		} else if pb > 0x3FFF {
			pb = 0x3FFF
		}
		ev.SetBend(uint16(pb))
	}
	return ev, true
}
