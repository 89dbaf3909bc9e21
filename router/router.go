// Package router owns the fixed input/output port arena and runs the
// processing cycle that moves events from sources through the filter engine
// to sinks.
package router

import (
	"sync/atomic"

	"github.com/pkg/errors"

	"go-midirouter/filter"
	"go-midirouter/midi"
	"go-midirouter/ring"
)

// Sink receives events dispatched to an output port. raw holds the wire
// bytes (the full payload for sysex) and is only valid during the call.
// Send must not block; returning false counts a drop.
type Sink interface {
	Send(ev midi.Event, raw []byte) bool
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ev midi.Event, raw []byte) bool

func (f SinkFunc) Send(ev midi.Event, raw []byte) bool { return f(ev, raw) }

type sinkRef struct{ Sink }

// Delivery is one event popped from an output port.
type Delivery struct {
	Event  midi.Event
	Source InputID
	Raw    []byte // sysex payload, nil otherwise
}

// Options size the router's queues. Zero values select defaults.
type Options struct {
	RingSize  int
	QueueSize int
}

// Stats are cumulative counters, safe to read from any goroutine.
type Stats struct {
	Cycles         uint64
	Frames         uint64
	Received       uint64
	Delivered      uint64
	QueueOverflow  uint64
	ResultOverflow uint64
	SinkDropped    uint64
	RingDropped    uint64
	RingMalformed  uint64
	UIDropped      uint64
}

type counters struct {
	cycles         atomic.Uint64
	frames         atomic.Uint64
	received       atomic.Uint64
	delivered      atomic.Uint64
	queueOverflow  atomic.Uint64
	resultOverflow atomic.Uint64
	sinkDropped    atomic.Uint64
}

// Router is the port registry plus processing cycle. Configuration methods
// may be called from any goroutine; Process must only be called from the
// cycle goroutine.
type Router struct {
	state   *filter.State
	engine  *filter.Engine
	uiQueue *ring.Queue

	internal *ring.Buffer
	ui       *ring.Buffer
	feedback *ring.Buffer

	inputs  [NumInputs]InputPort
	outputs [NumOutputs]OutputPort

	batch   filter.Batch
	frame   [SysExArenaSize]byte
	wire    [3]byte
	cur     *InputPort
	enqueue func(ev midi.Event, raw []byte)

	stats counters
}

// New creates a router over state with the default topology and routing.
func New(state *filter.State, opts Options) *Router {
	if opts.RingSize <= 0 {
		opts.RingSize = ring.DefaultSize
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = ring.DefaultQueueSize
	}
	r := &Router{
		state:    state,
		uiQueue:  ring.NewQueue(opts.QueueSize),
		internal: ring.New("internal", opts.RingSize),
		ui:       ring.New("ui", opts.RingSize),
		feedback: ring.New("ctrl_fb", opts.RingSize),
	}
	r.engine = filter.NewEngine(state, r.uiQueue, nil)
	r.enqueue = r.enqueueCurrent

	for i := range r.inputs {
		r.inputs[i].id = InputID(i)
	}
	for i := range r.outputs {
		r.outputs[i].id = OutputID(i)
	}
	r.initDefaults()
	return r
}

func (r *Router) initDefaults() {
	for id := InputID(0); id < NumInputs; id++ {
		var flags filter.InputFlags
		switch id {
		case InSeq:
			flags = SeqInputFlags
		case InStep:
			flags = StepInputFlags
		case InCtrl:
			flags = CtrlInputFlags
		case InInternal:
			flags = InternalInputFlags
		case InUI:
			flags = UIInputFlags
		case InCtrlFB:
			flags = FeedbackInputFlags
		default:
			flags = MainInputFlags
		}
		r.InitInput(id, id.String(), flags)
	}
	r.inputs[InInternal].src.Store(r.internal)
	r.inputs[InUI].src.Store(r.ui)
	r.inputs[InCtrlFB].src.Store(r.feedback)

	for ch := 0; ch < midi.NumChannels; ch++ {
		id := OutCh0 + OutputID(ch)
		r.InitOutput(id, id.String(), ch, OutTuning)
	}
	r.InitOutput(OutMain, OutMain.String(), -1, OutTuning|OutSystem)
	r.InitOutput(OutThru, OutThru.String(), -1, OutSystem)
	r.InitOutput(OutNet, OutNet.String(), -1, OutSystem)
	r.InitOutput(OutStep, OutStep.String(), -1, OutListenActive|OutSystem)
	r.InitOutput(OutCtrl, OutCtrl.String(), -1, OutFeedback)

	performers := []InputID{InNet, InSeq, InStep, InInternal, InUI}
	for i := 0; i < NumDevices; i++ {
		performers = append(performers, InDev0+InputID(i))
	}
	for out := OutCh0; out <= OutThru; out++ {
		for _, in := range performers {
			r.SetRouting(out, in, true)
		}
	}
	for _, in := range performers {
		if in != InNet {
			r.SetRouting(OutNet, in, true)
		}
	}
	r.SetRouting(OutStep, InNet, true)
	for i := 0; i < NumDevices; i++ {
		r.SetRouting(OutStep, InDev0+InputID(i), true)
	}
	r.SetRouting(OutCtrl, InCtrlFB, true)
}

func (r *Router) State() *filter.State   { return r.state }
func (r *Router) Engine() *filter.Engine { return r.engine }

// SetReporter installs the controller reporter. Call before the cycle starts.
func (r *Router) SetReporter(rep filter.Reporter) { r.engine.SetReporter(rep) }

func (r *Router) input(id InputID) (*InputPort, error) {
	if !id.Valid() {
		return nil, errors.Wrapf(ErrInvalidPort, "input %d", id)
	}
	return &r.inputs[id], nil
}

func (r *Router) output(id OutputID) (*OutputPort, error) {
	if !id.Valid() {
		return nil, errors.Wrapf(ErrInvalidPort, "output %d", id)
	}
	return &r.outputs[id], nil
}

// Input returns an input port for inspection.
func (r *Router) Input(id InputID) (*InputPort, error) { return r.input(id) }

// Output returns an output port for inspection.
func (r *Router) Output(id OutputID) (*OutputPort, error) { return r.output(id) }

// InitInput names an input port and sets its filter flags.
func (r *Router) InitInput(id InputID, name string, flags filter.InputFlags) error {
	in, err := r.input(id)
	if err != nil {
		return err
	}
	in.name = name
	in.flags.Store(uint32(flags))
	return nil
}

// InitOutput names an output port, binds it to one MIDI channel (or every
// channel when midiChan is -1) and sets its flags.
func (r *Router) InitOutput(id OutputID, name string, midiChan int, flags OutputFlags) error {
	out, err := r.output(id)
	if err != nil {
		return err
	}
	if midiChan < -1 || midiChan >= midi.NumChannels {
		return errors.Wrapf(ErrInvalidChannel, "output %s channel %d", name, midiChan)
	}
	out.name = name
	out.midiChan = midiChan
	out.flags.Store(uint32(flags))
	out.resetChans(midiChan)
	return nil
}

// SetInputFlags replaces the filter flags of an input port.
func (r *Router) SetInputFlags(id InputID, flags filter.InputFlags) error {
	in, err := r.input(id)
	if err != nil {
		return err
	}
	in.flags.Store(uint32(flags))
	return nil
}

// SetOutputFlag sets or clears flags on an output port.
func (r *Router) SetOutputFlag(id OutputID, f OutputFlags, on bool) error {
	out, err := r.output(id)
	if err != nil {
		return err
	}
	if on {
		out.flags.Or(uint32(f))
	} else {
		out.flags.And(^uint32(f))
	}
	return nil
}

// SetRouting enables or disables delivery from an input to an output.
func (r *Router) SetRouting(outID OutputID, inID InputID, enabled bool) error {
	out, err := r.output(outID)
	if err != nil {
		return err
	}
	if _, err := r.input(inID); err != nil {
		return err
	}
	out.route[inID].Store(enabled)
	return nil
}

// Routing reports whether an input is routed to an output.
func (r *Router) Routing(outID OutputID, inID InputID) (bool, error) {
	out, err := r.output(outID)
	if err != nil {
		return false, err
	}
	if _, err := r.input(inID); err != nil {
		return false, err
	}
	return out.route[inID].Load(), nil
}

// ResetChannelMap restores the channel map given at InitOutput.
func (r *Router) ResetChannelMap(id OutputID) error {
	out, err := r.output(id)
	if err != nil {
		return err
	}
	out.resetChans(out.midiChan)
	return nil
}

// SetChannelMap maps logical channel from to physical channel to; -1
// disables the channel on this port.
func (r *Router) SetChannelMap(id OutputID, from, to int) error {
	out, err := r.output(id)
	if err != nil {
		return err
	}
	if from < 0 || from >= midi.NumChannels {
		return errors.Wrapf(ErrInvalidChannel, "from %d", from)
	}
	if to < -1 || to >= midi.NumChannels {
		return errors.Wrapf(ErrInvalidChannel, "to %d", to)
	}
	out.chans[from].Store(int32(to))
	return nil
}

// ChannelMap returns the physical channel for a logical one, -1 if disabled.
func (r *Router) ChannelMap(id OutputID, from int) (int, error) {
	out, err := r.output(id)
	if err != nil {
		return 0, err
	}
	if from < 0 || from >= midi.NumChannels {
		return 0, errors.Wrapf(ErrInvalidChannel, "from %d", from)
	}
	return int(out.chans[from].Load()), nil
}

// ResetCounters rewinds an output's per-source cursors. Cycle goroutine
// only.
func (r *Router) ResetCounters(id OutputID) error {
	out, err := r.output(id)
	if err != nil {
		return err
	}
	out.resetCounters()
	return nil
}

// PopNext returns the next event for an output from the current cycle's
// results. Sources are served round-robin in input index order starting after
// the last source served, one event per turn; each source's own order is
// kept. Results exist between Collect and Finish, so PopNext is only useful
// to a caller running the cycle by hand instead of through Process. Cycle
// goroutine only.
func (r *Router) PopNext(id OutputID) (Delivery, bool, error) {
	out, err := r.output(id)
	if err != nil {
		return Delivery{}, false, err
	}
	ev, src, res, ok := r.popNext(out, r.state.MasterChan(), r.state.TuningPitchBend())
	if !ok {
		return Delivery{}, false, nil
	}
	d := Delivery{Event: ev, Source: src}
	if ev.Type == midi.SysExStart {
		d.Raw = r.inputs[src].sysex[res.off : res.off+res.len]
	}
	return d, true, nil
}

func (r *Router) popNext(out *OutputPort, master, tuning int) (midi.Event, InputID, *routed, bool) {
	for turn := 0; turn < NumInputs; turn++ {
		s := (out.next + turn) % NumInputs
		if !out.route[s].Load() {
			continue
		}
		in := &r.inputs[s]
		for out.counter[s] < in.nres {
			res := &in.results[out.counter[s]]
			out.counter[s]++
			if ev, ok := out.accept(res, master, tuning); ok {
				out.next = s + 1
				return ev, InputID(s), res, true
			}
		}
	}
	return midi.Event{}, 0, nil, false
}

// BindInput attaches a ring as the event source of an input port. A nil
// ring detaches it. The virtual ports are bound by New.
func (r *Router) BindInput(id InputID, src *ring.Buffer) error {
	in, err := r.input(id)
	if err != nil {
		return err
	}
	switch id {
	case InInternal, InUI, InCtrlFB:
		return errors.Wrapf(ErrInvalidPort, "input %s is virtual", in.name)
	}
	in.src.Store(src)
	return nil
}

// BindOutput attaches a sink to an output port. A nil sink detaches it.
func (r *Router) BindOutput(id OutputID, sink Sink) error {
	out, err := r.output(id)
	if err != nil {
		return err
	}
	if sink == nil {
		out.sink.Store(nil)
		return nil
	}
	out.sink.Store(&sinkRef{sink})
	return nil
}

// Process runs one cycle: Collect, dispatch to the bound sinks, Finish.
// It never blocks or allocates; failures are counted.
func (r *Router) Process(nframes uint32) {
	r.Collect()
	r.dispatch()
	r.Finish(nframes)
}

// Collect drains and filters every source. Its results can be pulled with
// PopNext until Finish.
func (r *Router) Collect() {
	// virtual rings first, then physical and transport sources
	for _, id := range [...]InputID{InInternal, InUI, InCtrlFB} {
		r.drainInput(&r.inputs[id])
	}
	for i := InputID(0); i < InInternal; i++ {
		r.drainInput(&r.inputs[i])
	}
	for i := range r.inputs {
		if r.inputs[i].n > 0 {
			r.filterInput(&r.inputs[i])
		}
	}
}

func (r *Router) drainInput(in *InputPort) {
	src := in.src.Load()
	if src == nil {
		return
	}
	r.cur = in
	src.Drain(r.frame[:], r.enqueue)
	r.cur = nil
}

func (r *Router) enqueueCurrent(ev midi.Event, raw []byte) {
	if r.cur.push(ev, raw) {
		r.stats.received.Add(1)
	} else {
		r.stats.queueOverflow.Add(1)
	}
}

func (r *Router) filterInput(in *InputPort) {
	flags := in.Flags()
	for k := 0; k < in.n; k++ {
		q := &in.queue[k]
		r.engine.Filter(q.ev, flags, &r.batch)
		for _, res := range r.batch.Items() {
			if in.nres == len(in.results) {
				r.stats.resultOverflow.Add(1)
				continue
			}
			in.results[in.nres] = routed{ev: res.Event, scope: res.Scope, off: q.off, len: q.len}
			in.nres++
		}
	}
}

func (r *Router) dispatch() {
	master, tuning := r.state.MasterChan(), r.state.TuningPitchBend()
	for i := range r.outputs {
		out := &r.outputs[i]
		out.resetCounters()
		ref := out.sink.Load()
		if ref == nil {
			continue
		}
		for {
			ev, src, res, ok := r.popNext(out, master, tuning)
			if !ok {
				break
			}
			var raw []byte
			if ev.Type == midi.SysExStart {
				raw = r.inputs[src].sysex[res.off : res.off+res.len]
			} else {
				raw = ev.AppendBytes(r.wire[:0])
			}
			if ref.Send(ev, raw) {
				out.sent.Add(1)
				r.stats.delivered.Add(1)
			} else {
				out.dropped.Add(1)
				r.stats.sinkDropped.Add(1)
			}
		}
	}
}

// Finish discards undelivered results and counts the cycle.
func (r *Router) Finish(nframes uint32) {
	for i := range r.inputs {
		r.inputs[i].clear()
	}
	for i := range r.outputs {
		r.outputs[i].resetCounters()
	}
	r.stats.cycles.Add(1)
	r.stats.frames.Add(uint64(nframes))
}

// Stats returns a snapshot of the cumulative counters.
func (r *Router) Stats() Stats {
	s := Stats{
		Cycles:         r.stats.cycles.Load(),
		Frames:         r.stats.frames.Load(),
		Received:       r.stats.received.Load(),
		Delivered:      r.stats.delivered.Load(),
		QueueOverflow:  r.stats.queueOverflow.Load(),
		ResultOverflow: r.stats.resultOverflow.Load(),
		SinkDropped:    r.stats.sinkDropped.Load(),
		UIDropped:      r.uiQueue.Dropped(),
	}
	for i := range r.inputs {
		if src := r.inputs[i].src.Load(); src != nil {
			s.RingDropped += src.Dropped()
			s.RingMalformed += src.Malformed()
		}
	}
	return s
}

// ReadUI returns the next UI notification.
func (r *Router) ReadUI() (midi.Event, bool) { return r.uiQueue.ReadEvent() }

// UIQueue exposes the UI notification queue.
func (r *Router) UIQueue() *ring.Queue { return r.uiQueue }
