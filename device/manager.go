package device

import (
	"context"
	"strings"
	"sync"
	"time"

	gomidi "gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/drivers"
	_ "gitlab.com/gomidi/midi/v2/drivers/rtmididrv" // Register MIDI driver

	"go-midirouter/config"
	"go-midirouter/debug"
	"go-midirouter/router"
)

// Event is emitted when a configured device connects or disconnects
type Event struct {
	Type    EventType
	Name    string
	Profile config.Profile
	Input   router.InputID
	Output  router.OutputID
	HasOut  bool
}

type EventType int

const (
	Connected EventType = iota
	Disconnected
)

func (t EventType) String() string {
	if t == Connected {
		return "connected"
	}
	return "disconnected"
}

// Options tunes the manager. Zero values pick defaults.
type Options struct {
	RingSize int
	PollRate time.Duration
	OnColor  [3]uint8 // active channel pad
	OffColor [3]uint8 // other channel pads
}

// binding is where one driver input port goes in the router
type binding struct {
	name    string
	profile config.Profile
	input   router.InputID
	output  router.OutputID
	hasOut  bool
}

type conn struct {
	binding
	in     *Input
	out    *Output
	cancel context.CancelFunc
	done   chan struct{}
}

// Manager handles hot-plug detection: configured devices are opened and
// bound to router ports when they appear and unbound when they vanish.
type Manager struct {
	cfg      *config.Config
	rt       *router.Router
	opts     Options
	conns    map[string]*conn
	mu       sync.RWMutex
	events   chan Event
	pads     chan PadEvent
	selector *ChannelSelector
	ports    func() ([]drivers.In, []drivers.Out)
}

// NewManager creates a device manager binding into rt
func NewManager(cfg *config.Config, rt *router.Router, opts Options) *Manager {
	if opts.RingSize <= 0 {
		opts.RingSize = 4096
	}
	if opts.PollRate <= 0 {
		opts.PollRate = time.Second
	}
	if opts.OnColor == ([3]uint8{}) {
		opts.OnColor = [3]uint8{0, 255, 0}
	}
	if opts.OffColor == ([3]uint8{}) {
		opts.OffColor = [3]uint8{40, 60, 120}
	}
	return &Manager{
		cfg:      cfg,
		rt:       rt,
		opts:     opts,
		conns:    make(map[string]*conn),
		events:   make(chan Event, 16),
		pads:     make(chan PadEvent, 32),
		selector: NewChannelSelector(rt.State(), rt, opts.OnColor, opts.OffColor),
		ports: func() ([]drivers.In, []drivers.Out) {
			return gomidi.GetInPorts(), gomidi.GetOutPorts()
		},
	}
}

// Events returns a channel of device connect/disconnect events
func (m *Manager) Events() <-chan Event {
	return m.events
}

// Connected returns the bindings of the open devices, by port name
func (m *Manager) Connected() []Event {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Event, 0, len(m.conns))
	for _, c := range m.conns {
		out = append(out, c.event(Connected))
	}
	return out
}

// Run polls for devices until ctx is done (blocking - run in goroutine). It
// is the only writer of the controller feedback port.
func (m *Manager) Run(ctx context.Context) {
	ticker := time.NewTicker(m.opts.PollRate)
	defer ticker.Stop()

	m.scan(ctx)

	for {
		select {
		case <-ctx.Done():
			m.closeAll()
			close(m.events)
			return
		case <-ticker.C:
			m.scan(ctx)
			m.redraw()
		case pad := <-m.pads:
			if _, err := m.selector.Press(pad); err != nil {
				debug.LogEvery(50, "launchpad", "draw: %v", err)
			}
		}
	}
}

// redraw picks up active channel changes made elsewhere
func (m *Manager) redraw() {
	m.mu.RLock()
	lp := false
	for _, c := range m.conns {
		lp = lp || c.profile == config.ProfileLaunchpadX
	}
	m.mu.RUnlock()
	if !lp {
		return
	}
	if err := m.selector.Draw(); err != nil {
		debug.LogEvery(50, "launchpad", "draw: %v", err)
	}
}

func (m *Manager) scan(ctx context.Context) {
	type portsResult struct {
		inPorts  []drivers.In
		outPorts []drivers.Out
	}

	// Port listing can hang in the driver; skip the scan if it does.
	ch := make(chan portsResult, 1)
	go func() {
		in, out := m.ports()
		ch <- portsResult{in, out}
	}()

	var res portsResult
	select {
	case res = <-ch:
	case <-time.After(3 * time.Second):
		debug.Warn("device", "port scan timed out")
		return
	case <-ctx.Done():
		return
	}

	seen := make(map[string]bool, len(res.inPorts))
	names := make([]string, len(res.inPorts))
	for i, p := range res.inPorts {
		names[i] = p.String()
		seen[names[i]] = true
	}

	// Disconnects first so their slots can be reused
	m.mu.RLock()
	var gone []string
	for name := range m.conns {
		if !seen[name] {
			gone = append(gone, name)
		}
	}
	m.mu.RUnlock()
	for _, name := range gone {
		m.disconnect(name)
	}

	m.mu.RLock()
	plan := m.plan(names)
	m.mu.RUnlock()

	for _, b := range plan {
		var inPort drivers.In
		for _, p := range res.inPorts {
			if p.String() == b.name {
				inPort = p
				break
			}
		}
		var outPort drivers.Out
		if b.hasOut {
			outPort = matchOutput(b.name, res.outPorts)
		}
		if err := m.connect(ctx, b, inPort, outPort); err != nil {
			debug.Warn("device", "connect %s: %v", b.name, err)
		}
	}
}

// plan decides where newly seen ports go. Callers hold mu.
func (m *Manager) plan(names []string) []binding {
	var used [router.NumDevices]bool
	ctrlBusy := false
	for _, c := range m.conns {
		if c.input == router.InCtrl {
			ctrlBusy = true
		} else if int(c.input) < router.NumDevices {
			used[c.input] = true
		}
	}

	var out []binding
	for _, name := range names {
		if _, ok := m.conns[name]; ok {
			continue
		}
		d := m.cfg.FindDevice(name)
		if d == nil || !d.AutoConnect {
			continue
		}

		b := binding{name: name, profile: d.Profile}
		switch d.Profile {
		case config.ProfileLaunchpadX, config.ProfileController:
			if ctrlBusy {
				debug.Warn("device", "%s: controller port busy", name)
				continue
			}
			ctrlBusy = true
			b.input = router.InCtrl
			b.output, b.hasOut = router.OutCtrl, true
		default:
			slot := freeSlot(used, d.Slot)
			if slot < 0 {
				debug.Warn("device", "%s: no free device slot", name)
				continue
			}
			used[slot] = true
			b.input = router.InDev0 + router.InputID(slot)
		}

		if d.Output != "" {
			id, err := router.ParseOutputID(d.Output)
			if err != nil {
				debug.Warn("device", "%s: %v", name, err)
			} else {
				b.output, b.hasOut = id, true
			}
		}
		out = append(out, b)
	}
	return out
}

// freeSlot returns want if it is free, otherwise the first free slot
func freeSlot(used [router.NumDevices]bool, want int) int {
	if want >= 0 && want < router.NumDevices && !used[want] {
		return want
	}
	for i, u := range used {
		if !u {
			return i
		}
	}
	return -1
}

func matchOutput(name string, outs []drivers.Out) drivers.Out {
	lname := strings.ToLower(name)
	for _, op := range outs {
		if strings.ToLower(op.String()) == lname {
			return op
		}
	}
	return nil
}

func (m *Manager) connect(ctx context.Context, b binding, inPort drivers.In, outPort drivers.Out) error {
	c := &conn{binding: b}

	if outPort != nil {
		out, err := OpenOutput(outPort, m.opts.RingSize)
		if err != nil {
			return err
		}
		c.out = out
	}

	var lp *Launchpad
	var tap func(gomidi.Message)
	if b.profile == config.ProfileLaunchpadX {
		lp = NewLaunchpad(c.out, m.pads)
		tap = lp.Tap
	}

	in, err := OpenInput(inPort, m.opts.RingSize, tap)
	if err != nil {
		if c.out != nil {
			c.out.Close()
		}
		return err
	}
	c.in = in

	if c.out != nil {
		octx, cancel := context.WithCancel(ctx)
		c.cancel = cancel
		c.done = make(chan struct{})
		go func() {
			defer close(c.done)
			c.out.Run(octx)
		}()
		if err := m.rt.BindOutput(b.output, c.out); err != nil {
			debug.Warn("device", "bind %s: %v", b.output, err)
		}
	}
	if err := m.rt.BindInput(b.input, in.Ring()); err != nil {
		if c.out != nil {
			m.rt.BindOutput(b.output, nil)
		}
		m.release(c)
		return err
	}

	if lp != nil {
		lp.Init()
		m.selector.Clear()
		if err := m.selector.Draw(); err != nil {
			debug.Warn("launchpad", "draw: %v", err)
		}
	}

	m.mu.Lock()
	m.conns[b.name] = c
	m.mu.Unlock()

	debug.Log("device", "%s (%s) -> %s", b.name, b.profile, b.input)
	m.emit(c.event(Connected))
	return nil
}

func (m *Manager) disconnect(name string) {
	m.mu.Lock()
	c, ok := m.conns[name]
	delete(m.conns, name)
	m.mu.Unlock()
	if !ok {
		return
	}

	m.rt.BindInput(c.input, nil)
	if c.out != nil {
		m.rt.BindOutput(c.output, nil)
	}
	m.release(c)

	debug.Log("device", "%s disconnected from %s", name, c.input)
	m.emit(c.event(Disconnected))
}

func (m *Manager) release(c *conn) {
	if c.in != nil {
		c.in.Close()
	}
	if c.out != nil {
		if c.cancel != nil {
			c.cancel()
			<-c.done
		}
		c.out.Close()
	}
}

func (m *Manager) emit(ev Event) {
	select {
	case m.events <- ev:
	default:
		debug.Log("device", "event dropped: %s %s", ev.Type, ev.Name)
	}
}

func (m *Manager) closeAll() {
	m.mu.RLock()
	names := make([]string, 0, len(m.conns))
	for name := range m.conns {
		names = append(names, name)
	}
	m.mu.RUnlock()
	for _, name := range names {
		m.disconnect(name)
	}
}

func (c *conn) event(t EventType) Event {
	return Event{
		Type:    t,
		Name:    c.name,
		Profile: c.profile,
		Input:   c.input,
		Output:  c.output,
		HasOut:  c.hasOut,
	}
}
