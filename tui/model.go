package tui

import (
	"fmt"
	"sort"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"go-midirouter/device"
	"go-midirouter/pot"
	"go-midirouter/router"
	"go-midirouter/theme"
	"go-midirouter/widgets"
)

const (
	maxLog       = 12
	maxUIPerTick = 256
)

type Model struct {
	Router    *router.Router
	Bank      *pot.Bank
	DeviceMgr *device.Manager // may be nil
	Theme     *theme.Theme

	refresh  time.Duration
	quitting bool
	selected int
	log      []string
	traffic  [16]bool
	stats    router.Stats
	devices  map[string]device.Event
	status   string
}

type tickMsg time.Time

type DeviceEventMsg device.Event

func NewModel(rt *router.Router, bank *pot.Bank, deviceMgr *device.Manager, th *theme.Theme, refresh time.Duration) Model {
	if refresh <= 0 {
		refresh = 50 * time.Millisecond
	}
	return Model{
		Router:    rt,
		Bank:      bank,
		DeviceMgr: deviceMgr,
		Theme:     th,
		refresh:   refresh,
		devices:   make(map[string]device.Event),
	}
}

func tick(d time.Duration) tea.Cmd {
	return tea.Tick(d, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func ListenForDevices(deviceMgr *device.Manager) tea.Cmd {
	return func() tea.Msg {
		event, ok := <-deviceMgr.Events()
		if !ok {
			return nil
		}
		return DeviceEventMsg(event)
	}
}

func (m Model) Init() tea.Cmd {
	cmds := []tea.Cmd{tick(m.refresh)}
	if m.DeviceMgr != nil {
		cmds = append(cmds, ListenForDevices(m.DeviceMgr))
	}
	return tea.Batch(cmds...)
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg.String())

	case tickMsg:
		m.poll()
		return m, tick(m.refresh)

	case DeviceEventMsg:
		event := device.Event(msg)
		if event.Type == device.Connected {
			m.devices[event.Name] = event
		} else {
			delete(m.devices, event.Name)
		}
		m.status = fmt.Sprintf("%s %s", event.Name, event.Type)
		return m, ListenForDevices(m.DeviceMgr)
	}

	return m, nil
}

// poll drains the UI notification queue and snapshots counters
func (m *Model) poll() {
	m.traffic = [16]bool{}
	for i := 0; i < maxUIPerTick; i++ {
		ev, ok := m.Router.ReadUI()
		if !ok {
			break
		}
		if ev.Type.IsChannel() {
			m.traffic[ev.Channel] = true
		}
		m.log = append(m.log, ev.String())
	}
	if n := len(m.log); n > maxLog {
		m.log = append(m.log[:0], m.log[n-maxLog:]...)
	}
	m.stats = m.Router.Stats()
}

func (m Model) handleKey(key string) (tea.Model, tea.Cmd) {
	state := m.Router.State()
	var err error

	switch key {
	case "q", "ctrl+c":
		m.quitting = true
		return m, tea.Quit

	case "1", "2", "3", "4":
		m.selected = int(key[0] - '1')

	case "left", "h":
		err = m.Bank.Nudge(m.selected, -1)
	case "right", "l":
		err = m.Bank.Nudge(m.selected, 1)

	case "a":
		err = state.SetActiveChan(nextChan(state.ActiveChan()))
	case "m":
		err = state.SetMasterChan(nextChan(state.MasterChan()))
	case "s":
		state.SetSystemEvents(!state.SystemEvents())
	case "c":
		state.SetCCAutoMode(!state.CCAutoMode())

	case "+", "=":
		err = m.Router.SetTuningFreq(state.TuningFreq() + 1)
	case "-", "_":
		err = m.Router.SetTuningFreq(state.TuningFreq() - 1)

	case "x":
		err = m.Router.UISendAllNotesOff()
	}

	if err != nil {
		m.status = err.Error()
	}
	return m, nil
}

// nextChan cycles -1 (off), 0 .. 15
func nextChan(ch int) int {
	if ch >= 15 {
		return -1
	}
	return ch + 1
}

func chanLabel(ch int) string {
	if ch < 0 {
		return "--"
	}
	return fmt.Sprintf("%02d", ch)
}

func (m Model) View() string {
	if m.quitting {
		return ""
	}
	th := m.Theme
	state := m.Router.State()

	headerStyle := lipgloss.NewStyle().Foreground(th.Accent()).Bold(true)
	dimStyle := lipgloss.NewStyle().Foreground(th.Muted())
	fgStyle := lipgloss.NewStyle().Foreground(th.FG())
	warnStyle := lipgloss.NewStyle().Foreground(th.Warning())
	boxStyle := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(th.Muted()).
		Padding(0, 1)

	header := headerStyle.Render(fmt.Sprintf("go-midirouter  active:%s  master:%s  tuning:%.1fHz",
		chanLabel(state.ActiveChan()), chanLabel(state.MasterChan()), state.TuningFreq()))

	// channel strip
	colors := make([]lipgloss.Color, 16)
	glyphs := make([]rune, 16)
	for ch := 0; ch < 16; ch++ {
		colors[ch], glyphs[ch] = th.Muted(), th.Symbols.ChanIdle
		if m.traffic[ch] {
			colors[ch], glyphs[ch] = th.Success(), th.Symbols.ChanBusy
		}
		if ch == state.MasterChan() {
			colors[ch], glyphs[ch] = th.Warning(), th.Symbols.ChanMaster
		}
		if ch == state.ActiveChan() {
			colors[ch], glyphs[ch] = th.Active(), th.Symbols.ChanActive
		}
	}
	strip := "channels " + widgets.RenderPadRow(colors, glyphs)

	left := lipgloss.JoinVertical(lipgloss.Left,
		strip,
		"",
		m.potsView(),
		"",
		m.devicesView(),
	)
	right := lipgloss.JoinVertical(lipgloss.Left,
		fgStyle.Render("recent events"),
		dimStyle.Render(strings.Join(m.log, "\n")),
	)
	body := lipgloss.JoinHorizontal(lipgloss.Top, boxStyle.Render(left), boxStyle.Render(right))

	s := m.stats
	statsLine := dimStyle.Render(fmt.Sprintf("cycles:%d  in:%d  out:%d  ring-drop:%d  queue-drop:%d  sink-drop:%d  ui-drop:%d  sys:%v  auto:%v",
		s.Cycles, s.Received, s.Delivered, s.RingDropped, s.QueueOverflow+s.ResultOverflow, s.SinkDropped, s.UIDropped,
		state.SystemEvents(), state.CCAutoMode()))

	help := dimStyle.Render("1-4:pot  ←/→:turn  a:active  m:master  s:sysex  c:automode  +/-:tuning  x:notes off  q:quit")

	var out strings.Builder
	out.WriteString("\n")
	out.WriteString(header)
	out.WriteString("\n")
	out.WriteString(body)
	out.WriteString("\n")
	out.WriteString(m.outputsView())
	out.WriteString("\n")
	out.WriteString(statsLine)
	out.WriteString("\n")
	out.WriteString(help)
	if m.status != "" {
		out.WriteString("\n")
		out.WriteString(warnStyle.Render(m.status))
	}
	return out.String()
}

func (m Model) potsView() string {
	th := m.Theme
	selStyle := lipgloss.NewStyle().Foreground(th.Cursor())
	var lines []string
	for i := 0; i < pot.MaxPots; i++ {
		p, err := m.Bank.Pot(i)
		if err != nil {
			continue
		}
		min, max, _ := p.Range()
		marker := " "
		if i == m.selected {
			marker = string(th.Symbols.Selected)
		}
		binding := "unbound"
		if ch, cc, bound, err := m.Bank.MIDI(i); err == nil && bound {
			binding = fmt.Sprintf("ch%02d cc%03d", ch, cc)
		}
		line := fmt.Sprintf("%s %d %-7s %s %4d  %s", marker, i+1, p.Kind(),
			widgets.RenderMeter(p.Value(), min, max, 16, th.Symbols.MeterFull, th.Symbols.MeterEmpty),
			p.Value(), binding)
		if i == m.selected {
			line = selStyle.Render(line)
		}
		lines = append(lines, line)
	}
	if len(lines) == 0 {
		return "no pots"
	}
	return strings.Join(lines, "\n")
}

func (m Model) devicesView() string {
	if len(m.devices) == 0 {
		return "no devices"
	}
	names := make([]string, 0, len(m.devices))
	for name := range m.devices {
		names = append(names, name)
	}
	sort.Strings(names)

	lines := []string{"devices"}
	for _, name := range names {
		ev := m.devices[name]
		route := ev.Input.String()
		if ev.HasOut {
			route += " / " + ev.Output.String()
		}
		lines = append(lines, fmt.Sprintf("  %-28.28s %-12s %s", name, ev.Profile, route))
	}
	return strings.Join(lines, "\n")
}

// outputsView lists the outputs that have delivered or dropped anything
func (m Model) outputsView() string {
	dimStyle := lipgloss.NewStyle().Foreground(m.Theme.Muted())
	warnStyle := lipgloss.NewStyle().Foreground(m.Theme.Warning())

	var cells []string
	for id := router.OutputID(0); id < router.NumOutputs; id++ {
		out, err := m.Router.Output(id)
		if err != nil {
			continue
		}
		sent, dropped := out.Sent(), out.Dropped()
		if sent == 0 && dropped == 0 {
			continue
		}
		cell := fmt.Sprintf("%s:%d", out.Name(), sent)
		if dropped > 0 {
			cell += warnStyle.Render(fmt.Sprintf("/-%d", dropped))
		}
		cells = append(cells, cell)
	}
	if len(cells) == 0 {
		return dimStyle.Render("outputs idle")
	}
	return "outputs " + strings.Join(cells, "  ")
}
