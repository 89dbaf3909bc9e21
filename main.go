package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alecthomas/kong"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/pkg/errors"

	"go-midirouter/clock"
	"go-midirouter/config"
	"go-midirouter/debug"
	"go-midirouter/device"
	"go-midirouter/filter"
	"go-midirouter/pot"
	"go-midirouter/router"
	"go-midirouter/theme"
	"go-midirouter/tui"
)

var version = "0.1.0"

// CLI defines the command-line interface
type CLI struct {
	Version bool   `short:"v" help:"Show version information"`
	Config  string `short:"c" type:"path" help:"Path to config.json (default ~/.config/go-midirouter/config.json)"`
	NoTUI   bool   `name:"no-tui" help:"Run headless, logging to stderr"`
	Debug   bool   `short:"d" help:"Write a debug log to ~/.config/go-midirouter/debug.log"`
	Jack    bool   `help:"Drive the processing cycle from a JACK client (build with -tags jack)"`
}

func main() {
	cli := &CLI{}
	kong.Parse(cli,
		kong.Name("go-midirouter"),
		kong.Description("MIDI router and filter for synth engines and controllers"),
		kong.UsageOnError(),
	)

	if cli.Version {
		fmt.Println("go-midirouter", version)
		return
	}

	if err := run(cli); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(cli *CLI) error {
	switch {
	case cli.NoTUI:
		debug.EnableWriter(os.Stderr)
	case cli.Debug:
		if err := debug.Enable(); err != nil {
			return errors.Wrap(err, "debug log")
		}
		defer debug.Disable()
	}

	cfg, err := loadConfig(cli.Config)
	if err != nil {
		return err
	}

	state := filter.NewState()
	if err := seedState(state, cfg.Engine); err != nil {
		return err
	}

	rt := router.New(state, router.Options{
		RingSize:  cfg.Engine.RingSize,
		QueueSize: cfg.Engine.QueueSize,
	})
	bank := pot.NewBank(rt)
	if err := setupPots(bank, cfg.Pots); err != nil {
		return err
	}
	rt.SetReporter(bank)
	if err := rt.Retune(); err != nil {
		return err
	}

	palette, err := theme.Load(cfg.UI.Palette)
	if err != nil {
		return err
	}
	th := theme.New(palette)

	on, off := th.PadColors()
	deviceMgr := device.NewManager(cfg, rt, device.Options{
		RingSize: cfg.Engine.RingSize,
		OnColor:  on,
		OffColor: off,
	})

	driver, err := newDriver(cli.Jack, rt, cfg.Engine)
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	cycleDone := make(chan error, 1)
	go func() { cycleDone <- driver.Run(ctx) }()

	mgrDone := make(chan struct{})
	go func() {
		deviceMgr.Run(ctx)
		close(mgrDone)
	}()

	debug.Log("main", "started: block %d @ %d Hz", cfg.Engine.BlockSize, cfg.Engine.SampleRate)

	if cli.NoTUI {
		headless(ctx, rt, deviceMgr)
	} else {
		m := tui.NewModel(rt, bank, deviceMgr, th, time.Duration(cfg.UI.RefreshMs)*time.Millisecond)
		p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx))
		if _, err := p.Run(); err != nil && !errors.Is(err, tea.ErrProgramKilled) {
			cancel()
			return err
		}
	}

	cancel()
	<-mgrDone
	return <-cycleDone
}

func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		return config.Load()
	}
	return config.LoadFile(path)
}

// seedState applies the engine section of the config to a fresh state
func seedState(state *filter.State, e config.EngineConfig) error {
	if err := state.SetTuningFreq(e.TuningFreq); err != nil {
		return err
	}
	if err := state.SetMasterChan(e.MasterChan); err != nil {
		return err
	}
	if err := state.SetActiveChan(e.ActiveChan); err != nil {
		return err
	}
	state.SetSystemEvents(e.SystemEvents)
	state.SetCCAutoMode(e.CCAutoMode)
	return nil
}

func setupPots(bank *pot.Bank, pots []config.PotConfig) error {
	if len(pots) > pot.MaxPots {
		return errors.Errorf("%d pots configured, at most %d supported", len(pots), pot.MaxPots)
	}
	for i, pc := range pots {
		kind, err := pot.ParseKind(pc.Kind)
		if err != nil {
			return errors.Wrapf(err, "pot %d", i)
		}
		if err := bank.Setup(i, kind); err != nil {
			return err
		}
		if kind == pot.KindNone {
			continue
		}
		if err := bank.SetupRangeScale(i, pc.Min, pc.Max, pc.Value, pc.Step); err != nil {
			return errors.Wrapf(err, "pot %d", i)
		}
		if pc.CC < 0 {
			continue
		}
		if err := bank.SetupMIDI(i, uint8(pc.Channel), uint8(pc.CC)); err != nil {
			return errors.Wrapf(err, "pot %d", i)
		}
	}
	return nil
}

func newDriver(jack bool, rt *router.Router, e config.EngineConfig) (clock.Driver, error) {
	if jack {
		return clock.NewJack("go-midirouter", rt)
	}
	return clock.NewTicker(rt, e.BlockSize, e.SampleRate)
}

// headless logs UI notifications and device changes until ctx is done. It
// is the only reader of the UI queue when the monitor is not running.
func headless(ctx context.Context, rt *router.Router, deviceMgr *device.Manager) {
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()
	events := deviceMgr.Events()

	for {
		select {
		case <-ctx.Done():
			s := rt.Stats()
			debug.Log("main", "stopping: %d cycles, %d in, %d out, %d dropped",
				s.Cycles, s.Received, s.Delivered, s.RingDropped+s.QueueOverflow+s.ResultOverflow+s.SinkDropped)
			return
		case ev, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			debug.Log("device", "%s %s (%s) on %s", ev.Name, ev.Type, ev.Profile, ev.Input)
		case <-ticker.C:
			for {
				ev, ok := rt.ReadUI()
				if !ok {
					break
				}
				debug.Log("ui", "%s", ev)
			}
		}
	}
}
