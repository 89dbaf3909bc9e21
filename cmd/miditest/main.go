package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/alecthomas/kong"
	"gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/drivers"
	_ "gitlab.com/gomidi/midi/v2/drivers/rtmididrv"

	evt "go-midirouter/midi"
)

// CLI lists, drives and sniffs MIDI ports
type CLI struct {
	List   ListCmd   `cmd:"" help:"List all MIDI ports"`
	Send   SendCmd   `cmd:"" help:"Send one message to an output port"`
	Listen ListenCmd `cmd:"" help:"Print messages arriving on an input port"`
	Poll   PollCmd   `cmd:"" help:"Report port changes until interrupted"`
}

func main() {
	cli := &CLI{}
	ctx := kong.Parse(cli,
		kong.Name("miditest"),
		kong.Description("MIDI port test tool"),
		kong.UsageOnError(),
	)
	ctx.FatalIfErrorf(ctx.Run())
}

// ports lists driver ports, giving up after 3 seconds
func ports() ([]drivers.In, []drivers.Out, error) {
	type result struct {
		ins  []drivers.In
		outs []drivers.Out
	}
	ch := make(chan result, 1)
	go func() {
		ch <- result{ins: midi.GetInPorts(), outs: midi.GetOutPorts()}
	}()

	select {
	case r := <-ch:
		return r.ins, r.outs, nil
	case <-time.After(3 * time.Second):
		return nil, nil, fmt.Errorf("port listing timed out")
	}
}

func match(name, want string) bool {
	return strings.Contains(strings.ToLower(name), strings.ToLower(want))
}

type ListCmd struct{}

func (c *ListCmd) Run() error {
	ins, outs, err := ports()
	if err != nil {
		return err
	}
	fmt.Println("=== MIDI Input Ports ===")
	for i, p := range ins {
		fmt.Printf("  %d: %s\n", i, p.String())
	}
	fmt.Println("\n=== MIDI Output Ports ===")
	for i, p := range outs {
		fmt.Printf("  %d: %s\n", i, p.String())
	}
	return nil
}

type SendCmd struct {
	Port    string `arg:"" help:"Output port (case-insensitive substring)"`
	Kind    string `arg:"" enum:"note,off,cc,pc,pressure,bend,panic,lpx" help:"Message kind: note, off, cc, pc, pressure, bend, panic, lpx (programmer mode)"`
	Channel uint8  `arg:"" optional:"" help:"MIDI channel 0-15"`
	Values  []int  `arg:"" optional:"" help:"Data bytes"`
}

func (c *SendCmd) Run() error {
	msgs, err := c.messages()
	if err != nil {
		return err
	}

	_, outs, err := ports()
	if err != nil {
		return err
	}
	var out drivers.Out
	for _, p := range outs {
		if match(p.String(), c.Port) {
			out = p
			break
		}
	}
	if out == nil {
		return fmt.Errorf("no output port matching %q", c.Port)
	}

	send, err := midi.SendTo(out)
	if err != nil {
		return err
	}
	defer out.Close()

	for _, msg := range msgs {
		if err := send(msg); err != nil {
			return err
		}
		fmt.Printf("%s <- % X\n", out.String(), []byte(msg))
	}
	return nil
}

func (c *SendCmd) value(i int) (uint8, error) {
	if i >= len(c.Values) {
		return 0, fmt.Errorf("%s needs %d data values", c.Kind, i+1)
	}
	v := c.Values[i]
	if v < 0 || v > 127 {
		return 0, fmt.Errorf("data value %d out of range", v)
	}
	return uint8(v), nil
}

func (c *SendCmd) messages() ([]midi.Message, error) {
	if c.Channel > 15 {
		return nil, fmt.Errorf("channel %d out of range", c.Channel)
	}
	ch := c.Channel

	switch c.Kind {
	case "lpx":
		return []midi.Message{
			midi.SysEx([]byte{0x00, 0x20, 0x29, 0x02, 0x0C, 0x00, 0x7F}),
			midi.SysEx([]byte{0x00, 0x20, 0x29, 0x02, 0x0C, 0x0A, 0x01, 0x01}),
		}, nil
	case "panic":
		var msgs []midi.Message
		for ch := uint8(0); ch < 16; ch++ {
			msgs = append(msgs, evt.NewControlChange(ch, 123, 0).Message())
		}
		return msgs, nil
	case "bend":
		if len(c.Values) == 0 || c.Values[0] < 0 || c.Values[0] > 0x3FFF {
			return nil, fmt.Errorf("bend needs a value 0-16383")
		}
		return []midi.Message{evt.NewPitchBend(ch, uint16(c.Values[0])).Message()}, nil
	}

	a, err := c.value(0)
	if err != nil {
		return nil, err
	}
	var ev evt.Event
	switch c.Kind {
	case "pc":
		ev = evt.NewProgramChange(ch, a)
	case "pressure":
		ev = evt.NewChannelPressure(ch, a)
	default:
		b, err := c.value(1)
		if err != nil {
			return nil, err
		}
		switch c.Kind {
		case "note":
			ev = evt.NewNoteOn(ch, a, b)
		case "off":
			ev = evt.NewNoteOff(ch, a, b)
		case "cc":
			ev = evt.NewControlChange(ch, a, b)
		}
	}
	return []midi.Message{ev.Message()}, nil
}

type ListenCmd struct {
	Port string        `arg:"" help:"Input port (case-insensitive substring)"`
	For  time.Duration `help:"Stop after this long (0 = until interrupted)" default:"0s"`
}

func (c *ListenCmd) Run() error {
	ins, _, err := ports()
	if err != nil {
		return err
	}
	var in drivers.In
	for _, p := range ins {
		if match(p.String(), c.Port) {
			in = p
			break
		}
	}
	if in == nil {
		return fmt.Errorf("no input port matching %q", c.Port)
	}

	stop, err := midi.ListenTo(in, func(msg midi.Message, ms int32) {
		ev, err := evt.Parse(msg)
		if err != nil {
			fmt.Printf("%8dms  % X  (%v)\n", ms, []byte(msg), err)
			return
		}
		fmt.Printf("%8dms  % X  %s\n", ms, []byte(msg), ev)
	}, midi.UseSysEx())
	if err != nil {
		return err
	}
	defer in.Close()
	defer stop()

	fmt.Printf("Listening on %s. Ctrl+C to exit.\n", in.String())
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()
	if c.For > 0 {
		ctx, cancel = context.WithTimeout(ctx, c.For)
		defer cancel()
	}
	<-ctx.Done()
	return nil
}

type PollCmd struct {
	Every time.Duration `help:"Poll interval" default:"2s"`
}

func (c *PollCmd) Run() error {
	fmt.Println("Polling for device changes. Ctrl+C to exit.")
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	last := ""
	for {
		ins, outs, err := ports()
		if err != nil {
			fmt.Println(err)
		} else {
			var inNames, outNames []string
			for _, p := range ins {
				inNames = append(inNames, p.String())
			}
			for _, p := range outs {
				outNames = append(outNames, p.String())
			}
			current := strings.Join(inNames, ",") + "|" + strings.Join(outNames, ",")
			if current != last {
				fmt.Printf("\n[%s] Device change detected!\n", time.Now().Format("15:04:05"))
				fmt.Printf("  Inputs: %v\n", inNames)
				fmt.Printf("  Outputs: %v\n", outNames)
				last = current
			}
		}

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(c.Every):
		}
	}
}
