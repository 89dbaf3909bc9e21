// Package device binds physical MIDI ports to the router: each input port
// feeds its own ring, each output port drains a ring on a sender goroutine,
// and a manager polls the driver for hot-plug changes.
package device

import (
	"context"
	"fmt"
	"time"

	gomidi "gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/drivers"

	"go-midirouter/debug"
	"go-midirouter/midi"
	"go-midirouter/ring"
)

// Input feeds one driver input port into a ring. The driver's listener
// goroutine is the ring's only producer.
type Input struct {
	name     string
	ring     *ring.Buffer
	tap      func(msg gomidi.Message)
	stopFunc func()
	port     drivers.In
}

func newInput(name string, size int, tap func(msg gomidi.Message)) *Input {
	return &Input{name: name, ring: ring.New(name, size), tap: tap}
}

// OpenInput starts listening on a driver port. tap, when set, sees every
// message after it has been queued.
func OpenInput(port drivers.In, size int, tap func(msg gomidi.Message)) (*Input, error) {
	in := newInput(port.String(), size, tap)
	stop, err := gomidi.ListenTo(port, in.handle, gomidi.UseSysEx())
	if err != nil {
		return nil, fmt.Errorf("open input %s: %w", port.String(), err)
	}
	in.stopFunc = stop
	in.port = port
	return in, nil
}

func (in *Input) handle(msg gomidi.Message, timestampms int32) {
	in.ring.Write(msg)
	if in.tap != nil {
		in.tap(msg)
	}
}

func (in *Input) Name() string       { return in.name }
func (in *Input) Ring() *ring.Buffer { return in.ring }

func (in *Input) Close() error {
	if in.stopFunc != nil {
		in.stopFunc()
	}
	if in.port != nil {
		return in.port.Close()
	}
	return nil
}

// Output is a router sink for one driver output port. The processing cycle
// writes frames into a ring; Run sends them from its own goroutine.
type Output struct {
	name   string
	ring   *ring.Buffer
	send   func(msg gomidi.Message) error
	direct chan []byte
	poll   time.Duration
	port   drivers.Out
}

func newOutput(name string, size int, send func(msg gomidi.Message) error) *Output {
	return &Output{
		name:   name,
		ring:   ring.New(name, size),
		send:   send,
		direct: make(chan []byte, 16),
		poll:   time.Millisecond,
	}
}

// OpenOutput opens a driver port for sending.
func OpenOutput(port drivers.Out, size int) (*Output, error) {
	send, err := gomidi.SendTo(port)
	if err != nil {
		return nil, fmt.Errorf("open output %s: %w", port.String(), err)
	}
	o := newOutput(port.String(), size, send)
	o.port = port
	return o, nil
}

func (o *Output) Name() string { return o.name }

// Send queues a frame for the sender goroutine. It runs on the processing
// cycle and never blocks.
func (o *Output) Send(ev midi.Event, raw []byte) bool {
	return o.ring.Write(raw)
}

// SendDirect queues a message from outside the cycle, e.g. device set-up
// sysex. It fails when the queue is full.
func (o *Output) SendDirect(msg []byte) bool {
	select {
	case o.direct <- msg:
		return true
	default:
		return false
	}
}

// Dropped counts frames the cycle could not queue.
func (o *Output) Dropped() uint64 { return o.ring.Dropped() }

// Run sends queued frames until ctx is done (blocking - run in goroutine).
func (o *Output) Run(ctx context.Context) {
	ticker := time.NewTicker(o.poll)
	defer ticker.Stop()

	buf := make([]byte, ring.MaxFrame)
	for {
		select {
		case <-ctx.Done():
			o.flush(buf)
			return
		case msg := <-o.direct:
			o.write(msg)
		case <-ticker.C:
			o.flush(buf)
		}
	}
}

// Close closes the driver port. Call it after Run has returned.
func (o *Output) Close() error {
	if o.port != nil {
		return o.port.Close()
	}
	return nil
}

func (o *Output) flush(buf []byte) {
	for {
		frame, ok := o.ring.Next(buf)
		if !ok {
			return
		}
		o.write(frame)
	}
}

func (o *Output) write(msg []byte) {
	if err := o.send(gomidi.Message(msg)); err != nil {
		debug.LogEvery(100, "device", "send %s: %v", o.name, err)
	}
}
