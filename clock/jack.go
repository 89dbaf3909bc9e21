//go:build jack

package clock

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/xthexder/go-jack"

	"go-midirouter/debug"
)

// Jack runs the cycle inside the JACK process callback, so the router sees
// the server's real block size.
type Jack struct {
	client *jack.Client
	proc   Processor
	cycles atomic.Uint64
}

// NewJack opens a JACK client without starting a server.
func NewJack(name string, proc Processor) (Driver, error) {
	client, status := jack.ClientOpen(name, jack.NoStartServer)
	if client == nil {
		return nil, fmt.Errorf("open JACK client %s: status %d", name, status)
	}

	j := &Jack{client: client, proc: proc}
	if code := client.SetProcessCallback(j.process); code != 0 {
		client.Close()
		return nil, fmt.Errorf("set JACK process callback: status %d", code)
	}

	debug.Log("clock", "JACK client %s: %d Hz, block %d", name, client.GetSampleRate(), client.GetBufferSize())
	return j, nil
}

func (j *Jack) process(nframes uint32) int {
	j.proc.Process(nframes)
	j.cycles.Add(1)
	return 0
}

func (j *Jack) Cycles() uint64 { return j.cycles.Load() }

// Run activates the client and blocks until ctx is done.
func (j *Jack) Run(ctx context.Context) error {
	if code := j.client.Activate(); code != 0 {
		j.client.Close()
		return fmt.Errorf("activate JACK client: status %d", code)
	}
	<-ctx.Done()
	j.client.Deactivate()
	j.client.Close()
	return nil
}
