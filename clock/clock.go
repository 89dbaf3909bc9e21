// Package clock drives the router's processing cycle, either from a ticker
// sized to one audio block or from a JACK process callback.
package clock

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
)

// Processor runs one cycle of nframes samples. It must not block.
type Processor interface {
	Process(nframes uint32)
}

// Driver runs cycles until ctx is done.
type Driver interface {
	Run(ctx context.Context) error
	Cycles() uint64
}

// Period is the duration of one block at the given sample rate.
func Period(blockSize, sampleRate int) time.Duration {
	return time.Duration(blockSize) * time.Second / time.Duration(sampleRate)
}

// Ticker calls Process once per block period. Late ticks are dropped by the
// runtime, so a stalled cycle does not run twice to catch up.
type Ticker struct {
	proc      Processor
	blockSize uint32
	period    time.Duration
	cycles    atomic.Uint64
}

func NewTicker(proc Processor, blockSize, sampleRate int) (*Ticker, error) {
	if blockSize <= 0 || sampleRate <= 0 {
		return nil, errors.Errorf("clock: block size %d and sample rate %d must be positive", blockSize, sampleRate)
	}
	return &Ticker{
		proc:      proc,
		blockSize: uint32(blockSize),
		period:    Period(blockSize, sampleRate),
	}, nil
}

func (t *Ticker) Period() time.Duration { return t.period }
func (t *Ticker) Cycles() uint64        { return t.cycles.Load() }

// Run blocks until ctx is done.
func (t *Ticker) Run(ctx context.Context) error {
	ticker := time.NewTicker(t.period)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			t.proc.Process(t.blockSize)
			t.cycles.Add(1)
		}
	}
}
