package clock

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingProc struct {
	calls  atomic.Uint64
	frames atomic.Uint64
}

func (p *countingProc) Process(nframes uint32) {
	p.calls.Add(1)
	p.frames.Add(uint64(nframes))
}

func TestPeriod(t *testing.T) {
	assert.Equal(t, 5333333*time.Nanosecond, Period(256, 48000))
	assert.Equal(t, time.Millisecond, Period(48, 48000))
}

func TestNewTickerRejectsBadSizes(t *testing.T) {
	_, err := NewTicker(&countingProc{}, 0, 48000)
	assert.Error(t, err)
	_, err = NewTicker(&countingProc{}, 256, -1)
	assert.Error(t, err)
}

func TestTickerRunsCycles(t *testing.T) {
	proc := &countingProc{}
	tk, err := NewTicker(proc, 48, 48000)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- tk.Run(ctx) }()

	assert.Eventually(t, func() bool { return tk.Cycles() >= 3 }, time.Second, time.Millisecond)
	cancel()
	require.NoError(t, <-done)

	assert.Equal(t, proc.calls.Load(), tk.Cycles())
	assert.Equal(t, 48*proc.calls.Load(), proc.frames.Load())
}
