// Package ring provides the lock-free queues that hand events to the
// processing cycle: a single-producer/single-consumer byte ring carrying
// framed MIDI messages, and a bounded multi-producer word queue feeding the
// user interface.
package ring

import (
	"sync/atomic"

	"go-midirouter/midi"
)

// DefaultSize is the byte capacity used for the three virtual input rings.
const DefaultSize = 1024

// MaxFrame is the largest message a ring accepts.
const MaxFrame = 0xFFFF

const headerSize = 2

// Buffer is a single-producer/single-consumer ring of length-prefixed MIDI
// frames. Exactly one goroutine may call Write and exactly one may call
// Drain/Next. Neither side ever blocks.
type Buffer struct {
	name string
	buf  []byte
	mask uint64

	head atomic.Uint64 // next byte to read, owned by the consumer
	tail atomic.Uint64 // next byte to write, owned by the producer

	dropped   atomic.Uint64 // writes rejected because the ring was full
	malformed atomic.Uint64 // frames discarded by the reader
}

// New creates a ring with at least size bytes of capacity (rounded up to a
// power of two).
func New(name string, size int) *Buffer {
	n := 16
	for n < size {
		n <<= 1
	}
	return &Buffer{
		name: name,
		buf:  make([]byte, n),
		mask: uint64(n - 1),
	}
}

// Name returns the ring's label.
func (b *Buffer) Name() string { return b.name }

// Cap returns the byte capacity.
func (b *Buffer) Cap() int { return len(b.buf) }

// Free returns the bytes available to the producer.
func (b *Buffer) Free() int {
	return len(b.buf) - int(b.tail.Load()-b.head.Load())
}

// Write appends one raw message. It returns false and counts a drop when
// the frame does not fit; partial frames are never written.
func (b *Buffer) Write(raw []byte) bool {
	n := len(raw)
	if n == 0 || n > MaxFrame || n+headerSize > len(b.buf) {
		b.dropped.Add(1)
		return false
	}
	tail := b.tail.Load()
	head := b.head.Load()
	if uint64(len(b.buf))-(tail-head) < uint64(n+headerSize) {
		b.dropped.Add(1)
		return false
	}
	b.put(tail, byte(n>>8))
	b.put(tail+1, byte(n))
	for i, c := range raw {
		b.put(tail+headerSize+uint64(i), c)
	}
	b.tail.Store(tail + uint64(n+headerSize))
	return true
}

// WriteEvent encodes and writes a channel or system event.
func (b *Buffer) WriteEvent(ev midi.Event) bool {
	var scratch [3]byte
	raw := ev.AppendBytes(scratch[:0])
	if len(raw) == 0 {
		b.dropped.Add(1)
		return false
	}
	return b.Write(raw)
}

// Next copies the next frame into dst and returns the filled slice. ok is
// false when the ring is empty. A frame larger than dst is skipped and
// counted as malformed.
func (b *Buffer) Next(dst []byte) (frame []byte, ok bool) {
	for {
		head := b.head.Load()
		tail := b.tail.Load()
		if tail-head < headerSize {
			return nil, false
		}
		n := int(b.get(head))<<8 | int(b.get(head+1))
		if tail-head < uint64(n+headerSize) {
			// producer publishes header and body together; anything else
			// means the ring is corrupt, resynchronise by discarding it all
			b.malformed.Add(1)
			b.head.Store(tail)
			return nil, false
		}
		if n > len(dst) {
			b.malformed.Add(1)
			b.head.Store(head + uint64(n+headerSize))
			continue
		}
		for i := 0; i < n; i++ {
			dst[i] = b.get(head + headerSize + uint64(i))
		}
		b.head.Store(head + uint64(n+headerSize))
		return dst[:n], true
	}
}

// Drain parses every pending frame and hands it to fn in FIFO order.
// Frames that fail to parse are discarded and counted. scratch must be
// large enough for the biggest expected frame (sysex included).
func (b *Buffer) Drain(scratch []byte, fn func(ev midi.Event, raw []byte)) int {
	count := 0
	for {
		frame, ok := b.Next(scratch)
		if !ok {
			return count
		}
		ev, err := midi.Parse(frame)
		if err != nil {
			b.malformed.Add(1)
			continue
		}
		fn(ev, frame)
		count++
	}
}

// Reset discards buffered frames. Only the consumer may call it.
func (b *Buffer) Reset() {
	b.head.Store(b.tail.Load())
}

// Dropped returns the number of writes rejected as full or oversized.
func (b *Buffer) Dropped() uint64 { return b.dropped.Load() }

// Malformed returns the number of frames discarded by the reader.
func (b *Buffer) Malformed() uint64 { return b.malformed.Load() }

func (b *Buffer) put(pos uint64, c byte) { b.buf[pos&b.mask] = c }
func (b *Buffer) get(pos uint64) byte    { return b.buf[pos&b.mask] }
