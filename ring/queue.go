package ring

import (
	"sync/atomic"

	"go-midirouter/midi"
)

// DefaultQueueSize is the UI notification queue capacity in words.
const DefaultQueueSize = 4096

type slot struct {
	seq  atomic.Uint64
	word uint32
}

// Queue is a bounded lock-free FIFO of packed event words. Any number of
// goroutines may Write; a single goroutine reads. Write never blocks: when
// the queue is full the newest word is dropped.
type Queue struct {
	slots []slot
	mask  uint64

	_       [56]byte
	enqueue atomic.Uint64
	_       [56]byte
	dequeue atomic.Uint64

	dropped atomic.Uint64
}

// NewQueue creates a queue holding at least size words.
func NewQueue(size int) *Queue {
	n := 2
	for n < size {
		n <<= 1
	}
	q := &Queue{
		slots: make([]slot, n),
		mask:  uint64(n - 1),
	}
	for i := range q.slots {
		q.slots[i].seq.Store(uint64(i))
	}
	return q
}

// Write appends a word; false means the queue was full and w was dropped.
// The zero word is rejected since Read uses it to signal empty.
func (q *Queue) Write(w uint32) bool {
	if w == 0 {
		return false
	}
	pos := q.enqueue.Load()
	for {
		s := &q.slots[pos&q.mask]
		seq := s.seq.Load()
		switch diff := int64(seq) - int64(pos); {
		case diff == 0:
			if q.enqueue.CompareAndSwap(pos, pos+1) {
				s.word = w
				s.seq.Store(pos + 1)
				return true
			}
			pos = q.enqueue.Load()
		case diff < 0:
			q.dropped.Add(1)
			return false
		default:
			pos = q.enqueue.Load()
		}
	}
}

// WriteEvent packs and writes an event.
func (q *Queue) WriteEvent(ev midi.Event) bool {
	return q.Write(midi.Pack(ev))
}

// Read pops the oldest word, or 0 when the queue is empty.
func (q *Queue) Read() uint32 {
	pos := q.dequeue.Load()
	for {
		s := &q.slots[pos&q.mask]
		seq := s.seq.Load()
		switch diff := int64(seq) - int64(pos+1); {
		case diff == 0:
			if q.dequeue.CompareAndSwap(pos, pos+1) {
				w := s.word
				s.seq.Store(pos + q.mask + 1)
				return w
			}
			pos = q.dequeue.Load()
		case diff < 0:
			return 0
		default:
			pos = q.dequeue.Load()
		}
	}
}

// ReadEvent pops and decodes the oldest word.
func (q *Queue) ReadEvent() (midi.Event, bool) {
	for {
		w := q.Read()
		if w == 0 {
			return midi.Event{}, false
		}
		if ev, ok := midi.Unpack(w); ok {
			return ev, true
		}
	}
}

// Len returns an approximate number of queued words.
func (q *Queue) Len() int {
	return int(q.enqueue.Load() - q.dequeue.Load())
}

// Dropped returns the number of words rejected because the queue was full.
func (q *Queue) Dropped() uint64 { return q.dropped.Load() }
