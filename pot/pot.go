// Package pot models the rotary controls of the hardware input layer. A Pot
// is one of a closed set of back-ends (incremental encoder or absolute
// potentiometer); a Bank binds pots to MIDI controllers, injects their moves
// into the router and takes controller values reported back by it.
package pot

import (
	"sync/atomic"

	"github.com/pkg/errors"
)

// Kind selects a pot back-end.
type Kind int

const (
	KindNone Kind = iota
	KindEncoder
	KindKnob
)

func (k Kind) String() string {
	switch k {
	case KindEncoder:
		return "encoder"
	case KindKnob:
		return "knob"
	}
	return "none"
}

// ParseKind is the inverse of Kind.String.
func ParseKind(s string) (Kind, error) {
	switch s {
	case "encoder":
		return KindEncoder, nil
	case "knob":
		return KindKnob, nil
	case "", "none":
		return KindNone, nil
	}
	return KindNone, errors.Errorf("unknown pot kind %q", s)
}

// KnobResolution is the number of distinct raw readings of a knob.
const KnobResolution = 1024

var ErrInvalidRange = errors.New("invalid range")

// Pot is a rotary control. All methods are safe to call concurrently;
// readers may see a range change one update late.
type Pot interface {
	Kind() Kind
	// SetRangeScale configures the value range, the current value and the
	// step per encoder detent.
	SetRangeScale(min, max, value, step int32) error
	Range() (min, max, step int32)
	Value() int32
	// SetValue stores v clamped to the range.
	SetValue(v int32)
	// Update applies a raw hardware reading: a detent count for encoders,
	// an absolute position in [0, KnobResolution) for knobs.
	Update(raw int32)
}

type base struct {
	min   atomic.Int32
	max   atomic.Int32
	step  atomic.Int32
	inv   atomic.Bool
	value atomic.Int32
}

func (b *base) init() {
	b.max.Store(127)
	b.step.Store(1)
}

func (b *base) SetRangeScale(min, max, value, step int32) error {
	inv := false
	if min > max {
		min, max, inv = max, min, true
	}
	if step < 0 {
		return errors.Wrapf(ErrInvalidRange, "step %d", step)
	}
	if step == 0 {
		step = 1
	}
	b.min.Store(min)
	b.max.Store(max)
	b.step.Store(step)
	b.inv.Store(inv)
	b.SetValue(value)
	return nil
}

func (b *base) Range() (min, max, step int32) {
	return b.min.Load(), b.max.Load(), b.step.Load()
}

func (b *base) Value() int32 { return b.value.Load() }

func (b *base) SetValue(v int32) { b.value.Store(b.clamp(v)) }

func (b *base) clamp(v int32) int32 {
	if min := b.min.Load(); v < min {
		return min
	}
	if max := b.max.Load(); v > max {
		return max
	}
	return v
}

// Encoder is an incremental rotary encoder.
type Encoder struct{ base }

func NewEncoder() *Encoder {
	e := &Encoder{}
	e.init()
	return e
}

func (e *Encoder) Kind() Kind { return KindEncoder }

// Update moves the value by detents*step; an inverted range turns the other
// way.
func (e *Encoder) Update(detents int32) {
	d := detents * e.step.Load()
	if e.inv.Load() {
		d = -d
	}
	for {
		old := e.value.Load()
		if e.value.CompareAndSwap(old, e.clamp(old+d)) {
			return
		}
	}
}

// Knob is an absolute potentiometer read through an ADC.
type Knob struct{ base }

func NewKnob() *Knob {
	k := &Knob{}
	k.init()
	return k
}

func (k *Knob) Kind() Kind { return KindKnob }

// Update scales a raw reading onto the range.
func (k *Knob) Update(raw int32) {
	if raw < 0 {
		raw = 0
	} else if raw >= KnobResolution {
		raw = KnobResolution - 1
	}
	if k.inv.Load() {
		raw = KnobResolution - 1 - raw
	}
	min, max := k.min.Load(), k.max.Load()
	k.value.Store(min + int32(int64(raw)*int64(max-min)/(KnobResolution-1)))
}

// New returns a pot of the given kind, nil for KindNone.
func New(kind Kind) Pot {
	switch kind {
	case KindEncoder:
		return NewEncoder()
	case KindKnob:
		return NewKnob()
	}
	return nil
}
