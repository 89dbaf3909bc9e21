package pot

import (
	"sync/atomic"

	"github.com/pkg/errors"
)

// MaxPots is the number of pot slots in a bank.
const MaxPots = 4

var (
	ErrInvalidIndex = errors.New("invalid pot index")
	ErrNotSetup     = errors.New("pot not set up")
	ErrInvalidMIDI  = errors.New("invalid midi binding")
)

// Injector takes the control changes a pot sends. *router.Router satisfies
// it through the INTERNAL ring, so a bank must only be driven from one
// goroutine at a time.
type Injector interface {
	InjectControlChange(ch, num, value uint8) error
}

type holder struct{ Pot }

type slot struct {
	pot     atomic.Pointer[holder]
	midiCh  atomic.Int32
	midiCC  atomic.Int32 // -1 = not bound
	changed atomic.Bool
}

// Bank is a fixed arena of pots addressed by index.
type Bank struct {
	inj   Injector
	slots [MaxPots]slot
}

func NewBank(inj Injector) *Bank {
	b := &Bank{inj: inj}
	for i := range b.slots {
		b.slots[i].midiCC.Store(-1)
	}
	return b
}

func (b *Bank) slot(i int) (*slot, Pot, error) {
	if i < 0 || i >= MaxPots {
		return nil, nil, errors.Wrapf(ErrInvalidIndex, "pot %d", i)
	}
	s := &b.slots[i]
	h := s.pot.Load()
	if h == nil {
		return s, nil, errors.Wrapf(ErrNotSetup, "pot %d", i)
	}
	return s, h.Pot, nil
}

// Reset clears every slot.
func (b *Bank) Reset() {
	for i := range b.slots {
		s := &b.slots[i]
		s.pot.Store(nil)
		s.midiCh.Store(0)
		s.midiCC.Store(-1)
		s.changed.Store(false)
	}
}

// Count returns the number of configured pots.
func (b *Bank) Count() int {
	n := 0
	for i := range b.slots {
		if b.slots[i].pot.Load() != nil {
			n++
		}
	}
	return n
}

// Setup installs a fresh pot of the given kind in slot i. KindNone empties
// the slot.
func (b *Bank) Setup(i int, kind Kind) error {
	if i < 0 || i >= MaxPots {
		return errors.Wrapf(ErrInvalidIndex, "pot %d", i)
	}
	p := New(kind)
	if p == nil {
		b.slots[i].pot.Store(nil)
		return nil
	}
	b.slots[i].pot.Store(&holder{p})
	return nil
}

// Pot returns the pot in slot i.
func (b *Bank) Pot(i int) (Pot, error) {
	_, p, err := b.slot(i)
	return p, err
}

func (b *Bank) SetupRangeScale(i int, min, max, value, step int32) error {
	_, p, err := b.slot(i)
	if err != nil {
		return err
	}
	return p.SetRangeScale(min, max, value, step)
}

// SetupMIDI binds pot i to a controller.
func (b *Bank) SetupMIDI(i int, ch, cc uint8) error {
	s, _, err := b.slot(i)
	if err != nil {
		return err
	}
	if ch > 15 || cc > 127 {
		return errors.Wrapf(ErrInvalidMIDI, "channel %d cc %d", ch, cc)
	}
	s.midiCh.Store(int32(ch))
	s.midiCC.Store(int32(cc))
	return nil
}

// UnbindMIDI stops pot i sending and tracking a controller.
func (b *Bank) UnbindMIDI(i int) error {
	s, _, err := b.slot(i)
	if err != nil {
		return err
	}
	s.midiCC.Store(-1)
	return nil
}

// MIDI returns the controller a pot is bound to; bound is false when it has
// none.
func (b *Bank) MIDI(i int) (ch, cc uint8, bound bool, err error) {
	s, _, err := b.slot(i)
	if err != nil {
		return 0, 0, false, err
	}
	c := s.midiCC.Load()
	if c < 0 {
		return 0, 0, false, nil
	}
	return uint8(s.midiCh.Load()), uint8(c), true, nil
}

// Value returns the current value and clears the changed flag.
func (b *Bank) Value(i int) (int32, error) {
	s, p, err := b.slot(i)
	if err != nil {
		return 0, err
	}
	s.changed.Store(false)
	return p.Value(), nil
}

// Changed reports whether the value changed since the last Value call.
func (b *Bank) Changed(i int) (bool, error) {
	s, _, err := b.slot(i)
	if err != nil {
		return false, err
	}
	return s.changed.Load(), nil
}

// SetValue stores a value and optionally sends it to the bound controller.
func (b *Bank) SetValue(i int, v int32, send bool) error {
	s, p, err := b.slot(i)
	if err != nil {
		return err
	}
	p.SetValue(v)
	s.changed.Store(true)
	if send {
		return b.send(s, p)
	}
	return nil
}

// Update feeds a raw hardware reading to pot i and sends the new value.
func (b *Bank) Update(i int, raw int32) error {
	s, p, err := b.slot(i)
	if err != nil {
		return err
	}
	before := p.Value()
	p.Update(raw)
	if p.Value() == before {
		return nil
	}
	s.changed.Store(true)
	return b.send(s, p)
}

// Nudge moves pot i by detents steps whatever its kind, as a relative
// control surface would, and sends the new value.
func (b *Bank) Nudge(i int, detents int32) error {
	s, p, err := b.slot(i)
	if err != nil {
		return err
	}
	if p.Kind() == KindEncoder {
		return b.Update(i, detents)
	}
	before := p.Value()
	_, _, step := p.Range()
	p.SetValue(before + detents*step)
	if p.Value() == before {
		return nil
	}
	s.changed.Store(true)
	return b.send(s, p)
}

// Send pushes the current value of pot i to its controller.
func (b *Bank) Send(i int) error {
	s, p, err := b.slot(i)
	if err != nil {
		return err
	}
	return b.send(s, p)
}

func (b *Bank) send(s *slot, p Pot) error {
	cc := s.midiCC.Load()
	if cc < 0 || b.inj == nil {
		return nil
	}
	v := p.Value()
	if v < 0 {
		v = 0
	} else if v > 127 {
		v = 127
	}
	return b.inj.InjectControlChange(uint8(s.midiCh.Load()), uint8(cc), uint8(v))
}

// ReportControllerValue updates every pot bound to (ch, cc). It runs on the
// processing cycle and only touches atomics.
func (b *Bank) ReportControllerValue(ch, cc, value uint8) {
	for i := range b.slots {
		s := &b.slots[i]
		if s.midiCC.Load() != int32(cc) || s.midiCh.Load() != int32(ch) {
			continue
		}
		h := s.pot.Load()
		if h == nil {
			continue
		}
		h.SetValue(int32(value))
		s.changed.Store(true)
	}
}
