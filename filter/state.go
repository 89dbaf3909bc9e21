package filter

import (
	"math"
	"sync"
	"sync/atomic"

	"github.com/pkg/errors"

	"go-midirouter/midi"
)

// State is the filter configuration shared between the control goroutine and
// the processing cycle. Scalars are single atomics; structural tables live in
// a copy-on-write snapshot so the cycle never sees a half-applied change.
// Setters serialize on mu, which the cycle never takes.
type State struct {
	mu     sync.Mutex
	tables atomic.Pointer[Tables]

	tuningFreq      atomic.Uint64 // float64 bits
	tuningPitchBend atomic.Int32
	masterChan      atomic.Int32
	activeChan      atomic.Int32
	lastActiveChan  atomic.Int32
	systemEvents    atomic.Bool
	ccAutoMode      atomic.Bool
}

// NewState returns a state with every table at its pass-through default.
func NewState() *State {
	s := &State{}
	s.tables.Store(newTables())
	s.tuningFreq.Store(math.Float64bits(440))
	s.tuningPitchBend.Store(midi.PitchBendCenter)
	s.masterChan.Store(-1)
	s.activeChan.Store(-1)
	s.lastActiveChan.Store(-1)
	s.systemEvents.Store(true)
	s.ccAutoMode.Store(true)
	return s
}

// Tables returns the current snapshot. It must not be modified.
func (s *State) Tables() *Tables {
	return s.tables.Load()
}

// Update applies fn to a private copy of the tables and publishes it if fn
// succeeds. Use it to batch several changes into one swap.
func (s *State) Update(fn func(t *Tables) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	next := s.tables.Load().clone()
	if err := fn(next); err != nil {
		return err
	}
	next.rebuildReverse()
	s.tables.Store(next)
	return nil
}

// Reset restores every table and scalar to its default.
func (s *State) Reset() {
	s.mu.Lock()
	s.tables.Store(newTables())
	s.mu.Unlock()
	s.tuningFreq.Store(math.Float64bits(440))
	s.tuningPitchBend.Store(midi.PitchBendCenter)
	s.masterChan.Store(-1)
	s.activeChan.Store(-1)
	s.lastActiveChan.Store(-1)
	s.systemEvents.Store(true)
	s.ccAutoMode.Store(true)
}

//-----------------------------------------------------------------------------
// Special channels

// SetMasterChan sets the master channel, -1 disables it.
func (s *State) SetMasterChan(ch int) error {
	if err := checkOptionalChannel(ch); err != nil {
		return err
	}
	s.masterChan.Store(int32(ch))
	return nil
}

func (s *State) MasterChan() int { return int(s.masterChan.Load()) }

// SetActiveChan sets the active channel, -1 disables it. The previous value
// is kept as the last active channel.
func (s *State) SetActiveChan(ch int) error {
	if err := checkOptionalChannel(ch); err != nil {
		return err
	}
	prev := s.activeChan.Swap(int32(ch))
	if prev != int32(ch) {
		s.lastActiveChan.Store(prev)
	}
	return nil
}

func (s *State) ActiveChan() int     { return int(s.activeChan.Load()) }
func (s *State) LastActiveChan() int { return int(s.lastActiveChan.Load()) }

//-----------------------------------------------------------------------------
// Tuning

// SetTuningFreq sets the reference pitch for A4. The offset is expressed as a
// pitch bend for a ±2 semitone bend range.
func (s *State) SetTuningFreq(freq float64) error {
	if !(freq > 0) || math.IsInf(freq, 0) {
		return errors.Wrapf(ErrInvalidRange, "tuning frequency %v", freq)
	}
	semitones := 12 * math.Log2(freq/440.0)
	pb := int(math.Round(midi.PitchBendCenter + semitones*midi.PitchBendCenter/2))
	if pb < 0 {
		pb = 0
	} else if pb > 0x3FFF {
		pb = 0x3FFF
	}
	s.tuningFreq.Store(math.Float64bits(freq))
	s.tuningPitchBend.Store(int32(pb))
	return nil
}

// TuningFreq returns the reference pitch for A4 in Hz.
func (s *State) TuningFreq() float64 { return math.Float64frombits(s.tuningFreq.Load()) }

// TuningPitchBend returns the tuning offset as an absolute 14-bit bend.
func (s *State) TuningPitchBend() int { return int(s.tuningPitchBend.Load()) }

//-----------------------------------------------------------------------------
// Global switches

func (s *State) SetSystemEvents(enabled bool) { s.systemEvents.Store(enabled) }
func (s *State) SystemEvents() bool           { return s.systemEvents.Load() }
func (s *State) SetCCAutoMode(enabled bool)   { s.ccAutoMode.Store(enabled) }
func (s *State) CCAutoMode() bool             { return s.ccAutoMode.Load() }

//-----------------------------------------------------------------------------
// Note range & transpose

// SetNoteRange replaces the note window and transpose of a channel.
func (s *State) SetNoteRange(ch, low, high uint8, octTrans, htTrans int8) error {
	if err := checkChannel(ch); err != nil {
		return err
	}
	if low > 127 || high > 127 || low > high {
		return errors.Wrapf(ErrInvalidRange, "note range %d-%d", low, high)
	}
	return s.Update(func(t *Tables) error {
		t.NoteRange[ch] = NoteRange{Low: low, High: high, OctaveTrans: octTrans, HalftoneTrans: htTrans}
		return nil
	})
}

func (s *State) SetNoteLow(ch, low uint8) error {
	nr, err := s.NoteRange(ch)
	if err != nil {
		return err
	}
	return s.SetNoteRange(ch, low, nr.High, nr.OctaveTrans, nr.HalftoneTrans)
}

func (s *State) SetNoteHigh(ch, high uint8) error {
	nr, err := s.NoteRange(ch)
	if err != nil {
		return err
	}
	return s.SetNoteRange(ch, nr.Low, high, nr.OctaveTrans, nr.HalftoneTrans)
}

func (s *State) SetOctaveTrans(ch uint8, octTrans int8) error {
	nr, err := s.NoteRange(ch)
	if err != nil {
		return err
	}
	return s.SetNoteRange(ch, nr.Low, nr.High, octTrans, nr.HalftoneTrans)
}

func (s *State) SetHalftoneTrans(ch uint8, htTrans int8) error {
	nr, err := s.NoteRange(ch)
	if err != nil {
		return err
	}
	return s.SetNoteRange(ch, nr.Low, nr.High, nr.OctaveTrans, htTrans)
}

func (s *State) NoteRange(ch uint8) (NoteRange, error) {
	if err := checkChannel(ch); err != nil {
		return NoteRange{}, err
	}
	return s.tables.Load().NoteRange[ch], nil
}

func (s *State) ResetNoteRange(ch uint8) error {
	d := DefaultNoteRange
	return s.SetNoteRange(ch, d.Low, d.High, d.OctaveTrans, d.HalftoneTrans)
}

//-----------------------------------------------------------------------------
// Clone

// SetClone enables or disables cloning from one channel to another. A pair
// enabled for the first time gets DefaultCloneCC.
func (s *State) SetClone(from, to uint8, enabled bool) error {
	if err := checkChannel(from); err != nil {
		return err
	}
	if err := checkChannel(to); err != nil {
		return err
	}
	if from == to {
		return errors.Wrapf(ErrSelfClone, "channel %d", from)
	}
	return s.Update(func(t *Tables) error {
		c := &t.Clone[from][to]
		if enabled && !c.configured {
			c.setCC(DefaultCloneCC)
		}
		c.Enabled = enabled
		return nil
	})
}

func (s *State) Clone(from, to uint8) (bool, error) {
	if err := checkChannel(from); err != nil {
		return false, err
	}
	if err := checkChannel(to); err != nil {
		return false, err
	}
	return s.tables.Load().Clone[from][to].Enabled, nil
}

// ResetClone disables every clone whose source is from.
func (s *State) ResetClone(from uint8) error {
	if err := checkChannel(from); err != nil {
		return err
	}
	return s.Update(func(t *Tables) error {
		for to := range t.Clone[from] {
			t.Clone[from][to].Enabled = false
		}
		return nil
	})
}

// SetCloneCC replaces the controller set of a clone pair.
func (s *State) SetCloneCC(from, to uint8, ccs []uint8) error {
	if err := checkChannel(from); err != nil {
		return err
	}
	if err := checkChannel(to); err != nil {
		return err
	}
	for _, cc := range ccs {
		if err := checkNumber(cc); err != nil {
			return err
		}
	}
	return s.Update(func(t *Tables) error {
		t.Clone[from][to].setCC(ccs)
		return nil
	})
}

// CloneCC returns the sorted controller set of a clone pair.
func (s *State) CloneCC(from, to uint8) ([]uint8, error) {
	if err := checkChannel(from); err != nil {
		return nil, err
	}
	if err := checkChannel(to); err != nil {
		return nil, err
	}
	c := &s.tables.Load().Clone[from][to]
	if !c.configured {
		return append([]uint8(nil), DefaultCloneCC...), nil
	}
	var ccs []uint8
	for cc, on := range c.CC {
		if on {
			ccs = append(ccs, uint8(cc))
		}
	}
	return ccs, nil
}

func (s *State) ResetCloneCC(from, to uint8) error {
	return s.SetCloneCC(from, to, DefaultCloneCC)
}

//-----------------------------------------------------------------------------
// Event map

func checkMapType(t midi.Type) error {
	if !t.IsChannel() {
		return errors.Wrapf(ErrInvalidType, "type %s", t)
	}
	return nil
}

func checkMapFrom(typ midi.Type, ch, num uint8) error {
	if err := checkMapType(typ); err != nil {
		return err
	}
	return checkChanNum(ch, num)
}

// SetEventMap remaps (typeFrom, chFrom, numFrom) to a replacement template.
// The emitted event takes its value from the source event.
func (s *State) SetEventMap(typeFrom midi.Type, chFrom, numFrom uint8, typeTo midi.Type, chTo, numTo uint8) error {
	if err := checkMapFrom(typeFrom, chFrom, numFrom); err != nil {
		return err
	}
	if err := checkMapFrom(typeTo, chTo, numTo); err != nil {
		return err
	}
	return s.Update(func(t *Tables) error {
		t.EventMap[typeFrom.MapIndex()][chFrom][numFrom] = Mapping{Set: true, Type: typeTo, Channel: chTo, Number: numTo}
		return nil
	})
}

// SetEventIgnore drops every event matching (typ, ch, num).
func (s *State) SetEventIgnore(typ midi.Type, ch, num uint8) error {
	if err := checkMapFrom(typ, ch, num); err != nil {
		return err
	}
	return s.Update(func(t *Tables) error {
		t.EventMap[typ.MapIndex()][ch][num] = Mapping{Set: true, Type: midi.Ignore}
		return nil
	})
}

// EventMap returns the entry for (typ, ch, num); ok is false when absent.
func (s *State) EventMap(typ midi.Type, ch, num uint8) (m Mapping, ok bool, err error) {
	if err := checkMapFrom(typ, ch, num); err != nil {
		return Mapping{}, false, err
	}
	m = s.tables.Load().EventMap[typ.MapIndex()][ch][num]
	return m, m.Set, nil
}

func (s *State) DelEventMap(typ midi.Type, ch, num uint8) error {
	if err := checkMapFrom(typ, ch, num); err != nil {
		return err
	}
	return s.Update(func(t *Tables) error {
		t.EventMap[typ.MapIndex()][ch][num] = Mapping{}
		return nil
	})
}

func (s *State) ResetEventMap() error {
	return s.Update(func(t *Tables) error {
		t.EventMap = [midi.NumMapTypes][midi.NumChannels][128]Mapping{}
		return nil
	})
}

// SetCCMap is SetEventMap restricted to control change on both sides.
func (s *State) SetCCMap(chFrom, ccFrom, chTo, ccTo uint8) error {
	return s.SetEventMap(midi.ControlChange, chFrom, ccFrom, midi.ControlChange, chTo, ccTo)
}

func (s *State) SetCCIgnore(ch, cc uint8) error {
	return s.SetEventIgnore(midi.ControlChange, ch, cc)
}

// CCMap returns the target of a CC→CC mapping.
func (s *State) CCMap(ch, cc uint8) (chTo, ccTo uint8, ok bool, err error) {
	m, ok, err := s.EventMap(midi.ControlChange, ch, cc)
	if err != nil || !ok || m.Type != midi.ControlChange {
		return 0, 0, false, err
	}
	return m.Channel, m.Number, true, nil
}

func (s *State) DelCCMap(ch, cc uint8) error {
	return s.DelEventMap(midi.ControlChange, ch, cc)
}

// ResetCCMap clears every control change entry of the event map.
func (s *State) ResetCCMap() error {
	return s.Update(func(t *Tables) error {
		t.EventMap[midi.ControlChange.MapIndex()] = [midi.NumChannels][128]Mapping{}
		return nil
	})
}

//-----------------------------------------------------------------------------
// CC swap

// SetCCSwap pairs two controller identities symmetrically. Any pairing
// either side already had is removed first.
func (s *State) SetCCSwap(chA, numA, chB, numB uint8) error {
	if err := checkChanNum(chA, numA); err != nil {
		return err
	}
	if err := checkChanNum(chB, numB); err != nil {
		return err
	}
	if chA == chB && numA == numB {
		return errors.Wrapf(ErrInvalidRange, "swap of ch%d cc%d with itself", chA, numA)
	}
	return s.Update(func(t *Tables) error {
		unswap(t, chA, numA)
		unswap(t, chB, numB)
		t.Swap[chA][numA] = Partner{Set: true, Channel: chB, Number: numB}
		t.Swap[chB][numB] = Partner{Set: true, Channel: chA, Number: numA}
		return nil
	})
}

func unswap(t *Tables, ch, num uint8) {
	p := t.Swap[ch][num]
	if !p.Set {
		return
	}
	t.Swap[p.Channel][p.Number] = Partner{}
	t.Swap[ch][num] = Partner{}
}

// DelCCSwap removes the pairing of (ch, num) and of its partner.
func (s *State) DelCCSwap(ch, num uint8) error {
	if err := checkChanNum(ch, num); err != nil {
		return err
	}
	return s.Update(func(t *Tables) error {
		unswap(t, ch, num)
		return nil
	})
}

// CCSwap returns the swap partner of (ch, num).
func (s *State) CCSwap(ch, num uint8) (Partner, error) {
	if err := checkChanNum(ch, num); err != nil {
		return Partner{}, err
	}
	return s.tables.Load().Swap[ch][num], nil
}

func (s *State) ResetCCSwap() error {
	return s.Update(func(t *Tables) error {
		t.Swap = [midi.NumChannels][128]Partner{}
		return nil
	})
}
