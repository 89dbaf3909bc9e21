package router

import (
	"github.com/pkg/errors"

	"go-midirouter/midi"
	"go-midirouter/ring"
)

// Each virtual ring has exactly one producer:
//
//	Inject*    hardware input layer (pots, switches)  → INTERNAL
//	UISend*    user interface goroutine               → UI
//	Feedback*  controller feedback logic              → CTRL_FB
//
// NotifyUIControlChange writes the UI notification queue directly and may be
// called from anywhere.

func checkEvent(ch, num, val uint8) error {
	if ch >= midi.NumChannels {
		return errors.Wrapf(ErrInvalidChannel, "channel %d", ch)
	}
	if num > 127 {
		return errors.Wrapf(ErrInvalidNumber, "number %d", num)
	}
	if val > 127 {
		return errors.Wrapf(ErrInvalidNumber, "value %d", val)
	}
	return nil
}

func send(b *ring.Buffer, ev midi.Event) error {
	if !b.WriteEvent(ev) {
		return errors.Wrapf(ErrBufferFull, "%s ring", b.Name())
	}
	return nil
}

func pitchBend(ch uint8, value uint16) (midi.Event, error) {
	if ch >= midi.NumChannels {
		return midi.Event{}, errors.Wrapf(ErrInvalidChannel, "channel %d", ch)
	}
	if value > 0x3FFF {
		return midi.Event{}, errors.Wrapf(ErrInvalidNumber, "pitch bend %d", value)
	}
	return midi.NewPitchBend(ch, value), nil
}

func (r *Router) InjectNoteOn(ch, pitch, velocity uint8) error {
	if err := checkEvent(ch, pitch, velocity); err != nil {
		return err
	}
	return send(r.internal, midi.NewNoteOn(ch, pitch, velocity))
}

func (r *Router) InjectNoteOff(ch, pitch, velocity uint8) error {
	if err := checkEvent(ch, pitch, velocity); err != nil {
		return err
	}
	return send(r.internal, midi.NewNoteOff(ch, pitch, velocity))
}

func (r *Router) InjectControlChange(ch, num, value uint8) error {
	if err := checkEvent(ch, num, value); err != nil {
		return err
	}
	return send(r.internal, midi.NewControlChange(ch, num, value))
}

func (r *Router) InjectProgramChange(ch, program uint8) error {
	if err := checkEvent(ch, 0, program); err != nil {
		return err
	}
	return send(r.internal, midi.NewProgramChange(ch, program))
}

func (r *Router) InjectChannelPressure(ch, value uint8) error {
	if err := checkEvent(ch, 0, value); err != nil {
		return err
	}
	return send(r.internal, midi.NewChannelPressure(ch, value))
}

// InjectPitchBend takes a 14-bit value, 8192 is centre.
func (r *Router) InjectPitchBend(ch uint8, value uint16) error {
	ev, err := pitchBend(ch, value)
	if err != nil {
		return err
	}
	return send(r.internal, ev)
}

// NotifyUIControlChange posts a CC to the UI queue without filtering.
func (r *Router) NotifyUIControlChange(ch, num, value uint8) error {
	if err := checkEvent(ch, num, value); err != nil {
		return err
	}
	if !r.uiQueue.WriteEvent(midi.NewControlChange(ch, num, value)) {
		return errors.Wrap(ErrBufferFull, "ui queue")
	}
	return nil
}

func (r *Router) UISendNoteOn(ch, pitch, velocity uint8) error {
	if err := checkEvent(ch, pitch, velocity); err != nil {
		return err
	}
	return send(r.ui, midi.NewNoteOn(ch, pitch, velocity))
}

func (r *Router) UISendNoteOff(ch, pitch, velocity uint8) error {
	if err := checkEvent(ch, pitch, velocity); err != nil {
		return err
	}
	return send(r.ui, midi.NewNoteOff(ch, pitch, velocity))
}

func (r *Router) UISendControlChange(ch, num, value uint8) error {
	if err := checkEvent(ch, num, value); err != nil {
		return err
	}
	return send(r.ui, midi.NewControlChange(ch, num, value))
}

// UISendMasterControlChange sends a CC on the master channel. It fails when
// no master channel is set.
func (r *Router) UISendMasterControlChange(num, value uint8) error {
	master := r.state.MasterChan()
	if master < 0 {
		return errors.Wrap(ErrInvalidChannel, "no master channel")
	}
	if err := checkEvent(uint8(master), num, value); err != nil {
		return err
	}
	return send(r.ui, midi.NewControlChange(uint8(master), num, value))
}

func (r *Router) UISendProgramChange(ch, program uint8) error {
	if err := checkEvent(ch, 0, program); err != nil {
		return err
	}
	return send(r.ui, midi.NewProgramChange(ch, program))
}

func (r *Router) UISendPitchBend(ch uint8, value uint16) error {
	ev, err := pitchBend(ch, value)
	if err != nil {
		return err
	}
	return send(r.ui, ev)
}

// UISendAllNotesOff sends CC 123 on every channel.
func (r *Router) UISendAllNotesOff() error {
	for ch := uint8(0); ch < midi.NumChannels; ch++ {
		if err := send(r.ui, midi.NewControlChange(ch, 123, 0)); err != nil {
			return err
		}
	}
	return nil
}

// SetTuningFreq changes the concert pitch and retunes sounding channels.
func (r *Router) SetTuningFreq(freq float64) error {
	if err := r.state.SetTuningFreq(freq); err != nil {
		return err
	}
	return r.Retune()
}

// Retune resends the last pitch bend of every channel through the UI ring so
// ports with the tuning flag pick up a new tuning offset.
func (r *Router) Retune() error {
	for ch := uint8(0); ch < midi.NumChannels; ch++ {
		if err := send(r.ui, midi.NewPitchBend(ch, r.engine.LastPitchBend(ch))); err != nil {
			return err
		}
	}
	return nil
}

func (r *Router) FeedbackControlChange(ch, num, value uint8) error {
	if err := checkEvent(ch, num, value); err != nil {
		return err
	}
	return send(r.feedback, midi.NewControlChange(ch, num, value))
}

func (r *Router) FeedbackNoteOn(ch, pitch, velocity uint8) error {
	if err := checkEvent(ch, pitch, velocity); err != nil {
		return err
	}
	return send(r.feedback, midi.NewNoteOn(ch, pitch, velocity))
}
