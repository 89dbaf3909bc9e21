package router

import (
	"math"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go-midirouter/filter"
	"go-midirouter/midi"
	"go-midirouter/ring"
)

type capture struct {
	events []midi.Event
	raw    [][]byte
	reject bool
}

func (c *capture) Send(ev midi.Event, raw []byte) bool {
	if c.reject {
		return false
	}
	c.events = append(c.events, ev)
	c.raw = append(c.raw, append([]byte(nil), raw...))
	return true
}

func newTestRouter(t *testing.T) *Router {
	t.Helper()
	return New(filter.NewState(), Options{})
}

func attach(t *testing.T, r *Router, id OutputID) *capture {
	t.Helper()
	c := &capture{}
	require.NoError(t, r.BindOutput(id, c))
	return c
}

func device(t *testing.T, r *Router, id InputID) *ring.Buffer {
	t.Helper()
	b := ring.New("test", 1024)
	require.NoError(t, r.BindInput(id, b))
	return b
}

func TestDefaultTopology(t *testing.T) {
	r := newTestRouter(t)

	on, err := r.Routing(OutCh0+3, InDev0)
	require.NoError(t, err)
	assert.True(t, on)
	on, err = r.Routing(OutCtrl, InDev0)
	require.NoError(t, err)
	assert.False(t, on)
	on, err = r.Routing(OutCtrl, InCtrlFB)
	require.NoError(t, err)
	assert.True(t, on)
	on, err = r.Routing(OutNet, InNet)
	require.NoError(t, err)
	assert.False(t, on, "no network loop")

	for from := 0; from < midi.NumChannels; from++ {
		to, err := r.ChannelMap(OutCh0+3, from)
		require.NoError(t, err)
		if from == 3 {
			assert.Equal(t, 3, to)
		} else {
			assert.Equal(t, -1, to)
		}
		to, err = r.ChannelMap(OutMain, from)
		require.NoError(t, err)
		assert.Equal(t, from, to)
	}

	in, err := r.Input(InInternal)
	require.NoError(t, err)
	assert.Equal(t, "internal", in.Name())
	assert.True(t, in.HasFlags(filter.FlagNoteRange|filter.FlagClone|filter.FlagFilter|filter.FlagSwap))
	assert.False(t, in.HasFlags(filter.FlagController))
}

func TestInvalidArguments(t *testing.T) {
	r := newTestRouter(t)

	assert.ErrorIs(t, r.SetRouting(NumOutputs, InDev0, true), ErrInvalidPort)
	assert.ErrorIs(t, r.SetRouting(OutMain, -1, true), ErrInvalidPort)
	_, err := r.Routing(OutMain, NumInputs)
	assert.ErrorIs(t, err, ErrInvalidPort)
	assert.ErrorIs(t, r.SetChannelMap(OutMain, 16, 0), ErrInvalidChannel)
	assert.ErrorIs(t, r.SetChannelMap(OutMain, 0, 16), ErrInvalidChannel)
	assert.ErrorIs(t, r.InitOutput(OutMain, "main", 16, 0), ErrInvalidChannel)
	_, _, err = r.PopNext(NumOutputs)
	assert.ErrorIs(t, err, ErrInvalidPort)
	assert.ErrorIs(t, r.BindInput(InUI, nil), ErrInvalidPort)

	assert.ErrorIs(t, r.InjectNoteOn(16, 60, 100), ErrInvalidChannel)
	assert.ErrorIs(t, r.InjectControlChange(0, 128, 0), ErrInvalidNumber)
	assert.ErrorIs(t, r.InjectControlChange(0, 1, 200), ErrInvalidNumber)
	assert.ErrorIs(t, r.InjectPitchBend(0, 0x4000), ErrInvalidNumber)
	assert.ErrorIs(t, r.UISendMasterControlChange(7, 100), ErrInvalidChannel)

	// nothing reached the ring
	ch0 := attach(t, r, OutCh0)
	r.Process(64)
	assert.Empty(t, ch0.events)
}

func TestInjectReachesChannelPort(t *testing.T) {
	r := newTestRouter(t)
	ch1 := attach(t, r, OutCh0+1)
	ch2 := attach(t, r, OutCh0+2)
	main := attach(t, r, OutMain)

	require.NoError(t, r.InjectNoteOn(2, 60, 100))
	r.Process(64)

	assert.Empty(t, ch1.events)
	require.Len(t, ch2.events, 1)
	assert.Equal(t, midi.NewNoteOn(2, 60, 100), ch2.events[0])
	assert.Equal(t, []byte{0x92, 60, 100}, ch2.raw[0])
	require.Len(t, main.events, 1)

	st := r.Stats()
	assert.Equal(t, uint64(1), st.Cycles)
	assert.Equal(t, uint64(64), st.Frames)
	assert.Equal(t, uint64(1), st.Received)
	assert.Equal(t, uint64(2), st.Delivered)

	// queues are per cycle
	r.Process(64)
	assert.Len(t, ch2.events, 1)
}

func TestActiveChannelDelivery(t *testing.T) {
	r := newTestRouter(t)
	dev := device(t, r, InDev0)
	require.NoError(t, r.State().SetActiveChan(3))
	require.NoError(t, r.SetOutputFlag(OutCh0+5, OutListenActive, true))
	require.NoError(t, r.SetOutputFlag(OutCh0+3, OutListenActive, true))
	ch3 := attach(t, r, OutCh0+3)
	ch5 := attach(t, r, OutCh0+5)
	ch6 := attach(t, r, OutCh0+6)

	require.True(t, dev.WriteEvent(midi.NewNoteOn(3, 64, 90)))
	require.True(t, dev.WriteEvent(midi.NewNoteOn(4, 64, 90)))
	r.Process(64)

	require.Len(t, ch3.events, 1, "routed and active listener, delivered once")
	assert.Equal(t, uint8(3), ch3.events[0].Channel)
	require.Len(t, ch5.events, 1, "active listener ignores its channel map")
	assert.Equal(t, uint8(3), ch5.events[0].Channel)
	assert.Empty(t, ch6.events)
}

func TestMasterChannelDelivery(t *testing.T) {
	r := newTestRouter(t)
	dev := device(t, r, InDev0)
	require.NoError(t, r.State().SetMasterChan(15))
	require.NoError(t, r.SetOutputFlag(OutCh0+15, OutListenMaster, true))
	ch2 := attach(t, r, OutCh0+2)
	ch15 := attach(t, r, OutCh0+15)

	require.True(t, dev.WriteEvent(midi.NewControlChange(2, 7, 100)))
	require.True(t, dev.WriteEvent(midi.NewControlChange(15, 7, 50)))
	require.True(t, dev.WriteEvent(midi.NewNoteOn(2, 60, 100)))
	r.Process(64)

	require.Len(t, ch2.events, 2)
	require.Len(t, ch15.events, 2)
	assert.Equal(t, midi.NewControlChange(15, 7, 100), ch15.events[0])
	assert.Equal(t, midi.NewControlChange(15, 7, 50), ch15.events[1])
}

func TestSourceOrderPreserved(t *testing.T) {
	r := newTestRouter(t)
	dev := device(t, r, InDev0)
	thru := attach(t, r, OutThru)

	want := []midi.Event{
		midi.NewNoteOn(0, 60, 100),
		midi.NewControlChange(0, 3, 1),
		midi.NewNoteOff(0, 60, 0),
	}
	for _, ev := range want {
		require.True(t, dev.WriteEvent(ev))
	}
	r.Process(64)
	assert.Equal(t, want, thru.events)
}

func TestPopNextRoundRobin(t *testing.T) {
	r := newTestRouter(t)
	a := device(t, r, InDev0)
	b := device(t, r, InDev0+1)

	a1, a2 := midi.NewControlChange(0, 1, 1), midi.NewControlChange(0, 1, 2)
	b1, b2, b3 := midi.NewControlChange(1, 1, 1), midi.NewControlChange(1, 1, 2), midi.NewControlChange(1, 1, 3)
	for _, ev := range []midi.Event{a1, a2} {
		require.True(t, a.WriteEvent(ev))
	}
	for _, ev := range []midi.Event{b1, b2, b3} {
		require.True(t, b.WriteEvent(ev))
	}
	r.Collect()

	var got []midi.Event
	var src []InputID
	for {
		d, ok, err := r.PopNext(OutThru)
		require.NoError(t, err)
		if !ok {
			break
		}
		got = append(got, d.Event)
		src = append(src, d.Source)
	}
	assert.Equal(t, []midi.Event{a1, b1, a2, b2, b3}, got)
	assert.Equal(t, []InputID{InDev0, InDev0 + 1, InDev0, InDev0 + 1, InDev0 + 1}, src)

	require.NoError(t, r.ResetCounters(OutThru))
	d, ok, err := r.PopNext(OutThru)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, a1, d.Event)

	r.Finish(64)
	_, ok, err = r.PopNext(OutThru)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, uint64(1), r.Stats().Cycles)
}

func TestRingBackpressure(t *testing.T) {
	r := New(filter.NewState(), Options{RingSize: 16})
	ch0 := attach(t, r, OutCh0)

	accepted := 0
	for i := 0; i < 10; i++ {
		err := r.InjectControlChange(0, 20, uint8(i))
		if err == nil {
			accepted++
			continue
		}
		assert.Equal(t, ErrBufferFull, errors.Cause(err))
	}
	assert.Equal(t, 3, accepted)

	r.Process(64)
	require.Len(t, ch0.events, 3)
	for i, ev := range ch0.events {
		assert.Equal(t, uint8(i), ev.Value)
	}
	assert.Equal(t, uint64(7), r.Stats().RingDropped)

	require.NoError(t, r.InjectControlChange(0, 20, 99))
}

func TestNotePairingAcrossTranspose(t *testing.T) {
	r := newTestRouter(t)
	ch0 := attach(t, r, OutCh0)

	require.NoError(t, r.InjectNoteOn(0, 60, 100))
	r.Process(64)
	require.NoError(t, r.State().SetOctaveTrans(0, 1))
	require.NoError(t, r.InjectNoteOff(0, 60, 0))
	require.NoError(t, r.InjectNoteOff(0, 60, 0))
	r.Process(64)

	assert.Equal(t, []midi.Event{
		midi.NewNoteOn(0, 60, 100),
		midi.NewNoteOff(0, 60, 0),
	}, ch0.events)
}

func TestCloneFanOut(t *testing.T) {
	r := newTestRouter(t)
	dev := device(t, r, InDev0)
	require.NoError(t, r.State().SetClone(0, 1, true))
	ch0 := attach(t, r, OutCh0)
	ch1 := attach(t, r, OutCh0+1)

	require.True(t, dev.WriteEvent(midi.NewControlChange(0, 1, 100)))
	require.True(t, dev.WriteEvent(midi.NewControlChange(0, 3, 100)))
	r.Process(64)

	assert.Equal(t, []midi.Event{midi.NewControlChange(0, 1, 100), midi.NewControlChange(0, 3, 100)}, ch0.events)
	assert.Equal(t, []midi.Event{midi.NewControlChange(1, 1, 100)}, ch1.events)
}

func TestInjectedCloneFanOut(t *testing.T) {
	r := newTestRouter(t)
	require.NoError(t, r.State().SetClone(0, 1, true))
	ch0 := attach(t, r, OutCh0)
	ch1 := attach(t, r, OutCh0+1)

	require.NoError(t, r.InjectControlChange(0, 1, 100))
	require.NoError(t, r.InjectControlChange(0, 3, 100))
	r.Process(64)

	assert.Equal(t, []midi.Event{midi.NewControlChange(0, 1, 100), midi.NewControlChange(0, 3, 100)}, ch0.events)
	assert.Equal(t, []midi.Event{midi.NewControlChange(1, 1, 100)}, ch1.events)
}

func TestInjectedSwap(t *testing.T) {
	r := newTestRouter(t)
	ch0 := attach(t, r, OutCh0)
	require.NoError(t, r.State().SetCCSwap(0, 10, 0, 20))

	require.NoError(t, r.InjectControlChange(0, 10, 50))
	require.NoError(t, r.InjectControlChange(0, 20, 50))
	r.Process(64)
	assert.Equal(t, []midi.Event{midi.NewControlChange(0, 20, 50), midi.NewControlChange(0, 10, 50)}, ch0.events)

	ch0.events = nil
	require.NoError(t, r.State().DelCCSwap(0, 10))
	require.NoError(t, r.InjectControlChange(0, 10, 50))
	require.NoError(t, r.InjectControlChange(0, 20, 50))
	r.Process(64)
	assert.Equal(t, []midi.Event{midi.NewControlChange(0, 10, 50), midi.NewControlChange(0, 20, 50)}, ch0.events)
}

func TestInjectedRemap(t *testing.T) {
	r := newTestRouter(t)
	ch0 := attach(t, r, OutCh0)
	require.NoError(t, r.State().SetEventMap(midi.ControlChange, 0, 5, midi.NoteOn, 0, 60))

	require.NoError(t, r.InjectControlChange(0, 5, 90))
	r.Process(64)
	assert.Equal(t, []midi.Event{midi.NewNoteOn(0, 60, 90)}, ch0.events)

	ch0.events = nil
	require.NoError(t, r.State().DelEventMap(midi.ControlChange, 0, 5))
	require.NoError(t, r.InjectControlChange(0, 5, 90))
	r.Process(64)
	assert.Equal(t, []midi.Event{midi.NewControlChange(0, 5, 90)}, ch0.events)
}

func TestInjectedNoteRemapReleases(t *testing.T) {
	r := newTestRouter(t)
	ch0 := attach(t, r, OutCh0)
	require.NoError(t, r.State().SetEventMap(midi.NoteOn, 0, 60, midi.NoteOn, 0, 62))

	require.NoError(t, r.InjectNoteOn(0, 60, 100))
	require.NoError(t, r.InjectNoteOff(0, 60, 0))
	r.Process(64)
	assert.Equal(t, []midi.Event{midi.NewNoteOn(0, 62, 100), midi.NewNoteOff(0, 62, 0)}, ch0.events)
}

func TestChannelMapRewrite(t *testing.T) {
	r := newTestRouter(t)
	thru := attach(t, r, OutThru)

	require.NoError(t, r.SetChannelMap(OutThru, 0, 5))
	require.NoError(t, r.InjectControlChange(0, 7, 1))
	r.Process(64)
	require.NoError(t, r.SetChannelMap(OutThru, 0, -1))
	require.NoError(t, r.InjectControlChange(0, 7, 2))
	r.Process(64)
	require.NoError(t, r.ResetChannelMap(OutThru))
	require.NoError(t, r.InjectControlChange(0, 7, 3))
	r.Process(64)

	assert.Equal(t, []midi.Event{midi.NewControlChange(5, 7, 1), midi.NewControlChange(0, 7, 3)}, thru.events)
}

func TestDropProgramChange(t *testing.T) {
	r := newTestRouter(t)
	ch0 := attach(t, r, OutCh0)
	main := attach(t, r, OutMain)
	require.NoError(t, r.SetOutputFlag(OutCh0, OutDropPC, true))

	require.NoError(t, r.InjectProgramChange(0, 5))
	r.Process(64)
	assert.Empty(t, ch0.events)
	assert.Equal(t, []midi.Event{midi.NewProgramChange(0, 5)}, main.events)

	out, err := r.Output(OutCh0)
	require.NoError(t, err)
	assert.True(t, out.HasFlags(OutDropPC|OutTuning))
	require.NoError(t, r.SetOutputFlag(OutCh0, OutDropPC, false))
	assert.False(t, out.HasFlags(OutDropPC))
}

func TestTuningRetune(t *testing.T) {
	r := newTestRouter(t)
	ch0 := attach(t, r, OutCh0)
	thru := attach(t, r, OutThru)

	require.NoError(t, r.SetTuningFreq(440*math.Pow(2, 1.0/12)))
	r.Process(64)

	require.Len(t, ch0.events, 1)
	assert.Equal(t, uint16(midi.PitchBendCenter+4096), ch0.events[0].Bend())
	require.Len(t, thru.events, midi.NumChannels)
	assert.Equal(t, uint16(midi.PitchBendCenter), thru.events[0].Bend())

	// bend on top of tuning clamps at the top
	require.NoError(t, r.InjectPitchBend(0, 0x3FFF))
	r.Process(64)
	require.Len(t, ch0.events, 2)
	assert.Equal(t, uint16(0x3FFF), ch0.events[1].Bend())
	assert.Equal(t, uint16(0x3FFF), r.Engine().LastPitchBend(0))
}

func TestSysExPassThrough(t *testing.T) {
	r := newTestRouter(t)
	dev := device(t, r, InDev0)
	thru := attach(t, r, OutThru)
	ch0 := attach(t, r, OutCh0)

	payload := []byte{0xF0, 0x7E, 0x7F, 0x06, 0x01, 0xF7}
	require.True(t, dev.Write(payload))
	r.Process(64)

	require.Len(t, thru.raw, 1)
	assert.Equal(t, payload, thru.raw[0])
	assert.Equal(t, midi.SysExStart, thru.events[0].Type)
	assert.Empty(t, ch0.events)

	r.State().SetSystemEvents(false)
	require.True(t, dev.Write(payload))
	r.Process(64)
	assert.Len(t, thru.raw, 1)
}

func TestFeedbackReachesControllerOnly(t *testing.T) {
	r := newTestRouter(t)
	require.NoError(t, r.State().SetCCMap(0, 10, 0, 20))
	ctrl := attach(t, r, OutCtrl)
	ch0 := attach(t, r, OutCh0)

	require.NoError(t, r.FeedbackControlChange(0, 20, 99))
	r.Process(64)

	assert.Equal(t, []midi.Event{midi.NewControlChange(0, 10, 99)}, ctrl.events)
	assert.Empty(t, ch0.events)
}

func TestUINotifications(t *testing.T) {
	r := newTestRouter(t)

	require.NoError(t, r.InjectControlChange(0, 7, 100))
	r.Process(64)
	ev, ok := r.ReadUI()
	require.True(t, ok)
	assert.Equal(t, midi.NewControlChange(0, 7, 100), ev)

	require.NoError(t, r.NotifyUIControlChange(1, 74, 12))
	ev, ok = r.ReadUI()
	require.True(t, ok)
	assert.Equal(t, midi.NewControlChange(1, 74, 12), ev)

	_, ok = r.ReadUI()
	assert.False(t, ok)
}

func TestSinkDropsCounted(t *testing.T) {
	r := newTestRouter(t)
	main := attach(t, r, OutMain)
	main.reject = true

	require.NoError(t, r.InjectNoteOn(0, 60, 1))
	r.Process(64)

	out, err := r.Output(OutMain)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), out.Dropped())
	assert.Equal(t, uint64(1), r.Stats().SinkDropped)
}

func TestUISendAllNotesOff(t *testing.T) {
	r := newTestRouter(t)
	main := attach(t, r, OutMain)

	require.NoError(t, r.UISendAllNotesOff())
	r.Process(64)

	require.Len(t, main.events, midi.NumChannels)
	for ch, ev := range main.events {
		assert.Equal(t, midi.NewControlChange(uint8(ch), 123, 0), ev)
	}
}

func TestPortNames(t *testing.T) {
	for id := OutputID(0); id < NumOutputs; id++ {
		got, err := ParseOutputID(id.String())
		require.NoError(t, err)
		assert.Equal(t, id, got)
	}
	for id := InputID(0); id < NumInputs; id++ {
		got, err := ParseInputID(id.String())
		require.NoError(t, err)
		assert.Equal(t, id, got)
	}
	assert.Equal(t, "ch7", (OutCh0 + 7).String())
	assert.Equal(t, "ctrl_fb", InCtrlFB.String())

	_, err := ParseOutputID("ch16")
	assert.ErrorIs(t, err, ErrInvalidPort)
	_, err = ParseInputID("bogus")
	assert.ErrorIs(t, err, ErrInvalidPort)
}
