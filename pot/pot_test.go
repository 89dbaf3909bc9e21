package pot

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type cc struct{ ch, num, val uint8 }

type injector struct {
	sent []cc
	err  error
}

func (j *injector) InjectControlChange(ch, num, val uint8) error {
	if j.err != nil {
		return j.err
	}
	j.sent = append(j.sent, cc{ch, num, val})
	return nil
}

func TestEncoderSteps(t *testing.T) {
	e := NewEncoder()
	require.NoError(t, e.SetRangeScale(0, 100, 50, 5))

	e.Update(2)
	assert.Equal(t, int32(60), e.Value())
	e.Update(-20)
	assert.Equal(t, int32(0), e.Value())
	e.Update(100)
	assert.Equal(t, int32(100), e.Value())
}

func TestEncoderInvertedRange(t *testing.T) {
	e := NewEncoder()
	require.NoError(t, e.SetRangeScale(127, 0, 64, 1))

	min, max, step := e.Range()
	assert.Equal(t, int32(0), min)
	assert.Equal(t, int32(127), max)
	assert.Equal(t, int32(1), step)

	e.Update(1)
	assert.Equal(t, int32(63), e.Value())
}

func TestKnobScaling(t *testing.T) {
	k := NewKnob()
	require.NoError(t, k.SetRangeScale(0, 127, 0, 0))

	k.Update(0)
	assert.Equal(t, int32(0), k.Value())
	k.Update(KnobResolution - 1)
	assert.Equal(t, int32(127), k.Value())
	k.Update(5000)
	assert.Equal(t, int32(127), k.Value())
	k.Update(-1)
	assert.Equal(t, int32(0), k.Value())

	require.NoError(t, k.SetRangeScale(127, 0, 0, 0))
	k.Update(0)
	assert.Equal(t, int32(127), k.Value())
}

func TestRangeScaleRejectsNegativeStep(t *testing.T) {
	e := NewEncoder()
	assert.ErrorIs(t, e.SetRangeScale(0, 10, 0, -1), ErrInvalidRange)
}

func TestParseKind(t *testing.T) {
	for _, k := range []Kind{KindNone, KindEncoder, KindKnob} {
		got, err := ParseKind(k.String())
		require.NoError(t, err)
		assert.Equal(t, k, got)
	}
	_, err := ParseKind("slider")
	assert.Error(t, err)
}

func TestBankBoundsAndSetup(t *testing.T) {
	b := NewBank(&injector{})

	assert.ErrorIs(t, b.Setup(MaxPots, KindEncoder), ErrInvalidIndex)
	assert.ErrorIs(t, b.Setup(-1, KindEncoder), ErrInvalidIndex)
	_, err := b.Value(0)
	assert.ErrorIs(t, err, ErrNotSetup)

	require.NoError(t, b.Setup(0, KindEncoder))
	require.NoError(t, b.Setup(2, KindKnob))
	assert.Equal(t, 2, b.Count())

	p, err := b.Pot(2)
	require.NoError(t, err)
	assert.Equal(t, KindKnob, p.Kind())

	assert.ErrorIs(t, b.SetupMIDI(0, 16, 1), ErrInvalidMIDI)
	assert.ErrorIs(t, b.SetupMIDI(0, 0, 128), ErrInvalidMIDI)

	require.NoError(t, b.Setup(2, KindNone))
	assert.Equal(t, 1, b.Count())
	b.Reset()
	assert.Equal(t, 0, b.Count())
}

func TestBankSetValueSends(t *testing.T) {
	inj := &injector{}
	b := NewBank(inj)
	require.NoError(t, b.Setup(0, KindEncoder))
	require.NoError(t, b.SetupRangeScale(0, 0, 127, 0, 1))

	// unbound pots never send
	require.NoError(t, b.SetValue(0, 10, true))
	assert.Empty(t, inj.sent)

	require.NoError(t, b.SetupMIDI(0, 2, 74))
	require.NoError(t, b.SetValue(0, 90, true))
	require.NoError(t, b.SetValue(0, 91, false))
	assert.Equal(t, []cc{{2, 74, 90}}, inj.sent)

	changed, err := b.Changed(0)
	require.NoError(t, err)
	assert.True(t, changed)
	v, err := b.Value(0)
	require.NoError(t, err)
	assert.Equal(t, int32(91), v)
	changed, _ = b.Changed(0)
	assert.False(t, changed)

	require.NoError(t, b.Send(0))
	assert.Equal(t, cc{2, 74, 91}, inj.sent[1])
}

func TestBankUpdate(t *testing.T) {
	inj := &injector{}
	b := NewBank(inj)
	require.NoError(t, b.Setup(1, KindEncoder))
	require.NoError(t, b.SetupRangeScale(1, 0, 127, 126, 1))
	require.NoError(t, b.SetupMIDI(1, 0, 7))

	require.NoError(t, b.Update(1, 5))
	require.NoError(t, b.Update(1, 1)) // pinned at max, nothing sent
	assert.Equal(t, []cc{{0, 7, 127}}, inj.sent)

	inj.err = errors.New("ring full")
	assert.Error(t, b.Update(1, -1))
}

func TestBankBindsBankSelect(t *testing.T) {
	inj := &injector{}
	b := NewBank(inj)
	require.NoError(t, b.Setup(0, KindKnob))
	require.NoError(t, b.SetupRangeScale(0, 0, 127, 0, 1))

	_, _, bound, err := b.MIDI(0)
	require.NoError(t, err)
	assert.False(t, bound)

	require.NoError(t, b.SetupMIDI(0, 4, 0))
	ch, num, bound, err := b.MIDI(0)
	require.NoError(t, err)
	assert.True(t, bound)
	assert.Equal(t, uint8(4), ch)
	assert.Equal(t, uint8(0), num)

	require.NoError(t, b.SetValue(0, 3, true))
	b.ReportControllerValue(4, 0, 9)
	v, _ := b.Value(0)
	assert.Equal(t, int32(9), v)

	require.NoError(t, b.UnbindMIDI(0))
	require.NoError(t, b.SetValue(0, 5, true))
	b.ReportControllerValue(4, 0, 11)
	v, _ = b.Value(0)
	assert.Equal(t, int32(5), v)
	assert.Equal(t, []cc{{4, 0, 3}}, inj.sent)
	assert.ErrorIs(t, b.UnbindMIDI(MaxPots), ErrInvalidIndex)
}

func TestBankReportControllerValue(t *testing.T) {
	b := NewBank(nil)
	for i := 0; i < 3; i++ {
		require.NoError(t, b.Setup(i, KindEncoder))
	}
	require.NoError(t, b.SetupMIDI(0, 1, 20))
	require.NoError(t, b.SetupMIDI(1, 1, 20))
	require.NoError(t, b.SetupMIDI(2, 1, 21))

	b.ReportControllerValue(1, 20, 33)

	for i, want := range []int32{33, 33, 0} {
		v, err := b.Value(i)
		require.NoError(t, err)
		assert.Equal(t, want, v, "pot %d", i)
	}
}

func TestBankNudge(t *testing.T) {
	inj := &injector{}
	b := NewBank(inj)
	require.NoError(t, b.Setup(0, KindKnob))
	require.NoError(t, b.SetupRangeScale(0, 0, 100, 50, 5))
	require.NoError(t, b.SetupMIDI(0, 3, 10))
	require.NoError(t, b.Setup(1, KindEncoder))
	require.NoError(t, b.SetupRangeScale(1, 0, 127, 10, 2))

	require.NoError(t, b.Nudge(0, 2))
	require.NoError(t, b.Nudge(0, -1))
	require.NoError(t, b.Nudge(1, -3))

	v, _ := b.Value(0)
	assert.Equal(t, int32(55), v)
	v, _ = b.Value(1)
	assert.Equal(t, int32(4), v)
	assert.Equal(t, []cc{{3, 10, 60}, {3, 10, 55}}, inj.sent)

	assert.ErrorIs(t, b.Nudge(3, 1), ErrNotSetup)
}
