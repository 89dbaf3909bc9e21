package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSendMessages(t *testing.T) {
	for _, tc := range []struct {
		cmd  SendCmd
		want []byte
	}{
		{SendCmd{Kind: "note", Channel: 1, Values: []int{60, 100}}, []byte{0x91, 60, 100}},
		{SendCmd{Kind: "cc", Channel: 0, Values: []int{7, 90}}, []byte{0xB0, 7, 90}},
		{SendCmd{Kind: "pc", Channel: 15, Values: []int{5}}, []byte{0xCF, 5}},
		{SendCmd{Kind: "pressure", Channel: 2, Values: []int{64}}, []byte{0xD2, 64}},
		{SendCmd{Kind: "bend", Channel: 0, Values: []int{8192}}, []byte{0xE0, 0x00, 0x40}},
	} {
		msgs, err := tc.cmd.messages()
		require.NoError(t, err, tc.cmd.Kind)
		require.Len(t, msgs, 1)
		assert.Equal(t, tc.want, []byte(msgs[0]), tc.cmd.Kind)
	}

	msgs, err := (&SendCmd{Kind: "panic"}).messages()
	require.NoError(t, err)
	assert.Len(t, msgs, 16)

	msgs, err = (&SendCmd{Kind: "lpx"}).messages()
	require.NoError(t, err)
	assert.Equal(t, byte(0xF0), msgs[0][0])
}

func TestSendRejectsBadInput(t *testing.T) {
	for _, cmd := range []SendCmd{
		{Kind: "note", Channel: 16, Values: []int{60, 1}},
		{Kind: "note", Values: []int{60}},
		{Kind: "cc", Values: []int{7, 128}},
		{Kind: "bend", Values: []int{0x4000}},
		{Kind: "bend"},
	} {
		_, err := cmd.messages()
		assert.Error(t, err, "%+v", cmd)
	}
}

func TestMatch(t *testing.T) {
	assert.True(t, match("Launchpad X:Launchpad X LPX MIDI 20:1", "lpx midi"))
	assert.False(t, match("Midi Through", "keystation"))
}
