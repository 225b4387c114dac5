package statemachine

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTransition_Allowed(t *testing.T) {
	cases := []struct {
		from State
		to   State
	}{
		{New, Claimed},
		{New, Failed},
		{Claimed, Extracted},
		{Claimed, Failed},
		{Extracted, Validated},
		{Extracted, ReviewRequired},
		{Extracted, Failed},
		{Validated, Stored},
		{Validated, ReviewRequired},
		{Validated, Failed},
		{ReviewRequired, Claimed},
		{ReviewRequired, Failed},
		{Stored, Archived},
		{Stored, Failed},
	}

	for _, tc := range cases {
		t.Run(string(tc.from)+"->"+string(tc.to), func(t *testing.T) {
			got, err := Transition(tc.from, tc.to)
			require.NoError(t, err)
			assert.Equal(t, tc.to, got)
			assert.True(t, CanTransition(tc.from, tc.to))
		})
	}
}

func TestTransition_Rejected(t *testing.T) {
	cases := []struct {
		from State
		to   State
	}{
		{New, Stored},
		{New, ReviewRequired},
		{Claimed, Stored},
		{Stored, New},
		{Archived, New},
		{Failed, New},
		{ReviewRequired, Extracted},
	}

	for _, tc := range cases {
		t.Run(string(tc.from)+"->"+string(tc.to), func(t *testing.T) {
			_, err := Transition(tc.from, tc.to)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInvalidTransition))
			assert.False(t, CanTransition(tc.from, tc.to))
		})
	}
}

func TestTransition_UnknownState(t *testing.T) {
	_, err := Transition("BOGUS", Claimed)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidTransition))

	_, err = Transition(New, "BOGUS")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidTransition))
}

func TestTransition_CaseAndWhitespaceInsensitive(t *testing.T) {
	got, err := Transition(" new ", "claimed")
	require.NoError(t, err)
	assert.Equal(t, Claimed, got)
}

func TestIsTerminal(t *testing.T) {
	assert.True(t, IsTerminal(Archived))
	assert.True(t, IsTerminal(Failed))
	assert.False(t, IsTerminal(New))
	assert.False(t, IsTerminal(Stored))
}
