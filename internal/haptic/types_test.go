package haptic

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestChannel_Validate(t *testing.T) {
	assert.NoError(t, Channel(0).Validate())
	assert.NoError(t, Channel(15).Validate())
	assert.True(t, errors.Is(Channel(16).Validate(), ErrChannelRange))
	assert.True(t, errors.Is(Channel(-1).Validate(), ErrChannelRange))
}

func TestChannel_Address(t *testing.T) {
	assert.Equal(t, "/avatar/parameters/haptira/channel/00/value", Channel(0).Address())
	assert.Equal(t, "/avatar/parameters/haptira/channel/15/value", Channel(15).Address())
}

func TestClamp(t *testing.T) {
	tests := []struct {
		in   float64
		want float64
		ok   bool
	}{
		{0.5, 0.5, true},
		{0, 0, true},
		{1, 1, true},
		{1.7, 1, false},
		{-0.2, 0, false},
		{math.NaN(), 0, false},
		{math.Inf(1), 1, false},
	}
	for _, tt := range tests {
		got, ok := Clamp(tt.in)
		assert.Equal(t, tt.want, got, "Clamp(%v)", tt.in)
		assert.Equal(t, tt.ok, ok, "Clamp(%v)", tt.in)
	}
}

func TestChannelValues_Set(t *testing.T) {
	var cv ChannelValues
	cv.Set(1, 0.2)
	cv.Set(0, 0)
	cv.Set(1, 0.9)

	assert.Equal(t, ChannelValues{{Channel: 1, Value: 0.9}, {Channel: 0, Value: 0}}, cv)
	assert.True(t, cv.AnyNonZero())
	assert.False(t, ChannelValues{{Channel: 3, Value: 0}}.AnyNonZero())
}
