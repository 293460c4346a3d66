// Package haptic holds the value types shared by the parser, the OSC sender and the bridge.
package haptic

import (
	"errors"
	"fmt"
	"math"
)

const (
	// MinChannel and MaxChannel bound the channels understood by the OSC receiver.
	MinChannel Channel = 0
	MaxChannel Channel = 15
)

// ErrChannelRange is returned for channels outside [MinChannel, MaxChannel].
var ErrChannelRange = errors.New("channel out of range")

// Channel identifies one addressable output.
type Channel int

// Valid reports whether c lies in [MinChannel, MaxChannel].
func (c Channel) Valid() bool {
	return c >= MinChannel && c <= MaxChannel
}

// Validate returns a descriptive error wrapping ErrChannelRange for invalid channels.
func (c Channel) Validate() error {
	if !c.Valid() {
		return fmt.Errorf("%w: %d (allowed %d-%d)", ErrChannelRange, int(c), int(MinChannel), int(MaxChannel))
	}
	return nil
}

// Address is the OSC address pattern for the channel.
func (c Channel) Address() string {
	return fmt.Sprintf("/avatar/parameters/haptira/channel/%02d/value", int(c))
}

// Clamp limits v to [0.0, 1.0]. The second result is false when v had to be adjusted.
func Clamp(v float64) (float64, bool) {
	switch {
	case math.IsNaN(v):
		return 0, false
	case v < 0:
		return 0, false
	case v > 1:
		return 1, false
	}
	return v, true
}

// ChannelValue is one intensity addressed to a channel.
type ChannelValue struct {
	Channel Channel
	Value   float64
}

// ChannelValues is an ordered set of channel intensities. A channel appears at most once.
type ChannelValues []ChannelValue

// Set stores v for ch, overwriting an earlier entry for the same channel in place.
func (cv *ChannelValues) Set(ch Channel, v float64) {
	for i := range *cv {
		if (*cv)[i].Channel == ch {
			(*cv)[i].Value = v
			return
		}
	}
	*cv = append(*cv, ChannelValue{Channel: ch, Value: v})
}

// AnyNonZero reports whether at least one value is above zero.
func (cv ChannelValues) AnyNonZero() bool {
	for _, v := range cv {
		if v.Value != 0 {
			return true
		}
	}
	return false
}
