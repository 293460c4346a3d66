// Package parser decodes control frames of the form "tag:value;tag:value".
package parser

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"ws2osc/internal/haptic"
)

const (
	commandSeparator = ";"
	fieldSeparator   = ":"
)

var (
	// ErrMalformedCommand marks a command without exactly one ':' or with an empty tag.
	ErrMalformedCommand = errors.New("malformed command")
	// ErrInvalidValue marks a command whose value is not a number.
	ErrInvalidValue = errors.New("invalid intensity value")
)

// Command is one tag with its clamped intensity.
type Command struct {
	Tag   string
	Value float64
}

// Commands keeps the order in which tags first appeared in a frame.
type Commands []Command

// Get returns the value stored for tag.
func (c Commands) Get(tag string) (float64, bool) {
	for _, cmd := range c {
		if cmd.Tag == tag {
			return cmd.Value, true
		}
	}
	return 0, false
}

func (c *Commands) set(tag string, v float64) {
	for i := range *c {
		if (*c)[i].Tag == tag {
			(*c)[i].Value = v
			return
		}
	}
	*c = append(*c, Command{Tag: tag, Value: v})
}

// Parse decodes one frame. Malformed commands are skipped and reported in the
// returned diagnostics; they never abort the rest of the frame. A later
// occurrence of a tag overwrites an earlier one.
func Parse(frame string) (Commands, []error) {
	var (
		out   Commands
		diags []error
	)

	for _, raw := range strings.Split(strings.TrimSpace(frame), commandSeparator) {
		cmd := strings.TrimSpace(raw)
		if cmd == "" {
			continue
		}

		parts := strings.Split(cmd, fieldSeparator)
		if len(parts) != 2 {
			diags = append(diags, fmt.Errorf("%w: %q", ErrMalformedCommand, cmd))
			continue
		}

		tag := strings.TrimSpace(parts[0])
		if tag == "" {
			diags = append(diags, fmt.Errorf("%w: empty tag in %q", ErrMalformedCommand, cmd))
			continue
		}

		// out-of-range literals come back as ±Inf with ErrRange and are clamped like any number
		value, err := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
		if err != nil && !errors.Is(err, strconv.ErrRange) {
			diags = append(diags, fmt.Errorf("%w: %q for tag %q", ErrInvalidValue, strings.TrimSpace(parts[1]), tag))
			continue
		}

		value, _ = haptic.Clamp(value)
		out.set(tag, value)
	}

	return out, diags
}

// Reason maps a diagnostic to a short label for logs and metrics.
func Reason(err error) string {
	switch {
	case errors.Is(err, ErrMalformedCommand):
		return "malformed_command"
	case errors.Is(err, ErrInvalidValue):
		return "invalid_value"
	default:
		return "unknown"
	}
}
