package parser

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse_MixedFrame(t *testing.T) {
	cmds, diags := Parse("a:0.5;b:2.0;badcmd;c:")

	assert.Equal(t, Commands{{Tag: "a", Value: 0.5}, {Tag: "b", Value: 1.0}}, cmds)
	require.Len(t, diags, 2)
	assert.True(t, errors.Is(diags[0], ErrMalformedCommand))
	assert.True(t, errors.Is(diags[1], ErrInvalidValue))
	assert.Equal(t, "malformed_command", Reason(diags[0]))
	assert.Equal(t, "invalid_value", Reason(diags[1]))
}

func TestParse_Empty(t *testing.T) {
	for _, frame := range []string{"", "   ", ";;", " ; "} {
		cmds, diags := Parse(frame)
		assert.Empty(t, cmds, "frame %q", frame)
		assert.Empty(t, diags, "frame %q", frame)
	}
}

func TestParse_Whitespace(t *testing.T) {
	cmds, diags := Parse("  left : 0.25 ;  right:1 ")

	assert.Empty(t, diags)
	assert.Equal(t, Commands{{Tag: "left", Value: 0.25}, {Tag: "right", Value: 1}}, cmds)
}

func TestParse_Clamp(t *testing.T) {
	cmds, diags := Parse("a:-3;b:1.0001;c:0")
	assert.Empty(t, diags)

	v, ok := cmds.Get("a")
	require.True(t, ok)
	assert.Equal(t, 0.0, v)
	v, _ = cmds.Get("b")
	assert.Equal(t, 1.0, v)
	v, ok = cmds.Get("c")
	require.True(t, ok)
	assert.Equal(t, 0.0, v)
}

func TestParse_OverflowClamped(t *testing.T) {
	tests := []struct {
		frame string
		want  float64
	}{
		{"a:1e400", 1.0},
		{"a:-1e400", 0.0},
		{"a:inf", 1.0},
		{"a:-Inf", 0.0},
		{"a:1e-400", 0.0},
	}
	for _, tt := range tests {
		cmds, diags := Parse(tt.frame)
		assert.Empty(t, diags, "frame %q", tt.frame)
		v, ok := cmds.Get("a")
		require.True(t, ok, "frame %q", tt.frame)
		assert.Equal(t, tt.want, v, "frame %q", tt.frame)
	}
}

func TestParse_DuplicateLastWins(t *testing.T) {
	cmds, diags := Parse("a:0.1;b:0.2;a:0.9")

	assert.Empty(t, diags)
	assert.Equal(t, Commands{{Tag: "a", Value: 0.9}, {Tag: "b", Value: 0.2}}, cmds)
}

func TestParse_Malformed(t *testing.T) {
	tests := []struct {
		frame string
		want  error
	}{
		{"a", ErrMalformedCommand},
		{"a:0.1:0.2", ErrMalformedCommand},
		{":0.5", ErrMalformedCommand},
		{"a:abc", ErrInvalidValue},
		{"a:", ErrInvalidValue},
	}
	for _, tt := range tests {
		cmds, diags := Parse(tt.frame)
		assert.Empty(t, cmds, "frame %q", tt.frame)
		require.Len(t, diags, 1, "frame %q", tt.frame)
		assert.True(t, errors.Is(diags[0], tt.want), "frame %q: %v", tt.frame, diags[0])
	}
}

func TestParse_CaseSensitiveTags(t *testing.T) {
	cmds, _ := Parse("A:0.1;a:0.2")
	assert.Len(t, cmds, 2)
}
