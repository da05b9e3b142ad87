package cards

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAnalyzePlaySingles(t *testing.T) {
	t.Parallel()

	a := AnalyzePlay([]Card{7})
	assert.True(t, a.Valid)
	assert.Equal(t, Single, a.Kind)

	a = AnalyzePlay([]Card{JokerBlack})
	assert.True(t, a.Valid)
	assert.Equal(t, Single, a.Kind)
}

func TestAnalyzePlayPairs(t *testing.T) {
	t.Parallel()

	// A-Spades + A-Hearts
	a := AnalyzePlay([]Card{0, 13})
	assert.True(t, a.Valid)
	assert.Equal(t, Pair, a.Kind)

	// A-Spades + A-Hearts + joker substituting a third ace
	a = AnalyzePlay([]Card{0, 13, JokerRed})
	assert.True(t, a.Valid)
	assert.Equal(t, Pair, a.Kind)

	// Two jokers pair with each other
	a = AnalyzePlay([]Card{JokerRed, JokerBlack})
	assert.True(t, a.Valid)
	assert.Equal(t, Pair, a.Kind)

	// Mismatched ranks are not a pair and too short for a sequence
	a = AnalyzePlay([]Card{0, 14})
	assert.False(t, a.Valid)
	assert.Equal(t, ReasonNotEnoughCards, a.Reason)
}

func TestAnalyzePlaySequences(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		play   []Card
		valid  bool
		reason string
	}{
		{"run of three", []Card{1, 2, 3}, true, ""},
		{"ace low run", []Card{0, 1, 2}, true, ""},
		{"joker fills gap", []Card{1, JokerRed, 3}, true, ""},
		{"joker extends run", []Card{1, 2, JokerRed}, true, ""},
		{"all jokers", []Card{JokerRed, JokerBlack, JokerRed}, true, ""},
		{"mixed suits", []Card{1, 15, 29}, false, ReasonMixedSuits},
		{"gap too wide", []Card{1, 2, 7}, false, ReasonNotConsecutive},
		{"duplicate rank", []Card{1, 2, 2}, false, ReasonDuplicateRank},
		{"ace never wraps", []Card{11, 12, 0}, false, ReasonNotConsecutive},
		{"invalid id", []Card{1, 2, 99}, false, ReasonInvalidCardID},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := AnalyzePlay(tt.play)
			assert.Equal(t, tt.valid, a.Valid)
			if tt.valid {
				assert.Equal(t, Sequence, a.Kind)
			} else {
				assert.Equal(t, tt.reason, a.Reason)
			}
		})
	}
}
