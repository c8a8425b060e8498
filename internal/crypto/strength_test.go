package crypto

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestScorePasswordStrength(t *testing.T) {
	cases := []struct {
		name     string
		password string
		score    int
		label    string
	}{
		{"empty", "", 0, "very weak"},
		{"short", "abc", 1, "weak"},
		{"long single class", "aaaaaaaaaaaaaaaa", 1, "weak"},
		{"two classes", "password1", 2, "fair"},
		{"three classes medium", "Tr0ub4dor&3x", 3, "good"},
		{"three classes short-ish", "Password12ab", 3, "good"},
		{"long mixed", "correct-Horse-battery-Staple1", 4, "strong"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			result := ScorePasswordStrength(tc.password)
			assert.Equal(t, tc.score, result.Score)
			assert.Equal(t, tc.label, result.Label)
			assert.NotEmpty(t, result.ColorClass)
		})
	}
}

func TestScorePasswordStrengthIsPure(t *testing.T) {
	first := ScorePasswordStrength("Tr0ub4dor&3")
	second := ScorePasswordStrength("Tr0ub4dor&3")
	assert.Equal(t, first, second)
}
