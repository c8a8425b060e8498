package crypto

import "unicode"

// StrengthResult is UI feedback about a candidate password. It is a hint,
// not a security boundary: nothing in this package enforces a minimum score.
type StrengthResult struct {
	Score      int    `json:"score"` // 0..4
	Label      string `json:"label"`
	ColorClass string `json:"color_class"`
}

var strengthLevels = [5]struct {
	label      string
	colorClass string
}{
	{"very weak", "strength-critical"},
	{"weak", "strength-danger"},
	{"fair", "strength-warning"},
	{"good", "strength-ok"},
	{"strong", "strength-success"},
}

// ScorePasswordStrength scores a password 0..4 from its length and character
// class mix. Pure function, no side effects.
func ScorePasswordStrength(password string) StrengthResult {
	var hasUpper, hasLower, hasDigit, hasSpecial bool
	for _, r := range password {
		switch {
		case unicode.IsUpper(r):
			hasUpper = true
		case unicode.IsLower(r):
			hasLower = true
		case unicode.IsDigit(r):
			hasDigit = true
		default:
			hasSpecial = true
		}
	}

	classes := 0
	for _, has := range []bool{hasUpper, hasLower, hasDigit, hasSpecial} {
		if has {
			classes++
		}
	}

	length := len(password)

	var score int
	switch {
	case length == 0:
		score = 0
	case length < 8:
		score = 1
	case classes >= 3 && length >= 16:
		score = 4
	case classes >= 3 && length >= 12:
		score = 3
	case classes >= 2:
		score = 2
	default:
		score = 1
	}

	level := strengthLevels[score]
	return StrengthResult{Score: score, Label: level.label, ColorClass: level.colorClass}
}
