// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Doorman Contributors

package auth

// Strength grades a password.
type Strength int

// Strength grades.
const (
	StrengthWeak Strength = iota
	StrengthMedium
	StrengthStrong
)

// Label returns the text shown next to the password field.
func (s Strength) Label() string {
	switch s {
	case StrengthStrong:
		return "Strong password"
	case StrengthMedium:
		return "Medium password"
	default:
		return "Weak password"
	}
}

func (s Strength) String() string {
	switch s {
	case StrengthStrong:
		return "strong"
	case StrengthMedium:
		return "medium"
	default:
		return "weak"
	}
}

// PasswordScore awards one point each for: at least 8 characters, a lowercase
// letter, an uppercase letter, a digit, and any other character. Letter classes are ASCII only.
func PasswordScore(password string) int {
	var lower, upper, digit, other bool
	n := 0
	for _, r := range password {
		n++
		switch {
		case r >= 'a' && r <= 'z':
			lower = true
		case r >= 'A' && r <= 'Z':
			upper = true
		case r >= '0' && r <= '9':
			digit = true
		default:
			other = true
		}
	}
	score := 0
	for _, ok := range []bool{n >= 8, lower, upper, digit, other} {
		if ok {
			score++
		}
	}
	return score
}

// PasswordStrength grades password: up to 2 points is weak, up to 4 medium.
func PasswordStrength(password string) Strength {
	switch score := PasswordScore(password); {
	case score <= 2:
		return StrengthWeak
	case score <= 4:
		return StrengthMedium
	default:
		return StrengthStrong
	}
}
