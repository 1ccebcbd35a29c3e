package entity

import (
	"errors"
	"fmt"
)

const MaxAge = 120

var (
	ErrInvalidAge    = errors.New("age must be between 0 and 120")
	ErrInvalidGender = errors.New("unknown gender")
)

// Gender one of the fixed sidebar options; empty means not given
type Gender string

const (
	GenderUnset     Gender = ""
	GenderFemale    Gender = "Female"
	GenderMale      Gender = "Male"
	GenderNonBinary Gender = "Non-binary"
	GenderOther     Gender = "Other"
)

// Genders in the order the profile form lists them
var Genders = []Gender{GenderUnset, GenderFemale, GenderMale, GenderNonBinary, GenderOther}

// Valid reports whether g is one of Genders
func (g Gender) Valid() bool {
	for _, known := range Genders {
		if g == known {
			return true
		}
	}
	return false
}

// Profile optional patient details interpolated into the prompt
type Profile struct {
	Age            int    `json:"age"`
	Gender         Gender `json:"gender"`
	MedicalHistory string `json:"medical_history"`
}

// Validate checks the age range and gender enumeration
func (p Profile) Validate() error {
	if p.Age < 0 || p.Age > MaxAge {
		return fmt.Errorf("%w: got %d", ErrInvalidAge, p.Age)
	}
	if !p.Gender.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidGender, p.Gender)
	}
	return nil
}
