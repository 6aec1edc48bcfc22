// Package domain contains entity descriptors and enums without logic, just meta-data
package domain

import "unicode/utf8"

const (
	MaxNameLen     = 128
	MaxMetadataLen = 4096
)

// ValidateName accepts an empty name (anonymous entity) or a name of at most
// MaxNameLen runes.
func ValidateName(name string) error {
	if utf8.RuneCountInString(name) > MaxNameLen {
		return ErrNameTooLong
	}
	return nil
}

// ValidateMemberName is stricter than ValidateName: members joining by
// name must supply one when asked to.
func ValidateMemberName(name string, required bool) error {
	if required && len(name) == 0 {
		return ErrNameEmpty
	}
	return ValidateName(name)
}

func ValidateMetadata(metadata string) error {
	if len(metadata) > MaxMetadataLen {
		return ErrMetadataTooLong
	}
	return nil
}
