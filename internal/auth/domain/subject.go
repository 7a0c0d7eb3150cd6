package domain

import "time"

// Subject is a person the server authenticates: a child using a FableKids
// client, or the guardian responsible for them.
type Subject struct {
	ID           string
	Username     string
	Email        string
	PasswordHash string // argon2 encoded
	Birthdate    time.Time
	GuardianID   *string // set for children; nil for adults

	// Story profile, surfaced through the kid_profile scope
	CharacterID            string
	PreferredCharacterName string
	AppearanceURL          string
	Traits                 map[string]string

	// Libraries the subject can read, and possibly write
	Libraries []Library

	// TOTPSecret is set when the guardian has enrolled one-time-code
	// verification for verifiable parental consent (nullable, base32 encoded).
	TOTPSecret *string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Library is one story library visible to a subject.
type Library struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Writable bool   `json:"writable"`
}

// IsMinor reports whether the subject is younger than threshold years at now.
func (s *Subject) IsMinor(now time.Time, threshold int) bool {
	cutoff := s.Birthdate.AddDate(threshold, 0, 0)
	return now.Before(cutoff)
}

// IsGuardianOf reports whether the subject is the registered guardian of child.
func (s *Subject) IsGuardianOf(child *Subject) bool {
	return child.GuardianID != nil && *child.GuardianID == s.ID
}
