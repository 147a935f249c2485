package platform

import (
	"strings"
	"time"
)

// Role is a named set of permissions granted to a user.
type Role struct {
	Name        string          `json:"name"`
	Permissions map[string]bool `json:"permissions,omitempty"`
}

// UserProfile is the authenticated user as returned by /auth/profile.
type UserProfile struct {
	ID        string `json:"id"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Email     string `json:"email"`
	Roles     []Role `json:"roles"`
}

// FullName returns "First Last", trimmed.
func (u *UserProfile) FullName() string {
	return strings.TrimSpace(u.FirstName + " " + u.LastName)
}

// HasRole reports whether the user holds the named role (case-insensitive).
func (u *UserProfile) HasRole(name string) bool {
	for _, r := range u.Roles {
		if strings.EqualFold(r.Name, name) {
			return true
		}
	}
	return false
}

// Can reports whether any of the user's roles grants permission.
func (u *UserProfile) Can(permission string) bool {
	for _, r := range u.Roles {
		if r.Permissions[permission] {
			return true
		}
	}
	return false
}

// TokenPair is the credential set issued at login.
type TokenPair struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

// Page is one page of a listing.
type Page[T any] struct {
	Items []T `json:"items"`
	Total int `json:"total"`
	Page  int `json:"page"`
	Limit int `json:"limit"`
}

// ListOptions selects a page of a listing.
type ListOptions struct {
	Page   int
	Limit  int
	Search string
}

// Patient is a person receiving care at the practice.
type Patient struct {
	ID          string `json:"id"`
	FirstName   string `json:"firstName"`
	LastName    string `json:"lastName"`
	DateOfBirth string `json:"dateOfBirth,omitempty"`
	Email       string `json:"email,omitempty"`
	Phone       string `json:"phone,omitempty"`
}

// Provider is a clinician who sees patients.
type Provider struct {
	ID        string `json:"id"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Specialty string `json:"specialty,omitempty"`
}

// Appointment is a scheduled visit.
type Appointment struct {
	ID         string    `json:"id"`
	PatientID  string    `json:"patientId"`
	ProviderID string    `json:"providerId"`
	StartsAt   time.Time `json:"startsAt"`
	EndsAt     time.Time `json:"endsAt"`
	Status     string    `json:"status"`
}

// Invoice is a bill issued to a patient. Amount is in minor currency units.
type Invoice struct {
	ID        string    `json:"id"`
	PatientID string    `json:"patientId"`
	Amount    int64     `json:"amount"`
	Currency  string    `json:"currency"`
	Status    string    `json:"status"`
	IssuedAt  time.Time `json:"issuedAt"`
}

// User is a staff account as listed by administrators.
type User struct {
	ID        string `json:"id"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Email     string `json:"email"`
	Roles     []Role `json:"roles"`
	Active    bool   `json:"active"`
}
