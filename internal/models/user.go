package models

import (
	"errors"
	"strings"
)

// Errors returned by NewUser.CheckPasswords.
var (
	ErrMissingUsername  = errors.New("username is required")
	ErrMissingPassword  = errors.New("password is required")
	ErrPasswordMismatch = errors.New("passwords do not match")
)

// User is a profile record as returned by the account API.
// Skills is kept as the comma-delimited string the backend stores; use SkillList for display.
type User struct {
	ID          int64   `json:"id"`
	Username    string  `json:"username"`
	FirstName   string  `json:"first_name"`
	LastName    string  `json:"last_name"`
	Email       string  `json:"email"`
	PhoneNumber string  `json:"phone_number"`
	Avatar      *string `json:"avatar,omitempty"`
	IsVIP       bool    `json:"is_vip"`
	City        string  `json:"city"`
	Desc        string  `json:"desc"`
	Skills      string  `json:"skills"`
	IsAvailable bool    `json:"is_available"`
	Role        string  `json:"role"`
	Rating      float64 `json:"rating"`
}

// Clone returns a deep copy of the user.
func (u *User) Clone() *User {
	if u == nil {
		return nil
	}
	clone := *u
	if u.Avatar != nil {
		avatar := *u.Avatar
		clone.Avatar = &avatar
	}
	return &clone
}

// DisplayName returns "First Last", falling back to the username.
func (u *User) DisplayName() string {
	name := strings.TrimSpace(u.FirstName + " " + u.LastName)
	if name == "" {
		return u.Username
	}
	return name
}

// SkillList splits the skills string for display.
func (u *User) SkillList() []string {
	var skills []string
	for _, skill := range strings.Split(u.Skills, ",") {
		if skill = strings.TrimSpace(skill); skill != "" {
			skills = append(skills, skill)
		}
	}
	return skills
}

// RatingBand buckets the rating the same way profile pages colour it.
func (u *User) RatingBand() string {
	switch {
	case u.Rating >= 4.5:
		return "high"
	case u.Rating >= 3.5:
		return "medium"
	default:
		return "low"
	}
}

// NewUser is the registration payload.
type NewUser struct {
	Username    string  `json:"username"`
	FirstName   string  `json:"first_name"`
	LastName    string  `json:"last_name"`
	Email       string  `json:"email"`
	PhoneNumber string  `json:"phone_number"`
	Avatar      *string `json:"avatar,omitempty"`
	IsVIP       bool    `json:"is_vip"`
	City        string  `json:"city"`
	Desc        string  `json:"desc"`
	Skills      string  `json:"skills"`
	IsAvailable bool    `json:"is_available"`
	Role        string  `json:"role"`
	Rating      string  `json:"rating"`
	Password    string  `json:"password"`
	Password2   string  `json:"password2"`
}

// CheckPasswords enforces the constraints callers must check before registering.
func (n *NewUser) CheckPasswords() error {
	if strings.TrimSpace(n.Username) == "" {
		return ErrMissingUsername
	}
	if n.Password == "" {
		return ErrMissingPassword
	}
	if n.Password != n.Password2 {
		return ErrPasswordMismatch
	}
	return nil
}

// Credentials is the login payload.
type Credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// ProfileUpdate carries the editable profile fields; nil fields are left unchanged.
type ProfileUpdate struct {
	FirstName   *string `json:"first_name,omitempty"`
	LastName    *string `json:"last_name,omitempty"`
	Email       *string `json:"email,omitempty"`
	PhoneNumber *string `json:"phone_number,omitempty"`
	City        *string `json:"city,omitempty"`
	Desc        *string `json:"desc,omitempty"`
	Skills      *string `json:"skills,omitempty"`
	Role        *string `json:"role,omitempty"`
	IsAvailable *bool   `json:"is_available,omitempty"`
}

// IsEmpty reports whether the update changes nothing.
func (p ProfileUpdate) IsEmpty() bool {
	return p == ProfileUpdate{}
}

// UserFilter narrows a directory listing. Role, City and Search are sent to the
// server; Available is applied client side.
type UserFilter struct {
	Role      string
	City      string
	Search    string
	Available *bool
}

// Match reports whether the user passes the client side part of the filter.
func (f UserFilter) Match(u User) bool {
	if f.Available != nil && u.IsAvailable != *f.Available {
		return false
	}
	return true
}
