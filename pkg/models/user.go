package models

type User struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
	Photo string `json:"photo,omitempty"`
	Phone string `json:"phone,omitempty"`
	// Created timestamp (ns)
	CreatedTS int64 `json:"created_ts,omitempty"`
}

// Ref returns the public projection embedded in message views.
func (u *User) Ref() UserRef {
	return UserRef{ID: u.ID, Name: u.Name, Photo: u.Photo}
}

// UserRef is the public part of a user shown next to messages.
type UserRef struct {
	ID    string `json:"id"`
	Name  string `json:"name,omitempty"`
	Photo string `json:"photo,omitempty"`
}

// Public returns a copy safe to show other users: the phone number is
// dropped.
func (u *User) Public() *User {
	out := *u
	out.Phone = ""
	return &out
}
