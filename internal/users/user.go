package users

import (
	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/angeloszaimis/api-gateway/internal/store"
)

// User is a registered account. The password hash never leaves the service.
type User struct {
	ID           int    `json:"id"`
	Login        string `json:"login"`
	Name         string `json:"name,omitempty"`
	PasswordHash []byte `json:"-"`
}

// Registration is the body of POST /users.
type Registration struct {
	Login    string `json:"login"`
	Password string `json:"password"`
	Name     string `json:"name"`
}

func (r Registration) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Login, validation.Required, validation.Length(1, 64)),
		// bcrypt ignores input beyond 72 bytes
		validation.Field(&r.Password, validation.Required, validation.Length(1, 72)),
		validation.Field(&r.Name, validation.Length(0, 128)),
	)
}

// Changes is the body of PUT /users/{userId}. Empty fields are left alone.
type Changes struct {
	Name     string `json:"name"`
	Password string `json:"password"`
}

func (c Changes) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.Password, validation.Length(0, 72)),
		validation.Field(&c.Name, validation.Length(0, 128)),
	)
}

// Registration response: the new id and a token for the gateway.
type registered struct {
	ID    int    `json:"id"`
	Token string `json:"token,omitempty"`
}

func newTable() *store.Table[User] {
	return store.New(func(u *User, id int) { u.ID = id })
}

// uniqueLogin rejects a candidate whose login is already registered.
func uniqueLogin(candidate User, table []User) bool {
	for _, u := range table {
		if u.Login == candidate.Login {
			return false
		}
	}
	return true
}

// mergeUser copies the non-empty fields of incoming.
func mergeUser(existing *User, incoming User) {
	if incoming.Name != "" {
		existing.Name = incoming.Name
	}
	if len(incoming.PasswordHash) > 0 {
		existing.PasswordHash = incoming.PasswordHash
	}
}

func sameLogin(existing, candidate User) bool {
	return existing.Login == candidate.Login
}
