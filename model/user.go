package model

import (
	"bytes"
	"strings"

	"github.com/goccy/go-json"
)

// ID is a backend user identifier. The backend sends it either as a JSON string or a number.
type ID string

// UnmarshalJSON accepts both quoted and numeric identifiers.
func (id *ID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*id = ""
		return nil
	}

	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = ID(s)
		return nil
	}

	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*id = ID(n.String())
	return nil
}

// Profile is the resolved user record of an authenticated session.
type Profile struct {
	ID        ID     `json:"id"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Email     string `json:"email"`
	Phone     string `json:"phone"`
	Role      Role   `json:"role"`
}

// HasRole checks if the profile has the given role.
func (p *Profile) HasRole(role Role) bool {
	return p != nil && role.Known() && p.Role == role
}

// FullName joins first and last name.
func (p *Profile) FullName() string {
	if p == nil {
		return ""
	}
	return strings.TrimSpace(p.FirstName + " " + p.LastName)
}
