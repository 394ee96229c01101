package model

import (
	"strings"

	"github.com/goccy/go-json"
)

// Role is the closed set of user categories known to the dashboard.
// The zero value is RoleUnknown and never grants access to a role-restricted page.
type Role uint8

const (
	// RoleUnknown is a role that could not be resolved (missing profile or unrecognised name).
	RoleUnknown Role = iota
	// RoleVictim is a person affected by a disaster who files aid reports.
	RoleVictim
	// RoleDonator is a person or company donating resources.
	RoleDonator
	// RoleVolunteer is a person assigned to reports in the field.
	RoleVolunteer
	// RoleCharity is an organisation managing resources, reports and donations.
	RoleCharity
)

var roleNames = [...]string{
	RoleUnknown:   "unknown",
	RoleVictim:    "victim",
	RoleDonator:   "donator",
	RoleVolunteer: "volunteer",
	RoleCharity:   "charity",
}

// Roles returns every known role, excluding RoleUnknown.
func Roles() []Role {
	return []Role{RoleVictim, RoleDonator, RoleVolunteer, RoleCharity}
}

// ParseRole resolves a role name case-insensitively. Surrounding whitespace is ignored.
func ParseRole(name string) (Role, bool) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "victim":
		return RoleVictim, true
	case "donator":
		return RoleDonator, true
	case "volunteer":
		return RoleVolunteer, true
	case "charity":
		return RoleCharity, true
	}

	return RoleUnknown, false
}

// String returns the lower-case wire name of the role.
func (r Role) String() string {
	if int(r) < len(roleNames) {
		return roleNames[r]
	}
	return roleNames[RoleUnknown]
}

// Known reports whether the role is one of the closed set.
func (r Role) Known() bool {
	return r > RoleUnknown && int(r) < len(roleNames)
}

// MarshalJSON encodes the role as its wire name.
func (r Role) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.String())
}

// UnmarshalJSON decodes a role name. Unrecognised names decode to RoleUnknown.
func (r *Role) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err != nil {
		return err
	}

	*r, _ = ParseRole(name)
	return nil
}

// MarshalYAML encodes the role as its wire name.
func (r Role) MarshalYAML() (interface{}, error) {
	return r.String(), nil
}
