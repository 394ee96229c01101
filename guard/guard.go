// Package guard decides, before a protected page renders, whether the current session may
// see it. Decisions are evaluated fresh on every navigation and never block: a session
// whose profile is still resolving has no role.
package guard

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/sevenitynet/reliefboard/model"
	"github.com/sevenitynet/reliefboard/session"
)

// Outcome is the terminal result of one navigation attempt.
type Outcome uint8

const (
	Render Outcome = iota
	RedirectLogin
	RedirectUnauthorized
	RedirectRoleHome
)

func (o Outcome) String() string {
	switch o {
	case Render:
		return "render"
	case RedirectLogin:
		return "redirect_login"
	case RedirectUnauthorized:
		return "redirect_unauthorized"
	case RedirectRoleHome:
		return "redirect_role_home"
	}
	return fmt.Sprintf("outcome(%d)", uint8(o))
}

// Decision is an Outcome plus, for redirects, where to go.
type Decision struct {
	Outcome  Outcome
	Location string
}

// Redirect reports whether the decision aborts the navigation.
func (d Decision) Redirect() bool {
	return d.Outcome != Render
}

// RedirectParam is the query parameter carrying the originally requested path to the login page.
const RedirectParam = "redirect"

// Guard holds the navigation targets used by Authorize.
type Guard struct {
	LoginPath        string
	UnauthorizedPath string
	// RootPath is dispatched to the landing page of the session's role instead of rendering.
	RootPath string
	Homes    map[model.Role]string
}

// Default returns the dashboard's guard: one landing page per role under the root.
func Default() *Guard {
	return &Guard{
		LoginPath:        "/login",
		UnauthorizedPath: "/unauthorized",
		RootPath:         "/",
		Homes: map[model.Role]string{
			model.RoleVictim:    "/victim_index",
			model.RoleDonator:   "/donator_index",
			model.RoleVolunteer: "/volunteer_index",
			model.RoleCharity:   "/charity_index",
		},
	}
}

// Authorize evaluates one navigation to target. required lists the roles the page
// accepts; an empty list admits any authenticated session.
//
// Authentication is checked first: without a token the result is always RedirectLogin,
// whatever the page requires.
func (g *Guard) Authorize(required []model.Role, snap session.Snapshot, target string) Decision {
	if !snap.Authenticated() {
		return g.login(target)
	}

	if path, _, _ := strings.Cut(target, "?"); g.RootPath != "" && path == g.RootPath {
		home, ok := g.Homes[snap.Role()]
		if !ok || home == "" {
			return g.unauthorized()
		}
		return Decision{Outcome: RedirectRoleHome, Location: home}
	}

	if len(required) > 0 && !Allows(required, snap.Role()) {
		return g.unauthorized()
	}

	return Decision{Outcome: Render}
}

// Allows reports whether role is one of required. The unknown role is never allowed.
func Allows(required []model.Role, role model.Role) bool {
	if !role.Known() {
		return false
	}
	for _, r := range required {
		if r == role {
			return true
		}
	}
	return false
}

// ParseRoles converts role names into roles, case-insensitively.
func ParseRoles(names []string) ([]model.Role, error) {
	roles := make([]model.Role, 0, len(names))
	for _, name := range names {
		role, ok := model.ParseRole(name)
		if !ok {
			return nil, fmt.Errorf("guard: unknown role %q", name)
		}
		roles = append(roles, role)
	}
	return roles, nil
}

// LoginLocation returns the login page URL that sends the user back to target afterwards.
func (g *Guard) LoginLocation(target string) string {
	if target == "" {
		return g.LoginPath
	}
	return g.LoginPath + "?" + url.Values{RedirectParam: {target}}.Encode()
}

func (g *Guard) login(target string) Decision {
	return Decision{Outcome: RedirectLogin, Location: g.LoginLocation(target)}
}

func (g *Guard) unauthorized() Decision {
	return Decision{Outcome: RedirectUnauthorized, Location: g.UnauthorizedPath}
}
