package router

import (
	"reflect"

	"github.com/sevenitynet/reliefboard/model"
)

// Access is how a route is protected.
type Access uint8

const (
	// Public routes run for every client.
	Public Access = iota
	// Page routes run the route guard first and redirect when it denies.
	Page
	// Action routes answer 401 or 403 JSON when the session is missing or has the wrong role.
	Action
)

func (a Access) String() string {
	switch a {
	case Page:
		return "page"
	case Action:
		return "action"
	}
	return "public"
}

// Route describes a registered route.
type Route struct {
	Method       string
	Path         string
	Access       Access
	Roles        []model.Role
	RequestType  reflect.Type
	ResponseType reflect.Type
}
