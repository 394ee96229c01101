package router

import (
	"fmt"
	"net/http"
	"reflect"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/sevenitynet/reliefboard/guard"
	"github.com/sevenitynet/reliefboard/model"
	"github.com/sevenitynet/reliefboard/request"
)

// Config is shared by a SubRouter and every router derived from it.
type Config struct {
	// Guard authorizes page navigations. Defaults to guard.Default().
	Guard *guard.Guard
	// AwaitProfile, when positive, bounds how long a guarded route waits for an in-flight
	// profile fetch before authorizing. Zero authorizes against whatever is resolved.
	AwaitProfile time.Duration
	// OnDecision, if set, receives every page decision.
	OnDecision func(guard.Decision)
}

// SubRouter wraps a Gin router group. Handlers are plain functions taking a pointer to a
// request struct; the request is populated by reflection and the result rendered as JSON.
type SubRouter struct {
	url    string
	gin    *gin.RouterGroup
	cfg    *Config
	routes *[]Route
}

// NewSubRouter creates a new SubRouter from a Gin router group.
func NewSubRouter(gin *gin.RouterGroup, cfg Config) *SubRouter {
	if cfg.Guard == nil {
		cfg.Guard = guard.Default()
	}

	return &SubRouter{
		url:    "",
		gin:    gin,
		cfg:    &cfg,
		routes: &[]Route{},
	}
}

func (r *SubRouter) combineURL(path string) string {
	return r.url + path
}

// Router creates a new router with the given URL prefix.
func (r *SubRouter) Router(url string) *SubRouter {
	return &SubRouter{
		url:    r.combineURL(url),
		gin:    r.gin.Group(url),
		cfg:    r.cfg,
		routes: r.routes,
	}
}

// Gin returns the underlying Gin router group for adding middleware.
func (r *SubRouter) Gin() *gin.RouterGroup {
	return r.gin
}

// Guard returns the route guard used for pages.
func (r *SubRouter) Guard() *guard.Guard {
	return r.cfg.Guard
}

// Routes returns every route registered through this router or any router derived from it.
func (r *SubRouter) Routes() []Route {
	return append([]Route(nil), *r.routes...)
}

// RegisterManually registers a route handler. The method is detected from the request type.
// It panics when handler is not a func taking a request pointer and returning a result and
// an optional error.
func (r *SubRouter) RegisterManually(path string, handler interface{}, access Access, roles ...model.Role) {
	handlerType := reflect.TypeOf(handler)

	if handlerType.Kind() != reflect.Func || handlerType.NumIn() != 1 || handlerType.NumOut() < 1 || handlerType.NumOut() > 2 {
		panic("Handler function must have one input parameter and one or two return values, in: " + fmt.Sprintf("%d", handlerType.NumIn()) + ", out: " + fmt.Sprintf("%d", handlerType.NumOut()))
	}

	if handlerType.NumOut() == 2 && !handlerType.Out(1).Implements(reflect.TypeOf((*error)(nil)).Elem()) {
		panic("Handler function second return value must be an error")
	}

	reqType := handlerType.In(0)
	if reqType.Kind() == reflect.Ptr {
		reqType = reqType.Elem()
	} else {
		panic("Handler function input parameter must be a pointer")
	}

	method := DetectHTTPMethod(reqType)

	*r.routes = append(*r.routes, Route{
		Method:       method,
		Path:         r.combineURL(path),
		Access:       access,
		Roles:        roles,
		RequestType:  reqType,
		ResponseType: handlerType.Out(0),
	})

	h := reflect.ValueOf(handler)
	r.gin.Handle(method, path, func(c *gin.Context) {
		WrapHandler(c, reqType, h, access, roles, r.cfg)
	})
}

// RegisterPage registers a page. The route guard runs before the handler on every request;
// an empty roles list admits any authenticated client.
func (r *SubRouter) RegisterPage(path string, handler interface{}, roles ...model.Role) {
	r.RegisterManually(path, handler, Page, roles...)
}

// RegisterAction registers an API action requiring a session, and one of roles if given.
func (r *SubRouter) RegisterAction(path string, handler interface{}, roles ...model.Role) {
	r.RegisterManually(path, handler, Action, roles...)
}

// RegisterPublic registers a route open to every client.
func (r *SubRouter) RegisterPublic(path string, handler interface{}) {
	r.RegisterManually(path, handler, Public)
}

// DetectHTTPMethod determines the HTTP method from the embedded struct in the request type.
// Embedded structs are searched recursively, so request types can embed each other.
func DetectHTTPMethod(reqType reflect.Type) string {
	if method, ok := detectHTTPMethod(reqType); ok {
		return method
	}

	panic("Failed to detect HTTP method: No recognized embedded request struct found")
}

func detectHTTPMethod(reqType reflect.Type) (string, bool) {
	for i := 0; i < reqType.NumField(); i++ {
		field := reqType.Field(i)
		if !field.Anonymous {
			continue
		}

		switch field.Type {
		case reflect.TypeOf(request.GetRequest{}):
			return http.MethodGet, true
		case reflect.TypeOf(request.PostRequest{}):
			return http.MethodPost, true
		case reflect.TypeOf(request.PutRequest{}):
			return http.MethodPut, true
		case reflect.TypeOf(request.DeleteRequest{}):
			return http.MethodDelete, true
		}

		if field.Type.Kind() == reflect.Struct {
			if method, ok := detectHTTPMethod(field.Type); ok {
				return method, true
			}
		}
	}

	return "", false
}
