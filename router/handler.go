package router

import (
	"context"
	"net/http"
	"reflect"

	"github.com/gin-gonic/gin"

	"github.com/sevenitynet/reliefboard/guard"
	"github.com/sevenitynet/reliefboard/model"
	"github.com/sevenitynet/reliefboard/request"
	"github.com/sevenitynet/reliefboard/session"
)

// WrapHandler runs the access check for the route, then populates the request, calls the
// handler and renders its result. The handler sees the session snapshot the check was made on.
//
// A nil result answers 204 unless the handler already wrote a response. A returned error is
// re-raised as a panic for the recovery middleware.
func WrapHandler(c *gin.Context, reqType reflect.Type, handler reflect.Value, access Access, roles []model.Role, cfg *Config) {
	switch access {
	case Page:
		snap := snapshot(c, cfg)
		request.SetSnapshot(c, snap)
		d := cfg.Guard.Authorize(roles, snap, c.Request.URL.RequestURI())
		if cfg.OnDecision != nil {
			cfg.OnDecision(d)
		}
		if d.Redirect() {
			c.Redirect(http.StatusFound, d.Location)
			c.Abort()
			return
		}
	case Action:
		snap := snapshot(c, cfg)
		request.SetSnapshot(c, snap)
		if !snap.Authenticated() {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		if len(roles) > 0 && !guard.Allows(roles, snap.Role()) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "forbidden"})
			return
		}
	}

	req := request.PopulateRequest(c, reqType)
	rv := handler.Call([]reflect.Value{reflect.ValueOf(req)})

	if len(rv) > 1 && !rv[1].IsNil() {
		panic(rv[1].Interface().(error))
	}

	if isNil(rv[0]) {
		if !c.Writer.Written() {
			c.Status(http.StatusNoContent)
		}
		return
	}

	res := rv[0].Interface()
	if err, ok := res.(error); ok {
		panic(err)
	}

	c.JSON(http.StatusOK, res)
}

// snapshot reads the client's session, waiting for a pending profile when configured to.
func snapshot(c *gin.Context, cfg *Config) session.Snapshot {
	store := request.StoreFrom(c)
	if store == nil {
		return session.Snapshot{}
	}

	snap := store.Snapshot()
	if cfg.AwaitProfile > 0 && snap.Authenticated() && snap.Profile == nil {
		ctx, cancel := context.WithTimeout(c.Request.Context(), cfg.AwaitProfile)
		defer cancel()
		snap, _ = store.AwaitProfile(ctx)
	}

	return snap
}

func isNil(v reflect.Value) bool {
	switch v.Kind() {
	case reflect.Ptr, reflect.Interface, reflect.Map, reflect.Func, reflect.Chan:
		return v.IsNil()
	}
	return false
}
