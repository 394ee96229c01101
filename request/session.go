package request

import (
	"github.com/gin-gonic/gin"

	"github.com/sevenitynet/reliefboard/session"
)

const (
	storeKey    = "reliefboard.session"
	snapshotKey = "reliefboard.snapshot"
)

// SetStore attaches the client's session store to the request.
func SetStore(c *gin.Context, s *session.Store) {
	c.Set(storeKey, s)
}

// StoreFrom returns the session store attached to the request, or nil.
func StoreFrom(c *gin.Context) *session.Store {
	v, ok := c.Get(storeKey)
	if !ok {
		return nil
	}
	s, _ := v.(*session.Store)
	return s
}

// SetSnapshot pins the snapshot an access check was made on; SnapshotFrom returns it for
// the rest of the request.
func SetSnapshot(c *gin.Context, snap session.Snapshot) {
	c.Set(snapshotKey, snap)
}

// SnapshotFrom returns the session snapshot of the request: the pinned one if any,
// otherwise the store's current state. A request without a store is unauthenticated.
func SnapshotFrom(c *gin.Context) session.Snapshot {
	if v, ok := c.Get(snapshotKey); ok {
		if snap, ok := v.(session.Snapshot); ok {
			return snap
		}
	}
	if s := StoreFrom(c); s != nil {
		return s.Snapshot()
	}
	return session.Snapshot{}
}
