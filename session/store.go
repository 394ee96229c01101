// Package session is the single authoritative holder of a client's authentication state.
//
// A Store owns the token, user id and resolved profile of one client. It persists the
// credentials into a storage.Storage so that a fresh Store over the same storage restores
// the session, and it resolves the profile asynchronously whenever the token changes.
//
// There is no package-level state: every Store is created explicitly and handed to the
// code that needs it, usually through a Manager.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/sevenitynet/reliefboard/backend"
	"github.com/sevenitynet/reliefboard/model"
	"github.com/sevenitynet/reliefboard/storage"
)

var (
	errRejected     = errors.New("session: rejected by backend")
	errMissingToken = errors.New("session: backend returned no token")
	errInvalidForm  = errors.New("session: invalid form")
)

// Backend is the part of the REST API a Store talks to.
type Backend interface {
	Login(ctx context.Context, email, password string) (backend.LoginResponse, error)
	SignUp(ctx context.Context, req backend.SignUpRequest) (backend.Response, error)
	User(ctx context.Context, token string, id model.ID) (model.Profile, error)
}

// Store holds one client's session. It is safe for concurrent use.
type Store struct {
	mu      sync.RWMutex
	token   string
	userID  model.ID
	profile *model.Profile
	// gen increments on every credential change; a profile fetch started under an older gen is discarded.
	gen     uint64
	pending chan struct{}

	storage        storage.Storage
	backend        Backend
	logger         *slog.Logger
	observer       Observer
	flights        *singleflight.Group
	refreshTimeout time.Duration
	persistUserID  bool
	now            func() time.Time

	// retired is set once the Store no longer backs its client; onStaleWrite then runs
	// after every credential change it makes.
	retired      atomic.Bool
	onStaleWrite func(*Store)
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) {
		s.logger = l
	}
}

// WithObserver registers a callback receiving every operation outcome.
func WithObserver(o Observer) Option {
	return func(s *Store) {
		s.observer = o
	}
}

// WithRefreshTimeout bounds the profile fetch. Zero means no timeout.
func WithRefreshTimeout(d time.Duration) Option {
	return func(s *Store) {
		s.refreshTimeout = d
	}
}

// WithPersistUserID controls whether the user id is written to storage next to the token.
// When disabled, a restored session takes its user id from the token's subject claim.
func WithPersistUserID(persist bool) Option {
	return func(s *Store) {
		s.persistUserID = persist
	}
}

// WithFlightGroup shares profile fetch deduplication across stores.
func WithFlightGroup(g *singleflight.Group) Option {
	return func(s *Store) {
		s.flights = g
	}
}

func withStaleWrite(f func(*Store)) Option {
	return func(s *Store) {
		s.onStaleWrite = f
	}
}

// NewStore creates an unauthenticated Store. Call Initialize to restore a persisted session.
func NewStore(st storage.Storage, b Backend, opts ...Option) *Store {
	s := &Store{
		storage:       st,
		backend:       b,
		logger:        slog.Default(),
		persistUserID: true,
		now:           time.Now,
	}

	for _, opt := range opts {
		opt(s)
	}

	if s.flights == nil {
		s.flights = &singleflight.Group{}
	}

	return s
}

// Initialize restores the token (and user id) from storage. When a token is found the
// profile fetch starts in the background; Initialize does not wait for it.
//
// A stored token that is a JWT with an elapsed exp claim is discarded.
func (s *Store) Initialize(ctx context.Context) error {
	token, ok, err := s.storage.Get(ctx, storage.KeyToken)
	if err != nil {
		s.logger.Error("session: restore failed", "error", err)
		s.observe(OpInitialize, StatusError)
		return fmt.Errorf("session: restore token: %w", err)
	}

	if !ok || token == "" {
		s.observe(OpInitialize, StatusSuccess)
		return nil
	}

	var id model.ID
	if s.persistUserID {
		v, _, err := s.storage.Get(ctx, storage.KeyUserID)
		if err != nil {
			s.logger.Error("session: restore failed", "error", err)
			s.observe(OpInitialize, StatusError)
			return fmt.Errorf("session: restore user id: %w", err)
		}
		id = model.ID(v)
	}
	if id == "" {
		_, id, _ = tokenClaims(token)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if tokenExpired(token, s.now()) {
		s.logger.Info("session: discarding expired token")
		s.clearLocked(ctx)
		s.observe(OpInitialize, StatusSuccess)
		return nil
	}

	s.applyLocked(token, id)
	s.observe(OpInitialize, StatusSuccess)
	return nil
}

// LogIn exchanges credentials for a token. On success the token and user id are
// persisted, then published in memory, and the profile fetch starts. On any failure the
// session is left untouched.
func (s *Store) LogIn(ctx context.Context, email, password string) Status {
	res, err := s.backend.Login(ctx, email, password)
	if err == nil && res.Status == backend.StatusError {
		err = errRejected
	}
	if err == nil && res.Token == "" {
		err = errMissingToken
	}
	if err != nil {
		s.logger.Warn("session: login failed", "error", err)
		s.observe(OpLogIn, StatusError)
		return StatusError
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.persistLocked(ctx, res.Token, res.ID); err != nil {
		s.logger.Error("session: login failed", "error", err)
		s.observe(OpLogIn, StatusError)
		return StatusError
	}

	s.applyLocked(res.Token, res.ID)
	s.wroteLocked()
	s.observe(OpLogIn, StatusSuccess)
	return StatusSuccess
}

// SignUp registers an account. It never establishes a session: callers log in afterwards.
func (s *Store) SignUp(ctx context.Context, req backend.SignUpRequest) Status {
	if err := validateSignUp(req); err != nil {
		s.logger.Warn("session: sign up failed", "error", err)
		s.observe(OpSignUp, StatusError)
		return StatusError
	}

	res, err := s.backend.SignUp(ctx, req)
	if err == nil && res.Status == backend.StatusError {
		err = errRejected
	}
	if err != nil {
		s.logger.Warn("session: sign up failed", "error", err)
		s.observe(OpSignUp, StatusError)
		return StatusError
	}

	s.observe(OpSignUp, StatusSuccess)
	return StatusSuccess
}

// LogOut clears the session from memory and storage. It has no network side effect and
// always succeeds; storage failures are logged.
func (s *Store) LogOut(ctx context.Context) {
	s.mu.Lock()
	s.clearLocked(ctx)
	s.mu.Unlock()

	s.observe(OpLogOut, StatusSuccess)
}

// Snapshot returns a copy of the current state.
func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap := Snapshot{Token: s.token, UserID: s.userID}
	if s.profile != nil {
		p := *s.profile
		snap.Profile = &p
	}
	return snap
}

// AwaitProfile blocks until no profile fetch is in flight, or ctx is done, and returns
// the resulting snapshot.
func (s *Store) AwaitProfile(ctx context.Context) (Snapshot, error) {
	for {
		s.mu.RLock()
		pending := s.pending
		s.mu.RUnlock()

		if pending == nil {
			return s.Snapshot(), nil
		}

		select {
		case <-pending:
		case <-ctx.Done():
			return s.Snapshot(), ctx.Err()
		}
	}
}

// persistLocked writes the credentials to storage. A partially written pair is rolled back.
func (s *Store) persistLocked(ctx context.Context, token string, id model.ID) error {
	if err := s.storage.Set(ctx, storage.KeyToken, token); err != nil {
		return fmt.Errorf("session: persist token: %w", err)
	}

	if !s.persistUserID {
		return nil
	}

	if err := s.storage.Set(ctx, storage.KeyUserID, string(id)); err != nil {
		_ = s.storage.Remove(ctx, storage.KeyToken)
		return fmt.Errorf("session: persist user id: %w", err)
	}

	return nil
}

// applyLocked publishes credentials in memory and starts a profile fetch when the token changed
// or no profile is resolved or resolving.
func (s *Store) applyLocked(token string, id model.ID) {
	unchanged := token == s.token && id == s.userID
	s.token = token
	s.userID = id

	if unchanged && (s.profile != nil || s.pending != nil) {
		return
	}

	s.gen++
	s.profile = nil
	done := make(chan struct{})
	s.pending = done

	go s.refresh(s.gen, token, id, done)
}

// clearLocked removes the credentials from storage, then from memory. Any in-flight fetch
// is invalidated.
func (s *Store) clearLocked(ctx context.Context) {
	if err := s.storage.Remove(ctx, storage.KeyToken); err != nil {
		s.logger.Error("session: remove token", "error", err)
	}
	if err := s.storage.Remove(ctx, storage.KeyUserID); err != nil {
		s.logger.Error("session: remove user id", "error", err)
	}

	s.gen++
	s.token = ""
	s.userID = ""
	s.profile = nil
	s.pending = nil
	s.wroteLocked()
}

func (s *Store) retire() {
	s.retired.Store(true)
}

// wroteLocked reports a credential change made after the Store was retired, so that the
// Store currently backing the client can be rebuilt from storage.
func (s *Store) wroteLocked() {
	if s.retired.Load() && s.onStaleWrite != nil {
		s.onStaleWrite(s)
	}
}

// refresh fetches the profile for token. A failure is treated as an invalid credential and
// logs the client out; it is never reported to a caller.
func (s *Store) refresh(gen uint64, token string, id model.ID, done chan struct{}) {
	defer close(done)

	ctx := context.Background()
	if s.refreshTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.refreshTimeout)
		defer cancel()
	}

	v, err, _ := s.flights.Do(string(id)+"\x00"+token, func() (interface{}, error) {
		return s.backend.User(ctx, token, id)
	})

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.pending == done {
		s.pending = nil
	}
	if gen != s.gen {
		return
	}

	if err != nil {
		s.logger.Warn("session: profile fetch failed, logging out", "user_id", id, "error", err)
		s.clearLocked(context.Background())
		s.observe(OpRefresh, StatusError)
		return
	}

	p := v.(model.Profile)
	s.profile = &p
	s.observe(OpRefresh, StatusSuccess)
}

func (s *Store) observe(op Operation, status Status) {
	if s.observer != nil {
		s.observer(op, status)
	}
}

func validateSignUp(req backend.SignUpRequest) error {
	switch {
	case strings.TrimSpace(req.Email) == "":
		return fmt.Errorf("%w: email is required", errInvalidForm)
	case req.Password == "":
		return fmt.Errorf("%w: password is required", errInvalidForm)
	case strings.TrimSpace(req.FirstName) == "" || strings.TrimSpace(req.LastName) == "":
		return fmt.Errorf("%w: first and last name are required", errInvalidForm)
	case !req.Role.Known():
		return fmt.Errorf("%w: unknown role", errInvalidForm)
	}
	return nil
}
