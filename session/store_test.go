package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sevenitynet/reliefboard/backend"
	"github.com/sevenitynet/reliefboard/model"
	"github.com/sevenitynet/reliefboard/storage"
)

type fakeBackend struct {
	mu        sync.Mutex
	loginRes  backend.LoginResponse
	loginErr  error
	signupRes backend.Response
	signupErr error
	signups   int
	profiles  map[string]model.Profile
	gate      chan struct{}
	userCalls int
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		loginRes:  backend.LoginResponse{Status: backend.StatusSuccess, Token: "abc123", ID: "1"},
		signupRes: backend.Response{Status: backend.StatusSuccess},
		profiles: map[string]model.Profile{
			"abc123": {ID: "1", FirstName: "Ann", LastName: "Lee", Email: "a@b.com", Role: model.RoleDonator},
		},
	}
}

func (f *fakeBackend) Login(ctx context.Context, email, password string) (backend.LoginResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.loginRes, f.loginErr
}

func (f *fakeBackend) SignUp(ctx context.Context, req backend.SignUpRequest) (backend.Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.signups++
	return f.signupRes, f.signupErr
}

func (f *fakeBackend) User(ctx context.Context, token string, id model.ID) (model.Profile, error) {
	f.mu.Lock()
	gate := f.gate
	f.userCalls++
	f.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return model.Profile{}, ctx.Err()
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.profiles[token]
	if !ok {
		return model.Profile{}, &backend.Error{Status: 401, Message: "invalid token"}
	}
	return p, nil
}

func (f *fakeBackend) block() chan struct{} {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gate = make(chan struct{})
	return f.gate
}

type failingStorage struct{}

func (failingStorage) Get(context.Context, string) (string, bool, error) {
	return "", false, storage.ErrUnavailable
}
func (failingStorage) Set(context.Context, string, string) error { return storage.ErrUnavailable }
func (failingStorage) Remove(context.Context, string) error      { return storage.ErrUnavailable }

func await(t *testing.T, s *Store) Snapshot {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	snap, err := s.AwaitProfile(ctx)
	require.NoError(t, err)
	return snap
}

func signedToken(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test"))
	require.NoError(t, err)
	return token
}

func TestLogIn_PersistsAcrossInitialize(t *testing.T) {
	st := storage.NewMemory()
	b := newFakeBackend()
	ctx := context.Background()

	s := NewStore(st, b)
	require.Equal(t, StatusSuccess, s.LogIn(ctx, "a@b.com", "pw123456"))

	snap := s.Snapshot()
	assert.Equal(t, "abc123", snap.Token)
	assert.Equal(t, model.ID("1"), snap.UserID)

	snap = await(t, s)
	require.NotNil(t, snap.Profile)
	assert.Equal(t, model.RoleDonator, snap.Profile.Role)

	reloaded := NewStore(st, b)
	require.NoError(t, reloaded.Initialize(ctx))
	assert.Equal(t, "abc123", reloaded.Snapshot().Token)

	snap = await(t, reloaded)
	require.NotNil(t, snap.Profile)
	assert.Equal(t, model.ID("1"), snap.Profile.ID)
}

func TestLogOut_ClearsEverything(t *testing.T) {
	st := storage.NewMemory()
	b := newFakeBackend()
	ctx := context.Background()

	s := NewStore(st, b)
	require.Equal(t, StatusSuccess, s.LogIn(ctx, "a@b.com", "pw123456"))
	await(t, s)

	s.LogOut(ctx)

	snap := s.Snapshot()
	assert.False(t, snap.Authenticated())
	assert.Nil(t, snap.Profile)
	assert.Empty(t, snap.UserID)
	assert.Equal(t, 0, st.Len())

	reloaded := NewStore(st, b)
	require.NoError(t, reloaded.Initialize(ctx))
	snap = reloaded.Snapshot()
	assert.Empty(t, snap.Token)
	assert.Nil(t, snap.Profile)
}

func TestLogIn_FailureLeavesStateUnchanged(t *testing.T) {
	tests := []struct {
		name string
		res  backend.LoginResponse
		err  error
	}{
		{"transport error", backend.LoginResponse{}, errors.New("connection refused")},
		{"backend error", backend.LoginResponse{}, &backend.Error{Status: 401, Message: "bad credentials"}},
		{"error status", backend.LoginResponse{Status: backend.StatusError}, nil},
		{"missing token", backend.LoginResponse{Status: backend.StatusSuccess}, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st := storage.NewMemory()
			b := newFakeBackend()
			b.loginRes, b.loginErr = tt.res, tt.err

			s := NewStore(st, b)
			assert.Equal(t, StatusError, s.LogIn(context.Background(), "a@b.com", "wrong"))
			assert.False(t, s.Snapshot().Authenticated())
			assert.Equal(t, 0, st.Len())
		})
	}
}

func TestLogIn_StorageFailure(t *testing.T) {
	s := NewStore(failingStorage{}, newFakeBackend())

	assert.Equal(t, StatusError, s.LogIn(context.Background(), "a@b.com", "pw123456"))
	assert.False(t, s.Snapshot().Authenticated(), "memory must not run ahead of storage")
}

func TestRefreshFailure_LogsOut(t *testing.T) {
	st := storage.NewMemory()
	b := newFakeBackend()
	b.loginRes.Token = "stale"

	s := NewStore(st, b)
	require.Equal(t, StatusSuccess, s.LogIn(context.Background(), "a@b.com", "pw123456"))

	snap := await(t, s)
	assert.False(t, snap.Authenticated(), "failed profile fetch must clear the token")
	assert.Nil(t, snap.Profile)
	assert.Equal(t, 0, st.Len(), "failed profile fetch must clear storage")
}

func TestRefresh_PendingProfileIsNil(t *testing.T) {
	b := newFakeBackend()
	gate := b.block()

	s := NewStore(storage.NewMemory(), b)
	require.Equal(t, StatusSuccess, s.LogIn(context.Background(), "a@b.com", "pw123456"))

	snap := s.Snapshot()
	assert.True(t, snap.Authenticated())
	assert.Nil(t, snap.Profile)
	assert.Equal(t, model.RoleUnknown, snap.Role())

	close(gate)
	snap = await(t, s)
	assert.Equal(t, model.RoleDonator, snap.Role())
}

func TestRefresh_SupersededByLogOut(t *testing.T) {
	st := storage.NewMemory()
	b := newFakeBackend()
	gate := b.block()
	ctx := context.Background()

	s := NewStore(st, b)
	require.Equal(t, StatusSuccess, s.LogIn(ctx, "a@b.com", "pw123456"))

	s.mu.RLock()
	pending := s.pending
	s.mu.RUnlock()
	require.NotNil(t, pending)

	s.LogOut(ctx)
	close(gate)
	<-pending

	snap := s.Snapshot()
	assert.False(t, snap.Authenticated())
	assert.Nil(t, snap.Profile, "a late profile must not resurrect a logged-out session")
}

func TestRefresh_Timeout(t *testing.T) {
	st := storage.NewMemory()
	b := newFakeBackend()
	b.block()

	s := NewStore(st, b, WithRefreshTimeout(20*time.Millisecond))
	require.Equal(t, StatusSuccess, s.LogIn(context.Background(), "a@b.com", "pw123456"))

	snap := await(t, s)
	assert.False(t, snap.Authenticated(), "a timed out fetch is a failed fetch")
}

func TestAwaitProfile_ContextDone(t *testing.T) {
	b := newFakeBackend()
	gate := b.block()
	defer close(gate)

	s := NewStore(storage.NewMemory(), b)
	require.Equal(t, StatusSuccess, s.LogIn(context.Background(), "a@b.com", "pw123456"))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	snap, err := s.AwaitProfile(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.True(t, snap.Authenticated())
	assert.Nil(t, snap.Profile)
}

func TestSignUp_DoesNotAuthenticate(t *testing.T) {
	st := storage.NewMemory()
	b := newFakeBackend()
	b.signupRes.Status = backend.StatusSuccess

	s := NewStore(st, b)
	status := s.SignUp(context.Background(), backend.SignUpRequest{
		FirstName: "Ann", LastName: "Lee", Role: model.RoleVictim,
		Email: "a@b.com", Password: "pw123456", Phone: "123",
	})

	assert.Equal(t, StatusSuccess, status)
	assert.False(t, s.Snapshot().Authenticated())
	assert.Equal(t, 0, st.Len())
}

func TestSignUp_Failures(t *testing.T) {
	valid := backend.SignUpRequest{
		FirstName: "Ann", LastName: "Lee", Role: model.RoleVictim,
		Email: "a@b.com", Password: "pw123456",
	}

	t.Run("invalid form skips backend", func(t *testing.T) {
		b := newFakeBackend()
		s := NewStore(storage.NewMemory(), b)

		req := valid
		req.Role = model.RoleUnknown
		assert.Equal(t, StatusError, s.SignUp(context.Background(), req))
		assert.Equal(t, 0, b.signups)
	})

	t.Run("backend rejects", func(t *testing.T) {
		b := newFakeBackend()
		b.signupRes.Status = backend.StatusError
		s := NewStore(storage.NewMemory(), b)
		assert.Equal(t, StatusError, s.SignUp(context.Background(), valid))
	})

	t.Run("transport error", func(t *testing.T) {
		b := newFakeBackend()
		b.signupErr = errors.New("timeout")
		s := NewStore(storage.NewMemory(), b)
		assert.Equal(t, StatusError, s.SignUp(context.Background(), valid))
	})
}

func TestInitialize_NothingStored(t *testing.T) {
	b := newFakeBackend()
	s := NewStore(storage.NewMemory(), b)

	require.NoError(t, s.Initialize(context.Background()))
	snap := await(t, s)
	assert.False(t, snap.Authenticated())
	assert.Equal(t, 0, b.userCalls)
}

func TestInitialize_StorageFailure(t *testing.T) {
	s := NewStore(failingStorage{}, newFakeBackend())

	err := s.Initialize(context.Background())
	assert.ErrorIs(t, err, storage.ErrUnavailable)
	assert.False(t, s.Snapshot().Authenticated())
}

func TestInitialize_DiscardsExpiredJWT(t *testing.T) {
	st := storage.NewMemory()
	ctx := context.Background()
	expired := signedToken(t, jwt.MapClaims{"sub": "1", "exp": time.Now().Add(-time.Hour).Unix()})
	require.NoError(t, st.Set(ctx, storage.KeyToken, expired))
	require.NoError(t, st.Set(ctx, storage.KeyUserID, "1"))

	b := newFakeBackend()
	s := NewStore(st, b)
	require.NoError(t, s.Initialize(ctx))

	assert.False(t, s.Snapshot().Authenticated())
	assert.Equal(t, 0, st.Len())
	assert.Equal(t, 0, b.userCalls)
}

func TestInitialize_UserIDFromSubject(t *testing.T) {
	st := storage.NewMemory()
	ctx := context.Background()
	token := signedToken(t, jwt.MapClaims{"sub": "42", "exp": time.Now().Add(time.Hour).Unix()})
	require.NoError(t, st.Set(ctx, storage.KeyToken, token))

	b := newFakeBackend()
	b.profiles[token] = model.Profile{ID: "42", Role: model.RoleVolunteer}

	s := NewStore(st, b, WithPersistUserID(false))
	require.NoError(t, s.Initialize(ctx))

	snap := await(t, s)
	assert.Equal(t, model.ID("42"), snap.UserID)
	assert.Equal(t, model.RoleVolunteer, snap.Role())
}

func TestPersistUserIDDisabled(t *testing.T) {
	st := storage.NewMemory()
	s := NewStore(st, newFakeBackend(), WithPersistUserID(false))

	require.Equal(t, StatusSuccess, s.LogIn(context.Background(), "a@b.com", "pw123456"))
	_, ok, _ := st.Get(context.Background(), storage.KeyUserID)
	assert.False(t, ok)
	_, ok, _ = st.Get(context.Background(), storage.KeyToken)
	assert.True(t, ok)
}

func TestObserver(t *testing.T) {
	var mu sync.Mutex
	var seen []string
	obs := func(op Operation, status Status) {
		mu.Lock()
		seen = append(seen, string(op)+":"+string(status))
		mu.Unlock()
	}

	s := NewStore(storage.NewMemory(), newFakeBackend(), WithObserver(obs))
	ctx := context.Background()

	require.NoError(t, s.Initialize(ctx))
	s.LogIn(ctx, "a@b.com", "pw123456")
	await(t, s)
	s.LogOut(ctx)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{
		"initialize:success",
		"login:success",
		"refresh:success",
		"logout:success",
	}, seen)
}

func TestSnapshot_IsACopy(t *testing.T) {
	s := NewStore(storage.NewMemory(), newFakeBackend())
	s.LogIn(context.Background(), "a@b.com", "pw123456")

	snap := await(t, s)
	require.NotNil(t, snap.Profile)
	snap.Profile.Role = model.RoleCharity

	assert.Equal(t, model.RoleDonator, s.Snapshot().Role())
}
